package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/bryanwahyu/maestro-analyzer/internal/application"
	"github.com/bryanwahyu/maestro-analyzer/internal/domain/ai"
	domain "github.com/bryanwahyu/maestro-analyzer/internal/domain/analysis"
	"github.com/bryanwahyu/maestro-analyzer/internal/domain/failure"
	"github.com/bryanwahyu/maestro-analyzer/internal/domain/runerrors"
)

// Metrics receives run and layer outcomes.
type Metrics interface {
	ObserveRun(outcome string)
	ObserveLayer(layer, status string)
}

type noopMetrics struct{}

func (noopMetrics) ObserveRun(string)           {}
func (noopMetrics) ObserveLayer(string, string) {}

// Orchestrator drives the per-layer workflow of a session.
type Orchestrator struct {
	Client  ai.Client
	Errors  runerrors.Repository // optional
	Metrics Metrics
	Clock   application.Clock
	Logger  *slog.Logger
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

func (o *Orchestrator) metrics() Metrics {
	if o.Metrics == nil {
		return noopMetrics{}
	}
	return o.Metrics
}

// Analyze walks the session's layers in order. It returns true when the
// walk ended early because of the stop token or ctx.
func (o *Orchestrator) Analyze(ctx context.Context, sess *Session, stop *StopToken) bool {
	arch := sess.Architecture()

	for i, layer := range sess.Layers() {
		if stop.Stopped() {
			sess.Log("Analysis stopped by user.")
			return true
		}
		if err := ctx.Err(); err != nil {
			sess.Log(fmt.Sprintf("Analysis cancelled: %v", err))
			return true
		}

		tag := "[" + layer.Name + "]"
		sess.SetLayer(i, domain.Analyzing{})
		sess.Log(tag + " Analysis started...")

		sess.Log(tag + " Calling AI to suggest threats...")
		threat, err := o.Client.SuggestThreats(ctx, ai.ThreatRequest{
			ArchitectureDescription: arch,
			LayerName:               layer.Name,
			LayerDescription:        layer.Description,
		})
		if err != nil {
			o.fail(ctx, sess, i, layer, "", runerrors.PhaseThreat, err, ai.FlowSuggestThreats)
			continue
		}
		if threat.ThreatAnalysis == "" {
			o.fail(ctx, sess, i, layer, "", runerrors.PhaseThreat, ai.ErrEmptyResponse, ai.FlowSuggestThreats)
			continue
		}
		sess.SetLayer(i, domain.Analyzing{Threat: threat.ThreatAnalysis})
		sess.Log(tag + " Threat analysis received.")

		if stop.Stopped() {
			fe := failure.Interrupted(layer.Name)
			sess.SetLayer(i, domain.Failed{Threat: threat.ThreatAnalysis, Err: fe})
			o.metrics().ObserveLayer(layer.ID, string(domain.StatusError))
			sess.Log(tag + " Analysis stopped before mitigation step.")
			return true
		}

		sess.Log(tag + " Calling AI for mitigation strategies...")
		mitigation, err := o.Client.RecommendMitigation(ctx, ai.MitigationRequest{
			ThreatDescription: threat.ThreatAnalysis,
			Layer:             layer.Name,
		})
		if err != nil {
			o.fail(ctx, sess, i, layer, threat.ThreatAnalysis, runerrors.PhaseMitigation, err, ai.FlowRecommendMitigation)
			continue
		}
		sess.Log(tag + " Mitigation recommendation received.")
		sess.SetLayer(i, domain.Complete{Threat: threat.ThreatAnalysis, Mitigation: mitigation})
		o.metrics().ObserveLayer(layer.ID, string(domain.StatusComplete))
		sess.Log(tag + " Analysis complete.")
	}

	// stop bisa datang saat call terakhir masih jalan
	if stop.Stopped() {
		sess.Log("Analysis stopped by user.")
		return true
	}
	if err := ctx.Err(); err != nil {
		sess.Log(fmt.Sprintf("Analysis cancelled: %v", err))
		return true
	}
	return false
}

func (o *Orchestrator) fail(ctx context.Context, sess *Session, i int, layer domain.LayerResult, threat string, phase runerrors.Phase, err error, flow string) {
	fe := ai.Classify(err, flow, map[string]any{"layer": layer.Name})
	sess.SetLayer(i, domain.Failed{Threat: threat, Err: fe})
	o.metrics().ObserveLayer(layer.ID, string(domain.StatusError))
	sess.Log(fmt.Sprintf("[%s] Error: %s", layer.Name, fe.Message))
	o.record(ctx, sess, layer.ID, phase, fe)
}

// Summarize asks for the executive summary when at least one layer
// completed. Failure is logged and leaves the summary unset.
func (o *Orchestrator) Summarize(ctx context.Context, sess *Session) {
	snap := sess.Snapshot()
	if snap.CompletedLayers() == 0 {
		return
	}
	sess.Log("Generating executive summary...")
	res, err := o.Client.ExecutiveSummary(ctx, ai.SummaryRequest{
		ArchitectureDescription: snap.Architecture,
		AnalysisResults:         snap.Layers,
	})
	if err == nil && res.Summary == "" {
		err = ai.ErrEmptyResponse
	}
	if err != nil {
		fe := ai.Classify(err, ai.FlowExecutiveSummary, nil)
		o.logger().Warn("executive summary failed", "run_id", snap.ID, "code", fe.Code, "err", fe.Message)
		sess.Log("Could not generate executive summary.")
		o.record(ctx, sess, "", runerrors.PhaseSummary, fe)
		return
	}
	sess.SetSummary(res.Summary)
	sess.Log("Executive summary generated.")
}

// Diagram asks for Mermaid markup of the session's architecture.
func (o *Orchestrator) Diagram(ctx context.Context, sess *Session) error {
	sess.Log("Generating architecture diagram...")
	res, err := o.Client.ArchitectureDiagram(ctx, ai.DiagramRequest{ArchitectureDescription: sess.Architecture()})
	if err == nil && res.MermaidCode == "" {
		err = ai.ErrNoMermaid
	}
	if err != nil {
		fe := ai.Classify(err, ai.FlowArchitectureDiagram, nil)
		sess.Log("Diagram generation failed: " + fe.Message)
		o.record(ctx, sess, "", runerrors.PhaseDiagram, fe)
		return fe
	}
	sess.SetDiagram(&domain.Diagram{Markup: res.MermaidCode})
	sess.Log("Diagram generated successfully.")
	return nil
}

func (o *Orchestrator) record(ctx context.Context, sess *Session, layer string, phase runerrors.Phase, fe *failure.Error) {
	if o.Errors == nil {
		return
	}
	details, _ := json.Marshal(fe)
	clock := o.Clock
	if clock == nil {
		clock = application.SystemClock{}
	}
	e := &runerrors.RunError{
		TenantID:    sess.Tenant(),
		RunID:       string(sess.ID()),
		Layer:       layer,
		Phase:       phase,
		Code:        string(fe.Code),
		Severity:    string(fe.Severity),
		Message:     fe.Message,
		DetailsJSON: string(details),
		CreatedAt:   clock.Now().UTC(),
	}
	// ctx bisa sudah cancel, simpan tetap jalan
	if err := o.Errors.Save(context.WithoutCancel(ctx), e); err != nil {
		o.logger().Error("save run error failed", "run_id", sess.ID(), "phase", phase, "err", err)
	}
}
