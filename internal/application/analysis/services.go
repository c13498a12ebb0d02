package analysis

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/bryanwahyu/maestro-analyzer/internal/application"
	"github.com/bryanwahyu/maestro-analyzer/internal/domain/ai"
	domain "github.com/bryanwahyu/maestro-analyzer/internal/domain/analysis"
	"github.com/bryanwahyu/maestro-analyzer/internal/domain/failure"
	"github.com/bryanwahyu/maestro-analyzer/internal/domain/layers"
	"github.com/bryanwahyu/maestro-analyzer/internal/domain/runerrors"
)

// ReportFileName is the default download name of a report.
const ReportFileName = "MAESTRO_Threat_Analysis.pdf"

// ErrClosed is returned by Begin and Start once Close has been called.
var ErrClosed = errors.New("analysis service is shutting down")

// ReportAssembler renders a run into a PDF document.
type ReportAssembler interface {
	Assemble(run *domain.Run, w io.Writer) error
}

// Service implements use-cases untuk analysis run.
// One run is active per tenant at a time; starting a new one after the
// previous finished replaces it.
type Service struct {
	AI        ai.Client
	Repo      domain.Repository    // optional
	Errors    runerrors.Repository // optional
	Reports   domain.ReportStore   // optional
	Assembler ReportAssembler
	Catalog   []layers.Layer // defaults to the MAESTRO catalog
	Clock     application.Clock
	Metrics   Metrics
	Logger    *slog.Logger

	once    sync.Once
	orch    *Orchestrator
	mu      sync.Mutex
	current map[string]*Session
	wg      sync.WaitGroup
	closing bool
	ctx     context.Context
	cancel  context.CancelFunc
}

func (s *Service) init() {
	s.once.Do(func() {
		if s.Clock == nil {
			s.Clock = application.SystemClock{}
		}
		if s.Metrics == nil {
			s.Metrics = noopMetrics{}
		}
		if s.Logger == nil {
			s.Logger = slog.Default()
		}
		if len(s.Catalog) == 0 {
			s.Catalog = layers.All()
		}
		s.orch = &Orchestrator{
			Client:  s.AI,
			Errors:  s.Errors,
			Metrics: s.Metrics,
			Clock:   s.Clock,
			Logger:  s.Logger,
		}
		s.current = make(map[string]*Session)
		s.ctx, s.cancel = context.WithCancel(context.Background())
	})
}

//
// ==== USE CASES ====
//

// Begin validates cmd and registers a new session without running it.
func (s *Service) Begin(cmd StartRunCommand) (*Session, error) {
	return s.begin(cmd, false)
}

// begin registers the session. With track set the run is counted in wg
// under the same lock Close takes, so no Add races the final Wait.
func (s *Service) begin(cmd StartRunCommand, track bool) (*Session, error) {
	s.init()
	if err := cmd.Normalize(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return nil, ErrClosed
	}
	if prev, ok := s.current[cmd.TenantID]; ok && prev.Active() {
		return nil, domain.ErrRunActive
	}
	sess := NewSession(domain.RunID(uuid.NewString()), cmd.TenantID, cmd.Architecture, s.Catalog, s.Clock)
	s.current[cmd.TenantID] = sess
	if track {
		s.wg.Add(1)
	}
	return sess, nil
}

// Start launches a run in the background and returns its first snapshot.
func (s *Service) Start(cmd StartRunCommand) (*domain.Run, error) {
	sess, err := s.begin(cmd, true)
	if err != nil {
		return nil, err
	}
	// jalan di background, pakai ctx service supaya gak kena request canceled
	go func() {
		defer s.wg.Done()
		s.Execute(s.ctx, sess, cmd.WithDiagram)
	}()
	return sess.Snapshot(), nil
}

// Execute runs the full pipeline for sess and blocks until it finished.
func (s *Service) Execute(ctx context.Context, sess *Session, withDiagram bool) *domain.Run {
	s.init()
	start := s.Clock.Now()
	sess.Log("Starting MAESTRO threat analysis...")

	stopped := s.orch.Analyze(ctx, sess, sess.Token())
	// ctx sudah mati, jangan panggil provider lagi
	if ctx.Err() != nil {
		stopped = true
	} else {
		s.orch.Summarize(ctx, sess)
		stopped = stopped || sess.Token().Stopped()
		if withDiagram && !stopped {
			_ = s.orch.Diagram(ctx, sess)
		}
	}

	status := domain.RunCompleted
	if stopped {
		status = domain.RunStopped
	} else {
		sess.Log("Full analysis complete.")
	}
	sess.Finish(status)
	s.Metrics.ObserveRun(string(status))

	run := sess.Snapshot()
	s.persist(ctx, run)
	s.Logger.Info("analysis finished",
		"run_id", run.ID,
		"tenant", run.TenantID,
		"status", status,
		"completed_layers", run.CompletedLayers(),
		"duration", application.Elapsed(s.Clock, start),
	)
	return run
}

func (s *Service) persist(ctx context.Context, run *domain.Run) {
	if s.Repo == nil {
		return
	}
	if err := s.Repo.Save(context.WithoutCancel(ctx), run); err != nil {
		s.Logger.Error("save run failed", "run_id", run.ID, "err", err)
	}
}

// Stop requests a cooperative stop of the tenant's active run.
func (s *Service) Stop(tenant string, id domain.RunID) (*domain.Run, error) {
	sess, err := s.live(tenant, id)
	if err != nil {
		return nil, err
	}
	sess.RequestStop()
	return sess.Snapshot(), nil
}

// Session returns the live session of a run, if it is still held.
func (s *Service) Session(tenant string, id domain.RunID) (*Session, bool) {
	sess, err := s.live(tenant, id)
	return sess, err == nil
}

func (s *Service) live(tenant string, id domain.RunID) (*Session, error) {
	s.init()
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.current[tenant]
	if !ok || sess.ID() != id {
		return nil, domain.ErrRunNotFound
	}
	return sess, nil
}

// Get returns a live snapshot, or the stored run.
func (s *Service) Get(ctx context.Context, tenant string, id domain.RunID) (*domain.Run, error) {
	if sess, err := s.live(tenant, id); err == nil {
		return sess.Snapshot(), nil
	}
	if s.Repo == nil {
		return nil, domain.ErrRunNotFound
	}
	return s.Repo.Get(ctx, tenant, id)
}

// List returns stored runs, newest first.
func (s *Service) List(ctx context.Context, tenant string, page, pageSize int) (domain.PaginatedResult, error) {
	if s.Repo == nil {
		return domain.PaginatedResult{}, domain.ErrNoRepository
	}
	return s.Repo.Paginate(ctx, tenant, page, pageSize)
}

// RunErrors lists classified failures recorded for a run.
func (s *Service) RunErrors(ctx context.Context, tenant string, id domain.RunID, limit int) ([]*runerrors.RunError, error) {
	if s.Errors == nil {
		return nil, domain.ErrNoRepository
	}
	if _, err := s.Get(ctx, tenant, id); err != nil {
		return nil, err
	}
	return s.Errors.ListByRun(ctx, tenant, string(id), limit)
}

// session returns the live session, or a finished one rebuilt from storage.
func (s *Service) session(ctx context.Context, tenant string, id domain.RunID) (*Session, bool, error) {
	if sess, err := s.live(tenant, id); err == nil {
		return sess, true, nil
	}
	if s.Repo == nil {
		return nil, false, domain.ErrRunNotFound
	}
	run, err := s.Repo.Get(ctx, tenant, id)
	if err != nil {
		return nil, false, err
	}
	return RestoreSession(run, s.Clock), false, nil
}

// GenerateDiagram asks the AI for Mermaid markup of the run architecture.
func (s *Service) GenerateDiagram(ctx context.Context, tenant string, id domain.RunID) (*domain.Diagram, error) {
	s.init()
	sess, live, err := s.session(ctx, tenant, id)
	if err != nil {
		return nil, err
	}
	if err := s.orch.Diagram(ctx, sess); err != nil {
		return nil, err
	}
	s.saveIfFinished(ctx, sess, live)
	return sess.Snapshot().Diagram, nil
}

// SetDiagramImage attaches a caller-rendered PNG or JPEG of the diagram.
func (s *Service) SetDiagramImage(ctx context.Context, tenant string, id domain.RunID, img []byte) (*domain.Diagram, error) {
	s.init()
	var kind string
	switch http.DetectContentType(img) {
	case "image/png":
		kind = "PNG"
	case "image/jpeg":
		kind = "JPG"
	default:
		return nil, failure.Validation("diagram image must be PNG or JPEG")
	}

	sess, live, err := s.session(ctx, tenant, id)
	if err != nil {
		return nil, err
	}
	d := &domain.Diagram{Image: img, ImageType: kind}
	if prev := sess.Snapshot().Diagram; prev != nil {
		d.Markup = prev.Markup
	}
	sess.SetDiagram(d)
	s.saveIfFinished(ctx, sess, live)
	return d, nil
}

func (s *Service) saveIfFinished(ctx context.Context, sess *Session, live bool) {
	if live && sess.Active() {
		// run masih jalan, nanti disimpan waktu selesai
		return
	}
	s.persist(ctx, sess.Snapshot())
}

// Report renders the run as PDF into w.
func (s *Service) Report(ctx context.Context, tenant string, id domain.RunID, w io.Writer) error {
	run, err := s.Get(ctx, tenant, id)
	if err != nil {
		return err
	}
	if err := s.Assembler.Assemble(run, w); err != nil {
		return s.reportFailed(ctx, run, err)
	}
	return nil
}

// PublishReport renders the run and uploads it to the report store.
func (s *Service) PublishReport(ctx context.Context, tenant string, id domain.RunID) (string, error) {
	s.init()
	if s.Reports == nil {
		return "", domain.ErrNoReportStore
	}
	sess, live, err := s.session(ctx, tenant, id)
	if err != nil {
		return "", err
	}
	run := sess.Snapshot()

	var buf bytes.Buffer
	if err := s.Assembler.Assemble(run, &buf); err != nil {
		return "", s.reportFailed(ctx, run, err)
	}
	key := fmt.Sprintf("%s/%s/%s", tenant, id, ReportFileName)
	url, err := s.Reports.UploadReport(ctx, key, &buf, int64(buf.Len()))
	if err != nil {
		return "", fmt.Errorf("upload report: %w", err)
	}
	sess.SetReportURL(url)
	sess.Log("PDF report uploaded.")
	s.saveIfFinished(ctx, sess, live)
	return url, nil
}

func (s *Service) reportFailed(ctx context.Context, run *domain.Run, err error) error {
	s.init()
	fe, ok := failure.As(err)
	if !ok {
		fe = failure.PDFGenerationFailed(err.Error())
	}
	s.orch.record(ctx, RestoreSession(run, s.Clock), "", runerrors.PhaseReport, fe)
	s.Logger.Error("report generation failed", "run_id", run.ID, "err", err)
	return fe
}

// Close stops background runs and waits for them until ctx expires.
// New runs are refused from then on.
func (s *Service) Close(ctx context.Context) error {
	s.init()
	s.mu.Lock()
	s.closing = true
	for _, sess := range s.current {
		sess.RequestStop()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.cancel()
		<-done
		return ctx.Err()
	}
}
