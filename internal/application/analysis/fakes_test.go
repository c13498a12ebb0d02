package analysis

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/bryanwahyu/maestro-analyzer/internal/application"
	"github.com/bryanwahyu/maestro-analyzer/internal/domain/ai"
	domain "github.com/bryanwahyu/maestro-analyzer/internal/domain/analysis"
	"github.com/bryanwahyu/maestro-analyzer/internal/domain/runerrors"
)

const testArchitecture = "An e-commerce platform with an Observer agent, a Profile agent and an MCP server exposing a ProductDB tool."

var fixedClock = application.ClockFunc(func() time.Time {
	return time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
})

type fakeClient struct {
	mu            sync.Mutex
	threatErr     map[string]error
	mitigationErr map[string]error
	summaryErr    error
	diagram       string
	diagramErr    error
	onThreat      func(layer string)
	onMitigation  func(layer string)
	summaryCalls  int
	summaryInput  ai.SummaryRequest
	gate          chan struct{} // blocks SuggestThreats until closed
	entered       chan struct{} // signalled once a call waits on gate
}

func (c *fakeClient) SuggestThreats(ctx context.Context, req ai.ThreatRequest) (ai.ThreatResponse, error) {
	if c.gate != nil {
		if c.entered != nil {
			select {
			case c.entered <- struct{}{}:
			default:
			}
		}
		select {
		case <-c.gate:
		case <-ctx.Done():
			return ai.ThreatResponse{}, ctx.Err()
		}
	}
	if c.onThreat != nil {
		c.onThreat(req.LayerName)
	}
	if err := c.threatErr[req.LayerName]; err != nil {
		return ai.ThreatResponse{}, err
	}
	return ai.ThreatResponse{ThreatAnalysis: "## Threats for " + req.LayerName}, nil
}

func (c *fakeClient) RecommendMitigation(_ context.Context, req ai.MitigationRequest) (domain.Mitigation, error) {
	if c.onMitigation != nil {
		c.onMitigation(req.Layer)
	}
	if err := c.mitigationErr[req.Layer]; err != nil {
		return domain.Mitigation{}, err
	}
	return domain.Mitigation{
		Recommendation: "Harden " + req.Layer,
		Reasoning:      "because",
		Caveats:        "none",
	}, nil
}

func (c *fakeClient) ExecutiveSummary(_ context.Context, req ai.SummaryRequest) (ai.SummaryResponse, error) {
	c.mu.Lock()
	c.summaryCalls++
	c.summaryInput = req
	c.mu.Unlock()
	if c.summaryErr != nil {
		return ai.SummaryResponse{}, c.summaryErr
	}
	return ai.SummaryResponse{Summary: "# Summary"}, nil
}

func (c *fakeClient) ArchitectureDiagram(context.Context, ai.DiagramRequest) (ai.DiagramResponse, error) {
	if c.diagramErr != nil {
		return ai.DiagramResponse{}, c.diagramErr
	}
	return ai.DiagramResponse{MermaidCode: c.diagram}, nil
}

type memRepo struct {
	mu   sync.Mutex
	runs map[domain.RunID]*domain.Run
}

func newMemRepo() *memRepo { return &memRepo{runs: map[domain.RunID]*domain.Run{}} }

func (r *memRepo) Save(_ context.Context, run *domain.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[run.ID] = run.Clone()
	return nil
}

func (r *memRepo) Get(_ context.Context, tenant string, id domain.RunID) (*domain.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok || run.TenantID != tenant {
		return nil, domain.ErrRunNotFound
	}
	return run.Clone(), nil
}

func (r *memRepo) Paginate(_ context.Context, tenant string, page, pageSize int) (domain.PaginatedResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Run
	for _, run := range r.runs {
		if run.TenantID == tenant {
			out = append(out, run.Clone())
		}
	}
	return domain.NewPaginatedResult(out, page, pageSize, int64(len(out))), nil
}

type memErrors struct {
	mu   sync.Mutex
	rows []*runerrors.RunError
}

func (m *memErrors) Save(_ context.Context, e *runerrors.RunError) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, e)
	return nil
}

func (m *memErrors) ListByRun(_ context.Context, tenant, runID string, _ int) ([]*runerrors.RunError, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*runerrors.RunError
	for _, e := range m.rows {
		if e.TenantID == tenant && e.RunID == runID {
			out = append(out, e)
		}
	}
	return out, nil
}

type textAssembler struct {
	err error
}

func (a textAssembler) Assemble(run *domain.Run, w io.Writer) error {
	if a.err != nil {
		return a.err
	}
	_, err := io.WriteString(w, "%PDF-fake "+string(run.ID))
	return err
}

type memReports struct {
	keys []string
	body string
}

func (m *memReports) UploadReport(_ context.Context, key string, r io.Reader, _ int64) (string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.keys = append(m.keys, key)
	m.body = string(b)
	return "http://minio/reports/" + key, nil
}

func messages(run *domain.Run) []string {
	out := make([]string, len(run.Logs))
	for i, l := range run.Logs {
		out[i] = l.Message
	}
	return out
}

func hasLog(run *domain.Run, substr string) bool {
	for _, m := range messages(run) {
		if strings.Contains(m, substr) {
			return true
		}
	}
	return false
}

var errBoom = errors.New("upstream returned garbage")
