package analysis

import (
	"sync"
	"sync/atomic"

	"github.com/bryanwahyu/maestro-analyzer/internal/application"
	domain "github.com/bryanwahyu/maestro-analyzer/internal/domain/analysis"
	"github.com/bryanwahyu/maestro-analyzer/internal/domain/layers"
)

const subscriberBuffer = 256

// StopToken is the cooperative cancellation flag of one run. It is only
// polled between steps, so an in-flight AI call always finishes.
type StopToken struct {
	stopped atomic.Bool
}

// Stop reports whether this call was the one that set the flag.
func (t *StopToken) Stop() bool { return t.stopped.CompareAndSwap(false, true) }

func (t *StopToken) Stopped() bool { return t.stopped.Load() }

// Session holds the live state of a run. The orchestrator goroutine is
// the only writer; readers get deep copies.
type Session struct {
	mu      sync.RWMutex
	run     *domain.Run
	clock   application.Clock
	stop    StopToken
	subs    map[int]chan domain.Event
	nextSub int
	done    chan struct{}
	closed  bool
}

// NewSession starts a run with fresh pending layers and an empty log.
func NewSession(id domain.RunID, tenant, architecture string, catalog []layers.Layer, clock application.Clock) *Session {
	if clock == nil {
		clock = application.SystemClock{}
	}
	results := make([]domain.LayerResult, len(catalog))
	for i, l := range catalog {
		results[i] = domain.LayerResult{ID: l.ID, Name: l.Name, Description: l.Description, State: domain.Pending{}}
	}
	return &Session{
		run: &domain.Run{
			ID:           id,
			TenantID:     tenant,
			Architecture: architecture,
			Layers:       results,
			Logs:         []domain.LogEntry{},
			Status:       domain.RunRunning,
			StartedAt:    clock.Now().UTC(),
		},
		clock: clock,
		subs:  make(map[int]chan domain.Event),
		done:  make(chan struct{}),
	}
}

// RestoreSession wraps a stored run so follow-up steps (diagram, report)
// can reuse the session API. A running run read back from storage is
// treated as stopped.
func RestoreSession(run *domain.Run, clock application.Clock) *Session {
	if clock == nil {
		clock = application.SystemClock{}
	}
	cp := run.Clone()
	if cp.Status == domain.RunRunning {
		cp.Status = domain.RunStopped
	}
	done := make(chan struct{})
	close(done)
	return &Session{run: cp, clock: clock, subs: map[int]chan domain.Event{}, done: done, closed: true}
}

func (s *Session) ID() domain.RunID { return s.run.ID }

func (s *Session) Tenant() string { return s.run.TenantID }

func (s *Session) Architecture() string { return s.run.Architecture }

// Token is the stop token handed to the orchestrator.
func (s *Session) Token() *StopToken { return &s.stop }

// Snapshot returns a deep copy of the current run state.
func (s *Session) Snapshot() *domain.Run {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.run.Clone()
}

// Layers returns a copy of the layer results.
func (s *Session) Layers() []domain.LayerResult {
	return s.Snapshot().Layers
}

func (s *Session) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.run.Status == domain.RunRunning
}

// Done is closed once the run reached a final status.
func (s *Session) Done() <-chan struct{} { return s.done }

// RequestStop sets the stop flag of a running session. It returns false
// when the run already finished or a stop was requested before.
func (s *Session) RequestStop() bool {
	if !s.Active() || !s.stop.Stop() {
		return false
	}
	s.Log("Analysis stop requested. Finishing current step...")
	return true
}

func (s *Session) Log(msg string) {
	s.mu.Lock()
	entry := domain.LogEntry{Time: s.clock.Now().UTC(), Message: msg}
	s.run.Logs = append(s.run.Logs, entry)
	s.publishLocked(domain.Event{Type: domain.EventLog, Log: &entry})
	s.mu.Unlock()
}

func (s *Session) SetLayer(i int, st domain.LayerState) {
	s.mu.Lock()
	s.run.Layers[i].State = st
	l := s.run.Layers[i]
	s.publishLocked(domain.Event{Type: domain.EventLayer, Layer: &l})
	s.mu.Unlock()
}

func (s *Session) SetSummary(summary string) {
	s.mu.Lock()
	s.run.Summary = summary
	s.publishLocked(domain.Event{Type: domain.EventSummary, Summary: summary})
	s.mu.Unlock()
}

func (s *Session) SetDiagram(d *domain.Diagram) {
	s.mu.Lock()
	s.run.Diagram = d
	s.publishLocked(domain.Event{Type: domain.EventDiagram, Diagram: d})
	s.mu.Unlock()
}

func (s *Session) SetReportURL(url string) {
	s.mu.Lock()
	s.run.ReportURL = url
	s.mu.Unlock()
}

// Finish records the final status and closes every subscription.
func (s *Session) Finish(status domain.RunStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	now := s.clock.Now().UTC()
	s.run.Status = status
	s.run.FinishedAt = &now
	s.publishLocked(domain.Event{Type: domain.EventStatus, Status: status})
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
	s.closed = true
	close(s.done)
}

// Subscribe returns a stream of events and a cancel func. The channel is
// closed when the run finishes. A subscriber that falls behind loses
// events; it can always re-read a snapshot.
func (s *Session) Subscribe() (<-chan domain.Event, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan domain.Event, subscriberBuffer)
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[id]; ok {
			close(c)
			delete(s.subs, id)
		}
	}
}

func (s *Session) publishLocked(ev domain.Event) {
	ev.RunID = s.run.ID
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
