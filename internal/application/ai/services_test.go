package ai

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/maestro-analyzer/internal/application/retry"
	"github.com/bryanwahyu/maestro-analyzer/internal/domain/ai"
	"github.com/bryanwahyu/maestro-analyzer/internal/domain/analysis"
	"github.com/bryanwahyu/maestro-analyzer/internal/domain/failure"
)

type scriptedClient struct {
	errs  []error // consumed one per call, nil means success
	calls int
}

func (c *scriptedClient) next() error {
	c.calls++
	if len(c.errs) == 0 {
		return nil
	}
	err := c.errs[0]
	c.errs = c.errs[1:]
	return err
}

func (c *scriptedClient) SuggestThreats(context.Context, ai.ThreatRequest) (ai.ThreatResponse, error) {
	if err := c.next(); err != nil {
		return ai.ThreatResponse{}, err
	}
	return ai.ThreatResponse{ThreatAnalysis: "threats"}, nil
}

func (c *scriptedClient) RecommendMitigation(context.Context, ai.MitigationRequest) (analysis.Mitigation, error) {
	if err := c.next(); err != nil {
		return analysis.Mitigation{}, err
	}
	return analysis.Mitigation{Recommendation: "r"}, nil
}

func (c *scriptedClient) ExecutiveSummary(context.Context, ai.SummaryRequest) (ai.SummaryResponse, error) {
	if err := c.next(); err != nil {
		return ai.SummaryResponse{}, err
	}
	return ai.SummaryResponse{Summary: "s"}, nil
}

func (c *scriptedClient) ArchitectureDiagram(context.Context, ai.DiagramRequest) (ai.DiagramResponse, error) {
	if err := c.next(); err != nil {
		return ai.DiagramResponse{}, err
	}
	return ai.DiagramResponse{MermaidCode: "graph TD;"}, nil
}

type fakeMetrics struct {
	mu       sync.Mutex
	outcomes []string
	retries  []string
}

func (m *fakeMetrics) ObserveAICall(_ string, outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, outcome)
}

func (m *fakeMetrics) IncAIRetry(code string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retries = append(m.retries, code)
}

func instant(context.Context, time.Duration) error { return nil }

func newTestService(c ai.Client, m Metrics) *Service {
	return NewService(c, WithMetrics(m), WithRetryOptions(retry.WithSleep(instant)))
}

func TestServiceRetriesTransientErrors(t *testing.T) {
	client := &scriptedClient{errs: []error{errors.New("connection reset"), errors.New("503 unavailable")}}
	m := &fakeMetrics{}
	svc := newTestService(client, m)

	res, err := svc.SuggestThreats(context.Background(), ai.ThreatRequest{LayerName: "Foundation Models"})
	require.NoError(t, err)
	assert.Equal(t, "threats", res.ThreatAnalysis)
	assert.Equal(t, 3, client.calls)
	assert.Equal(t, []string{"NETWORK_ERROR", "AI_SERVICE_UNAVAILABLE"}, m.retries)
	assert.Equal(t, []string{"success"}, m.outcomes)
}

func TestServiceDoesNotRetryRateLimit(t *testing.T) {
	client := &scriptedClient{errs: []error{errors.New("429 rate limit reached")}}
	m := &fakeMetrics{}
	svc := newTestService(client, m)

	_, err := svc.RecommendMitigation(context.Background(), ai.MitigationRequest{Layer: "Data Operations"})
	require.Error(t, err)
	assert.Equal(t, 1, client.calls)

	fe, ok := failure.As(err)
	require.True(t, ok)
	assert.Equal(t, failure.CodeAIRateLimitExceeded, fe.Code)
	assert.Equal(t, ai.FlowRecommendMitigation, fe.Context["flow"])
	assert.Equal(t, "Data Operations", fe.Context["layer"])
	assert.Equal(t, []string{"AI_RATE_LIMIT_EXCEEDED"}, m.outcomes)
}

func TestServiceGivesUpAfterMaxAttempts(t *testing.T) {
	timeout := errors.New("request timed out")
	client := &scriptedClient{errs: []error{timeout, timeout, timeout, timeout}}
	svc := newTestService(client, nil)

	_, err := svc.ExecutiveSummary(context.Background(), ai.SummaryRequest{})
	require.Error(t, err)
	assert.Equal(t, 3, client.calls)
	assert.ErrorIs(t, err, timeout)
}

func TestServiceRetryConfig(t *testing.T) {
	timeout := errors.New("timeout")
	client := &scriptedClient{errs: []error{timeout, timeout}}
	svc := NewService(client,
		WithRetryConfig(retry.Config{MaxAttempts: 1}),
		WithRetryOptions(retry.WithSleep(instant)),
	)

	_, err := svc.ArchitectureDiagram(context.Background(), ai.DiagramRequest{})
	require.Error(t, err)
	assert.Equal(t, 1, client.calls)
}

func TestServiceContextCancelledDuringBackoff(t *testing.T) {
	client := &scriptedClient{errs: []error{errors.New("timeout")}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc := NewService(client)

	_, err := svc.SuggestThreats(ctx, ai.ThreatRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	_, ok := failure.As(err)
	assert.True(t, ok)
}
