package ai

import (
	"context"
	"log/slog"
	"time"

	"github.com/bryanwahyu/maestro-analyzer/internal/application/retry"
	"github.com/bryanwahyu/maestro-analyzer/internal/domain/ai"
	"github.com/bryanwahyu/maestro-analyzer/internal/domain/analysis"
	"github.com/bryanwahyu/maestro-analyzer/internal/domain/failure"
)

// Metrics receives AI call observations.
type Metrics interface {
	ObserveAICall(flow, outcome string, d time.Duration)
	IncAIRetry(code string)
}

type noopMetrics struct{}

func (noopMetrics) ObserveAICall(string, string, time.Duration) {}
func (noopMetrics) IncAIRetry(string)                           {}

// Service wraps an ai.Client with classification and bounded retries.
// Every error it returns is a *failure.Error.
type Service struct {
	client    ai.Client
	cfg       retry.Config
	retryOpts []retry.Option
	metrics   Metrics
	logger    *slog.Logger
}

type Option func(*Service)

func WithRetryConfig(c retry.Config) Option {
	return func(s *Service) { s.cfg = c.Merge(retry.DefaultConfig()) }
}

// WithRetryOptions appends raw retry options (sleep or jitter overrides).
func WithRetryOptions(opts ...retry.Option) Option {
	return func(s *Service) { s.retryOpts = append(s.retryOpts, opts...) }
}

func WithMetrics(m Metrics) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewService(client ai.Client, opts ...Option) *Service {
	s := &Service{
		client:  client,
		cfg:     retry.DefaultConfig(),
		metrics: noopMetrics{},
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) SuggestThreats(ctx context.Context, req ai.ThreatRequest) (ai.ThreatResponse, error) {
	return call(ctx, s, ai.FlowSuggestThreats, map[string]any{"layer": req.LayerName},
		func(ctx context.Context) (ai.ThreatResponse, error) {
			return s.client.SuggestThreats(ctx, req)
		})
}

func (s *Service) RecommendMitigation(ctx context.Context, req ai.MitigationRequest) (analysis.Mitigation, error) {
	return call(ctx, s, ai.FlowRecommendMitigation, map[string]any{"layer": req.Layer},
		func(ctx context.Context) (analysis.Mitigation, error) {
			return s.client.RecommendMitigation(ctx, req)
		})
}

func (s *Service) ExecutiveSummary(ctx context.Context, req ai.SummaryRequest) (ai.SummaryResponse, error) {
	return call(ctx, s, ai.FlowExecutiveSummary, map[string]any{"layers": len(req.AnalysisResults)},
		func(ctx context.Context) (ai.SummaryResponse, error) {
			return s.client.ExecutiveSummary(ctx, req)
		})
}

func (s *Service) ArchitectureDiagram(ctx context.Context, req ai.DiagramRequest) (ai.DiagramResponse, error) {
	return call(ctx, s, ai.FlowArchitectureDiagram, nil,
		func(ctx context.Context) (ai.DiagramResponse, error) {
			return s.client.ArchitectureDiagram(ctx, req)
		})
}

func call[T any](ctx context.Context, s *Service, flow string, fields map[string]any, op func(context.Context) (T, error)) (T, error) {
	start := time.Now()

	opts := []retry.Option{
		retry.WithConfig(s.cfg),
		retry.WithPredicate(ai.ShouldRetry),
		retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
			code := string(failure.CodeUnknownError)
			if fe, ok := failure.As(err); ok {
				code = string(fe.Code)
			}
			s.metrics.IncAIRetry(code)
			s.logger.Warn("ai call failed, retrying",
				"flow", flow, "attempt", attempt, "code", code, "delay", delay, "err", err)
		}),
	}
	opts = append(opts, s.retryOpts...)

	res, err := retry.Do(ctx, func(ctx context.Context) (T, error) {
		v, err := op(ctx)
		if err != nil {
			return v, ai.Classify(err, flow, fields)
		}
		return v, nil
	}, opts...)

	if err != nil {
		fe := ai.Classify(err, flow, fields)
		s.metrics.ObserveAICall(flow, string(fe.Code), time.Since(start))
		if fe.ShouldLog {
			s.logger.Error("ai call failed", "flow", flow, "code", fe.Code, "severity", fe.Severity, "err", fe.Message)
		}
		var zero T
		return zero, fe
	}
	s.metrics.ObserveAICall(flow, "success", time.Since(start))
	return res, nil
}
