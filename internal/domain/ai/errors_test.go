package ai

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bryanwahyu/maestro-analyzer/internal/domain/failure"
)

func TestClassifyMessage(t *testing.T) {
	tests := []struct {
		msg  string
		want failure.Code
	}{
		{"Rate limit exceeded", failure.CodeAIRateLimitExceeded},
		{"You exceeded your current QUOTA", failure.CodeAIRateLimitExceeded},
		{"service unavailable", failure.CodeAIServiceUnavailable},
		{"status 503", failure.CodeAIServiceUnavailable},
		{"502 bad gateway", failure.CodeAIServiceUnavailable},
		{"request timeout", failure.CodeAITimeout},
		{"the operation timed out", failure.CodeAITimeout},
		{"401 Unauthorized", failure.CodeAIServiceUnavailable},
		{"invalid API key provided", failure.CodeAIServiceUnavailable},
		{"failed to parse output", failure.CodeAIInvalidResponse},
		{"unexpected end of JSON input", failure.CodeAIInvalidResponse},
		{"bad format", failure.CodeAIInvalidResponse},
		{"network is down", failure.CodeNetworkError},
		{"connection reset by peer", failure.CodeNetworkError},
		{"fetch failed", failure.CodeNetworkError},
		{"something odd", failure.CodeUnknownError},
		{"", failure.CodeUnknownError},
		// earlier rules win
		{"quota check timed out", failure.CodeAIRateLimitExceeded},
		{"timeout while parsing json", failure.CodeAITimeout},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyMessage(tt.msg))
		})
	}
}

func TestClassify(t *testing.T) {
	t.Run("raw error", func(t *testing.T) {
		raw := errors.New("upstream timed out")
		e := Classify(raw, FlowSuggestThreats, map[string]any{"layer": "Foundation Models"})
		assert.Equal(t, failure.CodeAITimeout, e.Code)
		assert.Equal(t, failure.SeverityMedium, e.Severity)
		assert.Equal(t, "upstream timed out", e.Message)
		assert.Equal(t, "AI analysis timed out. This may be due to a complex architecture description.", e.UserMessage)
		assert.Equal(t, FlowSuggestThreats, e.Context["flow"])
		assert.Equal(t, "Foundation Models", e.Context["layer"])
		assert.Equal(t, []failure.RecoveryAction{
			{Type: failure.ActionRetry, Label: "Retry Analysis"},
			{Type: failure.ActionManual, Label: "Simplify Input"},
		}, e.RecoveryActions)
		assert.ErrorIs(t, e, raw)
	})

	t.Run("service unavailable is high", func(t *testing.T) {
		e := Classify(errors.New("503"), FlowRecommendMitigation, nil)
		assert.Equal(t, failure.SeverityHigh, e.Severity)
		assert.True(t, e.ShouldReport)
	})

	t.Run("unknown uses default entry", func(t *testing.T) {
		e := Classify(errors.New("weird"), FlowExecutiveSummary, nil)
		assert.Equal(t, failure.CodeUnknownError, e.Code)
		assert.Equal(t, "An unexpected error occurred during AI analysis. Please try again.", e.UserMessage)
		assert.Equal(t, "Try Again", e.RecoveryActions[0].Label)
	})

	t.Run("nil", func(t *testing.T) {
		e := Classify(nil, FlowSuggestThreats, nil)
		assert.Equal(t, failure.CodeUnknownError, e.Code)
		assert.Equal(t, "Unknown AI service error", e.Message)
	})

	t.Run("already classified keeps code", func(t *testing.T) {
		orig := failure.RateLimit(0).WithContext(map[string]any{"attempt": 1})
		wrapped := fmt.Errorf("outer: %w", orig)
		e := Classify(wrapped, FlowSuggestThreats, map[string]any{"layer": "Data Operations"})
		assert.Equal(t, failure.CodeAIRateLimitExceeded, e.Code)
		assert.Equal(t, 1, e.Context["attempt"])
		assert.Equal(t, "Data Operations", e.Context["layer"])
		assert.Equal(t, FlowSuggestThreats, e.Context["flow"])
	})

	t.Run("quota sentinel", func(t *testing.T) {
		e := Classify(fmt.Errorf("create completion: %w", ErrQuotaExceeded), FlowSuggestThreats, nil)
		assert.Equal(t, failure.CodeAIRateLimitExceeded, e.Code)
	})
}

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		msg  string
		want bool
	}{
		{"timed out", true},
		{"connection refused", true},
		{"503 service unavailable", true},
		{"rate limit", false},
		{"invalid json", false},
		{"mystery", false},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldRetry(Classify(errors.New(tt.msg), FlowSuggestThreats, nil)))
		})
	}
	assert.False(t, ShouldRetry(errors.New("timed out")), "unclassified errors are not retried")
}
