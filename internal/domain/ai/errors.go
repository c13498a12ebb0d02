package ai

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bryanwahyu/maestro-analyzer/internal/domain/failure"
)

// ErrQuotaExceeded indicates the AI provider returned a quota/limit error (HTTP 429 or similar).
var ErrQuotaExceeded = errors.New("ai quota exceeded")

// ErrEmptyResponse is returned when the provider answers with no usable content.
var ErrEmptyResponse = errors.New("ai response could not be parsed: empty content")

// ErrNoMermaid is returned when a diagram request yields no markup.
var ErrNoMermaid = errors.New("AI did not return any Mermaid code.")

// first match wins
var classifyRules = []struct {
	needles []string
	code    failure.Code
}{
	{[]string{"rate limit", "quota"}, failure.CodeAIRateLimitExceeded},
	{[]string{"unavailable", "503", "502"}, failure.CodeAIServiceUnavailable},
	{[]string{"timeout", "timed out"}, failure.CodeAITimeout},
	{[]string{"unauthorized", "401", "api key"}, failure.CodeAIServiceUnavailable},
	{[]string{"parse", "json", "format"}, failure.CodeAIInvalidResponse},
	{[]string{"network", "connection", "fetch"}, failure.CodeNetworkError},
}

// ClassifyMessage maps a raw provider failure message to an error code.
func ClassifyMessage(msg string) failure.Code {
	lower := strings.ToLower(msg)
	for _, rule := range classifyRules {
		for _, n := range rule.needles {
			if strings.Contains(lower, n) {
				return rule.code
			}
		}
	}
	return failure.CodeUnknownError
}

type codeInfo struct {
	severity    failure.Severity
	userMessage string
	actions     []failure.RecoveryAction
}

var codeTable = map[failure.Code]codeInfo{
	failure.CodeAIRateLimitExceeded: {
		severity:    failure.SeverityMedium,
		userMessage: "AI service is temporarily rate limited. Please wait a moment and try again.",
		actions:     []failure.RecoveryAction{{Type: failure.ActionRetry, Label: "Retry Analysis"}},
	},
	failure.CodeAIServiceUnavailable: {
		severity:    failure.SeverityHigh,
		userMessage: "AI analysis service is currently unavailable. Please try again in a few minutes.",
		actions: []failure.RecoveryAction{
			{Type: failure.ActionRetry, Label: "Try Again"},
			{Type: failure.ActionRefresh, Label: "Refresh Page"},
		},
	},
	failure.CodeAITimeout: {
		severity:    failure.SeverityMedium,
		userMessage: "AI analysis timed out. This may be due to a complex architecture description.",
		actions: []failure.RecoveryAction{
			{Type: failure.ActionRetry, Label: "Retry Analysis"},
			{Type: failure.ActionManual, Label: "Simplify Input"},
		},
	},
	failure.CodeAIInvalidResponse: {
		severity:    failure.SeverityMedium,
		userMessage: "AI service returned an invalid response. Please try again.",
		actions:     []failure.RecoveryAction{{Type: failure.ActionRetry, Label: "Retry Analysis"}},
	},
	failure.CodeNetworkError: {
		severity:    failure.SeverityMedium,
		userMessage: "Network connection issue detected. Please check your internet connection.",
		actions: []failure.RecoveryAction{
			{Type: failure.ActionRetry, Label: "Retry"},
			{Type: failure.ActionRefresh, Label: "Refresh Page"},
		},
	},
}

var defaultInfo = codeInfo{
	severity:    failure.SeverityMedium,
	userMessage: "An unexpected error occurred during AI analysis. Please try again.",
	actions:     []failure.RecoveryAction{{Type: failure.ActionRetry, Label: "Try Again"}},
}

// Classify turns any failure of an AI flow into a classified error.
// An error that is already classified keeps its code and gets ctx merged in.
func Classify(err error, flow string, ctx map[string]any) *failure.Error {
	merged := map[string]any{"flow": flow}
	for k, v := range ctx {
		merged[k] = v
	}

	if fe, ok := failure.As(err); ok {
		return fe.WithContext(merged)
	}

	if err == nil {
		return failure.New(failure.Spec{
			Code:            failure.CodeUnknownError,
			Severity:        defaultInfo.severity,
			Message:         "Unknown AI service error",
			UserMessage:     defaultInfo.userMessage,
			Context:         merged,
			RecoveryActions: defaultInfo.actions,
		})
	}

	msg := err.Error()
	code := ClassifyMessage(msg)
	info, ok := codeTable[code]
	if !ok {
		info = defaultInfo
	}
	return failure.New(failure.Spec{
		Code:             code,
		Severity:         info.severity,
		Message:          msg,
		UserMessage:      info.userMessage,
		TechnicalDetails: fmt.Sprintf("%s: %v", flow, err),
		Context:          merged,
		RecoveryActions:  info.actions,
		Cause:            err,
	})
}

// ShouldRetry reports whether a classified AI error is worth another attempt.
func ShouldRetry(err error) bool {
	fe, ok := failure.As(err)
	if !ok {
		return false
	}
	switch fe.Code {
	case failure.CodeAITimeout, failure.CodeNetworkError, failure.CodeAIServiceUnavailable:
		return true
	}
	return false
}
