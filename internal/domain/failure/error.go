package failure

import (
	"errors"
	"fmt"
	"maps"
	"time"
)

// Code enum
type Code string

const (
	CodeAIServiceUnavailable  Code = "AI_SERVICE_UNAVAILABLE"
	CodeAIRateLimitExceeded   Code = "AI_RATE_LIMIT_EXCEEDED"
	CodeAIInvalidResponse     Code = "AI_INVALID_RESPONSE"
	CodeAITimeout             Code = "AI_TIMEOUT"
	CodeAnalysisInvalidInput  Code = "ANALYSIS_INVALID_INPUT"
	CodeAnalysisInterrupted   Code = "ANALYSIS_INTERRUPTED"
	CodeLayerProcessingFailed Code = "LAYER_PROCESSING_FAILED"
	CodePDFGenerationFailed   Code = "PDF_GENERATION_FAILED"
	CodePDFMemoryExceeded     Code = "PDF_MEMORY_EXCEEDED"
	CodeNetworkError          Code = "NETWORK_ERROR"
	CodeTimeoutError          Code = "TIMEOUT_ERROR"
	CodeValidationError       Code = "VALIDATION_ERROR"
	CodeUnknownError          Code = "UNKNOWN_ERROR"
)

// Severity enum
type Severity string

const (
	SeverityLow      Severity = "low"      // user can continue, feature degraded
	SeverityMedium   Severity = "medium"   // feature unavailable, user can retry
	SeverityHigh     Severity = "high"     // major functionality broken
	SeverityCritical Severity = "critical" // application unusable
)

// ActionType enum
type ActionType string

const (
	ActionRetry    ActionType = "retry"
	ActionRefresh  ActionType = "refresh"
	ActionFallback ActionType = "fallback"
	ActionRedirect ActionType = "redirect"
	ActionManual   ActionType = "manual"
)

// RecoveryAction is a suggestion rendered next to an error message.
type RecoveryAction struct {
	Type  ActionType `json:"type"`
	Label string     `json:"label"`
}

// Error is a classified failure carrying everything a client needs to
// render it. Build one with New or one of the constructors below.
type Error struct {
	Code             Code             `json:"code"`
	Severity         Severity         `json:"severity"`
	Message          string           `json:"message"`
	UserMessage      string           `json:"user_message"`
	TechnicalDetails string           `json:"technical_details,omitempty"`
	Context          map[string]any   `json:"context,omitempty"`
	RecoveryActions  []RecoveryAction `json:"recovery_actions,omitempty"`
	Timestamp        time.Time        `json:"timestamp"`
	ShouldLog        bool             `json:"should_log"`
	ShouldReport     bool             `json:"should_report"`

	cause error
}

// Spec describes an Error before it is stamped by New.
type Spec struct {
	Code             Code
	Severity         Severity
	Message          string
	UserMessage      string
	TechnicalDetails string
	Context          map[string]any
	RecoveryActions  []RecoveryAction
	Cause            error

	// nil means default: log always, report HIGH and CRITICAL.
	ShouldLog    *bool
	ShouldReport *bool
}

// now is swapped in tests
var now = time.Now

// New builds an Error from s, applying the logging/reporting defaults.
func New(s Spec) *Error {
	e := &Error{
		Code:             s.Code,
		Severity:         s.Severity,
		Message:          s.Message,
		UserMessage:      s.UserMessage,
		TechnicalDetails: s.TechnicalDetails,
		Context:          maps.Clone(s.Context),
		RecoveryActions:  append([]RecoveryAction(nil), s.RecoveryActions...),
		Timestamp:        now().UTC(),
		ShouldLog:        true,
		ShouldReport:     s.Severity == SeverityHigh || s.Severity == SeverityCritical,
		cause:            s.Cause,
	}
	if s.ShouldLog != nil {
		e.ShouldLog = *s.ShouldLog
	}
	if s.ShouldReport != nil {
		e.ShouldReport = *s.ShouldReport
	}
	return e
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// WithContext returns a copy of e with extra context merged over the
// existing keys.
func (e *Error) WithContext(extra map[string]any) *Error {
	cp := *e
	cp.Context = maps.Clone(e.Context)
	if cp.Context == nil {
		cp.Context = make(map[string]any, len(extra))
	}
	maps.Copy(cp.Context, extra)
	cp.RecoveryActions = append([]RecoveryAction(nil), e.RecoveryActions...)
	return &cp
}

// As extracts a classified error from an error chain.
func As(err error) (*Error, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// FromUnknown wraps any error as UNKNOWN_ERROR, keeping an existing
// classified error untouched.
func FromUnknown(err error, ctx map[string]any) *Error {
	if fe, ok := As(err); ok {
		return fe
	}
	if err == nil {
		return New(Spec{
			Code:        CodeUnknownError,
			Severity:    SeverityMedium,
			Message:     "Unknown error occurred",
			UserMessage: "Something went wrong. Please try again.",
			Context:     ctx,
		})
	}
	return New(Spec{
		Code:             CodeUnknownError,
		Severity:         SeverityMedium,
		Message:          err.Error(),
		UserMessage:      "An unexpected error occurred. Please try again.",
		TechnicalDetails: fmt.Sprintf("%+v", err),
		Context:          ctx,
		Cause:            err,
	})
}

// ServiceUnavailable reports an AI provider outage.
func ServiceUnavailable(provider string) *Error {
	return New(Spec{
		Code:        CodeAIServiceUnavailable,
		Severity:    SeverityHigh,
		Message:     fmt.Sprintf("AI service %s is currently unavailable", provider),
		UserMessage: "AI analysis is temporarily unavailable. Please try again in a few minutes.",
		RecoveryActions: []RecoveryAction{
			{Type: ActionRetry, Label: "Try Again"},
			{Type: ActionRefresh, Label: "Refresh Page"},
		},
	})
}

// RateLimit reports a provider quota hit; retryAfter of zero means unknown.
func RateLimit(retryAfter time.Duration) *Error {
	wait, label := "a moment", "Retry Later"
	if secs := int(retryAfter.Seconds()); secs > 0 {
		wait = fmt.Sprintf("%d seconds", secs)
		label = fmt.Sprintf("Retry in %ds", secs)
	}
	return New(Spec{
		Code:            CodeAIRateLimitExceeded,
		Severity:        SeverityMedium,
		Message:         "AI service rate limit exceeded",
		UserMessage:     fmt.Sprintf("Too many requests. Please wait %s before trying again.", wait),
		RecoveryActions: []RecoveryAction{{Type: ActionRetry, Label: label}},
	})
}

// InvalidInput reports a rejected request field.
func InvalidInput(field string, cause error) *Error {
	s := Spec{
		Code:            CodeAnalysisInvalidInput,
		Severity:        SeverityLow,
		Message:         fmt.Sprintf("Invalid input for %s", field),
		UserMessage:     fmt.Sprintf("Please check your %s and try again.", field),
		RecoveryActions: []RecoveryAction{{Type: ActionManual, Label: "Review Input"}},
		Cause:           cause,
	}
	if cause != nil {
		s.TechnicalDetails = cause.Error()
	}
	return New(s)
}

// Validation reports a malformed request that never reached the analyzer.
func Validation(msg string) *Error {
	return New(Spec{
		Code:            CodeValidationError,
		Severity:        SeverityLow,
		Message:         msg,
		UserMessage:     msg,
		RecoveryActions: []RecoveryAction{{Type: ActionManual, Label: "Review Input"}},
	})
}

// PDFGenerationFailed reports a report assembly failure.
func PDFGenerationFailed(reason string) *Error {
	r := reason
	if r == "" {
		r = "unknown error"
	}
	return New(Spec{
		Code:             CodePDFGenerationFailed,
		Severity:         SeverityMedium,
		Message:          "PDF generation failed: " + r,
		UserMessage:      "Unable to generate PDF report. The analysis data is still available.",
		TechnicalDetails: reason,
		RecoveryActions: []RecoveryAction{
			{Type: ActionRetry, Label: "Try PDF Again"},
			{Type: ActionManual, Label: "Copy Results Manually"},
		},
	})
}

// Network reports a connectivity failure.
func Network() *Error {
	return New(Spec{
		Code:        CodeNetworkError,
		Severity:    SeverityMedium,
		Message:     "Network connection error",
		UserMessage: "Connection issue detected. Please check your internet connection.",
		RecoveryActions: []RecoveryAction{
			{Type: ActionRetry, Label: "Retry"},
			{Type: ActionRefresh, Label: "Refresh Page"},
		},
	})
}

// Interrupted reports a run stopped by the user.
func Interrupted(layer string) *Error {
	return New(Spec{
		Code:            CodeAnalysisInterrupted,
		Severity:        SeverityLow,
		Message:         fmt.Sprintf("analysis of %s stopped before mitigation step", layer),
		UserMessage:     "The analysis was stopped before this layer finished.",
		Context:         map[string]any{"layer": layer},
		RecoveryActions: []RecoveryAction{{Type: ActionRetry, Label: "Run Analysis Again"}},
	})
}

// Unhandled is what the recover boundary returns to clients.
func Unhandled(details string) *Error {
	return New(Spec{
		Code:             CodeUnknownError,
		Severity:         SeverityHigh,
		Message:          "unhandled server error",
		UserMessage:      "Something went wrong. You can try again or refresh.",
		TechnicalDetails: details,
		RecoveryActions: []RecoveryAction{
			{Type: ActionRetry, Label: "Try Again"},
			{Type: ActionRefresh, Label: "Refresh Page"},
		},
	})
}
