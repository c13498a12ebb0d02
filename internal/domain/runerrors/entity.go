package runerrors

import "time"

// Phase enum
type Phase string

const (
	PhaseThreat     Phase = "threat"
	PhaseMitigation Phase = "mitigation"
	PhaseSummary    Phase = "summary"
	PhaseDiagram    Phase = "diagram"
	PhaseReport     Phase = "report"
)

// RunError represents a persisted classified failure of one run step
type RunError struct {
	ID          int64     `json:"id"`
	TenantID    string    `json:"tenant_id"`
	RunID       string    `json:"run_id"`
	Layer       string    `json:"layer,omitempty"`
	Phase       Phase     `json:"phase"`
	Code        string    `json:"code"`
	Severity    string    `json:"severity"`
	Message     string    `json:"message"`
	DetailsJSON string    `json:"details_json,omitempty"` // raw JSON string
	CreatedAt   time.Time `json:"created_at"`
}
