package analysis

// EventType enum
type EventType string

const (
	EventLog     EventType = "log"
	EventLayer   EventType = "layer"
	EventSummary EventType = "summary"
	EventDiagram EventType = "diagram"
	EventStatus  EventType = "status"
)

// Event is pushed to run subscribers as the run progresses.
type Event struct {
	Type    EventType    `json:"type"`
	RunID   RunID        `json:"run_id"`
	Log     *LogEntry    `json:"log,omitempty"`
	Layer   *LayerResult `json:"layer,omitempty"`
	Summary string       `json:"summary,omitempty"`
	Diagram *Diagram     `json:"diagram,omitempty"`
	Status  RunStatus    `json:"status,omitempty"`
}
