package analysis

import (
	"slices"
	"time"
)

// RunID tipe untuk Run
type RunID string

// RunStatus enum
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunStopped   RunStatus = "stopped"
)

// LogEntry is one user-visible progress line.
type LogEntry struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

// Diagram holds generated Mermaid markup and, optionally, a rendered
// image uploaded by the caller.
type Diagram struct {
	Markup    string `json:"markup"`
	Image     []byte `json:"image,omitempty"`
	ImageType string `json:"image_type,omitempty"` // PNG | JPG
}

// Aggregate Root: Run
type Run struct {
	ID           RunID         `json:"id"`
	TenantID     string        `json:"tenant_id"`
	Architecture string        `json:"architecture_description"`
	Layers       []LayerResult `json:"layers"`
	Logs         []LogEntry    `json:"logs"`
	Summary      string        `json:"summary,omitempty"`
	Diagram      *Diagram      `json:"diagram,omitempty"`
	Status       RunStatus     `json:"status"`
	ReportURL    string        `json:"report_url,omitempty"`
	StartedAt    time.Time     `json:"started_at"`
	FinishedAt   *time.Time    `json:"finished_at,omitempty"`
}

// Clone returns a deep copy safe to hand to other goroutines.
func (r *Run) Clone() *Run {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Layers = slices.Clone(r.Layers)
	cp.Logs = slices.Clone(r.Logs)
	if r.Diagram != nil {
		d := *r.Diagram
		d.Image = slices.Clone(r.Diagram.Image)
		cp.Diagram = &d
	}
	if r.FinishedAt != nil {
		t := *r.FinishedAt
		cp.FinishedAt = &t
	}
	return &cp
}

// CompletedLayers counts layers that reached complete.
func (r *Run) CompletedLayers() int {
	n := 0
	for _, l := range r.Layers {
		if l.Status() == StatusComplete {
			n++
		}
	}
	return n
}

// PaginatedResult represents a paginated response with data and metadata
type PaginatedResult struct {
	Data       []*Run `json:"data"`
	Page       int    `json:"page"`
	PageSize   int    `json:"pageSize"`
	Total      int64  `json:"totalItems"`
	TotalPages int    `json:"totalPages"`
}

// NewPaginatedResult fills in the page count.
func NewPaginatedResult(data []*Run, page, pageSize int, total int64) PaginatedResult {
	pages := 0
	if pageSize > 0 {
		pages = int((total + int64(pageSize) - 1) / int64(pageSize))
	}
	if data == nil {
		data = []*Run{}
	}
	return PaginatedResult{Data: data, Page: page, PageSize: pageSize, Total: total, TotalPages: pages}
}
