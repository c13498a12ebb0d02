// Package record maps runs and run errors to flat SQL rows shared by the
// mysql and postgres repositories.
package record

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bryanwahyu/maestro-analyzer/internal/domain/analysis"
)

// Run is one row of threat_runs.
type Run struct {
	ID           string
	TenantID     string
	Status       string
	Architecture string
	LayersJSON   string
	LogsJSON     string
	Summary      string
	DiagramJSON  sql.NullString
	ReportURL    string
	StartedAt    time.Time
	FinishedAt   sql.NullTime
}

// FromRun flattens r; the JSON columns always hold valid JSON.
func FromRun(r *analysis.Run) (Run, error) {
	layers, err := json.Marshal(r.Layers)
	if err != nil {
		return Run{}, fmt.Errorf("encode layers: %w", err)
	}
	logs := r.Logs
	if logs == nil {
		logs = []analysis.LogEntry{}
	}
	logsJSON, err := json.Marshal(logs)
	if err != nil {
		return Run{}, fmt.Errorf("encode logs: %w", err)
	}

	row := Run{
		ID:           string(r.ID),
		TenantID:     DashIfEmpty(r.TenantID),
		Status:       DashIfEmpty(string(r.Status)),
		Architecture: r.Architecture,
		LayersJSON:   string(layers),
		LogsJSON:     string(logsJSON),
		Summary:      r.Summary,
		ReportURL:    r.ReportURL,
		StartedAt:    r.StartedAt,
	}
	if row.StartedAt.IsZero() {
		row.StartedAt = time.Now().UTC()
	}
	if r.Diagram != nil {
		b, err := json.Marshal(r.Diagram)
		if err != nil {
			return Run{}, fmt.Errorf("encode diagram: %w", err)
		}
		row.DiagramJSON = sql.NullString{String: string(b), Valid: true}
	}
	if r.FinishedAt != nil {
		row.FinishedAt = sql.NullTime{Time: *r.FinishedAt, Valid: true}
	}
	return row, nil
}

// ToRun decodes the row back into a run.
func (row Run) ToRun() (*analysis.Run, error) {
	r := &analysis.Run{
		ID:           analysis.RunID(row.ID),
		TenantID:     row.TenantID,
		Status:       analysis.RunStatus(row.Status),
		Architecture: row.Architecture,
		Summary:      row.Summary,
		ReportURL:    row.ReportURL,
		StartedAt:    row.StartedAt,
	}
	if err := json.Unmarshal([]byte(row.LayersJSON), &r.Layers); err != nil {
		return nil, fmt.Errorf("decode layers of run %s: %w", row.ID, err)
	}
	if err := json.Unmarshal([]byte(row.LogsJSON), &r.Logs); err != nil {
		return nil, fmt.Errorf("decode logs of run %s: %w", row.ID, err)
	}
	if row.DiagramJSON.Valid && row.DiagramJSON.String != "" {
		var d analysis.Diagram
		if err := json.Unmarshal([]byte(row.DiagramJSON.String), &d); err != nil {
			return nil, fmt.Errorf("decode diagram of run %s: %w", row.ID, err)
		}
		r.Diagram = &d
	}
	if row.FinishedAt.Valid {
		t := row.FinishedAt.Time
		r.FinishedAt = &t
	}
	return r, nil
}

// DashIfEmpty returns "-" when the input is empty/whitespace
func DashIfEmpty(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

// DetailsJSON ensures valid json; if invalid, wrap as string field
func DetailsJSON(details string) string {
	if strings.TrimSpace(details) == "" {
		return "{}"
	}
	var js any
	if json.Unmarshal([]byte(details), &js) != nil {
		b, _ := json.Marshal(map[string]string{"raw": details})
		return string(b)
	}
	return details
}

// Page clamps pagination input and returns the row offset.
func Page(page, pageSize int) (int, int, int) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize, (page - 1) * pageSize
}
