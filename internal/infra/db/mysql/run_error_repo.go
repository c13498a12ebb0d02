package mysql

import (
	"context"
	"database/sql"
	"strings"
	"time"

	domain "github.com/bryanwahyu/maestro-analyzer/internal/domain/runerrors"
	"github.com/bryanwahyu/maestro-analyzer/internal/infra/db/record"
)

type RunErrorRepository struct {
	db *sql.DB
}

func NewRunErrorRepository(db *sql.DB) *RunErrorRepository { return &RunErrorRepository{db: db} }

func (r *RunErrorRepository) Save(ctx context.Context, e *domain.RunError) error {
	const q = `
INSERT INTO threat_run_errors
  (tenant_id, run_id, layer, phase, code, severity, message, details_json, created_at)
VALUES (?,?,?,?,?,?,?,?,?)
`
	msg := e.Message
	if strings.TrimSpace(msg) == "" {
		msg = "-"
	}
	created := e.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx, q,
		record.DashIfEmpty(e.TenantID), record.DashIfEmpty(e.RunID), record.DashIfEmpty(e.Layer),
		record.DashIfEmpty(string(e.Phase)), record.DashIfEmpty(e.Code), record.DashIfEmpty(e.Severity),
		msg, record.DetailsJSON(e.DetailsJSON), created,
	)
	if err != nil {
		return err
	}
	if id, err := res.LastInsertId(); err == nil {
		e.ID = id
	}
	return nil
}

func (r *RunErrorRepository) ListByRun(ctx context.Context, tenant string, runID string, limit int) ([]*domain.RunError, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
SELECT id, tenant_id, run_id, layer, phase, code, severity, message, details_json, created_at
FROM threat_run_errors
WHERE tenant_id = ? AND run_id = ?
ORDER BY created_at DESC, id DESC
LIMIT ?;`
	rows, err := r.db.QueryContext(ctx, q, tenant, runID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.RunError
	for rows.Next() {
		var e domain.RunError
		if err := rows.Scan(&e.ID, &e.TenantID, &e.RunID, &e.Layer, &e.Phase, &e.Code,
			&e.Severity, &e.Message, &e.DetailsJSON, &e.CreatedAt); err != nil {
			return nil, err
		}
		if e.Layer == "-" {
			e.Layer = ""
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
