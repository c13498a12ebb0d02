package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	domain "github.com/bryanwahyu/maestro-analyzer/internal/domain/analysis"
	"github.com/bryanwahyu/maestro-analyzer/internal/infra/db/record"
)

type RunRepository struct {
	db *sql.DB
}

func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

const runColumns = `id, tenant_id, status, architecture, layers_json, logs_json,
       summary, diagram_json, report_url, started_at, finished_at`

// Save insert/update Run record
func (r *RunRepository) Save(ctx context.Context, run *domain.Run) error {
	const q = `
INSERT INTO threat_runs
(id, tenant_id, status, architecture, layers_json, logs_json,
 summary, diagram_json, report_url, started_at, finished_at)
VALUES ($1,$2,$3,$4,$5,$6,
        $7,$8,$9,$10,$11)
ON CONFLICT (id) DO UPDATE SET
 status = EXCLUDED.status,
 layers_json = EXCLUDED.layers_json,
 logs_json = EXCLUDED.logs_json,
 summary = EXCLUDED.summary,
 diagram_json = EXCLUDED.diagram_json,
 report_url = EXCLUDED.report_url,
 finished_at = EXCLUDED.finished_at;
`
	row, err := record.FromRun(run)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, q,
		row.ID, row.TenantID, row.Status, row.Architecture, row.LayersJSON, row.LogsJSON,
		row.Summary, row.DiagramJSON, row.ReportURL, row.StartedAt, row.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("saving run %s: %w", row.ID, err)
	}
	return nil
}

// Get by ID + Tenant
func (r *RunRepository) Get(ctx context.Context, tenant string, id domain.RunID) (*domain.Run, error) {
	q := `SELECT ` + runColumns + `
FROM threat_runs
WHERE tenant_id=$1 AND id=$2 LIMIT 1;`
	run, err := scanRun(r.db.QueryRowContext(ctx, q, tenant, string(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrRunNotFound
	}
	return run, err
}

// Paginate with offset + limit, newest first
func (r *RunRepository) Paginate(ctx context.Context, tenant string, page, pageSize int) (domain.PaginatedResult, error) {
	page, pageSize, offset := record.Page(page, pageSize)

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM threat_runs WHERE tenant_id=$1`, tenant).Scan(&total); err != nil {
		return domain.PaginatedResult{}, fmt.Errorf("counting runs: %w", err)
	}

	q := `SELECT ` + runColumns + `
FROM threat_runs
WHERE tenant_id=$1
ORDER BY started_at DESC
LIMIT $2 OFFSET $3`
	rows, err := r.db.QueryContext(ctx, q, tenant, pageSize, offset)
	if err != nil {
		return domain.PaginatedResult{}, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []*domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return domain.PaginatedResult{}, fmt.Errorf("scanning row: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return domain.PaginatedResult{}, err
	}
	return domain.NewPaginatedResult(runs, page, pageSize, total), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*domain.Run, error) {
	var row record.Run
	if err := s.Scan(
		&row.ID, &row.TenantID, &row.Status, &row.Architecture, &row.LayersJSON, &row.LogsJSON,
		&row.Summary, &row.DiagramJSON, &row.ReportURL, &row.StartedAt, &row.FinishedAt,
	); err != nil {
		return nil, err
	}
	return row.ToRun()
}
