package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

var schema = []string{`
CREATE TABLE IF NOT EXISTS threat_runs (
  id            VARCHAR(36)  PRIMARY KEY,
  tenant_id     VARCHAR(64)  NOT NULL,
  status        VARCHAR(16)  NOT NULL,
  architecture  TEXT         NOT NULL,
  layers_json   JSONB        NOT NULL,
  logs_json     JSONB        NOT NULL,
  summary       TEXT         NOT NULL DEFAULT '',
  diagram_json  TEXT         NULL,
  report_url    TEXT         NOT NULL DEFAULT '',
  started_at    TIMESTAMPTZ  NOT NULL,
  finished_at   TIMESTAMPTZ  NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_threat_runs_tenant_started ON threat_runs (tenant_id, started_at DESC)`, `
CREATE TABLE IF NOT EXISTS threat_run_errors (
  id            BIGSERIAL    PRIMARY KEY,
  tenant_id     VARCHAR(64)  NOT NULL,
  run_id        VARCHAR(36)  NOT NULL,
  layer         VARCHAR(64)  NOT NULL,
  phase         VARCHAR(16)  NOT NULL,
  code          VARCHAR(32)  NOT NULL,
  severity      VARCHAR(16)  NOT NULL,
  message       TEXT         NOT NULL,
  details_json  JSONB        NOT NULL,
  created_at    TIMESTAMPTZ  NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_threat_run_errors_run ON threat_run_errors (tenant_id, run_id, created_at DESC)`,
}

// Connect opens a lib/pq pool and pings it.
func Connect(ctx context.Context, dsn string, maxOpen int) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if maxOpen <= 0 {
		maxOpen = 25
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxOpen / 2)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx2, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx2); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Migrate creates the tables when they do not exist yet.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}
