package mysql

import (
	"context"
	"database/sql"
	"fmt"
)

var schema = []string{`
CREATE TABLE IF NOT EXISTS threat_runs (
  id            VARCHAR(36)  NOT NULL PRIMARY KEY,
  tenant_id     VARCHAR(64)  NOT NULL,
  status        VARCHAR(16)  NOT NULL,
  architecture  TEXT         NOT NULL,
  layers_json   JSON         NOT NULL,
  logs_json     JSON         NOT NULL,
  summary       MEDIUMTEXT   NOT NULL,
  diagram_json  LONGTEXT     NULL,
  report_url    VARCHAR(1024) NOT NULL DEFAULT '',
  started_at    DATETIME(6)  NOT NULL,
  finished_at   DATETIME(6)  NULL,
  KEY idx_threat_runs_tenant_started (tenant_id, started_at)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`, `
CREATE TABLE IF NOT EXISTS threat_run_errors (
  id            BIGINT       NOT NULL AUTO_INCREMENT PRIMARY KEY,
  tenant_id     VARCHAR(64)  NOT NULL,
  run_id        VARCHAR(36)  NOT NULL,
  layer         VARCHAR(64)  NOT NULL,
  phase         VARCHAR(16)  NOT NULL,
  code          VARCHAR(32)  NOT NULL,
  severity      VARCHAR(16)  NOT NULL,
  message       TEXT         NOT NULL,
  details_json  JSON         NOT NULL,
  created_at    DATETIME(6)  NOT NULL,
  KEY idx_threat_run_errors_run (tenant_id, run_id, created_at)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Migrate creates the tables when they do not exist yet.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("mysql migrate: %w", err)
		}
	}
	return nil
}
