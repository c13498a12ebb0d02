package analysis

import (
	"context"
	"errors"
	"io"
)

var (
	ErrRunActive     = errors.New("an analysis is already running for this tenant")
	ErrRunNotFound   = errors.New("run not found")
	ErrNoRepository  = errors.New("run storage is not configured")
	ErrNoReportStore = errors.New("report storage is not configured")
)

// Repository port (interface untuk persistence)
type Repository interface {
	Save(ctx context.Context, r *Run) error
	Get(ctx context.Context, tenant string, id RunID) (*Run, error)
	Paginate(ctx context.Context, tenant string, page, pageSize int) (PaginatedResult, error)
}

// ReportStore keeps generated PDF reports.
type ReportStore interface {
	UploadReport(ctx context.Context, key string, body io.Reader, size int64) (string, error)
}
