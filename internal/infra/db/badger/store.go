// Package badger is the embedded run store used when no SQL database is
// configured.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"

	domain "github.com/bryanwahyu/maestro-analyzer/internal/domain/analysis"
	"github.com/bryanwahyu/maestro-analyzer/internal/domain/runerrors"
	"github.com/bryanwahyu/maestro-analyzer/internal/infra/db/record"
)

type Config struct {
	Path       string
	InMemory   bool
	SyncWrites bool
	Logger     *slog.Logger
	// GCInterval 0 disables value log GC.
	GCInterval     time.Duration
	GCDiscardRatio float64
}

type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Store implements the run and run error repositories on one badger DB.
type Store struct {
	db     *badger.DB
	seq    *badger.Sequence
	logger *slog.Logger
	stopGC chan struct{}
	gcDone chan struct{}
}

func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("badger path is required for persistent store")
	}
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create badger directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path).WithSyncWrites(cfg.SyncWrites)
	}
	logger := cfg.Logger
	if logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: logger})
	} else {
		logger = slog.Default()
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	seq, err := db.GetSequence([]byte("seq/run_errors"), 100)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("badger sequence: %w", err)
	}

	s := &Store{db: db, seq: seq, logger: logger}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		ratio := cfg.GCDiscardRatio
		if ratio <= 0 || ratio > 1 {
			ratio = 0.5
		}
		s.stopGC = make(chan struct{})
		s.gcDone = make(chan struct{})
		go s.runGC(cfg.GCInterval, ratio) // jalan di background
	}
	return s, nil
}

func (s *Store) runGC(interval time.Duration, ratio float64) {
	defer close(s.gcDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopGC:
			return
		case <-ticker.C:
			if err := s.db.RunValueLogGC(ratio); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				s.logger.Warn("badger value log GC error", "err", err)
			}
		}
	}
}

func (s *Store) Close() error {
	if s.stopGC != nil {
		close(s.stopGC)
		<-s.gcDone
	}
	if err := s.seq.Release(); err != nil {
		s.logger.Warn("release badger sequence", "err", err)
	}
	return s.db.Close()
}

func runKey(tenant string, id domain.RunID) []byte {
	return []byte("run/" + tenant + "/" + string(id))
}

func errorPrefix(tenant, runID string) []byte {
	return []byte("runerr/" + tenant + "/" + runID + "/")
}

//
// ==== RUNS ====
//

func (s *Store) Save(_ context.Context, run *domain.Run) error {
	b, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("encode run %s: %w", run.ID, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(runKey(run.TenantID, run.ID), b)
	})
}

func (s *Store) Get(_ context.Context, tenant string, id domain.RunID) (*domain.Run, error) {
	var run domain.Run
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(runKey(tenant, id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error { return json.Unmarshal(val, &run) })
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, domain.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	return &run, nil
}

// Paginate loads the tenant's runs and orders them newest first.
func (s *Store) Paginate(_ context.Context, tenant string, page, pageSize int) (domain.PaginatedResult, error) {
	page, pageSize, offset := record.Page(page, pageSize)

	var runs []*domain.Run
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte("run/" + tenant + "/")
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var run domain.Run
			if err := it.Item().Value(func(val []byte) error { return json.Unmarshal(val, &run) }); err != nil {
				return err
			}
			runs = append(runs, &run)
		}
		return nil
	})
	if err != nil {
		return domain.PaginatedResult{}, fmt.Errorf("list runs: %w", err)
	}

	sort.SliceStable(runs, func(i, j int) bool { return runs[i].StartedAt.After(runs[j].StartedAt) })
	total := int64(len(runs))
	if offset >= len(runs) {
		return domain.NewPaginatedResult(nil, page, pageSize, total), nil
	}
	end := min(offset+pageSize, len(runs))
	return domain.NewPaginatedResult(runs[offset:end], page, pageSize, total), nil
}

//
// ==== RUN ERRORS ====
//

// Errors exposes the run error repository of the store.
func (s *Store) Errors() runerrors.Repository { return errorRepo{s} }

type errorRepo struct{ s *Store }

func (r errorRepo) Save(_ context.Context, e *runerrors.RunError) error {
	id, err := r.s.seq.Next()
	if err != nil {
		return fmt.Errorf("next run error id: %w", err)
	}
	e.ID = int64(id) + 1
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	e.DetailsJSON = record.DetailsJSON(e.DetailsJSON)
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	key := append(errorPrefix(e.TenantID, e.RunID), []byte(fmt.Sprintf("%020d", e.ID))...)
	return r.s.db.Update(func(txn *badger.Txn) error { return txn.Set(key, b) })
}

// ListByRun returns the newest errors first.
func (r errorRepo) ListByRun(_ context.Context, tenant string, runID string, limit int) ([]*runerrors.RunError, error) {
	if limit <= 0 {
		limit = 20
	}
	var out []*runerrors.RunError
	err := r.s.db.View(func(txn *badger.Txn) error {
		prefix := errorPrefix(tenant, runID)
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()
		// reverse iteration seeks from the end of the prefix range
		seek := append(append([]byte{}, prefix...), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(prefix) && len(out) < limit; it.Next() {
			var e runerrors.RunError
			if err := it.Item().Value(func(val []byte) error { return json.Unmarshal(val, &e) }); err != nil {
				return err
			}
			out = append(out, &e)
		}
		return nil
	})
	return out, err
}

// Ping reports whether the store is still open.
func (s *Store) Ping(context.Context) error {
	if s.db.IsClosed() {
		return errors.New("badger store is closed")
	}
	return nil
}
