package bootstrap

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/maestro-analyzer/internal/config"
	domain "github.com/bryanwahyu/maestro-analyzer/internal/domain/analysis"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func TestNewLoggerFormat(t *testing.T) {
	cfg := config.Default()
	var buf bytes.Buffer
	NewLogger(cfg, &buf).Info("hello", "k", 1)
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "hello", line["msg"])

	cfg.Log.Format = "text"
	cfg.Log.Level = "warn"
	buf.Reset()
	logger := NewLogger(cfg, &buf)
	logger.Info("hidden")
	logger.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "msg=shown")
}

func TestOpenStorageNone(t *testing.T) {
	cfg := config.Default()
	st, err := OpenStorage(context.Background(), cfg, discard())
	require.NoError(t, err)
	assert.Nil(t, st.Runs)
	assert.Nil(t, st.Reports)
	assert.Empty(t, st.Health)
	assert.NoError(t, st.Close())

	svc := NewAnalysis(nil, st, nil, nil, discard())
	_, err = svc.List(context.Background(), "acme", 1, 10)
	assert.ErrorIs(t, err, domain.ErrNoRepository)
}

func TestOpenStorageBadger(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Driver = "badger"
	cfg.Badger.InMemory = true
	cfg.Badger.GCInterval = 0

	st, err := OpenStorage(context.Background(), cfg, discard())
	require.NoError(t, err)
	require.NotNil(t, st.Runs)
	require.Contains(t, st.Health, "badger")
	assert.NoError(t, st.Health["badger"].Check(context.Background()))

	require.NoError(t, st.Runs.Save(context.Background(), &domain.Run{ID: "r1", TenantID: "acme"}))
	require.NoError(t, st.Close())
	assert.Error(t, st.Health["badger"].Check(context.Background()))
}

func TestOpenStorageUnknownDriver(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Driver = "sqlite"
	_, err := OpenStorage(context.Background(), cfg, discard())
	assert.ErrorContains(t, err, "unknown storage driver")
}

func TestNewAI(t *testing.T) {
	cfg := config.Default()
	cfg.LLM.Provider = "ollama"
	svc, err := NewAI(cfg, nil, discard())
	require.NoError(t, err)
	assert.NotNil(t, svc)

	cfg.LLM.Provider = "bogus"
	_, err = NewAI(cfg, nil, discard())
	assert.Error(t, err)
}

func TestNewAssemblerAuthor(t *testing.T) {
	cfg := config.Default()
	assert.Equal(t, "MAESTRO Threat Analyzer", NewAssembler(cfg, discard()).Author)
	cfg.Report.Author = "Acme Security"
	assert.Equal(t, "Acme Security", NewAssembler(cfg, discard()).Author)
}
