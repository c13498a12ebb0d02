package analysis

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/bryanwahyu/maestro-analyzer/internal/domain/analysis"
	"github.com/bryanwahyu/maestro-analyzer/internal/domain/failure"
)

func waitDone(t *testing.T, sess *Session) {
	t.Helper()
	select {
	case <-sess.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("run did not finish")
	}
}

func TestStartRejectsSecondActiveRun(t *testing.T) {
	gate := make(chan struct{})
	client := &fakeClient{gate: gate}
	svc, repo, _ := newTestService(client)

	first, err := svc.Start(cmd())
	require.NoError(t, err)
	assert.Equal(t, domain.RunRunning, first.Status)

	_, err = svc.Start(cmd())
	assert.ErrorIs(t, err, domain.ErrRunActive)

	// other tenants are independent
	other := cmd()
	other.TenantID = "globex"
	_, err = svc.Start(other)
	require.NoError(t, err)

	close(gate)
	sess, ok := svc.Session("acme", first.ID)
	require.True(t, ok)
	waitDone(t, sess)

	second, err := svc.Start(cmd())
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	require.NoError(t, svc.Close(context.Background()))

	// the replaced run is still readable from storage
	got, err := svc.Get(context.Background(), "acme", first.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunCompleted, got.Status)
	_, err = repo.Get(context.Background(), "acme", first.ID)
	require.NoError(t, err)
}

func TestNewRunStartsFresh(t *testing.T) {
	client := &fakeClient{}
	svc, _, _ := newTestService(client)

	first := runSync(t, svc, cmd())
	require.NotEmpty(t, first.Logs)

	sess, err := svc.Begin(cmd())
	require.NoError(t, err)
	snap := sess.Snapshot()
	assert.Empty(t, snap.Logs)
	assert.Empty(t, snap.Summary)
	for _, l := range snap.Layers {
		assert.Equal(t, domain.StatusPending, l.Status())
	}
}

func TestStopRunningRun(t *testing.T) {
	gate := make(chan struct{})
	client := &fakeClient{gate: gate, entered: make(chan struct{}, 1)}
	svc, _, _ := newTestService(client)

	run, err := svc.Start(cmd())
	require.NoError(t, err)
	<-client.entered

	snap, err := svc.Stop("acme", run.ID)
	require.NoError(t, err)
	assert.Equal(t, "Analysis stop requested. Finishing current step...", snap.Logs[len(snap.Logs)-1].Message)

	close(gate)
	sess, _ := svc.Session("acme", run.ID)
	waitDone(t, sess)

	final := sess.Snapshot()
	assert.Equal(t, domain.RunStopped, final.Status)
	assert.Equal(t, domain.StatusError, final.Layers[0].Status())
	assert.Equal(t, domain.StatusPending, final.Layers[1].Status())

	_, err = svc.Stop("acme", "nope")
	assert.ErrorIs(t, err, domain.ErrRunNotFound)
}

func TestSubscribeReceivesEvents(t *testing.T) {
	client := &fakeClient{}
	svc, _, _ := newTestService(client)

	sess, err := svc.Begin(cmd())
	require.NoError(t, err)
	events, cancel := sess.Subscribe()
	defer cancel()

	go svc.Execute(context.Background(), sess, false)

	var types []domain.EventType
	for ev := range events {
		assert.Equal(t, sess.ID(), ev.RunID)
		types = append(types, ev.Type)
	}
	require.NotEmpty(t, types)
	assert.Equal(t, domain.EventLog, types[0])
	assert.Equal(t, domain.EventStatus, types[len(types)-1])
	assert.Contains(t, types, domain.EventLayer)
	assert.Contains(t, types, domain.EventSummary)

	// subscribing to a finished session yields a closed channel
	late, _ := sess.Subscribe()
	_, open := <-late
	assert.False(t, open)
}

func TestBeginValidation(t *testing.T) {
	svc, _, _ := newTestService(&fakeClient{})

	tests := []struct {
		name string
		cmd  StartRunCommand
		code failure.Code
		msg  string
	}{
		{"too short", StartRunCommand{TenantID: "acme", Architecture: "tiny"}, failure.CodeAnalysisInvalidInput, "at least 50"},
		{"empty", StartRunCommand{TenantID: "acme"}, failure.CodeAnalysisInvalidInput, "at least 50"},
		{"too long", StartRunCommand{TenantID: "acme", Architecture: strings.Repeat("a", 5001)}, failure.CodeAnalysisInvalidInput, "5000"},
		{"unknown preset", StartRunCommand{TenantID: "acme", Preset: "nope"}, failure.CodeValidationError, "unknown preset"},
		{"no tenant", StartRunCommand{Architecture: testArchitecture}, failure.CodeValidationError, "tenant"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Begin(tt.cmd)
			fe, ok := failure.As(err)
			require.True(t, ok, "got %v", err)
			assert.Equal(t, tt.code, fe.Code)
			assert.Contains(t, fe.Message+fe.TechnicalDetails, tt.msg)
		})
	}
}

func TestBeginWithPreset(t *testing.T) {
	svc, _, _ := newTestService(&fakeClient{})

	sess, err := svc.Begin(StartRunCommand{TenantID: "acme", Preset: "smart-home"})
	require.NoError(t, err)
	assert.Contains(t, sess.Architecture(), "HomeOrchestrator")
}

func TestRunesCountedNotBytes(t *testing.T) {
	svc, _, _ := newTestService(&fakeClient{})
	// 50 runes, 100 bytes
	_, err := svc.Begin(StartRunCommand{TenantID: "acme", Architecture: strings.Repeat("é", 50)})
	assert.NoError(t, err)
}

func TestListAndErrorsNeedStorage(t *testing.T) {
	svc := &Service{AI: &fakeClient{}, Assembler: textAssembler{}}
	_, err := svc.List(context.Background(), "acme", 1, 20)
	assert.ErrorIs(t, err, domain.ErrNoRepository)
	_, err = svc.RunErrors(context.Background(), "acme", "x", 20)
	assert.ErrorIs(t, err, domain.ErrNoRepository)
	_, err = svc.Get(context.Background(), "acme", "x")
	assert.ErrorIs(t, err, domain.ErrRunNotFound)
	_, err = svc.PublishReport(context.Background(), "acme", "x")
	assert.ErrorIs(t, err, domain.ErrNoReportStore)
}

func TestRunErrorsForRun(t *testing.T) {
	client := &fakeClient{threatErr: map[string]error{"Foundation Models": errBoom}}
	svc, _, _ := newTestService(client)
	run := runSync(t, svc, cmd())

	list, err := svc.RunErrors(context.Background(), "acme", run.ID, 20)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "foundation-models", list[0].Layer)

	_, err = svc.RunErrors(context.Background(), "acme", "missing", 20)
	assert.ErrorIs(t, err, domain.ErrRunNotFound)
}

func TestReportAndPublish(t *testing.T) {
	svc, repo, _ := newTestService(&fakeClient{})
	reports := &memReports{}
	svc.Reports = reports
	run := runSync(t, svc, cmd())

	var buf bytes.Buffer
	require.NoError(t, svc.Report(context.Background(), "acme", run.ID, &buf))
	assert.Equal(t, "%PDF-fake "+string(run.ID), buf.String())

	url, err := svc.PublishReport(context.Background(), "acme", run.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"acme/" + string(run.ID) + "/MAESTRO_Threat_Analysis.pdf"}, reports.keys)
	assert.Contains(t, url, "MAESTRO_Threat_Analysis.pdf")

	stored, err := repo.Get(context.Background(), "acme", run.ID)
	require.NoError(t, err)
	assert.Equal(t, url, stored.ReportURL)
}

func TestReportFailureIsClassified(t *testing.T) {
	svc, _, errs := newTestService(&fakeClient{})
	svc.Assembler = textAssembler{err: errors.New("font missing")}
	run := runSync(t, svc, cmd())

	err := svc.Report(context.Background(), "acme", run.ID, &bytes.Buffer{})
	fe, ok := failure.As(err)
	require.True(t, ok)
	assert.Equal(t, failure.CodePDFGenerationFailed, fe.Code)
	require.NotEmpty(t, errs.rows)
	assert.Equal(t, "report", string(errs.rows[len(errs.rows)-1].Phase))
}

func TestDiagramOnStoredRun(t *testing.T) {
	client := &fakeClient{diagram: "graph TD;\n A --> B;"}
	svc, repo, _ := newTestService(client)
	first := runSync(t, svc, cmd())
	// replace the live session so the first run is only in storage
	runSync(t, svc, cmd())

	d, err := svc.GenerateDiagram(context.Background(), "acme", first.ID)
	require.NoError(t, err)
	assert.Equal(t, "graph TD;\n A --> B;", d.Markup)

	stored, err := repo.Get(context.Background(), "acme", first.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Diagram)
	assert.Equal(t, d.Markup, stored.Diagram.Markup)
}

func TestSetDiagramImage(t *testing.T) {
	client := &fakeClient{diagram: "graph TD;"}
	svc, _, _ := newTestService(client)
	c := cmd()
	c.WithDiagram = true
	run := runSync(t, svc, c)

	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	d, err := svc.SetDiagramImage(context.Background(), "acme", run.ID, png)
	require.NoError(t, err)
	assert.Equal(t, "PNG", d.ImageType)
	assert.Equal(t, "graph TD;", d.Markup)

	_, err = svc.SetDiagramImage(context.Background(), "acme", run.ID, []byte("not an image"))
	fe, ok := failure.As(err)
	require.True(t, ok)
	assert.Equal(t, failure.CodeValidationError, fe.Code)
}

func TestCloseStopsBackgroundRuns(t *testing.T) {
	gate := make(chan struct{})
	client := &fakeClient{gate: gate, entered: make(chan struct{}, 1)}
	svc, _, _ := newTestService(client)

	run, err := svc.Start(cmd())
	require.NoError(t, err)
	<-client.entered

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = svc.Close(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	got, err := svc.Get(context.Background(), "acme", run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStopped, got.Status)
}

func TestStartAfterCloseIsRefused(t *testing.T) {
	svc, _, _ := newTestService(&fakeClient{})

	require.NoError(t, svc.Close(context.Background()))

	_, err := svc.Start(cmd())
	assert.ErrorIs(t, err, ErrClosed)
	_, err = svc.Begin(cmd())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestStartRacingClose(t *testing.T) {
	svc, _, _ := newTestService(&fakeClient{})

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := cmd()
			c.TenantID = fmt.Sprintf("tenant-%d", i)
			if _, err := svc.Start(c); err != nil {
				assert.ErrorIs(t, err, ErrClosed)
			}
		}()
	}
	require.NoError(t, svc.Close(context.Background()))
	wg.Wait()

	_, err := svc.Start(cmd())
	assert.ErrorIs(t, err, ErrClosed)
}
