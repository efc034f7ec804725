package event

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cdcgov/data-exchange-upload/archive-server/internal/archive"
	"github.com/cdcgov/data-exchange-upload/archive-server/internal/models"
	"github.com/cdcgov/data-exchange-upload/archive-server/internal/routing"
	"github.com/cdcgov/data-exchange-upload/archive-server/internal/storelocal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubArchiver struct {
	mu      sync.Mutex
	outcome archive.Outcome
	names   []string
}

func (s *stubArchiver) Archive(_ context.Context, blobName string) archive.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.names = append(s.names, blobName)
	res := archive.Result{
		Outcome:     s.outcome,
		BlobName:    blobName,
		Destination: routing.Destination{Container: "sap-dsp", Subfolder: "audit-log"},
		ArchiveName: "audit-log/x_20240115-143022.csv",
	}
	switch s.outcome {
	case archive.OutcomeArchived:
		res.Status = archive.CopySuccess
	case archive.OutcomeCopyTimedOut:
		res.Status = archive.CopyPending
		res.Err = archive.ErrCopyTimeout
	default:
		res.Err = errors.New("boom")
	}
	return res
}

type recordingPublisher struct {
	mu      sync.Mutex
	reports []*ArchiveReport
}

func (p *recordingPublisher) Publish(_ context.Context, r *ArchiveReport) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reports = append(p.reports, r)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) Health(_ context.Context) models.ServiceHealthResp {
	return models.ServiceHealthResp{Status: models.STATUS_UP}
}

func TestHandleArchived(t *testing.T) {
	a := &stubArchiver{outcome: archive.OutcomeArchived}
	reports := &recordingPublisher{}
	h := &Handler{Archiver: a, IngestContainer: "production", Reports: reports}

	err := h.Handle(context.Background(), NewBlobCreated("https://acct.blob.core.windows.net/production/audit_log_x.csv"))
	require.NoError(t, err)
	assert.Equal(t, []string{"audit_log_x.csv"}, a.names)

	require.Len(t, reports.reports, 1)
	r := reports.reports[0]
	assert.Equal(t, "archived", r.Outcome)
	assert.Equal(t, "sap-dsp", r.Container)
	assert.Equal(t, "success", r.CopyStatus)
	assert.False(t, r.Retryable)
	assert.Empty(t, r.Error)
}

func TestHandleMissingURLIsRejected(t *testing.T) {
	a := &stubArchiver{outcome: archive.OutcomeArchived}
	reports := &recordingPublisher{}
	h := &Handler{Archiver: a, IngestContainer: "production", Reports: reports}

	err := h.Handle(context.Background(), NewBlobCreated(""))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingPayloadField)
	assert.Equal(t, DeadLetter, DispositionFor(err))
	assert.Empty(t, a.names, "archiver must not run without a blob name")

	require.Len(t, reports.reports, 1)
	assert.Equal(t, "rejected", reports.reports[0].Outcome)
}

func TestHandleRetryable(t *testing.T) {
	h := &Handler{Archiver: &stubArchiver{outcome: archive.OutcomeCopyTimedOut}, IngestContainer: "production"}

	err := h.Process(context.Background(), NewBlobCreated("https://acct.blob.core.windows.net/production/eventlog"))
	require.Error(t, err)
	assert.ErrorIs(t, err, archive.ErrCopyTimeout)
	assert.Equal(t, Redeliver, DispositionFor(err))

	var ae *ArchiveError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, archive.OutcomeCopyTimedOut, ae.Result.Outcome)
}

func TestHandleNotCleanedIsNotRetried(t *testing.T) {
	h := &Handler{Archiver: &stubArchiver{outcome: archive.OutcomeArchivedNotCleaned}, IngestContainer: "production"}

	err := h.Handle(context.Background(), NewBlobCreated("https://acct.blob.core.windows.net/production/eventlog"))
	assert.Equal(t, DeadLetter, DispositionFor(err))
}

func TestProcessIgnoresOtherEventTypes(t *testing.T) {
	a := &stubArchiver{outcome: archive.OutcomeArchived}
	h := &Handler{Archiver: a, IngestContainer: "production"}

	e := NewBlobCreated("https://acct.blob.core.windows.net/production/eventlog")
	e.EventType = "Microsoft.Storage.BlobDeleted"
	require.NoError(t, h.Process(context.Background(), e))
	assert.Empty(t, a.names)
}

func TestDispositionFor(t *testing.T) {
	assert.Equal(t, Complete, DispositionFor(nil))
	assert.Equal(t, DeadLetter, DispositionFor(errors.New("bad json")))
	assert.Equal(t, Redeliver, DispositionFor(&ArchiveError{Result: archive.Result{Outcome: archive.OutcomeBusy}}))
	assert.Equal(t, DeadLetter, DispositionFor(&ArchiveError{Result: archive.Result{Outcome: archive.OutcomeUnresolvable}}))
}

func TestDispositionForSourceMissing(t *testing.T) {
	err := &ArchiveError{Result: archive.Result{Outcome: archive.OutcomeSourceMissing, Err: archive.ErrSourceNotFound}}
	assert.False(t, err.Retryable())
	assert.Equal(t, Complete, DispositionFor(err))
}

func TestHandleDuplicateDeliveryIsNotRetried(t *testing.T) {
	dir := t.TempDir()
	backend := storelocal.NewBackend(filepath.Join(dir, "ingest"), filepath.Join(dir, "archive"))
	src := filepath.Join(dir, "ingest", "production", "event_log_kpmgukdsp.csv")
	require.NoError(t, os.MkdirAll(filepath.Dir(src), 0755))
	require.NoError(t, os.WriteFile(src, []byte("a,b\n"), 0644))

	a := archive.New("production", routing.NewResolver(routing.DefaultTable(), nil), backend, archive.NewPoller(5*time.Millisecond, 30))
	reports := &recordingPublisher{}
	h := &Handler{Archiver: a, IngestContainer: "production", Reports: reports}

	e := NewBlobCreated("https://acct.blob.core.windows.net/production/event_log_kpmgukdsp.csv")
	require.NoError(t, h.Process(context.Background(), e))

	// the same event delivered again finds no source
	err := h.Process(context.Background(), e)
	require.Error(t, err)
	assert.ErrorIs(t, err, archive.ErrSourceNotFound)
	assert.Equal(t, Complete, DispositionFor(err))

	require.Len(t, reports.reports, 2)
	assert.Equal(t, string(archive.OutcomeSourceMissing), reports.reports[1].Outcome)
	assert.False(t, reports.reports[1].Retryable)

	rr := serveWebhook(t, h, `[{"id":"again","eventType":"Microsoft.Storage.BlobCreated","data":{"url":"https://acct.blob.core.windows.net/production/event_log_kpmgukdsp.csv"}}]`)
	assert.Equal(t, http.StatusOK, rr.Code)
	var results []WebhookResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &results))
	require.Len(t, results, 1)
	assert.Equal(t, string(archive.OutcomeSourceMissing), results[0].Outcome)
	assert.Equal(t, "complete", results[0].Disposition)
}
