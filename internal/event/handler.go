package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/cdcgov/data-exchange-upload/archive-server/internal/archive"
	"github.com/cdcgov/data-exchange-upload/archive-server/internal/metrics"
	"github.com/cdcgov/data-exchange-upload/archive-server/pkg/sloger"
	"github.com/google/uuid"
)

var logger *slog.Logger

func init() {
	type Empty struct{}
	pkgParts := strings.Split(reflect.TypeOf(Empty{}).PkgPath(), "/")
	// add package name to app logger
	logger = sloger.With("pkg", pkgParts[len(pkgParts)-1])
}

type Archiver interface {
	Archive(ctx context.Context, blobName string) archive.Result
}

// ArchiveError carries the result of an invocation that did not archive cleanly.
type ArchiveError struct {
	Result archive.Result
}

func (e *ArchiveError) Error() string {
	return e.Result.String()
}

func (e *ArchiveError) Unwrap() error {
	return e.Result.Err
}

func (e *ArchiveError) Retryable() bool {
	return e.Result.Retryable()
}

type Disposition int

const (
	// Complete acknowledges the event.
	Complete Disposition = iota
	// Redeliver leaves the event for the trigger to deliver again.
	Redeliver
	// DeadLetter parks the event for manual reconciliation.
	DeadLetter
)

func (d Disposition) String() string {
	switch d {
	case Complete:
		return "complete"
	case Redeliver:
		return "redeliver"
	}
	return "dead_letter"
}

// DispositionFor maps a Handle error onto what a subscriber does with the event.
// A missing source is a duplicate delivery of an archived blob and completes.
func DispositionFor(err error) Disposition {
	if err == nil {
		return Complete
	}
	var ae *ArchiveError
	if errors.As(err, &ae) {
		switch {
		case ae.Retryable():
			return Redeliver
		case ae.Result.Outcome == archive.OutcomeSourceMissing:
			return Complete
		}
	}
	return DeadLetter
}

// Handler is the boundary between an event source and the archiver. Every
// failure is caught, logged and reported here.
type Handler struct {
	Archiver        Archiver
	IngestContainer string
	// Reports is optional.
	Reports Publisher[*ArchiveReport]
}

// Handle archives the blob named by e. It returns nil only for a clean
// archive; otherwise an *ArchiveError.
func (h *Handler) Handle(ctx context.Context, e *BlobCreated) error {
	start := time.Now().UTC()
	ctx = sloger.WithAttrs(ctx, "event_id", e.Identifier())

	var res archive.Result
	name, err := BlobNameFromURL(e.Data.Url, h.IngestContainer)
	if err != nil {
		res = archive.Result{Outcome: archive.OutcomeRejected, Err: err}
	} else {
		ctx = sloger.SetBlobName(ctx, name)
		res = h.Archiver.Archive(ctx, name)
	}

	h.log(ctx, res)
	h.report(ctx, e, res, start)

	if res.Archived() {
		return nil
	}
	return &ArchiveError{Result: res}
}

func (h *Handler) log(ctx context.Context, res archive.Result) {
	l := sloger.FromContext(ctx).With("outcome", string(res.Outcome), "status", string(res.Status), "polls", res.Polls)
	switch res.Outcome {
	case archive.OutcomeArchived:
		l.Info(res.String(), "container", res.Destination.Container, "archive_name", res.ArchiveName)
	case archive.OutcomeArchivedNotCleaned:
		l.Error("archive copy kept but source cleanup failed", "container", res.Destination.Container, "archive_name", res.ArchiveName, "error", res.Err)
	case archive.OutcomeRejected:
		l.Error("rejected event", "error", res.Err)
	case archive.OutcomeBusy, archive.OutcomeSourceMissing:
		l.Warn(res.String())
	default:
		l.Error(res.String(), "retryable", res.Retryable(), "error", res.Err)
	}
}

func (h *Handler) report(ctx context.Context, e *BlobCreated, res archive.Result, start time.Time) {
	if h.Reports == nil {
		return
	}
	r := &ArchiveReport{
		ID:          uuid.NewString(),
		EventType:   ArchiveReportEventType,
		EventID:     e.ID,
		SourceURL:   e.Data.Url,
		BlobName:    res.BlobName,
		Container:   res.Destination.Container,
		Subfolder:   res.Destination.Subfolder,
		ArchiveName: res.ArchiveName,
		Outcome:     string(res.Outcome),
		CopyStatus:  string(res.Status),
		Polls:       res.Polls,
		Retryable:   res.Retryable(),
		StartTime:   start.Format(time.RFC3339Nano),
		EndTime:     time.Now().UTC().Format(time.RFC3339Nano),
	}
	if res.Err != nil {
		r.Error = res.Err.Error()
	}
	if err := h.Reports.Publish(ctx, r); err != nil {
		sloger.FromContext(ctx).Error("failed to publish archive report", "error", err)
		return
	}
	metrics.EventsCounter.With(map[string]string{"queue": "reports", "op": "publish"}).Inc()
}

// Process adapts Handle for subscribers, which only need to know whether to
// retry.
func (h *Handler) Process(ctx context.Context, e *BlobCreated) error {
	metrics.EventsCounter.With(map[string]string{"queue": "blob-created", "op": "received"}).Inc()
	if e.Type() != "" && e.Type() != BlobCreatedEventType {
		logger.Info("ignoring event", "type", e.Type(), "id", e.Identifier())
		return nil
	}
	if err := h.Handle(ctx, e); err != nil {
		return fmt.Errorf("event %s: %w", e.Identifier(), err)
	}
	return nil
}
