package archive

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cdcgov/data-exchange-upload/archive-server/internal/metrics"
	"github.com/cdcgov/data-exchange-upload/archive-server/internal/routing"
	"github.com/cdcgov/data-exchange-upload/archive-server/pkg/sloger"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type Resolver interface {
	Resolve(blobName string) (routing.Destination, error)
}

// Locker guards a source blob against concurrent archives.
type Locker interface {
	TryLock(ctx context.Context, key string) (unlock func(), err error)
}

// Archiver moves one ingest blob at a time into the archive store.
type Archiver struct {
	IngestContainer string
	Resolver        Resolver
	Backend         Backend
	Poller          Poller
	Tier            Tier
	Clock           Clock
	// Locker is optional.
	Locker Locker
	// UniqueSuffix appends a short random id to every archive name.
	UniqueSuffix bool
}

func New(ingestContainer string, resolver Resolver, backend Backend, poller Poller) *Archiver {
	return &Archiver{
		IngestContainer: ingestContainer,
		Resolver:        resolver,
		Backend:         backend,
		Poller:          poller,
		Tier:            TierArchive,
		Clock:           poller.Clock,
	}
}

// Archive copies blobName into its archive destination, waits for the copy,
// moves it to the archive tier and deletes the source. The source is only
// deleted after a confirmed successful copy and a successful tier change.
func (a *Archiver) Archive(ctx context.Context, blobName string) (res Result) {
	ctx, span := otel.Tracer("archive").Start(ctx, "Archive")
	defer span.End()
	span.SetAttributes(attribute.String("blob.name", blobName))

	logger := sloger.FromContext(ctx)
	res = Result{BlobName: blobName, Status: CopyPending}

	metrics.ActiveArchives.Inc()
	defer func() {
		metrics.ActiveArchives.Dec()
		metrics.ArchiveTotals.WithLabelValues(res.Destination.Container, string(res.Outcome)).Inc()
		span.SetAttributes(attribute.String("archive.outcome", string(res.Outcome)))
		if res.Err != nil {
			span.SetStatus(codes.Error, res.Err.Error())
		}
	}()

	dest, err := a.Resolver.Resolve(blobName)
	if err != nil {
		res.Outcome = OutcomeUnresolvable
		res.Err = err
		return res
	}
	res.Destination = dest
	logger.Info("resolved archive destination", "container", dest.Container, "subfolder", dest.Subfolder)

	if a.Locker != nil {
		unlock, err := a.Locker.TryLock(ctx, a.IngestContainer+"/"+blobName)
		if err != nil {
			res.Outcome = OutcomeBusy
			res.Err = errors.Join(ErrBusy, err)
			return res
		}
		defer unlock()
	}

	res.ArchiveName = ObjectName(dest.Subfolder, blobName, a.now(), a.suffix())
	src := ObjectRef{Container: a.IngestContainer, Name: blobName}
	dst := ObjectRef{Container: dest.Container, Name: res.ArchiveName}

	logger.Info("starting copy", "src", src.String(), "dest", dst.String())
	h, err := a.Backend.StartCopy(ctx, src, dst)
	if errors.Is(err, ErrSourceNotFound) {
		res.Outcome = OutcomeSourceMissing
		res.Err = &StepError{Kind: ErrSourceNotFound, Step: "start copy", Status: res.Status, Err: err}
		return res
	}
	if err != nil {
		res.Outcome = OutcomeCopyInitiationFailed
		res.Err = &StepError{Kind: ErrCopyInitiation, Step: "start copy", Status: res.Status, Err: err}
		return res
	}

	pr, err := a.Poller.Wait(ctx, a.Backend, h)
	res.Polls = pr.Polls
	res.Status = pr.Status
	metrics.CopyPolls.Observe(float64(pr.Polls))
	if err != nil {
		if ctx.Err() != nil {
			res.Outcome = OutcomeCopyTimedOut
			res.Err = &StepError{Kind: ErrCopyTimeout, Step: "wait for copy", Status: pr.Status, Err: err}
		} else {
			res.Outcome = OutcomeCopyFailed
			res.Err = &StepError{Kind: ErrCopyFailed, Step: "read copy status", Status: pr.Status, Err: err}
		}
		return res
	}

	switch pr.State {
	case StateSucceeded:
	case StateTimedOut:
		res.Outcome = OutcomeCopyTimedOut
		res.Err = &StepError{Kind: ErrCopyTimeout, Step: "wait for copy", Status: pr.Status}
		return res
	default:
		res.Outcome = OutcomeCopyFailed
		res.Err = &StepError{Kind: ErrCopyFailed, Step: "wait for copy", Status: pr.Status}
		return res
	}

	if err := a.Backend.SetTier(ctx, dst, a.tier()); err != nil {
		res.Outcome = OutcomeArchivedNotCleaned
		res.Err = &StepError{Kind: ErrTierOrDelete, Step: "set tier", Status: pr.Status, Err: err}
		return res
	}
	if err := a.Backend.Delete(ctx, src); err != nil {
		res.Outcome = OutcomeArchivedNotCleaned
		res.Err = &StepError{Kind: ErrTierOrDelete, Step: "delete source", Status: pr.Status, Err: err}
		return res
	}

	res.Outcome = OutcomeArchived
	return res
}

func (a *Archiver) now() time.Time {
	if a.Clock == nil {
		return SystemClock.Now()
	}
	return a.Clock.Now()
}

func (a *Archiver) tier() Tier {
	if a.Tier == "" {
		return TierArchive
	}
	return a.Tier
}

func (a *Archiver) suffix() string {
	if !a.UniqueSuffix {
		return ""
	}
	return strings.SplitN(uuid.NewString(), "-", 2)[0]
}
