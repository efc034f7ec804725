package archive

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cdcgov/data-exchange-upload/archive-server/internal/routing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

type fakeBackend struct {
	mu       sync.Mutex
	objects  map[ObjectRef]Tier
	statuses []CopyStatus
	polls    int
	calls    []string

	startErr  error
	statusErr error
	tierErr   error
	deleteErr error
}

func newFakeBackend(src ObjectRef, statuses ...CopyStatus) *fakeBackend {
	return &fakeBackend{
		objects:  map[ObjectRef]Tier{src: "Hot"},
		statuses: statuses,
	}
}

func (b *fakeBackend) StartCopy(_ context.Context, src, dst ObjectRef) (CopyHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, "copy "+src.String()+" "+dst.String())
	if b.startErr != nil {
		return CopyHandle{}, b.startErr
	}
	if _, ok := b.objects[src]; !ok {
		return CopyHandle{}, fmt.Errorf("source %s not found", src)
	}
	if _, ok := b.objects[dst]; ok {
		return CopyHandle{}, fmt.Errorf("destination %s already exists", dst)
	}
	b.objects[dst] = "Hot"
	b.polls = 0
	return CopyHandle{ID: dst.Name, Source: src, Dest: dst, Status: CopyPending}, nil
}

func (b *fakeBackend) CopyStatus(_ context.Context, h CopyHandle) (CopyStatus, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, "status")
	b.polls++
	if b.statusErr != nil {
		return "", b.statusErr
	}
	if len(b.statuses) == 0 {
		return CopySuccess, nil
	}
	i := b.polls - 1
	if i >= len(b.statuses) {
		i = len(b.statuses) - 1
	}
	return b.statuses[i], nil
}

func (b *fakeBackend) SetTier(_ context.Context, dst ObjectRef, tier Tier) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, "tier "+dst.String()+" "+string(tier))
	if b.tierErr != nil {
		return b.tierErr
	}
	b.objects[dst] = tier
	return nil
}

func (b *fakeBackend) Delete(_ context.Context, src ObjectRef) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, "delete "+src.String())
	if b.deleteErr != nil {
		return b.deleteErr
	}
	delete(b.objects, src)
	return nil
}

func (b *fakeBackend) count(prefix string) int {
	n := 0
	for _, c := range b.calls {
		if len(c) >= len(prefix) && c[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

var testTime = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

func newTestArchiver(b Backend, clock *fakeClock) *Archiver {
	poller := Poller{Interval: time.Second, MaxPolls: DefaultMaxPolls, Clock: clock}
	return New("production", routing.NewResolver(routing.DefaultTable(), nil), b, poller)
}

func TestObjectName(t *testing.T) {
	assert.Equal(t,
		"audit/audit_log_kpmgukdsp_20240101_20240601-100000.csv",
		ObjectName("audit", "audit_log_kpmgukdsp_20240101.csv", testTime, ""))
	assert.Equal(t, "misc/eventlog_20240601-100000", ObjectName("misc", "eventlog", testTime, ""))
	assert.Equal(t, "misc/a.b_20240601-100000.c", ObjectName("misc", "a.b.c", testTime, ""))
	assert.Equal(t, "misc/logs.v1/file_20240601-100000", ObjectName("misc", "logs.v1/file", testTime, ""))
	assert.Equal(t, "misc/x_20240601-100000_abc.csv", ObjectName("misc", "x.csv", testTime, "abc"))

	local := time.Date(2024, 6, 1, 12, 0, 0, 0, time.FixedZone("CEST", 2*60*60))
	assert.Equal(t, "misc/x_20240601-100000", ObjectName("misc", "x", local, ""))
}

func TestSplitExtIgnoresDirectoryDots(t *testing.T) {
	base, ext := SplitExt("logs.v1/file")
	assert.Equal(t, "logs.v1/file", base)
	assert.Empty(t, ext)

	base, ext = SplitExt("logs.v1/a.b.csv")
	assert.Equal(t, "logs.v1/a.b", base)
	assert.Equal(t, ".csv", ext)
}

func TestNext(t *testing.T) {
	assert.Equal(t, StateSucceeded, Next(StatePending, CopySuccess, 1, 30))
	assert.Equal(t, StatePending, Next(StatePending, CopyPending, 29, 30))
	assert.Equal(t, StateTimedOut, Next(StatePending, CopyPending, 30, 30))
	assert.Equal(t, StateFailed, Next(StatePending, CopyFailed, 3, 30))
	assert.Equal(t, StateFailed, Next(StatePending, CopyAborted, 3, 30))
	assert.Equal(t, StateFailed, Next(StatePending, CopyStatus("weird"), 3, 30))
	// terminal states stay put
	assert.Equal(t, StateSucceeded, Next(StateSucceeded, CopyFailed, 4, 30))
	assert.Equal(t, StateTimedOut, Next(StateTimedOut, CopySuccess, 31, 30))
}

func TestArchiveSuccess(t *testing.T) {
	src := ObjectRef{Container: "production", Name: "audit_log_kpmgukdsp_20240101.csv"}
	b := newFakeBackend(src, CopySuccess)
	clock := &fakeClock{now: testTime}
	a := newTestArchiver(b, clock)

	res := a.Archive(context.Background(), src.Name)

	require.NoError(t, res.Err)
	assert.Equal(t, OutcomeArchived, res.Outcome)
	assert.True(t, res.Archived())
	assert.False(t, res.Retryable())
	assert.Equal(t, routing.Destination{Container: "sap-dsp", Subfolder: "audit"}, res.Destination)
	assert.Equal(t, "audit/audit_log_kpmgukdsp_20240101_20240601-100000.csv", res.ArchiveName)
	assert.Equal(t, "Archived to sap-dsp/audit/audit_log_kpmgukdsp_20240101_20240601-100000.csv", res.String())
	assert.Equal(t, 1, res.Polls)
	assert.Empty(t, clock.sleeps)

	dst := "sap-dsp/audit/audit_log_kpmgukdsp_20240101_20240601-100000.csv"
	assert.Equal(t, []string{
		"copy production/audit_log_kpmgukdsp_20240101.csv " + dst,
		"status",
		"tier " + dst + " Archive",
		"delete production/audit_log_kpmgukdsp_20240101.csv",
	}, b.calls)
	assert.NotContains(t, b.objects, src)
}

func TestArchiveTimeout(t *testing.T) {
	src := ObjectRef{Container: "production", Name: "eventlog"}
	b := newFakeBackend(src, CopyPending)
	clock := &fakeClock{now: testTime}
	a := newTestArchiver(b, clock)

	res := a.Archive(context.Background(), src.Name)

	assert.Equal(t, OutcomeCopyTimedOut, res.Outcome)
	assert.ErrorIs(t, res.Err, ErrCopyTimeout)
	assert.True(t, res.Retryable())
	assert.Equal(t, CopyPending, res.Status)
	assert.Equal(t, 30, res.Polls)
	assert.Equal(t, 30, b.count("status"))
	assert.Len(t, clock.sleeps, 29)
	assert.Zero(t, b.count("tier"))
	assert.Zero(t, b.count("delete"))
	assert.Contains(t, b.objects, src)
	assert.Equal(t, "Copy failed for eventlog: pending", res.String())
	assert.Equal(t, "misc/eventlog_20240601-100000", res.ArchiveName)
}

func TestArchiveFailedStopsPolling(t *testing.T) {
	src := ObjectRef{Container: "production", Name: "event_log_kpmgukcis.json"}
	b := newFakeBackend(src, CopyPending, CopyPending, CopyFailed, CopySuccess)
	clock := &fakeClock{now: testTime}
	a := newTestArchiver(b, clock)

	res := a.Archive(context.Background(), src.Name)

	assert.Equal(t, OutcomeCopyFailed, res.Outcome)
	assert.ErrorIs(t, res.Err, ErrCopyFailed)
	assert.Equal(t, CopyFailed, res.Status)
	assert.Equal(t, 3, res.Polls)
	assert.Equal(t, 3, b.count("status"))
	assert.Zero(t, b.count("delete"))
	assert.Zero(t, b.count("tier"))
}

func TestArchiveInitiationError(t *testing.T) {
	src := ObjectRef{Container: "production", Name: "x.csv"}
	b := newFakeBackend(src)
	b.startErr = errors.New("AuthenticationFailed")
	a := newTestArchiver(b, &fakeClock{now: testTime})

	res := a.Archive(context.Background(), src.Name)

	assert.Equal(t, OutcomeCopyInitiationFailed, res.Outcome)
	assert.ErrorIs(t, res.Err, ErrCopyInitiation)
	assert.ErrorContains(t, res.Err, "AuthenticationFailed")
	assert.Zero(t, b.count("status"))
	assert.Zero(t, b.count("delete"))
}

func TestArchiveSourceMissing(t *testing.T) {
	src := ObjectRef{Container: "production", Name: "x.csv"}
	b := newFakeBackend(src)
	b.startErr = fmt.Errorf("%w: production/x.csv", ErrSourceNotFound)
	a := newTestArchiver(b, &fakeClock{now: testTime})

	res := a.Archive(context.Background(), src.Name)

	assert.Equal(t, OutcomeSourceMissing, res.Outcome)
	assert.ErrorIs(t, res.Err, ErrSourceNotFound)
	assert.False(t, res.Retryable())
	assert.Zero(t, b.count("status"))
	assert.Zero(t, b.count("tier"))
	assert.Zero(t, b.count("delete"))
}

func TestArchiveStatusError(t *testing.T) {
	src := ObjectRef{Container: "production", Name: "x.csv"}
	b := newFakeBackend(src)
	b.statusErr = errors.New("connection reset")
	a := newTestArchiver(b, &fakeClock{now: testTime})

	res := a.Archive(context.Background(), src.Name)

	assert.Equal(t, OutcomeCopyFailed, res.Outcome)
	assert.ErrorContains(t, res.Err, "connection reset")
	assert.Zero(t, b.count("delete"))
}

func TestArchiveTierErrorKeepsSource(t *testing.T) {
	src := ObjectRef{Container: "production", Name: "audit_log_kpmgukiag.txt"}
	b := newFakeBackend(src, CopySuccess)
	b.tierErr = errors.New("tier not supported")
	a := newTestArchiver(b, &fakeClock{now: testTime})

	res := a.Archive(context.Background(), src.Name)

	assert.Equal(t, OutcomeArchivedNotCleaned, res.Outcome)
	assert.ErrorIs(t, res.Err, ErrTierOrDelete)
	assert.False(t, res.Retryable())
	assert.Zero(t, b.count("delete"))
	assert.Contains(t, b.objects, src)
	assert.Contains(t, res.String(), "was not cleaned up")
}

func TestArchiveDeleteError(t *testing.T) {
	src := ObjectRef{Container: "production", Name: "audit_log_kpmgukiag.txt"}
	b := newFakeBackend(src, CopySuccess)
	b.deleteErr = errors.New("lease present")
	a := newTestArchiver(b, &fakeClock{now: testTime})

	res := a.Archive(context.Background(), src.Name)

	assert.Equal(t, OutcomeArchivedNotCleaned, res.Outcome)
	assert.ErrorIs(t, res.Err, ErrTierOrDelete)
	assert.Equal(t, 1, b.count("tier"))
	assert.Equal(t, 1, b.count("delete"))
}

func TestArchiveTwiceMakesDistinctObjects(t *testing.T) {
	src := ObjectRef{Container: "production", Name: "audit_log_kpmguks4.csv"}
	b := newFakeBackend(src, CopySuccess)
	clock := &fakeClock{now: testTime}
	a := newTestArchiver(b, clock)

	first := a.Archive(context.Background(), src.Name)
	require.Equal(t, OutcomeArchived, first.Outcome)

	// the source reappears, e.g. a re-upload or a crash before delete
	b.objects[src] = "Hot"
	clock.now = clock.now.Add(time.Second)

	second := a.Archive(context.Background(), src.Name)
	require.Equal(t, OutcomeArchived, second.Outcome)
	require.NoError(t, second.Err)

	assert.NotEqual(t, first.ArchiveName, second.ArchiveName)
	assert.Equal(t, TierArchive, b.objects[ObjectRef{Container: "sap-btp-abap", Name: first.ArchiveName}])
	assert.Equal(t, TierArchive, b.objects[ObjectRef{Container: "sap-btp-abap", Name: second.ArchiveName}])
	for _, c := range b.calls {
		if len(c) > 6 && c[:6] == "delete" {
			assert.Equal(t, "delete "+src.String(), c)
		}
	}
}

func TestArchiveSameSecondCollisionDoesNotDelete(t *testing.T) {
	src := ObjectRef{Container: "production", Name: "eventlog"}
	b := newFakeBackend(src, CopySuccess)
	clock := &fakeClock{now: testTime}
	a := newTestArchiver(b, clock)
	b.objects[ObjectRef{Container: "other", Name: "misc/eventlog_20240601-100000"}] = TierArchive

	res := a.Archive(context.Background(), src.Name)

	assert.Equal(t, OutcomeCopyInitiationFailed, res.Outcome)
	assert.Zero(t, b.count("delete"))

	a.UniqueSuffix = true
	res = a.Archive(context.Background(), src.Name)
	assert.Equal(t, OutcomeArchived, res.Outcome)
	assert.Regexp(t, `^misc/eventlog_20240601-100000_[0-9a-f]{8}$`, res.ArchiveName)
}

func TestArchiveContextCancelled(t *testing.T) {
	src := ObjectRef{Container: "production", Name: "eventlog"}
	b := newFakeBackend(src, CopyPending)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	a := newTestArchiver(b, &fakeClock{now: testTime})
	a.Poller.Clock = blockingClock{}

	res := a.Archive(ctx, src.Name)

	assert.Equal(t, OutcomeCopyTimedOut, res.Outcome)
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.Zero(t, b.count("delete"))
}

type blockingClock struct{}

func (blockingClock) Now() time.Time                       { return testTime }
func (blockingClock) After(time.Duration) <-chan time.Time { return make(chan time.Time) }

type unresolvable struct{}

func (unresolvable) Resolve(name string) (routing.Destination, error) {
	return routing.Destination{}, &routing.UnresolvableDestinationError{BlobName: name, ContainerKey: "SapDsp", Err: errors.New("missing")}
}

func TestArchiveUnresolvable(t *testing.T) {
	src := ObjectRef{Container: "production", Name: "audit_log_kpmgukdsp.csv"}
	b := newFakeBackend(src)
	a := newTestArchiver(b, &fakeClock{now: testTime})
	a.Resolver = unresolvable{}

	res := a.Archive(context.Background(), src.Name)

	assert.Equal(t, OutcomeUnresolvable, res.Outcome)
	var ude *routing.UnresolvableDestinationError
	assert.ErrorAs(t, res.Err, &ude)
	assert.Empty(t, b.calls)
}

type busyLocker struct{}

func (busyLocker) TryLock(context.Context, string) (func(), error) {
	return nil, errors.New("lock already taken")
}

func TestArchiveBusy(t *testing.T) {
	src := ObjectRef{Container: "production", Name: "eventlog"}
	b := newFakeBackend(src)
	a := newTestArchiver(b, &fakeClock{now: testTime})
	a.Locker = busyLocker{}

	res := a.Archive(context.Background(), src.Name)

	assert.Equal(t, OutcomeBusy, res.Outcome)
	assert.ErrorIs(t, res.Err, ErrBusy)
	assert.True(t, res.Retryable())
	assert.Empty(t, b.calls)
}
