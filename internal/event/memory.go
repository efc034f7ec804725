package event

import (
	"context"
	"errors"
	"sync"

	"github.com/cdcgov/data-exchange-upload/archive-server/internal/models"
	"github.com/cdcgov/data-exchange-upload/archive-server/pkg/sloger"
)

var ErrBusClosed = errors.New("memory bus is closed")

// MemoryBus is an in process queue, used when no external broker is configured.
// Events still queued at Close are dropped.
type MemoryBus[T Identifiable] struct {
	Chan chan T

	done chan struct{}
	once sync.Once
}

func NewMemoryBus[T Identifiable](size int) *MemoryBus[T] {
	return &MemoryBus[T]{
		Chan: make(chan T, size),
		done: make(chan struct{}),
	}
}

func (mb *MemoryBus[T]) Listen(ctx context.Context, process func(context.Context, T) error) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-mb.done:
			return nil
		case evt := <-mb.Chan:
			err := process(ctx, evt)
			switch DispositionFor(err) {
			case Complete:
			case Redeliver:
				if evt.RetryCount() < MaxRetries {
					evt.IncrementRetryCount()
					sloger.FromContext(ctx).Warn("redelivering event", "event", evt.Identifier(), "retry", evt.RetryCount(), "error", err.Error())
					// Retrying in a separate go routine so this doesn't block on channel write.
					go mb.Publish(ctx, evt)
					continue
				}
				logger.Error("dropping event after retries", "event", evt.Identifier(), "error", err.Error())
			default:
				logger.Error("dropping event", "event", evt.Identifier(), "error", err.Error())
			}
		}
	}
}

func (mb *MemoryBus[T]) Close() error {
	mb.once.Do(func() {
		close(mb.done)
	})
	return nil
}

func (mb *MemoryBus[T]) Health(_ context.Context) (rsp models.ServiceHealthResp) {
	rsp.Service = "Memory Bus"
	rsp.Status = models.STATUS_UP
	rsp.HealthIssue = models.HEALTH_ISSUE_NONE
	return rsp
}

// Publish waits for room on the bus until ctx is done or the bus is closed.
func (mb *MemoryBus[T]) Publish(ctx context.Context, event T) error {
	select {
	case <-mb.done:
		return ErrBusClosed
	default:
	}
	select {
	case mb.Chan <- event:
		return nil
	case <-mb.done:
		return ErrBusClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (mb *MemoryBus[T]) Length(_ context.Context) (float64, error) {
	return float64(len(mb.Chan)), nil
}
