package event

import (
	"context"
	"errors"
	"io"

	"github.com/cdcgov/data-exchange-upload/archive-server/internal/health"
	"github.com/cdcgov/data-exchange-upload/archive-server/internal/models"
)

type Publisher[T Identifiable] interface {
	health.Checkable
	io.Closer
	Publish(ctx context.Context, event T) error
}

type Subscribable[T Identifiable] interface {
	health.Checkable
	io.Closer
	Listen(context.Context, func(context.Context, T) error) error
}

// Publishers sends every event to all of its members.
type Publishers[T Identifiable] []Publisher[T]

func (p Publishers[T]) Publish(ctx context.Context, event T) error {
	var errs []error
	for _, pub := range p {
		if err := pub.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p Publishers[T]) Close() error {
	var errs []error
	for _, pub := range p {
		if err := pub.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p Publishers[T]) Health(ctx context.Context) (rsp models.ServiceHealthResp) {
	rsp.Service = "Archive Report Publishers"
	rsp.Status = models.STATUS_UP
	rsp.HealthIssue = models.HEALTH_ISSUE_NONE
	for _, pub := range p {
		if sr := pub.Health(ctx); sr.Status == models.STATUS_DOWN {
			return sr
		}
	}
	return rsp
}
