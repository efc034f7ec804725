package cli

import (
	"context"

	"github.com/cdcgov/data-exchange-upload/archive-server/internal/appconfig"
	"github.com/cdcgov/data-exchange-upload/archive-server/internal/event"
	"github.com/cdcgov/data-exchange-upload/archive-server/internal/health"
	"github.com/cdcgov/data-exchange-upload/archive-server/internal/metrics"
)

// NewReportPublisher fans archive reports out to every configured broker,
// falling back to the local events folder.
func NewReportPublisher(ctx context.Context, appConfig appconfig.AppConfig) (event.Publishers[*event.ArchiveReport], error) {
	p := event.Publishers[*event.ArchiveReport]{}

	if appConfig.SNSPublisherConnection != nil {
		snsPub, err := event.NewSNSPublisher[*event.ArchiveReport](ctx, appConfig.SNSPublisherConnection.EventArn)
		if err != nil {
			return p, err
		}
		health.Register(snsPub)
		p = append(p, snsPub)
	}

	if appConfig.PublisherConnection != nil {
		ap, err := event.NewAzurePublisher[*event.ArchiveReport](ctx, *appConfig.PublisherConnection)
		if err != nil {
			return p, err
		}
		health.Register(ap)
		p = append(p, ap)
	}

	if len(p) < 1 {
		p = append(p, &event.FilePublisher[*event.ArchiveReport]{
			Dir: appConfig.LocalEventsFolder,
		})
	}

	return p, nil
}

// NewEventSubscribers returns the configured broker subscribers. The memory
// bus is always included so events can be queued in process.
func NewEventSubscribers(ctx context.Context, appConfig appconfig.AppConfig, bus *event.MemoryBus[*event.BlobCreated]) ([]event.Subscribable[*event.BlobCreated], error) {
	subs := []event.Subscribable[*event.BlobCreated]{bus}
	metrics.RegisterQueue("memory", bus)

	if appConfig.SQSSubscriberConnection != nil {
		s, err := event.NewSQSSubscriber(ctx, *appConfig.SQSSubscriberConnection)
		if err != nil {
			return nil, err
		}
		health.Register(s)
		metrics.RegisterQueue(s.QueueURL, s)
		subs = append(subs, s)
	}

	if appConfig.SubscriberConnection != nil {
		s, err := event.NewAzureSubscriber[*event.BlobCreated](ctx, *appConfig.SubscriberConnection)
		if err != nil {
			return nil, err
		}
		health.Register(s)
		metrics.RegisterQueue(appConfig.SubscriberConnection.Topic+appConfig.SubscriberConnection.Queue, s)
		subs = append(subs, s)
	}

	return subs, nil
}
