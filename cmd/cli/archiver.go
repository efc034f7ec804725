package cli

import (
	"context"

	"github.com/cdcgov/data-exchange-upload/archive-server/internal/appconfig"
	"github.com/cdcgov/data-exchange-upload/archive-server/internal/archive"
	"github.com/cdcgov/data-exchange-upload/archive-server/internal/health"
	"github.com/cdcgov/data-exchange-upload/archive-server/internal/locker"
)

// CreateArchiver wires routing, storage and the optional same blob lock.
func CreateArchiver(ctx context.Context, runMode string, appConfig *appconfig.AppConfig) (*archive.Archiver, []health.Checkable, error) {
	resolver, destinations, err := CreateResolver(appConfig)
	if err != nil {
		return nil, nil, err
	}

	backend, checks, err := CreateBackend(ctx, runMode, *appConfig, destinations)
	if err != nil {
		return nil, nil, err
	}

	poller := archive.NewPoller(appConfig.Archive.PollInterval, appConfig.Archive.MaxPolls)
	a := archive.New(appConfig.IngestContainerName, resolver, backend, poller)
	a.Tier = archive.Tier(appConfig.Archive.Tier)
	a.UniqueSuffix = appConfig.Archive.NameUniqueSuffix

	if appConfig.RedisLockURI != "" {
		l, err := locker.NewFromURI(appConfig.RedisLockURI,
			locker.WithTTL(appConfig.RedisLockTTL),
			locker.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		a.Locker = l
		checks = append(checks, l)
	}

	logger.Info("archiver ready",
		"ingest_container", a.IngestContainer,
		"tier", string(a.Tier),
		"poll_interval", poller.Interval.String(),
		"max_polls", poller.MaxPolls,
		"locking", a.Locker != nil)
	return a, checks, nil
}
