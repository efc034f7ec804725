package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cdcgov/data-exchange-upload/archive-server/internal/appconfig"
	"github.com/cdcgov/data-exchange-upload/archive-server/internal/archive"
	"github.com/cdcgov/data-exchange-upload/archive-server/internal/health"
	"github.com/cdcgov/data-exchange-upload/archive-server/internal/models"
	"github.com/cdcgov/data-exchange-upload/archive-server/internal/routing"
	"github.com/cdcgov/data-exchange-upload/archive-server/internal/storeaz"
	"github.com/cdcgov/data-exchange-upload/archive-server/internal/storelocal"
	"github.com/cdcgov/data-exchange-upload/archive-server/internal/stores3"
)

// CreateBackend builds the storage backend for the run mode along with the
// health checks for its stores. destinations are the archive containers the
// routing table can produce.
func CreateBackend(ctx context.Context, runMode string, appConfig appconfig.AppConfig, destinations []routing.Destination) (archive.Backend, []health.Checkable, error) {
	fallback := destinations[len(destinations)-1].Container
	containers := containerNames(destinations)

	switch runMode {
	case RUN_MODE_AZURE:
		if appConfig.IngestAzure == nil {
			return nil, nil, &appconfig.MissingConfigError{ConfigName: "INGEST_AZURE_CONNECTION_STRING"}
		}
		archiveConf := appConfig.ArchiveAzure
		if archiveConf == nil {
			archiveConf = appConfig.IngestAzure
		}
		logger.Info("Using Azure endpoints", "ingest", appConfig.IngestAzure.ContainerEndpoint, "archive", archiveConf.ContainerEndpoint)

		ingestClient, err := storeaz.NewBlobClient(appConfig.IngestAzure)
		if err != nil {
			return nil, nil, fmt.Errorf("ingest storage: %w", err)
		}
		archiveClient, err := storeaz.NewBlobClient(archiveConf)
		if err != nil {
			return nil, nil, fmt.Errorf("archive storage: %w", err)
		}
		b := storeaz.NewBackend(ingestClient, archiveClient)
		if appConfig.Archive.CreateContainers {
			if err := b.EnsureContainers(ctx, containers...); err != nil {
				return nil, nil, err
			}
		}
		return b, []health.Checkable{
			&storeaz.AzureBlobHealthCheck{Name: models.INGEST_STORAGE_HEALTH_PREFIX, Client: ingestClient, Container: appConfig.IngestContainerName},
			&storeaz.AzureBlobHealthCheck{Name: models.ARCHIVE_STORAGE_HEALTH_PREFIX, Client: archiveClient, Container: fallback},
		}, nil

	case RUN_MODE_AWS:
		s3Conf := appConfig.ArchiveS3
		if s3Conf == nil {
			s3Conf = appConfig.IngestS3
		}
		client, err := stores3.NewClient(ctx, s3Conf)
		if err != nil {
			return nil, nil, err
		}
		if appConfig.Archive.CreateContainers {
			logger.Warn("archive buckets are not created in aws mode", "buckets", containers)
		}
		return stores3.NewBackend(client, archive.Tier(appConfig.Archive.Tier)), []health.Checkable{
			&stores3.S3HealthCheck{Name: models.INGEST_STORAGE_HEALTH_PREFIX, Client: client, BucketName: appConfig.IngestContainerName},
			&stores3.S3HealthCheck{Name: models.ARCHIVE_STORAGE_HEALTH_PREFIX, Client: client, BucketName: fallback},
		}, nil
	}

	if err := os.MkdirAll(filepath.Join(appConfig.LocalFolderIngest, appConfig.IngestContainerName), 0755); err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(appConfig.LocalFolderArchive, 0755); err != nil {
		return nil, nil, err
	}
	if appConfig.Archive.CreateContainers {
		for _, c := range containers {
			if err := os.MkdirAll(filepath.Join(appConfig.LocalFolderArchive, c), 0755); err != nil {
				return nil, nil, err
			}
		}
	}
	b := storelocal.NewBackend(appConfig.LocalFolderIngest, appConfig.LocalFolderArchive)
	return b, []health.Checkable{b}, nil
}

func containerNames(destinations []routing.Destination) []string {
	seen := map[string]bool{}
	var names []string
	for _, d := range destinations {
		if !seen[d.Container] {
			seen[d.Container] = true
			names = append(names, d.Container)
		}
	}
	return names
}
