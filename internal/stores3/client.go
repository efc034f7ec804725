package stores3

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/cdcgov/data-exchange-upload/archive-server/internal/appconfig"
)

func NewClient(ctx context.Context, s3Config *appconfig.S3StorageConfig) (*s3.Client, error) {
	var opts []func(*config.LoadOptions) error
	if s3Config != nil && s3Config.Region != "" {
		opts = append(opts, config.WithRegion(s3Config.Region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		// For non-AWS S3 backends
		if s3Config != nil && s3Config.Endpoint != "" {
			o.UsePathStyle = true
			o.BaseEndpoint = &s3Config.Endpoint
		}
	})

	return client, nil
}
