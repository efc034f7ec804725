package stores3

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/cdcgov/data-exchange-upload/archive-server/internal/models"
)

type S3HealthCheck struct {
	Name       string
	Client     S3API
	BucketName string
}

func (c *S3HealthCheck) Health(ctx context.Context) models.ServiceHealthResp {
	var shr models.ServiceHealthResp
	shr.Service = c.Name + " S3 Bucket " + c.BucketName

	if c.Client == nil {
		shr.Status = models.STATUS_DOWN
		shr.HealthIssue = models.S3_CLIENT_NA
		return shr
	}

	_, err := c.Client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: &c.BucketName,
	})
	if err != nil {
		return shr.BuildErrorResponse(err)
	}

	shr.Status = models.STATUS_UP
	shr.HealthIssue = models.HEALTH_ISSUE_NONE
	return shr
}
