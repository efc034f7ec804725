package storeaz

import (
	"context"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/cdcgov/data-exchange-upload/archive-server/internal/models"
) // .import

type AzureBlobHealthCheck struct {
	Name      string
	Client    *azblob.Client
	Container string
}

func (c *AzureBlobHealthCheck) Health(ctx context.Context) models.ServiceHealthResp {
	return checkAzBlobClient(ctx, c.Name, c.Client, c.Container)
}

// checkAzBlobClient, method for checking still valid and working the azure blob client for a storage
func checkAzBlobClient(ctx context.Context, service string, client *azblob.Client, containerName string) models.ServiceHealthResp {

	var shr models.ServiceHealthResp
	shr.Service = service

	// guard client is null
	if client == nil {
		shr.Status = models.STATUS_DOWN
		shr.HealthIssue = models.AZ_BLOB_CLIENT_NA
		return shr
	} // .if

	_, err := client.ServiceClient().NewContainerClient(containerName).GetProperties(ctx, nil)
	if err != nil {
		return shr.BuildErrorResponse(err)
	} // .if

	shr.Status = models.STATUS_UP
	shr.HealthIssue = models.HEALTH_ISSUE_NONE
	return shr
} // .checkAzBlobClient
