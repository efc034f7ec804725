package storeaz

import (
	"errors"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/cdcgov/data-exchange-upload/archive-server/internal/appconfig"
) // .import

var (
	errStorageConfigNil              = errors.New("error storage config is not set")
	errStorageNameEmpty              = errors.New("error storage name from app config is empty")
	errStorageContainerEndpointEmpty = errors.New("error storage container endpoint from app config is empty")
) // .var

// NewBlobClient returns an azure blob client for an account. A connection
// string wins, then a shared key, then a service principal, then the
// default azure credential chain.
func NewBlobClient(conf *appconfig.AzureStorageConfig) (*azblob.Client, error) {
	if conf == nil {
		return nil, errStorageConfigNil
	}

	if conf.ConnectionString != "" {
		return azblob.NewClientFromConnectionString(conf.ConnectionString, nil)
	} // .if

	// check guard if names are not empty
	if len(strings.TrimSpace(conf.StorageName)) == 0 {
		return nil, errStorageNameEmpty
	} // .if
	if len(strings.TrimSpace(conf.ContainerEndpoint)) == 0 {
		return nil, errStorageContainerEndpointEmpty
	} // .if

	if conf.StorageKey != "" {
		credential, err := azblob.NewSharedKeyCredential(conf.StorageName, conf.StorageKey)
		if err != nil {
			return nil, err
		} // .if
		return azblob.NewClientWithSharedKeyCredential(conf.ContainerEndpoint, credential, nil)
	}

	credential, err := newTokenCredential(conf)
	if err != nil {
		return nil, err
	}
	return azblob.NewClient(conf.ContainerEndpoint, credential, nil)
} // .NewBlobClient

func newTokenCredential(conf *appconfig.AzureStorageConfig) (azcore.TokenCredential, error) {
	if conf.TenantId != "" && conf.ClientId != "" && conf.ClientSecret != "" {
		return azidentity.NewClientSecretCredential(conf.TenantId, conf.ClientId, conf.ClientSecret, nil)
	}
	return azidentity.NewDefaultAzureCredential(nil)
}
