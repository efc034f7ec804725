package storeaz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/sas"
	"github.com/cdcgov/data-exchange-upload/archive-server/internal/archive"
	"github.com/cdcgov/data-exchange-upload/archive-server/pkg/sloger"
	"github.com/dustin/go-humanize"
)

var (
	logger *slog.Logger
)

func init() {
	type Empty struct{}
	pkgParts := strings.Split(reflect.TypeOf(Empty{}).PkgPath(), "/")
	// add package name to app logger
	logger = sloger.With("pkg", pkgParts[len(pkgParts)-1])
}

const defaultSourceSASExpiry = time.Hour

// Backend copies between two storage accounts, ingest and archive, using
// server side copies. The ingest and archive clients may be the same.
type Backend struct {
	Ingest  *azblob.Client
	Archive *azblob.Client
	// SourceSASExpiry bounds the read token appended to the copy source
	// when the ingest client holds a shared key.
	SourceSASExpiry time.Duration
}

func NewBackend(ingest, archive *azblob.Client) *Backend {
	return &Backend{
		Ingest:          ingest,
		Archive:         archive,
		SourceSASExpiry: defaultSourceSASExpiry,
	}
}

func (b *Backend) sourceClient(src archive.ObjectRef) *blob.Client {
	return b.Ingest.ServiceClient().NewContainerClient(src.Container).NewBlobClient(src.Name)
}

func (b *Backend) destClient(dst archive.ObjectRef) *blob.Client {
	return b.Archive.ServiceClient().NewContainerClient(dst.Container).NewBlobClient(dst.Name)
}

// sourceURL signs the source for reading when the account key is available.
// Without a key the destination account must already be able to read it.
func (b *Backend) sourceURL(ctx context.Context, c *blob.Client) string {
	expiry := b.SourceSASExpiry
	if expiry <= 0 {
		expiry = defaultSourceSASExpiry
	}
	u, err := c.GetSASURL(sas.BlobPermissions{Read: true}, time.Now().UTC().Add(expiry), nil)
	if err != nil {
		sloger.FromContext(ctx).Debug("copying from unsigned source url", "reason", err.Error())
		return c.URL()
	}
	return u
}

func (b *Backend) StartCopy(ctx context.Context, src, dst archive.ObjectRef) (archive.CopyHandle, error) {
	srcClient := b.sourceClient(src)
	destClient := b.destClient(dst)

	sloger.FromContext(ctx).Info("starting copy from", "src", srcClient.URL(), "to dest", destClient.URL())
	resp, err := destClient.StartCopyFromURL(ctx, b.sourceURL(ctx, srcClient), &blob.StartCopyFromURLOptions{
		AccessConditions: &blob.AccessConditions{
			ModifiedAccessConditions: &blob.ModifiedAccessConditions{
				// never overwrite an archived object
				IfNoneMatch: to.Ptr(azcore.ETagAny),
			},
		},
	})
	if isSourceMissing(err) {
		return archive.CopyHandle{}, fmt.Errorf("%w: %s: %w", archive.ErrSourceNotFound, src, err)
	}
	if err != nil {
		return archive.CopyHandle{}, err
	}

	h := archive.CopyHandle{
		Source: src,
		Dest:   dst,
		Status: archive.CopyPending,
	}
	if resp.CopyID != nil {
		h.ID = *resp.CopyID
	}
	if resp.CopyStatus != nil {
		h.Status = copyStatus(*resp.CopyStatus)
	}
	return h, nil
}

// isSourceMissing reports a copy rejected because the source blob is gone.
// CannotVerifyCopySource is also used for source auth failures, so only a 404
// counts.
func isSourceMissing(err error) bool {
	var re *azcore.ResponseError
	if !errors.As(err, &re) || re.StatusCode != http.StatusNotFound {
		return false
	}
	return bloberror.HasCode(err, bloberror.CannotVerifyCopySource, bloberror.BlobNotFound)
}

func (b *Backend) CopyStatus(ctx context.Context, h archive.CopyHandle) (archive.CopyStatus, error) {
	props, err := b.destClient(h.Dest).GetProperties(ctx, nil)
	if err != nil {
		return "", err
	}
	if props.CopyStatus == nil {
		return "", fmt.Errorf("no copy status reported for %s", h.Dest)
	}
	if props.CopyID != nil && h.ID != "" && *props.CopyID != h.ID {
		return "", fmt.Errorf("copy %s on %s was replaced by copy %s", h.ID, h.Dest, *props.CopyID)
	}

	status := copyStatus(*props.CopyStatus)
	logger := sloger.FromContext(ctx).With("status", string(status))
	if props.CopyProgress != nil {
		logger = logger.With("progress", *props.CopyProgress)
	}
	if props.ContentLength != nil {
		logger = logger.With("size", humanize.Bytes(uint64(*props.ContentLength)))
	}
	if props.CopyStatusDescription != nil {
		logger = logger.With("description", *props.CopyStatusDescription)
	}
	logger.Debug("Copy progress")
	return status, nil
}

func (b *Backend) SetTier(ctx context.Context, dst archive.ObjectRef, tier archive.Tier) error {
	_, err := b.destClient(dst).SetTier(ctx, accessTier(tier), nil)
	return err
}

func (b *Backend) Delete(ctx context.Context, src archive.ObjectRef) error {
	_, err := b.sourceClient(src).Delete(ctx, nil)
	return err
}

func copyStatus(s blob.CopyStatusType) archive.CopyStatus {
	switch s {
	case blob.CopyStatusTypeSuccess:
		return archive.CopySuccess
	case blob.CopyStatusTypeFailed:
		return archive.CopyFailed
	case blob.CopyStatusTypeAborted:
		return archive.CopyAborted
	default:
		return archive.CopyPending
	}
}

func accessTier(t archive.Tier) blob.AccessTier {
	switch t {
	case archive.TierCold:
		return blob.AccessTierCold
	default:
		return blob.AccessTierArchive
	}
}

// EnsureContainers creates any missing archive containers.
func (b *Backend) EnsureContainers(ctx context.Context, names ...string) error {
	for _, name := range names {
		if err := CreateContainerIfNotExists(ctx, b.Archive.ServiceClient().NewContainerClient(name)); err != nil {
			return err
		}
	}
	return nil
}

func CreateContainerIfNotExists(ctx context.Context, containerClient *container.Client) error {
	_, err := containerClient.GetProperties(ctx, nil)
	if err != nil {
		var storageErr *azcore.ResponseError
		if errors.As(err, &storageErr) && storageErr.StatusCode == http.StatusNotFound {
			logger.Info("creating archive container", "container", containerClient.URL())
			_, err := containerClient.Create(ctx, nil)
			if err != nil {
				logger.Error("failed to create archive container", "container", containerClient.URL())
				return err
			}
			return nil
		}
		return err
	}

	return nil
}
