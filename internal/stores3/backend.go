package stores3

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/cdcgov/data-exchange-upload/archive-server/internal/archive"
	"github.com/cdcgov/data-exchange-upload/archive-server/pkg/sloger"
	"github.com/aws/smithy-go"
	"github.com/dustin/go-humanize"
)

var ErrDestinationExists = errors.New("archive object already exists")

type S3API interface {
	CopyObject(ctx context.Context, params *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// Backend archives between buckets reachable with one set of credentials.
// S3 copies complete synchronously, so a started copy is already settled and
// CopyStatus only confirms the object landed. Copies are limited to the 5GB
// single request CopyObject size.
type Backend struct {
	Client S3API
	// Tier is the storage class written by the copy itself, which saves a
	// second copy in SetTier.
	Tier archive.Tier
}

func NewBackend(client S3API, tier archive.Tier) *Backend {
	return &Backend{
		Client: client,
		Tier:   tier,
	}
}

func copySource(o archive.ObjectRef) *string {
	return aws.String(url.PathEscape(o.Container + "/" + o.Name))
}

func storageClass(t archive.Tier) types.StorageClass {
	switch t {
	case archive.TierCold:
		return types.StorageClassGlacierIr
	default:
		return types.StorageClassGlacier
	}
}

// isSourceMissing reports a CopyObject failure caused by a missing source key.
// CopyObject does not model NoSuchKey, so the generic api error code is checked too.
func isSourceMissing(err error) bool {
	if err == nil {
		return false
	}
	var ae smithy.APIError
	if errors.As(err, &ae) && (ae.ErrorCode() == "NoSuchKey" || ae.ErrorCode() == "NotFound") {
		return true
	}
	return isNotFound(err)
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	var nsk *types.NoSuchKey
	return errors.As(err, &nf) || errors.As(err, &nsk)
}

func (b *Backend) head(ctx context.Context, o archive.ObjectRef) (*s3.HeadObjectOutput, error) {
	return b.Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(o.Container),
		Key:    aws.String(o.Name),
	})
}

func (b *Backend) StartCopy(ctx context.Context, src, dst archive.ObjectRef) (archive.CopyHandle, error) {
	logger := sloger.FromContext(ctx)

	// never overwrite an archived object
	if _, err := b.head(ctx, dst); err == nil {
		return archive.CopyHandle{}, fmt.Errorf("%w: %s", ErrDestinationExists, dst)
	} else if !isNotFound(err) {
		return archive.CopyHandle{}, err
	}

	logger.Info("starting copy from", "src", src.String(), "to dest", dst.String())
	out, err := b.Client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:            aws.String(dst.Container),
		Key:               aws.String(dst.Name),
		CopySource:        copySource(src),
		StorageClass:      storageClass(b.Tier),
		MetadataDirective: types.MetadataDirectiveCopy,
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
		Status: archive.CopySuccess,
	}
	if out.CopyObjectResult != nil && out.CopyObjectResult.ETag != nil {
		h.ID = aws.ToString(out.CopyObjectResult.ETag)
	}
	return h, nil
}

func (b *Backend) CopyStatus(ctx context.Context, h archive.CopyHandle) (archive.CopyStatus, error) {
	out, err := b.head(ctx, h.Dest)
	if err != nil {
		if isNotFound(err) {
			return archive.CopyFailed, nil
		}
		return "", err
	}
	if h.ID != "" && out.ETag != nil && aws.ToString(out.ETag) != h.ID {
		return archive.CopyFailed, nil
	}
	logger := sloger.FromContext(ctx).With("status", string(archive.CopySuccess), "storage_class", string(out.StorageClass))
	if out.ContentLength != nil {
		logger = logger.With("size", humanize.Bytes(uint64(*out.ContentLength)))
	}
	logger.Debug("Copy progress")
	return archive.CopySuccess, nil
}

// SetTier rewrites dst in place when its storage class differs from tier.
func (b *Backend) SetTier(ctx context.Context, dst archive.ObjectRef, tier archive.Tier) error {
	out, err := b.head(ctx, dst)
	if err != nil {
		return err
	}
	want := storageClass(tier)
	if out.StorageClass == want {
		return nil
	}
	_, err = b.Client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:            aws.String(dst.Container),
		Key:               aws.String(dst.Name),
		CopySource:        copySource(dst),
		StorageClass:      want,
		MetadataDirective: types.MetadataDirectiveCopy,
	})
	return err
}

func (b *Backend) Delete(ctx context.Context, src archive.ObjectRef) error {
	_, err := b.Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(src.Container),
		Key:    aws.String(src.Name),
	})
	return err
}
