package archive

import (
	"context"
)

type Tier string

const (
	TierArchive Tier = "Archive"
	TierCold    Tier = "Cold"
)

type CopyStatus string

const (
	CopyPending CopyStatus = "pending"
	CopySuccess CopyStatus = "success"
	CopyFailed  CopyStatus = "failed"
	CopyAborted CopyStatus = "aborted"
)

// ObjectRef names an object within a storage account.
type ObjectRef struct {
	Container string `json:"container"`
	Name      string `json:"name"`
}

func (o ObjectRef) String() string {
	return o.Container + "/" + o.Name
}

// CopyHandle is returned by StartCopy and polled with CopyStatus.
type CopyHandle struct {
	ID     string
	Source ObjectRef
	Dest   ObjectRef
	// Status as reported when the copy was accepted.
	Status CopyStatus
}

// Backend is the storage capability the archiver drives. Source refs
// address the ingest account, destination refs the archive account.
type Backend interface {
	// StartCopy begins a server side copy and must not wait for it to finish.
	StartCopy(ctx context.Context, src, dst ObjectRef) (CopyHandle, error)
	CopyStatus(ctx context.Context, h CopyHandle) (CopyStatus, error)
	SetTier(ctx context.Context, dst ObjectRef, tier Tier) error
	Delete(ctx context.Context, src ObjectRef) error
}
