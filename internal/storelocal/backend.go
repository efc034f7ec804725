package storelocal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cdcgov/data-exchange-upload/archive-server/internal/archive"
	"github.com/cdcgov/data-exchange-upload/archive-server/internal/models"
	"github.com/cdcgov/data-exchange-upload/archive-server/pkg/sloger"
	"github.com/google/uuid"
)

var ErrOutsideRoot = errors.New("object path escapes storage root")

// Backend stores containers as directories under two roots. Copies run in
// the background so callers poll for them as they would a cloud copy.
type Backend struct {
	IngestRoot  string
	ArchiveRoot string

	mu     sync.Mutex
	copies map[string]archive.CopyStatus
	tiers  map[string]archive.Tier
	wg     sync.WaitGroup
}

func NewBackend(ingestRoot, archiveRoot string) *Backend {
	return &Backend{
		IngestRoot:  ingestRoot,
		ArchiveRoot: archiveRoot,
		copies:      map[string]archive.CopyStatus{},
		tiers:       map[string]archive.Tier{},
	}
}

func objectPath(root string, o archive.ObjectRef) (string, error) {
	base := filepath.Join(root, o.Container)
	p := filepath.Join(base, filepath.FromSlash(o.Name))
	if o.Container == "" || o.Name == "" || !strings.HasPrefix(p, base+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, o)
	}
	return p, nil
}

func (b *Backend) StartCopy(ctx context.Context, src, dst archive.ObjectRef) (archive.CopyHandle, error) {
	srcPath, err := objectPath(b.IngestRoot, src)
	if err != nil {
		return archive.CopyHandle{}, err
	}
	dstPath, err := objectPath(b.ArchiveRoot, dst)
	if err != nil {
		return archive.CopyHandle{}, err
	}

	in, err := os.Open(srcPath)
	if errors.Is(err, os.ErrNotExist) {
		return archive.CopyHandle{}, fmt.Errorf("%w: %w", archive.ErrSourceNotFound, err)
	}
	if err != nil {
		return archive.CopyHandle{}, err
	}
	if err := os.MkdirAll(filepath.Dir(dstPath), 0755); err != nil {
		in.Close()
		return archive.CopyHandle{}, err
	}
	// never overwrite an archived object
	out, err := os.OpenFile(dstPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		in.Close()
		return archive.CopyHandle{}, err
	}

	h := archive.CopyHandle{
		ID:     uuid.NewString(),
		Source: src,
		Dest:   dst,
		Status: archive.CopyPending,
	}
	b.setStatus(h.ID, archive.CopyPending)

	logger := sloger.FromContext(ctx)
	logger.Info("starting copy from", "src", srcPath, "to dest", dstPath)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer in.Close()
		_, err := io.Copy(out, in)
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			logger.Error("local copy failed", "dest", dstPath, "error", err)
			os.Remove(dstPath)
			b.setStatus(h.ID, archive.CopyFailed)
			return
		}
		b.setStatus(h.ID, archive.CopySuccess)
	}()

	return h, nil
}

func (b *Backend) setStatus(id string, s archive.CopyStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.copies[id] = s
}

func (b *Backend) CopyStatus(_ context.Context, h archive.CopyHandle) (archive.CopyStatus, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.copies[h.ID]
	if !ok {
		return "", fmt.Errorf("unknown copy %s", h.ID)
	}
	if s != archive.CopyPending {
		delete(b.copies, h.ID)
	}
	return s, nil
}

// SetTier has no storage effect locally; the tier is only recorded.
func (b *Backend) SetTier(_ context.Context, dst archive.ObjectRef, tier archive.Tier) error {
	p, err := objectPath(b.ArchiveRoot, dst)
	if err != nil {
		return err
	}
	if _, err := os.Stat(p); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tiers[dst.String()] = tier
	return nil
}

func (b *Backend) Tier(dst archive.ObjectRef) (archive.Tier, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.tiers[dst.String()]
	return t, ok
}

func (b *Backend) Delete(_ context.Context, src archive.ObjectRef) error {
	p, err := objectPath(b.IngestRoot, src)
	if err != nil {
		return err
	}
	return os.Remove(p)
}

// Wait blocks until background copies finish.
func (b *Backend) Wait() {
	b.wg.Wait()
}

func (b *Backend) Health(_ context.Context) (rsp models.ServiceHealthResp) {
	rsp.Service = "Local storage"
	for _, root := range []string{b.IngestRoot, b.ArchiveRoot} {
		info, err := os.Stat(root)
		if err != nil {
			return rsp.BuildErrorResponse(err)
		}
		if !info.IsDir() {
			return rsp.BuildErrorResponse(fmt.Errorf("%s is not a directory", root))
		}
	}
	rsp.Status = models.STATUS_UP
	rsp.HealthIssue = models.HEALTH_ISSUE_NONE
	return rsp
}
