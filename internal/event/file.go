package event

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cdcgov/data-exchange-upload/archive-server/internal/models"
)

const TypeSeparator = "_"

// FilePublisher appends each event as a json line to a file named for the event.
type FilePublisher[T Identifiable] struct {
	Dir string
}

func (fp *FilePublisher[T]) Publish(_ context.Context, event T) error {
	err := os.MkdirAll(fp.Dir, 0750)
	if err != nil && !os.IsExist(err) {
		return err
	}

	filename := filepath.Join(fp.Dir, event.Identifier()+TypeSeparator+event.Type())
	f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	// write event to file.
	return json.NewEncoder(f).Encode(event)
}

func (fp *FilePublisher[T]) Close() error {
	return nil
}

func (fp *FilePublisher[T]) Health(_ context.Context) (rsp models.ServiceHealthResp) {
	rsp.Service = "File Publisher " + fp.Dir
	if err := os.MkdirAll(fp.Dir, 0750); err != nil {
		return rsp.BuildErrorResponse(err)
	}
	info, err := os.Stat(fp.Dir)
	if err != nil {
		return rsp.BuildErrorResponse(err)
	}
	if !info.IsDir() {
		return rsp.BuildErrorResponse(fmt.Errorf("%s is not a directory", fp.Dir))
	}
	rsp.Status = models.STATUS_UP
	rsp.HealthIssue = models.HEALTH_ISSUE_NONE
	return rsp
}
