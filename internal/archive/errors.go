package archive

import (
	"errors"
	"fmt"
)

var (
	ErrCopyInitiation = errors.New("copy initiation failed")
	ErrCopyTimeout    = errors.New("copy did not complete before the poll limit")
	ErrCopyFailed     = errors.New("copy did not complete successfully")
	ErrTierOrDelete   = errors.New("archive copy succeeded but source cleanup failed")
	ErrBusy           = errors.New("blob is being archived by another invocation")
	// ErrSourceNotFound is returned by backends when the ingest blob does not
	// exist, typically because an earlier delivery already archived it.
	ErrSourceNotFound = errors.New("source blob not found")
)

// StepError records which step of an archive failed and the last copy status seen.
type StepError struct {
	Kind   error
	Step   string
	Status CopyStatus
	Err    error
}

func (e *StepError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s (status %s)", e.Kind, e.Step, e.Status)
	}
	return fmt.Sprintf("%s: %s (status %s): %s", e.Kind, e.Step, e.Status, e.Err)
}

func (e *StepError) Is(target error) bool {
	return e.Kind == target
}

func (e *StepError) Unwrap() error {
	return e.Err
}
