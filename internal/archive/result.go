package archive

import (
	"fmt"

	"github.com/cdcgov/data-exchange-upload/archive-server/internal/routing"
)

type Outcome string

const (
	OutcomeArchived             Outcome = "archived"
	OutcomeArchivedNotCleaned   Outcome = "archived_not_cleaned"
	OutcomeRejected             Outcome = "rejected"
	OutcomeUnresolvable         Outcome = "unresolvable_destination"
	OutcomeCopyInitiationFailed Outcome = "copy_initiation_failed"
	OutcomeCopyFailed           Outcome = "copy_failed"
	OutcomeCopyTimedOut         Outcome = "copy_timed_out"
	OutcomeBusy                 Outcome = "busy"
	OutcomeSourceMissing        Outcome = "source_missing"
)

type Result struct {
	Outcome     Outcome             `json:"outcome"`
	BlobName    string              `json:"blob_name"`
	Destination routing.Destination `json:"destination"`
	ArchiveName string              `json:"archive_name,omitempty"`
	Status      CopyStatus          `json:"status,omitempty"`
	Polls       int                 `json:"polls"`
	Err         error               `json:"-"`
}

func (r Result) Archived() bool {
	return r.Outcome == OutcomeArchived
}

// Retryable reports whether redelivering the triggering event could change
// the outcome. The source is still in place for every retryable outcome.
func (r Result) Retryable() bool {
	switch r.Outcome {
	case OutcomeCopyInitiationFailed, OutcomeCopyFailed, OutcomeCopyTimedOut, OutcomeBusy:
		return true
	}
	return false
}

func (r Result) Location() string {
	return r.Destination.Container + "/" + r.ArchiveName
}

func (r Result) String() string {
	switch r.Outcome {
	case OutcomeArchived:
		return fmt.Sprintf("Archived to %s", r.Location())
	case OutcomeArchivedNotCleaned:
		return fmt.Sprintf("Archived to %s but source %s was not cleaned up: %v", r.Location(), r.BlobName, r.Err)
	case OutcomeCopyFailed, OutcomeCopyTimedOut:
		return fmt.Sprintf("Copy failed for %s: %s", r.BlobName, r.Status)
	case OutcomeBusy:
		return fmt.Sprintf("Skipped %s: %v", r.BlobName, r.Err)
	case OutcomeSourceMissing:
		return fmt.Sprintf("Skipped %s: source no longer exists", r.BlobName)
	}
	return fmt.Sprintf("Archive of %s %s: %v", r.BlobName, r.Outcome, r.Err)
}
