package event

import (
	"time"

	"github.com/google/uuid"
)

const (
	BlobCreatedEventType       = "Microsoft.Storage.BlobCreated"
	SubscriptionValidationType = "Microsoft.EventGrid.SubscriptionValidationEvent"
	ArchiveReportEventType     = "ArchiveReport"
)

var MaxRetries = 5

type Retryable interface {
	RetryCount() int
	IncrementRetryCount()
}

// Identifiable is anything that can travel over a subscriber or publisher.
type Identifiable interface {
	Retryable
	Identifier() string
	Type() string
	SetIdentifier(id string)
}

// BlobCreated is an Event Grid event in the Event Grid schema.
type BlobCreated struct {
	ID              string          `json:"id"`
	Topic           string          `json:"topic,omitempty"`
	Subject         string          `json:"subject,omitempty"`
	EventType       string          `json:"eventType"`
	EventTime       string          `json:"eventTime,omitempty"`
	Data            BlobCreatedData `json:"data"`
	DataVersion     string          `json:"dataVersion,omitempty"`
	MetadataVersion string          `json:"metadataVersion,omitempty"`

	retries int
}

type BlobCreatedData struct {
	Api           string `json:"api,omitempty"`
	RequestId     string `json:"requestId,omitempty"`
	ETag          string `json:"eTag,omitempty"`
	ContentType   string `json:"contentType,omitempty"`
	ContentLength int64  `json:"contentLength,omitempty"`
	BlobType      string `json:"blobType,omitempty"`
	Url           string `json:"url"`
	Sequencer     string `json:"sequencer,omitempty"`
	// set on subscription validation events only
	ValidationCode string `json:"validationCode,omitempty"`
}

func NewBlobCreated(url string) *BlobCreated {
	return &BlobCreated{
		ID:        uuid.NewString(),
		EventType: BlobCreatedEventType,
		EventTime: time.Now().UTC().Format(time.RFC3339Nano),
		Data: BlobCreatedData{
			Api: "PutBlob",
			Url: url,
		},
	}
}

func (e *BlobCreated) RetryCount() int {
	return e.retries
}

func (e *BlobCreated) IncrementRetryCount() {
	e.retries++
}

func (e *BlobCreated) Identifier() string {
	return e.ID
}

func (e *BlobCreated) Type() string {
	return e.EventType
}

func (e *BlobCreated) SetIdentifier(id string) {
	if e.ID == "" {
		e.ID = id
	}
}

// ArchiveReport is published once per handled event, whatever the outcome.
type ArchiveReport struct {
	ID          string `json:"id"`
	EventType   string `json:"event_type"`
	EventID     string `json:"source_event_id,omitempty"`
	SourceURL   string `json:"source_url"`
	BlobName    string `json:"blob_name,omitempty"`
	Container   string `json:"archive_container,omitempty"`
	Subfolder   string `json:"archive_subfolder,omitempty"`
	ArchiveName string `json:"archive_name,omitempty"`
	Outcome     string `json:"outcome"`
	CopyStatus  string `json:"copy_status,omitempty"`
	Polls       int    `json:"polls"`
	Retryable   bool   `json:"retryable"`
	Error       string `json:"error,omitempty"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`

	retries int
}

func (r *ArchiveReport) RetryCount() int {
	return r.retries
}

func (r *ArchiveReport) IncrementRetryCount() {
	r.retries++
}

func (r *ArchiveReport) Identifier() string {
	return r.ID
}

func (r *ArchiveReport) Type() string {
	return r.EventType
}

func (r *ArchiveReport) SetIdentifier(id string) {
	r.ID = id
}
