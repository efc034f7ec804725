package event

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/cdcgov/data-exchange-upload/archive-server/internal/archive"
	"github.com/cdcgov/data-exchange-upload/archive-server/pkg/sloger"
)

const maxWebhookBody = 1 << 20

// decodeEvent reads one event from a body holding either the event or a
// single element array of it.
func decodeEvent(b []byte, v any) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '[' {
		var raw []json.RawMessage
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
		if len(raw) != 1 {
			return fmt.Errorf("expected one event, got %d", len(raw))
		}
		b = raw[0]
	}
	if isNull(b) {
		return ErrNullEvent
	}
	return json.Unmarshal(b, v)
}

var ErrNullEvent = errors.New("event body is null")

func isNull(b []byte) bool {
	return bytes.Equal(bytes.TrimSpace(b), []byte("null"))
}

func decodeEvents(b []byte) ([]*BlobCreated, error) {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '[' {
		var events []*BlobCreated
		if err := json.Unmarshal(b, &events); err != nil {
			return nil, err
		}
		for i, e := range events {
			if e == nil {
				return nil, fmt.Errorf("%w: element %d", ErrNullEvent, i)
			}
		}
		return events, nil
	}
	if isNull(b) {
		return nil, ErrNullEvent
	}
	var e BlobCreated
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, err
	}
	return []*BlobCreated{&e}, nil
}

type WebhookResult struct {
	ID          string `json:"id"`
	Outcome     string `json:"outcome"`
	Message     string `json:"message,omitempty"`
	Disposition string `json:"disposition"`
}

type validationResponse struct {
	ValidationResponse string `json:"validationResponse"`
}

// WebhookHandler receives Event Grid deliveries over http. A rejected event
// answers 400 so Event Grid dead-letters it; a retryable failure answers 500
// so it is delivered again.
type WebhookHandler struct {
	Process func(context.Context, *BlobCreated) error
}

func (wh *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := sloger.FromContext(r.Context())
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	b, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "failed to read event body", http.StatusBadRequest)
		return
	}
	events, err := decodeEvents(b)
	if err != nil {
		logger.Error("failed to decode event delivery", "error", err)
		http.Error(w, "malformed event delivery", http.StatusBadRequest)
		return
	}

	for _, e := range events {
		if e.EventType == SubscriptionValidationType {
			logger.Info("answering event grid subscription validation", "id", e.ID, "topic", e.Topic)
			writeJSON(w, http.StatusOK, validationResponse{ValidationResponse: e.Data.ValidationCode})
			return
		}
	}

	status := http.StatusOK
	results := make([]WebhookResult, 0, len(events))
	for _, e := range events {
		if e.EventType != "" && e.EventType != BlobCreatedEventType {
			results = append(results, WebhookResult{ID: e.Identifier(), Outcome: "ignored", Disposition: Complete.String()})
			continue
		}
		err := wh.Process(r.Context(), e)
		d := DispositionFor(err)
		res := WebhookResult{
			ID:          e.Identifier(),
			Outcome:     string(archive.OutcomeArchived),
			Disposition: d.String(),
		}
		var ae *ArchiveError
		if errors.As(err, &ae) {
			res.Outcome = string(ae.Result.Outcome)
			res.Message = ae.Result.String()
		} else if err != nil {
			res.Outcome = "error"
			res.Message = err.Error()
		}
		results = append(results, res)

		switch {
		case d == Redeliver:
			status = http.StatusInternalServerError
		case res.Outcome == string(archive.OutcomeRejected) && status == http.StatusOK:
			status = http.StatusBadRequest
		}
	}

	writeJSON(w, status, results)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "error marshal json response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(b)
}
