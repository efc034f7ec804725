package cli

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/cdcgov/data-exchange-upload/archive-server/internal/event"
	"github.com/gorilla/mux"
)

// Router archives a named ingest blob on request, for reconciling blobs whose
// events were lost. With ?async=true the blob is queued instead.
type Router struct {
	IngestContainer string
	Process         func(context.Context, *event.BlobCreated) error
	Queue           event.Publisher[*event.BlobCreated]
}

type RouteResponse struct {
	ID      string `json:"id"`
	Blob    string `json:"blob"`
	Outcome string `json:"outcome"`
	Message string `json:"message,omitempty"`
}

func (router *Router) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	blob := mux.Vars(r)["blob"]
	if blob == "" {
		http.Error(rw, "blob name required", http.StatusBadRequest)
		return
	}

	u := url.URL{Path: "/" + router.IngestContainer + "/" + blob}
	e := event.NewBlobCreated(u.String())
	resp := RouteResponse{
		ID:   e.Identifier(),
		Blob: blob,
	}

	if r.URL.Query().Get("async") == "true" {
		if err := router.Queue.Publish(r.Context(), e); err != nil {
			resp.Outcome = "error"
			resp.Message = err.Error()
			writeRouteResponse(rw, http.StatusServiceUnavailable, resp)
			return
		}
		resp.Outcome = "queued"
		writeRouteResponse(rw, http.StatusAccepted, resp)
		return
	}

	err := router.Process(r.Context(), e)
	status := http.StatusOK
	resp.Outcome = "archived"
	var ae *event.ArchiveError
	if errors.As(err, &ae) {
		resp.Outcome = string(ae.Result.Outcome)
		resp.Message = ae.Result.String()
	} else if err != nil {
		resp.Outcome = "error"
		resp.Message = err.Error()
	}
	switch event.DispositionFor(err) {
	case event.Redeliver:
		status = http.StatusServiceUnavailable
	case event.DeadLetter:
		status = http.StatusUnprocessableEntity
	}

	writeRouteResponse(rw, status, resp)
}

func writeRouteResponse(rw http.ResponseWriter, status int, resp RouteResponse) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	if err := json.NewEncoder(rw).Encode(resp); err != nil {
		logger.Error("failed to write archive response", "error", err)
	}
}
