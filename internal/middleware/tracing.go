package middleware

import (
	"context"
	"crypto/md5"
	"fmt"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
)

type key int

// TraceSeed carries the trace id derived from the blob or event being handled.
var TraceSeed key

const EventIDHeader = "aeg-event-id"

// TraceID derives a stable trace id, so every delivery of the same blob
// lands in one trace.
func TraceID(seed string) trace.TraceID {
	return trace.TraceID(md5.Sum([]byte(seed)))
}

func WithTraceSeed(ctx context.Context, seed string) context.Context {
	return context.WithValue(ctx, TraceSeed, TraceID(seed))
}

func TracingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		otelhttp.NewMiddleware(fmt.Sprintf("%s %s", r.Method, r.URL.Path))(next).ServeHTTP(rw, r)
	})
}

// AddEventIDContext seeds the trace id from the Event Grid delivery header
// when present.
func AddEventIDContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if id := r.Header.Get(EventIDHeader); id != "" {
			ctx := WithTraceSeed(r.Context(), id)
			slog.Debug("tracing event delivery", "event_id", id, "trace_id", TraceID(id).String())
			r = r.WithContext(ctx)
		}
		next.ServeHTTP(rw, r)
	})
}
