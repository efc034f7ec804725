package serverdex

import (
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/cdcgov/data-exchange-upload/archive-server/internal/appconfig"
	"github.com/cdcgov/data-exchange-upload/archive-server/internal/metrics"
	"github.com/cdcgov/data-exchange-upload/archive-server/internal/middleware"
	"github.com/cdcgov/data-exchange-upload/archive-server/pkg/sloger"
) // .import

// ServerDex, the archive server, serves the event webhook and the operational routes
type ServerDex struct {
	AppConfig appconfig.AppConfig
	Handler   http.Handler

	logger *slog.Logger
} // .ServerDex

// New returns a server for the DEX archive ready to serve handler
func New(appConfig appconfig.AppConfig, handler http.Handler) (ServerDex, error) {

	type Empty struct{}
	pkgParts := strings.Split(reflect.TypeOf(Empty{}).PkgPath(), "/")
	// add package name to app logger
	logger := sloger.With("pkg", pkgParts[len(pkgParts)-1])

	if handler == nil {
		handler = http.DefaultServeMux
	}

	return ServerDex{
		AppConfig: appConfig,
		Handler:   handler,
		logger:    logger,
	}, nil // .return

} // New

// HttpServer wraps the handler with request metrics, and tracing when enabled
func (sd *ServerDex) HttpServer() http.Server {

	handler := metrics.TrackHTTP(sd.Handler)
	if sd.AppConfig.TracingEnabled {
		handler = middleware.TracingMiddleware(handler)
	}

	// --------------------------------------------------------------
	// 		Custom Server
	// --------------------------------------------------------------
	return http.Server{

		Addr: ":" + sd.AppConfig.ServerPort,

		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	} // .httpServer
} // .HttpServer
