package cli

import (
	"context"
	"net/http"
	"sync"

	"github.com/cdcgov/data-exchange-upload/archive-server/internal/appconfig"
	"github.com/cdcgov/data-exchange-upload/archive-server/internal/event"
	"github.com/cdcgov/data-exchange-upload/archive-server/internal/health"
	"github.com/cdcgov/data-exchange-upload/archive-server/internal/middleware"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const memoryBusSize = 100

// Serve builds the archiver, starts a listener per configured event source
// and returns the http routes. Listeners stop when ctx is done, after which
// report publishers are closed.
func Serve(ctx context.Context, runMode string, appConfig appconfig.AppConfig) (http.Handler, error) {

	archiver, checks, err := CreateArchiver(ctx, runMode, &appConfig)
	if err != nil {
		logger.Error("error starting app, error configuring archiver", "error", err)
		return nil, err
	}
	for _, c := range checks {
		health.Register(c)
	}

	reports, err := NewReportPublisher(ctx, appConfig)
	if err != nil {
		logger.Error("error starting app, error configuring report publishers", "error", err)
		return nil, err
	}

	handler := &event.Handler{
		Archiver:        archiver,
		IngestContainer: appConfig.IngestContainerName,
		Reports:         reports,
	}
	process := handler.Process
	if appConfig.TracingEnabled {
		process = TracingProcessor(process)
	}

	bus := event.NewMemoryBus[*event.BlobCreated](memoryBusSize)
	subs, err := NewEventSubscribers(ctx, appConfig, bus)
	if err != nil {
		logger.Error("error starting app, error configuring event subscribers", "error", err)
		return nil, err
	}

	var wg sync.WaitGroup
	for _, s := range subs {
		wg.Add(1)
		go func(s event.Subscribable[*event.BlobCreated]) {
			defer wg.Done()
			if err := s.Listen(ctx, process); err != nil {
				logger.Error("event listener stopped", "error", err)
			}
		}(s)
	}
	go func() {
		wg.Wait()
		for _, s := range subs {
			if err := s.Close(); err != nil {
				logger.Error("failed to close event subscriber", "error", err)
			}
		}
		if err := reports.Close(); err != nil {
			logger.Error("failed to close report publishers", "error", err)
		}
	}()

	// --------------------------------------------------------------
	// 	Routes
	// --------------------------------------------------------------
	router := mux.NewRouter()
	router.Handle("/", &appConfig)
	router.Handle("/health", health.Handler())
	router.Handle("/version", &VersionHandler{})
	router.Handle("/metrics", promhttp.Handler())

	webhook := &event.WebhookHandler{Process: process}
	router.Handle(appConfig.EventsPath, middleware.AddEventIDContext(webhook)).Methods(http.MethodPost)

	archive := &Router{
		IngestContainer: appConfig.IngestContainerName,
		Process:         process,
		Queue:           bus,
	}
	router.Handle("/archive/{blob:.+}", archive).Methods(http.MethodPost)

	setupMetrics(ctx, appConfig)

	return router, nil
}
