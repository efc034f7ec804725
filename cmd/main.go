package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"testing"
	"time"

	"github.com/cdcgov/data-exchange-upload/archive-server/cmd/cli"
	"github.com/cdcgov/data-exchange-upload/archive-server/internal/appconfig"
	"github.com/cdcgov/data-exchange-upload/archive-server/internal/serverdex"
	"github.com/cdcgov/data-exchange-upload/archive-server/pkg/sloger"
	"github.com/joho/godotenv"
) // .import

const appMainExitCode = 1

var (
	appConfig appconfig.AppConfig
	logger    *slog.Logger
)

// NOTE: this large init file may be an antipattern.
// A main reason for it is to enable to cross cutting logging aspect.
// If another way is found to manage that this should be moved to main.
func init() {
	ctx := context.Background()

	logInfo := []any{}
	if buildInfo, ok := debug.ReadBuildInfo(); ok {
		logInfo = append(logInfo, "buildInfo.Main.Path", buildInfo.Main.Path)
	}
	// ------------------------------------------------------------------
	// parse and load cli flags
	// ------------------------------------------------------------------
	if !testing.Testing() {
		if err := cli.ParseFlags(); err != nil {
			slog.Error("error starting app, error parsing cli flags", "error", err)
			os.Exit(appMainExitCode)
		} // .if
	}

	if cli.Flags.AppConfigPath != "" {
		slog.Info("Loading environment from", "file", cli.Flags.AppConfigPath)
		if err := godotenv.Load(cli.Flags.AppConfigPath); err != nil {
			slog.Error("error loading local configuration", "error", err)
			os.Exit(appMainExitCode)
		} // .if
	}

	settingsPath := cli.Flags.SettingsPath
	if settingsPath == "" {
		settingsPath = os.Getenv("ConfigPath")
	}

	// ------------------------------------------------------------------
	// parse and load config from os exported and the settings file
	// ------------------------------------------------------------------
	var err error
	appConfig, err = appconfig.ParseConfig(ctx, settingsPath)
	if err != nil {
		slog.Error("error starting app, error parsing app config", "error", err)
		os.Exit(appMainExitCode)
	} // .if

	// ------------------------------------------------------------------
	// configure app custom logging
	// ------------------------------------------------------------------
	logInfo = append(logInfo, "pkg", "main")
	logger = cli.AppLogger(appConfig).With(logInfo...)
	sloger.SetDefaultLogger(logger)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting app", "run_mode", cli.Flags.RunMode)

	if appConfig.TracingEnabled {
		shutdown, err := cli.InitTracerProvider(ctx)
		if err != nil {
			logger.Error("error starting app, error initializing tracing", "error", err)
			os.Exit(appMainExitCode)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Error("failed to shut down trace exporter", "error", err)
			}
		}()
	}

	// start serving the app
	handler, err := cli.Serve(ctx, cli.Flags.RunMode, appConfig)
	if err != nil {
		logger.Error("error starting app, error initializing archive handlers", "error", err)
		os.Exit(appMainExitCode)
	}

	logger.Info("http handlers ready")
	// ------------------------------------------------------------------
	// create dex server
	// ------------------------------------------------------------------
	serverDex, err := serverdex.New(appConfig, handler)
	if err != nil {
		logger.Error("error starting app, error initialize dex server", "error", err)
		os.Exit(appMainExitCode)
	} // .if

	// ------------------------------------------------------------------
	// Start http custom server
	// ------------------------------------------------------------------
	httpServer := serverDex.HttpServer()

	go func() {
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("error starting app, error starting http server", "error", err, "port", appConfig.ServerPort)
			os.Exit(appMainExitCode)
		} // .if
	}() // .go

	logger.Info("started http server with archive handlers", "port", appConfig.ServerPort, "events_path", appConfig.EventsPath)

	// ------------------------------------------------------------------
	// 	Block for Exit, server above is on goroutine
	// ------------------------------------------------------------------
	<-ctx.Done()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("error shutting down http server", "error", err)
	}

	logger.Info("closing server by os signal", "port", appConfig.ServerPort)
} // .main
