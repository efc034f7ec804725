package cli

import (
	"io"
	"log/slog"
	"os"
	"reflect"
	"strings"

	"github.com/cdcgov/data-exchange-upload/archive-server/internal/appconfig"
	"github.com/cdcgov/data-exchange-upload/archive-server/pkg/sloger"
)

var (
	logger *slog.Logger
)

func init() {
	type Empty struct{}
	pkgParts := strings.Split(reflect.TypeOf(Empty{}).PkgPath(), "/")
	// add package name to app logger
	logger = sloger.With("pkg", pkgParts[len(pkgParts)-1])
}

// AppLogger, this is the custom application logger for uniformity
func AppLogger(appConfig appconfig.AppConfig) *slog.Logger {
	return newAppLogger(os.Stdout, appConfig)
} // .AppLogger

func newAppLogger(w io.Writer, appConfig appconfig.AppConfig) *slog.Logger {

	// Configure debug on if needed, otherwise should be off
	opts := &slog.HandlerOptions{
		AddSource: true,
	} // .opts

	if appConfig.LoggerDebugOn {
		opts.Level = slog.LevelDebug
	} // .if

	logger := slog.New(slog.NewJSONHandler(w, opts))

	appLogger := logger.With(
		slog.Group("app_info",
			slog.String("System", "DEX"),
			slog.String("Product", "ARCHIVE"),
			slog.String("App", "ARCHIVE SERVER"),
			slog.String("Env", appConfig.Environment),
		)) // .appLogger

	return appLogger
}
