package appconfig

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/cdcgov/data-exchange-upload/archive-server/pkg/sloger"
	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"
) // .import

var logger *slog.Logger

func init() {
	type Empty struct{}
	pkgParts := strings.Split(reflect.TypeOf(Empty{}).PkgPath(), "/")
	// add package name to app logger
	logger = sloger.With("pkg", pkgParts[len(pkgParts)-1])
}

type RootResp struct {
	System     string `json:"system"`
	DexProduct string `json:"dex_product"`
	DexApp     string `json:"dex_app"`
	ServerTime string `json:"server_time"`
} // .rootResp

// AppConfig is built once at startup and never modified afterwards.
type AppConfig struct {

	// App and for Logger
	LoggerDebugOn bool   `env:"LOGGER_DEBUG_ON"`
	Environment   string `env:"ENVIRONMENT, default=DEV"`

	// Server
	ServerPort          string        `env:"SERVER_PORT, default=8080"`
	EventsPath          string        `env:"EVENTS_PATH, default=/events"`
	TracingEnabled      bool          `env:"OTEL_TRACING_ENABLED, default=false"`
	MetricsPollInterval time.Duration `env:"METRICS_POLL_INTERVAL, default=30s"`

	// Ingest
	IngestContainerName string              `env:"INGEST_CONTAINER_NAME, default=production"`
	IngestAzure         *AzureStorageConfig `env:", prefix=INGEST_AZURE_, noinit"`
	IngestS3            *S3StorageConfig    `env:", prefix=INGEST_S3_, noinit"`
	LocalFolderIngest   string              `env:"LOCAL_FOLDER_INGEST, default=./archive-data/ingest"`

	// Archive
	ArchiveAzure       *AzureStorageConfig `env:", prefix=ARCHIVE_AZURE_, noinit"`
	ArchiveS3          *S3StorageConfig    `env:", prefix=ARCHIVE_S3_, noinit"`
	LocalFolderArchive string              `env:"LOCAL_FOLDER_ARCHIVE, default=./archive-data/archive"`
	Archive            ArchiveConfig       `env:", prefix=ARCHIVE_"`

	// Events
	SubscriberConnection    *AzureQueueConfig    `env:", prefix=SUBSCRIBER_, noinit"`
	PublisherConnection     *AzureQueueConfig    `env:", prefix=PUBLISHER_, noinit"`
	SQSSubscriberConnection *SQSSubscriberConfig `env:", prefix=SQS_SUBSCRIBER_, noinit"`
	SNSPublisherConnection  *SNSPublisherConfig  `env:", prefix=SNS_PUBLISHER_, noinit"`
	LocalEventsFolder       string               `env:"LOCAL_EVENTS_FOLDER, default=./archive-data/events"`

	// Same blob lock
	RedisLockURI string        `env:"REDIS_CONNECTION_STRING"`
	RedisLockTTL time.Duration `env:"REDIS_LOCK_TTL, default=2m"`

	settings envconfig.Lookuper
} // .AppConfig

// archiveTiers are the access tiers a copy may be moved to. Matching is exact.
var archiveTiers = []string{"Archive", "Cold"}

type ArchiveConfig struct {
	// MapPath switches routing to an external archive map whose containers
	// are keys resolved against this configuration.
	MapPath             string        `env:"MAP_PATH"`
	DefaultContainerKey string        `env:"DEFAULT_CONTAINER_KEY, default=DefaultArchiveContainer"`
	Tier                string        `env:"TIER, default=Archive"`
	PollInterval        time.Duration `env:"POLL_INTERVAL, default=1s"`
	MaxPolls            int           `env:"MAX_POLLS, default=30"`
	NameUniqueSuffix    bool          `env:"NAME_UNIQUE_SUFFIX, default=false"`
	CreateContainers    bool          `env:"CREATE_CONTAINERS, default=false"`
}

type AzureStorageConfig struct {
	ConnectionString  string `env:"CONNECTION_STRING"`
	StorageName       string `env:"STORAGE_ACCOUNT"`
	StorageKey        string `env:"STORAGE_KEY"`
	TenantId          string `env:"TENANT_ID"`
	ClientId          string `env:"CLIENT_ID"`
	ClientSecret      string `env:"CLIENT_SECRET"`
	ContainerEndpoint string `env:"ENDPOINT"`
} // .AzureStorageConfig

type S3StorageConfig struct {
	Endpoint string `env:"ENDPOINT"`
	Region   string `env:"REGION"`
}

type AzureQueueConfig struct {
	ConnectionString string `env:"CONNECTION_STRING"`
	Topic            string `env:"TOPIC"`
	Queue            string `env:"QUEUE"`
	Subscription     string `env:"SUBSCRIPTION"`
	MaxMessages      int    `env:"MAX_MESSAGES"`
}

type SQSSubscriberConfig struct {
	QueueURL    string `env:"QUEUE_URL"`
	MaxMessages int    `env:"MAX_MESSAGES, default=10"`
}

type SNSPublisherConfig struct {
	EventArn string `env:"EVENT_ARN"`
}

func (conf *AppConfig) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	jsonResp, err := json.Marshal(RootResp{
		System:     "DEX",
		DexProduct: "ARCHIVE API",
		DexApp:     "archive server",
		ServerTime: time.Now().Format(time.RFC3339Nano),
	}) // .jsonResp
	if err != nil {
		errMsg := "error marshal json for root response"
		logger.Error(errMsg, "error", err.Error())
		http.Error(w, errMsg, http.StatusInternalServerError)
		return
	} // .if

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(jsonResp)
}

func (azc *AzureStorageConfig) Check() error {
	if azc.ConnectionString != "" {
		return nil
	}
	errs := []error{}
	if azc.StorageName == "" {
		errs = append(errs, &MissingConfigError{
			ConfigName: "AzStorageName",
		})
	}
	if azc.ContainerEndpoint == "" {
		errs = append(errs, &MissingConfigError{
			ConfigName: "AzContainerEndpoint",
		})
	}
	return errors.Join(errs...)
}

// Lookup reads a raw setting from the snapshot taken at startup.
func (conf *AppConfig) Lookup(key string) (string, bool) {
	if conf.settings == nil {
		return "", false
	}
	return conf.settings.Lookup(key)
}

// ContainerName resolves a logical archive container key.
func (conf *AppConfig) ContainerName(key string) (string, error) {
	v, ok := conf.Lookup(key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", &MissingConfigError{ConfigName: key}
	}
	return v, nil
}

// ParseConfig loads app configuration from the environment, overlaid by the
// optional settings file, and returns the AppConfig struct. The process
// environment is read once and never written.
func ParseConfig(ctx context.Context, settingsPath string) (AppConfig, error) {
	l, err := NewLookuper(settingsPath)
	if err != nil {
		return AppConfig{}, err
	}
	return ParseConfigWith(ctx, l)
} // .ParseConfig

func ParseConfigWith(ctx context.Context, l envconfig.Lookuper) (AppConfig, error) {

	var ac AppConfig
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &ac,
		Lookuper: l,
	}); err != nil {
		return AppConfig{}, err
	} // .if
	ac.settings = l

	applyFunctionAppSettings(&ac, l)

	for _, azc := range []*AzureStorageConfig{ac.IngestAzure, ac.ArchiveAzure} {
		if azc == nil {
			continue
		}
		if azc.ContainerEndpoint == "" && azc.StorageName != "" {
			azc.ContainerEndpoint = fmt.Sprintf("https://%s.blob.core.windows.net", azc.StorageName)
		}
		if err := azc.Check(); err != nil {
			return AppConfig{}, fmt.Errorf("missing required values for connecting to Azure: %w", err)
		}
	}

	if strings.TrimSpace(ac.IngestContainerName) == "" {
		return AppConfig{}, &MissingConfigError{ConfigName: "INGEST_CONTAINER_NAME"}
	}

	if !slices.Contains(archiveTiers, ac.Archive.Tier) {
		return AppConfig{}, &InvalidConfigError{ConfigName: "ARCHIVE_TIER", Value: ac.Archive.Tier, Allowed: archiveTiers}
	}

	return ac, nil
} // .ParseConfigWith

// applyFunctionAppSettings maps the setting names used by the original
// function app deployments onto the typed config.
func applyFunctionAppSettings(ac *AppConfig, l envconfig.Lookuper) {
	if v, ok := l.Lookup("IngestStorageConnection"); ok && ac.IngestAzure == nil {
		ac.IngestAzure = &AzureStorageConfig{ConnectionString: v}
	}
	if v, ok := l.Lookup("ArchiveStorageConnection"); ok && ac.ArchiveAzure == nil {
		ac.ArchiveAzure = &AzureStorageConfig{ConnectionString: v}
	}
	if v, ok := l.Lookup("IngestContainerName"); ok && v != "" {
		if _, set := l.Lookup("INGEST_CONTAINER_NAME"); !set {
			ac.IngestContainerName = v
		}
	}
}

// NewLookuper snapshots the process environment, overlaid by the settings
// file when a path is given.
func NewLookuper(settingsPath string) (envconfig.Lookuper, error) {
	env := map[string]string{}
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if ok {
			env[k] = v
		}
	}
	envLookuper := envconfig.MapLookuper(env)
	if settingsPath == "" {
		return envLookuper, nil
	}

	settings, err := LoadSettingsFile(settingsPath)
	if err != nil {
		return nil, err
	}
	logger.Info("loaded settings file", "path", settingsPath, "keys", len(settings))
	return envconfig.MultiLookuper(envconfig.MapLookuper(settings), envLookuper), nil
}

// LoadSettingsFile reads a flat JSON or YAML object of settings.
func LoadSettingsFile(path string) (map[string]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	raw := map[string]any{}
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse settings file %s: %w", path, err)
	}
	settings := make(map[string]string, len(raw))
	for k, v := range raw {
		switch v.(type) {
		case map[string]any, []any:
			return nil, fmt.Errorf("settings file %s: value of %s must be a scalar", path, k)
		case nil:
			settings[k] = ""
		default:
			settings[k] = fmt.Sprint(v)
		}
	}
	return settings, nil
}
