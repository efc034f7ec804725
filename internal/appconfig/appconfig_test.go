package appconfig

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfigDefaults(t *testing.T) {
	ac, err := ParseConfigWith(context.Background(), envconfig.MapLookuper(map[string]string{}))
	require.NoError(t, err)

	assert.Equal(t, "production", ac.IngestContainerName)
	assert.Equal(t, "8080", ac.ServerPort)
	assert.Equal(t, time.Second, ac.Archive.PollInterval)
	assert.Equal(t, 30, ac.Archive.MaxPolls)
	assert.Equal(t, "Archive", ac.Archive.Tier)
	assert.Equal(t, "DefaultArchiveContainer", ac.Archive.DefaultContainerKey)
	assert.Nil(t, ac.IngestAzure)
	assert.Nil(t, ac.ArchiveAzure)
	assert.Nil(t, ac.SubscriberConnection)
}

func TestParseConfigAzure(t *testing.T) {
	ac, err := ParseConfigWith(context.Background(), envconfig.MapLookuper(map[string]string{
		"INGEST_AZURE_STORAGE_ACCOUNT":    "ingestacct",
		"INGEST_AZURE_STORAGE_KEY":        "a2V5",
		"ARCHIVE_AZURE_CONNECTION_STRING": "UseDevelopmentStorage=true",
		"INGEST_CONTAINER_NAME":           "landing",
		"ARCHIVE_MAX_POLLS":               "5",
		"SUBSCRIBER_CONNECTION_STRING":    "Endpoint=sb://x/",
		"SUBSCRIBER_TOPIC":                "blob-created",
		"SUBSCRIBER_SUBSCRIPTION":         "archive",
	}))
	require.NoError(t, err)

	require.NotNil(t, ac.IngestAzure)
	assert.Equal(t, "https://ingestacct.blob.core.windows.net", ac.IngestAzure.ContainerEndpoint)
	require.NotNil(t, ac.ArchiveAzure)
	assert.Equal(t, "UseDevelopmentStorage=true", ac.ArchiveAzure.ConnectionString)
	assert.Equal(t, "landing", ac.IngestContainerName)
	assert.Equal(t, 5, ac.Archive.MaxPolls)
	require.NotNil(t, ac.SubscriberConnection)
	assert.Equal(t, "archive", ac.SubscriberConnection.Subscription)
}

func TestParseConfigFunctionAppSettings(t *testing.T) {
	ac, err := ParseConfigWith(context.Background(), envconfig.MapLookuper(map[string]string{
		"IngestStorageConnection":  "DefaultEndpointsProtocol=https;AccountName=in",
		"ArchiveStorageConnection": "DefaultEndpointsProtocol=https;AccountName=out",
		"IngestContainerName":      "production-2",
		"SapDspContainer":          "sap-dsp",
	}))
	require.NoError(t, err)

	assert.Equal(t, "DefaultEndpointsProtocol=https;AccountName=in", ac.IngestAzure.ConnectionString)
	assert.Equal(t, "DefaultEndpointsProtocol=https;AccountName=out", ac.ArchiveAzure.ConnectionString)
	assert.Equal(t, "production-2", ac.IngestContainerName)

	name, err := ac.ContainerName("SapDspContainer")
	require.NoError(t, err)
	assert.Equal(t, "sap-dsp", name)

	_, err = ac.ContainerName("SapCisContainer")
	var missing *MissingConfigError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "SapCisContainer", missing.ConfigName)
}

func TestParseConfigMissingAzureAccount(t *testing.T) {
	_, err := ParseConfigWith(context.Background(), envconfig.MapLookuper(map[string]string{
		"INGEST_AZURE_STORAGE_KEY": "a2V5",
	}))
	var missing *MissingConfigError
	assert.True(t, errors.As(err, &missing))
}

func TestSettingsFileOverridesEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
  "INGEST_CONTAINER_NAME": "from-file",
  "DefaultArchiveContainer": "other",
  "ARCHIVE_MAX_POLLS": 12
}`), 0644))
	t.Setenv("INGEST_CONTAINER_NAME", "from-env")
	t.Setenv("SERVER_PORT", "9999")

	ac, err := ParseConfig(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, "from-file", ac.IngestContainerName)
	assert.Equal(t, "9999", ac.ServerPort)
	assert.Equal(t, 12, ac.Archive.MaxPolls)
	name, err := ac.ContainerName("DefaultArchiveContainer")
	require.NoError(t, err)
	assert.Equal(t, "other", name)

	// the process environment is left alone
	assert.Equal(t, "from-env", os.Getenv("INGEST_CONTAINER_NAME"))
	_, set := os.LookupEnv("DefaultArchiveContainer")
	assert.False(t, set)
}

func TestLoadSettingsFileRejectsNested(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"a": {"b": 1}}`), 0644))

	_, err := LoadSettingsFile(path)
	assert.Error(t, err)
}

func TestParseConfigRejectsUnknownTier(t *testing.T) {
	for _, tier := range []string{"cold", "Hot", "archive"} {
		_, err := ParseConfigWith(context.Background(), envconfig.MapLookuper(map[string]string{
			"ARCHIVE_TIER": tier,
		}))
		var invalid *InvalidConfigError
		require.True(t, errors.As(err, &invalid), tier)
		assert.Equal(t, "ARCHIVE_TIER", invalid.ConfigName)
		assert.Equal(t, tier, invalid.Value)
	}

	ac, err := ParseConfigWith(context.Background(), envconfig.MapLookuper(map[string]string{
		"ARCHIVE_TIER": "Cold",
	}))
	require.NoError(t, err)
	assert.Equal(t, "Cold", ac.Archive.Tier)
}
