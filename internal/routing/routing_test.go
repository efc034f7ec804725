package routing

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapContainers map[string]string

func (m mapContainers) ContainerName(key string) (string, error) {
	v, ok := m[key]
	if !ok {
		return "", fmt.Errorf("missing %s", key)
	}
	return v, nil
}

func TestDefaultTableResolve(t *testing.T) {
	r := NewResolver(DefaultTable(), nil)

	cases := map[string]Destination{
		"audit_log_kpmgukdsp_20240101.csv": {"sap-dsp", "audit"},
		"EVENT_LOG_KPMGUKDSP_1.json":       {"sap-dsp", "event"},
		"app_log_kpmgukdsp.log":            {"sap-dsp", "spaces-db"},
		"audit_log_kpmgukcis_x":            {"sap-cis", "audit"},
		"event_log_kpmgukcis_x":            {"sap-cis", "event"},
		"Audit_Log_KpmgukIag.txt":          {"sap-iag", "audit"},
		"event_log_kpmgukiag":              {"sap-iag", "event"},
		"audit_log_kpmgukmrm":              {"sap-mrm", "audit"},
		"event_log_kpmgukmrm.gz":           {"sap-mrm", "event"},
		"audit_log_kpmguks4_2024.csv":      {"sap-btp-abap", "audit"},
		"event_log_kpmguks4":               {"sap-btp-abap", "event"},
	}
	for name, expected := range cases {
		t.Run(name, func(t *testing.T) {
			d, err := r.Resolve(name)
			require.NoError(t, err)
			assert.Equal(t, expected, d)
		})
	}
}

func TestResolveFallback(t *testing.T) {
	r := NewResolver(DefaultTable(), nil)
	for _, name := range []string{"eventlog", "", "x_audit_log_kpmgukdsp", "audit_log_kpmguk", "日本語.csv"} {
		d, err := r.Resolve(name)
		require.NoError(t, err)
		assert.Equal(t, Destination{"other", "misc"}, d, name)
	}
}

func TestOverlappingPrefixesFirstRuleWins(t *testing.T) {
	short := Rule{Prefix: "audit_log", Container: "generic", Subfolder: "audit"}
	long := Rule{Prefix: "audit_log_kpmgukdsp", Container: "sap-dsp", Subfolder: "audit"}
	fallback := Destination{"other", "misc"}

	shortFirst := Table{Rules: []Rule{short, long}, Fallback: fallback}
	assert.Equal(t, Destination{"generic", "audit"}, shortFirst.Match("audit_log_kpmgukdsp_1.csv"))

	longFirst := Table{Rules: []Rule{long, short}, Fallback: fallback}
	assert.Equal(t, Destination{"sap-dsp", "audit"}, longFirst.Match("audit_log_kpmgukdsp_1.csv"))
	assert.Equal(t, Destination{"generic", "audit"}, longFirst.Match("audit_log_other.csv"))
}

func TestIndirectContainers(t *testing.T) {
	table := Table{
		Rules: []Rule{
			{Prefix: "audit_log_kpmgukdsp", Container: "SapDspContainer", Subfolder: "audit"},
			{Prefix: "audit_log_kpmgukcis", Container: "SapCisContainer", Subfolder: "audit"},
		},
		Fallback: Destination{"DefaultArchiveContainer", "misc"},
	}
	r := NewResolver(table, mapContainers{
		"SapDspContainer":         "archive-dsp",
		"DefaultArchiveContainer": "archive-other",
	})

	d, err := r.Resolve("audit_log_kpmgukdsp_1.csv")
	require.NoError(t, err)
	assert.Equal(t, Destination{"archive-dsp", "audit"}, d)

	d, err = r.Resolve("random.bin")
	require.NoError(t, err)
	assert.Equal(t, Destination{"archive-other", "misc"}, d)

	_, err = r.Resolve("audit_log_kpmgukcis_1.csv")
	var unresolvable *UnresolvableDestinationError
	require.True(t, errors.As(err, &unresolvable))
	assert.Equal(t, "SapCisContainer", unresolvable.ContainerKey)
	assert.Equal(t, "audit_log_kpmgukcis_1.csv", unresolvable.BlobName)
}

func TestParseTableKeepsJSONOrder(t *testing.T) {
	b := []byte(`{
  "event_log_kpmgukdsp": ["SapDspContainer", "event"],
  "audit_log": ["Generic", "audit"],
  "audit_log_kpmgukdsp": ["SapDspContainer", "audit"]
}`)
	table, err := ParseTable(b, Destination{"DefaultArchiveContainer", "misc"})
	require.NoError(t, err)
	require.Len(t, table.Rules, 3)
	assert.Equal(t, "event_log_kpmgukdsp", table.Rules[0].Prefix)
	assert.Equal(t, "audit_log", table.Rules[1].Prefix)
	assert.Equal(t, "audit_log_kpmgukdsp", table.Rules[2].Prefix)

	// the shorter prefix was declared first
	assert.Equal(t, Destination{"Generic", "audit"}, table.Match("audit_log_kpmgukdsp_2024.csv"))
}

func TestParseTableYAMLList(t *testing.T) {
	b := []byte(`
- prefix: AUDIT_LOG_KPMGUKDSP
  container: sap-dsp
  subfolder: audit
- prefix: event_log_kpmgukdsp
  container: sap-dsp
  subfolder: event
`)
	table, err := ParseTable(b, Destination{"other", "misc"})
	require.NoError(t, err)
	assert.Equal(t, Destination{"sap-dsp", "audit"}, table.Match("audit_log_kpmgukdsp.csv"))
	assert.Equal(t, Destination{"other", "misc"}, table.Match("nope"))
}

func TestParseTableRejectsBadInput(t *testing.T) {
	fallback := Destination{"other", "misc"}
	cases := map[string]string{
		"empty":         ``,
		"scalar":        `hello`,
		"short pair":    `{"a": ["only-container"]}`,
		"empty prefix":  `[{"prefix": "", "container": "c", "subfolder": "s"}]`,
		"no subfolder":  `[{"prefix": "a", "container": "c"}]`,
		"duplicate":     `{"a": ["c", "s"], "A": ["c", "t"]}`,
		"scalar in map": `{"a": "c"}`,
		"not yaml":      `{"a": [`,
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseTable([]byte(in), fallback)
			assert.Error(t, err)
		})
	}
}

func TestLoadTable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "archive_map.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"audit_log_kpmgukdsp": ["SapDspContainer", "audit"]}`), 0644))

	table, err := LoadTable(path, Destination{"DefaultArchiveContainer", "misc"})
	require.NoError(t, err)
	assert.Equal(t, []Rule{{Prefix: "audit_log_kpmgukdsp", Container: "SapDspContainer", Subfolder: "audit"}}, table.Rules)

	_, err = LoadTable(filepath.Join(dir, "missing.json"), Destination{"x", "y"})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDestinations(t *testing.T) {
	ds := DefaultTable().Destinations()
	assert.Len(t, ds, 12)
	assert.Equal(t, Destination{"other", "misc"}, ds[len(ds)-1])
}
