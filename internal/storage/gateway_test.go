package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/HerbHall/botforge/internal/config"
	"github.com/HerbHall/botforge/internal/metrics"
	"github.com/HerbHall/botforge/internal/testutil"
	"github.com/HerbHall/botforge/pkg/plugin"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const probeStmt = "SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?\n"

func newGateway(t *testing.T, useDB bool) (*Gateway, *testutil.MockNotifier) {
	t.Helper()

	root := t.TempDir()
	pluginsDir := filepath.Join(root, "plugins")
	globalDir := filepath.Join(root, "data")
	resourcesDir := filepath.Join(root, "resources")

	require.NoError(t, os.MkdirAll(resourcesDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(resourcesDir, "table_exists.sql"), []byte(probeStmt), 0o644))

	v := viper.New()
	v.Set("database.use_db", useDB)
	v.Set("database.timeout", 5)

	notifier := testutil.NewMockNotifier()
	g := New(pluginsDir, globalDir, resourcesDir, config.New(v), notifier, metrics.New(), testutil.Logger())
	return g, notifier
}

func TestResolve(t *testing.T) {
	g, _ := newGateway(t, true)

	tests := []struct {
		name   string
		target plugin.Target
		suffix string
	}{
		{"default db name", plugin.Target{Plugin: "weather"}, filepath.Join("plugins", "weather", "data", "weather.db")},
		{"explicit db name", plugin.Target{Plugin: "weather", DB: "history"}, filepath.Join("plugins", "weather", "data", "history.db")},
		{"suffix kept", plugin.Target{Plugin: "weather", DB: "history.db"}, filepath.Join("plugins", "weather", "data", "history.db")},
		{"name lowercased", plugin.Target{Plugin: "Weather"}, filepath.Join("plugins", "weather", "data", "weather.db")},
		{"global", plugin.Target{Global: true}, filepath.Join("data", GlobalDBFile)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, err := g.Resolve(tt.target)
			require.NoError(t, err)
			assert.True(t, strings.HasSuffix(path, tt.suffix), "Resolve() = %q, want suffix %q", path, tt.suffix)
		})
	}

	_, err := g.Resolve(plugin.Target{})
	assert.Error(t, err, "target without plugin name or global flag")
}

func TestExecuteDisabled(t *testing.T) {
	g, notifier := newGateway(t, false)

	res := g.Execute(context.Background(), "CREATE TABLE t (x)", nil, plugin.Target{Plugin: "weather"})
	assert.False(t, res.Success)
	assert.Equal(t, "Database disabled", res.Message)
	assert.Empty(t, notifier.Notified(), "disabled storage is not an error condition")

	// Nothing may touch the disk.
	_, err := os.Stat(filepath.Join(g.pluginsDir, "weather"))
	assert.True(t, os.IsNotExist(err))
}

func TestExecuteRoundTrip(t *testing.T) {
	g, notifier := newGateway(t, true)
	ctx := context.Background()
	target := plugin.Target{Plugin: "weather"}

	res := g.Execute(ctx, "CREATE TABLE readings (city TEXT, temp INTEGER)", nil, target)
	require.True(t, res.Success, "create: %s", res.Message)

	res = g.Execute(ctx, "INSERT INTO readings (city, temp) VALUES (?, ?)", []any{"vienna", 21}, target)
	require.True(t, res.Success, "insert: %s", res.Message)

	res = g.Execute(ctx, "SELECT city, temp FROM readings", nil, target)
	require.True(t, res.Success, "select: %s", res.Message)
	require.Len(t, res.Rows, 1)
	require.Len(t, res.Rows[0], 2)
	assert.Equal(t, "vienna", res.Rows[0][0])
	assert.EqualValues(t, 21, res.Rows[0][1])

	assert.Empty(t, notifier.Notified())
}

func TestExecuteEmptyResult(t *testing.T) {
	g, _ := newGateway(t, true)
	ctx := context.Background()
	target := plugin.Target{Plugin: "weather"}

	res := g.Execute(ctx, "CREATE TABLE readings (city TEXT)", nil, target)
	require.True(t, res.Success)

	res = g.Execute(ctx, "SELECT city FROM readings", nil, target)
	assert.True(t, res.Success, "empty result set is a successful query")
	assert.Empty(t, res.Rows)
}

func TestExecuteFailureNotifies(t *testing.T) {
	g, notifier := newGateway(t, true)

	res := g.Execute(context.Background(), "SELEKT broken", nil, plugin.Target{Plugin: "weather"})
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Message)
	assert.Len(t, notifier.Notified(), 1)
}

func TestTableExists(t *testing.T) {
	g, notifier := newGateway(t, true)
	ctx := context.Background()
	target := plugin.Target{Plugin: "weather"}

	// Missing database file: negative but valid, no report.
	assert.False(t, g.TableExists(ctx, "readings", target))
	assert.Empty(t, notifier.Notified())

	res := g.Execute(ctx, "CREATE TABLE readings (city TEXT)", nil, target)
	require.True(t, res.Success)

	assert.True(t, g.TableExists(ctx, "readings", target))
	assert.False(t, g.TableExists(ctx, "nope", target))
	assert.Empty(t, notifier.Notified())
}

func TestTableExistsMissingProbe(t *testing.T) {
	g, notifier := newGateway(t, true)
	ctx := context.Background()
	target := plugin.Target{Plugin: "weather"}

	res := g.Execute(ctx, "CREATE TABLE readings (city TEXT)", nil, target)
	require.True(t, res.Success)

	require.NoError(t, os.Remove(filepath.Join(g.resourcesDir, "table_exists.sql")))

	assert.False(t, g.TableExists(ctx, "readings", target))
	assert.Len(t, notifier.Notified(), 1, "probe failure on an existing file must be reported")
}

func TestExecuteGlobalTarget(t *testing.T) {
	g, _ := newGateway(t, true)
	ctx := context.Background()

	res := g.Execute(ctx, "CREATE TABLE shared (k TEXT)", nil, plugin.Target{Global: true})
	require.True(t, res.Success, "create: %s", res.Message)

	_, err := os.Stat(filepath.Join(g.globalDir, GlobalDBFile))
	assert.NoError(t, err, "global database file must live in the global dir")
}
