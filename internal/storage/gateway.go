// Package storage implements the gateway through which plugins reach
// their SQLite databases. Statements go in, structured results come out;
// storage errors never propagate past this boundary.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/HerbHall/botforge/internal/metrics"
	"github.com/HerbHall/botforge/pkg/plugin"
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

// Compile-time interface guard.
var _ plugin.Store = (*Gateway)(nil)

const (
	// GlobalDBFile is the single well-known database shared by all
	// plugins for cross-cutting tables.
	GlobalDBFile = "global.db"

	// probeFile holds the shared schema-catalog probe statement.
	probeFile = "table_exists.sql"

	defaultTimeout = 5 * time.Second
)

// Gateway resolves storage targets to physical SQLite files and executes
// statements against them. Every call opens its own connection and closes
// it on all exit paths.
type Gateway struct {
	pluginsDir   string // root of the per-plugin tree
	globalDir    string // directory of the shared global database
	resourcesDir string // global resources (probe script)
	global       plugin.Config
	notifier     plugin.Notifier
	metrics      *metrics.Metrics
	logger       *zap.Logger
}

// New creates a Gateway rooted at the given directories.
func New(pluginsDir, globalDir, resourcesDir string, global plugin.Config, notifier plugin.Notifier, m *metrics.Metrics, logger *zap.Logger) *Gateway {
	return &Gateway{
		pluginsDir:   pluginsDir,
		globalDir:    globalDir,
		resourcesDir: resourcesDir,
		global:       global,
		notifier:     notifier,
		metrics:      m,
		logger:       logger,
	}
}

// Resolve returns the physical database path for a target. Default
// database name is "<plugin>.db"; explicit names get the same suffix
// appended when missing.
func (g *Gateway) Resolve(t plugin.Target) (string, error) {
	if t.Global {
		return filepath.Join(g.globalDir, GlobalDBFile), nil
	}

	name := strings.ToLower(t.Plugin)
	if name == "" {
		return "", fmt.Errorf("storage target has no plugin name")
	}

	db := t.DB
	if db == "" {
		db = name + ".db"
	} else if !strings.HasSuffix(strings.ToLower(db), ".db") {
		db += ".db"
	}

	return filepath.Join(g.pluginsDir, name, "data", db), nil
}

// Execute runs one statement with parameters against the resolved target
// and returns a structured result. With storage globally disabled it
// returns a failed result without touching disk.
func (g *Gateway) Execute(ctx context.Context, stmt string, params []any, t plugin.Target) plugin.Result {
	if !g.global.GetBool("database", "use_db") {
		return plugin.Result{Success: false, Message: "Database disabled"}
	}

	g.metrics.StorageQueries.WithLabelValues(targetLabel(t)).Inc()

	path, err := g.Resolve(t)
	if err != nil {
		return g.fail(err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return g.fail(fmt.Errorf("create data dir: %w", err))
	}

	timeout := g.timeout()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	db, err := g.open(ctx, path, timeout)
	if err != nil {
		return g.fail(err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, stmt, params...)
	if err != nil {
		return g.fail(fmt.Errorf("execute statement: %w", err))
	}
	defer rows.Close()

	collected, err := collect(rows)
	if err != nil {
		return g.fail(fmt.Errorf("read rows: %w", err))
	}

	return plugin.Result{Success: true, Rows: collected}
}

// TableExists reports whether the named table exists in the target's
// schema catalog. A missing database file is a negative-but-valid case
// and returns false without logging; a failed probe on an existing file
// logs, notifies, and still returns false.
func (g *Gateway) TableExists(ctx context.Context, table string, t plugin.Target) bool {
	path, err := g.Resolve(t)
	if err != nil {
		g.report(err)
		return false
	}
	if _, err := os.Stat(path); err != nil {
		return false
	}

	probe, err := os.ReadFile(filepath.Join(g.resourcesDir, probeFile))
	if err != nil {
		g.report(fmt.Errorf("read probe statement: %w", err))
		return false
	}

	timeout := g.timeout()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	db, err := g.open(ctx, path, timeout)
	if err != nil {
		g.report(err)
		return false
	}
	defer db.Close()

	var name string
	err = db.QueryRowContext(ctx, string(probe), table).Scan(&name)
	switch {
	case err == sql.ErrNoRows:
		return false
	case err != nil:
		g.report(fmt.Errorf("probe table %q: %w", table, err))
		return false
	}
	return true
}

// open establishes a single-connection handle with the busy timeout
// applied. SQLite performs best with one write connection.
func (g *Gateway) open(ctx context.Context, path string, timeout time.Duration) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	pragma := fmt.Sprintf("PRAGMA busy_timeout=%d", timeout.Milliseconds())
	if _, err := db.ExecContext(ctx, pragma); err != nil {
		db.Close()
		return nil, fmt.Errorf("exec %q: %w", pragma, err)
	}
	return db, nil
}

// timeout reads database.timeout (seconds) from the global scope.
func (g *Gateway) timeout() time.Duration {
	if secs := g.global.GetInt("database", "timeout"); secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return defaultTimeout
}

func (g *Gateway) fail(err error) plugin.Result {
	g.report(err)
	return plugin.Result{Success: false, Message: err.Error()}
}

func (g *Gateway) report(err error) {
	g.metrics.StorageErrors.Inc()
	g.logger.Error("storage gateway error", zap.Error(err))
	g.notifier.Notify(err)
}

// collect fetches all result rows generically, preserving the
// statement's defined row order. No rows yields nil.
func collect(rows *sql.Rows) ([][]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out [][]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		out = append(out, vals)
	}
	return out, rows.Err()
}

func targetLabel(t plugin.Target) string {
	if t.Global {
		return "global"
	}
	return "plugin"
}
