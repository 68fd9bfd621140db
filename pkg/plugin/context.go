package plugin

import (
	"context"
	"net/http"
	"time"

	"github.com/HerbHall/botforge/pkg/models"
)

// Config abstracts configuration access. Wraps Viper today, replaceable
// later. Lookup is by a path of one or more keys; absent keys yield zero
// values, never errors.
type Config interface {
	Get(keys ...string) any
	GetString(keys ...string) string
	GetBool(keys ...string) bool
	GetInt(keys ...string) int
	GetDuration(keys ...string) time.Duration
	GetInt64s(keys ...string) []int64
	GetStrings(keys ...string) []string
	IsSet(keys ...string) bool

	// IsFalse reports whether the key is present AND explicitly false.
	// The visibility and owner filters bypass only on explicit false,
	// so absence must be distinguishable from false.
	IsFalse(keys ...string) bool
}

// Target identifies the storage location an operation runs against.
// The zero value targets the calling plugin's default database.
type Target struct {
	// Global selects the single shared database used for cross-cutting
	// tables. Plugin and DB are ignored when set.
	Global bool

	// Plugin overrides the owning plugin name for path resolution.
	Plugin string

	// DB overrides the database file name. A ".db" suffix is appended
	// when missing.
	DB string
}

// Result is the structured outcome of a storage operation. Storage errors
// never propagate past the gateway boundary; they come back here.
type Result struct {
	Success bool
	Rows    [][]any
	Message string
}

// Store executes statements against per-plugin or global storage.
type Store interface {
	Execute(ctx context.Context, stmt string, params []any, target Target) Result
	TableExists(ctx context.Context, table string, target Target) bool
}

// JobFunc is a scheduled callback. payload is the opaque value supplied
// at scheduling time.
type JobFunc func(ctx context.Context, payload any)

// Job is a handle to a scheduled unit of work. Cancellation is
// cooperative: it prevents future executions but does not interrupt a
// running invocation.
type Job interface {
	ID() string
	Name() string
	Payload() any
	Cancel()
}

// Scheduler registers named one-shot and repeating jobs. Job names are
// not unique; callers needing single-instance semantics must check
// Jobs themselves.
type Scheduler interface {
	RunOnce(fn JobFunc, when time.Time, payload any, name string) Job
	RunRepeating(fn JobFunc, interval, first time.Duration, payload any, name string) Job
	Jobs(name ...string) []Job
}

// Messenger is the narrow outbound interface to the transport collaborator.
type Messenger interface {
	SendMessage(ctx context.Context, chatID int64, text string) (*models.Message, error)
	DeleteMessage(ctx context.Context, chatID, messageID int64) error
	SendAction(ctx context.Context, chatID int64, action string) error
}

// ActionTyping is the courtesy chat action sent while a handler works.
const ActionTyping = "typing"

// Notifier fans diagnostic payloads out to the configured admin set.
// Best effort: failures are logged, never escalated, and the input is
// always returned unchanged so Notify can be used inline.
type Notifier interface {
	Notify(v any) any
}

// Context is the per-plugin view of the framework, handed to Setup.
// Registrations made through it are tracked and undone on disable.
type Context interface {
	// Identity and display metadata. Handle falls back to Name when the
	// plugin config defines no override.
	Name() string
	Handle() string
	Category() string
	Description() string

	// Config scopes. GlobalConfig is read-only from plugin code.
	Config() Config
	GlobalConfig() Config

	// Registration. Both track the registration for teardown and
	// forward it to the external collaborator.
	RegisterHandler(h Handler) error
	RegisterEndpoint(path string, handler http.HandlerFunc) error

	// Path resolution. With no argument the helpers resolve for this
	// plugin; pure for the same inputs.
	ResourcePath(pluginName ...string) string
	ConfigPath(pluginName ...string) string
	DataPath(pluginName ...string) string

	// Resource loading. Read failures are logged and forwarded to the
	// notification channel; the second return is false and text empty.
	Resource(filename string, pluginName ...string) (string, bool)
	GlobalResource(filename string) (string, bool)

	// Usage loads the plugin's conventional "<name>.md" resource,
	// substitutes {{handle}} and any supplied placeholder pairs.
	Usage(replace map[string]string) (string, bool)

	// Services.
	DB() Store
	Scheduler() Scheduler
	Notify(v any) any
	Messenger() Messenger

	// Registry access.
	ActivePlugin(name string) bool
	EnablePlugin(name string) error
	DisablePlugin(name string) error

	// RemoveMessage deletes msg after the given delay, gated on the
	// chat type: inPrivate/inPublic select where removal applies.
	RemoveMessage(msg *models.Message, after time.Duration, inPrivate, inPublic bool)

	// Detach runs fn on an unsupervised goroutine: no join, no error
	// propagation. A deliberate escape hatch for non-critical
	// background work only.
	Detach(fn func())

	// Authorization filters, bound to this plugin's config.
	Private() Middleware
	Public() Middleware
	OwnerOnly() Middleware
	Dependencies() Middleware
	Typing() Middleware
}
