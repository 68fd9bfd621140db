// Package runtime implements the per-plugin Context handed to plugin
// code: configuration, path resolution, resource loading, and handler /
// endpoint bookkeeping for later teardown.
package runtime

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/HerbHall/botforge/internal/config"
	"github.com/HerbHall/botforge/internal/dispatch"
	"github.com/HerbHall/botforge/internal/gate"
	"github.com/HerbHall/botforge/internal/metrics"
	"github.com/HerbHall/botforge/internal/sched"
	"github.com/HerbHall/botforge/internal/storage"
	"github.com/HerbHall/botforge/pkg/models"
	"github.com/HerbHall/botforge/pkg/plugin"
	"go.uber.org/zap"
)

// Web is the narrow interface to the web collaborator. Registering the
// same path twice is last-wins in the collaborator, not re-validated here.
type Web interface {
	AddEndpoint(path string, handler http.HandlerFunc)
	RemoveEndpoint(path string)
}

// RegistryOps is the slice of the plugin registry exposed to contexts.
type RegistryOps interface {
	Active(name string) bool
	Enable(name string) error
	Disable(name string) error
}

// Services bundles the shared framework services a Context draws on.
type Services struct {
	Global       *config.Scope
	Storage      *storage.Gateway
	Dispatcher   *dispatch.Dispatcher
	Web          Web
	Scheduler    *sched.Scheduler
	Notifier     plugin.Notifier
	Messenger    plugin.Messenger
	Registry     RegistryOps
	Metrics      *metrics.Metrics
	Logger       *zap.Logger
	PluginsDir   string
	ResourcesDir string
}

// Compile-time interface guard.
var _ plugin.Context = (*Context)(nil)

// Context is the concrete plugin.Context. One instance exists per loaded
// plugin for the process lifetime; registrations made through it are
// tracked and undone on disable.
type Context struct {
	name   string
	svc    *Services
	cfg    *config.Scope
	gate   *gate.Gate
	db     plugin.Store
	sched  plugin.Scheduler
	logger *zap.Logger

	mu        sync.Mutex
	handlers  []*dispatch.Registration
	endpoints []string
}

// NewContext builds the Context for the named plugin. Constructing it
// eagerly creates the plugin's config scope, so the scope file exists
// from this point on.
func NewContext(name string, svc *Services) (*Context, error) {
	cfg, err := config.ForPlugin(filepath.Join(svc.PluginsDir, name, "config"), name)
	if err != nil {
		return nil, fmt.Errorf("plugin %q config: %w", name, err)
	}

	logger := svc.Logger.Named(name)
	return &Context{
		name:   name,
		svc:    svc,
		cfg:    cfg,
		gate:   gate.New(name, cfg, svc.Global, svc.Messenger, svc.Registry.Active, logger),
		db:     boundStore{gw: svc.Storage, owner: name},
		sched:  svc.Scheduler.Bind(name),
		logger: logger,
	}, nil
}

func (c *Context) Name() string { return c.name }

// Handle returns the trigger string: the config override when present,
// the plugin name otherwise.
func (c *Context) Handle() string {
	if h := c.cfg.GetString("handle"); h != "" {
		return strings.ToLower(h)
	}
	return c.name
}

func (c *Context) Category() string    { return c.cfg.GetString("category") }
func (c *Context) Description() string { return c.cfg.GetString("description") }

func (c *Context) Config() plugin.Config       { return c.cfg }
func (c *Context) GlobalConfig() plugin.Config { return c.svc.Global }

// RegisterHandler tracks the handler and forwards it to the dispatcher.
func (c *Context) RegisterHandler(h plugin.Handler) error {
	if h.Fn == nil {
		return fmt.Errorf("plugin %q: handler has no function", c.name)
	}

	reg := c.svc.Dispatcher.Add(c.name, h)

	c.mu.Lock()
	c.handlers = append(c.handlers, reg)
	c.mu.Unlock()
	return nil
}

// RegisterEndpoint tracks the endpoint and forwards it to the web
// collaborator. The path is normalized to begin with "/".
func (c *Context) RegisterEndpoint(path string, handler http.HandlerFunc) error {
	if handler == nil {
		return fmt.Errorf("plugin %q: endpoint %q has no handler", c.name, path)
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	c.svc.Web.AddEndpoint(path, handler)

	c.mu.Lock()
	c.endpoints = append(c.endpoints, path)
	c.mu.Unlock()

	c.logger.Info("endpoint added", zap.String("path", path))
	return nil
}

// Deregister removes every handler and endpoint this context registered.
// Called by the registry on disable and shutdown.
func (c *Context) Deregister() {
	c.mu.Lock()
	handlers := c.handlers
	endpoints := c.endpoints
	c.handlers = nil
	c.endpoints = nil
	c.mu.Unlock()

	for _, r := range handlers {
		c.svc.Dispatcher.Remove(r)
	}
	for _, path := range endpoints {
		c.svc.Web.RemoveEndpoint(path)
	}
}

// ResourcePath resolves the resource directory for the given plugin
// (default: this one).
func (c *Context) ResourcePath(pluginName ...string) string {
	return c.pluginDir("resources", pluginName)
}

// ConfigPath resolves the config directory for the given plugin.
func (c *Context) ConfigPath(pluginName ...string) string {
	return c.pluginDir("config", pluginName)
}

// DataPath resolves the data directory for the given plugin.
func (c *Context) DataPath(pluginName ...string) string {
	return c.pluginDir("data", pluginName)
}

func (c *Context) pluginDir(category string, pluginName []string) string {
	name := c.name
	if len(pluginName) > 0 && pluginName[0] != "" {
		name = strings.ToLower(pluginName[0])
	}
	return filepath.Join(c.svc.PluginsDir, name, category)
}

// Resource loads a file from a plugin's resource directory. Read
// failures are logged and forwarded to the notification channel, never
// raised to the caller.
func (c *Context) Resource(filename string, pluginName ...string) (string, bool) {
	return c.readFile(filepath.Join(c.ResourcePath(pluginName...), filename))
}

// GlobalResource loads a file from the shared resource directory.
func (c *Context) GlobalResource(filename string) (string, bool) {
	return c.readFile(filepath.Join(c.svc.ResourcesDir, filename))
}

func (c *Context) readFile(path string) (string, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		c.logger.Error("resource read failed", zap.String("path", path), zap.Error(err))
		c.svc.Notifier.Notify(err)
		return "", false
	}
	return string(data), true
}

// Usage loads the conventional "<name>.md" resource and substitutes the
// {{handle}} placeholder plus any caller-supplied pairs.
func (c *Context) Usage(replace map[string]string) (string, bool) {
	text, ok := c.Resource(c.name + ".md")
	if !ok {
		return "", false
	}

	text = strings.ReplaceAll(text, "{{handle}}", c.Handle())
	for placeholder, value := range replace {
		text = strings.ReplaceAll(text, placeholder, value)
	}
	return text, true
}

func (c *Context) DB() plugin.Store            { return c.db }
func (c *Context) Scheduler() plugin.Scheduler { return c.sched }
func (c *Context) Notify(v any) any            { return c.svc.Notifier.Notify(v) }
func (c *Context) Messenger() plugin.Messenger { return c.svc.Messenger }

func (c *Context) ActivePlugin(name string) bool {
	return c.svc.Registry.Active(strings.ToLower(name))
}

func (c *Context) EnablePlugin(name string) error {
	return c.svc.Registry.Enable(strings.ToLower(name))
}

func (c *Context) DisablePlugin(name string) error {
	return c.svc.Registry.Disable(strings.ToLower(name))
}

// RemoveMessage schedules a one-shot job deleting msg after the given
// delay. inPrivate and inPublic gate removal on the chat type.
func (c *Context) RemoveMessage(msg *models.Message, after time.Duration, inPrivate, inPublic bool) {
	if msg == nil {
		return
	}

	isPrivate := msg.Chat.Type.IsPrivate()
	if (isPrivate && !inPrivate) || (!isPrivate && !inPublic) {
		return
	}

	chatID, messageID := msg.Chat.ID, msg.ID
	c.sched.RunOnce(func(ctx context.Context, _ any) {
		if err := c.svc.Messenger.DeleteMessage(ctx, chatID, messageID); err != nil {
			c.logger.Error("not possible to remove message",
				zap.Int64("chat_id", chatID),
				zap.Int64("message_id", messageID),
				zap.Error(err),
			)
		}
	}, time.Now().Add(after), nil, "")
}

// Detach runs fn on an unsupervised goroutine. Panics are logged and
// dropped; there is no join and no error propagation.
func (c *Context) Detach(fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("detached task panicked", zap.Any("panic", r))
			}
		}()
		fn()
	}()
}

func (c *Context) Private() plugin.Middleware      { return c.gate.Private() }
func (c *Context) Public() plugin.Middleware       { return c.gate.Public() }
func (c *Context) OwnerOnly() plugin.Middleware    { return c.gate.OwnerOnly() }
func (c *Context) Dependencies() plugin.Middleware { return c.gate.Dependencies() }
func (c *Context) Typing() plugin.Middleware       { return c.gate.Typing() }

// boundStore fills in the owning plugin on targets that name none.
type boundStore struct {
	gw    *storage.Gateway
	owner string
}

func (b boundStore) Execute(ctx context.Context, stmt string, params []any, t plugin.Target) plugin.Result {
	return b.gw.Execute(ctx, stmt, params, b.bind(t))
}

func (b boundStore) TableExists(ctx context.Context, table string, t plugin.Target) bool {
	return b.gw.TableExists(ctx, table, b.bind(t))
}

func (b boundStore) bind(t plugin.Target) plugin.Target {
	if !t.Global && t.Plugin == "" {
		t.Plugin = b.owner
	}
	return t
}
