// Package registry manages the plugin lifecycle: loading, the active
// set, and enable/disable transitions. A plugin whose setup fails is
// isolated; a name collision is a fatal configuration error.
package registry

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/HerbHall/botforge/internal/runtime"
	"github.com/HerbHall/botforge/pkg/plugin"
	"go.uber.org/zap"
)

// Compile-time interface guard.
var _ runtime.RegistryOps = (*Registry)(nil)

type entry struct {
	plugin    plugin.Plugin
	ctx       *runtime.Context
	active    bool
	setupDone bool
}

// Registry holds all loaded plugins and their contexts. Mutation happens
// only under the registry lock; enable/disable may be triggered by a
// handler running concurrently with dispatch of other plugins.
type Registry struct {
	mu      sync.RWMutex
	svc     *runtime.Services
	entries map[string]*entry
	order   []string
	logger  *zap.Logger

	// activeSet is a lock-free snapshot of the active plugin names so
	// Active can be called from inside setup and from handlers without
	// touching the registry lock.
	activeSet atomic.Pointer[map[string]bool]
}

// New creates a Registry and wires itself into the shared services so
// plugin contexts can reach back for enable/disable and active lookups.
func New(svc *runtime.Services, logger *zap.Logger) *Registry {
	r := &Registry{
		svc:     svc,
		entries: make(map[string]*entry),
		logger:  logger,
	}
	svc.Registry = r
	return r
}

// Load constructs and sets up the given plugins in order. Name
// collisions and malformed names abort the whole load; a setup failure
// is logged, notified, and excludes only that plugin from the active
// set.
func (r *Registry) Load(ctx context.Context, ps ...plugin.Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range ps {
		name := p.Name()
		if name == "" {
			return fmt.Errorf("plugin with empty name")
		}
		if name != strings.ToLower(name) {
			return fmt.Errorf("plugin name %q must be lowercase", name)
		}
		if _, dup := r.entries[name]; dup {
			return fmt.Errorf("plugin name collision: %q already loaded", name)
		}
		// Reserve the name so collisions inside this batch fail too.
		r.entries[name] = nil
	}

	for _, p := range ps {
		name := p.Name()
		pctx, err := runtime.NewContext(name, r.svc)
		if err != nil {
			delete(r.entries, name)
			return err
		}

		e := &entry{plugin: p, ctx: pctx}
		r.entries[name] = e
		r.order = append(r.order, name)

		if err := r.setup(ctx, e); err != nil {
			r.logger.Error("plugin setup failed, excluded from active set",
				zap.String("plugin", name),
				zap.Error(err),
			)
			r.svc.Notifier.Notify(err)
			continue
		}

		e.active = true
		r.publish()
		r.logger.Info("plugin loaded",
			zap.String("plugin", name),
			zap.String("handle", pctx.Handle()),
		)
	}
	return nil
}

// setup runs the plugin's setup phase with panic containment. On failure
// any half-made registrations are rolled back.
func (r *Registry) setup(ctx context.Context, e *entry) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("setup panicked: %v", rec)
		}
		if err != nil {
			e.ctx.Deregister()
		}
	}()

	if err = e.plugin.Setup(ctx, e.ctx); err != nil {
		return fmt.Errorf("setup: %w", err)
	}
	if v, ok := e.plugin.(plugin.Validator); ok {
		if err = v.ValidateConfig(); err != nil {
			return fmt.Errorf("config validation: %w", err)
		}
	}

	e.setupDone = true
	return nil
}

// Enable transitions an inactive plugin back into the active set by
// re-running its setup phase.
func (r *Registry) Enable(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[name]
	if !ok || e == nil {
		return fmt.Errorf("unknown plugin %q", name)
	}
	if e.active {
		return nil
	}

	if err := r.setup(context.Background(), e); err != nil {
		return fmt.Errorf("enable %q: %w", name, err)
	}
	e.active = true
	r.publish()
	r.logger.Info("plugin enabled", zap.String("plugin", name))
	return nil
}

// Disable removes a plugin from the active set, deregistering its
// handlers and endpoints. Teardown is skipped if setup never completed.
func (r *Registry) Disable(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.disable(name)
}

func (r *Registry) disable(name string) error {
	e, ok := r.entries[name]
	if !ok || e == nil {
		return fmt.Errorf("unknown plugin %q", name)
	}
	if !e.active {
		return nil
	}

	if e.setupDone {
		r.teardown(name, e)
	}
	e.ctx.Deregister()
	e.active = false
	e.setupDone = false
	r.publish()
	r.logger.Info("plugin disabled", zap.String("plugin", name))
	return nil
}

func (r *Registry) teardown(name string, e *entry) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("teardown panicked",
				zap.String("plugin", name),
				zap.Any("panic", rec),
			)
		}
	}()
	if err := e.plugin.Teardown(); err != nil {
		r.logger.Error("teardown failed", zap.String("plugin", name), zap.Error(err))
	}
}

// publish refreshes the lock-free active snapshot. Caller holds r.mu.
func (r *Registry) publish() {
	m := make(map[string]bool, len(r.order))
	for _, name := range r.order {
		if e := r.entries[name]; e != nil && e.active {
			m[name] = true
		}
	}
	r.activeSet.Store(&m)
}

// Active reports whether the named plugin is in the active set.
func (r *Registry) Active(name string) bool {
	m := r.activeSet.Load()
	if m == nil {
		return false
	}
	return (*m)[name]
}

// List returns the active set in deterministic load order.
func (r *Registry) List() []plugin.Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]plugin.Plugin, 0, len(r.order))
	for _, name := range r.order {
		if e := r.entries[name]; e != nil && e.active {
			out = append(out, e.plugin)
		}
	}
	return out
}

// Info describes one loaded plugin for the admin surface.
type Info struct {
	Name        string `json:"name"`
	Handle      string `json:"handle"`
	Category    string `json:"category,omitempty"`
	Description string `json:"description,omitempty"`
	Active      bool   `json:"active"`
}

// Infos returns metadata for every loaded plugin in load order,
// including inactive ones.
func (r *Registry) Infos() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Info, 0, len(r.order))
	for _, name := range r.order {
		e := r.entries[name]
		if e == nil {
			continue
		}
		out = append(out, Info{
			Name:        name,
			Handle:      e.ctx.Handle(),
			Category:    e.ctx.Category(),
			Description: e.ctx.Description(),
			Active:      e.active,
		})
	}
	return out
}

// Shutdown disables every active plugin in reverse load order.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := len(r.order) - 1; i >= 0; i-- {
		name := r.order[i]
		if e := r.entries[name]; e != nil && e.active {
			if err := r.disable(name); err != nil {
				r.logger.Error("shutdown disable failed",
					zap.String("plugin", name),
					zap.Error(err),
				)
			}
		}
	}
}
