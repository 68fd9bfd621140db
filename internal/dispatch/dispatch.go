// Package dispatch routes inbound updates to registered plugin handlers.
// Handlers are grouped: lower groups run first, and within a group only
// the first matching handler (in registration order) runs. Failures are
// contained at the dispatch boundary and never reach the transport loop.
package dispatch

import (
	"context"
	"sync"

	"github.com/HerbHall/botforge/internal/metrics"
	"github.com/HerbHall/botforge/pkg/models"
	"github.com/HerbHall/botforge/pkg/plugin"
	"go.uber.org/zap"
)

// Registration is an opaque handle for a registered handler, used to
// deregister it on plugin teardown.
type Registration struct {
	plugin  string
	handler plugin.Handler
	fn      plugin.HandlerFunc // Fn with the middleware chain applied
}

// Dispatcher fans inbound updates out to plugin handlers.
type Dispatcher struct {
	mu       sync.RWMutex
	groups   map[int][]*Registration
	order    []int // sorted group numbers
	notifier plugin.Notifier
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// New creates an empty Dispatcher.
func New(notifier plugin.Notifier, m *metrics.Metrics, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		groups:   make(map[int][]*Registration),
		notifier: notifier,
		metrics:  m,
		logger:   logger,
	}
}

// Add registers a handler for the named plugin. The middleware chain in
// h.Use is applied outermost-first. Returns the handle needed to remove
// the registration again.
func (d *Dispatcher) Add(pluginName string, h plugin.Handler) *Registration {
	r := &Registration{
		plugin:  pluginName,
		handler: h,
		fn:      plugin.Chain(h.Fn, h.Use...),
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.groups[h.Group]; !ok {
		d.order = insertSorted(d.order, h.Group)
	}
	d.groups[h.Group] = append(d.groups[h.Group], r)

	d.logger.Info("handler added",
		zap.String("plugin", pluginName),
		zap.String("command", h.Command),
		zap.Int("group", h.Group),
	)
	return r
}

// Remove deregisters a handler.
func (d *Dispatcher) Remove(r *Registration) {
	d.mu.Lock()
	defer d.mu.Unlock()

	regs := d.groups[r.handler.Group]
	for i, reg := range regs {
		if reg == r {
			d.groups[r.handler.Group] = append(regs[:i], regs[i+1:]...)
			return
		}
	}
}

// Dispatch routes one update. In each group the first matching handler
// runs; groups are visited in ascending order. Synchronous handlers run
// on the caller's goroutine, async handlers on their own.
func (d *Dispatcher) Dispatch(ctx context.Context, u *models.Update) {
	d.metrics.UpdatesDispatched.Inc()

	d.mu.RLock()
	order := append([]int(nil), d.order...)
	groups := make(map[int][]*Registration, len(d.groups))
	for g, regs := range d.groups {
		groups[g] = append([]*Registration(nil), regs...)
	}
	d.mu.RUnlock()

	for _, g := range order {
		for _, r := range groups[g] {
			if !r.matches(u) {
				continue
			}
			if r.handler.Async {
				go d.invoke(ctx, r, u)
			} else {
				d.invoke(ctx, r, u)
			}
			break // one handler per group
		}
	}
}

// matches reports whether the registration handles this update. An empty
// command matches any message-carrying update.
func (r *Registration) matches(u *models.Update) bool {
	if u.Message == nil {
		return false
	}
	if r.handler.Command == "" {
		return true
	}
	return u.Command() == r.handler.Command
}

// invoke runs one handler with the boundary guard: returned errors and
// panics are logged and relayed to the notification channel.
func (d *Dispatcher) invoke(ctx context.Context, r *Registration, u *models.Update) {
	defer func() {
		if rec := recover(); rec != nil {
			d.metrics.HandlerErrors.WithLabelValues(r.plugin).Inc()
			d.logger.Error("handler panicked",
				zap.String("plugin", r.plugin),
				zap.Any("panic", rec),
			)
			d.notifier.Notify(rec)
		}
	}()

	if err := r.fn(ctx, u); err != nil {
		d.metrics.HandlerErrors.WithLabelValues(r.plugin).Inc()
		d.logger.Error("handler error",
			zap.String("plugin", r.plugin),
			zap.String("update", u.ID),
			zap.Error(err),
		)
		d.notifier.Notify(err)
	}
}

func insertSorted(s []int, v int) []int {
	for i, x := range s {
		if v < x {
			return append(s[:i], append([]int{v}, s[i:]...)...)
		}
	}
	return append(s, v)
}
