package plugin

import (
	"context"

	"github.com/HerbHall/botforge/pkg/models"
)

// HandlerFunc processes one inbound update. A returned error is caught at
// the dispatch boundary, logged, and relayed to the admin notification
// channel; it never reaches the transport loop.
type HandlerFunc func(ctx context.Context, u *models.Update) error

// Middleware wraps a HandlerFunc with admission control or side effects.
// Filters built by the authorization gate are Middleware values.
type Middleware func(next HandlerFunc) HandlerFunc

// Handler describes one event handler registration.
type Handler struct {
	// Command is the trigger string the handler responds to. Empty
	// matches every message-carrying update.
	Command string

	// Fn is the handler body.
	Fn HandlerFunc

	// Group orders dispatch: lower groups run first, and within a group
	// only the first matching handler (in registration order) runs.
	Group int

	// Async dispatches the handler on its own goroutine so it cannot
	// block the shared dispatch loop.
	Async bool

	// Use is the middleware chain applied to Fn at registration,
	// evaluated outermost-first.
	Use []Middleware
}

// Chain applies mw to fn so that mw[0] is the outermost wrapper.
func Chain(fn HandlerFunc, mw ...Middleware) HandlerFunc {
	for i := len(mw) - 1; i >= 0; i-- {
		fn = mw[i](fn)
	}
	return fn
}
