// Package plugin provides the public SDK types for botforge plugins.
// All botforge extensions (built-in and third-party) implement these
// interfaces and talk to the framework exclusively through them.
package plugin

import (
	"context"
)

// Plugin defines the interface that all botforge extensions must implement.
type Plugin interface {
	// Name returns the plugin's unique lowercase identifier. The registry
	// rejects duplicate or empty names at load time.
	Name() string

	// Setup acquires resources, creates schema, and registers handlers
	// and endpoints through the supplied Context. A plugin only joins
	// the active set if Setup returns nil.
	Setup(ctx context.Context, pc Context) error

	// Teardown releases resources when the plugin is disabled. The
	// registry deregisters handlers and endpoints itself; Teardown is
	// for anything the plugin acquired beyond those.
	Teardown() error
}

// Validator is implemented by plugins that validate their config after setup.
type Validator interface {
	ValidateConfig() error
}
