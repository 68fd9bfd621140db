package testutil

import (
	"sync"

	"github.com/HerbHall/botforge/pkg/plugin"
)

// Compile-time interface check.
var _ plugin.Notifier = (*MockNotifier)(nil)

// MockNotifier records every notified payload.
type MockNotifier struct {
	mu  sync.Mutex
	got []any
}

// NewMockNotifier returns a new MockNotifier.
func NewMockNotifier() *MockNotifier {
	return &MockNotifier{}
}

// Notify records the payload and returns it unchanged.
func (n *MockNotifier) Notify(v any) any {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.got = append(n.got, v)
	return v
}

// Notified returns a copy of all recorded payloads.
func (n *MockNotifier) Notified() []any {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]any, len(n.got))
	copy(out, n.got)
	return out
}
