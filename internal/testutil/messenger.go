package testutil

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/HerbHall/botforge/pkg/models"
	"github.com/HerbHall/botforge/pkg/plugin"
)

// Compile-time interface check.
var _ plugin.Messenger = (*MockMessenger)(nil)

// Sent records one outbound message.
type Sent struct {
	ChatID int64
	Text   string
}

// MockMessenger is a thread-safe in-memory Messenger that records all
// outbound traffic for later inspection.
type MockMessenger struct {
	mu      sync.Mutex
	nextID  int64
	sent    []Sent
	deleted []int64
	actions []string

	// FailFor makes SendMessage fail for the listed chat ids.
	FailFor map[int64]bool
}

// NewMockMessenger returns a new MockMessenger.
func NewMockMessenger() *MockMessenger {
	return &MockMessenger{FailFor: make(map[int64]bool)}
}

// SendMessage records the message, or fails when the chat id is listed
// in FailFor.
func (m *MockMessenger) SendMessage(_ context.Context, chatID int64, text string) (*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailFor[chatID] {
		return nil, errors.New("send failed")
	}

	m.nextID++
	m.sent = append(m.sent, Sent{ChatID: chatID, Text: text})
	return &models.Message{
		ID:     m.nextID,
		Chat:   models.Chat{ID: chatID},
		Text:   text,
		SentAt: time.Now().UTC(),
	}, nil
}

// DeleteMessage records the deleted message id.
func (m *MockMessenger) DeleteMessage(_ context.Context, _ int64, messageID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, messageID)
	return nil
}

// SendAction records the chat action.
func (m *MockMessenger) SendAction(_ context.Context, _ int64, action string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions = append(m.actions, action)
	return nil
}

// Messages returns a copy of all recorded messages.
func (m *MockMessenger) Messages() []Sent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Sent, len(m.sent))
	copy(out, m.sent)
	return out
}

// Deleted returns a copy of all deleted message ids.
func (m *MockMessenger) Deleted() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]int64, len(m.deleted))
	copy(out, m.deleted)
	return out
}

// Actions returns a copy of all recorded chat actions.
func (m *MockMessenger) Actions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.actions))
	copy(out, m.actions)
	return out
}

// Reset clears all recorded traffic.
func (m *MockMessenger) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
	m.deleted = nil
	m.actions = nil
}
