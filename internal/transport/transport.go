// Package transport defines the wire envelopes and shared contracts for
// the chat-platform bridge adapters. The framework never speaks a chat
// platform's protocol itself; a bridge process translates between the
// platform and these envelopes.
package transport

import (
	"context"
	"sync/atomic"

	"github.com/HerbHall/botforge/pkg/models"
)

// Sink receives inbound updates. Implemented by the dispatcher.
type Sink interface {
	Dispatch(ctx context.Context, u *models.Update)
}

// Outbound kinds.
const (
	KindMessage = "message"
	KindDelete  = "delete"
	KindAction  = "action"
)

// Inbound is one frame from the bridge to the framework.
type Inbound struct {
	Update models.Update `json:"update"`
}

// Outbound is one frame from the framework to the bridge. MessageID is
// framework-assigned; the bridge maps it to the platform's own id.
type Outbound struct {
	Kind      string `json:"kind"`
	ChatID    int64  `json:"chat_id"`
	MessageID int64  `json:"message_id,omitempty"`
	Text      string `json:"text,omitempty"`
	Action    string `json:"action,omitempty"`
}

// IDSequence hands out framework-local message ids.
type IDSequence struct {
	n atomic.Int64
}

// Next returns the next id, starting at 1.
func (s *IDSequence) Next() int64 {
	return s.n.Add(1)
}
