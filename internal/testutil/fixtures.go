package testutil

import (
	"time"

	"github.com/HerbHall/botforge/pkg/models"
)

// UpdateOption customizes an update built by NewUpdate.
type UpdateOption func(*models.Update)

// WithChat sets the chat id and type of the update's message.
func WithChat(id int64, t models.ChatType) UpdateOption {
	return func(u *models.Update) {
		u.Message.Chat = models.Chat{ID: id, Type: t}
	}
}

// WithUser sets the sender of the update's message.
func WithUser(id int64, username string) UpdateOption {
	return func(u *models.Update) {
		u.Message.From = &models.User{ID: id, Username: username}
	}
}

// WithBot marks the sender as a bot account.
func WithBot() UpdateOption {
	return func(u *models.Update) {
		u.Message.From.IsBot = true
	}
}

// WithoutUser removes the sender from the update's message.
func WithoutUser() UpdateOption {
	return func(u *models.Update) {
		u.Message.From = nil
	}
}

// NewUpdate builds a message update with sensible defaults: group chat
// 100, user 7 "alice", message text as given.
func NewUpdate(text string, opts ...UpdateOption) *models.Update {
	u := &models.Update{
		ID: "test-update",
		Message: &models.Message{
			ID:     1,
			Chat:   models.Chat{ID: 100, Type: models.ChatGroup},
			From:   &models.User{ID: 7, Username: "alice"},
			Text:   text,
			SentAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		},
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}
