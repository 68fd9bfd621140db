package models

import (
	"strings"
	"time"
)

// ChatType categorizes the conversation an update originated from.
type ChatType string

const (
	ChatPrivate    ChatType = "private"
	ChatGroup      ChatType = "group"
	ChatSupergroup ChatType = "supergroup"
	ChatChannel    ChatType = "channel"
)

// IsPrivate reports whether the chat is a direct one-to-one conversation.
func (t ChatType) IsPrivate() bool {
	return t == ChatPrivate
}

// Chat represents a conversation on the chat platform.
type Chat struct {
	ID    int64    `json:"id"`
	Type  ChatType `json:"type"`
	Title string   `json:"title,omitempty"`
}

// User represents an account on the chat platform.
type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	IsBot     bool   `json:"is_bot,omitempty"`
}

// DisplayName returns "@username" when set, first name otherwise.
func (u *User) DisplayName() string {
	if u.Username != "" {
		return "@" + u.Username
	}
	return u.FirstName
}

// Message represents a single message in a chat.
type Message struct {
	ID     int64     `json:"id"`
	Chat   Chat      `json:"chat"`
	From   *User     `json:"from,omitempty"`
	Text   string    `json:"text,omitempty"`
	SentAt time.Time `json:"sent_at,omitempty"`
}

// Update is an inbound event from the transport collaborator.
type Update struct {
	ID      string   `json:"id"`
	Message *Message `json:"message,omitempty"`
}

// Chat returns the chat the update belongs to, or a zero Chat when the
// update carries no message.
func (u *Update) Chat() Chat {
	if u.Message == nil {
		return Chat{}
	}
	return u.Message.Chat
}

// From returns the user that triggered the update, if any.
func (u *Update) From() *User {
	if u.Message == nil {
		return nil
	}
	return u.Message.From
}

// Command returns the lowercased command string of the update's message
// ("/weather now" -> "weather") or "" when the message is not a command.
func (u *Update) Command() string {
	if u.Message == nil || !strings.HasPrefix(u.Message.Text, "/") {
		return ""
	}
	cmd := strings.Fields(u.Message.Text)[0]
	cmd = strings.TrimPrefix(cmd, "/")
	if at := strings.Index(cmd, "@"); at >= 0 {
		cmd = cmd[:at]
	}
	return strings.ToLower(cmd)
}

// Args returns the whitespace-separated arguments following the command.
func (u *Update) Args() []string {
	if u.Message == nil {
		return nil
	}
	fields := strings.Fields(u.Message.Text)
	if len(fields) < 2 {
		return nil
	}
	return fields[1:]
}
