package entities

import (
	"errors"
	"time"
)

// MessageRole identifies the speaker of a stored chat message.
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// ChatMessage is one stored exchange line of a chat.
type ChatMessage struct {
	Timestamp time.Time   `json:"timestamp" bson:"timestamp"`
	Role      MessageRole `json:"role" bson:"role"`
	Content   string      `json:"content" bson:"content"`
}

// Chat is one chat exchange as stored. The id is the runtime chat id
// allocated when the turn was routed; it is unique for the lifetime of
// the server process, not across restarts.
type Chat struct {
	ChatID        int64         `json:"chat_id" bson:"chat_id"`
	Title         string        `json:"title" bson:"title"`
	StartedAt     time.Time     `json:"started_at" bson:"started_at"`
	LastMessageAt time.Time     `json:"last_message_at" bson:"last_message_at"`
	Messages      []ChatMessage `json:"messages" bson:"messages"`
}

const titleLimit = 48

// NewChat creates a chat record titled from the opening user text.
func NewChat(chatID int64, openingText string) *Chat {
	now := time.Now()
	return &Chat{
		ChatID:        chatID,
		Title:         TitleFromText(openingText),
		StartedAt:     now,
		LastMessageAt: now,
		Messages:      make([]ChatMessage, 0),
	}
}

// TitleFromText derives a short chat title from its opening message.
func TitleFromText(text string) string {
	runes := []rune(text)
	if len(runes) <= titleLimit {
		return text
	}
	return string(runes[:titleLimit])
}

// AddMessage appends one message and bumps the last-message timestamp.
func (c *Chat) AddMessage(role MessageRole, content string) {
	now := time.Now()
	c.Messages = append(c.Messages, ChatMessage{
		Timestamp: now,
		Role:      role,
		Content:   content,
	})
	c.LastMessageAt = now
}

// Validate checks the chat record's required fields.
func (c *Chat) Validate() error {
	if c.ChatID < 0 {
		return errors.New("chat_id must not be negative")
	}
	for _, m := range c.Messages {
		if m.Role != MessageRoleUser && m.Role != MessageRoleAssistant {
			return errors.New("invalid message role " + string(m.Role))
		}
	}
	return nil
}
