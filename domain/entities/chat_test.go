package entities

import (
	"strings"
	"testing"
)

func TestChatCreation(t *testing.T) {
	chat := NewChat(42, "why do bees make honey?")

	if chat.ChatID != 42 {
		t.Errorf("Expected chat ID 42, got %d", chat.ChatID)
	}

	if chat.Title != "why do bees make honey?" {
		t.Errorf("Expected title from opening text, got %s", chat.Title)
	}

	if len(chat.Messages) != 0 {
		t.Errorf("Expected empty messages, got %d messages", len(chat.Messages))
	}

	if chat.StartedAt.IsZero() || chat.LastMessageAt.IsZero() {
		t.Error("Expected timestamps to be set")
	}
}

func TestTitleFromTextTruncates(t *testing.T) {
	long := strings.Repeat("a", 100)
	title := TitleFromText(long)

	if len([]rune(title)) != titleLimit {
		t.Errorf("Expected title truncated to %d runes, got %d", titleLimit, len([]rune(title)))
	}

	short := "hello"
	if TitleFromText(short) != short {
		t.Errorf("Expected short text kept as-is, got %s", TitleFromText(short))
	}
}

func TestAddMessage(t *testing.T) {
	chat := NewChat(1, "hello")
	before := chat.LastMessageAt

	chat.AddMessage(MessageRoleUser, "Hello, how are you?")

	if len(chat.Messages) != 1 {
		t.Errorf("Expected 1 message, got %d", len(chat.Messages))
	}
	if chat.Messages[0].Role != MessageRoleUser {
		t.Errorf("Expected user role, got %s", chat.Messages[0].Role)
	}
	if chat.Messages[0].Content != "Hello, how are you?" {
		t.Errorf("Unexpected content %s", chat.Messages[0].Content)
	}
	if chat.LastMessageAt.Before(before) {
		t.Error("Expected LastMessageAt to advance")
	}

	chat.AddMessage(MessageRoleAssistant, "I'm doing well, thank you!")

	if len(chat.Messages) != 2 {
		t.Errorf("Expected 2 messages, got %d", len(chat.Messages))
	}
	if chat.Messages[1].Role != MessageRoleAssistant {
		t.Errorf("Expected assistant role, got %s", chat.Messages[1].Role)
	}
}

func TestValidate(t *testing.T) {
	chat := NewChat(1, "hi")
	chat.AddMessage(MessageRoleUser, "hi")
	if err := chat.Validate(); err != nil {
		t.Errorf("Expected valid chat, got %v", err)
	}

	chat.Messages[0].Role = "narrator"
	if err := chat.Validate(); err == nil {
		t.Error("Expected error for unknown role")
	}

	bad := &Chat{ChatID: -1}
	if err := bad.Validate(); err == nil {
		t.Error("Expected error for negative chat id")
	}
}
