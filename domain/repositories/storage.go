package repositories

import (
	"context"
	"time"

	"github.com/buzzylabs/buzzy/domain/entities"
)

// ChatRepository defines append-only data access for chat history. All
// methods are best-effort collaborators: a failure here never changes
// the protocol outcome already delivered to the client.
type ChatRepository interface {
	// Create registers a new chat record.
	Create(ctx context.Context, chat *entities.Chat) error
	// Append adds one message to a chat's history.
	Append(ctx context.Context, chatID int64, role entities.MessageRole, content string, timestamp time.Time) error
	// RecentContext returns up to limit messages of a chat in
	// chronological order, suitable as model context.
	RecentContext(ctx context.Context, chatID int64, limit int) ([]ChatMessage, error)
	// List returns the most recently active chats, newest first,
	// without their message bodies.
	List(ctx context.Context, limit int) ([]*entities.Chat, error)
}
