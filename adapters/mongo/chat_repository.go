package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/buzzylabs/buzzy/domain/entities"
	"github.com/buzzylabs/buzzy/domain/repositories"
)

// ChatRepository persists chat history in a single chats collection,
// one document per chat with an embedded message array.
type ChatRepository struct {
	collection *mongo.Collection
}

// NewChatRepository creates a new MongoDB chat repository
func NewChatRepository(db *mongo.Database) repositories.ChatRepository {
	return &ChatRepository{
		collection: db.Collection("chats"),
	}
}

// Create implements repositories.ChatRepository
func (r *ChatRepository) Create(ctx context.Context, chat *entities.Chat) error {
	if chat == nil {
		return errors.New("chat cannot be nil")
	}
	if err := chat.Validate(); err != nil {
		return err
	}

	now := time.Now()
	if chat.StartedAt.IsZero() {
		chat.StartedAt = now
	}
	if chat.LastMessageAt.IsZero() {
		chat.LastMessageAt = now
	}

	// Upsert keyed on chat_id so retried turns do not duplicate the
	// record.
	filter := bson.M{"chat_id": chat.ChatID}
	update := bson.M{
		"$setOnInsert": bson.M{
			"chat_id":    chat.ChatID,
			"title":      chat.Title,
			"started_at": chat.StartedAt,
			"messages":   chat.Messages,
		},
		"$set": bson.M{
			"last_message_at": chat.LastMessageAt,
		},
	}
	if _, err := r.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true)); err != nil {
		return fmt.Errorf("failed to create chat: %w", err)
	}

	return nil
}

// Append implements repositories.ChatRepository
func (r *ChatRepository) Append(ctx context.Context, chatID int64, role entities.MessageRole, content string, timestamp time.Time) error {
	message := entities.ChatMessage{
		Timestamp: timestamp,
		Role:      role,
		Content:   content,
	}

	filter := bson.M{"chat_id": chatID}
	update := bson.M{
		"$push": bson.M{"messages": message},
		"$set":  bson.M{"last_message_at": timestamp},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("chat %d not found", chatID)
	}

	return nil
}

// RecentContext implements repositories.ChatRepository
func (r *ChatRepository) RecentContext(ctx context.Context, chatID int64, limit int) ([]repositories.ChatMessage, error) {
	if limit <= 0 {
		return nil, nil
	}

	// Slice the tail of the embedded message array server-side.
	projection := bson.M{
		"messages": bson.M{"$slice": -limit},
	}

	var doc struct {
		Messages []entities.ChatMessage `bson:"messages"`
	}
	err := r.collection.FindOne(ctx, bson.M{"chat_id": chatID}, options.FindOne().SetProjection(projection)).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load chat context: %w", err)
	}

	history := make([]repositories.ChatMessage, 0, len(doc.Messages))
	for _, m := range doc.Messages {
		role := repositories.UserRole
		if m.Role == entities.MessageRoleAssistant {
			role = repositories.AssistantRole
		}
		history = append(history, repositories.ChatMessage{
			Role:    role,
			Content: m.Content,
		})
	}

	return history, nil
}

// List implements repositories.ChatRepository
func (r *ChatRepository) List(ctx context.Context, limit int) ([]*entities.Chat, error) {
	if limit <= 0 {
		limit = 20
	}

	opts := options.Find().
		SetSort(bson.M{"last_message_at": -1}).
		SetLimit(int64(limit)).
		SetProjection(bson.M{"messages": 0})

	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	defer cursor.Close(ctx)

	var chats []*entities.Chat
	if err := cursor.All(ctx, &chats); err != nil {
		return nil, fmt.Errorf("failed to decode chats: %w", err)
	}

	return chats, nil
}

var _ repositories.ChatRepository = (*ChatRepository)(nil)
