package repositories

import "context"

// LargeLanguageModel abstracts any chat completion provider that can
// stream its reply incrementally.
type LargeLanguageModel interface {
	// StreamCompletion starts generating a reply to the conversation and
	// returns a stream of deltas. The final history element is the
	// message being answered.
	StreamCompletion(ctx context.Context, history []ChatMessage) (CompletionStream, error)
}

// ChatCompleter abstracts a provider that can answer a conversation in
// one round trip, resolving any function calls internally.
type ChatCompleter interface {
	Complete(ctx context.Context, history []ChatMessage) (string, error)
}

// CompletionStream yields the deltas of one in-flight completion.
type CompletionStream interface {
	// Recv returns the next delta. It returns io.EOF once the stream is
	// exhausted; any other error means the completion failed mid-stream.
	Recv() (StreamDelta, error)
}

// StreamDelta is one increment of a streamed completion. At most one of
// the fields is set.
type StreamDelta struct {
	// Text is the next chunk of reply text.
	Text string
	// FunctionCall reports that the model invoked a declared function.
	// Callers treat this as an informational side channel; resolution
	// happens inside the provider adapter.
	FunctionCall *FunctionCall
}

// FunctionCall is a model-initiated function invocation.
type FunctionCall struct {
	Name string
	Args map[string]any
}

// ChatMessage represents a single message in a conversation
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Role defines the type of message sender
type Role string

const (
	UserRole      Role = "user"
	AssistantRole Role = "assistant"
	SystemRole    Role = "system"
)
