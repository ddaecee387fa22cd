package llm

import (
	"context"
	"fmt"
	"io"

	"github.com/buzzylabs/buzzy/domain/repositories"
)

// MockLLM is a stand-in completion provider used when no Gemini API key
// is configured. It streams a canned reply in small chunks so the whole
// pipeline still exercises incremental delivery.
type MockLLM struct{}

// NewMockLLM creates a new mock completion provider.
func NewMockLLM() *MockLLM {
	return &MockLLM{}
}

func (m *MockLLM) reply(history []repositories.ChatMessage) string {
	if len(history) == 0 {
		return "Hi! I'm Buzzy. What would you like to know?"
	}
	last := history[len(history)-1]
	return fmt.Sprintf("That's a great question! You asked about '%s'. "+
		"I don't have a real brain right now, but I love talking with you. "+
		"What else are you curious about?", last.Content)
}

// StreamCompletion streams the canned reply word by word.
func (m *MockLLM) StreamCompletion(ctx context.Context, history []repositories.ChatMessage) (repositories.CompletionStream, error) {
	return &mockStream{text: m.reply(history)}, nil
}

// Complete returns the canned reply in one piece.
func (m *MockLLM) Complete(ctx context.Context, history []repositories.ChatMessage) (string, error) {
	return m.reply(history), nil
}

type mockStream struct {
	text string
	pos  int
}

// chunkSize keeps mock deltas small enough to land mid-sentence.
const chunkSize = 12

func (s *mockStream) Recv() (repositories.StreamDelta, error) {
	if s.pos >= len(s.text) {
		return repositories.StreamDelta{}, io.EOF
	}

	end := s.pos + chunkSize
	if end > len(s.text) {
		end = len(s.text)
	}
	delta := repositories.StreamDelta{Text: s.text[s.pos:end]}
	s.pos = end
	return delta, nil
}

var (
	_ repositories.LargeLanguageModel = (*MockLLM)(nil)
	_ repositories.ChatCompleter      = (*MockLLM)(nil)
)
