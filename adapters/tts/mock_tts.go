package tts

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/buzzylabs/buzzy/domain/repositories"
)

// MockTextToSpeech is a placeholder synthesizer used when no Eleven Labs
// key is configured. It emits silence sized roughly like real speech so
// clients still receive audio frames to play.
type MockTextToSpeech struct {
	logger *zap.Logger
}

// NewMockTextToSpeech creates a new mock text-to-speech service
func NewMockTextToSpeech(logger *zap.Logger) repositories.TextToSpeech {
	return &MockTextToSpeech{
		logger: logger,
	}
}

// ConvertTextToSpeech implements repositories.TextToSpeech
func (m *MockTextToSpeech) ConvertTextToSpeech(ctx context.Context, text string) (<-chan []byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	m.logger.Info("Synthesizing mock speech", zap.Int("textLength", len(text)))

	// Roughly 60ms of 24kHz 16-bit silence per word.
	words := len(strings.Fields(text))
	if words == 0 {
		words = 1
	}

	out := make(chan []byte, words)
	go func() {
		defer close(out)
		for i := 0; i < words; i++ {
			select {
			case out <- make([]byte, 2880):
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}
