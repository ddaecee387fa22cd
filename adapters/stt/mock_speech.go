package stt

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/buzzylabs/buzzy/domain/repositories"
)

// MockSpeechToText is a placeholder recognizer used when no Google
// credentials are configured.
type MockSpeechToText struct {
	logger *zap.Logger
}

// NewMockSpeechToText creates a new mock speech-to-text service
func NewMockSpeechToText(logger *zap.Logger) repositories.SpeechToText {
	return &MockSpeechToText{
		logger: logger,
	}
}

// TranscribeAudio implements repositories.SpeechToText
func (s *MockSpeechToText) TranscribeAudio(ctx context.Context, audioData []byte, config repositories.AudioConfig) (string, error) {
	s.logger.Info("Processing speech-to-text",
		zap.Int("audioSize", len(audioData)),
		zap.Int("sampleRate", config.SampleRate),
		zap.String("encoding", config.Encoding))

	if len(audioData) == 0 {
		return "", fmt.Errorf("no audio data received")
	}

	// Mock transcription based on audio size
	switch {
	case len(audioData) > 10000:
		return "Hey Buzzy, how many days are left until my birthday in December?", nil
	case len(audioData) > 5000:
		return "Why is the sky blue?", nil
	case len(audioData) > 1000:
		return "Hi Buzzy!", nil
	default:
		return "Hi", nil
	}
}
