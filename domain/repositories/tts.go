package repositories

import "context"

// TextToSpeech abstracts speech synthesis services. The returned channel
// streams encoded audio chunks as they are rendered and closes when the
// rendering is complete.
type TextToSpeech interface {
	ConvertTextToSpeech(ctx context.Context, text string) (<-chan []byte, error)
}
