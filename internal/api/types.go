package api

import "time"

// ChatResponse is the reply of the one-shot chat endpoint.
type ChatResponse struct {
	Response string `json:"response"`
}

// TranscribeResponse carries the recognized text of an uploaded clip.
type TranscribeResponse struct {
	Text string `json:"text"`
}

// ChatSummary is one chat in the history listing, without its messages.
type ChatSummary struct {
	ChatID        int64     `json:"chat_id"`
	Title         string    `json:"title"`
	StartedAt     time.Time `json:"started_at"`
	LastMessageAt time.Time `json:"last_message_at"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
