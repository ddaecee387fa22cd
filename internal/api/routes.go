package api

import (
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/buzzylabs/buzzy/domain/repositories"
	"github.com/buzzylabs/buzzy/internal/auth"
	"github.com/buzzylabs/buzzy/internal/websocket"
)

// maxUploadBytes bounds transcription uploads.
const maxUploadBytes = 10 * 1024 * 1024

// Handlers holds the collaborators of the REST surface.
type Handlers struct {
	Completer repositories.ChatCompleter
	STT       repositories.SpeechToText
	TTS       repositories.TextToSpeech
	Chats     repositories.ChatRepository
	Logger    *zap.Logger
}

// InitRoutes initializes all API routes
func InitRoutes(e *echo.Echo, hub *websocket.Hub, h *Handlers) {
	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "buzzy-server",
		})
	})

	// WebSocket endpoint for the realtime chat protocol
	e.GET("/ws", func(c echo.Context) error {
		return websocket.Serve(hub, c, h.Logger)
	})

	// API v1 routes
	v1 := e.Group("/api/v1")

	v1.POST("/chat", h.chat)
	v1.POST("/transcribe", h.transcribe)
	v1.POST("/tts", h.tts)

	// Chat history requires a bearer token
	v1.GET("/chats", h.listChats, auth.RequireAPIToken())
}

// chat answers one message without a websocket session.
func (h *Handlers) chat(c echo.Context) error {
	text := c.FormValue("text")
	if text == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_text",
			Message: "Form field 'text' is required",
		})
	}

	response, err := h.Completer.Complete(c.Request().Context(), []repositories.ChatMessage{
		{Role: repositories.UserRole, Content: text},
	})
	if err != nil {
		h.Logger.Error("One-shot chat failed", zap.Error(err))
		return c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   "completion_failed",
			Message: "The model could not answer",
		})
	}

	return c.JSON(http.StatusOK, ChatResponse{Response: response})
}

// transcribe converts an uploaded audio clip to text. The request body
// is the raw audio; sample_rate and encoding come from the query.
func (h *Handlers) transcribe(c echo.Context) error {
	sampleRate := 16000
	if v := c.QueryParam("sample_rate"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_sample_rate",
				Message: "sample_rate must be a positive integer",
			})
		}
		sampleRate = n
	}

	audio, err := io.ReadAll(io.LimitReader(c.Request().Body, maxUploadBytes))
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "unreadable_body",
			Message: "Could not read audio body",
		})
	}
	if len(audio) == 0 {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_audio",
			Message: "Request body must contain audio data",
		})
	}

	text, err := h.STT.TranscribeAudio(c.Request().Context(), audio, repositories.AudioConfig{
		SampleRate: sampleRate,
		Encoding:   c.QueryParam("encoding"),
		Language:   c.QueryParam("language"),
	})
	if err != nil {
		h.Logger.Error("Transcription failed", zap.Error(err))
		return c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   "transcription_failed",
			Message: "Could not transcribe the audio",
		})
	}

	return c.JSON(http.StatusOK, TranscribeResponse{Text: text})
}

// tts streams synthesized speech for a piece of text.
func (h *Handlers) tts(c echo.Context) error {
	text := c.FormValue("text")
	if text == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_text",
			Message: "Form field 'text' is required",
		})
	}

	audio, err := h.TTS.ConvertTextToSpeech(c.Request().Context(), text)
	if err != nil {
		h.Logger.Error("Speech synthesis failed", zap.Error(err))
		return c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   "synthesis_failed",
			Message: "Could not synthesize the text",
		})
	}

	c.Response().Header().Set(echo.HeaderContentType, "audio/pcm")
	c.Response().WriteHeader(http.StatusOK)
	for chunk := range audio {
		if _, err := c.Response().Write(chunk); err != nil {
			return err
		}
		c.Response().Flush()
	}

	return nil
}

// listChats returns the most recently active chats.
func (h *Handlers) listChats(c echo.Context) error {
	if h.Chats == nil {
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error:   "no_storage",
			Message: "Chat persistence is not configured",
		})
	}

	limit := 20
	if v := c.QueryParam("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	chats, err := h.Chats.List(c.Request().Context(), limit)
	if err != nil {
		h.Logger.Error("Failed to list chats", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "list_failed",
			Message: "Could not load chat history",
		})
	}

	summaries := make([]ChatSummary, 0, len(chats))
	for _, chat := range chats {
		summaries = append(summaries, ChatSummary{
			ChatID:        chat.ChatID,
			Title:         chat.Title,
			StartedAt:     chat.StartedAt,
			LastMessageAt: chat.LastMessageAt,
		})
	}

	return c.JSON(http.StatusOK, summaries)
}
