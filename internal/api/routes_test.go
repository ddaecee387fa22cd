package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/buzzylabs/buzzy/domain/entities"
	"github.com/buzzylabs/buzzy/domain/repositories"
	"github.com/buzzylabs/buzzy/internal/auth"
	"github.com/buzzylabs/buzzy/internal/protocol"
	"github.com/buzzylabs/buzzy/internal/websocket"
	"github.com/buzzylabs/buzzy/usecase"
)

type fakeCompleter struct {
	reply string
	err   error
}

func (f fakeCompleter) Complete(ctx context.Context, history []repositories.ChatMessage) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

type fakeSTT struct {
	transcript string
	gotBytes   int
	gotRate    int
}

func (f *fakeSTT) TranscribeAudio(ctx context.Context, audio []byte, cfg repositories.AudioConfig) (string, error) {
	f.gotBytes = len(audio)
	f.gotRate = cfg.SampleRate
	return f.transcript, nil
}

type fakeTTS struct {
	chunks [][]byte
}

func (f fakeTTS) ConvertTextToSpeech(ctx context.Context, text string) (<-chan []byte, error) {
	out := make(chan []byte, len(f.chunks))
	for _, c := range f.chunks {
		out <- c
	}
	close(out)
	return out, nil
}

type fakeChats struct {
	chats []*entities.Chat
}

func (f *fakeChats) Create(ctx context.Context, chat *entities.Chat) error { return nil }
func (f *fakeChats) Append(ctx context.Context, chatID int64, role entities.MessageRole, content string, ts time.Time) error {
	return nil
}
func (f *fakeChats) RecentContext(ctx context.Context, chatID int64, limit int) ([]repositories.ChatMessage, error) {
	return nil, nil
}
func (f *fakeChats) List(ctx context.Context, limit int) ([]*entities.Chat, error) {
	if limit < len(f.chats) {
		return f.chats[:limit], nil
	}
	return f.chats, nil
}

func setupServer(t *testing.T, h *Handlers) *echo.Echo {
	t.Helper()
	if h.Logger == nil {
		h.Logger = zap.NewNop()
	}
	e := echo.New()
	hub := websocket.NewHub(usecase.NewTurnService(nil, nil, nil, nil, zap.NewNop()),
		protocol.NewCounter(), protocol.NewCounter(), zap.NewNop())
	InitRoutes(e, hub, h)
	return e
}

func TestChatEndpoint(t *testing.T) {
	e := setupServer(t, &Handlers{Completer: fakeCompleter{reply: "Bees make honey!"}})

	form := url.Values{"text": {"what do bees make?"}}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp ChatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Response != "Bees make honey!" {
		t.Errorf("response = %q", resp.Response)
	}
}

func TestChatEndpointRequiresText(t *testing.T) {
	e := setupServer(t, &Handlers{Completer: fakeCompleter{reply: "x"}})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestTranscribeEndpoint(t *testing.T) {
	stt := &fakeSTT{transcript: "hello buzzy"}
	e := setupServer(t, &Handlers{STT: stt})

	body := strings.NewReader(strings.Repeat("a", 2048))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/transcribe?sample_rate=24000", body)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp TranscribeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Text != "hello buzzy" {
		t.Errorf("text = %q", resp.Text)
	}
	if stt.gotBytes != 2048 || stt.gotRate != 24000 {
		t.Errorf("recognizer got %d bytes at %d Hz", stt.gotBytes, stt.gotRate)
	}
}

func TestTranscribeEndpointRejectsEmptyBody(t *testing.T) {
	e := setupServer(t, &Handlers{STT: &fakeSTT{}})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/transcribe", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestTTSEndpointStreamsAudio(t *testing.T) {
	e := setupServer(t, &Handlers{TTS: fakeTTS{chunks: [][]byte{[]byte("aaa"), []byte("bbb")}}})

	form := url.Values{"text": {"Hello there."}}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tts", strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get(echo.HeaderContentType); got != "audio/pcm" {
		t.Errorf("content type = %q", got)
	}
	if rec.Body.String() != "aaabbb" {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestListChatsRequiresToken(t *testing.T) {
	e := setupServer(t, &Handlers{Chats: &fakeChats{}})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/chats", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status without token = %d, want 401", rec.Code)
	}
}

func TestListChatsReturnsSummaries(t *testing.T) {
	started := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	e := setupServer(t, &Handlers{Chats: &fakeChats{chats: []*entities.Chat{
		{ChatID: 7, Title: "why is the sky blue", StartedAt: started, LastMessageAt: started.Add(time.Minute)},
	}}})

	token, err := auth.GenerateAPIToken("test")
	if err != nil {
		t.Fatalf("GenerateAPIToken: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/chats", nil)
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var got []ChatSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].ChatID != 7 || got[0].Title != "why is the sky blue" {
		t.Errorf("summaries = %+v", got)
	}
}
