package usecase

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/buzzylabs/buzzy/domain/entities"
	"github.com/buzzylabs/buzzy/domain/repositories"
	"github.com/buzzylabs/buzzy/internal/protocol"
	"github.com/buzzylabs/buzzy/internal/sentence"
)

// FrameSender delivers protocol frames back to one client. Once the
// transport is gone the implementation drops frames silently; Send only
// fails on programming errors such as an invalid payload.
type FrameSender interface {
	Send(t protocol.MsgType, data protocol.Payload, binary []byte) error
}

// TurnRequest is one chat request routed to the orchestrator after the
// session router has allocated its chat id and acknowledged it.
type TurnRequest struct {
	ChatID    uint32
	RequestID uint32

	// Text holds the typed message of a text chat. Audio and SampleRate
	// hold the recorded utterance of an audio chat; exactly one of the
	// two forms is populated.
	Text       string
	Audio      []byte
	SampleRate int

	TTS bool
}

// ttsQueueDepth bounds how many finished sentences may wait for
// synthesis before token consumption backpressures.
const ttsQueueDepth = 16

// TurnService drives one chat turn end to end: resolve the input text,
// stream the model's reply as text frames, split the reply into
// sentences, render them to speech in order, and close the turn with a
// done frame.
type TurnService struct {
	llm          repositories.LargeLanguageModel
	stt          repositories.SpeechToText
	tts          repositories.TextToSpeech
	chats        repositories.ChatRepository
	language     string
	contextLimit int
	logger       *zap.Logger
}

// NewTurnService creates a turn orchestrator. chats may be nil when no
// persistence is configured.
func NewTurnService(
	llm repositories.LargeLanguageModel,
	stt repositories.SpeechToText,
	tts repositories.TextToSpeech,
	chats repositories.ChatRepository,
	logger *zap.Logger,
) *TurnService {
	return &TurnService{
		llm:          llm,
		stt:          stt,
		tts:          tts,
		chats:        chats,
		language:     "en-US",
		contextLimit: 20,
		logger:       logger,
	}
}

// Run executes one turn. It always sends exactly one chat_response_done
// for the turn, even when the model stream fails, so the client never
// waits forever. Run returns when every frame of the turn has been
// handed to the sender.
func (s *TurnService) Run(ctx context.Context, req TurnRequest, send FrameSender) {
	userText, ok := s.resolveInput(ctx, req, send)
	if !ok {
		s.finish(req, send)
		return
	}

	history := s.loadContext(ctx, req.ChatID)
	history = append(history, repositories.ChatMessage{
		Role:    repositories.UserRole,
		Content: userText,
	})

	stream, err := s.llm.StreamCompletion(ctx, history)
	if err != nil {
		s.logger.Error("Failed to start completion stream",
			zap.Uint32("chatID", req.ChatID),
			zap.Error(err))
		s.sendError(send, "chat completion failed", req.RequestID)
		s.finish(req, send)
		return
	}

	// The TTS half of the turn runs as its own goroutine consuming
	// sentences in submission order. A single worker keeps audio frames
	// of the turn strictly sentence-ordered while synthesis overlaps
	// continued token consumption. The two halves join at workerDone
	// before the done frame is sent.
	var units chan string
	workerDone := make(chan struct{})
	if req.TTS {
		units = make(chan string, ttsQueueDepth)
		go s.ttsWorker(ctx, req.ChatID, units, workerDone, send)
	} else {
		close(workerDone)
	}

	assistantText, streamErr := s.consumeStream(req, stream, units, send)

	if units != nil {
		if tail := strings.TrimSpace(assistantText.remainder); tail != "" && streamErr == nil {
			units <- tail
		}
		close(units)
	}
	<-workerDone

	if streamErr != nil {
		s.logger.Error("Completion stream failed mid-turn",
			zap.Uint32("chatID", req.ChatID),
			zap.Error(streamErr))
		s.sendError(send, "chat completion failed", req.RequestID)
	}
	s.finish(req, send)

	if streamErr == nil {
		s.persist(req.ChatID, userText, assistantText.full.String())
	}
}

type turnText struct {
	full      strings.Builder
	remainder string
}

// consumeStream forwards text deltas as frames the moment they arrive
// and feeds completed sentences to the synthesis queue.
func (s *TurnService) consumeStream(
	req TurnRequest,
	stream repositories.CompletionStream,
	units chan<- string,
	send FrameSender,
) (turnText, error) {
	var text turnText
	var buf string

	for {
		delta, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			text.remainder = buf
			return text, nil
		}
		if err != nil {
			text.remainder = buf
			return text, err
		}

		if delta.FunctionCall != nil {
			s.logger.Info("Model invoked function",
				zap.Uint32("chatID", req.ChatID),
				zap.String("function", delta.FunctionCall.Name))
			continue
		}
		if delta.Text == "" {
			continue
		}

		send.Send(protocol.MsgChatResponseText, &protocol.ChatResponseText{
			ChatID: req.ChatID,
			Role:   protocol.RoleAssistant,
			Text:   delta.Text,
		}, nil)

		text.full.WriteString(delta.Text)
		buf += delta.Text

		sentences, rest := sentence.Split(buf)
		buf = rest
		if units != nil {
			for _, u := range sentences {
				units <- u
			}
		}
	}
}

// ttsWorker renders queued sentences one at a time and emits their audio
// chunks. A failed sentence is logged and skipped; the rest of the turn
// still renders.
func (s *TurnService) ttsWorker(
	ctx context.Context,
	chatID uint32,
	units <-chan string,
	done chan<- struct{},
	send FrameSender,
) {
	defer close(done)

	for unit := range units {
		audio, err := s.tts.ConvertTextToSpeech(ctx, unit)
		if err != nil {
			s.logger.Warn("Sentence synthesis failed, continuing turn",
				zap.Uint32("chatID", chatID),
				zap.String("sentence", unit),
				zap.Error(err))
			continue
		}

		for chunk := range audio {
			send.Send(protocol.MsgChatResponseAudio, &protocol.ChatResponseAudio{
				ChatID: chatID,
			}, chunk)
		}
	}
}

// resolveInput produces the turn's user text. Audio requests are
// transcribed first; the recognized text is echoed back to the client as
// a user-role text frame so it can render what was understood.
func (s *TurnService) resolveInput(ctx context.Context, req TurnRequest, send FrameSender) (string, bool) {
	if req.Audio == nil {
		return req.Text, true
	}

	transcript, err := s.stt.TranscribeAudio(ctx, req.Audio, repositories.AudioConfig{
		SampleRate: req.SampleRate,
		Encoding:   "LINEAR16",
		Language:   s.language,
	})
	if err != nil {
		s.logger.Error("Transcription failed",
			zap.Uint32("chatID", req.ChatID),
			zap.Error(err))
		s.sendError(send, "transcription failed", req.RequestID)
		return "", false
	}

	send.Send(protocol.MsgChatResponseText, &protocol.ChatResponseText{
		ChatID: req.ChatID,
		Role:   protocol.RoleUser,
		Text:   transcript,
	}, nil)

	return transcript, true
}

// loadContext reads the chat's stored history. A read failure degrades
// to an empty context rather than failing the turn.
func (s *TurnService) loadContext(ctx context.Context, chatID uint32) []repositories.ChatMessage {
	if s.chats == nil {
		return nil
	}

	history, err := s.chats.RecentContext(ctx, int64(chatID), s.contextLimit)
	if err != nil {
		s.logger.Warn("Failed to load chat context, continuing without",
			zap.Uint32("chatID", chatID),
			zap.Error(err))
		return nil
	}
	return history
}

// persist records the completed exchange. Best-effort: the client has
// already received the full turn.
func (s *TurnService) persist(chatID uint32, userText, assistantText string) {
	if s.chats == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	chat := entities.NewChat(int64(chatID), userText)
	if err := s.chats.Create(ctx, chat); err != nil {
		s.logger.Warn("Failed to create chat record",
			zap.Uint32("chatID", chatID),
			zap.Error(err))
		return
	}

	now := time.Now()
	if err := s.chats.Append(ctx, int64(chatID), entities.MessageRoleUser, userText, now); err != nil {
		s.logger.Warn("Failed to append user message",
			zap.Uint32("chatID", chatID),
			zap.Error(err))
	}
	if err := s.chats.Append(ctx, int64(chatID), entities.MessageRoleAssistant, assistantText, now); err != nil {
		s.logger.Warn("Failed to append assistant message",
			zap.Uint32("chatID", chatID),
			zap.Error(err))
	}
}

func (s *TurnService) sendError(send FrameSender, msg string, responseTo uint32) {
	rt := responseTo
	send.Send(protocol.MsgError, &protocol.ErrorData{
		Error:      msg,
		ResponseTo: &rt,
	}, nil)
}

func (s *TurnService) finish(req TurnRequest, send FrameSender) {
	send.Send(protocol.MsgChatResponseDone, &protocol.ChatResponseDone{
		ChatID: req.ChatID,
	}, nil)
}
