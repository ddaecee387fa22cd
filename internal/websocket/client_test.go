package websocket

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/buzzylabs/buzzy/domain/repositories"
	"github.com/buzzylabs/buzzy/internal/protocol"
	"github.com/buzzylabs/buzzy/usecase"
)

// newTestClient builds a client wired to a fresh hub but no transport.
// handleFrame and Send never touch the connection, only the send channel.
func newTestClient(t *testing.T) *Client {
	t.Helper()
	hub := NewHub(nil, protocol.NewCounter(), protocol.NewCounter(), zap.NewNop())
	return newClient(hub, nil, zap.NewNop())
}

// nextFrame pops one queued outbound frame and decodes it.
func nextFrame(t *testing.T, c *Client) *protocol.Message {
	t.Helper()
	select {
	case wd := <-c.send:
		msg, err := protocol.Decode(wd.payload)
		if err != nil {
			t.Fatalf("outbound frame does not decode: %v", err)
		}
		return &msg
	default:
		t.Fatal("no outbound frame queued")
		return nil
	}
}

func noFrame(t *testing.T, c *Client) {
	t.Helper()
	select {
	case wd := <-c.send:
		msg, _ := protocol.Decode(wd.payload)
		t.Fatalf("unexpected outbound frame %v", msg.Type)
	default:
	}
}

func TestClientHelloStoresSampleRate(t *testing.T) {
	c := newTestClient(t)

	c.handleFrame(&protocol.Message{
		Type: protocol.MsgClientHello,
		ID:   0,
		Data: &protocol.ClientHello{SampleRate: 24000},
	})

	if c.sampleRate != 24000 {
		t.Errorf("sampleRate = %d, want 24000", c.sampleRate)
	}
	noFrame(t, c)
}

func TestTextChatRequestAcknowledgedAndQueued(t *testing.T) {
	c := newTestClient(t)

	c.handleFrame(&protocol.Message{
		Type: protocol.MsgRequestTextChat,
		ID:   42,
		Data: &protocol.TextChatRequest{Text: "hello", TTS: true},
	})

	ack := nextFrame(t, c)
	if ack.Type != protocol.MsgNewChatResponse {
		t.Fatalf("first frame = %v, want new_chat_response", ack.Type)
	}
	data := ack.Data.(*protocol.NewChatResponse)
	if data.ResponseTo != 42 {
		t.Errorf("ResponseTo = %d, want 42", data.ResponseTo)
	}

	select {
	case req := <-c.turnQueue:
		if req.Text != "hello" || !req.TTS {
			t.Errorf("queued request = %+v", req)
		}
		if req.ChatID != data.ChatID {
			t.Errorf("queued ChatID = %d, acknowledged %d", req.ChatID, data.ChatID)
		}
		if req.RequestID != 42 {
			t.Errorf("RequestID = %d, want 42", req.RequestID)
		}
	default:
		t.Fatal("no turn queued")
	}
}

func TestChatIDsAdvancePerRequest(t *testing.T) {
	c := newTestClient(t)

	var ids []uint32
	for i := 0; i < 3; i++ {
		c.handleFrame(&protocol.Message{
			Type: protocol.MsgRequestTextChat,
			ID:   uint32(i),
			Data: &protocol.TextChatRequest{Text: "x"},
		})
		ack := nextFrame(t, c)
		ids = append(ids, ack.Data.(*protocol.NewChatResponse).ChatID)
		<-c.turnQueue
	}

	for i := 1; i < len(ids); i++ {
		if ids[i] != ids[i-1]+1 {
			t.Errorf("chat ids not sequential: %v", ids)
		}
	}
}

func TestAudioChatRequestUsesHelloRateWhenUnset(t *testing.T) {
	c := newTestClient(t)

	c.handleFrame(&protocol.Message{
		Type: protocol.MsgClientHello,
		ID:   0,
		Data: &protocol.ClientHello{SampleRate: 16000},
	})
	c.handleFrame(&protocol.Message{
		Type:   protocol.MsgRequestAudioChat,
		ID:     1,
		Data:   &protocol.AudioChatRequest{TTS: true},
		Binary: []byte{1, 2, 3, 4},
	})

	nextFrame(t, c) // ack
	req := <-c.turnQueue
	if req.SampleRate != 16000 {
		t.Errorf("SampleRate = %d, want hello fallback 16000", req.SampleRate)
	}
	if len(req.Audio) != 4 {
		t.Errorf("Audio length = %d, want 4", len(req.Audio))
	}
}

func TestAudioChatRequestWithoutAudioRejected(t *testing.T) {
	c := newTestClient(t)

	c.handleFrame(&protocol.Message{
		Type: protocol.MsgRequestAudioChat,
		ID:   7,
		Data: &protocol.AudioChatRequest{SampleRate: 16000},
	})

	msg := nextFrame(t, c)
	if msg.Type != protocol.MsgError {
		t.Fatalf("frame = %v, want error", msg.Type)
	}
	data := msg.Data.(*protocol.ErrorData)
	if data.ResponseTo == nil || *data.ResponseTo != 7 {
		t.Errorf("ResponseTo = %v, want 7", data.ResponseTo)
	}

	select {
	case <-c.turnQueue:
		t.Error("rejected request was queued")
	default:
	}
}

func TestServerOnlyFrameTypeRejected(t *testing.T) {
	c := newTestClient(t)

	c.handleFrame(&protocol.Message{
		Type: protocol.MsgChatResponseText,
		ID:   3,
		Data: &protocol.ChatResponseText{ChatID: 1, Role: protocol.RoleUser, Text: "hi"},
	})

	msg := nextFrame(t, c)
	if msg.Type != protocol.MsgError {
		t.Fatalf("frame = %v, want error", msg.Type)
	}
	if data := msg.Data.(*protocol.ErrorData); !strings.Contains(data.Error, "unexpected message type") {
		t.Errorf("error = %q", data.Error)
	}
}

func TestDecodeErrorsReportedToClient(t *testing.T) {
	c := newTestClient(t)

	c.handleDecodeError(&protocol.ProtocolVersionError{Version: 9})
	msg := nextFrame(t, c)
	if data := msg.Data.(*protocol.ErrorData); !strings.Contains(data.Error, "version 9") {
		t.Errorf("version error = %q", data.Error)
	}

	c.handleDecodeError(&protocol.MalformedFrameError{Reason: "frame too short"})
	msg = nextFrame(t, c)
	if data := msg.Data.(*protocol.ErrorData); !strings.Contains(data.Error, "malformed frame") {
		t.Errorf("malformed error = %q", data.Error)
	}
}

func TestTurnQueueOverflowAnsweredWithErrorAndDone(t *testing.T) {
	c := newTestClient(t)

	for i := 0; i <= turnQueueDepth; i++ {
		c.handleFrame(&protocol.Message{
			Type: protocol.MsgRequestTextChat,
			ID:   uint32(i),
			Data: &protocol.TextChatRequest{Text: "x"},
		})
	}

	var sawError, sawDone bool
	for {
		select {
		case wd := <-c.send:
			msg, err := protocol.Decode(wd.payload)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			switch msg.Type {
			case protocol.MsgError:
				sawError = true
			case protocol.MsgChatResponseDone:
				sawDone = true
			}
		default:
			if !sawError || !sawDone {
				t.Errorf("overflow response incomplete: error=%v done=%v", sawError, sawDone)
			}
			return
		}
	}
}

func TestSendFramesDecodeOnTheWire(t *testing.T) {
	c := newTestClient(t)

	if err := c.Send(protocol.MsgChatResponseText, &protocol.ChatResponseText{
		ChatID: 2, Role: protocol.RoleAssistant, Text: "hi",
	}, nil); err != nil {
		t.Fatalf("Send: %v", err)
	}

	msg := nextFrame(t, c)
	if msg.Type != protocol.MsgChatResponseText {
		t.Fatalf("frame = %v, want chat_response_text", msg.Type)
	}
	if data := msg.Data.(*protocol.ChatResponseText); data.Text != "hi" || data.ChatID != 2 {
		t.Errorf("decoded payload = %+v", data)
	}
}

func TestSendKeepsDoneFrameWhenBufferFull(t *testing.T) {
	c := newTestClient(t)

	for i := 0; i < cap(c.send); i++ {
		if err := c.Send(protocol.MsgChatResponseText, &protocol.ChatResponseText{
			ChatID: 1, Role: protocol.RoleAssistant, Text: "chunk",
		}, nil); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}

	delivered := make(chan struct{})
	go func() {
		c.Send(protocol.MsgChatResponseDone, &protocol.ChatResponseDone{ChatID: 1}, nil)
		close(delivered)
	}()

	// Drain the buffer plus the frame that was waiting on it. The done
	// frame must come through once the pump frees a slot.
	var sawDone bool
	for i := 0; i <= cap(c.send); i++ {
		wd := <-c.send
		msg, err := protocol.Decode(wd.payload)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if msg.Type == protocol.MsgChatResponseDone {
			sawDone = true
		}
	}
	<-delivered
	if !sawDone {
		t.Error("done frame lost under a full send buffer")
	}
}

func TestSendUnblocksWhenConnectionCloses(t *testing.T) {
	c := newTestClient(t)

	for i := 0; i < cap(c.send); i++ {
		if err := c.Send(protocol.MsgChatResponseText, &protocol.ChatResponseText{
			ChatID: 1, Role: protocol.RoleAssistant, Text: "chunk",
		}, nil); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}

	returned := make(chan struct{})
	go func() {
		c.Send(protocol.MsgChatResponseDone, &protocol.ChatResponseDone{ChatID: 1}, nil)
		close(returned)
	}()

	c.markClosed()
	<-returned
}

func TestSendAfterCloseIsSilent(t *testing.T) {
	c := newTestClient(t)
	c.markClosed()

	if err := c.Send(protocol.MsgChatResponseDone, &protocol.ChatResponseDone{ChatID: 1}, nil); err != nil {
		t.Errorf("Send after close returned %v", err)
	}
	noFrame(t, c)

	// markClosed is idempotent.
	c.markClosed()

	select {
	case <-c.done:
	default:
		t.Error("done channel not closed")
	}
}

func TestTurnLoopStopsOnClose(t *testing.T) {
	c := newTestClient(t)

	stopped := make(chan struct{})
	go func() {
		c.turnLoop()
		close(stopped)
	}()

	c.markClosed()
	<-stopped
}

// turnLoopLLM records the history it was asked to complete, then fails
// so the turn finishes without further collaborators.
type turnLoopLLM struct {
	ran chan []repositories.ChatMessage
}

func (l turnLoopLLM) StreamCompletion(ctx context.Context, history []repositories.ChatMessage) (repositories.CompletionStream, error) {
	l.ran <- history
	return nil, errors.New("stub stream")
}

func TestTurnLoopRunsQueuedTurn(t *testing.T) {
	ran := make(chan []repositories.ChatMessage, 1)
	hub := NewHub(usecase.NewTurnService(
		turnLoopLLM{ran: ran}, nil, nil, nil, zap.NewNop(),
	), protocol.NewCounter(), protocol.NewCounter(), zap.NewNop())
	c := newClient(hub, nil, zap.NewNop())

	go c.turnLoop()
	defer c.markClosed()

	c.handleFrame(&protocol.Message{
		Type: protocol.MsgRequestTextChat,
		ID:   5,
		Data: &protocol.TextChatRequest{Text: "ping"},
	})

	history := <-ran
	if len(history) != 1 || history[0].Content != "ping" {
		t.Errorf("completed history = %+v", history)
	}
}
