package websocket

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/buzzylabs/buzzy/internal/protocol"
	"github.com/buzzylabs/buzzy/usecase"
)

type writeData struct {
	// messageType is the websocket message type. Protocol frames always
	// go out as websocket.BinaryMessage.
	messageType int
	payload     []byte
}

// Client is a middleman between one websocket connection and the turn
// orchestrator. It decodes inbound frames, dispatches them, and runs
// queued turns one at a time so responses never interleave.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan writeData

	// Requested turns, consumed sequentially by turnLoop.
	turnQueue chan usecase.TurnRequest

	// Closed when the connection goes away; cancels the turn in flight.
	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc

	connID string
	logger *zap.Logger

	// Negotiated default sample rate from client_hello.
	sampleRate int

	closed bool
	mu     sync.RWMutex
}

// readPump pumps frames from the websocket connection into the router.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}

		if messageType != websocket.BinaryMessage {
			c.sendError("only binary frames are supported", nil)
			continue
		}

		msg, err := protocol.Decode(frame)
		if err != nil {
			c.handleDecodeError(err)
			continue
		}

		c.handleFrame(&msg)
	}
}

// writePump pumps messages from the router to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(message.messageType, message.payload); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// turnLoop runs queued turns one at a time. A slow turn never blocks the
// read pump, and a connection can keep submitting requests while an
// earlier one streams.
func (c *Client) turnLoop() {
	for {
		select {
		case <-c.done:
			return
		case req := <-c.turnQueue:
			c.hub.turns.Run(c.ctx, req, c)
		}
	}
}

// handleFrame dispatches one decoded frame.
func (c *Client) handleFrame(msg *protocol.Message) {
	switch msg.Type {
	case protocol.MsgClientHello:
		hello := msg.Data.(*protocol.ClientHello)
		c.mu.Lock()
		c.sampleRate = hello.SampleRate
		c.mu.Unlock()
		c.logger.Info("Client hello", zap.Int("sampleRate", hello.SampleRate))

	case protocol.MsgRequestTextChat:
		req := msg.Data.(*protocol.TextChatRequest)
		c.enqueueTurn(msg.ID, usecase.TurnRequest{
			Text: req.Text,
			TTS:  req.TTS,
		})

	case protocol.MsgRequestAudioChat:
		req := msg.Data.(*protocol.AudioChatRequest)
		if len(msg.Binary) == 0 {
			c.sendError("audio chat request carries no audio", &msg.ID)
			return
		}
		rate := req.SampleRate
		if rate == 0 {
			c.mu.RLock()
			rate = c.sampleRate
			c.mu.RUnlock()
		}
		c.enqueueTurn(msg.ID, usecase.TurnRequest{
			Audio:      msg.Binary,
			SampleRate: rate,
			TTS:        req.TTS,
		})

	default:
		c.sendError(fmt.Sprintf("unexpected message type %s", msg.Type), &msg.ID)
	}
}

// enqueueTurn allocates the chat id, acknowledges the request right away,
// and hands the turn to turnLoop. The acknowledgement goes out before the
// turn runs so the client can correlate every later frame.
func (c *Client) enqueueTurn(requestID uint32, req usecase.TurnRequest) {
	chatID := c.hub.chatIDs.Next()
	req.ChatID = chatID
	req.RequestID = requestID

	c.Send(protocol.MsgNewChatResponse, &protocol.NewChatResponse{
		ChatID:     chatID,
		ResponseTo: requestID,
	}, nil)

	select {
	case c.turnQueue <- req:
	default:
		c.sendError("too many pending turns", &requestID)
		c.Send(protocol.MsgChatResponseDone, &protocol.ChatResponseDone{ChatID: chatID}, nil)
	}
}

func (c *Client) handleDecodeError(err error) {
	var verr *protocol.ProtocolVersionError
	if errors.As(err, &verr) {
		c.sendError(fmt.Sprintf("unsupported protocol version %d", verr.Version), nil)
		return
	}
	c.sendError(fmt.Sprintf("malformed frame: %v", err), nil)
}

func (c *Client) sendError(msg string, responseTo *uint32) {
	c.Send(protocol.MsgError, &protocol.ErrorData{
		Error:      msg,
		ResponseTo: responseTo,
	}, nil)
}

// Send encodes one protocol frame and queues it for the write pump. When
// the write buffer is full Send blocks until the pump drains it or the
// connection closes, so a turn's frames are delivered in full and in
// order. After the connection is unregistered frames are dropped
// silently, so a turn finishing against a dead connection is harmless.
func (c *Client) Send(t protocol.MsgType, data protocol.Payload, binary []byte) error {
	frame, err := protocol.Encode(protocol.Message{
		Type:   t,
		ID:     c.hub.msgIDs.Next(),
		Data:   data,
		Binary: binary,
	})
	if err != nil {
		return err
	}

	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return nil
	}

	select {
	case c.send <- writeData{messageType: websocket.BinaryMessage, payload: frame}:
	case <-c.done:
	}
	return nil
}

// markClosed stops frame delivery and cancels the turn in flight. Called
// by the hub exactly once when the client unregisters.
func (c *Client) markClosed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.cancel()
	close(c.done)
}

var _ usecase.FrameSender = (*Client)(nil)
