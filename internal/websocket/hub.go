package websocket

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/buzzylabs/buzzy/internal/protocol"
	"github.com/buzzylabs/buzzy/usecase"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum frame size allowed from peer. Audio chat requests carry a
	// whole utterance, so this is generous.
	maxMessageSize = 2 * 1024 * 1024

	// Turns queued behind the one in flight before the connection is
	// told to back off.
	turnQueueDepth = 8
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// TODO: Implement proper origin checking
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Hub maintains the set of active connections and owns the counters that
// allocate outbound message ids and chat ids across all of them.
type Hub struct {
	// Registered connections, keyed by connection id.
	clients map[string]*Client

	// Register requests from the connections.
	register chan *Client

	// Unregister requests from connections.
	unregister chan *Client

	// Mutex for thread-safe access to clients map
	mu sync.RWMutex

	turns *usecase.TurnService

	// Injected so id sequences are deterministic under test.
	msgIDs  *protocol.Counter
	chatIDs *protocol.Counter

	logger *zap.Logger
}

// NewHub creates a new WebSocket hub.
func NewHub(turns *usecase.TurnService, msgIDs, chatIDs *protocol.Counter, logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		turns:      turns,
		msgIDs:     msgIDs,
		chatIDs:    chatIDs,
		logger:     logger,
	}
}

// Run starts the hub's main loop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.connID] = client
			h.mu.Unlock()
			h.logger.Info("Client registered", zap.String("connID", client.connID))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.connID]; ok {
				delete(h.clients, client.connID)
				client.markClosed()
			}
			h.mu.Unlock()
			h.logger.Info("Client unregistered", zap.String("connID", client.connID))
		}
	}
}

// ClientCount returns the number of registered connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Serve upgrades an HTTP request to the chat websocket and runs the
// connection until the peer goes away.
func Serve(hub *Hub, c echo.Context, logger *zap.Logger) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	client := newClient(hub, conn, logger)
	client.hub.register <- client

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.turnLoop()
	go client.readPump()

	return nil
}

func newClient(hub *Hub, conn *websocket.Conn, logger *zap.Logger) *Client {
	connID := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		hub:       hub,
		conn:      conn,
		send:      make(chan writeData, 256),
		turnQueue: make(chan usecase.TurnRequest, turnQueueDepth),
		done:      make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
		connID:    connID,
		logger:    logger.With(zap.String("connID", connID)),
	}
}
