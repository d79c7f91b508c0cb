package websocket

import (
	"context"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// TokenParser validates a bearer token and returns the caller's role.
type TokenParser func(token string) (role string, err error)

// Client represents a single connected WebSocket client
type Client struct {
	Hub  *Hub
	Conn *websocket.Conn
	Send chan []byte
}

// Hub maintains the set of active back-office clients and fans revalidation
// events out to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	mu         sync.Mutex
	upgrader   websocket.Upgrader
	allowed    map[string]bool
	logger     *zap.Logger
}

// NewHub initializes a new WS Hub instance. allowedRoles gates ServeWs;
// allowedOrigins empty accepts any origin.
func NewHub(logger *zap.Logger, allowedOrigins []string, allowedRoles ...string) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}

	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = true
	}
	roles := make(map[string]bool, len(allowedRoles))
	for _, r := range allowedRoles {
		roles[r] = true
	}

	return &Hub{
		broadcast:  make(chan []byte, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		allowed:    roles,
		logger:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(origins) == 0 {
					return true
				}
				return origins[r.Header.Get("Origin")]
			},
		},
	}
}

// Publish queues a message for every connected client. It never blocks: when
// the broadcast buffer is full the message is dropped.
func (h *Hub) Publish(message []byte) {
	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("websocket broadcast buffer full, dropping message")
	}
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Run starts the core dispatch loop for WebSocket events. It returns when ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.Send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Debug("websocket client connected")
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
				h.logger.Debug("websocket client disconnected")
			}
			h.mu.Unlock()
		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.Send <- message:
				default:
					close(client.Send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// writePump handles writing messages from the Hub to the WebSocket connection
func (c *Client) writePump() {
	defer func() {
		_ = c.Conn.Close()
	}()
	for message := range c.Send {
		w, err := c.Conn.NextWriter(websocket.TextMessage)
		if err != nil {
			return
		}
		_, _ = w.Write(message)

		// Fast track writing queued messages
		n := len(c.Send)
		for i := 0; i < n; i++ {
			_, _ = w.Write([]byte{'\n'})
			_, _ = w.Write(<-c.Send)
		}

		if err := w.Close(); err != nil {
			return
		}
	}
	_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// readPump pumps messages from the WebSocket connection to the hub
func (c *Client) readPump() {
	defer func() {
		c.Hub.unregister <- c
		_ = c.Conn.Close()
	}()
	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.Warn("websocket read failed", zap.Error(err))
			}
			break
		}
	}
}

// ServeWs authenticates the token query param and upgrades staff connections.
func ServeWs(hub *Hub, c *gin.Context, parse TokenParser) {
	tokenString := c.Query("token")
	if tokenString == "" {
		hub.logger.Info("websocket connection rejected: missing token")
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	role, err := parse(tokenString)
	if err != nil {
		hub.logger.Info("websocket connection rejected: invalid token", zap.Error(err))
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	if !hub.allowed[role] {
		hub.logger.Info("websocket connection rejected: inadequate permissions", zap.String("role", role))
		c.AbortWithStatus(http.StatusForbidden)
		return
	}

	conn, err := hub.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		hub.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	client := &Client{Hub: hub, Conn: conn, Send: make(chan []byte, 256)}
	client.Hub.register <- client

	go client.writePump()
	go client.readPump()
}
