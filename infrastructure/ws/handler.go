package ws

import (
	"charity-chat/auth"
	"charity-chat/contract"
	"charity-chat/domain"
	"charity-chat/observability"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type Options struct {
	BufferSize     int
	PingInterval   time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64
}

// DefaultOptions pings every 25s and drops a peer silent for 60s.
func DefaultOptions(bufferSize int) Options {
	return Options{
		BufferSize:     bufferSize,
		PingInterval:   25 * time.Second,
		PongWait:       60 * time.Second,
		WriteWait:      10 * time.Second,
		MaxMessageSize: 16 * 1024,
	}
}

// Handler upgrades authenticated requests into realtime connections.
// It must be mounted behind auth.Middleware.
type Handler struct {
	log          *slog.Logger
	orchestrator contract.IOrchestrator
	metrics      *observability.Metrics
	options      Options
	upgrader     websocket.Upgrader

	mu          sync.Mutex
	connections map[domain.ConnectionID]*Connection
}

func NewHandler(log *slog.Logger, orchestrator contract.IOrchestrator, metrics *observability.Metrics, options Options) *Handler {
	return &Handler{
		log:          log,
		orchestrator: orchestrator,
		metrics:      metrics,
		options:      options,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browser clients are served from another origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		connections: make(map[domain.ConnectionID]*Connection),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("Upgrade failed", "error", err)
		return
	}

	c := newConnection(domain.ConnectionID(uuid.NewString()), identity, conn, h.orchestrator, h.options, h.log)
	h.track(c)
	defer h.untrack(c)

	c.log.Info("Socket connected")
	go c.writePump()
	c.readPump()
	c.log.Info("Socket disconnected")
}

func (h *Handler) track(c *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connections[c.id] = c
	h.metrics.ActiveConnections.Set(float64(len(h.connections)))
}

func (h *Handler) untrack(c *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.connections, c.id)
	h.metrics.ActiveConnections.Set(float64(len(h.connections)))
}

// Close ends every open connection. http.Server.Shutdown does not
// track hijacked connections.
func (h *Handler) Close() {
	h.mu.Lock()
	connections := make([]*Connection, 0, len(h.connections))
	for _, c := range h.connections {
		connections = append(connections, c)
	}
	h.mu.Unlock()
	for _, c := range connections {
		c.Close()
	}
}
