package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/bamtlabs/wsiflow/internal/common"
	"github.com/bamtlabs/wsiflow/internal/interfaces"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// WebSocketHandler streams the global status snapshot to connected
// clients on an interval. Outbound frames across all clients share one
// rate limiter so a busy cluster cannot flood slow consumers.
type WebSocketHandler struct {
	scheduler interfaces.SchedulerService
	logger    arbor.ILogger

	pushInterval time.Duration
	limiter      *rate.Limiter

	mu      sync.Mutex
	clients map[*websocket.Conn]*sync.Mutex
}

// NewWebSocketHandler creates the live status handler
func NewWebSocketHandler(scheduler interfaces.SchedulerService, cfg *common.WebSocketConfig, logger arbor.ILogger) *WebSocketHandler {
	maxPush := cfg.MaxPushPerSec
	if maxPush <= 0 {
		maxPush = 4
	}
	return &WebSocketHandler{
		scheduler:    scheduler,
		logger:       logger,
		pushInterval: cfg.PushPause(),
		limiter:      rate.NewLimiter(rate.Limit(maxPush), 1),
		clients:      make(map[*websocket.Conn]*sync.Mutex),
	}
}

// HandleStatus handles GET /ws/status
func (h *WebSocketHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	h.mu.Lock()
	h.clients[conn] = &sync.Mutex{}
	count := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug().Int("clients", count).Msg("WebSocket client connected")

	// Push the current snapshot immediately so clients render without
	// waiting one interval
	h.pushTo(r.Context(), conn)

	go h.readLoop(conn)
	h.writeLoop(r.Context(), conn)
}

// readLoop drains client frames so pings and close messages are processed
func (h *WebSocketHandler) readLoop(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.drop(conn)
			return
		}
	}
}

func (h *WebSocketHandler) writeLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(h.pushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.drop(conn)
			return
		case <-ticker.C:
			if !h.connected(conn) {
				return
			}
			h.pushTo(ctx, conn)
		}
	}
}

// pushTo sends one status frame, subject to the shared rate cap
func (h *WebSocketHandler) pushTo(ctx context.Context, conn *websocket.Conn) {
	if !h.limiter.Allow() {
		return
	}

	status, err := h.scheduler.GlobalStatus(ctx)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to build status snapshot for WebSocket push")
		return
	}

	h.mu.Lock()
	writeMu, ok := h.clients[conn]
	h.mu.Unlock()
	if !ok {
		return
	}

	writeMu.Lock()
	err = conn.WriteJSON(map[string]interface{}{
		"type":      "global_status",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"data":      status,
	})
	writeMu.Unlock()

	if err != nil {
		h.logger.Debug().Err(err).Msg("WebSocket write failed, dropping client")
		h.drop(conn)
	}
}

func (h *WebSocketHandler) connected(conn *websocket.Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.clients[conn]
	return ok
}

func (h *WebSocketHandler) drop(conn *websocket.Conn) {
	h.mu.Lock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		conn.Close()
	}
	count := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug().Int("clients", count).Msg("WebSocket client disconnected")
}

// Close disconnects all clients
func (h *WebSocketHandler) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.Close()
		delete(h.clients, conn)
	}
}
