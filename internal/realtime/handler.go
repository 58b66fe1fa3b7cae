package realtime

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/bissquit/incident-impact/internal/pkg/ctxlog"
	"github.com/bissquit/incident-impact/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

// MessageTypeSnapshot marks a message carrying a Snapshot.
const MessageTypeSnapshot = "snapshot"

const maxInboundMessage = 512

// Message is the envelope written to stream clients.
type Message struct {
	Type      string    `json:"type"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// HandlerConfig configures the WebSocket endpoint.
type HandlerConfig struct {
	AllowedOrigins []string
	WriteTimeout   time.Duration
	PingInterval   time.Duration
}

// Handler serves the incident stream over WebSocket.
type Handler struct {
	hub      *Hub
	config   HandlerConfig
	upgrader websocket.Upgrader
}

// NewHandler creates a new stream handler.
func NewHandler(hub *Hub, cfg HandlerConfig) *Handler {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}

	origins := make(map[string]bool, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		origins[o] = true
	}

	return &Handler{
		hub:    hub,
		config: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || origins["*"] || origins[origin]
			},
		},
	}
}

// RegisterRoutes registers the stream route. It must sit behind AuthMiddleware.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/incidents/stream", h.Stream)
}

// Stream handles GET /incidents/stream.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r.Context())
	if userID == "" {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	logger := ctxlog.FromContext(r.Context())

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	var writeMu sync.Mutex
	write := func(messageType int, data []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout)); err != nil {
			return err
		}
		return conn.WriteMessage(messageType, data)
	}

	failed := make(chan struct{})
	var failOnce sync.Once

	sub := h.hub.SubscribeUser(userID, func(snap Snapshot) {
		payload, err := json.Marshal(Message{
			Type:      MessageTypeSnapshot,
			Data:      snap,
			Timestamp: snap.GeneratedAt,
		})
		if err != nil {
			logger.Error("failed to encode snapshot", "error", err)
			return
		}
		if err := write(websocket.TextMessage, payload); err != nil {
			logger.Debug("stream write failed", "error", err)
			failOnce.Do(func() { close(failed) })
		}
	})
	defer sub.Unsubscribe()

	logger.Info("stream client connected", "user_id", userID)

	go h.readPump(conn, sub)

	ticker := time.NewTicker(h.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-failed:
			return
		case <-sub.Done():
			_ = write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			logger.Info("stream client disconnected", "user_id", userID)
			return
		}
	}
}

// readPump discards client messages and ends the subscription when the peer goes away.
func (h *Handler) readPump(conn *websocket.Conn, sub *Subscription) {
	defer sub.Unsubscribe()

	pongWait := 2 * h.config.PingInterval
	conn.SetReadLimit(maxInboundMessage)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
