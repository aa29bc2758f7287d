package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/frevohq/frevo-core/internal/bus"
	"github.com/frevohq/frevo-core/internal/infrastructure/monitoring"
	"github.com/frevohq/frevo-core/internal/shared/types"
	"github.com/frevohq/frevo-core/internal/store"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // popup and dev tooling connect from extension origins
	},
}

// client is one connected popup. Writes are serialized per connection;
// gorilla allows a single concurrent writer.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) send(data interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(data)
}

// Handler manages popup WebSocket connections: it feeds settings changes and
// interception events outward and routes action requests over the bus.
type Handler struct {
	bus     *bus.Bus
	metrics *monitoring.Metrics
	logger  *zap.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
}

// NewHandler creates the WebSocket handler and hooks it to store changes.
func NewHandler(b *bus.Bus, st store.Store, metrics *monitoring.Metrics, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{
		bus:     b,
		metrics: metrics,
		logger:  logger,
		clients: make(map[*client]struct{}),
	}

	onChange := func(ch store.Change) {
		h.broadcast(map[string]interface{}{
			"type":      "settings_changed",
			"scope":     string(ch.Scope),
			"key":       ch.Key,
			"value":     ch.NewValue,
			"timestamp": time.Now().Unix(),
		})
	}
	st.Subscribe(store.ScopeSync, onChange)
	st.Subscribe(store.ScopeLocal, onChange)

	return h
}

// PublishInterception pushes one observed host request to every popup.
func (h *Handler) PublishInterception(data map[string]interface{}) {
	event := map[string]interface{}{
		"type":      "api_intercepted",
		"timestamp": time.Now().Unix(),
	}
	for k, v := range data {
		event[k] = v
	}
	h.broadcast(event)
}

// HandleConnection upgrades the request and runs the message loop.
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	cl := &client{conn: conn}
	h.mu.Lock()
	h.clients[cl] = struct{}{}
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.IncWSConnections()
	}
	defer func() {
		h.mu.Lock()
		delete(h.clients, cl)
		h.mu.Unlock()
		if h.metrics != nil {
			h.metrics.DecWSConnections()
		}
	}()

	reqCtx := c.Request.Context()
	cl.send(map[string]interface{}{
		"type":    "system",
		"message": "connected",
	})

	for {
		var msg types.WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("websocket read ended", zap.Error(err))
			}
			return
		}
		if h.metrics != nil {
			h.metrics.RecordWSMessage("in", msg.Type)
		}

		switch msg.Type {
		case "ping":
			cl.send(map[string]interface{}{"type": "pong"})
		case "action":
			h.handleAction(reqCtx, cl, msg)
		default:
			h.sendError(cl, "unknown message type")
		}
	}
}

// handleAction routes one state-machine action to the content context and
// reports the definite result back.
func (h *Handler) handleAction(reqCtx context.Context, cl *client, msg types.WSMessage) {
	ctx, cancel := context.WithTimeout(reqCtx, 10*time.Second)
	defer cancel()

	result, err := h.bus.Send(ctx, bus.Content, bus.Message{
		Action:  msg.Action,
		Payload: msg.Payload,
	})
	if err != nil {
		// Includes ErrNoReceiver during navigation churn; the popup
		// retries on its own schedule.
		h.sendError(cl, err.Error())
		return
	}

	cl.send(map[string]interface{}{
		"type":      "result",
		"action":    string(msg.Action),
		"result":    result,
		"timestamp": time.Now().Unix(),
	})
}

func (h *Handler) broadcast(data interface{}) {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for cl := range h.clients {
		clients = append(clients, cl)
	}
	h.mu.Unlock()

	for _, cl := range clients {
		if err := cl.send(data); err != nil {
			h.logger.Debug("websocket broadcast failed", zap.Error(err))
		}
	}
	if h.metrics != nil && len(clients) > 0 {
		h.metrics.RecordWSMessage("out", "broadcast")
	}
}

func (h *Handler) sendError(cl *client, msg string) {
	cl.send(map[string]interface{}{
		"type":      "error",
		"message":   msg,
		"timestamp": time.Now().Unix(),
	})
}
