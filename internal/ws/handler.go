package ws

import (
	"context"
	"net/http"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/hashfleet/hashfleet/internal/auth"
	"github.com/hashfleet/hashfleet/internal/telemetry"
	"github.com/hashfleet/hashfleet/pkg/plugin"
)

// Handler provides the WebSocket endpoint for live fleet updates.
type Handler struct {
	hub    *Hub
	tokens *auth.TokenService
	bus    plugin.EventBus
	logger *zap.Logger
}

// Compile-time check that Handler implements the server interface.
var _ interface {
	RegisterRoutes(mux *http.ServeMux)
} = (*Handler)(nil)

// NewHandler creates a WebSocket handler and subscribes to fleet events.
func NewHandler(tokens *auth.TokenService, bus plugin.EventBus, logger *zap.Logger) *Handler {
	h := &Handler{
		hub:    NewHub(logger),
		tokens: tokens,
		bus:    bus,
		logger: logger,
	}
	h.subscribeToEvents()
	return h
}

// RegisterRoutes registers WebSocket routes on the server mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/ws/fleet", h.handleFleetStream)
}

// handleFleetStream upgrades the request and streams fleet updates to
// the dashboard session until it disconnects.
func (h *Handler) handleFleetStream(w http.ResponseWriter, r *http.Request) {
	// Browsers cannot set headers on a WebSocket dial, so the access
	// token arrives as a query parameter.
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token parameter", http.StatusUnauthorized)
		return
	}

	claims, err := h.tokens.ValidateAccessToken(token)
	if err != nil {
		http.Error(w, "invalid or expired token", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Origin checks add nothing here; the token above already gates
		// the stream.
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.logger.Error("websocket accept failed", zap.Error(err))
		return
	}

	client := &Client{
		conn:   conn,
		userID: claims.UserID,
		send:   make(chan Message, 256),
		logger: h.logger,
	}

	h.hub.Register(client)

	ctx := r.Context()
	done := make(chan struct{})
	go func() {
		client.writePump(ctx)
		close(done)
	}()

	// readPump returns once the peer goes away; tear down in order.
	client.readPump(ctx)

	h.hub.Unregister(client)
	conn.Close(websocket.StatusNormalClosure, "")
	<-done
}

// subscribeToEvents fans telemetry bus events out to every session.
func (h *Handler) subscribeToEvents() {
	if h.bus == nil {
		return
	}

	h.bus.Subscribe(telemetry.TopicBatchReceived, func(_ context.Context, event plugin.Event) {
		batch, ok := event.Payload.(telemetry.BatchEvent)
		if !ok {
			return
		}
		h.hub.Broadcast(Message{
			Type:      MessageFleetUpdated,
			Timestamp: event.Timestamp,
			Data: FleetUpdatedData{
				BatchID:    batch.BatchID,
				Devices:    batch.Devices,
				ReceivedAt: batch.ReceivedAt,
			},
		})
	})

	h.bus.Subscribe(telemetry.TopicStoreCleared, func(_ context.Context, event plugin.Event) {
		cleared, ok := event.Payload.(telemetry.ClearedEvent)
		if !ok {
			return
		}
		h.hub.Broadcast(Message{
			Type:      MessageFleetCleared,
			Timestamp: event.Timestamp,
			Data: FleetClearedData{
				ClearedAt: cleared.ClearedAt,
			},
		})
	})

	h.logger.Info("fleet stream wired to telemetry events")
}
