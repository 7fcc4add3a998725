package hostbridge

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler upgrades an inbound HTTP request to a host bridge connection,
// authenticates it, and starts its read/write pumps. Grounded on the
// teacher's websocket.Handler almost unchanged; the only difference is
// what gets constructed on a successful upgrade (a Bridge instead of a
// fan-out Client).
type Handler struct {
	hub    *Hub
	auth   Authenticator
	router EventRouter
	logger zerolog.Logger
}

func NewHandler(hub *Hub, auth Authenticator, router EventRouter, logger zerolog.Logger) *Handler {
	return &Handler{hub: hub, auth: auth, router: router, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID, err := h.auth.Authenticate(r)
	if err != nil {
		h.logger.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("host bridge authentication failed")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Str("remote_addr", r.RemoteAddr).Msg("host bridge upgrade failed")
		return
	}

	bridge := NewBridge(sessionID, conn, h.router, h.logger)
	h.hub.Register(bridge)

	go bridge.WritePump()
	go bridge.ReadPump(context.Background(), func() { h.hub.Unregister(bridge) })
}
