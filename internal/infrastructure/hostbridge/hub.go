package hostbridge

import (
	"sync"

	"github.com/rs/zerolog"
)

// Hub tracks the live Bridge per campaign session. Unlike the teacher's
// Hub (which fans one execution's events out to many subscribed
// dashboard clients), here each session has exactly one host connection,
// so the hub is a plain registry rather than a broadcast/subscription
// index.
type Hub struct {
	mu      sync.RWMutex
	bridges map[string]*Bridge
	logger  zerolog.Logger

	// OnConnect, if set, runs in its own goroutine once a bridge is
	// registered, letting a caller defer host-dependent setup (e.g. a boot
	// reconciliation pass) until a connection actually exists.
	OnConnect func(*Bridge)
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		bridges: make(map[string]*Bridge),
		logger:  logger,
	}
}

func (h *Hub) Register(b *Bridge) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if old, ok := h.bridges[b.SessionID]; ok {
		old.Close()
	}
	h.bridges[b.SessionID] = b
	h.logger.Info().Str("session_id", b.SessionID).Int("sessions", len(h.bridges)).Msg("host bridge connected")
	if h.OnConnect != nil {
		go h.OnConnect(b)
	}
}

func (h *Hub) Unregister(b *Bridge) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if current, ok := h.bridges[b.SessionID]; ok && current == b {
		delete(h.bridges, b.SessionID)
	}
	h.logger.Info().Str("session_id", b.SessionID).Int("sessions", len(h.bridges)).Msg("host bridge disconnected")
}

func (h *Hub) Get(sessionID string) (*Bridge, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	b, ok := h.bridges[sessionID]
	return b, ok
}

func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.bridges)
}

// Any returns one connected bridge, for collaborators like
// CommandAreaTrigger that need a platform handle but aren't called with
// one directly.
func (h *Hub) Any() (*Bridge, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, b := range h.bridges {
		return b, true
	}
	return nil, false
}
