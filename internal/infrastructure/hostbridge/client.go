package hostbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/oakhollow/trapengine/internal/domain/host"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
	sendBufferSize = 64
	callTimeout    = 5 * time.Second
)

// EventRouter is what a Bridge hands a decoded inbound event to; the hub
// wires this to the dispatcher, with the bridge itself passed through as
// the host.Platform for that call.
type EventRouter interface {
	RouteGraphicChange(ctx context.Context, platform host.Platform, payload GraphicChangePayload)
	RouteDoorChange(ctx context.Context, platform host.Platform, payload DoorChangePayload)
	RoutePathChange(ctx context.Context, platform host.Platform, payload PathChangePayload)
	RouteChatCommand(ctx context.Context, platform host.Platform, payload ChatCommandPayload)
	RouteRollResult(ctx context.Context, platform host.Platform, payload RollResultPayload)
}

// Bridge is one live connection to a VTT host process. It implements
// host.Platform by issuing "call" frames and blocking until the matching
// "result" frame arrives, and demultiplexes inbound "event" frames to an
// EventRouter. Grounded on the teacher's Client (readPump/writePump over
// a buffered send channel), generalized from one-way event delivery to a
// request/response RPC client.
type Bridge struct {
	SessionID string

	conn   *websocket.Conn
	send   chan Frame
	router EventRouter
	logger zerolog.Logger

	mu      sync.Mutex
	pending map[string]chan Frame
	closed  bool
}

var _ host.Platform = (*Bridge)(nil)

func NewBridge(sessionID string, conn *websocket.Conn, router EventRouter, logger zerolog.Logger) *Bridge {
	return &Bridge{
		SessionID: sessionID,
		conn:      conn,
		send:      make(chan Frame, sendBufferSize),
		router:    router,
		logger:    logger,
		pending:   make(map[string]chan Frame),
	}
}

// ReadPump reads frames from the host until the connection closes. Event
// frames are dispatched on their own goroutine (the host may push several
// events back to back and none should block reading the next frame);
// result frames are delivered to whichever Call is waiting on their ID.
func (b *Bridge) ReadPump(ctx context.Context, onClose func()) {
	defer func() {
		b.conn.Close()
		onClose()
	}()

	b.conn.SetReadLimit(maxMessageSize)
	b.conn.SetReadDeadline(time.Now().Add(pongWait))
	b.conn.SetPongHandler(func(string) error {
		b.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var frame Frame
		if err := b.conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				b.logger.Warn().Str("session_id", b.SessionID).Err(err).Msg("host bridge unexpected close")
			}
			return
		}

		switch frame.Kind {
		case KindResult:
			b.deliver(frame)
		case KindEvent:
			go b.routeEvent(ctx, frame)
		default:
			b.logger.Warn().Str("kind", frame.Kind).Msg("host bridge unknown frame kind")
		}
	}
}

// WritePump drains the send channel to the socket and keeps the
// connection alive with periodic pings.
func (b *Bridge) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		b.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-b.send:
			b.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				b.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := b.conn.WriteJSON(frame); err != nil {
				return
			}
		case <-ticker.C:
			b.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := b.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (b *Bridge) routeEvent(ctx context.Context, frame Frame) {
	if b.router == nil {
		return
	}
	switch frame.Event {
	case EventGraphicChange:
		var p GraphicChangePayload
		if err := json.Unmarshal(frame.Payload, &p); err == nil {
			b.router.RouteGraphicChange(ctx, b, p)
		}
	case EventDoorChange:
		var p DoorChangePayload
		if err := json.Unmarshal(frame.Payload, &p); err == nil {
			b.router.RouteDoorChange(ctx, b, p)
		}
	case EventPathChange:
		var p PathChangePayload
		if err := json.Unmarshal(frame.Payload, &p); err == nil {
			b.router.RoutePathChange(ctx, b, p)
		}
	case EventChatCommand:
		var p ChatCommandPayload
		if err := json.Unmarshal(frame.Payload, &p); err == nil {
			b.router.RouteChatCommand(ctx, b, p)
		}
	case EventRollResult:
		var p RollResultPayload
		if err := json.Unmarshal(frame.Payload, &p); err == nil {
			b.router.RouteRollResult(ctx, b, p)
		}
	default:
		b.logger.Warn().Str("event", frame.Event).Msg("host bridge unknown event type")
	}
}

func (b *Bridge) deliver(frame Frame) {
	b.mu.Lock()
	ch, ok := b.pending[frame.ID]
	if ok {
		delete(b.pending, frame.ID)
	}
	b.mu.Unlock()
	if ok {
		ch <- frame
	}
}

// Call sends a "call" frame and blocks for the matching "result", failing
// on ctx cancellation, a host-reported error, or callTimeout.
func (b *Bridge) Call(ctx context.Context, method string, params any, result any) error {
	payload, err := json.Marshal(params)
	if err != nil {
		return err
	}

	id := uuid.New().String()
	ch := make(chan Frame, 1)
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return fmt.Errorf("host bridge %s is closed", b.SessionID)
	}
	b.pending[id] = ch
	b.mu.Unlock()

	frame := Frame{Kind: KindCall, ID: id, Method: method, Payload: payload}

	select {
	case b.send <- frame:
	case <-ctx.Done():
		b.dropPending(id)
		return ctx.Err()
	}

	callCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	select {
	case resp := <-ch:
		if resp.Error != "" {
			return fmt.Errorf("host bridge call %s failed: %s", method, resp.Error)
		}
		if result == nil || len(resp.Payload) == 0 {
			return nil
		}
		return json.Unmarshal(resp.Payload, result)
	case <-callCtx.Done():
		b.dropPending(id)
		return fmt.Errorf("host bridge call %s: %w", method, callCtx.Err())
	}
}

func (b *Bridge) dropPending(id string) {
	b.mu.Lock()
	delete(b.pending, id)
	b.mu.Unlock()
}

// Close marks the bridge closed and stops further outbound calls from
// being queued; ReadPump/WritePump tear the socket down on their own.
func (b *Bridge) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	close(b.send)
	b.mu.Unlock()
}
