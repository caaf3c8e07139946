package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"github.com/ultrasoundlabs/untron-v1/core/events"
	"github.com/ultrasoundlabs/untron-v1/core/types"
)

const (
	wsWriteTimeout    = 10 * time.Second
	wsSubscriberQueue = 64
)

// EventPayload is the wire form of an engine event on the stream.
type EventPayload struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// EventBroker fans engine events out to websocket subscribers. It implements
// the emitter surface the engine publishes through, so plugging it in via
// SetEmitter is the only wiring needed. Slow subscribers are dropped rather
// than allowed to stall the engine.
type EventBroker struct {
	mu   sync.Mutex
	subs map[chan EventPayload]struct{}
}

// NewEventBroker returns an empty broker.
func NewEventBroker() *EventBroker {
	return &EventBroker{subs: make(map[chan EventPayload]struct{})}
}

// Emit delivers the event to all current subscribers.
func (b *EventBroker) Emit(evt events.Event) {
	if b == nil || evt == nil {
		return
	}
	payload := EventPayload{Type: evt.EventType()}
	if carrier, ok := evt.(interface{ Event() *types.Event }); ok {
		if inner := carrier.Event(); inner != nil {
			payload.Attributes = inner.Attributes
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs {
		select {
		case sub <- payload:
		default:
			delete(b.subs, sub)
			close(sub)
		}
	}
}

// Subscribe registers a new subscriber and returns its channel plus a cancel
// function. The channel is closed on cancel or when the subscriber falls
// behind.
func (b *EventBroker) Subscribe() (<-chan EventPayload, func()) {
	ch := make(chan EventPayload, wsSubscriberQueue)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
	}
	return ch, cancel
}

// HandleEventsWS upgrades the request and streams engine events until the
// client disconnects.
func (s *Server) HandleEventsWS(w http.ResponseWriter, r *http.Request) {
	if s == nil || s.broker == nil {
		http.Error(w, "event stream unavailable", http.StatusServiceUnavailable)
		return
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")
	if err := s.streamEvents(r.Context(), conn); err != nil {
		if status := websocket.CloseStatus(err); status == -1 {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (s *Server) streamEvents(ctx context.Context, conn *websocket.Conn) error {
	updates, cancel := s.broker.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload, ok := <-updates:
			if !ok {
				return nil
			}
			if err := writeEventPayload(ctx, conn, payload); err != nil {
				return err
			}
		}
	}
}

func writeEventPayload(ctx context.Context, conn *websocket.Conn, payload EventPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
