// Package broadcast fans confusion and feedback signals out to live
// subscribers of a session.
//
// Delivery is at-most-once. Each subscription owns a bounded buffer; when a
// slow consumer lets it fill up, the oldest pending event is dropped to make
// room for the newest one. Events published for one session reach every
// subscriber in publish order.
package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"session-service/pkg/logger"

	"github.com/google/uuid"
)

type Event struct {
	SessionID string          `json:"session_id"`
	Channel   string          `json:"channel"`
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	// Origin is the node that published the event.
	Origin string `json:"origin,omitempty"`
}

func NewEvent(sessionID, channel, eventType string, data any) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, fmt.Errorf("failed to encode %s event: %w", eventType, err)
	}
	return Event{SessionID: sessionID, Channel: channel, Type: eventType, Data: raw}, nil
}

// Relay carries events between service nodes.
type Relay interface {
	Publish(ctx context.Context, payload []byte) error
	// Listen starts forwarding payloads from other nodes to handle and
	// returns once the listener is running.
	Listen(ctx context.Context, handle func(payload []byte)) error
}

type Subscription struct {
	hub       *Hub
	sessionID string
	channels  map[string]bool

	mu      sync.Mutex
	events  chan Event
	closed  bool
	dropped atomic.Uint64
}

func (s *Subscription) Events() <-chan Event { return s.events }

func (s *Subscription) SessionID() string { return s.sessionID }

// Dropped is the number of events discarded because the buffer was full.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

// Close unsubscribes and closes the event channel. Safe to call repeatedly.
func (s *Subscription) Close() {
	s.hub.remove(s)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
}

func (s *Subscription) wants(channel string) bool {
	return len(s.channels) == 0 || s.channels[channel]
}

func (s *Subscription) deliver(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for {
		select {
		case s.events <- ev:
			return
		default:
		}
		select {
		case <-s.events:
			s.dropped.Add(1)
		default:
		}
	}
}

type Hub struct {
	mu       sync.RWMutex
	log      *logger.Logger
	buffer   int
	nodeID   string
	relay    Relay
	sessions map[string]map[*Subscription]struct{}
}

func NewHub(log *logger.Logger, buffer int) *Hub {
	if buffer <= 0 {
		buffer = 1
	}
	return &Hub{
		log:      log.With("component", "SignalHub"),
		buffer:   buffer,
		nodeID:   uuid.NewString(),
		sessions: make(map[string]map[*Subscription]struct{}),
	}
}

func (h *Hub) NodeID() string { return h.nodeID }

// SetRelay attaches a cross-node relay. Must be called before StartRelay.
func (h *Hub) SetRelay(r Relay) {
	h.mu.Lock()
	h.relay = r
	h.mu.Unlock()
}

// Subscribe registers interest in the given channels of a session. No
// channels means every channel. The caller must Close the subscription.
func (h *Hub) Subscribe(sessionID string, channels ...string) *Subscription {
	sub := &Subscription{
		hub:       h,
		sessionID: sessionID,
		channels:  make(map[string]bool, len(channels)),
		events:    make(chan Event, h.buffer),
	}
	for _, ch := range channels {
		if ch != "" {
			sub.channels[ch] = true
		}
	}

	h.mu.Lock()
	subs, ok := h.sessions[sessionID]
	if !ok {
		subs = make(map[*Subscription]struct{})
		h.sessions[sessionID] = subs
	}
	subs[sub] = struct{}{}
	h.mu.Unlock()

	h.log.Debug("subscriber added", "session_id", sessionID, "channels", channels)
	return sub
}

// Publish delivers the event to local subscribers and forwards it to other
// nodes when a relay is attached. Local delivery never blocks.
func (h *Hub) Publish(ctx context.Context, ev Event) error {
	if ev.Origin == "" {
		ev.Origin = h.nodeID
	}
	h.deliverLocal(ev)

	h.mu.RLock()
	relay := h.relay
	h.mu.RUnlock()
	if relay == nil {
		return nil
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode relayed event: %w", err)
	}
	if err := relay.Publish(ctx, raw); err != nil {
		return fmt.Errorf("failed to relay event: %w", err)
	}
	return nil
}

// StartRelay begins delivering events published by other nodes.
func (h *Hub) StartRelay(ctx context.Context) error {
	h.mu.RLock()
	relay := h.relay
	h.mu.RUnlock()
	if relay == nil {
		return nil
	}
	return relay.Listen(ctx, func(payload []byte) {
		var ev Event
		if err := json.Unmarshal(payload, &ev); err != nil {
			h.log.Warn("bad relayed event payload", "error", err)
			return
		}
		if ev.Origin == h.nodeID {
			return
		}
		h.deliverLocal(ev)
	})
}

func (h *Hub) SubscriberCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}

// CloseSession closes every subscription of a session.
func (h *Hub) CloseSession(sessionID string) {
	h.mu.RLock()
	subs := make([]*Subscription, 0, len(h.sessions[sessionID]))
	for sub := range h.sessions[sessionID] {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		sub.Close()
	}
}

func (h *Hub) deliverLocal(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.sessions[ev.SessionID] {
		if sub.wants(ev.Channel) {
			sub.deliver(ev)
		}
	}
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.sessions[sub.sessionID]
	if !ok {
		return
	}
	if _, ok := subs[sub]; !ok {
		return
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(h.sessions, sub.sessionID)
	}
	h.log.Debug("subscriber removed", "session_id", sub.sessionID, "dropped", sub.Dropped())
}
