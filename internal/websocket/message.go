package websocket

import (
	"encoding/json"

	"session-service/internal/broadcast"
)

type MessageType string

const (
	// Client -> Server
	MessageTypePing MessageType = "ping"

	// Server -> Client
	MessageTypeConnected MessageType = "connected"
	MessageTypeSignal    MessageType = "signal"
	MessageTypeError     MessageType = "error"
	MessageTypePong      MessageType = "pong"
)

type Message struct {
	Type    MessageType `json:"type"`
	Payload any         `json:"payload,omitempty"`
}

// inbound is Message as read from the socket; the payload is not needed yet.
type inbound struct {
	Type MessageType `json:"type"`
}

type ConnectedPayload struct {
	SessionID string          `json:"session_id"`
	Channels  []string        `json:"channels,omitempty"`
	Backlog   []SignalPayload `json:"backlog"`
}

type SignalPayload struct {
	Channel string          `json:"channel"`
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

func signalOf(ev broadcast.Event) SignalPayload {
	return SignalPayload{Channel: ev.Channel, Type: ev.Type, Data: ev.Data}
}
