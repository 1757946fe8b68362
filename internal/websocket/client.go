package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"session-service/internal/broadcast"
	"session-service/pkg/logger"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
	sendBuffer     = 64
)

// Client is one owner dashboard connection streaming signals of a session.
type Client struct {
	Hub       *Hub
	Conn      *websocket.Conn
	Send      chan []byte
	OwnerID   string
	SessionID string
	Channels  []string

	sub     *broadcast.Subscription
	backlog []broadcast.Event
	log     *logger.Logger

	mu     sync.Mutex
	closed bool
}

func NewClient(
	hub *Hub,
	conn *websocket.Conn,
	ownerID string,
	sub *broadcast.Subscription,
	backlog []broadcast.Event,
	channels []string,
	log *logger.Logger,
) *Client {
	return &Client{
		Hub:       hub,
		Conn:      conn,
		Send:      make(chan []byte, sendBuffer),
		OwnerID:   ownerID,
		SessionID: sub.SessionID(),
		Channels:  channels,
		sub:       sub,
		backlog:   backlog,
		log:       log.With("session_id", sub.SessionID(), "owner_id", ownerID),
	}
}

func (c *Client) ReadPump() {
	defer func() {
		c.Hub.remove(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn("websocket read failed", "error", err)
			}
			break
		}

		var msg inbound
		if err := json.Unmarshal(message, &msg); err != nil {
			c.SendError("Invalid message format")
			continue
		}

		switch msg.Type {
		case MessageTypePing:
			c.SendMessage(MessageTypePong, nil)
		default:
			c.SendError("Unknown message type: " + string(msg.Type))
		}
	}
}

// WritePump sends the connected message with the backlog, then drains both
// the direct send queue and the signal subscription. It exits when either is
// closed or a write fails.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	if err := c.writeJSON(Message{Type: MessageTypeConnected, Payload: c.connected()}); err != nil {
		return
	}

	events := c.sub.Events()
	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.log.Debug("websocket write failed", "error", err)
				return
			}

		case ev, ok := <-events:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"))
				return
			}
			if err := c.writeJSON(Message{Type: MessageTypeSignal, Payload: signalOf(ev)}); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendMessage queues a message for the client. A full queue drops the
// message instead of blocking the caller.
func (c *Client) SendMessage(msgType MessageType, payload any) {
	data, err := json.Marshal(Message{Type: msgType, Payload: payload})
	if err != nil {
		c.log.Error("failed to marshal message", "error", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.Send <- data:
	default:
		c.log.Warn("client send queue full, dropping message", "type", msgType)
	}
}

func (c *Client) SendError(message string) {
	c.SendMessage(MessageTypeError, ErrorPayload{Message: message})
}

func (c *Client) writeJSON(msg Message) error {
	c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.Conn.WriteJSON(msg); err != nil {
		c.log.Debug("websocket write failed", "type", msg.Type, "error", err)
		return err
	}
	return nil
}

func (c *Client) connected() ConnectedPayload {
	backlog := make([]SignalPayload, 0, len(c.backlog))
	for _, ev := range c.backlog {
		backlog = append(backlog, signalOf(ev))
	}
	c.backlog = nil
	return ConnectedPayload{SessionID: c.SessionID, Channels: c.Channels, Backlog: backlog}
}

func (c *Client) close() {
	c.sub.Close()

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}
