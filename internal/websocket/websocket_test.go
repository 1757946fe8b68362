package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"session-service/internal/broadcast"
	"session-service/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	hub     *Hub
	signals *broadcast.Hub
	server  *httptest.Server
}

func newHarness(t *testing.T, backlog []broadcast.Event) *harness {
	t.Helper()
	log := logger.Nop()
	h := &harness{hub: NewHub(log), signals: broadcast.NewHub(log, 8)}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.hub.Run(ctx)

	upgrader := websocket.Upgrader{}
	h.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sub := h.signals.Subscribe("s1")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			sub.Close()
			return
		}
		client := NewClient(h.hub, conn, "owner-1", sub, backlog, nil, log)
		if !h.hub.Add(client) {
			sub.Close()
			conn.Close()
			return
		}
		go client.WritePump()
		go client.ReadPump()
	}))
	t.Cleanup(h.server.Close)
	return h
}

func (h *harness) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.server.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) (MessageType, json.RawMessage) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg struct {
		Type    MessageType     `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	return msg.Type, msg.Payload
}

func mustEvent(t *testing.T, channel, eventType string, data any) broadcast.Event {
	t.Helper()
	ev, err := broadcast.NewEvent("s1", channel, eventType, data)
	require.NoError(t, err)
	return ev
}

func TestConnectedCarriesBacklogFirst(t *testing.T) {
	backlog := []broadcast.Event{mustEvent(t, "feedback", "feedback_added", map[string]string{"content": "old"})}
	h := newHarness(t, backlog)
	conn := h.dial(t)

	typ, payload := read(t, conn)
	require.Equal(t, MessageTypeConnected, typ)
	var connected ConnectedPayload
	require.NoError(t, json.Unmarshal(payload, &connected))
	assert.Equal(t, "s1", connected.SessionID)
	require.Len(t, connected.Backlog, 1)
	assert.JSONEq(t, `{"content":"old"}`, string(connected.Backlog[0].Data))

	require.NoError(t, h.signals.Publish(context.Background(), mustEvent(t, "confusion", "confusion_added", map[string]int{"difficulty": 3})))

	typ, payload = read(t, conn)
	require.Equal(t, MessageTypeSignal, typ)
	var signal SignalPayload
	require.NoError(t, json.Unmarshal(payload, &signal))
	assert.Equal(t, "confusion", signal.Channel)
	assert.Equal(t, "confusion_added", signal.Type)
}

func TestPingAndUnknownMessages(t *testing.T) {
	h := newHarness(t, nil)
	conn := h.dial(t)
	typ, _ := read(t, conn)
	require.Equal(t, MessageTypeConnected, typ)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)))
	typ, _ = read(t, conn)
	assert.Equal(t, MessageTypePong, typ)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"dance"}`)))
	typ, payload := read(t, conn)
	assert.Equal(t, MessageTypeError, typ)
	assert.Contains(t, string(payload), "dance")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	typ, _ = read(t, conn)
	assert.Equal(t, MessageTypeError, typ)
}

func TestClosingSessionDisconnectsClient(t *testing.T) {
	h := newHarness(t, nil)
	conn := h.dial(t)
	typ, _ := read(t, conn)
	require.Equal(t, MessageTypeConnected, typ)
	require.Eventually(t, func() bool { return h.hub.Count("s1") == 1 }, time.Second, 10*time.Millisecond)

	h.signals.CloseSession("s1")

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)

	assert.Eventually(t, func() bool {
		return h.hub.Count("s1") == 0 && h.signals.SubscriberCount("s1") == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestClientDisconnectReleasesSubscription(t *testing.T) {
	h := newHarness(t, nil)
	conn := h.dial(t)
	_, _ = read(t, conn)
	require.Eventually(t, func() bool { return h.signals.SubscriberCount("s1") == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())

	assert.Eventually(t, func() bool {
		return h.hub.Count("s1") == 0 && h.signals.SubscriberCount("s1") == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSendAfterCloseIsDropped(t *testing.T) {
	signals := broadcast.NewHub(logger.Nop(), 1)
	client := &Client{
		Send:      make(chan []byte, 1),
		SessionID: "s1",
		sub:       signals.Subscribe("s1"),
		log:       logger.Nop(),
	}

	client.SendMessage(MessageTypePong, nil)
	client.SendMessage(MessageTypePong, nil) // queue full, dropped
	assert.Len(t, client.Send, 1)

	client.close()
	client.close()
	assert.NotPanics(t, func() { client.SendMessage(MessageTypePong, nil) })
}
