package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"session-service/config"
	"session-service/internal/broadcast"
	"session-service/internal/directory"
	"session-service/internal/dto"
	"session-service/internal/identity"
	"session-service/internal/middleware"
	"session-service/internal/models"
	"session-service/internal/repository"
	"session-service/internal/service"
	ws "session-service/internal/websocket"
	"session-service/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSecret = "handler-test-secret"
	owner      = "owner-1"
)

type testServer struct {
	router *gin.Engine
	hub    *ws.Hub
}

func newTestServer(t *testing.T, checks map[string]Check) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := logger.Nop()
	store := repository.NewMemorySessionRepository()
	signals := broadcast.NewHub(log, 16)
	svc := service.NewSessionService(store, directory.New(store), signals, identity.NewResolver("fp"), nil, log, service.Options{})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	hub := ws.NewHub(log)
	go hub.Run(ctx)

	cfg := &config.Config{}
	router := gin.New()
	router.Use(middleware.ErrorHandler(log))
	Routes{
		Sessions:     NewSessionHandler(svc),
		Participants: NewParticipantHandler(svc),
		WebSocket:    NewWebSocketHandler(hub, svc, cfg, log),
		Health:       NewHealthHandler(checks),
		JWTSecret:    testSecret,
	}.Register(router)

	return &testServer{router: router, hub: hub}
}

func tokenFor(t *testing.T, userID string) string {
	t.Helper()
	claims := middleware.Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

type call struct {
	method      string
	path        string
	body        any
	user        string
	participant string
}

func (s *testServer) do(t *testing.T, c call) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	if c.body != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(c.body))
	}
	req := httptest.NewRequest(c.method, c.path, &body)
	req.Header.Set("Content-Type", "application/json")
	if c.user != "" {
		req.Header.Set("Authorization", "Bearer "+tokenFor(t, c.user))
	}
	if c.participant != "" {
		req.Header.Set(middleware.ParticipantHeader, c.participant)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func sessionBody() service.CreateSessionInput {
	return service.CreateSessionInput{
		Name: "Lecture 7",
		Blocks: []service.BlockInput{
			{Questions: []service.QuestionInput{{
				Type:    "SC",
				Content: "Pick one",
				Options: []service.OptionInput{{Key: "A", Label: "yes", Correct: true}, {Key: "B", Label: "no"}},
			}}},
			{Questions: []service.QuestionInput{{Type: "FREE", Content: "Anything else?"}}},
		},
	}
}

func (s *testServer) startedSession(t *testing.T) *models.Session {
	t.Helper()
	w := s.do(t, call{method: http.MethodPost, path: "/sessions", body: sessionBody(), user: owner})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[models.Session](t, w)

	w = s.do(t, call{method: http.MethodPost, path: "/sessions/" + created.ID + "/start", user: owner})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	started := decode[models.Session](t, w)
	return &started
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[dto.ErrorResponse](t, w).Code
}

func TestOwnerRoutesRequireToken(t *testing.T) {
	s := newTestServer(t, nil)
	w := s.do(t, call{method: http.MethodGet, path: "/sessions"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t, nil)
	sess := s.startedSession(t)
	assert.Equal(t, "RUNNING", sess.Status)
	require.NotNil(t, sess.ActiveBlock)
	assert.Equal(t, 0, *sess.ActiveBlock)

	w := s.do(t, call{method: http.MethodGet, path: "/sessions/running", user: owner})
	require.Equal(t, http.StatusOK, w.Code)
	running := decode[dto.RunningSessionResponse](t, w)
	require.NotNil(t, running.Session)
	assert.Equal(t, sess.ID, running.Session.ID)

	w = s.do(t, call{method: http.MethodPost, path: "/sessions/" + sess.ID + "/blocks/next", user: owner})
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, call{method: http.MethodPost, path: "/sessions/" + sess.ID + "/blocks/next", user: owner})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "NO_MORE_BLOCKS", errorCode(t, w))

	w = s.do(t, call{method: http.MethodPost, path: "/sessions/" + sess.ID + "/end", user: owner})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ENDED", decode[models.Session](t, w).Status)

	w = s.do(t, call{method: http.MethodPost, path: "/sessions/" + sess.ID + "/start", user: owner})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "INVALID_TRANSITION", errorCode(t, w))

	w = s.do(t, call{method: http.MethodGet, path: "/sessions/running", user: owner})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, decode[dto.RunningSessionResponse](t, w).Session)

	w = s.do(t, call{method: http.MethodDelete, path: "/sessions", body: dto.DeleteSessionsRequest{IDs: []string{sess.ID}}, user: owner})
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(t, call{method: http.MethodGet, path: "/sessions/" + sess.ID, user: owner})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestOtherOwnerIsForbidden(t *testing.T) {
	s := newTestServer(t, nil)
	sess := s.startedSession(t)

	w := s.do(t, call{method: http.MethodGet, path: "/sessions/" + sess.ID, user: "intruder"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "NOT_OWNER", errorCode(t, w))
}

func TestCreateSessionValidation(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, call{method: http.MethodPost, path: "/sessions", body: service.CreateSessionInput{Name: "empty"}, user: owner})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, w))

	req := httptest.NewRequest(http.MethodPost, "/sessions", strings.NewReader("{"))
	req.Header.Set("Authorization", "Bearer "+tokenFor(t, owner))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestParticipantFlow(t *testing.T) {
	s := newTestServer(t, nil)
	sess := s.startedSession(t)
	instanceID := sess.Blocks[0].Instances[0].ID

	w := s.do(t, call{method: http.MethodGet, path: "/join/" + strings.ToLower(sess.JoinCode)})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	joined := decode[dto.JoinResponse](t, w)
	require.NotEmpty(t, joined.ParticipantToken)
	assert.Equal(t, joined.ParticipantToken, w.Header().Get(middleware.ParticipantHeader))
	require.NotNil(t, joined.Session.ActiveBlock)
	assert.Equal(t, instanceID, joined.Session.ActiveBlock.Instances[0].ID)
	token := joined.ParticipantToken

	submit := func(choice string) *httptest.ResponseRecorder {
		return s.do(t, call{
			method:      http.MethodPost,
			path:        "/public/sessions/" + sess.ID + "/responses",
			body:        dto.ResponseRequest{InstanceID: instanceID, Payload: models.ResponsePayload{Choices: []string{choice}}},
			participant: token,
		})
	}
	w = submit("A")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Empty(t, decode[models.Response](t, w).Fingerprint)
	require.Equal(t, http.StatusOK, submit("B").Code)

	w = s.do(t, call{method: http.MethodGet, path: "/sessions/" + sess.ID + "/instances/" + instanceID + "/results", user: owner})
	require.Equal(t, http.StatusOK, w.Code)
	var results struct {
		Results struct {
			Kind   string         `json:"kind"`
			Total  int            `json:"total"`
			Counts map[string]int `json:"counts"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &results))
	assert.Equal(t, "CHOICES", results.Results.Kind)
	assert.Equal(t, 1, results.Results.Total)
	assert.Equal(t, 0, results.Results.Counts["A"])
	assert.Equal(t, 1, results.Results.Counts["B"])

	w = s.do(t, call{method: http.MethodDelete, path: "/public/sessions/" + sess.ID + "/instances/" + instanceID + "/response", participant: token})
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(t, call{method: http.MethodPost, path: "/sessions/" + sess.ID + "/pause", user: owner})
	require.Equal(t, http.StatusOK, w.Code)

	w = submit("A")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "SESSION_NOT_ACCEPTING_RESPONSES", errorCode(t, w))
}

func TestJoinUnknownCode(t *testing.T) {
	s := newTestServer(t, nil)
	w := s.do(t, call{method: http.MethodGet, path: "/join/NOPE42"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSignalsOverHTTP(t *testing.T) {
	s := newTestServer(t, nil)
	sess := s.startedSession(t)
	base := "/public/sessions/" + sess.ID

	w := s.do(t, call{method: http.MethodPost, path: base + "/confusion", body: map[string]int{"difficulty": 2, "speed": -1}, participant: "p1"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(t, call{method: http.MethodPost, path: base + "/confusion", body: map[string]int{"difficulty": 9, "speed": 0}, participant: "p1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, call{method: http.MethodPost, path: base + "/confusion", body: map[string]int{"speed": 0}, participant: "p1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, call{method: http.MethodPost, path: base + "/feedbacks", body: dto.FeedbackRequest{Content: "slower please"}, participant: "p1"})
	require.Equal(t, http.StatusCreated, w.Code)
	fb := decode[models.PublicFeedback](t, w)
	assert.Equal(t, "slower please", fb.Content)

	w = s.do(t, call{method: http.MethodPost, path: base + "/feedbacks/" + fb.ID + "/upvote", participant: "p2"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decode[models.PublicFeedback](t, w).Votes)

	w = s.do(t, call{method: http.MethodPost, path: base + "/feedbacks/" + fb.ID + "/upvote", body: dto.UpvoteRequest{Delta: -1}, participant: "p2"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, decode[models.PublicFeedback](t, w).Votes)

	w = s.do(t, call{method: http.MethodDelete, path: "/sessions/" + sess.ID + "/feedbacks/" + fb.ID, user: owner})
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(t, call{method: http.MethodPost, path: base + "/feedbacks/" + fb.ID + "/upvote", participant: "p2"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealthAndReady(t *testing.T) {
	failing := errors.New("connection refused")
	s := newTestServer(t, map[string]Check{
		"database": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return failing },
	})

	w := s.do(t, call{method: http.MethodGet, path: "/health"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, call{method: http.MethodGet, path: "/ready"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
}

func readMessage(t *testing.T, conn *websocket.Conn) map[string]json.RawMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg map[string]json.RawMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestWebSocketStreamsSignals(t *testing.T) {
	s := newTestServer(t, nil)
	sess := s.startedSession(t)

	w := s.do(t, call{method: http.MethodPost, path: "/public/sessions/" + sess.ID + "/feedbacks", body: dto.FeedbackRequest{Content: "before connect"}, participant: "p1"})
	require.Equal(t, http.StatusCreated, w.Code)

	srv := httptest.NewServer(s.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/sessions/" + sess.ID +
		"?channels=feedback&access_token=" + tokenFor(t, owner)
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	msg := readMessage(t, conn)
	assert.JSONEq(t, `"connected"`, string(msg["type"]))
	var connected ws.ConnectedPayload
	require.NoError(t, json.Unmarshal(msg["payload"], &connected))
	require.Len(t, connected.Backlog, 1)
	assert.Equal(t, "feedback_added", connected.Backlog[0].Type)

	// confusion is not subscribed and must not arrive
	w = s.do(t, call{method: http.MethodPost, path: "/public/sessions/" + sess.ID + "/confusion", body: map[string]int{"difficulty": 1, "speed": 1}, participant: "p1"})
	require.Equal(t, http.StatusCreated, w.Code)
	w = s.do(t, call{method: http.MethodPost, path: "/public/sessions/" + sess.ID + "/feedbacks", body: dto.FeedbackRequest{Content: "live"}, participant: "p2"})
	require.Equal(t, http.StatusCreated, w.Code)

	msg = readMessage(t, conn)
	assert.JSONEq(t, `"signal"`, string(msg["type"]))
	var signal ws.SignalPayload
	require.NoError(t, json.Unmarshal(msg["payload"], &signal))
	assert.Equal(t, "feedback", signal.Channel)
	assert.Contains(t, string(signal.Data), `"content":"live"`)
	assert.NotContains(t, string(signal.Data), "fingerprint")

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	msg = readMessage(t, conn)
	assert.JSONEq(t, `"pong"`, string(msg["type"]))

	assert.Eventually(t, func() bool { return s.hub.Count(sess.ID) == 1 }, time.Second, 10*time.Millisecond)
}

func TestWebSocketRejectsOtherOwner(t *testing.T) {
	s := newTestServer(t, nil)
	sess := s.startedSession(t)

	srv := httptest.NewServer(s.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/sessions/" + sess.ID + "?access_token=" + tokenFor(t, "intruder")
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://app.example.com/"})

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Origin", "https://app.example.com")
	assert.True(t, check(req))

	req.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, check(req))

	assert.True(t, originChecker(nil)(req))
}
