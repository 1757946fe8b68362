package handlers

import (
	"net/http"
	"strings"

	"session-service/config"
	"session-service/internal/dto"
	"session-service/internal/middleware"
	"session-service/internal/service"
	ws "session-service/internal/websocket"
	"session-service/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type WebSocketHandler struct {
	hub      *ws.Hub
	sessions *service.SessionService
	upgrader websocket.Upgrader
	log      *logger.Logger
}

func NewWebSocketHandler(hub *ws.Hub, sessions *service.SessionService, cfg *config.Config, log *logger.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub:      hub,
		sessions: sessions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(cfg.Server.AllowedOrigins),
		},
		log: log,
	}
}

// originChecker accepts every origin when allowed is empty.
func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(r *http.Request) bool { return true }
	}
	set := make(map[string]bool, len(allowed))
	for _, origin := range allowed {
		set[strings.TrimRight(origin, "/")] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}

// HandleWebSocket streams confusion and feedback signals of one session to
// its owner. The channels query selects a subset, e.g. channels=feedback.
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	ownerID := middleware.UserID(c)
	sessionID := c.Param("id")
	channels := parseChannels(c.Query("channels"))

	sub, backlog, err := h.sessions.Subscribe(c.Request.Context(), ownerID, sessionID, channels)
	if err != nil {
		dto.AppError(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("failed to upgrade connection", "session_id", sessionID, "error", err)
		sub.Close()
		return
	}

	client := ws.NewClient(h.hub, conn, ownerID, sub, backlog, channels, h.log)
	if !h.hub.Add(client) {
		sub.Close()
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}

func parseChannels(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
