package handlers

import (
	"context"
	"net/http"
	"time"

	"session-service/internal/dto"
	"session-service/internal/middleware"
	"session-service/internal/models"
	"session-service/internal/service"

	"github.com/gin-gonic/gin"
)

const requestTimeout = 5 * time.Second

type SessionHandler struct {
	sessions *service.SessionService
}

func NewSessionHandler(sessions *service.SessionService) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
	}
}

func requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), requestTimeout)
}

// CreateSession godoc
// @Summary Create a session
// @Tags sessions
// @Accept json
// @Produce json
// @Param request body service.CreateSessionInput true "Session content"
// @Success 201 {object} models.Session
// @Failure 400 {object} dto.ErrorResponse
// @Failure 401 {object} dto.ErrorResponse
// @Router /sessions [post]
func (h *SessionHandler) CreateSession(c *gin.Context) {
	var req service.CreateSessionInput
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.JsonError(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	sess, err := h.sessions.Create(ctx, middleware.UserID(c), req)
	if err != nil {
		dto.AppError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sess)
}

// GetSessions godoc
// @Summary List the caller's sessions, newest first
// @Tags sessions
// @Produce json
// @Success 200 {object} dto.SessionListResponse
// @Router /sessions [get]
func (h *SessionHandler) GetSessions(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	sessions, err := h.sessions.AllForOwner(ctx, middleware.UserID(c))
	if err != nil {
		dto.AppError(c, err)
		return
	}
	if sessions == nil {
		sessions = []*models.Session{}
	}
	c.JSON(http.StatusOK, dto.SessionListResponse{Sessions: sessions})
}

// GetRunningSession godoc
// @Summary Get the caller's live session
// @Description The session is null when the caller has no running or paused session.
// @Tags sessions
// @Produce json
// @Success 200 {object} dto.RunningSessionResponse
// @Router /sessions/running [get]
func (h *SessionHandler) GetRunningSession(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	sess, err := h.sessions.RunningFor(ctx, middleware.UserID(c))
	if err != nil {
		dto.AppError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.RunningSessionResponse{Session: sess})
}

// GetSession godoc
// @Summary Get a session
// @Tags sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} models.Session
// @Failure 403 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /sessions/{id} [get]
func (h *SessionHandler) GetSession(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	sess, err := h.sessions.Get(ctx, middleware.UserID(c), c.Param("id"))
	if err != nil {
		dto.AppError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// ModifySession godoc
// @Summary Replace the content of a session that has not started
// @Tags sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param request body service.ModifySessionInput true "Session content"
// @Success 200 {object} models.Session
// @Failure 409 {object} dto.ErrorResponse
// @Router /sessions/{id} [put]
func (h *SessionHandler) ModifySession(c *gin.Context) {
	var req service.ModifySessionInput
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.JsonError(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	sess, err := h.sessions.Modify(ctx, middleware.UserID(c), c.Param("id"), req)
	if err != nil {
		dto.AppError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// UpdateSettings godoc
// @Summary Patch session settings
// @Tags sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param request body models.SettingsPatch true "Settings to change"
// @Success 200 {object} models.Session
// @Router /sessions/{id}/settings [patch]
func (h *SessionHandler) UpdateSettings(c *gin.Context) {
	var req models.SettingsPatch
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.JsonError(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	sess, err := h.sessions.UpdateSettings(ctx, middleware.UserID(c), c.Param("id"), req)
	if err != nil {
		dto.AppError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

type transition func(ctx context.Context, ownerID, sessionID string) (*models.Session, error)

func (h *SessionHandler) runTransition(c *gin.Context, fn transition) {
	ctx, cancel := requestContext(c)
	defer cancel()

	sess, err := fn(ctx, middleware.UserID(c), c.Param("id"))
	if err != nil {
		dto.AppError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// StartSession godoc
// @Summary Start a created session or resume a paused one
// @Tags sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} models.Session
// @Failure 409 {object} dto.ErrorResponse
// @Router /sessions/{id}/start [post]
func (h *SessionHandler) StartSession(c *gin.Context) {
	h.runTransition(c, h.sessions.Start)
}

// PauseSession godoc
// @Summary Pause a running session
// @Tags sessions
// @Param id path string true "Session ID"
// @Router /sessions/{id}/pause [post]
func (h *SessionHandler) PauseSession(c *gin.Context) {
	h.runTransition(c, h.sessions.Pause)
}

// CancelSession godoc
// @Summary Cancel a session
// @Tags sessions
// @Param id path string true "Session ID"
// @Router /sessions/{id}/cancel [post]
func (h *SessionHandler) CancelSession(c *gin.Context) {
	h.runTransition(c, h.sessions.Cancel)
}

// EndSession godoc
// @Summary End a session and finalize its results
// @Tags sessions
// @Param id path string true "Session ID"
// @Router /sessions/{id}/end [post]
func (h *SessionHandler) EndSession(c *gin.Context) {
	h.runTransition(c, h.sessions.End)
}

// ActivateNextBlock godoc
// @Summary Close the active block and open the next one
// @Tags sessions
// @Param id path string true "Session ID"
// @Failure 409 {object} dto.ErrorResponse
// @Router /sessions/{id}/blocks/next [post]
func (h *SessionHandler) ActivateNextBlock(c *gin.Context) {
	h.runTransition(c, h.sessions.ActivateNextBlock)
}

// DeleteSessions godoc
// @Summary Delete sessions that are not live
// @Tags sessions
// @Accept json
// @Param request body dto.DeleteSessionsRequest true "Session IDs"
// @Success 204
// @Router /sessions [delete]
func (h *SessionHandler) DeleteSessions(c *gin.Context) {
	var req dto.DeleteSessionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.JsonError(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	if err := h.sessions.Delete(ctx, middleware.UserID(c), req.IDs); err != nil {
		dto.AppError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetResults godoc
// @Summary Get the results of a question instance
// @Tags sessions
// @Produce json
// @Param id path string true "Session ID"
// @Param instanceId path string true "Question instance ID"
// @Success 200 {object} dto.ResultsResponse
// @Router /sessions/{id}/instances/{instanceId}/results [get]
func (h *SessionHandler) GetResults(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	instanceID := c.Param("instanceId")
	results, err := h.sessions.Results(ctx, middleware.UserID(c), c.Param("id"), instanceID)
	if err != nil {
		dto.AppError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.ResultsResponse{InstanceID: instanceID, Results: results})
}

// DeleteResponse godoc
// @Summary Remove a participant response
// @Tags moderation
// @Param id path string true "Session ID"
// @Param instanceId path string true "Question instance ID"
// @Param responseId path string true "Response ID"
// @Success 204
// @Router /sessions/{id}/instances/{instanceId}/responses/{responseId} [delete]
func (h *SessionHandler) DeleteResponse(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	err := h.sessions.DeleteResponse(ctx, middleware.UserID(c), c.Param("id"), c.Param("instanceId"), c.Param("responseId"))
	if err != nil {
		dto.AppError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// DeleteFeedback godoc
// @Summary Remove a feedback item
// @Tags moderation
// @Param id path string true "Session ID"
// @Param feedbackId path string true "Feedback ID"
// @Success 204
// @Router /sessions/{id}/feedbacks/{feedbackId} [delete]
func (h *SessionHandler) DeleteFeedback(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	if err := h.sessions.DeleteFeedback(ctx, middleware.UserID(c), c.Param("id"), c.Param("feedbackId")); err != nil {
		dto.AppError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
