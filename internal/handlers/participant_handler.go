package handlers

import (
	"net/http"

	"session-service/internal/dto"
	"session-service/internal/middleware"
	"session-service/internal/service"

	"github.com/gin-gonic/gin"
)

// ParticipantHandler serves the anonymous audience. Every route runs behind
// middleware.ParticipantToken.
type ParticipantHandler struct {
	sessions *service.SessionService
}

func NewParticipantHandler(sessions *service.SessionService) *ParticipantHandler {
	return &ParticipantHandler{
		sessions: sessions,
	}
}

// JoinSession godoc
// @Summary Resolve a join code to a live session
// @Tags public
// @Produce json
// @Param shortname path string true "Join code"
// @Success 200 {object} dto.JoinResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /join/{shortname} [get]
func (h *ParticipantHandler) JoinSession(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	sess, err := h.sessions.JoinPublic(ctx, c.Param("shortname"))
	if err != nil {
		dto.AppError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.JoinResponse{
		Session:          sess,
		ParticipantToken: middleware.Participant(c),
	})
}

// GetPublicSession godoc
// @Summary Participant view of a live session
// @Tags public
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} models.PublicSession
// @Router /public/sessions/{id} [get]
func (h *ParticipantHandler) GetPublicSession(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	sess, err := h.sessions.PublicByID(ctx, c.Param("id"))
	if err != nil {
		dto.AppError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// AddResponse godoc
// @Summary Submit or replace the caller's response to a question instance
// @Tags public
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param request body dto.ResponseRequest true "Response"
// @Success 200 {object} models.Response
// @Failure 409 {object} dto.ErrorResponse
// @Router /public/sessions/{id}/responses [post]
func (h *ParticipantHandler) AddResponse(c *gin.Context) {
	var req dto.ResponseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.JsonError(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	resp, err := h.sessions.AddResponse(ctx, c.Param("id"), middleware.Participant(c), req.InstanceID, req.Payload)
	if err != nil {
		dto.AppError(c, err)
		return
	}
	resp.Fingerprint = ""
	c.JSON(http.StatusOK, resp)
}

// DeleteOwnResponse godoc
// @Summary Withdraw the caller's response
// @Tags public
// @Param id path string true "Session ID"
// @Param instanceId path string true "Question instance ID"
// @Success 204
// @Router /public/sessions/{id}/instances/{instanceId}/response [delete]
func (h *ParticipantHandler) DeleteOwnResponse(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	if err := h.sessions.DeleteOwnResponse(ctx, c.Param("id"), middleware.Participant(c), c.Param("instanceId")); err != nil {
		dto.AppError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// AddConfusion godoc
// @Summary Report perceived difficulty and speed
// @Tags public
// @Accept json
// @Param id path string true "Session ID"
// @Param request body dto.ConfusionRequest true "Confusion reading"
// @Success 201
// @Router /public/sessions/{id}/confusion [post]
func (h *ParticipantHandler) AddConfusion(c *gin.Context) {
	var req dto.ConfusionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.JsonError(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	ts, err := h.sessions.AddConfusionTS(ctx, c.Param("id"), middleware.Participant(c), *req.Difficulty, *req.Speed)
	if err != nil {
		dto.AppError(c, err)
		return
	}
	ts.Fingerprint = ""
	c.JSON(http.StatusCreated, ts)
}

// AddFeedback godoc
// @Summary Post a feedback item
// @Tags public
// @Accept json
// @Param id path string true "Session ID"
// @Param request body dto.FeedbackRequest true "Feedback"
// @Success 201 {object} models.PublicFeedback
// @Router /public/sessions/{id}/feedbacks [post]
func (h *ParticipantHandler) AddFeedback(c *gin.Context) {
	var req dto.FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.JsonError(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	fb, err := h.sessions.AddFeedback(ctx, c.Param("id"), middleware.Participant(c), req.Content)
	if err != nil {
		dto.AppError(c, err)
		return
	}
	c.JSON(http.StatusCreated, fb.Public())
}

// UpvoteFeedback godoc
// @Summary Vote a feedback item up or down
// @Tags public
// @Accept json
// @Param id path string true "Session ID"
// @Param feedbackId path string true "Feedback ID"
// @Param request body dto.UpvoteRequest false "Vote direction"
// @Success 200 {object} models.PublicFeedback
// @Router /public/sessions/{id}/feedbacks/{feedbackId}/upvote [post]
func (h *ParticipantHandler) UpvoteFeedback(c *gin.Context) {
	req := dto.UpvoteRequest{Delta: 1}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			dto.JsonError(c, http.StatusBadRequest, "Invalid request body")
			return
		}
		if req.Delta == 0 {
			req.Delta = 1
		}
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	fb, err := h.sessions.UpvoteFeedback(ctx, c.Param("id"), middleware.Participant(c), c.Param("feedbackId"), req.Delta)
	if err != nil {
		dto.AppError(c, err)
		return
	}
	c.JSON(http.StatusOK, fb.Public())
}
