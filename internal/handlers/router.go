package handlers

import (
	"session-service/internal/middleware"

	"github.com/gin-gonic/gin"
)

type Routes struct {
	Sessions     *SessionHandler
	Participants *ParticipantHandler
	WebSocket    *WebSocketHandler
	Health       *HealthHandler
	JWTSecret    string
}

func (rt Routes) Register(r *gin.Engine) {
	r.GET("/health", rt.Health.Health)
	r.GET("/ready", rt.Health.Ready)

	auth := middleware.JWTAuth(rt.JWTSecret)

	sessions := r.Group("/sessions", auth)
	{
		sessions.GET("", rt.Sessions.GetSessions)
		sessions.POST("", rt.Sessions.CreateSession)
		sessions.DELETE("", rt.Sessions.DeleteSessions)
		sessions.GET("/running", rt.Sessions.GetRunningSession)
		sessions.GET("/:id", rt.Sessions.GetSession)
		sessions.PUT("/:id", rt.Sessions.ModifySession)
		sessions.PATCH("/:id/settings", rt.Sessions.UpdateSettings)
		sessions.POST("/:id/start", rt.Sessions.StartSession)
		sessions.POST("/:id/pause", rt.Sessions.PauseSession)
		sessions.POST("/:id/cancel", rt.Sessions.CancelSession)
		sessions.POST("/:id/end", rt.Sessions.EndSession)
		sessions.POST("/:id/blocks/next", rt.Sessions.ActivateNextBlock)
		sessions.GET("/:id/instances/:instanceId/results", rt.Sessions.GetResults)
		sessions.DELETE("/:id/instances/:instanceId/responses/:responseId", rt.Sessions.DeleteResponse)
		sessions.DELETE("/:id/feedbacks/:feedbackId", rt.Sessions.DeleteFeedback)
	}

	participant := middleware.ParticipantToken()
	r.GET("/join/:shortname", participant, rt.Participants.JoinSession)

	public := r.Group("/public/sessions/:id", participant)
	{
		public.GET("", rt.Participants.GetPublicSession)
		public.POST("/responses", rt.Participants.AddResponse)
		public.DELETE("/instances/:instanceId/response", rt.Participants.DeleteOwnResponse)
		public.POST("/confusion", rt.Participants.AddConfusion)
		public.POST("/feedbacks", rt.Participants.AddFeedback)
		public.POST("/feedbacks/:feedbackId/upvote", rt.Participants.UpvoteFeedback)
	}

	if rt.WebSocket != nil {
		r.GET("/ws/sessions/:id", auth, rt.WebSocket.HandleWebSocket)
	}
}
