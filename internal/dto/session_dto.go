package dto

import "session-service/internal/models"

type DeleteSessionsRequest struct {
	IDs []string `json:"ids" binding:"required,min=1"`
}

type ResponseRequest struct {
	InstanceID string                 `json:"instance_id" binding:"required"`
	Payload    models.ResponsePayload `json:"payload"`
}

type ConfusionRequest struct {
	Difficulty *int `json:"difficulty" binding:"required"`
	Speed      *int `json:"speed" binding:"required"`
}

type FeedbackRequest struct {
	Content string `json:"content" binding:"required"`
}

type UpvoteRequest struct {
	// Defaults to 1 when omitted.
	Delta int `json:"delta" binding:"omitempty,oneof=1 -1"`
}

type JoinResponse struct {
	Session          *models.PublicSession `json:"session"`
	ParticipantToken string                `json:"participant_token"`
}

type SessionListResponse struct {
	Sessions []*models.Session `json:"sessions"`
}

type RunningSessionResponse struct {
	Session *models.Session `json:"session"`
}

type ResultsResponse struct {
	InstanceID string         `json:"instance_id"`
	Results    models.Results `json:"results"`
}
