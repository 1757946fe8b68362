package models

import (
	"time"

	"session-service/internal/constants"
)

type Session struct {
	ID          string           `json:"id"`
	OwnerID     string           `json:"owner_id"`
	Name        string           `json:"name"`
	JoinCode    string           `json:"join_code"`
	Status      string           `json:"status"`
	Blocks      []*QuestionBlock `json:"blocks"`
	ActiveBlock *int             `json:"active_block"` // nil when no block is ACTIVE
	Settings    Settings         `json:"settings"`
	Confusion   []ConfusionTS    `json:"confusion"` // bounded, oldest first
	Feedbacks   []Feedback       `json:"feedbacks"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
	StartedAt   *time.Time       `json:"started_at,omitempty"`
	FinishedAt  *time.Time       `json:"finished_at,omitempty"`
}

type Settings struct {
	IsConfusionBarometerActive bool   `json:"is_confusion_barometer_active"`
	IsFeedbackChannelActive    bool   `json:"is_feedback_channel_active"`
	IsFeedbackChannelPublic    bool   `json:"is_feedback_channel_public"`
	IsEvaluationPublic         bool   `json:"is_evaluation_public"`
	IsProjectorMode            bool   `json:"is_projector_mode"`
	Anonymity                  string `json:"anonymity"`
}

// DefaultSettings is applied when a session is created without explicit settings.
func DefaultSettings() Settings {
	return Settings{
		IsConfusionBarometerActive: true,
		IsFeedbackChannelActive:    true,
		Anonymity:                  constants.AnonymityFull,
	}
}

// SettingsPatch carries partial settings; nil fields are left unchanged.
type SettingsPatch struct {
	IsConfusionBarometerActive *bool   `json:"is_confusion_barometer_active,omitempty"`
	IsFeedbackChannelActive    *bool   `json:"is_feedback_channel_active,omitempty"`
	IsFeedbackChannelPublic    *bool   `json:"is_feedback_channel_public,omitempty"`
	IsEvaluationPublic         *bool   `json:"is_evaluation_public,omitempty"`
	IsProjectorMode            *bool   `json:"is_projector_mode,omitempty"`
	Anonymity                  *string `json:"anonymity,omitempty"`
}

func (s *Settings) Apply(p SettingsPatch) {
	if p.IsConfusionBarometerActive != nil {
		s.IsConfusionBarometerActive = *p.IsConfusionBarometerActive
	}
	if p.IsFeedbackChannelActive != nil {
		s.IsFeedbackChannelActive = *p.IsFeedbackChannelActive
	}
	if p.IsFeedbackChannelPublic != nil {
		s.IsFeedbackChannelPublic = *p.IsFeedbackChannelPublic
	}
	if p.IsEvaluationPublic != nil {
		s.IsEvaluationPublic = *p.IsEvaluationPublic
	}
	if p.IsProjectorMode != nil {
		s.IsProjectorMode = *p.IsProjectorMode
	}
	if p.Anonymity != nil {
		s.Anonymity = *p.Anonymity
	}
}

type QuestionBlock struct {
	ID           string              `json:"id"`
	Status       string              `json:"status"`
	TimeLimitSec int                 `json:"time_limit_sec,omitempty"`
	Instances    []*QuestionInstance `json:"instances"`
}

type Option struct {
	Key     string `json:"key"`
	Label   string `json:"label"`
	Correct bool   `json:"correct,omitempty"`
}

type NumericRange struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// Question is the immutable content of a question version.
type Question struct {
	Type    string        `json:"type"`
	Content string        `json:"content"`
	Options []Option      `json:"options,omitempty"`
	Range   *NumericRange `json:"range,omitempty"`
}

func (q Question) HasOption(key string) bool {
	for _, o := range q.Options {
		if o.Key == key {
			return true
		}
	}
	return false
}

type QuestionInstance struct {
	ID         string   `json:"id"`
	QuestionID string   `json:"question_id"`
	Version    int      `json:"version"`
	Question   Question `json:"question"`
	// Keyed by participant fingerprint.
	Responses map[string]Response `json:"responses"`
	Results   Results             `json:"results"`
	ClosedAt  *time.Time          `json:"closed_at,omitempty"`
}

type ResponsePayload struct {
	Choices []string `json:"choices,omitempty"`
	Text    string   `json:"text,omitempty"`
}

type Response struct {
	ID          string          `json:"id"`
	Fingerprint string          `json:"fingerprint"`
	Payload     ResponsePayload `json:"payload"`
	SubmittedAt time.Time       `json:"submitted_at"`
}

type ConfusionTS struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	Difficulty  int       `json:"difficulty"`
	Speed       int       `json:"speed"`
	CreatedAt   time.Time `json:"created_at"`
}

type Feedback struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	Content     string    `json:"content"`
	Votes       int       `json:"votes"`
	CreatedAt   time.Time `json:"created_at"`
}

// DirectoryEntry is the derived index record for a session.
type DirectoryEntry struct {
	SessionID string
	OwnerID   string
	JoinCode  string
	Status    string
}

func EntryFor(s *Session) DirectoryEntry {
	return DirectoryEntry{
		SessionID: s.ID,
		OwnerID:   s.OwnerID,
		JoinCode:  s.JoinCode,
		Status:    s.Status,
	}
}

// LifecycleEvent is published to the message broker after a session
// transition.
type LifecycleEvent struct {
	Type       string    `json:"type"`
	SessionID  string    `json:"session_id"`
	OwnerID    string    `json:"owner_id"`
	Status     string    `json:"status"`
	BlockIndex *int      `json:"block_index,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
