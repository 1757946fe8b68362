package models

import "time"

// PublicSession is the read-restricted view served to anonymous participants.
type PublicSession struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Status      string           `json:"status"`
	Settings    PublicSettings   `json:"settings"`
	ActiveBlock *PublicBlock     `json:"active_block,omitempty"`
	Feedbacks   []PublicFeedback `json:"feedbacks,omitempty"`
}

type PublicSettings struct {
	IsConfusionBarometerActive bool   `json:"is_confusion_barometer_active"`
	IsFeedbackChannelActive    bool   `json:"is_feedback_channel_active"`
	IsFeedbackChannelPublic    bool   `json:"is_feedback_channel_public"`
	Anonymity                  string `json:"anonymity"`
}

type PublicBlock struct {
	ID           string           `json:"id"`
	TimeLimitSec int              `json:"time_limit_sec,omitempty"`
	Instances    []PublicInstance `json:"instances"`
}

type PublicInstance struct {
	ID       string   `json:"id"`
	Question Question `json:"question"`
	Results  Results  `json:"results,omitempty"`
}

type PublicFeedback struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Votes     int       `json:"votes"`
	CreatedAt time.Time `json:"created_at"`
}

func (f Feedback) Public() PublicFeedback {
	return PublicFeedback{
		ID:        f.ID,
		Content:   f.Content,
		Votes:     f.Votes,
		CreatedAt: f.CreatedAt,
	}
}

// Public builds the participant projection. Solutions and results are only
// included when evaluation is public, feedbacks only when the channel is public.
func (s *Session) Public() PublicSession {
	out := PublicSession{
		ID:     s.ID,
		Name:   s.Name,
		Status: s.Status,
		Settings: PublicSettings{
			IsConfusionBarometerActive: s.Settings.IsConfusionBarometerActive,
			IsFeedbackChannelActive:    s.Settings.IsFeedbackChannelActive,
			IsFeedbackChannelPublic:    s.Settings.IsFeedbackChannelPublic,
			Anonymity:                  s.Settings.Anonymity,
		},
	}

	if s.ActiveBlock != nil && *s.ActiveBlock >= 0 && *s.ActiveBlock < len(s.Blocks) {
		block := s.Blocks[*s.ActiveBlock]
		pb := &PublicBlock{
			ID:           block.ID,
			TimeLimitSec: block.TimeLimitSec,
			Instances:    make([]PublicInstance, 0, len(block.Instances)),
		}
		for _, inst := range block.Instances {
			pi := PublicInstance{ID: inst.ID, Question: publicQuestion(inst.Question, s.Settings.IsEvaluationPublic)}
			if s.Settings.IsEvaluationPublic && inst.Results != nil {
				pi.Results = inst.Results.Clone()
			}
			pb.Instances = append(pb.Instances, pi)
		}
		out.ActiveBlock = pb
	}

	if s.Settings.IsFeedbackChannelPublic {
		out.Feedbacks = make([]PublicFeedback, 0, len(s.Feedbacks))
		for _, f := range s.Feedbacks {
			out.Feedbacks = append(out.Feedbacks, f.Public())
		}
	}
	return out
}

func publicQuestion(q Question, withSolution bool) Question {
	if withSolution || len(q.Options) == 0 {
		return q
	}
	options := make([]Option, len(q.Options))
	for i, o := range q.Options {
		options[i] = Option{Key: o.Key, Label: o.Label}
	}
	q.Options = options
	return q
}
