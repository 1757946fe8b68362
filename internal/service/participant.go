package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"session-service/internal/aggregator"
	"session-service/internal/apperrors"
	"session-service/internal/broadcast"
	"session-service/internal/constants"
	"session-service/internal/models"
	"session-service/internal/sequencer"

	"github.com/google/uuid"
)

// JoinPublic resolves a join code to the participant view of a live session.
func (s *SessionService) JoinPublic(ctx context.Context, code string) (*models.PublicSession, error) {
	sess, err := s.directory.ByJoinCode(ctx, code)
	if err != nil {
		return nil, err
	}
	return publicView(sess)
}

// PublicByID is JoinPublic keyed by session id.
func (s *SessionService) PublicByID(ctx context.Context, sessionID string) (*models.PublicSession, error) {
	sess, err := s.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return publicView(sess)
}

func publicView(sess *models.Session) (*models.PublicSession, error) {
	if !constants.IsLive(sess.Status) {
		return nil, apperrors.NotFound("session %s is not live", sess.ID)
	}
	view := sess.Public()
	return &view, nil
}

func (s *SessionService) AddResponse(ctx context.Context, sessionID, token, instanceID string, payload models.ResponsePayload) (*models.Response, error) {
	fp, err := s.identity.Fingerprint(sessionID, token)
	if err != nil {
		return nil, err
	}
	var stored *models.Response
	_, err = s.mutate(ctx, sessionID, func(sess *models.Session) error {
		resp, err := aggregator.Submit(sess, instanceID, fp, payload, s.now())
		if err != nil {
			return err
		}
		stored = resp
		return nil
	}, nil)
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// DeleteOwnResponse withdraws the caller's response. Withdrawing twice is not
// an error.
func (s *SessionService) DeleteOwnResponse(ctx context.Context, sessionID, token, instanceID string) error {
	fp, err := s.identity.Fingerprint(sessionID, token)
	if err != nil {
		return err
	}
	_, err = s.mutate(ctx, sessionID, func(sess *models.Session) error {
		inst, _ := sequencer.FindInstance(sess, instanceID)
		if inst == nil {
			return apperrors.NotFound("question instance %s not found", instanceID)
		}
		aggregator.Remove(inst, fp)
		return nil
	}, nil)
	return err
}

func (s *SessionService) AddConfusionTS(ctx context.Context, sessionID, token string, difficulty, speed int) (*models.ConfusionTS, error) {
	fp, err := s.identity.Fingerprint(sessionID, token)
	if err != nil {
		return nil, err
	}
	if !inConfusionRange(difficulty) || !inConfusionRange(speed) {
		return nil, apperrors.Validation("difficulty and speed must be between %d and %d", constants.ConfusionMin, constants.ConfusionMax)
	}

	var added models.ConfusionTS
	_, err = s.mutate(ctx, sessionID, func(sess *models.Session) error {
		if sess.Status != constants.SessionStatusRunning {
			return apperrors.NotAccepting("session %s is %s", sess.ID, sess.Status)
		}
		if !sess.Settings.IsConfusionBarometerActive {
			return apperrors.NotAccepting("confusion barometer is disabled")
		}
		added = models.ConfusionTS{
			ID:          uuid.NewString(),
			SessionID:   sess.ID,
			Fingerprint: fp,
			Difficulty:  difficulty,
			Speed:       speed,
			CreatedAt:   s.now(),
		}
		broadcast.AppendConfusion(sess, added, s.opts.SignalBufferSize)
		return nil
	}, func(sess *models.Session) {
		public := added
		public.Fingerprint = ""
		s.emit(ctx, sess.ID, constants.ChannelConfusion, constants.EventConfusionAdded, public)
	})
	if err != nil {
		return nil, err
	}
	return &added, nil
}

func (s *SessionService) AddFeedback(ctx context.Context, sessionID, token, content string) (*models.Feedback, error) {
	fp, err := s.identity.Fingerprint(sessionID, token)
	if err != nil {
		return nil, err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperrors.Validation("feedback content is required")
	}
	if utf8.RuneCountInString(content) > constants.MaxFeedbackLength {
		return nil, apperrors.Validation("feedback exceeds %d characters", constants.MaxFeedbackLength)
	}

	var added models.Feedback
	_, err = s.mutate(ctx, sessionID, func(sess *models.Session) error {
		if err := acceptsFeedback(sess); err != nil {
			return err
		}
		added = models.Feedback{
			ID:          uuid.NewString(),
			SessionID:   sess.ID,
			Fingerprint: fp,
			Content:     content,
			CreatedAt:   s.now(),
		}
		broadcast.AppendFeedback(sess, added)
		return nil
	}, func(sess *models.Session) {
		s.emit(ctx, sess.ID, constants.ChannelFeedback, constants.EventFeedbackAdded, added.Public())
	})
	if err != nil {
		return nil, err
	}
	return &added, nil
}

// UpvoteFeedback changes the votes of a feedback item by delta (1 or -1).
func (s *SessionService) UpvoteFeedback(ctx context.Context, sessionID, token, feedbackID string, delta int) (*models.Feedback, error) {
	if _, err := s.identity.Fingerprint(sessionID, token); err != nil {
		return nil, err
	}
	var voted models.Feedback
	_, err := s.mutate(ctx, sessionID, func(sess *models.Session) error {
		if err := acceptsFeedback(sess); err != nil {
			return err
		}
		fb, err := broadcast.UpvoteFeedback(sess, feedbackID, delta)
		if err != nil {
			return err
		}
		voted = *fb
		return nil
	}, nil)
	if err != nil {
		return nil, err
	}
	return &voted, nil
}

// Subscribe opens a signal subscription for the owner together with the
// signals recorded so far. Both are taken under the session lock, so the
// backlog and the live stream neither overlap nor leave a gap.
func (s *SessionService) Subscribe(ctx context.Context, ownerID, sessionID string, channels []string) (*broadcast.Subscription, []broadcast.Event, error) {
	for _, ch := range channels {
		if ch != constants.ChannelConfusion && ch != constants.ChannelFeedback {
			return nil, nil, apperrors.Validation("unknown channel %q", ch)
		}
	}

	unlock := s.locks.Lock(sessionID)
	defer unlock()

	sess, err := s.store.Load(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	if err := ownedBy(sess, ownerID); err != nil {
		return nil, nil, err
	}

	sub := s.hub.Subscribe(sessionID, channels...)
	backlog, err := backlogFor(sess, channels)
	if err != nil {
		sub.Close()
		return nil, nil, err
	}
	s.log.Debug("signal subscriber added", "session_id", sessionID, "channels", channels, "backlog", len(backlog), "subscribers", s.hub.SubscriberCount(sessionID))
	return sub, backlog, nil
}

func backlogFor(sess *models.Session, channels []string) ([]broadcast.Event, error) {
	wants := func(ch string) bool {
		if len(channels) == 0 {
			return true
		}
		for _, c := range channels {
			if c == ch {
				return true
			}
		}
		return false
	}

	var events []broadcast.Event
	if wants(constants.ChannelConfusion) {
		for _, ts := range sess.Confusion {
			ts.Fingerprint = ""
			ev, err := broadcast.NewEvent(sess.ID, constants.ChannelConfusion, constants.EventConfusionAdded, ts)
			if err != nil {
				return nil, err
			}
			events = append(events, ev)
		}
	}
	if wants(constants.ChannelFeedback) {
		for _, fb := range sess.Feedbacks {
			ev, err := broadcast.NewEvent(sess.ID, constants.ChannelFeedback, constants.EventFeedbackAdded, fb.Public())
			if err != nil {
				return nil, err
			}
			events = append(events, ev)
		}
	}
	return events, nil
}

func (s *SessionService) emit(ctx context.Context, sessionID, channel, eventType string, data any) {
	ev, err := broadcast.NewEvent(sessionID, channel, eventType, data)
	if err != nil {
		s.log.Error("failed to build signal event", "session_id", sessionID, "error", err)
		return
	}
	if err := s.hub.Publish(ctx, ev); err != nil {
		s.log.Warn("failed to relay signal event", "session_id", sessionID, "event", eventType, "error", err)
	}
}

func acceptsFeedback(sess *models.Session) error {
	if sess.Status != constants.SessionStatusRunning {
		return apperrors.NotAccepting("session %s is %s", sess.ID, sess.Status)
	}
	if !sess.Settings.IsFeedbackChannelActive {
		return apperrors.NotAccepting("feedback channel is disabled")
	}
	return nil
}

func inConfusionRange(v int) bool {
	return v >= constants.ConfusionMin && v <= constants.ConfusionMax
}
