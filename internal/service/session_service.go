package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"session-service/internal/aggregator"
	"session-service/internal/apperrors"
	"session-service/internal/broadcast"
	"session-service/internal/constants"
	"session-service/internal/directory"
	"session-service/internal/models"
	"session-service/internal/repository"
	"session-service/internal/sequencer"
	"session-service/pkg/logger"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

type SessionStore interface {
	Create(ctx context.Context, session *models.Session) error
	Load(ctx context.Context, id string) (*models.Session, error)
	Save(ctx context.Context, session *models.Session) error
	Delete(ctx context.Context, id string) error
	ListEntries(ctx context.Context) ([]models.DirectoryEntry, error)
}

type EventPublisher interface {
	PublishLifecycle(ctx context.Context, ev models.LifecycleEvent) error
}

type FingerprintResolver interface {
	Fingerprint(sessionID, token string) (string, error)
}

type Options struct {
	SignalBufferSize int
	JoinCodeLength   int
}

type SessionService struct {
	store     SessionStore
	directory *directory.Directory
	hub       *broadcast.Hub
	identity  FingerprintResolver
	events    EventPublisher
	log       *logger.Logger
	validate  *validator.Validate
	locks     *keyedMutex
	// Keyed by owner id; held around the session lock in Start.
	ownerLocks *keyedMutex
	opts       Options
	now        func() time.Time
}

// NewSessionService wires the engine. events may be nil when no broker is
// configured.
func NewSessionService(
	store SessionStore,
	dir *directory.Directory,
	hub *broadcast.Hub,
	identity FingerprintResolver,
	events EventPublisher,
	log *logger.Logger,
	opts Options,
) *SessionService {
	if opts.SignalBufferSize <= 0 {
		opts.SignalBufferSize = 50
	}
	if opts.JoinCodeLength <= 0 {
		opts.JoinCodeLength = 6
	}
	return &SessionService{
		store:      store,
		directory:  dir,
		hub:        hub,
		identity:   identity,
		events:     events,
		log:        log.With("component", "SessionService"),
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		locks:      newKeyedMutex(),
		ownerLocks: newKeyedMutex(),
		opts:       opts,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// RebuildDirectory reloads the join code and owner index from the store.
func (s *SessionService) RebuildDirectory(ctx context.Context) error {
	entries, err := s.store.ListEntries(ctx)
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}
	s.directory.Rebuild(entries)
	s.log.Info("session directory rebuilt", "sessions", len(entries))
	return nil
}

func (s *SessionService) Create(ctx context.Context, ownerID string, in CreateSessionInput) (*models.Session, error) {
	if ownerID == "" {
		return nil, apperrors.ErrUnauthorized
	}
	if err := s.validateStruct(in); err != nil {
		return nil, err
	}
	blocks, err := materialize(in.Blocks)
	if err != nil {
		return nil, err
	}
	settings := models.DefaultSettings()
	if in.Settings != nil {
		settings.Apply(*in.Settings)
	}
	if err := validateSettings(settings); err != nil {
		return nil, err
	}

	now := s.now()
	session := &models.Session{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Name:      in.Name,
		Status:    constants.SessionStatusCreated,
		Blocks:    blocks,
		Settings:  settings,
		Confusion: []models.ConfusionTS{},
		Feedbacks: []models.Feedback{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	for range maxJoinCodeAttempts {
		code, err := randomJoinCode(s.opts.JoinCodeLength)
		if err != nil {
			return nil, fmt.Errorf("failed to generate join code: %w", err)
		}
		if s.directory.CodeTaken(code) {
			continue
		}
		session.JoinCode = code

		err = s.store.Create(ctx, session)
		if errors.Is(err, repository.ErrJoinCodeTaken) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create session: %w", err)
		}
		s.directory.Put(models.EntryFor(session))
		s.log.Info("session created", "session_id", session.ID, "owner_id", ownerID, "blocks", len(blocks))
		return session, nil
	}
	return nil, fmt.Errorf("failed to generate unique join code after %d attempts", maxJoinCodeAttempts)
}

// Start moves a CREATED session to RUNNING and activates its first block, or
// resumes a PAUSED one.
func (s *SessionService) Start(ctx context.Context, ownerID, sessionID string) (*models.Session, error) {
	// Serialises starts per owner so only one session can go live.
	unlockOwner := s.ownerLocks.Lock(ownerID)
	defer unlockOwner()

	running, err := s.directory.ByOwnerRunning(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	var event string
	return s.mutate(ctx, sessionID, func(sess *models.Session) error {
		if err := ownedBy(sess, ownerID); err != nil {
			return err
		}
		switch sess.Status {
		case constants.SessionStatusCreated:
			if running != nil && running.ID != sess.ID {
				return apperrors.InvalidTransition("owner already has live session %s", running.ID)
			}
			if err := sequencer.ActivateFirst(sess); err != nil {
				return err
			}
			now := s.now()
			sess.StartedAt = &now
			sess.Status = constants.SessionStatusRunning
			event = constants.LifecycleSessionStarted
		case constants.SessionStatusPaused:
			sess.Status = constants.SessionStatusRunning
			event = constants.LifecycleSessionResumed
		default:
			return apperrors.InvalidTransition("cannot start a %s session", sess.Status)
		}
		return nil
	}, func(sess *models.Session) {
		s.publishLifecycle(ctx, event, sess)
	})
}

func (s *SessionService) Pause(ctx context.Context, ownerID, sessionID string) (*models.Session, error) {
	return s.mutate(ctx, sessionID, func(sess *models.Session) error {
		if err := ownedBy(sess, ownerID); err != nil {
			return err
		}
		if sess.Status != constants.SessionStatusRunning {
			return apperrors.InvalidTransition("cannot pause a %s session", sess.Status)
		}
		sess.Status = constants.SessionStatusPaused
		return nil
	}, func(sess *models.Session) {
		s.publishLifecycle(ctx, constants.LifecycleSessionPaused, sess)
	})
}

// Cancel aborts a live session. Its data is kept but it no longer counts as
// running.
func (s *SessionService) Cancel(ctx context.Context, ownerID, sessionID string) (*models.Session, error) {
	return s.finish(ctx, ownerID, sessionID, constants.SessionStatusCancelled, constants.LifecycleSessionCancelled)
}

// End closes a live session, marks the active block EXECUTED and finalises
// every aggregate.
func (s *SessionService) End(ctx context.Context, ownerID, sessionID string) (*models.Session, error) {
	return s.finish(ctx, ownerID, sessionID, constants.SessionStatusEnded, constants.LifecycleSessionEnded)
}

func (s *SessionService) finish(ctx context.Context, ownerID, sessionID, status, event string) (*models.Session, error) {
	return s.mutate(ctx, sessionID, func(sess *models.Session) error {
		if err := ownedBy(sess, ownerID); err != nil {
			return err
		}
		if !constants.IsLive(sess.Status) {
			return apperrors.InvalidTransition("cannot move a %s session to %s", sess.Status, status)
		}
		now := s.now()
		sequencer.Finish(sess)
		if status == constants.SessionStatusEnded {
			aggregator.Finalize(sess, now)
		}
		sess.Status = status
		sess.FinishedAt = &now
		return nil
	}, func(sess *models.Session) {
		s.publishLifecycle(ctx, event, sess)
	})
}

// ActivateNextBlock advances to the next PLANNED block. When none is left the
// session is returned unchanged with ErrNoMoreBlocks.
func (s *SessionService) ActivateNextBlock(ctx context.Context, ownerID, sessionID string) (*models.Session, error) {
	return s.mutate(ctx, sessionID, func(sess *models.Session) error {
		if err := ownedBy(sess, ownerID); err != nil {
			return err
		}
		if sess.Status != constants.SessionStatusRunning {
			return apperrors.InvalidTransition("cannot advance a %s session", sess.Status)
		}
		return sequencer.Advance(sess)
	}, func(sess *models.Session) {
		s.publishLifecycle(ctx, constants.LifecycleBlockActivated, sess)
	})
}

func (s *SessionService) UpdateSettings(ctx context.Context, ownerID, sessionID string, patch models.SettingsPatch) (*models.Session, error) {
	return s.mutate(ctx, sessionID, func(sess *models.Session) error {
		if err := ownedBy(sess, ownerID); err != nil {
			return err
		}
		if constants.IsTerminal(sess.Status) {
			return apperrors.InvalidTransition("cannot change settings of a %s session", sess.Status)
		}
		updated := sess.Settings
		updated.Apply(patch)
		if err := validateSettings(updated); err != nil {
			return err
		}
		sess.Settings = updated
		return nil
	}, nil)
}

// Modify replaces name and blocks of a session that has not started yet.
func (s *SessionService) Modify(ctx context.Context, ownerID, sessionID string, in ModifySessionInput) (*models.Session, error) {
	if err := s.validateStruct(in); err != nil {
		return nil, err
	}
	blocks, err := materialize(in.Blocks)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, sessionID, func(sess *models.Session) error {
		if err := ownedBy(sess, ownerID); err != nil {
			return err
		}
		if sess.Status != constants.SessionStatusCreated {
			return apperrors.InvalidTransition("cannot modify a %s session", sess.Status)
		}
		sess.Name = in.Name
		sess.Blocks = blocks
		sess.ActiveBlock = nil
		return nil
	}, nil)
}

// Delete removes the given sessions. Every existing one must belong to the
// owner and must not be live, otherwise nothing is deleted. Unknown ids are
// skipped.
func (s *SessionService) Delete(ctx context.Context, ownerID string, ids []string) error {
	unique := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id != "" && !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}
	sort.Strings(unique)

	for _, id := range unique {
		unlock := s.locks.Lock(id)
		defer unlock()
	}

	var doomed []string
	for _, id := range unique {
		sess, err := s.store.Load(ctx, id)
		if errors.Is(err, apperrors.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to load session: %w", err)
		}
		if err := ownedBy(sess, ownerID); err != nil {
			return err
		}
		if constants.IsLive(sess.Status) {
			return apperrors.InvalidTransition("session %s is %s and cannot be deleted", id, sess.Status)
		}
		doomed = append(doomed, id)
	}

	for _, id := range doomed {
		if err := s.store.Delete(ctx, id); err != nil {
			return fmt.Errorf("failed to delete session: %w", err)
		}
		s.directory.Remove(id)
		s.hub.CloseSession(id)
		s.log.Info("session deleted", "session_id", id, "owner_id", ownerID)
	}
	return nil
}

func (s *SessionService) Get(ctx context.Context, ownerID, sessionID string) (*models.Session, error) {
	sess, err := s.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := ownedBy(sess, ownerID); err != nil {
		return nil, err
	}
	return sess, nil
}

// AllForOwner lists the owner's sessions, newest first.
func (s *SessionService) AllForOwner(ctx context.Context, ownerID string) ([]*models.Session, error) {
	ids := s.directory.AllForOwner(ownerID)
	sessions := make([]*models.Session, 0, len(ids))
	for _, id := range ids {
		sess, err := s.store.Load(ctx, id)
		if errors.Is(err, apperrors.ErrNotFound) {
			s.directory.Remove(id)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load session: %w", err)
		}
		if sess.OwnerID == ownerID {
			sessions = append(sessions, sess)
		}
	}
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
	return sessions, nil
}

// RunningFor returns the owner's RUNNING or PAUSED session, or nil.
func (s *SessionService) RunningFor(ctx context.Context, ownerID string) (*models.Session, error) {
	return s.directory.ByOwnerRunning(ctx, ownerID)
}

// Results returns a snapshot of one instance's aggregate.
func (s *SessionService) Results(ctx context.Context, ownerID, sessionID, instanceID string) (models.Results, error) {
	sess, err := s.Get(ctx, ownerID, sessionID)
	if err != nil {
		return nil, err
	}
	inst, _ := sequencer.FindInstance(sess, instanceID)
	if inst == nil {
		return nil, apperrors.NotFound("question instance %s not found", instanceID)
	}
	return aggregator.Snapshot(inst), nil
}

// DeleteResponse removes a single response as owner moderation.
func (s *SessionService) DeleteResponse(ctx context.Context, ownerID, sessionID, instanceID, responseID string) error {
	_, err := s.mutate(ctx, sessionID, func(sess *models.Session) error {
		if err := ownedBy(sess, ownerID); err != nil {
			return err
		}
		inst, _ := sequencer.FindInstance(sess, instanceID)
		if inst == nil {
			return apperrors.NotFound("question instance %s not found", instanceID)
		}
		aggregator.RemoveByResponseID(inst, responseID)
		return nil
	}, nil)
	return err
}

func (s *SessionService) DeleteFeedback(ctx context.Context, ownerID, sessionID, feedbackID string) error {
	_, err := s.mutate(ctx, sessionID, func(sess *models.Session) error {
		if err := ownedBy(sess, ownerID); err != nil {
			return err
		}
		broadcast.DeleteFeedback(sess, feedbackID)
		return nil
	}, nil)
	return err
}

// mutate runs fn on a freshly loaded copy of the session inside its critical
// section and saves the result. fn either succeeds fully or leaves the stored
// session untouched. after runs once the save succeeded, still holding the
// lock, so broadcasts keep the per-session order.
func (s *SessionService) mutate(
	ctx context.Context,
	sessionID string,
	fn func(sess *models.Session) error,
	after func(sess *models.Session),
) (*models.Session, error) {
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	sess, err := s.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := fn(sess); err != nil {
		return nil, err
	}
	sess.UpdatedAt = s.now()
	if err := s.store.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	s.directory.Put(models.EntryFor(sess))
	if after != nil {
		after(sess)
	}
	return sess, nil
}

func (s *SessionService) publishLifecycle(ctx context.Context, eventType string, sess *models.Session) {
	s.log.Info("session transition", "event", eventType, "session_id", sess.ID, "status", sess.Status)
	if s.events == nil {
		return
	}
	ev := models.LifecycleEvent{
		Type:       eventType,
		SessionID:  sess.ID,
		OwnerID:    sess.OwnerID,
		Status:     sess.Status,
		BlockIndex: sess.ActiveBlock,
		OccurredAt: s.now(),
	}
	if err := s.events.PublishLifecycle(ctx, ev); err != nil {
		s.log.Warn("failed to publish lifecycle event", "event", eventType, "session_id", sess.ID, "error", err)
	}
}

func ownedBy(sess *models.Session, ownerID string) error {
	if ownerID == "" || sess.OwnerID != ownerID {
		return apperrors.New(apperrors.CodeNotOwner, "session %s is not owned by the caller", sess.ID)
	}
	return nil
}
