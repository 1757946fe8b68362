package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"session-service/internal/apperrors"
	"session-service/internal/models"
	"session-service/internal/sequencer"

	"github.com/lib/pq"
)

// ErrJoinCodeTaken is returned by Create when another session already uses
// the join code.
var ErrJoinCodeTaken = errors.New("join code already in use")

const uniqueViolation = "23505"

// SessionRepository stores each session as a single JSONB document next to
// the columns the directory is rebuilt from.
type SessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, session *models.Session) error {
	doc, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	query := `
		INSERT INTO sessions (id, owner_id, join_code, status, document, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = r.db.ExecContext(ctx, query,
		session.ID,
		session.OwnerID,
		session.JoinCode,
		session.Status,
		string(doc),
		session.CreatedAt,
		session.UpdatedAt,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return ErrJoinCodeTaken
	}
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

func (r *SessionRepository) Load(ctx context.Context, id string) (*models.Session, error) {
	query := `SELECT document FROM sessions WHERE id = $1`
	var doc string
	err := r.db.QueryRowContext(ctx, query, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("session %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return decode([]byte(doc))
}

func (r *SessionRepository) Save(ctx context.Context, session *models.Session) error {
	doc, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	query := `
		UPDATE sessions
		SET join_code = $1, status = $2, document = $3, updated_at = $4
		WHERE id = $5
	`
	result, err := r.db.ExecContext(ctx, query,
		session.JoinCode,
		session.Status,
		string(doc),
		session.UpdatedAt,
		session.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	if rows == 0 {
		return apperrors.NotFound("session %s not found", session.ID)
	}
	return nil
}

func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (r *SessionRepository) ListEntries(ctx context.Context) ([]models.DirectoryEntry, error) {
	query := `SELECT id, owner_id, join_code, status FROM sessions ORDER BY created_at ASC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var entries []models.DirectoryEntry
	for rows.Next() {
		var e models.DirectoryEntry
		if err := rows.Scan(&e.SessionID, &e.OwnerID, &e.JoinCode, &e.Status); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return entries, nil
}

func decode(doc []byte) (*models.Session, error) {
	var s models.Session
	if err := json.Unmarshal(doc, &s); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	if err := sequencer.CheckInvariant(&s); err != nil {
		return nil, fmt.Errorf("stored session is inconsistent: %w", err)
	}
	return &s, nil
}
