package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"session-service/internal/apperrors"
	"session-service/internal/models"
)

type memoryRecord struct {
	entry     models.DirectoryEntry
	createdAt int64
	doc       []byte
}

// MemorySessionRepository keeps encoded session documents in process. It
// behaves like the Postgres repository, including join code uniqueness, and
// backs single-node deployments and tests.
type MemorySessionRepository struct {
	mu      sync.RWMutex
	records map[string]memoryRecord
	seq     int64
}

func NewMemorySessionRepository() *MemorySessionRepository {
	return &MemorySessionRepository{records: make(map[string]memoryRecord)}
}

func (r *MemorySessionRepository) Create(_ context.Context, session *models.Session) error {
	doc, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[session.ID]; ok {
		return fmt.Errorf("session %s already exists", session.ID)
	}
	for _, rec := range r.records {
		if strings.EqualFold(rec.entry.JoinCode, session.JoinCode) {
			return ErrJoinCodeTaken
		}
	}
	r.seq++
	r.records[session.ID] = memoryRecord{entry: models.EntryFor(session), createdAt: r.seq, doc: doc}
	return nil
}

func (r *MemorySessionRepository) Load(_ context.Context, id string) (*models.Session, error) {
	r.mu.RLock()
	rec, ok := r.records[id]
	r.mu.RUnlock()
	if !ok {
		return nil, apperrors.NotFound("session %s not found", id)
	}
	return decode(rec.doc)
}

func (r *MemorySessionRepository) Save(_ context.Context, session *models.Session) error {
	doc, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[session.ID]
	if !ok {
		return apperrors.NotFound("session %s not found", session.ID)
	}
	rec.entry = models.EntryFor(session)
	rec.doc = doc
	r.records[session.ID] = rec
	return nil
}

func (r *MemorySessionRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	delete(r.records, id)
	r.mu.Unlock()
	return nil
}

func (r *MemorySessionRepository) ListEntries(_ context.Context) ([]models.DirectoryEntry, error) {
	r.mu.RLock()
	recs := make([]memoryRecord, 0, len(r.records))
	for _, rec := range r.records {
		recs = append(recs, rec)
	}
	r.mu.RUnlock()

	sort.Slice(recs, func(i, j int) bool { return recs[i].createdAt < recs[j].createdAt })
	entries := make([]models.DirectoryEntry, len(recs))
	for i, rec := range recs {
		entries[i] = rec.entry
	}
	return entries, nil
}
