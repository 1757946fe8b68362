// Package directory indexes sessions by join code and owner.
//
// The index is a derived view of the store. Readers work on an immutable
// snapshot; writers build a new snapshot and swap it in. Every lookup is
// re-validated against the session loaded from the store, so a stale entry
// can only cause a miss, never a wrong answer.
package directory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"session-service/internal/apperrors"
	"session-service/internal/constants"
	"session-service/internal/models"
)

type Loader interface {
	Load(ctx context.Context, id string) (*models.Session, error)
}

type snapshot struct {
	byID    map[string]models.DirectoryEntry
	byCode  map[string]string
	byOwner map[string][]string
}

func emptySnapshot() *snapshot {
	return &snapshot{
		byID:    map[string]models.DirectoryEntry{},
		byCode:  map[string]string{},
		byOwner: map[string][]string{},
	}
}

type Directory struct {
	loader  Loader
	writeMu sync.Mutex
	current atomic.Pointer[snapshot]
}

func New(loader Loader) *Directory {
	d := &Directory{loader: loader}
	d.current.Store(emptySnapshot())
	return d
}

func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Rebuild replaces the whole index.
func (d *Directory) Rebuild(entries []models.DirectoryEntry) {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	byID := make(map[string]models.DirectoryEntry, len(entries))
	for _, e := range entries {
		byID[e.SessionID] = e
	}
	d.current.Store(build(byID))
}

// Put inserts or replaces the entry for a session.
func (d *Directory) Put(entry models.DirectoryEntry) {
	d.mutate(func(byID map[string]models.DirectoryEntry) {
		byID[entry.SessionID] = entry
	})
}

func (d *Directory) Remove(sessionID string) {
	d.mutate(func(byID map[string]models.DirectoryEntry) {
		delete(byID, sessionID)
	})
}

func (d *Directory) CodeTaken(code string) bool {
	_, ok := d.current.Load().byCode[NormalizeCode(code)]
	return ok
}

func (d *Directory) Entry(sessionID string) (models.DirectoryEntry, bool) {
	e, ok := d.current.Load().byID[sessionID]
	return e, ok
}

// AllForOwner lists the owner's session ids in id order.
func (d *Directory) AllForOwner(ownerID string) []string {
	ids := d.current.Load().byOwner[ownerID]
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}

// ByJoinCode resolves a join code, case-insensitively, to the current session.
func (d *Directory) ByJoinCode(ctx context.Context, code string) (*models.Session, error) {
	code = NormalizeCode(code)
	id, ok := d.current.Load().byCode[code]
	if !ok {
		return nil, apperrors.NotFound("no session with join code %s", code)
	}
	s, err := d.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if s == nil || NormalizeCode(s.JoinCode) != code {
		return nil, apperrors.NotFound("no session with join code %s", code)
	}
	return s, nil
}

// ByOwnerRunning returns the owner's RUNNING or PAUSED session, or nil.
func (d *Directory) ByOwnerRunning(ctx context.Context, ownerID string) (*models.Session, error) {
	snap := d.current.Load()
	for _, id := range snap.byOwner[ownerID] {
		if !constants.IsLive(snap.byID[id].Status) {
			continue
		}
		s, err := d.load(ctx, id)
		if err != nil {
			return nil, err
		}
		if s != nil && s.OwnerID == ownerID && constants.IsLive(s.Status) {
			return s, nil
		}
	}
	return nil, nil
}

// load fetches the session and repairs the index when the entry turns out to
// be stale. A missing session yields nil without error.
func (d *Directory) load(ctx context.Context, id string) (*models.Session, error) {
	s, err := d.loader.Load(ctx, id)
	if errors.Is(err, apperrors.ErrNotFound) {
		d.Remove(id)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if current, ok := d.Entry(id); !ok || current != models.EntryFor(s) {
		d.Put(models.EntryFor(s))
	}
	return s, nil
}

func (d *Directory) mutate(fn func(byID map[string]models.DirectoryEntry)) {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	old := d.current.Load()
	byID := make(map[string]models.DirectoryEntry, len(old.byID)+1)
	for k, v := range old.byID {
		byID[k] = v
	}
	fn(byID)
	d.current.Store(build(byID))
}

func build(byID map[string]models.DirectoryEntry) *snapshot {
	snap := emptySnapshot()
	snap.byID = byID
	for id, e := range byID {
		if e.JoinCode != "" {
			snap.byCode[NormalizeCode(e.JoinCode)] = id
		}
		snap.byOwner[e.OwnerID] = append(snap.byOwner[e.OwnerID], id)
	}
	for _, ids := range snap.byOwner {
		sort.Strings(ids)
	}
	return snap
}
