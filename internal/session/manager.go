// Package session holds the authoritative registry of live interview
// sessions: creation, lookup, single-writer access, persistence, and
// idle expiry.
package session

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/interviewer/internal/model"
)

// ErrSessionNotFound is returned when a session id is unknown both in
// memory and in the snapshot store. Lookups never create sessions.
var ErrSessionNotFound = errors.New("session not found")

// SnapshotStore persists session snapshots. Load returns (nil, nil) when no
// usable snapshot exists; implementations treat corrupt records as absent.
type SnapshotStore interface {
	Save(id string, state *model.SessionState) error
	Load(id string) (*model.SessionState, error)
	Delete(id string) error
}

// entry pairs one session's state with its metadata and exclusive-access
// lock. The mutex serializes turn processing across all transports.
type entry struct {
	mu    sync.Mutex
	state *model.SessionState
	meta  model.SessionMetadata
}

// Stats is a point-in-time view of the registry.
type Stats struct {
	Active  int `json:"active_sessions"`
	Tracked int `json:"tracked_sessions"`
}

// Manager owns the map of session id to session entry. All session
// mutation goes through WithSession; no other component touches a
// SessionState directly.
type Manager struct {
	mu      sync.RWMutex
	entries map[string]*entry
	store   SnapshotStore
	now     func() time.Time
}

// NewManager creates an empty registry backed by the given snapshot store.
func NewManager(store SnapshotStore) *Manager {
	return &Manager{
		entries: make(map[string]*entry),
		store:   store,
		now:     time.Now,
	}
}

// Create registers a new session. An empty id gets a generated one. If the
// id is already tracked in memory, the existing session is reused as-is
// (the original registration's metadata wins), so starting twice never
// clobbers an in-flight interview. Otherwise, a persisted snapshot for the
// id is restored so interviews survive a process restart; restore failure
// leaves a fresh session. The returned state is a copy.
func (m *Manager) Create(id, candidateName string) (string, *model.SessionState, error) {
	if id == "" {
		id = uuid.NewString()
	}

	m.mu.RLock()
	e, ok := m.entries[id]
	m.mu.RUnlock()
	if ok {
		return id, snapshotOf(e), nil
	}

	state := model.NewSessionState(id)
	if snap, err := m.store.Load(id); err != nil {
		slog.Warn("failed to restore session snapshot", "session_id", id, "error", err)
	} else if snap != nil {
		state = snap
	}

	now := m.now()
	e = &entry{
		state: state,
		meta: model.SessionMetadata{
			CreatedAt:      now,
			LastActivityAt: now,
			Status:         model.StatusActive,
			CandidateName:  candidateName,
		},
	}
	// Take the copy before the entry becomes visible to other goroutines.
	copied := state.Clone()

	m.mu.Lock()
	if existing, ok := m.entries[id]; ok {
		// Lost a create race for the same id; the winner's session stands.
		m.mu.Unlock()
		return id, snapshotOf(existing), nil
	}
	m.entries[id] = e
	m.mu.Unlock()

	return id, copied, nil
}

// snapshotOf copies an entry's state under its lock.
func snapshotOf(e *entry) *model.SessionState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Clone()
}

// Get returns a copy of the session state, loading it from persistence if
// it is not in memory. The copy shares no memory with the live state, so
// callers may read it while turns keep running. Successful retrieval bumps
// the session's last-activity time.
func (m *Manager) Get(id string) (*model.SessionState, error) {
	e, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.meta.LastActivityAt = m.now()
	return e.state.Clone(), nil
}

// Metadata returns the manager-owned metadata for a session.
func (m *Manager) Metadata(id string) (model.SessionMetadata, error) {
	e, err := m.lookup(id)
	if err != nil {
		return model.SessionMetadata{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.meta, nil
}

// WithSession is the only sanctioned way to mutate a session. It holds the
// per-session exclusive lock for the whole of fn, including any evaluator
// suspension inside it, then persists the new snapshot. The lock is
// released on every exit path; fn's error is returned as-is.
func (m *Manager) WithSession(id string, fn func(state *model.SessionState) error) error {
	e, err := m.lookup(id)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// A sweep may have expired the session while we waited for its lock.
	if e.meta.Status != model.StatusActive {
		return ErrSessionNotFound
	}

	e.meta.LastActivityAt = m.now()
	if err := fn(e.state); err != nil {
		return err
	}

	// Persist after the mutation so snapshots never run ahead of state.
	if err := m.store.Save(id, e.state); err != nil {
		slog.Error("failed to persist session snapshot", "session_id", id, "error", err)
	}
	return nil
}

// Save persists the session's current snapshot. Failure is logged and
// reported but leaves in-memory state authoritative.
func (m *Manager) Save(id string) error {
	e, err := m.lookup(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := m.store.Save(id, e.state); err != nil {
		slog.Error("failed to persist session snapshot", "session_id", id, "error", err)
		return err
	}
	return nil
}

// Delete removes a session from memory and persistence. Idempotent.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	delete(m.entries, id)
	m.mu.Unlock()

	if err := m.store.Delete(id); err != nil {
		slog.Warn("failed to delete session snapshot", "session_id", id, "error", err)
	}
	return nil
}

// SweepExpired removes every session idle longer than timeout and returns
// the count removed. Sessions whose lock is currently held are skipped: a
// sweep never interrupts an in-flight turn. Scheduling belongs to the
// caller.
func (m *Manager) SweepExpired(timeout time.Duration) int {
	cutoff := m.now().Add(-timeout)

	m.mu.RLock()
	candidates := make(map[string]*entry, len(m.entries))
	for id, e := range m.entries {
		candidates[id] = e
	}
	m.mu.RUnlock()

	removed := 0
	for id, e := range candidates {
		if !e.mu.TryLock() {
			continue
		}
		if !e.meta.LastActivityAt.Before(cutoff) {
			e.mu.Unlock()
			continue
		}
		// Remove while still holding the entry lock: a turn that was
		// waiting on this session wakes to the expired mark instead of
		// mutating a deleted session.
		e.meta.Status = model.StatusExpired
		err := m.Delete(id)
		e.mu.Unlock()
		if err != nil {
			slog.Warn("failed to delete expired session", "session_id", id, "error", err)
			continue
		}
		slog.Info("swept expired session", "session_id", id)
		removed++
	}
	return removed
}

// Stats reports registry counts. Entries whose lock is held have a turn in
// flight and count as active.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	entries := make([]*entry, 0, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	s := Stats{Tracked: len(entries)}
	for _, e := range entries {
		if !e.mu.TryLock() {
			s.Active++
			continue
		}
		if e.meta.Status == model.StatusActive {
			s.Active++
		}
		e.mu.Unlock()
	}
	return s
}

// IDs returns the ids of all tracked sessions.
func (m *Manager) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	return ids
}

// lookup finds an in-memory entry or revives one from the snapshot store.
func (m *Manager) lookup(id string) (*entry, error) {
	m.mu.RLock()
	e, ok := m.entries[id]
	m.mu.RUnlock()
	if ok {
		return e, nil
	}

	snap, err := m.store.Load(id)
	if err != nil {
		slog.Warn("failed to load session snapshot", "session_id", id, "error", err)
		return nil, ErrSessionNotFound
	}
	if snap == nil {
		return nil, ErrSessionNotFound
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// Another goroutine may have revived it meanwhile.
	if e, ok := m.entries[id]; ok {
		return e, nil
	}
	now := m.now()
	e = &entry{
		state: snap,
		meta: model.SessionMetadata{
			CreatedAt:      now,
			LastActivityAt: now,
			Status:         model.StatusActive,
		},
	}
	m.entries[id] = e
	return e, nil
}
