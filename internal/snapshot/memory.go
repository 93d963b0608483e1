package snapshot

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"browsernerd/internal/dom"
)

type entry struct {
	snap *Snapshot
	seq  uint64
}

// MemoryStore is the in-process Store.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]map[string]entry
	seq      uint64
	max      int
	logger   *zap.Logger
}

// NewMemoryStore creates a store keeping max snapshots per session
// (DefaultMaxPerSession when max <= 0).
func NewMemoryStore(max int, logger *zap.Logger) *MemoryStore {
	if max <= 0 {
		max = DefaultMaxPerSession
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryStore{
		sessions: make(map[string]map[string]entry),
		max:      max,
		logger:   logger,
	}
}

// newest orders entries by CreatedAt descending, later inserts first on ties.
func newest(entries []entry) {
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.snap.CreatedAt.Equal(b.snap.CreatedAt) {
			return a.snap.CreatedAt.After(b.snap.CreatedAt)
		}
		return a.seq > b.seq
	})
}

func (m *MemoryStore) sorted(sessionID string) []entry {
	byID := m.sessions[sessionID]
	entries := make([]entry, 0, len(byID))
	for _, e := range byID {
		entries = append(entries, e)
	}
	newest(entries)
	return entries
}

// Store inserts snap and evicts all but the newest snapshots of its session.
func (m *MemoryStore) Store(_ context.Context, snap *Snapshot) error {
	if err := validate(snap); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	byID, ok := m.sessions[snap.SessionID]
	if !ok {
		byID = make(map[string]entry)
		m.sessions[snap.SessionID] = byID
	}
	m.seq++
	byID[snap.ID] = entry{snap: snap.clone(), seq: m.seq}
	m.logger.Info("stored snapshot",
		zap.String("session", snap.SessionID),
		zap.String("snapshot_id", snap.ID),
		zap.Int("elements", len(snap.Elements)))

	if len(byID) > m.max {
		for _, e := range m.sorted(snap.SessionID)[m.max:] {
			delete(byID, e.snap.ID)
			m.logger.Info("expired snapshot",
				zap.String("session", snap.SessionID),
				zap.String("snapshot_id", e.snap.ID))
		}
	}
	return nil
}

// Get returns the snapshot or nil.
func (m *MemoryStore) Get(_ context.Context, sessionID, snapshotID string) (*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.sessions[sessionID][snapshotID]
	if !ok {
		m.logger.Warn("snapshot not found",
			zap.String("session", sessionID),
			zap.String("snapshot_id", snapshotID))
		return nil, nil
	}
	return e.snap.clone(), nil
}

// GetElement returns one element of a snapshot or nil.
func (m *MemoryStore) GetElement(ctx context.Context, sessionID, snapshotID, snapID string) (*dom.Element, error) {
	snap, err := m.Get(ctx, sessionID, snapshotID)
	if err != nil || snap == nil {
		return nil, err
	}
	el := snap.Element(snapID)
	if el == nil {
		m.logger.Warn("element not found in snapshot",
			zap.String("snapshot_id", snapshotID),
			zap.String("snap_id", snapID))
	}
	return el, nil
}

// Latest returns the newest snapshot of the session or nil.
func (m *MemoryStore) Latest(_ context.Context, sessionID string) (*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := m.sorted(sessionID)
	if len(entries) == 0 {
		return nil, nil
	}
	return entries[0].snap.clone(), nil
}

// List returns the session's snapshots, newest first.
func (m *MemoryStore) List(_ context.Context, sessionID string) ([]*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := m.sorted(sessionID)
	out := make([]*Snapshot, len(entries))
	for i, e := range entries {
		out[i] = e.snap.clone()
	}
	return out, nil
}

// Clear removes every snapshot of the session.
func (m *MemoryStore) Clear(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logger.Info("clearing snapshots",
		zap.String("session", sessionID),
		zap.Int("count", len(m.sessions[sessionID])))
	delete(m.sessions, sessionID)
	return nil
}

// Stats counts sessions and snapshots.
func (m *MemoryStore) Stats(_ context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st := Stats{Sessions: len(m.sessions)}
	for _, byID := range m.sessions {
		st.Snapshots += len(byID)
	}
	return st, nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }
