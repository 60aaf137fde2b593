package persistence

import (
	"context"
	"sync"
)

// InMemorySnapshotStore provides thread-safe in-memory snapshot storage,
// grounded on storage.InMemoryKeyStore's map-plus-mutex shape. Used by
// cmd/qtisession and in tests that don't need a real Postgres instance.
type InMemorySnapshotStore struct {
	mutex     sync.RWMutex
	snapshots map[string]Snapshot
}

// NewInMemorySnapshotStore returns an empty store.
func NewInMemorySnapshotStore() *InMemorySnapshotStore {
	return &InMemorySnapshotStore{snapshots: make(map[string]Snapshot)}
}

// Save implements SnapshotStore.
func (s *InMemorySnapshotStore) Save(_ context.Context, sessionID, testIdentifier string, data []byte) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	stored := make([]byte, len(data))
	copy(stored, data)

	s.snapshots[sessionID] = Snapshot{TestIdentifier: testIdentifier, Data: stored}

	return nil
}

// Load implements SnapshotStore.
func (s *InMemorySnapshotStore) Load(_ context.Context, sessionID string) (Snapshot, bool, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	snap, ok := s.snapshots[sessionID]

	return snap, ok, nil
}

// Delete implements SnapshotStore.
func (s *InMemorySnapshotStore) Delete(_ context.Context, sessionID string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	delete(s.snapshots, sessionID)

	return nil
}

// HealthCheck always succeeds; there is no backing connection to probe.
func (s *InMemorySnapshotStore) HealthCheck(context.Context) error { return nil }

// Close is a no-op.
func (s *InMemorySnapshotStore) Close() error { return nil }
