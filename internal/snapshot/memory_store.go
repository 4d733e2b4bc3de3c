package snapshot

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/campustest/testgate/internal/session"
)

// MemoryStore is an in-process SnapshotStore used in tests and single-node
// dev setups without Redis. Snapshots round-trip through JSON so the stored
// value behaves exactly like the durable one.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

var _ session.SnapshotStore = (*MemoryStore)(nil)

func memKey(studentID, testID string) string {
	return studentID + "/" + testID
}

func (s *MemoryStore) Save(_ context.Context, studentID, testID string, snap session.Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.data[memKey(studentID, testID)] = raw
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Load(_ context.Context, studentID, testID string) (*session.Snapshot, error) {
	s.mu.Lock()
	raw, ok := s.data[memKey(studentID, testID)]
	s.mu.Unlock()
	if !ok {
		return nil, nil
	}

	var snap session.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (s *MemoryStore) Delete(_ context.Context, studentID, testID string) error {
	s.mu.Lock()
	delete(s.data, memKey(studentID, testID))
	s.mu.Unlock()
	return nil
}
