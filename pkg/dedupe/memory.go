package dedupe

import (
	"context"
	"sync"
	"time"
)

// Memory is a mutex-guarded in-process guard. Suitable for tests and
// single-instance deployments; a horizontally-scaled consumer group needs the
// shared Store instead. Test fakes of the repositories call Mark where the
// real ones ride the database transaction.
type Memory struct {
	mu   sync.Mutex
	seen map[string]time.Time
}

// NewMemory creates an empty in-memory guard.
func NewMemory() *Memory {
	return &Memory{seen: make(map[string]time.Time)}
}

func (m *Memory) Seen(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.seen[key]
	return ok, nil
}

// Mark records key and reports whether this caller won it.
func (m *Memory) Mark(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.seen[key]; ok {
		return false, nil
	}
	m.seen[key] = time.Now().UTC()
	return true, nil
}

// Sweep drops keys recorded before cutoff and returns how many were removed.
func (m *Memory) Sweep(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k, at := range m.seen {
		if at.Before(cutoff) {
			delete(m.seen, k)
			n++
		}
	}
	return n, nil
}
