package session

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/ovaphlow/pitchfork/service-user-go/pkg/utilities"
)

var _ Store = (*MemoryStore)(nil)

type memorySession struct {
	userID    int64
	expiresAt time.Time
}

// MemoryStore holds sessions in RAM. Sessions are lost on restart.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*memorySession
	ttl      time.Duration
	clock    clockwork.Clock
}

// NewMemoryStore returns a store with the given idle timeout. A nil clock
// means wall time.
func NewMemoryStore(ttl time.Duration, clock clockwork.Clock) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryStore{sessions: map[string]*memorySession{}, ttl: ttl, clock: clock}
}

func (m *MemoryStore) Create(_ context.Context, userID int64) (string, error) {
	id := utilities.NewKSUID()
	m.mu.Lock()
	m.sessions[id] = &memorySession{userID: userID, expiresAt: m.clock.Now().Add(m.ttl)}
	m.mu.Unlock()
	return id, nil
}

func (m *MemoryStore) Resolve(_ context.Context, sessionID string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return 0, false, nil
	}
	now := m.clock.Now()
	if !now.Before(s.expiresAt) {
		delete(m.sessions, sessionID)
		return 0, false, nil
	}
	s.expiresAt = now.Add(m.ttl)
	return s.userID, true, nil
}

func (m *MemoryStore) Invalidate(_ context.Context, sessionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return false, nil
	}
	delete(m.sessions, sessionID)
	return m.clock.Now().Before(s.expiresAt), nil
}

func (m *MemoryStore) PurgeExpired(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock.Now()
	n := 0
	for id, s := range m.sessions {
		if !now.Before(s.expiresAt) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

// Len reports how many sessions are held, expired ones included.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
