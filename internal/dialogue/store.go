package dialogue

import (
	"sync"
	"time"
)

// DefaultSessionTTL is how long an idle session is kept.
const DefaultSessionTTL = 30 * time.Minute

// Store keeps sessions between turns. Implementations must be safe for
// concurrent use and must not share Session values with callers.
type Store interface {
	Get(userID string) (*Session, bool)
	Put(s *Session)
	Delete(userID string)
}

// MemoryStore is an in-process Store that expires sessions idle longer than its TTL.
type MemoryStore struct {
	sessions map[string]*Session
	ttl      time.Duration
	now      func() time.Time
	mu       sync.RWMutex
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a store. A non-positive ttl means DefaultSessionTTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &MemoryStore{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Get returns a copy of the session for userID unless it is missing or expired.
func (m *MemoryStore) Get(userID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[userID]
	if !ok || m.expired(s) {
		return nil, false
	}
	return s.Clone(), true
}

// Put stores a copy of s and refreshes its activity time.
func (m *MemoryStore) Put(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := s.Clone()
	c.UpdatedAt = m.now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = c.UpdatedAt
	}
	m.sessions[c.UserID] = c
}

// Delete removes the session for userID.
func (m *MemoryStore) Delete(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, userID)
}

// CleanupExpired removes expired sessions and returns how many were removed.
func (m *MemoryStore) CleanupExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, s := range m.sessions {
		if m.expired(s) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored sessions, expired or not.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *MemoryStore) expired(s *Session) bool {
	return m.now().Sub(s.UpdatedAt) > m.ttl
}
