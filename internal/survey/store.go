package survey

import (
	"sort"
	"sync"
	"time"
)

// DefaultMaxSessions limits concurrent sessions kept in memory.
const DefaultMaxSessions = 100

// DefaultMaxAge is how long an idle session is kept.
const DefaultMaxAge = 2 * time.Hour

// Store keeps survey sessions in memory.
type Store struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	maxSessions int
	maxAge      time.Duration
}

// NewStore creates an empty store. Zero limits select the defaults.
func NewStore(maxSessions int, maxAge time.Duration) *Store {
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Store{
		sessions:    make(map[string]*Session),
		maxSessions: maxSessions,
		maxAge:      maxAge,
	}
}

// Add registers s, dropping idle sessions first and then the least recently
// used ones when the store is full.
func (st *Store) Add(s *Session) {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.pruneLocked(time.Now())
	if len(st.sessions) >= st.maxSessions {
		ids := make([]string, 0, len(st.sessions))
		for id := range st.sessions {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool {
			return st.sessions[ids[i]].LastAccessed().Before(st.sessions[ids[j]].LastAccessed())
		})
		for _, id := range ids[:len(st.sessions)-st.maxSessions+1] {
			delete(st.sessions, id)
		}
	}
	st.sessions[s.ID] = s
}

// Get returns the session with id.
func (st *Store) Get(id string) (*Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[id]
	return s, ok
}

// Delete removes the session with id.
func (st *Store) Delete(id string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.sessions, id)
}

// Len returns the number of sessions held.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// Prune drops sessions idle for longer than the maximum age.
func (st *Store) Prune(now time.Time) int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.pruneLocked(now)
}

func (st *Store) pruneLocked(now time.Time) int {
	removed := 0
	for id, s := range st.sessions {
		if now.Sub(s.LastAccessed()) > st.maxAge {
			delete(st.sessions, id)
			removed++
		}
	}
	return removed
}
