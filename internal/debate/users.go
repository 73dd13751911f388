package debate

import "sync"

// UserStore is the process-wide table of known user profiles, keyed by ID.
// It is independent of debate membership: leaving a debate does not remove the
// profile.
type UserStore struct {
	mu    sync.RWMutex
	users map[string]User
}

func NewUserStore() *UserStore {
	return &UserStore{users: make(map[string]User)}
}

// Upsert stores u, replacing any profile with the same ID. It returns the
// previous profile and whether one existed.
func (s *UserStore) Upsert(u User) (User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, existed := s.users[u.ID]
	s.users[u.ID] = u
	return prev, existed
}

func (s *UserStore) Get(id string) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	return u, ok
}

func (s *UserStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}
