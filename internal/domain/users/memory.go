package users

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps identities in process memory. It backs the "memory"
// database driver and the handler tests.
type MemoryStore struct {
	mu      sync.RWMutex
	nextID  int64
	byID    map[int64]*User
	byEmail map[string]int64
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[int64]*User),
		byEmail: make(map[string]int64),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func clone(u *User) *User {
	c := *u
	c.Password.hash = append([]byte(nil), u.Password.hash...)
	if u.LastLogin != nil {
		t := *u.LastLogin
		c.LastLogin = &t
	}
	return &c
}

func (s *MemoryStore) Create(_ context.Context, user *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user.Email = NormalizeEmail(user.Email)
	if _, exists := s.byEmail[user.Email]; exists {
		return ErrDuplicateEmail
	}

	s.nextID++
	user.ID = s.nextID
	user.CreatedAt = s.now()

	s.byID[user.ID] = clone(user)
	s.byEmail[user.Email] = user.ID
	return nil
}

func (s *MemoryStore) GetByID(_ context.Context, userID int64) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byID[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(u), nil
}

func (s *MemoryStore) GetByEmail(_ context.Context, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[NormalizeEmail(email)]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(s.byID[id]), nil
}

func (s *MemoryStore) List(_ context.Context, limit, offset int) ([]User, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]int64, 0, len(s.byID))
	for id := range s.byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	total := len(ids)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}

	out := make([]User, 0, end-offset)
	for _, id := range ids[offset:end] {
		out = append(out, *clone(s.byID[id]))
	}
	return out, total, nil
}

func (s *MemoryStore) update(userID int64, fn func(u *User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[userID]
	if !ok {
		return ErrNotFound
	}
	fn(u)
	return nil
}

func (s *MemoryStore) UpdatePassword(_ context.Context, user *User) error {
	hash := append([]byte(nil), user.Password.hash...)
	return s.update(user.ID, func(u *User) { u.Password.hash = hash })
}

func (s *MemoryStore) MarkVerified(_ context.Context, userID int64) error {
	return s.update(userID, func(u *User) { u.IsVerified = true })
}

func (s *MemoryStore) SetLastLogin(_ context.Context, userID int64, at time.Time) error {
	return s.update(userID, func(u *User) { u.LastLogin = &at })
}

func (s *MemoryStore) SaveRefreshToken(_ context.Context, userID int64, refreshToken string) error {
	return s.update(userID, func(u *User) { u.RefreshToken = refreshToken })
}

func (s *MemoryStore) GetRefreshToken(_ context.Context, userID int64) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byID[userID]
	if !ok || u.RefreshToken == "" {
		return "", ErrNotFound
	}
	return u.RefreshToken, nil
}

func (s *MemoryStore) DeleteRefreshToken(_ context.Context, userID int64) error {
	return s.update(userID, func(u *User) { u.RefreshToken = "" })
}

func (s *MemoryStore) Delete(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[userID]
	if !ok {
		return ErrNotFound
	}
	delete(s.byEmail, u.Email)
	delete(s.byID, userID)
	return nil
}
