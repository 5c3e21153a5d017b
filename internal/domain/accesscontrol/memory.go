package accesscontrol

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore is an in-process ledger. The mutex gives Assign the same
// exactly-one-winner behaviour as the unique constraint in Postgres.
type MemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	rows   map[int64]map[Role]*RoleAssignment
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rows: make(map[int64]map[Role]*RoleAssignment),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func copyAssignment(a *RoleAssignment) RoleAssignment {
	c := *a
	if a.AssignedBy != nil {
		by := *a.AssignedBy
		c.AssignedBy = &by
	}
	return c
}

func (s *MemoryStore) Assign(_ context.Context, userID int64, role Role, assignedBy *int64) (*RoleAssignment, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	held := s.rows[userID]
	if held == nil {
		held = make(map[Role]*RoleAssignment)
		s.rows[userID] = held
	}
	if _, dup := held[role]; dup {
		return nil, ErrDuplicateRole
	}

	s.nextID++
	a := &RoleAssignment{ID: s.nextID, UserID: userID, Role: role, AssignedAt: s.now()}
	if assignedBy != nil {
		by := *assignedBy
		a.AssignedBy = &by
	}
	held[role] = a

	out := copyAssignment(a)
	return &out, nil
}

func (s *MemoryStore) Revoke(_ context.Context, userID int64, role Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rows[userID][role]; !ok {
		return ErrRoleNotFound
	}
	delete(s.rows[userID], role)
	return nil
}

func (s *MemoryStore) HasRole(_ context.Context, userID int64, role Role) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.rows[userID][role]
	return ok, nil
}

func (s *MemoryStore) ListRoles(ctx context.Context, userID int64) ([]Role, error) {
	assignments, _ := s.ListAssignments(ctx, userID)
	roles := make([]Role, len(assignments))
	for i, a := range assignments {
		roles[i] = a.Role
	}
	return roles, nil
}

func (s *MemoryStore) RolesFor(_ context.Context, userIDs []int64) (map[int64][]Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[int64][]Role, len(userIDs))
	for _, id := range userIDs {
		for role := range s.rows[id] {
			out[id] = append(out[id], role)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListAssignments(_ context.Context, userID int64) ([]RoleAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]RoleAssignment, 0, len(s.rows[userID]))
	for _, a := range s.rows[userID] {
		out = append(out, copyAssignment(a))
	}
	SortByHierarchy(out)
	return out, nil
}

func (s *MemoryStore) GetAssignment(_ context.Context, userID int64, role Role) (*RoleAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.rows[userID][role]
	if !ok {
		return nil, ErrRoleNotFound
	}
	out := copyAssignment(a)
	return &out, nil
}

func (s *MemoryStore) DetachUser(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.rows, userID)
	for _, held := range s.rows {
		for _, a := range held {
			if a.AssignedBy != nil && *a.AssignedBy == userID {
				a.AssignedBy = nil
			}
		}
	}
	return nil
}
