package profiles

import (
	"context"
	"fmt"
	"sync"
	"time"

	"portal/internal/infra/dbx"
)

type Store interface {
	Create(ctx context.Context, p *Profile) error
	Get(ctx context.Context, userID int64) (*Profile, error)
	GetMany(ctx context.Context, userIDs []int64) (map[int64]*Profile, error)
	Update(ctx context.Context, p *Profile) error
	Delete(ctx context.Context, userID int64) error
}

type Repository struct {
	db dbx.Querier
}

func NewRepository(db dbx.Querier) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, p *Profile) error {
	query := `
		INSERT INTO profiles (user_id, name, company, phone, avatar)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	err := r.db.QueryRow(ctx, query, p.UserID, p.Name, p.Company, p.Phone, p.Avatar).
		Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create profile: %w", err)
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, userID int64) (*Profile, error) {
	query := `
		SELECT user_id, name, company, phone, avatar, created_at, updated_at
		FROM profiles WHERE user_id = $1
	`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	p := &Profile{}
	err := r.db.QueryRow(ctx, query, userID).
		Scan(&p.UserID, &p.Name, &p.Company, &p.Phone, &p.Avatar, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if dbx.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

// GetMany loads the profiles of several users at once. Users without a
// profile are absent from the map.
func (r *Repository) GetMany(ctx context.Context, userIDs []int64) (map[int64]*Profile, error) {
	out := make(map[int64]*Profile, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}

	query := `
		SELECT user_id, name, company, phone, avatar, created_at, updated_at
		FROM profiles WHERE user_id = ANY($1)
	`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	rows, err := r.db.Query(ctx, query, userIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		p := &Profile{}
		if err := rows.Scan(&p.UserID, &p.Name, &p.Company, &p.Phone, &p.Avatar, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out[p.UserID] = p
	}
	return out, rows.Err()
}

func (r *Repository) Update(ctx context.Context, p *Profile) error {
	query := `
		UPDATE profiles
		SET name = $1, company = $2, phone = $3, updated_at = NOW()
		WHERE user_id = $4
		RETURNING updated_at
	`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	err := r.db.QueryRow(ctx, query, p.Name, p.Company, p.Phone, p.UserID).Scan(&p.UpdatedAt)
	if err != nil {
		if dbx.IsNoRows(err) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

func (r *Repository) Delete(ctx context.Context, userID int64) error {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	_, err := r.db.Exec(ctx, `DELETE FROM profiles WHERE user_id = $1`, userID)
	return err
}

type MemoryStore struct {
	mu   sync.RWMutex
	rows map[int64]Profile
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[int64]Profile)}
}

func (s *MemoryStore) Create(_ context.Context, p *Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rows[p.UserID]; exists {
		return fmt.Errorf("create profile: user %d already has one", p.UserID)
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	s.rows[p.UserID] = *p
	return nil
}

func (s *MemoryStore) Get(_ context.Context, userID int64) (*Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.rows[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (s *MemoryStore) GetMany(_ context.Context, userIDs []int64) (map[int64]*Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[int64]*Profile, len(userIDs))
	for _, id := range userIDs {
		if p, ok := s.rows[id]; ok {
			out[id] = &p
		}
	}
	return out, nil
}

func (s *MemoryStore) Update(_ context.Context, p *Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.rows[p.UserID]
	if !ok {
		return ErrNotFound
	}
	cur.Name, cur.Company, cur.Phone = p.Name, p.Company, p.Phone
	cur.UpdatedAt = time.Now().UTC()
	s.rows[p.UserID] = cur
	*p = cur
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.rows, userID)
	return nil
}

var (
	_ Store = (*Repository)(nil)
	_ Store = (*MemoryStore)(nil)
)
