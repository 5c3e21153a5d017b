package credentials

import (
	"context"
	"fmt"
	"sync"
	"time"

	"portal/internal/infra/dbx"
)

type Store interface {
	Put(ctx context.Context, c *Credential) error
	Get(ctx context.Context, userID int64, purpose Purpose) (*Credential, error)
	Delete(ctx context.Context, userID int64, purpose Purpose) error
	// RecordFailure bumps the failed attempt count and returns the new value.
	RecordFailure(ctx context.Context, userID int64, purpose Purpose) (int, error)
	DeleteForUser(ctx context.Context, userID int64) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type Repository struct {
	db dbx.Querier
}

func NewRepository(db dbx.Querier) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Put(ctx context.Context, c *Credential) error {
	query := `
		INSERT INTO user_credentials (user_id, purpose, token_hash, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, purpose)
		DO UPDATE SET token_hash = EXCLUDED.token_hash, expires_at = EXCLUDED.expires_at, attempts = 0, created_at = NOW()
		RETURNING created_at
	`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	err := r.db.QueryRow(ctx, query, c.UserID, string(c.Purpose), c.TokenHash, c.ExpiresAt).Scan(&c.CreatedAt)
	if err != nil {
		return fmt.Errorf("store credential: %w", err)
	}
	c.Attempts = 0
	return nil
}

func (r *Repository) Get(ctx context.Context, userID int64, purpose Purpose) (*Credential, error) {
	query := `
		SELECT user_id, purpose, token_hash, attempts, expires_at, created_at
		FROM user_credentials WHERE user_id = $1 AND purpose = $2
	`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	var c Credential
	var p string
	err := r.db.QueryRow(ctx, query, userID, string(purpose)).Scan(&c.UserID, &p, &c.TokenHash, &c.Attempts, &c.ExpiresAt, &c.CreatedAt)
	if err != nil {
		if dbx.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	c.Purpose = Purpose(p)
	return &c, nil
}

func (r *Repository) Delete(ctx context.Context, userID int64, purpose Purpose) error {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	tag, err := r.db.Exec(ctx, `DELETE FROM user_credentials WHERE user_id = $1 AND purpose = $2`, userID, string(purpose))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) RecordFailure(ctx context.Context, userID int64, purpose Purpose) (int, error) {
	query := `
		UPDATE user_credentials SET attempts = attempts + 1
		WHERE user_id = $1 AND purpose = $2
		RETURNING attempts
	`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	var attempts int
	if err := r.db.QueryRow(ctx, query, userID, string(purpose)).Scan(&attempts); err != nil {
		if dbx.IsNoRows(err) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return attempts, nil
}

func (r *Repository) DeleteForUser(ctx context.Context, userID int64) error {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	_, err := r.db.Exec(ctx, `DELETE FROM user_credentials WHERE user_id = $1`, userID)
	return err
}

func (r *Repository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	tag, err := r.db.Exec(ctx, `DELETE FROM user_credentials WHERE expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

type key struct {
	userID  int64
	purpose Purpose
}

type MemoryStore struct {
	mu   sync.Mutex
	rows map[key]Credential
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[key]Credential)}
}

func (s *MemoryStore) Put(_ context.Context, c *Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c.CreatedAt = time.Now().UTC()
	c.Attempts = 0
	s.rows[key{c.UserID, c.Purpose}] = *c
	return nil
}

func (s *MemoryStore) Get(_ context.Context, userID int64, purpose Purpose) (*Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.rows[key{userID, purpose}]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (s *MemoryStore) Delete(_ context.Context, userID int64, purpose Purpose) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{userID, purpose}
	if _, ok := s.rows[k]; !ok {
		return ErrNotFound
	}
	delete(s.rows, k)
	return nil
}

func (s *MemoryStore) RecordFailure(_ context.Context, userID int64, purpose Purpose) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{userID, purpose}
	c, ok := s.rows[k]
	if !ok {
		return 0, ErrNotFound
	}
	c.Attempts++
	s.rows[k] = c
	return c.Attempts, nil
}

func (s *MemoryStore) DeleteForUser(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k := range s.rows {
		if k.userID == userID {
			delete(s.rows, k)
		}
	}
	return nil
}

func (s *MemoryStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for k, c := range s.rows {
		if c.ExpiresAt.Before(now) {
			delete(s.rows, k)
			n++
		}
	}
	return n, nil
}

var (
	_ Store = (*Repository)(nil)
	_ Store = (*MemoryStore)(nil)
)
