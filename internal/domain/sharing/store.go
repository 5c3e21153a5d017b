package sharing

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"portal/internal/infra/dbx"
)

type Store interface {
	Create(ctx context.Context, l *Link) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*Link, error)
	ListByOwner(ctx context.Context, ownerID int64) ([]Link, error)
	RecordAccess(ctx context.Context, id int64) error
	Delete(ctx context.Context, id, ownerID int64) error
	DeleteForOwner(ctx context.Context, ownerID int64) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type Repository struct {
	db dbx.Querier
}

func NewRepository(db dbx.Querier) *Repository {
	return &Repository{db: db}
}

const linkColumns = `id, owner_id, resource, token_hash, expires_at, access_count, created_at`

func scanLink(row interface{ Scan(...any) error }, l *Link) error {
	return row.Scan(&l.ID, &l.OwnerID, &l.Resource, &l.TokenHash, &l.ExpiresAt, &l.AccessCount, &l.CreatedAt)
}

func (r *Repository) Create(ctx context.Context, l *Link) error {
	query := `
		INSERT INTO share_links (owner_id, resource, token_hash, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	if err := r.db.QueryRow(ctx, query, l.OwnerID, l.Resource, l.TokenHash, l.ExpiresAt).Scan(&l.ID, &l.CreatedAt); err != nil {
		return fmt.Errorf("create share link: %w", err)
	}
	return nil
}

func (r *Repository) GetByTokenHash(ctx context.Context, tokenHash string) (*Link, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	l := &Link{}
	err := scanLink(r.db.QueryRow(ctx, `SELECT `+linkColumns+` FROM share_links WHERE token_hash = $1`, tokenHash), l)
	if err != nil {
		if dbx.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return l, nil
}

func (r *Repository) ListByOwner(ctx context.Context, ownerID int64) ([]Link, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	rows, err := r.db.Query(ctx, `SELECT `+linkColumns+` FROM share_links WHERE owner_id = $1 ORDER BY id DESC`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Link
	for rows.Next() {
		var l Link
		if err := scanLink(rows, &l); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *Repository) RecordAccess(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	_, err := r.db.Exec(ctx, `UPDATE share_links SET access_count = access_count + 1 WHERE id = $1`, id)
	return err
}

func (r *Repository) Delete(ctx context.Context, id, ownerID int64) error {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	tag, err := r.db.Exec(ctx, `DELETE FROM share_links WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) DeleteForOwner(ctx context.Context, ownerID int64) error {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	_, err := r.db.Exec(ctx, `DELETE FROM share_links WHERE owner_id = $1`, ownerID)
	return err
}

func (r *Repository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	tag, err := r.db.Exec(ctx, `DELETE FROM share_links WHERE expires_at IS NOT NULL AND expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

type MemoryStore struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]*Link
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[int64]*Link)}
}

func (s *MemoryStore) Create(_ context.Context, l *Link) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.rows {
		if existing.TokenHash == l.TokenHash {
			return fmt.Errorf("create share link: token already in use")
		}
	}
	s.nextID++
	l.ID = s.nextID
	l.CreatedAt = time.Now().UTC()
	c := *l
	s.rows[l.ID] = &c
	return nil
}

func (s *MemoryStore) GetByTokenHash(_ context.Context, tokenHash string) (*Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, l := range s.rows {
		if l.TokenHash == tokenHash {
			c := *l
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ListByOwner(_ context.Context, ownerID int64) ([]Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Link
	for _, l := range s.rows {
		if l.OwnerID == ownerID {
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *MemoryStore) RecordAccess(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l, ok := s.rows[id]; ok {
		l.AccessCount++
	}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id, ownerID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.rows[id]
	if !ok || l.OwnerID != ownerID {
		return ErrNotFound
	}
	delete(s.rows, id)
	return nil
}

func (s *MemoryStore) DeleteForOwner(_ context.Context, ownerID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, l := range s.rows {
		if l.OwnerID == ownerID {
			delete(s.rows, id)
		}
	}
	return nil
}

func (s *MemoryStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, l := range s.rows {
		if l.ExpiresAt != nil && l.ExpiresAt.Before(now) {
			delete(s.rows, id)
			n++
		}
	}
	return n, nil
}

var (
	_ Store = (*Repository)(nil)
	_ Store = (*MemoryStore)(nil)
)
