package users

import (
	"context"
	"fmt"
	"time"

	"portal/internal/infra/dbx"
)

type Store interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, userID int64) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context, limit, offset int) ([]User, int, error)
	UpdatePassword(ctx context.Context, user *User) error
	MarkVerified(ctx context.Context, userID int64) error
	SetLastLogin(ctx context.Context, userID int64, at time.Time) error
	SaveRefreshToken(ctx context.Context, userID int64, refreshToken string) error
	GetRefreshToken(ctx context.Context, userID int64) (string, error)
	DeleteRefreshToken(ctx context.Context, userID int64) error
	Delete(ctx context.Context, userID int64) error
}

type Repository struct {
	db dbx.Querier
}

func NewRepository(db dbx.Querier) *Repository {
	return &Repository{db: db}
}

const userColumns = `id, email, password, is_active, is_staff, is_verified, created_at, last_login`

func scanUser(row interface{ Scan(...any) error }, user *User) error {
	return row.Scan(
		&user.ID,
		&user.Email,
		&user.Password.hash,
		&user.IsActive,
		&user.IsStaff,
		&user.IsVerified,
		&user.CreatedAt,
		&user.LastLogin,
	)
}

func (r *Repository) Create(ctx context.Context, user *User) error {
	query := `
		INSERT INTO users (email, password, is_active, is_staff, is_verified)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	user.Email = NormalizeEmail(user.Email)

	err := r.db.QueryRow(
		ctx, query, user.Email, user.Password.hash, user.IsActive, user.IsStaff, user.IsVerified,
	).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err, "users_email_key") {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *Repository) GetByID(ctx context.Context, userID int64) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	user := &User{}
	if err := scanUser(r.db.QueryRow(ctx, query, userID), user); err != nil {
		if dbx.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return user, nil
}

func (r *Repository) GetByEmail(ctx context.Context, email string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(email) = $1`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	user := &User{}
	if err := scanUser(r.db.QueryRow(ctx, query, NormalizeEmail(email)), user); err != nil {
		if dbx.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return user, nil
}

func (r *Repository) List(ctx context.Context, limit, offset int) ([]User, int, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var u User
		if err := scanUser(rows, &u); err != nil {
			return nil, 0, err
		}
		out = append(out, u)
	}
	return out, total, rows.Err()
}

func (r *Repository) UpdatePassword(ctx context.Context, user *User) error {
	return r.exec(ctx, `UPDATE users SET password = $1 WHERE id = $2`, user.Password.hash, user.ID)
}

func (r *Repository) MarkVerified(ctx context.Context, userID int64) error {
	return r.exec(ctx, `UPDATE users SET is_verified = TRUE WHERE id = $1`, userID)
}

func (r *Repository) SetLastLogin(ctx context.Context, userID int64, at time.Time) error {
	return r.exec(ctx, `UPDATE users SET last_login = $1 WHERE id = $2`, at, userID)
}

func (r *Repository) SaveRefreshToken(ctx context.Context, userID int64, refreshToken string) error {
	return r.exec(ctx, `UPDATE users SET refresh_token = $1 WHERE id = $2`, refreshToken, userID)
}

func (r *Repository) GetRefreshToken(ctx context.Context, userID int64) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	var token *string
	err := r.db.QueryRow(ctx, `SELECT refresh_token FROM users WHERE id = $1`, userID).Scan(&token)
	if err != nil {
		if dbx.IsNoRows(err) {
			return "", ErrNotFound
		}
		return "", err
	}
	if token == nil {
		return "", ErrNotFound
	}
	return *token, nil
}

func (r *Repository) DeleteRefreshToken(ctx context.Context, userID int64) error {
	return r.exec(ctx, `UPDATE users SET refresh_token = NULL WHERE id = $1`, userID)
}

func (r *Repository) Delete(ctx context.Context, userID int64) error {
	return r.exec(ctx, `DELETE FROM users WHERE id = $1`, userID)
}

// exec runs a single-row write and maps "no row touched" to ErrNotFound.
func (r *Repository) exec(ctx context.Context, query string, args ...any) error {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

var (
	_ Store = (*Repository)(nil)
	_ Store = (*MemoryStore)(nil)
)
