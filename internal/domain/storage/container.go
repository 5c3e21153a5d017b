package storage

import (
	"context"
	"fmt"
	"sync"

	"portal/internal/domain/accesscontrol"
	"portal/internal/domain/credentials"
	"portal/internal/domain/profiles"
	"portal/internal/domain/sharing"
	"portal/internal/domain/users"
	"portal/internal/infra/dbx"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Container struct {
	Users         users.Store
	AccessControl accesscontrol.Store
	Profiles      profiles.Store
	Credentials   credentials.Store
	Shares        sharing.Store

	withTx func(ctx context.Context, fn func(tx *Container) error) error
	ping   func(ctx context.Context) error
}

func newRepositories(q dbx.Querier) *Container {
	return &Container{
		Users:         users.NewRepository(q),
		AccessControl: accesscontrol.NewRepository(q),
		Profiles:      profiles.NewRepository(q),
		Credentials:   credentials.NewRepository(q),
		Shares:        sharing.NewRepository(q),
	}
}

// NewContainer wires Postgres repositories over pool.
func NewContainer(pool *pgxpool.Pool) *Container {
	c := newRepositories(pool)
	c.ping = pool.Ping
	c.withTx = func(ctx context.Context, fn func(tx *Container) error) error {
		return dbx.WithTx(ctx, pool, func(tx pgx.Tx) error {
			txc := newRepositories(tx)
			txc.ping = pool.Ping
			txc.withTx = func(_ context.Context, inner func(*Container) error) error {
				return inner(txc)
			}
			return fn(txc)
		})
	}
	return c
}

// NewMemoryContainer wires in-memory stores. Units of work are serialised
// against each other but are not rolled back on failure.
func NewMemoryContainer() *Container {
	c := &Container{
		Users:         users.NewMemoryStore(),
		AccessControl: accesscontrol.NewMemoryStore(),
		Profiles:      profiles.NewMemoryStore(),
		Credentials:   credentials.NewMemoryStore(),
		Shares:        sharing.NewMemoryStore(),
		ping:          func(context.Context) error { return nil },
	}

	var mu sync.Mutex
	c.withTx = func(_ context.Context, fn func(tx *Container) error) error {
		mu.Lock()
		defer mu.Unlock()
		return fn(c)
	}
	return c
}

// WithTx runs fn as one unit of work. fn must only use the stores of the
// container it is given and must not call WithTx again on the outer one.
func (c *Container) WithTx(ctx context.Context, fn func(tx *Container) error) error {
	return c.withTx(ctx, fn)
}

func (c *Container) Ping(ctx context.Context) error {
	return c.ping(ctx)
}

// DeleteUser removes an identity and applies its referential actions
// explicitly: the user's own role rows, profile, credentials and share links
// are deleted, while role rows the user assigned to others survive with the
// assigner cleared.
func (c *Container) DeleteUser(ctx context.Context, userID int64) error {
	return c.WithTx(ctx, func(tx *Container) error {
		if _, err := tx.Users.GetByID(ctx, userID); err != nil {
			return err
		}
		if err := tx.AccessControl.DetachUser(ctx, userID); err != nil {
			return err
		}
		if err := tx.Profiles.Delete(ctx, userID); err != nil {
			return fmt.Errorf("delete profile: %w", err)
		}
		if err := tx.Credentials.DeleteForUser(ctx, userID); err != nil {
			return fmt.Errorf("delete credentials: %w", err)
		}
		if err := tx.Shares.DeleteForOwner(ctx, userID); err != nil {
			return fmt.Errorf("delete share links: %w", err)
		}
		return tx.Users.Delete(ctx, userID)
	})
}
