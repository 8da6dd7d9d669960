package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"taxihub/internal/trip"
	"taxihub/internal/types"
)

// UserDirectory resolves users and bearer tokens from the users and
// auth_tokens tables.
type UserDirectory struct {
	pool *pgxpool.Pool
}

func NewUserDirectory(pool *pgxpool.Pool) *UserDirectory {
	return &UserDirectory{pool: pool}
}

var _ trip.Directory = (*UserDirectory)(nil)

func (d *UserDirectory) UserByID(ctx context.Context, id string) (types.User, error) {
	const q = `SELECT id, username, role FROM users WHERE id = $1`
	var u types.User
	err := d.pool.QueryRow(ctx, q, id).Scan(&u.ID, &u.Username, &u.Role)
	if errors.Is(err, pgx.ErrNoRows) {
		return types.User{}, trip.ErrUserNotFound
	}
	if err != nil {
		return types.User{}, fmt.Errorf("select user: %w", err)
	}
	return u, nil
}

func (d *UserDirectory) UserByToken(ctx context.Context, token string) (types.User, error) {
	const q = `
		SELECT u.id, u.username, u.role
		FROM users u
		JOIN auth_tokens t ON t.user_id = u.id
		WHERE t.token = $1 AND (t.expires_at IS NULL OR t.expires_at > now())`
	var u types.User
	err := d.pool.QueryRow(ctx, q, token).Scan(&u.ID, &u.Username, &u.Role)
	if errors.Is(err, pgx.ErrNoRows) {
		return types.User{}, trip.ErrBadCredential
	}
	if err != nil {
		return types.User{}, fmt.Errorf("select user by token: %w", err)
	}
	return u, nil
}
