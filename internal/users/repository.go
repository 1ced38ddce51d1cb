package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository interface {
	// Touch inserts the user or refreshes its last-seen time. Non-empty
	// username and locale overwrite the stored ones.
	Touch(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	Delete(ctx context.Context, id string) error
}

type postgresRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

func (r *postgresRepository) Touch(ctx context.Context, user *User) error {
	query := `
		INSERT INTO users (id, username, locale, first_seen, last_seen)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (id) DO UPDATE SET
			username  = COALESCE(NULLIF(EXCLUDED.username, ''), users.username),
			locale    = COALESCE(NULLIF(EXCLUDED.locale, ''), users.locale),
			last_seen = EXCLUDED.last_seen`

	_, err := r.pool.Exec(ctx, query, user.ID, user.Username, user.Locale, user.LastSeen)
	if err != nil {
		return fmt.Errorf("touching user: %w", err)
	}
	return nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id string) (*User, error) {
	query := `SELECT id, username, locale, first_seen, last_seen FROM users WHERE id = $1`

	user := &User{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&user.ID, &user.Username, &user.Locale, &user.FirstSeen, &user.LastSeen)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying user by id: %w", err)
	}
	return user, nil
}

func (r *postgresRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id); err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	return nil
}
