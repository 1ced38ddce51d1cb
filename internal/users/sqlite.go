package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type sqliteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository on a database opened with
// database.OpenSQLite.
func NewSQLiteRepository(db *sql.DB) Repository {
	return &sqliteRepository{db: db}
}

func (r *sqliteRepository) Touch(ctx context.Context, user *User) error {
	query := `
		INSERT INTO users (id, username, locale, first_seen, last_seen)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			username  = COALESCE(NULLIF(excluded.username, ''), users.username),
			locale    = COALESCE(NULLIF(excluded.locale, ''), users.locale),
			last_seen = excluded.last_seen`

	seen := user.LastSeen.UTC().Format(timeLayout)
	if _, err := r.db.ExecContext(ctx, query, user.ID, user.Username, user.Locale, seen, seen); err != nil {
		return fmt.Errorf("touching user: %w", err)
	}
	return nil
}

func (r *sqliteRepository) GetByID(ctx context.Context, id string) (*User, error) {
	query := `SELECT id, username, locale, first_seen, last_seen FROM users WHERE id = ?`

	user := &User{}
	var first, last string
	err := r.db.QueryRowContext(ctx, query, id).Scan(&user.ID, &user.Username, &user.Locale, &first, &last)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying user by id: %w", err)
	}
	if user.FirstSeen, err = time.Parse(timeLayout, first); err != nil {
		return nil, fmt.Errorf("parsing first_seen: %w", err)
	}
	if user.LastSeen, err = time.Parse(timeLayout, last); err != nil {
		return nil, fmt.Errorf("parsing last_seen: %w", err)
	}
	return user, nil
}

func (r *sqliteRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	return nil
}
