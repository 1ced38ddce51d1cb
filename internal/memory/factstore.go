package memory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// FactStore persists user facts. At most one fact exists per (user, key);
// writing an existing key replaces its value, confidence and timestamp.
type FactStore interface {
	Upsert(ctx context.Context, f Fact) error
	// List returns up to limit facts ordered by confidence, then by most
	// recently updated.
	List(ctx context.Context, userID string, limit int) ([]Fact, error)
	// Get returns nil when the key is not set.
	Get(ctx context.Context, userID, key string) (*Fact, error)
	DeleteUser(ctx context.Context, userID string) error
}

// PostgresFactStore implements FactStore on the user_facts table.
type PostgresFactStore struct {
	pool *pgxpool.Pool
}

// NewPostgresFactStore creates a new fact store.
func NewPostgresFactStore(pool *pgxpool.Pool) *PostgresFactStore {
	return &PostgresFactStore{pool: pool}
}

func (r *PostgresFactStore) Upsert(ctx context.Context, f Fact) error {
	if f.UserID == "" {
		return ErrEmptyUserID
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO user_facts (user_id, key, value, confidence, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (user_id, key) DO UPDATE
		 SET value = EXCLUDED.value, confidence = EXCLUDED.confidence, updated_at = EXCLUDED.updated_at`,
		f.UserID, f.Key, f.Value, f.Confidence, f.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upserting fact: %w", err)
	}
	return nil
}

func (r *PostgresFactStore) List(ctx context.Context, userID string, limit int) ([]Fact, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT user_id, key, value, confidence, updated_at
		 FROM user_facts
		 WHERE user_id = $1
		 ORDER BY confidence DESC, updated_at DESC
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing facts: %w", err)
	}
	defer rows.Close()

	facts := []Fact{}
	for rows.Next() {
		var f Fact
		if err := rows.Scan(&f.UserID, &f.Key, &f.Value, &f.Confidence, &f.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning fact: %w", err)
		}
		facts = append(facts, f)
	}
	return facts, rows.Err()
}

func (r *PostgresFactStore) Get(ctx context.Context, userID, key string) (*Fact, error) {
	var f Fact
	err := r.pool.QueryRow(ctx,
		`SELECT user_id, key, value, confidence, updated_at
		 FROM user_facts
		 WHERE user_id = $1 AND key = $2`,
		userID, key,
	).Scan(&f.UserID, &f.Key, &f.Value, &f.Confidence, &f.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting fact: %w", err)
	}
	return &f, nil
}

func (r *PostgresFactStore) DeleteUser(ctx context.Context, userID string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM user_facts WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("deleting facts: %w", err)
	}
	return nil
}
