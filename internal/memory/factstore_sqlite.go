package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SQLiteFactStore implements FactStore for the single-file deployment.
// Timestamps are stored as RFC 3339 text with nanoseconds so they sort
// lexically.
type SQLiteFactStore struct {
	db *sql.DB
}

// NewSQLiteFactStore creates a fact store on a database opened with
// database.OpenSQLite.
func NewSQLiteFactStore(db *sql.DB) *SQLiteFactStore {
	return &SQLiteFactStore{db: db}
}

const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func (r *SQLiteFactStore) Upsert(ctx context.Context, f Fact) error {
	if f.UserID == "" {
		return ErrEmptyUserID
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO user_facts (user_id, key, value, confidence, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, key) DO UPDATE
		 SET value = excluded.value, confidence = excluded.confidence, updated_at = excluded.updated_at`,
		f.UserID, f.Key, f.Value, f.Confidence, f.UpdatedAt.UTC().Format(sqliteTimeLayout),
	)
	if err != nil {
		return fmt.Errorf("upserting fact: %w", err)
	}
	return nil
}

func (r *SQLiteFactStore) List(ctx context.Context, userID string, limit int) ([]Fact, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id, key, value, confidence, updated_at
		 FROM user_facts
		 WHERE user_id = ?
		 ORDER BY confidence DESC, updated_at DESC
		 LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing facts: %w", err)
	}
	defer rows.Close()

	facts := []Fact{}
	for rows.Next() {
		f, err := scanSQLiteFact(rows)
		if err != nil {
			return nil, err
		}
		facts = append(facts, f)
	}
	return facts, rows.Err()
}

func (r *SQLiteFactStore) Get(ctx context.Context, userID, key string) (*Fact, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT user_id, key, value, confidence, updated_at
		 FROM user_facts
		 WHERE user_id = ? AND key = ?`,
		userID, key,
	)
	f, err := scanSQLiteFact(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &f, nil
}

func (r *SQLiteFactStore) DeleteUser(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM user_facts WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("deleting facts: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteFact(row rowScanner) (Fact, error) {
	var f Fact
	var updated string
	if err := row.Scan(&f.UserID, &f.Key, &f.Value, &f.Confidence, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Fact{}, err
		}
		return Fact{}, fmt.Errorf("scanning fact: %w", err)
	}
	t, err := time.Parse(sqliteTimeLayout, updated)
	if err != nil {
		return Fact{}, fmt.Errorf("parsing fact timestamp: %w", err)
	}
	f.UpdatedAt = t
	return f, nil
}
