package memory

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SQLiteFileStore implements FileStore for the single-file deployment.
type SQLiteFileStore struct {
	db *sql.DB
}

func NewSQLiteFileStore(db *sql.DB) *SQLiteFileStore {
	return &SQLiteFileStore{db: db}
}

func (r *SQLiteFileStore) Save(ctx context.Context, f FileRecord) error {
	if f.UserID == "" {
		return ErrEmptyUserID
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO files (id, user_id, name, size, chunks, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		f.ID, f.UserID, f.Name, f.Size, f.Chunks, f.CreatedAt.UTC().Format(sqliteTimeLayout),
	)
	if err != nil {
		return fmt.Errorf("saving file record: %w", err)
	}
	return nil
}

func (r *SQLiteFileStore) List(ctx context.Context, userID string) ([]FileRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, name, size, chunks, created_at
		 FROM files
		 WHERE user_id = ?
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing files: %w", err)
	}
	defer rows.Close()

	files := []FileRecord{}
	for rows.Next() {
		var (
			f       FileRecord
			created string
		)
		if err := rows.Scan(&f.ID, &f.UserID, &f.Name, &f.Size, &f.Chunks, &created); err != nil {
			return nil, fmt.Errorf("scanning file record: %w", err)
		}
		if f.CreatedAt, err = time.Parse(sqliteTimeLayout, created); err != nil {
			return nil, fmt.Errorf("parsing file timestamp: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

func (r *SQLiteFileStore) Count(ctx context.Context, userID string) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM files WHERE user_id = ?`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting files: %w", err)
	}
	return n, nil
}

func (r *SQLiteFileStore) DeleteUser(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM files WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("deleting file records: %w", err)
	}
	return nil
}
