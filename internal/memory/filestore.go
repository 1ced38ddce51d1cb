package memory

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// FileStore records the files a user uploaded. Their text lives in the
// long-term index; this is the registry shown in stats and exports.
type FileStore interface {
	// Save is a no-op when the file ID is already recorded.
	Save(ctx context.Context, f FileRecord) error
	// List returns the user's files, newest first.
	List(ctx context.Context, userID string) ([]FileRecord, error)
	Count(ctx context.Context, userID string) (int, error)
	DeleteUser(ctx context.Context, userID string) error
}

// PostgresFileStore implements FileStore on the files table.
type PostgresFileStore struct {
	pool *pgxpool.Pool
}

func NewPostgresFileStore(pool *pgxpool.Pool) *PostgresFileStore {
	return &PostgresFileStore{pool: pool}
}

func (r *PostgresFileStore) Save(ctx context.Context, f FileRecord) error {
	if f.UserID == "" {
		return ErrEmptyUserID
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO files (id, user_id, name, size, chunks, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO NOTHING`,
		f.ID, f.UserID, f.Name, f.Size, f.Chunks, f.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("saving file record: %w", err)
	}
	return nil
}

func (r *PostgresFileStore) List(ctx context.Context, userID string) ([]FileRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, name, size, chunks, created_at
		 FROM files
		 WHERE user_id = $1
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing files: %w", err)
	}
	defer rows.Close()

	files := []FileRecord{}
	for rows.Next() {
		var f FileRecord
		if err := rows.Scan(&f.ID, &f.UserID, &f.Name, &f.Size, &f.Chunks, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning file record: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

func (r *PostgresFileStore) Count(ctx context.Context, userID string) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM files WHERE user_id = $1`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting files: %w", err)
	}
	return n, nil
}

func (r *PostgresFileStore) DeleteUser(ctx context.Context, userID string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM files WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("deleting file records: %w", err)
	}
	return nil
}
