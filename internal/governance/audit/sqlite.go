package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteRepository stores audit logs in the local database.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Insert(ctx context.Context, log *AuditLog) error {
	prepare(log)
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_logs (id, user_id, event_type, severity, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		log.ID.String(), log.UserID, log.EventType, log.Severity, string(log.Details),
		log.CreatedAt.UTC().Format(sqliteTimeLayout))
	if err != nil {
		return fmt.Errorf("inserting audit log: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ListByUser(ctx context.Context, userID string, params ListParams) ([]AuditLog, int64, error) {
	params = params.normalized()
	where, args := buildFilter(userID, params,
		func(int) string { return "?" },
		func(t time.Time) any { return t.UTC().Format(sqliteTimeLayout) })

	var totalCount int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_logs WHERE "+where, args...).Scan(&totalCount); err != nil {
		return nil, 0, fmt.Errorf("counting audit logs: %w", err)
	}

	offset := (params.Page - 1) * params.PageSize
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, event_type, severity, details, created_at
		 FROM audit_logs WHERE `+where+`
		 ORDER BY created_at DESC
		 LIMIT ? OFFSET ?`, append(args, params.PageSize, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("querying audit logs: %w", err)
	}
	defer rows.Close()

	var logs []AuditLog
	for rows.Next() {
		var (
			l                    AuditLog
			id, details, created string
		)
		if err := rows.Scan(&id, &l.UserID, &l.EventType, &l.Severity, &details, &created); err != nil {
			return nil, 0, fmt.Errorf("scanning audit log: %w", err)
		}
		if l.ID, err = uuid.Parse(id); err != nil {
			return nil, 0, fmt.Errorf("parsing audit id: %w", err)
		}
		if l.CreatedAt, err = time.Parse(sqliteTimeLayout, created); err != nil {
			return nil, 0, fmt.Errorf("parsing audit time: %w", err)
		}
		l.Details = []byte(details)
		logs = append(logs, l)
	}
	return logs, totalCount, rows.Err()
}
