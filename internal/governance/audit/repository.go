package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store persists and lists audit logs.
type Store interface {
	Insert(ctx context.Context, log *AuditLog) error
	ListByUser(ctx context.Context, userID string, params ListParams) ([]AuditLog, int64, error)
}

// Repository handles audit_logs PostgreSQL operations.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new audit Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert persists a single audit log entry.
func (r *Repository) Insert(ctx context.Context, log *AuditLog) error {
	prepare(log)
	_, err := r.pool.Exec(ctx,
		`INSERT INTO audit_logs (id, user_id, event_type, severity, details, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		log.ID, log.UserID, log.EventType, log.Severity, []byte(log.Details), log.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting audit log: %w", err)
	}
	return nil
}

// ListByUser returns paginated audit logs for a chat user, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID string, params ListParams) ([]AuditLog, int64, error) {
	params = params.normalized()
	where, args := buildFilter(userID, params,
		func(i int) string { return fmt.Sprintf("$%d", i) },
		func(t time.Time) any { return t })

	var totalCount int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM audit_logs WHERE "+where, args...).Scan(&totalCount); err != nil {
		return nil, 0, fmt.Errorf("counting audit logs: %w", err)
	}

	offset := (params.Page - 1) * params.PageSize
	dataQuery := fmt.Sprintf(
		`SELECT id, user_id, event_type, severity, details, created_at
		 FROM audit_logs WHERE %s
		 ORDER BY created_at DESC
		 LIMIT $%d OFFSET $%d`, where, len(args)+1, len(args)+2)
	args = append(args, params.PageSize, offset)

	rows, err := r.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("querying audit logs: %w", err)
	}
	defer rows.Close()

	var logs []AuditLog
	for rows.Next() {
		var (
			l       AuditLog
			details []byte
		)
		if err := rows.Scan(&l.ID, &l.UserID, &l.EventType, &l.Severity, &details, &l.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scanning audit log: %w", err)
		}
		l.Details = details
		logs = append(logs, l)
	}
	return logs, totalCount, rows.Err()
}

func prepare(log *AuditLog) {
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	if len(log.Details) == 0 {
		log.Details = json.RawMessage(`{}`)
	}
	if log.Severity == "" {
		log.Severity = "info"
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
}

// buildFilter returns the WHERE clause and its arguments. placeholder
// renders the n-th (1-based) bind parameter and timeArg the bound form of a
// timestamp for the SQL dialect.
func buildFilter(userID string, params ListParams, placeholder func(int) string, timeArg func(time.Time) any) (string, []any) {
	var conditions []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conditions = append(conditions, cond+" "+placeholder(len(args)))
	}

	add("user_id =", userID)
	if params.EventType != "" {
		add("event_type =", params.EventType)
	}
	if params.Severity != "" {
		add("severity =", params.Severity)
	}
	if params.From != nil {
		add("created_at >=", timeArg(*params.From))
	}
	if params.To != nil {
		add("created_at <=", timeArg(*params.To))
	}
	return strings.Join(conditions, " AND "), args
}
