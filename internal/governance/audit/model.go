package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types recorded by the chat pipeline and the owner API.
const (
	EventReplySent      = "reply_sent"
	EventReplyFailed    = "reply_failed"
	EventReplySkipped   = "reply_skipped"
	EventRateLimited    = "rate_limited"
	EventMemoryWiped    = "memory_wiped"
	EventHistoryCleared = "history_cleared"
	EventFileIngested   = "file_ingested"
)

// AuditLog matches the audit_logs table schema.
type AuditLog struct {
	ID        uuid.UUID       `json:"id"`
	UserID    string          `json:"user_id"`
	EventType string          `json:"event_type"`
	Severity  string          `json:"severity"`
	Details   json.RawMessage `json:"details,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// ListParams holds pagination and filtering parameters for audit log queries.
type ListParams struct {
	EventType string
	Severity  string
	From      *time.Time
	To        *time.Time
	Page      int
	PageSize  int
}

// DefaultListParams returns sensible defaults.
func DefaultListParams() ListParams {
	return ListParams{
		Page:     1,
		PageSize: 20,
	}
}

func (p ListParams) normalized() ListParams {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 || p.PageSize > 100 {
		p.PageSize = 20
	}
	return p
}
