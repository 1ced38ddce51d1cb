package audit

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/awaybot/awaybot/internal/database"
	inats "github.com/awaybot/awaybot/internal/nats"
)

func TestAuditEventDeserialization(t *testing.T) {
	event := inats.AuditEvent{
		UserID:    "42",
		EventType: EventReplySent,
		Severity:  "info",
		Details:   "reply of 12 tokens",
		Timestamp: time.Now().UTC(),
	}

	data, err := json.Marshal(event)
	require.NoError(t, err)

	var decoded inats.AuditEvent
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, "42", decoded.UserID)
	assert.Equal(t, EventReplySent, decoded.EventType)
	assert.Equal(t, "info", decoded.Severity)
	assert.Equal(t, "reply of 12 tokens", decoded.Details)
}

func TestAuditEventToLog(t *testing.T) {
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	event := inats.AuditEvent{
		UserID:    "42",
		EventType: EventRateLimited,
		Severity:  "warn",
		Details:   "21 messages in the last minute",
		Timestamp: ts,
	}

	log := convertEventToLog(event)

	assert.Equal(t, "42", log.UserID)
	assert.Equal(t, EventRateLimited, log.EventType)
	assert.Equal(t, "warn", log.Severity)
	assert.Equal(t, ts, log.CreatedAt)

	var details map[string]string
	require.NoError(t, json.Unmarshal(log.Details, &details))
	assert.Equal(t, "21 messages in the last minute", details["message"])
}

func setupSQLite(t *testing.T) *SQLiteRepository {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSQLiteRepository(db)
}

func TestRecorder_WritesToStore(t *testing.T) {
	repo := setupSQLite(t)
	rec := NewRecorder(repo)
	ctx := context.Background()

	require.NoError(t, rec.PublishAuditEvent(ctx, inats.AuditEvent{
		UserID: "42", EventType: EventReplySent, Severity: "info", Details: "ok", Timestamp: time.Now(),
	}))

	logs, total, err := repo.ListByUser(ctx, "42", DefaultListParams())
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, logs, 1)
	assert.Equal(t, EventReplySent, logs[0].EventType)
	assert.JSONEq(t, `{"message":"ok"}`, string(logs[0].Details))
}

func TestSQLiteRepository_ListFilters(t *testing.T) {
	repo := setupSQLite(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	for i, ev := range []string{EventReplySent, EventReplyFailed, EventReplySent, EventRateLimited} {
		require.NoError(t, repo.Insert(ctx, &AuditLog{
			UserID:    "42",
			EventType: ev,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, repo.Insert(ctx, &AuditLog{UserID: "7", EventType: EventReplySent, CreatedAt: base}))

	logs, total, err := repo.ListByUser(ctx, "42", DefaultListParams())
	require.NoError(t, err)
	assert.EqualValues(t, 4, total)
	require.Len(t, logs, 4)
	assert.Equal(t, EventRateLimited, logs[0].EventType, "newest first")
	assert.Equal(t, "info", logs[0].Severity)

	params := DefaultListParams()
	params.EventType = EventReplySent
	_, total, err = repo.ListByUser(ctx, "42", params)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)

	from := base.Add(90 * time.Second)
	params = DefaultListParams()
	params.From = &from
	logs, _, err = repo.ListByUser(ctx, "42", params)
	require.NoError(t, err)
	assert.Len(t, logs, 2)

	params = ListParams{Page: 2, PageSize: 3}
	logs, total, err = repo.ListByUser(ctx, "42", params)
	require.NoError(t, err)
	assert.EqualValues(t, 4, total)
	assert.Len(t, logs, 1)
}
