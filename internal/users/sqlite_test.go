package users

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/awaybot/awaybot/internal/database"
)

func setupService(t *testing.T) *Service {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "users.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewService(NewSQLiteRepository(db))
}

func TestService_TouchCreatesAndRefreshes(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()
	t0 := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	svc.now = func() time.Time { return t0 }
	require.NoError(t, svc.Touch(ctx, "42", "alice", "en"))

	svc.now = func() time.Time { return t0.Add(time.Hour) }
	require.NoError(t, svc.Touch(ctx, "42", "", ""))

	user, err := svc.GetByID(ctx, "42")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, "en", user.Locale)
	assert.True(t, user.FirstSeen.Equal(t0))
	assert.True(t, user.LastSeen.Equal(t0.Add(time.Hour)))
}

func TestService_GetMissing(t *testing.T) {
	svc := setupService(t)
	user, err := svc.GetByID(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestService_Delete(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()
	require.NoError(t, svc.Touch(ctx, "42", "alice", ""))
	require.NoError(t, svc.Delete(ctx, "42"))

	user, err := svc.GetByID(ctx, "42")
	require.NoError(t, err)
	assert.Nil(t, user)
}
