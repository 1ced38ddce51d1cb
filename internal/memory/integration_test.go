//go:build integration

package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/awaybot/awaybot/internal/database"
	"github.com/awaybot/awaybot/internal/tokens"
)

type integrationEnv struct {
	pool  *pgxpool.Pool
	redis *redis.Client
}

func setupIntegration(t *testing.T) integrationEnv {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "pgvector/pgvector:pg16",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "test",
				"POSTGRES_PASSWORD": "test",
				"POSTGRES_DB":       "awaybot_test",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("starting postgres container: %v", err)
	}
	t.Cleanup(func() { pgContainer.Terminate(ctx) })

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("starting redis container: %v", err)
	}
	t.Cleanup(func() { redisContainer.Terminate(ctx) })

	pgHost, _ := pgContainer.Host(ctx)
	pgPort, _ := pgContainer.MappedPort(ctx, "5432")
	dsn := fmt.Sprintf("postgres://test:test@%s:%s/awaybot_test?sslmode=disable", pgHost, pgPort.Port())

	if err := database.RunMigrations(dsn, "../../migrations"); err != nil {
		t.Fatalf("running migrations: %v", err)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connecting to postgres: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	redisHost, _ := redisContainer.Host(ctx)
	redisPort, _ := redisContainer.MappedPort(ctx, "6379")
	client := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", redisHost, redisPort.Port())})
	t.Cleanup(func() { client.Close() })

	return integrationEnv{pool: pool, redis: client}
}

func TestIntegration_Memory(t *testing.T) {
	env := setupIntegration(t)
	ctx := context.Background()

	facts := NewPostgresFactStore(env.pool)
	files := NewPostgresFileStore(env.pool)
	longTerm := NewLongTermStore(newFixedEmbedder(), NewPgvectorIndex(env.pool), DefaultConfig())
	shortTerm := NewShortTermStore(env.redis, tokens.EstimateCounter{}, DefaultConfig())

	t.Run("fact upsert overwrites", func(t *testing.T) {
		t0 := time.Now().UTC().Truncate(time.Microsecond)
		require.NoError(t, facts.Upsert(ctx, Fact{UserID: "u1", Key: "name", Value: "Alice", Confidence: 0.9, UpdatedAt: t0}))
		require.NoError(t, facts.Upsert(ctx, Fact{UserID: "u1", Key: "name", Value: "Alicia", Confidence: 0.8, UpdatedAt: t0.Add(time.Second)}))

		list, err := facts.List(ctx, "u1", 10)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "Alicia", list[0].Value)
		assert.Equal(t, 0.8, list[0].Confidence)

		missing, err := facts.Get(ctx, "u1", "language")
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("pgvector search ranks and clamps", func(t *testing.T) {
		seedLongTerm(t, longTerm, "u1")

		results, err := longTerm.Search(ctx, "u1", "where is the coffee", 4)
		require.NoError(t, err)
		require.Len(t, results, 4)
		assert.Equal(t, "coffee beans on the shelf", results[0].Text)
		for i, r := range results {
			assert.GreaterOrEqual(t, r.Score, 0.0)
			assert.LessOrEqual(t, r.Score, 1.0)
			if i > 0 {
				assert.LessOrEqual(t, r.Score, results[i-1].Score)
			}
		}
	})

	t.Run("pgvector reindex is idempotent", func(t *testing.T) {
		require.NoError(t, longTerm.IndexFile(ctx, "u1", "f1", []string{"grinder manual page", "appendix"}, "grinder.txt", nil))
		stats, err := longTerm.Stats(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, ChunkStats{MessageMemories: 3, FileChunks: 2}, stats)
	})

	t.Run("empty index", func(t *testing.T) {
		results, err := longTerm.Search(ctx, "nobody", "anything", 5)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("postgres file registry", func(t *testing.T) {
		rec := FileRecord{ID: "f1", UserID: "u1", Name: "grinder.txt", Size: 31, Chunks: 2, CreatedAt: time.Now().UTC()}
		require.NoError(t, files.Save(ctx, rec))
		require.NoError(t, files.Save(ctx, rec))

		list, err := files.List(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "grinder.txt", list[0].Name)
		assert.Equal(t, 2, list[0].Chunks)
	})

	t.Run("wipe", func(t *testing.T) {
		_, err := shortTerm.Append(ctx, "u1", RoleUser, "hello", AppendParams{})
		require.NoError(t, err)

		svc := NewService(shortTerm, longTerm, facts, files, nil, DefaultConfig())
		require.NoError(t, svc.Wipe(ctx, "u1"))

		dash, err := svc.Dashboard(ctx, "u1")
		require.NoError(t, err)
		assert.Zero(t, dash.ShortTerm.Messages)
		assert.Equal(t, ChunkStats{}, dash.LongTerm)
		assert.Empty(t, dash.Facts)
		assert.Zero(t, dash.Files)
	})
}
