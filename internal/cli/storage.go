package cli

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/awaybot/awaybot/internal/config"
	"github.com/awaybot/awaybot/internal/database"
	"github.com/awaybot/awaybot/internal/governance/audit"
	"github.com/awaybot/awaybot/internal/memory"
	"github.com/awaybot/awaybot/internal/users"
)

// storage holds the SQL-backed stores for the configured driver.
type storage struct {
	facts memory.FactStore
	files memory.FileStore
	users users.Repository
	audit audit.Store
	pool  *pgxpool.Pool
	ping  func(context.Context) error
	close func()
}

func openStorage(ctx context.Context, cfg config.DBConfig) (*storage, error) {
	if cfg.Driver == "sqlite" {
		return openSQLiteStorage(ctx, cfg)
	}

	if err := database.RunMigrations(cfg.DSN(), cfg.MigrationsPath); err != nil {
		return nil, err
	}
	pool, err := database.NewPostgresPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &storage{
		facts: memory.NewPostgresFactStore(pool),
		files: memory.NewPostgresFileStore(pool),
		users: users.NewRepository(pool),
		audit: audit.NewRepository(pool),
		pool:  pool,
		ping:  func(ctx context.Context) error { return database.HealthCheck(ctx, pool) },
		close: pool.Close,
	}, nil
}

func openSQLiteStorage(_ context.Context, cfg config.DBConfig) (*storage, error) {
	db, err := database.OpenSQLite(cfg.SQLitePath)
	if err != nil {
		return nil, err
	}
	return &storage{
		facts: memory.NewSQLiteFactStore(db),
		files: memory.NewSQLiteFileStore(db),
		users: users.NewSQLiteRepository(db),
		audit: audit.NewSQLiteRepository(db),
		ping:  db.PingContext,
		close: closeDB(db),
	}, nil
}

func closeDB(db *sql.DB) func() {
	return func() {
		if err := db.Close(); err != nil {
			slog.Warn("closing sqlite", "error", err)
		}
	}
}

// openIndex returns the vector index for the configured backend. pgvector
// shares the Postgres pool; chromem lives in-process.
func openIndex(cfg config.VectorConfig, st *storage, dims int) (memory.VectorIndex, error) {
	switch cfg.Backend {
	case "pgvector":
		if st.pool == nil {
			return nil, fmt.Errorf("vector backend pgvector requires the postgres driver")
		}
		return memory.NewPgvectorIndex(st.pool), nil
	case "chromem", "":
		db, err := memory.OpenChromem(cfg.Dir)
		if err != nil {
			return nil, err
		}
		return memory.NewChromemIndex(db, dims), nil
	default:
		return nil, fmt.Errorf("unknown vector backend %q", cfg.Backend)
	}
}
