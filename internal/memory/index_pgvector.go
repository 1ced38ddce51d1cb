package memory

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
)

// PgvectorIndex implements VectorIndex on the memory_chunks table.
type PgvectorIndex struct {
	pool *pgxpool.Pool
}

// NewPgvectorIndex creates a new pgvector-backed index.
func NewPgvectorIndex(pool *pgxpool.Pool) *PgvectorIndex {
	return &PgvectorIndex{pool: pool}
}

func (r *PgvectorIndex) Upsert(ctx context.Context, chunks []MemoryChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, c := range chunks {
		if c.UserID == "" {
			return ErrEmptyUserID
		}
		meta, err := json.Marshal(c.Metadata)
		if err != nil {
			return fmt.Errorf("marshaling chunk metadata: %w", err)
		}
		if c.Metadata == nil {
			meta = []byte(`{}`)
		}
		batch.Queue(
			`INSERT INTO memory_chunks (id, user_id, kind, content, embedding, metadata)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (id) DO UPDATE
			 SET content = EXCLUDED.content, embedding = EXCLUDED.embedding, metadata = EXCLUDED.metadata`,
			c.ID, c.UserID, string(c.Kind), c.Text, pgvector.NewVector(c.Embedding), meta,
		)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()
	for _, c := range chunks {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("upserting chunk %s: %w", c.ID, err)
		}
	}
	return nil
}

func (r *PgvectorIndex) Query(ctx context.Context, userID string, kind SourceKind, vec []float32, n int) ([]ScoredChunk, error) {
	if n <= 0 {
		return []ScoredChunk{}, nil
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id, content, metadata, 1 - (embedding <=> $1) AS similarity
		 FROM memory_chunks
		 WHERE user_id = $2 AND kind = $3
		 ORDER BY embedding <=> $1
		 LIMIT $4`,
		pgvector.NewVector(vec), userID, string(kind), n,
	)
	if err != nil {
		return nil, fmt.Errorf("searching chunks: %w", err)
	}
	defer rows.Close()

	out := []ScoredChunk{}
	for rows.Next() {
		var sc ScoredChunk
		var meta []byte
		if err := rows.Scan(&sc.Chunk.ID, &sc.Chunk.Text, &meta, &sc.Similarity); err != nil {
			return nil, fmt.Errorf("scanning search result: %w", err)
		}
		if err := fillChunk(&sc.Chunk, userID, kind, meta); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

func (r *PgvectorIndex) List(ctx context.Context, userID string, kind SourceKind, limit int) ([]MemoryChunk, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, content, metadata
		 FROM memory_chunks
		 WHERE user_id = $1 AND kind = $2
		 ORDER BY created_at DESC
		 LIMIT $3`,
		userID, string(kind), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing chunks: %w", err)
	}
	defer rows.Close()

	out := []MemoryChunk{}
	for rows.Next() {
		var c MemoryChunk
		var meta []byte
		if err := rows.Scan(&c.ID, &c.Text, &meta); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		if err := fillChunk(&c, userID, kind, meta); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PgvectorIndex) Count(ctx context.Context, userID string, kind SourceKind) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM memory_chunks WHERE user_id = $1 AND kind = $2`,
		userID, string(kind),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return count, nil
}

func (r *PgvectorIndex) DeleteUser(ctx context.Context, userID string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM memory_chunks WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("deleting chunks: %w", err)
	}
	return nil
}

func fillChunk(c *MemoryChunk, userID string, kind SourceKind, meta []byte) error {
	c.UserID = userID
	c.Kind = kind
	if len(meta) == 0 {
		return nil
	}
	if err := json.Unmarshal(meta, &c.Metadata); err != nil {
		return fmt.Errorf("unmarshaling chunk metadata: %w", err)
	}
	return nil
}
