package memory

import "context"

// ScoredChunk is a chunk returned by a similarity query. Similarity is the
// backend's cosine similarity and may fall outside [0,1].
type ScoredChunk struct {
	Chunk      MemoryChunk
	Similarity float64
}

// VectorIndex stores embedded chunks partitioned by user and kind. Queries
// never cross a partition.
type VectorIndex interface {
	// Upsert writes chunks, replacing any chunk with the same ID.
	Upsert(ctx context.Context, chunks []MemoryChunk) error
	// Query returns up to n chunks nearest to vec, most similar first.
	Query(ctx context.Context, userID string, kind SourceKind, vec []float32, n int) ([]ScoredChunk, error)
	// List returns up to limit chunks in no particular order.
	List(ctx context.Context, userID string, kind SourceKind, limit int) ([]MemoryChunk, error)
	Count(ctx context.Context, userID string, kind SourceKind) (int, error)
	DeleteUser(ctx context.Context, userID string) error
}

var sourceKinds = []SourceKind{KindMessage, KindFileChunk}
