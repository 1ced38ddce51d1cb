package memory

import (
	"context"
	"fmt"
	"math"
	"sync"

	chromem "github.com/philippgille/chromem-go"
)

// ChromemIndex implements VectorIndex on an embedded chromem-go database.
// Each (user, kind) pair gets its own collection.
type ChromemIndex struct {
	db          *chromem.DB
	dims        int
	collections map[string]*chromem.Collection
	mu          sync.RWMutex
}

// NewChromemIndex wraps db. dims must match the embedder that produces the
// stored vectors.
func NewChromemIndex(db *chromem.DB, dims int) *ChromemIndex {
	return &ChromemIndex{
		db:          db,
		dims:        dims,
		collections: make(map[string]*chromem.Collection),
	}
}

// OpenChromem opens a persistent database in dir, or an in-memory one when
// dir is empty.
func OpenChromem(dir string) (*chromem.DB, error) {
	if dir == "" {
		return chromem.NewDB(), nil
	}
	db, err := chromem.NewPersistentDB(dir, true)
	if err != nil {
		return nil, fmt.Errorf("opening chromem at %s: %w", dir, err)
	}
	return db, nil
}

func collectionName(userID string, kind SourceKind) string {
	return fmt.Sprintf("u_%s_%s", userID, kind)
}

func (s *ChromemIndex) collection(userID string, kind SourceKind, create bool) (*chromem.Collection, error) {
	name := collectionName(userID, kind)

	s.mu.RLock()
	col, ok := s.collections[name]
	s.mu.RUnlock()
	if ok {
		return col, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if col, ok := s.collections[name]; ok {
		return col, nil
	}

	// Vectors are always supplied by the caller, so no embedding func.
	if col = s.db.GetCollection(name, nil); col == nil {
		if !create {
			return nil, nil
		}
		var err error
		col, err = s.db.CreateCollection(name, map[string]string{"user_id": userID, "kind": string(kind)}, nil)
		if err != nil {
			return nil, fmt.Errorf("creating collection %s: %w", name, err)
		}
	}
	s.collections[name] = col
	return col, nil
}

func (s *ChromemIndex) Upsert(ctx context.Context, chunks []MemoryChunk) error {
	for _, c := range chunks {
		if c.UserID == "" {
			return ErrEmptyUserID
		}
		col, err := s.collection(c.UserID, c.Kind, true)
		if err != nil {
			return err
		}
		meta := make(map[string]string, len(c.Metadata))
		for k, v := range c.Metadata {
			meta[k] = v
		}
		doc := chromem.Document{
			ID:        c.ID,
			Content:   c.Text,
			Embedding: c.Embedding,
			Metadata:  meta,
		}
		if err := col.AddDocument(ctx, doc); err != nil {
			return fmt.Errorf("adding chunk %s: %w", c.ID, err)
		}
	}
	return nil
}

func (s *ChromemIndex) Query(ctx context.Context, userID string, kind SourceKind, vec []float32, n int) ([]ScoredChunk, error) {
	col, err := s.collection(userID, kind, false)
	if err != nil || col == nil {
		return []ScoredChunk{}, err
	}
	// chromem rejects n larger than the collection.
	n = min(n, col.Count())
	if n <= 0 {
		return []ScoredChunk{}, nil
	}

	results, err := col.QueryEmbedding(ctx, vec, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", collectionName(userID, kind), err)
	}
	out := make([]ScoredChunk, len(results))
	for i, r := range results {
		out[i] = ScoredChunk{
			Chunk:      chunkFromResult(userID, kind, r),
			Similarity: float64(r.Similarity),
		}
	}
	return out, nil
}

// List has no native counterpart in chromem; it ranks the whole
// collection against a fixed probe vector instead.
func (s *ChromemIndex) List(ctx context.Context, userID string, kind SourceKind, limit int) ([]MemoryChunk, error) {
	scored, err := s.Query(ctx, userID, kind, s.probe(), limit)
	if err != nil {
		return nil, err
	}
	out := make([]MemoryChunk, len(scored))
	for i, sc := range scored {
		out[i] = sc.Chunk
	}
	return out, nil
}

func (s *ChromemIndex) Count(_ context.Context, userID string, kind SourceKind) (int, error) {
	col, err := s.collection(userID, kind, false)
	if err != nil || col == nil {
		return 0, err
	}
	return col.Count(), nil
}

func (s *ChromemIndex) DeleteUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, kind := range sourceKinds {
		name := collectionName(userID, kind)
		delete(s.collections, name)
		if s.db.GetCollection(name, nil) == nil {
			continue
		}
		if err := s.db.DeleteCollection(name); err != nil {
			return fmt.Errorf("deleting collection %s: %w", name, err)
		}
	}
	return nil
}

func (s *ChromemIndex) probe() []float32 {
	v := make([]float32, s.dims)
	x := float32(1 / math.Sqrt(float64(s.dims)))
	for i := range v {
		v[i] = x
	}
	return v
}

func chunkFromResult(userID string, kind SourceKind, r chromem.Result) MemoryChunk {
	return MemoryChunk{
		ID:        r.ID,
		UserID:    userID,
		Kind:      kind,
		Text:      r.Content,
		Embedding: r.Embedding,
		Metadata:  r.Metadata,
	}
}
