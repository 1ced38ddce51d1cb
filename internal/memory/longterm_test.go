package memory

import (
	"context"
	"errors"
	"testing"

	chromem "github.com/philippgille/chromem-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedEmbedder maps known texts to fixed 3-d vectors. Unknown text points
// along the z axis.
type fixedEmbedder struct {
	vecs map[string][]float32
	err  error
}

func (f *fixedEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, ok := f.vecs[t]
		if !ok {
			v = []float32{0, 0, 1}
		}
		out[i] = append([]float32(nil), v...)
	}
	return out, nil
}

func (f *fixedEmbedder) Dimensions() int { return 3 }

func newFixedEmbedder() *fixedEmbedder {
	return &fixedEmbedder{vecs: map[string][]float32{
		"where is the coffee": {1, 0, 0},
		"coffee beans on the shelf": {0.9, 0.1, 0},
		"grinder manual page": {0.5, 0.5, 0},
		"weekend football": {0, 1, 0},
		"tea only": {-1, 0, 0},
		"grinder manual": {0.5, 0.5, 0},
	}}
}

func setupLongTerm(t *testing.T) (*LongTermStore, *fixedEmbedder) {
	t.Helper()
	emb := newFixedEmbedder()
	index := NewChromemIndex(chromem.NewDB(), emb.Dimensions())
	return NewLongTermStore(emb, index, DefaultConfig()), emb
}

func seedLongTerm(t *testing.T, store *LongTermStore, userID string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.IndexMessage(ctx, userID, "coffee beans on the shelf", "m1", nil))
	require.NoError(t, store.IndexMessage(ctx, userID, "weekend football", "m2", nil))
	require.NoError(t, store.IndexMessage(ctx, userID, "tea only", "m3", nil))
	require.NoError(t, store.IndexFile(ctx, userID, "f1", []string{"grinder manual page", "appendix"}, "grinder.txt", nil))
}

func TestLongTermStore_SearchEmptyIndex(t *testing.T) {
	store, _ := setupLongTerm(t)

	results, err := store.Search(context.Background(), "nobody", "anything", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestLongTermStore_SearchRanking(t *testing.T) {
	store, _ := setupLongTerm(t)
	seedLongTerm(t, store, "u1")

	results, err := store.Search(context.Background(), "u1", "where is the coffee", 4)
	require.NoError(t, err)
	require.Len(t, results, 4)

	assert.Equal(t, "coffee beans on the shelf", results[0].Text)
	assert.Equal(t, KindMessage, results[0].Source)
	assert.Equal(t, "grinder manual page", results[1].Text)
	assert.Equal(t, KindFileChunk, results[1].Source)

	for i, r := range results {
		assert.GreaterOrEqual(t, r.Score, 0.0)
		assert.LessOrEqual(t, r.Score, 1.0)
		if i > 0 {
			assert.LessOrEqual(t, r.Score, results[i-1].Score, "results not sorted at %d", i)
		}
	}
}

func TestLongTermStore_SearchClampsNegativeSimilarity(t *testing.T) {
	store, _ := setupLongTerm(t)
	ctx := context.Background()
	require.NoError(t, store.IndexMessage(ctx, "u1", "tea only", "m1", nil))

	results, err := store.Search(ctx, "u1", "where is the coffee", 2)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 0.0, results[0].Score)
}

func TestLongTermStore_SearchTopKOneCoversBothKinds(t *testing.T) {
	store, _ := setupLongTerm(t)
	seedLongTerm(t, store, "u1")

	results, err := store.Search(context.Background(), "u1", "grinder manual", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, KindFileChunk, results[0].Source)
	assert.Equal(t, "grinder.txt", results[0].Metadata["file_name"])
	assert.Equal(t, "0", results[0].Metadata["chunk_id"])
}

func TestLongTermStore_SearchIsolatedByUser(t *testing.T) {
	store, _ := setupLongTerm(t)
	seedLongTerm(t, store, "u1")

	results, err := store.Search(context.Background(), "u2", "where is the coffee", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestLongTermStore_ReindexFileIsIdempotent(t *testing.T) {
	store, _ := setupLongTerm(t)
	ctx := context.Background()
	chunks := []string{"one", "two", "three"}

	require.NoError(t, store.IndexFile(ctx, "u1", "f1", chunks, "notes.md", nil))
	require.NoError(t, store.IndexFile(ctx, "u1", "f1", chunks, "notes.md", nil))

	stats, err := store.Stats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, ChunkStats{FileChunks: 3}, stats)
}

func TestLongTermStore_ReindexMessageIsIdempotent(t *testing.T) {
	store, _ := setupLongTerm(t)
	ctx := context.Background()

	require.NoError(t, store.IndexMessage(ctx, "u1", "weekend football", "m1", nil))
	require.NoError(t, store.IndexMessage(ctx, "u1", "weekend football", "m1", nil))

	stats, err := store.Stats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.MessageMemories)
}

func TestLongTermStore_IndexSkipsEmptyInput(t *testing.T) {
	store, _ := setupLongTerm(t)
	ctx := context.Background()

	require.NoError(t, store.IndexMessage(ctx, "u1", "   ", "m1", nil))
	require.NoError(t, store.IndexFile(ctx, "u1", "f1", nil, "empty.txt", nil))

	stats, err := store.Stats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, ChunkStats{}, stats)
}

func TestLongTermStore_MessageMetadata(t *testing.T) {
	store, _ := setupLongTerm(t)
	ctx := context.Background()
	require.NoError(t, store.IndexMessage(ctx, "u1", "coffee beans on the shelf", "m9", map[string]string{"role": "user"}))

	results, err := store.Search(ctx, "u1", "where is the coffee", 2)
	require.NoError(t, err)
	require.Len(t, results, 1)

	meta := results[0].Metadata
	assert.Equal(t, "u1", meta["user_id"])
	assert.Equal(t, "message", meta["type"])
	assert.Equal(t, "m9", meta["message_id"])
	assert.Equal(t, "user", meta["role"])
	assert.NotEmpty(t, meta["created_at"])
}

func TestLongTermStore_AllMemories(t *testing.T) {
	store, _ := setupLongTerm(t)
	seedLongTerm(t, store, "u1")
	ctx := context.Background()

	all, err := store.AllMemories(ctx, "u1", 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)
	for _, m := range all {
		assert.Equal(t, 1.0, m.Score)
	}

	limited, err := store.AllMemories(ctx, "u1", 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, KindMessage, limited[0].Source)
	assert.Equal(t, KindFileChunk, limited[1].Source)

	one, err := store.AllMemories(ctx, "u1", 1)
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, KindMessage, one[0].Source)
}

func TestLongTermStore_DeleteUser(t *testing.T) {
	store, _ := setupLongTerm(t)
	seedLongTerm(t, store, "u1")
	seedLongTerm(t, store, "u2")
	ctx := context.Background()

	require.NoError(t, store.DeleteUser(ctx, "u1"))

	stats, err := store.Stats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, ChunkStats{}, stats)

	results, err := store.Search(ctx, "u1", "where is the coffee", 5)
	require.NoError(t, err)
	assert.Empty(t, results)

	other, err := store.Stats(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, ChunkStats{MessageMemories: 3, FileChunks: 2}, other)

	// Deleting twice is harmless.
	require.NoError(t, store.DeleteUser(ctx, "u1"))
}

func TestLongTermStore_EncodingErrorsPropagate(t *testing.T) {
	store, emb := setupLongTerm(t)
	emb.err = errors.New("encoder offline")
	ctx := context.Background()

	err := store.IndexMessage(ctx, "u1", "hello", "m1", nil)
	assert.ErrorContains(t, err, "encoder offline")

	err = store.IndexFile(ctx, "u1", "f1", []string{"a"}, "a.txt", nil)
	assert.ErrorContains(t, err, "encoder offline")

	_, err = store.Search(ctx, "u1", "hello", 5)
	assert.ErrorContains(t, err, "encoder offline")
}

func TestChromemIndex_Persistent(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	db, err := OpenChromem(dir)
	require.NoError(t, err)
	emb := newFixedEmbedder()
	store := NewLongTermStore(emb, NewChromemIndex(db, 3), DefaultConfig())
	seedLongTerm(t, store, "u1")

	reopened, err := OpenChromem(dir)
	require.NoError(t, err)
	store = NewLongTermStore(emb, NewChromemIndex(reopened, 3), DefaultConfig())

	stats, err := store.Stats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, ChunkStats{MessageMemories: 3, FileChunks: 2}, stats)
}
