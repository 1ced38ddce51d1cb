package memory

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/awaybot/awaybot/internal/embedding"
	"github.com/awaybot/awaybot/internal/metrics"
)

const defaultExportLimit = 100

// LongTermStore is a per-user semantic index over past messages and file
// chunks.
type LongTermStore struct {
	embedder embedding.Embedder
	index    VectorIndex
	topK     int
	now      func() time.Time
}

// NewLongTermStore creates a long-term store that embeds with embedder and
// persists into index.
func NewLongTermStore(embedder embedding.Embedder, index VectorIndex, cfg Config) *LongTermStore {
	return &LongTermStore{
		embedder: embedder,
		index:    index,
		topK:     cfg.withDefaults().TopK,
		now:      time.Now,
	}
}

// MessageChunkID is the chunk ID of an indexed message.
func MessageChunkID(userID, messageID string) string {
	return userID + "_" + messageID
}

// FileChunkID is the chunk ID of the i-th chunk of a file.
func FileChunkID(userID, fileID string, i int) string {
	return userID + "_" + fileID + "_" + strconv.Itoa(i)
}

// IndexMessage embeds text and stores it as a message chunk. Re-indexing the
// same messageID replaces the stored chunk. Blank text is ignored.
func (s *LongTermStore) IndexMessage(ctx context.Context, userID, text, messageID string, metadata map[string]string) (err error) {
	defer observe("index_message", &err)

	if userID == "" {
		return ErrEmptyUserID
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if messageID == "" {
		messageID = ulid.Make().String()
	}

	vec, err := embedding.EmbedOne(ctx, s.embedder, text)
	if err != nil {
		return fmt.Errorf("embedding message: %w", err)
	}

	meta := s.metadata(userID, KindMessage, metadata)
	meta["message_id"] = messageID

	return s.index.Upsert(ctx, []MemoryChunk{{
		ID:        MessageChunkID(userID, messageID),
		UserID:    userID,
		Kind:      KindMessage,
		Text:      text,
		Embedding: vec,
		Metadata:  meta,
	}})
}

// IndexFile embeds chunks in one batch and stores them as file chunks in
// order. Re-indexing the same fileID replaces chunks with the same index.
func (s *LongTermStore) IndexFile(ctx context.Context, userID, fileID string, chunks []string, fileName string, metadata map[string]string) (err error) {
	defer observe("index_file", &err)

	if userID == "" {
		return ErrEmptyUserID
	}
	if len(chunks) == 0 {
		return nil
	}

	vecs, err := s.embedder.Embed(ctx, chunks)
	if err != nil {
		return fmt.Errorf("embedding file %s: %w", fileID, err)
	}
	if len(vecs) != len(chunks) {
		return fmt.Errorf("embedder returned %d vectors for %d chunks", len(vecs), len(chunks))
	}

	docs := make([]MemoryChunk, len(chunks))
	for i, text := range chunks {
		meta := s.metadata(userID, KindFileChunk, metadata)
		meta["file_id"] = fileID
		meta["chunk_id"] = strconv.Itoa(i)
		meta["file_name"] = fileName
		docs[i] = MemoryChunk{
			ID:        FileChunkID(userID, fileID, i),
			UserID:    userID,
			Kind:      KindFileChunk,
			Text:      text,
			Embedding: vecs[i],
			Metadata:  meta,
		}
	}

	if err := s.index.Upsert(ctx, docs); err != nil {
		return err
	}
	slog.Info("memory: indexed file", "user_id", userID, "file_id", fileID, "chunks", len(docs))
	return nil
}

// Search returns the user's chunks most relevant to query, most relevant
// first. Messages and file chunks are searched separately with half of
// topK each (rounded up), then merged and truncated to topK. Scores are
// clamped to [0,1].
func (s *LongTermStore) Search(ctx context.Context, userID, query string, topK int) (_ []MemorySummary, err error) {
	defer observe("search", &err)

	if topK <= 0 {
		topK = s.topK
	}
	vec, err := embedding.EmbedOne(ctx, s.embedder, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	perKind := (topK + 1) / 2
	var hits []ScoredChunk
	for _, kind := range sourceKinds {
		found, err := s.index.Query(ctx, userID, kind, vec, perKind)
		if err != nil {
			return nil, fmt.Errorf("searching %s chunks: %w", kind, err)
		}
		hits = append(hits, found...)
	}

	sort.SliceStable(hits, func(i, j int) bool {
		si, sj := clampScore(hits[i].Similarity), clampScore(hits[j].Similarity)
		if si != sj {
			return si > sj
		}
		return hits[i].Chunk.ID < hits[j].Chunk.ID
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}

	out := make([]MemorySummary, len(hits))
	for i, h := range hits {
		out[i] = MemorySummary{
			Source:   h.Chunk.Kind,
			Text:     h.Chunk.Text,
			Score:    clampScore(h.Similarity),
			Metadata: h.Chunk.Metadata,
		}
	}
	return out, nil
}

// AllMemories returns up to limit of the user's chunks for export, split
// evenly between messages and file chunks. Every score is 1.
func (s *LongTermStore) AllMemories(ctx context.Context, userID string, limit int) ([]MemorySummary, error) {
	if limit <= 0 {
		limit = defaultExportLimit
	}
	perKind := max(1, limit/2)

	out := []MemorySummary{}
	for _, kind := range sourceKinds {
		chunks, err := s.index.List(ctx, userID, kind, perKind)
		if err != nil {
			return nil, fmt.Errorf("listing %s chunks: %w", kind, err)
		}
		for _, c := range chunks {
			out = append(out, MemorySummary{Source: kind, Text: c.Text, Score: 1, Metadata: c.Metadata})
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// DeleteUser removes every chunk of the user.
func (s *LongTermStore) DeleteUser(ctx context.Context, userID string) (err error) {
	defer observe("delete_user", &err)
	return s.index.DeleteUser(ctx, userID)
}

// Stats counts the user's chunks by kind.
func (s *LongTermStore) Stats(ctx context.Context, userID string) (ChunkStats, error) {
	var stats ChunkStats
	var err error
	if stats.MessageMemories, err = s.index.Count(ctx, userID, KindMessage); err != nil {
		return ChunkStats{}, fmt.Errorf("counting messages: %w", err)
	}
	if stats.FileChunks, err = s.index.Count(ctx, userID, KindFileChunk); err != nil {
		return ChunkStats{}, fmt.Errorf("counting file chunks: %w", err)
	}
	return stats, nil
}

func (s *LongTermStore) metadata(userID string, kind SourceKind, extra map[string]string) map[string]string {
	meta := make(map[string]string, len(extra)+6)
	maps.Copy(meta, extra)
	meta["user_id"] = userID
	meta["type"] = string(kind)
	meta["created_at"] = s.now().UTC().Format(time.RFC3339)
	return meta
}

func clampScore(sim float64) float64 {
	return min(max(sim, 0), 1)
}

func observe(op string, err *error) {
	metrics.MemoryOperationsTotal.WithLabelValues("long_term", op, metrics.Result(*err)).Inc()
}
