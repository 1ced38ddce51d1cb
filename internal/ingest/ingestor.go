package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/awaybot/awaybot/internal/memory"
)

var ErrEmptyFile = errors.New("ingest: file has no text")

// FileIndexer stores a file's chunks in long-term memory.
type FileIndexer interface {
	IndexFile(ctx context.Context, userID, fileID string, chunks []string, fileName string, metadata map[string]string) error
}

// FileRegistry records ingested files for stats, export and wipe.
type FileRegistry interface {
	Save(ctx context.Context, f memory.FileRecord) error
}

// Result describes one ingested file.
type Result struct {
	FileID   string `json:"file_id"`
	FileName string `json:"file_name"`
	Chunks   int    `json:"chunks"`
}

// Ingestor chunks text files and indexes them for a user.
type Ingestor struct {
	chunker  *Chunker
	index    FileIndexer
	registry FileRegistry
	now      func() time.Time
}

// NewIngestor creates an Ingestor. registry may be nil.
func NewIngestor(chunker *Chunker, index FileIndexer, registry FileRegistry) *Ingestor {
	return &Ingestor{chunker: chunker, index: index, registry: registry, now: time.Now}
}

// IngestText assigns a new file ID, chunks text, indexes the chunks and
// records the file in the registry. A registry failure is logged and does not
// fail the upload since the chunks are already searchable.
func (i *Ingestor) IngestText(ctx context.Context, userID, fileName, text string) (*Result, error) {
	chunks := i.chunker.Chunk(text)
	if len(chunks) == 0 {
		return nil, ErrEmptyFile
	}

	fileName = strings.TrimSpace(fileName)
	if fileName == "" {
		fileName = "untitled.txt"
	}

	res := &Result{
		FileID:   uuid.New().String(),
		FileName: fileName,
		Chunks:   len(chunks),
	}
	if err := i.index.IndexFile(ctx, userID, res.FileID, chunks, fileName, nil); err != nil {
		return nil, fmt.Errorf("indexing file %s: %w", fileName, err)
	}

	if i.registry != nil {
		rec := memory.FileRecord{
			ID:        res.FileID,
			UserID:    userID,
			Name:      fileName,
			Size:      len(text),
			Chunks:    res.Chunks,
			CreatedAt: i.now().UTC(),
		}
		if err := i.registry.Save(ctx, rec); err != nil {
			slog.Warn("recording ingested file", "user_id", userID, "file_id", res.FileID, "error", err)
		}
	}

	slog.Info("ingested file", "user_id", userID, "file_id", res.FileID, "chunks", res.Chunks)
	return res, nil
}
