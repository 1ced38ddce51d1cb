package memory

import (
	"errors"
	"time"
)

// Role tags a chat turn or prompt block with its speaker.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// SourceKind distinguishes long-term chunks derived from chat messages from
// those derived from uploaded files.
type SourceKind string

const (
	KindMessage   SourceKind = "message"
	KindFileChunk SourceKind = "file_chunk"
)

var (
	ErrEmptyUserID = errors.New("memory: empty user id")
	ErrInvalidRole = errors.New("memory: invalid role")
	ErrInvalidMode = errors.New("memory: invalid reply mode")
)

// ChatTurn is one message exchanged with a user. Turns are never mutated
// after they are stored.
type ChatTurn struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Tokens    int       `json:"tokens"`
	CreatedAt time.Time `json:"created_at"`
}

// Fact is one inferred attribute about a user. (UserID, Key) is unique.
type Fact struct {
	UserID     string    `json:"user_id"`
	Key        string    `json:"key"`
	Value      string    `json:"value"`
	Confidence float64   `json:"confidence"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// MemoryChunk is a unit of long-term indexed text.
type MemoryChunk struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id"`
	Kind      SourceKind        `json:"kind"`
	Text      string            `json:"text"`
	Embedding []float32         `json:"-"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// MemorySummary is a search or export result. Score is in [0,1], 1 being
// the most relevant.
type MemorySummary struct {
	Source   SourceKind        `json:"source"`
	Text     string            `json:"text"`
	Score    float64           `json:"score"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// FileRecord describes a file the user uploaded. Size is in bytes of text.
type FileRecord struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Size      int       `json:"size"`
	Chunks    int       `json:"chunks"`
	CreatedAt time.Time `json:"created_at"`
}

// ChunkStats counts a user's long-term chunks by kind.
type ChunkStats struct {
	MessageMemories int `json:"message_memories"`
	FileChunks      int `json:"file_chunks"`
}

// Block is one role-tagged entry of an assembled prompt.
type Block struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Candidate is a fact proposed by an extraction rule before it is stored.
type Candidate struct {
	Key        string
	Value      string
	Confidence float64
}
