package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/awaybot/awaybot/internal/users"
)

// DefaultForgetCount is how many turns Forget removes when no count is given.
const DefaultForgetCount = 10

// UserStore is the subset of the user repository the memory service needs.
type UserStore interface {
	GetByID(ctx context.Context, id string) (*users.User, error)
	Delete(ctx context.Context, id string) error
}

// Service exposes the owner-facing memory operations over all three stores.
type Service struct {
	shortTerm *ShortTermStore
	longTerm  *LongTermStore
	facts     FactStore
	files     FileStore
	users     UserStore
	cfg       Config
	now       func() time.Time
}

// NewService creates a new memory service. files and users may be nil.
func NewService(shortTerm *ShortTermStore, longTerm *LongTermStore, facts FactStore, files FileStore, users UserStore, cfg Config) *Service {
	return &Service{
		shortTerm: shortTerm,
		longTerm:  longTerm,
		facts:     facts,
		files:     files,
		users:     users,
		cfg:       cfg.withDefaults(),
		now:       time.Now,
	}
}

// Dashboard is a summary of everything remembered about a user.
type Dashboard struct {
	UserID    string         `json:"user_id"`
	Mode      string         `json:"mode"`
	ShortTerm ShortTermStats `json:"short_term"`
	LongTerm  ChunkStats     `json:"long_term"`
	Facts     []Fact         `json:"facts"`
	Files     int            `json:"files"`
}

// Export is the full data export of a user.
type Export struct {
	UserID     string          `json:"user_id"`
	ExportedAt time.Time       `json:"exported_at"`
	User       *users.User     `json:"user,omitempty"`
	Dashboard  *Dashboard      `json:"stats"`
	History    []ChatTurn      `json:"history"`
	Memories   []MemorySummary `json:"memories"`
	Files      []FileRecord    `json:"files"`
}

// Dashboard collects fact, history and long-term statistics for a user.
func (s *Service) Dashboard(ctx context.Context, userID string) (*Dashboard, error) {
	if userID == "" {
		return nil, ErrEmptyUserID
	}
	short, err := s.shortTerm.Stats(ctx, userID)
	if err != nil {
		return nil, err
	}
	long, err := s.longTerm.Stats(ctx, userID)
	if err != nil {
		return nil, err
	}
	facts, err := s.facts.List(ctx, userID, s.cfg.FactsLimit)
	if err != nil {
		return nil, err
	}
	mode, err := s.Mode(ctx, userID)
	if err != nil {
		return nil, err
	}
	dash := &Dashboard{
		UserID:    userID,
		Mode:      mode,
		ShortTerm: short,
		LongTerm:  long,
		Facts:     facts,
	}
	if s.files != nil {
		if dash.Files, err = s.files.Count(ctx, userID); err != nil {
			return nil, err
		}
	}
	return dash, nil
}

// History returns the user's recent turns, oldest first.
func (s *Service) History(ctx context.Context, userID string, limit int) ([]ChatTurn, error) {
	return s.shortTerm.Recent(ctx, userID, limit)
}

// Search queries the user's long-term memory.
func (s *Service) Search(ctx context.Context, userID, query string, topK int) ([]MemorySummary, error) {
	return s.longTerm.Search(ctx, userID, query, topK)
}

// Forget deletes the user's n most recent turns, DefaultForgetCount when n
// is not positive, and returns how many were deleted.
func (s *Service) Forget(ctx context.Context, userID string, n int) (int, error) {
	if n <= 0 {
		n = DefaultForgetCount
	}
	return s.shortTerm.ForgetLast(ctx, userID, n)
}

// ForgetAll clears the user's short-term history. Facts and long-term
// memories are kept.
func (s *Service) ForgetAll(ctx context.Context, userID string) error {
	return s.shortTerm.ForgetAll(ctx, userID)
}

// Wipe permanently removes everything stored about the user. Every store is
// attempted even when an earlier one fails.
func (s *Service) Wipe(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrEmptyUserID
	}
	errs := []error{
		s.shortTerm.ForgetAll(ctx, userID),
		s.facts.DeleteUser(ctx, userID),
		s.longTerm.DeleteUser(ctx, userID),
	}
	if s.files != nil {
		errs = append(errs, s.files.DeleteUser(ctx, userID))
	}
	if s.users != nil {
		errs = append(errs, s.users.Delete(ctx, userID))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("wiping user %s: %w", userID, err)
	}
	slog.Info("memory: wiped user", "user_id", userID)
	return nil
}

// Export gathers the user's profile, stats, facts, history, uploaded files
// and long-term memories into one document.
func (s *Service) Export(ctx context.Context, userID string) (*Export, error) {
	dash, err := s.Dashboard(ctx, userID)
	if err != nil {
		return nil, err
	}
	history, err := s.shortTerm.Recent(ctx, userID, s.cfg.Retention)
	if err != nil {
		return nil, err
	}
	memories, err := s.longTerm.AllMemories(ctx, userID, 0)
	if err != nil {
		return nil, err
	}

	exp := &Export{
		UserID:     userID,
		ExportedAt: s.now().UTC(),
		Dashboard:  dash,
		History:    history,
		Memories:   memories,
		Files:      []FileRecord{},
	}
	if s.files != nil {
		if exp.Files, err = s.files.List(ctx, userID); err != nil {
			return nil, err
		}
	}
	if s.users != nil {
		if exp.User, err = s.users.GetByID(ctx, userID); err != nil {
			return nil, err
		}
	}
	return exp, nil
}

// Mode returns the user's reply mode, or "default" when none is set.
func (s *Service) Mode(ctx context.Context, userID string) (string, error) {
	f, err := s.facts.Get(ctx, userID, ReplyModeKey)
	if err != nil {
		return "", err
	}
	if f == nil {
		return "default", nil
	}
	return f.Value, nil
}

// SetMode stores the user's reply mode. mode must be one of ReplyModes.
func (s *Service) SetMode(ctx context.Context, userID, mode string) error {
	if userID == "" {
		return ErrEmptyUserID
	}
	mode = strings.ToLower(strings.TrimSpace(mode))
	if !ValidMode(mode) {
		return fmt.Errorf("%w: %q (use %s)", ErrInvalidMode, mode, strings.Join(ReplyModes, ", "))
	}
	return s.facts.Upsert(ctx, Fact{
		UserID:     userID,
		Key:        ReplyModeKey,
		Value:      mode,
		Confidence: 1,
		UpdatedAt:  s.now().UTC(),
	})
}

// Privacy returns the notice describing what is stored and how to remove it.
func Privacy() string {
	return `What is stored:
- Conversation history, used as context for replies. Optionally encrypted at rest.
- Facts inferred from your messages, such as your name or preferred language.
- Long-term memories: past messages and uploaded documents, indexed for search.

Your controls:
- Export downloads everything stored about you.
- Forget removes your most recent messages; forget-all clears the conversation history.
- Wipe permanently deletes all of your data.

Nothing is shared with third parties beyond the language model that writes the replies.`
}
