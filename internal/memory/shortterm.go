package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/awaybot/awaybot/internal/tokens"
)

// ContentSealer encrypts turn content at rest, bound to the owning user.
type ContentSealer interface {
	Seal(userID, plaintext string) (string, error)
	Open(userID, sealed string) (string, error)
}

// ShortTermStore keeps each user's chat turns in Redis. A sorted set orders
// turn IDs by creation time and a hash holds the turn bodies, so reads and
// deletes from either end stay cheap. Only per-user keys are touched.
type ShortTermStore struct {
	client  redis.Cmdable
	counter tokens.Counter
	sealer  ContentSealer
	cfg     Config
	now     func() time.Time
}

// ShortTermOption customizes a ShortTermStore.
type ShortTermOption func(*ShortTermStore)

// WithSealer encrypts turn content with sealer before it is written.
func WithSealer(sealer ContentSealer) ShortTermOption {
	return func(s *ShortTermStore) { s.sealer = sealer }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) ShortTermOption {
	return func(s *ShortTermStore) { s.now = now }
}

// NewShortTermStore creates a new short-term memory store.
func NewShortTermStore(client redis.Cmdable, counter tokens.Counter, cfg Config, opts ...ShortTermOption) *ShortTermStore {
	s := &ShortTermStore{
		client:  client,
		counter: counter,
		cfg:     cfg.withDefaults(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// The braces are a cluster hash tag: both keys of a user share a slot.
func turnsKey(userID string) string { return fmt.Sprintf("awaybot:turns:{%s}", userID) }
func bodiesKey(userID string) string { return fmt.Sprintf("awaybot:turn:{%s}", userID) }

type storedTurn struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Sealed    bool      `json:"sealed,omitempty"`
	Tokens    int       `json:"tokens"`
	CreatedAt time.Time `json:"created_at"`
}

// AppendParams carries optional caller-supplied identity for a turn.
type AppendParams struct {
	// ID is used as the turn ID when set; re-appending an existing ID is a
	// no-op that returns the stored turn.
	ID string
	// CreatedAt overrides the clock.
	CreatedAt time.Time
}

// Append stores a new turn for userID and returns it. The turn gets a ULID
// derived from its creation time unless p.ID is set. Creation times of one
// user's turns are strictly increasing; a timestamp that does not advance
// past the newest stored turn is bumped by one microsecond.
func (s *ShortTermStore) Append(ctx context.Context, userID string, role Role, text string, p AppendParams) (ChatTurn, error) {
	if userID == "" {
		return ChatTurn{}, ErrEmptyUserID
	}
	if !role.Valid() {
		return ChatTurn{}, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}
	createdAt = createdAt.UTC().Truncate(time.Microsecond)

	newest, err := s.client.ZRevRangeWithScores(ctx, turnsKey(userID), 0, 0).Result()
	if err != nil {
		return ChatTurn{}, fmt.Errorf("reading newest turn: %w", err)
	}
	if len(newest) == 1 {
		last := int64(newest[0].Score)
		if createdAt.UnixMicro() <= last {
			createdAt = time.UnixMicro(last + 1).UTC()
		}
	}

	turn := ChatTurn{
		ID:        p.ID,
		UserID:    userID,
		Role:      role,
		Content:   text,
		Tokens:    s.counter.Count(text),
		CreatedAt: createdAt,
	}
	if turn.ID == "" {
		turn.ID = ulid.MustNew(ulid.Timestamp(createdAt), ulid.DefaultEntropy()).String()
	}

	data, err := s.encode(turn)
	if err != nil {
		return ChatTurn{}, err
	}

	added, err := s.client.HSetNX(ctx, bodiesKey(userID), turn.ID, data).Result()
	if err != nil {
		return ChatTurn{}, fmt.Errorf("storing turn %s: %w", turn.ID, err)
	}
	if !added {
		existing, err := s.get(ctx, userID, turn.ID)
		if err != nil {
			return ChatTurn{}, err
		}
		// A body without an index entry is left over from an interrupted
		// append; finish indexing it.
		if err := s.client.ZScore(ctx, turnsKey(userID), turn.ID).Err(); errors.Is(err, redis.Nil) {
			if err := s.indexTurn(ctx, userID, existing); err != nil {
				return ChatTurn{}, err
			}
		} else if err != nil {
			return ChatTurn{}, fmt.Errorf("checking turn %s: %w", turn.ID, err)
		}
		return existing, nil
	}

	if err := s.indexTurn(ctx, userID, turn); err != nil {
		return ChatTurn{}, err
	}
	return turn, nil
}

// indexTurn adds a stored body to the time index and enforces TTL and
// retention.
func (s *ShortTermStore) indexTurn(ctx context.Context, userID string, turn ChatTurn) error {
	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, turnsKey(userID), redis.Z{Score: float64(turn.CreatedAt.UnixMicro()), Member: turn.ID})
	if s.cfg.TTL > 0 {
		pipe.Expire(ctx, turnsKey(userID), s.cfg.TTL)
		pipe.Expire(ctx, bodiesKey(userID), s.cfg.TTL)
	}
	card := pipe.ZCard(ctx, turnsKey(userID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("indexing turn %s: %w", turn.ID, err)
	}

	if over := card.Val() - int64(s.cfg.Retention); over > 0 {
		if _, err := s.popAndDelete(ctx, userID, over, false); err != nil {
			return fmt.Errorf("trimming history: %w", err)
		}
	}
	return nil
}

// Recent returns up to limit of the user's newest turns, oldest first.
// A non-positive limit uses the configured MaxMessages.
func (s *ShortTermStore) Recent(ctx context.Context, userID string, limit int) ([]ChatTurn, error) {
	if limit <= 0 {
		limit = s.cfg.MaxMessages
	}
	turns, err := s.newest(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	slices.Reverse(turns)
	return turns, nil
}

// ContextWindow returns the user's newest turns, oldest first, whose summed
// token count stays within tokenBudget. It scans backward from the newest of
// the last MaxMessages turns and stops before the first turn that would
// exceed the budget.
//
// When not even the newest turn fits, it deliberately ignores the budget and
// returns the FallbackMessages newest turns, so a prompt always carries some
// history when history exists.
func (s *ShortTermStore) ContextWindow(ctx context.Context, userID string, tokenBudget int) ([]ChatTurn, error) {
	turns, _, err := s.contextWindow(ctx, userID, tokenBudget)
	return turns, err
}

func (s *ShortTermStore) contextWindow(ctx context.Context, userID string, tokenBudget int) ([]ChatTurn, bool, error) {
	if tokenBudget <= 0 {
		tokenBudget = s.cfg.TokenBudget
	}
	candidates, err := s.newest(ctx, userID, s.cfg.MaxMessages)
	if err != nil {
		return nil, false, err
	}

	used := 0
	n := 0
	for _, t := range candidates {
		if used+t.Tokens > tokenBudget {
			break
		}
		used += t.Tokens
		n++
	}

	fallback := false
	if n == 0 && len(candidates) > 0 {
		n = min(s.cfg.FallbackMessages, len(candidates))
		fallback = true
		slog.Debug("memory: history exceeds token budget, using fallback window",
			"user_id", userID, "budget", tokenBudget, "turns", n)
	}

	selected := candidates[:n]
	slices.Reverse(selected)
	return selected, fallback, nil
}

// ForgetLast deletes the user's count newest turns and returns how many were
// actually deleted.
func (s *ShortTermStore) ForgetLast(ctx context.Context, userID string, count int) (int, error) {
	if count <= 0 {
		return 0, nil
	}
	n, err := s.popAndDelete(ctx, userID, int64(count), true)
	if err != nil {
		return 0, fmt.Errorf("forgetting turns: %w", err)
	}
	return n, nil
}

// ForgetAll deletes every turn of the user.
func (s *ShortTermStore) ForgetAll(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, turnsKey(userID), bodiesKey(userID)).Err(); err != nil {
		return fmt.Errorf("deleting history: %w", err)
	}
	return nil
}

// Count returns the number of stored turns for the user.
func (s *ShortTermStore) Count(ctx context.Context, userID string) (int, error) {
	n, err := s.client.ZCard(ctx, turnsKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("counting turns: %w", err)
	}
	return int(n), nil
}

// ShortTermStats summarizes a user's stored history.
type ShortTermStats struct {
	Messages int `json:"messages"`
	Tokens   int `json:"tokens"`
}

// Stats counts the user's stored turns and their summed tokens.
func (s *ShortTermStore) Stats(ctx context.Context, userID string) (ShortTermStats, error) {
	vals, err := s.client.HVals(ctx, bodiesKey(userID)).Result()
	if err != nil {
		return ShortTermStats{}, fmt.Errorf("reading history stats: %w", err)
	}
	stats := ShortTermStats{Messages: len(vals)}
	for _, raw := range vals {
		// Token counts are stored in the clear, so sealed turns need no key.
		var st storedTurn
		if err := json.Unmarshal([]byte(raw), &st); err == nil {
			stats.Tokens += st.Tokens
		}
	}
	return stats, nil
}

func (s *ShortTermStore) popAndDelete(ctx context.Context, userID string, count int64, newest bool) (int, error) {
	var popped []redis.Z
	var err error
	if newest {
		popped, err = s.client.ZPopMax(ctx, turnsKey(userID), count).Result()
	} else {
		popped, err = s.client.ZPopMin(ctx, turnsKey(userID), count).Result()
	}
	if err != nil {
		return 0, err
	}
	if len(popped) == 0 {
		return 0, nil
	}

	ids := make([]string, len(popped))
	for i, z := range popped {
		ids[i] = z.Member.(string)
	}
	if err := s.client.HDel(ctx, bodiesKey(userID), ids...).Err(); err != nil {
		return 0, err
	}
	return len(ids), nil
}

// newest returns up to limit turns, newest first.
func (s *ShortTermStore) newest(ctx context.Context, userID string, limit int) ([]ChatTurn, error) {
	ids, err := s.client.ZRevRange(ctx, turnsKey(userID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("zrevrange %s: %w", turnsKey(userID), err)
	}
	if len(ids) == 0 {
		return []ChatTurn{}, nil
	}

	vals, err := s.client.HMGet(ctx, bodiesKey(userID), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("hmget %s: %w", bodiesKey(userID), err)
	}

	turns := make([]ChatTurn, 0, len(vals))
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue // body trimmed concurrently
		}
		turn, err := s.decode(userID, raw)
		if err != nil {
			slog.Warn("memory: skipping unreadable turn", "user_id", userID, "turn_id", ids[i], "error", err)
			continue
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

func (s *ShortTermStore) get(ctx context.Context, userID, id string) (ChatTurn, error) {
	raw, err := s.client.HGet(ctx, bodiesKey(userID), id).Result()
	if err != nil {
		return ChatTurn{}, fmt.Errorf("reading turn %s: %w", id, err)
	}
	return s.decode(userID, raw)
}

func (s *ShortTermStore) encode(t ChatTurn) (string, error) {
	st := storedTurn{
		ID:        t.ID,
		Role:      t.Role,
		Content:   t.Content,
		Tokens:    t.Tokens,
		CreatedAt: t.CreatedAt,
	}
	if s.sealer != nil {
		sealed, err := s.sealer.Seal(t.UserID, t.Content)
		if err != nil {
			return "", fmt.Errorf("sealing turn: %w", err)
		}
		st.Content = sealed
		st.Sealed = true
	}
	data, err := json.Marshal(st)
	if err != nil {
		return "", fmt.Errorf("marshaling turn: %w", err)
	}
	return string(data), nil
}

func (s *ShortTermStore) decode(userID, raw string) (ChatTurn, error) {
	var st storedTurn
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return ChatTurn{}, fmt.Errorf("unmarshaling turn: %w", err)
	}
	content := st.Content
	if st.Sealed {
		if s.sealer == nil {
			return ChatTurn{}, fmt.Errorf("turn %s is sealed but no key is configured", st.ID)
		}
		opened, err := s.sealer.Open(userID, st.Content)
		if err != nil {
			return ChatTurn{}, fmt.Errorf("opening turn %s: %w", st.ID, err)
		}
		content = opened
	}
	return ChatTurn{
		ID:        st.ID,
		UserID:    userID,
		Role:      st.Role,
		Content:   content,
		Tokens:    st.Tokens,
		CreatedAt: st.CreatedAt,
	}, nil
}
