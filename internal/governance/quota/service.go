package quota

import (
	"context"
	"errors"
	"log/slog"
)

// ErrRateLimited is returned when a user sends more messages per minute
// than allowed.
var ErrRateLimited = errors.New("quota: rate limit exceeded")

// Status is the API view of a user's current usage.
type Status struct {
	MessagesLastMinute int `json:"messages_last_minute"`
	LimitPerMinute     int `json:"limit_per_minute"`
}

// Service applies the per-user chat rate limit.
type Service struct {
	limiter      *RateLimiter
	maxPerMinute int
}

// NewService creates a quota Service. A non-positive maxPerMinute disables
// the limit.
func NewService(limiter *RateLimiter, maxPerMinute int) *Service {
	return &Service{limiter: limiter, maxPerMinute: maxPerMinute}
}

// CheckQuota records one message for the user and returns ErrRateLimited
// when the window is full.
func (s *Service) CheckQuota(ctx context.Context, userID string) error {
	if s.maxPerMinute <= 0 {
		return nil
	}
	allowed, err := s.limiter.Allow(ctx, userID, s.maxPerMinute)
	if err != nil {
		// Redis trouble must not silence the assistant.
		slog.Warn("quota: rate limiter check failed, allowing message", "error", err)
		return nil
	}
	if !allowed {
		return ErrRateLimited
	}
	return nil
}

// GetQuota returns the user's current usage.
func (s *Service) GetQuota(ctx context.Context, userID string) (*Status, error) {
	used, err := s.limiter.Usage(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Status{MessagesLastMinute: used, LimitPerMinute: s.maxPerMinute}, nil
}

// ResetUser clears the user's window.
func (s *Service) ResetUser(ctx context.Context, userID string) error {
	return s.limiter.Reset(ctx, userID)
}
