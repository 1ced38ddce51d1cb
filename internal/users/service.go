package users

import (
	"context"
	"time"
)

type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Touch records that the user was just seen.
func (s *Service) Touch(ctx context.Context, id, username, locale string) error {
	return s.repo.Touch(ctx, &User{
		ID:       id,
		Username: username,
		Locale:   locale,
		LastSeen: s.now(),
	})
}

func (s *Service) GetByID(ctx context.Context, id string) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}
