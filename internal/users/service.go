package users

import (
	"context"
	"time"
)

type Service struct {
	Repo Repo
	Now  func() time.Time
}

func NewService(repo Repo) *Service {
	return &Service{Repo: repo}
}

// EnsureUser records the authenticated caller so other users can reference
// them as a share grantee. Repeat calls refresh email and display name.
func (s *Service) EnsureUser(ctx context.Context, id, email, displayName string) (User, error) {
	user := User{
		ID:          id,
		Email:       email,
		DisplayName: displayName,
		CreatedAt:   s.now(),
	}
	if err := s.Repo.Upsert(ctx, user); err != nil {
		return User{}, err
	}
	return s.Repo.GetByID(ctx, id)
}

func (s *Service) GetByID(ctx context.Context, id string) (User, error) {
	return s.Repo.GetByID(ctx, id)
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}
