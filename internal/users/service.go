package users

import (
	"context"
	"time"

	"github.com/gogotex/gogotex/backend/collab-service/internal/models"
)

// Service keeps a user record per authenticated subject. Without a
// repository it only echoes the identity.
type Service struct {
	repo UserRepository
}

func NewService(r UserRepository) *Service {
	return &Service{repo: r}
}

// UpsertIdentity records the identity bound to a credential.
func (s *Service) UpsertIdentity(ctx context.Context, id models.Identity) (*models.User, error) {
	if id.ID == "" {
		return nil, nil
	}
	u := &models.User{Sub: id.ID, Email: id.Email, Name: id.Name}
	if s.repo == nil {
		now := time.Now().UTC()
		u.CreatedAt, u.UpdatedAt = now, now
		return u, nil
	}
	return s.repo.UpsertBySub(ctx, u)
}

// UpsertFromClaims creates or updates a user from verified claims.
func (s *Service) UpsertFromClaims(ctx context.Context, claims map[string]interface{}) (*models.User, error) {
	id, ok := models.IdentityFromClaims(claims)
	if !ok {
		return nil, nil
	}
	return s.UpsertIdentity(ctx, id)
}

func (s *Service) GetBySub(ctx context.Context, sub string) (*models.User, error) {
	if s.repo == nil {
		return nil, nil
	}
	return s.repo.GetBySub(ctx, sub)
}
