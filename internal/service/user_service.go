package service

import (
	"context"
	"fmt"

	"marketplace/internal/models"
	"marketplace/internal/repository"
	"marketplace/internal/scoring"
)

// UserService registers accounts for the engagement engine.
type UserService struct {
	users repository.UserRepository
}

func NewUserService(users repository.UserRepository) *UserService {
	return &UserService{users: users}
}

// Register stores a new user. A referred user starts with the referral bonus of
// their referrer: more when the referrer is trusted.
func (s *UserService) Register(ctx context.Context, user *models.User) error {
	if user.ReferredByID != nil {
		referrer, err := s.users.GetByID(ctx, *user.ReferredByID)
		if err != nil {
			if models.HasCode(err, models.CodeNotFound) {
				return models.NewValidationError(fmt.Sprintf("Referrer %d does not exist", *user.ReferredByID))
			}
			return err
		}
		user.Score = float64(scoring.ReferralBonus(referrer.IsTrusted))
	}
	return s.users.Create(ctx, user)
}
