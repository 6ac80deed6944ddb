// Package service implements the engagement, alerting and search operations.
package service

import (
	"context"
	"fmt"
	"time"

	"marketplace/internal/models"
	"marketplace/internal/repository"
	"marketplace/internal/scoring"
)

// userScorer recomputes a user's score from their back-reference sets.
type userScorer struct {
	users repository.UserRepository
	now   func() time.Time
}

func (s userScorer) refresh(ctx context.Context, userID uint) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	refs, err := s.users.CountRefs(ctx, userID)
	if err != nil {
		return fmt.Errorf("count refs: %w", err)
	}
	commentLikes, err := s.users.CommentLikes(ctx, userID)
	if err != nil {
		return fmt.Errorf("comment likes: %w", err)
	}

	score := scoring.UserScore(scoring.UserInputs{
		IsTrusted:    user.IsTrusted,
		CreatedAt:    user.CreatedAt,
		Likes:        refs[models.RefLikes],
		Dislikes:     refs[models.RefDislikes],
		Comments:     refs[models.RefComments],
		Deals:        refs[models.RefDeals],
		Frees:        refs[models.RefFrees],
		PromoCodes:   refs[models.RefPromoCodes],
		Discussions:  refs[models.RefDiscussions],
		CommentLikes: commentLikes,
	}, s.now())
	return s.users.UpdateScore(ctx, userID, score)
}
