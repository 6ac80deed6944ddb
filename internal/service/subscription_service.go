package service

import (
	"context"
	"fmt"
	"strings"

	"marketplace/internal/models"
	"marketplace/internal/repository"
)

type SubscriptionService struct {
	subs repository.SubscriptionRepository
}

// SubscriptionInput describes a saved search. WithNotifications defaults to true.
type SubscriptionInput struct {
	UserID            uint
	Type              models.PostType
	Query             models.SearchQuery
	Merchand          string
	WithNotifications *bool
}

func NewSubscriptionService(subs repository.SubscriptionRepository) *SubscriptionService {
	return &SubscriptionService{subs: subs}
}

func validateSubscription(in *SubscriptionInput) error {
	in.Merchand = strings.TrimSpace(in.Merchand)
	if !in.Type.IsContent() && in.Type != models.PostTypeCatalogue {
		return models.NewValidationError(fmt.Sprintf("Cannot subscribe to %q", in.Type))
	}
	if in.Type == models.PostTypeCatalogue && in.Merchand == "" {
		return models.NewValidationError("Merchand is required for catalogue alerts")
	}
	if in.Query == nil {
		in.Query = models.SearchQuery{}
	}
	return repository.ValidateFilters(in.Query)
}

// Create stores a new saved search. An identical one for the same user is a Conflict.
func (s *SubscriptionService) Create(ctx context.Context, in SubscriptionInput) (*models.SearchSubscription, error) {
	if err := validateSubscription(&in); err != nil {
		return nil, err
	}

	exists, err := s.subs.Exists(ctx, in.UserID, in.Type, in.Merchand, in.Query.Canonical(), 0)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, models.NewConflictError("An identical alert already exists")
	}

	withNotifications := true
	if in.WithNotifications != nil {
		withNotifications = *in.WithNotifications
	}
	sub := &models.SearchSubscription{
		UserID:            in.UserID,
		Type:              in.Type,
		Query:             in.Query,
		Merchand:          in.Merchand,
		WithNotifications: withNotifications,
	}
	if err := s.subs.Create(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// owned loads a subscription of userID. Someone else's subscription is NotFound.
func (s *SubscriptionService) owned(ctx context.Context, userID, id uint) (*models.SearchSubscription, error) {
	sub, err := s.subs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.UserID != userID {
		return nil, models.NewNotFoundError("SearchSubscription", id)
	}
	return sub, nil
}

// Update replaces the query, merchand and notification flag of an owned subscription.
func (s *SubscriptionService) Update(ctx context.Context, id uint, in SubscriptionInput) (*models.SearchSubscription, error) {
	sub, err := s.owned(ctx, in.UserID, id)
	if err != nil {
		return nil, err
	}
	if in.Type == "" {
		in.Type = sub.Type
	}
	if err := validateSubscription(&in); err != nil {
		return nil, err
	}

	exists, err := s.subs.Exists(ctx, in.UserID, in.Type, in.Merchand, in.Query.Canonical(), sub.ID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, models.NewConflictError("An identical alert already exists")
	}

	sub.Type = in.Type
	sub.Query = in.Query
	sub.Merchand = in.Merchand
	if in.WithNotifications != nil {
		sub.WithNotifications = *in.WithNotifications
	}
	if err := s.subs.Update(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

func (s *SubscriptionService) Delete(ctx context.Context, userID, id uint) error {
	if _, err := s.owned(ctx, userID, id); err != nil {
		return err
	}
	return s.subs.Delete(ctx, id)
}

func (s *SubscriptionService) List(ctx context.Context, userID uint) ([]models.SearchSubscription, error) {
	return s.subs.ListByUser(ctx, userID)
}
