package service

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"marketplace/internal/cache"
	"marketplace/internal/models"
	"marketplace/internal/observability"
	"marketplace/internal/repository"
)

// UnseenPusher sends a user's current unseen count to their live sessions.
type UnseenPusher interface {
	PushUnseen(ctx context.Context, userID uint) error
}

// NotificationService is the read side of notifications plus device registration.
type NotificationService struct {
	notifications repository.NotificationRepository
	devices       repository.PushSubscriptionRepository
	pusher        UnseenPusher
}

type DeviceInput struct {
	UserID   uint
	Endpoint string
	P256dh   string
	Auth     string
}

func NewNotificationService(
	notifications repository.NotificationRepository,
	devices repository.PushSubscriptionRepository,
	pusher UnseenPusher,
) *NotificationService {
	return &NotificationService{notifications: notifications, devices: devices, pusher: pusher}
}

// List returns a user's notifications, newest first.
func (s *NotificationService) List(ctx context.Context, userID uint, page, limit int) (models.Page[models.Notification], error) {
	page, limit = normalizePage(page, limit, defaultPageLimit, maxPageLimit)
	out := models.Page[models.Notification]{Page: page, Limit: limit, Results: []models.Notification{}}

	items, total, err := s.notifications.List(ctx, userID, (page-1)*limit, limit)
	if err != nil {
		return out, err
	}
	if items != nil {
		out.Results = items
	}
	out.TotalResults = total
	out.TotalPages = models.TotalPagesFor(total, limit)
	return out, nil
}

func (s *NotificationService) Unseen(ctx context.Context, userID uint) (int64, error) {
	return cache.CachedCount(ctx, cache.UnseenKey(userID), func() (int64, error) {
		return s.notifications.CountUnseen(ctx, userID)
	})
}

func (s *NotificationService) MarkSeen(ctx context.Context, userID, id uint) error {
	if err := s.notifications.MarkSeen(ctx, id, userID); err != nil {
		return err
	}
	s.refreshUnseen(ctx, userID)
	return nil
}

func (s *NotificationService) MarkAllSeen(ctx context.Context, userID uint) (int64, error) {
	n, err := s.notifications.MarkAllSeen(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.refreshUnseen(ctx, userID)
	return n, nil
}

func (s *NotificationService) refreshUnseen(ctx context.Context, userID uint) {
	cache.InvalidateUnseen(ctx, userID)
	if s.pusher == nil {
		return
	}
	if err := s.pusher.PushUnseen(ctx, userID); err != nil {
		observability.GlobalLogger.WarnContext(ctx, "failed to push unseen count",
			slog.Uint64("user_id", uint64(userID)),
			observability.ErrAttr(err))
	}
}

// RegisterDevice stores a push endpoint for the user. Endpoints are unique; a known
// endpoint is moved to the caller.
func (s *NotificationService) RegisterDevice(ctx context.Context, in DeviceInput) (*models.PushSubscription, error) {
	endpoint := strings.TrimSpace(in.Endpoint)
	if endpoint == "" || in.P256dh == "" || in.Auth == "" {
		return nil, models.NewValidationError("Endpoint and keys are required")
	}
	if u, err := url.Parse(endpoint); err != nil || u.Scheme != "https" || u.Host == "" {
		return nil, models.NewValidationError("Endpoint must be an https URL")
	}

	sub := &models.PushSubscription{
		UserID:   in.UserID,
		Endpoint: endpoint,
		P256dh:   in.P256dh,
		Auth:     in.Auth,
	}
	if err := s.devices.Register(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

func (s *NotificationService) UnregisterDevice(ctx context.Context, userID uint, endpoint string) error {
	return s.devices.Unregister(ctx, userID, strings.TrimSpace(endpoint))
}
