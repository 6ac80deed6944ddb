package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"marketplace/internal/models"
	"marketplace/internal/observability"
	"marketplace/internal/repository"

	"go.opentelemetry.io/otel/attribute"
)

// Deliverer hands a fully formed notification to the delivery channel.
type Deliverer interface {
	Deliver(ctx context.Context, n *models.Notification) error
}

// EngagementNotice describes an engagement the target owner is told about.
type EngagementNotice struct {
	Actor      *models.User
	OwnerID    uint
	Kind       models.EngagementKind
	TargetType models.PostType
	URL        string
}

// AlertMatcher turns new content, catalogues and engagements into notifications.
type AlertMatcher struct {
	subs       repository.SubscriptionRepository
	stores     repository.ContentStores
	users      repository.UserRepository
	catalogues repository.CatalogueRepository
	delivery   Deliverer
}

type CatalogueInput struct {
	Merchand string
	Label    string
	Category string
	ImageURL string
}

func NewAlertMatcher(
	subs repository.SubscriptionRepository,
	stores repository.ContentStores,
	users repository.UserRepository,
	catalogues repository.CatalogueRepository,
	delivery Deliverer,
) *AlertMatcher {
	return &AlertMatcher{
		subs:       subs,
		stores:     stores,
		users:      users,
		catalogues: catalogues,
		delivery:   delivery,
	}
}

func alertTitle(p models.PostType, author string) string {
	switch p {
	case models.PostTypeDiscussion:
		return fmt.Sprintf("Découvrez la dernière discussion publiée par %s!", author)
	case models.PostTypeFree:
		return fmt.Sprintf("Découvrez le dernier gratuit publié par %s!", author)
	case models.PostTypePromoCode:
		return fmt.Sprintf("Découvrez le dernier code-promo publié par %s!", author)
	}
	return fmt.Sprintf("Découvrez le dernier bon-plan publié par %s!", author)
}

func catalogueTitle(merchand string) string {
	return fmt.Sprintf("🎉 Nouveau catalogue %s disponible maintenant !", merchand)
}

func engagementTitle(kind models.EngagementKind, target models.PostType, actor string) string {
	object := "post"
	if target == models.PostTypeComment {
		object = "commentaire"
	}
	switch kind {
	case models.EngagementDislike:
		return fmt.Sprintf("%s n'aime pas votre %s !", actor, object)
	case models.EngagementComment:
		return fmt.Sprintf("%s a commenté votre post !", actor)
	}
	return fmt.Sprintf("%s a aimé votre %s !", actor, object)
}

func engagementNotificationType(kind models.EngagementKind) models.NotificationType {
	switch kind {
	case models.EngagementDislike:
		return models.NotificationDislike
	case models.EngagementComment:
		return models.NotificationComment
	}
	return models.NotificationLike
}

// receiver loads a notification receiver. ok is false when nothing may be sent to them.
func (m *AlertMatcher) receiver(ctx context.Context, userID uint) (*models.User, bool, error) {
	user, err := m.users.GetByID(ctx, userID)
	if models.HasCode(err, models.CodeNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return user, user.CanReceiveNotifications(), nil
}

// MatchAndNotify notifies every active subscription of the item's type whose stored
// query matches the item. Each (subscription, item) pair is notified at most once.
// Per-subscriber failures are logged and never abort the remaining subscribers.
func (m *AlertMatcher) MatchAndNotify(ctx context.Context, content models.Content) (err error) {
	item := content.Item()
	ctx, span := observability.StartSpan(ctx, "alerts.MatchAndNotify",
		attribute.Int64("post_id", int64(item.ID)),
		attribute.String("post_type", string(item.PostType)),
	)
	defer func() { observability.EndSpan(span, err) }()

	store, err := m.stores.For(item.PostType)
	if err != nil {
		return err
	}

	author, err := m.users.GetByID(ctx, item.UserID)
	if models.HasCode(err, models.CodeNotFound) {
		observability.GlobalLogger.WarnContext(ctx, "alert skipped: author not found",
			slog.Uint64("post_id", uint64(item.ID)),
			slog.Uint64("user_id", uint64(item.UserID)))
		return nil
	}
	if err != nil {
		return err
	}

	subs, err := m.subs.ActiveForType(ctx, item.PostType, item.UserID)
	if err != nil {
		return fmt.Errorf("load subscriptions: %w", err)
	}

	title := alertTitle(item.PostType, author.Name)
	for i := range subs {
		sub := &subs[i]
		if sub.UserID == item.UserID {
			continue
		}
		log := observability.GlobalLogger.With(
			slog.Uint64("subscription_id", uint64(sub.ID)),
			slog.Uint64("post_id", uint64(item.ID)),
			slog.String("post_type", string(item.PostType)),
		)

		matched, matchErr := store.MatchesFilter(ctx, item.ID, sub.Query)
		if matchErr != nil {
			log.WarnContext(ctx, "alert filter failed", observability.ErrAttr(matchErr))
			continue
		}
		if !matched {
			continue
		}

		n := &models.Notification{
			ReceiverID: sub.UserID,
			Title:      title,
			URL:        item.URL,
			Type:       models.AlertNotificationType(item.PostType),
		}
		if m.notifySubscriber(ctx, log, sub, item.ID, item.PostType, n) {
			observability.AlertMatches.WithLabelValues("content").Inc()
		}
	}
	return nil
}

// notifySubscriber claims the (subscription, item) pair and delivers n. A failed
// delivery releases the claim so a later save may retry.
func (m *AlertMatcher) notifySubscriber(
	ctx context.Context,
	log *slog.Logger,
	sub *models.SearchSubscription,
	itemID uint,
	itemType models.PostType,
	n *models.Notification,
) bool {
	_, ok, err := m.receiver(ctx, sub.UserID)
	if err != nil {
		log.WarnContext(ctx, "alert receiver lookup failed", observability.ErrAttr(err))
		return false
	}
	if !ok {
		return false
	}

	claimed, err := m.subs.RecordDelivery(ctx, sub.ID, itemID, itemType)
	if err != nil {
		log.WarnContext(ctx, "alert dedup claim failed", observability.ErrAttr(err))
		return false
	}
	if !claimed {
		return false
	}

	if err := m.delivery.Deliver(ctx, n); err != nil {
		log.ErrorContext(ctx, "alert delivery failed", observability.ErrAttr(err))
		if relErr := m.subs.ReleaseDelivery(ctx, sub.ID, itemID, itemType); relErr != nil {
			log.ErrorContext(ctx, "failed to release alert claim", observability.ErrAttr(relErr))
		}
		return false
	}
	return true
}

// PublishCatalogue persists a vendor catalogue and alerts the vendor's followers.
func (m *AlertMatcher) PublishCatalogue(ctx context.Context, in CatalogueInput) (*models.Catalogue, error) {
	merchand := strings.TrimSpace(in.Merchand)
	label := strings.TrimSpace(in.Label)
	if merchand == "" {
		return nil, models.NewValidationError("Merchand is required")
	}
	if label == "" {
		return nil, models.NewValidationError("Label is required")
	}

	cat := &models.Catalogue{
		Merchand: merchand,
		Label:    label,
		Category: strings.TrimSpace(in.Category),
		ImageURL: in.ImageURL,
	}
	if err := m.catalogues.Create(ctx, cat); err != nil {
		return nil, err
	}
	if err := m.MatchCatalogue(ctx, cat); err != nil {
		observability.GlobalLogger.ErrorContext(ctx, "catalogue fan-out failed",
			slog.Uint64("catalogue_id", uint64(cat.ID)),
			observability.ErrAttr(err))
	}
	return cat, nil
}

// MatchCatalogue notifies every subscription following the catalogue's merchand,
// whatever its category query.
func (m *AlertMatcher) MatchCatalogue(ctx context.Context, cat *models.Catalogue) (err error) {
	ctx, span := observability.StartSpan(ctx, "alerts.MatchCatalogue",
		attribute.Int64("catalogue_id", int64(cat.ID)),
		attribute.String("merchand", cat.Merchand),
	)
	defer func() { observability.EndSpan(span, err) }()

	subs, err := m.subs.ActiveForMerchand(ctx, cat.Merchand)
	if err != nil {
		return fmt.Errorf("load subscriptions: %w", err)
	}

	title := catalogueTitle(cat.Merchand)
	for i := range subs {
		sub := &subs[i]
		log := observability.GlobalLogger.With(
			slog.Uint64("subscription_id", uint64(sub.ID)),
			slog.Uint64("catalogue_id", uint64(cat.ID)),
		)
		n := &models.Notification{
			ReceiverID: sub.UserID,
			Title:      title,
			URL:        cat.URL(),
			Type:       models.NotificationCatalogue,
			ImageURL:   cat.ImageURL,
		}
		if m.notifySubscriber(ctx, log, sub, cat.ID, models.PostTypeCatalogue, n) {
			observability.AlertMatches.WithLabelValues("catalogue").Inc()
		}
	}
	return nil
}

// NotifyEngagement tells the owner of a post or comment about a like, dislike or comment.
// Self-engagement and invalid receivers produce nothing.
func (m *AlertMatcher) NotifyEngagement(ctx context.Context, notice EngagementNotice) error {
	if notice.Actor == nil || notice.Actor.ID == notice.OwnerID {
		return nil
	}
	_, ok, err := m.receiver(ctx, notice.OwnerID)
	if err != nil {
		return err
	}
	if !ok {
		return skipped("User %d cannot receive notifications", notice.OwnerID)
	}

	sender := notice.Actor.ID
	n := &models.Notification{
		SenderID:   &sender,
		ReceiverID: notice.OwnerID,
		Title:      engagementTitle(notice.Kind, notice.TargetType, notice.Actor.Name),
		URL:        notice.URL,
		Type:       engagementNotificationType(notice.Kind),
		ImageURL:   notice.Actor.ImageURL,
	}
	if err := m.delivery.Deliver(ctx, n); err != nil {
		return err
	}
	observability.AlertMatches.WithLabelValues("engagement").Inc()
	return nil
}

// isSkip reports whether err marks a best-effort step that was dropped.
func isSkip(err error) bool {
	return errors.Is(err, models.ErrBestEffortSkip)
}
