package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"marketplace/internal/cache"
	"marketplace/internal/models"
	"marketplace/internal/observability"
	"marketplace/internal/repository"
	"marketplace/internal/scoring"

	"github.com/gosimple/slug"
	"go.opentelemetry.io/otel/attribute"
)

const maxTitleLen = 100

// ContentAlerter fans a newly published item out to matching search subscriptions.
type ContentAlerter interface {
	MatchAndNotify(ctx context.Context, item models.Content) error
}

type ContentService struct {
	stores repository.ContentStores
	users  repository.UserRepository
	alerts ContentAlerter
	scorer userScorer
	now    func() time.Time
}

type PublishInput struct {
	UserID  uint
	Content models.Content
}

type UpdateStatusInput struct {
	UserID   uint
	PostType models.PostType
	PostID   uint
	Status   models.Status
}

func NewContentService(
	stores repository.ContentStores,
	users repository.UserRepository,
	alerts ContentAlerter,
) *ContentService {
	return &ContentService{
		stores: stores,
		users:  users,
		alerts: alerts,
		scorer: userScorer{users: users, now: time.Now},
		now:    time.Now,
	}
}

// Publish persists a new item with its permalink, records it on the owner and
// triggers the alert fan-out.
func (s *ContentService) Publish(ctx context.Context, in PublishInput) (models.Content, error) {
	if in.Content == nil {
		return nil, models.NewValidationError("Content is required")
	}
	item := in.Content.Item()
	store, err := s.stores.For(item.PostType)
	if err != nil {
		return nil, err
	}

	ctx, span := observability.StartSpan(ctx, "content.Publish",
		attribute.String("post_type", string(item.PostType)),
		attribute.Int64("user_id", int64(in.UserID)),
	)
	defer func() { observability.EndSpan(span, err) }()

	item.Title = strings.TrimSpace(item.Title)
	if item.Title == "" {
		err = models.NewValidationError("Title is required")
		return nil, err
	}
	if utf8.RuneCountInString(item.Title) > maxTitleLen {
		err = models.NewValidationError(fmt.Sprintf("Title too long (max %d characters)", maxTitleLen))
		return nil, err
	}

	owner, err := s.users.GetByID(ctx, in.UserID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	item.ID = 0
	item.UserID = owner.ID
	item.Status = models.StatusPublished
	item.IsTrusted = owner.IsTrusted
	item.TotalLikes, item.TotalDislikes, item.TotalComments, item.TotalReports, item.TotalViews = 0, 0, 0, 0, 0
	item.Version = 0
	item.CreatedAt = now
	item.Score = scoring.ContentScore(item.ScoreInputs(), now)

	if err = store.Create(ctx, in.Content); err != nil {
		return nil, err
	}

	item.SerialNumber = Permalink(item.Title, item.ID)
	item.URL = item.PostType.URLPrefix() + "/" + item.SerialNumber
	if err = store.SetPermalink(ctx, item.ID, item.SerialNumber, item.URL); err != nil {
		return nil, err
	}

	if kind, ok := models.OwnedRefKind(item.PostType); ok {
		if refErr := s.users.AddRef(ctx, owner.ID, kind, item.ID, item.PostType); refErr != nil {
			observability.GlobalLogger.WarnContext(ctx, "failed to record owned content", observability.ErrAttr(refErr))
		} else if scoreErr := s.scorer.refresh(ctx, owner.ID); scoreErr != nil {
			observability.GlobalLogger.WarnContext(ctx, "failed to refresh user score", observability.ErrAttr(scoreErr))
		}
	}

	if s.alerts != nil {
		if alertErr := s.alerts.MatchAndNotify(ctx, in.Content); alertErr != nil {
			observability.GlobalLogger.ErrorContext(ctx, "alert fan-out failed",
				slog.Uint64("post_id", uint64(item.ID)),
				slog.String("post_type", string(item.PostType)),
				observability.ErrAttr(alertErr))
		}
	}

	return in.Content, nil
}

// Permalink builds the human-readable serial of an item from its title and id.
func Permalink(title string, id uint) string {
	base := slug.Make(title)
	if base == "" {
		return fmt.Sprintf("%d", id)
	}
	return fmt.Sprintf("%s-%d", base, id)
}

// Get loads one item.
func (s *ContentService) Get(ctx context.Context, postType models.PostType, id uint) (models.Content, error) {
	store, err := s.stores.For(postType)
	if err != nil {
		return nil, err
	}
	return store.GetByID(ctx, id)
}

// UpdateStatus applies an owner status change.
func (s *ContentService) UpdateStatus(ctx context.Context, in UpdateStatusInput) (models.Content, error) {
	store, err := s.stores.For(in.PostType)
	if err != nil {
		return nil, err
	}
	current, err := store.GetByID(ctx, in.PostID)
	if err != nil {
		return nil, err
	}
	item := current.Item()

	if item.UserID != in.UserID {
		return nil, models.NewForbiddenError("You can only change the status of your own posts")
	}
	if !item.Status.OwnerCanSet(in.Status) {
		return nil, models.NewForbiddenError(fmt.Sprintf("Cannot move a %s post to %s", item.Status, in.Status))
	}

	updated, err := store.UpdateStatus(ctx, item.ID, item.Status, in.Status)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, models.NewForbiddenError("The post status changed, reload it and try again")
	}
	item.Status = in.Status
	return current, nil
}

// RecordView counts a view at most once per visitor within the dedup window.
func (s *ContentService) RecordView(ctx context.Context, postType models.PostType, id uint, visitor string) error {
	store, err := s.stores.For(postType)
	if err != nil {
		return err
	}
	if !cache.FirstView(ctx, string(postType), id, visitor) {
		return nil
	}
	return store.IncrementViews(ctx, id)
}

// Report increments the report counter of an item.
func (s *ContentService) Report(ctx context.Context, postType models.PostType, id uint) error {
	store, err := s.stores.For(postType)
	if err != nil {
		return err
	}
	item, err := store.Find(ctx, id)
	if err != nil {
		return err
	}
	if item == nil {
		return models.NewNotFoundError(string(postType), id)
	}
	return store.IncrementReports(ctx, id)
}

// ExpireSweep moves published items past their end date to expired.
func (s *ContentService) ExpireSweep(ctx context.Context) (int64, error) {
	now := s.now()
	var total int64
	for _, p := range models.ContentTypes {
		store, err := s.stores.For(p)
		if err != nil {
			return total, err
		}
		n, err := store.ExpirePastEnd(ctx, now)
		if err != nil {
			return total, fmt.Errorf("expire %s: %w", p, err)
		}
		total += n
	}
	return total, nil
}
