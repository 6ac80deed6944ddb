package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"marketplace/internal/database"
	"marketplace/internal/models"
	"marketplace/internal/notifications"
	"marketplace/internal/observability"
	"marketplace/internal/repository"
	"marketplace/internal/service"

	"gorm.io/gorm"
)

// Options configures a seeding run.
type Options struct {
	NumUsers         int
	NumPosts         int
	NumSubscriptions int
	NumCatalogues    int
	ShouldClean      bool
	// Seed fixes the fake data generator; zero draws from the clock.
	Seed int64
}

// Summary counts what a run created.
type Summary struct {
	Users         int
	Subscriptions int
	Content       int
	Comments      int
	Reactions     int
	Catalogues    int
}

// Seeder publishes demo data through the domain services so scores, permalinks,
// alerts and notifications are produced the same way as in production.
type Seeder struct {
	db            *gorm.DB
	factory       *Factory
	content       *service.ContentService
	engagement    *service.EngagementDispatcher
	alerts        *service.AlertMatcher
	subscriptions *service.SubscriptionService
	log           *slog.Logger
}

// NewSeeder wires the services against db with in-process notification fan-out.
func NewSeeder(db *gorm.DB, opts Options) (*Seeder, error) {
	stores := repository.NewContentStores(db)
	users := repository.NewUserRepository(db)
	subs := repository.NewSubscriptionRepository(db)
	delivery := notifications.NewDelivery(
		repository.NewNotificationRepository(db),
		repository.NewPushSubscriptionRepository(db),
		notifications.NewBridge(nil),
		nil,
		notifications.NoopPushTransport{},
		notifications.DeliveryConfig{},
	)

	alerts := service.NewAlertMatcher(subs, stores, users, repository.NewCatalogueRepository(db), delivery)
	engagement, err := service.NewEngagementDispatcher(
		stores,
		repository.NewCommentRepository(db),
		repository.NewLikeRepository(db),
		repository.NewFavoriteRepository(db),
		users,
		alerts,
	)
	if err != nil {
		return nil, err
	}

	return &Seeder{
		db:            db,
		factory:       NewFactory(service.NewUserService(users), opts.Seed),
		content:       service.NewContentService(stores, users, alerts),
		engagement:    engagement,
		alerts:        alerts,
		subscriptions: service.NewSubscriptionService(subs),
		log:           observability.GlobalLogger,
	}, nil
}

// ClearAll removes every row of every persistent model, children first.
func (s *Seeder) ClearAll(ctx context.Context) error {
	all := database.PersistentModels()
	for i := len(all) - 1; i >= 0; i-- {
		err := s.db.WithContext(ctx).
			Session(&gorm.Session{AllowGlobalUpdate: true}).
			Unscoped().
			Delete(all[i]).Error
		if err != nil {
			return fmt.Errorf("clear %T: %w", all[i], err)
		}
	}
	s.log.InfoContext(ctx, "database cleared")
	return nil
}

// Run executes a full seeding pass.
func (s *Seeder) Run(ctx context.Context, opts Options) (Summary, error) {
	var sum Summary
	if opts.NumUsers <= 0 {
		return sum, errors.New("at least one user is required")
	}
	if opts.ShouldClean {
		if err := s.ClearAll(ctx); err != nil {
			return sum, err
		}
	}

	users, err := s.SeedUsers(ctx, opts.NumUsers)
	if err != nil {
		return sum, fmt.Errorf("failed to create users: %w", err)
	}
	sum.Users = len(users)

	// Subscriptions go first so publishing fires alerts.
	if sum.Subscriptions, err = s.SeedSubscriptions(ctx, users, opts.NumSubscriptions); err != nil {
		return sum, fmt.Errorf("failed to create subscriptions: %w", err)
	}

	items, err := s.SeedContent(ctx, users, opts.NumPosts)
	if err != nil {
		return sum, fmt.Errorf("failed to create content: %w", err)
	}
	sum.Content = len(items)

	if sum.Reactions, sum.Comments, err = s.SeedEngagement(ctx, users, items); err != nil {
		return sum, fmt.Errorf("failed to create engagement: %w", err)
	}

	if sum.Catalogues, err = s.SeedCatalogues(ctx, opts.NumCatalogues); err != nil {
		return sum, fmt.Errorf("failed to create catalogues: %w", err)
	}

	s.log.InfoContext(ctx, "seeding complete",
		slog.Int("users", sum.Users),
		slog.Int("subscriptions", sum.Subscriptions),
		slog.Int("content", sum.Content),
		slog.Int("reactions", sum.Reactions),
		slog.Int("comments", sum.Comments),
		slog.Int("catalogues", sum.Catalogues),
	)
	return sum, nil
}

// SeedUsers creates n users. Some are referred by an earlier one.
func (s *Seeder) SeedUsers(ctx context.Context, n int) ([]*models.User, error) {
	users := make([]*models.User, 0, n)
	for i := 0; i < n; i++ {
		var overrides []func(*models.User)
		if len(users) > 0 && s.factory.Chance(20) {
			referrer := users[s.factory.Pick(len(users))]
			overrides = append(overrides, func(u *models.User) { u.ReferredByID = &referrer.ID })
		}
		u, err := s.factory.CreateUser(ctx, overrides...)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, nil
}

// SeedSubscriptions creates up to n category alerts, skipping duplicates.
func (s *Seeder) SeedSubscriptions(ctx context.Context, users []*models.User, n int) (int, error) {
	created := 0
	for i := 0; i < n; i++ {
		owner := users[s.factory.Pick(len(users))]
		p := models.ContentTypes[s.factory.Pick(len(models.ContentTypes))]
		in := service.SubscriptionInput{
			UserID: owner.ID,
			Type:   p,
			Query:  models.SearchQuery{models.FilterCategory: s.factory.Category()},
		}
		if i%4 == 3 {
			in.Type = models.PostTypeCatalogue
			in.Query = nil
			in.Merchand = s.factory.Merchand()
		}

		if _, err := s.subscriptions.Create(ctx, in); err != nil {
			if models.HasCode(err, models.CodeConflict) {
				continue
			}
			return created, err
		}
		created++
	}
	return created, nil
}

// SeedContent publishes n items spread evenly over the content types.
func (s *Seeder) SeedContent(ctx context.Context, users []*models.User, n int) ([]models.Content, error) {
	counts := splitEvenly(n, len(models.ContentTypes))
	items := make([]models.Content, 0, n)
	for i, p := range models.ContentTypes {
		for j := 0; j < counts[i]; j++ {
			draft, err := s.factory.BuildContent(p)
			if err != nil {
				return nil, err
			}
			owner := users[s.factory.Pick(len(users))]
			item, err := s.content.Publish(ctx, service.PublishInput{UserID: owner.ID, Content: draft})
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
	}
	return items, nil
}

// SeedEngagement has random users react to and comment on items.
func (s *Seeder) SeedEngagement(ctx context.Context, users []*models.User, items []models.Content) (reactions, comments int, err error) {
	for _, content := range items {
		item := content.Item()
		for _, u := range users {
			if u.ID == item.UserID {
				continue
			}
			if s.factory.Chance(30) {
				kind := models.LikeTypeLike
				if s.factory.Chance(20) {
					kind = models.LikeTypeDislike
				}
				if _, err = s.engagement.React(ctx, service.ReactInput{
					ActorID: u.ID, PostID: item.ID, PostType: item.PostType, Type: kind,
				}); err != nil {
					return reactions, comments, err
				}
				reactions++
			}
			if s.factory.Chance(10) {
				if _, err = s.engagement.AddComment(ctx, service.CommentInput{
					ActorID: u.ID, PostID: item.ID, PostType: item.PostType, Text: s.factory.CommentText(),
				}); err != nil {
					return reactions, comments, err
				}
				comments++
			}
		}
	}
	return reactions, comments, nil
}

// SeedCatalogues publishes n merchand catalogues, notifying their subscribers.
func (s *Seeder) SeedCatalogues(ctx context.Context, n int) (int, error) {
	for i := 0; i < n; i++ {
		merchand := s.factory.Merchand()
		_, err := s.alerts.PublishCatalogue(ctx, service.CatalogueInput{
			Merchand: merchand,
			Label:    fmt.Sprintf("Catalogue %s semaine %d", merchand, i+1),
			Category: s.factory.Category(),
		})
		if err != nil {
			return i, err
		}
	}
	return n, nil
}

// splitEvenly divides n into k parts whose sizes differ by at most one.
func splitEvenly(n, k int) []int {
	out := make([]int, k)
	if k == 0 || n <= 0 {
		return out
	}
	for i := range out {
		out[i] = n / k
		if i < n%k {
			out[i]++
		}
	}
	return out
}
