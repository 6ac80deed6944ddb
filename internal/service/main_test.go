package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"marketplace/internal/database"
	"marketplace/internal/models"
	"marketplace/internal/repository"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// recordingDeliverer captures delivered notifications in memory.
type recordingDeliverer struct {
	mu      sync.Mutex
	sent    []*models.Notification
	failFor map[uint]error
}

func (d *recordingDeliverer) Deliver(_ context.Context, n *models.Notification) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failFor[n.ReceiverID]; err != nil {
		return err
	}
	d.sent = append(d.sent, n)
	return nil
}

func (d *recordingDeliverer) to(receiverID uint) []*models.Notification {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*models.Notification
	for _, n := range d.sent {
		if n.ReceiverID == receiverID {
			out = append(out, n)
		}
	}
	return out
}

func (d *recordingDeliverer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sent)
}

func assertValidationError(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	var appErr *models.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %T", err)
	require.Equal(t, models.CodeValidation, appErr.Code)
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	require.True(t, models.HasCode(err, code), "expected %s, got %v", code, err)
}

func setupSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.Migrate(db))
	return db
}

// harness wires the real repositories and services over one sqlite database.
type harness struct {
	db         *gorm.DB
	stores     repository.ContentStores
	users      repository.UserRepository
	comments   repository.CommentRepository
	subs       repository.SubscriptionRepository
	delivery   *recordingDeliverer
	alerts     *AlertMatcher
	content    *ContentService
	engagement *EngagementDispatcher
	search     *SearchEngine
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := setupSQLiteDB(t)

	h := &harness{
		db:       db,
		stores:   repository.NewContentStores(db),
		users:    repository.NewUserRepository(db),
		comments: repository.NewCommentRepository(db),
		subs:     repository.NewSubscriptionRepository(db),
		delivery: &recordingDeliverer{},
	}
	h.alerts = NewAlertMatcher(h.subs, h.stores, h.users, repository.NewCatalogueRepository(db), h.delivery)
	h.content = NewContentService(h.stores, h.users, h.alerts)

	favorites := repository.NewFavoriteRepository(db)
	engagement, err := NewEngagementDispatcher(h.stores, h.comments, repository.NewLikeRepository(db), favorites, h.users, h.alerts)
	require.NoError(t, err)
	h.engagement = engagement
	h.search = NewSearchEngine(h.stores, favorites, SearchConfig{DefaultLimit: 10, MaxLimit: 50})
	return h
}

func (h *harness) seedUser(t *testing.T, name string, mutate ...func(*models.User)) *models.User {
	t.Helper()
	u := &models.User{
		Name:            name,
		Email:           fmt.Sprintf("%s@example.com", name),
		IsEmailVerified: true,
		CreatedAt:       time.Now(),
	}
	for _, m := range mutate {
		m(u)
	}
	require.NoError(t, h.users.Create(context.Background(), u))
	return u
}

func (h *harness) publish(t *testing.T, owner *models.User, p models.PostType, title string, mutate ...func(*models.ContentItem)) models.Content {
	t.Helper()
	c, err := models.NewContent(p)
	require.NoError(t, err)
	c.Item().Title = title
	for _, m := range mutate {
		m(c.Item())
	}
	out, err := h.content.Publish(context.Background(), PublishInput{UserID: owner.ID, Content: c})
	require.NoError(t, err)
	return out
}

func (h *harness) reload(t *testing.T, p models.PostType, id uint) *models.ContentItem {
	t.Helper()
	store, err := h.stores.For(p)
	require.NoError(t, err)
	item, err := store.Find(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, item)
	return item
}
