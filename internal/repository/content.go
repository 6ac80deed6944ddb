package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"marketplace/internal/models"

	"gorm.io/gorm"
)

// ContentRepository stores one content variant and mutates its counters.
// Counter operations on an id the variant does not hold are silent no-ops.
type ContentRepository interface {
	PostType() models.PostType
	Create(ctx context.Context, item models.Content) error
	Save(ctx context.Context, item models.Content) error
	GetByID(ctx context.Context, id uint) (models.Content, error)
	Find(ctx context.Context, id uint) (*models.ContentItem, error)
	IncrementLikes(ctx context.Context, id uint) error
	DecrementLikes(ctx context.Context, id uint) error
	IncrementDislikes(ctx context.Context, id uint) error
	DecrementDislikes(ctx context.Context, id uint) error
	IncrementComments(ctx context.Context, id uint) error
	DecrementComments(ctx context.Context, id uint) error
	IncrementReports(ctx context.Context, id uint) error
	IncrementViews(ctx context.Context, id uint) error
	AdjustCounter(ctx context.Context, id uint, counter models.Counter, delta int) (*models.ContentItem, error)
	MatchesFilter(ctx context.Context, id uint, q models.SearchQuery) (bool, error)
	Query(ctx context.Context, q ContentQuery) ([]models.Content, int64, error)
	SetPermalink(ctx context.Context, id uint, serial, url string) error
	// UpdateStatus moves the item from one status to another. It reports false when
	// the item exists but no longer holds the from status.
	UpdateStatus(ctx context.Context, id uint, from, to models.Status) (bool, error)
	ExpirePastEnd(ctx context.Context, now time.Time) (int64, error)
}

type contentItem interface {
	models.Content
	counted
}

// contentRepository implements ContentRepository for the variant T.
type contentRepository[T any, PT interface {
	*T
	contentItem
}] struct {
	db       *gorm.DB
	postType models.PostType
	table    string
	now      func() time.Time
}

func newContentRepository[T any, PT interface {
	*T
	contentItem
}](db *gorm.DB, postType models.PostType) *contentRepository[T, PT] {
	return &contentRepository[T, PT]{
		db:       db,
		postType: postType,
		table:    postType.Table(),
		now:      time.Now,
	}
}

// NewDealRepository creates the deal store.
func NewDealRepository(db *gorm.DB) ContentRepository {
	return newContentRepository[models.Deal](db, models.PostTypeDeal)
}

// NewFreeRepository creates the free offer store.
func NewFreeRepository(db *gorm.DB) ContentRepository {
	return newContentRepository[models.Free](db, models.PostTypeFree)
}

// NewDiscussionRepository creates the discussion store.
func NewDiscussionRepository(db *gorm.DB) ContentRepository {
	return newContentRepository[models.Discussion](db, models.PostTypeDiscussion)
}

// NewPromoCodeRepository creates the promo code store.
func NewPromoCodeRepository(db *gorm.DB) ContentRepository {
	return newContentRepository[models.PromoCode](db, models.PostTypePromoCode)
}

// ContentStores routes a content post type to its store.
type ContentStores map[models.PostType]ContentRepository

// NewContentStores builds one store per content variant.
func NewContentStores(db *gorm.DB) ContentStores {
	return ContentStores{
		models.PostTypeDeal:       NewDealRepository(db),
		models.PostTypeFree:       NewFreeRepository(db),
		models.PostTypeDiscussion: NewDiscussionRepository(db),
		models.PostTypePromoCode:  NewPromoCodeRepository(db),
	}
}

// For returns the store of a content post type.
func (s ContentStores) For(p models.PostType) (ContentRepository, error) {
	store, ok := s[p]
	if !ok {
		return nil, models.NewValidationError(fmt.Sprintf("%s is not a content type", p))
	}
	return store, nil
}

func (r *contentRepository[T, PT]) PostType() models.PostType { return r.postType }

func (r *contentRepository[T, PT]) cast(item models.Content) (PT, error) {
	typed, ok := item.(PT)
	if !ok {
		return nil, models.NewValidationError("content does not belong to " + string(r.postType))
	}
	return typed, nil
}

func (r *contentRepository[T, PT]) Create(ctx context.Context, item models.Content) error {
	typed, err := r.cast(item)
	if err != nil {
		return err
	}
	typed.Item().PostType = r.postType
	return r.db.WithContext(ctx).Create(typed).Error
}

func (r *contentRepository[T, PT]) Save(ctx context.Context, item models.Content) error {
	typed, err := r.cast(item)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Save(typed).Error
}

func (r *contentRepository[T, PT]) GetByID(ctx context.Context, id uint) (models.Content, error) {
	row := PT(new(T))
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.NewNotFoundError(string(r.postType), id)
	}
	if err != nil {
		return nil, err
	}
	return row, nil
}

func (r *contentRepository[T, PT]) Find(ctx context.Context, id uint) (*models.ContentItem, error) {
	var item models.ContentItem
	err := r.db.WithContext(ctx).Table(r.table).Where("id = ?", id).Take(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *contentRepository[T, PT]) AdjustCounter(ctx context.Context, id uint, counter models.Counter, delta int) (*models.ContentItem, error) {
	row, err := adjustCounter[T, PT](ctx, r.db, r.table, id, counter, delta, r.now)
	if err != nil || row == nil {
		return nil, err
	}
	return row.Item(), nil
}

func (r *contentRepository[T, PT]) adjust(ctx context.Context, id uint, counter models.Counter, delta int) error {
	_, err := r.AdjustCounter(ctx, id, counter, delta)
	return err
}

func (r *contentRepository[T, PT]) IncrementLikes(ctx context.Context, id uint) error {
	return r.adjust(ctx, id, models.CounterLikes, 1)
}

func (r *contentRepository[T, PT]) DecrementLikes(ctx context.Context, id uint) error {
	return r.adjust(ctx, id, models.CounterLikes, -1)
}

func (r *contentRepository[T, PT]) IncrementDislikes(ctx context.Context, id uint) error {
	return r.adjust(ctx, id, models.CounterDislikes, 1)
}

func (r *contentRepository[T, PT]) DecrementDislikes(ctx context.Context, id uint) error {
	return r.adjust(ctx, id, models.CounterDislikes, -1)
}

func (r *contentRepository[T, PT]) IncrementComments(ctx context.Context, id uint) error {
	return r.adjust(ctx, id, models.CounterComments, 1)
}

func (r *contentRepository[T, PT]) DecrementComments(ctx context.Context, id uint) error {
	return r.adjust(ctx, id, models.CounterComments, -1)
}

func (r *contentRepository[T, PT]) IncrementReports(ctx context.Context, id uint) error {
	return r.adjust(ctx, id, models.CounterReports, 1)
}

func (r *contentRepository[T, PT]) IncrementViews(ctx context.Context, id uint) error {
	return r.adjust(ctx, id, models.CounterViews, 1)
}

// MatchesFilter re-runs a stored query restricted to the single item id.
func (r *contentRepository[T, PT]) MatchesFilter(ctx context.Context, id uint, q models.SearchQuery) (bool, error) {
	tx := r.db.WithContext(ctx).Table(r.table).
		Where("id = ?", id).
		Where("status = ?", models.StatusPublished)
	tx, ok := applyFilters(tx, q)
	if !ok {
		return false, nil
	}

	var count int64
	if err := tx.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *contentRepository[T, PT]) Query(ctx context.Context, q ContentQuery) ([]models.Content, int64, error) {
	base := r.db.WithContext(ctx).Model(PT(new(T)))
	if len(q.Statuses) > 0 {
		base = base.Where("status IN ?", q.Statuses)
	}
	base = applyKeyword(base, q.Keyword)
	base, ok := applyFilters(base, q.Filters)
	if !ok {
		return nil, 0, models.NewValidationError("Unknown filter in query")
	}

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []T
	tx := applySort(base.Session(&gorm.Session{}), q.Sort)
	if q.Offset > 0 {
		tx = tx.Offset(q.Offset)
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}
	if err := tx.Find(&rows).Error; err != nil {
		return nil, 0, err
	}

	items := make([]models.Content, 0, len(rows))
	for i := range rows {
		items = append(items, PT(&rows[i]))
	}
	return items, total, nil
}

func (r *contentRepository[T, PT]) SetPermalink(ctx context.Context, id uint, serial, url string) error {
	return r.db.WithContext(ctx).Table(r.table).
		Where("id = ?", id).
		Updates(map[string]interface{}{"serial_number": serial, "url": url}).Error
}

func (r *contentRepository[T, PT]) UpdateStatus(ctx context.Context, id uint, from, to models.Status) (bool, error) {
	res := r.db.WithContext(ctx).Table(r.table).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{"status": to, "updated_at": r.now()})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 1 {
		return true, nil
	}
	item, err := r.Find(ctx, id)
	if err != nil {
		return false, err
	}
	if item == nil {
		return false, models.NewNotFoundError(string(r.postType), id)
	}
	return false, nil
}

// ExpirePastEnd moves published items whose end date has passed to expired.
func (r *contentRepository[T, PT]) ExpirePastEnd(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Table(r.table).
		Where("status = ? AND end_date IS NOT NULL AND end_date < ?", models.StatusPublished, now).
		Updates(map[string]interface{}{"status": models.StatusExpired, "updated_at": now})
	return res.RowsAffected, res.Error
}
