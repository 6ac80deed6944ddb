package repository

import (
	"context"
	"errors"
	"time"

	"marketplace/internal/models"

	"gorm.io/gorm"
)

// CommentRepository defines the interface for comment data operations
type CommentRepository interface {
	Create(ctx context.Context, comment *models.Comment) error
	GetByID(ctx context.Context, id uint) (*models.Comment, error)
	Find(ctx context.Context, id uint) (*models.Comment, error)
	ListByPost(ctx context.Context, postID uint, postType models.PostType, offset, limit int) ([]*models.Comment, int64, error)
	Delete(ctx context.Context, id uint) error
	IncrementLikes(ctx context.Context, id uint) error
	DecrementLikes(ctx context.Context, id uint) error
	IncrementDislikes(ctx context.Context, id uint) error
	DecrementDislikes(ctx context.Context, id uint) error
	IncrementReports(ctx context.Context, id uint) error
	AdjustCounter(ctx context.Context, id uint, counter models.Counter, delta int) (*models.Comment, error)
}

// commentRepository implements CommentRepository
type commentRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewCommentRepository creates a new comment repository
func NewCommentRepository(db *gorm.DB) CommentRepository {
	return &commentRepository{db: db, now: time.Now}
}

func (r *commentRepository) Create(ctx context.Context, comment *models.Comment) error {
	return r.db.WithContext(ctx).Create(comment).Error
}

func (r *commentRepository) GetByID(ctx context.Context, id uint) (*models.Comment, error) {
	comment, err := r.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if comment == nil {
		return nil, models.NewNotFoundError("Comment", id)
	}
	return comment, nil
}

func (r *commentRepository) Find(ctx context.Context, id uint) (*models.Comment, error) {
	var comment models.Comment
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&comment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &comment, nil
}

func (r *commentRepository) ListByPost(ctx context.Context, postID uint, postType models.PostType, offset, limit int) ([]*models.Comment, int64, error) {
	base := r.db.WithContext(ctx).Model(&models.Comment{}).
		Where("post_id = ? AND post_type = ?", postID, postType)

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var comments []*models.Comment
	err := base.Session(&gorm.Session{}).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&comments).Error
	return comments, total, err
}

// Delete soft-deletes the comment so likes pointing at it stay resolvable.
func (r *commentRepository) Delete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&models.Comment{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Comment", id)
	}
	return nil
}

func (r *commentRepository) AdjustCounter(ctx context.Context, id uint, counter models.Counter, delta int) (*models.Comment, error) {
	return adjustCounter[models.Comment](ctx, r.db, models.PostTypeComment.Table(), id, counter, delta, r.now)
}

func (r *commentRepository) adjust(ctx context.Context, id uint, counter models.Counter, delta int) error {
	_, err := r.AdjustCounter(ctx, id, counter, delta)
	return err
}

func (r *commentRepository) IncrementLikes(ctx context.Context, id uint) error {
	return r.adjust(ctx, id, models.CounterLikes, 1)
}

func (r *commentRepository) DecrementLikes(ctx context.Context, id uint) error {
	return r.adjust(ctx, id, models.CounterLikes, -1)
}

func (r *commentRepository) IncrementDislikes(ctx context.Context, id uint) error {
	return r.adjust(ctx, id, models.CounterDislikes, 1)
}

func (r *commentRepository) DecrementDislikes(ctx context.Context, id uint) error {
	return r.adjust(ctx, id, models.CounterDislikes, -1)
}

func (r *commentRepository) IncrementReports(ctx context.Context, id uint) error {
	return r.adjust(ctx, id, models.CounterReports, 1)
}
