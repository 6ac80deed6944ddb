package repository

import (
	"context"
	"errors"

	"marketplace/internal/database"
	"marketplace/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LikeRepository stores one reaction row per (user, post, postType).
type LikeRepository interface {
	Find(ctx context.Context, userID, postID uint, postType models.PostType) (*models.Like, error)
	// Create reports false when a row for the same target already exists.
	Create(ctx context.Context, like *models.Like) (bool, error)
	// Delete reports whether the row was removed by this call.
	Delete(ctx context.Context, id uint) (bool, error)
	// SwitchType flips the row from one reaction type to the other and reports whether it did.
	SwitchType(ctx context.Context, id uint, from, to models.LikeType) (bool, error)
}

type likeRepository struct {
	db *gorm.DB
}

// NewLikeRepository creates a new like repository
func NewLikeRepository(db *gorm.DB) LikeRepository {
	return &likeRepository{db: db}
}

func (r *likeRepository) Find(ctx context.Context, userID, postID uint, postType models.PostType) (*models.Like, error) {
	var like models.Like
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND post_id = ? AND post_type = ?", userID, postID, postType).
		Take(&like).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &like, nil
}

func (r *likeRepository) Create(ctx context.Context, like *models.Like) (bool, error) {
	// ON CONFLICT DO NOTHING keeps concurrent duplicate submissions from double counting.
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(like)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *likeRepository) Delete(ctx context.Context, id uint) (bool, error) {
	res := r.db.WithContext(ctx).Delete(&models.Like{}, id)
	return res.RowsAffected == 1, res.Error
}

func (r *likeRepository) SwitchType(ctx context.Context, id uint, from, to models.LikeType) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Like{}).
		Where("id = ? AND type = ?", id, from).
		Update("type", to)
	return res.RowsAffected == 1, res.Error
}

// FavoriteRepository stores bookmarks, unique per (user, post, postType).
type FavoriteRepository interface {
	Create(ctx context.Context, fav *models.Favorite) error
	Delete(ctx context.Context, userID, postID uint, postType models.PostType) error
	FavoritedIDs(ctx context.Context, userID uint, postType models.PostType, postIDs []uint) (map[uint]bool, error)
}

type favoriteRepository struct {
	db *gorm.DB
}

// NewFavoriteRepository creates a new favorite repository
func NewFavoriteRepository(db *gorm.DB) FavoriteRepository {
	return &favoriteRepository{db: db}
}

func (r *favoriteRepository) Create(ctx context.Context, fav *models.Favorite) error {
	err := r.db.WithContext(ctx).Create(fav).Error
	if database.IsUniqueViolation(err) {
		return models.NewConflictError("Favorite already exists")
	}
	return err
}

func (r *favoriteRepository) Delete(ctx context.Context, userID, postID uint, postType models.PostType) error {
	res := r.db.WithContext(ctx).
		Where("user_id = ? AND post_id = ? AND post_type = ?", userID, postID, postType).
		Delete(&models.Favorite{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Favorite", postID)
	}
	return nil
}

func (r *favoriteRepository) FavoritedIDs(ctx context.Context, userID uint, postType models.PostType, postIDs []uint) (map[uint]bool, error) {
	out := make(map[uint]bool, len(postIDs))
	if userID == 0 || len(postIDs) == 0 {
		return out, nil
	}
	var ids []uint
	err := r.db.WithContext(ctx).Model(&models.Favorite{}).
		Where("user_id = ? AND post_type = ? AND post_id IN ?", userID, postType, postIDs).
		Pluck("post_id", &ids).Error
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}
