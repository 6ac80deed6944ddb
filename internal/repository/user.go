package repository

import (
	"context"
	"errors"

	"marketplace/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserRepository reads users and maintains their back-reference sets.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uint) (*models.User, error)
	AddRef(ctx context.Context, userID uint, kind models.RefKind, refID uint, refType models.PostType) error
	RemoveRef(ctx context.Context, userID uint, kind models.RefKind, refID uint, refType models.PostType) error
	CountRefs(ctx context.Context, userID uint) (map[models.RefKind]int, error)
	CommentLikes(ctx context.Context, userID uint) (int, error)
	UpdateScore(ctx context.Context, userID uint, score float64) error
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *userRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.NewNotFoundError("User", id)
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// AddRef inserts a set member; an existing member is left untouched.
func (r *userRepository) AddRef(ctx context.Context, userID uint, kind models.RefKind, refID uint, refType models.PostType) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.UserRef{UserID: userID, Kind: kind, RefID: refID, RefType: refType}).Error
}

func (r *userRepository) RemoveRef(ctx context.Context, userID uint, kind models.RefKind, refID uint, refType models.PostType) error {
	return r.db.WithContext(ctx).
		Where("user_id = ? AND kind = ? AND ref_id = ? AND ref_type = ?", userID, kind, refID, refType).
		Delete(&models.UserRef{}).Error
}

func (r *userRepository) CountRefs(ctx context.Context, userID uint) (map[models.RefKind]int, error) {
	var rows []struct {
		Kind  models.RefKind
		Total int
	}
	err := r.db.WithContext(ctx).Model(&models.UserRef{}).
		Select("kind, COUNT(*) AS total").
		Where("user_id = ?", userID).
		Group("kind").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[models.RefKind]int, len(rows))
	for _, row := range rows {
		out[row.Kind] = row.Total
	}
	return out, nil
}

// CommentLikes sums the likes received on the user's live comments.
func (r *userRepository) CommentLikes(ctx context.Context, userID uint) (int, error) {
	var total int
	err := r.db.WithContext(ctx).Model(&models.Comment{}).
		Select("COALESCE(SUM(total_likes), 0)").
		Where("user_id = ?", userID).
		Scan(&total).Error
	return total, err
}

func (r *userRepository) UpdateScore(ctx context.Context, userID uint, score float64) error {
	return r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Update("score", score).Error
}

// PushSubscriptionRepository stores device push endpoints.
type PushSubscriptionRepository interface {
	Register(ctx context.Context, sub *models.PushSubscription) error
	ListByUser(ctx context.Context, userID uint) ([]models.PushSubscription, error)
	Unregister(ctx context.Context, userID uint, endpoint string) error
	DeleteByEndpoint(ctx context.Context, endpoint string) error
}

type pushSubscriptionRepository struct {
	db *gorm.DB
}

// NewPushSubscriptionRepository creates a new push subscription repository
func NewPushSubscriptionRepository(db *gorm.DB) PushSubscriptionRepository {
	return &pushSubscriptionRepository{db: db}
}

// Register upserts on the endpoint: a device re-registering moves to the new owner and keys.
func (r *pushSubscriptionRepository) Register(ctx context.Context, sub *models.PushSubscription) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "endpoint"}},
			DoUpdates: clause.AssignmentColumns([]string{"user_id", "p256dh", "auth"}),
		}).
		Create(sub).Error
}

func (r *pushSubscriptionRepository) ListByUser(ctx context.Context, userID uint) ([]models.PushSubscription, error) {
	var subs []models.PushSubscription
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("id ASC").Find(&subs).Error
	return subs, err
}

func (r *pushSubscriptionRepository) Unregister(ctx context.Context, userID uint, endpoint string) error {
	res := r.db.WithContext(ctx).
		Where("user_id = ? AND endpoint = ?", userID, endpoint).
		Delete(&models.PushSubscription{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("PushSubscription", endpoint)
	}
	return nil
}

func (r *pushSubscriptionRepository) DeleteByEndpoint(ctx context.Context, endpoint string) error {
	return r.db.WithContext(ctx).Where("endpoint = ?", endpoint).Delete(&models.PushSubscription{}).Error
}
