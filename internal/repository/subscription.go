package repository

import (
	"context"
	"errors"

	"marketplace/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SubscriptionRepository stores search subscriptions and the alert delivery ledger.
type SubscriptionRepository interface {
	Create(ctx context.Context, sub *models.SearchSubscription) error
	GetByID(ctx context.Context, id uint) (*models.SearchSubscription, error)
	Update(ctx context.Context, sub *models.SearchSubscription) error
	Delete(ctx context.Context, id uint) error
	ListByUser(ctx context.Context, userID uint) ([]models.SearchSubscription, error)
	Exists(ctx context.Context, userID uint, postType models.PostType, merchand, queryKey string, exceptID uint) (bool, error)
	ActiveForType(ctx context.Context, postType models.PostType, excludeUserID uint) ([]models.SearchSubscription, error)
	ActiveForMerchand(ctx context.Context, merchand string) ([]models.SearchSubscription, error)
	// RecordDelivery claims the (subscription, item) pair and reports whether this call claimed it.
	RecordDelivery(ctx context.Context, subscriptionID, itemID uint, itemType models.PostType) (bool, error)
	ReleaseDelivery(ctx context.Context, subscriptionID, itemID uint, itemType models.PostType) error
}

type subscriptionRepository struct {
	db *gorm.DB
}

// NewSubscriptionRepository creates a new subscription repository
func NewSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

func (r *subscriptionRepository) Create(ctx context.Context, sub *models.SearchSubscription) error {
	sub.QueryKey = sub.Query.Canonical()
	return r.db.WithContext(ctx).Create(sub).Error
}

func (r *subscriptionRepository) GetByID(ctx context.Context, id uint) (*models.SearchSubscription, error) {
	var sub models.SearchSubscription
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.NewNotFoundError("SearchSubscription", id)
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *subscriptionRepository) Update(ctx context.Context, sub *models.SearchSubscription) error {
	sub.QueryKey = sub.Query.Canonical()
	return r.db.WithContext(ctx).Save(sub).Error
}

func (r *subscriptionRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&models.SearchSubscription{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return models.NewNotFoundError("SearchSubscription", id)
		}
		return tx.Where("subscription_id = ?", id).Delete(&models.AlertDelivery{}).Error
	})
}

func (r *subscriptionRepository) ListByUser(ctx context.Context, userID uint) ([]models.SearchSubscription, error) {
	var subs []models.SearchSubscription
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&subs).Error
	return subs, err
}

func (r *subscriptionRepository) Exists(ctx context.Context, userID uint, postType models.PostType, merchand, queryKey string, exceptID uint) (bool, error) {
	tx := r.db.WithContext(ctx).Model(&models.SearchSubscription{}).
		Where("user_id = ? AND type = ? AND merchand = ? AND query_key = ?", userID, postType, merchand, queryKey)
	if exceptID != 0 {
		tx = tx.Where("id <> ?", exceptID)
	}
	var count int64
	if err := tx.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *subscriptionRepository) ActiveForType(ctx context.Context, postType models.PostType, excludeUserID uint) ([]models.SearchSubscription, error) {
	var subs []models.SearchSubscription
	err := r.db.WithContext(ctx).
		Where("type = ? AND with_notifications = ? AND user_id <> ?", postType, true, excludeUserID).
		Order("id ASC").
		Find(&subs).Error
	return subs, err
}

func (r *subscriptionRepository) ActiveForMerchand(ctx context.Context, merchand string) ([]models.SearchSubscription, error) {
	var subs []models.SearchSubscription
	err := r.db.WithContext(ctx).
		Where("LOWER(merchand) = LOWER(?) AND with_notifications = ?", merchand, true).
		Order("id ASC").
		Find(&subs).Error
	return subs, err
}

func (r *subscriptionRepository) RecordDelivery(ctx context.Context, subscriptionID, itemID uint, itemType models.PostType) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.AlertDelivery{SubscriptionID: subscriptionID, ItemID: itemID, ItemType: itemType})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ReleaseDelivery forgets a claim whose notification could not be built.
func (r *subscriptionRepository) ReleaseDelivery(ctx context.Context, subscriptionID, itemID uint, itemType models.PostType) error {
	return r.db.WithContext(ctx).
		Where("subscription_id = ? AND item_id = ? AND item_type = ?", subscriptionID, itemID, itemType).
		Delete(&models.AlertDelivery{}).Error
}
