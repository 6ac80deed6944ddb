package repository

import (
	"context"
	"errors"

	"marketplace/internal/models"

	"gorm.io/gorm"
)

// NotificationRepository persists notifications and answers the read side.
type NotificationRepository interface {
	Create(ctx context.Context, n *models.Notification) error
	CountUnseen(ctx context.Context, receiverID uint) (int64, error)
	List(ctx context.Context, receiverID uint, offset, limit int) ([]models.Notification, int64, error)
	MarkSeen(ctx context.Context, id, receiverID uint) error
	MarkAllSeen(ctx context.Context, receiverID uint) (int64, error)
}

type notificationRepository struct {
	db *gorm.DB
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) Create(ctx context.Context, n *models.Notification) error {
	return r.db.WithContext(ctx).Create(n).Error
}

func (r *notificationRepository) CountUnseen(ctx context.Context, receiverID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Notification{}).
		Where("receiver_id = ? AND is_seen = ?", receiverID, false).
		Count(&count).Error
	return count, err
}

func (r *notificationRepository) List(ctx context.Context, receiverID uint, offset, limit int) ([]models.Notification, int64, error) {
	base := r.db.WithContext(ctx).Model(&models.Notification{}).Where("receiver_id = ?", receiverID)

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var items []models.Notification
	err := base.Session(&gorm.Session{}).
		Order("created_at DESC").
		Order("id DESC").
		Offset(offset).
		Limit(limit).
		Find(&items).Error
	return items, total, err
}

func (r *notificationRepository) MarkSeen(ctx context.Context, id, receiverID uint) error {
	var n models.Notification
	err := r.db.WithContext(ctx).Where("id = ? AND receiver_id = ?", id, receiverID).Take(&n).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.NewNotFoundError("Notification", id)
	}
	if err != nil {
		return err
	}
	if n.IsSeen {
		return nil
	}
	return r.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ?", id).
		Update("is_seen", true).Error
}

func (r *notificationRepository) MarkAllSeen(ctx context.Context, receiverID uint) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Notification{}).
		Where("receiver_id = ? AND is_seen = ?", receiverID, false).
		Update("is_seen", true)
	return res.RowsAffected, res.Error
}

// CatalogueRepository stores vendor catalogues.
type CatalogueRepository interface {
	Create(ctx context.Context, c *models.Catalogue) error
	GetByID(ctx context.Context, id uint) (*models.Catalogue, error)
}

type catalogueRepository struct {
	db *gorm.DB
}

// NewCatalogueRepository creates a new catalogue repository
func NewCatalogueRepository(db *gorm.DB) CatalogueRepository {
	return &catalogueRepository{db: db}
}

func (r *catalogueRepository) Create(ctx context.Context, c *models.Catalogue) error {
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *catalogueRepository) GetByID(ctx context.Context, id uint) (*models.Catalogue, error) {
	var c models.Catalogue
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.NewNotFoundError("Catalogue", id)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
