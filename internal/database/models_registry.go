package database

import "marketplace/internal/models"

// PersistentModels returns the authoritative set of schema-managed GORM models.
func PersistentModels() []interface{} {
	return []interface{}{
		&models.User{},
		&models.UserRef{},
		&models.PushSubscription{},
		&models.Deal{},
		&models.Free{},
		&models.Discussion{},
		&models.PromoCode{},
		&models.Comment{},
		&models.Like{},
		&models.Favorite{},
		&models.SearchSubscription{},
		&models.AlertDelivery{},
		&models.Notification{},
		&models.Catalogue{},
	}
}
