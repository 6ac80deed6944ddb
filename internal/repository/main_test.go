package repository

import (
	"testing"
	"time"

	"marketplace/internal/database"
	"marketplace/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

// setupSQLiteDB returns a migrated in-memory database. A single connection keeps
// every query on the same in-memory schema.
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

func seedDeal(t *testing.T, db *gorm.DB, title string, mutate ...func(*models.Deal)) *models.Deal {
	t.Helper()
	deal := &models.Deal{ContentItem: models.ContentItem{
		UserID:    1,
		PostType:  models.PostTypeDeal,
		Title:     title,
		Status:    models.StatusPublished,
		CreatedAt: time.Now(),
	}}
	for _, m := range mutate {
		m(deal)
	}
	require.NoError(t, db.Create(deal).Error)
	return deal
}
