package repository

import (
	"context"
	"testing"

	"marketplace/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscriptionRepository_ExistsUsesCanonicalQuery(t *testing.T) {
	db := setupSQLiteDB(t)
	repo := NewSubscriptionRepository(db)
	ctx := context.Background()

	sub := &models.SearchSubscription{
		UserID:            1,
		Type:              models.PostTypeDeal,
		Query:             models.SearchQuery{"city": "Lyon", "category": "tv"},
		WithNotifications: true,
	}
	require.NoError(t, repo.Create(ctx, sub))

	same := models.SearchQuery{"category": "tv", "city": "Lyon"}
	exists, err := repo.Exists(ctx, 1, models.PostTypeDeal, "", same.Canonical(), 0)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.Exists(ctx, 1, models.PostTypeDeal, "", same.Canonical(), sub.ID)
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = repo.Exists(ctx, 2, models.PostTypeDeal, "", same.Canonical(), 0)
	require.NoError(t, err)
	assert.False(t, exists)

	stored, err := repo.GetByID(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, "Lyon", stored.Query["city"])
}

func TestSubscriptionRepository_ActiveForType(t *testing.T) {
	db := setupSQLiteDB(t)
	repo := NewSubscriptionRepository(db)
	ctx := context.Background()

	mine := &models.SearchSubscription{UserID: 1, Type: models.PostTypeDeal, Query: models.SearchQuery{}, WithNotifications: true}
	theirs := &models.SearchSubscription{UserID: 2, Type: models.PostTypeDeal, Query: models.SearchQuery{}, WithNotifications: true}
	muted := &models.SearchSubscription{UserID: 3, Type: models.PostTypeDeal, Query: models.SearchQuery{}}
	other := &models.SearchSubscription{UserID: 4, Type: models.PostTypeFree, Query: models.SearchQuery{}, WithNotifications: true}
	for _, s := range []*models.SearchSubscription{mine, theirs, muted, other} {
		require.NoError(t, repo.Create(ctx, s))
	}

	subs, err := repo.ActiveForType(ctx, models.PostTypeDeal, 1)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, theirs.ID, subs[0].ID)
}

func TestSubscriptionRepository_ActiveForMerchand(t *testing.T) {
	db := setupSQLiteDB(t)
	repo := NewSubscriptionRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &models.SearchSubscription{
		UserID: 1, Type: models.PostTypeCatalogue, Merchand: "Carrefour", Query: models.SearchQuery{}, WithNotifications: true,
	}))

	subs, err := repo.ActiveForMerchand(ctx, "carrefour")
	require.NoError(t, err)
	assert.Len(t, subs, 1)
}

func TestSubscriptionRepository_RecordDeliveryDedupes(t *testing.T) {
	db := setupSQLiteDB(t)
	repo := NewSubscriptionRepository(db)
	ctx := context.Background()

	first, err := repo.RecordDelivery(ctx, 7, 42, models.PostTypeDeal)
	require.NoError(t, err)
	assert.True(t, first)

	second, err := repo.RecordDelivery(ctx, 7, 42, models.PostTypeDeal)
	require.NoError(t, err)
	assert.False(t, second)

	otherType, err := repo.RecordDelivery(ctx, 7, 42, models.PostTypeFree)
	require.NoError(t, err)
	assert.True(t, otherType)

	require.NoError(t, repo.ReleaseDelivery(ctx, 7, 42, models.PostTypeDeal))
	again, err := repo.RecordDelivery(ctx, 7, 42, models.PostTypeDeal)
	require.NoError(t, err)
	assert.True(t, again)
}

func TestSubscriptionRepository_DeleteDropsLedger(t *testing.T) {
	db := setupSQLiteDB(t)
	repo := NewSubscriptionRepository(db)
	ctx := context.Background()

	sub := &models.SearchSubscription{UserID: 1, Type: models.PostTypeDeal, Query: models.SearchQuery{}, WithNotifications: true}
	require.NoError(t, repo.Create(ctx, sub))
	_, err := repo.RecordDelivery(ctx, sub.ID, 1, models.PostTypeDeal)
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, sub.ID))

	var count int64
	require.NoError(t, db.Model(&models.AlertDelivery{}).Where("subscription_id = ?", sub.ID).Count(&count).Error)
	assert.Zero(t, count)

	assert.True(t, models.HasCode(repo.Delete(ctx, sub.ID), models.CodeNotFound))
}
