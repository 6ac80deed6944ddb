package service

import (
	"context"
	"testing"

	"marketplace/internal/models"
	"marketplace/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserService_RegisterAppliesReferralBonus(t *testing.T) {
	db := setupSQLiteDB(t)
	users := repository.NewUserRepository(db)
	svc := NewUserService(users)
	ctx := context.Background()

	trusted := &models.User{Name: "trusted", Email: "trusted@example.com", IsTrusted: true}
	plain := &models.User{Name: "plain", Email: "plain@example.com"}
	require.NoError(t, svc.Register(ctx, trusted))
	require.NoError(t, svc.Register(ctx, plain))
	assert.Zero(t, plain.Score)

	tests := []struct {
		name     string
		referrer *models.User
		want     float64
	}{
		{"trusted referrer", trusted, 20},
		{"untrusted referrer", plain, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := &models.User{Name: "new", Email: tt.name + "@example.com", ReferredByID: &tt.referrer.ID}
			require.NoError(t, svc.Register(ctx, u))

			stored, err := users.GetByID(ctx, u.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, stored.Score)
		})
	}
}

func TestUserService_RegisterRejectsUnknownReferrer(t *testing.T) {
	db := setupSQLiteDB(t)
	svc := NewUserService(repository.NewUserRepository(db))

	missing := uint(404)
	err := svc.Register(context.Background(), &models.User{Name: "x", Email: "x@example.com", ReferredByID: &missing})
	assertValidationError(t, err)
}
