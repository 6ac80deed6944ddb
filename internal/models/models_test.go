package models

import (
	"errors"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePostType(t *testing.T) {
	tests := []struct {
		raw     string
		want    PostType
		wantErr bool
	}{
		{"Deal", PostTypeDeal, false},
		{"deal", PostTypeDeal, false},
		{"PROMOCODE", PostTypePromoCode, false},
		{"comment", PostTypeComment, false},
		{"Catalogue", PostTypeCatalogue, false},
		{"video", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParsePostType(tt.raw)
			if tt.wantErr {
				assert.True(t, HasCode(err, CodeValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPostTypeClassification(t *testing.T) {
	for _, p := range ContentTypes {
		assert.True(t, p.IsContent(), p)
		assert.True(t, p.IsReactable(), p)
		assert.NotEmpty(t, p.Table(), p)
		assert.NotEmpty(t, p.URLPrefix(), p)
	}
	assert.False(t, PostTypeComment.IsContent())
	assert.True(t, PostTypeComment.IsReactable())
	assert.False(t, PostTypeCatalogue.IsReactable())
}

func TestNewContent(t *testing.T) {
	for _, p := range ContentTypes {
		c, err := NewContent(p)
		require.NoError(t, err)
		assert.Equal(t, p, c.Item().PostType)
	}

	_, isDeal := mustContent(t, PostTypeDeal).(*Deal)
	assert.True(t, isDeal)

	_, err := NewContent(PostTypeComment)
	assert.True(t, HasCode(err, CodeValidation))
}

func mustContent(t *testing.T, p PostType) Content {
	c, err := NewContent(p)
	require.NoError(t, err)
	return c
}

func TestContentItemCounters(t *testing.T) {
	var item ContentItem
	item.Add(CounterLikes, 2)
	item.Add(CounterViews, 5)
	item.Add(CounterLikes, -1)

	assert.Equal(t, 1, item.Get(CounterLikes))
	assert.Equal(t, 5, item.Get(CounterViews))
	assert.Equal(t, 5, item.ScoreInputs().Views)
}

func TestLikeType(t *testing.T) {
	assert.Equal(t, LikeTypeDislike, LikeTypeLike.Opposite())
	assert.Equal(t, LikeTypeLike, LikeTypeDislike.Opposite())
	assert.Equal(t, CounterDislikes, LikeTypeDislike.Counter())

	lt, ok := EngagementDislike.LikeType()
	assert.True(t, ok)
	assert.Equal(t, LikeTypeDislike, lt)

	_, ok = EngagementComment.LikeType()
	assert.False(t, ok)
}

func TestSearchQueryCanonical(t *testing.T) {
	a := SearchQuery{"city": "Lyon", "category": "tv"}
	b := SearchQuery{"category": "tv", "city": "Lyon"}
	assert.Equal(t, a.Canonical(), b.Canonical())
	assert.NotEqual(t, a.Canonical(), SearchQuery{"category": "tv"}.Canonical())
	assert.Equal(t, "[]", SearchQuery{}.Canonical())
}

func TestTotalPagesFor(t *testing.T) {
	assert.Equal(t, 0, TotalPagesFor(0, 10))
	assert.Equal(t, 1, TotalPagesFor(10, 10))
	assert.Equal(t, 2, TotalPagesFor(11, 10))
	assert.Equal(t, 0, TotalPagesFor(5, 0))
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, fiber.StatusNotFound, StatusFor(NewNotFoundError("Deal", 1)))
	assert.Equal(t, fiber.StatusForbidden, StatusFor(NewForbiddenError("no")))
	assert.Equal(t, fiber.StatusConflict, StatusFor(NewConflictError("dup")))
	assert.Equal(t, fiber.StatusBadRequest, StatusFor(NewValidationError("bad")))
	assert.Equal(t, fiber.StatusInternalServerError, StatusFor(errors.New("boom")))
}

func TestUserCanReceiveNotifications(t *testing.T) {
	assert.True(t, (&User{IsEmailVerified: true}).CanReceiveNotifications())
	assert.False(t, (&User{IsEmailVerified: true, IsDeleted: true}).CanReceiveNotifications())
	assert.False(t, (&User{}).CanReceiveNotifications())
	var nilUser *User
	assert.False(t, nilUser.CanReceiveNotifications())
}

func TestCatalogueURL(t *testing.T) {
	c := Catalogue{ID: 3, Merchand: "lidl"}
	assert.Equal(t, "/catalogues/lidl/3", c.URL())

	spaced := Catalogue{ID: 4, Merchand: "Carrefour Market"}
	assert.Equal(t, "/catalogues/Carrefour%20Market/4", spaced.URL())
}

func TestStatusOwnerCanSet(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPublished, StatusUnpublished, true},
		{StatusUnpublished, StatusPublished, true},
		{StatusPublished, StatusDeleted, true},
		{StatusUnpublished, StatusDeleted, true},
		{StatusExpired, StatusDeleted, true},
		{StatusExpired, StatusPublished, false},
		{StatusPublished, StatusExpired, false},
		{StatusPublished, StatusBanned, false},
		{StatusUnpublished, StatusBanned, false},
		{StatusDeleted, StatusPublished, false},
		{StatusBanned, StatusDeleted, false},
		{StatusPublished, StatusPublished, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.OwnerCanSet(tt.to))
		})
	}
}
