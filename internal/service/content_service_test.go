package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"marketplace/internal/cache"
	"marketplace/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPermalink(t *testing.T) {
	t.Parallel()
	tests := []struct {
		title string
		id    uint
		want  string
	}{
		{"TV OLED 55 pouces", 1, "tv-oled-55-pouces-1"},
		{"Téléviseur 4K à moitié prix", 7, "televiseur-4k-a-moitie-prix-7"},
		{"!!!", 3, "3"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Permalink(tt.title, tt.id), tt.title)
	}
}

func TestContentService_Publish_Validation(t *testing.T) {
	h := newHarness(t)
	owner := h.seedUser(t, "ana")
	ctx := context.Background()

	t.Run("missing content", func(t *testing.T) {
		_, err := h.content.Publish(ctx, PublishInput{UserID: owner.ID})
		assertValidationError(t, err)
	})

	t.Run("empty title", func(t *testing.T) {
		c, _ := models.NewContent(models.PostTypeDeal)
		c.Item().Title = "   "
		_, err := h.content.Publish(ctx, PublishInput{UserID: owner.ID, Content: c})
		assertValidationError(t, err)
	})

	t.Run("title too long", func(t *testing.T) {
		c, _ := models.NewContent(models.PostTypeDeal)
		c.Item().Title = strings.Repeat("x", 101)
		_, err := h.content.Publish(ctx, PublishInput{UserID: owner.ID, Content: c})
		assertValidationError(t, err)
	})

	t.Run("comment is not publishable", func(t *testing.T) {
		_, err := h.content.Publish(ctx, PublishInput{UserID: owner.ID, Content: &models.ContentItem{PostType: models.PostTypeComment, Title: "x"}})
		assertValidationError(t, err)
	})

	t.Run("unknown owner", func(t *testing.T) {
		c, _ := models.NewContent(models.PostTypeFree)
		c.Item().Title = "Livre"
		_, err := h.content.Publish(ctx, PublishInput{UserID: 999, Content: c})
		assertCode(t, err, models.CodeNotFound)
	})
}

func TestContentService_Publish_AssignsPermalinkAndOwnerRefs(t *testing.T) {
	h := newHarness(t)
	owner := h.seedUser(t, "ana", func(u *models.User) { u.IsTrusted = true })

	out := h.publish(t, owner, models.PostTypeDeal, "TV OLED 55 pouces", func(c *models.ContentItem) {
		c.Status = models.StatusBanned
		c.TotalLikes = 40
	})
	item := out.Item()

	stored := h.reload(t, models.PostTypeDeal, item.ID)
	assert.Equal(t, models.StatusPublished, stored.Status)
	assert.Zero(t, stored.TotalLikes)
	assert.True(t, stored.IsTrusted)
	assert.InDelta(t, 0.5, stored.Score, 1e-9)
	assert.Equal(t, Permalink("TV OLED 55 pouces", item.ID), stored.SerialNumber)
	assert.Equal(t, "/bons-plans/"+stored.SerialNumber, stored.URL)
	assert.Equal(t, stored.URL, item.URL)

	refs, err := h.users.CountRefs(context.Background(), owner.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, refs[models.RefDeals])

	reloaded, err := h.users.GetByID(context.Background(), owner.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.1*1.5, reloaded.Score, 1e-9)
}

func TestContentService_Publish_URLPerVariant(t *testing.T) {
	h := newHarness(t)
	owner := h.seedUser(t, "ana")

	for _, p := range models.ContentTypes {
		out := h.publish(t, owner, p, "Offre "+string(p))
		assert.True(t, strings.HasPrefix(out.Item().URL, p.URLPrefix()+"/offre-"), out.Item().URL)
	}
}

func TestContentService_UpdateStatus(t *testing.T) {
	h := newHarness(t)
	owner := h.seedUser(t, "ana")
	other := h.seedUser(t, "bob")
	ctx := context.Background()
	item := h.publish(t, owner, models.PostTypeFree, "Canapé").Item()

	in := func(user uint, status models.Status) UpdateStatusInput {
		return UpdateStatusInput{UserID: user, PostType: models.PostTypeFree, PostID: item.ID, Status: status}
	}

	_, err := h.content.UpdateStatus(ctx, in(other.ID, models.StatusUnpublished))
	assertCode(t, err, models.CodeForbidden)

	_, err = h.content.UpdateStatus(ctx, in(owner.ID, models.StatusBanned))
	assertCode(t, err, models.CodeForbidden)

	got, err := h.content.UpdateStatus(ctx, in(owner.ID, models.StatusUnpublished))
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnpublished, got.Item().Status)

	_, err = h.content.UpdateStatus(ctx, in(owner.ID, models.StatusExpired))
	assertCode(t, err, models.CodeForbidden)

	_, err = h.content.UpdateStatus(ctx, in(owner.ID, models.StatusDeleted))
	require.NoError(t, err)

	_, err = h.content.UpdateStatus(ctx, in(owner.ID, models.StatusPublished))
	assertCode(t, err, models.CodeForbidden)
	assert.Equal(t, models.StatusDeleted, h.reload(t, models.PostTypeFree, item.ID).Status)
}

func TestContentService_ExpiredOnlyMovesToDeleted(t *testing.T) {
	h := newHarness(t)
	owner := h.seedUser(t, "ana")
	ctx := context.Background()
	past := time.Now().Add(-time.Hour)
	item := h.publish(t, owner, models.PostTypeDeal, "Soldes", func(c *models.ContentItem) { c.EndDate = &past }).Item()
	h.publish(t, owner, models.PostTypeDeal, "Toujours valable")

	n, err := h.content.ExpireSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, models.StatusExpired, h.reload(t, models.PostTypeDeal, item.ID).Status)

	_, err = h.content.UpdateStatus(ctx, UpdateStatusInput{UserID: owner.ID, PostType: models.PostTypeDeal, PostID: item.ID, Status: models.StatusPublished})
	assertCode(t, err, models.CodeForbidden)
	_, err = h.content.UpdateStatus(ctx, UpdateStatusInput{UserID: owner.ID, PostType: models.PostTypeDeal, PostID: item.ID, Status: models.StatusDeleted})
	require.NoError(t, err)
}

func TestContentService_RecordView(t *testing.T) {
	h := newHarness(t)
	owner := h.seedUser(t, "ana")
	ctx := context.Background()
	item := h.publish(t, owner, models.PostTypeDiscussion, "Quel forfait mobile ?").Item()

	t.Run("without redis every view counts", func(t *testing.T) {
		require.NoError(t, h.content.RecordView(ctx, models.PostTypeDiscussion, item.ID, "v1"))
		require.NoError(t, h.content.RecordView(ctx, models.PostTypeDiscussion, item.ID, "v1"))
		assert.Equal(t, 2, h.reload(t, models.PostTypeDiscussion, item.ID).TotalViews)
	})

	t.Run("redis dedups a visitor", func(t *testing.T) {
		mr, err := miniredis.Run()
		require.NoError(t, err)
		defer mr.Close()
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		defer func() { _ = rdb.Close() }()
		cache.SetClient(rdb)
		defer cache.SetClient(nil)

		require.NoError(t, h.content.RecordView(ctx, models.PostTypeDiscussion, item.ID, "v2"))
		require.NoError(t, h.content.RecordView(ctx, models.PostTypeDiscussion, item.ID, "v2"))
		require.NoError(t, h.content.RecordView(ctx, models.PostTypeDiscussion, item.ID, "v3"))

		stored := h.reload(t, models.PostTypeDiscussion, item.ID)
		assert.Equal(t, 4, stored.TotalViews)
		assert.InDelta(t, 4*0.05, stored.Score, 1e-9)

		mr.FastForward(cache.ViewDedupWindow + time.Second)
		require.NoError(t, h.content.RecordView(ctx, models.PostTypeDiscussion, item.ID, "v2"))
		assert.Equal(t, 5, h.reload(t, models.PostTypeDiscussion, item.ID).TotalViews)
	})
}

func TestContentService_Report(t *testing.T) {
	h := newHarness(t)
	owner := h.seedUser(t, "ana")
	ctx := context.Background()
	item := h.publish(t, owner, models.PostTypePromoCode, "-20% chaussures").Item()

	require.NoError(t, h.content.Report(ctx, models.PostTypePromoCode, item.ID))
	stored := h.reload(t, models.PostTypePromoCode, item.ID)
	assert.Equal(t, 1, stored.TotalReports)
	assert.InDelta(t, -1.0, stored.Score, 1e-9)

	assertCode(t, h.content.Report(ctx, models.PostTypePromoCode, 999), models.CodeNotFound)
	assertValidationError(t, h.content.Report(ctx, models.PostTypeComment, item.ID))
}

func TestContentService_ExpireSweep(t *testing.T) {
	h := newHarness(t)
	owner := h.seedUser(t, "ana")
	ctx := context.Background()
	now := time.Now()

	endsIn := func(d time.Duration) func(*models.ContentItem) {
		return func(c *models.ContentItem) {
			end := now.Add(d)
			c.EndDate = &end
		}
	}
	soon := h.publish(t, owner, models.PostTypeDeal, "Soldes télé", endsIn(time.Hour)).Item()
	later := h.publish(t, owner, models.PostTypeFree, "Canapé à donner", endsIn(48*time.Hour)).Item()
	open := h.publish(t, owner, models.PostTypeDiscussion, "Meilleur forfait mobile ?").Item()

	h.content.now = func() time.Time { return now.Add(2 * time.Hour) }
	n, err := h.content.ExpireSweep(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	assert.Equal(t, models.StatusExpired, h.reload(t, models.PostTypeDeal, soon.ID).Status)
	assert.Equal(t, models.StatusPublished, h.reload(t, models.PostTypeFree, later.ID).Status)
	assert.Equal(t, models.StatusPublished, h.reload(t, models.PostTypeDiscussion, open.ID).Status)

	n, err = h.content.ExpireSweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "expiry is one-way and already applied")
}
