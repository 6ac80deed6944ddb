package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"marketplace/internal/models"
	"marketplace/internal/scoring"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func dealRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "user_id", "post_type", "title", "total_likes", "version", "is_trusted", "created_at"})
}

func TestContentRepository_IncrementLikes_WritesScoreWithCounter(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := newContentRepository[models.Deal](db, models.PostTypeDeal)
	repo.now = func() time.Time { return fixedNow }

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "deals" WHERE id = $1`)).
		WithArgs(5, 1).
		WillReturnRows(dealRows().AddRow(5, 10, "Deal", "TV", 2, 7, false, fixedNow))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "deals" SET "score"=$1,"total_likes"=$2,"updated_at"=$3,"version"=$4 WHERE id = $5 AND version = $6`)).
		WithArgs(scoring.ContentScore(scoring.ContentInputs{CreatedAt: fixedNow, Likes: 3}, fixedNow), 3, fixedNow, 8, 5, 7).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "deals" WHERE id = $1`)).
		WithArgs(5, 1).
		WillReturnRows(dealRows().AddRow(5, 10, "Deal", "TV", 3, 8, false, fixedNow))

	err := repo.IncrementLikes(context.Background(), 5)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestContentRepository_AdjustCounter_RetriesOnVersionConflict(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := newContentRepository[models.Deal](db, models.PostTypeDeal)
	repo.now = func() time.Time { return fixedNow }

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "deals" WHERE id = $1`)).
		WillReturnRows(dealRows().AddRow(5, 10, "Deal", "TV", 0, 1, false, fixedNow))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "deals" SET`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "deals" WHERE id = $1`)).
		WillReturnRows(dealRows().AddRow(5, 10, "Deal", "TV", 1, 2, false, fixedNow))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "deals" SET`)).
		WithArgs(sqlmock.AnyArg(), 2, sqlmock.AnyArg(), 3, 5, 2).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "deals" WHERE id = $1`)).
		WillReturnRows(dealRows().AddRow(5, 10, "Deal", "TV", 2, 3, false, fixedNow))

	item, err := repo.AdjustCounter(context.Background(), 5, models.CounterLikes, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, item.TotalLikes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestContentRepository_AdjustCounter_MissingIDIsNoop(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewFreeRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "frees" WHERE id = $1`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	assert.NoError(t, repo.IncrementComments(context.Background(), 99))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestContentRepository_DecrementNeverBelowZero(t *testing.T) {
	db := setupSQLiteDB(t)
	repo := NewDealRepository(db)
	ctx := context.Background()
	deal := seedDeal(t, db, "Zero likes")

	require.NoError(t, repo.DecrementLikes(ctx, deal.ID))
	item, err := repo.Find(ctx, deal.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, item.TotalLikes)
}

func TestContentRepository_ScoreTracksEveryCounter(t *testing.T) {
	db := setupSQLiteDB(t)
	repo := NewDealRepository(db)
	ctx := context.Background()
	deal := seedDeal(t, db, "Counters", func(d *models.Deal) { d.IsTrusted = true })

	require.NoError(t, repo.IncrementLikes(ctx, deal.ID))
	require.NoError(t, repo.IncrementComments(ctx, deal.ID))
	require.NoError(t, repo.IncrementViews(ctx, deal.ID))
	require.NoError(t, repo.IncrementReports(ctx, deal.ID))
	require.NoError(t, repo.IncrementDislikes(ctx, deal.ID))
	require.NoError(t, repo.DecrementDislikes(ctx, deal.ID))

	item, err := repo.Find(ctx, deal.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, item.TotalLikes)
	assert.Equal(t, 1, item.TotalComments)
	assert.Equal(t, 1, item.TotalViews)
	assert.Equal(t, 1, item.TotalReports)
	assert.Equal(t, 0, item.TotalDislikes)
	assert.InDelta(t, scoring.ContentScore(item.ScoreInputs(), time.Now()), item.Score, 1e-9)
}

func TestContentRepository_MatchesFilter(t *testing.T) {
	db := setupSQLiteDB(t)
	repo := NewDealRepository(db)
	ctx := context.Background()
	deal := seedDeal(t, db, "Samsung OLED TV", func(d *models.Deal) {
		d.Category = "Electronics"
		d.City = "Lyon"
	})
	other := seedDeal(t, db, "Garden chair", func(d *models.Deal) { d.Category = "garden" })

	tests := []struct {
		name  string
		id    uint
		query models.SearchQuery
		want  bool
	}{
		{"category matches case-insensitively", deal.ID, models.SearchQuery{"category": "electronics"}, true},
		{"two filters", deal.ID, models.SearchQuery{"category": "electronics", "city": "lyon"}, true},
		{"keyword in title", deal.ID, models.SearchQuery{"keyword": "oled"}, true},
		{"other item does not match", other.ID, models.SearchQuery{"category": "electronics"}, false},
		{"unknown key never matches", deal.ID, models.SearchQuery{"color": "black"}, false},
		{"empty query matches published item", deal.ID, models.SearchQuery{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := repo.MatchesFilter(ctx, tt.id, tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestContentRepository_QueryKeywordStatusAndSort(t *testing.T) {
	db := setupSQLiteDB(t)
	repo := NewDealRepository(db)
	ctx := context.Background()

	low := seedDeal(t, db, "iPhone 15", func(d *models.Deal) { d.Score = 1 })
	high := seedDeal(t, db, "Coque", func(d *models.Deal) { d.Score = 5; d.Tags = "iphone,case" })
	seedDeal(t, db, "iPhone banned", func(d *models.Deal) { d.Status = models.StatusBanned; d.Score = 9 })
	seedDeal(t, db, "Laptop", func(d *models.Deal) { d.Score = 3 })

	items, total, err := repo.Query(ctx, ContentQuery{
		Keyword:  "IPHONE",
		Statuses: models.VisibleStatuses,
		Sort:     DefaultSort,
		Limit:    10,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, items, 2)
	assert.Equal(t, high.ID, items[0].Item().ID)
	assert.Equal(t, low.ID, items[1].Item().ID)
	_, isDeal := items[0].(*models.Deal)
	assert.True(t, isDeal)
}

func TestContentRepository_KeywordEscapesWildcards(t *testing.T) {
	db := setupSQLiteDB(t)
	repo := NewDealRepository(db)
	seedDeal(t, db, "100% coton")
	seedDeal(t, db, "100 coton")

	_, total, err := repo.Query(context.Background(), ContentQuery{Keyword: "100%", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestContentRepository_ExpirePastEnd(t *testing.T) {
	db := setupSQLiteDB(t)
	repo := NewDealRepository(db)
	ctx := context.Background()
	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)

	expired := seedDeal(t, db, "Ended", func(d *models.Deal) { d.EndDate = &past })
	seedDeal(t, db, "Running", func(d *models.Deal) { d.EndDate = &future })
	seedDeal(t, db, "Unpublished ended", func(d *models.Deal) { d.EndDate = &past; d.Status = models.StatusUnpublished })

	n, err := repo.ExpirePastEnd(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	item, err := repo.Find(ctx, expired.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusExpired, item.Status)
}

func TestContentRepository_UpdateStatusChecksCurrentStatus(t *testing.T) {
	db := setupSQLiteDB(t)
	repo := NewDealRepository(db)
	ctx := context.Background()
	deal := seedDeal(t, db, "Frigo")

	require.NoError(t, db.Table(models.PostTypeDeal.Table()).Where("id = ?", deal.ID).Update("status", models.StatusExpired).Error)

	updated, err := repo.UpdateStatus(ctx, deal.ID, models.StatusPublished, models.StatusUnpublished)
	require.NoError(t, err)
	assert.False(t, updated)
	item, err := repo.Find(ctx, deal.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusExpired, item.Status)

	updated, err = repo.UpdateStatus(ctx, deal.ID, models.StatusExpired, models.StatusDeleted)
	require.NoError(t, err)
	assert.True(t, updated)

	_, err = repo.UpdateStatus(ctx, 404, models.StatusPublished, models.StatusDeleted)
	assert.True(t, models.HasCode(err, models.CodeNotFound))
}

func TestContentRepository_GetByIDNotFound(t *testing.T) {
	db := setupSQLiteDB(t)
	_, err := NewPromoCodeRepository(db).GetByID(context.Background(), 404)
	assert.True(t, models.HasCode(err, models.CodeNotFound))
}

func TestParseSort(t *testing.T) {
	tests := []struct {
		raw     string
		want    []SortField
		wantErr bool
	}{
		{"", DefaultSort, false},
		{"score:desc", []SortField{{Column: "score", Desc: true}}, false},
		{"createdAt:asc", []SortField{{Column: "created_at"}}, false},
		{"-totalLikes,createdAt", []SortField{{Column: "total_likes", Desc: true}, {Column: "created_at"}}, false},
		{"password:asc", nil, true},
		{"score:sideways", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseSort(tt.raw)
			if tt.wantErr {
				assert.True(t, models.HasCode(err, models.CodeValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
