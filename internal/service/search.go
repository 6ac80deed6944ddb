package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"marketplace/internal/models"
	"marketplace/internal/observability"
	"marketplace/internal/repository"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

const (
	defaultPageLimit = 10
	maxPageLimit     = 100
	defaultMaxWindow = 1000
)

func normalizePage(page, limit, def, max int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = def
	}
	if limit > max {
		limit = max
	}
	return page, limit
}

// window returns the offset of a page, rejecting pages that end past the search window.
func (s *SearchEngine) window(page, limit int) (int, error) {
	if page > s.cfg.MaxWindow/limit {
		return 0, models.NewValidationError(fmt.Sprintf("Search results are limited to the first %d entries", s.cfg.MaxWindow))
	}
	return (page - 1) * limit, nil
}

// SearchConfig bounds page sizes. MaxWindow caps page*limit, the number of rows
// a request may read from each collection.
type SearchConfig struct {
	DefaultLimit int
	MaxLimit     int
	MaxWindow    int
}

// SearchInput is a ranked keyword search. An empty PostType searches every content type.
type SearchInput struct {
	Keyword  string
	PostType models.PostType
	SortBy   string
	Page     int
	Limit    int
	ViewerID uint
}

// SearchEngine runs keyword searches across the four content collections.
type SearchEngine struct {
	stores    repository.ContentStores
	favorites repository.FavoriteRepository
	cfg       SearchConfig
}

func NewSearchEngine(stores repository.ContentStores, favorites repository.FavoriteRepository, cfg SearchConfig) *SearchEngine {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = defaultPageLimit
	}
	if cfg.MaxLimit < cfg.DefaultLimit {
		cfg.MaxLimit = maxPageLimit
	}
	if cfg.MaxWindow < cfg.MaxLimit {
		cfg.MaxWindow = defaultMaxWindow
		if cfg.MaxWindow < cfg.MaxLimit {
			cfg.MaxWindow = cfg.MaxLimit
		}
	}
	return &SearchEngine{stores: stores, favorites: favorites, cfg: cfg}
}

type typedResult struct {
	postType models.PostType
	items    []models.Content
	total    int64
}

// queryAll runs q against every content store concurrently. Results keep the
// order of models.ContentTypes.
func (s *SearchEngine) queryAll(ctx context.Context, q repository.ContentQuery) ([]typedResult, error) {
	out := make([]typedResult, len(models.ContentTypes))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range models.ContentTypes {
		i, p := i, p
		store, err := s.stores.For(p)
		if err != nil {
			return nil, err
		}
		g.Go(func() error {
			items, total, err := store.Query(gctx, q)
			if err != nil {
				return err
			}
			out[i] = typedResult{postType: p, items: items, total: total}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

type contentKey struct {
	postType models.PostType
	id       uint
}

// SearchByKeyword pages through the union of the content collections, newest first.
// Every collection is read through the end of the requested window so a page stays
// full while any collection still has rows, and no row is skipped between pages.
func (s *SearchEngine) SearchByKeyword(ctx context.Context, keyword string, page, limit int) (models.Page[models.Content], error) {
	start := time.Now()
	defer func() { observability.SearchLatency.WithLabelValues("keyword").Observe(time.Since(start).Seconds()) }()

	page, limit = normalizePage(page, limit, s.cfg.DefaultLimit, s.cfg.MaxLimit)
	out := models.Page[models.Content]{Page: page, Limit: limit, Results: []models.Content{}}
	offset, err := s.window(page, limit)
	if err != nil {
		return out, err
	}

	windows, err := s.queryAll(ctx, repository.ContentQuery{
		Keyword:  keyword,
		Statuses: models.VisibleStatuses,
		Sort:     []repository.SortField{{Column: "created_at", Desc: true}},
		Limit:    offset + limit,
	})
	if err != nil {
		return out, err
	}

	var merged []models.Content
	for _, w := range windows {
		out.TotalResults += w.total
		merged = append(merged, w.items...)
	}
	out.TotalPages = models.TotalPagesFor(out.TotalResults, limit)

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Item().CreatedAt.After(merged[j].Item().CreatedAt)
	})

	seen := make(map[contentKey]bool, len(merged))
	passed := 0
	for _, c := range merged {
		if len(out.Results) == limit {
			break
		}
		item := c.Item()
		key := contentKey{item.PostType, item.ID}
		if seen[key] {
			continue
		}
		seen[key] = true
		if passed < offset {
			passed++
			continue
		}
		out.Results = append(out.Results, c)
	}
	return out, nil
}

// SearchByKeywordAndType runs a ranked search. With a post type it is that
// collection's paginated query. Without one, each collection's page is merged by
// score, best first; totalPages and limit are the maxima over the collections and
// totalResults their sum.
func (s *SearchEngine) SearchByKeywordAndType(ctx context.Context, in SearchInput) (out models.Page[models.Content], err error) {
	mode := "all"
	if in.PostType != "" {
		mode = "typed"
	}
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "search.SearchByKeywordAndType",
		attribute.String("mode", mode),
		attribute.String("post_type", string(in.PostType)),
	)
	defer func() {
		observability.EndSpan(span, err)
		observability.SearchLatency.WithLabelValues(mode).Observe(time.Since(start).Seconds())
	}()

	sortFields, err := repository.ParseSort(in.SortBy)
	if err != nil {
		return out, err
	}
	page, limit := normalizePage(in.Page, in.Limit, s.cfg.DefaultLimit, s.cfg.MaxLimit)
	out = models.Page[models.Content]{Page: page, Results: []models.Content{}}
	offset, err := s.window(page, limit)
	if err != nil {
		return out, err
	}
	q := repository.ContentQuery{
		Keyword:  in.Keyword,
		Statuses: models.VisibleStatuses,
		Sort:     sortFields,
		Offset:   offset,
		Limit:    limit,
	}

	if in.PostType != "" {
		store, err := s.stores.For(in.PostType)
		if err != nil {
			return out, err
		}
		items, total, err := store.Query(ctx, q)
		if err != nil {
			return out, err
		}
		out.Results = append(out.Results, items...)
		out.Limit = limit
		out.TotalResults = total
		out.TotalPages = models.TotalPagesFor(total, limit)
	} else {
		windows, err := s.queryAll(ctx, q)
		if err != nil {
			return out, err
		}
		// Every collection is queried with the same clamped limit, so it is also the maximum.
		out.Limit = limit
		for _, w := range windows {
			out.Results = append(out.Results, w.items...)
			out.TotalResults += w.total
			if pages := models.TotalPagesFor(w.total, limit); pages > out.TotalPages {
				out.TotalPages = pages
			}
		}
		sort.SliceStable(out.Results, func(i, j int) bool {
			return out.Results[i].Item().Score > out.Results[j].Item().Score
		})
	}

	if err := s.markFavorites(ctx, in.ViewerID, out.Results); err != nil {
		return out, err
	}
	return out, nil
}

func (s *SearchEngine) markFavorites(ctx context.Context, viewerID uint, results []models.Content) error {
	if viewerID == 0 || s.favorites == nil || len(results) == 0 {
		return nil
	}
	byType := make(map[models.PostType][]uint)
	for _, c := range results {
		item := c.Item()
		byType[item.PostType] = append(byType[item.PostType], item.ID)
	}
	for postType, ids := range byType {
		favorited, err := s.favorites.FavoritedIDs(ctx, viewerID, postType, ids)
		if err != nil {
			return err
		}
		for _, c := range results {
			item := c.Item()
			if item.PostType == postType {
				item.Favorited = favorited[item.ID]
			}
		}
	}
	return nil
}
