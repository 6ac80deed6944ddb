package repository

import (
	"fmt"
	"sort"
	"strings"

	"marketplace/internal/models"

	"gorm.io/gorm"
)

// SortField orders a content query by one whitelisted column.
type SortField struct {
	Column string
	Desc   bool
}

// sortColumns whitelists the public sort keys.
var sortColumns = map[string]string{
	"score":         "score",
	"createdAt":     "created_at",
	"totalLikes":    "total_likes",
	"totalComments": "total_comments",
	"totalViews":    "total_views",
}

// DefaultSort ranks by score, best first.
var DefaultSort = []SortField{{Column: "score", Desc: true}}

// ParseSort reads "field:asc|desc" or "-field" terms separated by commas.
func ParseSort(raw string) ([]SortField, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultSort, nil
	}

	var fields []SortField
	for _, term := range strings.Split(raw, ",") {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		desc := false
		name := term
		if strings.HasPrefix(term, "-") {
			desc = true
			name = term[1:]
		} else if key, dir, ok := strings.Cut(term, ":"); ok {
			name = key
			switch strings.ToLower(dir) {
			case "asc":
			case "desc":
				desc = true
			default:
				return nil, models.NewValidationError(fmt.Sprintf("Invalid sort direction %q", dir))
			}
		}
		column, ok := sortColumns[name]
		if !ok {
			return nil, models.NewValidationError(fmt.Sprintf("Cannot sort by %q", name))
		}
		fields = append(fields, SortField{Column: column, Desc: desc})
	}
	if len(fields) == 0 {
		return DefaultSort, nil
	}
	return fields, nil
}

// ContentQuery selects a window of content items.
type ContentQuery struct {
	Keyword  string
	Statuses []models.Status
	Filters  models.SearchQuery
	Sort     []SortField
	Offset   int
	Limit    int
}

func applySort(tx *gorm.DB, fields []SortField) *gorm.DB {
	for _, f := range fields {
		dir := "ASC"
		if f.Desc {
			dir = "DESC"
		}
		tx = tx.Order(f.Column + " " + dir)
	}
	return tx.Order("id DESC")
}

// applyKeyword matches the keyword as a case-insensitive substring of any text column.
func applyKeyword(tx *gorm.DB, keyword string) *gorm.DB {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return tx
	}
	pattern := "%" + escapeLike(strings.ToLower(keyword)) + "%"

	clauses := make([]string, 0, len(models.KeywordColumns))
	args := make([]interface{}, 0, len(models.KeywordColumns))
	for _, col := range models.KeywordColumns {
		clauses = append(clauses, "LOWER("+col+") LIKE ? ESCAPE '\\'")
		args = append(args, pattern)
	}
	return tx.Where("("+strings.Join(clauses, " OR ")+")", args...)
}

// applyFilters narrows by the stored query document. ok is false when the document
// holds a key no column answers to.
func applyFilters(tx *gorm.DB, q models.SearchQuery) (*gorm.DB, bool) {
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := q[k]
		if k == models.FilterKeyword {
			tx = applyKeyword(tx, v)
			continue
		}
		col, ok := models.FilterColumns[k]
		if !ok {
			return tx, false
		}
		tx = tx.Where("LOWER("+col+") = ?", strings.ToLower(v))
	}
	return tx, true
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// ValidateFilters rejects query documents carrying unknown keys.
func ValidateFilters(q models.SearchQuery) error {
	for k := range q {
		if k == models.FilterKeyword {
			continue
		}
		if _, ok := models.FilterColumns[k]; !ok {
			return models.NewValidationError(fmt.Sprintf("Unknown filter %q", k))
		}
	}
	return nil
}
