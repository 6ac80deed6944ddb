// Package repository provides data access layer implementations for the application.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"marketplace/internal/models"
	"marketplace/internal/observability"
	"marketplace/internal/scoring"

	"gorm.io/gorm"
)

// maxCounterRetries bounds the optimistic lock loop of a single counter update.
const maxCounterRetries = 8

// ErrCounterContention is returned when a counter update kept losing the version race.
var ErrCounterContention = errors.New("counter update lost to concurrent writers")

// counted is a row whose score is derived from its own counters.
type counted interface {
	Get(models.Counter) int
	Add(models.Counter, int)
	ScoreInputs() scoring.ContentInputs
	RowVersion() int
}

// adjustCounter applies delta to one counter of the row id in table and writes the
// recomputed score in the same UPDATE, guarded by the row version. A missing row
// returns nil without error. Counters never go below zero.
func adjustCounter[T any, PT interface {
	*T
	counted
}](ctx context.Context, db *gorm.DB, table string, id uint, counter models.Counter, delta int, now func() time.Time) (PT, error) {
	for attempt := 0; attempt < maxCounterRetries; attempt++ {
		row := PT(new(T))
		err := db.WithContext(ctx).Table(table).Where("id = ?", id).Take(row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}

		if delta < 0 && row.Get(counter) <= 0 {
			return row, nil
		}

		version := row.RowVersion()
		row.Add(counter, delta)
		score := scoring.ContentScore(row.ScoreInputs(), now())

		res := db.WithContext(ctx).Table(table).
			Where("id = ? AND version = ?", id, version).
			Updates(map[string]interface{}{
				string(counter): row.Get(counter),
				"score":         score,
				"version":       version + 1,
				"updated_at":    now(),
			})
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 1 {
			return reload[T, PT](ctx, db, table, id)
		}
		observability.CounterRetries.WithLabelValues(table).Inc()
	}
	return nil, fmt.Errorf("%s #%d %s: %w", table, id, counter, ErrCounterContention)
}

func reload[T any, PT interface {
	*T
	counted
}](ctx context.Context, db *gorm.DB, table string, id uint) (PT, error) {
	row := PT(new(T))
	if err := db.WithContext(ctx).Table(table).Where("id = ?", id).Take(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}
