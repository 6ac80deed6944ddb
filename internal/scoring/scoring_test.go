package scoring

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

const epsilon = 1e-9

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func TestContentScore(t *testing.T) {
	tests := []struct {
		name     string
		in       ContentInputs
		expected float64
	}{
		{"fresh untrusted item", ContentInputs{CreatedAt: now}, 0},
		{"fresh trusted item gets bonus", ContentInputs{IsTrusted: true, CreatedAt: now}, 0.5},
		{"one like", ContentInputs{CreatedAt: now, Likes: 1}, 0.1},
		{"one report", ContentInputs{CreatedAt: now, Reports: 1}, -1},
		{"mixed counters", ContentInputs{CreatedAt: now, Likes: 3, Dislikes: 1, Comments: 2, Views: 10}, 0.3 - 0.1 + 0.4 + 0.5},
		{"three days old", ContentInputs{CreatedAt: now.Add(-3*day - time.Hour)}, -0.3},
		{"trusted amplifies", ContentInputs{IsTrusted: true, CreatedAt: now, Likes: 10}, 0.5 + 1.1},
		{"future creation clamps age", ContentInputs{CreatedAt: now.Add(48 * time.Hour), Likes: 1}, 0.1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, ContentScore(tt.in, now), epsilon)
		})
	}
}

func TestContentScore_Monotonic(t *testing.T) {
	base := ContentInputs{CreatedAt: now.Add(-2 * day), Likes: 5, Dislikes: 2, Comments: 3, Reports: 1, Views: 20}
	score := ContentScore(base, now)

	older := base
	older.CreatedAt = base.CreatedAt.Add(-5 * day)
	assert.LessOrEqual(t, ContentScore(older, now), score)

	for _, bump := range []func(*ContentInputs){
		func(in *ContentInputs) { in.Likes++ },
		func(in *ContentInputs) { in.Comments++ },
		func(in *ContentInputs) { in.Views++ },
	} {
		in := base
		bump(&in)
		assert.Greater(t, ContentScore(in, now), score)
	}

	for _, bump := range []func(*ContentInputs){
		func(in *ContentInputs) { in.Dislikes++ },
		func(in *ContentInputs) { in.Reports++ },
	} {
		in := base
		bump(&in)
		assert.Less(t, ContentScore(in, now), score)
	}
}

func TestAgeDays(t *testing.T) {
	assert.Equal(t, 0.0, AgeDays(time.Time{}, now))
	assert.Equal(t, 0.0, AgeDays(now.Add(time.Hour), now))
	assert.Equal(t, 1.0, AgeDays(now.Add(-25*time.Hour), now))
	assert.False(t, math.IsNaN(AgeDays(now, now)))
}

func TestUserScore(t *testing.T) {
	in := UserInputs{
		CreatedAt:    now.Add(-10 * day),
		Likes:        2,
		Dislikes:     2,
		Comments:     5,
		Deals:        1,
		Frees:        1,
		PromoCodes:   1,
		Discussions:  1,
		CommentLikes: 3,
	}
	expected := 0.3 + 0.3 + 1.0 + 0.4 + 1.2 + 1.0
	assert.InDelta(t, expected, UserScore(in, now), epsilon)

	in.IsTrusted = true
	assert.InDelta(t, expected*1.5, UserScore(in, now), epsilon)
}

func TestUserScore_DislikesCountPositively(t *testing.T) {
	without := UserScore(UserInputs{CreatedAt: now}, now)
	with := UserScore(UserInputs{CreatedAt: now, Dislikes: 4}, now)
	assert.Greater(t, with, without)
}

func TestReferralBonus(t *testing.T) {
	assert.Equal(t, 20, ReferralBonus(true))
	assert.Equal(t, 10, ReferralBonus(false))
}
