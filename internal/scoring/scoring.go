// Package scoring computes ranking scores for content items and users.
package scoring

import (
	"math"
	"time"
)

const day = 24 * time.Hour

// ContentInputs are the fields a content score is derived from.
type ContentInputs struct {
	IsTrusted bool
	CreatedAt time.Time
	Likes     int
	Dislikes  int
	Comments  int
	Reports   int
	Views     int
}

// UserInputs are the back-reference cardinalities a user score is derived from.
type UserInputs struct {
	IsTrusted    bool
	CreatedAt    time.Time
	Likes        int
	Dislikes     int
	Comments     int
	Deals        int
	Frees        int
	PromoCodes   int
	Discussions  int
	CommentLikes int
}

// AgeDays returns whole days elapsed since createdAt, clamped at zero.
func AgeDays(createdAt, now time.Time) float64 {
	if createdAt.IsZero() {
		return 0
	}
	days := math.Floor(float64(now.Sub(createdAt)) / float64(day))
	if math.IsNaN(days) || days < 0 {
		return 0
	}
	return days
}

// ContentScore ranks a content item or comment. Trusted authorship adds a flat
// bonus and amplifies every term by 10%.
func ContentScore(in ContentInputs, now time.Time) float64 {
	weight, bonus := 1.0, 0.0
	if in.IsTrusted {
		weight, bonus = 1.1, 0.5
	}

	return bonus -
		AgeDays(in.CreatedAt, now)*0.1*weight +
		float64(in.Likes)*0.1*weight +
		float64(in.Dislikes)*(-0.1*weight) +
		float64(in.Reports)*(-1*weight) +
		float64(in.Comments)*0.2*weight +
		float64(in.Views)*0.05*weight
}

// UserScore ranks a user's reputation. Likes and dislikes both count as engagement volume.
func UserScore(in UserInputs, now time.Time) float64 {
	weight := 1.0
	if in.IsTrusted {
		weight = 1.5
	}

	sum := float64(in.Likes)*0.15 +
		float64(in.Dislikes)*0.15 +
		float64(in.Comments)*0.2 +
		float64(in.Deals)*0.1 +
		float64(in.Frees)*0.1 +
		float64(in.PromoCodes)*0.1 +
		float64(in.Discussions)*0.1 +
		float64(in.CommentLikes)*0.4 +
		AgeDays(in.CreatedAt, now)*0.1

	return sum * weight
}

// ReferralBonus is the starting score of a user referred by the given referrer.
func ReferralBonus(referrerTrusted bool) int {
	if referrerTrusted {
		return 20
	}
	return 10
}
