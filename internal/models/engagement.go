package models

import (
	"time"

	"marketplace/internal/scoring"

	"gorm.io/gorm"
)

// LikeType distinguishes a like from a dislike.
type LikeType string

const (
	LikeTypeLike    LikeType = "LIKE"
	LikeTypeDislike LikeType = "DISLIKE"
)

// Opposite returns the other reaction type.
func (t LikeType) Opposite() LikeType {
	if t == LikeTypeLike {
		return LikeTypeDislike
	}
	return LikeTypeLike
}

// Counter returns the counter column a reaction of this type drives.
func (t LikeType) Counter() Counter {
	if t == LikeTypeDislike {
		return CounterDislikes
	}
	return CounterLikes
}

// Comment is a polymorphic child of a content item.
type Comment struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	UserID        uint           `gorm:"not null;index" json:"user_id"`
	PostID        uint           `gorm:"not null;index:idx_comment_post" json:"post_id"`
	PostType      PostType       `gorm:"size:16;not null;index:idx_comment_post" json:"post_type"`
	Text          string         `gorm:"type:text;not null" json:"text"`
	IsTrusted     bool           `gorm:"not null;default:false" json:"is_trusted"`
	TotalLikes    int            `gorm:"not null;default:0" json:"total_likes"`
	TotalDislikes int            `gorm:"not null;default:0" json:"total_dislikes"`
	TotalReports  int            `gorm:"not null;default:0" json:"total_reports"`
	Score         float64        `gorm:"not null;default:0" json:"score"`
	Version       int            `gorm:"not null;default:0" json:"-"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}

// Get returns the value of a counter. Comments carry no comment or view counters.
func (c *Comment) Get(counter Counter) int {
	switch counter {
	case CounterLikes:
		return c.TotalLikes
	case CounterDislikes:
		return c.TotalDislikes
	case CounterReports:
		return c.TotalReports
	}
	return 0
}

// Add adjusts a counter in memory.
func (c *Comment) Add(counter Counter, delta int) {
	switch counter {
	case CounterLikes:
		c.TotalLikes += delta
	case CounterDislikes:
		c.TotalDislikes += delta
	case CounterReports:
		c.TotalReports += delta
	}
}

// ScoreInputs returns the fields the ranking score is derived from.
func (c *Comment) ScoreInputs() scoring.ContentInputs {
	return scoring.ContentInputs{
		IsTrusted: c.IsTrusted,
		CreatedAt: c.CreatedAt,
		Likes:     c.TotalLikes,
		Dislikes:  c.TotalDislikes,
		Reports:   c.TotalReports,
	}
}

// RowVersion returns the optimistic lock version.
func (c *Comment) RowVersion() int { return c.Version }

// Like is a user's reaction to a content item or a comment.
type Like struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_like_target" json:"user_id"`
	PostID    uint      `gorm:"not null;uniqueIndex:idx_like_target" json:"post_id"`
	PostType  PostType  `gorm:"size:16;not null;uniqueIndex:idx_like_target" json:"post_type"`
	Type      LikeType  `gorm:"size:8;not null" json:"type"`
	CreatedAt time.Time `json:"created_at"`
}

// Favorite bookmarks a content item for a user.
type Favorite struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_favorite_target" json:"user_id"`
	PostID    uint      `gorm:"not null;uniqueIndex:idx_favorite_target" json:"post_id"`
	PostType  PostType  `gorm:"size:16;not null;uniqueIndex:idx_favorite_target" json:"post_type"`
	CreatedAt time.Time `json:"created_at"`
}

// EngagementKind is the action carried by an engagement event.
type EngagementKind string

const (
	EngagementLike     EngagementKind = "like"
	EngagementDislike  EngagementKind = "dislike"
	EngagementComment  EngagementKind = "comment"
	EngagementFavorite EngagementKind = "favorite"
)

// LikeType maps a reaction kind to its stored type.
func (k EngagementKind) LikeType() (LikeType, bool) {
	switch k {
	case EngagementLike:
		return LikeTypeLike, true
	case EngagementDislike:
		return LikeTypeDislike, true
	}
	return "", false
}
