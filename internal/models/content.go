// Package models contains data structures for the application's domain models.
package models

import (
	"fmt"
	"strings"
	"time"

	"marketplace/internal/scoring"
)

// PostType is the polymorphic type tag stored next to every post reference.
type PostType string

const (
	PostTypeDeal       PostType = "Deal"
	PostTypeFree       PostType = "Free"
	PostTypeDiscussion PostType = "Discussion"
	PostTypePromoCode  PostType = "PromoCode"
	PostTypeComment    PostType = "Comment"
	PostTypeCatalogue  PostType = "Catalogue"
)

// ContentTypes lists the four publishable content variants.
var ContentTypes = []PostType{PostTypeDeal, PostTypeFree, PostTypeDiscussion, PostTypePromoCode}

// ReactableTypes lists every type a like or dislike may target.
var ReactableTypes = []PostType{PostTypeDeal, PostTypeFree, PostTypeDiscussion, PostTypePromoCode, PostTypeComment}

// IsContent reports whether p names one of the four content variants.
func (p PostType) IsContent() bool {
	switch p {
	case PostTypeDeal, PostTypeFree, PostTypeDiscussion, PostTypePromoCode:
		return true
	}
	return false
}

// IsReactable reports whether likes and dislikes may target p.
func (p PostType) IsReactable() bool {
	return p.IsContent() || p == PostTypeComment
}

// Table returns the collection backing a content variant.
func (p PostType) Table() string {
	switch p {
	case PostTypeDeal:
		return "deals"
	case PostTypeFree:
		return "frees"
	case PostTypeDiscussion:
		return "discussions"
	case PostTypePromoCode:
		return "promo_codes"
	case PostTypeComment:
		return "comments"
	}
	return ""
}

// URLPrefix is the canonical path segment of a content variant.
func (p PostType) URLPrefix() string {
	switch p {
	case PostTypeDeal:
		return "/bons-plans"
	case PostTypeFree:
		return "/gratuit"
	case PostTypeDiscussion:
		return "/discussions"
	case PostTypePromoCode:
		return "/codes-promo"
	}
	return ""
}

// ParsePostType validates a raw type tag.
func ParsePostType(raw string) (PostType, error) {
	for _, p := range ReactableTypes {
		if strings.EqualFold(raw, string(p)) {
			return p, nil
		}
	}
	if strings.EqualFold(raw, string(PostTypeCatalogue)) {
		return PostTypeCatalogue, nil
	}
	return "", NewValidationError(fmt.Sprintf("Invalid post type %q", raw))
}

// Status is the lifecycle state of a content item.
type Status string

const (
	StatusPublished   Status = "published"
	StatusUnpublished Status = "unpublished"
	StatusExpired     Status = "expired"
	StatusBanned      Status = "banned"
	StatusDeleted     Status = "deleted"
)

// OwnerCanSet reports whether the content owner may move an item from s to next.
// Expiry is time-driven and banning is reserved to moderators.
func (s Status) OwnerCanSet(next Status) bool {
	switch s {
	case StatusPublished:
		return next == StatusUnpublished || next == StatusDeleted
	case StatusUnpublished:
		return next == StatusPublished || next == StatusDeleted
	case StatusExpired:
		return next == StatusDeleted
	}
	return false
}

// VisibleStatuses are the statuses listed by public queries.
var VisibleStatuses = []Status{StatusPublished, StatusExpired}

// Counter names a mutable engagement counter column.
type Counter string

const (
	CounterLikes    Counter = "total_likes"
	CounterDislikes Counter = "total_dislikes"
	CounterComments Counter = "total_comments"
	CounterReports  Counter = "total_reports"
	CounterViews    Counter = "total_views"
)

// ContentItem holds the fields shared by every content variant.
type ContentItem struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	UserID        uint       `gorm:"not null;index" json:"user_id"`
	PostType      PostType   `gorm:"size:16;not null;index" json:"post_type"`
	Title         string     `gorm:"size:100;not null;index" json:"title"`
	Description   string     `gorm:"type:text;not null" json:"description"`
	Category      string     `gorm:"index" json:"category"`
	SubCategory   string     `gorm:"index" json:"sub_category"`
	Brand         string     `gorm:"size:50;index" json:"brand,omitempty"`
	Region        string     `gorm:"index" json:"region,omitempty"`
	City          string     `gorm:"index" json:"city,omitempty"`
	Tags          string     `json:"tags,omitempty"`
	SerialNumber  string     `gorm:"index" json:"serial_number"`
	URL           string     `json:"url"`
	Status        Status     `gorm:"size:16;not null;default:published;index" json:"status"`
	IsTrusted     bool       `gorm:"not null;default:false;index" json:"is_trusted"`
	TotalLikes    int        `gorm:"not null;default:0" json:"total_likes"`
	TotalDislikes int        `gorm:"not null;default:0" json:"total_dislikes"`
	TotalComments int        `gorm:"not null;default:0" json:"total_comments"`
	TotalReports  int        `gorm:"not null;default:0" json:"total_reports"`
	TotalViews    int        `gorm:"not null;default:0" json:"total_views"`
	Score         float64    `gorm:"not null;default:0;index" json:"score"`
	Version       int        `gorm:"not null;default:0" json:"-"`
	EndDate       *time.Time `gorm:"index" json:"end_date,omitempty"`
	CreatedAt     time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	// Favorited is computed for the requesting viewer.
	Favorited bool `gorm:"-" json:"favorited"`
}

// Content is implemented by every content variant through the embedded ContentItem.
type Content interface {
	Item() *ContentItem
}

// Item returns the shared fields.
func (c *ContentItem) Item() *ContentItem { return c }

// Get returns the value of a counter.
func (c *ContentItem) Get(counter Counter) int {
	switch counter {
	case CounterLikes:
		return c.TotalLikes
	case CounterDislikes:
		return c.TotalDislikes
	case CounterComments:
		return c.TotalComments
	case CounterReports:
		return c.TotalReports
	case CounterViews:
		return c.TotalViews
	}
	return 0
}

// Add adjusts a counter in memory.
func (c *ContentItem) Add(counter Counter, delta int) {
	switch counter {
	case CounterLikes:
		c.TotalLikes += delta
	case CounterDislikes:
		c.TotalDislikes += delta
	case CounterComments:
		c.TotalComments += delta
	case CounterReports:
		c.TotalReports += delta
	case CounterViews:
		c.TotalViews += delta
	}
}

// ScoreInputs returns the fields the ranking score is derived from.
func (c *ContentItem) ScoreInputs() scoring.ContentInputs {
	return scoring.ContentInputs{
		IsTrusted: c.IsTrusted,
		CreatedAt: c.CreatedAt,
		Likes:     c.TotalLikes,
		Dislikes:  c.TotalDislikes,
		Comments:  c.TotalComments,
		Reports:   c.TotalReports,
		Views:     c.TotalViews,
	}
}

// RowVersion returns the optimistic lock version.
func (c *ContentItem) RowVersion() int { return c.Version }

// Deal is a bargain ("bon plan") with pricing.
type Deal struct {
	ContentItem
	Link         string     `json:"link,omitempty"`
	Price        *float64   `json:"price,omitempty"`
	SalePrice    *float64   `gorm:"index" json:"sale_price,omitempty"`
	StartDate    *time.Time `json:"start_date,omitempty"`
	FreeDelivery bool       `json:"free_delivery"`
}

// TableName pins the deal collection.
func (Deal) TableName() string { return PostTypeDeal.Table() }

// Free is a free offer.
type Free struct {
	ContentItem
	Link  string `json:"link,omitempty"`
	Stock *int   `json:"stock,omitempty"`
}

// TableName pins the free offer collection.
func (Free) TableName() string { return PostTypeFree.Table() }

// Discussion is a community thread.
type Discussion struct {
	ContentItem
}

// TableName pins the discussion collection.
func (Discussion) TableName() string { return PostTypeDiscussion.Table() }

// PromoCode is a vendor discount code.
type PromoCode struct {
	ContentItem
	Code     string `gorm:"size:64;not null" json:"code,omitempty"`
	Discount string `json:"discount,omitempty"`
	Link     string `json:"link,omitempty"`
}

// TableName pins the promo code collection.
func (PromoCode) TableName() string { return PostTypePromoCode.Table() }

// NewContent returns an empty variant for a post type.
func NewContent(p PostType) (Content, error) {
	switch p {
	case PostTypeDeal:
		return &Deal{ContentItem: ContentItem{PostType: p}}, nil
	case PostTypeFree:
		return &Free{ContentItem: ContentItem{PostType: p}}, nil
	case PostTypeDiscussion:
		return &Discussion{ContentItem: ContentItem{PostType: p}}, nil
	case PostTypePromoCode:
		return &PromoCode{ContentItem: ContentItem{PostType: p}}, nil
	}
	return nil, NewValidationError(fmt.Sprintf("%s is not a content type", p))
}

// Page is the paginated result envelope.
type Page[T any] struct {
	Results      []T   `json:"results"`
	Page         int   `json:"page"`
	Limit        int   `json:"limit"`
	TotalPages   int   `json:"totalPages"`
	TotalResults int64 `json:"totalResults"`
}

// TotalPagesFor computes the page count for total rows split by limit.
func TotalPagesFor(total int64, limit int) int {
	if limit <= 0 || total <= 0 {
		return 0
	}
	return int((total + int64(limit) - 1) / int64(limit))
}
