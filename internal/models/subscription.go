package models

import (
	"encoding/json"
	"sort"
	"time"
)

// Filter keys accepted in a stored search query.
const (
	FilterCategory    = "category"
	FilterSubCategory = "subCategory"
	FilterBrand       = "brand"
	FilterRegion      = "region"
	FilterCity        = "city"
	FilterKeyword     = "keyword"
)

// FilterColumns maps equality filter keys to their columns.
var FilterColumns = map[string]string{
	FilterCategory:    "category",
	FilterSubCategory: "sub_category",
	FilterBrand:       "brand",
	FilterRegion:      "region",
	FilterCity:        "city",
}

// KeywordColumns are the text columns matched by a keyword.
var KeywordColumns = []string{"title", "category", "sub_category", "description", "brand", "region", "city", "tags"}

// SearchQuery is the stored filter document of a subscription.
type SearchQuery map[string]string

// Canonical returns a stable encoding used to compare two queries.
func (q SearchQuery) Canonical() string {
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	ordered := make([][2]string, 0, len(keys))
	for _, k := range keys {
		ordered = append(ordered, [2]string{k, q[k]})
	}
	raw, _ := json.Marshal(ordered)
	return string(raw)
}

// SearchSubscription is a user's standing saved search ("alert").
type SearchSubscription struct {
	ID                uint        `gorm:"primaryKey" json:"id"`
	UserID            uint        `gorm:"not null;index" json:"user_id"`
	Type              PostType    `gorm:"size:16;not null;index:idx_subscription_type" json:"type"`
	Query             SearchQuery `gorm:"serializer:json;type:text" json:"query"`
	QueryKey          string      `gorm:"type:text;index" json:"-"`
	WithNotifications bool        `gorm:"not null;index:idx_subscription_type" json:"with_notifications"`
	Merchand          string      `gorm:"size:64;index" json:"merchand,omitempty"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

// AlertDelivery records that a subscription has been notified about an item.
type AlertDelivery struct {
	ID             uint      `gorm:"primaryKey"`
	SubscriptionID uint      `gorm:"not null;uniqueIndex:idx_alert_delivery"`
	ItemID         uint      `gorm:"not null;uniqueIndex:idx_alert_delivery"`
	ItemType       PostType  `gorm:"size:16;not null;uniqueIndex:idx_alert_delivery"`
	CreatedAt      time.Time
}
