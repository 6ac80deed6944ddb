package models

import (
	"fmt"
	"net/url"
	"time"
)

// NotificationType tags the event a notification was produced for.
type NotificationType string

const (
	NotificationSystem     NotificationType = "SYSTEM_NOTIFICATION"
	NotificationLike       NotificationType = "LIKE_NOTIFICATION"
	NotificationDislike    NotificationType = "DISLIKE_NOTIFICATION"
	NotificationComment    NotificationType = "COMMENT_NOTIFICATION"
	NotificationDeal       NotificationType = "DEAL_NOTIFICATION"
	NotificationFree       NotificationType = "FREE_NOTIFICATION"
	NotificationPromoCode  NotificationType = "PROMOCODE_NOTIFICATION"
	NotificationDiscussion NotificationType = "DISCUSSION_NOTIFICATION"
	NotificationCatalogue  NotificationType = "CATALOGUE_NOTIFICATION"
)

// AlertNotificationType returns the notification type for a newly published item of type p.
func AlertNotificationType(p PostType) NotificationType {
	switch p {
	case PostTypeDeal:
		return NotificationDeal
	case PostTypeFree:
		return NotificationFree
	case PostTypePromoCode:
		return NotificationPromoCode
	case PostTypeDiscussion:
		return NotificationDiscussion
	case PostTypeCatalogue:
		return NotificationCatalogue
	}
	return NotificationSystem
}

// Notification is a persisted message addressed to one receiver.
type Notification struct {
	ID         uint             `gorm:"primaryKey" json:"id"`
	SenderID   *uint            `gorm:"index" json:"sender_id,omitempty"`
	ReceiverID uint             `gorm:"not null;index:idx_notification_receiver" json:"receiver_id"`
	Title      string           `gorm:"not null" json:"title"`
	URL        string           `json:"url"`
	Type       NotificationType `gorm:"size:32;not null;default:SYSTEM_NOTIFICATION" json:"type"`
	ImageURL   string           `json:"image_url,omitempty"`
	IsSeen     bool             `gorm:"not null;default:false;index:idx_notification_receiver" json:"is_seen"`
	CreatedAt  time.Time        `gorm:"index" json:"created_at"`
}

// Catalogue is a vendor catalogue announcement.
type Catalogue struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Merchand  string    `gorm:"size:64;not null;index" json:"merchand"`
	Label     string    `gorm:"not null" json:"label"`
	Category  string    `json:"category,omitempty"`
	ImageURL  string    `json:"image_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// URL returns the canonical path of the catalogue.
func (c *Catalogue) URL() string {
	return fmt.Sprintf("/catalogues/%s/%d", url.PathEscape(c.Merchand), c.ID)
}
