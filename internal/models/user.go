package models

import "time"

// User is the projection of an account the engagement engine reads and scores.
type User struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	Name            string    `gorm:"size:64;not null" json:"name"`
	Email           string    `gorm:"uniqueIndex;not null" json:"email"`
	ImageURL        string    `json:"image_url,omitempty"`
	IsTrusted       bool      `gorm:"not null;default:false" json:"is_trusted"`
	IsEmailVerified bool      `gorm:"not null;default:false" json:"is_email_verified"`
	IsDeleted       bool      `gorm:"not null;default:false;index" json:"-"`
	Score           float64   `gorm:"not null;default:0" json:"score"`
	ReferredByID    *uint     `json:"referred_by_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// CanReceiveNotifications reports whether notifications may be addressed to u.
func (u *User) CanReceiveNotifications() bool {
	return u != nil && !u.IsDeleted && u.IsEmailVerified
}

// RefKind names one of a user's back-reference sets.
type RefKind string

const (
	RefLikes       RefKind = "likes"
	RefDislikes    RefKind = "dislikes"
	RefComments    RefKind = "comments"
	RefFavorites   RefKind = "favorites"
	RefDeals       RefKind = "deals"
	RefFrees       RefKind = "frees"
	RefDiscussions RefKind = "discussions"
	RefPromoCodes  RefKind = "promocodes"
)

// OwnedRefKind returns the per-type set a published item of type p belongs to.
func OwnedRefKind(p PostType) (RefKind, bool) {
	switch p {
	case PostTypeDeal:
		return RefDeals, true
	case PostTypeFree:
		return RefFrees, true
	case PostTypeDiscussion:
		return RefDiscussions, true
	case PostTypePromoCode:
		return RefPromoCodes, true
	}
	return "", false
}

// ReactionRefKind returns the set a reaction of type t is recorded in.
func ReactionRefKind(t LikeType) RefKind {
	if t == LikeTypeDislike {
		return RefDislikes
	}
	return RefLikes
}

// UserRef is one member of a user's back-reference set. The unique index gives set semantics.
type UserRef struct {
	ID        uint      `gorm:"primaryKey"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_user_ref"`
	Kind      RefKind   `gorm:"size:16;not null;uniqueIndex:idx_user_ref"`
	RefID     uint      `gorm:"not null;uniqueIndex:idx_user_ref"`
	RefType   PostType  `gorm:"size:16;not null;uniqueIndex:idx_user_ref"`
	CreatedAt time.Time
}

// PushSubscription is a device endpoint registered for out-of-band delivery.
type PushSubscription struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	Endpoint  string    `gorm:"uniqueIndex;not null" json:"endpoint"`
	P256dh    string    `gorm:"not null" json:"p256dh"`
	Auth      string    `gorm:"not null" json:"auth"`
	CreatedAt time.Time `json:"created_at"`
}
