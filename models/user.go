package models

import (
	"time"

	"gorm.io/gorm"
)

// RewardsUser is a local snapshot of user data needed for the wallet surface.
// Owned and managed solely by the rewards service.
// Populated via sync worker from the Profile Service's user feed.
type RewardsUser struct {
	ID                string  `gorm:"primaryKey;type:uuid" json:"id"`
	ExternalUserID    string  `gorm:"uniqueIndex;not null" json:"external_user_id"` // the profile service's UUID
	Username          string  `gorm:"index;not null" json:"username"`
	Email             string  `json:"email,omitempty"`
	DisplayName       string  `gorm:"index" json:"display_name,omitempty"` // ASCII-folded, for search
	ProfilePictureURL *string `json:"profile_picture_url,omitempty"`

	// Referral attribution as reported by the profile service
	ReferralCode string  `gorm:"index" json:"referral_code"`
	ReferredByID *string `json:"referred_by_id,omitempty"`

	EmailVerified bool `json:"email_verified" gorm:"default:false"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`

	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
