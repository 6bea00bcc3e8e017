package models

import "time"

// Referral tracks that account B was referred by account R.
// Written exactly once, when the referred user first appears in the sync feed
// with a valid referral code. Never written from a user-facing endpoint.
type Referral struct {
	ID         string `gorm:"primaryKey;type:uuid" json:"id"`
	ReferrerID string `gorm:"index;not null" json:"referrer_id"`       // ExternalUserID
	ReferredID string `gorm:"uniqueIndex;not null" json:"referred_id"` // ExternalUserID

	ReferralCodeUsed string     `gorm:"not null" json:"referral_code_used"`
	BonusPoints      int64      `json:"bonus_points" gorm:"default:0"`
	BonusAwarded     bool       `json:"bonus_awarded" gorm:"default:false"`
	AwardedAt        *time.Time `json:"awarded_at,omitempty"`

	Timestamps
}
