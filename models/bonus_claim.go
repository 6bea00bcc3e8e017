package models

import "time"

// BonusClaim = user claimed a one-shot (or once-per-period) bonus.
// The unique index on (external_user_id, kind, period_key) is what makes
// verification and daily bonuses idempotent: the row insert and the balance
// increment share a transaction, so a second claim hits the constraint and
// the whole credit rolls back.
type BonusClaim struct {
	ID             string    `gorm:"primaryKey;type:uuid" json:"id"`
	ExternalUserID string    `gorm:"not null;uniqueIndex:idx_bonus_once" json:"external_user_id"`
	Kind           EventKind `gorm:"type:varchar(32);not null;uniqueIndex:idx_bonus_once" json:"kind"`
	// "" for lifetime bonuses (verification), "2025-01-30" for daily ones
	PeriodKey string `gorm:"not null;default:'';uniqueIndex:idx_bonus_once" json:"period_key"`

	PointsAwarded int64     `gorm:"not null" json:"points_awarded"`
	ClaimedAt     time.Time `json:"claimed_at" gorm:"autoCreateTime"`
}
