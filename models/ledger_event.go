package models

import "time"

// EventKind identifies what a ledger event credits or debits
type EventKind string

const (
	EventKindTaskEarning       EventKind = "task_earning"
	EventKindCPAEarning        EventKind = "cpa_earning"
	EventKindReferralBonus     EventKind = "referral_bonus"
	EventKindVerificationBonus EventKind = "verification_bonus"
	EventKindDailyBonus        EventKind = "daily_bonus"
	EventKindPointsSpent       EventKind = "points_spent"
)

// Debit reports whether the kind removes points. Amounts are stored as
// positive magnitudes; direction comes from the kind, never the sign.
func (k EventKind) Debit() bool {
	return k == EventKindPointsSpent
}

// LedgerEvent is an immutable record of one balance-changing action.
// Append-only: rows are created inside the same transaction as the balance
// update and never modified afterwards.
type LedgerEvent struct {
	ID             string    `gorm:"primaryKey;type:uuid" json:"id"`
	ExternalUserID string    `gorm:"index;not null" json:"external_user_id"`
	Kind           EventKind `gorm:"type:varchar(32);not null;index" json:"kind"`
	Amount         int64     `gorm:"not null" json:"amount"` // positive magnitude

	// Optional references back to the originating row
	TaskID     *string `gorm:"index" json:"task_id,omitempty"`
	ReferralID *string `gorm:"index" json:"referral_id,omitempty"`
	Reference  string  `json:"reference,omitempty"` // free-form, e.g. spend reason

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime;index"`
}
