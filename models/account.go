package models

import (
	"time"

	"gorm.io/gorm"
)

// PointsAccount holds a user's point balances (denormalized for fast reads).
// Mutated only through WalletService ledger operations — handlers never
// write these columns directly.
//
// Intended invariants:
//
//	total_earned - total_spent == total_points
//	available_points + pending_points <= total_points
type PointsAccount struct {
	ID             string `gorm:"primaryKey;type:uuid" json:"id"`
	ExternalUserID string `gorm:"uniqueIndex;not null" json:"external_user_id"` // links to profile service

	TotalPoints     int64 `json:"total_points" gorm:"default:0"`
	AvailablePoints int64 `json:"available_points" gorm:"default:0"`
	PendingPoints   int64 `json:"pending_points" gorm:"default:0"`
	TotalEarned     int64 `json:"total_earned" gorm:"default:0"`
	TotalSpent      int64 `json:"total_spent" gorm:"default:0"`

	// Soft-disable; a banned account keeps its history but takes no credits.
	IsBanned bool `json:"is_banned" gorm:"default:false"`

	Timestamps
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}
