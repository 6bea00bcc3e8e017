package models

import (
	"time"

	"gorm.io/gorm"
)

// TaskType indicates how a task is completed/verified
type TaskType string

const (
	TaskTypeSocial TaskType = "social" // follow/like/share actions
	TaskTypeCPA    TaskType = "cpa"    // external offer completion
	TaskTypeSurvey TaskType = "survey"
	TaskTypeOther  TaskType = "other"
)

// TaskStatus indicates the publishing status of a task
type TaskStatus string

const (
	TaskStatusDraft     TaskStatus = "draft"
	TaskStatusScheduled TaskStatus = "scheduled"
	TaskStatusPublished TaskStatus = "published"
	TaskStatusArchived  TaskStatus = "archived"
)

// Task is an admin-authored action users complete for points
type Task struct {
	ID           string     `gorm:"primaryKey;type:uuid" json:"id"`
	Title        string     `gorm:"not null" json:"title"`
	Slug         string     `gorm:"uniqueIndex;not null" json:"slug"`
	Type         TaskType   `gorm:"type:varchar(16);not null;default:'other'" json:"type"`
	Description  string     `gorm:"type:text" json:"description"`
	ImageURL     string     `gorm:"type:text" json:"image_url"`
	TargetURL    string     `gorm:"type:text" json:"target_url"` // where the user goes to do the task
	RewardPoints int64      `gorm:"not null;check:reward_points >= 0" json:"reward_points"`
	IsActive     bool       `gorm:"default:true" json:"is_active"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	PublishAt    *time.Time `json:"publish_at,omitempty"` // set when status = scheduled
	Status       TaskStatus `gorm:"type:varchar(16);not null;default:'draft'" json:"status"`

	Timestamps
}

// Available reports whether the task can currently be rewarded
func (t *Task) Available(now time.Time) bool {
	if t.Status != TaskStatusPublished || !t.IsActive {
		return false
	}
	if t.ExpiresAt != nil && t.ExpiresAt.Before(now) {
		return false
	}
	return true
}

// TaskSubmission = proof that a user completed a specific task.
// The composite unique index on (task_id, external_user_id) is the sole
// idempotency guard against double-claiming a task reward.
type TaskSubmission struct {
	ID             string `gorm:"primaryKey;type:uuid" json:"id"`
	TaskID         string `gorm:"not null;uniqueIndex:idx_task_submitter" json:"task_id"`
	ExternalUserID string `gorm:"not null;uniqueIndex:idx_task_submitter;index" json:"external_user_id"`

	// Free-form payload from the client (answers, handles, tx ids...).
	// Stored opaque and unvalidated; per-type validation is the client's
	// problem until a concrete need shows up.
	Payload  string `gorm:"type:jsonb" json:"payload,omitempty"`
	ProofURL string `gorm:"type:text" json:"proof_url,omitempty"` // R2 URL of uploaded screenshot

	PointsAwarded int64          `gorm:"not null" json:"points_awarded"`
	CreatedAt     time.Time      `json:"created_at" gorm:"autoCreateTime"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}
