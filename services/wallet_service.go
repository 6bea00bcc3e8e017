// services/wallet_service.go
package services

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"rewards-wallet-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const storeRetryAttempts = 3

// WalletService is the single writer of points_accounts balances. Every
// credit/debit runs as one transaction: guard-row insert, ledger event
// insert, and a single SQL increment on the account row. Balances are never
// read and then written back — concurrent operations on the same account
// cannot lose updates.
type WalletService struct {
	DB *gorm.DB

	VerificationBonusPoints int64
	DailyBonusPoints        int64
	ReferralBonusPoints     int64
}

func NewWalletService(db *gorm.DB) *WalletService {
	return &WalletService{
		DB:                      db,
		VerificationBonusPoints: envInt64("VERIFICATION_BONUS_POINTS", 20),
		DailyBonusPoints:        envInt64("DAILY_BONUS_POINTS", 5),
		ReferralBonusPoints:     envInt64("REFERRAL_BONUS_POINTS", 0),
	}
}

func envInt64(key string, fallback int64) int64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		log.Printf("⚠️  Invalid %s=%q, using default %d", key, raw, fallback)
		return fallback
	}
	return v
}

// EnsureAccount creates a zero-balance account for the user if none exists
// (idempotent; safe under concurrent sync batches).
func (s *WalletService) EnsureAccount(externalUserID string) (*models.PointsAccount, error) {
	acct := models.PointsAccount{
		ID:             uuid.NewString(),
		ExternalUserID: externalUserID,
	}
	if err := s.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_user_id"}},
		DoNothing: true,
	}).Create(&acct).Error; err != nil && !isUniqueViolation(err) {
		return nil, err
	}

	var out models.PointsAccount
	if err := s.DB.Where("external_user_id = ?", externalUserID).First(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

// CreditTaskReward records a task submission and credits its reward.
// Idempotency comes from the (task_id, external_user_id) unique index on
// submissions; a second submission fails with ErrDuplicateSubmission and
// leaves balances untouched.
func (s *WalletService) CreditTaskReward(externalUserID, taskID, payload, proofURL string) (*models.PointsAccount, error) {
	var updated *models.PointsAccount
	err := withRetry(storeRetryAttempts, func() error {
		return s.DB.Transaction(func(tx *gorm.DB) error {
			var task models.Task
			if err := tx.First(&task, "id = ?", taskID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrTaskUnavailable
				}
				return err
			}
			if !task.Available(time.Now()) {
				return ErrTaskUnavailable
			}

			if err := requireAccount(tx, externalUserID); err != nil {
				return err
			}

			sub := models.TaskSubmission{
				ID:             uuid.NewString(),
				TaskID:         task.ID,
				ExternalUserID: externalUserID,
				Payload:        payload,
				ProofURL:       proofURL,
				PointsAwarded:  task.RewardPoints,
			}
			if err := tx.Create(&sub).Error; err != nil {
				if isUniqueViolation(err) {
					return ErrDuplicateSubmission
				}
				return err
			}

			acct, err := s.credit(tx, externalUserID, models.EventKindTaskEarning, task.RewardPoints, &task.ID, nil, "")
			if err != nil {
				return err
			}
			updated = acct

			log.Printf("💰 Task reward: %s → +%d pts (task=%s, balance=%d)",
				externalUserID, task.RewardPoints, task.Slug, acct.TotalPoints)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// CreditVerificationBonus credits the one-time verification bonus. A second
// claim for the same account fails with ErrAlreadyClaimed.
func (s *WalletService) CreditVerificationBonus(externalUserID string) (*models.PointsAccount, error) {
	return s.creditGuardedBonus(externalUserID, models.EventKindVerificationBonus, "", s.VerificationBonusPoints)
}

// CreditDailyBonus credits the daily login bonus, once per UTC calendar day.
func (s *WalletService) CreditDailyBonus(externalUserID string) (*models.PointsAccount, error) {
	day := time.Now().UTC().Format("2006-01-02")
	return s.creditGuardedBonus(externalUserID, models.EventKindDailyBonus, day, s.DailyBonusPoints)
}

func (s *WalletService) creditGuardedBonus(externalUserID string, kind models.EventKind, periodKey string, amount int64) (*models.PointsAccount, error) {
	var updated *models.PointsAccount
	err := withRetry(storeRetryAttempts, func() error {
		return s.DB.Transaction(func(tx *gorm.DB) error {
			if err := requireAccount(tx, externalUserID); err != nil {
				return err
			}

			claim := models.BonusClaim{
				ID:             uuid.NewString(),
				ExternalUserID: externalUserID,
				Kind:           kind,
				PeriodKey:      periodKey,
				PointsAwarded:  amount,
			}
			if err := tx.Create(&claim).Error; err != nil {
				if isUniqueViolation(err) {
					return ErrAlreadyClaimed
				}
				return err
			}

			acct, err := s.credit(tx, externalUserID, kind, amount, nil, nil, "")
			if err != nil {
				return err
			}
			updated = acct

			log.Printf("🎁 Bonus %s: %s → +%d pts (balance=%d)", kind, externalUserID, amount, acct.TotalPoints)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// CreditReferralBonus writes the referral edge for a newly signed-up user
// and, when a bonus amount is configured, credits the referrer in the same
// transaction. A second call for the same referred user fails with
// ErrAlreadyClaimed (the edge is unique per referred account).
func (s *WalletService) CreditReferralBonus(referrerID, referredID, codeUsed string) (*models.Referral, error) {
	if referrerID == referredID {
		return nil, fmt.Errorf("self-referral rejected for user %s", referredID)
	}

	var edge *models.Referral
	err := withRetry(storeRetryAttempts, func() error {
		return s.DB.Transaction(func(tx *gorm.DB) error {
			if err := requireAccount(tx, referrerID); err != nil {
				return err
			}

			r := models.Referral{
				ID:               uuid.NewString(),
				ReferrerID:       referrerID,
				ReferredID:       referredID,
				ReferralCodeUsed: codeUsed,
				BonusPoints:      s.ReferralBonusPoints,
			}
			if err := tx.Create(&r).Error; err != nil {
				if isUniqueViolation(err) {
					return ErrAlreadyClaimed
				}
				return err
			}

			if s.ReferralBonusPoints > 0 {
				if _, err := s.credit(tx, referrerID, models.EventKindReferralBonus, s.ReferralBonusPoints, nil, &r.ID, ""); err != nil {
					return err
				}
				now := time.Now()
				r.BonusAwarded = true
				r.AwardedAt = &now
				if err := tx.Save(&r).Error; err != nil {
					return err
				}
			}
			edge = &r

			log.Printf("🤝 Referral: %s referred %s (code=%s, bonus=%d)",
				referrerID, referredID, codeUsed, s.ReferralBonusPoints)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return edge, nil
}

// GrantPoints is the manual/admin credit path (also used by CPA postbacks).
// Only earning kinds are accepted.
func (s *WalletService) GrantPoints(externalUserID string, amount int64, kind models.EventKind, reference string) (*models.PointsAccount, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("grant amount must be positive, got %d", amount)
	}
	if kind != models.EventKindTaskEarning && kind != models.EventKindCPAEarning {
		return nil, fmt.Errorf("kind %q is not grantable", kind)
	}

	var updated *models.PointsAccount
	err := withRetry(storeRetryAttempts, func() error {
		return s.DB.Transaction(func(tx *gorm.DB) error {
			if err := requireAccount(tx, externalUserID); err != nil {
				return err
			}
			acct, err := s.credit(tx, externalUserID, kind, amount, nil, nil, reference)
			if err != nil {
				return err
			}
			updated = acct
			log.Printf("🛠️ Manual grant: %s → +%d pts (%s, %s)", externalUserID, amount, kind, reference)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// SpendPoints debits available points. The balance guard lives in the UPDATE
// itself (available_points >= amount), so a concurrent spend can never drive
// the balance negative.
func (s *WalletService) SpendPoints(externalUserID string, amount int64, reference string) (*models.PointsAccount, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("spend amount must be positive, got %d", amount)
	}

	var updated *models.PointsAccount
	err := withRetry(storeRetryAttempts, func() error {
		return s.DB.Transaction(func(tx *gorm.DB) error {
			if err := requireAccount(tx, externalUserID); err != nil {
				return err
			}

			res := tx.Model(&models.PointsAccount{}).
				Where("external_user_id = ? AND available_points >= ?", externalUserID, amount).
				Updates(map[string]interface{}{
					"total_points":     gorm.Expr("total_points - ?", amount),
					"available_points": gorm.Expr("available_points - ?", amount),
					"total_spent":      gorm.Expr("total_spent + ?", amount),
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return ErrInsufficientBalance
			}

			event := models.LedgerEvent{
				ID:             uuid.NewString(),
				ExternalUserID: externalUserID,
				Kind:           models.EventKindPointsSpent,
				Amount:         amount, // positive magnitude; the kind carries the direction
				Reference:      reference,
			}
			if err := tx.Create(&event).Error; err != nil {
				return err
			}

			var acct models.PointsAccount
			if err := tx.Where("external_user_id = ?", externalUserID).First(&acct).Error; err != nil {
				return err
			}
			updated = &acct

			log.Printf("🛒 Spend: %s → -%d pts (%s, balance=%d)", externalUserID, amount, reference, acct.TotalPoints)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// GetSummary returns the account's balance projection. Read-only.
func (s *WalletService) GetSummary(externalUserID string) (*models.PointsAccount, error) {
	var acct models.PointsAccount
	if err := s.DB.Where("external_user_id = ?", externalUserID).First(&acct).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &acct, nil
}

// GetHistory returns paginated ledger events, newest first.
func (s *WalletService) GetHistory(externalUserID string, page, size int) ([]models.LedgerEvent, int64, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	var total int64
	if err := s.DB.Model(&models.LedgerEvent{}).
		Where("external_user_id = ?", externalUserID).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var events []models.LedgerEvent
	if err := s.DB.Where("external_user_id = ?", externalUserID).
		Order("created_at DESC").
		Limit(size).Offset(offset).
		Find(&events).Error; err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

// GetReferrals lists referral edges where the user is the referrer.
func (s *WalletService) GetReferrals(externalUserID string) ([]models.Referral, error) {
	var refs []models.Referral
	err := s.DB.Where("referrer_id = ?", externalUserID).
		Order("created_at DESC").
		Find(&refs).Error
	return refs, err
}

// credit inserts the ledger event and applies the balance increment in one
// UPDATE. Caller must already hold the transaction and have checked the
// account exists. Returns the post-credit account row.
func (s *WalletService) credit(tx *gorm.DB, externalUserID string, kind models.EventKind, amount int64, taskID, referralID *string, reference string) (*models.PointsAccount, error) {
	if amount < 0 {
		return nil, fmt.Errorf("credit amount must be non-negative, got %d", amount)
	}

	event := models.LedgerEvent{
		ID:             uuid.NewString(),
		ExternalUserID: externalUserID,
		Kind:           kind,
		Amount:         amount,
		TaskID:         taskID,
		ReferralID:     referralID,
		Reference:      reference,
	}
	if err := tx.Create(&event).Error; err != nil {
		return nil, err
	}

	res := tx.Model(&models.PointsAccount{}).
		Where("external_user_id = ? AND is_banned = ?", externalUserID, false).
		Updates(map[string]interface{}{
			"total_points":     gorm.Expr("total_points + ?", amount),
			"available_points": gorm.Expr("available_points + ?", amount),
			"total_earned":     gorm.Expr("total_earned + ?", amount),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrAccountNotFound
	}

	var acct models.PointsAccount
	if err := tx.Where("external_user_id = ?", externalUserID).First(&acct).Error; err != nil {
		return nil, err
	}
	return &acct, nil
}

// requireAccount fails fast with ErrAccountNotFound for unknown or banned
// users before any row is written.
func requireAccount(tx *gorm.DB, externalUserID string) error {
	var acct models.PointsAccount
	if err := tx.Select("id", "is_banned").
		Where("external_user_id = ?", externalUserID).
		First(&acct).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrAccountNotFound
		}
		return err
	}
	if acct.IsBanned {
		return ErrAccountNotFound
	}
	return nil
}
