package services

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"rewards-wallet-system/models"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "wallet.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// sqlite allows a single writer; one connection serializes the pool
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.RewardsUser{},
		&models.PointsAccount{},
		&models.LedgerEvent{},
		&models.Task{},
		&models.TaskSubmission{},
		&models.BonusClaim{},
		&models.Referral{},
	))
	return db
}

func newTestWallet(t *testing.T) *WalletService {
	t.Helper()
	return &WalletService{
		DB:                      setupTestDB(t),
		VerificationBonusPoints: 20,
		DailyBonusPoints:        5,
		ReferralBonusPoints:     0,
	}
}

func makeAccount(t *testing.T, w *WalletService) string {
	t.Helper()
	userID := uuid.NewString()
	acct, err := w.EnsureAccount(userID)
	require.NoError(t, err)
	require.Equal(t, int64(0), acct.TotalPoints)
	return userID
}

func makeTask(t *testing.T, db *gorm.DB, points int64) *models.Task {
	t.Helper()
	task := &models.Task{
		ID:           uuid.NewString(),
		Title:        fmt.Sprintf("Task %d", points),
		Slug:         fmt.Sprintf("task-%s", uuid.NewString()[:8]),
		Type:         models.TaskTypeSocial,
		RewardPoints: points,
		IsActive:     true,
		Status:       models.TaskStatusPublished,
	}
	require.NoError(t, db.Create(task).Error)
	return task
}

func requireInvariants(t *testing.T, w *WalletService, userID string) {
	t.Helper()
	acct, err := w.GetSummary(userID)
	require.NoError(t, err)
	require.Equal(t, acct.TotalPoints, acct.TotalEarned-acct.TotalSpent,
		"total_earned - total_spent must equal total_points")
	require.GreaterOrEqual(t, acct.AvailablePoints, int64(0))
	require.LessOrEqual(t, acct.AvailablePoints+acct.PendingPoints, acct.TotalPoints)
}

func TestEnsureAccount_Idempotent(t *testing.T) {
	w := newTestWallet(t)
	userID := uuid.NewString()

	first, err := w.EnsureAccount(userID)
	require.NoError(t, err)
	second, err := w.EnsureAccount(userID)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	var count int64
	require.NoError(t, w.DB.Model(&models.PointsAccount{}).
		Where("external_user_id = ?", userID).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestCreditTaskReward_Summary(t *testing.T) {
	w := newTestWallet(t)
	userID := makeAccount(t, w)
	task := makeTask(t, w.DB, 50)

	acct, err := w.CreditTaskReward(userID, task.ID, `{"handle":"@someone"}`, "")
	require.NoError(t, err)
	require.Equal(t, int64(50), acct.TotalPoints)
	require.Equal(t, int64(50), acct.AvailablePoints)
	require.Equal(t, int64(50), acct.TotalEarned)
	require.Equal(t, int64(0), acct.TotalSpent)

	summary, err := w.GetSummary(userID)
	require.NoError(t, err)
	require.Equal(t, int64(50), summary.TotalPoints)

	var events []models.LedgerEvent
	require.NoError(t, w.DB.Where("external_user_id = ?", userID).Find(&events).Error)
	require.Len(t, events, 1)
	require.Equal(t, models.EventKindTaskEarning, events[0].Kind)
	require.Equal(t, int64(50), events[0].Amount)
	require.NotNil(t, events[0].TaskID)
	require.Equal(t, task.ID, *events[0].TaskID)

	requireInvariants(t, w, userID)
}

func TestCreditTaskReward_Duplicate(t *testing.T) {
	w := newTestWallet(t)
	userID := makeAccount(t, w)
	task := makeTask(t, w.DB, 30)

	_, err := w.CreditTaskReward(userID, task.ID, "", "")
	require.NoError(t, err)

	_, err = w.CreditTaskReward(userID, task.ID, "", "")
	require.ErrorIs(t, err, ErrDuplicateSubmission)

	// Exactly one credit applied, one event written
	acct, err := w.GetSummary(userID)
	require.NoError(t, err)
	require.Equal(t, int64(30), acct.TotalPoints)

	var eventCount int64
	require.NoError(t, w.DB.Model(&models.LedgerEvent{}).
		Where("external_user_id = ?", userID).Count(&eventCount).Error)
	require.Equal(t, int64(1), eventCount)
}

func TestCreditTaskReward_TaskUnavailable(t *testing.T) {
	w := newTestWallet(t)
	userID := makeAccount(t, w)

	t.Run("missing task", func(t *testing.T) {
		_, err := w.CreditTaskReward(userID, uuid.NewString(), "", "")
		require.ErrorIs(t, err, ErrTaskUnavailable)
	})

	t.Run("inactive task", func(t *testing.T) {
		task := makeTask(t, w.DB, 10)
		require.NoError(t, w.DB.Model(task).Update("is_active", false).Error)
		_, err := w.CreditTaskReward(userID, task.ID, "", "")
		require.ErrorIs(t, err, ErrTaskUnavailable)
	})

	t.Run("expired task", func(t *testing.T) {
		task := makeTask(t, w.DB, 10)
		past := time.Now().Add(-time.Hour)
		require.NoError(t, w.DB.Model(task).Update("expires_at", past).Error)
		_, err := w.CreditTaskReward(userID, task.ID, "", "")
		require.ErrorIs(t, err, ErrTaskUnavailable)
	})

	t.Run("draft task", func(t *testing.T) {
		task := makeTask(t, w.DB, 10)
		require.NoError(t, w.DB.Model(task).Update("status", models.TaskStatusDraft).Error)
		_, err := w.CreditTaskReward(userID, task.ID, "", "")
		require.ErrorIs(t, err, ErrTaskUnavailable)
	})

	// No events leaked from any failed attempt
	var eventCount int64
	require.NoError(t, w.DB.Model(&models.LedgerEvent{}).
		Where("external_user_id = ?", userID).Count(&eventCount).Error)
	require.Equal(t, int64(0), eventCount)
}

func TestCreditTaskReward_AccountNotFound(t *testing.T) {
	w := newTestWallet(t)
	task := makeTask(t, w.DB, 10)

	_, err := w.CreditTaskReward(uuid.NewString(), task.ID, "", "")
	require.ErrorIs(t, err, ErrAccountNotFound)

	var subCount int64
	require.NoError(t, w.DB.Model(&models.TaskSubmission{}).Count(&subCount).Error)
	require.Equal(t, int64(0), subCount, "failed credit must not leave a submission behind")
}

func TestCreditTaskReward_BannedAccount(t *testing.T) {
	w := newTestWallet(t)
	userID := makeAccount(t, w)
	task := makeTask(t, w.DB, 10)

	require.NoError(t, w.DB.Model(&models.PointsAccount{}).
		Where("external_user_id = ?", userID).Update("is_banned", true).Error)

	_, err := w.CreditTaskReward(userID, task.ID, "", "")
	require.ErrorIs(t, err, ErrAccountNotFound)
}

func TestCreditTaskReward_ConcurrentDistinctTasks(t *testing.T) {
	w := newTestWallet(t)
	userID := makeAccount(t, w)

	const n = 10
	var wantTotal int64
	tasks := make([]*models.Task, n)
	for i := 0; i < n; i++ {
		tasks[i] = makeTask(t, w.DB, int64((i+1)*10))
		wantTotal += int64((i + 1) * 10)
	}

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = w.CreditTaskReward(userID, tasks[i].ID, "", "")
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "credit %d failed", i)
	}

	// No lost updates: final total is the exact sum, with exactly n events
	acct, err := w.GetSummary(userID)
	require.NoError(t, err)
	require.Equal(t, wantTotal, acct.TotalPoints)
	require.Equal(t, wantTotal, acct.AvailablePoints)
	require.Equal(t, wantTotal, acct.TotalEarned)

	var eventCount int64
	require.NoError(t, w.DB.Model(&models.LedgerEvent{}).
		Where("external_user_id = ?", userID).Count(&eventCount).Error)
	require.Equal(t, int64(n), eventCount)

	requireInvariants(t, w, userID)
}

func TestCreditTaskReward_ConcurrentPair(t *testing.T) {
	w := newTestWallet(t)
	userID := makeAccount(t, w)
	taskA := makeTask(t, w.DB, 30)
	taskB := makeTask(t, w.DB, 40)

	var wg sync.WaitGroup
	var errA, errB error
	wg.Add(2)
	go func() { defer wg.Done(); _, errA = w.CreditTaskReward(userID, taskA.ID, "", "") }()
	go func() { defer wg.Done(); _, errB = w.CreditTaskReward(userID, taskB.ID, "", "") }()
	wg.Wait()

	require.NoError(t, errA)
	require.NoError(t, errB)

	acct, err := w.GetSummary(userID)
	require.NoError(t, err)
	require.Equal(t, int64(70), acct.TotalPoints, "must be exactly 70, never 30 or 40 alone")
}

func TestCreditVerificationBonus_Idempotent(t *testing.T) {
	w := newTestWallet(t)
	userID := makeAccount(t, w)

	acct, err := w.CreditVerificationBonus(userID)
	require.NoError(t, err)
	require.Equal(t, int64(20), acct.TotalPoints)
	require.Equal(t, int64(20), acct.AvailablePoints)

	_, err = w.CreditVerificationBonus(userID)
	require.ErrorIs(t, err, ErrAlreadyClaimed)

	var eventCount int64
	require.NoError(t, w.DB.Model(&models.LedgerEvent{}).
		Where("external_user_id = ? AND kind = ?", userID, models.EventKindVerificationBonus).
		Count(&eventCount).Error)
	require.Equal(t, int64(1), eventCount)

	// Balance reflects exactly one credit
	acct, err = w.GetSummary(userID)
	require.NoError(t, err)
	require.Equal(t, int64(20), acct.TotalPoints)
	requireInvariants(t, w, userID)
}

func TestCreditVerificationBonus_ConcurrentClaims(t *testing.T) {
	w := newTestWallet(t)
	userID := makeAccount(t, w)

	const n = 5
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = w.CreditVerificationBonus(userID)
		}(i)
	}
	wg.Wait()

	var okCount int
	for _, err := range errs {
		if err == nil {
			okCount++
		} else {
			require.ErrorIs(t, err, ErrAlreadyClaimed)
		}
	}
	require.Equal(t, 1, okCount, "exactly one concurrent claim may win")

	acct, err := w.GetSummary(userID)
	require.NoError(t, err)
	require.Equal(t, int64(20), acct.TotalPoints)
}

func TestCreditDailyBonus_OncePerDay(t *testing.T) {
	w := newTestWallet(t)
	userID := makeAccount(t, w)

	acct, err := w.CreditDailyBonus(userID)
	require.NoError(t, err)
	require.Equal(t, int64(5), acct.TotalPoints)

	_, err = w.CreditDailyBonus(userID)
	require.ErrorIs(t, err, ErrAlreadyClaimed)

	// Yesterday's claim row does not block today
	require.NoError(t, w.DB.Model(&models.BonusClaim{}).
		Where("external_user_id = ? AND kind = ?", userID, models.EventKindDailyBonus).
		Update("period_key", time.Now().UTC().AddDate(0, 0, -1).Format("2006-01-02")).Error)

	acct, err = w.CreditDailyBonus(userID)
	require.NoError(t, err)
	require.Equal(t, int64(10), acct.TotalPoints)
}

func TestSpendPoints(t *testing.T) {
	w := newTestWallet(t)
	userID := makeAccount(t, w)
	task := makeTask(t, w.DB, 100)

	_, err := w.CreditTaskReward(userID, task.ID, "", "")
	require.NoError(t, err)

	acct, err := w.SpendPoints(userID, 60, "sticker pack")
	require.NoError(t, err)
	require.Equal(t, int64(40), acct.TotalPoints)
	require.Equal(t, int64(40), acct.AvailablePoints)
	require.Equal(t, int64(100), acct.TotalEarned)
	require.Equal(t, int64(60), acct.TotalSpent)

	// Spent event stores the positive magnitude; direction is the kind
	var event models.LedgerEvent
	require.NoError(t, w.DB.Where("external_user_id = ? AND kind = ?", userID, models.EventKindPointsSpent).
		First(&event).Error)
	require.Equal(t, int64(60), event.Amount)
	require.True(t, event.Kind.Debit())

	requireInvariants(t, w, userID)
}

func TestSpendPoints_InsufficientBalance(t *testing.T) {
	w := newTestWallet(t)
	userID := makeAccount(t, w)
	task := makeTask(t, w.DB, 10)

	_, err := w.CreditTaskReward(userID, task.ID, "", "")
	require.NoError(t, err)

	_, err = w.SpendPoints(userID, 11, "too much")
	require.ErrorIs(t, err, ErrInsufficientBalance)

	// Balance untouched, no points_spent event written
	acct, err := w.GetSummary(userID)
	require.NoError(t, err)
	require.Equal(t, int64(10), acct.AvailablePoints)

	var eventCount int64
	require.NoError(t, w.DB.Model(&models.LedgerEvent{}).
		Where("external_user_id = ? AND kind = ?", userID, models.EventKindPointsSpent).
		Count(&eventCount).Error)
	require.Equal(t, int64(0), eventCount)
	requireInvariants(t, w, userID)
}

func TestSpendPoints_ConcurrentNeverNegative(t *testing.T) {
	w := newTestWallet(t)
	userID := makeAccount(t, w)
	task := makeTask(t, w.DB, 100)

	_, err := w.CreditTaskReward(userID, task.ID, "", "")
	require.NoError(t, err)

	// 5 concurrent spends of 30 against a balance of 100: at most 3 can win
	const n = 5
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = w.SpendPoints(userID, 30, "concurrent spend")
		}(i)
	}
	wg.Wait()

	var okCount int
	for _, err := range errs {
		if err == nil {
			okCount++
		} else {
			require.ErrorIs(t, err, ErrInsufficientBalance)
		}
	}
	require.Equal(t, 3, okCount)

	acct, err := w.GetSummary(userID)
	require.NoError(t, err)
	require.Equal(t, int64(10), acct.AvailablePoints)
	requireInvariants(t, w, userID)
}

func TestCreditReferralBonus_EdgeOnly(t *testing.T) {
	w := newTestWallet(t) // ReferralBonusPoints = 0
	referrer := makeAccount(t, w)
	referred := uuid.NewString()

	edge, err := w.CreditReferralBonus(referrer, referred, "FRIEND-CODE")
	require.NoError(t, err)
	require.Equal(t, referrer, edge.ReferrerID)
	require.Equal(t, referred, edge.ReferredID)
	require.False(t, edge.BonusAwarded)

	// No bonus configured → no event, balance stays zero
	acct, err := w.GetSummary(referrer)
	require.NoError(t, err)
	require.Equal(t, int64(0), acct.TotalPoints)

	// The edge exists exactly once; a replay is rejected
	_, err = w.CreditReferralBonus(referrer, referred, "FRIEND-CODE")
	require.ErrorIs(t, err, ErrAlreadyClaimed)

	var edgeCount int64
	require.NoError(t, w.DB.Model(&models.Referral{}).
		Where("referred_id = ?", referred).Count(&edgeCount).Error)
	require.Equal(t, int64(1), edgeCount)
}

func TestCreditReferralBonus_WithConfiguredBonus(t *testing.T) {
	w := newTestWallet(t)
	w.ReferralBonusPoints = 250
	referrer := makeAccount(t, w)
	referred := uuid.NewString()

	edge, err := w.CreditReferralBonus(referrer, referred, "FRIEND-CODE")
	require.NoError(t, err)
	require.True(t, edge.BonusAwarded)
	require.NotNil(t, edge.AwardedAt)
	require.Equal(t, int64(250), edge.BonusPoints)

	acct, err := w.GetSummary(referrer)
	require.NoError(t, err)
	require.Equal(t, int64(250), acct.TotalPoints)

	var event models.LedgerEvent
	require.NoError(t, w.DB.Where("external_user_id = ? AND kind = ?", referrer, models.EventKindReferralBonus).
		First(&event).Error)
	require.NotNil(t, event.ReferralID)
	require.Equal(t, edge.ID, *event.ReferralID)
	requireInvariants(t, w, referrer)
}

func TestCreditReferralBonus_SelfReferral(t *testing.T) {
	w := newTestWallet(t)
	userID := makeAccount(t, w)

	_, err := w.CreditReferralBonus(userID, userID, "MY-OWN-CODE")
	require.Error(t, err)

	var edgeCount int64
	require.NoError(t, w.DB.Model(&models.Referral{}).Count(&edgeCount).Error)
	require.Equal(t, int64(0), edgeCount)
}

func TestGrantPoints(t *testing.T) {
	w := newTestWallet(t)
	userID := makeAccount(t, w)

	acct, err := w.GrantPoints(userID, 75, models.EventKindCPAEarning, "offer-123 postback")
	require.NoError(t, err)
	require.Equal(t, int64(75), acct.TotalPoints)

	_, err = w.GrantPoints(userID, 75, models.EventKindPointsSpent, "nope")
	require.Error(t, err, "spend kinds are not grantable")

	_, err = w.GrantPoints(userID, 0, models.EventKindCPAEarning, "zero")
	require.Error(t, err)

	_, err = w.GrantPoints(uuid.NewString(), 10, models.EventKindCPAEarning, "ghost")
	require.ErrorIs(t, err, ErrAccountNotFound)
}

func TestGetSummary_AccountNotFound(t *testing.T) {
	w := newTestWallet(t)
	_, err := w.GetSummary(uuid.NewString())
	require.ErrorIs(t, err, ErrAccountNotFound)
}

func TestGetHistory_Pagination(t *testing.T) {
	w := newTestWallet(t)
	userID := makeAccount(t, w)

	for i := 0; i < 5; i++ {
		task := makeTask(t, w.DB, int64(i+1))
		_, err := w.CreditTaskReward(userID, task.ID, "", "")
		require.NoError(t, err)
	}

	events, total, err := w.GetHistory(userID, 1, 2)
	require.NoError(t, err)
	require.Equal(t, int64(5), total)
	require.Len(t, events, 2)

	events, _, err = w.GetHistory(userID, 3, 2)
	require.NoError(t, err)
	require.Len(t, events, 1)

	// Out-of-range parameters fall back to defaults
	events, _, err = w.GetHistory(userID, 0, 0)
	require.NoError(t, err)
	require.Len(t, events, 5)
}
