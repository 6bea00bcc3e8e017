package services

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestIsUniqueViolation(t *testing.T) {
	require.False(t, isUniqueViolation(nil))
	require.False(t, isUniqueViolation(errors.New("some other db error")))

	require.True(t, isUniqueViolation(gorm.ErrDuplicatedKey))
	// postgres 23505
	require.True(t, isUniqueViolation(errors.New(
		`ERROR: duplicate key value violates unique constraint "idx_task_submitter" (SQLSTATE 23505)`)))
	// sqlite
	require.True(t, isUniqueViolation(errors.New(
		"UNIQUE constraint failed: task_submissions.task_id, task_submissions.external_user_id")))
}

func TestIsTransient(t *testing.T) {
	require.False(t, isTransient(nil))
	require.False(t, isTransient(ErrAccountNotFound))
	require.False(t, isTransient(errors.New("constraint violation")))

	require.True(t, isTransient(driver.ErrBadConn))
	require.True(t, isTransient(&net.OpError{Op: "dial", Err: errors.New("timeout")}))
	require.True(t, isTransient(fmt.Errorf("query failed: %w", errors.New("connection refused"))))
	require.True(t, isTransient(errors.New("write tcp: broken pipe")))
}

func TestWithRetry_StopsOnFinalErrors(t *testing.T) {
	calls := 0
	err := withRetry(3, func() error {
		calls++
		return ErrInsufficientBalance
	})
	require.ErrorIs(t, err, ErrInsufficientBalance)
	require.Equal(t, 1, calls, "non-transient errors must not be retried")
}

func TestWithRetry_RecoversFromTransient(t *testing.T) {
	calls := 0
	err := withRetry(3, func() error {
		calls++
		if calls == 1 {
			return driver.ErrBadConn
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, calls)
}

func TestWithRetry_GivesUpAfterAttempts(t *testing.T) {
	calls := 0
	err := withRetry(3, func() error {
		calls++
		return driver.ErrBadConn
	})
	require.ErrorIs(t, err, driver.ErrBadConn)
	require.Equal(t, 3, calls)
}
