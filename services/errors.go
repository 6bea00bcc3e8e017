// services/errors.go
package services

import (
	"database/sql/driver"
	"errors"
	"net"
	"strings"
	"time"

	"gorm.io/gorm"
)

// Typed failures surfaced by ledger operations. Handlers map these to HTTP
// statuses; nothing below is ever swallowed.
var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrTaskUnavailable     = errors.New("task unavailable")
	ErrDuplicateSubmission = errors.New("task already submitted")
	ErrAlreadyClaimed      = errors.New("bonus already claimed")
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// isUniqueViolation detects a unique-constraint failure across the drivers we
// run against (pgx in production, sqlite in tests).
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key value") || // postgres 23505
		strings.Contains(msg, "UNIQUE constraint failed") // sqlite
}

// isTransient reports whether the error is a connection-class store failure.
// Only these are retried; every other failure is final.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "broken pipe")
}

// withRetry re-runs the whole operation (never partial steps — fn must be a
// single transaction) up to attempts times on transient store failures.
func withRetry(attempts int, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		err = fn()
		if err == nil || !isTransient(err) {
			return err
		}
		time.Sleep(time.Duration(i+1) * 100 * time.Millisecond)
	}
	return err
}
