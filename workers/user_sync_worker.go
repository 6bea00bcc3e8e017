// workers/user_sync_worker.go
package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"rewards-wallet-system/models"
	"rewards-wallet-system/services"
	"rewards-wallet-system/utils"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MirroredUserFromProfile matches the JSON response from the profile sync
// service. Referral attribution rides along with the profile payload, which
// is the only moment a referral edge may be created.
type MirroredUserFromProfile struct {
	ID                string    `json:"id"`
	ExternalID        string    `json:"external_id"`
	Username          string    `json:"username"`
	Email             string    `json:"email"`
	FirstName         *string   `json:"first_name,omitempty"`
	LastName          *string   `json:"last_name,omitempty"`
	ProfilePictureURL *string   `json:"profile_picture_url,omitempty"`
	AccountStatus     string    `json:"account_status"`
	EmailVerified     bool      `json:"email_verified"`
	ReferredByID      *string   `json:"referred_by_id,omitempty"`
	ReferralCode      string    `json:"referral_code"`
	ReferralCodeUsed  string    `json:"referral_code_used,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// GetUserChangesResponse is the top-level structure of the sync service response.
type GetUserChangesResponse struct {
	Users []MirroredUserFromProfile `json:"users"`
}

type UserSyncWorker struct {
	db           *gorm.DB
	wallet       *services.WalletService
	interval     time.Duration
	baseURL      string // e.g., "http://localhost:8500"
	endpointPath string // e.g., "/api/v1/public/profiles"
	serviceToken string
	httpClient   *http.Client
}

// NewUserSyncWorker requires the sync service URL and this service's token.
func NewUserSyncWorker(db *gorm.DB, wallet *services.WalletService, syncServiceBaseURL, endpointPath, serviceToken string) *UserSyncWorker {
	return &UserSyncWorker{
		db:           db,
		wallet:       wallet,
		interval:     1 * time.Minute,
		baseURL:      syncServiceBaseURL,
		endpointPath: endpointPath,
		serviceToken: serviceToken,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (w *UserSyncWorker) Start(ctx context.Context) {
	log.Println("🔁 Starting User Sync Worker (sync-service → rewards_users + points_accounts)…")
	go w.run(ctx)
}

func (w *UserSyncWorker) run(ctx context.Context) {
	// Initial sync (backfill if needed) - sync from the beginning of time
	if err := w.syncBatch(ctx, time.Time{}); err != nil {
		log.Printf("⚠️ Initial sync failed: %v", err)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			lastSyncTime := w.getLastSyncTime()
			if err := w.syncBatch(ctx, lastSyncTime); err != nil {
				log.Printf("❌ Sync batch failed: %v", err)
			}
		case <-ctx.Done():
			log.Println("⏹️ User Sync Worker stopped")
			return
		}
	}
}

// getLastSyncTime finds the most recent UpdatedAt from the local mirror.
func (w *UserSyncWorker) getLastSyncTime() time.Time {
	var lastTime time.Time
	err := w.db.Raw("SELECT MAX(updated_at) FROM rewards_users WHERE deleted_at IS NULL").Scan(&lastTime).Error
	if err != nil || lastTime.IsZero() {
		return time.Unix(0, 0) // Fallback to epoch if no records or error
	}
	return lastTime
}

// syncBatch fetches user changes and updates the local mirror. Each newly
// seen user gets a zero-balance points account; referral attribution in the
// payload drives a one-time referral edge through the wallet ledger.
func (w *UserSyncWorker) syncBatch(ctx context.Context, since time.Time) error {
	sinceStr := since.UTC().Format(time.RFC3339)

	base, err := url.Parse(w.baseURL)
	if err != nil {
		return fmt.Errorf("invalid base sync service URL '%s': %w", w.baseURL, err)
	}

	endpointURL := base.JoinPath(w.endpointPath)
	q := endpointURL.Query()
	q.Set("since", sinceStr)
	endpointURL.RawQuery = q.Encode()
	finalURL := endpointURL.String()

	req, err := http.NewRequestWithContext(ctx, "GET", finalURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request to %s: %w", finalURL, err)
	}
	req.Header.Set("X-Service-Token", w.serviceToken)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request to sync service failed: %w", err)
	}
	defer func() {
		// Always drain & close to prevent connection leaks
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("sync service non-200 response: %d — %s", resp.StatusCode, string(body))
	}

	var response GetUserChangesResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return fmt.Errorf("failed to decode sync service response: %w", err)
	}

	if len(response.Users) == 0 {
		return nil
	}

	log.Printf("[SYNC] 📥 Processing %d user(s) from sync service…", len(response.Users))

	var upsertCount, errorCount int
	for _, remoteUser := range response.Users {
		localUser := models.RewardsUser{
			ID:                uuid.NewString(),
			ExternalUserID:    remoteUser.ExternalID,
			Username:          remoteUser.Username,
			Email:             remoteUser.Email,
			DisplayName:       utils.FoldDisplayName(remoteUser.FirstName, remoteUser.LastName, remoteUser.Username),
			ProfilePictureURL: remoteUser.ProfilePictureURL,
			ReferralCode:      remoteUser.ReferralCode,
			ReferredByID:      remoteUser.ReferredByID,
			EmailVerified:     remoteUser.EmailVerified,
			CreatedAt:         remoteUser.CreatedAt,
			UpdatedAt:         remoteUser.UpdatedAt,
		}

		if err := w.db.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "external_user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"username", "email", "display_name", "profile_picture_url",
				"referral_code", "referred_by_id", "email_verified",
				"created_at", "updated_at",
			}),
		}).Create(&localUser).Error; err != nil {
			errorCount++
			log.Printf("[SYNC] ⚠️ Failed to upsert rewards_user (external_id=%q): %v", remoteUser.ExternalID, err)
			continue
		}
		upsertCount++

		if _, err := w.wallet.EnsureAccount(remoteUser.ExternalID); err != nil {
			log.Printf("[SYNC] ⚠️ Failed to ensure account for %q: %v", remoteUser.ExternalID, err)
			continue
		}

		w.processReferral(remoteUser)
	}

	log.Printf("[SYNC] ✅ Synced %d user(s) (%d upserted, %d errors)", len(response.Users), upsertCount, errorCount)
	return nil
}

// processReferral writes the referral edge for a newly referred user.
// Already-processed edges come back as ErrAlreadyClaimed and are skipped, so
// re-syncing the same user batch is harmless.
func (w *UserSyncWorker) processReferral(remoteUser MirroredUserFromProfile) {
	if remoteUser.ReferredByID == nil || *remoteUser.ReferredByID == "" {
		return
	}
	referrerID := *remoteUser.ReferredByID
	if referrerID == remoteUser.ExternalID {
		log.Printf("[SYNC] ⚠️ Ignoring self-referral for %q", remoteUser.ExternalID)
		return
	}

	if _, err := w.wallet.CreditReferralBonus(referrerID, remoteUser.ExternalID, remoteUser.ReferralCodeUsed); err != nil {
		if errors.Is(err, services.ErrAlreadyClaimed) {
			return // edge already written on a previous sync
		}
		if errors.Is(err, services.ErrAccountNotFound) {
			// Referrer not mirrored yet; the next batch will retry once
			// their account exists.
			log.Printf("[SYNC] ⚠️ Referrer %q has no account yet, deferring edge for %q", referrerID, remoteUser.ExternalID)
			return
		}
		log.Printf("[SYNC] ⚠️ Failed to record referral %s → %s: %v", referrerID, remoteUser.ExternalID, err)
	}
}
