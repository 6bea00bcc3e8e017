package services

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"rewards-wallet-system/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// StreamWalletEventsSSE streams new ledger events for the authenticated user
// as they are appended. Poll-based tail over created_at; the cursor starts at
// the user's newest event so only fresh credits/debits are pushed.
func (s *WalletService) StreamWalletEventsSSE(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	// SSE headers
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no") // nginx

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()

		var lastMaxCreatedAt time.Time

		// Initialize cursor
		var latest models.LedgerEvent
		if err := s.DB.
			Where("external_user_id = ?", userID).
			Order("created_at DESC").
			First(&latest).Error; err == nil {
			lastMaxCreatedAt = latest.CreatedAt
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("SSE init error for user %s: %v", userID, err)
		}

		// Initial keepalive (comment event)
		w.WriteString(":\n\n")
		w.Flush()

		for {
			select {
			case <-ticker.C:
				var events []models.LedgerEvent

				err := s.DB.
					Where("external_user_id = ?", userID).
					Where("created_at > ?", lastMaxCreatedAt).
					Order("created_at ASC").
					Find(&events).Error

				if err != nil {
					log.Printf("SSE query error for user %s: %v", userID, err)
					continue
				}

				if len(events) == 0 {
					continue
				}

				lastMaxCreatedAt = events[len(events)-1].CreatedAt

				for _, e := range events {
					payload, _ := json.Marshal(e)

					fmt.Fprintf(w,
						"event: ledger\ndata: %s\n\n",
						payload,
					)
				}

				if err := w.Flush(); err != nil {
					// Client disconnected
					return
				}

			case <-c.Context().Done():
				// Client closed connection
				return
			}
		}
	})

	return nil
}
