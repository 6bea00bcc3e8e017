// services/wallet_handlers.go
package services

import (
	"errors"
	"log"

	"rewards-wallet-system/models"

	"github.com/gofiber/fiber/v2"
)

// walletError maps ledger failures to HTTP responses. Typed failures are
// user-visible; anything else is a 500/503 with the detail logged, not leaked.
func walletError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, ErrAccountNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "account not found"})
	case errors.Is(err, ErrTaskUnavailable):
		return c.Status(fiber.StatusGone).JSON(fiber.Map{"error": "task is not available"})
	case errors.Is(err, ErrDuplicateSubmission):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "task already submitted"})
	case errors.Is(err, ErrAlreadyClaimed):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "bonus already claimed"})
	case errors.Is(err, ErrInsufficientBalance):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "insufficient balance"})
	case isTransient(err):
		log.Printf("❌ Transient store failure: %v", err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "store temporarily unavailable"})
	default:
		log.Printf("❌ Wallet operation failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "wallet operation failed"})
	}
}

// GetWalletSummary returns the authenticated user's balance projection
func (s *WalletService) GetWalletSummary(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	acct, err := s.GetSummary(userID)
	if err != nil {
		return walletError(c, err)
	}
	return c.JSON(acct)
}

// GetWalletHistory returns the user's ledger events, paginated
func (s *WalletService) GetWalletHistory(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	page := c.QueryInt("page", 1)
	size := c.QueryInt("size", 20)

	events, total, err := s.GetHistory(userID, page, size)
	if err != nil {
		return walletError(c, err)
	}

	totalPages := (total + int64(size) - 1) / int64(size)
	return c.JSON(fiber.Map{
		"events":      events,
		"page":        page,
		"size":        size,
		"total_items": total,
		"total_pages": totalPages,
	})
}

// ClaimVerificationBonus credits the one-time verification bonus
func (s *WalletService) ClaimVerificationBonus(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	acct, err := s.CreditVerificationBonus(userID)
	if err != nil {
		return walletError(c, err)
	}
	return c.JSON(fiber.Map{
		"message": "verification bonus credited",
		"points":  s.VerificationBonusPoints,
		"account": acct,
	})
}

// ClaimDailyBonus credits the once-per-day bonus
func (s *WalletService) ClaimDailyBonus(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	acct, err := s.CreditDailyBonus(userID)
	if err != nil {
		return walletError(c, err)
	}
	return c.JSON(fiber.Map{
		"message": "daily bonus credited",
		"points":  s.DailyBonusPoints,
		"account": acct,
	})
}

// Spend debits available points for the authenticated user
func (s *WalletService) Spend(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var req struct {
		Amount    int64  `json:"amount" validate:"required,min=1"`
		Reference string `json:"reference" validate:"max=255"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.Amount <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "amount must be positive"})
	}

	acct, err := s.SpendPoints(userID, req.Amount, req.Reference)
	if err != nil {
		return walletError(c, err)
	}
	return c.JSON(fiber.Map{"message": "points spent", "account": acct})
}

// GetUserReferrals lists the authenticated user's referral edges
func (s *WalletService) GetUserReferrals(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	refs, err := s.GetReferrals(userID)
	if err != nil {
		return walletError(c, err)
	}
	return c.JSON(fiber.Map{"referrals": refs, "count": len(refs)})
}

// --- Admin Handlers ---

// AdminGrantPoints manually credits an account (Admin only)
func (s *WalletService) AdminGrantPoints(c *fiber.Ctx) error {
	var req struct {
		UserID    string `json:"user_id" validate:"required,uuid"`
		Amount    int64  `json:"amount" validate:"required,min=1"`
		Kind      string `json:"kind"`
		Reference string `json:"reference" validate:"max=255"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.UserID == "" || req.Amount <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "user_id and a positive amount are required"})
	}

	kind := models.EventKind(req.Kind)
	if req.Kind == "" {
		kind = models.EventKindCPAEarning
	}

	acct, err := s.GrantPoints(req.UserID, req.Amount, kind, req.Reference)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return walletError(c, err)
		}
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{
		"message": "points granted",
		"user_id": req.UserID,
		"amount":  req.Amount,
		"account": acct,
	})
}

// AdminGetAccount returns any user's balance projection (Admin only)
func (s *WalletService) AdminGetAccount(c *fiber.Ctx) error {
	userID := c.Params("user_id")

	acct, err := s.GetSummary(userID)
	if err != nil {
		return walletError(c, err)
	}
	return c.JSON(acct)
}
