// handlers/wallet_routes.go
package handlers

import (
	"rewards-wallet-system/middleware"
	"rewards-wallet-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupWalletRoutes(app *fiber.App, walletService *services.WalletService, authClient *services.AuthServiceClient) {
	// 🔐 Secured routes — require user context (userID, roles) from Gateway
	secured := app.Group("/", middleware.UserContextMiddleware())

	secured.Get("/user/wallet", walletService.GetWalletSummary)
	secured.Get("/user/wallet/history", walletService.GetWalletHistory)
	secured.Post("/user/wallet/verification-bonus", walletService.ClaimVerificationBonus)
	secured.Post("/user/wallet/daily-bonus", walletService.ClaimDailyBonus)
	secured.Post("/user/wallet/spend", walletService.Spend)
	secured.Get("/user/referrals", walletService.GetUserReferrals)

	// SSE stream authenticates from query params (EventSource can't set headers)
	app.Get("/user/wallet/stream", middleware.SSEAuthMiddleware(authClient), walletService.StreamWalletEventsSSE)

	// 🔒 Admin-only routes
	admin := secured.Group("/s/admin", middleware.RequireRole("admin"))
	admin.Post("/points/grant", walletService.AdminGrantPoints)
	admin.Get("/accounts/:user_id", walletService.AdminGetAccount)
}
