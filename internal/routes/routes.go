// Package routes defines the API routing configuration.
// It sets up all HTTP routes and their corresponding handlers,
// including middleware and authentication requirements.
package routes

import (
	"kudi/internal/handlers"
	"kudi/internal/middleware"
	"kudi/internal/services/settlement"

	"github.com/gofiber/fiber/v2"
)

// Handlers bundles everything the router mounts.
type Handlers struct {
	Auth         *middleware.AuthMiddleware
	Health       *handlers.HealthHandler
	Wallet       *handlers.WalletHandler
	Payment      *handlers.PaymentHandler
	KYC          *handlers.KYCHandler
	Transactions *handlers.TransactionHandler
	Webhooks     *handlers.WebhookHandler
	Admin        *handlers.AdminHandler
	// Metrics serves the Prometheus scrape endpoint when set.
	Metrics fiber.Handler
}

// SetupRoutes configures all application routes.
// It groups routes by functionality and applies appropriate middleware.
func SetupRoutes(app *fiber.App, h *Handlers) {
	app.Get("/health", h.Health.HealthCheck)
	if h.Metrics != nil {
		app.Get("/metrics", h.Metrics)
	}

	api := app.Group("/api")

	// Provider callbacks authenticate by signature, not by token
	setupWebhookRoutes(api, h.Webhooks)

	protected := api.Group("", h.Auth.Handler)
	setupWalletRoutes(protected, h.Wallet)
	setupPaymentRoutes(protected, h.Payment)
	setupKYCRoutes(protected, h.KYC)
	setupTransactionRoutes(protected, h.Transactions)
	setupAdminRoutes(protected, h.Admin)
}

func setupWebhookRoutes(api fiber.Router, h *handlers.WebhookHandler) {
	webhooks := api.Group("/webhooks")
	webhooks.Post("/billpay", h.Settlement(settlement.BillPayName, handlers.HeaderBillPaySignature))
	webhooks.Post("/custodian", h.Settlement(settlement.CustodianName, handlers.HeaderCustodianSignature))
	webhooks.Post("/stripe-identity", h.StripeIdentity)
}

func setupWalletRoutes(protected fiber.Router, h *handlers.WalletHandler) {
	wallet := protected.Group("/wallet")
	wallet.Get("/balances", h.GetBalances)
	wallet.Get("/balances/:asset", h.GetBalance)
}

func setupPaymentRoutes(protected fiber.Router, h *handlers.PaymentHandler) {
	payments := protected.Group("/payments")
	payments.Post("/purchase", h.Purchase)
	payments.Post("/withdraw", h.Withdraw)
	payments.Post("/transfer", h.Transfer)
}

func setupKYCRoutes(protected fiber.Router, h *handlers.KYCHandler) {
	kyc := protected.Group("/kyc")
	kyc.Get("/profile", h.GetProfile)
	kyc.Get("/limits", h.GetLimits)
	kyc.Post("/limits/preview", h.PreviewLimit)
}

func setupTransactionRoutes(protected fiber.Router, h *handlers.TransactionHandler) {
	transactions := protected.Group("/transactions")
	transactions.Get("/", h.ListTransactions)
	transactions.Get("/:id", h.GetTransaction)
}

func setupAdminRoutes(protected fiber.Router, h *handlers.AdminHandler) {
	admin := protected.Group("/admin", middleware.AdminAuthMiddleware)
	admin.Post("/balances/credit", h.CreditBalance)
	admin.Get("/reconciliation", h.ListFlagged)
	admin.Post("/reconciliation/sweep", h.RunSweep)
	admin.Post("/kyc/results", h.SubmitKYCResult)
}
