// Package routes defines the API routing configuration.
package routes

import (
	"bundlepay/internal/handlers"
	"bundlepay/internal/middleware"
	"bundlepay/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps carries everything the routes need. Gatherer may be nil to disable
// the /metrics endpoint.
type Deps struct {
	Auth     *middleware.AuthMiddleware
	Wallet   *handlers.WalletHandler
	Admin    *handlers.AdminHandler
	Health   *handlers.HealthHandler
	Gatherer prometheus.Gatherer
}

// SetupRoutes configures all application routes.
func SetupRoutes(app *fiber.App, d Deps) {
	app.Get("/health", d.Health.Check)
	if d.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	api := app.Group("/api")

	// Gateway callbacks carry their own signature instead of a token.
	api.Post("/wallet/deposit/webhook/:provider", d.Wallet.DepositWebhook)

	w := api.Group("/wallet", d.Auth.Handler)
	w.Get("/balance", middleware.HasPermission(models.PermissionWalletRead), d.Wallet.GetBalance)
	w.Get("/transactions", middleware.HasPermission(models.PermissionWalletRead), d.Wallet.GetTransactions)
	w.Post("/deposit", middleware.HasPermission(models.PermissionWalletWrite), d.Wallet.Deposit)
	w.Get("/deposit/verify/:reference", middleware.HasPermission(models.PermissionWalletRead), d.Wallet.VerifyDeposit)
	w.Post("/deduct", middleware.HasPermission(models.PermissionWalletWrite), d.Wallet.Deduct)
	w.Post("/apply-promo", middleware.HasPermission(models.PermissionWalletRead), d.Wallet.ApplyPromo)
	w.Post("/confirm-promo", middleware.HasPermission(models.PermissionWalletWrite), d.Wallet.ConfirmPromo)

	admin := api.Group("/admin", d.Auth.Handler, middleware.AdminAuthMiddleware)
	write := middleware.HasPermission(models.PermissionWriteAdmin)
	admin.Put("/users/:id/add-money", write, d.Admin.AddMoney)
	admin.Put("/users/:id/deduct-money", write, d.Admin.DeductMoney)
	admin.Put("/users/:id/adjust", write, d.Admin.Adjust)
	admin.Put("/users/:id/freeze", write, d.Admin.Freeze)
	admin.Put("/users/:id/unfreeze", write, d.Admin.Unfreeze)
	admin.Put("/orders/bulk-status", write, d.Admin.BulkUpdateOrderStatus)
	admin.Put("/orders/:id/status", write, d.Admin.UpdateOrderStatus)
	admin.Post("/promos", write, d.Admin.CreatePromo)
}
