package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/wallet_ledger/internal/transaction"
	"github.com/congo-pay/wallet_ledger/internal/wallet"
)

// RegisterWalletRoutes wires wallet endpoints.
func RegisterWalletRoutes(r fiber.Router, h *wallet.Handler) {
	g := r.Group("/wallets")
	g.Get("/", h.List)
	g.Post("/", h.Create)
	g.Get("/:id", h.Get)
	g.Put("/:id", h.Update)
	g.Patch("/:id", h.Update)
	g.Delete("/:id", h.Delete)
}

// RegisterTransactionRoutes wires transaction endpoints.
func RegisterTransactionRoutes(r fiber.Router, h *transaction.Handler) {
	g := r.Group("/transactions")
	g.Get("/", h.List)
	g.Post("/", h.Create)
	g.Get("/:id", h.Get)
	g.Put("/:id", h.Amend)
	g.Patch("/:id", h.Amend)
	g.Delete("/:id", h.Delete)
}
