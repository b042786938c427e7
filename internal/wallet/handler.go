package wallet

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/wallet_ledger/internal/apperr"
	"github.com/congo-pay/wallet_ledger/internal/httpx"
	"github.com/congo-pay/wallet_ledger/internal/storage"
)

// Handler exposes wallet HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type createRequest struct {
	Label   string           `json:"label" validate:"required,max=255"`
	Balance *decimal.Decimal `json:"balance" validate:"required"`
}

type updateRequest struct {
	Label   *string          `json:"label" validate:"omitempty,max=255"`
	Balance *decimal.Decimal `json:"balance"`
}

type walletResponse struct {
	ID      string `json:"id"`
	Label   string `json:"label"`
	Balance string `json:"balance"`
}

func render(w Wallet) walletResponse {
	return walletResponse{ID: w.ID, Label: w.Label, Balance: w.Balance.StringFixed(Scale)}
}

// Create provisions a wallet.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createRequest
	if err := httpx.Bind(c, &req); err != nil {
		return httpx.Fail(err)
	}
	wallet, err := h.service.Create(c.UserContext(), CreateInput{Label: req.Label, Balance: *req.Balance})
	if err != nil {
		return httpx.Fail(err)
	}
	return c.Status(http.StatusCreated).JSON(render(wallet))
}

// Get returns a single wallet.
func (h *Handler) Get(c *fiber.Ctx) error {
	wallet, err := h.service.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return httpx.Fail(err)
	}
	return c.Status(http.StatusOK).JSON(render(wallet))
}

// List returns a filtered, ordered page of wallets.
func (h *Handler) List(c *fiber.Ctx) error {
	filter := ListFilter{Label: c.Query("label"), Pagination: httpx.Pagination(c)}

	var err error
	if filter.BalanceMin, err = httpx.DecimalQuery(c, "balance_min"); err != nil {
		return httpx.Fail(err)
	}
	if filter.BalanceMax, err = httpx.DecimalQuery(c, "balance_max"); err != nil {
		return httpx.Fail(err)
	}
	if filter.Ordering, err = storage.ParseOrdering(c.Query("ordering"), DefaultOrdering, Orderable...); err != nil {
		return httpx.Fail(apperr.Invalid(err.Error()))
	}

	page, err := h.service.List(c.UserContext(), filter)
	if err != nil {
		return httpx.Fail(err)
	}
	return c.Status(http.StatusOK).JSON(httpx.NewPageBody(page, render))
}

// Update renames a wallet. PUT and PATCH share it since only the label is writable.
func (h *Handler) Update(c *fiber.Ctx) error {
	var req updateRequest
	if err := httpx.Bind(c, &req); err != nil {
		return httpx.Fail(err)
	}
	if c.Method() == fiber.MethodPut && req.Label == nil {
		return httpx.Fail(apperr.Invalid("label: this field is required."))
	}
	wallet, err := h.service.Update(c.UserContext(), c.Params("id"), UpdateInput{Label: req.Label, Balance: req.Balance})
	if err != nil {
		return httpx.Fail(err)
	}
	return c.Status(http.StatusOK).JSON(render(wallet))
}

// Delete removes a wallet without transactions.
func (h *Handler) Delete(c *fiber.Ctx) error {
	if err := h.service.Delete(c.UserContext(), c.Params("id")); err != nil {
		return httpx.Fail(err)
	}
	return c.SendStatus(http.StatusNoContent)
}
