package transaction

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/wallet_ledger/internal/apperr"
	"github.com/congo-pay/wallet_ledger/internal/httpx"
	"github.com/congo-pay/wallet_ledger/internal/ledger"
	"github.com/congo-pay/wallet_ledger/internal/storage"
	"github.com/congo-pay/wallet_ledger/internal/wallet"
)

// Handler exposes transaction endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a transaction handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type createRequest struct {
	TxID     string           `json:"txid" validate:"required,max=255"`
	Amount   *decimal.Decimal `json:"amount"`
	WalletID string           `json:"wallet_id"`
}

type amendRequest struct {
	TxID     *string          `json:"txid"`
	Amount   *decimal.Decimal `json:"amount"`
	WalletID *string          `json:"wallet_id"`
}

type transactionResponse struct {
	ID       string `json:"id"`
	TxID     string `json:"txid"`
	Amount   string `json:"amount"`
	WalletID string `json:"wallet_id"`
}

func render(t ledger.Transaction) transactionResponse {
	return transactionResponse{
		ID:       t.ID,
		TxID:     t.TxID,
		Amount:   t.Amount.StringFixed(wallet.Scale),
		WalletID: t.WalletID,
	}
}

// Create applies a new transaction.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createRequest
	if err := httpx.Bind(c, &req); err != nil {
		return httpx.Fail(err)
	}
	if req.Amount == nil || req.WalletID == "" {
		return httpx.Fail(apperr.Invalid(MsgMissing))
	}
	tx, err := h.service.Create(c.UserContext(), CreateInput{TxID: req.TxID, Amount: *req.Amount, WalletID: req.WalletID})
	if err != nil {
		return httpx.Fail(err)
	}
	return c.Status(http.StatusCreated).JSON(render(tx))
}

// Get returns a single transaction.
func (h *Handler) Get(c *fiber.Ctx) error {
	tx, err := h.service.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return httpx.Fail(err)
	}
	return c.Status(http.StatusOK).JSON(render(tx))
}

// List returns a filtered, ordered page of transactions.
func (h *Handler) List(c *fiber.Ctx) error {
	filter := ledger.ListFilter{
		WalletID:   c.Query("wallet"),
		TxID:       c.Query("txid"),
		Pagination: httpx.Pagination(c),
	}

	var err error
	if filter.Amount, err = httpx.DecimalQuery(c, "amount"); err != nil {
		return httpx.Fail(err)
	}
	if filter.Ordering, err = storage.ParseOrdering(c.Query("ordering"), ledger.DefaultOrdering, ledger.Orderable...); err != nil {
		return httpx.Fail(apperr.Invalid(err.Error()))
	}

	page, err := h.service.List(c.UserContext(), filter)
	if err != nil {
		return httpx.Fail(err)
	}
	return c.Status(http.StatusOK).JSON(httpx.NewPageBody(page, render))
}

// Amend updates amount and/or wallet. PUT requires both fields, PATCH either.
func (h *Handler) Amend(c *fiber.Ctx) error {
	var req amendRequest
	if err := httpx.Bind(c, &req); err != nil {
		return httpx.Fail(err)
	}
	if c.Method() == fiber.MethodPut && (req.Amount == nil || req.WalletID == nil) {
		return httpx.Fail(apperr.Invalid(MsgMissing))
	}

	id := c.Params("id")
	if req.TxID != nil {
		current, err := h.service.Get(c.UserContext(), id)
		if err != nil {
			return httpx.Fail(err)
		}
		if *req.TxID != current.TxID {
			return httpx.Fail(apperr.Invalid("txid: this field cannot be changed."))
		}
	}

	tx, err := h.service.Amend(c.UserContext(), id, AmendInput{Amount: req.Amount, WalletID: req.WalletID})
	if err != nil {
		return httpx.Fail(err)
	}
	return c.Status(http.StatusOK).JSON(render(tx))
}

// Delete removes a transaction and reverses its amount.
func (h *Handler) Delete(c *fiber.Ctx) error {
	if err := h.service.Delete(c.UserContext(), c.Params("id")); err != nil {
		return httpx.Fail(err)
	}
	return c.SendStatus(http.StatusNoContent)
}
