package httpx

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/wallet_ledger/internal/apperr"
	"github.com/congo-pay/wallet_ledger/internal/logging"
	"github.com/congo-pay/wallet_ledger/internal/storage"
)

func TestStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{apperr.NotFound("gone"), http.StatusNotFound},
		{apperr.Protected("in use"), http.StatusConflict},
		{apperr.Invariant("negative"), http.StatusBadRequest},
		{apperr.Busy("locked"), http.StatusBadRequest},
		{apperr.Duplicate("taken"), http.StatusBadRequest},
		{apperr.Invalid("bad"), http.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", apperr.Busy("locked")), http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Status(tc.err), tc.err.Error())
	}
}

func TestFailHidesUnknownErrors(t *testing.T) {
	var fe *fiber.Error

	require.ErrorAs(t, Fail(errors.New("pq: connection reset")), &fe)
	assert.Equal(t, http.StatusInternalServerError, fe.Code)
	assert.Equal(t, "internal server error", fe.Message)

	require.ErrorAs(t, Fail(apperr.Invariant("negative")), &fe)
	assert.Equal(t, http.StatusBadRequest, fe.Code)
	assert.Equal(t, "negative", fe.Message)
}

func render(t *testing.T, handler fiber.Handler, target string) (int, string) {
	t.Helper()
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(logging.Discard())})
	app.Get("/", handler)
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, target, nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestErrorHandlerRendersDetail(t *testing.T) {
	status, body := render(t, func(c *fiber.Ctx) error {
		return apperr.NotFound("wallet not found")
	}, "/")
	assert.Equal(t, http.StatusNotFound, status)
	assert.JSONEq(t, `{"detail":"wallet not found"}`, body)

	status, body = render(t, func(c *fiber.Ctx) error {
		return errors.New("secret driver failure")
	}, "/")
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.JSONEq(t, `{"detail":"internal server error"}`, body)

	status, body = render(t, func(c *fiber.Ctx) error {
		return fiber.NewError(http.StatusTooManyRequests, "slow down")
	}, "/")
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.JSONEq(t, `{"detail":"slow down"}`, body)
}

func TestPaginationAndDecimalQuery(t *testing.T) {
	var (
		page   storage.Pagination
		amount string
		err    error
	)
	handler := func(c *fiber.Ctx) error {
		page = Pagination(c)
		v, qerr := DecimalQuery(c, "amount")
		err = qerr
		amount = ""
		if v != nil {
			amount = v.StringFixed(2)
		}
		return c.SendStatus(http.StatusOK)
	}

	render(t, handler, "/?page=3&page_size=500&amount=12.5")
	assert.Equal(t, storage.Pagination{Page: 3, PageSize: storage.MaxPageSize}, page)
	assert.Equal(t, "12.50", amount)
	assert.NoError(t, err)

	render(t, handler, "/?page=zero")
	assert.Equal(t, storage.Pagination{Page: 1, PageSize: storage.DefaultPageSize}, page)
	assert.Empty(t, amount)

	render(t, handler, "/?amount=lots")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

type bindTarget struct {
	Label string `json:"label" validate:"required,max=5"`
}

func TestBind(t *testing.T) {
	bind := func(body string) error {
		var got error
		app := fiber.New()
		app.Post("/", func(c *fiber.Ctx) error {
			var dst bindTarget
			got = Bind(c, &dst)
			return nil
		})
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		_, err := app.Test(req)
		require.NoError(t, err)
		return got
	}

	assert.NoError(t, bind(`{"label":"main"}`))

	err := bind(`{"label":"far too long"}`)
	require.ErrorIs(t, err, apperr.ErrInvalidInput)
	assert.Equal(t, `label: failed "max" validation`, err.Error())

	assert.ErrorIs(t, bind(`{"label":`), apperr.ErrInvalidInput)
}
