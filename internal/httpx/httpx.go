// Package httpx holds the request binding and error rendering shared by the
// Fiber handlers.
package httpx

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/wallet_ledger/internal/apperr"
	"github.com/congo-pay/wallet_ledger/internal/storage"
)

const internalMessage = "internal server error"

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// Bind decodes the JSON body into dst and runs its validate tags.
func Bind(c *fiber.Ctx, dst any) error {
	if err := c.BodyParser(dst); err != nil {
		return apperr.Invalid(fmt.Sprintf("malformed request body: %v", err))
	}
	if err := validate.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return apperr.Invalid(fmt.Sprintf("%s: failed %q validation", fe.Field(), fe.Tag()))
		}
		return apperr.Invalid(err.Error())
	}
	return nil
}

// Status maps an application error kind to an HTTP status code.
func Status(err error) int {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrReferentialIntegrity):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrInvariantViolation),
		errors.Is(err, apperr.ErrResourceBusy),
		errors.Is(err, apperr.ErrDuplicateKey),
		errors.Is(err, apperr.ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Fail converts err into a *fiber.Error carrying the client-facing message.
// Errors without a known kind become a bare 500.
func Fail(err error) error {
	status := Status(err)
	if status == http.StatusInternalServerError {
		return fiber.NewError(status, internalMessage)
	}
	return fiber.NewError(status, apperr.Message(err, err.Error()))
}

// ErrorHandler renders every error as {"detail": "..."}.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := http.StatusInternalServerError
		detail := internalMessage

		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			status = fiberErr.Code
			detail = fiberErr.Message
		} else if s := Status(err); s != http.StatusInternalServerError {
			status = s
			detail = apperr.Message(err, err.Error())
		}

		if status >= http.StatusInternalServerError {
			logger.Error("request failed", "method", c.Method(), "path", c.Path(), "error", err)
		}
		return c.Status(status).JSON(fiber.Map{"detail": detail})
	}
}

// Pagination reads the page and page_size query parameters.
func Pagination(c *fiber.Ctx) storage.Pagination {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	size, _ := strconv.Atoi(c.Query("page_size", strconv.Itoa(storage.DefaultPageSize)))
	return storage.Pagination{Page: page, PageSize: size}.Normalize()
}

// DecimalQuery parses an optional decimal query parameter.
func DecimalQuery(c *fiber.Ctx, key string) (*decimal.Decimal, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, apperr.Invalid(key + ": enter a number.")
	}
	return &v, nil
}

// PageBody is the listing envelope returned by list endpoints.
type PageBody[T any] struct {
	Count    int `json:"count"`
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
	Results  []T `json:"results"`
}

// NewPageBody converts a storage page using render for each item.
func NewPageBody[S, T any](p storage.Page[S], render func(S) T) PageBody[T] {
	results := make([]T, 0, len(p.Items))
	for _, item := range p.Items {
		results = append(results, render(item))
	}
	return PageBody[T]{Count: p.Total, Page: p.Page, PageSize: p.PageSize, Results: results}
}
