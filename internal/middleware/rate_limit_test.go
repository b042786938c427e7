package middleware

import (
	"net/http/httptest"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/wallet_ledger/internal/logging"
)

func TestWriteRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { cache.Close() })

	app := fiber.New()
	app.Use(WriteRateLimit(cache, 2, logging.Discard()))
	app.Post("/w", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusCreated) })
	app.Get("/w", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	statuses := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest(fiber.MethodPost, "/w", nil))
		require.NoError(t, err)
		statuses = append(statuses, resp.StatusCode)
	}
	assert.Equal(t, []int{fiber.StatusCreated, fiber.StatusCreated, fiber.StatusTooManyRequests}, statuses)

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/w", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestWriteRateLimitDisabled(t *testing.T) {
	app := fiber.New()
	app.Use(WriteRateLimit(nil, 1, logging.Discard()))
	app.Post("/w", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusCreated) })

	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest(fiber.MethodPost, "/w", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusCreated, resp.StatusCode)
	}
}
