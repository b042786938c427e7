package middleware

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/wallet_ledger/internal/logging"
)

type testApp struct {
	app   *fiber.App
	calls *atomic.Int32
}

func setupTestApp(t *testing.T) testApp {
	t.Helper()
	mr := miniredis.RunT(t)

	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { cache.Close() })

	calls := &atomic.Int32{}
	app := fiber.New()
	app.Use(Idempotency(cache, time.Minute, logging.Discard()))
	app.Post("/resource", func(c *fiber.Ctx) error {
		n := calls.Add(1)
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"ok": true, "call": n})
	})
	app.Post("/rejected", func(c *fiber.Ctx) error {
		calls.Add(1)
		return fiber.NewError(fiber.StatusBadRequest, "denied")
	})
	app.Post("/broken", func(c *fiber.Ctx) error {
		calls.Add(1)
		return fiber.NewError(fiber.StatusInternalServerError, "boom")
	})

	return testApp{app: app, calls: calls}
}

func post(t *testing.T, app *fiber.App, path, key, body string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, path, strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if key != "" {
		req.Header.Set(idempotencyKeyHeader, key)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, string(payload)
}

func TestIdempotencyPassesThroughWithoutHeader(t *testing.T) {
	ta := setupTestApp(t)

	for i := 0; i < 2; i++ {
		status, _ := post(t, ta.app, "/resource", "", "{}")
		if status != fiber.StatusCreated {
			t.Fatalf("expected %d got %d", fiber.StatusCreated, status)
		}
	}
	if got := ta.calls.Load(); got != 2 {
		t.Fatalf("expected handler to run twice, ran %d times", got)
	}
}

func TestIdempotencyReturnsCachedResponse(t *testing.T) {
	ta := setupTestApp(t)

	status, payload := post(t, ta.app, "/resource", "abc123", "{}")
	if status != fiber.StatusCreated {
		t.Fatalf("expected status %d got %d", fiber.StatusCreated, status)
	}

	// Second request should return the cached response without invoking handler again.
	status, cachedPayload := post(t, ta.app, "/resource", "abc123", "{}")
	if status != fiber.StatusCreated {
		t.Fatalf("expected cached status %d got %d", fiber.StatusCreated, status)
	}
	if cachedPayload != payload {
		t.Fatalf("expected cached payload %s got %s", payload, cachedPayload)
	}
	if got := ta.calls.Load(); got != 1 {
		t.Fatalf("expected handler to run once, ran %d times", got)
	}

	var decoded map[string]any
	if err := json.Unmarshal([]byte(cachedPayload), &decoded); err != nil {
		t.Fatalf("cached payload invalid json: %v", err)
	}
}

func TestIdempotencyReplaysClientErrors(t *testing.T) {
	ta := setupTestApp(t)

	first, _ := post(t, ta.app, "/rejected", "k1", "{}")
	second, _ := post(t, ta.app, "/rejected", "k1", "{}")
	if first != fiber.StatusBadRequest || second != fiber.StatusBadRequest {
		t.Fatalf("expected 400 twice, got %d and %d", first, second)
	}
	if got := ta.calls.Load(); got != 1 {
		t.Fatalf("expected handler to run once, ran %d times", got)
	}
}

func TestIdempotencyDoesNotStoreServerErrors(t *testing.T) {
	ta := setupTestApp(t)

	post(t, ta.app, "/broken", "k1", "{}")
	post(t, ta.app, "/broken", "k1", "{}")
	if got := ta.calls.Load(); got != 2 {
		t.Fatalf("expected retry after server error, handler ran %d times", got)
	}
}

func TestIdempotencyRejectsDifferentBody(t *testing.T) {
	ta := setupTestApp(t)

	post(t, ta.app, "/resource", "k1", `{"amount":"1.00"}`)
	status, _ := post(t, ta.app, "/resource", "k1", `{"amount":"2.00"}`)
	if status != fiber.StatusUnprocessableEntity {
		t.Fatalf("expected %d got %d", fiber.StatusUnprocessableEntity, status)
	}
}

func TestIdempotencyKeysAreScopedToPath(t *testing.T) {
	ta := setupTestApp(t)

	post(t, ta.app, "/resource", "shared", "{}")
	status, _ := post(t, ta.app, "/rejected", "shared", "{}")
	if status != fiber.StatusBadRequest {
		t.Fatalf("expected the second path to run its own handler, got %d", status)
	}
	if got := ta.calls.Load(); got != 2 {
		t.Fatalf("expected two handler calls, got %d", got)
	}
}
