package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const rateLimitPrefix = "rl:write:"

// WriteRateLimit caps unsafe requests per client IP and minute using a Redis
// counter. Reads are never limited and cache failures fail open.
func WriteRateLimit(cache *redis.Client, maxPerMin int, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if cache == nil || maxPerMin <= 0 {
			return c.Next()
		}
		switch c.Method() {
		case fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions:
			return c.Next()
		}

		window := time.Now().UTC().Truncate(time.Minute).Unix()
		key := rateLimitPrefix + c.IP() + ":" + strconv.FormatInt(window, 10)

		cnt, err := cache.Incr(c.UserContext(), key).Result()
		if err != nil {
			logger.Warn("rate limit lookup failed", slog.String("key", key), slog.Any("error", err))
			return c.Next()
		}
		if cnt == 1 {
			cache.Expire(c.UserContext(), key, time.Minute)
		}
		if cnt > int64(maxPerMin) {
			c.Set(fiber.HeaderRetryAfter, "60")
			return fiber.NewError(http.StatusTooManyRequests, "Request was throttled. Please try again later.")
		}
		return c.Next()
	}
}
