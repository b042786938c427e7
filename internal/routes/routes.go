package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/wallet_ledger/internal/config"
	"github.com/congo-pay/wallet_ledger/internal/event"
	"github.com/congo-pay/wallet_ledger/internal/ledger"
	"github.com/congo-pay/wallet_ledger/internal/middleware"
	"github.com/congo-pay/wallet_ledger/internal/storage"
	"github.com/congo-pay/wallet_ledger/internal/storage/memory"
	"github.com/congo-pay/wallet_ledger/internal/storage/postgres"
	"github.com/congo-pay/wallet_ledger/internal/transaction"
	"github.com/congo-pay/wallet_ledger/internal/wallet"
)

// Deps aggregates shared dependencies required to wire routes. A nil DB
// selects the in-memory backend; a nil Cache disables idempotency and rate
// limiting; a nil Publisher logs events.
type Deps struct {
	Cfg       config.Config
	DB        *pgxpool.Pool
	Cache     *redis.Client
	Publisher event.Publisher
	Logger    *slog.Logger
}

type backend struct {
	tx      storage.Transactor
	wallets wallet.Repository
	ledger  ledger.Repository
}

func newBackend(d Deps) backend {
	if d.DB != nil {
		return backend{
			tx:      postgres.NewTransactor(d.DB, d.Cfg.DBLockTimeout),
			wallets: wallet.NewPostgresRepository(d.DB),
			ledger:  ledger.NewPostgresRepository(d.DB),
		}
	}
	db := memory.New(memory.Options{LockTimeout: d.Cfg.DBLockTimeout})
	return backend{
		tx:      db,
		wallets: wallet.NewMemoryRepository(db),
		ledger:  ledger.NewMemoryRepository(db),
	}
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if !d.Cfg.IsDev() && d.DB == nil {
		return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	if d.Cfg.IsDev() {
		// Plain text access log in desired format: [HH:MM:SS] 200 -  145ms METHOD /path
		app.Use(logger.New(logger.Config{
			Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
			TimeFormat: "15:04:05",
			TimeZone:   "Local",
		}))
	}
	app.Use(middleware.Audit(d.Logger))
	if d.Cache != nil {
		app.Use(middleware.WriteRateLimit(d.Cache, d.Cfg.WriteRateLimit, d.Logger))
		app.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}

	RegisterHealthRoutes(app, d)

	publisher := d.Publisher
	if publisher == nil {
		publisher = event.NewLoggerPublisher(d.Logger)
	}

	b := newBackend(d)
	walletSvc := wallet.NewService(b.wallets, b.tx, d.Logger)
	txSvc := transaction.NewService(b.tx, b.wallets, b.ledger, publisher, d.Logger, transaction.Config{
		CreateLock: d.Cfg.Locks.Create,
		AmendLock:  d.Cfg.Locks.Amend,
		DeleteLock: d.Cfg.Locks.Delete,
	})

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	RegisterWalletRoutes(api, wallet.NewHandler(walletSvc))
	RegisterTransactionRoutes(api, transaction.NewHandler(txSvc))

	return nil
}
