package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/congo-pay/wallet_ledger/internal/storage"
)

const (
	defaultAppName         = "WalletLedger"
	defaultAppEnv          = "development"
	defaultPort            = "8080"
	defaultLogLevel        = "info"
	defaultShutdownDelay   = 10 * time.Second
	defaultIdempotencyTTL  = 24 * time.Hour
	defaultKafkaTopic      = "wallet_ledger.transactions"
	defaultDBMaxConns      = 10
	defaultDBMinConns      = 1
	idemTTLSecondsEnvVar   = "IDEMPOTENCY_TTL_SECONDS"
	idemTTLDurEnvVar       = "IDEMPOTENCY_TTL"
	shutdownSecondsEnvVar  = "SHUTDOWN_TIMEOUT_SECONDS"
	shutdownDurationEnvVar = "SHUTDOWN_TIMEOUT"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	DatabaseURL    string
	DBMaxConns     int32
	DBMinConns     int32
	DBLockTimeout  time.Duration
	DBMigrate      bool
	RedisURL       string
	KafkaBrokers   []string
	KafkaTopic     string
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration
	// WriteRateLimit caps unsafe requests per client and minute. Zero disables it.
	WriteRateLimit int
	Locks          LockModes
}

// LockModes picks blocking or fail-fast row locking per transaction mutation.
type LockModes struct {
	Create storage.LockMode
	Amend  storage.LockMode
	Delete storage.LockMode
}

// Load reads configuration values from the environment and populates a Config
// instance. A .env file in the working directory is loaded first when present;
// variables already set in the environment win.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		AppName:        getEnv("APP_NAME", defaultAppName),
		AppEnv:         getEnv("APP_ENV", defaultAppEnv),
		Port:           getEnv("PORT", defaultPort),
		LogLevel:       strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisURL:       os.Getenv("REDIS_URL"),
		KafkaBrokers:   splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:     getEnv("KAFKA_TOPIC", defaultKafkaTopic),
		ShutdownPeriod: defaultShutdownDelay,
		IdempotencyTTL: defaultIdempotencyTTL,
		DBMigrate:      true,
		Locks: LockModes{
			Create: storage.LockNoWait,
			Amend:  storage.LockWait,
			Delete: storage.LockWait,
		},
	}

	var err error
	if cfg.ShutdownPeriod, err = duration(shutdownSecondsEnvVar, shutdownDurationEnvVar, cfg.ShutdownPeriod); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = duration(idemTTLSecondsEnvVar, idemTTLDurEnvVar, cfg.IdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.DBLockTimeout, err = duration("", "DB_LOCK_TIMEOUT", 0); err != nil {
		return Config{}, err
	}
	if cfg.DBMaxConns, err = poolSize("DB_MAX_CONNS", defaultDBMaxConns); err != nil {
		return Config{}, err
	}
	if cfg.DBMinConns, err = poolSize("DB_MIN_CONNS", defaultDBMinConns); err != nil {
		return Config{}, err
	}
	if cfg.DBMinConns > cfg.DBMaxConns {
		return Config{}, fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", cfg.DBMinConns, cfg.DBMaxConns)
	}
	if v := os.Getenv("WRITE_RATE_LIMIT_PER_MIN"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			return Config{}, fmt.Errorf("invalid WRITE_RATE_LIMIT_PER_MIN: %q", v)
		}
		cfg.WriteRateLimit = limit
	}
	if v := os.Getenv("DB_MIGRATE"); v != "" {
		migrate, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid DB_MIGRATE: %w", err)
		}
		cfg.DBMigrate = migrate
	}

	for _, lock := range []struct {
		env  string
		dest *storage.LockMode
	}{
		{"CREATE_LOCK_MODE", &cfg.Locks.Create},
		{"AMEND_LOCK_MODE", &cfg.Locks.Amend},
		{"DELETE_LOCK_MODE", &cfg.Locks.Delete},
	} {
		v := os.Getenv(lock.env)
		if v == "" {
			continue
		}
		mode, err := storage.ParseLockMode(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", lock.env, err)
		}
		*lock.dest = mode
	}

	// The in-memory backend is only acceptable for local development.
	if cfg.DatabaseURL == "" && !cfg.IsDev() {
		return Config{}, fmt.Errorf("DATABASE_URL must be set when APP_ENV=%s", cfg.AppEnv)
	}

	return cfg, nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// IsDev reports whether the service runs in a local development environment.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// duration reads secondsKey as whole seconds, else durationKey as a Go
// duration string, else returns fallback.
func duration(secondsKey, durationKey string, fallback time.Duration) (time.Duration, error) {
	if secondsKey != "" {
		if v := os.Getenv(secondsKey); v != "" {
			seconds, err := strconv.Atoi(v)
			if err != nil {
				return 0, fmt.Errorf("invalid %s: %w", secondsKey, err)
			}
			return time.Duration(seconds) * time.Second, nil
		}
	}
	if v := os.Getenv(durationKey); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", durationKey, err)
		}
		return d, nil
	}
	return fallback, nil
}

func poolSize(key string, fallback int32) (int32, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 32)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return int32(n), nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
