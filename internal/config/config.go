package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/ulule/limiter/v3"
)

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

type Config struct {
	Port             string        `mapstructure:"PORT"`
	Env              string        `mapstructure:"ENV"`
	LogLevel         string        `mapstructure:"LOG_LEVEL"`
	StorageDriver    string        `mapstructure:"STORAGE_DRIVER"`
	DatabaseURL      string        `mapstructure:"DATABASE_URL"`
	DBMaxConns       int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns       int32         `mapstructure:"DB_MIN_CONNS"`
	SQLitePath       string        `mapstructure:"SQLITE_PATH"`
	RedisURL         string        `mapstructure:"REDIS_URL"`
	JWTSecret        string        `mapstructure:"JWT_SECRET"`
	JWTIssuer        string        `mapstructure:"JWT_ISSUER"`
	CORSOrigins      []string      `mapstructure:"CORS_ORIGINS"`
	RequestTimeout   time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	StoreTimeout     time.Duration `mapstructure:"STORE_TIMEOUT"`
	StoreReadRetries int           `mapstructure:"STORE_READ_RETRIES"`
	PublicBaseURL    string        `mapstructure:"PUBLIC_BASE_URL"`
	BlobDir          string        `mapstructure:"BLOB_DIR"`
	PublicRateLimit  string        `mapstructure:"PUBLIC_RATE_LIMIT"`
	InsightURL       string        `mapstructure:"INSIGHT_URL"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL", "STORAGE_DRIVER", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"SQLITE_PATH", "REDIS_URL", "JWT_SECRET", "JWT_ISSUER", "CORS_ORIGINS", "REQUEST_TIMEOUT",
	"STORE_TIMEOUT", "STORE_READ_RETRIES", "PUBLIC_BASE_URL", "BLOB_DIR", "PUBLIC_RATE_LIMIT",
	"INSIGHT_URL",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("STORAGE_DRIVER", DriverSQLite)
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("SQLITE_PATH", "erx.db")
	v.SetDefault("JWT_ISSUER", "erx-server")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("REQUEST_TIMEOUT", "10s")
	v.SetDefault("STORE_TIMEOUT", "10s")
	v.SetDefault("STORE_READ_RETRIES", 3)
	v.SetDefault("PUBLIC_BASE_URL", "http://localhost:8000")
	v.SetDefault("BLOB_DIR", "data/blobs")
	v.SetDefault("PUBLIC_RATE_LIMIT", "10-M")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) <= 1 {
		if origins := v.GetString("CORS_ORIGINS"); origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}
	cfg.StorageDriver = strings.ToLower(strings.TrimSpace(cfg.StorageDriver))

	if cfg.IsDev() {
		log.Println("WARNING: Server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: Requests without a bearer token are treated as the root administrator.")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	switch c.StorageDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORAGE_DRIVER is %q", DriverPostgres)
		}
		if c.DBMinConns > c.DBMaxConns {
			return fmt.Errorf("DB_MIN_CONNS (%d) must not exceed DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required when STORAGE_DRIVER is %q", DriverSQLite)
		}
	case DriverMemory:
		if c.IsProduction() {
			return fmt.Errorf("STORAGE_DRIVER %q is not allowed in production", DriverMemory)
		}
	default:
		return fmt.Errorf("STORAGE_DRIVER must be %q, %q or %q, got %q", DriverPostgres, DriverSQLite, DriverMemory, c.StorageDriver)
	}

	if !c.IsDev() && len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET of at least 32 characters is required outside development")
	}
	if c.RequestTimeout <= 0 || c.StoreTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT and STORE_TIMEOUT must be positive")
	}
	if c.StoreReadRetries < 1 {
		return fmt.Errorf("STORE_READ_RETRIES must be at least 1, got %d", c.StoreReadRetries)
	}
	if _, err := limiter.NewRateFromFormatted(c.PublicRateLimit); err != nil {
		return fmt.Errorf("PUBLIC_RATE_LIMIT %q: %w", c.PublicRateLimit, err)
	}
	return nil
}

// SigningKey is the HS256 key for bearer tokens. Development falls back to
// a fixed key so that `erx-server token` works without setup.
func (c *Config) SigningKey() []byte {
	if c.JWTSecret == "" && c.IsDev() {
		return []byte("erx-development-signing-key-do-not-use")
	}
	return []byte(c.JWTSecret)
}
