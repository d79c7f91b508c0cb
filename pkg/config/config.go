package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env  string
	Port int

	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	CORS      CORSConfig
	Log       LogConfig
	NATS      NATSConfig
	Ledger    LedgerConfig
	RateLimit RateLimitConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

// DSN builds the postgres connection string, escaping credentials.
func (c DatabaseConfig) DSN() string {
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Name,
		RawQuery: "sslmode=" + c.SSLMode,
	}
	return u.String()
}

// RedisConfig backs the listing cache. Disabled means revalidation only reaches websocket clients.
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
	CacheTTL time.Duration
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// NATSConfig configures the order notification publisher. An empty URL disables publishing.
type NATSConfig struct {
	URL           string
	SubjectPrefix string
}

// LedgerConfig tunes stock ledger behaviour.
type LedgerConfig struct {
	// TrackStockEdits routes UPDATE_PRODUCT_STOCK through the ADJUSTMENT ledger path.
	// When false, direct stock edits are applied without a ledger row.
	TrackStockEdits      bool
	ReconcileConcurrency int
}

// RateLimitConfig throttles approval submissions per user.
type RateLimitConfig struct {
	SubmissionsPerMinute int
	Burst                int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSLMODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("REDIS_ENABLED"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
		CacheTTL: parseDuration(v.GetString("CACHE_TTL"), 5*time.Minute),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.NATS = NATSConfig{
		URL:           v.GetString("NATS_URL"),
		SubjectPrefix: v.GetString("NATS_SUBJECT_PREFIX"),
	}

	cfg.Ledger = LedgerConfig{
		TrackStockEdits:      v.GetBool("LEDGER_TRACK_STOCK_EDITS"),
		ReconcileConcurrency: v.GetInt("LEDGER_RECONCILE_CONCURRENCY"),
	}

	cfg.RateLimit = RateLimitConfig{
		SubmissionsPerMinute: v.GetInt("RATE_LIMIT_SUBMISSIONS_PER_MINUTE"),
		Burst:                v.GetInt("RATE_LIMIT_BURST"),
	}

	if cfg.Env == EnvProduction && cfg.JWT.Secret == "dev_secret" {
		return nil, errors.New("JWT_SECRET must be set in production")
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "storefront")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("CACHE_TTL", "5m")

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")

	v.SetDefault("ALLOWED_ORIGINS", "http://localhost:3000")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("NATS_URL", "")
	v.SetDefault("NATS_SUBJECT_PREFIX", "notifications.store")

	v.SetDefault("LEDGER_TRACK_STOCK_EDITS", true)
	v.SetDefault("LEDGER_RECONCILE_CONCURRENCY", 8)

	v.SetDefault("RATE_LIMIT_SUBMISSIONS_PER_MINUTE", 30)
	v.SetDefault("RATE_LIMIT_BURST", 10)
}

// isMissingFile covers viper returning a plain fs error for an explicit SetConfigFile path.
func isMissingFile(err error) bool {
	return strings.Contains(err.Error(), "no such file or directory")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
