package config

import (
	"errors"
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
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Log      LogConfig
	Gateway  GatewayConfig
	Billing  BillingConfig
	Sweeper  SweeperConfig
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

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// GatewayConfig holds payment-gateway credentials and call bounds.
type GatewayConfig struct {
	ServerKey  string
	ClientKey  string
	Production bool
	Timeout    time.Duration
}

// BillingConfig tunes the installment engine.
type BillingConfig struct {
	GraceDays         int
	DueDayMin         int
	DueDayMax         int
	ReminderLookahead time.Duration
	SummaryCacheTTL   time.Duration
	Currency          string
}

// SweeperConfig controls the overdue sweep batch job.
type SweeperConfig struct {
	Enabled  bool
	Interval time.Duration
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
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret: v.GetString("JWT_SECRET"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Gateway = GatewayConfig{
		ServerKey:  v.GetString("GATEWAY_SERVER_KEY"),
		ClientKey:  v.GetString("GATEWAY_CLIENT_KEY"),
		Production: v.GetBool("GATEWAY_PRODUCTION"),
		Timeout:    parseDuration(v.GetString("GATEWAY_TIMEOUT"), 15*time.Second),
	}

	cfg.Billing = BillingConfig{
		GraceDays:         v.GetInt("BILLING_GRACE_DAYS"),
		DueDayMin:         v.GetInt("BILLING_DUE_DAY_MIN"),
		DueDayMax:         v.GetInt("BILLING_DUE_DAY_MAX"),
		ReminderLookahead: parseDuration(v.GetString("BILLING_REMINDER_LOOKAHEAD"), 5*24*time.Hour),
		SummaryCacheTTL:   parseDuration(v.GetString("BILLING_SUMMARY_CACHE_TTL"), 2*time.Minute),
		Currency:          v.GetString("BILLING_CURRENCY"),
	}

	cfg.Sweeper = SweeperConfig{
		Enabled:  v.GetBool("SWEEPER_ENABLED"),
		Interval: parseDuration(v.GetString("SWEEPER_INTERVAL"), 24*time.Hour),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "lms_billing")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("GATEWAY_SERVER_KEY", "")
	v.SetDefault("GATEWAY_CLIENT_KEY", "")
	v.SetDefault("GATEWAY_PRODUCTION", false)
	v.SetDefault("GATEWAY_TIMEOUT", "15s")

	v.SetDefault("BILLING_GRACE_DAYS", 3)
	v.SetDefault("BILLING_DUE_DAY_MIN", 1)
	v.SetDefault("BILLING_DUE_DAY_MAX", 15)
	v.SetDefault("BILLING_REMINDER_LOOKAHEAD", "120h")
	v.SetDefault("BILLING_SUMMARY_CACHE_TTL", "2m")
	v.SetDefault("BILLING_CURRENCY", "INR")

	v.SetDefault("SWEEPER_ENABLED", true)
	v.SetDefault("SWEEPER_INTERVAL", "24h")
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
