package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Security  SecurityConfig  `mapstructure:"security"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Analytics AnalyticsConfig `mapstructure:"analytics"`
	Log       LogConfig       `mapstructure:"log"`
}

// ServerConfig holds server-related configuration.
type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	Host            string        `mapstructure:"host"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds database-related configuration.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// SecurityConfig holds security-related configuration.
type SecurityConfig struct {
	// Max request body size in bytes (default: 10MB)
	MaxRequestBodySize int64 `mapstructure:"max_request_body_size"`
	// Allowed CORS origins (comma-separated)
	AllowedOrigins string `mapstructure:"allowed_origins"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Rate    int  `mapstructure:"rate"`
	Window  int  `mapstructure:"window"` // in seconds
}

// CacheConfig selects the analytics cache. An empty RedisAddr means in-memory.
type CacheConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	TTL           time.Duration `mapstructure:"ttl"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	KeyPrefix     string        `mapstructure:"key_prefix"`
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
	Environment string `mapstructure:"environment"`
}

// AnalyticsConfig holds dashboard defaults.
type AnalyticsConfig struct {
	Timezone string `mapstructure:"timezone"`
	// StartFrom is a fixed lower bound on win_date (YYYY-MM-DD); empty disables it.
	StartFrom string `mapstructure:"start_from"`
	// UserFields are identifier names tried in order when a request names none.
	UserFields       []string `mapstructure:"user_fields"`
	TrimTrailingZero bool     `mapstructure:"trim_trailing_zero"`
	EventHooks       bool     `mapstructure:"event_hooks"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// envBindings keeps the short variable names working alongside the
// SECTION_KEY form derived automatically from each key.
var envBindings = map[string]string{
	"cache.redis_addr":               "REDIS_ADDR",
	"cache.redis_password":           "REDIS_PASSWORD",
	"cache.redis_db":                 "REDIS_DB",
	"security.max_request_body_size": "MAX_REQUEST_BODY_SIZE",
	"security.allowed_origins":       "ALLOWED_ORIGINS",
	"tracing.endpoint":               "JAEGER_ENDPOINT",
	"log.level":                      "LOG_LEVEL",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.host", "")
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("database.path", "./qr_campaign.db")

	v.SetDefault("security.max_request_body_size", int64(10<<20)) // 10MB
	v.SetDefault("security.allowed_origins", "*")

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.rate", 100)
	v.SetDefault("rate_limit.window", 60)

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.ttl", 5*time.Minute)
	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.key_prefix", "qrca:")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "http://localhost:14268/api/traces")
	v.SetDefault("tracing.service_name", "qr-campaign-analytics")
	v.SetDefault("tracing.environment", "development")

	v.SetDefault("analytics.timezone", "Asia/Yerevan")
	v.SetDefault("analytics.start_from", "")
	v.SetDefault("analytics.user_fields", []string{"user_id", "customer_id", "msisdn", "phone", "user"})
	v.SetDefault("analytics.trim_trailing_zero", true)
	v.SetDefault("analytics.event_hooks", true)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// LoadConfig loads configuration from defaults, an optional config file and
// environment variables. Environment variables take precedence over file values.
// A .env file in the working directory is loaded first when present.
func LoadConfig(configFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envBindings {
		if err := v.BindEnv(key, strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("failed to bind env %s: %w", env, err)
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.Rate <= 0 {
			return fmt.Errorf("rate limit rate must be positive")
		}
		if c.RateLimit.Window <= 0 {
			return fmt.Errorf("rate limit window must be positive")
		}
	}
	if c.Cache.Enabled && c.Cache.TTL <= 0 {
		return fmt.Errorf("cache ttl must be positive")
	}
	if _, err := time.LoadLocation(c.Analytics.Timezone); err != nil {
		return fmt.Errorf("invalid analytics timezone %q: %w", c.Analytics.Timezone, err)
	}
	if c.Analytics.StartFrom != "" {
		if _, err := time.Parse(time.DateOnly, c.Analytics.StartFrom); err != nil {
			return fmt.Errorf("invalid analytics start_from %q: %w", c.Analytics.StartFrom, err)
		}
	}
	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		return fmt.Errorf("tracing endpoint is required when tracing is enabled")
	}
	return nil
}

// StartFromTime returns the parsed start_from bound, or the zero time.
func (c *Config) StartFromTime() time.Time {
	t, err := time.Parse(time.DateOnly, c.Analytics.StartFrom)
	if err != nil {
		return time.Time{}
	}
	return t
}
