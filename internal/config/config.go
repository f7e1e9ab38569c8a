package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultSecretKey is the placeholder shipped in .env examples. It is refused
// in production.
const DefaultSecretKey = "your-secret-key-change-in-production"

type Config struct {
	Port       string `mapstructure:"PORT"`
	Env        string `mapstructure:"ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	AppVersion string `mapstructure:"APP_VERSION"`

	LogLevel        string `mapstructure:"LOG_LEVEL"`
	LogFile         string `mapstructure:"LOG_FILE"`
	LogMaxSizeMB    int    `mapstructure:"LOG_MAX_SIZE_MB"`
	LogMaxBackups   int    `mapstructure:"LOG_MAX_BACKUPS"`
	AuditLogEnabled bool   `mapstructure:"AUDIT_LOG_ENABLED"`
	AuditLogFile    string `mapstructure:"AUDIT_LOG_FILE"`

	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`
	RedisURL    string `mapstructure:"REDIS_URL"`

	AuthEnabled  bool     `mapstructure:"AUTH_ENABLED"`
	SecretKey    string   `mapstructure:"SECRET_KEY"`
	AuthIssuer   string   `mapstructure:"AUTH_ISSUER"`
	AuthAudience string   `mapstructure:"AUTH_AUDIENCE"`
	CORSOrigins  []string `mapstructure:"CORS_ORIGINS"`

	RateLimitRPS   float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`

	OpenRouterAPIKey  string        `mapstructure:"OPENROUTER_API_KEY"`
	OpenRouterBaseURL string        `mapstructure:"OPENROUTER_BASE_URL"`
	OpenRouterReferer string        `mapstructure:"OPENROUTER_REFERER"`
	LLMModel          string        `mapstructure:"LLM_MODEL"`
	LLMTimeout        time.Duration `mapstructure:"LLM_TIMEOUT"`
}

var keys = []string{
	"PORT", "ENV", "APP_NAME", "APP_VERSION",
	"LOG_LEVEL", "LOG_FILE", "LOG_MAX_SIZE_MB", "LOG_MAX_BACKUPS", "AUDIT_LOG_ENABLED", "AUDIT_LOG_FILE",
	"DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "REDIS_URL",
	"AUTH_ENABLED", "SECRET_KEY", "AUTH_ISSUER", "AUTH_AUDIENCE", "CORS_ORIGINS",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "REQUEST_TIMEOUT",
	"OPENROUTER_API_KEY", "OPENROUTER_BASE_URL", "OPENROUTER_REFERER", "LLM_MODEL", "LLM_TIMEOUT",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("APP_NAME", "AI Discharge Instructions")
	v.SetDefault("APP_VERSION", "1.0.0")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FILE", "logs/app.log")
	v.SetDefault("LOG_MAX_SIZE_MB", 5)
	v.SetDefault("LOG_MAX_BACKUPS", 3)
	v.SetDefault("AUDIT_LOG_ENABLED", true)
	v.SetDefault("AUDIT_LOG_FILE", "logs/audit.log")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("AUTH_ENABLED", false)
	v.SetDefault("SECRET_KEY", DefaultSecretKey)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000,http://localhost:3001,http://127.0.0.1:3000,http://127.0.0.1:3001")
	v.SetDefault("RATE_LIMIT_RPS", 20)
	v.SetDefault("RATE_LIMIT_BURST", 40)
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1")
	v.SetDefault("LLM_MODEL", "meta-llama/llama-3.2-3b-instruct:free")
	v.SetDefault("LLM_TIMEOUT", "60s")

	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// .env is optional
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) <= 1 {
		if origins := v.GetString("CORS_ORIGINS"); origins != "" {
			cfg.CORSOrigins = splitList(origins)
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// LLMConfigured reports whether an API key for the completion endpoint is set.
func (c *Config) LLMConfigured() bool {
	return strings.TrimSpace(c.OpenRouterAPIKey) != ""
}

// Validate checks that the configuration is safe to run. Bearer auth needs a
// signing key of at least 32 bytes, and production refuses the placeholder key.
func (c *Config) Validate() error {
	if c.AuthEnabled {
		if len(c.SecretKey) < 32 {
			return fmt.Errorf("SECRET_KEY must be at least 32 bytes when AUTH_ENABLED is true, got %d", len(c.SecretKey))
		}
		if c.IsProduction() && c.SecretKey == DefaultSecretKey {
			return fmt.Errorf("SECRET_KEY must be changed from the default in production")
		}
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive, got %s", c.RequestTimeout)
	}
	if c.LLMTimeout <= 0 {
		return fmt.Errorf("LLM_TIMEOUT must be positive, got %s", c.LLMTimeout)
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	return nil
}
