// Package config loads daemon settings from the environment, an optional
// .env file and an optional config file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "LEDGER"

type Config struct {
	HTTPAddr    string
	DatabaseURL string
	AMQPURL     string
	AMQPQueue   string
	RedisAddr   string
	JWTSecret   string
	TokenTTL    time.Duration
	GenesisPath string
	LogFormat   string
	LogLevel    slog.Level
	CORSOrigins []string
	RateLimit   RateLimit
}

// RateLimit configures the per-caller token bucket.
type RateLimit struct {
	Enabled        bool
	Capacity       int
	RefillTokens   int
	RefillInterval time.Duration
	TTL            time.Duration
	Prefix         string
}

var (
	ErrMissingSecret  = errors.New("config: LEDGER_JWT_SECRET is required")
	ErrMissingGenesis = errors.New("config: LEDGER_GENESIS is required")
)

// New returns a viper instance bound to LEDGER_* environment variables with
// the daemon defaults set.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("http_addr", ":8080")
	v.SetDefault("database_url", "")
	v.SetDefault("amqp_url", "")
	v.SetDefault("amqp_queue", "ledger.receipts")
	v.SetDefault("redis_addr", "")
	v.SetDefault("jwt_secret", "")
	v.SetDefault("token_ttl", "24h")
	v.SetDefault("genesis", "")
	v.SetDefault("log_format", "text")
	v.SetDefault("log_level", "info")
	v.SetDefault("cors_origins", "http://localhost:5173,http://127.0.0.1:5173")
	v.SetDefault("rate_limit_enabled", true)
	v.SetDefault("rate_limit_capacity", 60)
	v.SetDefault("rate_limit_refill_tokens", 1)
	v.SetDefault("rate_limit_refill_interval", "1s")
	v.SetDefault("rate_limit_ttl", "10m")
	v.SetDefault("rate_limit_prefix", "rl")
	return v
}

// LoadDotEnv loads the nearest .env file from the working directory or one of
// its parents. Variables already set in the environment win. It returns the
// path it loaded, or "" when there is none.
func LoadDotEnv() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for i := 0; i < 6; i++ {
		path := filepath.Join(dir, ".env")
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err != nil {
				return path, fmt.Errorf("load %s: %w", path, err)
			}
			return path, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", nil
}

// Load reads the configuration from v. A config file set on v is read first.
func Load(v *viper.Viper) (Config, error) {
	if v.ConfigFileUsed() != "" {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", v.ConfigFileUsed(), err)
		}
	}

	level, err := parseLevel(v.GetString("log_level"))
	if err != nil {
		return Config{}, err
	}
	format := strings.ToLower(v.GetString("log_format"))
	if format != "text" && format != "json" {
		return Config{}, fmt.Errorf("config: log format %q must be text or json", format)
	}

	cfg := Config{
		HTTPAddr:    v.GetString("http_addr"),
		DatabaseURL: v.GetString("database_url"),
		AMQPURL:     v.GetString("amqp_url"),
		AMQPQueue:   v.GetString("amqp_queue"),
		RedisAddr:   v.GetString("redis_addr"),
		JWTSecret:   v.GetString("jwt_secret"),
		TokenTTL:    v.GetDuration("token_ttl"),
		GenesisPath: v.GetString("genesis"),
		LogFormat:   format,
		LogLevel:    level,
		CORSOrigins: parseCSV(v.GetString("cors_origins")),
		RateLimit: RateLimit{
			Enabled:        v.GetBool("rate_limit_enabled"),
			Capacity:       v.GetInt("rate_limit_capacity"),
			RefillTokens:   v.GetInt("rate_limit_refill_tokens"),
			RefillInterval: v.GetDuration("rate_limit_refill_interval"),
			TTL:            v.GetDuration("rate_limit_ttl"),
			Prefix:         v.GetString("rate_limit_prefix"),
		},
	}
	cfg.RateLimit.normalize()
	return cfg, nil
}

// Validate checks the settings the serve command cannot run without.
func (c Config) Validate() error {
	if c.JWTSecret == "" {
		return ErrMissingSecret
	}
	if c.GenesisPath == "" {
		return ErrMissingGenesis
	}
	return nil
}

// Logger builds the slog logger the config asks for.
func (c Config) Logger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.LogLevel}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func (r *RateLimit) normalize() {
	if r.Capacity < 1 {
		r.Capacity = 1
	}
	if r.RefillTokens < 1 {
		r.RefillTokens = 1
	}
	if r.RefillInterval <= 0 {
		r.RefillInterval = time.Second
	}
	if minTTL := 5 * r.RefillInterval; r.TTL < minTTL {
		r.TTL = minTTL
	}
	if r.Prefix == "" {
		r.Prefix = "rl"
	}
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("config: log level %q: %w", s, err)
	}
	return level, nil
}

func parseCSV(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
