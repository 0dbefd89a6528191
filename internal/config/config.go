// Package config provides configuration management using viper.
// It supports loading from YAML files and environment variable overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Log         LogConfig         `mapstructure:"log"`
	Auth        AuthConfig        `mapstructure:"auth"`
	RateLimit   RateLimitConfig   `mapstructure:"ratelimit"`
	Scoring     ScoringConfig     `mapstructure:"scoring"`
	Leaderboard LeaderboardConfig `mapstructure:"leaderboard"`
}

// ServerConfig holds HTTP listener configuration.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// RequestTimeout bounds every handler, and therefore every call to the database.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	PoolSize        int           `mapstructure:"pool_size"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// RedisConfig holds the optional shared counter store configuration.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LogConfig holds logger configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "console" or "json"
}

// AuthConfig holds the verification settings for identity provider tokens.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
	AdminRole string `mapstructure:"admin_role"`
}

// RateLimitConfig holds the named admission policies.
type RateLimitConfig struct {
	// Backend selects the window store: "memory" (per process) or "redis" (shared).
	Backend    string        `mapstructure:"backend"`
	SweepEvery time.Duration `mapstructure:"sweep_every"`
	General    PolicyConfig  `mapstructure:"general"`
	Auth       PolicyConfig  `mapstructure:"auth"`
	Payment    PolicyConfig  `mapstructure:"payment"`
	Upload     PolicyConfig  `mapstructure:"upload"`
}

// PolicyConfig is a single fixed-window admission policy.
type PolicyConfig struct {
	Max     int           `mapstructure:"max"`
	Window  time.Duration `mapstructure:"window"`
	Message string        `mapstructure:"message"`
}

// ScoringConfig holds point award configuration.
type ScoringConfig struct {
	VisitPoints int64 `mapstructure:"visit_points"`
}

// LeaderboardConfig holds competition period configuration.
type LeaderboardConfig struct {
	PeriodDays       int           `mapstructure:"period_days"`
	Timezone         string        `mapstructure:"timezone"`
	ArchiveAfterDays int           `mapstructure:"archive_after_days"`
	ScheduleInterval time.Duration `mapstructure:"schedule_interval"`
	StandingsLimit   int           `mapstructure:"standings_limit"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, sslMode,
	)
}

// Location resolves the configured leaderboard timezone. An empty timezone
// is UTC; Validate rejects names that do not resolve.
func (l *LeaderboardConfig) Location() *time.Location {
	if l.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(l.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Load reads configuration from file and environment variables.
// It looks for config.yaml in the config directory.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// e.g. DATABASE_HOST, RATELIMIT_GENERAL_MAX, AUTH_JWT_SECRET
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file is optional, env vars can provide all config
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks invariants that defaults cannot guarantee.
func (c *Config) Validate() error {
	policies := map[string]PolicyConfig{
		"general": c.RateLimit.General,
		"auth":    c.RateLimit.Auth,
		"payment": c.RateLimit.Payment,
		"upload":  c.RateLimit.Upload,
	}
	for name, p := range policies {
		if p.Max <= 0 {
			return fmt.Errorf("ratelimit.%s.max must be positive, got %d", name, p.Max)
		}
		if p.Window <= 0 {
			return fmt.Errorf("ratelimit.%s.window must be positive, got %s", name, p.Window)
		}
	}
	switch c.RateLimit.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("ratelimit.backend must be memory or redis, got %q", c.RateLimit.Backend)
	}
	if c.RateLimit.Backend == "redis" && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when ratelimit.backend is redis")
	}
	if c.Leaderboard.Timezone != "" {
		if _, err := time.LoadLocation(c.Leaderboard.Timezone); err != nil {
			return fmt.Errorf("leaderboard.timezone %q is not a valid IANA zone: %w", c.Leaderboard.Timezone, err)
		}
	}
	if c.Leaderboard.PeriodDays <= 0 {
		return fmt.Errorf("leaderboard.period_days must be positive, got %d", c.Leaderboard.PeriodDays)
	}
	if c.Scoring.VisitPoints < 0 {
		return fmt.Errorf("scoring.visit_points must not be negative, got %d", c.Scoring.VisitPoints)
	}
	return nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.shutdown_timeout", "20s")
	v.SetDefault("server.request_timeout", "10s")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "menu")
	v.SetDefault("database.name", "menu")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.pool_size", 20)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("auth.admin_role", "admin")

	v.SetDefault("ratelimit.backend", "memory")
	v.SetDefault("ratelimit.sweep_every", "1m")
	v.SetDefault("ratelimit.general.max", 100)
	v.SetDefault("ratelimit.general.window", "1m")
	v.SetDefault("ratelimit.general.message", "Too many requests, please try again later.")
	v.SetDefault("ratelimit.auth.max", 5)
	v.SetDefault("ratelimit.auth.window", "15m")
	v.SetDefault("ratelimit.auth.message", "Too many authentication attempts, please try again later.")
	v.SetDefault("ratelimit.payment.max", 10)
	v.SetDefault("ratelimit.payment.window", "1h")
	v.SetDefault("ratelimit.payment.message", "Too many payment requests, please try again later.")
	v.SetDefault("ratelimit.upload.max", 20)
	v.SetDefault("ratelimit.upload.window", "1h")
	v.SetDefault("ratelimit.upload.message", "Too many uploads, please try again later.")

	v.SetDefault("scoring.visit_points", 10)

	v.SetDefault("leaderboard.period_days", 7)
	v.SetDefault("leaderboard.timezone", "UTC")
	v.SetDefault("leaderboard.archive_after_days", 28)
	v.SetDefault("leaderboard.schedule_interval", "15m")
	v.SetDefault("leaderboard.standings_limit", 10)
}
