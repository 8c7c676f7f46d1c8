// Package config loads service settings from defaults, an optional file and
// ACCOUNTS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. ACCOUNTS_DATABASE_DSN.
const EnvPrefix = "ACCOUNTS"

type Config struct {
	HTTP      HTTPConfig      `mapstructure:"http"`
	GRPC      GRPCConfig      `mapstructure:"grpc"`
	Store     string          `mapstructure:"store"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Log       LogConfig       `mapstructure:"log"`
	Mail      MailConfig      `mapstructure:"mail"`
	Links     LinksConfig     `mapstructure:"links"`
	Session   SessionConfig   `mapstructure:"session"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	CORS      CORSConfig      `mapstructure:"cors"`
	Security  SecurityConfig  `mapstructure:"security"`
}

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
}

type GRPCConfig struct {
	Addr string `mapstructure:"addr"`
}

type DatabaseConfig struct {
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Output string `mapstructure:"output"`
	Path   string `mapstructure:"path"`
}

type MailConfig struct {
	Mode      string `mapstructure:"mode"`
	SMTPHost  string `mapstructure:"smtp_host"`
	SMTPPort  int    `mapstructure:"smtp_port"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	From      string `mapstructure:"from"`
	Workers   int    `mapstructure:"workers"`
	QueueSize int    `mapstructure:"queue_size"`
}

type LinksConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Product string `mapstructure:"product"`
}

type SessionConfig struct {
	TTL          time.Duration `mapstructure:"ttl"`
	CookieName   string        `mapstructure:"cookie_name"`
	CookieSecure bool          `mapstructure:"cookie_secure"`
}

type RateLimitConfig struct {
	Burst     int     `mapstructure:"burst"`
	PerSecond float64 `mapstructure:"per_second"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type SecurityConfig struct {
	RevokeSessionsOnReset bool `mapstructure:"revoke_sessions_on_reset"`
}

var defaults = map[string]any{
	"http.addr":                         ":8080",
	"http.shutdown_timeout":             "10s",
	"http.max_body_bytes":               1 << 20,
	"grpc.addr":                         ":9090",
	"store":                             "postgres",
	"database.dsn":                      "",
	"database.max_open_conns":           50,
	"database.max_idle_conns":           25,
	"log.level":                         "info",
	"log.output":                        "stdout",
	"log.path":                          "logs",
	"mail.mode":                         "log",
	"mail.smtp_host":                    "",
	"mail.smtp_port":                    587,
	"mail.username":                     "",
	"mail.password":                     "",
	"mail.from":                         "no-reply@localhost",
	"mail.workers":                      2,
	"mail.queue_size":                   100,
	"links.base_url":                    "http://localhost:3000",
	"links.product":                     "Accounts",
	"session.ttl":                       "24h",
	"session.cookie_name":               "user_session",
	"session.cookie_secure":             true,
	"ratelimit.burst":                   20,
	"ratelimit.per_second":              5.0,
	"cors.allowed_origins":              []string{},
	"security.revoke_sessions_on_reset": true,
}

// Load reads defaults, then path when non-empty, then the environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read configuration file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	var errs []error
	switch c.Store {
	case "postgres":
		if c.Database.DSN == "" {
			errs = append(errs, errors.New("database.dsn is required when store=postgres"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("store must be postgres or memory, got %q", c.Store))
	}
	switch c.Mail.Mode {
	case "smtp":
		if c.Mail.SMTPHost == "" || c.Mail.SMTPPort <= 0 {
			errs = append(errs, errors.New("mail.smtp_host and mail.smtp_port are required when mail.mode=smtp"))
		}
	case "log":
	default:
		errs = append(errs, fmt.Errorf("mail.mode must be smtp or log, got %q", c.Mail.Mode))
	}
	switch c.Log.Output {
	case "stdout", "file":
	default:
		errs = append(errs, fmt.Errorf("log.output must be stdout or file, got %q", c.Log.Output))
	}
	if u, err := url.Parse(c.Links.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("links.base_url must be an absolute url, got %q", c.Links.BaseURL))
	}
	if c.Session.TTL <= 0 {
		errs = append(errs, errors.New("session.ttl must be positive"))
	}
	if c.Session.CookieName == "" {
		errs = append(errs, errors.New("session.cookie_name is required"))
	}
	if c.RateLimit.Burst <= 0 || c.RateLimit.PerSecond <= 0 {
		errs = append(errs, errors.New("ratelimit.burst and ratelimit.per_second must be positive"))
	}
	return errors.Join(errs...)
}
