// Package config handles configuration for the server, including defaults,
// environment variables and command-line flags (applied in that order).
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/shalteor/bplog/internal/crypto"
)

var ErrMissingSessionSecret = errors.New("session secret is required; set SESSION_SECRET or -session-secret")

// Config holds runtime settings for the server.
//
// Timezone is the civil zone used for server generated timestamps and for
// input timestamps without an explicit offset.
type Config struct {
	Addr           string
	DBPath         string
	SessionSecret  string
	SessionTTL     time.Duration
	TimezoneName   string
	Timezone       *time.Location
	PasswordHash   crypto.Algorithm
	MaxUploadBytes int64
	AllowedOrigins []string
	CookieSecure   bool
	LogLevel       string
	LogFormat      string
}

// LoadDefaults populates Config with development defaults.
func (c *Config) LoadDefaults() {
	c.Addr = ":8080"
	c.DBPath = "bp.db"
	c.SessionTTL = 24 * time.Hour
	c.TimezoneName = "Europe/Berlin"
	c.PasswordHash = crypto.AlgorithmArgon2id
	c.MaxUploadBytes = 10 << 20
	c.AllowedOrigins = []string{"http://localhost:8080", "http://127.0.0.1:8080"}
	c.LogLevel = "info"
	c.LogFormat = "json"
}

// Load builds a Config from defaults, then the environment, then args
// (normally os.Args[1:]).
func Load(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}
	if err := cfg.parseFlags(args); err != nil {
		return nil, err
	}
	if err := cfg.finalize(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadEnv() error {
	c.Addr = getEnv("HTTP_ADDR", c.Addr)
	c.DBPath = getEnv("DB_PATH", c.DBPath)
	c.SessionSecret = getEnv("SESSION_SECRET", c.SessionSecret)
	c.TimezoneName = getEnv("APP_TIMEZONE", c.TimezoneName)
	c.PasswordHash = crypto.Algorithm(getEnv("PASSWORD_HASH", string(c.PasswordHash)))
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)

	if v := os.Getenv("SESSION_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid SESSION_TTL %q: %w", v, err)
		}
		c.SessionTTL = d
	}
	if v := os.Getenv("MAX_UPLOAD_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid MAX_UPLOAD_BYTES %q: %w", v, err)
		}
		c.MaxUploadBytes = n
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		c.AllowedOrigins = splitList(v)
	}
	if v := os.Getenv("COOKIE_SECURE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid COOKIE_SECURE %q: %w", v, err)
		}
		c.CookieSecure = b
	}

	return nil
}

func (c *Config) parseFlags(args []string) error {
	fs := flag.NewFlagSet("bplog", flag.ContinueOnError)

	fs.StringVar(&c.Addr, "addr", c.Addr, "HTTP listen address")
	fs.StringVar(&c.DBPath, "db", c.DBPath, "SQLite database path")
	fs.StringVar(&c.SessionSecret, "session-secret", c.SessionSecret, "HMAC secret for session tokens")
	fs.DurationVar(&c.SessionTTL, "session-ttl", c.SessionTTL, "session lifetime")
	fs.StringVar(&c.TimezoneName, "timezone", c.TimezoneName, "default timezone for readings")
	passwordHash := fs.String("password-hash", string(c.PasswordHash), "password hash algorithm (argon2id|bcrypt)")
	fs.Int64Var(&c.MaxUploadBytes, "max-upload", c.MaxUploadBytes, "maximum bulk upload size in bytes")
	origins := fs.String("cors-origins", strings.Join(c.AllowedOrigins, ","), "comma separated allowed CORS origins")
	fs.BoolVar(&c.CookieSecure, "cookie-secure", c.CookieSecure, "mark session cookies Secure")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level (debug|info|warn|error)")
	fs.StringVar(&c.LogFormat, "log-format", c.LogFormat, "log format (json|console)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	c.PasswordHash = crypto.Algorithm(*passwordHash)
	c.AllowedOrigins = splitList(*origins)

	return nil
}

func (c *Config) finalize() error {
	if c.SessionSecret == "" {
		return ErrMissingSessionSecret
	}

	loc, err := time.LoadLocation(c.TimezoneName)
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.TimezoneName, err)
	}
	c.Timezone = loc

	alg, err := crypto.ParseAlgorithm(string(c.PasswordHash))
	if err != nil {
		return err
	}
	c.PasswordHash = alg

	if c.SessionTTL <= 0 {
		return fmt.Errorf("session ttl must be positive, got %s", c.SessionTTL)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("max upload bytes must be positive, got %d", c.MaxUploadBytes)
	}

	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
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
