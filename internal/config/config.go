// Package config loads the service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/alex-user-go/rates/internal/quote"
)

// Profiles selected by APP_ENV.
const (
	EnvDevelopment = "development"
	EnvTesting     = "testing"
	EnvProduction  = "production"
)

// Rate limiter state backends.
const (
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
)

// Default values
const (
	defaultListenAddr     = ":8080"
	defaultAPIName        = "Accommodation Rates API"
	defaultVendorURL      = "https://dev.gondwana-collection.com/Web-Store/Rates/Rates.php"
	defaultConnectTimeout = 10 * time.Second
	defaultVendorTimeout  = 30 * time.Second
	defaultCacheTTL       = 30 * time.Second
	defaultStateFile      = "cache/rate_limit.json"
	defaultSQLitePath     = "cache/rate_limit.db"
	defaultRedisKey       = "rates:ratelimit:state"
	defaultStatsPrefix    = "rates:ratelimit:stats"
	defaultStatsTTL       = 24 * time.Hour
	defaultPrimaryDomain  = "yourdomain.com"
)

// Config holds the application configuration.
type Config struct {
	Env        string
	ListenAddr string
	APIName    string
	TrustProxy bool

	Catalog quote.Catalog
	// AvailabilityOverride enables promotion of priced quotes to available.
	AvailabilityOverride bool
	AlwaysAvailable      []string
	// CacheTTL of zero disables the quote cache.
	CacheTTL time.Duration

	Vendor    VendorConfig
	RateLimit RateLimitConfig
	Stats     StatsConfig
	Security  SecurityConfig
	Log       LogConfig
}

// VendorConfig configures the outbound rates call.
type VendorConfig struct {
	URL            string
	Mock           bool
	ConnectTimeout time.Duration
	Timeout        time.Duration
	// RPS of zero disables the outbound throttle.
	RPS   float64
	Burst int
}

// RateLimitConfig configures the per-client limiter and its state store.
type RateLimitConfig struct {
	Enabled  bool
	Requests int
	Window   time.Duration
	Backend  string

	FilePath      string
	SQLitePath    string
	PostgresDSN   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisKey      string
}

// StatsConfig configures limiter decision statistics in Redis.
type StatsConfig struct {
	Enabled   bool
	RedisAddr string
	Prefix    string
	TTL       time.Duration
}

// SecurityConfig configures CORS and response hardening.
type SecurityConfig struct {
	AllowedOrigins []string
	Headers        map[string]string
	RequireHTTPS   bool
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string
	Format string
}

// profile holds the APP_ENV dependent defaults.
type profile struct {
	logLevel     string
	origins      []string
	limitEnabled bool
	requests     int
	window       time.Duration
	backend      string
	headers      map[string]string
	requireHTTPS bool
	trustProxy   bool
}

// Load reads configuration from .env files and environment variables.
// Variables already set in the process environment win over .env entries.
func Load() (*Config, error) {
	for _, path := range getEnvPaths() {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			break
		}
	}

	env := getEnvString("APP_ENV", EnvDevelopment)
	p := profileFor(env)

	catalog := quote.DefaultCatalog()
	if entries := os.Getenv("UNIT_CATALOG"); entries != "" {
		c, err := quote.ParseCatalog(entries)
		if err != nil {
			return nil, fmt.Errorf("UNIT_CATALOG: %w", err)
		}
		catalog = c
	}

	origins := p.origins
	if list := getEnvList("ALLOWED_ORIGINS"); len(list) > 0 {
		origins = list
	}

	cfg := &Config{
		Env:                  env,
		ListenAddr:           getEnvString("LISTEN_ADDR", defaultListenAddr),
		APIName:              getEnvString("API_NAME", defaultAPIName),
		TrustProxy:           getEnvBool("TRUST_PROXY", p.trustProxy),
		Catalog:              catalog,
		AvailabilityOverride: getEnvBool("AVAILABILITY_OVERRIDE", true),
		AlwaysAvailable:      getEnvList("ALWAYS_AVAILABLE_UNITS"),
		CacheTTL:             getEnvDuration("QUOTE_CACHE_TTL", defaultCacheTTL),
		Vendor: VendorConfig{
			URL:            getEnvString("VENDOR_URL", defaultVendorURL),
			Mock:           getEnvBool("VENDOR_MOCK", false),
			ConnectTimeout: getEnvDuration("VENDOR_CONNECT_TIMEOUT", defaultConnectTimeout),
			Timeout:        getEnvDuration("VENDOR_TIMEOUT", defaultVendorTimeout),
			RPS:            getEnvFloat("VENDOR_RPS", 0),
			Burst:          getEnvInt("VENDOR_BURST", 1),
		},
		RateLimit: RateLimitConfig{
			Enabled:       getEnvBool("RATE_LIMIT_ENABLED", p.limitEnabled),
			Requests:      getEnvInt("RATE_LIMIT_REQUESTS", p.requests),
			Window:        getEnvDuration("RATE_LIMIT_WINDOW", p.window),
			Backend:       strings.ToLower(getEnvString("RATE_LIMIT_BACKEND", p.backend)),
			FilePath:      getEnvString("RATE_LIMIT_FILE", defaultStateFile),
			SQLitePath:    getEnvString("RATE_LIMIT_SQLITE_PATH", defaultSQLitePath),
			PostgresDSN:   os.Getenv("RATE_LIMIT_POSTGRES_DSN"),
			RedisAddr:     os.Getenv("RATE_LIMIT_REDIS_ADDR"),
			RedisPassword: os.Getenv("RATE_LIMIT_REDIS_PASSWORD"),
			RedisDB:       getEnvInt("RATE_LIMIT_REDIS_DB", 0),
			RedisKey:      getEnvString("RATE_LIMIT_REDIS_KEY", defaultRedisKey),
		},
		Stats: StatsConfig{
			Enabled:   getEnvBool("RATE_STATS_ENABLED", false),
			RedisAddr: getEnvString("RATE_STATS_REDIS_ADDR", os.Getenv("RATE_LIMIT_REDIS_ADDR")),
			Prefix:    getEnvString("RATE_STATS_PREFIX", defaultStatsPrefix),
			TTL:       getEnvDuration("RATE_STATS_TTL", defaultStatsTTL),
		},
		Security: SecurityConfig{
			AllowedOrigins: origins,
			Headers:        p.headers,
			RequireHTTPS:   getEnvBool("REQUIRE_HTTPS", p.requireHTTPS),
		},
		Log: LogConfig{
			Level:  strings.ToLower(getEnvString("LOG_LEVEL", p.logLevel)),
			Format: strings.ToLower(getEnvString("LOG_FORMAT", "json")),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error

	if c.Catalog.Len() == 0 {
		errs = append(errs, errors.New("unit catalog is empty"))
	}
	if !c.Vendor.Mock {
		if u, err := url.Parse(c.Vendor.URL); err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			errs = append(errs, fmt.Errorf("VENDOR_URL %q is not an http(s) URL", c.Vendor.URL))
		}
	}
	if c.Vendor.ConnectTimeout <= 0 || c.Vendor.Timeout <= 0 {
		errs = append(errs, errors.New("vendor timeouts must be positive"))
	}
	if c.Vendor.RPS < 0 || c.Vendor.Burst < 1 {
		errs = append(errs, errors.New("VENDOR_RPS must not be negative and VENDOR_BURST must be at least 1"))
	}
	if c.CacheTTL < 0 {
		errs = append(errs, errors.New("QUOTE_CACHE_TTL must not be negative"))
	}

	rl := c.RateLimit
	if rl.Requests <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_REQUESTS must be positive"))
	}
	if rl.Window < time.Second {
		errs = append(errs, errors.New("RATE_LIMIT_WINDOW must be at least one second"))
	}
	switch rl.Backend {
	case BackendFile, BackendMemory:
	case BackendSQLite:
		if rl.SQLitePath == "" {
			errs = append(errs, errors.New("RATE_LIMIT_SQLITE_PATH is required for the sqlite backend"))
		}
	case BackendPostgres:
		if rl.PostgresDSN == "" {
			errs = append(errs, errors.New("RATE_LIMIT_POSTGRES_DSN is required for the postgres backend"))
		}
	case BackendRedis:
		if rl.RedisAddr == "" {
			errs = append(errs, errors.New("RATE_LIMIT_REDIS_ADDR is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown RATE_LIMIT_BACKEND %q", rl.Backend))
	}

	if c.Stats.Enabled && c.Stats.RedisAddr == "" {
		errs = append(errs, errors.New("RATE_STATS_REDIS_ADDR is required when RATE_STATS_ENABLED is set"))
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown LOG_LEVEL %q", c.Log.Level))
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		errs = append(errs, fmt.Errorf("unknown LOG_FORMAT %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

// profileFor returns the defaults of an APP_ENV value. Unknown values fall
// back to development.
func profileFor(env string) profile {
	switch env {
	case EnvProduction:
		return profile{
			logLevel:     "warn",
			origins:      productionOrigins(),
			limitEnabled: true,
			requests:     100,
			window:       300 * time.Second,
			backend:      BackendFile,
			requireHTTPS: true,
			// Forwarded headers are client controlled unless a proxy is
			// declared with TRUST_PROXY=true.
			trustProxy: false,
			headers: map[string]string{
				"Strict-Transport-Security": "max-age=31536000; includeSubDomains; preload",
				"X-Content-Type-Options":    "nosniff",
				"X-Frame-Options":           "DENY",
				"X-XSS-Protection":          "1; mode=block",
				"Referrer-Policy":           "strict-origin-when-cross-origin",
				"Content-Security-Policy":   "default-src 'self'; script-src 'self'; style-src 'self'; img-src 'self' data: https:; font-src 'self'; connect-src 'self'",
				"Permissions-Policy":        "geolocation=(), microphone=(), camera=(), payment=()",
				"Expect-CT":                 "max-age=86400, enforce",
			},
		}
	case EnvTesting:
		return profile{
			logLevel:     "debug",
			origins:      []string{"*"},
			limitEnabled: false,
			requests:     10000,
			window:       60 * time.Second,
			backend:      BackendMemory,
			trustProxy:   true,
			headers: map[string]string{
				"X-Content-Type-Options": "nosniff",
				"X-XSS-Protection":       "1; mode=block",
			},
		}
	default:
		return profile{
			logLevel: "debug",
			origins: []string{
				"http://127.0.0.1:5500",
				"http://localhost:5500",
				"http://localhost:3000",
				"http://localhost:8080",
			},
			limitEnabled: false,
			requests:     1000,
			window:       300 * time.Second,
			backend:      BackendFile,
			trustProxy:   true,
			headers: map[string]string{
				"Strict-Transport-Security": "max-age=31536000; includeSubDomains; preload",
				"X-Content-Type-Options":    "nosniff",
				"X-Frame-Options":           "DENY",
				"X-XSS-Protection":          "1; mode=block",
				"Referrer-Policy":           "strict-origin-when-cross-origin",
				"Content-Security-Policy":   "default-src 'self'; script-src 'self' 'unsafe-inline' 'unsafe-eval'; style-src 'self' 'unsafe-inline'; img-src 'self' data: https:; font-src 'self'; connect-src 'self' https:",
				"Permissions-Policy":        "geolocation=(), microphone=(), camera=()",
			},
		}
	}
}

func productionOrigins() []string {
	var origins []string
	for _, key := range []string{"FRONTEND_URL", "ADMIN_URL"} {
		if v := os.Getenv(key); v != "" {
			origins = append(origins, v)
		}
	}
	domain := getEnvString("PRIMARY_DOMAIN", defaultPrimaryDomain)
	return append(origins, "https://"+domain, "https://www."+domain)
}

// getEnvPaths returns a list of paths to check for .env files.
func getEnvPaths() []string {
	cwd, err := os.Getwd()
	if err != nil {
		return nil
	}
	return []string{
		filepath.Join(cwd, ".env"),
		filepath.Join(filepath.Dir(cwd), ".env"),
	}
}

// getEnvString retrieves a string environment variable or returns the default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated variable, dropping empty items.
func getEnvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// getEnvDuration retrieves a duration environment variable or returns the default.
// Accepts values like "30s", "5m", or bare seconds such as "300".
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}
