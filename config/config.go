package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Render    RenderConfig
	Quota     QuotaConfig
	Storage   StorageConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
	Webhook   WebhookConfig
	Log       LogConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls the shared Rod browser process.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// MaxContexts caps the number of concurrent browsing contexts.
	MaxContexts int // default: 10

	// DefaultProxy is the default proxy URL for all requests.
	DefaultProxy string

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// IdleTimeout stops the browser after this long without renders.
	IdleTimeout time.Duration // default: 10m

	// MaxUses recycles the browser after this many renders.
	MaxUses int // default: 500

	// MaxAge recycles the browser after it has been running this long.
	MaxAge time.Duration // default: 1h
}

// RenderConfig controls how target pages are fetched.
type RenderConfig struct {
	// Mode selects the engine: "browser", "http" or "auto" (race both).
	Mode string // default: "browser"

	// Timeout is the hard deadline for a single render.
	Timeout time.Duration // default: 30s

	// Stealth injects anti-detection scripts into every page.
	Stealth bool // default: false

	// BlockAds blocks requests to known ad/tracking domains.
	BlockAds bool // default: false

	// BlockedResourceTypes lists resource types to block. Blocking changes
	// the measured page size, so it is empty by default.
	BlockedResourceTypes []string

	// EscalationDelays is the staged start delay for each engine in "auto".
	EscalationDelays []time.Duration // default: [0s, 2s, 8s]

	// HTTPTimeout is the deadline for the pure HTTP engine.
	HTTPTimeout time.Duration // default: 10s
}

// QuotaConfig controls anonymous usage accounting.
type QuotaConfig struct {
	// DailyLimit is the number of analyses an anonymous caller may run per day.
	DailyLimit int // default: 3

	// Timezone names the location whose midnight resets the window.
	Timezone string // default: "UTC"

	// Store selects the backend: "memory", "sqlite" or "redis".
	Store string // default: "memory"
}

// StorageConfig controls persistence backends.
type StorageConfig struct {
	// SQLiteDir is the directory holding sitegrade.db. Empty disables
	// result persistence unless the quota store needs it.
	SQLiteDir string

	RedisAddress  string // default: "localhost:6379"
	RedisPassword string
	RedisDB       int
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// APIKeys is the list of keys that identify signed-in callers.
	// Requests without a key are treated as anonymous.
	APIKeys []string
}

// RateLimitConfig controls per-identity burst limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per identity.
	RequestsPerSecond float64 // default: 2

	// Burst is the maximum burst size per identity.
	Burst int // default: 5
}

// CacheConfig controls the render cache.
type CacheConfig struct {
	// TTL is how long a rendered page may be reused for the same URL.
	// Zero disables the cache.
	TTL time.Duration // default: 0

	// MaxEntries is the maximum number of cached pages.
	MaxEntries int // default: 1000
}

// WebhookConfig controls analysis.completed notifications.
type WebhookConfig struct {
	URL    string
	Secret string
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// Load reads configuration from environment variables with sane defaults.
// A .env file in the working directory is loaded first if present; values
// already set in the environment win.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to load .env file", "error", err)
	}

	return &Config{
		Server: ServerConfig{
			Host: envOr("SITEGRADE_HOST", "0.0.0.0"),
			Port: envIntOr("SITEGRADE_PORT", 8080),
			Mode: envOr("SITEGRADE_MODE", "release"),
		},
		Browser: BrowserConfig{
			Headless:     envBoolOr("SITEGRADE_HEADLESS", true),
			MaxContexts:  envIntOr("SITEGRADE_MAX_CONTEXTS", 10),
			DefaultProxy: os.Getenv("SITEGRADE_PROXY"),
			NoSandbox:    envBoolOr("SITEGRADE_NO_SANDBOX", false),
			BrowserBin:   os.Getenv("SITEGRADE_BROWSER_BIN"),
			IdleTimeout:  envDurationOr("SITEGRADE_BROWSER_IDLE_TIMEOUT", 10*time.Minute),
			MaxUses:      envIntOr("SITEGRADE_BROWSER_MAX_USES", 500),
			MaxAge:       envDurationOr("SITEGRADE_BROWSER_MAX_AGE", time.Hour),
		},
		Render: RenderConfig{
			Mode:                 envOr("SITEGRADE_RENDER_MODE", "browser"),
			Timeout:              envDurationOr("SITEGRADE_RENDER_TIMEOUT", 30*time.Second),
			Stealth:              envBoolOr("SITEGRADE_STEALTH", false),
			BlockAds:             envBoolOr("SITEGRADE_BLOCK_ADS", false),
			BlockedResourceTypes: envSliceOr("SITEGRADE_BLOCKED_RESOURCES", nil),
			EscalationDelays:     envDurationSliceOr("SITEGRADE_ESCALATION_DELAYS", []time.Duration{0, 2 * time.Second, 8 * time.Second}),
			HTTPTimeout:          envDurationOr("SITEGRADE_HTTP_TIMEOUT", 10*time.Second),
		},
		Quota: QuotaConfig{
			DailyLimit: envIntOr("SITEGRADE_QUOTA_DAILY_LIMIT", 3),
			Timezone:   envOr("SITEGRADE_QUOTA_TIMEZONE", "UTC"),
			Store:      envOr("SITEGRADE_QUOTA_STORE", "memory"),
		},
		Storage: StorageConfig{
			SQLiteDir:     os.Getenv("SITEGRADE_SQLITE_DIR"),
			RedisAddress:  envOr("SITEGRADE_REDIS_ADDRESS", "localhost:6379"),
			RedisPassword: os.Getenv("SITEGRADE_REDIS_PASSWORD"),
			RedisDB:       envIntOr("SITEGRADE_REDIS_DB", 0),
		},
		Auth: AuthConfig{
			APIKeys: envSliceOr("SITEGRADE_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("SITEGRADE_RATE_RPS", 2.0),
			Burst:             envIntOr("SITEGRADE_RATE_BURST", 5),
		},
		Cache: CacheConfig{
			TTL:        envDurationOr("SITEGRADE_CACHE_TTL", 0),
			MaxEntries: envIntOr("SITEGRADE_CACHE_MAX_ENTRIES", 1000),
		},
		Webhook: WebhookConfig{
			URL:    os.Getenv("SITEGRADE_WEBHOOK_URL"),
			Secret: os.Getenv("SITEGRADE_WEBHOOK_SECRET"),
		},
		Log: LogConfig{
			Level:  envOr("SITEGRADE_LOG_LEVEL", "info"),
			Format: envOr("SITEGRADE_LOG_FORMAT", "json"),
		},
	}
}

// Location resolves the quota timezone, falling back to UTC when the name
// is unknown.
func (q QuotaConfig) Location() *time.Location {
	loc, err := time.LoadLocation(q.Timezone)
	if err != nil {
		slog.Warn("unknown quota timezone, using UTC", "timezone", q.Timezone, "error", err)
		return time.UTC
	}
	return loc
}

func envDurationSliceOr(key string, fallback []time.Duration) []time.Duration {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]time.Duration, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				if d, err := time.ParseDuration(trimmed); err == nil {
					result = append(result, d)
				}
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
