package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const placeholderSecret = "change-me"

type Config struct {
	// HTTP Server
	Port              string
	FrontendURL       string
	RateLimitPerMin   int
	BillsCacheTTL     time.Duration
	BillsCacheEntries int

	// Database
	SQLiteDBPath string

	// AMQP (optional, sync runs in-process without it)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google OAuth
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURI  string

	// Session tokens
	JWTSecret      string
	JWTExpireHours int

	// Extraction
	GigaChatAPIKey             string
	GigaChatScope              string
	GigaChatInsecureSkipVerify bool
	OCRLanguages               []string

	// Sync
	SyncQuery       string
	SyncMaxMessages int
	SyncConcurrency int
	SyncStaleAfter  time.Duration

	// Logging
	LogLevel  string
	LogFormat string
}

// DefaultSyncQuery selects mails that look like bills or receipts.
const DefaultSyncQuery = "has:attachment OR subject:(bill OR invoice OR חשבונית OR קבלה)"

// Load reads an optional .env file and then the process environment.
func Load() *Config {
	// Missing .env is fine outside local development
	_ = godotenv.Load()

	return &Config{
		Port:              getEnv("PORT", "8000"),
		FrontendURL:       strings.TrimRight(getEnv("FRONTEND_URL", ""), "/"),
		RateLimitPerMin:   getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
		BillsCacheTTL:     getEnvDuration("BILLS_CACHE_TTL", 2*time.Minute),
		BillsCacheEntries: getEnvInt("BILLS_CACHE_ENTRIES", 500),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/billscan.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "billscan"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "sync_bills"),

		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURI:  getEnv("GOOGLE_REDIRECT_URI", "http://localhost:8000/auth/google/callback"),

		JWTSecret:      getEnv("JWT_SECRET", placeholderSecret),
		JWTExpireHours: getEnvInt("JWT_EXPIRE_HOURS", 24),

		GigaChatAPIKey:             getEnv("GIGACHAT_API_KEY", ""),
		GigaChatScope:              getEnv("GIGACHAT_SCOPE", "GIGACHAT_API_PERS"),
		GigaChatInsecureSkipVerify: getEnvBool("GIGACHAT_INSECURE_SKIP_VERIFY", false),
		OCRLanguages:               splitList(getEnv("OCR_LANGUAGES", "eng+heb")),

		SyncQuery:       getEnv("SYNC_QUERY", DefaultSyncQuery),
		SyncMaxMessages: getEnvInt("SYNC_MAX_MESSAGES", 50),
		SyncConcurrency: getEnvInt("SYNC_CONCURRENCY", 4),
		SyncStaleAfter:  getEnvDuration("SYNC_STALE_AFTER", 15*time.Minute),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}
}

// JWTExpiry is the lifetime of issued session tokens.
func (c *Config) JWTExpiry() time.Duration {
	return time.Duration(c.JWTExpireHours) * time.Hour
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	} else {
		dir := filepath.Dir(c.SQLiteDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.FrontendURL != "" {
		if u, err := url.Parse(c.FrontendURL); err != nil || u.Scheme == "" || u.Host == "" {
			errors = append(errors, fmt.Sprintf("invalid FRONTEND_URL '%s': must be an absolute URL", c.FrontendURL))
		}
	}

	if c.GoogleClientID == "" {
		errors = append(errors, "GOOGLE_CLIENT_ID is required")
	}
	if c.GoogleClientSecret == "" {
		errors = append(errors, "GOOGLE_CLIENT_SECRET is required")
	}
	if u, err := url.Parse(c.GoogleRedirectURI); err != nil || u.Scheme == "" || u.Host == "" {
		errors = append(errors, fmt.Sprintf("invalid GOOGLE_REDIRECT_URI '%s': must be an absolute URL", c.GoogleRedirectURI))
	}

	if c.JWTSecret == placeholderSecret || c.JWTSecret == "" {
		errors = append(errors, "JWT_SECRET must be set")
	} else if len(c.JWTSecret) < 16 {
		errors = append(errors, "JWT_SECRET must be at least 16 bytes")
	}
	if c.JWTExpireHours < 1 || c.JWTExpireHours > 24*30 {
		errors = append(errors, fmt.Sprintf("invalid JWT expiry %dh: must be between 1 and 720 hours", c.JWTExpireHours))
	}

	if c.SyncMaxMessages < 1 || c.SyncMaxMessages > 500 {
		errors = append(errors, fmt.Sprintf("invalid sync max messages %d: must be between 1 and 500", c.SyncMaxMessages))
	}
	if c.SyncConcurrency < 1 || c.SyncConcurrency > 32 {
		errors = append(errors, fmt.Sprintf("invalid sync concurrency %d: must be between 1 and 32", c.SyncConcurrency))
	}
	if c.SyncStaleAfter < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid sync stale timeout %v: must be at least 1 minute", c.SyncStaleAfter))
	}
	if c.RateLimitPerMin < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1", c.RateLimitPerMin))
	}
	if c.BillsCacheEntries < 1 {
		errors = append(errors, fmt.Sprintf("invalid bills cache size %d: must be at least 1", c.BillsCacheEntries))
	}

	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be 'text' or 'json'", c.LogFormat))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// ValidateWorker checks only what the sync worker needs. The worker never
// issues session tokens and does not listen on a port.
func (c *Config) ValidateWorker() error {
	var errors []string
	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	}
	if c.AMQPURL == "" {
		errors = append(errors, "AMQP_URL is required for the worker")
	}
	if c.GoogleClientID == "" || c.GoogleClientSecret == "" {
		errors = append(errors, "GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET are required to refresh Gmail tokens")
	}
	if c.SyncConcurrency < 1 {
		errors = append(errors, fmt.Sprintf("invalid sync concurrency %d: must be at least 1", c.SyncConcurrency))
	}
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// splitList splits "eng+heb" or "eng,heb" into its parts.
func splitList(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == '+' || r == ',' })
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
