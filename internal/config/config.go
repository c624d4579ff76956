package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port         string
	CookieSecure bool
	// MaxUploadBytes bounds the multipart form the frontend parses.
	MaxUploadBytes     int64
	RateLimitPerMinute int
	// TrustedProxies are CIDRs whose forwarding headers are believed.
	TrustedProxies []string

	// Receipt backend
	BackendURL string

	// Ledger view
	DismissDelay time.Duration
	SessionTTL   time.Duration

	// Receipt previews
	PreviewCacheSize int
	PreviewTTL       time.Duration

	// Ingestion journal, empty disables it
	JournalDBPath string

	// AMQP, empty URL disables publishing
	AMQPURL        string
	AMQPExchange   string
	AMQPRoutingKey string
	// WorkerPrefetch bounds unacknowledged deliveries held by the journal worker.
	WorkerPrefetch int

	LogLevel string
}

func Load() *Config {
	cfg := &Config{
		Port:               getEnv("PORT", "8080"),
		CookieSecure:       getEnvBool("COOKIE_SECURE", false),
		MaxUploadBytes:     int64(getEnvInt("MAX_UPLOAD_BYTES", 20<<20)),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
		TrustedProxies:     getEnvList("TRUSTED_PROXIES"),

		BackendURL: getEnv("BACKEND_URL", "http://localhost:8000"),

		DismissDelay: getEnvDuration("DISMISS_DELAY", 1200*time.Millisecond),
		SessionTTL:   getEnvDuration("SESSION_TTL", 12*time.Hour),

		PreviewCacheSize: getEnvInt("PREVIEW_CACHE_SIZE", 256),
		PreviewTTL:       getEnvDuration("PREVIEW_TTL", 30*time.Minute),

		JournalDBPath: getEnv("JOURNAL_DB_PATH", ""),

		AMQPURL:        getEnv("AMQP_URL", ""),
		AMQPExchange:   getEnv("AMQP_EXCHANGE", "ledger"),
		AMQPRoutingKey: getEnv("AMQP_ROUTING_KEY", "ingestion"),
		WorkerPrefetch: getEnvInt("WORKER_PREFETCH", 8),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return cfg
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

	// Validate backend URL
	if parsedURL, err := url.Parse(c.BackendURL); err != nil || c.BackendURL == "" {
		errors = append(errors, fmt.Sprintf("invalid backend URL '%s'", c.BackendURL))
	} else if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		errors = append(errors, fmt.Sprintf("invalid backend URL scheme '%s': must be 'http' or 'https'", parsedURL.Scheme))
	} else if parsedURL.Host == "" {
		errors = append(errors, fmt.Sprintf("invalid backend URL '%s': missing host", c.BackendURL))
	}

	if c.DismissDelay <= 0 {
		errors = append(errors, fmt.Sprintf("invalid dismiss delay %v: must be positive", c.DismissDelay))
	} else if c.DismissDelay > time.Minute {
		errors = append(errors, fmt.Sprintf("invalid dismiss delay %v: must be at most 1 minute", c.DismissDelay))
	}

	if c.SessionTTL < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid session TTL %v: must be at least 1 minute", c.SessionTTL))
	}

	if c.PreviewCacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid preview cache size %d: must be at least 1", c.PreviewCacheSize))
	} else if c.PreviewCacheSize > 100000 {
		errors = append(errors, fmt.Sprintf("invalid preview cache size %d: must be at most 100000", c.PreviewCacheSize))
	}
	if c.PreviewTTL < time.Second {
		errors = append(errors, fmt.Sprintf("invalid preview TTL %v: must be at least 1 second", c.PreviewTTL))
	}

	if c.MaxUploadBytes < 1<<10 {
		errors = append(errors, fmt.Sprintf("invalid max upload bytes %d: must be at least 1024", c.MaxUploadBytes))
	}

	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 per minute", c.RateLimitPerMinute))
	}

	for _, cidr := range c.TrustedProxies {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			errors = append(errors, fmt.Sprintf("invalid trusted proxy '%s': must be a CIDR", cidr))
		}
	}

	// Check the journal directory exists or can be created
	if c.JournalDBPath != "" {
		dir := filepath.Dir(c.JournalDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create journal database directory '%s': %v", dir, err))
				}
			}
		}
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPRoutingKey == "" {
			errors = append(errors, "AMQP routing key cannot be empty when AMQP URL is provided")
		}
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of debug, info, warn, error", c.LogLevel))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// ValidateWorker checks the settings the journal worker needs on top of
// Validate: it consumes from the broker and owns the journal.
func (c *Config) ValidateWorker() error {
	if err := c.Validate(); err != nil {
		return err
	}
	var errors []string
	if c.JournalDBPath == "" {
		errors = append(errors, "JOURNAL_DB_PATH is required for the journal worker")
	}
	if c.AMQPURL == "" {
		errors = append(errors, "AMQP_URL is required for the journal worker")
	}
	if c.WorkerPrefetch < 1 || c.WorkerPrefetch > 1000 {
		errors = append(errors, fmt.Sprintf("invalid worker prefetch %d: must be between 1 and 1000", c.WorkerPrefetch))
	}
	if len(errors) > 0 {
		return fmt.Errorf("worker configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + c.Port
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
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
