package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// monthEnvKeys maps month number to the env var naming that month's
// standing return document on the backend.
var monthEnvKeys = map[int]string{
	1:  "RETURN_ID_JAN",
	2:  "RETURN_ID_FEB",
	3:  "RETURN_ID_MAR",
	4:  "RETURN_ID_APR",
	5:  "RETURN_ID_MAY",
	6:  "RETURN_ID_JUN",
	7:  "RETURN_ID_JUL",
	8:  "RETURN_ID_AUG",
	9:  "RETURN_ID_SEP",
	10: "RETURN_ID_OCT",
	11: "RETURN_ID_NOV",
	12: "RETURN_ID_DEC",
}

type Config struct {
	// HTTP Server
	Port string

	// Backend selection
	DataBackend string

	// Remote backend
	BackendURL  string
	HTTPTimeout time.Duration

	// Database
	SQLiteDBPath string

	// AMQP repair queue
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Session verification
	AuthEnabled bool
	VerifyTTL   time.Duration

	// Service credential for the repair worker's backend writes
	WorkerToken string

	// Rate limiting
	RateLimitPerSecond float64
	RateLimitBurst     int

	// Standing per-month return documents for the payee summary
	MonthReturnIDs map[int]string
}

func Load() *Config {
	cfg := &Config{
		Port: getEnv("PORT", "8080"),

		DataBackend: getEnv("DATA_BACKEND", "remote"),

		BackendURL:  getEnv("BACKEND_URL", ""),
		HTTPTimeout: getEnvDuration("HTTP_TIMEOUT", 30*time.Second),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/paidback.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "paidback"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "return_repairs"),

		AuthEnabled: getEnvBool("AUTH_ENABLED", true),
		VerifyTTL:   getEnvDuration("VERIFY_TTL", 5*time.Minute),

		WorkerToken: getEnv("WORKER_TOKEN", ""),

		RateLimitPerSecond: getEnvFloat("RATE_LIMIT_PER_SECOND", 10),
		RateLimitBurst:     getEnvInt("RATE_LIMIT_BURST", 30),

		MonthReturnIDs: loadMonthReturnIDs(),
	}

	return cfg
}

func loadMonthReturnIDs() map[int]string {
	ids := make(map[int]string)
	for month, key := range monthEnvKeys {
		if v := os.Getenv(key); v != "" {
			ids[month] = v
		}
	}
	return ids
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	validBackends := []string{"remote", "sqlite", "memory"}
	isValidBackend := false
	for _, backend := range validBackends {
		if c.DataBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if c.DataBackend == "remote" {
		if c.BackendURL == "" {
			errors = append(errors, "backend URL cannot be empty when using remote backend")
		} else if parsedURL, err := url.Parse(c.BackendURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid backend URL '%s': %v", c.BackendURL, err))
		} else if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
			errors = append(errors, fmt.Sprintf("invalid backend URL scheme '%s': must be 'http' or 'https'", parsedURL.Scheme))
		}
	}

	// Session verification reaches the same remote API; authenticated
	// deployments need it even on a local data backend.
	if c.AuthEnabled && c.BackendURL == "" {
		errors = append(errors, "backend URL is required when auth is enabled")
	}

	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
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

	if c.HTTPTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid HTTP timeout %v: must be at least 1 second", c.HTTPTimeout))
	}
	if c.VerifyTTL < time.Second {
		errors = append(errors, fmt.Sprintf("invalid verify TTL %v: must be at least 1 second", c.VerifyTTL))
	}
	if c.RateLimitPerSecond <= 0 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %v: must be positive", c.RateLimitPerSecond))
	}
	if c.RateLimitBurst < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit burst %d: must be at least 1", c.RateLimitBurst))
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

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
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
