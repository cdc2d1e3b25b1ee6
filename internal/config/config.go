package config

import (
	"fmt"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// HTTP server
	Port             string
	HTTPRateLimit    int
	CORSAllowOrigins []string
	MinAudioBytes    int
	MaxAudioBytes    int
	AuthCacheTTL     time.Duration

	// Database
	SQLiteDBPath string

	LogLevel string

	// Speech-to-text and extraction upstream
	OpenAIAPIKey          string
	OpenAIBaseURL         string
	UpstreamTimeout       time.Duration
	TranscriptionModel    string
	TranscriptionLanguage string
	ExtractionModel       string
	ExtractionRateLimit   int
	ExtractionRateWindow  time.Duration
	RedisURL              string

	// Persistence policy
	DuplicateWindow     time.Duration
	AllowCategoryCreate bool

	// AMQP (optional)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Ledger mirror
	LedgerBackend            string
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string
}

var validLedgerBackends = []string{"memory", "sheets"}

// LoadEnvFile loads .env for local development. A missing file is fine.
func LoadEnvFile(paths ...string) {
	_ = godotenv.Load(paths...)
}

func Load() *Config {
	return &Config{
		Port:             getEnv("PORT", "8081"),
		HTTPRateLimit:    getEnvInt("HTTP_RATE_LIMIT", 60),
		CORSAllowOrigins: getEnvList("CORS_ALLOW_ORIGINS", []string{"*"}),
		MinAudioBytes:    getEnvInt("MIN_AUDIO_BYTES", 1024),
		MaxAudioBytes:    getEnvInt("MAX_AUDIO_BYTES", 25<<20),
		AuthCacheTTL:     getEnvDuration("AUTH_CACHE_TTL", 15*time.Second),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/voicespese.db"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),

		OpenAIAPIKey:          getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:         getEnv("OPENAI_BASE_URL", ""),
		UpstreamTimeout:       getEnvDuration("UPSTREAM_TIMEOUT", 60*time.Second),
		TranscriptionModel:    getEnv("TRANSCRIPTION_MODEL", "whisper-1"),
		TranscriptionLanguage: getEnv("TRANSCRIPTION_LANGUAGE", "en"),
		ExtractionModel:       getEnv("EXTRACTION_MODEL", "gpt-4o-mini"),
		ExtractionRateLimit:   getEnvInt("EXTRACTION_RATE_LIMIT", 50),
		ExtractionRateWindow:  getEnvDuration("EXTRACTION_RATE_WINDOW", time.Minute),
		RedisURL:              getEnv("REDIS_URL", ""),

		DuplicateWindow:     getEnvDuration("DUPLICATE_WINDOW", 5*time.Second),
		AllowCategoryCreate: getEnvBool("ALLOW_CATEGORY_CREATE", true),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "voicespese"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "ledger_sync"),

		LedgerBackend:            getEnv("LEDGER_BACKEND", "memory"),
		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:          getEnv("GOOGLE_SHEET_NAME", "Expenses"),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")),
	}
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be debug, info, warn or error", c.LogLevel))
	}

	if c.HTTPRateLimit < 1 {
		errors = append(errors, fmt.Sprintf("invalid HTTP rate limit %d: must be at least 1", c.HTTPRateLimit))
	}
	if c.MinAudioBytes < 1 {
		errors = append(errors, fmt.Sprintf("invalid minimum audio size %d: must be at least 1", c.MinAudioBytes))
	}
	if c.MaxAudioBytes <= c.MinAudioBytes {
		errors = append(errors, fmt.Sprintf("invalid maximum audio size %d: must exceed the minimum %d", c.MaxAudioBytes, c.MinAudioBytes))
	}

	if c.AuthCacheTTL < 0 || c.AuthCacheTTL > 5*time.Minute {
		errors = append(errors, fmt.Sprintf("invalid auth cache TTL %v: must be between 0 and 5 minutes", c.AuthCacheTTL))
	}

	if c.OpenAIBaseURL != "" {
		if u, err := url.Parse(c.OpenAIBaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			errors = append(errors, fmt.Sprintf("invalid OpenAI base URL '%s': must be http or https", c.OpenAIBaseURL))
		}
	}
	if c.UpstreamTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid upstream timeout %v: must be at least 1 second", c.UpstreamTimeout))
	}
	if c.TranscriptionModel == "" || c.ExtractionModel == "" {
		errors = append(errors, "transcription and extraction models cannot be empty")
	}
	if c.ExtractionRateLimit < 1 {
		errors = append(errors, fmt.Sprintf("invalid extraction rate limit %d: must be at least 1", c.ExtractionRateLimit))
	}
	if c.ExtractionRateWindow < time.Second {
		errors = append(errors, fmt.Sprintf("invalid extraction rate window %v: must be at least 1 second", c.ExtractionRateWindow))
	}
	if c.RedisURL != "" {
		if u, err := url.Parse(c.RedisURL); err != nil || (u.Scheme != "redis" && u.Scheme != "rediss") {
			errors = append(errors, fmt.Sprintf("invalid Redis URL '%s': scheme must be 'redis' or 'rediss'", c.RedisURL))
		}
	}

	if c.DuplicateWindow <= 0 || c.DuplicateWindow > time.Hour {
		errors = append(errors, fmt.Sprintf("invalid duplicate window %v: must be greater than 0 and at most 1 hour", c.DuplicateWindow))
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

	if !slices.Contains(validLedgerBackends, c.LedgerBackend) {
		errors = append(errors, fmt.Sprintf("invalid ledger backend '%s': must be one of %v", c.LedgerBackend, validLedgerBackends))
	}
	if c.LedgerBackend == "sheets" {
		errors = append(errors, c.validateSheets()...)
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

func (c *Config) validateSheets() []string {
	var errors []string
	if c.GoogleSpreadsheetID == "" {
		errors = append(errors, "Google Spreadsheet ID is required when using sheets ledger")
	}
	if c.GoogleSheetName == "" {
		errors = append(errors, "Google Sheet name is required when using sheets ledger")
	}
	if c.GoogleServiceAccountJSON == "" && c.GoogleServiceAccountFile == "" {
		errors = append(errors, "either GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE must be provided for sheets ledger")
	}
	if f := c.GoogleServiceAccountFile; f != "" && c.GoogleServiceAccountJSON == "" {
		if _, err := os.Stat(f); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", f))
		}
	}
	return errors
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

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
