// Package cli collects the startup wiring shared by cmd/voicespese,
// cmd/voicespese-worker and cmd/voicectl.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	openai "github.com/sashabaranov/go-openai"

	"voicespese/internal/amqp"
	"voicespese/internal/config"
	"voicespese/internal/extractor"
	"voicespese/internal/ledger"
	"voicespese/internal/ledger/google"
	"voicespese/internal/ledger/memory"
	vlog "voicespese/internal/log"
	"voicespese/internal/ratelimit"
	"voicespese/internal/services"
	"voicespese/internal/storage"
	"voicespese/internal/transcriber"
	"voicespese/internal/upstream"
)

// Bootstrap loads .env, reads the environment and installs the default
// logger at the configured level. Invalid configuration exits the process.
func Bootstrap() (*config.Config, *slog.Logger) {
	config.LoadEnvFile()
	cfg := config.Load()
	logger := SetupLogger(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	return cfg, logger
}

func SetupLogger(level string) *slog.Logger {
	return vlog.Setup(vlog.Config{Level: vlog.ParseLevel(level), Output: os.Stdout})
}

// InitSQLite opens the database and runs migrations, exiting on failure.
func InitSQLite(logger *slog.Logger, dbPath string) *storage.SQLiteRepository {
	repo, err := storage.NewSQLiteRepository(dbPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", dbPath)
		os.Exit(1)
	}
	return repo
}

// NewUpstream returns the client shared by transcription and extraction.
func NewUpstream(cfg *config.Config) *openai.Client {
	return upstream.NewClient(upstream.Config{
		APIKey:     cfg.OpenAIAPIKey,
		BaseURL:    cfg.OpenAIBaseURL,
		HTTPClient: &http.Client{Timeout: cfg.UpstreamTimeout},
	})
}

func NewTranscriber(api *openai.Client, cfg *config.Config) *transcriber.Client {
	return transcriber.New(api, transcriber.Config{
		APIKey:   cfg.OpenAIAPIKey,
		Model:    cfg.TranscriptionModel,
		Language: cfg.TranscriptionLanguage,
	})
}

// NewExtractor picks the Redis-backed window when REDIS_URL is set so every
// replica shares one budget.
func NewExtractor(api *openai.Client, cfg *config.Config, logger *slog.Logger) (*extractor.Extractor, error) {
	var limiter extractor.Limiter = ratelimit.NewWindow(cfg.ExtractionRateLimit, cfg.ExtractionRateWindow)
	if cfg.RedisURL != "" {
		rdb, err := ratelimit.NewRedisClient(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		limiter = ratelimit.NewRedisWindow(rdb, "voicespese:extraction", cfg.ExtractionRateLimit, cfg.ExtractionRateWindow)
		logger.Info("Extraction rate limit shared through Redis", "limit", cfg.ExtractionRateLimit)
	}
	return extractor.New(api, limiter, extractor.Config{
		APIKey: cfg.OpenAIAPIKey,
		Model:  cfg.ExtractionModel,
	}), nil
}

// NewPublisher connects to AMQP when configured. The returned client is nil
// when AMQP_URL is empty; publisher is then nil as well.
func NewPublisher(cfg *config.Config, logger *slog.Logger) (services.Publisher, *amqp.Client) {
	if cfg.AMQPURL == "" {
		logger.Info("AMQP disabled, ledger mirroring is off")
		return nil, nil
	}
	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Warn("AMQP unavailable, continuing without events", "error", err)
		return nil, nil
	}
	return client, client
}

func NewExpenseService(repo *storage.SQLiteRepository, pub services.Publisher, cfg *config.Config) *services.ExpenseService {
	return services.NewExpenseService(repo, pub, services.ExpenseConfig{
		DuplicateWindow:     cfg.DuplicateWindow,
		AllowCategoryCreate: cfg.AllowCategoryCreate,
	})
}

// NewLedger returns the configured mirror backend.
func NewLedger(ctx context.Context, cfg *config.Config) (ledger.Writer, error) {
	switch cfg.LedgerBackend {
	case "sheets":
		sheet, err := google.New(ctx, google.Config{
			SpreadsheetID:      cfg.GoogleSpreadsheetID,
			SheetName:          cfg.GoogleSheetName,
			ServiceAccountJSON: cfg.GoogleServiceAccountJSON,
			ServiceAccountFile: cfg.GoogleServiceAccountFile,
		})
		if err != nil {
			return nil, err
		}
		return sheet, nil
	default:
		return memory.New(), nil
	}
}

// SignalContext is cancelled on SIGINT or SIGTERM.
func SignalContext(logger *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		logger.Info("Shutdown signal received")
	}()
	return ctx, stop
}
