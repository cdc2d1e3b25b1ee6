package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"voicespese/internal/auth"
	"voicespese/internal/cache"
	"voicespese/internal/cli"
	apphttp "voicespese/internal/http"
	"voicespese/internal/pipeline"
	"voicespese/internal/ratelimit"
)

func main() {
	cfg, logger := cli.Bootstrap()

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	api := cli.NewUpstream(cfg)
	extract, err := cli.NewExtractor(api, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize extractor", "error", err)
		os.Exit(1)
	}

	publisher, amqpClient := cli.NewPublisher(cfg, logger)
	if amqpClient != nil {
		defer amqpClient.Close()
	}

	expenses := cli.NewExpenseService(repo, publisher, cfg)
	tokens := auth.NewTokenAuthenticator(repo, auth.WithCacheTTL(cfg.AuthCacheTTL))
	processor := pipeline.New(cli.NewTranscriber(api, cfg), extract, expenses, cfg.MinAudioBytes)

	janitor := cache.NewJanitor(logger)
	janitor.Register(expenses.CategoryCache())
	janitor.Register(tokens.Cache())
	janitor.Start(time.Minute)
	defer janitor.Stop()

	srv := apphttp.NewServer(cfg.Addr(), apphttp.Deps{
		Processor:     processor,
		Expenses:      expenses,
		Auth:          tokens,
		Ready:         repo.Ping,
		CORSOrigins:   cfg.CORSAllowOrigins,
		MinAudioBytes: cfg.MinAudioBytes,
		MaxAudioBytes: cfg.MaxAudioBytes,
		RateLimit:     ratelimit.ClientConfig{RequestsPerMinute: cfg.HTTPRateLimit},
	})
	// Transcription plus extraction can each take a full upstream timeout.
	srv.WriteTimeout = 2*cfg.UpstreamTimeout + 10*time.Second
	srv.MaxHeaderBytes = 1 << 16

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting voicespese server", "addr", cfg.Addr(), "ledger", cfg.LedgerBackend, "amqp", amqpClient != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", "error", err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
