package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"titanic-predictor/internal/api"
	"titanic-predictor/internal/auth"
	"titanic-predictor/internal/cfg"
	"titanic-predictor/internal/health"
	"titanic-predictor/internal/metrics"
	"titanic-predictor/internal/ml"
	"titanic-predictor/internal/storage"
	"titanic-predictor/internal/validation"
)

func main() {
	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	setupLogging(c)

	m := metrics.New()
	mw := metrics.NewWrapper(m)

	store := initializeStorage(c)
	if store != nil {
		defer store.Close()
	}

	svc, err := ml.NewService(ml.Config{ModelsDir: c.ModelsPath, LoadTimeout: c.ModelLoadTimeout}, mw, ml.WithPreprocessorMetrics(mw))
	if err != nil {
		log.Fatal().Err(err).Msg("prediction service initialization failed")
	}

	var pinger health.Pinger
	if store != nil {
		pinger = store
	}
	checker := health.NewChecker(svc, c, pinger)
	if _, err := checker.RunStartupChecks(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("startup checks failed")
	}

	authSvc, err := auth.NewService(c.JWT)
	if err != nil {
		log.Fatal().Err(err).Msg("auth initialization failed")
	}

	srv, err := api.NewServer(api.Deps{
		Settings:  c,
		Predictor: svc,
		Health:    checker,
		Validator: validation.NewValidator(mw),
		Auth:      authSvc,
		Store:     store,
		Metrics:   mw,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("api server initialization failed")
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	log.Info().
		Str("environment", c.Environment).
		Str("addr", c.Addr()).
		Str("models_path", c.ModelsPath).
		Str("jwt_algorithm", c.JWT.Algorithm).
		Bool("can_issue_tokens", authSvc.CanIssue()).
		Msg("Titanic survival predictor started")

	waitForShutdown(srv, errCh, c.ShutdownTimeout)
}

func setupLogging(c cfg.Settings) {
	level, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano
	if c.LogFormat == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	log.Logger = log.With().Str("service", "titanic-predictor").Logger()
}

// initializeStorage opens the prediction audit log if DATA_PATH is configured
func initializeStorage(c cfg.Settings) *storage.Store {
	if c.DataPath == "" {
		return nil
	}
	if err := os.MkdirAll(c.DataPath, 0o755); err != nil {
		log.Warn().Err(err).Msg("storage directory unavailable, continuing without audit log")
		return nil
	}
	store, err := storage.New(c.DataPath)
	if err != nil {
		log.Warn().Err(err).Msg("storage initialization failed, continuing without audit log")
		return nil
	}
	return store
}

func waitForShutdown(srv *api.Server, errCh <-chan error, timeout time.Duration) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("api server failed")
		}
	}

	log.Info().Msg("shutting down gracefully...")
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("shutdown timeout, forcing exit")
		return
	}
	log.Info().Msg("server stopped")
}
