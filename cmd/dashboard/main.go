// Package main runs the crypto market dashboard: the HTML page, JSON
// endpoints, table downloads, health, status and Prometheus metrics.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"crypto-dashboard/internal/api"
	"crypto-dashboard/internal/coingecko"
	"crypto-dashboard/internal/config"
	"crypto-dashboard/internal/marketdata"
	"crypto-dashboard/internal/observability"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := config.LoadEnvFile(config.DefaultEnvFilePath); err != nil {
		fmt.Fprintf(os.Stderr, "load env file: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := observability.NewLogger(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	cg := cfg.CoinGecko
	opts := []coingecko.ClientOption{
		coingecko.WithTimeout(cg.Timeout),
		coingecko.WithMaxRetries(cg.MaxRetries),
		coingecko.WithRetryDelay(cg.RetryDelay),
		coingecko.WithMaxDelay(cg.MaxDelay),
		coingecko.WithLogger(logger.Named("coingecko")),
	}
	if cg.APIKey != "" {
		opts = append(opts, coingecko.WithAPIKey(cg.APIKeyHeader, cg.APIKey))
	}
	client := coingecko.NewHTTPClient(cg.BaseURL, opts...)

	svc := marketdata.NewService(marketdata.Options{
		Client:          client,
		Currencies:      cfg.Dashboard.Currencies,
		CacheTTL:        cfg.Cache.TTL,
		CleanupInterval: cfg.Cache.CleanupInterval,
		Logger:          logger.Named("marketdata"),
	})

	handler := api.New(api.Options{
		Service:      svc,
		Coins:        cfg.Dashboard.Coins,
		DefaultCoins: cfg.Dashboard.DefaultCoins,
		Currencies:   cfg.Dashboard.Currencies,
		LookbackDays: cfg.Dashboard.LookbackDays,
		CORSOrigins:  cfg.Server.CORSOrigins,
		Logger:       logger.Named("api"),
	}).Handler()

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		ErrorLog:     zap.NewStdLog(logger.Named("http")),
	}

	serverLog := logger.Named("server")
	errCh := make(chan error, 1)
	go func() {
		serverLog.Info("starting HTTP server",
			zap.String("addr", cfg.Server.Addr),
			zap.String("upstream", cg.BaseURL),
			zap.Duration("cache_ttl", cfg.Cache.TTL),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case sig := <-sigCh:
		serverLog.Info("received signal, initiating graceful shutdown", zap.Stringer("signal", sig))
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// A second signal forces an immediate exit.
	go func() {
		select {
		case sig := <-sigCh:
			serverLog.Warn("received second signal, forcing immediate shutdown", zap.Stringer("signal", sig))
			os.Exit(1)
		case <-ctx.Done():
		}
	}()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
