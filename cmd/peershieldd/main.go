package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"peershield/config"
	"peershield/core"
	"peershield/crypto"
	"peershield/observability/logging"
	"peershield/observability/metrics"
	"peershield/observability/otel"
	"peershield/rpc"
	"peershield/services/outbox"
	"peershield/storage"
)

const serviceName = "peershieldd"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	allowMigrateFlag := flag.Bool("allow-migrate", false, "Allow starting with a mismatched state schema (manual migrations only)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configFile, *allowMigrateFlag); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", serviceName, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configFile string, allowMigrate bool) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	engineCfg, err := cfg.EngineConfig()
	if err != nil {
		return err
	}

	var rotation *logging.Rotation
	if cfg.Logging.File != "" {
		rotation = &logging.Rotation{
			File:       cfg.Logging.File,
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAgeDays: cfg.Logging.MaxAgeDays,
		}
	}
	logger, logCloser := logging.Setup(serviceName, cfg.Environment, rotation)
	defer logCloser.Close()

	shutdownTelemetry, err := otel.Init(ctx, serviceName, cfg.Environment, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.Any("error", err))
		}
	}()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("prepare data directory: %w", err)
	}
	db, err := storage.NewLevelDB(cfg.StatePath())
	if err != nil {
		return fmt.Errorf("open state: %w", err)
	}
	defer db.Close()

	store, err := outbox.Open(cfg.OutboxPath())
	if err != nil {
		return fmt.Errorf("open outbox: %w", err)
	}
	defer store.Close()

	coverageMetrics := metrics.Coverage()
	if pending, err := store.PendingCount(ctx); err == nil {
		coverageMetrics.SetOutboxPending(pending)
	}

	app, err := core.NewApplication(db, core.Options{
		Engine:       engineCfg,
		Validator:    crypto.NewBech32Validator(cfg.Coverage.AddressPrefix),
		Sink:         store,
		Logger:       logger,
		Metrics:      coverageMetrics,
		AllowMigrate: allowMigrate,
	})
	if err != nil {
		return fmt.Errorf("open application: %w", err)
	}

	server := rpc.NewServer(app, store, rpc.ServerConfig{
		JWTSecret:          cfg.RPC.JWTSecret,
		JWTIssuer:          cfg.RPC.JWTIssuer,
		RateLimitPerSecond: cfg.RPC.RateLimitPerSecond,
		RateLimitBurst:     cfg.RPC.RateLimitBurst,
		MaxBodyBytes:       cfg.RPC.MaxBodyBytes,
		TrustProxyHeaders:  cfg.RPC.TrustProxyHeaders,
		Logger:             logger,
		Metrics:            coverageMetrics,
	})
	httpServer := &http.Server{
		Addr:              cfg.RPC.ListenAddress,
		Handler:           server.Handler(),
		ReadHeaderTimeout: time.Duration(cfg.RPC.ReadHeaderTimeoutSecs) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()
	logger.Info("peershield node running",
		slog.String("listen", cfg.RPC.ListenAddress),
		slog.String("arbiter", engineCfg.Arbiter),
		slog.String("pool_policy", engineCfg.Policy.String()),
		logging.MaskField("rpc_secret", cfg.RPC.JWTSecret))

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("rpc server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("rpc shutdown: %w", err)
	}
	return nil
}
