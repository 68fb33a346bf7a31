package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cimillas/ticket-inventory/internal/app"
	"github.com/cimillas/ticket-inventory/internal/clock"
	"github.com/cimillas/ticket-inventory/internal/config"
	"github.com/cimillas/ticket-inventory/internal/logging"
	"github.com/cimillas/ticket-inventory/internal/metrics"
	"github.com/cimillas/ticket-inventory/internal/obs"
	"github.com/cimillas/ticket-inventory/internal/outbox"
	"github.com/cimillas/ticket-inventory/internal/storage/postgres"
	"github.com/cimillas/ticket-inventory/internal/storage/redis"
	transporthttp "github.com/cimillas/ticket-inventory/internal/transport/http"
	"github.com/cimillas/ticket-inventory/migrations"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const serviceName = "ticket-inventory"

func main() {
	cfg, envPath, err := config.Load()
	if err != nil {
		_, _ = os.Stderr.WriteString("load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		_, _ = os.Stderr.WriteString("init logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if envPath != "" {
		logger.Info("loaded env file", zap.String("path", envPath))
	} else {
		logger.Warn(".env not found in current or parent directories")
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatal("api exited", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := obs.InitTracer(ctx, serviceName, cfg.OTLPEndpoint, cfg.Environment)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(flushCtx); err != nil {
			logger.Warn("tracer shutdown", zap.Error(err))
		}
	}()

	startupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(startupCtx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pool.Ping(startupCtx); err != nil {
		return err
	}
	applied, err := migrations.Apply(startupCtx, pool)
	if err != nil {
		return err
	}
	if len(applied) > 0 {
		logger.Info("migrations applied", zap.Strings("versions", applied))
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	clk := clock.NewSystem()
	store := postgres.NewStore(pool)

	reservations := app.NewReservationService(store, clk, logger, m,
		app.WithReservationTTL(cfg.ReservationTTL),
		app.WithMaxPerReservation(cfg.MaxPerReservation),
		app.WithClaimRetry(cfg.ClaimMaxRetries, cfg.ClaimBackoffBase),
	)
	orders := app.NewOrderService(store, clk, logger, m)

	readyChecks := map[string]transporthttp.ReadinessCheck{"postgres": pool.Ping}
	var webhookOpts []app.WebhookServiceOption
	if cfg.RedisURL != "" {
		rdb, err := redis.NewClient(startupCtx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer func() { _ = rdb.Close() }()
		readyChecks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		webhookOpts = append(webhookOpts, app.WithDedupCache(redis.NewDedupCache(rdb, cfg.WebhookDedupTTL)))
		logger.Info("webhook dedup cache enabled")
	}
	webhooks := app.NewWebhookService(store, orders, clk, logger, m, webhookOpts...)

	services := transporthttp.Services{
		Reservations: reservations,
		Orders:       orders,
		Webhooks:     webhooks,
		Admin:        app.NewAdminService(store, clk),
	}
	if cfg.PaymentSimulatorEnabled {
		services.Simulator = webhooks
		logger.Warn("payment simulator enabled")
	}

	sweeper := app.NewSweeper(store, clk, logger, m, app.WithSweepInterval(cfg.SweepInterval))
	var workers sync.WaitGroup
	workers.Add(1)
	go func() {
		defer workers.Done()
		if err := sweeper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("sweeper stopped", zap.Error(err))
		}
	}()

	if brokers := cfg.KafkaBrokerList(); len(brokers) > 0 {
		writer := outbox.NewKafkaWriter(brokers)
		defer func() { _ = writer.Close() }()

		relay := outbox.NewRelay(logger, store, outbox.NewDispatcher(logger, writer, cfg.KafkaTopic), "relay-"+uuid.NewString(),
			outbox.WithInterval(cfg.OutboxInterval),
			outbox.WithBatchSize(cfg.OutboxBatchSize),
			outbox.WithMetrics(m),
		)
		workers.Add(1)
		go func() {
			defer workers.Done()
			if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("outbox relay stopped", zap.Error(err))
			}
		}()
	} else {
		logger.Warn("KAFKA_BROKERS not set, outbox events will not be published")
	}

	server := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: transporthttp.NewRouter(services, transporthttp.RouterConfig{
			Logger:      logger,
			Metrics:     m,
			CORSOrigins: cfg.CORSOriginList(),
			ReadyChecks: readyChecks,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("api listening", zap.String("addr", server.Addr))

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- server.ListenAndServe()
	}()

	select {
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
		}
		stop()
	case <-ctx.Done():
		logger.Info("shutdown signal received, stopping server")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server shutdown error", zap.Error(err))
	}
	stopped := make(chan struct{})
	go func() {
		workers.Wait()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-shutdownCtx.Done():
		logger.Warn("background workers did not stop in time")
	}
	logger.Info("server stopped")
	return nil
}
