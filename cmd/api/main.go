package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/helpdesk-relay/internal/api/http"
	"github.com/spec-kit/helpdesk-relay/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-relay/internal/auth"
	"github.com/spec-kit/helpdesk-relay/internal/config"
	"github.com/spec-kit/helpdesk-relay/internal/events"
	"github.com/spec-kit/helpdesk-relay/internal/integration/mail"
	"github.com/spec-kit/helpdesk-relay/internal/integration/msp"
	"github.com/spec-kit/helpdesk-relay/internal/integration/otrs"
	"github.com/spec-kit/helpdesk-relay/internal/mapping"
	"github.com/spec-kit/helpdesk-relay/internal/observability"
	"github.com/spec-kit/helpdesk-relay/internal/persistence"
	"github.com/spec-kit/helpdesk-relay/internal/repository"
	"github.com/spec-kit/helpdesk-relay/internal/service"
	"github.com/spec-kit/helpdesk-relay/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher(logger)

	var deliveries repository.DeliveryRepository
	if pg.Enabled() {
		deliveries = repository.NewDeliveryRepository(pg.Pool)
	}
	audit := service.NewAuditService(deliveries, logger)
	auditWorker := worker.StartAuditWorker(dispatcher, audit, logger, 0)

	mspClient := msp.NewClient(cfg.MSP, msp.WithLogger(logger), msp.WithObserver(metrics))
	otrsClient := otrs.NewClient(cfg.OTRS, otrs.WithLogger(logger), otrs.WithObserver(metrics))

	var forward service.ForwardTransport = mspClient
	if cfg.Relay.Transport == config.TransportEmail {
		forward = mail.NewTransport(cfg.SMTP, nil, logger)
	}

	relay := service.NewRelayService(service.RelayDependencies{
		Mapper: mapping.NewMapper(mapping.Options{
			Defaults: cfg.Mapping,
			OTRS:     cfg.OTRS,
			Policy:   mapping.FallbackPolicy(cfg.Relay.FallbackPolicy),
		}),
		Directory:  mspClient,
		Forward:    forward,
		Tickets:    otrsClient,
		Locker:     persistence.NewSequencer(redis, cfg.Relay, logger),
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     logger,
	})

	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: true,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, cfg.Relay.Transport, map[string]handlers.Pinger{
			"postgres": pg,
			"redis":    redis,
		}),
		Relay:           handlers.NewRelayHandler(relay),
		Deliveries:      handlers.NewDeliveriesHandler(audit),
		TokenMiddleware: auth.NewTokenMiddleware(cfg.Relay.WebhookToken),
		Metrics:         metrics,
	})

	go func() {
		logger.Info("relay listening",
			zap.String("addr", cfg.App.Addr()),
			zap.String("transport", cfg.Relay.Transport),
			zap.Bool("sequencing", redis.Enabled()),
			zap.Bool("delivery_log", pg.Enabled()))
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.ShutdownWithTimeout(10 * time.Second)
	auditWorker.Stop()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
