package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/leanrobert/telegram-jira-bot/internal/api/http"
	"github.com/leanrobert/telegram-jira-bot/internal/api/http/handlers"
	"github.com/leanrobert/telegram-jira-bot/internal/auth"
	"github.com/leanrobert/telegram-jira-bot/internal/config"
	"github.com/leanrobert/telegram-jira-bot/internal/events"
	"github.com/leanrobert/telegram-jira-bot/internal/jira"
	"github.com/leanrobert/telegram-jira-bot/internal/notifier"
	"github.com/leanrobert/telegram-jira-bot/internal/observability"
	"github.com/leanrobert/telegram-jira-bot/internal/persistence"
	"github.com/leanrobert/telegram-jira-bot/internal/repository"
	"github.com/leanrobert/telegram-jira-bot/internal/service"
	"github.com/leanrobert/telegram-jira-bot/internal/worker"
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

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	pool := pg.PoolHandle()
	subscriberRepo := repository.NewSubscriberRepository(pool)
	ticketRepo := repository.NewTicketRepository(pool)
	statusChangeRepo := repository.NewStatusChangeRepository(pool)
	notificationRepo := repository.NewNotificationRepository(pool)

	issueSource, err := jira.NewClient(cfg.Jira, redis, logger)
	if err != nil {
		logger.Fatal("failed to connect jira", zap.Error(err))
	}

	telegram, err := notifier.NewTelegramNotifier(cfg.Telegram, logger)
	if err != nil {
		logger.Fatal("failed to connect telegram", zap.Error(err))
	}

	dispatcher := events.NewInMemoryDispatcher()
	metrics := observability.NewMetrics()
	metrics.Observe(dispatcher)
	metrics.Serve(ctx, cfg.Metrics.Addr, logger)

	reconciler := service.NewReconciler(service.ReconcilerDependencies{
		SubscriberRepo:   subscriberRepo,
		TicketRepo:       ticketRepo,
		StatusChangeRepo: statusChangeRepo,
		NotificationRepo: notificationRepo,
		Source:           issueSource,
		Notifier:         telegram,
		Dispatcher:       dispatcher,
	}, service.ReconcilerOptions{
		LookbackWindow: cfg.Reconciler.LookbackWindow(),
		MatchTolerance: cfg.Reconciler.MatchTolerance(),
		RetryHorizon:   cfg.Reconciler.RetryHorizon(),
	}, logger)

	worker.StartReconciliationWorker(ctx, reconciler, cfg.Reconciler.PollInterval(), logger)

	subscriptionService := service.NewSubscriptionService(subscriberRepo)
	tokenManager := auth.NewTokenManager(cfg.Admin.JWTSecret, cfg.Admin.TokenTTLMinutes)
	authMiddleware := auth.NewAuthMiddleware(tokenManager)

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Auth:           handlers.NewAuthHandler(cfg.Admin, tokenManager),
		Subscriptions:  handlers.NewSubscriptionsHandler(subscriptionService),
		Reconcile:      handlers.NewReconcileHandler(reconciler, statusChangeRepo),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)
	cancel()

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
