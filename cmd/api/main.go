package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/support-desk/internal/api/http"
	"github.com/spec-kit/support-desk/internal/api/http/handlers"
	"github.com/spec-kit/support-desk/internal/auth"
	"github.com/spec-kit/support-desk/internal/config"
	"github.com/spec-kit/support-desk/internal/events"
	"github.com/spec-kit/support-desk/internal/mail"
	"github.com/spec-kit/support-desk/internal/observability"
	"github.com/spec-kit/support-desk/internal/persistence"
	"github.com/spec-kit/support-desk/internal/repository"
	"github.com/spec-kit/support-desk/internal/service"
	"github.com/spec-kit/support-desk/internal/token"
	"github.com/spec-kit/support-desk/internal/worker"
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

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()

	pool := pg.PoolHandle()
	userRepo := repository.NewUserRepository(pool)
	staffRepo := repository.NewStaffRepository(pool)
	ticketRepo := repository.NewTicketRepository(pool)
	solutionRepo := repository.NewSolutionRepository(pool)
	attemptRepo := repository.NewAttemptRepository(pool)
	historyRepo := repository.NewEscalationHistoryRepository(pool)
	outboxRepo := repository.NewOutboxRepository(pool)

	authService := service.NewAuthService(cfg.Auth, userRepo, staffRepo)
	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager(), userRepo, staffRepo)

	ticketService := service.NewTicketService(ticketRepo, dispatcher)
	ledger := service.NewResolutionLedger(attemptRepo)
	escalationService := service.NewEscalationService(ticketRepo, historyRepo, dispatcher)

	notifier := service.NewNotificationService(service.NotificationDependencies{
		OutboxRepo: outboxRepo,
		TicketRepo: ticketRepo,
		UserRepo:   userRepo,
		Dispatcher: dispatcher,
		Redis:      redis,
		Logger:     logger,
	})
	notifier.RegisterHandlers()

	confirmTokens := token.NewService(cfg.Confirm.Secret, cfg.Confirm.MaxAge())
	workflow := service.NewWorkflowService(service.WorkflowDependencies{
		TicketRepo:   ticketRepo,
		UserRepo:     userRepo,
		SolutionRepo: solutionRepo,
		Ledger:       ledger,
		Escalation:   escalationService,
		Tokens:       confirmTokens,
		Notifier:     notifier,
		Dispatcher:   dispatcher,
		Confirm:      cfg.Confirm,
		Logger:       logger,
	})

	mailer := mail.New(cfg.Mail, logger)
	outboxWorker := worker.NewOutboxWorker(outboxRepo, mailer, redis, metrics, logger, cfg.Outbox)
	outboxWorker.Start(ctx)

	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: cfg.App.Env == "production",
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Users:          handlers.NewUsersHandler(authService),
		Staff:          handlers.NewStaffHandler(authService),
		Tickets:        handlers.NewTicketsHandler(ticketService),
		StaffTickets:   handlers.NewStaffTicketsHandler(ticketService, workflow, ledger, escalationService),
		Confirm:        handlers.NewConfirmHandler(workflow, cfg.Confirm),
		Outbox:         handlers.NewOutboxHandler(outboxRepo, redis),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	cancel()
	outboxWorker.Wait()
	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
