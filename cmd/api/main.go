package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/service-desk/internal/api/http"
	"github.com/spec-kit/service-desk/internal/api/http/handlers"
	"github.com/spec-kit/service-desk/internal/auth"
	"github.com/spec-kit/service-desk/internal/chat"
	"github.com/spec-kit/service-desk/internal/config"
	"github.com/spec-kit/service-desk/internal/domain"
	"github.com/spec-kit/service-desk/internal/events"
	"github.com/spec-kit/service-desk/internal/observability"
	"github.com/spec-kit/service-desk/internal/persistence"
	"github.com/spec-kit/service-desk/internal/repository"
	"github.com/spec-kit/service-desk/internal/sequence"
	"github.com/spec-kit/service-desk/internal/service"
	"github.com/spec-kit/service-desk/internal/worker"
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
	pool := pg.PoolHandle()

	userRepo := repository.NewUserRepository(pool)
	orgRepo := repository.NewOrganizationRepository(pool)
	requestRepo := repository.NewRequestRepository(pool)
	chatMessageRepo := repository.NewChatMessageRepository(pool)
	resetRepo := repository.NewPasswordResetRepository(pool)
	systemStatusRepo := repository.NewSystemStatusRepository(pool)

	// Redis backs both the refresh-token denylist and the ticket-number
	// counter; when it is unreachable at boot the in-memory fallbacks keep a
	// single-node deployment working.
	var refreshStore auth.RefreshStore
	var counter sequence.Counter
	if redis.Ping(ctx) == nil {
		refreshStore = persistence.NewRedisRefreshStore(redis.Client)
		counter = sequence.NewRedisCounter(redis.Client)
	} else {
		logger.Warn("redis unavailable, using in-memory token revocation and sequence counters")
		refreshStore = auth.NewMemoryRefreshStore()
		counter = sequence.NewMemoryCounter()
	}

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL(), cfg.Auth.RefreshTokenTTL(), refreshStore)
	allocator := sequence.NewAllocator(counter)
	dispatcher := events.NewInMemoryDispatcher()

	authService := service.NewAuthService(service.AuthDependencies{
		UserRepo:          userRepo,
		PasswordResetRepo: resetRepo,
		Tokens:            tokens,
		BcryptCost:        cfg.Auth.BcryptCost,
		ResetTTL:          cfg.Auth.PasswordResetTTL(),
	})
	orgService := service.NewOrganizationService(service.OrgDependencies{
		OrganizationRepo: orgRepo,
		UserRepo:         userRepo,
		BcryptCost:       cfg.Auth.BcryptCost,
	})
	requestService := service.NewRequestService(service.RequestDependencies{
		RequestRepo:      requestRepo,
		OrganizationRepo: orgRepo,
		UserRepo:         userRepo,
		Allocator:        allocator,
		Dispatcher:       dispatcher,
	})
	assignmentService := service.NewAssignmentService(service.AssignmentDependencies{
		RequestRepo: requestRepo,
		UserRepo:    userRepo,
		Dispatcher:  dispatcher,
	})
	systemStatusService := service.NewSystemStatusService(systemStatusRepo)
	notificationService := service.NewNotificationService(dispatcher, logger, cfg.Notification)
	worker.StartNotificationWorker(notificationService)

	registry := chat.NewRegistry(cfg.Chat.SendBufferSize)
	coordinator := chat.NewCoordinator(logger, metrics)
	registry.SetObserver(coordinator)
	relay := chat.NewRelay(coordinator, chatMessageRepo, logger, metrics, cfg.Chat.HistoryLimit)
	chat.NewBridge(dispatcher, relay, coordinator)
	gateway := chat.NewGateway(tokens, userRepo, requestRepo, registry, coordinator, relay, logger)

	authMiddleware := auth.NewAuthMiddleware(tokens, userRepo)

	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: cfg.App.Env == "production",
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Auth:           handlers.NewAuthHandler(authService),
		Users:          handlers.NewUsersHandler(authService, orgService),
		Organizations:  handlers.NewOrganizationsHandler(orgService),
		MACRequests:    handlers.NewRequestsHandler(domain.KindMAC, requestService, assignmentService),
		SupportTickets: handlers.NewRequestsHandler(domain.KindSupport, requestService, assignmentService),
		Chat:           handlers.NewChatHandler(requestService, chatMessageRepo, relay),
		System:         handlers.NewSystemHandler(systemStatusService),
		Gateway:        gateway,
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
