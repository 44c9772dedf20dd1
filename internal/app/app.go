package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"scribex-api/internal/config"
	"scribex-api/internal/database"
	"scribex-api/internal/event"
	"scribex-api/internal/handler"
	"scribex-api/internal/metrics"
	"scribex-api/internal/middleware"
	"scribex-api/internal/repository"
	"scribex-api/internal/revocation"
	"scribex-api/internal/router"
	"scribex-api/internal/service"
	"scribex-api/internal/websocket"
)

type App struct {
	server       *http.Server
	cleanupFuncs []func()
}

func New(cfg *config.Config) (*App, error) {
	a := &App{}
	ctx := context.Background()

	slog.Info("connecting to PostgreSQL")
	db, err := database.New(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	a.cleanupFuncs = append(a.cleanupFuncs, db.Close)

	if err := db.Migrate(ctx); err != nil {
		a.cleanup()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	pool := db.Pool
	accountRepo := repository.NewAccountRepository(pool)
	auditRepo := repository.NewAuditRepository(pool)
	slog.Info("database ready")

	revoked, err := a.revocationStore(ctx, cfg, repository.NewRevokedTokenRepository(pool))
	if err != nil {
		a.cleanup()
		return nil, err
	}

	bus := event.NewBus()
	auditService := service.NewAuditService(auditRepo)
	a.cleanupFuncs = append(a.cleanupFuncs, auditService.Start(bus))

	tokenService := service.NewTokenService(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAccessTTL, cfg.JWTRefreshTTL, cfg.JWTResetTTL, revoked)
	tokenService.OnRevoke(metrics.ObserveRevocation)
	accountService := service.NewAccountService(accountRepo, cfg.BcryptCost, cfg.SelfRegistrationEnabled, bus)
	authService := service.NewAuthService(accountService, tokenService, service.LogResetNotifier{}, bus)
	authService.OnLogin(metrics.ObserveLogin)

	if err := accountService.EnsureBootstrapAdmin(ctx, cfg.BootstrapAdminUsername, cfg.BootstrapAdminEmail, cfg.BootstrapAdminPassword); err != nil {
		a.cleanup()
		return nil, err
	}

	hub := websocket.NewHub(bus, cfg.CORSOrigins)
	hubCtx, hubCancel := context.WithCancel(context.Background())
	go hub.Run(hubCtx)
	a.cleanupFuncs = append(a.cleanupFuncs, hubCancel)

	authMiddleware := middleware.NewAuthMiddleware(authService)
	appRouter := router.New(cfg, authMiddleware, router.Handlers{
		Auth:    handler.NewAuthHandler(authService, accountService),
		Account: handler.NewAccountHandler(accountService),
		Audit:   handler.NewAuditHandler(auditService, hub),
	}, db)

	pruneCtx, pruneCancel := context.WithCancel(context.Background())
	tokenService.StartPruneTicker(pruneCtx, cfg.RevocationPruneInterval)
	a.cleanupFuncs = append(a.cleanupFuncs, pruneCancel)

	a.server = &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           appRouter,
		ReadHeaderTimeout: cfg.ServerReadHeaderTimeout,
		WriteTimeout:      cfg.ServerWriteTimeout,
		IdleTimeout:       cfg.ServerIdleTimeout,
	}

	return a, nil
}

func (a *App) revocationStore(ctx context.Context, cfg *config.Config, tokenRepo *repository.RevokedTokenRepository) (service.RevocationStore, error) {
	switch cfg.RevocationBackend {
	case config.RevocationRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.cleanupFuncs = append(a.cleanupFuncs, func() { _ = client.Close() })
		slog.Info("revocation store ready", "backend", "redis", "addr", cfg.RedisAddr)
		return revocation.NewRedisStore(client), nil
	case config.RevocationPostgres:
		slog.Info("revocation store ready", "backend", "postgres")
		return tokenRepo, nil
	default:
		slog.Warn("revocation store is in memory; revoked tokens are forgotten on restart")
		return revocation.NewMemoryStore(), nil
	}
}

func (a *App) Run() error {
	go func() {
		slog.Info("server starting", "addr", a.server.Addr)
		if serveErr := a.server.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			slog.Error("server failed", "error", serveErr)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	shutdownErr := a.server.Shutdown(ctx)
	a.cleanup()

	if shutdownErr != nil {
		return fmt.Errorf("graceful shutdown failed: %w", shutdownErr)
	}

	slog.Info("server stopped")
	return nil
}

// cleanup releases resources in reverse order of acquisition.
func (a *App) cleanup() {
	for i := len(a.cleanupFuncs) - 1; i >= 0; i-- {
		a.cleanupFuncs[i]()
	}
	a.cleanupFuncs = nil
}
