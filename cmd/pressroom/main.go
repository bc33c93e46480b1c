package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/pressroom-hq/pressroom/internal/app"
	"github.com/pressroom-hq/pressroom/internal/audit"
	"github.com/pressroom-hq/pressroom/internal/auth"
	"github.com/pressroom-hq/pressroom/internal/mutation"
	"github.com/pressroom-hq/pressroom/internal/observability"
	"github.com/pressroom-hq/pressroom/internal/platform/cache"
	"github.com/pressroom-hq/pressroom/internal/platform/db"
	"github.com/pressroom-hq/pressroom/internal/rbac"
	"github.com/pressroom-hq/pressroom/internal/shared"
	"github.com/pressroom-hq/pressroom/internal/updates"
	"github.com/pressroom-hq/pressroom/internal/users"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	queue := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := queue.Close(); err != nil {
			logger.Warn("asynq close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	rbacRepo := rbac.NewRepository(pool)
	resolver := rbac.NewResolver(rbacRepo)
	permCache := rbac.NewCache(resolver, cfg.PermissionCacheTTL, metrics)

	auditRepo := audit.NewRepository(pool)
	recorder := audit.NewRecorder(auditRepo, logger)

	pipeline := mutation.NewPipeline(permCache, permCache, recorder, logger, metrics)

	usersRepo := users.NewRepository(pool)
	updatesRepo := updates.NewRepository(pool)

	rbacService := rbac.NewService(rbacRepo, permCache, recorder)
	usersService := users.NewService(usersRepo, pipeline, queue, logger)
	updatesService := updates.NewService(updatesRepo, pipeline, logger)
	authService := auth.NewService(usersRepo, recorder, logger)

	sessions := shared.NewSessionManager(redisClient, "pressroom_session", cfg.SessionTTL, cfg.IsProduction())
	mw := rbac.Middleware{Checker: permCache, Logger: logger}

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		SessionManager: sessions,
		AuthHandler:    auth.NewHandler(logger, authService, sessions),
		UsersHandler:   users.NewHandler(logger, usersService, rbacService, mw),
		RBACHandler:    rbac.NewHandler(logger, rbacService, mw),
		UpdatesHandler: updates.NewHandler(logger, updatesService, mw),
		AuditHandler:   audit.NewHandler(logger, auditRepo, usersRepo, mw.Require("audit", "read")),
		Metrics:        metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", slog.Any("error", err))
		os.Exit(1)
	}
}
