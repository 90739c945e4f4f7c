package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/tallybook/tallybook/internal/accounts"
	"github.com/tallybook/tallybook/internal/app"
	"github.com/tallybook/tallybook/internal/audit"
	"github.com/tallybook/tallybook/internal/auth"
	"github.com/tallybook/tallybook/internal/payees"
	"github.com/tallybook/tallybook/internal/platform/cache"
	"github.com/tallybook/tallybook/internal/platform/db"
	"github.com/tallybook/tallybook/internal/shared"
	"github.com/tallybook/tallybook/internal/stats"
	"github.com/tallybook/tallybook/internal/users"
	"github.com/tallybook/tallybook/internal/vouchers"
	"github.com/tallybook/tallybook/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		// Sessions live in redis, so this is not survivable.
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "tallybook_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)

	auditRepo := audit.NewRepository(dbpool)
	auditRecorder := audit.NewRecorder(auditRepo, logger)
	auditService := audit.NewService(auditRepo)
	auditHandler := audit.NewHandler(logger, auditService)

	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(authRepo)
	authHandler := auth.NewHandler(logger, authService, sessionManager, csrfManager)
	authMiddleware := auth.Middleware{Service: authService, Logger: logger}

	accountCache := accounts.NewCache(redisClient, cfg.AccountCacheTTL)
	accountsRepo := accounts.NewRepository(dbpool)
	accountsService := accounts.NewService(accountsRepo, accountCache, auditRecorder)
	accountsHandler := accounts.NewHandler(logger, accountsService)

	payeesRepo := payees.NewRepository(dbpool)
	payeesService := payees.NewService(payeesRepo, auditRecorder)
	payeesHandler := payees.NewHandler(logger, payeesService)

	vouchersRepo := vouchers.NewRepository(dbpool)
	vouchersService := vouchers.NewService(vouchersRepo, accountsService, payeesService, auditRecorder, idempotencyStore)
	vouchersHandler := vouchers.NewHandler(logger, vouchersService)

	usersRepo := users.NewRepository(dbpool)
	usersService := users.NewService(usersRepo, auditRecorder)
	usersHandler := users.NewHandler(logger, usersService)

	statsRepo := stats.NewRepository(dbpool)
	statsService := stats.NewService(statsRepo, redisClient, logger, cfg.StatsCacheTTL)
	statsHandler := stats.NewHandler(logger, statsService)

	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(jobClient, inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		SessionManager:  sessionManager,
		CSRFManager:     csrfManager,
		AuthHandler:     authHandler,
		AuthMiddleware:  authMiddleware,
		AccountsHandler: accountsHandler,
		PayeesHandler:   payeesHandler,
		VouchersHandler: vouchersHandler,
		AuditHandler:    auditHandler,
		UsersHandler:    usersHandler,
		StatsHandler:    statsHandler,
		JobHandler:      jobHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
