package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/launchlog/launchlog-go/internal/config"
	"github.com/launchlog/launchlog-go/internal/crypto"
	"github.com/launchlog/launchlog-go/internal/handler"
	"github.com/launchlog/launchlog-go/internal/logging"
	"github.com/launchlog/launchlog-go/internal/metrics"
	"github.com/launchlog/launchlog-go/internal/repository"
	"github.com/launchlog/launchlog-go/internal/service"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Warn("no .env file found, using environment variables")
	}

	cfg := config.Load()

	logger := logging.New(os.Stdout, cfg.Env)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	var (
		durableUsers repository.UserStore
		durableData  repository.UserDataStore
		pinger       repository.Pinger
		db           *sql.DB
	)
	if cfg.DatabaseDSN != "" {
		var err error
		db, err = repository.NewDB(cfg.DatabaseDSN)
		if err != nil {
			logger.Error("invalid database configuration", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		durableUsers = repository.NewMySQLUserRepository(db)
		durableData = repository.NewMySQLUserDataRepository(db)
		pinger = db
	} else {
		logger.Warn("DATABASE_DSN not set, running on the in-memory store only")
	}

	health := repository.NewHealth(pinger, logger, m)
	if db != nil {
		health.OnConnect(func(ctx context.Context) error {
			return repository.Migrate(ctx, db)
		})
		if !health.Check(ctx) {
			logger.Warn("durable store unreachable at startup, serving from memory until it recovers")
		}
		go health.Run(ctx, cfg.HealthCheckInterval)
	}

	users := repository.NewDual(durableUsers, repository.UserStore(repository.NewMemoryUserStore()), health, logger, m)
	data := repository.NewDual(durableData, repository.UserDataStore(repository.NewMemoryUserDataStore()), health, logger, m)
	tokens := crypto.NewTokenIssuer(cfg.JWTSecret, cfg.JWTExpiry)

	router := handler.NewRouter(ctx, handler.RouterConfig{
		Auth:          service.NewAuthService(users, tokens, cfg.AdminEmails),
		UserData:      service.NewUserDataService(data),
		Admin:         service.NewAdminService(users, data),
		Tokens:        tokens,
		Health:        health,
		Metrics:       m,
		Logger:        logger,
		CORSOrigins:   cfg.CORSAllowedOrigins,
		AuthRateLimit: cfg.AuthRateLimitRPS,
		AuthBurst:     cfg.AuthRateLimitBurst,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Port, "env", cfg.Env, "storage", health.Status())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
