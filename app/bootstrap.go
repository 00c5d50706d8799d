package app

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"github.com/joho/godotenv"

	"auth-service/internal/clock"
	"auth-service/internal/config"
	"auth-service/internal/db"
	"auth-service/internal/engine"
	"auth-service/internal/httpapi"
	"auth-service/internal/janitor"
	"auth-service/internal/maintenance"
	"auth-service/internal/observability"
	"auth-service/internal/principal"
	"auth-service/internal/ratelimit"
	"auth-service/internal/store"
	"auth-service/internal/token"
)

type Options struct {
	LoadDotEnv    bool
	RunMigrations bool

	// StartJanitor launches the daily expiry sweep. Leave it off on
	// platforms without a long-lived process and drive the cleanup
	// endpoint from an external cron instead.
	StartJanitor bool
}

type Runtime struct {
	Handler http.Handler
	Close   func() error
}

func Build(options Options) (*Runtime, error) {
	if options.LoadDotEnv {
		_ = godotenv.Load()
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := observability.NewLogger()
	clk := clock.System()

	if err := observability.InitSentry(cfg.SentryDSN, cfg.AppEnv); err != nil {
		logger.Error("init_sentry_failed", map[string]any{"error": err.Error()})
	}

	database, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	database.SetMaxOpenConns(cfg.DBMaxOpenConns)
	database.SetMaxIdleConns(cfg.DBMaxIdleConns)
	database.SetConnMaxLifetime(cfg.DBConnMaxLifetime)
	database.SetConnMaxIdleTime(cfg.DBConnMaxIdleTime)

	if err := database.Ping(); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if options.RunMigrations {
		if err := db.RunMigrations(database); err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	signer, err := token.NewSigner([]byte(cfg.JWTSecret), cfg.AccessTokenTTL, clk)
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("init signer: %w", err)
	}

	resolver := principal.NewPostgresResolver(database, clk)
	if err := resolver.BootstrapAdmin(context.Background(), cfg.AdminUsername, cfg.AdminPassword); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("bootstrap admin: %w", err)
	}

	refreshStore := store.NewPostgres(database, clk)

	eng := engine.New(engine.Deps{
		Store:      refreshStore,
		Resolver:   resolver,
		Signer:     signer,
		Limiter:    ratelimit.New(cfg.LoginMaxAttempts, cfg.LoginLockout, clk),
		Clock:      clk,
		Logger:     logger,
		RefreshTTL: cfg.RefreshTTL,
	})

	handler := httpapi.NewHandler(eng, logger, clk)
	gate := httpapi.NewGate(signer, resolver, logger, clk)
	throttle := httpapi.NewIPThrottle(cfg.LoginRateLimitPerMinute, clk)

	sweeper := janitor.New(refreshStore, logger, clk, cfg.JanitorHour)
	cleanupHandler := maintenance.NewCleanupHandler(sweeper, logger, cfg.CronSecret)

	mux := http.NewServeMux()
	mux.Handle("POST /api/auth/login", throttle.Middleware(http.HandlerFunc(handler.Login)))
	mux.HandleFunc("POST /api/auth/refresh", handler.Refresh)
	mux.Handle("POST /api/auth/logout", gate.Require(http.HandlerFunc(handler.Logout)))
	mux.Handle("POST /api/auth/logout-all", gate.Require(http.HandlerFunc(handler.LogoutAll)))
	mux.Handle("GET /api/auth/me", gate.Require(http.HandlerFunc(handler.Me)))
	mux.HandleFunc("GET /api/auth/health", handler.Health)
	mux.HandleFunc("GET /internal/maintenance/cleanup", cleanupHandler.Handle)
	mux.HandleFunc("POST /internal/maintenance/cleanup", cleanupHandler.Handle)

	chain := observability.RecoverMiddleware(logger,
		observability.RequestLoggingMiddleware(logger,
			httpapi.CORS(cfg.CORSAllowedOrigins,
				gate.Middleware(mux))))

	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	if options.StartJanitor {
		sweeper.Start(janitorCtx)
	}

	return &Runtime{
		Handler: chain,
		Close: func() error {
			stopJanitor()
			observability.FlushSentry()
			return database.Close()
		},
	}, nil
}
