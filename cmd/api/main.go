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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mpslytherin/accounts/internal/auth"
	"github.com/mpslytherin/accounts/internal/background"
	"github.com/mpslytherin/accounts/internal/config"
	"github.com/mpslytherin/accounts/internal/database"
	"github.com/mpslytherin/accounts/internal/handlers"
	middlewareCustom "github.com/mpslytherin/accounts/internal/middleware"
	"github.com/mpslytherin/accounts/internal/ratelimit"
	"github.com/mpslytherin/accounts/internal/repositories"
	"github.com/mpslytherin/accounts/internal/routes"
	"github.com/mpslytherin/accounts/internal/services"
	"github.com/mpslytherin/accounts/internal/storage"
	pkgauth "github.com/mpslytherin/accounts/pkg/auth"
	pkghttp "github.com/mpslytherin/accounts/pkg/http"
	pkglogger "github.com/mpslytherin/accounts/pkg/logger"
)

func main() {
	bootLogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		bootLogger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger, logCloser := pkglogger.New(pkglogger.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})
	defer logCloser.Close()
	slog.SetDefault(logger)

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", slog.Any("error", err))
		logCloser.Close()
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStartup()

	// Initialize database
	db, err := database.NewConnection(startupCtx, &cfg.Database, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(startupCtx); err != nil {
		return err
	}

	ipConfig, err := pkghttp.NewIPConfig(cfg.Server.TrustedProxies)
	if err != nil {
		return err
	}

	// Initialize repositories
	accountRepo := repositories.NewAccountRepository(db)
	loginAttemptRepo := repositories.NewLoginAttemptRepository(db)

	// Login rate limiter: shared via Redis, or in-process with a sweeper
	limiterStore, sweeper, closeLimiter, err := newLimiterStore(startupCtx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeLimiter()
	loginLimiter := ratelimit.NewLimiter(limiterStore, cfg.RateLimit.LoginWindow, "login:")

	avatarStore, err := newAvatarStorage(startupCtx, cfg)
	if err != nil {
		return err
	}

	notifier, err := newLockoutNotifier(startupCtx, cfg, logger)
	if err != nil {
		return err
	}

	auditLogger := pkglogger.NewAuditLogger(logger)
	hasher := pkgauth.NewBcryptHasher(cfg.Auth.BcryptCost)
	sessions := auth.NewSessionManager(cfg.Auth.SessionSecret, cfg.Auth.SessionTTL)
	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelayMs:   cfg.Auth.TimingDelayBaseMs,
		RandomDelayMs: cfg.Auth.TimingDelayRandomMs,
	})
	cookies := auth.CookieConfig{
		Name:     cfg.Auth.CookieName,
		Domain:   cfg.Auth.CookieDomain,
		Secure:   cfg.Auth.CookieSecure,
		SameSite: cfg.Auth.CookieSameSite,
	}

	// Initialize services
	avatarService := services.NewAvatarService(avatarStore, cfg.Storage.AvatarMaxBytes, logger)
	historyService := services.NewHistoryService(loginAttemptRepo, logger)
	authService := services.NewAuthService(services.AuthServiceDeps{
		Accounts: accountRepo,
		Hasher:   hasher,
		Sessions: sessions,
		History:  historyService,
		Limiter:  loginLimiter,
		Avatars:  avatarService,
		Notifier: notifier,
		Timing:   timingDelay,
		Lockout: services.LockoutPolicy{
			Threshold: cfg.Auth.LockoutThreshold,
			Duration:  cfg.Auth.LockoutDuration,
		},
		Logger:      logger,
		AuditLogger: auditLogger,
	})
	profileService := services.NewProfileService(accountRepo, hasher, avatarService, logger, auditLogger)

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.SecureLogger(logger, ipConfig))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(cfg.Server.RequestTimeout))

	routes.RegisterRoutes(router, routes.Handlers{
		Auth:        handlers.NewAuthHandler(authService, sessions, cookies, ipConfig, avatarService.MaxBytes(), logger),
		Profile:     handlers.NewProfileHandler(profileService, historyService, ipConfig, avatarService.MaxBytes(), logger),
		Diagnostics: handlers.NewDiagnosticsHandler(db, logger),
	}, routes.Options{
		Sessions:          sessions,
		Cookies:           cookies,
		IPConfig:          ipConfig,
		RegisterPerMinute: cfg.RateLimit.RegisterPerMinute,
		UploadPerMinute:   cfg.RateLimit.UploadPerMinute,
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start limiter sweeper
	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	defer sweepCancel()
	if sweeper != nil {
		go sweeper.Start(sweepCtx)
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return err
	case <-sigChan:
	}

	logger.Info("shutdown signal received")

	sweepCancel()
	if sweeper != nil {
		sweeper.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	return server.Shutdown(shutdownCtx)
}

func newLimiterStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (ratelimit.Store, *background.CleanupManager, func(), error) {
	if cfg.RateLimit.Store == "redis" {
		client, err := ratelimit.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			return nil, nil, nil, err
		}
		logger.Info("login rate limiter using redis")
		closeFn := func() {
			if err := client.Close(); err != nil {
				logger.Warn("failed to close redis client", slog.Any("error", err))
			}
		}
		return ratelimit.NewRedisStore(client, cfg.RateLimit.LoginWindow, cfg.RateLimit.LoginMax), nil, closeFn, nil
	}

	store := ratelimit.NewMemoryStore(cfg.RateLimit.LoginWindow, cfg.RateLimit.LoginMax)
	sweeper := background.NewCleanupManager(store, logger, cfg.RateLimit.SweepInterval)
	logger.Info("login rate limiter using process memory")
	return store, sweeper, func() {}, nil
}

func newAvatarStorage(ctx context.Context, cfg *config.Config) (storage.Storage, error) {
	if cfg.Storage.Backend == "azure" {
		blob, err := storage.NewAzureBlobStorage(
			cfg.Storage.AzureEndpoint,
			cfg.Storage.AzureAccountName,
			cfg.Storage.AzureAccountKey,
			cfg.Storage.AzureContainer,
		)
		if err != nil {
			return nil, err
		}
		if err := blob.EnsureContainer(ctx); err != nil {
			return nil, err
		}
		return blob, nil
	}
	return storage.NewLocalStorage(cfg.Storage.LocalDir)
}

func newLockoutNotifier(ctx context.Context, cfg *config.Config, logger *slog.Logger) (services.LockoutNotifier, error) {
	if !cfg.Email.Enabled {
		return services.NoopNotifier{}, nil
	}
	return services.NewSESNotifier(ctx, cfg.Email.AWSRegion, cfg.Email.FromAddress, logger)
}
