package main

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

	"github.com/BradenHooton/garage/internal/auth"
	"github.com/BradenHooton/garage/internal/background"
	"github.com/BradenHooton/garage/internal/cache"
	"github.com/BradenHooton/garage/internal/config"
	"github.com/BradenHooton/garage/internal/database"
	"github.com/BradenHooton/garage/internal/handlers"
	middlewareCustom "github.com/BradenHooton/garage/internal/middleware"
	"github.com/BradenHooton/garage/internal/repositories"
	"github.com/BradenHooton/garage/internal/routes"
	"github.com/BradenHooton/garage/internal/services"
	pkgauth "github.com/BradenHooton/garage/pkg/auth"
	pkghttp "github.com/BradenHooton/garage/pkg/http"
	pkglogger "github.com/BradenHooton/garage/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
)

// initialAdminPasswordFile receives the generated bootstrap password when
// ADMIN_PASSWORD is not set
const initialAdminPasswordFile = ".initial_admin_password"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := pkglogger.New(os.Stdout, cfg.Server.LogFormat, cfg.Server.LogLevel)
	slog.SetDefault(logger)

	logger.Info("configuration loaded",
		slog.String("env", cfg.Server.Env),
		slog.String("session_backend", cfg.Auth.SessionBackend),
		slog.String("rate_limit_backend", cfg.Auth.RateLimitBackend),
	)

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	migrateCtx, migrateCancel := context.WithTimeout(context.Background(), time.Minute)
	err = db.Migrate(migrateCtx)
	migrateCancel()
	if err != nil {
		logger.Error("failed to run migrations", slog.Any("error", err))
		os.Exit(1)
	}

	// Optional Redis for sessions and rate limit counters
	var redisClient *redis.Client
	if cfg.UsesRedis() {
		connectCtx, connectCancel := context.WithTimeout(context.Background(), 5*time.Second)
		redisClient, err = cache.Connect(connectCtx, cfg.Redis.URL)
		connectCancel()
		if err != nil {
			logger.Error("failed to connect to redis", slog.Any("error", err))
			os.Exit(1)
		}
		defer redisClient.Close()
	}

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)
	resetRepo := repositories.NewPasswordResetRepository(db)
	auditRepo := repositories.NewAuditLogRepository(db)

	// Initialize security services
	hasher := pkgauth.NewHasher(cfg.Auth.PasswordIterations)
	auditService := services.NewAuditService(auditRepo, logger)

	sessionStore := services.NewSessionStore(
		sessionBackend(cfg.Auth.SessionBackend, db, redisClient),
		services.SessionConfig{TTL: cfg.Auth.SessionTTL, IdleTimeout: cfg.Auth.SessionIdleTimeout},
		logger,
	)

	rateLimiter := services.NewRateLimiter(
		rateLimitBackend(cfg.Auth.RateLimitBackend, db, redisClient),
		services.RateLimitConfig{MaxFailures: cfg.Auth.RateLimitMaxFailures, Window: cfg.Auth.RateLimitWindow},
		logger,
	)

	// Timing delay for password reset requests
	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelayMs:   cfg.Auth.TimingDelayBaseMs,
		RandomDelayMs: cfg.Auth.TimingDelayRandomMs,
	})

	emailService, err := newEmailService(cfg.Email, logger)
	if err != nil {
		logger.Error("failed to initialize email service", slog.Any("error", err))
		os.Exit(1)
	}

	// Initialize services
	authService := services.NewAuthService(
		userRepo,
		resetRepo,
		sessionStore,
		rateLimiter,
		hasher,
		emailService,
		auditService,
		timingDelay,
		services.AuthConfig{ResetTokenTTL: cfg.Auth.ResetTokenTTL, ResetURLBase: cfg.Auth.ResetURLBase},
		logger,
	)
	userService := services.NewUserService(userRepo, sessionStore, hasher, auditService, logger)

	// Bootstrap first admin user
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := ensureAdminUser(ctx, userService, cfg.Admin, logger); err != nil {
		logger.Error("failed to ensure admin user", slog.Any("error", err))
	}
	cancel()

	// Initialize handlers
	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}
	h := routes.Handlers{
		Auth: handlers.NewAuthHandler(authService, handlers.AuthHandlerConfig{
			Cookie: auth.CookieConfig{
				Domain:   cfg.Auth.CookieDomain,
				Secure:   cfg.Auth.CookieSecure,
				SameSite: "lax",
			},
			ExposeResetLink: cfg.Auth.ExposeResetLink,
		}, ipConfig, logger),
		Users:  handlers.NewUserHandler(userService, logger),
		Audit:  handlers.NewAuditHandler(auditService, logger),
		Health: handlers.NewHealthHandler(db, sessionStore, logger),
	}

	// Initialize cleanup manager
	cleanupManager := background.NewCleanupManager(
		sessionStore,
		rateLimiter,
		authService,
		auditService,
		background.CleanupConfig{
			Interval:           cfg.Auth.CleanupInterval,
			AuditRetentionDays: cfg.Auth.AuditRetentionDays,
		},
		logger,
	)

	// Setup router. The client IP is resolved by pkghttp.ExtractClientIP
	// against TRUSTED_PROXIES, so chi's RealIP is not used.
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(middlewareCustom.DefaultCORSConfig(cfg.Server.AllowedOrigins)))
	router.Use(middlewareCustom.SecureLogger(logger, ipConfig))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(router, h, authService, ipConfig, logger)

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start cleanup task
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupManager.Stop()
	cleanupCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	authService.WaitForEmails()

	logger.Info("server stopped gracefully")
}

func sessionBackend(kind string, db *database.DB, client *redis.Client) services.SessionRepository {
	switch kind {
	case config.BackendRedis:
		return cache.NewRedisSessionStore(client)
	case config.BackendMemory:
		return cache.NewMemorySessionStore()
	default:
		return repositories.NewSessionRepository(db)
	}
}

func rateLimitBackend(kind string, db *database.DB, client *redis.Client) services.RateLimitStore {
	switch kind {
	case config.BackendRedis:
		return cache.NewRedisRateLimitStore(client)
	case config.BackendPostgres:
		return repositories.NewRateLimitRepository(db)
	default:
		return cache.NewMemoryRateLimitStore()
	}
}

func newEmailService(cfg config.EmailConfig, logger *slog.Logger) (services.EmailService, error) {
	if cfg.Provider == config.EmailProviderSES {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return services.NewAWSSESEmailService(ctx, cfg.AWSRegion, cfg.From, logger)
	}
	return services.NewLogEmailService(logger), nil
}

// ensureAdminUser creates the bootstrap admin. Without ADMIN_PASSWORD a
// random password is generated and written to initialAdminPasswordFile.
func ensureAdminUser(ctx context.Context, users *services.UserService, cfg config.AdminConfig, logger *slog.Logger) error {
	password := cfg.Password
	generated := false
	if password == "" {
		var err error
		password, err = generateAdminPassword()
		if err != nil {
			return err
		}
		generated = true
	}

	created, err := users.EnsureAdmin(ctx, cfg.Username, cfg.Email, password)
	if err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}
	if !created {
		logger.Info("admin user already exists", slog.String("username", cfg.Username))
		return nil
	}

	if generated {
		content := fmt.Sprintf("Initial admin password for %q: %s\nStore it securely, change it after the first login and delete this file.\n", cfg.Username, password)
		if err := os.WriteFile(initialAdminPasswordFile, []byte(content), 0o600); err != nil {
			return fmt.Errorf("failed to write initial admin password: %w", err)
		}
		logger.Warn("admin user created with a generated password",
			slog.String("username", cfg.Username),
			slog.String("password_file", initialAdminPasswordFile))
		return nil
	}

	logger.Info("admin user created", slog.String("username", cfg.Username))
	return nil
}

// generateAdminPassword returns a random password that satisfies the password policy
func generateAdminPassword() (string, error) {
	for i := 0; i < 20; i++ {
		candidate, err := pkgauth.GenerateURLToken(16)
		if err != nil {
			return "", err
		}
		if pkgauth.ValidatePassword(candidate) == nil {
			return candidate, nil
		}
	}
	return "", errors.New("could not generate a policy-compliant admin password")
}
