package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/yourorg/licensegate/internal/handler"
	"github.com/yourorg/licensegate/internal/infrastructure/logger"
	"github.com/yourorg/licensegate/internal/infrastructure/redis"
	"github.com/yourorg/licensegate/internal/observability/metrics"
	"github.com/yourorg/licensegate/internal/observability/tracing"
	"github.com/yourorg/licensegate/internal/reliability/retry"
	"github.com/yourorg/licensegate/internal/repository"
	"github.com/yourorg/licensegate/internal/security"
	"github.com/yourorg/licensegate/internal/security/audit"
	"github.com/yourorg/licensegate/internal/security/auth"
	"github.com/yourorg/licensegate/internal/security/middleware"
	"github.com/yourorg/licensegate/internal/security/ratelimit"
	"github.com/yourorg/licensegate/internal/service"
	"github.com/yourorg/licensegate/internal/worker"
	"github.com/yourorg/licensegate/pkg/config"
	"github.com/yourorg/licensegate/pkg/database"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize structured logger
	log := logger.NewLogger(cfg.LogLevel)
	log.Info("starting licensegate server", slog.String("environment", cfg.Environment))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Initialize tracing (no-op unless an OTLP endpoint is configured)
	shutdownTracing, err := tracing.Init(ctx, log, "licensegate", cfg.Environment)
	if err != nil {
		log.Error("failed to initialize tracing", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Connect to Postgres, retrying while the database comes up
	pool, err := retry.Do(ctx, retry.DefaultConfig(), log, "connect database",
		func(ctx context.Context) (*database.ConnectionPool, error) {
			return database.NewConnectionPool(ctx, &database.Config{
				Host:     cfg.DBHost,
				Port:     cfg.DBPort,
				User:     cfg.DBUser,
				Password: cfg.DBPassword,
				Database: cfg.DBName,
				SSLMode:  cfg.DBSSLMode,
			}, log)
		})
	if err != nil {
		log.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.EnsureSchema(ctx); err != nil {
		log.Error("failed to ensure schema", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if _, err := pool.SeedDefaultTenant(ctx, cfg.DefaultTenantName); err != nil {
		log.Error("failed to seed default tenant", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 5. Initialize Redis client (session revocation store)
	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Error("failed to connect to Redis", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer redisClient.Close()

	// 6. Initialize repositories
	db := pool.GetDB()
	userRepo := repository.NewPostgresUserRepository(db, log)
	tenantRepo := repository.NewPostgresTenantRepository(db, log)
	licenseRepo := repository.NewPostgresLicenseRepository(db, log)
	sessionStore := repository.NewRedisSessionStore(redisClient, log)

	// 7. Initialize security components and services
	tokenManager, err := auth.NewTokenManager(cfg.JWTSecret, "licensegate", cfg.JWTTTL)
	if err != nil {
		log.Error("failed to initialize token manager", slog.String("error", err.Error()))
		os.Exit(1)
	}
	policy := security.NewPolicy(log)
	rateLimiter := ratelimit.NewLimiter(100, time.Minute)
	auditLogger := audit.NewLogger(log)

	authService := service.NewAuthService(userRepo, tenantRepo, tokenManager, sessionStore, policy, cfg.DefaultTenantName, log)
	licenseService := service.NewLicenseService(licenseRepo, policy, cfg.OpsSecretHash, log)
	tenantService := service.NewTenantService(tenantRepo, policy, log)

	// 8. Initialize handlers and routes
	authHandler := handler.NewAuthHandler(authService, log)
	licenseHandler := handler.NewLicenseHandler(licenseService, log)
	tenantHandler := handler.NewTenantHandler(tenantService, log)
	healthHandler := handler.NewHealthHandler(pool, redisClient, log)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /login", authHandler.Login)
	mux.HandleFunc("POST /signup", authHandler.Signup)
	mux.HandleFunc("POST /logout", authHandler.Logout)
	mux.HandleFunc("GET /licenses", licenseHandler.List)
	mux.HandleFunc("POST /activate", licenseHandler.Activate)
	mux.HandleFunc("POST /revoke", licenseHandler.Revoke)
	mux.HandleFunc("POST /clear_licenses", licenseHandler.Clear)
	mux.HandleFunc("POST /register_tenant", tenantHandler.Register)
	mux.HandleFunc("GET /api/v1/licenses", licenseHandler.ListScoped)
	mux.HandleFunc("POST /api/v1/users/assign", authHandler.Assign)
	mux.HandleFunc("GET /healthz", healthHandler.Health)
	mux.HandleFunc("GET /readyz", healthHandler.Ready)
	mux.Handle("GET /metrics", promhttp.Handler())

	// CORS honoring configured origins
	handlerWithCORS := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if originAllowed(cfg.CORSAllowedOrigins, origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		}
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		mux.ServeHTTP(w, r)
	})

	// Chain middleware: request ID -> metrics -> JWT -> rate limit -> audit
	rootHandler := withRequestID(
		metrics.HTTPMetricsMiddleware(
			middleware.JWTMiddleware(tokenManager, sessionStore, log)(
				middleware.RateLimitMiddleware(rateLimiter, log)(
					middleware.AuditMiddleware(auditLogger)(handlerWithCORS),
				),
			),
		),
		log,
	)

	// 9. Start license metrics worker in background
	metricsWorker := worker.NewLicenseMetricsWorker(licenseRepo, log, time.Minute)
	go metricsWorker.Start(ctx)

	// 10. Start HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      otelhttp.NewHandler(rootHandler, "licensegate"),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info("server starting",
		slog.Int("port", cfg.ServerPort),
		slog.String("auth", "jwt"),
		slog.Duration("session_ttl", cfg.JWTTTL),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", slog.String("error", err.Error()))
		}
	}()

	<-sigChan
	log.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", slog.String("error", err.Error()))
	}

	cancel() // stop metrics worker
	rateLimiter.Stop()
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error("tracing shutdown error", slog.String("error", err.Error()))
	}
	log.Info("server stopped")
}

type requestIDKey struct{}

// withRequestID attaches a request ID to the context and response headers for traceability
func withRequestID(next http.Handler, log *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := generateRequestID()
		w.Header().Set("X-Request-ID", reqID)

		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		start := time.Now()

		next.ServeHTTP(w, r.WithContext(ctx))

		log.Info("request completed",
			slog.String("request_id", reqID),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Duration("duration_ms", time.Since(start)),
		)
	})
}

func originAllowed(allowed []string, origin string) bool {
	if origin == "" {
		return false
	}
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
	}
	return false
}

func generateRequestID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err == nil {
		return hex.EncodeToString(buf)
	}
	return fmt.Sprintf("req-%d", time.Now().UnixNano())
}
