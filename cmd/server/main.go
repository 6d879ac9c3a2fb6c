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

	"github.com/yourorg/timetrack/internal/cache"
	"github.com/yourorg/timetrack/internal/clock"
	"github.com/yourorg/timetrack/internal/handler"
	"github.com/yourorg/timetrack/internal/infrastructure/logger"
	"github.com/yourorg/timetrack/internal/infrastructure/redis"
	"github.com/yourorg/timetrack/internal/observability/metrics"
	"github.com/yourorg/timetrack/internal/observability/tracing"
	"github.com/yourorg/timetrack/internal/realtime"
	"github.com/yourorg/timetrack/internal/repository"
	"github.com/yourorg/timetrack/internal/security"
	"github.com/yourorg/timetrack/internal/security/audit"
	"github.com/yourorg/timetrack/internal/security/auth"
	"github.com/yourorg/timetrack/internal/security/middleware"
	"github.com/yourorg/timetrack/internal/security/ratelimit"
	"github.com/yourorg/timetrack/internal/service"
	"github.com/yourorg/timetrack/internal/worker"
	"github.com/yourorg/timetrack/pkg/config"
	"github.com/yourorg/timetrack/pkg/database"
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
	log.Info("starting timetrack server", slog.String("environment", cfg.Environment))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Initialize tracing (no-op unless an OTLP endpoint is configured)
	shutdownTracing, err := tracing.Init(ctx, log, "timetrack", cfg.Environment)
	if err != nil {
		log.Error("failed to initialize tracing", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer shutdownTracing(context.Background())

	// 4. Connect Postgres and migrate
	pool, err := database.NewConnectionPool(ctx, cfg.Database, log)
	if err != nil {
		log.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()
	db := pool.GetDB()
	if err := repository.Migrate(ctx, db); err != nil {
		log.Error("failed to run migrations", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 5. Pick the cache backend: Redis when configured, in-process otherwise
	var cacheStore cache.Store
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = redis.NewClient(cfg.RedisURL)
		if err != nil {
			log.Error("failed to connect to Redis", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer redisClient.Close()
		cacheStore = cache.NewRedisStore(redisClient, log)
		log.Info("cache backend: redis")
	} else {
		cacheStore = cache.NewMemoryStore()
		log.Info("cache backend: in-process")
	}
	tenantCache := cache.New(cacheStore, cfg.CacheTTL, log)

	// 6. Repositories
	entryRepo := repository.NewPostgresEntryRepository(db, cfg.LockTimeout, log)
	activityRepo := repository.NewPostgresActivityRepository(db, log)
	projectRepo := repository.NewPostgresProjectRepository(db, log)
	userRepo := repository.NewPostgresUserRepository(db, log)
	tenantRepo := repository.NewPostgresTenantRepository(db)

	// 7. Security components
	tokenManager := auth.NewTokenManager(cfg.JWTSecret, "timetrack")
	rateLimiter := ratelimit.NewLimiter(cfg.RateLimitPerMinute, time.Minute)
	auditLogger := audit.NewLogger(log)

	// 8. Realtime hub and services
	clk := clock.System()
	hub := realtime.NewHub(clk, log)

	entryService := service.NewEntryService(
		entryRepo, projectRepo, tenantCache, hub, clk, auditLogger,
		security.DefaultElevated, cfg.StartSkewTolerance, log,
	)
	statsService := service.NewStatsService(entryRepo, tenantCache, clk, security.DefaultElevated, log)
	authService := service.NewAuthService(userRepo, tenantRepo, tokenManager, cfg.TokenTTL, log)

	// 9. HTTP routes
	mux := http.NewServeMux()
	handler.NewTimeEntryHandler(entryService, log).Register(mux)
	handler.NewStatsHandler(statsService, 5*time.Second, log).Register(mux)
	handler.NewProjectsHandler(projectRepo, tenantCache, security.DefaultElevated, log).Register(mux)
	handler.NewAuthHandler(authService, rateLimiter, log).Register(mux)
	handler.NewActivitiesHandler(activityRepo, log).Register(mux)
	handler.NewHealthHandler(db, redisClient, log).Register(mux)
	mux.Handle("GET /ws", realtime.NewWSHandler(hub, tokenManager, cfg.CORSAllowedOrigins, log))
	mux.Handle("/metrics", promhttp.Handler())

	// CORS honoring configured origins
	handlerWithCORS := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if originAllowed(cfg.CORSAllowedOrigins, origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		} else if len(cfg.CORSAllowedOrigins) > 0 {
			w.Header().Set("Access-Control-Allow-Origin", cfg.CORSAllowedOrigins[0])
		}
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		mux.ServeHTTP(w, r)
	})

	// Chain middleware: request ID -> JWT -> rate limit -> audit -> CORS.
	// JWT runs first so the rate limiter buckets by tenant and the audit
	// trail carries the caller's identity.
	rootHandler := withRequestID(
		middleware.JWTMiddleware(tokenManager, log)(
			middleware.RateLimitMiddleware(rateLimiter, log)(
				middleware.AuditMiddleware(auditLogger)(
					middleware.ValidateJSONContentType(log)(handlerWithCORS),
				),
			),
		),
		log,
	)
	instrumented := otelhttp.NewHandler(metrics.HTTPMetricsMiddleware(rootHandler), "timetrack")

	// 10. Start the reaper
	reaper := worker.NewReaper(
		entryRepo, entryService, statsService, hub,
		cfg.ReaperInterval, cfg.MaxEntryDuration, log,
	)
	go reaper.Start(ctx)

	// 11. Start HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      instrumented,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info("server starting",
		slog.Int("port", cfg.ServerPort),
		slog.String("auth", "jwt"),
		slog.Int("rate_limit", cfg.RateLimitPerMinute),
		slog.Duration("max_entry_duration", cfg.MaxEntryDuration),
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

	cancel() // Stop the reaper
	rateLimiter.Stop()
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
