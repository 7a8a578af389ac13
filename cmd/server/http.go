package main

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/marketrelay/backend/internal/infrastructure/auth"
	"github.com/marketrelay/backend/internal/infrastructure/config"
	"github.com/marketrelay/backend/internal/infrastructure/logger"
	"github.com/marketrelay/backend/internal/infrastructure/telemetry"
	"github.com/marketrelay/backend/internal/interfaces/http/handler"
	"github.com/marketrelay/backend/internal/interfaces/http/middleware"
	"github.com/marketrelay/backend/internal/interfaces/http/router"
	"go.uber.org/zap"

	_ "github.com/marketrelay/backend/docs"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// newEngine assembles the gin engine. Engine middleware runs outermost
// first; request logging wraps recovery so a recovered panic still
// produces an access log line. /health and /swagger sit outside /api/v1
// and skip authentication.
func newEngine(ctx context.Context, cfg *config.Config, log *zap.Logger, meters *telemetry.MeterProvider, health map[string]handler.HealthCheck, handlers router.Handlers) *gin.Engine {
	middleware.SetupValidator()

	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	engine.Use(
		middleware.RequestID(),
		logger.GinMiddleware(log, "/health"),
		logger.Recovery(log),
		middleware.Tracing(cfg.Telemetry.ServiceName, cfg.Telemetry.Enabled),
		middleware.Secure(),
		middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins:     cfg.HTTP.CORSAllowOrigins,
			AllowMethods:     cfg.HTTP.CORSAllowMethods,
			AllowHeaders:     cfg.HTTP.CORSAllowHeaders,
			ExposeHeaders:    []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}),
		middleware.BodyLimit(cfg.HTTP.MaxBodySize),
	)
	if cfg.HTTP.RequestTimeout > 0 {
		engine.Use(middleware.Timeout(cfg.HTTP.RequestTimeout))
	}

	engine.GET("/health", handler.NewHealthHandler(appVersion, health).Health)
	engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	r := router.NewRouter(engine,
		router.WithAPIVersion("v1"),
		router.WithMiddleware(apiMiddleware(ctx, cfg, log, meters)...),
	)
	router.RegisterDomains(r, handlers).Setup()
	return engine
}

// apiMiddleware runs on every /api/v1 route: authentication first, then
// the per-tenant concerns that read the verified claims.
func apiMiddleware(ctx context.Context, cfg *config.Config, log *zap.Logger, meters *telemetry.MeterProvider) []gin.HandlerFunc {
	chain := []gin.HandlerFunc{
		middleware.Authenticate(auth.NewTokens(cfg.JWT), middleware.AuthOptions{Logger: log}),
		middleware.SpanEnricher(),
	}
	if cfg.HTTP.RateLimitEnabled {
		limiter := middleware.NewRateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)
		// ctx ends with the process
		go limiter.Run(ctx)
		chain = append(chain, middleware.RateLimit(limiter))
		log.Info("Rate limiting enabled",
			zap.Int("requests", cfg.HTTP.RateLimitRequests),
			zap.Duration("window", cfg.HTTP.RateLimitWindow),
		)
	}
	chain = append(chain, middleware.Profiling(cfg.Telemetry.ProfilingEnabled))
	if m, err := middleware.HTTPMetrics(meters.Meter("marketrelay/http")); err != nil {
		log.Warn("HTTP metrics disabled", zap.Error(err))
	} else {
		chain = append(chain, m)
	}
	return chain
}
