package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"streamcast/internal/core/ports"
	handlers "streamcast/internal/handlers/http"
	"streamcast/internal/infrastructure/middleware"
	"streamcast/internal/infrastructure/monitoring"
	"streamcast/internal/infrastructure/registry"
	signalrelay "streamcast/internal/infrastructure/signal"
	"streamcast/pkg/config"
	rlog "streamcast/pkg/logger"
	"streamcast/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const healthCheckTimeout = 5 * time.Second

func main() {
	logger := rlog.New("info").Sugar()
	defer logger.Sync()

	cfg := loadConfig(logger)
	logger = rlog.New(cfg.Logging.Level).Sugar()

	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "streamcast-signal",
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		logger.Fatalw("tracing init failed", "error", err)
	}

	factory, err := registry.NewFactory(cfg, logger)
	if err != nil {
		logger.Fatalw("registry init failed", "error", err)
	}
	defer factory.Close()
	rooms := factory.CreateRoomRegistry()

	collector := monitoring.NewCollector(prometheus.DefaultRegisterer)

	relay := signalrelay.NewRelay(rooms, collector, logger, signalrelay.Options{
		PingInterval:   cfg.Relay.PingInterval,
		PongTimeout:    cfg.Relay.PongTimeout,
		WriteTimeout:   cfg.Relay.WriteTimeout,
		RateLimit:      cfg.RateLimiting.Enabled,
		MessagesPerSec: cfg.RateLimiting.WebSocket.MessagesPerSecond,
		MessageBurst:   cfg.RateLimiting.WebSocket.Burst,
	})

	checker := monitoring.NewHealthChecker()
	checker.AddCheck("registry", factory.HealthCheck, healthCheckTimeout)

	router := buildRouter(cfg, logger, relay, rooms, checker)

	srv := &http.Server{
		Addr:    cfg.Relay.Address,
		Handler: router,
	}

	go func() {
		logger.Infow("signal relay listening",
			"address", cfg.Relay.Address,
			"tls", cfg.Relay.TLSCertFile != "",
			"redis", cfg.Redis.Enabled,
		)
		var err error
		if cfg.Relay.TLSCertFile != "" {
			err = srv.ListenAndServeTLS(cfg.Relay.TLSCertFile, cfg.Relay.TLSKeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			logger.Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Infow("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Relay.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorw("shutdown incomplete", "error", err)
	}
	if tp != nil {
		tp.Shutdown(ctx)
	}
}

func loadConfig(logger *zap.SugaredLogger) *config.Config {
	path := os.Getenv("STREAMCAST_CONFIG")
	if path == "" {
		for _, candidate := range []string{"configs/signal.yaml", "config.yaml"} {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}
	if path == "" {
		path = "configs/signal.yaml" // Load falls back to defaults
	}

	cfg, err := config.Load(path)
	if err != nil {
		logger.Fatalw("config load failed", "path", path, "error", err)
	}
	if _, err := os.Stat(path); err == nil {
		logger.Infow("configuration loaded", "path", path)
	}
	return cfg
}

func buildRouter(cfg *config.Config, logger *zap.SugaredLogger, relay *signalrelay.Relay,
	rooms ports.RoomRegistry, checker *monitoring.HealthChecker) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.ErrorHandlerMiddleware(logger))
	if cfg.Tracing.Enabled {
		router.Use(middleware.TracingMiddleware("streamcast-signal"))
	}
	if cfg.RateLimiting.Enabled {
		limiter := middleware.NewRateLimiter(
			cfg.RateLimiting.HTTP.RequestsPerSecond,
			cfg.RateLimiting.HTTP.Burst,
			logger,
		)
		router.Use(limiter.Middleware())
	}

	router.GET("/ws", gin.WrapH(relay))

	healthHandler := handlers.NewHealthHandler(checker, relay)
	router.GET("/healthz", healthHandler.Health)

	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	api := router.Group("/api")
	if cfg.Auth.Enabled {
		api.Use(middleware.AuthMiddleware(cfg.Auth.JWTSecret, logger))
	}
	roomHandler := handlers.NewRoomHandler(rooms, logger)
	api.GET("/rooms/:room/members", roomHandler.GetMembers)

	if cfg.Relay.StaticDir != "" {
		router.NoRoute(gin.WrapH(http.FileServer(http.Dir(cfg.Relay.StaticDir))))
	}

	return router
}
