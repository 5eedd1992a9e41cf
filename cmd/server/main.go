package main

// @title           Penci Realtime Relay API
// @version         1.0
// @description     WebSocket relay for collaborative design editing and notifications
// @host            localhost:8080
// @BasePath        /
// @schemes         http https

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"penci-relay/internal/api/middleware"
	"penci-relay/internal/api/routes"
	"penci-relay/internal/auth"
	"penci-relay/internal/config"
	"penci-relay/internal/database"
	"penci-relay/internal/services"
	"penci-relay/internal/websocket"
	"penci-relay/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	// Initialize logger
	appLogger := logger.New(cfg.Log.Level, cfg.Log.Format)
	appLogger.SetAsDefault()
	appLogger.Info("Starting realtime relay", "address", cfg.Addr())

	hubOpts := websocket.Options{
		SendBuffer:     cfg.Relay.SendBuffer,
		MaxMessageSize: cfg.Relay.MaxMessageSize,
		Verifier:       auth.NewVerifier(cfg.JWT.Secret),
	}

	// Redis is optional: it backs presence and the emit rate limit.
	var limiter middleware.RateLimiter
	if cfg.Redis.Enabled() {
		redisClient, err := database.NewRedisConnection(&cfg.Redis, appLogger)
		if err != nil {
			appLogger.Error("Failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()

		redisService := services.NewRedisService(redisClient.GetClient())
		if err := redisService.ClearPresence(context.Background()); err != nil {
			appLogger.Warn("Failed to clear stale presence", "error", err)
		}
		hubOpts.Presence = redisService
		limiter = redisService
	} else {
		appLogger.Info("Redis not configured, presence and rate limiting disabled")
	}
	if !hubOpts.Verifier.Enabled() {
		appLogger.Warn("JWT secret not set, identify and emit-notification are unauthenticated")
	}

	// Initialize WebSocket hub
	hub := websocket.NewHub(hubOpts, appLogger)
	go hub.Run()

	router := routes.NewRouter(cfg, hub, hubOpts.Verifier, limiter)
	router.SetupRoutes()

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router.GetEngine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in a goroutine
	go func() {
		appLogger.Info("Server starting", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Stop WebSocket hub; hijacked connections are not covered by Shutdown.
	hub.Stop()
	select {
	case <-hub.Done():
	case <-ctx.Done():
	}

	if err := server.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown", "error", err)
	}

	appLogger.Info("Server stopped")
}
