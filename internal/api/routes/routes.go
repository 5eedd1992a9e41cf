package routes

import (
	"time"

	"penci-relay/docs"
	"penci-relay/internal/api/handlers"
	"penci-relay/internal/api/middleware"
	"penci-relay/internal/auth"
	"penci-relay/internal/config"
	"penci-relay/internal/websocket"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

type Router struct {
	engine              *gin.Engine
	cfg                 *config.Config
	wsHandler           *handlers.WSHandler
	notificationHandler *handlers.NotificationHandler
	healthHandler       *handlers.HealthHandler
	rateLimitMW         *middleware.RateLimitMiddleware
	authMW              *middleware.AuthMiddleware
}

// NewRouter wires the HTTP surface around hub. limiter may be nil when
// Redis is not configured.
func NewRouter(
	cfg *config.Config,
	hub *websocket.Hub,
	verifier *auth.Verifier,
	limiter middleware.RateLimiter,
) *Router {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	// Add middlewares
	engine.Use(gin.Recovery())
	engine.Use(middleware.RequestID())
	engine.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	engine.Use(middleware.LogApi())

	r := &Router{
		engine:              engine,
		cfg:                 cfg,
		wsHandler:           handlers.NewWSHandler(hub, cfg.Server.AllowedOrigins),
		notificationHandler: handlers.NewNotificationHandler(hub),
		healthHandler:       handlers.NewHealthHandler(hub),
	}
	if limiter != nil {
		r.rateLimitMW = middleware.NewRateLimitMiddleware(limiter)
	}
	if verifier.Enabled() {
		r.authMW = middleware.NewAuthMiddleware(verifier)
	}
	return r
}

func (r *Router) SetupRoutes() {
	r.engine.GET("/health", r.healthHandler.Health)

	socket := r.engine.Group("/socket")
	{
		socket.GET("", r.wsHandler.HandleWebSocket)
		socket.GET("/health", r.healthHandler.Health)
		socket.GET("/stats", r.healthHandler.Stats)
	}

	var emitChain []gin.HandlerFunc
	if r.authMW != nil {
		emitChain = append(emitChain, r.authMW.RequireAuth())
	}
	if r.rateLimitMW != nil && r.cfg.Relay.EmitRateLimit > 0 {
		emitChain = append(emitChain, r.rateLimitMW.RateLimitIP(r.cfg.Relay.EmitRateLimit, time.Minute))
	}
	emitChain = append(emitChain, r.notificationHandler.EmitNotification)
	r.engine.POST("/emit-notification", emitChain...)

	docs.SwaggerInfo.Host = ""
	r.engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
}

func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}
