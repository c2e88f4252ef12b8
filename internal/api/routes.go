// Package api exposes the session manager, the message orchestrator and the
// proxy pool over HTTP.
package api

import (
	"time"

	"cronos/internal/config"
	"cronos/internal/manager"
	"cronos/internal/proxy"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Deps are the services behind the routes. History is optional.
type Deps struct {
	Config   *config.Config
	Manager  *manager.Manager
	Sender   Sender
	Rotator  *proxy.Rotator
	Strategy proxy.Strategy
	History  History
	Logger   *zap.Logger
}

// NewRouter returns an engine with recovery, request logging and every route.
func NewRouter(deps Deps) *gin.Engine {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(deps.Logger))
	router.GET("/healthz", Health(deps.Manager))
	RegisterRoutes(router.Group(""), deps)
	return router
}

// RegisterRoutes mounts the session, message and proxy routes on router.
func RegisterRoutes(router *gin.RouterGroup, deps Deps) {
	logger := deps.Logger

	sessions := router.Group("/sessions")
	{
		sessions.GET("", ListSessions(deps.Manager))
		sessions.POST("/:identity", GetSession(deps.Manager, logger))
		sessions.GET("/:identity/qr", GetQRCode(deps.Config))
		sessions.DELETE("/:identity", CloseSession(deps.Manager, logger))
		sessions.POST("/:identity/logout", LogoutSession(deps.Manager, logger))
		sessions.POST("/:identity/destroy", DestroySession(deps.Manager, logger))
		sessions.PUT("/:identity/proxy", ChangeProxy(deps.Manager, logger))
		sessions.POST("/:identity/proxy/rotate", RotateProxy(deps.Manager, logger))
	}

	router.POST("/messages", SendMessage(deps.Sender))
	if deps.History != nil {
		router.GET("/messages", ListMessages(deps.History, logger))
	}

	if deps.Rotator != nil {
		proxies := router.Group("/proxies")
		proxies.GET("", ListProxies(deps.Rotator, deps.Strategy))
		proxies.POST("", AddProxy(deps.Rotator, logger))
		proxies.DELETE("", RemoveProxy(deps.Rotator))
	}
}

// RequestLogger logs one line per request.
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)))
	}
}
