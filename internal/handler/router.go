package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"biliticket/possync/internal/config"
	"biliticket/possync/internal/handler/middleware"
)

// Handlers groups the route handlers mounted by SetupRouter.
type Handlers struct {
	Auth    *AuthHandler
	Status  *StatusHandler
	Queue   *QueueHandler
	Catalog *CatalogHandler
	Orders  *OrderHandler
}

func SetupRouter(
	cfg *config.Config,
	logger *zap.Logger,
	session middleware.SessionSource,
	h Handlers,
) *gin.Engine {
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.CORS(cfg.CORS))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Public routes: the till must answer these before anyone logs in.
	public := r.Group("/api/v1")
	{
		public.POST("/auth/login", h.Auth.Login)
		public.GET("/status", h.Status.Status)
	}

	protected := r.Group("/api/v1")
	protected.Use(middleware.RequireSession(session))
	{
		protected.POST("/auth/logout", h.Auth.Logout)
		protected.GET("/auth/me", h.Auth.Me)
		protected.GET("/auth/session", h.Auth.Session)

		protected.PUT("/offline-mode", h.Status.SetOfflineMode)
		protected.POST("/sync", h.Status.Sync)

		protected.GET("/queue", h.Queue.List)
		protected.GET("/queue/events", h.Queue.Events)

		protected.GET("/products", h.Catalog.Search)
		protected.GET("/products/:id", h.Catalog.Get)
		protected.POST("/products/refresh", h.Catalog.Refresh)
		protected.POST("/warm", h.Catalog.Warm)

		protected.POST("/orders", h.Orders.Create)
		protected.GET("/orders", h.Orders.List)
		protected.POST("/orders/refresh", h.Orders.Refresh)
		protected.GET("/orders/:id", h.Orders.Get)
		protected.POST("/orders/:id/payments", h.Orders.Pay)
		protected.PATCH("/orders/:id/status", h.Orders.UpdateStatus)
		protected.POST("/orders/:id/cancel", h.Orders.Cancel)
	}

	supervisor := protected.Group("/queue")
	supervisor.Use(middleware.RequireRole(cfg.POS.SupervisorRoles))
	{
		supervisor.POST("/retry-failed", h.Queue.RetryFailed)
		supervisor.POST("/:id/retry", h.Queue.Retry)
	}

	return r
}
