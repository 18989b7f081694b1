package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/numdrassl/servermanager/internal/api/middleware"
	"github.com/numdrassl/servermanager/internal/api/stream"
	"github.com/numdrassl/servermanager/internal/orchestrator/facade"
	"github.com/numdrassl/servermanager/internal/orchestrator/metrics"
)

// SetupRouter assembles the gin engine: health/metrics endpoints
// unauthenticated, the operator API and event stream behind JWT auth.
func SetupRouter(manager *facade.Manager, jwtSecret []byte, debug bool) *gin.Engine {
	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger())

	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	metricsHandler := gin.WrapH(promhttp.Handler())
	router.GET("/metrics", func(c *gin.Context) {
		metrics.ObserveFleet(manager.All(), manager.Stats())
		metricsHandler(c)
	})

	handler := NewHandler(manager)
	templateHandler := NewTemplateHandler(manager)
	streamHandler := stream.NewHandler(manager)

	api := router.Group("/api")
	api.Use(middleware.AuthMiddleware(jwtSecret))
	{
		servers := api.Group("/servers")
		{
			servers.GET("", handler.ListServers)
			servers.GET("/:id", handler.GetServer)
			servers.POST("/dynamic", handler.SpawnDynamic)
			servers.POST("/:id/start", handler.StartStatic)
			servers.POST("/:id/shutdown", handler.Shutdown)
			servers.POST("/:id/restart", handler.Restart)
			servers.POST("/:id/heartbeat", handler.Heartbeat)
		}

		api.GET("/fleet/stats", handler.Stats)

		templates := api.Group("/templates")
		{
			templates.GET("", templateHandler.List)
			templates.GET("/:name/available", handler.FindAvailable)
			templates.POST("", middleware.RequireAdmin(), templateHandler.Create)
			templates.POST("/reload", middleware.RequireAdmin(), templateHandler.Reload)
		}

		api.GET("/stream", streamHandler.HandleEvents)
		api.GET("/servers/:id/logs/stream", streamHandler.HandleLogs)
	}

	return router
}
