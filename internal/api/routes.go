package api

import (
	"github.com/TheGojiOG/notion-backup/internal/api/handlers"
	"github.com/TheGojiOG/notion-backup/internal/api/middleware"
	"github.com/TheGojiOG/notion-backup/internal/config"
	"github.com/gin-gonic/gin"
)

// SetupRouter configures and returns the HTTP router
func SetupRouter(cfg *config.Config, runHandler *handlers.RunHandler) *gin.Engine {
	// Set Gin mode based on environment
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.RateLimit(cfg.Server.RateLimit.Enabled, cfg.Server.RateLimit.RequestsPerMinute))
	router.Use(middleware.SecurityHeaders())

	router.GET("/health", runHandler.Health)

	// Protected routes
	protected := router.Group("/api/v1")
	protected.Use(middleware.APIToken(cfg.Server.APIToken))
	{
		runs := protected.Group("/runs")
		{
			runs.GET("", runHandler.ListRuns)
			runs.GET("/:id", runHandler.GetRun)
			runs.POST("", runHandler.TriggerRun)
		}
	}

	return router
}
