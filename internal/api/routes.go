package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SetupRoutes sets up the API routes
func SetupRoutes(handler *Handler, logger *zap.Logger) *gin.Engine {
	router := gin.New()

	// Middleware
	router.Use(Recovery())
	router.Use(CORS())
	router.Use(Logger(logger.Named("http")))

	// Health check
	router.GET("/health", handler.HealthCheck)

	// Webhook deliveries
	router.POST("/webhooks", handler.ReceiveWebhook)

	gh := router.Group("/github")
	{
		gh.GET("/orgs", handler.GetOrganizations)
		gh.GET("/members", handler.GetMembers)
		gh.GET("/repos", handler.GetRepositories)
		gh.GET("/commits", handler.GetCommits)
		gh.GET("/snapshot", handler.GetSnapshot)
		gh.GET("/callback", handler.OAuthCallback)
	}

	return router
}
