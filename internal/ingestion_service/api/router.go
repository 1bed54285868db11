package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// AuthMiddleware resolves the calling user. The gateway in front of this
// service authenticates requests and forwards the user ID in a header.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader("X-User-ID")
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing X-User-ID header"})
			return
		}
		c.Set("userID", userID)
		c.Next()
	}
}

// RegisterRoutes registers all routes of the ingestion service.
func RegisterRoutes(router *gin.Engine, api *API) {
	router.GET("/health", api.HealthHandler)

	v1 := router.Group("/api/v1")
	v1.Use(AuthMiddleware())
	{
		documents := v1.Group("/documents")
		{
			documents.POST("", api.UploadDocumentHandler)
			documents.GET("", api.ListDocumentsHandler)
			documents.GET("/:id", api.GetDocumentHandler)
			documents.POST("/:id/reingest", api.ReingestDocumentHandler)
			documents.DELETE("/:id", api.DeleteDocumentHandler)
		}

		topics := v1.Group("/topics")
		{
			topics.POST("", api.CreateTopicHandler)
			topics.GET("", api.ListTopicsHandler)
			topics.DELETE("/:id", api.DeleteTopicHandler)
		}

		v1.DELETE("/user/data", api.PurgeUserHandler)
	}
}
