package api

import (
	"net/http"

	authDelivery "mailvault-backend/internal/auth/delivery"
	authUsecase "mailvault-backend/internal/auth/usecase"
	ingestDelivery "mailvault-backend/internal/ingest/delivery"
	qaDelivery "mailvault-backend/internal/qa/delivery"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(r *gin.Engine, authUc authUsecase.AuthUsecase, ingestHandler *ingestDelivery.IngestHandler, qaHandler *qaDelivery.QAHandler, settings *RuntimeSettings) {
	authHandler := authDelivery.NewAuthHandler(authUc)

	api := r.Group("/api")
	{
		// Health check (no auth required)
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		// Auth routes
		auth := api.Group("/auth")
		{
			auth.POST("/session", authHandler.CreateSession)
			auth.DELETE("/session", authHandler.EndSession)
		}

		// Folder discovery and deep-link refresh (protected)
		api.GET("/folders", authDelivery.AuthMiddleware(authUc), ingestHandler.ListFolders)
		api.GET("/messages/:id/link", authDelivery.AuthMiddleware(authUc), ingestHandler.ResolveLink)

		// Ingestion routes (protected)
		ingest := api.Group("/ingest")
		ingest.Use(authDelivery.AuthMiddleware(authUc))
		{
			ingest.POST("/runs", ingestHandler.StartRun)
			ingest.GET("/runs/:id", ingestHandler.GetRun)
			ingest.GET("/runs/:id/events", ingestHandler.StreamEvents)
			ingest.POST("/runs/:id/pause", ingestHandler.PauseRun)
			ingest.POST("/runs/:id/resume", ingestHandler.ResumeRun)
			ingest.POST("/runs/:id/cancel", ingestHandler.CancelRun)
		}

		// Run history and maintenance (protected)
		runs := api.Group("/runs")
		runs.Use(authDelivery.AuthMiddleware(authUc))
		{
			runs.GET("", ingestHandler.ListRuns)
			runs.DELETE("/:id", ingestHandler.ClearRun)
		}

		index := api.Group("/index")
		index.Use(authDelivery.AuthMiddleware(authUc))
		{
			index.GET("/status", ingestHandler.IndexStatus)
			index.DELETE("", ingestHandler.ClearAll)
		}

		// Query routes (protected)
		api.POST("/query", authDelivery.AuthMiddleware(authUc), qaHandler.Query)
		api.GET("/search", authDelivery.AuthMiddleware(authUc), qaHandler.SearchHeaders)

		// Settings routes (public) - Runtime configuration
		settingsGroup := api.Group("/settings")
		{
			settingsGroup.GET("/ollama", settings.GetOllamaSettings)
			settingsGroup.PUT("/ollama", settings.UpdateOllamaSettings)
			settingsGroup.POST("/ollama/test", settings.TestOllamaConnection)
		}
	}
}
