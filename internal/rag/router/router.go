// Package router provides SupNum knowledge base service routing.
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/sidi-cnm/supnum-backend/internal/rag/handler"
	"github.com/sidi-cnm/supnum-backend/internal/rag/metrics"
)

// Register registers the knowledge base routes on the gin engine.
func Register(engine *gin.Engine, ragHandler *handler.RAGHandler) {
	logger.Info("Registering RAG routes...")

	v1 := engine.Group("/v1")
	{
		// Question answering
		v1.POST("/ask", ragHandler.Ask)
		v1.POST("/search", ragHandler.Search)

		// Document management
		docs := v1.Group("/documents")
		{
			docs.POST("", ragHandler.CreateDocument)
			docs.GET("", ragHandler.ListDocuments)
			docs.GET("/:id", ragHandler.GetDocument)
			docs.DELETE("/:id", ragHandler.DeleteDocument)
			docs.POST("/:id/reindex", ragHandler.ReindexDocument)
			docs.POST("/:id/repair", ragHandler.RepairDocument)
		}

		// Observability
		v1.GET("/stats", ragHandler.Stats)
		v1.GET("/logs", ragHandler.ListLogs)
	}

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	engine.GET("/metrics", func(c *gin.Context) {
		c.String(http.StatusOK, metrics.GetRAGMetrics().Export("supnum", "rag"))
	})

	logger.Info("HTTP routes registered")
}
