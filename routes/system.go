package routes

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"document-intelligence-platform/internal/ai"
	"document-intelligence-platform/internal/database"
	"document-intelligence-platform/services"
)

// SetupSystemRoutes registers the health and dashboard endpoints.
func SetupSystemRoutes(router *gin.Engine, store *database.Store, engine *ai.OllamaClient, ocr *services.OCRClient, startedAt time.Time) {
	router.GET("/health", handleHealth(store, engine, ocr, startedAt))
	router.GET("/dashboard", handleDashboard(store))
}

func handleHealth(store *database.Store, engine *ai.OllamaClient, ocr *services.OCRClient, startedAt time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		dbHealthy := true
		total, err := store.CountDocuments(c.Request.Context())
		if err != nil {
			dbHealthy = false
		}

		engineHealth := engine.Health(c.Request.Context())

		// The OCR sidecar only affects image uploads, so it reports but
		// never degrades overall status.
		ocrStatus := "disabled"
		if ocr != nil && ocr.Enabled() {
			if healthy, _ := ocr.IsHealthy(c.Request.Context()); healthy {
				ocrStatus = "healthy"
			} else {
				ocrStatus = "unreachable"
			}
		}

		status := "healthy"
		code := http.StatusOK
		if !dbHealthy {
			status = "unhealthy"
			code = http.StatusServiceUnavailable
		} else if !engineHealth.Available {
			// Documents can still be uploaded and parsed without the
			// inference engine.
			status = "degraded"
		}

		c.JSON(code, gin.H{
			"status":          status,
			"uptime_seconds":  int64(time.Since(startedAt).Seconds()),
			"database":        dbHealthy,
			"inference":       engineHealth,
			"ocr":             ocrStatus,
			"documents":       total,
			"supported_types": services.SupportedTypes(),
		})
	}
}

func handleDashboard(store *database.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		total, err := store.CountDocuments(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load dashboard"})
			return
		}

		byStatus, err := store.CountByStatus(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load dashboard"})
			return
		}

		recent, err := store.ListDocuments(c.Request.Context(), 10)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load dashboard"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"total_documents":  total,
			"by_status":        byStatus,
			"recent_documents": recent,
		})
	}
}
