package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"document-intelligence-platform/services"
	"document-intelligence-platform/utils"
)

// SetupExportRoutes registers the export endpoint.
func SetupExportRoutes(router *gin.Engine, exporter *services.ExportService) {
	router.POST("/export", handleExport(exporter))
}

type exportRequest struct {
	DocumentIDs []string `json:"document_ids"`
	Format      string   `json:"format"`
}

func handleExport(exporter *services.ExportService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req exportRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid export request", nil)
			return
		}

		format, err := services.ParseExportFormat(req.Format)
		if err != nil {
			utils.RespondWithBadRequest(c, err.Error(), nil)
			return
		}

		artifact, err := exporter.Export(c.Request.Context(), req.DocumentIDs, format)
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}

		c.Header("Content-Disposition", `attachment; filename="`+artifact.Filename+`"`)
		c.Data(http.StatusOK, artifact.ContentType, artifact.Data)
	}
}
