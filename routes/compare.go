package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"document-intelligence-platform/services"
	"document-intelligence-platform/utils"
)

// SetupCompareRoutes registers the pairwise comparison endpoint.
func SetupCompareRoutes(router *gin.Engine, comparator *services.Comparator) {
	router.POST("/compare", handleCompare(comparator))
}

type compareRequest struct {
	LeftID           string `json:"left_id" binding:"required"`
	RightID          string `json:"right_id" binding:"required"`
	IncludeNarrative bool   `json:"include_narrative"`
}

func handleCompare(comparator *services.Comparator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req compareRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "left_id and right_id are required", nil)
			return
		}
		result, err := comparator.Compare(c.Request.Context(), req.LeftID, req.RightID, services.CompareOptions{
			IncludeNarrative: req.IncludeNarrative,
		})
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}
