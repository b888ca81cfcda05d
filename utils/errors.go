package utils

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"document-intelligence-platform/models"
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	ErrorCode string      `json:"error_code"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
}

// RespondWithError sends a standardized error response
func RespondWithError(c *gin.Context, statusCode int, errorCode, message string, details interface{}) {
	c.JSON(statusCode, ErrorResponse{
		ErrorCode: errorCode,
		Message:   message,
		Details:   details,
	})
}

// RespondWithBadRequest sends a 400 Bad Request error
func RespondWithBadRequest(c *gin.Context, message string, details interface{}) {
	RespondWithError(c, http.StatusBadRequest, "bad_request", message, details)
}

// RespondWithNotFound sends a 404 Not Found error
func RespondWithNotFound(c *gin.Context, message string) {
	RespondWithError(c, http.StatusNotFound, "not_found", message, nil)
}

// RespondWithConflict sends a 409 Conflict error
func RespondWithConflict(c *gin.Context, message string, details interface{}) {
	RespondWithError(c, http.StatusConflict, "conflict", message, details)
}

// RespondWithInternalError sends a 500 Internal Server Error
func RespondWithInternalError(c *gin.Context, message string, details interface{}) {
	RespondWithError(c, http.StatusInternalServerError, "internal_error", message, details)
}

// RespondWithDomainError maps domain errors onto HTTP responses.
// Unknown errors become a 500 with the error text hidden from clients.
func RespondWithDomainError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrDocumentNotFound):
		RespondWithError(c, http.StatusNotFound, "document_not_found", err.Error(), nil)
	case errors.Is(err, models.ErrUnsupportedFormat):
		RespondWithError(c, http.StatusUnsupportedMediaType, "unsupported_format", err.Error(), nil)
	case errors.Is(err, models.ErrCorruptInput):
		RespondWithError(c, http.StatusUnprocessableEntity, "corrupt_input", err.Error(), nil)
	case errors.Is(err, models.ErrDocumentNotAnalyzed):
		RespondWithConflict(c, err.Error(), nil)
	case errors.Is(err, models.ErrNoDocumentsSelected):
		RespondWithBadRequest(c, err.Error(), nil)
	case errors.Is(err, models.ErrEmptyResultSet):
		RespondWithNotFound(c, err.Error())
	case errors.Is(err, models.ErrInferenceTimeout):
		RespondWithError(c, http.StatusGatewayTimeout, "inference_timeout", err.Error(), nil)
	case errors.Is(err, models.ErrInferenceUnavailable):
		RespondWithError(c, http.StatusServiceUnavailable, "inference_unavailable", err.Error(), nil)
	case errors.Is(err, models.ErrInferenceMalformedOutput):
		RespondWithError(c, http.StatusBadGateway, "inference_malformed_output", err.Error(), nil)
	default:
		RespondWithInternalError(c, "unexpected server error", nil)
	}
}
