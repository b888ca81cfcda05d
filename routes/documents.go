package routes

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"document-intelligence-platform/internal/config"
	"document-intelligence-platform/internal/database"
	"document-intelligence-platform/internal/logger"
	"document-intelligence-platform/internal/queue"
	"document-intelligence-platform/models"
	"document-intelligence-platform/services"
	"document-intelligence-platform/utils"
)

// SetupDocumentRoutes registers the document CRUD and lifecycle routes.
func SetupDocumentRoutes(router *gin.Engine, cfg *config.Config, store *database.Store, blobs services.BlobStore, queueClient *asynq.Client, orchestrator *services.Orchestrator) {
	docs := router.Group("/documents")
	{
		docs.POST("/upload", handleUpload(cfg, store, blobs, queueClient))
		docs.GET("", handleListDocuments(store))
		docs.GET("/:id", handleGetDocument(store))
		docs.GET("/:id/file", handleDownloadFile(store, blobs))
		docs.GET("/:id/status", handleGetStatus(store))
		docs.GET("/:id/summary", handleGetSummary(store, orchestrator))
		docs.GET("/:id/versions", handleListVersions(store))
		docs.POST("/:id/analyze", handleReanalyze(store, queueClient))
		docs.DELETE("/:id", handleDeleteDocument(store, blobs))
	}
}

func handleUpload(cfg *config.Config, store *database.Store, blobs services.BlobStore, queueClient *asynq.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := c.Request.ParseMultipartForm(cfg.MaxFileSize); err != nil {
			utils.RespondWithError(c, http.StatusRequestEntityTooLarge, "file_too_large",
				"File size exceeds maximum limit", nil)
			return
		}

		file, header, err := c.Request.FormFile("file")
		if err != nil {
			utils.RespondWithBadRequest(c, "No file provided", nil)
			return
		}
		defer file.Close()

		fileType, err := services.DetectType(header.Filename)
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}

		if header.Size > cfg.MaxFileSize {
			utils.RespondWithError(c, http.StatusRequestEntityTooLarge, "file_too_large",
				"File size exceeds maximum limit", nil)
			return
		}

		raw, err := io.ReadAll(io.LimitReader(file, cfg.MaxFileSize+1))
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to read upload", nil)
			return
		}
		if int64(len(raw)) > cfg.MaxFileSize {
			utils.RespondWithError(c, http.StatusRequestEntityTooLarge, "file_too_large",
				"File size exceeds maximum limit", nil)
			return
		}

		checksum := utils.Sha256Hex(raw)

		versionGroup := strings.TrimSpace(c.PostForm("version_group"))
		if versionGroup == "" {
			versionGroup = utils.NormalizeVersionGroup(header.Filename)
		}

		// Byte-identical re-uploads into the same group return the
		// existing document instead of burning another analysis run.
		if existing, err := store.FindDuplicate(c.Request.Context(), checksum, versionGroup); err == nil && existing != nil {
			c.JSON(http.StatusOK, gin.H{
				"duplicate": true,
				"document":  existing,
			})
			return
		}

		versionNumber, err := store.NextVersionNumber(c.Request.Context(), versionGroup)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to resolve document version", nil)
			return
		}

		parentID := strings.TrimSpace(c.PostForm("parent_document_id"))
		if parentID == "" {
			if latest, err := store.LatestInGroup(c.Request.Context(), versionGroup); err == nil && latest != nil {
				parentID = latest.ID
			}
		}

		docID := uuid.NewString()
		ext := strings.ToLower(filepath.Ext(header.Filename))
		path, size, err := blobs.Save(c.Request.Context(), docID+ext, bytes.NewReader(raw))
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to store uploaded file", nil)
			return
		}

		doc := &models.Document{
			ID:               docID,
			Filename:         header.Filename,
			FileType:         fileType,
			FilePath:         path,
			FileSize:         size,
			Checksum:         checksum,
			Status:           models.StatusUploaded,
			VersionGroup:     versionGroup,
			VersionNumber:    versionNumber,
			ParentDocumentID: parentID,
		}
		if err := store.InsertDocument(c.Request.Context(), doc); err != nil {
			blobs.Remove(c.Request.Context(), path)
			utils.RespondWithInternalError(c, "Failed to save document record", nil)
			return
		}

		autoAnalyze := c.DefaultPostForm("auto_analyze", "true") != "false"
		if autoAnalyze {
			if err := enqueueAnalysis(queueClient, doc.ID); err != nil {
				logger.Error("failed to enqueue analysis", "document_id", doc.ID, "error", err)
			}
		}

		c.JSON(http.StatusAccepted, gin.H{
			"document": doc,
			"queued":   autoAnalyze,
		})
	}
}

// enqueueAnalysis puts an analysis task on the queue. A task id conflict
// means the document is already queued, which is the desired state.
func enqueueAnalysis(queueClient *asynq.Client, documentID string) error {
	task, err := queue.NewDocumentAnalyzeTask(documentID)
	if err != nil {
		return err
	}
	if _, err := queueClient.Enqueue(task); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return nil
		}
		return err
	}
	return nil
}

func handleListDocuments(store *database.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.ParseInt(c.DefaultQuery("limit", "50"), 10, 64)
		if limit <= 0 || limit > 500 {
			limit = 50
		}

		docs, err := store.ListDocuments(c.Request.Context(), limit)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to list documents", nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"documents": docs,
			"count":     len(docs),
		})
	}
}

func handleGetDocument(store *database.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")

		doc, err := store.GetDocument(c.Request.Context(), id)
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}

		entities, err := store.ListEntities(c.Request.Context(), id)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to load entities", nil)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"document": doc,
			"entities": entities,
		})
	}
}

func handleDownloadFile(store *database.Store, blobs services.BlobStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		doc, err := store.GetDocument(c.Request.Context(), c.Param("id"))
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}

		raw, err := blobs.Load(c.Request.Context(), doc.FilePath)
		if err != nil {
			utils.RespondWithNotFound(c, "Stored file is no longer available")
			return
		}

		c.Header("Content-Disposition", `attachment; filename="`+doc.Filename+`"`)
		c.Data(http.StatusOK, "application/octet-stream", raw)
	}
}

func handleGetStatus(store *database.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		doc, err := store.GetDocument(c.Request.Context(), c.Param("id"))
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}

		resp := gin.H{
			"id":     doc.ID,
			"status": doc.Status,
		}
		if doc.FailureReason != "" {
			resp["failure_reason"] = doc.FailureReason
		}
		if doc.ProcessedAt != nil {
			resp["processed_at"] = doc.ProcessedAt
		}
		c.JSON(http.StatusOK, resp)
	}
}

func handleGetSummary(store *database.Store, orchestrator *services.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		level, err := models.ParseSummaryLevel(c.Query("level"))
		if err != nil {
			utils.RespondWithBadRequest(c, err.Error(), nil)
			return
		}

		result, err := orchestrator.GetSummary(c.Request.Context(), c.Param("id"), level)
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}

		var payload models.SummaryPayload
		if err := json.Unmarshal([]byte(result.ResultJSON), &payload); err != nil {
			utils.RespondWithInternalError(c, "Stored summary is unreadable", nil)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"document_id": c.Param("id"),
			"level":       payload.Level,
			"content":     payload.Content,
			"bullets":     payload.Bullets,
			"from_cache":  result.FromCache,
			"model":       result.Model,
		})
	}
}

func handleListVersions(store *database.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		doc, err := store.GetDocument(c.Request.Context(), c.Param("id"))
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}

		versions, err := store.ListVersions(c.Request.Context(), doc.VersionGroup)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to list versions", nil)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"version_group": doc.VersionGroup,
			"versions":      versions,
		})
	}
}

func handleReanalyze(store *database.Store, queueClient *asynq.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		doc, err := store.GetDocument(c.Request.Context(), c.Param("id"))
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}

		if doc.Status == models.StatusParsing || doc.Status == models.StatusAnalyzing {
			c.JSON(http.StatusAccepted, gin.H{
				"id":     doc.ID,
				"status": doc.Status,
				"queued": false,
			})
			return
		}

		if err := enqueueAnalysis(queueClient, doc.ID); err != nil {
			utils.RespondWithInternalError(c, "Failed to enqueue analysis", nil)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{
			"id":     doc.ID,
			"status": doc.Status,
			"queued": true,
		})
	}
}

func handleDeleteDocument(store *database.Store, blobs services.BlobStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		doc, err := store.GetDocument(c.Request.Context(), c.Param("id"))
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}

		if err := store.DeleteDocumentCascade(c.Request.Context(), doc.ID); err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}

		// Blob removal is best effort; the orphan purge sweep catches
		// leftovers.
		if err := blobs.Remove(c.Request.Context(), doc.FilePath); err != nil {
			logger.Warn("failed to remove blob on delete", "document_id", doc.ID, "error", err)
		}

		c.JSON(http.StatusOK, gin.H{"deleted": doc.ID})
	}
}
