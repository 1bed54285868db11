package api

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"

	"DocFlow/internal/ingestion_service/service"
	"DocFlow/internal/models"
	"DocFlow/pkg/logger"
)

// API provides the HTTP handlers of the ingestion service.
type API struct {
	service *service.IngestionService
	logger  *logger.Logger
}

// NewAPI creates the handler set.
func NewAPI(service *service.IngestionService, logger *logger.Logger) *API {
	return &API{service: service, logger: logger}
}

// UploadDocumentHandler accepts a multipart file upload and queues it for
// ingestion. The response carries the document ID to poll for status.
func (a *API) UploadDocumentHandler(c *gin.Context) {
	userID := c.GetString("userID")
	topicID := c.PostForm("topic_id")
	if topicID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "topic_id is required"})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}

	tmpDir, err := os.MkdirTemp("", "upload-*")
	if err != nil {
		a.respondError(c, err)
		return
	}
	defer os.RemoveAll(tmpDir)

	localPath := filepath.Join(tmpDir, filepath.Base(fileHeader.Filename))
	if err := c.SaveUploadedFile(fileHeader, localPath); err != nil {
		a.respondError(c, err)
		return
	}

	doc, err := a.service.UploadDocument(c.Request.Context(), userID, topicID, fileHeader.Filename, localPath)
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"document_id": doc.ID, "status": doc.Status})
}

// GetDocumentHandler returns one document record with its current status.
func (a *API) GetDocumentHandler(c *gin.Context) {
	userID := c.GetString("userID")
	doc, err := a.service.GetDocument(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// ListDocumentsHandler returns a page of the user's documents.
func (a *API) ListDocumentsHandler(c *gin.Context) {
	userID := c.GetString("userID")
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))

	docs, err := a.service.ListDocuments(c.Request.Context(), userID, page, limit)
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, docs)
}

// ReingestDocumentHandler queues an existing document for reprocessing.
func (a *API) ReingestDocumentHandler(c *gin.Context) {
	userID := c.GetString("userID")
	doc, err := a.service.ReingestDocument(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"document_id": doc.ID, "status": doc.Status})
}

// DeleteDocumentHandler removes a document, its file, and its vectors.
func (a *API) DeleteDocumentHandler(c *gin.Context) {
	userID := c.GetString("userID")
	if err := a.service.DeleteDocument(c.Request.Context(), userID, c.Param("id")); err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": c.Param("id")})
}

// CreateTopicHandler creates a topic.
func (a *API) CreateTopicHandler(c *gin.Context) {
	userID := c.GetString("userID")

	var payload struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}

	topic, err := a.service.CreateTopic(c.Request.Context(), userID, payload.Name, payload.Description)
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, topic)
}

// ListTopicsHandler returns all topics of the user.
func (a *API) ListTopicsHandler(c *gin.Context) {
	userID := c.GetString("userID")
	topics, err := a.service.ListTopics(c.Request.Context(), userID)
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, topics)
}

// DeleteTopicHandler removes a topic and everything ingested under it.
func (a *API) DeleteTopicHandler(c *gin.Context) {
	userID := c.GetString("userID")
	if err := a.service.DeleteTopic(c.Request.Context(), userID, c.Param("id")); err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": c.Param("id")})
}

// PurgeUserHandler removes every trace of the user's data.
func (a *API) PurgeUserHandler(c *gin.Context) {
	userID := c.GetString("userID")
	if err := a.service.PurgeUser(c.Request.Context(), userID); err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"purged": userID})
}

// HealthHandler reports liveness.
func (a *API) HealthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// respondError maps service errors to HTTP status codes.
func (a *API) respondError(c *gin.Context, err error) {
	var vErr *models.ValidationError
	switch {
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.As(err, &vErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": vErr.Message})
	default:
		a.logger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
