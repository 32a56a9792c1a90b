package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"docuchat/internal/app"
	"docuchat/internal/transport/http/response"
)

type DocumentHandler struct {
	ingestService *app.IngestService
}

type LinkDocumentRequest struct {
	DocumentID uint `json:"document_id" binding:"required,gt=0"`
}

func NewDocumentHandler(ingestService *app.IngestService) *DocumentHandler {
	return &DocumentHandler{ingestService: ingestService}
}

// Upload ingests one PDF from a multipart form field named "file".
func (h *DocumentHandler) Upload(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing file field")
		return
	}
	if fileHeader.Size > app.MaxUploadBytes {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "file too large")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "unreadable upload")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, app.MaxUploadBytes+1))
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "unreadable upload")
		return
	}

	doc, err := h.ingestService.IngestPDF(c.Request.Context(), userID, fileHeader.Filename, data)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.OK(c, doc)
}

func (h *DocumentHandler) List(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	docs, err := h.ingestService.ListDocuments(c.Request.Context(), userID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.OK(c, docs)
}

func (h *DocumentHandler) Get(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	documentID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	doc, err := h.ingestService.GetDocument(c.Request.Context(), userID, documentID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.OK(c, doc)
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	documentID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.ingestService.DeleteDocument(c.Request.Context(), userID, documentID); err != nil {
		respondServiceError(c, err)
		return
	}
	response.OK(c, gin.H{"deleted_document_id": documentID})
}

// Link attaches a document to a session's retrieval scope.
func (h *DocumentHandler) Link(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	sessionID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req LinkDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	if err := h.ingestService.LinkDocument(c.Request.Context(), userID, sessionID, req.DocumentID); err != nil {
		respondServiceError(c, err)
		return
	}
	response.OK(c, gin.H{"chat_session_id": sessionID, "document_id": req.DocumentID})
}

func (h *DocumentHandler) Unlink(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	sessionID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	documentID, ok := parseIDParam(c, "document_id")
	if !ok {
		return
	}

	if err := h.ingestService.UnlinkDocument(c.Request.Context(), userID, sessionID, documentID); err != nil {
		respondServiceError(c, err)
		return
	}
	response.OK(c, gin.H{"chat_session_id": sessionID, "document_id": documentID})
}

func (h *DocumentHandler) ListForSession(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	sessionID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	docs, err := h.ingestService.ListSessionDocuments(c.Request.Context(), userID, sessionID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.OK(c, docs)
}
