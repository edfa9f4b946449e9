// Package handler provides HTTP handlers for the SupNum knowledge base service.
package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sidi-cnm/supnum-backend/internal/rag/biz"
	apierrors "github.com/sidi-cnm/supnum-backend/pkg/utils/errors"
)

// queryTimeout bounds a single question round trip, retrieval and
// generation included.
const queryTimeout = 60 * time.Second

// RAGHandler handles RAG HTTP requests.
type RAGHandler struct {
	service biz.Service
}

// NewRAGHandler creates a new RAGHandler.
func NewRAGHandler(service biz.Service) *RAGHandler {
	return &RAGHandler{service: service}
}

// SuccessResponse is a standard success response.
type SuccessResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ErrorResponse is a standard error response.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// writeError maps a business error to its HTTP status and localized message.
func writeError(c *gin.Context, err error) {
	e := apierrors.FromError(err)
	c.JSON(e.HTTPStatus(), ErrorResponse{
		Code:    e.Code,
		Message: e.Message(c.GetHeader("Accept-Language")),
	})
}

// AskRequest represents a question request.
type AskRequest struct {
	Question       string   `json:"question" binding:"required"`
	TopK           int      `json:"top_k"`
	ScoreThreshold *float64 `json:"score_threshold"`
	UseContext     *bool    `json:"use_context"`
}

// Ask answers a question, optionally augmented with retrieved context.
func (h *RAGHandler) Ask(c *gin.Context) {
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apierrors.ErrInvalidInput.WithCause(err))
		return
	}

	bizReq := &biz.AskRequest{
		Question:       req.Question,
		TopK:           req.TopK,
		ScoreThreshold: -1,
		UseContext:     true,
	}
	if req.ScoreThreshold != nil {
		bizReq.ScoreThreshold = *req.ScoreThreshold
	}
	if req.UseContext != nil {
		bizReq.UseContext = *req.UseContext
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), queryTimeout)
	defer cancel()

	result, err := h.service.HandleQuestion(ctx, bizReq)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			writeError(c, apierrors.ErrTimeout.WithCause(err))
			return
		}
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "success", Data: result})
}

// SearchRequest represents a retrieval-only request.
type SearchRequest struct {
	Question       string   `json:"question" binding:"required"`
	TopK           int      `json:"top_k"`
	ScoreThreshold *float64 `json:"score_threshold"`
}

// Search retrieves chunks for a question without generating an answer.
func (h *RAGHandler) Search(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apierrors.ErrInvalidInput.WithCause(err))
		return
	}

	threshold := -1.0
	if req.ScoreThreshold != nil {
		threshold = *req.ScoreThreshold
	}

	chunks, err := h.service.Retrieve(c.Request.Context(), req.Question, req.TopK, threshold)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "success", Data: gin.H{
		"chunks": chunks,
		"count":  len(chunks),
	}})
}

// CreateDocumentRequest represents a document creation request.
type CreateDocumentRequest struct {
	Title   string `json:"title" binding:"required"`
	Content string `json:"content" binding:"required"`
	Source  string `json:"source"`
	DocType string `json:"doc_type"`
}

// CreateDocument chunks, embeds, and indexes a new document.
func (h *RAGHandler) CreateDocument(c *gin.Context) {
	var req CreateDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apierrors.ErrInvalidInput.WithCause(err))
		return
	}

	doc, err := h.service.IndexDocument(c.Request.Context(), &biz.IndexRequest{
		Title:   req.Title,
		Content: req.Content,
		Source:  req.Source,
		DocType: req.DocType,
	})
	if err != nil {
		// 部分索引失败时文档已提交，随 reparation 指引一并返回。
		if apierrors.IsCode(err, apierrors.ErrPartialIndex.Code) && doc != nil {
			e := apierrors.FromError(err)
			c.JSON(e.HTTPStatus(), gin.H{
				"code":     e.Code,
				"message":  e.Message(c.GetHeader("Accept-Language")),
				"document": doc,
				"repair":   "POST /v1/documents/" + strconv.FormatInt(doc.ID, 10) + "/repair",
			})
			return
		}
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, SuccessResponse{Code: 0, Message: "Document indexed successfully", Data: doc})
}

// ListDocuments lists indexed documents with pagination.
func (h *RAGHandler) ListDocuments(c *gin.Context) {
	offset, limit := paginationParams(c)

	total, docs, err := h.service.ListDocuments(c.Request.Context(), offset, limit)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "success", Data: gin.H{
		"total": total,
		"items": docs,
	}})
}

// GetDocument returns a single document by ID.
func (h *RAGHandler) GetDocument(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	doc, err := h.service.GetDocument(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "success", Data: doc})
}

// DeleteDocument removes a document, its chunks, and its vectors.
func (h *RAGHandler) DeleteDocument(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.service.DeleteDocument(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "Document deleted successfully"})
}

// ReindexRequest represents a reindex request.
type ReindexRequest struct {
	Content string `json:"content" binding:"required"`
}

// ReindexDocument replaces a document's content and rebuilds its index.
func (h *RAGHandler) ReindexDocument(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req ReindexRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apierrors.ErrInvalidInput.WithCause(err))
		return
	}

	doc, err := h.service.ReindexDocument(c.Request.Context(), id, req.Content)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "Document reindexed successfully", Data: doc})
}

// RepairDocument retries the vector writes of a partially indexed document.
func (h *RAGHandler) RepairDocument(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.service.RepairDocument(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "Document repaired successfully"})
}

// Stats returns knowledge base statistics.
func (h *RAGHandler) Stats(c *gin.Context) {
	stats, err := h.service.GetStats(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "success", Data: stats})
}

// ListLogs lists query logs with pagination, newest first.
func (h *RAGHandler) ListLogs(c *gin.Context) {
	offset, limit := paginationParams(c)

	total, logs, err := h.service.ListQueryLogs(c.Request.Context(), offset, limit)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "success", Data: gin.H{
		"total": total,
		"items": logs,
	}})
}

// pathID parses the :id path parameter, writing a 400 response on failure.
func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(c, apierrors.ErrInvalidInput.WithMessage("invalid document id"))
		return 0, false
	}
	return id, true
}

// paginationParams parses offset/limit query parameters with sane bounds.
func paginationParams(c *gin.Context) (offset, limit int) {
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return offset, limit
}
