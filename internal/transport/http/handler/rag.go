package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"ragstack/internal/app"
	"ragstack/internal/chunker"
	"ragstack/internal/ingest"
	"ragstack/internal/model"
	"ragstack/internal/transport/http/middleware"
	"ragstack/internal/transport/http/response"
)

const maxUploadSize = 20 << 20 // 20 MB per file

type RAGHandler struct {
	ragService *app.RAGService
}

type CreateInstanceRequest struct {
	Name           string `json:"name" binding:"required,max=100"`
	Description    string `json:"description" binding:"max=2000"`
	Collection     string `json:"collection" binding:"max=64"`
	EmbeddingModel string `json:"embedding_model" binding:"max=64"`
	LLMModel       string `json:"llm_model" binding:"max=64"`
	ChunkSize      int    `json:"chunk_size"`
	ChunkOverlap   *int   `json:"chunk_overlap"`
	TopK           int    `json:"top_k"`
}

type AskRequest struct {
	Query string `json:"query" binding:"required"`
}

func NewRAGHandler(ragService *app.RAGService) *RAGHandler {
	return &RAGHandler{ragService: ragService}
}

func (h *RAGHandler) CreateInstance(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	var req CreateInstanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}
	inst, err := h.ragService.CreateInstance(app.CreateInstanceInput{
		UserID:         userID,
		Name:           req.Name,
		Description:    req.Description,
		Collection:     req.Collection,
		EmbeddingModel: req.EmbeddingModel,
		LLMModel:       req.LLMModel,
		ChunkSize:      req.ChunkSize,
		ChunkOverlap:   req.ChunkOverlap,
		TopK:           req.TopK,
	})
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput), errors.Is(err, chunker.ErrInvalidConfig):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		case errors.Is(err, app.ErrCollectionExists):
			response.Error(c, http.StatusConflict, response.CodeConflict, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "create instance failed")
		}
		return
	}
	response.OK(c, inst)
}

func (h *RAGHandler) ListInstances(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	instances, err := h.ragService.ListInstances(userID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list instances failed")
		return
	}
	response.OK(c, instances)
}

func (h *RAGHandler) GetInstance(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	instanceID, err := parseUintParam(c, "id")
	if err != nil || instanceID == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid instance id")
		return
	}
	inst, err := h.ragService.GetInstance(userID, instanceID)
	if err != nil {
		respondServiceError(c, err, "get instance failed")
		return
	}
	response.OK(c, inst)
}

func (h *RAGHandler) DeleteInstance(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	instanceID, err := parseUintParam(c, "id")
	if err != nil || instanceID == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid instance id")
		return
	}
	result, err := h.ragService.DeleteInstance(c.Request.Context(), userID, instanceID)
	if err != nil {
		respondServiceError(c, err, "delete instance failed")
		return
	}
	response.OK(c, result)
}

// UploadDocuments accepts a multipart form with one or more "files" parts and
// queues the instance for ingestion.
func (h *RAGHandler) UploadDocuments(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	instanceID, err := parseUintParam(c, "id")
	if err != nil || instanceID == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid instance id")
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid multipart form")
		return
	}
	fileHeaders := form.File["files"]
	if len(fileHeaders) == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "no files provided")
		return
	}

	uploads := make([]app.UploadFile, 0, len(fileHeaders))
	var opened []interface{ Close() error }
	defer func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}()
	for _, fh := range fileHeaders {
		if fh.Size > maxUploadSize {
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, fh.Filename+": file too large (max 20MB)")
			return
		}
		f, err := fh.Open()
		if err != nil {
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "failed to read "+fh.Filename)
			return
		}
		opened = append(opened, f)
		uploads = append(uploads, app.UploadFile{
			Filename: fh.Filename,
			Size:     fh.Size,
			Reader:   f,
		})
	}

	receipts, err := h.ragService.UploadDocuments(c.Request.Context(), userID, instanceID, uploads)
	if err != nil {
		switch {
		case errors.Is(err, ingest.ErrUnsupportedFileType):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		default:
			respondServiceError(c, err, "upload documents failed")
		}
		return
	}
	response.OK(c, receipts)
}

func (h *RAGHandler) ListDocuments(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	instanceID, err := parseUintParam(c, "id")
	if err != nil || instanceID == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid instance id")
		return
	}
	docs, err := h.ragService.ListDocuments(userID, instanceID)
	if err != nil {
		respondServiceError(c, err, "list documents failed")
		return
	}
	response.OK(c, docs)
}

// GetDocument returns one document row, including its processing status and
// error message if ingestion failed.
func (h *RAGHandler) GetDocument(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	documentID, err := parseUintParam(c, "id")
	if err != nil || documentID == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid document id")
		return
	}
	doc, err := h.ragService.GetDocument(userID, documentID)
	if err != nil {
		respondServiceError(c, err, "get document failed")
		return
	}
	response.OK(c, documentResponse{Document: doc, PointIDs: doc.PointIDVector()})
}

// documentResponse widens the stored row with the decoded point ID list,
// which is persisted as a JSON text column and hidden from plain
// serialisation.
type documentResponse struct {
	*model.Document
	PointIDs []string `json:"point_ids"`
}

func (h *RAGHandler) Ask(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	instanceID, err := parseUintParam(c, "id")
	if err != nil || instanceID == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid instance id")
		return
	}

	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	result, err := h.ragService.Ask(c.Request.Context(), userID, instanceID, req.Query)
	if err != nil {
		respondServiceError(c, err, "ask failed")
		return
	}
	response.OK(c, result)
}

func respondServiceError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, app.ErrInvalidInput):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case errors.Is(err, app.ErrInstanceNotFound), errors.Is(err, app.ErrDocumentNotFound):
		response.Error(c, http.StatusNotFound, response.CodeNotFound, err.Error())
	default:
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, fallback)
	}
}

func parseUintParam(c *gin.Context, key string) (uint, error) {
	s := c.Param(key)
	u, err := strconv.ParseUint(s, 10, 64)
	return uint(u), err
}

func getUserIDFromContext(c *gin.Context) (uint, bool) {
	userIDAny, exists := c.Get(middleware.ContextUserIDKey)
	if !exists {
		return 0, false
	}
	userID, ok := userIDAny.(uint)
	return userID, ok
}
