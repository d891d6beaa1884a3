package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"ragstack/internal/answer"
	"ragstack/internal/chunker"
	"ragstack/internal/ingest"
	"ragstack/internal/model"
	"ragstack/internal/platform/rabbitmq"
)

var (
	ErrInstanceNotFound = errors.New("rag instance not found")
	ErrDocumentNotFound = errors.New("document not found")
	ErrCollectionExists = errors.New("collection name already in use")
)

// InstanceRepo is the slice of the metadata store the service needs for
// instances.
type InstanceRepo interface {
	Create(inst *model.RAGInstance) error
	GetByIDAndUserID(id, userID uint) (*model.RAGInstance, error)
	GetByCollection(collection string) (*model.RAGInstance, error)
	ListByUserID(userID uint) ([]model.RAGInstance, error)
	DeleteByIDAndUserID(id, userID uint) error
}

type DocumentRepo interface {
	Create(doc *model.Document) error
	GetByIDAndUserID(id, userID uint) (*model.Document, error)
	ListByInstanceID(instanceID uint) ([]model.Document, error)
	DeleteByInstanceID(instanceID uint) error
}

type FileStore interface {
	Save(instanceID uint, filename string, r io.Reader) (string, error)
	RemoveInstance(instanceID uint) error
}

// VectorAdmin drops per-instance collections during teardown.
type VectorAdmin interface {
	DeleteCollection(ctx context.Context, collection string) error
}

type Answerer interface {
	Answer(ctx context.Context, in answer.Input) (*answer.Result, error)
}

type AnswerCache interface {
	Get(ctx context.Context, collection, query string) (*answer.Result, bool, error)
	Set(ctx context.Context, collection, query string, result *answer.Result) error
	Invalidate(ctx context.Context, collection string) error
}

type JobPublisher interface {
	Publish(ctx context.Context, job rabbitmq.IngestJob) error
}

// InstanceDefaults fills unset fields on instance creation.
type InstanceDefaults struct {
	EmbeddingModel string
	LLMModel       string
	ChunkSize      int
	ChunkOverlap   int
	TopK           int
}

type RAGService struct {
	instances InstanceRepo
	documents DocumentRepo
	files     FileStore
	vectors   VectorAdmin
	answerer  Answerer
	cache     AnswerCache
	publisher JobPublisher
	defaults  InstanceDefaults
	logger    *slog.Logger
}

func NewRAGService(
	instances InstanceRepo,
	documents DocumentRepo,
	files FileStore,
	vectors VectorAdmin,
	answerer Answerer,
	cache AnswerCache,
	publisher JobPublisher,
	defaults InstanceDefaults,
	logger *slog.Logger,
) *RAGService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RAGService{
		instances: instances,
		documents: documents,
		files:     files,
		vectors:   vectors,
		answerer:  answerer,
		cache:     cache,
		publisher: publisher,
		defaults:  defaults,
		logger:    logger,
	}
}

type CreateInstanceInput struct {
	UserID         uint
	Name           string
	Description    string
	Collection     string
	EmbeddingModel string
	LLMModel       string
	ChunkSize      int
	ChunkOverlap   *int // nil means use the default; 0 is a valid overlap
	TopK           int
}

func (s *RAGService) CreateInstance(input CreateInstanceInput) (*model.RAGInstance, error) {
	if input.UserID == 0 {
		return nil, ErrInvalidInput
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, ErrInvalidInput
	}

	chunkSize := input.ChunkSize
	if chunkSize == 0 {
		chunkSize = s.defaults.ChunkSize
	}
	chunkOverlap := s.defaults.ChunkOverlap
	if input.ChunkOverlap != nil {
		chunkOverlap = *input.ChunkOverlap
	}
	topK := input.TopK
	if topK == 0 {
		topK = s.defaults.TopK
	}
	if chunkSize <= 0 || chunkOverlap < 0 || chunkOverlap >= chunkSize || topK <= 0 {
		return nil, fmt.Errorf("instance %q: %w", name, chunker.ErrInvalidConfig)
	}

	embeddingModel := strings.TrimSpace(input.EmbeddingModel)
	if embeddingModel == "" {
		embeddingModel = s.defaults.EmbeddingModel
	}
	llmModel := strings.TrimSpace(input.LLMModel)
	if llmModel == "" {
		llmModel = s.defaults.LLMModel
	}

	collection := strings.TrimSpace(input.Collection)
	if collection == "" {
		collection = "rag_" + uuid.NewString()
	} else {
		existing, err := s.instances.GetByCollection(collection)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return nil, ErrCollectionExists
		}
	}

	inst := &model.RAGInstance{
		UserID:         input.UserID,
		Name:           name,
		Description:    strings.TrimSpace(input.Description),
		Collection:     collection,
		EmbeddingModel: embeddingModel,
		LLMModel:       llmModel,
		ChunkSize:      chunkSize,
		ChunkOverlap:   chunkOverlap,
		TopK:           topK,
		IsActive:       true,
		Status:         model.StatusPending,
	}
	if err := s.instances.Create(inst); err != nil {
		return nil, err
	}
	return inst, nil
}

func (s *RAGService) ListInstances(userID uint) ([]model.RAGInstance, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	return s.instances.ListByUserID(userID)
}

func (s *RAGService) GetInstance(userID, instanceID uint) (*model.RAGInstance, error) {
	if userID == 0 || instanceID == 0 {
		return nil, ErrInvalidInput
	}
	inst, err := s.instances.GetByIDAndUserID(instanceID, userID)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, ErrInstanceNotFound
	}
	return inst, nil
}

// UploadFile is one incoming document in an upload request.
type UploadFile struct {
	Filename string
	Size     int64
	Reader   io.Reader
}

// DocumentReceipt is the acknowledgement returned per accepted file; the
// actual chunking and indexing happens asynchronously.
type DocumentReceipt struct {
	ID       uint   `json:"id"`
	Filename string `json:"name"`
	Status   string `json:"status"`
}

// UploadDocuments stores the files, records pending document rows and
// enqueues one ingest job for the instance. All files are validated before
// anything is persisted, so a bad file rejects the whole batch.
func (s *RAGService) UploadDocuments(ctx context.Context, userID, instanceID uint, files []UploadFile) ([]DocumentReceipt, error) {
	if len(files) == 0 {
		return nil, ErrInvalidInput
	}
	inst, err := s.GetInstance(userID, instanceID)
	if err != nil {
		return nil, err
	}

	for _, f := range files {
		if strings.TrimSpace(f.Filename) == "" {
			return nil, ErrInvalidInput
		}
		if !ingest.SupportedFileType(fileType(f.Filename)) {
			return nil, fmt.Errorf("%s: %w", f.Filename, ingest.ErrUnsupportedFileType)
		}
	}

	receipts := make([]DocumentReceipt, 0, len(files))
	for _, f := range files {
		path, err := s.files.Save(inst.ID, f.Filename, f.Reader)
		if err != nil {
			return nil, fmt.Errorf("store %s failed: %w", f.Filename, err)
		}
		doc := &model.Document{
			RAGInstanceID: inst.ID,
			UserID:        userID,
			Filename:      f.Filename,
			FilePath:      path,
			FileType:      fileType(f.Filename),
			FileSize:      f.Size,
			Status:        model.StatusPending,
		}
		if err := s.documents.Create(doc); err != nil {
			return nil, fmt.Errorf("record %s failed: %w", f.Filename, err)
		}
		receipts = append(receipts, DocumentReceipt{ID: doc.ID, Filename: doc.Filename, Status: doc.Status})
	}

	job := rabbitmq.IngestJob{
		RAGInstanceID: inst.ID,
		Collection:    inst.Collection,
		UserID:        userID,
	}
	if err := s.publisher.Publish(ctx, job); err != nil {
		return nil, fmt.Errorf("enqueue ingest job failed: %w", err)
	}

	// stale cached answers would miss the new content
	if err := s.cache.Invalidate(ctx, inst.Collection); err != nil {
		s.logger.Warn("invalidate answer cache failed", "collection", inst.Collection, "error", err)
	}

	return receipts, nil
}

func (s *RAGService) ListDocuments(userID, instanceID uint) ([]model.Document, error) {
	inst, err := s.GetInstance(userID, instanceID)
	if err != nil {
		return nil, err
	}
	return s.documents.ListByInstanceID(inst.ID)
}

func (s *RAGService) GetDocument(userID, documentID uint) (*model.Document, error) {
	if userID == 0 || documentID == 0 {
		return nil, ErrInvalidInput
	}
	doc, err := s.documents.GetByIDAndUserID(documentID, userID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, ErrDocumentNotFound
	}
	return doc, nil
}

// Ask answers a question against the instance's collection. Cache failures
// never fail the request.
func (s *RAGService) Ask(ctx context.Context, userID, instanceID uint, query string) (*answer.Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrInvalidInput
	}
	inst, err := s.GetInstance(userID, instanceID)
	if err != nil {
		return nil, err
	}

	if cached, ok, err := s.cache.Get(ctx, inst.Collection, query); err != nil {
		s.logger.Warn("answer cache read failed", "collection", inst.Collection, "error", err)
	} else if ok {
		return cached, nil
	}

	result, err := s.answerer.Answer(ctx, answer.Input{
		Query:          query,
		Collection:     inst.Collection,
		EmbeddingModel: inst.EmbeddingModel,
		LLMModel:       inst.LLMModel,
		TopK:           inst.TopK,
	})
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, inst.Collection, query, result); err != nil {
		s.logger.Warn("answer cache write failed", "collection", inst.Collection, "error", err)
	}
	return result, nil
}

// CleanupResult reports which parts of an instance teardown succeeded.
type CleanupResult struct {
	MetadataDeleted   bool     `json:"metadata_deleted"`
	FilesRemoved      bool     `json:"files_removed"`
	CollectionDropped bool     `json:"collection_dropped"`
	Errors            []string `json:"errors,omitempty"`
}

// DeleteInstance tears down an instance across all three stores. Each store
// is attempted regardless of earlier failures; partial failures are reported,
// not fatal.
func (s *RAGService) DeleteInstance(ctx context.Context, userID, instanceID uint) (*CleanupResult, error) {
	inst, err := s.GetInstance(userID, instanceID)
	if err != nil {
		return nil, err
	}

	result := &CleanupResult{}

	if err := s.documents.DeleteByInstanceID(inst.ID); err != nil {
		s.logger.Error("delete document rows failed", "rag_instance_id", inst.ID, "error", err)
		result.Errors = append(result.Errors, fmt.Sprintf("documents: %v", err))
	} else if err := s.instances.DeleteByIDAndUserID(inst.ID, userID); err != nil {
		s.logger.Error("delete instance row failed", "rag_instance_id", inst.ID, "error", err)
		result.Errors = append(result.Errors, fmt.Sprintf("instance: %v", err))
	} else {
		result.MetadataDeleted = true
	}

	if err := s.files.RemoveInstance(inst.ID); err != nil {
		s.logger.Error("remove uploaded files failed", "rag_instance_id", inst.ID, "error", err)
		result.Errors = append(result.Errors, fmt.Sprintf("files: %v", err))
	} else {
		result.FilesRemoved = true
	}

	if err := s.vectors.DeleteCollection(ctx, inst.Collection); err != nil {
		s.logger.Error("drop collection failed", "collection", inst.Collection, "error", err)
		result.Errors = append(result.Errors, fmt.Sprintf("collection: %v", err))
	} else {
		result.CollectionDropped = true
	}

	if err := s.cache.Invalidate(ctx, inst.Collection); err != nil {
		s.logger.Warn("invalidate answer cache failed", "collection", inst.Collection, "error", err)
	}

	return result, nil
}

func fileType(filename string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
}
