// Package ingest implements the asynchronous document-ingestion pipeline:
// chunking, embedding, vector-store upsert, point-ID reconciliation and
// status bookkeeping. One Run processes every pending document of a RAG
// instance; documents are independent and fail in isolation.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"ragstack/internal/chunker"
	"ragstack/internal/model"
	"ragstack/internal/vectorstore"
)

// ErrInstanceNotFound is returned when the referenced RAG instance does not exist.
var ErrInstanceNotFound = errors.New("rag instance not found")

// InstanceStore reads and updates RAG instance rows. The relational store is
// the single source of truth for status; the pipeline never caches it.
type InstanceStore interface {
	GetByID(id uint) (*model.RAGInstance, error) // nil, nil when absent
	UpdateStatus(id uint, status string) error
	SetDocumentCount(id uint, count int) error
}

// DocumentStore drives per-document status transitions.
type DocumentStore interface {
	ListPendingByInstance(instanceID uint) ([]model.Document, error)
	CountByInstanceID(instanceID uint) (int64, error)
	MarkProcessing(id uint) error
	MarkCompleted(id uint, pointIDs []string, totalChunks int) error
	MarkFailed(id uint, message string) error
}

// FileSource opens stored document payloads.
type FileSource interface {
	Open(path string) (io.ReadCloser, error)
}

// Embedder embeds a batch of chunk texts with the named model. The returned
// slice is parallel to texts.
type Embedder interface {
	EmbedChunks(ctx context.Context, embeddingModel string, texts []string) ([][]float32, error)
}

// VectorStore is the slice of the vector index the pipeline uses.
type VectorStore interface {
	EnsureCollection(ctx context.Context, collection string, vectorSize uint64) error
	Upsert(ctx context.Context, collection string, points []vectorstore.Point) error
	PointIDsByDocument(ctx context.Context, collection string, documentID uint) ([]string, error)
}

// Config bounds batching, fan-out and the reconciliation retry policy.
type Config struct {
	// EmbedBatchSize caps texts per embedding request (provider limits).
	EmbedBatchSize int

	// MaxConcurrentDocs bounds how many documents are processed in parallel.
	MaxConcurrentDocs int

	// ReconcileAttempts and ReconcileBackoff control the filtered re-query
	// that recovers point IDs after upsert. The index is eventually
	// consistent, so a brief staleness window is expected.
	ReconcileAttempts int
	ReconcileBackoff  time.Duration
}

func DefaultConfig() Config {
	return Config{
		EmbedBatchSize:    10,
		MaxConcurrentDocs: 4,
		ReconcileAttempts: 3,
		ReconcileBackoff:  300 * time.Millisecond,
	}
}

// Pipeline runs ingestion for one RAG instance at a time. All collaborators
// are injected; the limiter throttles embedding requests across documents.
type Pipeline struct {
	instances InstanceStore
	documents DocumentStore
	files     FileSource
	embedder  Embedder
	store     VectorStore
	limiter   *rate.Limiter
	cfg       Config
	logger    *slog.Logger
}

func NewPipeline(
	instances InstanceStore,
	documents DocumentStore,
	files FileSource,
	embedder Embedder,
	store VectorStore,
	limiter *rate.Limiter,
	cfg Config,
	logger *slog.Logger,
) *Pipeline {
	if cfg.EmbedBatchSize < 1 {
		cfg.EmbedBatchSize = 10
	}
	if cfg.MaxConcurrentDocs < 1 {
		cfg.MaxConcurrentDocs = 1
	}
	if cfg.ReconcileAttempts < 1 {
		cfg.ReconcileAttempts = 1
	}
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		instances: instances,
		documents: documents,
		files:     files,
		embedder:  embedder,
		store:     store,
		limiter:   limiter,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run processes every pending document of the instance. A failing document is
// marked failed with its error message and does not abort the batch. The
// instance ends completed when at least one document completed, failed
// otherwise. Errors unrelated to individual documents (missing instance,
// listing failure) are returned to the caller.
func (p *Pipeline) Run(ctx context.Context, instanceID uint) error {
	inst, err := p.instances.GetByID(instanceID)
	if err != nil {
		return fmt.Errorf("load rag instance %d failed: %w", instanceID, err)
	}
	if inst == nil {
		return fmt.Errorf("%w: id %d", ErrInstanceNotFound, instanceID)
	}

	docs, err := p.documents.ListPendingByInstance(inst.ID)
	if err != nil {
		return fmt.Errorf("list pending documents failed: %w", err)
	}
	if len(docs) == 0 {
		p.logger.Info("no pending documents", "rag_instance_id", inst.ID)
		return nil
	}

	if err := p.instances.UpdateStatus(inst.ID, model.StatusProcessing); err != nil {
		return fmt.Errorf("mark instance processing failed: %w", err)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		completed int
	)
	sem := make(chan struct{}, p.cfg.MaxConcurrentDocs)
	for i := range docs {
		doc := docs[i]
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			if err := p.processDocument(ctx, inst, doc); err != nil {
				p.logger.Error("document ingestion failed",
					"rag_instance_id", inst.ID,
					"document_id", doc.ID,
					"filename", doc.Filename,
					"error", err)
				if markErr := p.documents.MarkFailed(doc.ID, err.Error()); markErr != nil {
					p.logger.Error("mark document failed errored", "document_id", doc.ID, "error", markErr)
				}
				return
			}
			mu.Lock()
			completed++
			mu.Unlock()
		}()
	}
	wg.Wait()

	status := model.StatusCompleted
	if completed == 0 {
		status = model.StatusFailed
	}
	if err := p.instances.UpdateStatus(inst.ID, status); err != nil {
		return fmt.Errorf("update instance status failed: %w", err)
	}
	// document_count covers the whole instance, not just this run's batch
	if total, err := p.documents.CountByInstanceID(inst.ID); err != nil {
		p.logger.Warn("count documents failed", "rag_instance_id", inst.ID, "error", err)
	} else if err := p.instances.SetDocumentCount(inst.ID, int(total)); err != nil {
		p.logger.Warn("update document count failed", "rag_instance_id", inst.ID, "error", err)
	}

	p.logger.Info("ingestion run finished",
		"rag_instance_id", inst.ID,
		"documents", len(docs),
		"completed", completed,
		"failed", len(docs)-completed)
	return nil
}

// processDocument takes one document from pending to completed: extract,
// chunk, embed, upsert, reconcile. Any error leaves the document for the
// caller to mark failed.
func (p *Pipeline) processDocument(ctx context.Context, inst *model.RAGInstance, doc model.Document) error {
	if err := p.documents.MarkProcessing(doc.ID); err != nil {
		return fmt.Errorf("mark processing failed: %w", err)
	}

	rc, err := p.files.Open(doc.FilePath)
	if err != nil {
		return fmt.Errorf("open payload failed: %w", err)
	}
	text, err := ExtractText(rc, doc.FileType)
	rc.Close()
	if err != nil {
		return err
	}

	chunks, err := chunker.Split(text, doc.Filename, inst.ChunkSize, inst.ChunkOverlap)
	if err != nil {
		return fmt.Errorf("chunking failed: %w", err)
	}
	if len(chunks) == 0 {
		// nothing to index is a valid outcome, not a failure
		p.logger.Info("document has no extractable text", "document_id", doc.ID, "filename", doc.Filename)
		return p.documents.MarkCompleted(doc.ID, nil, 0)
	}

	vectors, err := p.embedChunks(ctx, inst.EmbeddingModel, chunks)
	if err != nil {
		return fmt.Errorf("embedding failed: %w", err)
	}

	if err := p.store.EnsureCollection(ctx, inst.Collection, uint64(len(vectors[0]))); err != nil {
		return fmt.Errorf("ensure collection failed: %w", err)
	}

	points := make([]vectorstore.Point, len(chunks))
	for i, c := range chunks {
		points[i] = vectorstore.Point{
			ID:          uuid.NewString(),
			Vector:      vectors[i],
			DocumentID:  doc.ID,
			ChunkID:     c.Index,
			TotalChunks: c.Total,
			Source:      c.Source,
			Content:     c.Text,
		}
	}
	if err := p.store.Upsert(ctx, inst.Collection, points); err != nil {
		return fmt.Errorf("vector upsert failed: %w", err)
	}

	pointIDs := p.reconcile(ctx, inst.Collection, doc.ID, points)
	return p.documents.MarkCompleted(doc.ID, pointIDs, len(pointIDs))
}

// embedChunks embeds chunk texts in order, batched and rate limited.
func (p *Pipeline) embedChunks(ctx context.Context, embeddingModel string, chunks []chunker.Chunk) ([][]float32, error) {
	vectors := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += p.cfg.EmbedBatchSize {
		end := start + p.cfg.EmbedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Text)
		}

		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		batch, err := p.embedder.EmbedChunks(ctx, embeddingModel, texts)
		if err != nil {
			return nil, err
		}
		if len(batch) != len(texts) {
			return nil, fmt.Errorf("embedding count mismatch: sent %d, got %d", len(texts), len(batch))
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

// reconcile re-queries the index filtered by document ID to recover the
// authoritative set of inserted point IDs, retrying through the index's
// staleness window. Finding zero points after exhausting retries is logged
// for operator attention and yields an empty set; a persistently failing
// query falls back to the locally generated IDs, since the upsert itself
// succeeded.
func (p *Pipeline) reconcile(ctx context.Context, collection string, documentID uint, upserted []vectorstore.Point) []string {
	delay := p.cfg.ReconcileBackoff
	var lastErr error
	for attempt := 1; attempt <= p.cfg.ReconcileAttempts; attempt++ {
		ids, err := p.store.PointIDsByDocument(ctx, collection, documentID)
		if err == nil && len(ids) > 0 {
			return ids
		}
		lastErr = err
		if attempt < p.cfg.ReconcileAttempts && delay > 0 {
			select {
			case <-ctx.Done():
				attempt = p.cfg.ReconcileAttempts
			case <-time.After(delay):
				delay *= 2
			}
		}
	}

	if lastErr != nil {
		p.logger.Warn("point reconciliation query failing, using locally generated ids",
			"collection", collection,
			"document_id", documentID,
			"error", lastErr)
		ids := make([]string, len(upserted))
		for i, pt := range upserted {
			ids[i] = pt.ID
		}
		return ids
	}

	p.logger.Warn("no points found for document after upsert",
		"collection", collection,
		"document_id", documentID,
		"chunks_upserted", len(upserted))
	return nil
}
