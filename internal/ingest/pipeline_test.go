package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"ragstack/internal/model"
	"ragstack/internal/vectorstore"
)

type fakeInstances struct {
	mu       sync.Mutex
	inst     *model.RAGInstance
	statuses []string
	docCount int
}

func (f *fakeInstances) GetByID(id uint) (*model.RAGInstance, error) {
	if f.inst == nil || f.inst.ID != id {
		return nil, nil
	}
	inst := *f.inst
	return &inst, nil
}

func (f *fakeInstances) UpdateStatus(_ uint, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, status)
	return nil
}

func (f *fakeInstances) SetDocumentCount(_ uint, count int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docCount = count
	return nil
}

func (f *fakeInstances) lastStatus() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.statuses) == 0 {
		return ""
	}
	return f.statuses[len(f.statuses)-1]
}

type completion struct {
	pointIDs    []string
	totalChunks int
}

type fakeDocs struct {
	mu        sync.Mutex
	pending   []model.Document
	total     int64
	statusLog map[uint][]string
	completed map[uint]completion
	failed    map[uint]string
}

func newFakeDocs(pending ...model.Document) *fakeDocs {
	return &fakeDocs{
		pending:   pending,
		total:     int64(len(pending)),
		statusLog: make(map[uint][]string),
		completed: make(map[uint]completion),
		failed:    make(map[uint]string),
	}
}

func (f *fakeDocs) ListPendingByInstance(_ uint) ([]model.Document, error) {
	return f.pending, nil
}

func (f *fakeDocs) CountByInstanceID(_ uint) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.total, nil
}

func (f *fakeDocs) MarkProcessing(id uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusLog[id] = append(f.statusLog[id], model.StatusProcessing)
	return nil
}

func (f *fakeDocs) MarkCompleted(id uint, pointIDs []string, totalChunks int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusLog[id] = append(f.statusLog[id], model.StatusCompleted)
	f.completed[id] = completion{pointIDs: pointIDs, totalChunks: totalChunks}
	return nil
}

func (f *fakeDocs) MarkFailed(id uint, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusLog[id] = append(f.statusLog[id], model.StatusFailed)
	f.failed[id] = message
	return nil
}

type fakeFiles map[string]string

func (f fakeFiles) Open(path string) (io.ReadCloser, error) {
	content, ok := f[path]
	if !ok {
		return nil, fmt.Errorf("no such payload: %s", path)
	}
	return io.NopCloser(strings.NewReader(content)), nil
}

// fakeEmbedder fails any batch containing failOn as a substring.
type fakeEmbedder struct {
	failOn string
}

func (f *fakeEmbedder) EmbedChunks(_ context.Context, _ string, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, t := range texts {
		if f.failOn != "" && strings.Contains(t, f.failOn) {
			return nil, &embedDownError{}
		}
		vectors[i] = []float32{float32(len(t)), 0.5, 0.25}
	}
	return vectors, nil
}

type embedDownError struct{}

func (*embedDownError) Error() string { return "embedding service unavailable" }

type fakeVectors struct {
	mu          sync.Mutex
	ensured     []string
	upserts     map[uint][]vectorstore.Point
	scrollEmpty bool
	scrollErr   error
}

func newFakeVectors() *fakeVectors {
	return &fakeVectors{upserts: make(map[uint][]vectorstore.Point)}
}

func (f *fakeVectors) EnsureCollection(_ context.Context, collection string, _ uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensured = append(f.ensured, collection)
	return nil
}

func (f *fakeVectors) Upsert(_ context.Context, _ string, points []vectorstore.Point) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range points {
		f.upserts[p.DocumentID] = append(f.upserts[p.DocumentID], p)
	}
	return nil
}

func (f *fakeVectors) PointIDsByDocument(_ context.Context, _ string, documentID uint) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.scrollErr != nil {
		return nil, f.scrollErr
	}
	if f.scrollEmpty {
		return nil, nil
	}
	ids := make([]string, 0, len(f.upserts[documentID]))
	for _, p := range f.upserts[documentID] {
		ids = append(ids, p.ID)
	}
	return ids, nil
}

func testInstance() *model.RAGInstance {
	return &model.RAGInstance{
		ID:             1,
		UserID:         7,
		Name:           "data structures",
		Collection:     "rag_test",
		EmbeddingModel: "text-embedding-3-large",
		LLMModel:       "gpt-4o-mini",
		ChunkSize:      50,
		ChunkOverlap:   10,
		TopK:           5,
		Status:         model.StatusPending,
	}
}

func testDoc(id uint, path string) model.Document {
	return model.Document{
		ID:            id,
		RAGInstanceID: 1,
		UserID:        7,
		Filename:      fmt.Sprintf("doc%d.txt", id),
		FilePath:      path,
		FileType:      "txt",
		Status:        model.StatusPending,
	}
}

func testPipelineConfig() Config {
	return Config{
		EmbedBatchSize:    2,
		MaxConcurrentDocs: 2,
		ReconcileAttempts: 3,
		ReconcileBackoff:  time.Millisecond,
	}
}

func Test_Run_InstanceNotFound(t *testing.T) {
	t.Parallel()
	p := NewPipeline(&fakeInstances{}, newFakeDocs(), fakeFiles{}, &fakeEmbedder{}, newFakeVectors(), nil, testPipelineConfig(), nil)
	err := p.Run(context.Background(), 99)
	if !errors.Is(err, ErrInstanceNotFound) {
		t.Fatalf("err = %v, want ErrInstanceNotFound", err)
	}
}

func Test_Run_HappyPath(t *testing.T) {
	t.Parallel()
	instances := &fakeInstances{inst: testInstance()}
	docs := newFakeDocs(testDoc(10, "a"), testDoc(11, "b"))
	files := fakeFiles{
		"a": strings.Repeat("alpha content here ", 20),
		"b": strings.Repeat("beta content here ", 20),
	}
	vectors := newFakeVectors()
	p := NewPipeline(instances, docs, files, &fakeEmbedder{}, vectors, nil, testPipelineConfig(), nil)

	if err := p.Run(context.Background(), 1); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	for _, id := range []uint{10, 11} {
		got := docs.statusLog[id]
		want := []string{model.StatusProcessing, model.StatusCompleted}
		if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
			t.Errorf("doc %d status transitions = %v, want %v", id, got, want)
		}
		c := docs.completed[id]
		if c.totalChunks == 0 || c.totalChunks != len(c.pointIDs) {
			t.Errorf("doc %d: totalChunks = %d, pointIDs = %d; must be equal and non-zero", id, c.totalChunks, len(c.pointIDs))
		}
	}
	if got := instances.lastStatus(); got != model.StatusCompleted {
		t.Errorf("instance status = %q, want completed", got)
	}
	if instances.docCount != 2 {
		t.Errorf("document count = %d, want 2", instances.docCount)
	}
}

func Test_Run_DocumentCountSpansEarlierBatches(t *testing.T) {
	t.Parallel()
	instances := &fakeInstances{inst: testInstance()}
	// 3 documents from an earlier run already completed, 2 pending now
	docs := newFakeDocs(testDoc(14, "d"), testDoc(15, "e"))
	docs.total = 5
	files := fakeFiles{
		"d": strings.Repeat("delta content here ", 20),
		"e": strings.Repeat("epsilon content here ", 20),
	}
	p := NewPipeline(instances, docs, files, &fakeEmbedder{}, newFakeVectors(), nil, testPipelineConfig(), nil)

	if err := p.Run(context.Background(), 1); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if instances.docCount != 5 {
		t.Errorf("document count = %d, want 5 (all documents, not this batch)", instances.docCount)
	}
}

func Test_Run_ChunkOrdinalsPreserved(t *testing.T) {
	t.Parallel()
	instances := &fakeInstances{inst: testInstance()}
	docs := newFakeDocs(testDoc(10, "a"))
	files := fakeFiles{"a": strings.Repeat("x", 200)}
	vectors := newFakeVectors()
	p := NewPipeline(instances, docs, files, &fakeEmbedder{}, vectors, nil, testPipelineConfig(), nil)

	if err := p.Run(context.Background(), 1); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	points := vectors.upserts[10]
	if len(points) == 0 {
		t.Fatal("no points upserted")
	}
	for i, pt := range points {
		if pt.ChunkID != i {
			t.Errorf("point %d: ChunkID = %d, want %d", i, pt.ChunkID, i)
		}
		if pt.TotalChunks != len(points) {
			t.Errorf("point %d: TotalChunks = %d, want %d", i, pt.TotalChunks, len(points))
		}
		if pt.DocumentID != 10 {
			t.Errorf("point %d: DocumentID = %d", i, pt.DocumentID)
		}
		if pt.Source != "doc10.txt" {
			t.Errorf("point %d: Source = %q", i, pt.Source)
		}
	}
}

func Test_Run_FailureIsolation(t *testing.T) {
	t.Parallel()
	instances := &fakeInstances{inst: testInstance()}
	docs := newFakeDocs(testDoc(1, "a"), testDoc(2, "b"), testDoc(3, "c"))
	files := fakeFiles{
		"a": strings.Repeat("fine one ", 30),
		"b": strings.Repeat("poison pill ", 30),
		"c": strings.Repeat("fine two ", 30),
	}
	p := NewPipeline(instances, docs, files, &fakeEmbedder{failOn: "poison"}, newFakeVectors(), nil, testPipelineConfig(), nil)

	if err := p.Run(context.Background(), 1); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	for _, id := range []uint{1, 3} {
		if _, ok := docs.completed[id]; !ok {
			t.Errorf("doc %d should be completed", id)
		}
	}
	msg, ok := docs.failed[2]
	if !ok {
		t.Fatal("doc 2 should be failed")
	}
	if msg == "" {
		t.Error("failed doc must carry a non-empty error message")
	}
	if got := instances.lastStatus(); got != model.StatusCompleted {
		t.Errorf("instance status = %q, want completed (partial failure does not fail the batch)", got)
	}
}

func Test_Run_AllDocumentsFail(t *testing.T) {
	t.Parallel()
	instances := &fakeInstances{inst: testInstance()}
	docs := newFakeDocs(testDoc(1, "a"))
	files := fakeFiles{"a": strings.Repeat("poison ", 40)}
	p := NewPipeline(instances, docs, files, &fakeEmbedder{failOn: "poison"}, newFakeVectors(), nil, testPipelineConfig(), nil)

	if err := p.Run(context.Background(), 1); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got := instances.lastStatus(); got != model.StatusFailed {
		t.Errorf("instance status = %q, want failed", got)
	}
}

func Test_Run_EmptyDocumentCompletesWithZeroChunks(t *testing.T) {
	t.Parallel()
	instances := &fakeInstances{inst: testInstance()}
	docs := newFakeDocs(testDoc(5, "empty"))
	files := fakeFiles{"empty": "   \n\n  "}
	vectors := newFakeVectors()
	p := NewPipeline(instances, docs, files, &fakeEmbedder{}, vectors, nil, testPipelineConfig(), nil)

	if err := p.Run(context.Background(), 1); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	c, ok := docs.completed[5]
	if !ok {
		t.Fatal("empty document should complete, not fail")
	}
	if c.totalChunks != 0 || len(c.pointIDs) != 0 {
		t.Errorf("empty document: totalChunks = %d, pointIDs = %d; want 0 and 0", c.totalChunks, len(c.pointIDs))
	}
	if len(vectors.upserts) != 0 {
		t.Error("nothing should be upserted for an empty document")
	}
}

func Test_Run_ReconciliationMismatch(t *testing.T) {
	t.Parallel()
	instances := &fakeInstances{inst: testInstance()}
	docs := newFakeDocs(testDoc(6, "a"))
	files := fakeFiles{"a": strings.Repeat("content ", 40)}
	vectors := newFakeVectors()
	vectors.scrollEmpty = true
	p := NewPipeline(instances, docs, files, &fakeEmbedder{}, vectors, nil, testPipelineConfig(), nil)

	if err := p.Run(context.Background(), 1); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	c, ok := docs.completed[6]
	if !ok {
		t.Fatal("document should still complete when reconciliation finds no points")
	}
	if c.totalChunks != 0 || len(c.pointIDs) != 0 {
		t.Errorf("mismatch should record zero chunks, got total=%d points=%d", c.totalChunks, len(c.pointIDs))
	}
}

func Test_Run_ReconcileQueryErrorFallsBackToLocalIDs(t *testing.T) {
	t.Parallel()
	instances := &fakeInstances{inst: testInstance()}
	docs := newFakeDocs(testDoc(7, "a"))
	files := fakeFiles{"a": strings.Repeat("content ", 40)}
	vectors := newFakeVectors()
	vectors.scrollErr = errors.New("index unavailable")
	p := NewPipeline(instances, docs, files, &fakeEmbedder{}, vectors, nil, testPipelineConfig(), nil)

	if err := p.Run(context.Background(), 1); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	c, ok := docs.completed[7]
	if !ok {
		t.Fatal("document should complete using locally generated point ids")
	}
	upserted := len(vectors.upserts[7])
	if c.totalChunks != upserted || len(c.pointIDs) != upserted {
		t.Errorf("fallback should keep %d local ids, got total=%d points=%d", upserted, c.totalChunks, len(c.pointIDs))
	}
}

func Test_Run_UnsupportedFileType(t *testing.T) {
	t.Parallel()
	instances := &fakeInstances{inst: testInstance()}
	doc := testDoc(8, "a")
	doc.FileType = "docx"
	docs := newFakeDocs(doc)
	files := fakeFiles{"a": "binary stuff"}
	p := NewPipeline(instances, docs, files, &fakeEmbedder{}, newFakeVectors(), nil, testPipelineConfig(), nil)

	if err := p.Run(context.Background(), 1); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if msg := docs.failed[8]; !strings.Contains(msg, "unsupported file type") {
		t.Errorf("failed message = %q, want unsupported file type", msg)
	}
}
