// Package vectorstore wraps the Qdrant gRPC client with the operations the
// ingestion and answer pipelines need: create-on-first-use collections,
// point upsert, metadata-filtered scroll, nearest-neighbour search and
// collection deletion.
package vectorstore

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
)

// Payload field names for chunk points. Search and reconciliation filter on
// payloadDocumentID, so its name is part of the collection contract.
const (
	payloadContent     = "content"
	payloadSource      = "source"
	payloadDocumentID  = "document_id"
	payloadChunkID     = "chunk_id"
	payloadTotalChunks = "total_chunks"
)

// scrollPageLimit bounds a reconciliation scroll. A single document never
// produces this many chunks under sane chunk sizes.
const scrollPageLimit = 10000

// Config holds connection parameters for a Qdrant instance.
type Config struct {
	Host   string
	Port   int
	APIKey string
	UseTLS bool
}

// Point is one chunk vector plus its metadata, ready for upsert.
type Point struct {
	ID          string // UUID
	Vector      []float32
	DocumentID  uint
	ChunkID     int
	TotalChunks int
	Source      string
	Content     string
}

// SearchResult is one nearest-neighbour hit with its payload decoded.
type SearchResult struct {
	ID          string
	Score       float32
	Content     string
	DocumentID  uint
	ChunkID     int
	TotalChunks int
	Source      string
}

// Client wraps a Qdrant connection. Safe for concurrent use.
type Client struct {
	client *qdrant.Client
}

func New(cfg Config) (*Client, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("create qdrant client failed: %w", err)
	}
	return &Client{client: client}, nil
}

// HealthCheck verifies the Qdrant server is reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	if _, err := c.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant health check failed: %w", err)
	}
	return nil
}

// EnsureCollection creates collection with the given vector dimensionality if
// it does not exist yet. Idempotent, so concurrent callers race safely.
func (c *Client) EnsureCollection(ctx context.Context, collection string, vectorSize uint64) error {
	exists, err := c.client.CollectionExists(ctx, collection)
	if err != nil {
		return fmt.Errorf("check collection %q failed: %w", collection, err)
	}
	if exists {
		return nil
	}
	err = c.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     vectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("create collection %q failed: %w", collection, err)
	}
	return nil
}

// Upsert writes chunk points into collection.
func (c *Client) Upsert(ctx context.Context, collection string, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	qpoints := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		qpoints = append(qpoints, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(p.ID),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: qdrant.NewValueMap(map[string]any{
				payloadContent:     p.Content,
				payloadSource:      p.Source,
				payloadDocumentID:  int64(p.DocumentID),
				payloadChunkID:     int64(p.ChunkID),
				payloadTotalChunks: int64(p.TotalChunks),
			}),
		})
	}
	_, err := c.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         qpoints,
	})
	if err != nil {
		return fmt.Errorf("upsert %d points into %q failed: %w", len(points), collection, err)
	}
	return nil
}

// PointIDsByDocument scrolls collection filtered by document ID and returns
// the point IDs actually present in the index. This is the authoritative set
// used to reconcile document bookkeeping after an upsert.
func (c *Client) PointIDsByDocument(ctx context.Context, collection string, documentID uint) ([]string, error) {
	points, err := c.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: collection,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatchInt(payloadDocumentID, int64(documentID)),
			},
		},
		Limit:       qdrant.PtrOf(uint32(scrollPageLimit)),
		WithPayload: qdrant.NewWithPayload(false),
	})
	if err != nil {
		return nil, fmt.Errorf("scroll points for document %d failed: %w", documentID, err)
	}
	ids := make([]string, 0, len(points))
	for _, p := range points {
		ids = append(ids, p.Id.GetUuid())
	}
	return ids, nil
}

// Search runs a cosine nearest-neighbour query and returns the top-k hits,
// most relevant first.
func (c *Client) Search(ctx context.Context, collection string, vector []float32, topK int) ([]SearchResult, error) {
	limit := uint64(topK)
	scored, err := c.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("search in %q failed: %w", collection, err)
	}

	results := make([]SearchResult, 0, len(scored))
	for _, s := range scored {
		r := SearchResult{
			ID:    s.Id.GetUuid(),
			Score: s.Score,
		}
		if p := s.Payload; p != nil {
			if v, ok := p[payloadContent]; ok {
				r.Content = v.GetStringValue()
			}
			if v, ok := p[payloadSource]; ok {
				r.Source = v.GetStringValue()
			}
			if v, ok := p[payloadDocumentID]; ok {
				r.DocumentID = uint(v.GetIntegerValue())
			}
			if v, ok := p[payloadChunkID]; ok {
				r.ChunkID = int(v.GetIntegerValue())
			}
			if v, ok := p[payloadTotalChunks]; ok {
				r.TotalChunks = int(v.GetIntegerValue())
			}
		}
		results = append(results, r)
	}
	return results, nil
}

// DeleteCollection removes the whole collection. Missing collections are not
// an error on the Qdrant side.
func (c *Client) DeleteCollection(ctx context.Context, collection string) error {
	if err := c.client.DeleteCollection(ctx, collection); err != nil {
		return fmt.Errorf("delete collection %q failed: %w", collection, err)
	}
	return nil
}

// Close releases the underlying gRPC connection.
func (c *Client) Close() error {
	return c.client.Close()
}
