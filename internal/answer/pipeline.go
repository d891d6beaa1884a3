// Package answer implements the retrieval-augmented answer pipeline:
// similarity search, budgeted context assembly, prompt construction, LLM call
// with bounded retry, and a grounding check on the result.
package answer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"ragstack/internal/ai"
	"ragstack/internal/vectorstore"
)

// Canned replies used when retrieval comes up empty or the model answers
// without grounding.
const (
	NoResultsMessage = "I don't know based on the provided documents. " +
		"Try broadening the query or indexing more sources on this topic."
	UngroundedMessage = "I don't know based on the provided documents. " +
		"Consider adding more relevant material or refining the query."
)

const systemPrompt = "You are a retrieval-augmented assistant. Answer using only the numbered " +
	"context chunks provided. Cite the chunks you rely on with bracketed chunk numbers, " +
	"for example [2]. If the context does not contain the answer, say you don't know."

// Embedder turns a query into a vector using the named embedding model.
type Embedder interface {
	EmbedQuery(ctx context.Context, model, text string) ([]float32, error)
}

// Searcher runs nearest-neighbour search in a named collection.
type Searcher interface {
	Search(ctx context.Context, collection string, vector []float32, topK int) ([]vectorstore.SearchResult, error)
}

// ChatModel produces a completion for the given messages using the named model.
type ChatModel interface {
	Complete(ctx context.Context, model string, messages []ai.ChatMessage) (string, error)
}

// GroundingCheck decides whether a model answer is grounded in the supplied
// context. The default looks for a bracketed citation marker; callers may
// plug in something smarter.
type GroundingCheck func(answer string) bool

// ContainsCitationMarker is the default GroundingCheck.
func ContainsCitationMarker(answer string) bool {
	return strings.Contains(answer, "[")
}

// Config bounds the pipeline's context window and retry policy.
type Config struct {
	MaxContextChars int
	MaxAttempts     int
	BackoffBase     time.Duration
	BackoffCap      time.Duration
}

// DefaultConfig mirrors the production defaults: 8000-char context, 3
// attempts, exponential backoff capped at 10s.
func DefaultConfig() Config {
	return Config{
		MaxContextChars: 8000,
		MaxAttempts:     3,
		BackoffBase:     2 * time.Second,
		BackoffCap:      10 * time.Second,
	}
}

// Input identifies one query against one RAG instance's collection.
type Input struct {
	Query          string
	Collection     string
	EmbeddingModel string
	LLMModel       string
	TopK           int
}

// Result is the structured answer returned to the caller.
type Result struct {
	Answer    string     `json:"answer"`
	Citations []Citation `json:"citations"`
	UsedK     int        `json:"used_k"`
}

// Pipeline answers queries against a vector collection. All collaborators are
// injected so tests can run it against fakes.
type Pipeline struct {
	embedder Embedder
	searcher Searcher
	chat     ChatModel
	grounded GroundingCheck
	cfg      Config
	logger   *slog.Logger
}

func NewPipeline(embedder Embedder, searcher Searcher, chat ChatModel, grounded GroundingCheck, cfg Config, logger *slog.Logger) *Pipeline {
	if grounded == nil {
		grounded = ContainsCitationMarker
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		embedder: embedder,
		searcher: searcher,
		chat:     chat,
		grounded: grounded,
		cfg:      cfg,
		logger:   logger,
	}
}

// Answer runs the full pipeline. Zero retrieval hits is a normal outcome and
// returns the canned no-results reply without calling the model. A model
// answer that fails the grounding check is replaced by the canned reply while
// citations and used_k are surfaced unchanged.
func (p *Pipeline) Answer(ctx context.Context, in Input) (*Result, error) {
	vector, err := p.embedder.EmbedQuery(ctx, in.EmbeddingModel, in.Query)
	if err != nil {
		return nil, fmt.Errorf("embed query failed: %w", err)
	}

	results, err := p.searcher.Search(ctx, in.Collection, vector, in.TopK)
	if err != nil {
		return nil, fmt.Errorf("similarity search failed: %w", err)
	}
	if len(results) == 0 {
		return &Result{
			Answer:    NoResultsMessage,
			Citations: []Citation{},
			UsedK:     0,
		}, nil
	}

	contextBlock, citations := BuildContext(results, p.cfg.MaxContextChars)

	messages := []ai.ChatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: fmt.Sprintf("CONTEXT (numbered chunks):\n%s\n\nQUESTION:\n%s", contextBlock, in.Query)},
	}

	raw, err := p.completeWithRetry(ctx, in.LLMModel, messages)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Answer:    strings.TrimSpace(raw),
		Citations: citations,
		UsedK:     len(results),
	}
	if !p.grounded(result.Answer) {
		p.logger.Warn("ungrounded answer replaced",
			"collection", in.Collection,
			"used_k", result.UsedK)
		result.Answer = UngroundedMessage
	}
	return result, nil
}

// completeWithRetry calls the chat model with exponential backoff on
// transient failures. Permanent failures and the final attempt's error
// propagate as-is.
func (p *Pipeline) completeWithRetry(ctx context.Context, model string, messages []ai.ChatMessage) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		answer, err := p.chat.Complete(ctx, model, messages)
		if err == nil {
			return answer, nil
		}
		lastErr = err
		if !ai.IsTransient(err) || attempt == p.cfg.MaxAttempts {
			break
		}

		delay := p.cfg.BackoffBase << (attempt - 1)
		if p.cfg.BackoffCap > 0 && delay > p.cfg.BackoffCap {
			delay = p.cfg.BackoffCap
		}
		p.logger.Warn("llm call failed, retrying",
			"attempt", attempt,
			"delay", delay,
			"error", err)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
	}
	return "", fmt.Errorf("llm call failed after retries: %w", lastErr)
}
