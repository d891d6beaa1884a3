package app

import (
	"context"
	"time"

	"ragstack/internal/ai"
	"ragstack/internal/config"
)

// AIAdapter binds the shared OpenAI-compatible client to the interfaces the
// ingest and answer pipelines expect. Model names come per call so each RAG
// instance can pin its own; base URL, key and timeouts come from config.
type AIAdapter struct {
	client      *ai.OpenAICompatibleClient
	baseURL     string
	apiKey      string
	temperature float64
	timeout     time.Duration
}

func NewAIAdapter(cfg config.LLMConfig) *AIAdapter {
	return &AIAdapter{
		client:      ai.NewOpenAICompatibleClient(),
		baseURL:     cfg.BaseURL,
		apiKey:      cfg.APIKey,
		temperature: cfg.Temperature,
		timeout:     time.Duration(cfg.TimeoutSeconds) * time.Second,
	}
}

func (a *AIAdapter) EmbedQuery(ctx context.Context, model, text string) ([]float32, error) {
	return a.client.Embed(ctx, a.embeddingConfig(model), text)
}

func (a *AIAdapter) EmbedChunks(ctx context.Context, embeddingModel string, texts []string) ([][]float32, error) {
	return a.client.EmbedBatch(ctx, a.embeddingConfig(embeddingModel), texts)
}

func (a *AIAdapter) Complete(ctx context.Context, model string, messages []ai.ChatMessage) (string, error) {
	return a.client.Complete(ctx, ai.ChatConfig{
		BaseURL:     a.baseURL,
		APIKey:      a.apiKey,
		Model:       model,
		Temperature: a.temperature,
		Timeout:     a.timeout,
	}, messages)
}

func (a *AIAdapter) embeddingConfig(model string) ai.EmbeddingConfig {
	return ai.EmbeddingConfig{
		BaseURL: a.baseURL,
		APIKey:  a.apiKey,
		Model:   model,
		Timeout: a.timeout,
	}
}
