// Package cache holds short-lived Redis caches. Only derived data is cached
// here; document and instance status always come from the relational store.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"ragstack/internal/answer"
)

// AnswerCache memoises answer pipeline results per collection and query.
// Identical questions against an unchanged collection are common right after
// users share a RAG instance around.
type AnswerCache struct {
	client *redisv9.Client
	ttl    time.Duration
}

func NewAnswerCache(client *redisv9.Client, ttl time.Duration) *AnswerCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &AnswerCache{client: client, ttl: ttl}
}

func (c *AnswerCache) Get(ctx context.Context, collection, query string) (*answer.Result, bool, error) {
	raw, err := c.client.Get(ctx, c.key(collection, query)).Result()
	if err == redisv9.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get answer failed: %w", err)
	}

	var result answer.Result
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached answer failed: %w", err)
	}
	return &result, true, nil
}

func (c *AnswerCache) Set(ctx context.Context, collection, query string, result *answer.Result) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal answer cache failed: %w", err)
	}
	if err := c.client.Set(ctx, c.key(collection, query), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set answer failed: %w", err)
	}
	return nil
}

// Invalidate drops every cached answer for a collection. Called whenever the
// collection's content changes: at upload time, after an ingestion run
// finishes, and on instance deletion.
func (c *AnswerCache) Invalidate(ctx context.Context, collection string) error {
	iter := c.client.Scan(ctx, 0, fmt.Sprintf("rag:answer:%s:*", collection), 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("redis delete answer failed: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan answers failed: %w", err)
	}
	return nil
}

func (c *AnswerCache) key(collection, query string) string {
	sum := sha256.Sum256([]byte(query))
	return fmt.Sprintf("rag:answer:%s:%s", collection, hex.EncodeToString(sum[:]))
}
