// Package redis 提供 Redis 缓存实现
package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// EmbeddingCache 查询向量缓存，键为模型名 + 查询文本摘要。
// miss 返回 (nil, nil)，读写失败不应阻断检索主链路。
type EmbeddingCache struct {
	client *Client
	ttl    time.Duration
}

func NewEmbeddingCache(client *Client, ttl time.Duration) *EmbeddingCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &EmbeddingCache{client: client, ttl: ttl}
}

func embeddingKey(model, text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("emb:%s:%s", model, hex.EncodeToString(sum[:]))
}

func (c *EmbeddingCache) GetQueryEmbedding(ctx context.Context, model, text string) ([]float32, error) {
	key := embeddingKey(model, text)
	ctx, span := cacheTracer.Start(ctx, "cache.GetQueryEmbedding",
		trace.WithAttributes(attribute.String("cache.key", key)))
	defer span.End()

	raw, err := c.client.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if IsNil(err) {
			span.SetAttributes(attribute.Bool("cache.hit", false))
			return nil, nil
		}
		span.RecordError(err)
		return nil, err
	}

	var vec []float32
	if err := json.Unmarshal(raw, &vec); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to decode cached embedding: %w", err)
	}
	span.SetAttributes(attribute.Bool("cache.hit", true))
	return vec, nil
}

func (c *EmbeddingCache) SetQueryEmbedding(ctx context.Context, model, text string, vector []float32) error {
	key := embeddingKey(model, text)
	ctx, span := cacheTracer.Start(ctx, "cache.SetQueryEmbedding",
		trace.WithAttributes(attribute.String("cache.key", key)))
	defer span.End()

	raw, err := json.Marshal(vector)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to encode embedding: %w", err)
	}
	if err := c.client.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}
