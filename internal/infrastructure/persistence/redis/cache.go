// Package redis 提供 Redis 缓存实现
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"doc-qa-api/internal/domain/entity"
)

var cacheTracer = otel.Tracer("redis.cache")

// DocumentCache 文档元数据缓存，键为 doc:<id>:meta。
// miss 返回 (nil, nil)，读写失败不应阻断主链路。
type DocumentCache struct {
	client *Client
	ttl    time.Duration
}

// NewDocumentCache 创建文档缓存
func NewDocumentCache(client *Client, ttl time.Duration) *DocumentCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &DocumentCache{client: client, ttl: ttl}
}

func documentKey(id string) string {
	return fmt.Sprintf("doc:%s:meta", id)
}

// GetDocument 获取缓存的文档元数据
func (c *DocumentCache) GetDocument(ctx context.Context, id string) (*entity.Document, error) {
	key := documentKey(id)
	ctx, span := cacheTracer.Start(ctx, "cache.GetDocument",
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

	var doc entity.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to decode cached document: %w", err)
	}
	span.SetAttributes(attribute.Bool("cache.hit", true))
	return &doc, nil
}

// SetDocument 写入文档元数据缓存
func (c *DocumentCache) SetDocument(ctx context.Context, doc *entity.Document) error {
	key := documentKey(doc.ID)
	ctx, span := cacheTracer.Start(ctx, "cache.SetDocument",
		trace.WithAttributes(attribute.String("cache.key", key)))
	defer span.End()

	raw, err := json.Marshal(doc)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to encode document: %w", err)
	}
	if err := c.client.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// InvalidatePattern 按模式使缓存失效
func (c *DocumentCache) InvalidatePattern(ctx context.Context, pattern string) error {
	ctx, span := cacheTracer.Start(ctx, "cache.InvalidatePattern",
		trace.WithAttributes(attribute.String("cache.pattern", pattern)))
	defer span.End()

	iter := c.client.rdb.Scan(ctx, 0, pattern, 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		span.RecordError(err)
		return err
	}

	if len(keys) > 0 {
		span.SetAttributes(attribute.Int("cache.invalidated_count", len(keys)))
		return c.client.rdb.Del(ctx, keys...).Err()
	}
	return nil
}

// InvalidateDocument 使文档相关缓存失效（元数据及派生键）
func (c *DocumentCache) InvalidateDocument(ctx context.Context, documentID string) error {
	return c.InvalidatePattern(ctx, fmt.Sprintf("doc:%s:*", documentID))
}
