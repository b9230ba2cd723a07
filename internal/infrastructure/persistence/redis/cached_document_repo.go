package redis

import (
	"context"

	"golang.org/x/sync/singleflight"

	"doc-qa-api/internal/domain/entity"
	"doc-qa-api/internal/domain/repository"
	"doc-qa-api/pkg/logger"
)

// CachedDocumentRepository 文档仓储的 cache-aside 装饰器。
// 读路径先查缓存，未命中时经 singleflight 回源数据库并回填；
// 写路径先落库再使缓存失效。缓存故障只记日志，不阻断请求。
type CachedDocumentRepository struct {
	inner repository.DocumentRepository
	cache *DocumentCache
	group singleflight.Group
}

var _ repository.DocumentRepository = (*CachedDocumentRepository)(nil)

// NewCachedDocumentRepository 创建带缓存的文档仓储
func NewCachedDocumentRepository(inner repository.DocumentRepository, cache *DocumentCache) *CachedDocumentRepository {
	return &CachedDocumentRepository{inner: inner, cache: cache}
}

func (r *CachedDocumentRepository) Create(ctx context.Context, doc *entity.Document) error {
	return r.inner.Create(ctx, doc)
}

func (r *CachedDocumentRepository) GetByID(ctx context.Context, id string) (*entity.Document, error) {
	if doc, err := r.cache.GetDocument(ctx, id); err == nil && doc != nil {
		return doc, nil
	} else if err != nil {
		logger.FromContext(ctx).Warn("读取文档缓存失败", "document_id", id, "error", err)
	}

	// 状态轮询场景下并发回源合并为一次查询
	v, err, _ := r.group.Do(id, func() (interface{}, error) {
		return r.inner.GetByID(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	doc, _ := v.(*entity.Document)
	if doc != nil {
		if serr := r.cache.SetDocument(ctx, doc); serr != nil {
			logger.FromContext(ctx).Warn("写入文档缓存失败", "document_id", id, "error", serr)
		}
	}
	return doc, nil
}

func (r *CachedDocumentRepository) GetByContentSHA(ctx context.Context, sha string) (*entity.Document, error) {
	return r.inner.GetByContentSHA(ctx, sha)
}

func (r *CachedDocumentRepository) Update(ctx context.Context, doc *entity.Document) error {
	if err := r.inner.Update(ctx, doc); err != nil {
		return err
	}
	r.invalidate(ctx, doc.ID)
	return nil
}

func (r *CachedDocumentRepository) Delete(ctx context.Context, id string) error {
	if err := r.inner.Delete(ctx, id); err != nil {
		return err
	}
	r.invalidate(ctx, id)
	return nil
}

func (r *CachedDocumentRepository) List(ctx context.Context, limit int) ([]*entity.Document, error) {
	return r.inner.List(ctx, limit)
}

func (r *CachedDocumentRepository) ReplaceChunks(ctx context.Context, documentID string, chunks []*entity.DocumentChunk) error {
	if err := r.inner.ReplaceChunks(ctx, documentID, chunks); err != nil {
		return err
	}
	r.invalidate(ctx, documentID)
	return nil
}

func (r *CachedDocumentRepository) ListChunks(ctx context.Context, documentID string) ([]*entity.DocumentChunk, error) {
	return r.inner.ListChunks(ctx, documentID)
}

func (r *CachedDocumentRepository) invalidate(ctx context.Context, documentID string) {
	if err := r.cache.InvalidateDocument(ctx, documentID); err != nil {
		logger.FromContext(ctx).Warn("文档缓存失效失败", "document_id", documentID, "error", err)
	}
}
