// Package repository 定义数据访问层接口
package repository

import (
	"context"

	"doc-qa-api/internal/domain/entity"
)

// DocumentRepository 文档仓储接口
// GetByID / GetByContentSHA 未命中时返回 (nil, nil)。
type DocumentRepository interface {
	// Create 创建文档记录
	Create(ctx context.Context, doc *entity.Document) error

	// GetByID 根据 ID 获取文档
	GetByID(ctx context.Context, id string) (*entity.Document, error)

	// GetByContentSHA 根据内容摘要获取文档，用于幂等重建判断
	GetByContentSHA(ctx context.Context, sha string) (*entity.Document, error)

	// Update 更新文档记录
	Update(ctx context.Context, doc *entity.Document) error

	// Delete 删除文档及其分块
	Delete(ctx context.Context, id string) error

	// List 按创建时间倒序列出文档
	List(ctx context.Context, limit int) ([]*entity.Document, error)

	// ReplaceChunks 原子替换文档的全部分块
	ReplaceChunks(ctx context.Context, documentID string, chunks []*entity.DocumentChunk) error

	// ListChunks 按序号升序列出文档分块
	ListChunks(ctx context.Context, documentID string) ([]*entity.DocumentChunk, error)
}
