// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"doc-qa-api/internal/domain/entity"
)

type DocumentRepository struct {
	client *Client
	tx     *TxManager
}

func NewDocumentRepository(client *Client) *DocumentRepository {
	return &DocumentRepository{client: client, tx: NewTxManager(client)}
}

func (r *DocumentRepository) Create(ctx context.Context, doc *entity.Document) error {
	ctx, span := tracer.Start(ctx, "postgres.DocumentRepository.Create")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(doc).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*entity.Document, error) {
	ctx, span := tracer.Start(ctx, "postgres.DocumentRepository.GetByID")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var doc entity.Document
	if err := db.First(&doc, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return &doc, nil
}

func (r *DocumentRepository) GetByContentSHA(ctx context.Context, sha string) (*entity.Document, error) {
	ctx, span := tracer.Start(ctx, "postgres.DocumentRepository.GetByContentSHA")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var doc entity.Document
	if err := db.Order("created_at DESC").First(&doc, "content_sha = ?", sha).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get document by content sha: %w", err)
	}
	return &doc, nil
}

func (r *DocumentRepository) Update(ctx context.Context, doc *entity.Document) error {
	ctx, span := tracer.Start(ctx, "postgres.DocumentRepository.Update")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Save(doc).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to update document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "postgres.DocumentRepository.Delete")
	defer span.End()

	return r.tx.WithTransaction(ctx, func(ctx context.Context) error {
		db := getDB(ctx, r.client.db)
		if err := db.Delete(&entity.DocumentChunk{}, "document_id = ?", id).Error; err != nil {
			span.RecordError(err)
			return fmt.Errorf("failed to delete document chunks: %w", err)
		}
		if err := db.Delete(&entity.Document{}, "id = ?", id).Error; err != nil {
			span.RecordError(err)
			return fmt.Errorf("failed to delete document: %w", err)
		}
		return nil
	})
}

func (r *DocumentRepository) List(ctx context.Context, limit int) ([]*entity.Document, error) {
	ctx, span := tracer.Start(ctx, "postgres.DocumentRepository.List")
	defer span.End()

	if limit <= 0 {
		limit = 100
	}
	db := getDB(ctx, r.client.db)
	var docs []*entity.Document
	if err := db.Order("created_at DESC").Limit(limit).Find(&docs).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return docs, nil
}

func (r *DocumentRepository) ReplaceChunks(ctx context.Context, documentID string, chunks []*entity.DocumentChunk) error {
	ctx, span := tracer.Start(ctx, "postgres.DocumentRepository.ReplaceChunks")
	defer span.End()

	return r.tx.WithTransaction(ctx, func(ctx context.Context) error {
		db := getDB(ctx, r.client.db)
		if err := db.Delete(&entity.DocumentChunk{}, "document_id = ?", documentID).Error; err != nil {
			span.RecordError(err)
			return fmt.Errorf("failed to clear document chunks: %w", err)
		}
		if len(chunks) == 0 {
			return nil
		}
		if err := db.CreateInBatches(chunks, 200).Error; err != nil {
			span.RecordError(err)
			return fmt.Errorf("failed to insert document chunks: %w", err)
		}
		return nil
	})
}

func (r *DocumentRepository) ListChunks(ctx context.Context, documentID string) ([]*entity.DocumentChunk, error) {
	ctx, span := tracer.Start(ctx, "postgres.DocumentRepository.ListChunks")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var chunks []*entity.DocumentChunk
	if err := db.Where("document_id = ?", documentID).Order("seq_index ASC").Find(&chunks).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list document chunks: %w", err)
	}
	return chunks, nil
}
