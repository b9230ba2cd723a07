// Package entity 定义领域实体
package entity

import (
	"time"
)

// DocumentStatus 文档状态
type DocumentStatus string

const (
	DocumentStatusIngesting DocumentStatus = "ingesting"
	DocumentStatusReady     DocumentStatus = "ready"
	DocumentStatusFailed    DocumentStatus = "failed"
)

// Document 文档实体，记录一次上传及其索引状态
type Document struct {
	ID             string         `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Filename       string         `json:"filename" gorm:"type:varchar(255);not null"`
	FilePath       string         `json:"file_path,omitempty" gorm:"type:varchar(512)"`
	ContentSHA     string         `json:"content_sha" gorm:"type:varchar(64);uniqueIndex;not null"`
	EmbeddingModel string         `json:"embedding_model,omitempty" gorm:"type:varchar(128)"`
	EmbeddingDim   int            `json:"embedding_dim" gorm:"default:0"`
	ChunkCount     int            `json:"chunk_count" gorm:"default:0"`
	Status         DocumentStatus `json:"status" gorm:"type:varchar(32);not null;default:'ingesting'"`
	FailReason     string         `json:"fail_reason,omitempty" gorm:"type:text"`
	CreatedAt      time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt      time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (Document) TableName() string {
	return "documents"
}

// NewDocument 创建上传初始态的文档
func NewDocument(filename, filePath, contentSHA string) *Document {
	now := time.Now()
	return &Document{
		Filename:   filename,
		FilePath:   filePath,
		ContentSHA: contentSHA,
		Status:     DocumentStatusIngesting,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// MarkReady 索引完成，记录向量维度与分块数
func (d *Document) MarkReady(model string, dim, chunkCount int) {
	d.EmbeddingModel = model
	d.EmbeddingDim = dim
	d.ChunkCount = chunkCount
	d.Status = DocumentStatusReady
	d.FailReason = ""
	d.UpdatedAt = time.Now()
}

// MarkFailed 索引失败，记录原因
func (d *Document) MarkFailed(reason string) {
	d.Status = DocumentStatusFailed
	d.FailReason = reason
	d.UpdatedAt = time.Now()
}

// IsReady 文档是否可检索
func (d *Document) IsReady() bool {
	return d.Status == DocumentStatusReady
}

// DocumentChunk 文档分块，保存原文片段与字符区间
type DocumentChunk struct {
	ID         string    `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	DocumentID string    `json:"document_id" gorm:"type:uuid;index;not null"`
	SeqIndex   int       `json:"seq_index" gorm:"not null"`
	Text       string    `json:"text" gorm:"type:text;not null"`
	CharStart  int       `json:"char_start" gorm:"not null"`
	CharEnd    int       `json:"char_end" gorm:"not null"`
	CreatedAt  time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// TableName 指定表名
func (DocumentChunk) TableName() string {
	return "document_chunks"
}
