// Package milvus 提供 Milvus 向量数据库访问层实现
package milvus

import (
	"strconv"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

const (
	// CollectionDocumentChunks 文档分块集合
	CollectionDocumentChunks = "document_chunks"
)

// DocumentChunksSchema 文档分块 Collection Schema，向量维度由配置决定
func DocumentChunksSchema(dim int) *entity.Schema {
	return &entity.Schema{
		CollectionName: CollectionDocumentChunks,
		Description:    "Document chunks for semantic retrieval",
		Fields: []*entity.Field{
			{
				Name:       "id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "vector",
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": strconv.Itoa(dim),
				},
			},
			{
				Name:     "document_id",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "seq_index",
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:     "char_start",
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:     "char_end",
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:     "text_content",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "65535",
				},
			},
		},
	}
}

// DocumentChunk 文档分块数据结构
type DocumentChunk struct {
	ID          string    `json:"id"`
	Vector      []float32 `json:"vector"`
	DocumentID  string    `json:"document_id"`
	SeqIndex    int64     `json:"seq_index"`
	CharStart   int64     `json:"char_start"`
	CharEnd     int64     `json:"char_end"`
	TextContent string    `json:"text_content"`
}

// PartitionName 生成文档分区名称（Milvus 分区名不允许连字符）
func PartitionName(documentID string) string {
	return "doc_" + strings.ReplaceAll(documentID, "-", "_")
}
