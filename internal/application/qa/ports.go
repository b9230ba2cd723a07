// Package qa 编排文档问答：上传抽取、索引构建、检索与回答生成。
package qa

import (
	"context"
	"time"

	"doc-qa-api/internal/application/retrieval"
	"doc-qa-api/internal/domain/entity"
)

// TextExtractor 按扩展名把上传文件转换为纯文本。
type TextExtractor interface {
	Supports(ext string) bool
	Extract(ctx context.Context, path string) (string, error)
}

// DocumentIndexer 构建与删除文档的向量索引。
type DocumentIndexer interface {
	BuildDocument(ctx context.Context, doc *entity.Document, text string) error
	RemoveDocument(ctx context.Context, documentID string) error
}

// Retriever 对单文档执行检索。
type Retriever interface {
	Retrieve(ctx context.Context, in retrieval.RetrieveInput) (*retrieval.Result, error)
}

// HistoryTurn 送入生成器的会话历史。
type HistoryTurn struct {
	Role    string
	Content string
}

// AnswerRequest 回答生成请求，Context 为拼装好的召回上下文。
type AnswerRequest struct {
	Question string
	Context  string
	History  []HistoryTurn
}

// AnswerResult 回答生成结果。
type AnswerResult struct {
	Answer    string
	Model     string
	ModelTime time.Duration
}

// Generator 基于召回上下文生成回答。
type Generator interface {
	GenerateAnswer(ctx context.Context, req *AnswerRequest) (*AnswerResult, error)
}

// 文档生命周期事件类型
const (
	EventDocumentReady   = "document.ready"
	EventDocumentFailed  = "document.failed"
	EventDocumentDeleted = "document.deleted"
)

// DocumentEvent 文档生命周期事件。
type DocumentEvent struct {
	DocumentID string
	Filename   string
	Status     string
	ChunkCount int
	FailReason string
}

// EventPublisher 发布文档生命周期事件，供下游订阅方消费。
type EventPublisher interface {
	PublishDocumentEvent(ctx context.Context, eventType string, event *DocumentEvent) error
}
