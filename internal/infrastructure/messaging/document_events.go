package messaging

import (
	"context"

	"doc-qa-api/internal/application/qa"
)

// DocumentEventPublisher 把应用层文档事件发布到事件流。
type DocumentEventPublisher struct {
	producer *Producer
}

var _ qa.EventPublisher = (*DocumentEventPublisher)(nil)

// NewDocumentEventPublisher 创建文档事件发布器
func NewDocumentEventPublisher(producer *Producer) *DocumentEventPublisher {
	return &DocumentEventPublisher{producer: producer}
}

// PublishDocumentEvent 实现 qa.EventPublisher
func (p *DocumentEventPublisher) PublishDocumentEvent(ctx context.Context, eventType string, event *qa.DocumentEvent) error {
	_, err := p.producer.PublishDocumentEvent(ctx, eventType, &DocumentEventMessage{
		DocumentID: event.DocumentID,
		Filename:   event.Filename,
		Status:     event.Status,
		ChunkCount: event.ChunkCount,
		FailReason: event.FailReason,
	})
	return err
}
