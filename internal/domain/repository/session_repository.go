// Package repository 定义数据访问层接口
package repository

import (
	"context"

	"doc-qa-api/internal/domain/entity"
)

// SessionRepository 会话仓储接口
// GetByID 未命中时返回 (nil, nil)。
type SessionRepository interface {
	// Create 创建会话
	Create(ctx context.Context, session *entity.Session) error

	// GetByID 根据 ID 获取会话
	GetByID(ctx context.Context, id string) (*entity.Session, error)

	// List 按创建时间倒序列出会话
	List(ctx context.Context, limit int) ([]*entity.Session, error)

	// AppendTurn 追加一轮问答
	AppendTurn(ctx context.Context, turn *entity.SessionTurn) error

	// ListTurns 按时间升序列出会话历史
	ListTurns(ctx context.Context, sessionID string, limit int) ([]*entity.SessionTurn, error)
}
