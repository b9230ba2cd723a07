// Package entity 定义领域实体
package entity

import (
	"time"
)

// Role 对话角色
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Session 问答会话，绑定单个文档
type Session struct {
	ID         string    `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	DocumentID string    `json:"document_id" gorm:"type:uuid;index;not null"`
	CreatedAt  time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt  time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (Session) TableName() string {
	return "sessions"
}

// NewSession 创建指向文档的会话
func NewSession(documentID string) *Session {
	now := time.Now()
	return &Session{
		DocumentID: documentID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// SessionTurn 会话中的一轮问答
type SessionTurn struct {
	ID        string    `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	SessionID string    `json:"session_id" gorm:"type:uuid;index;not null"`
	Role      Role      `json:"role" gorm:"type:varchar(16);not null"`
	Content   string    `json:"content" gorm:"type:text;not null"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// TableName 指定表名
func (SessionTurn) TableName() string {
	return "session_turns"
}

// NewSessionTurn 追加一轮会话记录
func NewSessionTurn(sessionID string, role Role, content string) *SessionTurn {
	return &SessionTurn{
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
}
