package dto

// CreateSessionRequest 创建会话请求
type CreateSessionRequest struct {
	DocumentID string `json:"document_id" binding:"required"`
}

// SessionResponse 会话响应
type SessionResponse struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`
	CreatedAt  string `json:"created_at"`
}

// SessionListResponse 会话列表响应
type SessionListResponse struct {
	Sessions []*SessionResponse `json:"sessions"`
}
