package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"doc-qa-api/internal/application/qa"
	"doc-qa-api/internal/interfaces/http/dto"
)

// SessionHandler 会话处理器
type SessionHandler struct {
	svc *qa.Service
}

// NewSessionHandler 创建会话处理器
func NewSessionHandler(svc *qa.Service) *SessionHandler {
	return &SessionHandler{svc: svc}
}

// Create 创建问答会话
// @Summary 创建会话
// @Description 基于指定文档开启问答会话
// @Tags Session
// @Accept json
// @Produce json
// @Param body body dto.CreateSessionRequest true "创建会话请求"
// @Success 201 {object} dto.Response[dto.SessionResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/sessions [post]
func (h *SessionHandler) Create(c *gin.Context) {
	var req dto.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "document_id is required")
		return
	}

	session, err := h.svc.StartSession(c.Request.Context(), req.DocumentID)
	if err != nil {
		respondError(c, err)
		return
	}
	dto.Created(c, &dto.SessionResponse{
		ID:         session.ID,
		DocumentID: session.DocumentID,
		CreatedAt:  session.CreatedAt.Format(time.RFC3339),
	})
}

// List 列出会话
// @Summary 会话列表
// @Description 按创建时间倒序列出会话
// @Tags Session
// @Produce json
// @Param limit query int false "返回条数，默认 20"
// @Success 200 {object} dto.Response[dto.SessionListResponse]
// @Router /v1/sessions [get]
func (h *SessionHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	infos, err := h.svc.ListSessions(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	resp := &dto.SessionListResponse{Sessions: make([]*dto.SessionResponse, 0, len(infos))}
	for _, info := range infos {
		resp.Sessions = append(resp.Sessions, &dto.SessionResponse{
			ID:         info.ID,
			DocumentID: info.DocumentID,
			CreatedAt:  info.CreatedAt.Format(time.RFC3339),
		})
	}
	dto.Success(c, resp)
}
