// Package handler 提供 HTTP 请求处理器
package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"doc-qa-api/internal/application/qa"
	"doc-qa-api/internal/interfaces/http/dto"
	pkgerrors "doc-qa-api/pkg/errors"
)

// respondError 把应用错误翻译成统一错误响应
func respondError(c *gin.Context, err error) {
	appErr := pkgerrors.AsAppError(err)
	dto.ErrorWithDetail(c, appErr.HTTPStatus, appErr.Message, &dto.ErrorDetail{
		ErrorCode: string(appErr.Code),
		Details:   appErr.Detail,
	})
}

func toDocumentResponse(info *qa.DocumentInfo) *dto.DocumentResponse {
	return &dto.DocumentResponse{
		ID:             info.ID,
		Filename:       info.Filename,
		Status:         info.Status,
		ChunkCount:     info.ChunkCount,
		EmbeddingModel: info.EmbeddingModel,
		FailReason:     info.FailReason,
		CreatedAt:      info.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      info.UpdatedAt.Format(time.RFC3339),
	}
}
