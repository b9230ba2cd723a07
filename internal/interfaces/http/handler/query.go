package handler

import (
	"github.com/gin-gonic/gin"

	"doc-qa-api/internal/application/qa"
	"doc-qa-api/internal/interfaces/http/dto"
)

// QueryHandler 问答处理器
type QueryHandler struct {
	svc *qa.Service
}

// NewQueryHandler 创建问答处理器
func NewQueryHandler(svc *qa.Service) *QueryHandler {
	return &QueryHandler{svc: svc}
}

// Query 文档问答
// @Summary 文档问答
// @Description 提问并生成回答；带 session_id 记录历史，仅带 doc_id 为单轮问答
// @Tags Query
// @Accept json
// @Produce json
// @Param body body dto.QueryRequest true "问答请求"
// @Success 200 {object} dto.Response[dto.QueryResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Failure 503 {object} dto.ErrorResponse
// @Router /v1/query [post]
func (h *QueryHandler) Query(c *gin.Context) {
	var req dto.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "question and one of session_id / doc_id are required")
		return
	}

	out, err := h.svc.Query(c.Request.Context(), &qa.QueryInput{
		SessionID:    req.SessionID,
		DocumentID:   req.DocID,
		Question:     req.Question,
		TopK:         req.TopK,
		IncludeDebug: req.IncludeDebug,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	resp := &dto.QueryResponse{
		SessionID: out.SessionID,
		DocID:     out.DocumentID,
		Answer:    out.Answer,
		Source:    out.Source,
		Model:     out.Model,
	}
	if out.Debug != nil {
		debug := &dto.QueryDebug{
			RetrievedCount:   out.Debug.RetrievedCount,
			RetrievalTimeMs:  out.Debug.RetrievalTimeMs,
			ModelTimeMs:      out.Debug.ModelTimeMs,
			CorpusChunkCount: out.Debug.CorpusChunkCount,
			CorpusSamples:    out.Debug.CorpusSamples,
		}
		for _, ch := range out.Debug.Chunks {
			debug.Chunks = append(debug.Chunks, dto.RetrievedChunk{
				SeqIndex:  ch.SeqIndex,
				Score:     ch.Score,
				CharStart: ch.CharStart,
				CharEnd:   ch.CharEnd,
				Snippet:   ch.Snippet,
			})
		}
		resp.Debug = debug
	}
	dto.Success(c, resp)
}
