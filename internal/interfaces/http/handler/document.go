package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"doc-qa-api/internal/application/qa"
	"doc-qa-api/internal/interfaces/http/dto"
)

// DocumentHandler 文档管理处理器
type DocumentHandler struct {
	svc *qa.Service
}

// NewDocumentHandler 创建文档处理器
func NewDocumentHandler(svc *qa.Service) *DocumentHandler {
	return &DocumentHandler{svc: svc}
}

// Upload 上传文档并构建索引
// @Summary 上传文档
// @Description 上传 txt/md/pdf 文档，同步抽取全文并构建检索索引
// @Tags Document
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "文档文件"
// @Success 200 {object} dto.Response[dto.DocumentResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 503 {object} dto.ErrorResponse
// @Router /v1/documents [post]
func (h *DocumentHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		dto.BadRequest(c, "file field is required")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		dto.BadRequest(c, "failed to open uploaded file")
		return
	}
	defer file.Close()

	info, err := h.svc.Upload(c.Request.Context(), &qa.UploadInput{
		Filename: fileHeader.Filename,
		Content:  file,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	dto.Success(c, toDocumentResponse(info))
}

// Status 查询文档状态
// @Summary 文档状态
// @Description 查询文档索引构建状态与分块数
// @Tags Document
// @Produce json
// @Param id path string true "文档 ID"
// @Success 200 {object} dto.Response[dto.DocumentResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/documents/{id}/status [get]
func (h *DocumentHandler) Status(c *gin.Context) {
	info, err := h.svc.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	dto.Success(c, toDocumentResponse(info))
}

// List 列出文档
// @Summary 文档列表
// @Description 按创建时间倒序列出文档
// @Tags Document
// @Produce json
// @Param limit query int false "返回条数，默认 20"
// @Success 200 {object} dto.Response[dto.DocumentListResponse]
// @Router /v1/documents [get]
func (h *DocumentHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	infos, err := h.svc.ListDocuments(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	resp := &dto.DocumentListResponse{Documents: make([]*dto.DocumentResponse, 0, len(infos))}
	for _, info := range infos {
		resp.Documents = append(resp.Documents, toDocumentResponse(info))
	}
	dto.Success(c, resp)
}

// Delete 删除文档
// @Summary 删除文档
// @Description 删除文档及其向量索引与原始文件
// @Tags Document
// @Produce json
// @Param id path string true "文档 ID"
// @Success 204
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/documents/{id} [delete]
func (h *DocumentHandler) Delete(c *gin.Context) {
	if err := h.svc.DeleteDocument(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	dto.NoContent(c)
}
