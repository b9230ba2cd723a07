package qa

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"doc-qa-api/internal/application/retrieval"
	"doc-qa-api/internal/domain/entity"
	"doc-qa-api/internal/domain/repository"
	pkgerrors "doc-qa-api/pkg/errors"
	"doc-qa-api/pkg/logger"
	"doc-qa-api/pkg/metrics"
)

const (
	// debugSnippetRunes 调试信息中单个分块片段的最大 rune 数
	debugSnippetRunes = 300
	// promptMaxChunks 送入生成器的最大分块数
	promptMaxChunks = 8
	// promptChunkRunes 单个分块在上下文中的最大 rune 数
	promptChunkRunes = 1200
	// defaultHistoryLimit 默认携带的历史轮数
	defaultHistoryLimit = 10
)

var qaTracer = otel.Tracer("internal.application.qa")

// Config 服务配置。
type Config struct {
	UploadDir      string
	MaxUploadBytes int64
	EmbeddingModel string
	EmbeddingDim   int
	HistoryLimit   int
}

// Service 文档问答服务。
type Service struct {
	cfg       Config
	docs      repository.DocumentRepository
	sessions  repository.SessionRepository
	indexer   DocumentIndexer
	engine    Retriever
	extractor TextExtractor
	generator Generator
	events    EventPublisher

	buildGroup singleflight.Group
}

// SetEventPublisher 配置文档事件发布器，未配置时不发布事件。
func (s *Service) SetEventPublisher(pub EventPublisher) {
	s.events = pub
}

// emitEvent 发布文档事件，失败只记日志。
func (s *Service) emitEvent(ctx context.Context, eventType string, doc *entity.Document) {
	if s.events == nil {
		return
	}
	err := s.events.PublishDocumentEvent(ctx, eventType, &DocumentEvent{
		DocumentID: doc.ID,
		Filename:   doc.Filename,
		Status:     string(doc.Status),
		ChunkCount: doc.ChunkCount,
		FailReason: doc.FailReason,
	})
	if err != nil {
		logger.FromContext(ctx).Warn("发布文档事件失败", "event", eventType, "error", err)
	}
}

func NewService(
	cfg Config,
	docs repository.DocumentRepository,
	sessions repository.SessionRepository,
	indexer DocumentIndexer,
	engine Retriever,
	extractor TextExtractor,
	generator Generator,
) *Service {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = defaultHistoryLimit
	}
	return &Service{
		cfg:       cfg,
		docs:      docs,
		sessions:  sessions,
		indexer:   indexer,
		engine:    engine,
		extractor: extractor,
		generator: generator,
	}
}

// UploadInput 文档上传请求。
type UploadInput struct {
	Filename string
	Content  io.Reader
}

// DocumentInfo 文档对外视图。
type DocumentInfo struct {
	ID             string    `json:"id"`
	Filename       string    `json:"filename"`
	Status         string    `json:"status"`
	ChunkCount     int       `json:"chunk_count"`
	EmbeddingModel string    `json:"embedding_model,omitempty"`
	FailReason     string    `json:"fail_reason,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Upload 保存上传文件并同步构建索引。
// 同一内容（SHA 相同）且索引仍然有效时直接复用已有文档。
func (s *Service) Upload(ctx context.Context, in *UploadInput) (*DocumentInfo, error) {
	ctx, span := qaTracer.Start(ctx, "qa.Upload")
	defer span.End()

	if in == nil || strings.TrimSpace(in.Filename) == "" || in.Content == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidParam, "filename and file content are required")
	}

	ext := strings.ToLower(filepath.Ext(in.Filename))
	format := strings.TrimPrefix(ext, ".")
	if !s.extractor.Supports(ext) {
		metrics.IngestTotal.WithLabelValues(format, "rejected").Inc()
		return nil, pkgerrors.New(pkgerrors.CodeUnsupportedFormat, fmt.Sprintf("unsupported document format: %s", ext))
	}

	data, err := s.readAll(in.Content)
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(data)
	contentSHA := hex.EncodeToString(sum[:])
	span.SetAttributes(attribute.String("document.content_sha", contentSHA))

	// 查重、建档与构建整体按内容 SHA 合并，并发上传同一内容只产生一条记录
	v, err, _ := s.buildGroup.Do(contentSHA, func() (interface{}, error) {
		return s.ingest(ctx, in.Filename, ext, contentSHA, data)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return v.(*DocumentInfo), nil
}

// ingest 查重、落盘并构建索引。只能经 buildGroup 进入。
func (s *Service) ingest(ctx context.Context, filename, ext, contentSHA string, data []byte) (*DocumentInfo, error) {
	format := strings.TrimPrefix(ext, ".")

	existing, err := s.docs.GetByContentSHA(ctx, contentSHA)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeDatabaseError, "failed to look up document by content hash")
	}
	if existing != nil && s.indexStillValid(existing) {
		logger.FromContext(ctx).Info("上传内容未变化，复用已有索引",
			"document_id", existing.ID, "content_sha", contentSHA)
		return toDocumentInfo(existing), nil
	}

	path, err := s.saveFile(contentSHA+ext, data)
	if err != nil {
		return nil, err
	}

	doc := existing
	if doc == nil {
		doc = entity.NewDocument(filename, path, contentSHA)
		if err := s.docs.Create(ctx, doc); err != nil {
			return nil, pkgerrors.Wrap(err, pkgerrors.CodeDatabaseError, "failed to create document")
		}
	} else {
		// 内容相同但索引已失效（换了嵌入模型或上次构建失败），原地重建
		doc.Filename = filename
		doc.FilePath = path
		doc.Status = entity.DocumentStatusIngesting
		doc.FailReason = ""
		if err := s.docs.Update(ctx, doc); err != nil {
			return nil, pkgerrors.Wrap(err, pkgerrors.CodeDatabaseError, "failed to update document")
		}
	}

	ingestStart := time.Now()
	if err := s.buildIndex(ctx, doc, path); err != nil {
		metrics.IngestTotal.WithLabelValues(format, "error").Inc()
		s.emitEvent(ctx, EventDocumentFailed, doc)
		return nil, s.mapError(err)
	}
	metrics.IngestTotal.WithLabelValues(format, "ok").Inc()
	s.emitEvent(ctx, EventDocumentReady, doc)
	metrics.IngestDuration.WithLabelValues(format).Observe(time.Since(ingestStart).Seconds())
	metrics.IngestChunkCount.WithLabelValues(format).Observe(float64(doc.ChunkCount))

	logger.FromContext(ctx).Info("文档索引构建完成",
		"document_id", doc.ID, "chunk_count", doc.ChunkCount, "format", format)
	return toDocumentInfo(doc), nil
}

// buildIndex 抽取全文并构建索引，抽取失败时记录失败状态。
func (s *Service) buildIndex(ctx context.Context, doc *entity.Document, path string) error {
	text, err := s.extractor.Extract(ctx, path)
	if err != nil {
		doc.MarkFailed(err.Error())
		if uerr := s.docs.Update(ctx, doc); uerr != nil {
			logger.FromContext(ctx).Error("记录抽取失败状态出错", "error", uerr)
		}
		return err
	}
	return s.indexer.BuildDocument(ctx, doc, text)
}

func (s *Service) readAll(r io.Reader) ([]byte, error) {
	limit := s.cfg.MaxUploadBytes
	if limit <= 0 {
		limit = 32 << 20
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeStorageError, "failed to read upload")
	}
	if int64(len(data)) > limit {
		return nil, pkgerrors.New(pkgerrors.CodeValidationFailed,
			fmt.Sprintf("file exceeds the %d byte upload limit", limit))
	}
	if len(data) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidationFailed, "uploaded file is empty")
	}
	return data, nil
}

func (s *Service) saveFile(name string, data []byte) (string, error) {
	if err := os.MkdirAll(s.cfg.UploadDir, 0o755); err != nil {
		return "", pkgerrors.Wrap(err, pkgerrors.CodeStorageError, "failed to create upload directory")
	}
	path := filepath.Join(s.cfg.UploadDir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", pkgerrors.Wrap(err, pkgerrors.CodeStorageError, "failed to persist upload")
	}
	return path, nil
}

// indexStillValid 已有索引是否可直接复用：就绪且嵌入模型与维度未变。
func (s *Service) indexStillValid(doc *entity.Document) bool {
	return doc.IsReady() &&
		doc.EmbeddingModel == s.cfg.EmbeddingModel &&
		doc.EmbeddingDim == s.cfg.EmbeddingDim
}

// Status 查询文档构建状态。
func (s *Service) Status(ctx context.Context, documentID string) (*DocumentInfo, error) {
	doc, err := s.getDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return toDocumentInfo(doc), nil
}

// ListDocuments 按创建时间倒序列出文档。
func (s *Service) ListDocuments(ctx context.Context, limit int) ([]*DocumentInfo, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	docs, err := s.docs.List(ctx, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeDatabaseError, "failed to list documents")
	}
	infos := make([]*DocumentInfo, 0, len(docs))
	for _, d := range docs {
		infos = append(infos, toDocumentInfo(d))
	}
	return infos, nil
}

// DeleteDocument 删除文档及其索引与原始文件。
func (s *Service) DeleteDocument(ctx context.Context, documentID string) error {
	ctx, span := qaTracer.Start(ctx, "qa.DeleteDocument",
		trace.WithAttributes(attribute.String("document.id", documentID)))
	defer span.End()

	doc, err := s.getDocument(ctx, documentID)
	if err != nil {
		return err
	}

	if err := s.indexer.RemoveDocument(ctx, doc.ID); err != nil {
		span.RecordError(err)
		return s.mapError(err)
	}
	if err := s.docs.Delete(ctx, doc.ID); err != nil {
		return pkgerrors.Wrap(err, pkgerrors.CodeDatabaseError, "failed to delete document")
	}
	if doc.FilePath != "" {
		if err := os.Remove(doc.FilePath); err != nil && !os.IsNotExist(err) {
			logger.FromContext(ctx).Warn("删除原始文件失败", "path", doc.FilePath, "error", err)
		}
	}
	s.emitEvent(ctx, EventDocumentDeleted, doc)
	return nil
}

// SessionInfo 会话对外视图。
type SessionInfo struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// StartSession 基于某文档开启问答会话。
func (s *Service) StartSession(ctx context.Context, documentID string) (*SessionInfo, error) {
	doc, err := s.getDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	session := entity.NewSession(doc.ID)
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeDatabaseError, "failed to create session")
	}
	return &SessionInfo{ID: session.ID, DocumentID: session.DocumentID, CreatedAt: session.CreatedAt}, nil
}

// ListSessions 按创建时间倒序列出会话。
func (s *Service) ListSessions(ctx context.Context, limit int) ([]*SessionInfo, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	sessions, err := s.sessions.List(ctx, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeDatabaseError, "failed to list sessions")
	}
	infos := make([]*SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		infos = append(infos, &SessionInfo{ID: sess.ID, DocumentID: sess.DocumentID, CreatedAt: sess.CreatedAt})
	}
	return infos, nil
}

// QueryInput 问答请求。SessionID 与 DocumentID 至少提供一个；
// 仅给 DocumentID 时为单轮问答，不携带也不记录历史。
type QueryInput struct {
	SessionID    string
	DocumentID   string
	Question     string
	TopK         int
	IncludeDebug bool
}

// RetrievedChunk 命中的分块片段，文本截断到 300 rune。
type RetrievedChunk struct {
	SeqIndex  int     `json:"seq_index"`
	Score     float64 `json:"score"`
	CharStart int     `json:"char_start"`
	CharEnd   int     `json:"char_end"`
	Snippet   string  `json:"snippet"`
}

// QueryDebug 问答调试信息。
type QueryDebug struct {
	RetrievedCount   int              `json:"retrieved_count"`
	RetrievalTimeMs  int64            `json:"retrieval_time_ms"`
	ModelTimeMs      int64            `json:"model_time_ms"`
	CorpusChunkCount int              `json:"corpus_chunk_count"`
	CorpusSamples    []string         `json:"corpus_samples,omitempty"`
	Chunks           []RetrievedChunk `json:"chunks,omitempty"`
}

// QueryOutput 问答结果。
type QueryOutput struct {
	SessionID  string      `json:"session_id,omitempty"`
	DocumentID string      `json:"doc_id"`
	Answer     string      `json:"answer"`
	Source     string      `json:"source"`
	Model      string      `json:"model,omitempty"`
	Debug      *QueryDebug `json:"debug,omitempty"`
}

// Query 回答提问：检索召回、生成回答；会话内提问同时记录历史。
func (s *Service) Query(ctx context.Context, in *QueryInput) (*QueryOutput, error) {
	ctx, span := qaTracer.Start(ctx, "qa.Query")
	defer span.End()

	if in == nil || strings.TrimSpace(in.Question) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidParam, "question is required")
	}

	var session *entity.Session
	documentID := strings.TrimSpace(in.DocumentID)
	if strings.TrimSpace(in.SessionID) != "" {
		var err error
		session, err = s.sessions.GetByID(ctx, in.SessionID)
		if err != nil {
			return nil, pkgerrors.Wrap(err, pkgerrors.CodeDatabaseError, "failed to load session")
		}
		if session == nil {
			return nil, pkgerrors.ErrSessionNotFound
		}
		documentID = session.DocumentID
		ctx = logger.WithContext(ctx, logger.SessionIDKey, session.ID)
		span.SetAttributes(attribute.String("session.id", session.ID))
	} else if documentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidParam, "session_id or doc_id is required")
	}
	ctx = logger.WithContext(ctx, logger.DocumentIDKey, documentID)
	span.SetAttributes(attribute.String("document.id", documentID))

	doc, err := s.getDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	switch doc.Status {
	case entity.DocumentStatusReady:
	case entity.DocumentStatusIngesting:
		return nil, pkgerrors.New(pkgerrors.CodeDocumentNotReady, "document index is still building")
	default:
		return nil, pkgerrors.New(pkgerrors.CodeDocumentNotReady,
			fmt.Sprintf("document ingest failed: %s", doc.FailReason))
	}

	result, err := s.engine.Retrieve(ctx, retrieval.RetrieveInput{
		DocumentID:   doc.ID,
		Query:        in.Question,
		TopK:         in.TopK,
		IncludeDebug: in.IncludeDebug,
	})
	if err != nil {
		metrics.RetrievalTotal.WithLabelValues("none", "error").Inc()
		span.RecordError(err)
		return nil, s.mapError(err)
	}
	metrics.RetrievalTotal.WithLabelValues(string(result.Source), "ok").Inc()
	if result.Debug != nil {
		metrics.RetrievalDuration.WithLabelValues(string(result.Source)).
			Observe(float64(result.Debug.RetrievalTimeMs) / 1000)
	}

	var history []HistoryTurn
	if session != nil {
		history, err = s.loadHistory(ctx, session.ID)
		if err != nil {
			return nil, err
		}
	}

	promptCtx := retrieval.BuildPromptContext(result.Chunks, promptMaxChunks, promptChunkRunes)
	answer, err := s.generator.GenerateAnswer(ctx, &AnswerRequest{
		Question: in.Question,
		Context:  promptCtx,
		History:  history,
	})
	if err != nil {
		span.RecordError(err)
		return nil, s.mapError(err)
	}

	out := &QueryOutput{
		DocumentID: doc.ID,
		Answer:     answer.Answer,
		Source:     string(result.Source),
		Model:      answer.Model,
	}
	if session != nil {
		s.appendTurns(ctx, session.ID, in.Question, answer.Answer)
		out.SessionID = session.ID
	}
	if in.IncludeDebug {
		out.Debug = buildQueryDebug(result, answer.ModelTime)
	}
	return out, nil
}

// loadHistory 取最近的历史轮次，按时间升序送入生成器。
func (s *Service) loadHistory(ctx context.Context, sessionID string) ([]HistoryTurn, error) {
	turns, err := s.sessions.ListTurns(ctx, sessionID, s.cfg.HistoryLimit)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeDatabaseError, "failed to load session history")
	}
	history := make([]HistoryTurn, 0, len(turns))
	for _, t := range turns {
		history = append(history, HistoryTurn{Role: string(t.Role), Content: t.Content})
	}
	return history, nil
}

// appendTurns 落库本轮问答，失败只记日志不影响响应。
func (s *Service) appendTurns(ctx context.Context, sessionID, question, answer string) {
	if err := s.sessions.AppendTurn(ctx, entity.NewSessionTurn(sessionID, entity.RoleUser, question)); err != nil {
		logger.FromContext(ctx).Error("记录用户提问失败", "error", err)
		return
	}
	if err := s.sessions.AppendTurn(ctx, entity.NewSessionTurn(sessionID, entity.RoleAssistant, answer)); err != nil {
		logger.FromContext(ctx).Error("记录回答失败", "error", err)
	}
}

func (s *Service) getDocument(ctx context.Context, documentID string) (*entity.Document, error) {
	if strings.TrimSpace(documentID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidParam, "document id is required")
	}
	doc, err := s.docs.GetByID(ctx, documentID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeDatabaseError, "failed to load document")
	}
	if doc == nil {
		return nil, pkgerrors.ErrDocumentNotFound
	}
	return doc, nil
}

// mapError 把检索层哨兵错误翻译成带 HTTP 语义的应用错误。
func (s *Service) mapError(err error) error {
	var appErr *pkgerrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	switch {
	case errors.Is(err, retrieval.ErrUnknownDocument):
		return pkgerrors.ErrDocumentNotFound
	case errors.Is(err, retrieval.ErrUnsupportedFormat):
		return pkgerrors.Wrap(err, pkgerrors.CodeUnsupportedFormat, "unsupported document format")
	case errors.Is(err, retrieval.ErrStaleIndex):
		return pkgerrors.Wrap(err, pkgerrors.CodeStaleIndex, "document index is stale, re-upload to rebuild")
	case errors.Is(err, retrieval.ErrInvalidConfiguration):
		return pkgerrors.Wrap(err, pkgerrors.CodeInvalidParam, "invalid retrieval configuration")
	case errors.Is(err, retrieval.ErrDimensionMismatch):
		return pkgerrors.Wrap(err, pkgerrors.CodeEmbeddingFailed, "embedding dimension mismatch")
	case errors.Is(err, retrieval.ErrEmbeddingUnavailable):
		return pkgerrors.Wrap(err, pkgerrors.CodeEmbeddingFailed, "embedding service unavailable")
	case errors.Is(err, retrieval.ErrModelUnavailable):
		return pkgerrors.Wrap(err, pkgerrors.CodeLLMCallFailed, "LLM service unavailable")
	case errors.Is(err, retrieval.ErrTimeout):
		return pkgerrors.Wrap(err, pkgerrors.CodeGatewayTimeout, "downstream call timed out")
	case errors.Is(err, retrieval.ErrPersistence):
		return pkgerrors.Wrap(err, pkgerrors.CodeDatabaseError, "persistence failure")
	default:
		return pkgerrors.Wrap(err, pkgerrors.CodeInternalError, "internal error")
	}
}

func toDocumentInfo(doc *entity.Document) *DocumentInfo {
	return &DocumentInfo{
		ID:             doc.ID,
		Filename:       doc.Filename,
		Status:         string(doc.Status),
		ChunkCount:     doc.ChunkCount,
		EmbeddingModel: doc.EmbeddingModel,
		FailReason:     doc.FailReason,
		CreatedAt:      doc.CreatedAt,
		UpdatedAt:      doc.UpdatedAt,
	}
}

func buildQueryDebug(result *retrieval.Result, modelTime time.Duration) *QueryDebug {
	debug := &QueryDebug{ModelTimeMs: modelTime.Milliseconds()}
	if result.Debug != nil {
		debug.RetrievedCount = result.Debug.RetrievedCount
		debug.RetrievalTimeMs = result.Debug.RetrievalTimeMs
		debug.CorpusChunkCount = result.Debug.CorpusChunkCount
		debug.CorpusSamples = result.Debug.CorpusSamples
	}
	for _, c := range result.Chunks {
		snippet := c.Text
		if runes := []rune(snippet); len(runes) > debugSnippetRunes {
			snippet = string(runes[:debugSnippetRunes]) + "…"
		}
		debug.Chunks = append(debug.Chunks, RetrievedChunk{
			SeqIndex:  c.SeqIndex,
			Score:     c.Score,
			CharStart: c.CharStart,
			CharEnd:   c.CharEnd,
			Snippet:   snippet,
		})
	}
	return debug
}
