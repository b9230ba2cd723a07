package qa

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doc-qa-api/internal/application/retrieval"
	"doc-qa-api/internal/domain/entity"
	pkgerrors "doc-qa-api/pkg/errors"
)

// fakeDocRepo 内存版文档仓储。读接口返回副本，模拟数据库每次扫描出
// 独立结构体的行为。
type fakeDocRepo struct {
	mu     sync.Mutex
	docs   map[string]*entity.Document
	bySHA  map[string]*entity.Document
	nextID int
}

func newFakeDocRepo() *fakeDocRepo {
	return &fakeDocRepo{docs: map[string]*entity.Document{}, bySHA: map[string]*entity.Document{}}
}

func (r *fakeDocRepo) Create(_ context.Context, doc *entity.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	doc.ID = fmt.Sprintf("doc-%d", r.nextID)
	r.docs[doc.ID] = doc
	r.bySHA[doc.ContentSHA] = doc
	return nil
}

func (r *fakeDocRepo) GetByID(_ context.Context, id string) (*entity.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return nil, nil
	}
	cp := *doc
	return &cp, nil
}

func (r *fakeDocRepo) GetByContentSHA(_ context.Context, sha string) (*entity.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.bySHA[sha]
	if !ok {
		return nil, nil
	}
	cp := *doc
	return &cp, nil
}

func (r *fakeDocRepo) Update(_ context.Context, doc *entity.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[doc.ID] = doc
	r.bySHA[doc.ContentSHA] = doc
	return nil
}

func (r *fakeDocRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if doc, ok := r.docs[id]; ok {
		delete(r.bySHA, doc.ContentSHA)
		delete(r.docs, id)
	}
	return nil
}

func (r *fakeDocRepo) List(_ context.Context, limit int) ([]*entity.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*entity.Document, 0, len(r.docs))
	for _, d := range r.docs {
		cp := *d
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeDocRepo) ReplaceChunks(_ context.Context, documentID string, chunks []*entity.DocumentChunk) error {
	return nil
}

func (r *fakeDocRepo) ListChunks(_ context.Context, documentID string) ([]*entity.DocumentChunk, error) {
	return nil, nil
}

type fakeSessionRepo struct {
	sessions map[string]*entity.Session
	turns    map[string][]*entity.SessionTurn
	nextID   int
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: map[string]*entity.Session{}, turns: map[string][]*entity.SessionTurn{}}
}

func (r *fakeSessionRepo) Create(_ context.Context, s *entity.Session) error {
	r.nextID++
	s.ID = fmt.Sprintf("sess-%d", r.nextID)
	r.sessions[s.ID] = s
	return nil
}

func (r *fakeSessionRepo) GetByID(_ context.Context, id string) (*entity.Session, error) {
	return r.sessions[id], nil
}

func (r *fakeSessionRepo) List(_ context.Context, limit int) ([]*entity.Session, error) {
	out := make([]*entity.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeSessionRepo) AppendTurn(_ context.Context, turn *entity.SessionTurn) error {
	r.turns[turn.SessionID] = append(r.turns[turn.SessionID], turn)
	return nil
}

func (r *fakeSessionRepo) ListTurns(_ context.Context, sessionID string, limit int) ([]*entity.SessionTurn, error) {
	turns := r.turns[sessionID]
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	return turns, nil
}

type fakeIndexer struct {
	mu         sync.Mutex
	buildErr   error
	built      int
	removed    []string
	chunkCount int
}

func (f *fakeIndexer) builtCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.built
}

func (f *fakeIndexer) BuildDocument(_ context.Context, doc *entity.Document, text string) error {
	f.mu.Lock()
	f.built++
	f.mu.Unlock()
	if f.buildErr != nil {
		doc.MarkFailed(f.buildErr.Error())
		return f.buildErr
	}
	doc.MarkReady("mxbai-embed-large", 8, f.chunkCount)
	return nil
}

func (f *fakeIndexer) RemoveDocument(_ context.Context, documentID string) error {
	f.removed = append(f.removed, documentID)
	return nil
}

type fakeRetriever struct {
	result *retrieval.Result
	err    error
}

func (f *fakeRetriever) Retrieve(_ context.Context, in retrieval.RetrieveInput) (*retrieval.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeExtractor struct {
	text  string
	err   error
	delay time.Duration
}

func (f *fakeExtractor) Supports(ext string) bool {
	return ext == ".txt" || ext == ".md" || ext == ".pdf"
}

func (f *fakeExtractor) Extract(_ context.Context, path string) (string, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

type fakeGenerator struct {
	answer string
	err    error
	lastIn *AnswerRequest
}

func (f *fakeGenerator) GenerateAnswer(_ context.Context, req *AnswerRequest) (*AnswerResult, error) {
	f.lastIn = req
	if f.err != nil {
		return nil, f.err
	}
	return &AnswerResult{Answer: f.answer, Model: "qwen-plus", ModelTime: 20 * time.Millisecond}, nil
}

type fixture struct {
	svc       *Service
	docs      *fakeDocRepo
	sessions  *fakeSessionRepo
	indexer   *fakeIndexer
	retriever *fakeRetriever
	extractor *fakeExtractor
	generator *fakeGenerator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		docs:      newFakeDocRepo(),
		sessions:  newFakeSessionRepo(),
		indexer:   &fakeIndexer{chunkCount: 3},
		retriever: &fakeRetriever{result: &retrieval.Result{Source: retrieval.SourceNone}},
		extractor: &fakeExtractor{text: "Vacation days accrue monthly."},
		generator: &fakeGenerator{answer: "每月累积年假。"},
	}
	f.svc = NewService(Config{
		UploadDir:      t.TempDir(),
		MaxUploadBytes: 1 << 20,
		EmbeddingModel: "mxbai-embed-large",
		EmbeddingDim:   8,
	}, f.docs, f.sessions, f.indexer, f.retriever, f.extractor, f.generator)
	return f
}

func appErrCode(t *testing.T, err error) pkgerrors.ErrorCode {
	t.Helper()
	var appErr *pkgerrors.AppError
	require.ErrorAs(t, err, &appErr)
	return appErr.Code
}

func TestUpload_Success(t *testing.T) {
	f := newFixture(t)

	info, err := f.svc.Upload(context.Background(), &UploadInput{
		Filename: "handbook.txt",
		Content:  strings.NewReader("Vacation days accrue monthly."),
	})
	require.NoError(t, err)
	assert.Equal(t, "ready", info.Status)
	assert.Equal(t, 3, info.ChunkCount)
	assert.Equal(t, 1, f.indexer.built)
}

func TestUpload_UnsupportedFormat(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Upload(context.Background(), &UploadInput{
		Filename: "deck.pptx",
		Content:  strings.NewReader("whatever"),
	})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeUnsupportedFormat, appErrCode(t, err))
	assert.Zero(t, f.indexer.built)
}

func TestUpload_EmptyFile(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Upload(context.Background(), &UploadInput{
		Filename: "empty.txt",
		Content:  strings.NewReader(""),
	})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidationFailed, appErrCode(t, err))
}

func TestUpload_TooLarge(t *testing.T) {
	f := newFixture(t)
	f.svc.cfg.MaxUploadBytes = 10

	_, err := f.svc.Upload(context.Background(), &UploadInput{
		Filename: "big.txt",
		Content:  strings.NewReader("this is more than ten bytes"),
	})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidationFailed, appErrCode(t, err))
}

func TestUpload_ReusesIdenticalContent(t *testing.T) {
	f := newFixture(t)
	content := "Vacation days accrue monthly."

	first, err := f.svc.Upload(context.Background(), &UploadInput{
		Filename: "handbook.txt", Content: strings.NewReader(content),
	})
	require.NoError(t, err)

	second, err := f.svc.Upload(context.Background(), &UploadInput{
		Filename: "handbook-copy.txt", Content: strings.NewReader(content),
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, f.indexer.built, "identical content must not trigger a rebuild")
}

func TestUpload_ConcurrentIdenticalUploads(t *testing.T) {
	f := newFixture(t)
	// 拉长抽取耗时，让两次上传落进同一个合并窗口
	f.extractor.delay = 50 * time.Millisecond
	content := "Vacation days accrue monthly."

	var wg sync.WaitGroup
	results := make([]*DocumentInfo, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.svc.Upload(context.Background(), &UploadInput{
				Filename: fmt.Sprintf("handbook-%d.txt", i),
				Content:  strings.NewReader(content),
			})
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, results[0].ID, results[1].ID)
	assert.Equal(t, "ready", results[0].Status)
	assert.Equal(t, "ready", results[1].Status)
	assert.Equal(t, 1, f.indexer.builtCount())

	docs, err := f.docs.List(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, docs, 1, "concurrent identical uploads must not create duplicate rows")
}

func TestUpload_RebuildsWhenModelChanged(t *testing.T) {
	f := newFixture(t)
	content := "Vacation days accrue monthly."

	first, err := f.svc.Upload(context.Background(), &UploadInput{
		Filename: "handbook.txt", Content: strings.NewReader(content),
	})
	require.NoError(t, err)

	// 服务切换嵌入模型后，同内容上传需要重建索引
	f.svc.cfg.EmbeddingModel = "nomic-embed-text"
	second, err := f.svc.Upload(context.Background(), &UploadInput{
		Filename: "handbook.txt", Content: strings.NewReader(content),
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 2, f.indexer.built)
}

func TestUpload_BuildFailureSurfacesAndMarksFailed(t *testing.T) {
	f := newFixture(t)
	f.indexer.buildErr = retrieval.ErrEmbeddingUnavailable

	_, err := f.svc.Upload(context.Background(), &UploadInput{
		Filename: "handbook.txt", Content: strings.NewReader("text"),
	})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeEmbeddingFailed, appErrCode(t, err))

	docs, lerr := f.docs.List(context.Background(), 10)
	require.NoError(t, lerr)
	require.Len(t, docs, 1)
	assert.Equal(t, entity.DocumentStatusFailed, docs[0].Status)
}

func TestUpload_ExtractionFailureMarksFailed(t *testing.T) {
	f := newFixture(t)
	f.extractor.err = errors.New("corrupt file")

	_, err := f.svc.Upload(context.Background(), &UploadInput{
		Filename: "handbook.pdf", Content: strings.NewReader("%PDF-1.4"),
	})
	require.Error(t, err)

	docs, lerr := f.docs.List(context.Background(), 10)
	require.NoError(t, lerr)
	require.Len(t, docs, 1)
	assert.Equal(t, entity.DocumentStatusFailed, docs[0].Status)
	assert.Contains(t, docs[0].FailReason, "corrupt file")
}

func TestStatus_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Status(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeDocumentNotFound, appErrCode(t, err))
}

func TestStartSession(t *testing.T) {
	f := newFixture(t)
	info, err := f.svc.Upload(context.Background(), &UploadInput{
		Filename: "handbook.txt", Content: strings.NewReader("text"),
	})
	require.NoError(t, err)

	session, err := f.svc.StartSession(context.Background(), info.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, session.ID)
	assert.Equal(t, info.ID, session.DocumentID)

	_, err = f.svc.StartSession(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeDocumentNotFound, appErrCode(t, err))
}

func uploadAndStartSession(t *testing.T, f *fixture) *SessionInfo {
	t.Helper()
	info, err := f.svc.Upload(context.Background(), &UploadInput{
		Filename: "handbook.txt", Content: strings.NewReader("Vacation days accrue monthly."),
	})
	require.NoError(t, err)
	session, err := f.svc.StartSession(context.Background(), info.ID)
	require.NoError(t, err)
	return session
}

func TestQuery_Success(t *testing.T) {
	f := newFixture(t)
	session := uploadAndStartSession(t, f)
	f.retriever.result = &retrieval.Result{
		Chunks: []retrieval.ScoredChunk{
			{Chunk: retrieval.Chunk{SeqIndex: 0, Text: "Vacation days accrue monthly.", CharEnd: 29}, Score: 0.92},
		},
		Source: retrieval.SourceVector,
		Debug:  &retrieval.DebugInfo{RetrievedCount: 1, RetrievalTimeMs: 12, CorpusChunkCount: 3},
	}

	out, err := f.svc.Query(context.Background(), &QueryInput{
		SessionID:    session.ID,
		Question:     "How do vacation days accrue?",
		IncludeDebug: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "每月累积年假。", out.Answer)
	assert.Equal(t, session.ID, out.SessionID)
	assert.Equal(t, session.DocumentID, out.DocumentID)
	assert.Equal(t, "vector", out.Source)
	require.NotNil(t, out.Debug)
	assert.Equal(t, 1, out.Debug.RetrievedCount)
	assert.Equal(t, 3, out.Debug.CorpusChunkCount)
	require.Len(t, out.Debug.Chunks, 1)
	assert.Equal(t, 0.92, out.Debug.Chunks[0].Score)

	// 召回上下文进入生成器
	require.NotNil(t, f.generator.lastIn)
	assert.Contains(t, f.generator.lastIn.Context, "Vacation days accrue monthly.")

	// 问答双方都写入历史
	turns, err := f.sessions.ListTurns(context.Background(), session.ID, 10)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, entity.RoleUser, turns[0].Role)
	assert.Equal(t, entity.RoleAssistant, turns[1].Role)
}

func TestQuery_DocumentOnly(t *testing.T) {
	f := newFixture(t)
	info, err := f.svc.Upload(context.Background(), &UploadInput{
		Filename: "handbook.txt", Content: strings.NewReader("Vacation days accrue monthly."),
	})
	require.NoError(t, err)

	out, err := f.svc.Query(context.Background(), &QueryInput{
		DocumentID: info.ID,
		Question:   "How do vacation days accrue?",
	})
	require.NoError(t, err)
	assert.Equal(t, "每月累积年假。", out.Answer)
	assert.Equal(t, info.ID, out.DocumentID)
	assert.Empty(t, out.SessionID)

	// 单轮问答：不携带历史，也不落历史
	require.NotNil(t, f.generator.lastIn)
	assert.Empty(t, f.generator.lastIn.History)
	assert.Empty(t, f.sessions.turns)
}

func TestQuery_MissingSessionAndDocument(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Query(context.Background(), &QueryInput{Question: "hi"})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeInvalidParam, appErrCode(t, err))
}

func TestQuery_SessionNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Query(context.Background(), &QueryInput{SessionID: "missing", Question: "hi"})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeSessionNotFound, appErrCode(t, err))
}

func TestQuery_DocumentNotReady(t *testing.T) {
	f := newFixture(t)
	session := uploadAndStartSession(t, f)

	doc := f.docs.docs[session.DocumentID]
	doc.Status = entity.DocumentStatusIngesting

	_, err := f.svc.Query(context.Background(), &QueryInput{SessionID: session.ID, Question: "hi"})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeDocumentNotReady, appErrCode(t, err))
}

func TestQuery_StaleIndexPropagates(t *testing.T) {
	f := newFixture(t)
	session := uploadAndStartSession(t, f)
	f.retriever.err = retrieval.ErrStaleIndex

	_, err := f.svc.Query(context.Background(), &QueryInput{SessionID: session.ID, Question: "hi"})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeStaleIndex, appErrCode(t, err))
}

func TestQuery_GeneratorFailure(t *testing.T) {
	f := newFixture(t)
	session := uploadAndStartSession(t, f)
	f.generator.err = retrieval.ErrModelUnavailable

	_, err := f.svc.Query(context.Background(), &QueryInput{SessionID: session.ID, Question: "hi"})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeLLMCallFailed, appErrCode(t, err))

	// 生成失败不应留下残缺历史
	turns, lerr := f.sessions.ListTurns(context.Background(), session.ID, 10)
	require.NoError(t, lerr)
	assert.Empty(t, turns)
}

func TestQuery_HistoryPassedToGenerator(t *testing.T) {
	f := newFixture(t)
	session := uploadAndStartSession(t, f)

	_, err := f.svc.Query(context.Background(), &QueryInput{SessionID: session.ID, Question: "第一问"})
	require.NoError(t, err)
	_, err = f.svc.Query(context.Background(), &QueryInput{SessionID: session.ID, Question: "第二问"})
	require.NoError(t, err)

	require.NotNil(t, f.generator.lastIn)
	require.Len(t, f.generator.lastIn.History, 2)
	assert.Equal(t, "user", f.generator.lastIn.History[0].Role)
	assert.Equal(t, "第一问", f.generator.lastIn.History[0].Content)
	assert.Equal(t, "assistant", f.generator.lastIn.History[1].Role)
}

func TestListSessions(t *testing.T) {
	f := newFixture(t)
	first := uploadAndStartSession(t, f)
	second, err := f.svc.StartSession(context.Background(), first.DocumentID)
	require.NoError(t, err)

	infos, err := f.svc.ListSessions(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	ids := []string{infos[0].ID, infos[1].ID}
	assert.Contains(t, ids, first.ID)
	assert.Contains(t, ids, second.ID)
	for _, info := range infos {
		assert.Equal(t, first.DocumentID, info.DocumentID)
	}
}

func TestDeleteDocument(t *testing.T) {
	f := newFixture(t)
	info, err := f.svc.Upload(context.Background(), &UploadInput{
		Filename: "handbook.txt", Content: strings.NewReader("text"),
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteDocument(context.Background(), info.ID))
	assert.Equal(t, []string{info.ID}, f.indexer.removed)

	_, err = f.svc.Status(context.Background(), info.ID)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeDocumentNotFound, appErrCode(t, err))
}

func TestDeleteDocument_NotFound(t *testing.T) {
	f := newFixture(t)
	err := f.svc.DeleteDocument(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeDocumentNotFound, appErrCode(t, err))
}
