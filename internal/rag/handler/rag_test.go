package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidi-cnm/supnum-backend/internal/model"
	"github.com/sidi-cnm/supnum-backend/internal/rag/biz"
	"github.com/sidi-cnm/supnum-backend/internal/rag/handler"
	"github.com/sidi-cnm/supnum-backend/internal/rag/router"
	apierrors "github.com/sidi-cnm/supnum-backend/pkg/utils/errors"
)

// APIResponse 标准 API 响应结构
type APIResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// fakeService 实现 biz.Service，按字段脚本化各操作的返回值。
type fakeService struct {
	askResult *biz.AskResult
	askErr    error
	lastAsk   *biz.AskRequest

	doc       *model.Document
	indexErr  error
	deleteErr error

	chunks      []*model.ScoredChunk
	retrieveErr error

	stats map[string]any
}

func (f *fakeService) HandleQuestion(_ context.Context, req *biz.AskRequest) (*biz.AskResult, error) {
	f.lastAsk = req
	return f.askResult, f.askErr
}

func (f *fakeService) IndexDocument(_ context.Context, _ *biz.IndexRequest) (*model.Document, error) {
	return f.doc, f.indexErr
}

func (f *fakeService) DeleteDocument(_ context.Context, _ int64) error {
	return f.deleteErr
}

func (f *fakeService) ReindexDocument(_ context.Context, _ int64, _ string) (*model.Document, error) {
	return f.doc, f.indexErr
}

func (f *fakeService) RepairDocument(_ context.Context, _ int64) error {
	return f.indexErr
}

func (f *fakeService) GetDocument(_ context.Context, _ int64) (*model.Document, error) {
	if f.doc == nil {
		return nil, apierrors.ErrDocumentNotFound
	}
	return f.doc, nil
}

func (f *fakeService) ListDocuments(_ context.Context, _, _ int) (int64, []*model.Document, error) {
	if f.doc == nil {
		return 0, nil, nil
	}
	return 1, []*model.Document{f.doc}, nil
}

func (f *fakeService) ListQueryLogs(_ context.Context, _, _ int) (int64, []*model.QueryLog, error) {
	return 0, nil, nil
}

func (f *fakeService) Retrieve(_ context.Context, _ string, _ int, _ float64) ([]*model.ScoredChunk, error) {
	return f.chunks, f.retrieveErr
}

func (f *fakeService) GetStats(_ context.Context) (map[string]any, error) {
	return f.stats, nil
}

var _ biz.Service = (*fakeService)(nil)

func newTestRouter(svc biz.Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	router.Register(engine, handler.NewRAGHandler(svc))
	return engine
}

func doJSON(t *testing.T, engine *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

// TestAsk_Validation 测试问答请求的验证逻辑
func TestAsk_Validation(t *testing.T) {
	engine := newTestRouter(&fakeService{})

	tests := []struct {
		name       string
		body       map[string]any
		wantStatus int
	}{
		{
			name:       "无效请求 - 缺少问题",
			body:       map[string]any{"top_k": 3},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "无效请求 - 空请求体",
			body:       nil,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, engine, http.MethodPost, "/v1/ask", tt.body)
			assert.Equal(t, tt.wantStatus, w.Code)

			var resp APIResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, apierrors.ErrInvalidInput.Code, resp.Code)
		})
	}
}

// TestAsk_Defaults 测试问答请求的默认参数传递
func TestAsk_Defaults(t *testing.T) {
	svc := &fakeService{
		askResult: &biz.AskResult{Answer: "SupNum se trouve à Nouakchott."},
	}
	engine := newTestRouter(svc)

	w := doJSON(t, engine, http.MethodPost, "/v1/ask", map[string]any{
		"question": "Où se trouve SupNum ?",
	})
	assert.Equal(t, http.StatusOK, w.Code)

	require.NotNil(t, svc.lastAsk)
	assert.True(t, svc.lastAsk.UseContext, "上下文检索默认开启")
	assert.Equal(t, 0, svc.lastAsk.TopK, "未指定 top_k 时交由服务层取默认值")
	assert.Equal(t, -1.0, svc.lastAsk.ScoreThreshold, "未指定阈值时交由服务层取默认值")

	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Code)
}

// TestAsk_UseContextFalse 测试关闭检索增强的透传
func TestAsk_UseContextFalse(t *testing.T) {
	svc := &fakeService{askResult: &biz.AskResult{Answer: "réponse directe"}}
	engine := newTestRouter(svc)

	w := doJSON(t, engine, http.MethodPost, "/v1/ask", map[string]any{
		"question":    "Bonjour",
		"use_context": false,
	})
	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, svc.lastAsk)
	assert.False(t, svc.lastAsk.UseContext)
}

// TestAsk_GenerationFailed 测试生成失败的错误映射
func TestAsk_GenerationFailed(t *testing.T) {
	svc := &fakeService{askErr: apierrors.ErrGenerationFailed}
	engine := newTestRouter(svc)

	w := doJSON(t, engine, http.MethodPost, "/v1/ask", map[string]any{
		"question": "Question difficile",
	})
	assert.Equal(t, http.StatusBadGateway, w.Code)

	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, apierrors.ErrGenerationFailed.Code, resp.Code)
}

// TestAsk_LocalizedError 测试 Accept-Language 的错误消息本地化
func TestAsk_LocalizedError(t *testing.T) {
	svc := &fakeService{askErr: apierrors.ErrGenerationFailed}
	engine := newTestRouter(svc)

	raw, _ := json.Marshal(map[string]any{"question": "Question"})
	req := httptest.NewRequest(http.MethodPost, "/v1/ask", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept-Language", "fr")

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, apierrors.ErrGenerationFailed.MessageFR, resp.Message)
}

// TestCreateDocument_PartialIndex 测试部分索引失败的响应格式
func TestCreateDocument_PartialIndex(t *testing.T) {
	svc := &fakeService{
		doc:      &model.Document{ID: 7, Title: "Règlement intérieur", ChunkNum: 3},
		indexErr: apierrors.ErrPartialIndex,
	}
	engine := newTestRouter(svc)

	w := doJSON(t, engine, http.MethodPost, "/v1/documents", map[string]any{
		"title":   "Règlement intérieur",
		"content": "Article 1. Les cours commencent à 8h.",
	})
	assert.Equal(t, apierrors.ErrPartialIndex.HTTPStatus(), w.Code)

	var resp struct {
		Code     int             `json:"code"`
		Document *model.Document `json:"document"`
		Repair   string          `json:"repair"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, apierrors.ErrPartialIndex.Code, resp.Code)
	require.NotNil(t, resp.Document)
	assert.Equal(t, int64(7), resp.Document.ID)
	assert.Equal(t, "POST /v1/documents/7/repair", resp.Repair)
}

// TestCreateDocument_Success 测试文档创建成功响应
func TestCreateDocument_Success(t *testing.T) {
	svc := &fakeService{
		doc: &model.Document{ID: 1, Title: "Guide d'inscription", ChunkNum: 2},
	}
	engine := newTestRouter(svc)

	w := doJSON(t, engine, http.MethodPost, "/v1/documents", map[string]any{
		"title":   "Guide d'inscription",
		"content": "Les inscriptions ouvrent en septembre.",
	})
	assert.Equal(t, http.StatusCreated, w.Code)
}

// TestDocumentID_Validation 测试文档 ID 路径参数验证
func TestDocumentID_Validation(t *testing.T) {
	engine := newTestRouter(&fakeService{})

	for _, path := range []string{"/v1/documents/abc", "/v1/documents/-1", "/v1/documents/0"} {
		w := doJSON(t, engine, http.MethodDelete, path, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
	}
}

// TestDeleteDocument_NotFound 测试删除不存在的文档
func TestDeleteDocument_NotFound(t *testing.T) {
	svc := &fakeService{deleteErr: apierrors.ErrDocumentNotFound}
	engine := newTestRouter(svc)

	w := doJSON(t, engine, http.MethodDelete, "/v1/documents/42", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, apierrors.ErrDocumentNotFound.Code, resp.Code)
}

// TestSearch_ReturnsChunks 测试检索接口返回块列表
func TestSearch_ReturnsChunks(t *testing.T) {
	svc := &fakeService{
		chunks: []*model.ScoredChunk{
			{Chunk: model.Chunk{ID: 11, DocumentID: 1, ChunkText: "Les cours commencent à 8h."}, Score: 0.92, Rank: 1},
		},
	}
	engine := newTestRouter(svc)

	w := doJSON(t, engine, http.MethodPost, "/v1/search", map[string]any{
		"question": "À quelle heure commencent les cours ?",
	})
	assert.Equal(t, http.StatusOK, w.Code)

	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	var data struct {
		Chunks []*model.ScoredChunk `json:"chunks"`
		Count  int                  `json:"count"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	assert.Equal(t, 1, data.Count)
	require.Len(t, data.Chunks, 1)
	assert.Equal(t, 1, data.Chunks[0].Rank)
}

// TestHealthz 测试健康检查端点
func TestHealthz(t *testing.T) {
	engine := newTestRouter(&fakeService{})

	w := doJSON(t, engine, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

// TestMetrics 测试指标导出端点
func TestMetrics(t *testing.T) {
	engine := newTestRouter(&fakeService{})

	w := doJSON(t, engine, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "supnum_rag_")
}
