package biz

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/kart-io/logger"
	"gorm.io/gorm"

	"github.com/sidi-cnm/supnum-backend/internal/model"
	"github.com/sidi-cnm/supnum-backend/internal/rag/metrics"
	"github.com/sidi-cnm/supnum-backend/internal/rag/store"
	apierrors "github.com/sidi-cnm/supnum-backend/pkg/utils/errors"
)

// AskRequest 问答请求。
type AskRequest struct {
	// Question 用户问题。
	Question string
	// TopK 检索结果数量，为 0 时使用默认值。
	TopK int
	// ScoreThreshold 最低相似度分数，为负时使用默认值。
	ScoreThreshold float64
	// UseContext 是否启用检索增强，false 时直接调用生成后端。
	UseContext bool
}

// AskResult 问答结果。
type AskResult struct {
	// Answer 生成的答案，生成失败时为空。
	Answer string `json:"answer"`
	// Sources 答案引用的检索块。
	Sources []*model.ScoredChunk `json:"sources,omitempty"`
	// ChunksRetrieved 检索到的块数量。
	ChunksRetrieved int `json:"chunks_retrieved"`
	// AvgScore 检索块的平均分数。
	AvgScore float64 `json:"avg_score"`
	// ResponseTimeMs 处理耗时（毫秒）。
	ResponseTimeMs int64 `json:"response_time_ms"`
}

// Service 定义问答服务接口。
type Service interface {
	// HandleQuestion 处理一次问答。
	HandleQuestion(ctx context.Context, req *AskRequest) (*AskResult, error)
	// IndexDocument 索引文档。
	IndexDocument(ctx context.Context, req *IndexRequest) (*model.Document, error)
	// DeleteDocument 删除文档。
	DeleteDocument(ctx context.Context, documentID int64) error
	// ReindexDocument 重建文档索引。
	ReindexDocument(ctx context.Context, documentID int64, newContent string) (*model.Document, error)
	// RepairDocument 重试缺失的向量写入。
	RepairDocument(ctx context.Context, documentID int64) error
	// GetDocument 获取单个文档。
	GetDocument(ctx context.Context, documentID int64) (*model.Document, error)
	// ListDocuments 分页列出文档。
	ListDocuments(ctx context.Context, offset, limit int) (int64, []*model.Document, error)
	// ListQueryLogs 分页列出查询日志。
	ListQueryLogs(ctx context.Context, offset, limit int) (int64, []*model.QueryLog, error)
	// Retrieve 仅执行检索，不生成答案。
	Retrieve(ctx context.Context, question string, topK int, scoreThreshold float64) ([]*model.ScoredChunk, error)
	// GetStats 获取知识库统计信息。
	GetStats(ctx context.Context) (map[string]any, error)
}

// RAGService 组合 Indexer、Retriever 和 Generator 提供完整的问答服务。
type RAGService struct {
	factory   store.Factory
	vectors   store.VectorStore
	indexer   *Indexer
	retriever *Retriever
	generator *Generator
	cache     *QueryCache
	config    *ServiceConfig
	metrics   *metrics.RAGMetrics
}

// ServiceConfig 问答服务配置。
type ServiceConfig struct {
	IndexerConfig    *IndexerConfig
	RetrieverConfig  *RetrieverConfig
	GeneratorConfig  *GeneratorConfig
	QueryCacheConfig *QueryCacheConfig
}

var _ Service = (*RAGService)(nil)

// NewRAGService 创建问答服务实例。
func NewRAGService(
	factory store.Factory,
	vectors store.VectorStore,
	embedder *Embedder,
	generator *Generator,
	cache *QueryCache,
	config *ServiceConfig,
) *RAGService {
	return &RAGService{
		factory:   factory,
		vectors:   vectors,
		indexer:   NewIndexer(factory, vectors, embedder, config.IndexerConfig),
		retriever: NewRetriever(factory, vectors, embedder, config.RetrieverConfig),
		generator: generator,
		cache:     cache,
		config:    config,
		metrics:   metrics.GetRAGMetrics(),
	}
}

// HandleQuestion 处理一次问答。
//
// 无论生成是否成功，每次调用都恰好写入一条 QueryLog：
// 生成失败时 answer 记空，耗时与检索统计照常记录。
// 查询可观测性不依赖生成成功。
func (s *RAGService) HandleQuestion(ctx context.Context, req *AskRequest) (*AskResult, error) {
	if strings.TrimSpace(req.Question) == "" {
		return nil, apierrors.ErrInvalidInput.WithMessage("question is empty")
	}

	topK := req.TopK
	if topK <= 0 {
		topK = s.config.RetrieverConfig.TopK
	}
	threshold := req.ScoreThreshold
	if threshold < 0 {
		threshold = s.config.RetrieverConfig.ScoreThreshold
	}

	start := time.Now()

	if cached, err := s.cache.Get(ctx, req.Question, topK, threshold, req.UseContext); err == nil && cached != nil {
		s.metrics.RecordQuery(true, nil)
		cached.ResponseTimeMs = time.Since(start).Milliseconds()
		s.writeQueryLog(ctx, req.Question, cached)
		return cached, nil
	}

	result := &AskResult{}
	var contextBlock string

	if req.UseContext {
		retrievalStart := time.Now()
		chunks, err := s.retriever.Retrieve(ctx, req.Question, topK, threshold)
		s.metrics.RecordRetrieval(time.Since(retrievalStart), err)
		if err != nil {
			s.metrics.RecordQuery(false, err)
			return nil, err
		}

		result.Sources = chunks
		result.ChunksRetrieved = len(chunks)
		result.AvgScore = averageScore(chunks)
		contextBlock = s.retriever.FormatContext(ctx, chunks)
	}

	llmStart := time.Now()
	answer, genErr := s.generator.GenerateAnswer(ctx, req.Question, contextBlock)
	s.metrics.RecordLLMCall(time.Since(llmStart), genErr)

	result.Answer = answer
	result.ResponseTimeMs = time.Since(start).Milliseconds()

	// 生成失败时 QueryLog 依然写入
	s.writeQueryLog(ctx, req.Question, result)

	if genErr != nil {
		s.metrics.RecordQuery(false, genErr)
		return nil, genErr
	}

	s.metrics.RecordQuery(false, nil)
	s.cache.Set(ctx, req.Question, topK, threshold, req.UseContext, result)
	return result, nil
}

// writeQueryLog 追加一条查询日志，失败仅记录告警，不影响问答结果。
func (s *RAGService) writeQueryLog(ctx context.Context, question string, result *AskResult) {
	entry := &model.QueryLog{
		Question:        question,
		Answer:          result.Answer,
		ChunksRetrieved: result.ChunksRetrieved,
		AvgScore:        result.AvgScore,
		ResponseTimeMs:  result.ResponseTimeMs,
	}
	if err := s.factory.QueryLogs().Create(ctx, entry); err != nil {
		logger.Warnw("failed to write query log", "error", err.Error())
	}
}

// IndexDocument 索引文档。
func (s *RAGService) IndexDocument(ctx context.Context, req *IndexRequest) (*model.Document, error) {
	doc, err := s.indexer.IndexDocument(ctx, req)
	if apierrors.IsCode(err, apierrors.ErrPartialIndex.Code) {
		s.metrics.RecordPartialIndex()
	}
	if doc != nil {
		s.metrics.RecordIndexing(doc.ChunkNum, err)
	} else {
		s.metrics.RecordIndexing(0, err)
	}
	return doc, err
}

// DeleteDocument 删除文档。
func (s *RAGService) DeleteDocument(ctx context.Context, documentID int64) error {
	err := s.indexer.DeleteDocument(ctx, documentID)
	s.metrics.RecordDeletion(err)
	return err
}

// ReindexDocument 重建文档索引。
func (s *RAGService) ReindexDocument(ctx context.Context, documentID int64, newContent string) (*model.Document, error) {
	return s.indexer.ReindexDocument(ctx, documentID, newContent)
}

// RepairDocument 重试缺失的向量写入。
func (s *RAGService) RepairDocument(ctx context.Context, documentID int64) error {
	return s.indexer.RepairDocument(ctx, documentID)
}

// GetDocument 获取单个文档。
func (s *RAGService) GetDocument(ctx context.Context, documentID int64) (*model.Document, error) {
	doc, err := s.factory.Documents().Get(ctx, documentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apierrors.ErrDocumentNotFound
		}
		return nil, apierrors.ErrStoreUnavailable.WithCause(err)
	}
	return doc, nil
}

// ListDocuments 分页列出文档。
func (s *RAGService) ListDocuments(ctx context.Context, offset, limit int) (int64, []*model.Document, error) {
	total, docs, err := s.factory.Documents().List(ctx, offset, limit)
	if err != nil {
		return 0, nil, apierrors.ErrStoreUnavailable.WithCause(err)
	}
	return total, docs, nil
}

// ListQueryLogs 分页列出查询日志。
func (s *RAGService) ListQueryLogs(ctx context.Context, offset, limit int) (int64, []*model.QueryLog, error) {
	total, logs, err := s.factory.QueryLogs().List(ctx, offset, limit)
	if err != nil {
		return 0, nil, apierrors.ErrStoreUnavailable.WithCause(err)
	}
	return total, logs, nil
}

// Retrieve 仅执行检索，不生成答案。
func (s *RAGService) Retrieve(ctx context.Context, question string, topK int, scoreThreshold float64) ([]*model.ScoredChunk, error) {
	if topK <= 0 {
		topK = s.config.RetrieverConfig.TopK
	}
	if scoreThreshold < 0 {
		scoreThreshold = s.config.RetrieverConfig.ScoreThreshold
	}
	start := time.Now()
	chunks, err := s.retriever.Retrieve(ctx, question, topK, scoreThreshold)
	s.metrics.RecordRetrieval(time.Since(start), err)
	return chunks, err
}

// GetStats 获取知识库统计信息。
func (s *RAGService) GetStats(ctx context.Context) (map[string]any, error) {
	docCount, _, err := s.factory.Documents().List(ctx, 0, 1)
	if err != nil {
		return nil, apierrors.ErrStoreUnavailable.WithCause(err)
	}
	chunkCount, err := s.factory.Chunks().Count(ctx)
	if err != nil {
		return nil, apierrors.ErrStoreUnavailable.WithCause(err)
	}
	logCount, err := s.factory.QueryLogs().Count(ctx)
	if err != nil {
		return nil, apierrors.ErrStoreUnavailable.WithCause(err)
	}

	stats := map[string]any{
		"documents":  docCount,
		"chunks":     chunkCount,
		"query_logs": logCount,
	}

	// 向量数用于一致性巡检，获取失败不阻断统计
	if vectorCount, err := s.vectors.Stats(ctx); err == nil {
		stats["vectors"] = vectorCount
	} else {
		logger.Warnw("failed to get vector stats", "error", err.Error())
	}

	return stats, nil
}

func averageScore(chunks []*model.ScoredChunk) float64 {
	if len(chunks) == 0 {
		return 0
	}
	var sum float64
	for _, c := range chunks {
		sum += float64(c.Score)
	}
	return sum / float64(len(chunks))
}
