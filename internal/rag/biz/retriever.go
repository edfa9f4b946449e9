package biz

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/kart-io/logger"

	"github.com/sidi-cnm/supnum-backend/internal/model"
	"github.com/sidi-cnm/supnum-backend/internal/rag/metrics"
	"github.com/sidi-cnm/supnum-backend/internal/rag/store"
	apierrors "github.com/sidi-cnm/supnum-backend/pkg/utils/errors"
)

// RetrieverConfig 检索器配置。
type RetrieverConfig struct {
	// TopK 默认返回的结果数量。
	TopK int
	// ScoreThreshold 默认最低相似度分数。
	ScoreThreshold float64
}

// Retriever 负责相似块检索。
type Retriever struct {
	factory  store.Factory
	vectors  store.VectorStore
	embedder *Embedder
	config   *RetrieverConfig
}

// NewRetriever 创建检索器实例。
func NewRetriever(factory store.Factory, vectors store.VectorStore, embedder *Embedder, config *RetrieverConfig) *Retriever {
	return &Retriever{
		factory:  factory,
		vectors:  vectors,
		embedder: embedder,
		config:   config,
	}
}

// Retrieve 检索与问题最相关的块，按分数降序返回，rank 从 1 开始。
//
// 流程：问题嵌入 → 向量 top-k 检索 → 分数阈值过滤 → 单次批量
// 取回块行 → 丢弃无元数据的孤儿 ID → 去重 → 排序。
// 孤儿 ID 属于跨存储一致性破损，仅记录告警而不让用户查询失败。
func (r *Retriever) Retrieve(ctx context.Context, question string, topK int, scoreThreshold float64) ([]*model.ScoredChunk, error) {
	if strings.TrimSpace(question) == "" {
		return nil, apierrors.ErrInvalidInput.WithMessage("question is empty")
	}
	if topK <= 0 {
		return nil, apierrors.ErrInvalidInput.WithMessagef("top_k must be positive, got %d", topK)
	}
	if scoreThreshold < 0 || scoreThreshold > 1 {
		return nil, apierrors.ErrInvalidInput.WithMessagef("score_threshold must be within [0, 1], got %v", scoreThreshold)
	}

	embedding, err := r.embedder.EmbedOne(ctx, question)
	if err != nil {
		return nil, err
	}

	hits, err := r.vectors.Search(ctx, embedding, topK)
	if err != nil {
		return nil, err
	}

	// 阈值过滤，结果可能少于 top-k 甚至为空
	var surviving []*store.VectorHit
	for _, hit := range hits {
		if float64(hit.Score) >= scoreThreshold {
			surviving = append(surviving, hit)
		}
	}
	if len(surviving) == 0 {
		return nil, nil
	}

	ids := make([]int64, len(surviving))
	scores := make(map[int64]float32, len(surviving))
	for idx, hit := range surviving {
		ids[idx] = hit.ID
		scores[hit.ID] = hit.Score
	}

	chunks, err := r.factory.Chunks().GetByIDs(ctx, ids)
	if err != nil {
		return nil, apierrors.ErrStoreUnavailable.WithCause(err)
	}

	found := make(map[int64]*model.Chunk, len(chunks))
	for _, chunk := range chunks {
		found[chunk.ID] = chunk
	}
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			logger.Warnw("vector id has no matching chunk row, dropping from results",
				"chunk_id", id, "errno", apierrors.ErrConsistency.Code)
			metrics.GetRAGMetrics().RecordOrphanVector()
		}
	}

	var candidates []*model.ScoredChunk
	for _, id := range ids {
		chunk, ok := found[id]
		if !ok {
			continue
		}
		candidates = append(candidates, &model.ScoredChunk{
			Chunk: *chunk,
			Score: scores[id],
		})
	}

	ranked := rankChunks(dedupChunks(candidates))
	return ranked, nil
}

// dedupChunks 去除重复块。
// 两类重复：chunk_text 完全相同，或同一文档内 chunk_index 相邻
// 形成的重叠近似重复。每组仅保留分数最高者，分数相同保留
// chunk_index 较小者。
func dedupChunks(candidates []*model.ScoredChunk) []*model.ScoredChunk {
	if len(candidates) <= 1 {
		return candidates
	}

	ordered := make([]*model.ScoredChunk, len(candidates))
	copy(ordered, candidates)
	sortByPreference(ordered)

	seenText := make(map[string]bool)
	kept := make(map[int64]map[int]bool) // document_id → kept chunk indexes
	var result []*model.ScoredChunk

	for _, c := range ordered {
		if seenText[c.Chunk.ChunkText] {
			continue
		}
		indexes := kept[c.Chunk.DocumentID]
		if indexes != nil && (indexes[c.Chunk.ChunkIndex-1] || indexes[c.Chunk.ChunkIndex+1] || indexes[c.Chunk.ChunkIndex]) {
			continue
		}

		seenText[c.Chunk.ChunkText] = true
		if indexes == nil {
			indexes = make(map[int]bool)
			kept[c.Chunk.DocumentID] = indexes
		}
		indexes[c.Chunk.ChunkIndex] = true
		result = append(result, c)
	}

	return result
}

// rankChunks 按分数降序排序并赋予从 1 开始的 rank。
// 分数相同时按 chunk_index 升序、再按 document_id 升序，
// 保证全序确定性。
func rankChunks(chunks []*model.ScoredChunk) []*model.ScoredChunk {
	sortByPreference(chunks)
	for idx, c := range chunks {
		c.Rank = idx + 1
	}
	return chunks
}

func sortByPreference(chunks []*model.ScoredChunk) {
	sort.SliceStable(chunks, func(i, j int) bool {
		if chunks[i].Score != chunks[j].Score {
			return chunks[i].Score > chunks[j].Score
		}
		if chunks[i].Chunk.ChunkIndex != chunks[j].Chunk.ChunkIndex {
			return chunks[i].Chunk.ChunkIndex < chunks[j].Chunk.ChunkIndex
		}
		return chunks[i].Chunk.DocumentID < chunks[j].Chunk.DocumentID
	})
}

// FormatContext 将检索结果按 rank 顺序拼接成上下文块，
// 每个块附带来源文档标题与 ID。空输入返回空字符串。
func (r *Retriever) FormatContext(ctx context.Context, chunks []*model.ScoredChunk) string {
	if len(chunks) == 0 {
		return ""
	}

	titles := r.documentTitles(ctx, chunks)

	var b strings.Builder
	for _, c := range chunks {
		title := titles[c.Chunk.DocumentID]
		if title == "" {
			title = fmt.Sprintf("document %d", c.Chunk.DocumentID)
		}
		fmt.Fprintf(&b, "[%d] %s (document %d):\n%s\n\n", c.Rank, title, c.Chunk.DocumentID, c.Chunk.ChunkText)
	}
	return b.String()
}

// documentTitles 取回涉及文档的标题，失败时退化为仅用 ID 标注。
func (r *Retriever) documentTitles(ctx context.Context, chunks []*model.ScoredChunk) map[int64]string {
	titles := make(map[int64]string)
	for _, c := range chunks {
		if _, ok := titles[c.Chunk.DocumentID]; ok {
			continue
		}
		doc, err := r.factory.Documents().Get(ctx, c.Chunk.DocumentID)
		if err != nil {
			logger.Warnw("failed to fetch document title for context",
				"document_id", c.Chunk.DocumentID, "error", err.Error())
			titles[c.Chunk.DocumentID] = ""
			continue
		}
		titles[c.Chunk.DocumentID] = doc.Title
	}
	return titles
}
