package biz

import (
	"context"
	"errors"
	"strings"

	"github.com/kart-io/logger"
	"gorm.io/gorm"

	"github.com/sidi-cnm/supnum-backend/internal/model"
	"github.com/sidi-cnm/supnum-backend/internal/pkg/chunker"
	"github.com/sidi-cnm/supnum-backend/internal/rag/store"
	apierrors "github.com/sidi-cnm/supnum-backend/pkg/utils/errors"
)

// IndexerConfig 索引器配置。
type IndexerConfig struct {
	// ChunkSize 文本块最大字符数。
	ChunkSize int
	// ChunkOverlap 块重叠字符数。
	ChunkOverlap int
}

// IndexRequest 索引请求。
type IndexRequest struct {
	Title   string
	Content string
	Source  string
	DocType string
}

// Indexer 负责文档索引。
//
// 双存储写入按 saga 顺序执行：创建时元数据先于向量提交，
// 删除时向量先于元数据清除。两个方向都保证失败后不会出现
// 有元数据而无向量可修复路径、或有向量而无元数据的幻影结果。
type Indexer struct {
	factory  store.Factory
	vectors  store.VectorStore
	embedder *Embedder
	config   *IndexerConfig
}

// NewIndexer 创建索引器实例。
func NewIndexer(factory store.Factory, vectors store.VectorStore, embedder *Embedder, config *IndexerConfig) *Indexer {
	return &Indexer{
		factory:  factory,
		vectors:  vectors,
		embedder: embedder,
		config:   config,
	}
}

// IndexDocument 索引一篇文档。
//
// 流程：分块 → 批量嵌入 → 单事务写入 Document+Chunk 行 → 向量 upsert。
// 元数据事务失败时整体回滚，不触碰向量存储；
// 向量 upsert 失败时元数据已提交，返回 PartialIndexFailure
// 并携带孤儿块 ID，可通过 RepairDocument 仅重试向量写入。
func (i *Indexer) IndexDocument(ctx context.Context, req *IndexRequest) (*model.Document, error) {
	if strings.TrimSpace(req.Title) == "" {
		return nil, apierrors.ErrInvalidInput.WithMessage("document title is required")
	}

	chunkTexts, err := chunker.Split(req.Content, chunker.Config{
		MaxSize: i.config.ChunkSize,
		Overlap: i.config.ChunkOverlap,
	})
	if err != nil {
		return nil, err
	}

	embeddings, err := i.embedder.EmbedBatch(ctx, chunkTexts)
	if err != nil {
		return nil, err
	}

	doc := &model.Document{
		Title:    req.Title,
		Content:  req.Content,
		Source:   req.Source,
		DocType:  req.DocType,
		ChunkNum: len(chunkTexts),
	}
	chunks := make([]*model.Chunk, len(chunkTexts))

	// Document 与 Chunk 行在同一事务内提交，
	// 不会出现有文档而无块的中间状态。
	err = i.factory.TX(ctx, func(tx store.Factory) error {
		if err := tx.Documents().Create(ctx, doc); err != nil {
			return err
		}
		for idx, text := range chunkTexts {
			chunks[idx] = &model.Chunk{
				DocumentID: doc.ID,
				ChunkText:  text,
				ChunkIndex: idx,
				ChunkSize:  len([]rune(text)),
			}
		}
		return tx.Chunks().CreateBatch(ctx, chunks)
	})
	if err != nil {
		return nil, apierrors.ErrStoreUnavailable.WithCause(err)
	}

	records := make([]*store.VectorRecord, len(chunks))
	orphanIDs := make([]int64, len(chunks))
	for idx, chunk := range chunks {
		records[idx] = &store.VectorRecord{
			ID:         chunk.ID,
			DocumentID: chunk.DocumentID,
			ChunkIndex: int64(chunk.ChunkIndex),
			Excerpt:    chunk.ChunkText,
			Embedding:  embeddings[idx],
		}
		orphanIDs[idx] = chunk.ID
	}

	if err := i.vectors.Upsert(ctx, records); err != nil {
		logger.Errorw("vector upsert failed after metadata commit",
			"document_id", doc.ID, "orphaned_chunk_ids", orphanIDs, "error", err.Error())
		return doc, apierrors.ErrPartialIndex.
			WithMessagef("vectors missing for chunk ids %v of document %d", orphanIDs, doc.ID).
			WithCause(err)
	}

	logger.Infow("document indexed", "document_id", doc.ID, "chunks", len(chunks))
	return doc, nil
}

// RepairDocument 重试某文档缺失的向量写入。
// upsert 按 ID 幂等，重复修复是安全的。
func (i *Indexer) RepairDocument(ctx context.Context, documentID int64) error {
	chunks, err := i.factory.Chunks().ListByDocument(ctx, documentID)
	if err != nil {
		return apierrors.ErrStoreUnavailable.WithCause(err)
	}
	if len(chunks) == 0 {
		return apierrors.ErrDocumentNotFound.WithMessagef("no chunks found for document %d", documentID)
	}

	texts := make([]string, len(chunks))
	for idx, chunk := range chunks {
		texts[idx] = chunk.ChunkText
	}

	embeddings, err := i.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return err
	}

	records := make([]*store.VectorRecord, len(chunks))
	for idx, chunk := range chunks {
		records[idx] = &store.VectorRecord{
			ID:         chunk.ID,
			DocumentID: chunk.DocumentID,
			ChunkIndex: int64(chunk.ChunkIndex),
			Excerpt:    chunk.ChunkText,
			Embedding:  embeddings[idx],
		}
	}

	if err := i.vectors.Upsert(ctx, records); err != nil {
		return apierrors.ErrPartialIndex.WithCause(err)
	}

	logger.Infow("document repaired", "document_id", documentID, "chunks", len(chunks))
	return nil
}

// DeleteDocument 删除文档及其全部块与向量。
//
// 先删向量再删元数据：向量删除失败时直接中止，双方保持调用前
// 的一致状态，避免向量存储残留无元数据的 ID。
func (i *Indexer) DeleteDocument(ctx context.Context, documentID int64) error {
	if _, err := i.getDocument(ctx, documentID); err != nil {
		return err
	}

	if err := i.vectors.DeleteByDocument(ctx, documentID); err != nil {
		return apierrors.ErrDeleteFailed.
			WithMessagef("vector deletion failed for document %d, stores left untouched", documentID).
			WithCause(err)
	}

	err := i.factory.TX(ctx, func(tx store.Factory) error {
		if err := tx.Chunks().DeleteByDocument(ctx, documentID); err != nil {
			return err
		}
		return tx.Documents().Delete(ctx, documentID)
	})
	if err != nil {
		return apierrors.ErrDeleteFailed.WithCause(err)
	}

	logger.Infow("document deleted", "document_id", documentID)
	return nil
}

// ReindexDocument 重建文档索引。
// 先完整删除旧文档，再以全新的 Document/Chunk ID 序列重新索引；
// newContent 为空时复用原有内容。分块确定性保证相同内容与配置
// 下重建结果一致。
func (i *Indexer) ReindexDocument(ctx context.Context, documentID int64, newContent string) (*model.Document, error) {
	doc, err := i.getDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	content := doc.Content
	if newContent != "" {
		content = newContent
	}

	if err := i.DeleteDocument(ctx, documentID); err != nil {
		return nil, err
	}

	return i.IndexDocument(ctx, &IndexRequest{
		Title:   doc.Title,
		Content: content,
		Source:  doc.Source,
		DocType: doc.DocType,
	})
}

func (i *Indexer) getDocument(ctx context.Context, documentID int64) (*model.Document, error) {
	doc, err := i.factory.Documents().Get(ctx, documentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apierrors.ErrDocumentNotFound.WithMessagef("document %d not found", documentID)
		}
		return nil, apierrors.ErrStoreUnavailable.WithCause(err)
	}
	return doc, nil
}
