package biz_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidi-cnm/supnum-backend/internal/rag/biz"
	"github.com/sidi-cnm/supnum-backend/internal/rag/store"
	apierrors "github.com/sidi-cnm/supnum-backend/pkg/utils/errors"
)

func newTestIndexer(t *testing.T, vectors *fakeVectorStore) (*biz.Indexer, store.Factory) {
	t.Helper()
	factory := newTestFactory(t)
	indexer := biz.NewIndexer(factory, vectors, newTestEmbedder(newFakeEmbedProvider()), &biz.IndexerConfig{
		ChunkSize:    100,
		ChunkOverlap: 10,
	})
	return indexer, factory
}

func TestIndexDocument(t *testing.T) {
	vectors := newFakeVectorStore()
	indexer, factory := newTestIndexer(t, vectors)
	ctx := context.Background()

	doc, err := indexer.IndexDocument(ctx, &biz.IndexRequest{
		Title:   "Guide des examens",
		Content: "Première règle des examens. Deuxième règle très importante. Troisième règle à ne pas oublier. Quatrième règle finale pour les étudiants.",
		Source:  "guide.pdf",
		DocType: "guide",
	})
	require.NoError(t, err)
	require.NotZero(t, doc.ID)
	require.Greater(t, doc.ChunkNum, 0)

	// 每个块行都有同 ID 的向量记录，反之亦然
	chunks, err := factory.Chunks().ListByDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, chunks, doc.ChunkNum)
	assert.Equal(t, len(chunks), vectors.count())

	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.ChunkIndex)
		assert.Equal(t, len([]rune(chunk.ChunkText)), chunk.ChunkSize)

		record, ok := vectors.records[chunk.ID]
		require.True(t, ok, "chunk %d must have a vector record", chunk.ID)
		assert.Equal(t, doc.ID, record.DocumentID)
		assert.Equal(t, int64(i), record.ChunkIndex)
		assert.Len(t, record.Embedding, testDim)
	}
}

func TestIndexDocumentValidation(t *testing.T) {
	indexer, _ := newTestIndexer(t, newFakeVectorStore())
	ctx := context.Background()

	_, err := indexer.IndexDocument(ctx, &biz.IndexRequest{Title: "", Content: "du contenu"})
	assert.Equal(t, apierrors.ErrInvalidInput.Code, apierrors.GetCode(err))

	_, err = indexer.IndexDocument(ctx, &biz.IndexRequest{Title: "Titre", Content: "   "})
	assert.Equal(t, apierrors.ErrInvalidInput.Code, apierrors.GetCode(err))
}

func TestIndexRoundTrip(t *testing.T) {
	vectors := newFakeVectorStore()
	indexer, factory := newTestIndexer(t, vectors)
	ctx := context.Background()

	doc, err := indexer.IndexDocument(ctx, &biz.IndexRequest{
		Title:   "Document éphémère",
		Content: "Un contenu bref. Qui sera supprimé aussitôt.",
	})
	require.NoError(t, err)

	require.NoError(t, indexer.DeleteDocument(ctx, doc.ID))

	// 两个存储都不再引用该文档
	requireChunkCount(t, factory, 0)
	assert.Equal(t, 0, vectors.count())
	_, err = factory.Documents().Get(ctx, doc.ID)
	require.Error(t, err)
}

func TestIndexPartialFailureAndRepair(t *testing.T) {
	vectors := newFakeVectorStore()
	indexer, factory := newTestIndexer(t, vectors)
	ctx := context.Background()

	vectors.upsertErr = errors.New("milvus is down")

	doc, err := indexer.IndexDocument(ctx, &biz.IndexRequest{
		Title:   "Document orphelin",
		Content: "Première phrase du document. Deuxième phrase du document. Troisième phrase complète.",
	})
	require.Error(t, err)
	assert.Equal(t, apierrors.ErrPartialIndex.Code, apierrors.GetCode(err))

	// 元数据已提交，向量缺失
	require.NotNil(t, doc)
	chunks, listErr := factory.Chunks().ListByDocument(ctx, doc.ID)
	require.NoError(t, listErr)
	require.NotEmpty(t, chunks)
	assert.Equal(t, 0, vectors.count())

	// 修复路径仅重试向量写入，upsert 幂等
	vectors.upsertErr = nil
	require.NoError(t, indexer.RepairDocument(ctx, doc.ID))
	assert.Equal(t, len(chunks), vectors.count())

	// 重复修复安全
	require.NoError(t, indexer.RepairDocument(ctx, doc.ID))
	assert.Equal(t, len(chunks), vectors.count())
}

func TestDeleteDocumentVectorFailureAborts(t *testing.T) {
	vectors := newFakeVectorStore()
	indexer, factory := newTestIndexer(t, vectors)
	ctx := context.Background()

	doc, err := indexer.IndexDocument(ctx, &biz.IndexRequest{
		Title:   "Document protégé",
		Content: "Un contenu qui doit survivre. À toute tentative de suppression défaillante.",
	})
	require.NoError(t, err)
	chunkCountBefore := int64(doc.ChunkNum)

	vectors.deleteErr = errors.New("milvus is down")

	err = indexer.DeleteDocument(ctx, doc.ID)
	require.Error(t, err)
	assert.Equal(t, apierrors.ErrDeleteFailed.Code, apierrors.GetCode(err))

	// 元数据未被触碰，双方保持删除前状态
	requireChunkCount(t, factory, chunkCountBefore)
	_, err = factory.Documents().Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.ChunkNum, vectors.count())
}

func TestDeleteDocumentNotFound(t *testing.T) {
	indexer, _ := newTestIndexer(t, newFakeVectorStore())

	err := indexer.DeleteDocument(context.Background(), 424242)
	require.Error(t, err)
	assert.Equal(t, apierrors.ErrDocumentNotFound.Code, apierrors.GetCode(err))
}

func TestReindexDocumentFreshIDs(t *testing.T) {
	vectors := newFakeVectorStore()
	indexer, factory := newTestIndexer(t, vectors)
	ctx := context.Background()

	doc, err := indexer.IndexDocument(ctx, &biz.IndexRequest{
		Title:   "Document versionné",
		Content: "Contenu initial du document. Sur deux phrases distinctes.",
		Source:  "v1.md",
	})
	require.NoError(t, err)

	oldChunkIDs, err := factory.Chunks().IDsByDocument(ctx, doc.ID)
	require.NoError(t, err)

	newDoc, err := indexer.ReindexDocument(ctx, doc.ID, "Contenu mis à jour du document. Toujours sur deux phrases.")
	require.NoError(t, err)

	// 标题与来源保留，文档与块 ID 全新
	assert.Equal(t, doc.Title, newDoc.Title)
	assert.Equal(t, doc.Source, newDoc.Source)
	assert.NotEqual(t, doc.ID, newDoc.ID)

	newChunkIDs, err := factory.Chunks().IDsByDocument(ctx, newDoc.ID)
	require.NoError(t, err)
	for _, oldID := range oldChunkIDs {
		assert.NotContains(t, newChunkIDs, oldID)
		_, stillThere := vectors.records[oldID]
		assert.False(t, stillThere, "old vector %d must be purged", oldID)
	}

	// 旧文档完全消失
	_, err = factory.Documents().Get(ctx, doc.ID)
	require.Error(t, err)
}
