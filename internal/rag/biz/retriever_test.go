package biz_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidi-cnm/supnum-backend/internal/rag/biz"
	apierrors "github.com/sidi-cnm/supnum-backend/pkg/utils/errors"
)

func newTestRetriever(t *testing.T, vectors *fakeVectorStore) (*biz.Retriever, int64, []int64) {
	t.Helper()
	factory := newTestFactory(t)
	docID, chunkIDs := seedDocument(t, factory, "Règlement SupNum", []string{
		"Chapitre un du règlement.",
		"Chapitre deux du règlement.",
		"Chapitre trois du règlement.",
	})

	retriever := biz.NewRetriever(factory, vectors, newTestEmbedder(newFakeEmbedProvider()), &biz.RetrieverConfig{
		TopK:           5,
		ScoreThreshold: 0.5,
	})
	return retriever, docID, chunkIDs
}

func TestRetrieveValidation(t *testing.T) {
	retriever, _, _ := newTestRetriever(t, newFakeVectorStore())
	ctx := context.Background()

	tests := []struct {
		name      string
		question  string
		topK      int
		threshold float64
	}{
		{"空问题", "", 5, 0.5},
		{"仅空白问题", "   ", 5, 0.5},
		{"top_k 为零", "question valide", 0, 0.5},
		{"top_k 为负", "question valide", -3, 0.5},
		{"阈值为负", "question valide", 5, -0.1},
		{"阈值超过 1", "question valide", 5, 1.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := retriever.Retrieve(ctx, tt.question, tt.topK, tt.threshold)
			require.Error(t, err)
			assert.Equal(t, apierrors.ErrInvalidInput.Code, apierrors.GetCode(err))
		})
	}
}

func TestRetrieveThresholdAndRanking(t *testing.T) {
	vectors := newFakeVectorStore()
	retriever, _, chunkIDs := newTestRetriever(t, vectors)

	// 分数 [0.9, 0.9, 0.4]，阈值 0.5：仅两个结果，同分按 chunk_index 破平
	vectors.searchHits = hitsForScores(
		[]int64{chunkIDs[2], chunkIDs[0], chunkIDs[1]},
		[]float32{0.9, 0.9, 0.4},
	)

	results, err := retriever.Retrieve(context.Background(), "règlement", 5, 0.5)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, 1, results[0].Rank)
	assert.Equal(t, 2, results[1].Rank)
	// 同分时 chunk_index 较小者在前
	assert.Equal(t, 0, results[0].Chunk.ChunkIndex)
	assert.Equal(t, 2, results[1].Chunk.ChunkIndex)
}

func TestRetrieveBelowThresholdYieldsEmpty(t *testing.T) {
	vectors := newFakeVectorStore()
	retriever, _, chunkIDs := newTestRetriever(t, vectors)

	vectors.searchHits = hitsForScores(chunkIDs, []float32{0.3, 0.2, 0.1})

	results, err := retriever.Retrieve(context.Background(), "règlement", 5, 0.5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRetrieveDedupIdenticalText(t *testing.T) {
	vectors := newFakeVectorStore()
	factory := newTestFactory(t)

	// 两篇文档包含完全相同的块文本
	_, ids1 := seedDocument(t, factory, "Doc A", []string{"Texte partagé entre documents."})
	_, ids2 := seedDocument(t, factory, "Doc B", []string{"Texte partagé entre documents."})

	retriever := biz.NewRetriever(factory, vectors, newTestEmbedder(newFakeEmbedProvider()), &biz.RetrieverConfig{
		TopK:           5,
		ScoreThreshold: 0.5,
	})

	vectors.searchHits = hitsForScores(
		[]int64{ids1[0], ids2[0]},
		[]float32{0.9, 0.8},
	)

	results, err := retriever.Retrieve(context.Background(), "texte", 5, 0.5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, float32(0.9), results[0].Score)
	assert.Equal(t, 1, results[0].Rank)
}

func TestRetrieveDedupAdjacentChunks(t *testing.T) {
	vectors := newFakeVectorStore()
	retriever, _, chunkIDs := newTestRetriever(t, vectors)

	// 块 0 与块 1 相邻（重叠区近似重复），仅保留高分者
	vectors.searchHits = hitsForScores(
		[]int64{chunkIDs[0], chunkIDs[1]},
		[]float32{0.95, 0.85},
	)

	results, err := retriever.Retrieve(context.Background(), "règlement", 5, 0.5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 0, results[0].Chunk.ChunkIndex)
}

func TestRetrieveGracefulDegradation(t *testing.T) {
	vectors := newFakeVectorStore()
	retriever, _, chunkIDs := newTestRetriever(t, vectors)

	// 99999 没有对应的块行，应被丢弃而不是让查询失败
	vectors.searchHits = hitsForScores(
		[]int64{chunkIDs[0], 99999},
		[]float32{0.9, 0.8},
	)

	results, err := retriever.Retrieve(context.Background(), "règlement", 5, 0.5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, chunkIDs[0], results[0].Chunk.ID)
}

func TestFormatContext(t *testing.T) {
	vectors := newFakeVectorStore()
	retriever, _, chunkIDs := newTestRetriever(t, vectors)

	vectors.searchHits = hitsForScores(chunkIDs[:1], []float32{0.9})

	results, err := retriever.Retrieve(context.Background(), "règlement", 5, 0.5)
	require.NoError(t, err)
	require.Len(t, results, 1)

	formatted := retriever.FormatContext(context.Background(), results)
	assert.Contains(t, formatted, "Règlement SupNum")
	assert.Contains(t, formatted, "Chapitre un du règlement.")
	assert.Contains(t, formatted, "[1]")
}

func TestFormatContextEmpty(t *testing.T) {
	retriever, _, _ := newTestRetriever(t, newFakeVectorStore())
	assert.Equal(t, "", retriever.FormatContext(context.Background(), nil))
}
