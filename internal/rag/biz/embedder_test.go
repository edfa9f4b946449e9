package biz_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidi-cnm/supnum-backend/internal/rag/biz"
	"github.com/sidi-cnm/supnum-backend/pkg/llm"
	apierrors "github.com/sidi-cnm/supnum-backend/pkg/utils/errors"
)

func TestEmbedBatchPreservesOrder(t *testing.T) {
	provider := newFakeEmbedProvider()
	// 小批量强制拆分为多个子批并行嵌入
	embedder := biz.NewEmbedder(
		func() (llm.EmbeddingProvider, error) { return provider, nil },
		&biz.EmbedderConfig{Dimension: testDim, BatchSize: 3, Workers: 4},
	)
	defer embedder.Close()

	texts := make([]string, 20)
	for i := range texts {
		texts[i] = fmt.Sprintf("texte numéro %d avec padding %d", i, i*i)
	}

	vectors, err := embedder.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vectors, len(texts))

	// 输出顺序必须与串行结果完全一致
	expected, err := provider.Embed(context.Background(), texts)
	require.NoError(t, err)
	assert.Equal(t, expected, vectors)
}

func TestEmbedDimensionMismatch(t *testing.T) {
	provider := newFakeEmbedProvider()
	embedder := biz.NewEmbedder(
		func() (llm.EmbeddingProvider, error) { return provider, nil },
		&biz.EmbedderConfig{Dimension: testDim + 1, BatchSize: 32, Workers: 2},
	)
	defer embedder.Close()

	_, err := embedder.EmbedBatch(context.Background(), []string{"texte"})
	require.Error(t, err)
	assert.Equal(t, apierrors.ErrDimensionMismatch.Code, apierrors.GetCode(err))
}

func TestEmbedLazyInitOnce(t *testing.T) {
	var initCount int
	var mu sync.Mutex
	provider := newFakeEmbedProvider()

	embedder := biz.NewEmbedder(
		func() (llm.EmbeddingProvider, error) {
			mu.Lock()
			initCount++
			mu.Unlock()
			return provider, nil
		},
		&biz.EmbedderConfig{Dimension: testDim, BatchSize: 32, Workers: 2},
	)
	defer embedder.Close()

	// 并发首次使用下仅初始化一次
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = embedder.EmbedOne(context.Background(), "texte concurrent")
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, initCount)
}

func TestEmbedInitFailure(t *testing.T) {
	embedder := biz.NewEmbedder(
		func() (llm.EmbeddingProvider, error) {
			return nil, errors.New("backend unreachable")
		},
		&biz.EmbedderConfig{Dimension: testDim, BatchSize: 32, Workers: 2},
	)
	defer embedder.Close()

	_, err := embedder.EmbedOne(context.Background(), "texte")
	require.Error(t, err)
	assert.Equal(t, apierrors.ErrModelUnavailable.Code, apierrors.GetCode(err))

	// 失败结果同样被缓存，重复调用返回同一错误
	_, err = embedder.EmbedOne(context.Background(), "texte")
	assert.Equal(t, apierrors.ErrModelUnavailable.Code, apierrors.GetCode(err))
}

func TestEmbedProviderError(t *testing.T) {
	provider := newFakeEmbedProvider()
	provider.embedErr = errors.New("connection refused")

	embedder := newTestEmbedder(provider)
	defer embedder.Close()

	_, err := embedder.EmbedBatch(context.Background(), []string{"texte"})
	require.Error(t, err)
	assert.Equal(t, apierrors.ErrModelUnavailable.Code, apierrors.GetCode(err))
}

func TestEmbedEmptyInput(t *testing.T) {
	embedder := newTestEmbedder(newFakeEmbedProvider())
	defer embedder.Close()

	vectors, err := embedder.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vectors)
}
