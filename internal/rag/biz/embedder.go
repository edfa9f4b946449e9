package biz

import (
	"context"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/sidi-cnm/supnum-backend/pkg/llm"
	apierrors "github.com/sidi-cnm/supnum-backend/pkg/utils/errors"
)

// EmbedderConfig 嵌入器配置。
type EmbedderConfig struct {
	// Dimension 嵌入向量维度，与向量集合的维度绑定。
	Dimension int
	// BatchSize 单次嵌入请求的最大文本数。
	BatchSize int
	// Workers 并行嵌入的协程数。
	Workers int
}

// Embedder 封装嵌入后端。
// 后端为进程级单例，首次使用时惰性初始化，并发下仅初始化一次。
// 更换嵌入模型需要冷重启，因为向量维度固化在集合 schema 中。
type Embedder struct {
	newProvider func() (llm.EmbeddingProvider, error)
	config      *EmbedderConfig

	once     sync.Once
	provider llm.EmbeddingProvider
	initErr  error

	poolOnce sync.Once
	pool     *ants.Pool
}

// NewEmbedder 创建嵌入器实例。
// newProvider 延迟到首次嵌入调用时才执行。
func NewEmbedder(newProvider func() (llm.EmbeddingProvider, error), config *EmbedderConfig) *Embedder {
	if config.BatchSize <= 0 {
		config.BatchSize = 32
	}
	if config.Workers <= 0 {
		config.Workers = 4
	}
	return &Embedder{
		newProvider: newProvider,
		config:      config,
	}
}

// Dimension 返回部署固定的向量维度。
func (e *Embedder) Dimension() int {
	return e.config.Dimension
}

// initProvider 惰性初始化嵌入后端，失败结果同样被缓存：
// 后端不可用时每次调用都返回同一错误而不是重复重建。
func (e *Embedder) initProvider() (llm.EmbeddingProvider, error) {
	e.once.Do(func() {
		provider, err := e.newProvider()
		if err != nil {
			e.initErr = apierrors.ErrModelUnavailable.WithCause(err)
			return
		}
		e.provider = provider
	})
	return e.provider, e.initErr
}

func (e *Embedder) workerPool() (*ants.Pool, error) {
	var err error
	e.poolOnce.Do(func() {
		e.pool, err = ants.NewPool(e.config.Workers)
	})
	if err != nil {
		return nil, err
	}
	return e.pool, nil
}

// EmbedBatch 批量生成嵌入向量，输出与输入等长同序。
// 超过 BatchSize 的输入拆分为子批并行嵌入，按原始顺序重组。
// 任一向量维度与配置不符时返回 DimensionMismatch。
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	provider, err := e.initProvider()
	if err != nil {
		return nil, err
	}

	// 单个子批直接调用，避免协程开销
	if len(texts) <= e.config.BatchSize {
		vectors, err := provider.Embed(ctx, texts)
		if err != nil {
			return nil, apierrors.ErrModelUnavailable.WithCause(err)
		}
		if err := e.checkDimensions(vectors); err != nil {
			return nil, err
		}
		return vectors, nil
	}

	type subBatch struct {
		start int
		texts []string
	}

	var batches []subBatch
	for start := 0; start < len(texts); start += e.config.BatchSize {
		end := start + e.config.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batches = append(batches, subBatch{start: start, texts: texts[start:end]})
	}

	pool, err := e.workerPool()
	if err != nil {
		return nil, err
	}

	vectors := make([][]float32, len(texts))
	errs := make([]error, len(batches))
	var wg sync.WaitGroup

	for i, b := range batches {
		i, b := i, b
		wg.Add(1)
		task := func() {
			defer wg.Done()
			batchVectors, embedErr := provider.Embed(ctx, b.texts)
			if embedErr != nil {
				errs[i] = apierrors.ErrModelUnavailable.WithCause(embedErr)
				return
			}
			// 按原始偏移写回，保证输出顺序与输入一致
			for j, v := range batchVectors {
				vectors[b.start+j] = v
			}
		}
		if submitErr := pool.Submit(task); submitErr != nil {
			// 池不可用时降级为同步执行
			task()
		}
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	if err := e.checkDimensions(vectors); err != nil {
		return nil, err
	}
	return vectors, nil
}

// EmbedOne 生成单个文本的嵌入向量。
func (e *Embedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// checkDimensions 校验向量维度，不匹配时拒绝写入而不是截断或填充。
func (e *Embedder) checkDimensions(vectors [][]float32) error {
	for i, v := range vectors {
		if len(v) != e.config.Dimension {
			return apierrors.ErrDimensionMismatch.WithMessagef(
				"vector %d has dimension %d, collection expects %d", i, len(v), e.config.Dimension)
		}
	}
	return nil
}

// Close 释放嵌入器持有的协程池。
func (e *Embedder) Close() {
	if e.pool != nil {
		e.pool.Release()
	}
}
