package biz_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/sidi-cnm/supnum-backend/internal/model"
	"github.com/sidi-cnm/supnum-backend/internal/rag/biz"
	"github.com/sidi-cnm/supnum-backend/internal/rag/store"
	"github.com/sidi-cnm/supnum-backend/pkg/llm"
)

const testDim = 4

// newTestFactory 创建基于内存 SQLite 的元数据存储。
func newTestFactory(t *testing.T) store.Factory {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	factory := store.NewFactory(db)
	require.NoError(t, factory.AutoMigrate())
	return factory
}

// fakeVectorStore 内存向量存储，支持脚本化检索结果与注入故障。
type fakeVectorStore struct {
	mu      sync.Mutex
	records map[int64]*store.VectorRecord

	searchHits []*store.VectorHit
	searched   bool

	upsertErr error
	deleteErr error
	searchErr error
}

func newFakeVectorStore() *fakeVectorStore {
	return &fakeVectorStore{records: make(map[int64]*store.VectorRecord)}
}

func (f *fakeVectorStore) EnsureCollection(ctx context.Context, dimension int) error {
	return nil
}

func (f *fakeVectorStore) Upsert(ctx context.Context, records []*store.VectorRecord) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range records {
		f.records[r.ID] = r
	}
	return nil
}

func (f *fakeVectorStore) Search(ctx context.Context, embedding []float32, topK int) ([]*store.VectorHit, error) {
	f.mu.Lock()
	f.searched = true
	f.mu.Unlock()
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if len(f.searchHits) > topK {
		return f.searchHits[:topK], nil
	}
	return f.searchHits, nil
}

func (f *fakeVectorStore) DeleteByIDs(ctx context.Context, ids []int64) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		delete(f.records, id)
	}
	return nil
}

func (f *fakeVectorStore) DeleteByDocument(ctx context.Context, documentID int64) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, r := range f.records {
		if r.DocumentID == documentID {
			delete(f.records, id)
		}
	}
	return nil
}

func (f *fakeVectorStore) Stats(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.records)), nil
}

func (f *fakeVectorStore) Close(ctx context.Context) error {
	return nil
}

func (f *fakeVectorStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

// fakeEmbedProvider 确定性嵌入后端。
type fakeEmbedProvider struct {
	mu       sync.Mutex
	calls    int
	embedErr error
	dim      int
}

func newFakeEmbedProvider() *fakeEmbedProvider {
	return &fakeEmbedProvider{dim: testDim}
}

func (p *fakeEmbedProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	if p.embedErr != nil {
		return nil, p.embedErr
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		v := make([]float32, p.dim)
		// 仅依赖文本内容的确定性伪向量，与批次划分无关
		for j := range v {
			v[j] = float32((len(text)*(j+3))%7) / 7.0
		}
		vectors[i] = v
	}
	return vectors, nil
}

func (p *fakeEmbedProvider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (p *fakeEmbedProvider) Name() string { return "fake" }

// fakeChatProvider 脚本化生成后端。
type fakeChatProvider struct {
	answer  string
	genErr  error
	called  int
	lastCtx string
}

func (p *fakeChatProvider) Chat(ctx context.Context, messages []llm.Message) (string, error) {
	if p.genErr != nil {
		return "", p.genErr
	}
	return p.answer, nil
}

func (p *fakeChatProvider) Generate(ctx context.Context, prompt, systemPrompt string) (string, error) {
	p.called++
	p.lastCtx = prompt
	if p.genErr != nil {
		return "", p.genErr
	}
	return p.answer, nil
}

func (p *fakeChatProvider) Name() string { return "fake" }

// newTestEmbedder 创建使用 fake 后端的嵌入器。
func newTestEmbedder(provider *fakeEmbedProvider) *biz.Embedder {
	return biz.NewEmbedder(
		func() (llm.EmbeddingProvider, error) { return provider, nil },
		&biz.EmbedderConfig{Dimension: testDim, BatchSize: 32, Workers: 2},
	)
}

// seedDocument 直接在元数据存储中播种一篇文档及其块，返回文档 ID 与块 ID。
func seedDocument(t *testing.T, factory store.Factory, title string, chunkTexts []string) (int64, []int64) {
	t.Helper()
	ctx := context.Background()

	doc := &model.Document{
		Title:    title,
		Content:  "contenu de test",
		ChunkNum: len(chunkTexts),
	}
	require.NoError(t, factory.Documents().Create(ctx, doc))

	chunks := make([]*model.Chunk, len(chunkTexts))
	for i, text := range chunkTexts {
		chunks[i] = &model.Chunk{
			DocumentID: doc.ID,
			ChunkText:  text,
			ChunkIndex: i,
			ChunkSize:  len([]rune(text)),
		}
	}
	require.NoError(t, factory.Chunks().CreateBatch(ctx, chunks))

	chunkIDs := make([]int64, len(chunks))
	for i, c := range chunks {
		chunkIDs[i] = c.ID
	}
	return doc.ID, chunkIDs
}

func hitsForScores(ids []int64, scores []float32) []*store.VectorHit {
	hits := make([]*store.VectorHit, len(ids))
	for i := range ids {
		hits[i] = &store.VectorHit{ID: ids[i], Score: scores[i]}
	}
	return hits
}

func requireChunkCount(t *testing.T, factory store.Factory, want int64) {
	t.Helper()
	count, err := factory.Chunks().Count(context.Background())
	require.NoError(t, err)
	require.Equal(t, want, count, fmt.Sprintf("expected %d chunk rows", want))
}
