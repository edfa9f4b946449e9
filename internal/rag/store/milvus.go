package store

import (
	"fmt"

	"context"

	"github.com/milvus-io/milvus/client/v2/entity"

	"github.com/sidi-cnm/supnum-backend/pkg/component/milvus"
	apierrors "github.com/sidi-cnm/supnum-backend/pkg/utils/errors"
)

// excerptMaxLen 是写入向量 payload 的摘录最大长度。
const excerptMaxLen = 512

// MilvusStore 实现基于 Milvus 的向量存储。
type MilvusStore struct {
	client     *milvus.Client
	collection string
}

var _ VectorStore = (*MilvusStore)(nil)

// NewMilvusStore 创建 Milvus 存储实例。
func NewMilvusStore(client *milvus.Client, collection string) *MilvusStore {
	return &MilvusStore{client: client, collection: collection}
}

// EnsureCollection 确保 Milvus 集合存在并已加载。
func (s *MilvusStore) EnsureCollection(ctx context.Context, dimension int) error {
	schema := &milvus.CollectionSchema{
		Name:        s.collection,
		Description: "SupNum knowledge base chunks",
		Dimension:   dimension,
		MetaFields: []milvus.MetaField{
			{Name: "document_id", DataType: entity.FieldTypeInt64},
			{Name: "chunk_index", DataType: entity.FieldTypeInt64},
			{Name: "excerpt", DataType: entity.FieldTypeVarChar, MaxLen: excerptMaxLen * 4},
		},
	}
	if err := s.client.EnsureCollection(ctx, schema); err != nil {
		return apierrors.ErrStoreUnavailable.WithCause(err)
	}
	return nil
}

// Upsert 按 Chunk ID 幂等写入向量记录。
func (s *MilvusStore) Upsert(ctx context.Context, records []*VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	data := &milvus.UpsertData{
		IDs:        make([]int64, len(records)),
		Embeddings: make([][]float32, len(records)),
		Metadata: map[string][]any{
			"document_id": make([]any, len(records)),
			"chunk_index": make([]any, len(records)),
			"excerpt":     make([]any, len(records)),
		},
	}

	for i, r := range records {
		data.IDs[i] = r.ID
		data.Embeddings[i] = r.Embedding
		data.Metadata["document_id"][i] = r.DocumentID
		data.Metadata["chunk_index"][i] = r.ChunkIndex
		data.Metadata["excerpt"][i] = truncateRunes(r.Excerpt, excerptMaxLen)
	}

	if err := s.client.Upsert(ctx, s.collection, data); err != nil {
		return apierrors.ErrStoreUnavailable.WithCause(err)
	}
	return nil
}

// Search 执行向量相似度搜索，仅返回 ID 与分数。
func (s *MilvusStore) Search(ctx context.Context, embedding []float32, topK int) ([]*VectorHit, error) {
	results, err := s.client.Search(ctx, s.collection, embedding, topK, nil)
	if err != nil {
		return nil, apierrors.ErrStoreUnavailable.WithCause(err)
	}

	hits := make([]*VectorHit, len(results))
	for i, r := range results {
		hits[i] = &VectorHit{ID: r.ID, Score: r.Score}
	}
	return hits, nil
}

// DeleteByIDs 按 ID 删除向量记录。
func (s *MilvusStore) DeleteByIDs(ctx context.Context, ids []int64) error {
	if err := s.client.DeleteByIDs(ctx, s.collection, ids); err != nil {
		return apierrors.ErrStoreUnavailable.WithCause(err)
	}
	return nil
}

// DeleteByDocument 删除某文档的全部向量记录。
func (s *MilvusStore) DeleteByDocument(ctx context.Context, documentID int64) error {
	expr := fmt.Sprintf("document_id == %d", documentID)
	if err := s.client.DeleteByExpr(ctx, s.collection, expr); err != nil {
		return apierrors.ErrStoreUnavailable.WithCause(err)
	}
	return nil
}

// Stats 返回集合中的记录总数。
func (s *MilvusStore) Stats(ctx context.Context) (int64, error) {
	count, err := s.client.GetCollectionStats(ctx, s.collection)
	if err != nil {
		return 0, apierrors.ErrStoreUnavailable.WithCause(err)
	}
	return count, nil
}

// Close 关闭 Milvus 连接。
func (s *MilvusStore) Close(ctx context.Context) error {
	return s.client.Close(ctx)
}

// truncateRunes 按 Unicode 字符数截断字符串。
func truncateRunes(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen])
}
