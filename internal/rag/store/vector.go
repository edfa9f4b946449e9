package store

import (
	"context"
)

// VectorRecord 表示向量存储中的一条记录。
// ID 与 Chunk 主键一一对应，payload 为检索期的元数据缓存。
type VectorRecord struct {
	// ID 记录 ID，与 Chunk 主键相同。
	ID int64
	// DocumentID 所属文档 ID。
	DocumentID int64
	// ChunkIndex 块在文档内的序号。
	ChunkIndex int64
	// Excerpt 块文本摘录。
	Excerpt string
	// Embedding 嵌入向量。
	Embedding []float32
}

// VectorHit 表示一条相似度检索结果。
type VectorHit struct {
	// ID 记录 ID。
	ID int64
	// Score 相似度分数。
	Score float32
}

// VectorStore 定义向量存储接口。
type VectorStore interface {
	// EnsureCollection 确保集合存在，维度在创建后不可变更。
	EnsureCollection(ctx context.Context, dimension int) error

	// Upsert 按 ID 写入记录，重复写入同一 ID 为幂等替换。
	Upsert(ctx context.Context, records []*VectorRecord) error

	// Search 向量相似度搜索，按分数降序返回。
	Search(ctx context.Context, embedding []float32, topK int) ([]*VectorHit, error)

	// DeleteByIDs 按 ID 删除记录。
	DeleteByIDs(ctx context.Context, ids []int64) error

	// DeleteByDocument 删除某文档的全部记录。
	DeleteByDocument(ctx context.Context, documentID int64) error

	// Stats 返回集合中的记录总数。
	Stats(ctx context.Context) (int64, error)

	// Close 关闭连接。
	Close(ctx context.Context) error
}
