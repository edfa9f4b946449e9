package store

import (
	"context"

	"github.com/sidi-cnm/supnum-backend/internal/model"
)

// Factory defines the factory interface for creating metadata stores.
type Factory interface {
	Documents() DocumentStore
	Chunks() ChunkStore
	QueryLogs() QueryLogStore

	// TX runs fn inside a database transaction. The Factory handed to fn
	// is bound to that transaction.
	TX(ctx context.Context, fn func(Factory) error) error

	AutoMigrate() error
	Close() error
}

// DocumentStore defines the document storage interface.
type DocumentStore interface {
	Create(ctx context.Context, doc *model.Document) error
	Update(ctx context.Context, doc *model.Document) error
	Delete(ctx context.Context, id int64) error
	Get(ctx context.Context, id int64) (*model.Document, error)
	List(ctx context.Context, offset, limit int) (int64, []*model.Document, error)
}

// ChunkStore defines the chunk storage interface.
type ChunkStore interface {
	CreateBatch(ctx context.Context, chunks []*model.Chunk) error
	GetByIDs(ctx context.Context, ids []int64) ([]*model.Chunk, error)
	ListByDocument(ctx context.Context, documentID int64) ([]*model.Chunk, error)
	IDsByDocument(ctx context.Context, documentID int64) ([]int64, error)
	DeleteByDocument(ctx context.Context, documentID int64) error
	Count(ctx context.Context) (int64, error)
}

// QueryLogStore defines the query log storage interface.
// Query logs are append-only; there is no update or delete.
type QueryLogStore interface {
	Create(ctx context.Context, log *model.QueryLog) error
	List(ctx context.Context, offset, limit int) (int64, []*model.QueryLog, error)
	Count(ctx context.Context) (int64, error)
}
