package store

import (
	"context"

	"gorm.io/gorm"

	"github.com/sidi-cnm/supnum-backend/internal/model"
)

type chunks struct {
	db *gorm.DB
}

func newChunks(db *gorm.DB) *chunks {
	return &chunks{db}
}

// CreateBatch inserts chunk rows in one statement and backfills
// the generated ids into the given slice.
func (c *chunks) CreateBatch(ctx context.Context, list []*model.Chunk) error {
	if len(list) == 0 {
		return nil
	}
	return c.db.WithContext(ctx).Create(&list).Error
}

// GetByIDs retrieves chunks by a set of ids in a single lookup.
// Missing ids are simply absent from the result.
func (c *chunks) GetByIDs(ctx context.Context, ids []int64) ([]*model.Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var list []*model.Chunk
	if err := c.db.WithContext(ctx).Where("id IN ?", ids).Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// ListByDocument retrieves all chunks of a document ordered by chunk_index.
func (c *chunks) ListByDocument(ctx context.Context, documentID int64) ([]*model.Chunk, error) {
	var list []*model.Chunk
	if err := c.db.WithContext(ctx).Where("document_id = ?", documentID).Order("chunk_index ASC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// IDsByDocument retrieves the chunk ids of a document ordered by chunk_index.
func (c *chunks) IDsByDocument(ctx context.Context, documentID int64) ([]int64, error) {
	var ids []int64
	if err := c.db.WithContext(ctx).Model(&model.Chunk{}).
		Where("document_id = ?", documentID).
		Order("chunk_index ASC").
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// DeleteByDocument deletes all chunks of a document.
func (c *chunks) DeleteByDocument(ctx context.Context, documentID int64) error {
	return c.db.WithContext(ctx).Where("document_id = ?", documentID).Delete(&model.Chunk{}).Error
}

// Count returns the total number of chunks.
func (c *chunks) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := c.db.WithContext(ctx).Model(&model.Chunk{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
