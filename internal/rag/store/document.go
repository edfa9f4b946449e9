package store

import (
	"context"

	"gorm.io/gorm"

	"github.com/sidi-cnm/supnum-backend/internal/model"
)

type documents struct {
	db *gorm.DB
}

func newDocuments(db *gorm.DB) *documents {
	return &documents{db}
}

// Create creates a new document.
func (d *documents) Create(ctx context.Context, doc *model.Document) error {
	return d.db.WithContext(ctx).Create(doc).Error
}

// Update updates an existing document.
func (d *documents) Update(ctx context.Context, doc *model.Document) error {
	return d.db.WithContext(ctx).Save(doc).Error
}

// Delete deletes a document by id.
func (d *documents) Delete(ctx context.Context, id int64) error {
	return d.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Document{}).Error
}

// Get retrieves a document by id.
func (d *documents) Get(ctx context.Context, id int64) (*model.Document, error) {
	var doc model.Document
	if err := d.db.WithContext(ctx).Where("id = ?", id).First(&doc).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

// List lists documents with pagination, newest first.
func (d *documents) List(ctx context.Context, offset, limit int) (int64, []*model.Document, error) {
	var count int64
	var docs []*model.Document

	if err := d.db.WithContext(ctx).Model(&model.Document{}).Count(&count).Error; err != nil {
		return 0, nil, err
	}

	if err := d.db.WithContext(ctx).Order("created_at DESC").Offset(offset).Limit(limit).Find(&docs).Error; err != nil {
		return 0, nil, err
	}

	return count, docs, nil
}
