package store

import (
	"context"

	"gorm.io/gorm"

	"github.com/sidi-cnm/supnum-backend/internal/model"
)

type queryLogs struct {
	db *gorm.DB
}

func newQueryLogs(db *gorm.DB) *queryLogs {
	return &queryLogs{db}
}

// Create appends a query log entry.
func (q *queryLogs) Create(ctx context.Context, log *model.QueryLog) error {
	return q.db.WithContext(ctx).Create(log).Error
}

// List lists query logs with pagination, newest first.
func (q *queryLogs) List(ctx context.Context, offset, limit int) (int64, []*model.QueryLog, error) {
	var count int64
	var logs []*model.QueryLog

	if err := q.db.WithContext(ctx).Model(&model.QueryLog{}).Count(&count).Error; err != nil {
		return 0, nil, err
	}

	if err := q.db.WithContext(ctx).Order("created_at DESC").Offset(offset).Limit(limit).Find(&logs).Error; err != nil {
		return 0, nil, err
	}

	return count, logs, nil
}

// Count returns the total number of query logs.
func (q *queryLogs) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := q.db.WithContext(ctx).Model(&model.QueryLog{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
