package store

import (
	"context"

	"gorm.io/gorm"

	"github.com/sidi-cnm/supnum-backend/internal/model"
)

// datastore implements the Factory interface on top of gorm.
type datastore struct {
	db *gorm.DB
}

// NewFactory creates a metadata store factory from a gorm DB handle.
func NewFactory(db *gorm.DB) Factory {
	return &datastore{db: db}
}

// Documents returns the document store.
func (ds *datastore) Documents() DocumentStore {
	return newDocuments(ds.db)
}

// Chunks returns the chunk store.
func (ds *datastore) Chunks() ChunkStore {
	return newChunks(ds.db)
}

// QueryLogs returns the query log store.
func (ds *datastore) QueryLogs() QueryLogStore {
	return newQueryLogs(ds.db)
}

// TX runs fn inside a database transaction.
func (ds *datastore) TX(ctx context.Context, fn func(Factory) error) error {
	return ds.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&datastore{db: tx})
	})
}

// AutoMigrate migrates the database schema.
func (ds *datastore) AutoMigrate() error {
	return ds.db.AutoMigrate(
		&model.Document{},
		&model.Chunk{},
		&model.QueryLog{},
	)
}

// Close closes the factory and underlying connections.
func (ds *datastore) Close() error {
	sqlDB, err := ds.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
