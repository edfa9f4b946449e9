// Package metadb provides the relational metadata database client.
// It supports PostgreSQL for production, MySQL as an alternative, and
// pure-Go SQLite for development and tests.
package metadb

import (
	"context"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	mysqldriver "gorm.io/driver/mysql"
	postgresdriver "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/sidi-cnm/supnum-backend/pkg/options/metadb"
)

// Client wraps gorm.DB and provides a metadata database client.
type Client struct {
	db   *gorm.DB
	opts *metadb.Options
}

// New creates a new metadata database client from the provided options.
func New(opts *metadb.Options) (*Client, error) {
	return NewWithContext(context.Background(), opts)
}

// NewWithContext creates a new metadata database client with the given context.
func NewWithContext(ctx context.Context, opts *metadb.Options) (*Client, error) {
	if opts == nil {
		return nil, fmt.Errorf("metadb options cannot be nil")
	}
	if errs := opts.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid metadb options: %v", errs)
	}

	dialector, err := buildDialector(opts)
	if err != nil {
		return nil, err
	}

	logLevel := gormlogger.Silent
	switch opts.LogLevel {
	case 2:
		logLevel = gormlogger.Error
	case 3:
		logLevel = gormlogger.Warn
	case 4:
		logLevel = gormlogger.Info
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(logLevel),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", opts.Driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(opts.MaxIdleConnections)
	sqlDB.SetMaxOpenConns(opts.MaxOpenConnections)
	sqlDB.SetConnMaxLifetime(opts.MaxConnectionLifeTime)

	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping %s: %w", opts.Driver, err)
	}

	return &Client{db: db, opts: opts}, nil
}

// buildDialector selects the gorm dialector for the configured driver.
func buildDialector(opts *metadb.Options) (gorm.Dialector, error) {
	switch opts.Driver {
	case metadb.DriverPostgres:
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
			opts.Host, opts.Port, opts.Username, opts.Password, opts.Database, opts.SSLMode)
		return postgresdriver.Open(dsn), nil
	case metadb.DriverMySQL:
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=true&loc=UTC",
			opts.Username, opts.Password, opts.Host, opts.Port, opts.Database)
		return mysqldriver.Open(dsn), nil
	case metadb.DriverSQLite:
		return sqlite.Open(opts.Path), nil
	default:
		return nil, fmt.Errorf("unsupported metadb driver: %s", opts.Driver)
	}
}

// DB returns the underlying gorm.DB.
func (c *Client) DB() *gorm.DB {
	return c.db
}

// AutoMigrate runs gorm auto-migration for the given models.
func (c *Client) AutoMigrate(models ...any) error {
	return c.db.AutoMigrate(models...)
}

// Ping verifies connectivity to the database.
func (c *Client) Ping(ctx context.Context) error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the database connection.
func (c *Client) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
