// Package metadb provides options for the relational metadata database.
package metadb

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/sidi-cnm/supnum-backend/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Supported database drivers.
const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite"
)

// Options defines configuration options for the metadata database.
type Options struct {
	// Driver selects the database backend (postgres, mysql, sqlite).
	Driver                string        `json:"driver" mapstructure:"driver"`
	Host                  string        `json:"host" mapstructure:"host"`
	Port                  int           `json:"port" mapstructure:"port"`
	Username              string        `json:"username" mapstructure:"username"`
	Password              string        `json:"password" mapstructure:"password"`
	Database              string        `json:"database" mapstructure:"database"`
	SSLMode               string        `json:"ssl-mode" mapstructure:"ssl-mode"`
	// Path is the database file path, used by the sqlite driver only.
	Path                  string        `json:"path" mapstructure:"path"`
	MaxIdleConnections    int           `json:"max-idle-connections" mapstructure:"max-idle-connections"`
	MaxOpenConnections    int           `json:"max-open-connections" mapstructure:"max-open-connections"`
	MaxConnectionLifeTime time.Duration `json:"max-connection-life-time" mapstructure:"max-connection-life-time"`
	LogLevel              int           `json:"log-level" mapstructure:"log-level"`
}

// NewOptions creates a new Options object with default values.
func NewOptions() *Options {
	return &Options{
		Driver:                DriverPostgres,
		Host:                  "127.0.0.1",
		Port:                  5432,
		Username:              "postgres",
		Password:              "",
		Database:              "supnum",
		SSLMode:               "disable",
		Path:                  "_output/supnum.db",
		MaxIdleConnections:    10,
		MaxOpenConnections:    100,
		MaxConnectionLifeTime: 10 * time.Second,
		LogLevel:              1, // Silent
	}
}

// AddFlags adds flags for metadata database options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Driver, options.Join(prefixes...)+"db.driver", o.Driver, "Database driver (postgres, mysql, sqlite).")
	fs.StringVar(&o.Host, options.Join(prefixes...)+"db.host", o.Host, "Database host.")
	fs.IntVar(&o.Port, options.Join(prefixes...)+"db.port", o.Port, "Database port.")
	fs.StringVar(&o.Username, options.Join(prefixes...)+"db.username", o.Username, "Database username.")
	fs.StringVar(&o.Password, options.Join(prefixes...)+"db.password", o.Password, "Database password.")
	fs.StringVar(&o.Database, options.Join(prefixes...)+"db.database", o.Database, "Database name.")
	fs.StringVar(&o.SSLMode, options.Join(prefixes...)+"db.ssl-mode", o.SSLMode, "SSL mode (postgres only).")
	fs.StringVar(&o.Path, options.Join(prefixes...)+"db.path", o.Path, "Database file path (sqlite only).")
	fs.IntVar(&o.MaxIdleConnections, options.Join(prefixes...)+"db.max-idle-connections", o.MaxIdleConnections, "Maximum idle connections.")
	fs.IntVar(&o.MaxOpenConnections, options.Join(prefixes...)+"db.max-open-connections", o.MaxOpenConnections, "Maximum open connections.")
	fs.DurationVar(&o.MaxConnectionLifeTime, options.Join(prefixes...)+"db.max-connection-life-time", o.MaxConnectionLifeTime, "Maximum connection lifetime.")
	fs.IntVar(&o.LogLevel, options.Join(prefixes...)+"db.log-level", o.LogLevel, "GORM log level (1=silent, 2=error, 3=warn, 4=info).")
}

// Validate checks if the options are valid.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	switch o.Driver {
	case DriverPostgres, DriverMySQL:
		if o.Database == "" {
			errs = append(errs, fmt.Errorf("db database name is required"))
		}
		if o.Host == "" {
			errs = append(errs, fmt.Errorf("db host is required"))
		}
	case DriverSQLite:
		if o.Path == "" {
			errs = append(errs, fmt.Errorf("db path is required for sqlite driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported db driver: %s", o.Driver))
	}
	return errs
}
