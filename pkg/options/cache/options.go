// Package cache provides query cache configuration options.
package cache

import (
	"time"

	"github.com/spf13/pflag"

	redisopts "github.com/sidi-cnm/supnum-backend/pkg/options/redis"
)

// Options 查询缓存配置。
type Options struct {
	// Enabled 是否启用缓存。
	Enabled bool `json:"enabled" mapstructure:"enabled"`

	// TTL 缓存过期时间。
	TTL time.Duration `json:"ttl" mapstructure:"ttl"`

	// KeyPrefix 缓存键前缀。
	KeyPrefix string `json:"key-prefix" mapstructure:"key-prefix"`

	// Redis Redis 连接配置。
	Redis *redisopts.Options `json:"redis" mapstructure:"redis"`
}

// NewOptions 创建默认缓存配置。
func NewOptions() *Options {
	return &Options{
		Enabled:   false,
		TTL:       1 * time.Hour,
		KeyPrefix: "supnum:rag:",
		Redis:     redisopts.NewOptions(),
	}
}

// AddFlags adds flags for cache options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	fs.BoolVar(&o.Enabled, "cache.enabled", o.Enabled, "Enable the query cache")
	fs.DurationVar(&o.TTL, "cache.ttl", o.TTL, "Query cache TTL")
	fs.StringVar(&o.KeyPrefix, "cache.key-prefix", o.KeyPrefix, "Query cache key prefix")

	if o.Redis == nil {
		o.Redis = redisopts.NewOptions()
	}
	o.Redis.AddFlags(fs)
}

// Validate validates the cache options.
func (o *Options) Validate() error {
	if o == nil || !o.Enabled || o.Redis == nil {
		return nil
	}
	return o.Redis.Validate()
}

// Complete completes the cache options with defaults.
func (o *Options) Complete() error {
	if o.Redis == nil {
		o.Redis = redisopts.NewOptions()
	}
	return nil
}
