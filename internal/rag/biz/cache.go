package biz

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kart-io/logger"
	goredis "github.com/redis/go-redis/v9"
)

// QueryCacheConfig 查询缓存配置。
type QueryCacheConfig struct {
	// Enabled 是否启用缓存。
	Enabled bool
	// TTL 缓存过期时间。
	TTL time.Duration
	// KeyPrefix 缓存键前缀。
	KeyPrefix string
}

// QueryCache 查询结果缓存。
type QueryCache struct {
	redis  *goredis.Client
	config *QueryCacheConfig
}

// NewQueryCache 创建查询缓存实例。
func NewQueryCache(redis *goredis.Client, config *QueryCacheConfig) *QueryCache {
	if config == nil {
		config = &QueryCacheConfig{
			Enabled:   false,
			TTL:       1 * time.Hour,
			KeyPrefix: "supnum:query:",
		}
	}
	return &QueryCache{
		redis:  redis,
		config: config,
	}
}

// cacheKey 基于问题与检索参数生成缓存键（SHA256 哈希）。
// 检索参数参与哈希，避免不同 top-k/阈值共享同一条目。
func (c *QueryCache) cacheKey(question string, topK int, scoreThreshold float64, useContext bool) string {
	payload := fmt.Sprintf("%s|%d|%v|%v", question, topK, scoreThreshold, useContext)
	hash := sha256.Sum256([]byte(payload))
	return c.config.KeyPrefix + hex.EncodeToString(hash[:])
}

// Get 从缓存获取查询结果，未命中返回 (nil, nil)。
func (c *QueryCache) Get(ctx context.Context, question string, topK int, scoreThreshold float64, useContext bool) (*AskResult, error) {
	if !c.config.Enabled || c.redis == nil {
		return nil, nil
	}

	key := c.cacheKey(question, topK, scoreThreshold, useContext)

	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err == goredis.Nil {
			logger.Debugw("cache miss", "key", key)
			return nil, nil
		}
		logger.Warnw("failed to get from cache", "error", err.Error(), "key", key)
		return nil, err
	}

	var result AskResult
	if err := json.Unmarshal(data, &result); err != nil {
		logger.Warnw("failed to unmarshal cached result", "error", err.Error(), "key", key)
		// 删除损坏的缓存
		_ = c.redis.Del(ctx, key).Err()
		return nil, err
	}

	logger.Infow("cache hit", "key", key, "answer_length", len(result.Answer))
	return &result, nil
}

// Set 将查询结果写入缓存，失败仅记录告警。
func (c *QueryCache) Set(ctx context.Context, question string, topK int, scoreThreshold float64, useContext bool, result *AskResult) {
	if !c.config.Enabled || c.redis == nil {
		return
	}

	data, err := json.Marshal(result)
	if err != nil {
		logger.Warnw("failed to marshal result for cache", "error", err.Error())
		return
	}

	key := c.cacheKey(question, topK, scoreThreshold, useContext)
	if err := c.redis.Set(ctx, key, data, c.config.TTL).Err(); err != nil {
		logger.Warnw("failed to write cache", "error", err.Error(), "key", key)
	}
}
