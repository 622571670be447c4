package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"racebet/internal/config"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Open 创建 Redis 客户端并检查连通性
func Open(cfg *config.RedisConfig, log *zap.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}

	log.Info("Redis 连接成功", zap.String("addr", client.Options().Addr))
	return client, nil
}

// JSONCache 以 JSON 编码存取任意值
type JSONCache struct {
	client *redis.Client
}

func NewJSONCache(client *redis.Client) *JSONCache {
	return &JSONCache{client: client}
}

// Get 命中返回 true；key 不存在返回 false, nil
func (c *JSONCache) Get(ctx context.Context, key string, dst interface{}) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("decode cache %s: %w", key, err)
	}
	return true, nil
}

func (c *JSONCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache %s: %w", key, err)
	}
	return c.client.Set(ctx, key, data, ttl).Err()
}
