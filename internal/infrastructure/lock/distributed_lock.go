package lock

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
)

// ============================================================================
// Redis 分布式锁
// ============================================================================
//
// 多副本部署时 OutboxSender 每个实例都会启动，用这把锁选出本轮负责投递的实例，
// 避免同一条消息被多个实例同时发送。
//
// 加锁：SET key value NX PX timeout
//   - value 为实例标识，释放时校验，防止误删其他实例的锁
//
// 释放锁：Lua 脚本保证"检查+删除"的原子性
//
// ============================================================================

var ErrLockFailed = errors.New("获取分布式锁失败")

var unlockScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

// DistributedLock 分布式锁
type DistributedLock struct {
	client     *redis.Client
	key        string
	value      string
	expiration time.Duration
}

func NewDistributedLock(client *redis.Client, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

// TryLock 非阻塞获取锁
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
}

// Lock 阻塞式获取锁（带重试）
func (l *DistributedLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		ok, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}
	return ErrLockFailed
}

// Unlock 只删除自己持有的锁，锁已过期或被他人持有时返回 false
func (l *DistributedLock) Unlock(ctx context.Context) (bool, error) {
	n, err := unlockScript.Run(ctx, l.client, []string{l.key}, l.value).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// NewOutboxLeaderLock 每轮投递前获取，过期时间需大于一轮投递耗时
func NewOutboxLeaderLock(client *redis.Client, instanceID string, expiration time.Duration) *DistributedLock {
	return NewDistributedLock(client, "racebet:lock:outbox-sender", instanceID, expiration)
}
