package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"racebet/internal/domain"
	"racebet/internal/metrics"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Cache 场次数据缓存，值以 JSON 存储
type Cache interface {
	Get(ctx context.Context, key string, dst interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

type ResilientConfig struct {
	CacheTTL        time.Duration
	MaxAttempts     int
	InitialBackoff  time.Duration
	BreakerFailures int
	BreakerOpen     time.Duration
}

// Resilient 在数据源外层依次加上：缓存 -> 熔断 -> 重试
//
// 调用失败（含熔断打开）时回退到缓存中的旧数据，没有缓存才返回 ErrProviderUnavailable。
// 场次不存在是正常结果，会被缓存，不计入熔断失败次数。
type Resilient struct {
	inner    SessionProvider
	cache    Cache
	cacheTTL time.Duration
	breaker  *gobreaker.CircuitBreaker
	retry    *RetryPolicy
	log      *zap.Logger
}

func NewResilient(inner SessionProvider, cache Cache, cfg ResilientConfig, log *zap.Logger) *Resilient {
	failures := uint32(cfg.BreakerFailures)
	if failures == 0 {
		failures = 5
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "openf1",
		MaxRequests: 1,
		Timeout:     cfg.BreakerOpen,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("熔断器状态变化", zap.String("name", name),
				zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})

	return &Resilient{
		inner:    inner,
		cache:    cache,
		cacheTTL: cfg.CacheTTL,
		breaker:  breaker,
		retry:    NewRetryPolicy(cfg.MaxAttempts, cfg.InitialBackoff),
		log:      log,
	}
}

type cachedSession struct {
	Found   bool     `json:"found"`
	Session *Session `json:"session,omitempty"`
}

func (e cachedSession) result(key domain.SessionKey) (*Session, error) {
	if !e.Found || e.Session == nil {
		return nil, fmt.Errorf("%w: %d", domain.ErrSessionNotFound, key)
	}
	return e.Session, nil
}

func (p *Resilient) Session(ctx context.Context, key domain.SessionKey, fresh bool) (*Session, error) {
	cacheKey := fmt.Sprintf("racebet:provider:session:%d", key)

	if !fresh {
		var entry cachedSession
		if p.readCache(ctx, cacheKey, &entry) {
			return entry.result(key)
		}
	}

	var entry cachedSession
	err := p.call(ctx, "session", func(ctx context.Context) error {
		s, err := p.inner.Session(ctx, key, true)
		if errors.Is(err, domain.ErrSessionNotFound) {
			entry = cachedSession{Found: false}
			return nil
		}
		if err != nil {
			return err
		}
		entry = cachedSession{Found: true, Session: s}
		return nil
	})
	if err != nil {
		var stale cachedSession
		if p.readCache(ctx, cacheKey, &stale) {
			p.log.Info("数据源不可用，返回缓存数据", zap.Int64("session_key", int64(key)), zap.Error(err))
			return stale.result(key)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}

	if !fresh {
		p.writeCache(ctx, cacheKey, entry)
	}
	return entry.result(key)
}

func (p *Resilient) Sessions(ctx context.Context, q Query, fresh bool) ([]Session, error) {
	cacheKey := "racebet:provider:sessions:" + q.cacheKey()

	if !fresh {
		var cached []Session
		if p.readCache(ctx, cacheKey, &cached) {
			return cached, nil
		}
	}

	var sessions []Session
	err := p.call(ctx, "sessions", func(ctx context.Context) error {
		var err error
		sessions, err = p.inner.Sessions(ctx, q, true)
		return err
	})
	if err != nil {
		var stale []Session
		if p.readCache(ctx, cacheKey, &stale) {
			p.log.Info("数据源不可用，返回缓存的场次列表", zap.String("query", q.cacheKey()), zap.Error(err))
			return stale, nil
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}

	if !fresh {
		if allHaveDrivers(sessions) {
			p.writeCache(ctx, cacheKey, sessions)
		} else {
			p.log.Warn("部分场次没有车手数据，不写缓存", zap.String("query", q.cacheKey()))
		}
	}
	return sessions, nil
}

func (p *Resilient) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	_, err := p.breaker.Execute(func() (interface{}, error) {
		return nil, p.retry.Execute(ctx, fn)
	})
	metrics.RecordProviderCall(op, err)
	return err
}

func (p *Resilient) readCache(ctx context.Context, key string, dst interface{}) bool {
	if p.cache == nil {
		return false
	}
	ok, err := p.cache.Get(ctx, key, dst)
	if err != nil {
		p.log.Warn("读取缓存失败", zap.String("key", key), zap.Error(err))
		return false
	}
	return ok
}

func (p *Resilient) writeCache(ctx context.Context, key string, value interface{}) {
	if p.cache == nil || p.cacheTTL <= 0 {
		return
	}
	if err := p.cache.Set(ctx, key, value, p.cacheTTL); err != nil {
		p.log.Warn("写入缓存失败", zap.String("key", key), zap.Error(err))
	}
}

func allHaveDrivers(sessions []Session) bool {
	for _, s := range sessions {
		if len(s.Drivers) == 0 {
			return false
		}
	}
	return true
}
