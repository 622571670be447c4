package idempotency

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"racebet/internal/config"
	"racebet/internal/domain"
	"racebet/internal/metrics"
	"racebet/internal/model"
	"racebet/internal/repository"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxKeyLength = 36

var keyPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// ValidateKey Idempotency-Key 必须是 UUID
func ValidateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("%w: Idempotency-Key header is required", domain.ErrInvalidInput)
	}
	if len(key) > maxKeyLength || !keyPattern.MatchString(key) {
		return fmt.Errorf("%w: Idempotency-Key must be a valid UUID (e.g., 550e8400-e29b-41d4-a716-446655440000)", domain.ErrInvalidInput)
	}
	return nil
}

// Request 一次受保护请求的身份
type Request struct {
	Key         string
	RequestorID string
	Hash        string
}

// Cached 已完成请求的缓存响应，原样返回给重放方
type Cached struct {
	Status  int
	Payload string
}

// Guard 幂等守卫
//
// Begin 返回 Cached 表示直接重放；返回 nil, nil 表示已占位，调用方执行业务后
// 调用 Complete 或 Fail。
type Guard struct {
	repo  *repository.IdempotencyRepository
	ttl   time.Duration
	stale time.Duration
	log   *zap.Logger
	now   func() time.Time
}

func NewGuard(db *gorm.DB, cfg config.IdempotencyConfig, log *zap.Logger) *Guard {
	return &Guard{
		repo:  repository.NewIdempotencyRepository(db),
		ttl:   cfg.TTL(),
		stale: cfg.StaleAfter(),
		log:   log,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (g *Guard) Begin(ctx context.Context, req Request) (*Cached, error) {
	existing, err := g.repo.Get(ctx, req.Key)
	if err != nil {
		return nil, fmt.Errorf("查询幂等记录失败: %w", err)
	}

	if existing != nil {
		cached, err := g.inspect(ctx, existing, req)
		if err != nil || cached != nil {
			return cached, err
		}
	}

	now := g.now()
	rec := &model.IdempotencyKey{
		Key:         req.Key,
		RequestHash: req.Hash,
		Status:      model.IdempotencyStatusInProgress,
		CreatedAt:   now,
		ExpiresAt:   now.Add(g.ttl),
	}
	if req.RequestorID != "" {
		requestor := req.RequestorID
		rec.RequestorID = &requestor
	}
	if err := g.repo.Reserve(ctx, rec); err != nil {
		// 并发占位失败，对外与 IN_PROGRESS 一致
		metrics.RecordIdempotency("in_progress")
		return nil, err
	}
	metrics.RecordIdempotency("reserved")
	return nil, nil
}

// inspect 处理已存在的记录；返回 nil, nil 表示旧记录已删除，可以重新占位
func (g *Guard) inspect(ctx context.Context, rec *model.IdempotencyKey, req Request) (*Cached, error) {
	now := g.now()

	switch {
	case rec.ExpiresAt.Before(now):
		g.log.Debug("幂等记录已过期，允许复用", zap.String("key", req.Key))
		return nil, g.reclaim(ctx, req.Key, "expired")

	case rec.Status == model.IdempotencyStatusInProgress:
		if rec.CreatedAt.Add(g.stale).Before(now) {
			g.log.Warn("幂等记录长时间处于处理中，视为失败",
				zap.String("key", req.Key),
				zap.Time("created_at", rec.CreatedAt),
			)
			return nil, g.reclaim(ctx, req.Key, "stale")
		}
		metrics.RecordIdempotency("in_progress")
		return nil, fmt.Errorf("%w: a request with this idempotency key is already being processed", domain.ErrRequestInProgress)

	case rec.Status == model.IdempotencyStatusFailed:
		if rec.RequestHash != req.Hash {
			metrics.RecordIdempotency("conflict")
			return nil, fmt.Errorf("%w: key already used with different request", domain.ErrIdempotencyConflict)
		}
		g.log.Debug("上次请求失败，允许重试", zap.String("key", req.Key))
		return nil, g.reclaim(ctx, req.Key, "retry")
	}

	if rec.RequestHash != req.Hash {
		metrics.RecordIdempotency("conflict")
		return nil, fmt.Errorf("%w: key already used with different request", domain.ErrIdempotencyConflict)
	}
	if req.RequestorID != "" && rec.RequestorID != nil && *rec.RequestorID != req.RequestorID {
		metrics.RecordIdempotency("conflict")
		return nil, fmt.Errorf("%w: key belongs to different user", domain.ErrIdempotencyConflict)
	}
	if rec.ResponseStatus == nil || rec.ResponsePayload == nil {
		return nil, fmt.Errorf("幂等记录 %s 缺少缓存响应", req.Key)
	}

	metrics.RecordIdempotency("replayed")
	return &Cached{Status: *rec.ResponseStatus, Payload: *rec.ResponsePayload}, nil
}

func (g *Guard) reclaim(ctx context.Context, key, reason string) error {
	if err := g.repo.Delete(ctx, key); err != nil {
		return fmt.Errorf("删除幂等记录失败: %w", err)
	}
	metrics.RecordIdempotency(reason)
	return nil
}

// Complete 响应已经发给客户端，这里失败只记日志
func (g *Guard) Complete(ctx context.Context, key string, status int, payload []byte) {
	if err := g.repo.MarkCompleted(ctx, key, status, string(payload)); err != nil {
		g.log.Error("保存幂等响应失败，该 key 的重放保护失效",
			zap.String("key", key),
			zap.Int("status", status),
			zap.Error(err),
		)
	}
}

// Fail 尽力标记失败，便于客户端用同一个 key 重试
func (g *Guard) Fail(ctx context.Context, key string, status int, payload []byte) {
	if err := g.repo.MarkFailed(ctx, key, status, string(payload)); err != nil {
		g.log.Warn("标记幂等记录失败状态出错", zap.String("key", key), zap.Error(err))
	}
}
