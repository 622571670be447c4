package lock

import (
	"context"
	"fmt"

	"racebet/internal/domain"
	"racebet/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ============================================================================
// 场次锁
// ============================================================================
//
// 下注和结算都要先拿到同一场次的锁，保证二者严格串行：
//   - 结算开始后不会再有新注单落库
//   - 结算不会在注单写入一半时执行
//
// 【实现】session_locks 表每个场次一行：
//   INSERT ... ON CONFLICT DO NOTHING   保证行存在
//   SELECT ... FOR UPDATE               在当前事务内持有行锁
//
// 锁随事务提交或回滚自动释放，不提供显式 Unlock。
// 只在单库部署下成立，分库或多地域部署需要换成外部协调服务。
//
// ============================================================================

// SessionLocker 场次排他锁，必须在事务内、所有外部调用完成之后获取
type SessionLocker interface {
	WithExclusive(ctx context.Context, tx *gorm.DB, sessionKey domain.SessionKey, fn func() error) error
}

type RowSessionLocker struct{}

func NewRowSessionLocker() *RowSessionLocker {
	return &RowSessionLocker{}
}

// Acquire 阻塞直到拿到锁
func (l *RowSessionLocker) Acquire(ctx context.Context, tx *gorm.DB, sessionKey domain.SessionKey) error {
	err := tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_key"}},
			DoNothing: true,
		}).
		Create(&model.SessionLock{SessionKey: int64(sessionKey)}).Error
	if err != nil {
		return err
	}

	var row model.SessionLock
	return tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("session_key = ?", int64(sessionKey)).
		First(&row).Error
}

func (l *RowSessionLocker) WithExclusive(ctx context.Context, tx *gorm.DB, sessionKey domain.SessionKey, fn func() error) error {
	if err := l.Acquire(ctx, tx, sessionKey); err != nil {
		return fmt.Errorf("获取场次锁失败: session=%d: %w", sessionKey, err)
	}
	return fn()
}
