package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"racebet/internal/domain"
	"racebet/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type BetRepository struct {
	db *gorm.DB
}

func NewBetRepository(db *gorm.DB) *BetRepository {
	return &BetRepository{db: db}
}

func (r *BetRepository) conn(tx *gorm.DB) *gorm.DB {
	if tx == nil {
		return r.db
	}
	return tx
}

func (r *BetRepository) Create(ctx context.Context, tx *gorm.DB, bet *domain.Bet) error {
	return r.conn(tx).WithContext(ctx).Create(fromBet(bet)).Error
}

// GetByIdempotencyKey 不存在时返回 nil, nil
func (r *BetRepository) GetByIdempotencyKey(ctx context.Context, key string) (*domain.Bet, error) {
	var row model.Bet
	err := r.db.WithContext(ctx).Where("idempotency_key = ?", key).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return toBet(&row)
}

// ListPendingForUpdate 锁定场次下所有 PENDING 注单，按 account_id 升序返回
//
// 结算时按这个顺序逐个锁账户，所有结算事务的加锁顺序一致，不会互相死锁。
// 数据库排序受 collation 影响，这里再按字节序稳定排序一次。
func (r *BetRepository) ListPendingForUpdate(ctx context.Context, tx *gorm.DB, sessionKey domain.SessionKey) ([]*domain.Bet, error) {
	var rows []*model.Bet
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("session_key = ? AND status = ?", int64(sessionKey), string(domain.BetStatusPending)).
		Order("account_id ASC").
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	bets, err := toBets(rows)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(bets, func(i, j int) bool {
		return bets[i].AccountID < bets[j].AccountID
	})
	return bets, nil
}

func (r *BetRepository) ListBySession(ctx context.Context, tx *gorm.DB, sessionKey domain.SessionKey) ([]*domain.Bet, error) {
	var rows []*model.Bet
	err := r.conn(tx).WithContext(ctx).
		Where("session_key = ?", int64(sessionKey)).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toBets(rows)
}

// ListByAccount 最新的在前
func (r *BetRepository) ListByAccount(ctx context.Context, accountID domain.UserID) ([]*domain.Bet, error) {
	var rows []*model.Bet
	err := r.db.WithContext(ctx).
		Where("account_id = ?", string(accountID)).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toBets(rows)
}

// SaveSettled 持久化结算后的状态，只允许从 PENDING 更新
func (r *BetRepository) SaveSettled(ctx context.Context, tx *gorm.DB, bets []*domain.Bet) error {
	for _, bet := range bets {
		result := r.conn(tx).WithContext(ctx).
			Model(&model.Bet{}).
			Where("id = ? AND status = ?", string(bet.ID), string(domain.BetStatusPending)).
			Updates(map[string]interface{}{
				"status":     string(bet.Status),
				"settled_at": bet.SettledAt,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: bet %s is no longer pending", domain.ErrIllegalTransition, bet.ID)
		}
	}
	return nil
}

func toBets(rows []*model.Bet) ([]*domain.Bet, error) {
	bets := make([]*domain.Bet, 0, len(rows))
	for _, row := range rows {
		bet, err := toBet(row)
		if err != nil {
			return nil, err
		}
		bets = append(bets, bet)
	}
	return bets, nil
}
