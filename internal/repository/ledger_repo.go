package repository

import (
	"context"
	"errors"

	"racebet/internal/domain"
	"racebet/internal/model"
	"racebet/pkg/idgen"

	"gorm.io/gorm"
)

type LedgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

func (r *LedgerRepository) conn(tx *gorm.DB) *gorm.DB {
	if tx == nil {
		return r.db
	}
	return tx
}

// Append 追加流水，ID 为空时用雪花算法分配
func (r *LedgerRepository) Append(ctx context.Context, tx *gorm.DB, entries ...*domain.LedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}
	rows := make([]*model.LedgerEntry, 0, len(entries))
	for _, e := range entries {
		if e.ID == 0 {
			e.ID = idgen.NextID()
		}
		rows = append(rows, fromLedgerEntry(e))
	}
	return r.conn(tx).WithContext(ctx).CreateInBatches(rows, 100).Error
}

// FindBetPlaced 查询某笔注单的扣款流水，不存在返回 nil, nil
func (r *LedgerRepository) FindBetPlaced(ctx context.Context, betID domain.BetID) (*domain.LedgerEntry, error) {
	var row model.LedgerEntry
	err := r.db.WithContext(ctx).
		Where("reference_id = ? AND entry_type = ?", string(betID), string(domain.LedgerBetPlaced)).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return toLedgerEntry(&row)
}

// ListByAccount 按写入顺序返回
func (r *LedgerRepository) ListByAccount(ctx context.Context, accountID domain.UserID) ([]*domain.LedgerEntry, error) {
	var rows []*model.LedgerEntry
	err := r.db.WithContext(ctx).
		Where("account_id = ?", string(accountID)).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	entries := make([]*domain.LedgerEntry, 0, len(rows))
	for _, row := range rows {
		e, err := toLedgerEntry(row)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (r *LedgerRepository) SumByAccount(ctx context.Context, tx *gorm.DB, accountID domain.UserID) (int64, error) {
	var sum int64
	err := r.conn(tx).WithContext(ctx).
		Model(&model.LedgerEntry{}).
		Where("account_id = ?", string(accountID)).
		Select("COALESCE(SUM(amount_minor), 0)").
		Scan(&sum).Error
	return sum, err
}
