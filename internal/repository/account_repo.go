package repository

import (
	"context"
	"errors"

	"racebet/internal/domain"
	"racebet/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) conn(tx *gorm.DB) *gorm.DB {
	if tx == nil {
		return r.db
	}
	return tx
}

func (r *AccountRepository) Get(ctx context.Context, tx *gorm.DB, id domain.UserID) (*domain.Account, error) {
	var row model.Account
	err := r.conn(tx).WithContext(ctx).Where("id = ?", string(id)).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, err
	}
	return toAccount(&row)
}

// GetForUpdate SELECT ... FOR UPDATE，必须在事务内调用
func (r *AccountRepository) GetForUpdate(ctx context.Context, tx *gorm.DB, id domain.UserID) (*domain.Account, error) {
	var row model.Account
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", string(id)).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, err
	}
	return toAccount(&row)
}

// InsertIfAbsent 主键冲突时不做任何事，返回是否真正插入
// 并发首次下注时只有一个请求返回 true，由它写入 INITIAL_CREDIT 流水
func (r *AccountRepository) InsertIfAbsent(ctx context.Context, tx *gorm.DB, account *domain.Account) (bool, error) {
	result := r.conn(tx).WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoNothing: true,
		}).
		Create(fromAccount(account))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// UpdateBalance 写入锁定后计算出的新余额
func (r *AccountRepository) UpdateBalance(ctx context.Context, tx *gorm.DB, account *domain.Account) error {
	result := r.conn(tx).WithContext(ctx).
		Model(&model.Account{}).
		Where("id = ?", string(account.ID)).
		Updates(map[string]interface{}{
			"balance_minor": account.Balance.Cents(),
			"version":       gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

// ListIDs 按 ID 升序分页，after 为上一页最后一个 ID
func (r *AccountRepository) ListIDs(ctx context.Context, after domain.UserID, limit int) ([]domain.UserID, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&model.Account{}).
		Where("id > ?", string(after)).
		Order("id ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.UserID, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.UserID(id))
	}
	return out, nil
}
