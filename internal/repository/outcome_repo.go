package repository

import (
	"context"
	"errors"
	"fmt"

	"racebet/internal/domain"
	"racebet/internal/infrastructure/database"
	"racebet/internal/model"

	"gorm.io/gorm"
)

type OutcomeRepository struct {
	db *gorm.DB
}

func NewOutcomeRepository(db *gorm.DB) *OutcomeRepository {
	return &OutcomeRepository{db: db}
}

func (r *OutcomeRepository) conn(tx *gorm.DB) *gorm.DB {
	if tx == nil {
		return r.db
	}
	return tx
}

// Get 未结算返回 nil, nil
func (r *OutcomeRepository) Get(ctx context.Context, tx *gorm.DB, sessionKey domain.SessionKey) (*domain.EventOutcome, error) {
	var row model.EventOutcome
	err := r.conn(tx).WithContext(ctx).Where("session_key = ?", int64(sessionKey)).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return toOutcome(&row), nil
}

// Create 主键冲突说明并发结算已经写入，映射为 ErrAlreadySettled
func (r *OutcomeRepository) Create(ctx context.Context, tx *gorm.DB, outcome *domain.EventOutcome) error {
	err := r.conn(tx).WithContext(ctx).Create(fromOutcome(outcome)).Error
	if database.IsDuplicateKey(err) {
		return fmt.Errorf("%w: session %d", domain.ErrAlreadySettled, outcome.SessionKey)
	}
	return err
}
