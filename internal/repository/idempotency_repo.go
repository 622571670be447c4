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

type IdempotencyRepository struct {
	db *gorm.DB
}

func NewIdempotencyRepository(db *gorm.DB) *IdempotencyRepository {
	return &IdempotencyRepository{db: db}
}

// Get 不存在返回 nil, nil
func (r *IdempotencyRepository) Get(ctx context.Context, key string) (*model.IdempotencyKey, error) {
	var rec model.IdempotencyKey
	err := r.db.WithContext(ctx).Where("idempotency_key = ?", key).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// Reserve 插入 IN_PROGRESS 记录，主键冲突映射为 ErrRequestInProgress
func (r *IdempotencyRepository) Reserve(ctx context.Context, rec *model.IdempotencyKey) error {
	err := r.db.WithContext(ctx).Create(rec).Error
	if database.IsDuplicateKey(err) {
		return fmt.Errorf("%w: key %s", domain.ErrRequestInProgress, rec.Key)
	}
	return err
}

func (r *IdempotencyRepository) Delete(ctx context.Context, key string) error {
	return r.db.WithContext(ctx).Where("idempotency_key = ?", key).Delete(&model.IdempotencyKey{}).Error
}

func (r *IdempotencyRepository) MarkCompleted(ctx context.Context, key string, status int, payload string) error {
	return r.finish(ctx, key, model.IdempotencyStatusCompleted, status, payload)
}

func (r *IdempotencyRepository) MarkFailed(ctx context.Context, key string, status int, payload string) error {
	return r.finish(ctx, key, model.IdempotencyStatusFailed, status, payload)
}

func (r *IdempotencyRepository) finish(ctx context.Context, key, state string, status int, payload string) error {
	result := r.db.WithContext(ctx).
		Model(&model.IdempotencyKey{}).
		Where("idempotency_key = ? AND status = ?", key, model.IdempotencyStatusInProgress).
		Updates(map[string]interface{}{
			"status":           state,
			"response_status":  status,
			"response_payload": payload,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("idempotency key %s is no longer in progress", key)
	}
	return nil
}
