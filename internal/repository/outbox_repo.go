package repository

import (
	"context"
	"unicode/utf8"

	"racebet/internal/model"
	"racebet/pkg/idgen"

	"gorm.io/gorm"
)

type OutboxRepository struct {
	db *gorm.DB
}

func NewOutboxRepository(db *gorm.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

func (r *OutboxRepository) Create(ctx context.Context, tx *gorm.DB, msg *model.OutboxMessage) error {
	if tx == nil {
		tx = r.db
	}
	if msg.ID == 0 {
		msg.ID = idgen.NextID()
	}
	if msg.Status == "" {
		msg.Status = model.OutboxStatusPending
	}
	return tx.WithContext(ctx).Create(msg).Error
}

func (r *OutboxRepository) GetPendingMessages(ctx context.Context, limit int) ([]*model.OutboxMessage, error) {
	var messages []*model.OutboxMessage
	err := r.db.WithContext(ctx).
		Where("status = ?", model.OutboxStatusPending).
		Order("id ASC").
		Limit(limit).
		Find(&messages).Error
	return messages, err
}

func (r *OutboxRepository) MarkSent(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).
		Model(&model.OutboxMessage{}).
		Where("id = ?", id).
		Update("status", model.OutboxStatusSent).Error
}

// RecordFailure 增加重试次数，达到上限后标记为 FAILED 不再投递
func (r *OutboxRepository) RecordFailure(ctx context.Context, msg *model.OutboxMessage, cause string, maxRetry int) (bool, error) {
	cause = truncateUTF8(cause, maxLastErrorBytes)
	giveUp := msg.RetryCount+1 >= maxRetry
	updates := map[string]interface{}{
		"retry_count": gorm.Expr("retry_count + 1"),
		"last_error":  cause,
	}
	if giveUp {
		updates["status"] = model.OutboxStatusFailed
	}
	err := r.db.WithContext(ctx).
		Model(&model.OutboxMessage{}).
		Where("id = ?", msg.ID).
		Updates(updates).Error
	return giveUp, err
}

const maxLastErrorBytes = 512

// truncateUTF8 按字节截断，回退到完整字符边界
func truncateUTF8(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

func (r *OutboxRepository) CountByStatus(ctx context.Context, status string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&model.OutboxMessage{}).
		Where("status = ?", status).
		Count(&n).Error
	return n, err
}
