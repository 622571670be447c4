package model

import (
	"time"
)

const (
	IdempotencyStatusInProgress = "IN_PROGRESS"
	IdempotencyStatusCompleted  = "COMPLETED"
	IdempotencyStatusFailed     = "FAILED"
)

// IdempotencyKey 幂等记录表
// 主键即客户端传入的 Idempotency-Key，插入冲突说明同一个 key 的请求正在处理
type IdempotencyKey struct {
	Key             string    `gorm:"column:idempotency_key;primaryKey;type:varchar(36)" json:"key"`
	RequestorID     *string   `gorm:"type:varchar(100)" json:"requestor_id"`
	RequestHash     string    `gorm:"type:varchar(64);not null" json:"request_hash"`
	Status          string    `gorm:"type:varchar(20);not null" json:"status"`
	ResponsePayload *string   `gorm:"type:text" json:"response_payload"`
	ResponseStatus  *int      `json:"response_status"`
	CreatedAt       time.Time `gorm:"not null" json:"created_at"`
	ExpiresAt       time.Time `gorm:"index;not null" json:"expires_at"`
}

func (IdempotencyKey) TableName() string {
	return "idempotency_keys"
}
