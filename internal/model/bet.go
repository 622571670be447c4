package model

import (
	"time"
)

type Bet struct {
	ID             string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	AccountID      string     `gorm:"type:varchar(100);index:idx_bets_account;not null" json:"account_id"`
	SessionKey     int64      `gorm:"index:idx_bets_session_status;not null" json:"session_key"`
	DriverNumber   int        `gorm:"not null" json:"driver_number"`
	StakeMinor     int64      `gorm:"column:stake_minor;not null" json:"stake_minor"`
	Odds           int        `gorm:"not null" json:"odds"`
	Status         string     `gorm:"type:varchar(16);index:idx_bets_session_status;not null" json:"status"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	SettledAt      *time.Time `json:"settled_at"`
	IdempotencyKey *string    `gorm:"type:varchar(36);uniqueIndex" json:"idempotency_key"` // 为空时不参与唯一约束
}

func (Bet) TableName() string {
	return "bets"
}
