package model

import (
	"time"
)

// Account 账户表
// balance_minor 以分为单位，只能在 SELECT ... FOR UPDATE 之后修改
type Account struct {
	ID           string    `gorm:"primaryKey;type:varchar(100)" json:"id"`
	BalanceMinor int64     `gorm:"column:balance_minor;not null;default:0" json:"balance_minor"`
	Version      int       `gorm:"not null;default:0" json:"version"` // 每次余额变动 +1，便于排查
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Account) TableName() string {
	return "accounts"
}
