package model

import (
	"time"
)

// LedgerEntry 账户流水表
//
// 【流水表设计原则】
// 1. 只追加，不修改，不删除
// 2. 记录变动后余额，对账时 balance_minor == SUM(amount_minor)
// 3. ID 使用雪花算法生成，按 ID 排序即为写入顺序
type LedgerEntry struct {
	ID                int64     `gorm:"primaryKey;autoIncrement:false" json:"id"`
	AccountID         string    `gorm:"type:varchar(100);index;not null" json:"account_id"`
	EntryType         string    `gorm:"type:varchar(20);not null" json:"entry_type"`
	AmountMinor       int64     `gorm:"column:amount_minor;not null" json:"amount_minor"`
	BalanceAfterMinor int64     `gorm:"column:balance_after_minor;not null" json:"balance_after_minor"`
	ReferenceID       *string   `gorm:"type:varchar(64);index" json:"reference_id"`
	CreatedAt         time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (LedgerEntry) TableName() string {
	return "ledger_entries"
}
