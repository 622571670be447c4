package model

import (
	"time"
)

// SessionLock 场次锁表，每个 session 一行，只用于 SELECT ... FOR UPDATE
type SessionLock struct {
	SessionKey int64     `gorm:"primaryKey;autoIncrement:false" json:"session_key"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (SessionLock) TableName() string {
	return "session_locks"
}
