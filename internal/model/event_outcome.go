package model

import (
	"time"
)

// EventOutcome 场次结果表，session_key 主键保证每场只结算一次
type EventOutcome struct {
	SessionKey          int64     `gorm:"primaryKey;autoIncrement:false" json:"session_key"`
	WinningDriverNumber int       `gorm:"not null" json:"winning_driver_number"`
	SettledAt           time.Time `gorm:"not null" json:"settled_at"`
}

func (EventOutcome) TableName() string {
	return "event_outcomes"
}
