package domain

import "time"

// EventOutcome 场次的最终结果，每个 session 至多一条；存在即表示已结算
type EventOutcome struct {
	SessionKey    SessionKey
	WinningDriver DriverNumber
	SettledAt     time.Time
}

// SettlementResult 结算汇总
type SettlementResult struct {
	SessionKey    SessionKey
	WinningDriver DriverNumber
	TotalBets     int
	WinningBets   int
	TotalPayout   Money
}
