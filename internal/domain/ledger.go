package domain

import "time"

type LedgerEntryType string

const (
	LedgerInitialCredit LedgerEntryType = "INITIAL_CREDIT"
	LedgerBetPlaced     LedgerEntryType = "BET_PLACED"
	LedgerBetWon        LedgerEntryType = "BET_WON"
	LedgerBetLost       LedgerEntryType = "BET_LOST"
)

func (t LedgerEntryType) Valid() bool {
	switch t {
	case LedgerInitialCredit, LedgerBetPlaced, LedgerBetWon, LedgerBetLost:
		return true
	}
	return false
}

// LedgerEntry 账户流水，只追加，不修改，不删除
//
// Amount 为带符号的分：BET_PLACED 为负，INITIAL_CREDIT / BET_WON 为正，BET_LOST 为 0。
type LedgerEntry struct {
	ID           int64
	AccountID    UserID
	Type         LedgerEntryType
	Amount       int64
	BalanceAfter Money
	ReferenceID  string
	CreatedAt    time.Time
}

func InitialCreditEntry(account *Account, now time.Time) *LedgerEntry {
	return &LedgerEntry{
		AccountID:    account.ID,
		Type:         LedgerInitialCredit,
		Amount:       account.Balance.Cents(),
		BalanceAfter: account.Balance,
		CreatedAt:    now,
	}
}

func BetPlacedEntry(bet *Bet, balanceAfter Money, now time.Time) *LedgerEntry {
	return &LedgerEntry{
		AccountID:    bet.AccountID,
		Type:         LedgerBetPlaced,
		Amount:       -bet.Stake.Cents(),
		BalanceAfter: balanceAfter,
		ReferenceID:  string(bet.ID),
		CreatedAt:    now,
	}
}

func BetWonEntry(bet *Bet, payout, balanceAfter Money, now time.Time) *LedgerEntry {
	return &LedgerEntry{
		AccountID:    bet.AccountID,
		Type:         LedgerBetWon,
		Amount:       payout.Cents(),
		BalanceAfter: balanceAfter,
		ReferenceID:  string(bet.ID),
		CreatedAt:    now,
	}
}

func BetLostEntry(bet *Bet, balanceAfter Money, now time.Time) *LedgerEntry {
	return &LedgerEntry{
		AccountID:    bet.AccountID,
		Type:         LedgerBetLost,
		Amount:       0,
		BalanceAfter: balanceAfter,
		ReferenceID:  string(bet.ID),
		CreatedAt:    now,
	}
}
