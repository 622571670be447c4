package repository

import (
	"errors"
	"fmt"

	"racebet/internal/domain"
	"racebet/internal/model"
)

// ============================================================================
// 领域对象 <-> 表记录 映射
// ============================================================================
//
// toXxx 方向只在数据库内容违反领域约束时返回 ErrCorruptRow，其余均为纯函数。

var ErrCorruptRow = errors.New("stored row violates domain invariant")

func corrupt(table string, id interface{}, err error) error {
	return fmt.Errorf("%w: %s[%v]: %v", ErrCorruptRow, table, id, err)
}

func toAccount(row *model.Account) (*domain.Account, error) {
	balance, err := domain.MoneyFromCents(row.BalanceMinor)
	if err != nil {
		return nil, corrupt("accounts", row.ID, err)
	}
	return &domain.Account{
		ID:        domain.UserID(row.ID),
		Balance:   balance,
		CreatedAt: row.CreatedAt,
	}, nil
}

func fromAccount(a *domain.Account) *model.Account {
	return &model.Account{
		ID:           string(a.ID),
		BalanceMinor: a.Balance.Cents(),
		CreatedAt:    a.CreatedAt,
	}
}

func toBet(row *model.Bet) (*domain.Bet, error) {
	stake, err := domain.StakeFromCents(row.StakeMinor)
	if err != nil {
		return nil, corrupt("bets", row.ID, err)
	}
	odds, err := domain.OddsFromInt(row.Odds)
	if err != nil {
		return nil, corrupt("bets", row.ID, err)
	}
	status, err := domain.ParseBetStatus(row.Status)
	if err != nil {
		return nil, corrupt("bets", row.ID, err)
	}
	bet := &domain.Bet{
		ID:           domain.BetID(row.ID),
		AccountID:    domain.UserID(row.AccountID),
		SessionKey:   domain.SessionKey(row.SessionKey),
		DriverNumber: domain.DriverNumber(row.DriverNumber),
		Stake:        stake,
		Odds:         odds,
		Status:       status,
		CreatedAt:    row.CreatedAt,
		SettledAt:    row.SettledAt,
	}
	if row.IdempotencyKey != nil {
		bet.IdempotencyKey = *row.IdempotencyKey
	}
	return bet, nil
}

func fromBet(b *domain.Bet) *model.Bet {
	return &model.Bet{
		ID:             string(b.ID),
		AccountID:      string(b.AccountID),
		SessionKey:     int64(b.SessionKey),
		DriverNumber:   int(b.DriverNumber),
		StakeMinor:     b.Stake.Cents(),
		Odds:           b.Odds.Int(),
		Status:         string(b.Status),
		CreatedAt:      b.CreatedAt,
		SettledAt:      b.SettledAt,
		IdempotencyKey: optionalString(b.IdempotencyKey),
	}
}

func toLedgerEntry(row *model.LedgerEntry) (*domain.LedgerEntry, error) {
	balanceAfter, err := domain.MoneyFromCents(row.BalanceAfterMinor)
	if err != nil {
		return nil, corrupt("ledger_entries", row.ID, err)
	}
	entryType := domain.LedgerEntryType(row.EntryType)
	if !entryType.Valid() {
		return nil, corrupt("ledger_entries", row.ID, fmt.Errorf("unknown entry type %q", row.EntryType))
	}
	entry := &domain.LedgerEntry{
		ID:           row.ID,
		AccountID:    domain.UserID(row.AccountID),
		Type:         entryType,
		Amount:       row.AmountMinor,
		BalanceAfter: balanceAfter,
		CreatedAt:    row.CreatedAt,
	}
	if row.ReferenceID != nil {
		entry.ReferenceID = *row.ReferenceID
	}
	return entry, nil
}

func fromLedgerEntry(e *domain.LedgerEntry) *model.LedgerEntry {
	return &model.LedgerEntry{
		ID:                e.ID,
		AccountID:         string(e.AccountID),
		EntryType:         string(e.Type),
		AmountMinor:       e.Amount,
		BalanceAfterMinor: e.BalanceAfter.Cents(),
		ReferenceID:       optionalString(e.ReferenceID),
		CreatedAt:         e.CreatedAt,
	}
}

func toOutcome(row *model.EventOutcome) *domain.EventOutcome {
	return &domain.EventOutcome{
		SessionKey:    domain.SessionKey(row.SessionKey),
		WinningDriver: domain.DriverNumber(row.WinningDriverNumber),
		SettledAt:     row.SettledAt,
	}
}

func fromOutcome(o *domain.EventOutcome) *model.EventOutcome {
	return &model.EventOutcome{
		SessionKey:          int64(o.SessionKey),
		WinningDriverNumber: int(o.WinningDriver),
		SettledAt:           o.SettledAt,
	}
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
