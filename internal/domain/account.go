package domain

import (
	"fmt"
	"time"
)

// InitialCreditCents 新账户首次下注时发放的初始额度（100.00）
const InitialCreditCents int64 = 10_000

// Account 用户账户聚合
// 余额只能由下注/结算在持有行锁的事务内修改，且始终等于该账户流水金额之和
type Account struct {
	ID        UserID
	Balance   Money
	CreatedAt time.Time
}

func NewAccount(id UserID, initial Money, now time.Time) *Account {
	return &Account{
		ID:        id,
		Balance:   initial,
		CreatedAt: now,
	}
}

func (a *Account) Debit(amount Money) error {
	balance, err := a.Balance.Sub(amount)
	if err != nil {
		return fmt.Errorf("account %s: %w", a.ID, err)
	}
	a.Balance = balance
	return nil
}

func (a *Account) Credit(amount Money) error {
	balance, err := a.Balance.Add(amount)
	if err != nil {
		return fmt.Errorf("account %s: %w", a.ID, err)
	}
	a.Balance = balance
	return nil
}
