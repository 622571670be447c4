package domain

import (
	"fmt"
	"time"
)

type BetStatus string

const (
	BetStatusPending BetStatus = "PENDING"
	BetStatusWon     BetStatus = "WON"
	BetStatusLost    BetStatus = "LOST"
)

// 状态只能单向流转：PENDING -> WON / PENDING -> LOST
var validBetTransitions = map[BetStatus][]BetStatus{
	BetStatusPending: {BetStatusWon, BetStatusLost},
	BetStatusWon:     {},
	BetStatusLost:    {},
}

func (s BetStatus) CanTransitionTo(target BetStatus) bool {
	for _, allowed := range validBetTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

func ParseBetStatus(v string) (BetStatus, error) {
	s := BetStatus(v)
	if _, ok := validBetTransitions[s]; !ok {
		return "", fmt.Errorf("unknown bet status %q", v)
	}
	return s, nil
}

type Bet struct {
	ID             BetID
	AccountID      UserID
	SessionKey     SessionKey
	DriverNumber   DriverNumber
	Stake          Money
	Odds           Odds
	Status         BetStatus
	CreatedAt      time.Time
	SettledAt      *time.Time
	IdempotencyKey string
}

func NewBet(accountID UserID, sessionKey SessionKey, driver DriverNumber, stake Money, odds Odds, idempotencyKey string, now time.Time) *Bet {
	return &Bet{
		ID:             NewBetID(),
		AccountID:      accountID,
		SessionKey:     sessionKey,
		DriverNumber:   driver,
		Stake:          stake,
		Odds:           odds,
		Status:         BetStatusPending,
		CreatedAt:      now,
		IdempotencyKey: idempotencyKey,
	}
}

func (b *Bet) IsPending() bool {
	return b.Status == BetStatusPending
}

// PotentialPayout stake * odds
func (b *Bet) PotentialPayout() (Money, error) {
	return b.Odds.Payout(b.Stake)
}

func (b *Bet) MarkWon(now time.Time) error {
	return b.transition(BetStatusWon, now)
}

func (b *Bet) MarkLost(now time.Time) error {
	return b.transition(BetStatusLost, now)
}

func (b *Bet) transition(target BetStatus, now time.Time) error {
	if !b.Status.CanTransitionTo(target) {
		return fmt.Errorf("%w: bet %s %s -> %s", ErrIllegalTransition, b.ID, b.Status, target)
	}
	b.Status = target
	b.SettledAt = &now
	return nil
}
