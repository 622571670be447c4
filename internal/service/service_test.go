package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"racebet/internal/config"
	"racebet/internal/domain"
	"racebet/internal/infrastructure/lock"
	"racebet/internal/infrastructure/provider"
	"racebet/internal/model"
	"racebet/internal/repository"
	"racebet/internal/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var raceEnd = time.Date(2023, 9, 3, 15, 0, 0, 0, time.UTC)

type fixture struct {
	db         *gorm.DB
	provider   *testutil.FakeProvider
	odds       *OddsCalculator
	bets       *BetService
	settlement *SettlementService
	accounts   *AccountService
	events     *EventService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cfg, err := config.Load("")
	require.NoError(t, err)

	db := testutil.NewDB(t)
	p := testutil.NewFakeProvider()
	p.AddSession(9158, raceEnd, 44, 1, 16)
	p.AddSession(9999, time.Time{}, 44, 1)
	p.AddSession(7000, raceEnd.Add(48*time.Hour), 44, 1)

	locker := lock.NewRowSessionLocker()
	odds := NewOddsCalculator("test-seed")

	bets, err := NewBetService(db, p, locker, odds, cfg, zap.NewNop())
	require.NoError(t, err)

	settlement := NewSettlementService(db, p, locker, cfg, zap.NewNop())
	settlement.now = func() time.Time { return raceEnd.Add(time.Hour) }

	return &fixture{
		db:         db,
		provider:   p,
		odds:       odds,
		bets:       bets,
		settlement: settlement,
		accounts:   NewAccountService(db),
		events:     NewEventService(db, p, odds),
	}
}

func stake(t *testing.T, amount string) domain.Money {
	t.Helper()
	m, err := domain.StakeFromDecimal(decimal.RequireFromString(amount))
	require.NoError(t, err)
	return m
}

func (f *fixture) place(t *testing.T, user domain.UserID, session domain.SessionKey, driver domain.DriverNumber, amount, key string) (*PlaceBetResult, error) {
	t.Helper()
	return f.bets.PlaceBet(context.Background(), PlaceBetCommand{
		UserID:         user,
		SessionKey:     session,
		DriverNumber:   driver,
		Stake:          stake(t, amount),
		IdempotencyKey: key,
	})
}

func (f *fixture) assertReconciled(t *testing.T, user domain.UserID) {
	t.Helper()
	rec, err := f.accounts.Reconcile(context.Background(), user)
	require.NoError(t, err)
	assert.True(t, rec.Consistent(), "balance %d != ledger sum %d", rec.BalanceCents, rec.LedgerSumCents)
}

func TestPlaceAndSettleScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	odds := f.odds.Odds(9158, 44)

	res, err := f.place(t, "alice", 9158, 44, "25.00", "")
	require.NoError(t, err)
	assert.Equal(t, "75.00", res.Balance.String())
	assert.Equal(t, odds, res.Odds)
	assert.Equal(t, int64(2500)*int64(odds), res.PotentialWinnings.Cents())
	assert.Equal(t, domain.BetStatusPending, res.Status)

	out, err := f.settlement.Settle(ctx, SettleCommand{SessionKey: 9158, WinningDriver: 44})
	require.NoError(t, err)
	assert.Equal(t, 1, out.TotalBets)
	assert.Equal(t, 1, out.WinningBets)
	assert.Equal(t, int64(2500)*int64(odds), out.TotalPayout.Cents())

	view, err := f.accounts.GetAccount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 7500+int64(2500)*int64(odds), view.Account.Balance.Cents())
	require.Len(t, view.Bets, 1)
	assert.Equal(t, domain.BetStatusWon, view.Bets[0].Status)
	assert.NotNil(t, view.Bets[0].SettledAt)

	ledger, err := f.accounts.Ledger(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, ledger, 3)
	assert.Equal(t, domain.LedgerInitialCredit, ledger[0].Type)
	assert.Equal(t, int64(10000), ledger[0].Amount)
	assert.Equal(t, domain.LedgerBetPlaced, ledger[1].Type)
	assert.Equal(t, int64(-2500), ledger[1].Amount)
	assert.Equal(t, string(res.BetID), ledger[1].ReferenceID)
	assert.Equal(t, domain.LedgerBetWon, ledger[2].Type)
	assert.Equal(t, int64(2500)*int64(odds), ledger[2].Amount)

	f.assertReconciled(t, "alice")

	pending, err := repository.NewOutboxRepository(f.db).CountByStatus(ctx, model.OutboxStatusPending)
	require.NoError(t, err)
	assert.Equal(t, int64(2), pending)
}

func TestPlaceBetReplaysByIdempotencyKey(t *testing.T) {
	f := newFixture(t)
	key := "6f1c2b9e-7f5d-4c1a-9a57-2d1f0c3b4e5a"

	first, err := f.place(t, "alice", 9158, 44, "25.00", key)
	require.NoError(t, err)

	second, err := f.place(t, "alice", 9158, 44, "25.00", key)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// 之后的下注不影响重放结果中的余额
	_, err = f.place(t, "alice", 9158, 1, "10.00", "")
	require.NoError(t, err)

	third, err := f.place(t, "alice", 9158, 44, "25.00", key)
	require.NoError(t, err)
	assert.Equal(t, "75.00", third.Balance.String())

	ledger, err := f.accounts.Ledger(context.Background(), "alice")
	require.NoError(t, err)
	assert.Len(t, ledger, 3)
	f.assertReconciled(t, "alice")

	_, err = f.place(t, "mallory", 9158, 44, "25.00", key)
	assert.ErrorIs(t, err, domain.ErrIdempotencyConflict)
}

func TestPlaceBetValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.place(t, "alice", 1234, 44, "10.00", "")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	_, err = f.place(t, "alice", 9158, 99, "10.00", "")
	assert.ErrorIs(t, err, domain.ErrDriverNotInSession)

	f.provider.SetError(fmt.Errorf("%w: timeout", domain.ErrProviderUnavailable))
	_, err = f.place(t, "alice", 9158, 44, "10.00", "")
	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)

	// 校验失败不会创建账户
	_, err = f.accounts.GetAccount(context.Background(), "alice")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestPlaceBetInsufficientBalance(t *testing.T) {
	f := newFixture(t)

	_, err := f.place(t, "alice", 9158, 44, "100.01", "")
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	res, err := f.place(t, "alice", 9158, 44, "100.00", "")
	require.NoError(t, err)
	assert.True(t, res.Balance.IsZero())

	_, err = f.place(t, "alice", 9158, 44, "0.01", "")
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	f.assertReconciled(t, "alice")
}

func TestPlaceBetRejectedAfterSettlement(t *testing.T) {
	f := newFixture(t)

	_, err := f.settlement.Settle(context.Background(), SettleCommand{SessionKey: 9158, WinningDriver: 1})
	require.NoError(t, err)

	_, err = f.place(t, "alice", 9158, 44, "10.00", "")
	assert.ErrorIs(t, err, domain.ErrAlreadySettled)
}

func TestConcurrentPlacementsNeverOverdraw(t *testing.T) {
	f := newFixture(t)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		rejected  int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.place(t, "alice", 9158, 44, "20.00", "")
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
			} else if assert.ErrorIs(t, err, domain.ErrInsufficientBalance) {
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, successes)
	assert.Equal(t, 5, rejected)

	view, err := f.accounts.GetAccount(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, view.Account.Balance.IsZero())
	f.assertReconciled(t, "alice")

	ledger, err := f.accounts.Ledger(context.Background(), "alice")
	require.NoError(t, err)
	initial := 0
	for _, e := range ledger {
		if e.Type == domain.LedgerInitialCredit {
			initial++
		}
	}
	assert.Equal(t, 1, initial)
}

func TestSettleIsIdempotentAndRejectsDifferentWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.place(t, "alice", 9158, 44, "25.00", "")
	require.NoError(t, err)
	_, err = f.place(t, "bob", 9158, 1, "10.00", "")
	require.NoError(t, err)

	first, err := f.settlement.Settle(ctx, SettleCommand{SessionKey: 9158, WinningDriver: 44})
	require.NoError(t, err)

	aliceBefore, err := f.accounts.GetAccount(ctx, "alice")
	require.NoError(t, err)

	second, err := f.settlement.Settle(ctx, SettleCommand{SessionKey: 9158, WinningDriver: 44})
	require.NoError(t, err)
	assert.Equal(t, first, second)

	_, err = f.settlement.Settle(ctx, SettleCommand{SessionKey: 9158, WinningDriver: 1})
	assert.ErrorIs(t, err, domain.ErrAlreadySettled)

	aliceAfter, err := f.accounts.GetAccount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, aliceBefore.Account.Balance, aliceAfter.Account.Balance)

	ledger, err := f.accounts.Ledger(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, ledger, 3)
}

func TestSettleWithoutBets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.settlement.Settle(ctx, SettleCommand{SessionKey: 9158, WinningDriver: 16})
	require.NoError(t, err)
	assert.Equal(t, 0, res.TotalBets)
	assert.Equal(t, 0, res.WinningBets)
	assert.True(t, res.TotalPayout.IsZero())

	outcome, err := repository.NewOutcomeRepository(f.db).Get(ctx, nil, 9158)
	require.NoError(t, err)
	require.NotNil(t, outcome)
	assert.Equal(t, domain.DriverNumber(16), outcome.WinningDriver)
}

func TestSettleValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		cmd     SettleCommand
		wantErr error
	}{
		{name: "unknown session", cmd: SettleCommand{SessionKey: 1234, WinningDriver: 44}, wantErr: domain.ErrSessionNotFound},
		{name: "no end time", cmd: SettleCommand{SessionKey: 9999, WinningDriver: 44}, wantErr: domain.ErrEventNotEnded},
		{name: "ends in future", cmd: SettleCommand{SessionKey: 7000, WinningDriver: 44}, wantErr: domain.ErrEventNotEnded},
		{name: "driver not in session", cmd: SettleCommand{SessionKey: 9158, WinningDriver: 99}, wantErr: domain.ErrDriverNotInSession},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.settlement.Settle(ctx, tt.cmd)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	_, fresh := f.provider.Calls()
	assert.Equal(t, len(tests), fresh)
}

func TestSettleMultipleAccounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	users := []domain.UserID{"zoe", "Bob", "alice", "carol"}
	for i, u := range users {
		driver := domain.DriverNumber(44)
		if i%2 == 1 {
			driver = 1
		}
		_, err := f.place(t, u, 9158, driver, "10.00", "")
		require.NoError(t, err)
		_, err = f.place(t, u, 9158, 16, "5.00", "")
		require.NoError(t, err)
	}

	res, err := f.settlement.Settle(ctx, SettleCommand{SessionKey: 9158, WinningDriver: 44})
	require.NoError(t, err)
	assert.Equal(t, 8, res.TotalBets)
	assert.Equal(t, 2, res.WinningBets)
	assert.Equal(t, 2*1000*int64(f.odds.Odds(9158, 44)), res.TotalPayout.Cents())

	for _, u := range users {
		f.assertReconciled(t, u)
	}

	ledger, err := f.accounts.Ledger(ctx, "Bob")
	require.NoError(t, err)
	lost := 0
	for _, e := range ledger {
		if e.Type == domain.LedgerBetLost {
			lost++
			assert.Zero(t, e.Amount)
			assert.Equal(t, int64(8500), e.BalanceAfter.Cents())
		}
	}
	assert.Equal(t, 2, lost)
}

func TestOddsCalculatorDeterministic(t *testing.T) {
	a := NewOddsCalculator("seed-a")
	b := NewOddsCalculator("seed-a")
	c := NewOddsCalculator("seed-b")

	differs := false
	for d := domain.DriverNumber(1); d <= 99; d++ {
		o := a.Odds(9158, d)
		assert.Contains(t, []domain.Odds{2, 3, 4}, o)
		assert.Equal(t, o, b.Odds(9158, d))
		if o != c.Odds(9158, d) {
			differs = true
		}
	}
	assert.True(t, differs)
	assert.Len(t, a.SeedFingerprint(), 8)
	assert.NotContains(t, a.SeedFingerprint(), "seed")
}

func TestListEventsOddsMatchPlacement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.settlement.Settle(ctx, SettleCommand{SessionKey: 9158, WinningDriver: 44})
	require.NoError(t, err)

	events, err := f.events.ListEvents(ctx, provider.Query{Year: 2023}, true)
	require.NoError(t, err)
	require.Len(t, events, 3)

	for _, ev := range events {
		for _, d := range ev.Drivers {
			assert.Equal(t, f.odds.Odds(ev.Session.Key, d.Number), d.Odds)
		}
		if ev.Session.Key == 9158 {
			assert.True(t, ev.Settled)
			assert.Equal(t, domain.DriverNumber(44), ev.WinningDriver)
		} else {
			assert.False(t, ev.Settled)
		}
	}

	res, err := f.place(t, "alice", 9999, 1, "10.00", "")
	require.NoError(t, err)
	for _, ev := range events {
		if ev.Session.Key != 9999 {
			continue
		}
		for _, d := range ev.Drivers {
			if d.Number == 1 {
				assert.Equal(t, d.Odds, res.Odds)
			}
		}
	}
}

func TestConcurrentSettleSameWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.place(t, "alice", 9158, 44, "25.00", "")
	require.NoError(t, err)
	_, err = f.place(t, "bob", 9158, 1, "10.00", "")
	require.NoError(t, err)

	const n = 8
	var (
		wg      sync.WaitGroup
		results = make([]*domain.SettlementResult, n)
		errs    = make([]error, n)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.settlement.Settle(ctx, SettleCommand{SessionKey: 9158, WinningDriver: 44})
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0], results[i])
	}
	assert.Equal(t, 2, results[0].TotalBets)
	assert.Equal(t, 1, results[0].WinningBets)

	ledger, err := f.accounts.Ledger(ctx, "alice")
	require.NoError(t, err)
	won := 0
	for _, e := range ledger {
		if e.Type == domain.LedgerBetWon {
			won++
		}
	}
	assert.Equal(t, 1, won)
	f.assertReconciled(t, "alice")
	f.assertReconciled(t, "bob")

	var settled int64
	require.NoError(t, f.db.Model(&model.OutboxMessage{}).
		Where("event_type = ?", model.OutboxEventEventSettled).
		Count(&settled).Error)
	assert.Equal(t, int64(1), settled)
}

func TestConcurrentSettleDifferentWinners(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.place(t, "alice", 9158, 44, "25.00", "")
	require.NoError(t, err)

	winners := []domain.DriverNumber{44, 1, 16}
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		rejected  int
	)
	for _, w := range winners {
		wg.Add(1)
		go func(w domain.DriverNumber) {
			defer wg.Done()
			_, err := f.settlement.Settle(ctx, SettleCommand{SessionKey: 9158, WinningDriver: w})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
			} else if assert.ErrorIs(t, err, domain.ErrAlreadySettled) {
				rejected++
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, len(winners)-1, rejected)

	ledger, err := f.accounts.Ledger(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, ledger, 3)
	f.assertReconciled(t, "alice")
}

func TestReconcileHoldsAccountLock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.place(t, "alice", 9158, 44, "25.00", "")
	require.NoError(t, err)

	// 账户行读出后立即发起一笔下注，它必须等对账事务结束才能落库
	var (
		once   sync.Once
		placed = make(chan error, 1)
	)
	require.NoError(t, f.db.Callback().Query().After("gorm:query").Register("test:place_during_reconcile", func(tx *gorm.DB) {
		if tx.Statement.Table != "accounts" {
			return
		}
		once.Do(func() {
			go func() {
				_, err := f.place(t, "alice", 9158, 1, "10.00", "")
				placed <- err
			}()
			time.Sleep(100 * time.Millisecond)
		})
	}))

	rec, err := f.accounts.Reconcile(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, rec.Consistent(), "balance %d != ledger sum %d", rec.BalanceCents, rec.LedgerSumCents)
	assert.Equal(t, int64(7500), rec.BalanceCents)

	select {
	case err := <-placed:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("placement did not finish")
	}

	rec, err = f.accounts.Reconcile(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, rec.Consistent())
	assert.Equal(t, int64(6500), rec.BalanceCents)
}
