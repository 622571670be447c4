package service

import (
	"context"

	"racebet/internal/domain"
	"racebet/internal/repository"

	"gorm.io/gorm"
)

type AccountService struct {
	db          *gorm.DB
	accountRepo *repository.AccountRepository
	betRepo     *repository.BetRepository
	ledgerRepo  *repository.LedgerRepository
}

func NewAccountService(db *gorm.DB) *AccountService {
	return &AccountService{
		db:          db,
		accountRepo: repository.NewAccountRepository(db),
		betRepo:     repository.NewBetRepository(db),
		ledgerRepo:  repository.NewLedgerRepository(db),
	}
}

type AccountView struct {
	Account *domain.Account
	Bets    []*domain.Bet
}

// GetAccount 账户不存在返回 domain.ErrAccountNotFound（首次下注才会创建）
func (s *AccountService) GetAccount(ctx context.Context, id domain.UserID) (*AccountView, error) {
	account, err := s.accountRepo.Get(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	bets, err := s.betRepo.ListByAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	return &AccountView{Account: account, Bets: bets}, nil
}

func (s *AccountService) Ledger(ctx context.Context, id domain.UserID) ([]*domain.LedgerEntry, error) {
	if _, err := s.accountRepo.Get(ctx, nil, id); err != nil {
		return nil, err
	}
	return s.ledgerRepo.ListByAccount(ctx, id)
}

type Reconciliation struct {
	BalanceCents   int64
	LedgerSumCents int64
}

func (r Reconciliation) Consistent() bool {
	return r.BalanceCents == r.LedgerSumCents
}

// Reconcile 对账：余额必须等于流水金额之和
//
// 与下注、结算一样先锁账户行，余额与流水求和在同一事务内读取。
func (s *AccountService) Reconcile(ctx context.Context, id domain.UserID) (Reconciliation, error) {
	var rec Reconciliation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		account, err := s.accountRepo.GetForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		sum, err := s.ledgerRepo.SumByAccount(ctx, tx, id)
		if err != nil {
			return err
		}
		rec = Reconciliation{BalanceCents: account.Balance.Cents(), LedgerSumCents: sum}
		return nil
	})
	if err != nil {
		return Reconciliation{}, err
	}
	return rec, nil
}
