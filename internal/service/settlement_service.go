package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"racebet/internal/config"
	"racebet/internal/domain"
	"racebet/internal/infrastructure/lock"
	"racebet/internal/infrastructure/provider"
	"racebet/internal/metrics"
	"racebet/internal/model"
	"racebet/internal/repository"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type SettleCommand struct {
	SessionKey    domain.SessionKey
	WinningDriver domain.DriverNumber
}

// SettlementService 结算
type SettlementService struct {
	db          *gorm.DB
	provider    provider.SessionProvider
	locker      lock.SessionLocker
	accountRepo *repository.AccountRepository
	betRepo     *repository.BetRepository
	ledgerRepo  *repository.LedgerRepository
	outcomeRepo *repository.OutcomeRepository
	outboxRepo  *repository.OutboxRepository
	topic       string
	log         *zap.Logger
	now         func() time.Time
}

func NewSettlementService(db *gorm.DB, p provider.SessionProvider, locker lock.SessionLocker, cfg *config.Config, log *zap.Logger) *SettlementService {
	return &SettlementService{
		db:          db,
		provider:    p,
		locker:      locker,
		accountRepo: repository.NewAccountRepository(db),
		betRepo:     repository.NewBetRepository(db),
		ledgerRepo:  repository.NewLedgerRepository(db),
		outcomeRepo: repository.NewOutcomeRepository(db),
		outboxRepo:  repository.NewOutboxRepository(db),
		topic:       cfg.Kafka.Topic.EventSettled,
		log:         log,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *SettlementService) Settle(ctx context.Context, cmd SettleCommand) (*domain.SettlementResult, error) {
	result, replayed, err := s.settle(ctx, cmd)
	switch {
	case err == nil && replayed:
		metrics.RecordSettlement("replayed", 0)
	case err == nil:
		metrics.RecordSettlement("settled", result.TotalPayout.Cents())
	case domain.IsBusiness(err):
		metrics.RecordSettlement("rejected", 0)
	default:
		metrics.RecordSettlement("error", 0)
	}
	return result, err
}

func (s *SettlementService) settle(ctx context.Context, cmd SettleCommand) (*domain.SettlementResult, bool, error) {
	// 资金决策必须使用最新数据，不走缓存
	session, err := s.provider.Session(ctx, cmd.SessionKey, true)
	if err != nil {
		return nil, false, err
	}
	if !session.EndedBy(s.now()) {
		return nil, false, fmt.Errorf("%w: session %d", domain.ErrEventNotEnded, cmd.SessionKey)
	}
	if !session.HasDriver(cmd.WinningDriver) {
		return nil, false, fmt.Errorf("%w: driver %d in session %d", domain.ErrDriverNotInSession, cmd.WinningDriver, cmd.SessionKey)
	}

	var (
		result   *domain.SettlementResult
		replayed bool
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.locker.WithExclusive(ctx, tx, cmd.SessionKey, func() error {
			existing, err := s.outcomeRepo.Get(ctx, tx, cmd.SessionKey)
			if err != nil {
				return fmt.Errorf("查询场次结果失败: %w", err)
			}
			if existing != nil {
				if existing.WinningDriver != cmd.WinningDriver {
					return fmt.Errorf("%w: session %d already settled with winner %d",
						domain.ErrAlreadySettled, cmd.SessionKey, existing.WinningDriver)
				}
				result, err = s.summarize(ctx, tx, existing)
				replayed = true
				return err
			}

			result, err = s.resolve(ctx, tx, cmd)
			return err
		})
	})
	if err != nil {
		return nil, false, err
	}

	if !replayed {
		s.log.Info("场次结算完成",
			zap.Int64("session_key", int64(result.SessionKey)),
			zap.Int("winning_driver", int(result.WinningDriver)),
			zap.Int("total_bets", result.TotalBets),
			zap.Int("winning_bets", result.WinningBets),
			zap.Int64("total_payout_cents", result.TotalPayout.Cents()),
		)
	}
	return result, replayed, nil
}

// resolve 在持有场次锁的事务内结算所有 PENDING 注单
func (s *SettlementService) resolve(ctx context.Context, tx *gorm.DB, cmd SettleCommand) (*domain.SettlementResult, error) {
	now := s.now()
	outcome := &domain.EventOutcome{
		SessionKey:    cmd.SessionKey,
		WinningDriver: cmd.WinningDriver,
		SettledAt:     now,
	}
	if err := s.outcomeRepo.Create(ctx, tx, outcome); err != nil {
		return nil, err
	}

	// 注单已按 account_id 升序排列，账户按同样顺序加锁
	bets, err := s.betRepo.ListPendingForUpdate(ctx, tx, cmd.SessionKey)
	if err != nil {
		return nil, fmt.Errorf("查询待结算注单失败: %w", err)
	}

	result := &domain.SettlementResult{
		SessionKey:    cmd.SessionKey,
		WinningDriver: cmd.WinningDriver,
		TotalPayout:   domain.ZeroMoney,
	}
	accounts := make(map[domain.UserID]*domain.Account)
	var (
		touched []*domain.Account
		settled []*domain.Bet
		entries []*domain.LedgerEntry
	)

	for _, bet := range bets {
		if !bet.IsPending() {
			s.log.Warn("注单状态不是 PENDING，跳过",
				zap.String("bet_id", string(bet.ID)), zap.String("status", string(bet.Status)))
			continue
		}

		account, ok := accounts[bet.AccountID]
		if !ok {
			account, err = s.accountRepo.GetForUpdate(ctx, tx, bet.AccountID)
			if err != nil {
				return nil, fmt.Errorf("锁定账户 %s 失败: %w", bet.AccountID, err)
			}
			accounts[bet.AccountID] = account
			touched = append(touched, account)
		}

		if bet.DriverNumber == cmd.WinningDriver {
			payout, err := bet.PotentialPayout()
			if err != nil {
				return nil, err
			}
			if err := bet.MarkWon(now); err != nil {
				return nil, err
			}
			if err := account.Credit(payout); err != nil {
				return nil, err
			}
			if result.TotalPayout, err = result.TotalPayout.Add(payout); err != nil {
				return nil, err
			}
			entries = append(entries, domain.BetWonEntry(bet, payout, account.Balance, now))
			result.WinningBets++
		} else {
			if err := bet.MarkLost(now); err != nil {
				return nil, err
			}
			entries = append(entries, domain.BetLostEntry(bet, account.Balance, now))
		}
		settled = append(settled, bet)
	}
	result.TotalBets = len(settled)

	if err := s.betRepo.SaveSettled(ctx, tx, settled); err != nil {
		return nil, fmt.Errorf("保存注单状态失败: %w", err)
	}
	for _, account := range touched {
		if err := s.accountRepo.UpdateBalance(ctx, tx, account); err != nil {
			return nil, fmt.Errorf("更新账户 %s 余额失败: %w", account.ID, err)
		}
	}
	if err := s.ledgerRepo.Append(ctx, tx, entries...); err != nil {
		return nil, fmt.Errorf("记录流水失败: %w", err)
	}
	if err := s.enqueue(ctx, tx, result, now); err != nil {
		return nil, err
	}
	return result, nil
}

// summarize 重复结算时根据已落库的注单重新汇总，不做任何修改
func (s *SettlementService) summarize(ctx context.Context, tx *gorm.DB, outcome *domain.EventOutcome) (*domain.SettlementResult, error) {
	bets, err := s.betRepo.ListBySession(ctx, tx, outcome.SessionKey)
	if err != nil {
		return nil, fmt.Errorf("查询场次注单失败: %w", err)
	}

	result := &domain.SettlementResult{
		SessionKey:    outcome.SessionKey,
		WinningDriver: outcome.WinningDriver,
		TotalBets:     len(bets),
		TotalPayout:   domain.ZeroMoney,
	}
	for _, bet := range bets {
		if bet.Status != domain.BetStatusWon {
			continue
		}
		payout, err := bet.PotentialPayout()
		if err != nil {
			return nil, err
		}
		if result.TotalPayout, err = result.TotalPayout.Add(payout); err != nil {
			return nil, err
		}
		result.WinningBets++
	}
	return result, nil
}

type eventSettledEvent struct {
	SessionKey       int64  `json:"session_key"`
	WinningDriver    int    `json:"winning_driver_number"`
	TotalBets        int    `json:"total_bets"`
	WinningBets      int    `json:"winning_bets"`
	TotalPayoutCents int64  `json:"total_payout_cents"`
	SettledAt        string `json:"settled_at"`
}

func (s *SettlementService) enqueue(ctx context.Context, tx *gorm.DB, result *domain.SettlementResult, now time.Time) error {
	payload, err := json.Marshal(eventSettledEvent{
		SessionKey:       int64(result.SessionKey),
		WinningDriver:    int(result.WinningDriver),
		TotalBets:        result.TotalBets,
		WinningBets:      result.WinningBets,
		TotalPayoutCents: result.TotalPayout.Cents(),
		SettledAt:        now.Format(time.RFC3339Nano),
	})
	if err != nil {
		return err
	}
	msg := &model.OutboxMessage{
		EventType:  model.OutboxEventEventSettled,
		MessageKey: fmt.Sprintf("session-%d", result.SessionKey),
		Topic:      s.topic,
		Payload:    string(payload),
	}
	if err := s.outboxRepo.Create(ctx, tx, msg); err != nil {
		return fmt.Errorf("写入消息失败: %w", err)
	}
	return nil
}
