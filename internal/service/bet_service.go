package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"racebet/internal/config"
	"racebet/internal/domain"
	"racebet/internal/infrastructure/database"
	"racebet/internal/infrastructure/lock"
	"racebet/internal/infrastructure/provider"
	"racebet/internal/metrics"
	"racebet/internal/model"
	"racebet/internal/repository"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type PlaceBetCommand struct {
	UserID         domain.UserID
	SessionKey     domain.SessionKey
	DriverNumber   domain.DriverNumber
	Stake          domain.Money
	IdempotencyKey string
}

type PlaceBetResult struct {
	BetID             domain.BetID
	SessionKey        domain.SessionKey
	DriverNumber      domain.DriverNumber
	Stake             domain.Money
	Odds              domain.Odds
	PotentialWinnings domain.Money
	Status            domain.BetStatus
	Balance           domain.Money
}

// BetService 下注
type BetService struct {
	db            *gorm.DB
	provider      provider.SessionProvider
	locker        lock.SessionLocker
	odds          *OddsCalculator
	accountRepo   *repository.AccountRepository
	betRepo       *repository.BetRepository
	ledgerRepo    *repository.LedgerRepository
	outcomeRepo   *repository.OutcomeRepository
	outboxRepo    *repository.OutboxRepository
	initialCredit domain.Money
	topic         string
	log           *zap.Logger
	now           func() time.Time
}

func NewBetService(db *gorm.DB, p provider.SessionProvider, locker lock.SessionLocker, odds *OddsCalculator, cfg *config.Config, log *zap.Logger) (*BetService, error) {
	initialCredit, err := domain.MoneyFromCents(cfg.Betting.InitialCreditCents)
	if err != nil {
		return nil, fmt.Errorf("初始额度配置错误: %w", err)
	}
	return &BetService{
		db:            db,
		provider:      p,
		locker:        locker,
		odds:          odds,
		accountRepo:   repository.NewAccountRepository(db),
		betRepo:       repository.NewBetRepository(db),
		ledgerRepo:    repository.NewLedgerRepository(db),
		outcomeRepo:   repository.NewOutcomeRepository(db),
		outboxRepo:    repository.NewOutboxRepository(db),
		initialCredit: initialCredit,
		topic:         cfg.Kafka.Topic.BetPlaced,
		log:           log,
		now:           func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *BetService) PlaceBet(ctx context.Context, cmd PlaceBetCommand) (*PlaceBetResult, error) {
	result, err := s.placeBet(ctx, cmd)
	switch {
	case err == nil:
		metrics.RecordBet("success")
	case domain.IsBusiness(err):
		metrics.RecordBet("rejected")
	default:
		metrics.RecordBet("error")
	}
	return result, err
}

func (s *BetService) placeBet(ctx context.Context, cmd PlaceBetCommand) (*PlaceBetResult, error) {
	// 幂等：同一个 key 已经下过注，直接返回原结果，不加锁
	if cmd.IdempotencyKey != "" {
		existing, err := s.betRepo.GetByIdempotencyKey(ctx, cmd.IdempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("查询注单失败: %w", err)
		}
		if existing != nil {
			if existing.AccountID != cmd.UserID {
				return nil, fmt.Errorf("%w: key already used by another user", domain.ErrIdempotencyConflict)
			}
			return s.replay(ctx, existing)
		}
	}

	// 外部校验放在事务之外，避免持锁等待网络
	session, err := s.provider.Session(ctx, cmd.SessionKey, false)
	if err != nil {
		return nil, err
	}
	if !session.HasDriver(cmd.DriverNumber) {
		return nil, fmt.Errorf("%w: driver %d in session %d", domain.ErrDriverNotInSession, cmd.DriverNumber, cmd.SessionKey)
	}

	var (
		bet     *domain.Bet
		balance domain.Money
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.locker.WithExclusive(ctx, tx, cmd.SessionKey, func() error {
			// 拿到锁后再次确认未结算，覆盖外部校验到加锁之间的窗口
			outcome, err := s.outcomeRepo.Get(ctx, tx, cmd.SessionKey)
			if err != nil {
				return fmt.Errorf("查询场次结果失败: %w", err)
			}
			if outcome != nil {
				return fmt.Errorf("%w: session %d", domain.ErrAlreadySettled, cmd.SessionKey)
			}

			now := s.now()
			account, err := s.lockAccount(ctx, tx, cmd.UserID, now)
			if err != nil {
				return err
			}
			if account.Balance.LessThan(cmd.Stake) {
				return fmt.Errorf("%w: balance %s, stake %s", domain.ErrInsufficientBalance, account.Balance, cmd.Stake)
			}

			odds := s.odds.Odds(cmd.SessionKey, cmd.DriverNumber)
			bet = domain.NewBet(cmd.UserID, cmd.SessionKey, cmd.DriverNumber, cmd.Stake, odds, cmd.IdempotencyKey, now)

			if err := account.Debit(cmd.Stake); err != nil {
				return err
			}
			if err := s.accountRepo.UpdateBalance(ctx, tx, account); err != nil {
				return fmt.Errorf("扣款失败: %w", err)
			}
			if err := s.betRepo.Create(ctx, tx, bet); err != nil {
				if database.IsDuplicateKey(err) {
					return fmt.Errorf("%w: bet for this key already exists", domain.ErrIdempotencyConflict)
				}
				return fmt.Errorf("创建注单失败: %w", err)
			}
			if err := s.ledgerRepo.Append(ctx, tx, domain.BetPlacedEntry(bet, account.Balance, now)); err != nil {
				return fmt.Errorf("记录流水失败: %w", err)
			}
			if err := s.enqueue(ctx, tx, bet); err != nil {
				return err
			}

			balance = account.Balance
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("下注成功",
		zap.String("bet_id", string(bet.ID)),
		zap.String("user_id", string(bet.AccountID)),
		zap.Int64("session_key", int64(bet.SessionKey)),
		zap.Int("driver_number", int(bet.DriverNumber)),
		zap.Int64("stake_cents", bet.Stake.Cents()),
		zap.Int("odds", bet.Odds.Int()),
	)
	return toPlaceBetResult(bet, balance)
}

// lockAccount 锁定账户，不存在时以初始额度创建
//
// 先 INSERT ... ON CONFLICT DO NOTHING 再 SELECT ... FOR UPDATE：
// 并发首次下注只有真正插入的请求写 INITIAL_CREDIT 流水，另一方读到已创建的行。
// 先插后锁也避免了 MySQL 对不存在的行加间隙锁导致的死锁。
func (s *BetService) lockAccount(ctx context.Context, tx *gorm.DB, id domain.UserID, now time.Time) (*domain.Account, error) {
	fresh := domain.NewAccount(id, s.initialCredit, now)
	inserted, err := s.accountRepo.InsertIfAbsent(ctx, tx, fresh)
	if err != nil {
		return nil, fmt.Errorf("创建账户失败: %w", err)
	}
	if inserted {
		if err := s.ledgerRepo.Append(ctx, tx, domain.InitialCreditEntry(fresh, now)); err != nil {
			return nil, fmt.Errorf("记录初始额度流水失败: %w", err)
		}
		s.log.Info("创建账户", zap.String("user_id", string(id)), zap.Int64("initial_cents", fresh.Balance.Cents()))
	}

	account, err := s.accountRepo.GetForUpdate(ctx, tx, id)
	if err != nil {
		return nil, fmt.Errorf("锁定账户失败: %w", err)
	}
	return account, nil
}

// replay 下注后的余额从 BET_PLACED 流水还原，流水缺失时退回当前余额
func (s *BetService) replay(ctx context.Context, bet *domain.Bet) (*PlaceBetResult, error) {
	entry, err := s.ledgerRepo.FindBetPlaced(ctx, bet.ID)
	if err != nil {
		return nil, fmt.Errorf("查询流水失败: %w", err)
	}
	if entry != nil {
		return toPlaceBetResult(bet, entry.BalanceAfter)
	}

	account, err := s.accountRepo.Get(ctx, nil, bet.AccountID)
	if err != nil {
		return nil, fmt.Errorf("查询账户失败: %w", err)
	}
	s.log.Warn("注单缺少扣款流水，使用当前余额", zap.String("bet_id", string(bet.ID)))
	return toPlaceBetResult(bet, account.Balance)
}

type betPlacedEvent struct {
	BetID        string `json:"bet_id"`
	UserID       string `json:"user_id"`
	SessionKey   int64  `json:"session_key"`
	DriverNumber int    `json:"driver_number"`
	StakeCents   int64  `json:"stake_cents"`
	Odds         int    `json:"odds"`
	PlacedAt     string `json:"placed_at"`
}

func (s *BetService) enqueue(ctx context.Context, tx *gorm.DB, bet *domain.Bet) error {
	payload, err := json.Marshal(betPlacedEvent{
		BetID:        string(bet.ID),
		UserID:       string(bet.AccountID),
		SessionKey:   int64(bet.SessionKey),
		DriverNumber: int(bet.DriverNumber),
		StakeCents:   bet.Stake.Cents(),
		Odds:         bet.Odds.Int(),
		PlacedAt:     bet.CreatedAt.Format(time.RFC3339Nano),
	})
	if err != nil {
		return err
	}
	msg := &model.OutboxMessage{
		EventType:  model.OutboxEventBetPlaced,
		MessageKey: string(bet.ID),
		Topic:      s.topic,
		Payload:    string(payload),
	}
	if err := s.outboxRepo.Create(ctx, tx, msg); err != nil {
		return fmt.Errorf("写入消息失败: %w", err)
	}
	return nil
}

func toPlaceBetResult(bet *domain.Bet, balance domain.Money) (*PlaceBetResult, error) {
	payout, err := bet.PotentialPayout()
	if err != nil {
		return nil, err
	}
	return &PlaceBetResult{
		BetID:             bet.ID,
		SessionKey:        bet.SessionKey,
		DriverNumber:      bet.DriverNumber,
		Stake:             bet.Stake,
		Odds:              bet.Odds,
		PotentialWinnings: payout,
		Status:            bet.Status,
		Balance:           balance,
	}, nil
}
