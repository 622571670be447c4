package job

import (
	"context"
	"sync"
	"time"

	"racebet/internal/config"
	"racebet/internal/domain"
	"racebet/internal/metrics"
	"racebet/internal/repository"
	"racebet/internal/service"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// LedgerAuditJob 定期核对每个账户余额等于流水之和
//
// 只读，不做自动修复；发现不一致时记录错误日志和指标，由人工处理。
type LedgerAuditJob struct {
	accountRepo *repository.AccountRepository
	accounts    *service.AccountService
	interval    time.Duration
	batchSize   int
	log         *zap.Logger
	stopCh      chan struct{}
	stopOnce    sync.Once
}

func NewLedgerAuditJob(db *gorm.DB, cfg config.AuditConfig, log *zap.Logger) *LedgerAuditJob {
	return &LedgerAuditJob{
		accountRepo: repository.NewAccountRepository(db),
		accounts:    service.NewAccountService(db),
		interval:    time.Duration(cfg.IntervalSeconds) * time.Second,
		batchSize:   cfg.BatchSize,
		log:         log.With(zap.String("job", "ledger_audit")),
		stopCh:      make(chan struct{}),
	}
}

func (j *LedgerAuditJob) Start(ctx context.Context) {
	j.log.Info("对账任务启动", zap.Duration("interval", j.interval))

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.log.Info("收到停止信号，任务退出")
			return
		case <-j.stopCh:
			j.log.Info("任务停止")
			return
		case <-ticker.C:
			j.RunOnce(ctx)
		}
	}
}

func (j *LedgerAuditJob) Stop() {
	j.stopOnce.Do(func() { close(j.stopCh) })
}

// AuditReport 一轮对账结果
type AuditReport struct {
	Checked    int
	Mismatched []domain.UserID
}

// RunOnce 分批扫描全部账户
func (j *LedgerAuditJob) RunOnce(ctx context.Context) AuditReport {
	var (
		report AuditReport
		after  domain.UserID
	)
	for {
		ids, err := j.accountRepo.ListIDs(ctx, after, j.batchSize)
		if err != nil {
			j.log.Error("查询账户失败", zap.Error(err))
			return report
		}
		if len(ids) == 0 {
			break
		}

		for _, id := range ids {
			rec, err := j.accounts.Reconcile(ctx, id)
			if err != nil {
				j.log.Warn("对账失败", zap.String("user_id", string(id)), zap.Error(err))
				metrics.RecordAudit("error")
				continue
			}
			report.Checked++
			if !rec.Consistent() {
				report.Mismatched = append(report.Mismatched, id)
				j.log.Error("账户余额与流水不一致",
					zap.String("user_id", string(id)),
					zap.Int64("balance_cents", rec.BalanceCents),
					zap.Int64("ledger_sum_cents", rec.LedgerSumCents),
				)
				metrics.RecordAudit("mismatch")
				continue
			}
			metrics.RecordAudit("consistent")
		}
		after = ids[len(ids)-1]
	}

	if len(report.Mismatched) > 0 {
		j.log.Error("本轮对账发现不一致账户", zap.Int("checked", report.Checked), zap.Int("mismatched", len(report.Mismatched)))
	} else {
		j.log.Debug("本轮对账完成", zap.Int("checked", report.Checked))
	}
	return report
}
