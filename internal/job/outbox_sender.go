package job

import (
	"context"
	"sync"
	"time"

	"racebet/internal/config"
	"racebet/internal/infrastructure/lock"
	"racebet/internal/infrastructure/mq"
	"racebet/internal/metrics"
	"racebet/internal/model"
	"racebet/internal/repository"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OutboxSender 轮询 outbox 表，把下注、结算事件投递到 Kafka
//
// leader 不为空时每轮先抢 Redis 锁，多副本下同一时刻只有一个实例投递。
type OutboxSender struct {
	outboxRepo *repository.OutboxRepository
	publisher  mq.Publisher
	leader     *lock.DistributedLock
	interval   time.Duration
	batchSize  int
	maxRetry   int
	log        *zap.Logger
	stopCh     chan struct{}
	stopOnce   sync.Once
}

func NewOutboxSender(db *gorm.DB, publisher mq.Publisher, leader *lock.DistributedLock, cfg config.OutboxConfig, log *zap.Logger) *OutboxSender {
	return &OutboxSender{
		outboxRepo: repository.NewOutboxRepository(db),
		publisher:  publisher,
		leader:     leader,
		interval:   time.Duration(cfg.IntervalMs) * time.Millisecond,
		batchSize:  cfg.BatchSize,
		maxRetry:   cfg.MaxRetryCount,
		log:        log.With(zap.String("job", "outbox_sender")),
		stopCh:     make(chan struct{}),
	}
}

func (s *OutboxSender) Start(ctx context.Context) {
	s.log.Info("消息发送任务启动", zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("收到停止信号，任务退出")
			return
		case <-s.stopCh:
			s.log.Info("任务停止")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

func (s *OutboxSender) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// RunOnce 投递一批待发送消息，返回成功条数
func (s *OutboxSender) RunOnce(ctx context.Context) int {
	if s.leader != nil {
		ok, err := s.leader.TryLock(ctx)
		if err != nil {
			s.log.Warn("获取投递锁失败", zap.Error(err))
			return 0
		}
		if !ok {
			return 0
		}
		defer func() {
			if _, err := s.leader.Unlock(context.WithoutCancel(ctx)); err != nil {
				s.log.Warn("释放投递锁失败", zap.Error(err))
			}
		}()
	}

	messages, err := s.outboxRepo.GetPendingMessages(ctx, s.batchSize)
	if err != nil {
		s.log.Error("查询消息失败", zap.Error(err))
		return 0
	}

	sent := 0
	for _, msg := range messages {
		if s.sendMessage(ctx, msg) {
			sent++
		}
	}
	return sent
}

func (s *OutboxSender) sendMessage(ctx context.Context, msg *model.OutboxMessage) bool {
	err := s.publisher.Publish(ctx, msg.Topic, msg.MessageKey, msg.Payload)
	if err == nil {
		if updateErr := s.outboxRepo.MarkSent(ctx, msg.ID); updateErr != nil {
			// 消息已发出但状态未更新，下一轮会重复投递，消费方按 key 去重
			s.log.Error("更新消息状态失败", zap.Int64("id", msg.ID), zap.Error(updateErr))
		}
		metrics.RecordOutbox("sent")
		return true
	}

	s.log.Warn("消息发送失败",
		zap.Int64("id", msg.ID),
		zap.String("event_type", msg.EventType),
		zap.Int("retry_count", msg.RetryCount),
		zap.Error(err),
	)

	gaveUp, recErr := s.outboxRepo.RecordFailure(ctx, msg, err.Error(), s.maxRetry)
	if recErr != nil {
		s.log.Error("记录发送失败出错", zap.Int64("id", msg.ID), zap.Error(recErr))
		return false
	}
	if gaveUp {
		s.log.Error("消息超过最大重试次数，标记为失败", zap.Int64("id", msg.ID))
		metrics.RecordOutbox("failed")
		return false
	}
	metrics.RecordOutbox("retry")
	return false
}
