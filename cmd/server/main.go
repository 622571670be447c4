package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"racebet/internal/config"
	"racebet/internal/handler"
	"racebet/internal/idempotency"
	"racebet/internal/infrastructure/cache"
	"racebet/internal/infrastructure/database"
	"racebet/internal/infrastructure/lock"
	"racebet/internal/infrastructure/mq"
	"racebet/internal/infrastructure/provider"
	"racebet/internal/job"
	"racebet/internal/logger"
	"racebet/internal/service"
	"racebet/pkg/idgen"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "配置文件路径")
	flag.Parse()

	// 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	zlog, err := logger.New(cfg.Server.Name, cfg.Server.Env)
	if err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer zlog.Sync()

	if err := run(cfg, zlog); err != nil {
		zlog.Fatal("服务异常退出", zap.Error(err))
	}
}

func run(cfg *config.Config, zlog *zap.Logger) error {
	// 初始化 ID 生成器
	if err := idgen.Init(cfg.Server.WorkerID); err != nil {
		return err
	}

	// 初始化 MySQL
	db, err := database.Open(&cfg.MySQL, zlog)
	if err != nil {
		return err
	}
	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("数据库迁移失败: %w", err)
	}

	// 初始化 Redis
	redisClient, err := cache.Open(&cfg.Redis, zlog)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	// 初始化 Kafka
	producer, err := mq.NewProducer(&cfg.Kafka, zlog)
	if err != nil {
		return err
	}
	defer producer.Close()

	// 赛事数据源：OpenF1 + 缓存/熔断/重试
	openF1 := provider.NewOpenF1Client(cfg.Provider.BaseURL, cfg.Provider.Timeout(), zlog,
		provider.WithMaxSessions(cfg.Provider.MaxSessions),
		provider.WithDriverDelay(time.Duration(cfg.Provider.DriverDelayMs)*time.Millisecond),
	)
	sessions := provider.NewResilient(openF1, cache.NewJSONCache(redisClient), provider.ResilientConfig{
		CacheTTL:        cfg.Provider.CacheTTL(),
		MaxAttempts:     cfg.Provider.MaxAttempts,
		InitialBackoff:  time.Duration(cfg.Provider.BackoffMs) * time.Millisecond,
		BreakerFailures: cfg.Provider.BreakerFailures,
		BreakerOpen:     time.Duration(cfg.Provider.BreakerOpenSeconds) * time.Second,
	}, zlog)

	// 赔率种子属于机密，只记录指纹
	odds := service.NewOddsCalculator(cfg.Betting.OddsSeed)
	zlog.Info("赔率计算器就绪", zap.String("seed_fingerprint", odds.SeedFingerprint()))

	locker := lock.NewRowSessionLocker()
	bets, err := service.NewBetService(db, sessions, locker, odds, cfg, zlog)
	if err != nil {
		return err
	}
	h := handler.NewHandler(
		bets,
		service.NewSettlementService(db, sessions, locker, cfg, zlog),
		service.NewAccountService(db),
		service.NewEventService(db, sessions, odds),
		zlog,
	)
	guard := idempotency.NewGuard(db, cfg.Idempotency, zlog)

	// 创建上下文（用于优雅关闭）
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 启动后台任务
	hostname, _ := os.Hostname()
	leader := lock.NewOutboxLeaderLock(redisClient, hostname+"-"+uuid.NewString(), 30*time.Second)
	outboxSender := job.NewOutboxSender(db, producer, leader, cfg.Outbox, zlog)
	go outboxSender.Start(ctx)

	var auditJob *job.LedgerAuditJob
	if cfg.Audit.Enabled {
		auditJob = job.NewLedgerAuditJob(db, cfg.Audit, zlog)
		go auditJob.Start(ctx)
	}

	// 启动 HTTP 服务
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           handler.SetupRouter(h, guard, cfg, zlog),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zlog.Info("服务启动", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("服务启动失败: %w", err)
	}

	zlog.Info("正在关闭服务...")

	// 取消上下文，停止后台任务
	cancel()
	outboxSender.Stop()
	if auditJob != nil {
		auditJob.Stop()
	}

	// 关闭 HTTP 服务（等待最多5秒）
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Warn("服务关闭异常", zap.Error(err))
	}

	zlog.Info("服务已关闭")
	return nil
}
