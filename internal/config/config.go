package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	MySQL       MySQLConfig       `mapstructure:"mysql"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Kafka       KafkaConfig       `mapstructure:"kafka"`
	Betting     BettingConfig     `mapstructure:"betting"`
	Idempotency IdempotencyConfig `mapstructure:"idempotency"`
	Provider    ProviderConfig    `mapstructure:"provider"`
	Outbox      OutboxConfig      `mapstructure:"outbox"`
	Audit       AuditConfig       `mapstructure:"audit"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
}

type ServerConfig struct {
	Name     string `mapstructure:"name"`
	Env      string `mapstructure:"env"`
	Port     int    `mapstructure:"port"`
	WorkerID int64  `mapstructure:"worker_id"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	LogLevel     string `mapstructure:"log_level"`
}

func (c MySQLConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	BetPlaced    string `mapstructure:"bet_placed"`
	EventSettled string `mapstructure:"event_settled"`
}

type BettingConfig struct {
	OddsSeed           string `mapstructure:"odds_seed"`
	InitialCreditCents int64  `mapstructure:"initial_credit_cents"`
}

type IdempotencyConfig struct {
	TTLHours     int `mapstructure:"ttl_hours"`
	StaleMinutes int `mapstructure:"stale_minutes"`
}

func (c IdempotencyConfig) TTL() time.Duration {
	return time.Duration(c.TTLHours) * time.Hour
}

func (c IdempotencyConfig) StaleAfter() time.Duration {
	return time.Duration(c.StaleMinutes) * time.Minute
}

// ProviderConfig 外部赛事数据源（OpenF1）
type ProviderConfig struct {
	BaseURL            string `mapstructure:"base_url"`
	TimeoutMs          int    `mapstructure:"timeout_ms"`
	CacheTTLSeconds    int    `mapstructure:"cache_ttl_seconds"`
	MaxSessions        int    `mapstructure:"max_sessions"`
	DriverDelayMs      int    `mapstructure:"driver_delay_ms"`
	MaxAttempts        int    `mapstructure:"max_attempts"`
	BackoffMs          int    `mapstructure:"backoff_ms"`
	BreakerFailures    int    `mapstructure:"breaker_failures"`
	BreakerOpenSeconds int    `mapstructure:"breaker_open_seconds"`
}

func (c ProviderConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

func (c ProviderConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

type OutboxConfig struct {
	IntervalMs    int `mapstructure:"interval_ms"`
	BatchSize     int `mapstructure:"batch_size"`
	MaxRetryCount int `mapstructure:"max_retry_count"`
}

// AuditConfig 账务对账任务
type AuditConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	IntervalSeconds int  `mapstructure:"interval_seconds"`
	BatchSize       int  `mapstructure:"batch_size"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.name", "racebet")
	v.SetDefault("server.env", "local")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.worker_id", 1)

	v.SetDefault("mysql.host", "127.0.0.1")
	v.SetDefault("mysql.port", 3306)
	v.SetDefault("mysql.user", "root")
	v.SetDefault("mysql.password", "")
	v.SetDefault("mysql.database", "racebet")
	v.SetDefault("mysql.max_open_conns", 50)
	v.SetDefault("mysql.max_idle_conns", 10)
	v.SetDefault("mysql.log_level", "warn")

	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("kafka.brokers", []string{"127.0.0.1:9092"})
	v.SetDefault("kafka.topic.bet_placed", "racebet.bet_placed")
	v.SetDefault("kafka.topic.event_settled", "racebet.event_settled")

	v.SetDefault("betting.odds_seed", "F1BETS_SEED")
	v.SetDefault("betting.initial_credit_cents", 10000)

	v.SetDefault("idempotency.ttl_hours", 24)
	v.SetDefault("idempotency.stale_minutes", 5)

	v.SetDefault("provider.base_url", "https://api.openf1.org/v1")
	v.SetDefault("provider.timeout_ms", 5000)
	v.SetDefault("provider.cache_ttl_seconds", 180)
	v.SetDefault("provider.max_sessions", 6)
	v.SetDefault("provider.driver_delay_ms", 500)
	v.SetDefault("provider.max_attempts", 3)
	v.SetDefault("provider.backoff_ms", 200)
	v.SetDefault("provider.breaker_failures", 5)
	v.SetDefault("provider.breaker_open_seconds", 30)

	v.SetDefault("outbox.interval_ms", 200)
	v.SetDefault("outbox.batch_size", 100)
	v.SetDefault("outbox.max_retry_count", 5)

	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.interval_seconds", 300)
	v.SetDefault("audit.batch_size", 200)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// Load 加载配置文件，环境变量 RACEBET_<SECTION>_<KEY> 优先级更高
// path 为空时只使用默认值和环境变量
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("RACEBET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Betting.OddsSeed) == "" {
		errs = append(errs, errors.New("betting.odds_seed 不能为空"))
	}
	if c.Betting.InitialCreditCents < 0 {
		errs = append(errs, errors.New("betting.initial_credit_cents 不能为负数"))
	}
	if c.Idempotency.TTLHours <= 0 {
		errs = append(errs, errors.New("idempotency.ttl_hours 必须大于 0"))
	}
	if c.Idempotency.StaleMinutes <= 0 {
		errs = append(errs, errors.New("idempotency.stale_minutes 必须大于 0"))
	}
	if c.Provider.BaseURL == "" {
		errs = append(errs, errors.New("provider.base_url 不能为空"))
	}
	if c.Provider.MaxAttempts <= 0 {
		errs = append(errs, errors.New("provider.max_attempts 必须大于 0"))
	}
	if c.Outbox.IntervalMs <= 0 || c.Outbox.BatchSize <= 0 {
		errs = append(errs, errors.New("outbox.interval_ms 与 outbox.batch_size 必须大于 0"))
	}
	if c.Audit.Enabled && (c.Audit.IntervalSeconds <= 0 || c.Audit.BatchSize <= 0) {
		errs = append(errs, errors.New("audit.interval_seconds 与 audit.batch_size 必须大于 0"))
	}
	return errors.Join(errs...)
}
