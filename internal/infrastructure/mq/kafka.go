package mq

import (
	"context"
	"fmt"

	"racebet/internal/config"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// Publisher 领域事件投递
type Publisher interface {
	Publish(ctx context.Context, topic, key, value string) error
}

// Producer Kafka 同步生产者
type Producer struct {
	producer sarama.SyncProducer
	log      *zap.Logger
}

// NewProducer 初始化 Kafka 生产者
func NewProducer(cfg *config.KafkaConfig, log *zap.Logger) (*Producer, error) {
	kafkaConfig := sarama.NewConfig()
	kafkaConfig.Producer.RequiredAcks = sarama.WaitForAll // 等待所有副本确认
	kafkaConfig.Producer.Retry.Max = 3                    // 重试次数
	kafkaConfig.Producer.Return.Successes = true          // 返回成功消息
	kafkaConfig.Producer.Idempotent = true
	kafkaConfig.Net.MaxOpenRequests = 1

	producer, err := sarama.NewSyncProducer(cfg.Brokers, kafkaConfig)
	if err != nil {
		return nil, fmt.Errorf("创建 Kafka 生产者失败: %w", err)
	}

	log.Info("Kafka 生产者创建成功", zap.Strings("brokers", cfg.Brokers))
	return NewProducerWith(producer, log), nil
}

func NewProducerWith(producer sarama.SyncProducer, log *zap.Logger) *Producer {
	return &Producer{producer: producer, log: log}
}

// Publish 发送消息，key 相同的消息落在同一分区
func (p *Producer) Publish(_ context.Context, topic, key, value string) error {
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.StringEncoder(value),
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return err
	}
	p.log.Debug("消息已发送",
		zap.String("topic", topic),
		zap.String("key", key),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)
	return nil
}

func (p *Producer) Close() error {
	return p.producer.Close()
}
