package mq

import (
	"fmt"

	"coinledger/internal/config"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// Publisher 把账本事件发送到 Kafka
type Publisher struct {
	producer sarama.SyncProducer
}

// NewPublisher 使用已有的生产者（测试中传入 sarama/mocks）
func NewPublisher(producer sarama.SyncProducer) *Publisher {
	return &Publisher{producer: producer}
}

// InitKafka 初始化 Kafka 生产者
func InitKafka(cfg *config.KafkaConfig) (*Publisher, error) {
	kafkaConfig := sarama.NewConfig()
	kafkaConfig.Producer.RequiredAcks = sarama.WaitForAll // 等待所有副本确认
	kafkaConfig.Producer.Retry.Max = 3
	kafkaConfig.Producer.Return.Successes = true
	kafkaConfig.Producer.Idempotent = true
	kafkaConfig.Net.MaxOpenRequests = 1
	kafkaConfig.Version = sarama.V2_1_0_0

	producer, err := sarama.NewSyncProducer(cfg.Brokers, kafkaConfig)
	if err != nil {
		return nil, fmt.Errorf("创建 Kafka 生产者失败: %w", err)
	}

	zap.L().Info("Kafka 生产者创建成功", zap.Strings("brokers", cfg.Brokers))
	return NewPublisher(producer), nil
}

// SendMessage 发送消息到 Kafka，event 写入消息头
func (p *Publisher) SendMessage(topic, key, event, value string) error {
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.StringEncoder(value),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event"), Value: []byte(event)},
		},
	}

	_, _, err := p.producer.SendMessage(msg)
	return err
}

// Close 关闭 Kafka 生产者
func (p *Publisher) Close() error {
	if p == nil || p.producer == nil {
		return nil
	}
	return p.producer.Close()
}
