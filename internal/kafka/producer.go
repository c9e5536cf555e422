package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/aihub/ragindex/internal/knowledge"
)

// EventProducer 将入库事件发布到Kafka，实现 knowledge.Reporter
type EventProducer struct {
	producer sarama.SyncProducer
	topic    string
	logger   *zap.Logger
}

// NewSaramaConfig 生产者配置
func NewSaramaConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Timeout = 10 * time.Second
	return config
}

// NewEventProducer 连接Kafka集群
func NewEventProducer(brokers []string, topic string, logger *zap.Logger) (*EventProducer, error) {
	producer, err := sarama.NewSyncProducer(brokers, NewSaramaConfig())
	if err != nil {
		return nil, fmt.Errorf("创建Kafka生产者失败: %w", err)
	}
	logger.Info("Kafka生产者初始化成功", zap.Strings("brokers", brokers), zap.String("topic", topic))
	return NewEventProducerWithClient(producer, topic, logger), nil
}

// NewEventProducerWithClient 使用已有的 SyncProducer
func NewEventProducerWithClient(producer sarama.SyncProducer, topic string, logger *zap.Logger) *EventProducer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventProducer{producer: producer, topic: topic, logger: logger}
}

// Publish 同步发送一条事件，以 run_id 作为分区键保证同一运行内有序
func (p *EventProducer) Publish(event knowledge.Event) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("Kafka生产者未初始化")
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("序列化事件失败: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.RunID),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(event.Type)},
			{Key: []byte("store"), Value: []byte(event.Store)},
		},
		Timestamp: event.Timestamp,
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("发送消息失败: %w", err)
	}
	p.logger.Debug("Kafka消息发送成功",
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
		zap.String("run_id", event.RunID),
		zap.String("event", string(event.Type)))
	return nil
}

// Report 发送失败只记录日志，不影响入库流程
func (p *EventProducer) Report(ctx context.Context, event knowledge.Event) {
	if err := p.Publish(event); err != nil {
		p.logger.Warn("发布入库事件失败", zap.String("event", string(event.Type)), zap.Error(err))
	}
}

// Close 关闭生产者
func (p *EventProducer) Close() error {
	if p != nil && p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
