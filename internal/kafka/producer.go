package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"ms-payment-verification/internal/config"
	"ms-payment-verification/internal/logger"
	"ms-payment-verification/internal/models"
)

// MessageWriter is satisfied by *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Producer struct {
	Writer MessageWriter
	topics config.TopicConfig
	logger *logger.Logger
}

// NewProducer builds one writer for every topic. Messages are keyed by order
// number so events of one order stay on one partition.
func NewProducer(brokers []string, topics config.TopicConfig, log *logger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}
	return NewProducerWithWriter(writer, topics, log)
}

func NewProducerWithWriter(w MessageWriter, topics config.TopicConfig, log *logger.Logger) *Producer {
	return &Producer{Writer: w, topics: topics, logger: log}
}

func (p *Producer) Publish(ctx context.Context, topic, key string, payload interface{}) error {
	msgBytes, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	err = p.Writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: msgBytes,
	})
	if err != nil {
		p.logger.Error("KAFKA", fmt.Sprintf("Publish to %s (key %s) failed: %v", topic, key, err))
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	p.logger.LogKafka("PUBLISH", topic, key)
	return nil
}

func (p *Producer) PublishStatus(ctx context.Context, topic string, e models.OrderStatusEvent) error {
	return p.Publish(ctx, topic, e.OrderNumber, e)
}

// NotifyWhatsApp hands the confirmation to the WhatsApp relay.
func (p *Producer) NotifyWhatsApp(ctx context.Context, n models.WhatsAppNotification) error {
	return p.Publish(ctx, p.topics.WhatsAppNotify, n.OrderNumber, n)
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}
