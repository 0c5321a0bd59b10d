package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/segmentio/kafka-go"

	"ms-payment-verification/internal/logger"
)

// MessageReader is satisfied by *kafka.Reader.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	reader MessageReader
	logger *logger.Logger
}

// NewConsumer creates a new Kafka consumer for the given topic and group
func NewConsumer(brokers []string, topic, groupID string, log *logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	return NewConsumerWithReader(reader, log)
}

func NewConsumerWithReader(r MessageReader, log *logger.Logger) *Consumer {
	return &Consumer{reader: r, logger: log}
}

// Start consumes until ctx is cancelled. Every message is committed after the
// handler runs, whether or not it succeeded, so one bad message cannot stall the partition.
func (c *Consumer) Start(ctx context.Context, handler func(ctx context.Context, msg kafka.Message) error) {
	c.logger.Info("KAFKA", "Kafka consumer started")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				c.logger.Info("KAFKA", "Kafka consumer stopped")
				return
			}
			c.logger.Error("KAFKA", fmt.Sprintf("Error reading message: %v", err))
			continue
		}

		if err := handler(ctx, msg); err != nil {
			c.logger.Error("KAFKA", fmt.Sprintf("Handler failed for %s/%d@%d: %v", msg.Topic, msg.Partition, msg.Offset, err))
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("KAFKA", fmt.Sprintf("Commit failed for %s@%d: %v", msg.Topic, msg.Offset, err))
		}
	}
}

// Close gracefully shuts down the Kafka reader
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// ScreenshotSubmitted is what the WhatsApp relay publishes once a customer sends a receipt.
type ScreenshotSubmitted struct {
	OrderNumber   string `json:"order_number"`
	ScreenshotURL string `json:"screenshot_url"`
}

type ScreenshotAttacher interface {
	AttachScreenshot(ctx context.Context, orderNumber, imageRef string) error
}

func ScreenshotHandler(attacher ScreenshotAttacher, log *logger.Logger) func(ctx context.Context, msg kafka.Message) error {
	return func(ctx context.Context, msg kafka.Message) error {
		var sub ScreenshotSubmitted
		if err := json.Unmarshal(msg.Value, &sub); err != nil {
			return fmt.Errorf("failed to unmarshal screenshot event: %w", err)
		}
		sub.OrderNumber = strings.TrimSpace(sub.OrderNumber)
		sub.ScreenshotURL = strings.TrimSpace(sub.ScreenshotURL)
		if sub.OrderNumber == "" || sub.ScreenshotURL == "" {
			return errors.New("screenshot event missing order_number or screenshot_url")
		}

		log.LogKafka("CONSUME", msg.Topic, fmt.Sprintf("screenshot for %s", sub.OrderNumber))
		return attacher.AttachScreenshot(ctx, sub.OrderNumber, sub.ScreenshotURL)
	}
}
