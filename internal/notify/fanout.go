package notify

import (
	"context"
	"fmt"

	"ms-payment-verification/internal/logger"
	"ms-payment-verification/internal/models"
	"ms-payment-verification/internal/sse"
)

type StatusProducer interface {
	PublishStatus(ctx context.Context, topic string, e models.OrderStatusEvent) error
}

// Fanout delivers status events to Kafka and to live SSE clients.
// Failures are logged and never reach the caller.
type Fanout struct {
	producer StatusProducer
	emitter  *sse.StatusEmitter
	logger   *logger.Logger
}

// NewFanout accepts a nil producer when Kafka is disabled.
func NewFanout(producer StatusProducer, emitter *sse.StatusEmitter, log *logger.Logger) *Fanout {
	return &Fanout{producer: producer, emitter: emitter, logger: log}
}

func (f *Fanout) Publish(ctx context.Context, topic string, e models.OrderStatusEvent) {
	if f.emitter != nil {
		if dropped := f.emitter.Emit(e); dropped > 0 {
			f.logger.Debug("SSE", fmt.Sprintf("%d slow client(s) missed %s -> %s", dropped, e.OrderNumber, e.Status))
		}
	}

	if f.producer == nil {
		return
	}
	if err := f.producer.PublishStatus(ctx, topic, e); err != nil {
		f.logger.Error("KAFKA", fmt.Sprintf("Status event for %s not published to %s: %v", e.OrderNumber, topic, err))
	}
}
