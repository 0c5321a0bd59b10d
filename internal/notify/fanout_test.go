package notify

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"ms-payment-verification/internal/logger"
	"ms-payment-verification/internal/models"
	"ms-payment-verification/internal/sse"
)

type MockProducer struct {
	mock.Mock
}

func (m *MockProducer) PublishStatus(ctx context.Context, topic string, e models.OrderStatusEvent) error {
	args := m.Called(ctx, topic, e)
	return args.Error(0)
}

func TestFanout_PublishesToKafkaAndSSE(t *testing.T) {
	producer := new(MockProducer)
	emitter := sse.NewStatusEmitter()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := emitter.SubscribeToOrder(ctx, "ORD-1")

	e := models.OrderStatusEvent{OrderNumber: "ORD-1", EventID: "evt-1", Status: models.StatusCompleted, Timestamp: time.Now()}
	producer.On("PublishStatus", mock.Anything, "ticketly.order.status_changed", e).Return(nil)

	NewFanout(producer, emitter, logger.NewConsoleLogger(io.Discard)).Publish(ctx, "ticketly.order.status_changed", e)

	producer.AssertExpectations(t)
	got := <-ch
	assert.Equal(t, models.StatusCompleted, got.Status)
}

func TestFanout_KafkaFailureIsSwallowed(t *testing.T) {
	producer := new(MockProducer)
	producer.On("PublishStatus", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("broker down"))

	assert.NotPanics(t, func() {
		NewFanout(producer, sse.NewStatusEmitter(), logger.NewConsoleLogger(io.Discard)).
			Publish(context.Background(), "t", models.OrderStatusEvent{OrderNumber: "ORD-1"})
	})
	producer.AssertNumberOfCalls(t, "PublishStatus", 1)
}

func TestFanout_WithoutKafka(t *testing.T) {
	emitter := sse.NewStatusEmitter()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := emitter.SubscribeToEvent(ctx, "evt-1")

	NewFanout(nil, emitter, logger.NewConsoleLogger(io.Discard)).
		Publish(ctx, "t", models.OrderStatusEvent{OrderNumber: "ORD-1", EventID: "evt-1", Status: models.StatusFailed})

	got := <-ch
	assert.Equal(t, models.StatusFailed, got.Status)
}
