package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-payment-verification/internal/config"
	"ms-payment-verification/internal/logger"
	"ms-payment-verification/internal/models"
)

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

// fakeReader serves queued messages then blocks until the context ends
type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []int64
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		msg := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

type attachCall struct{ orderNumber, imageRef string }

type fakeAttacher struct {
	mu    sync.Mutex
	calls []attachCall
	err   error
}

func (a *fakeAttacher) AttachScreenshot(_ context.Context, orderNumber, imageRef string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, attachCall{orderNumber, imageRef})
	return a.err
}

var testTopics = config.TopicConfig{
	OrderCreated:        "ticketly.order.created",
	OrderStatusChanged:  "ticketly.order.status_changed",
	ScreenshotSubmitted: "ticketly.payment.screenshot_submitted",
	WhatsAppNotify:      "ticketly.notification.whatsapp",
}

func TestProducer_PublishStatusKeysByOrderNumber(t *testing.T) {
	w := &fakeWriter{}
	p := NewProducerWithWriter(w, testTopics, logger.NewConsoleLogger(io.Discard))

	err := p.PublishStatus(context.Background(), testTopics.OrderStatusChanged, models.OrderStatusEvent{
		OrderNumber: "ORD-1",
		Status:      models.StatusCompleted,
		Timestamp:   time.Now(),
	})
	require.NoError(t, err)

	require.Len(t, w.msgs, 1)
	assert.Equal(t, testTopics.OrderStatusChanged, w.msgs[0].Topic)
	assert.Equal(t, "ORD-1", string(w.msgs[0].Key))
	var got models.OrderStatusEvent
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.Equal(t, models.StatusCompleted, got.Status)
}

func TestProducer_NotifyWhatsAppUsesRelayTopic(t *testing.T) {
	w := &fakeWriter{}
	p := NewProducerWithWriter(w, testTopics, logger.NewConsoleLogger(io.Discard))

	require.NoError(t, p.NotifyWhatsApp(context.Background(), models.WhatsAppNotification{OrderNumber: "ORD-2", Phone: "+94771234567"}))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, testTopics.WhatsAppNotify, w.msgs[0].Topic)
	assert.Equal(t, "ORD-2", string(w.msgs[0].Key))
}

func TestProducer_WriteErrorIsReturned(t *testing.T) {
	brokerDown := errors.New("broker down")
	p := NewProducerWithWriter(&fakeWriter{err: brokerDown}, testTopics, logger.NewConsoleLogger(io.Discard))

	err := p.Publish(context.Background(), "t", "k", map[string]string{"a": "b"})
	assert.ErrorIs(t, err, brokerDown)
}

func screenshotMsg(offset int64, body string) kafka.Message {
	return kafka.Message{Topic: testTopics.ScreenshotSubmitted, Offset: offset, Value: []byte(body)}
}

func TestConsumer_AttachesScreenshotsAndCommitsEverything(t *testing.T) {
	reader := &fakeReader{queue: []kafka.Message{
		screenshotMsg(1, `{"order_number":"ORD-1","screenshot_url":"https://img/1.png"}`),
		screenshotMsg(2, `not json`),
		screenshotMsg(3, `{"order_number":"","screenshot_url":"https://img/3.png"}`),
		screenshotMsg(4, `{"order_number":" ORD-4 ","screenshot_url":"https://img/4.png"}`),
	}}
	attacher := &fakeAttacher{}
	log := logger.NewConsoleLogger(io.Discard)
	c := NewConsumerWithReader(reader, log)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Start(ctx, ScreenshotHandler(attacher, log))
		close(done)
	}()

	require.Eventually(t, func() bool { return len(reader.commits()) == 4 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, []int64{1, 2, 3, 4}, reader.commits())
	assert.Equal(t, []attachCall{
		{"ORD-1", "https://img/1.png"},
		{"ORD-4", "https://img/4.png"},
	}, attacher.calls)
}

func TestScreenshotHandler_PropagatesAttachError(t *testing.T) {
	attacher := &fakeAttacher{err: models.ErrStatusChanged}
	h := ScreenshotHandler(attacher, logger.NewConsoleLogger(io.Discard))

	err := h(context.Background(), screenshotMsg(1, `{"order_number":"ORD-1","screenshot_url":"u"}`))
	assert.ErrorIs(t, err, models.ErrStatusChanged)
}
