package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/trainer-booking/internal/queue"
	"github.com/iliyamo/trainer-booking/internal/retry"
)

type published struct {
	queue string
	msg   amqp.Publishing
}

type fakeChannel struct {
	declared   []string
	published  []published
	publishErr error
	closed     int
}

func (f *fakeChannel) QueueDeclare(name string, durable, _, _, _ bool, _ amqp.Table) (amqp.Queue, error) {
	if !durable {
		return amqp.Queue{}, errors.New("queue must be durable")
	}
	f.declared = append(f.declared, name)
	return amqp.Queue{Name: name}, nil
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, published{queue: key, msg: msg})
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed++
	return nil
}

var fixedNow = time.Date(2026, time.January, 10, 9, 0, 0, 0, time.UTC)

func newTestPublisher(ch *fakeChannel) (*AMQPPublisher, *int) {
	conns := 0
	dial := func(string) (Channel, func() error, error) {
		conns++
		return ch, func() error { return nil }, nil
	}
	return NewAMQPPublisher("amqp://test", WithDialer(dial), WithLogger(zap.NewNop()),
		WithClock(func() time.Time { return fixedNow })), &conns
}

func TestAMQPPublisher_Send(t *testing.T) {
	ch := &fakeChannel{}
	p, conns := newTestPublisher(ch)

	require.NoError(t, p.Send(context.Background(), "7", "Your lesson is confirmed"))

	require.Len(t, ch.published, 1)
	got := ch.published[0]
	assert.Equal(t, queue.Notifications, got.queue)
	assert.Equal(t, amqp.Persistent, got.msg.DeliveryMode)
	assert.Equal(t, "application/json", got.msg.ContentType)
	var n queue.Notification
	require.NoError(t, json.Unmarshal(got.msg.Body, &n))
	assert.Equal(t, queue.Notification{RecipientID: "7", Message: "Your lesson is confirmed", SentAt: fixedNow}, n)
	assert.Equal(t, 1, *conns)
	assert.Equal(t, 1, ch.closed)
}

func TestAMQPPublisher_BookingConfirmedAndAlert(t *testing.T) {
	ch := &fakeChannel{}
	p, _ := newTestPublisher(ch)
	ctx := context.Background()

	require.NoError(t, p.PublishBookingConfirmed(ctx, queue.BookingConfirmedEvent{ReservationID: "r-1"}))
	require.NoError(t, p.AlertCriticalFailure(ctx, &retry.Log{
		ID: "rt-1", Operation: retry.OpPaymentCharge, FinalError: "card declined",
		Attempts: make([]retry.Attempt, 5),
	}))

	assert.Equal(t, []string{queue.BookingConfirmed, queue.Alerts}, ch.declared)
	var alert queue.CriticalFailureAlert
	require.NoError(t, json.Unmarshal(ch.published[1].msg.Body, &alert))
	assert.Equal(t, "payment_charge", alert.Operation)
	assert.Equal(t, 5, alert.Attempts)
	assert.Equal(t, "card declined", alert.FinalError)
}

func TestAMQPPublisher_Errors(t *testing.T) {
	boom := errors.New("broker down")
	p := NewAMQPPublisher("amqp://test", WithLogger(zap.NewNop()),
		WithDialer(func(string) (Channel, func() error, error) { return nil, nil, boom }))
	assert.ErrorIs(t, p.Send(context.Background(), "7", "hi"), boom)

	ch := &fakeChannel{publishErr: boom}
	p2, _ := newTestPublisher(ch)
	assert.ErrorIs(t, p2.Send(context.Background(), "7", "hi"), boom)
	assert.Equal(t, 1, ch.closed)
}

func TestLogNotifier(t *testing.T) {
	assert.NoError(t, NewLogNotifier(zap.NewNop()).Send(context.Background(), AdminRecipient, "review cancellation"))
}
