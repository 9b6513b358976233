package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/trainer-booking/internal/logger"
	"github.com/iliyamo/trainer-booking/internal/queue"
	"github.com/iliyamo/trainer-booking/internal/retry"
)

// Channel is the part of *amqp.Channel the publisher needs.
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// DialFunc opens a channel and returns a func that closes the connection
// behind it.
type DialFunc func(url string) (Channel, func() error, error)

// DialAMQP dials a fresh connection per call.
func DialAMQP(url string) (Channel, func() error, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	return ch, conn.Close, nil
}

// AMQPPublisher publishes persistent JSON messages to durable queues on the
// default exchange.  It implements Notifier and retry.Alerter.
type AMQPPublisher struct {
	url  string
	dial DialFunc
	log  *zap.Logger
	now  func() time.Time
}

type PublisherOption func(*AMQPPublisher)

func WithDialer(d DialFunc) PublisherOption { return func(p *AMQPPublisher) { p.dial = d } }
func WithLogger(l *zap.Logger) PublisherOption { return func(p *AMQPPublisher) { p.log = l } }
func WithClock(now func() time.Time) PublisherOption { return func(p *AMQPPublisher) { p.now = now } }

func NewAMQPPublisher(url string, opts ...PublisherOption) *AMQPPublisher {
	p := &AMQPPublisher{url: url, dial: DialAMQP, now: time.Now}
	for _, o := range opts {
		o(p)
	}
	p.log = logger.Named(p.log, "amqp")
	return p
}

// Send queues a notification for recipientID.
func (p *AMQPPublisher) Send(ctx context.Context, recipientID, message string) error {
	return p.publish(ctx, queue.Notifications, queue.Notification{
		RecipientID: recipientID,
		Message:     message,
		SentAt:      p.now().UTC(),
	})
}

// PublishBookingConfirmed feeds the booking log consumer.
func (p *AMQPPublisher) PublishBookingConfirmed(ctx context.Context, ev queue.BookingConfirmedEvent) error {
	return p.publish(ctx, queue.BookingConfirmed, ev)
}

// AlertCriticalFailure reports an exhausted payment retry to the operators.
func (p *AMQPPublisher) AlertCriticalFailure(ctx context.Context, l *retry.Log) error {
	return p.publish(ctx, queue.Alerts, queue.CriticalFailureAlert{
		RetryID:    l.ID,
		Operation:  l.Operation.String(),
		Attempts:   len(l.Attempts),
		FinalError: l.FinalError,
		Context:    l.Context,
		At:         p.now().UTC(),
	})
}

func (p *AMQPPublisher) publish(ctx context.Context, queueName string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s message: %w", queueName, err)
	}
	ch, closeConn, err := p.dial(p.url)
	if err != nil {
		p.log.Warn("dial failed", zap.String("queue", queueName), zap.Error(err))
		return err
	}
	defer func() {
		_ = ch.Close()
		_ = closeConn()
	}()

	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		p.log.Warn("queue declare failed", zap.String("queue", queueName), zap.Error(err))
		return err
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    p.now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", queueName, false, false, msg); err != nil {
		p.log.Warn("publish failed", zap.String("queue", queueName), zap.Error(err))
		return err
	}
	return nil
}
