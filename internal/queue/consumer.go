package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/trainer-booking/internal/logger"
)

// BookingLogConsumer listens on booking.confirmed and appends one line per
// confirmed lesson to a log file.
type BookingLogConsumer struct {
	url  string
	path string
	log  *zap.Logger
}

// NewBookingLogConsumer writes to path, typically logs/booking.log.
func NewBookingLogConsumer(url, path string, l *zap.Logger) *BookingLogConsumer {
	return &BookingLogConsumer{url: url, path: path, log: logger.Named(l, "booking-consumer")}
}

// Run dials the broker and consumes until ctx is cancelled, reconnecting
// with exponential backoff capped at 30s.  Malformed messages are rejected
// without requeue so they cannot loop.
func (c *BookingLogConsumer) Run(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0
	for {
		conn, err := amqp.Dial(c.url)
		if err == nil {
			b.Reset()
			err = c.consume(ctx, conn)
			_ = conn.Close()
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
		wait := b.NextBackOff()
		c.log.Warn("broker unavailable, retrying", zap.Error(err), zap.Duration("in", wait))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (c *BookingLogConsumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.log.Warn("set qos failed", zap.Error(err))
	}
	if _, err := ch.QueueDeclare(BookingConfirmed, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.ConsumeWithContext(ctx, BookingConfirmed, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for d := range msgs {
		if err := c.Handle(d.Body); err != nil {
			c.log.Error("handle message failed", zap.Error(err))
			_ = d.Nack(false, false)
			continue
		}
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}

// Handle decodes one message and appends its line to the log file.
func (c *BookingLogConsumer) Handle(body []byte) error {
	var ev BookingConfirmedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.ReservationID == "" {
		return errors.New("event without reservation_id")
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	f, err := os.OpenFile(c.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(FormatBookingLine(ev)); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

// FormatBookingLine renders ev as a single newline-terminated line.
func FormatBookingLine(ev BookingConfirmedEvent) string {
	dogs := "single"
	if ev.MultipleDogs {
		dogs = "multiple"
	}
	return fmt.Sprintf("[%s] Lesson confirmed | reservation_id=%s | customer_id=%d | trainer=%q | start=%s | end=%s | dogs=%s | total=%d | payment_id=%s | tx=%s\n",
		ev.ConfirmedAt.UTC().Format(time.RFC3339), ev.ReservationID, ev.CustomerID, ev.TrainerID,
		ev.StartsAt.UTC().Format(time.RFC3339), ev.EndsAt.UTC().Format(time.RFC3339), dogs, ev.AmountCents,
		ev.PaymentID, ev.TransactionID)
}
