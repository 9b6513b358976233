// Package notify delivers customer notifications, booking events and
// operator alerts over RabbitMQ.
package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/iliyamo/trainer-booking/internal/logger"
)

// AdminRecipient addresses the operators rather than a customer.
const AdminRecipient = "admin"

// Notifier sends a message to one recipient.  Callers treat delivery as
// best effort.
type Notifier interface {
	Send(ctx context.Context, recipientID, message string) error
}

// LogNotifier only logs.  It stands in when no broker is configured.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(l *zap.Logger) *LogNotifier {
	return &LogNotifier{log: logger.Named(l, "notify")}
}

func (n *LogNotifier) Send(_ context.Context, recipientID, message string) error {
	n.log.Info("notification", zap.String("recipient_id", recipientID), zap.String("message", message))
	return nil
}
