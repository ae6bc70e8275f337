// Package notify delivers owner notifications.
package notify

import (
	"context"

	"github.com/Godswillamos0/escrow-api/pkg/ledger"
	"go.uber.org/zap"
)

// LogNotifier writes each notification as a structured log entry. It stands in
// for a mail relay.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier builds a notifier on logger.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger.Named("notify")}
}

// Notify logs notification. It never fails.
func (notifier *LogNotifier) Notify(_ context.Context, notification ledger.Notification) error {
	fields := []zap.Field{
		zap.String("kind", string(notification.Kind)),
		zap.String("owner_ref", notification.OwnerRef.String()),
		zap.String("email", notification.Email),
	}
	if !notification.Amount.IsZero() {
		fields = append(fields, zap.String("amount", notification.Amount.String()))
	}
	if !notification.Reference.IsZero() {
		fields = append(fields, zap.String("reference", notification.Reference.String()))
	}
	notifier.logger.Info("owner notification", fields...)
	return nil
}

var _ ledger.Notifier = (*LogNotifier)(nil)
