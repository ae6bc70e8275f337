package telemetry

import (
	"context"

	"github.com/Godswillamos0/escrow-api/pkg/ledger"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	statusError     = "error"
	outcomeFlagged  = string(ledger.OutcomeFlagged)
	fieldOperation  = "operation"
	fieldAccountID  = "account_id"
	fieldEscrowID   = "escrow_id"
	fieldReference  = "reference"
	fieldAmount     = "amount"
	fieldStatus     = "status"
	fieldOutcome    = "outcome"
	messageRecorded = "ledger operation"
)

// OperationLogger implements ledger.OperationLogger.
type OperationLogger struct {
	logger  *zap.Logger
	metrics *Metrics
}

// NewOperationLogger writes operation records to logger and, when metrics is
// not nil, counts them.
func NewOperationLogger(logger *zap.Logger, metrics *Metrics) *OperationLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OperationLogger{logger: logger, metrics: metrics}
}

// LogOperation records entry. Failures and flagged settlements log at error level.
func (operationLogger *OperationLogger) LogOperation(_ context.Context, entry ledger.OperationLog) {
	if operationLogger.metrics != nil {
		operationLogger.metrics.countOperation(entry.Operation, entry.Status)
	}
	fields := []zap.Field{
		zap.String(fieldOperation, entry.Operation),
		zap.String(fieldStatus, entry.Status),
	}
	if entry.AccountID.String() != "" {
		fields = append(fields, zap.String(fieldAccountID, entry.AccountID.String()))
	}
	if entry.EscrowID.String() != "" {
		fields = append(fields, zap.String(fieldEscrowID, entry.EscrowID.String()))
	}
	if !entry.Reference.IsZero() {
		fields = append(fields, zap.String(fieldReference, entry.Reference.String()))
	}
	if !entry.Amount.IsZero() {
		fields = append(fields, zap.String(fieldAmount, entry.Amount.String()))
	}
	if entry.Outcome != "" {
		fields = append(fields, zap.String(fieldOutcome, entry.Outcome))
	}
	if entry.Error != nil {
		fields = append(fields, zap.Error(entry.Error))
	}
	level := zapcore.InfoLevel
	if entry.Status == statusError || entry.Outcome == outcomeFlagged {
		level = zapcore.ErrorLevel
	}
	if checked := operationLogger.logger.Check(level, messageRecorded); checked != nil {
		checked.Write(fields...)
	}
}

var _ ledger.OperationLogger = (*OperationLogger)(nil)
