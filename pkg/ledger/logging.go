package ledger

import (
	"context"
	"time"
)

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// OperationLogger records domain-level events emitted by Service operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes a state-changing ledger operation.
type OperationLog struct {
	Operation string
	AccountID AccountID
	EscrowID  EscrowID
	Reference ReferenceCode
	Amount    Amount
	Outcome   string
	Status    string
	Error     error
}

// WithOperationLogger wires a logger that receives callbacks for every operation.
func WithOperationLogger(logger OperationLogger) ServiceOption {
	return func(service *Service) {
		service.logger = logger
	}
}

// WithGateway wires the settlement provider used for deposits and withdrawals.
func WithGateway(gateway SettlementGateway) ServiceOption {
	return func(service *Service) {
		service.gateway = gateway
	}
}

// WithGatewayTimeout bounds every settlement provider call.
func WithGatewayTimeout(timeout time.Duration) ServiceOption {
	return func(service *Service) {
		if timeout > 0 {
			service.gatewayTimeout = timeout
		}
	}
}

// WithNotifier wires owner notifications.
func WithNotifier(notifier Notifier) ServiceOption {
	return func(service *Service) {
		service.notifier = notifier
	}
}

// WithConfirmationPolicy selects how escrow confirmations release funds.
func WithConfirmationPolicy(policy ConfirmationPolicy) ServiceOption {
	return func(service *Service) {
		service.policy = policy
	}
}

// WithReferenceGenerator replaces the generator for external reference codes.
func WithReferenceGenerator(generator func() ReferenceCode) ServiceOption {
	return func(service *Service) {
		service.newReference = generator
	}
}

// WithDefaultCurrency sets the currency of wallets created without one.
func WithDefaultCurrency(currency Currency) ServiceOption {
	return func(service *Service) {
		service.defaultCurrency = currency
	}
}
