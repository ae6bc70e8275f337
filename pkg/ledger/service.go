package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Service contains the domain logic over a Store.
type Service struct {
	store           Store
	nowFn           func() int64
	logger          OperationLogger
	gateway         SettlementGateway
	gatewayTimeout  time.Duration
	notifier        Notifier
	policy          ConfirmationPolicy
	newReference    func() ReferenceCode
	defaultCurrency Currency
}

// Actor is the caller of an operation, identified by the session owner.
type Actor struct {
	Owner OwnerRef
	Admin bool
}

// NewService wires a Service.
func NewService(store Store, now func() int64, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{
		store:           store,
		nowFn:           now,
		gatewayTimeout:  defaultGatewayTimeout,
		notifier:        noopNotifier{},
		policy:          ConfirmationSingleSided,
		newReference:    GenerateReferenceCode,
		defaultCurrency: CurrencyNGN,
	}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	if _, err := ParseConfirmationPolicy(service.policy.String()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidServiceConfig, err)
	}
	if _, err := ParseCurrency(service.defaultCurrency.String()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidServiceConfig, err)
	}
	if service.notifier == nil {
		service.notifier = noopNotifier{}
	}
	if service.newReference == nil {
		return nil, fmt.Errorf("%w: reference generator is nil", ErrInvalidServiceConfig)
	}
	return service, nil
}

// ConfirmationPolicy returns the policy the service releases escrows with.
func (service *Service) ConfirmationPolicy() ConfirmationPolicy {
	return service.policy
}

// GenerateReferenceCode returns a fresh "TXN-XXXXXXXXXX" reference.
func GenerateReferenceCode() ReferenceCode {
	random := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return ReferenceCode{value: referencePrefix + random[:referenceRandomLength]}
}

func escrowReference(escrowID EscrowID, parts ...string) ReferenceCode {
	segments := append([]string{escrowID.String()}, parts...)
	return ReferenceCode{value: escrowReferencePrefix + strings.Join(segments, escrowReferenceDelimiter)}
}

func (service *Service) resolveActor(ctx context.Context, store Store, actor Actor) (AccountID, error) {
	account, err := store.FindAccount(ctx, actor.Owner)
	if err != nil {
		if actor.Admin && errors.Is(err, ErrNotFound) {
			return AccountID{}, nil
		}
		return AccountID{}, err
	}
	return account.AccountID, nil
}

func (service *Service) requireAdmin(actor Actor) error {
	if !actor.Admin {
		return ErrAdminRequired
	}
	return nil
}

// callGateway bounds fn with the gateway timeout and normalizes its error into
// ErrGateway or ErrGatewayTimeout.
func (service *Service) callGateway(ctx context.Context, fn func(ctx context.Context, gateway SettlementGateway) error) error {
	if service.gateway == nil {
		return ErrGatewayNotConfigured
	}
	callContext, cancel := context.WithTimeout(ctx, service.gatewayTimeout)
	defer cancel()
	err := fn(callContext, service.gateway)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrGatewayTimeout) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(callContext.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrGatewayTimeout, err)
	}
	if errors.Is(err, ErrGateway) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrGateway, err)
}

func (service *Service) notify(ctx context.Context, notification Notification) {
	if err := service.notifier.Notify(ctx, notification); err != nil {
		service.logOperation(ctx, OperationLog{
			Operation: "notify_" + string(notification.Kind),
			Reference: notification.Reference,
			Amount:    notification.Amount,
			Error:     err,
		})
	}
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	entry.Status = operationStatusOK
	if entry.Error != nil {
		entry.Status = operationStatusError
	}
	service.logger.LogOperation(ctx, entry)
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		return maxHistoryLimit
	}
	return limit
}
