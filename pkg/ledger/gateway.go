package ledger

import "context"

// SettlementGateway moves money outside the ledger. Calls are network-bound and
// never part of a Store transaction.
type SettlementGateway interface {
	CreateRecipient(ctx context.Context, request RecipientRequest) (RecipientRef, error)
	InitiateTransfer(ctx context.Context, request TransferRequest) (TransferResult, error)
	InitializeCharge(ctx context.Context, request ChargeRequest) (ChargeResult, error)
}

// RecipientRef is the provider handle for a payout destination.
type RecipientRef string

// RecipientRequest describes a bank account to pay out to.
type RecipientRequest struct {
	BankCode      string
	AccountNumber string
	AccountName   string
	Currency      Currency
}

// TransferRequest asks the provider to pay out.
type TransferRequest struct {
	AmountMinorUnits int64
	Recipient        RecipientRef
	Reason           string
	Reference        ReferenceCode
	Currency         Currency
}

// TransferStatus is the provider-side state reported when a transfer is queued.
type TransferStatus string

const (
	TransferStatusPending TransferStatus = "pending"
	TransferStatusSuccess TransferStatus = "success"
	TransferStatusFailed  TransferStatus = "failed"
)

// TransferResult is the provider acknowledgement of a transfer.
type TransferResult struct {
	Reference    ReferenceCode
	ProviderCode string
	Status       TransferStatus
}

// ChargeRequest asks the provider to start a hosted payment.
type ChargeRequest struct {
	AmountMinorUnits int64
	Email            string
	Reference        ReferenceCode
	Currency         Currency
	Metadata         map[string]string
}

// ChargeResult carries the hosted checkout location.
type ChargeResult struct {
	CheckoutURL string
	Reference   ReferenceCode
}

// Notifier delivers owner-facing messages. Delivery is best effort.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// NotificationKind names the event being announced.
type NotificationKind string

const (
	NotifyDepositSucceeded    NotificationKind = "deposit_succeeded"
	NotifyDepositFailed       NotificationKind = "deposit_failed"
	NotifyWithdrawalRequested NotificationKind = "withdrawal_requested"
	NotifyWithdrawalSucceeded NotificationKind = "withdrawal_succeeded"
	NotifyWithdrawalFailed    NotificationKind = "withdrawal_failed"
	NotifyWalletFrozen        NotificationKind = "wallet_frozen"
	NotifyWalletUnfrozen      NotificationKind = "wallet_unfrozen"
)

// Notification is a message addressed to a wallet owner.
type Notification struct {
	Kind      NotificationKind
	OwnerRef  OwnerRef
	Email     string
	Amount    Amount
	Reference ReferenceCode
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, Notification) error {
	return nil
}
