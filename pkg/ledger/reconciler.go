package ledger

import (
	"context"
	"errors"
	"strings"
)

// SettlementEventType is the provider event discriminator.
type SettlementEventType string

const (
	SettlementChargeSuccess   SettlementEventType = "charge.success"
	SettlementChargeFailed    SettlementEventType = "charge.failed"
	SettlementTransferSuccess SettlementEventType = "transfer.success"
	SettlementTransferFailed  SettlementEventType = "transfer.failed"
	SettlementChargeDispute   SettlementEventType = "charge.dispute.create"
)

// SettlementEvent is an authenticated provider callback.
type SettlementEvent struct {
	Type         SettlementEventType
	Reference    ReferenceCode
	ProviderCode string
	Reason       string
}

// ReconcileOutcome describes what processing an event did.
type ReconcileOutcome string

const (
	OutcomeApplied   ReconcileOutcome = "applied"
	OutcomeIgnored   ReconcileOutcome = "ignored"
	OutcomeDuplicate ReconcileOutcome = "duplicate"
	OutcomeFlagged   ReconcileOutcome = "flagged"
)

type reconcileResult struct {
	outcome      ReconcileOutcome
	entry        Entry
	account      Account
	notification NotificationKind
	reviewError  error
}

// Reconcile applies a settlement event to the ledger. Unknown events, unknown
// references and already finalized entries are no-ops, so replays are safe.
func (service *Service) Reconcile(ctx context.Context, event SettlementEvent) (ReconcileOutcome, error) {
	var (
		result reconcileResult
		err    error
	)
	switch {
	case event.Reference.IsZero():
		result = reconcileResult{outcome: OutcomeIgnored}
	case event.Type == SettlementChargeSuccess:
		result, err = service.settle(ctx, event, EntryDeposit, EntryStatusSuccess)
	case event.Type == SettlementChargeFailed:
		result, err = service.settle(ctx, event, EntryDeposit, EntryStatusFailed)
	case event.Type == SettlementTransferSuccess:
		result, err = service.settle(ctx, event, EntryWithdrawal, EntryStatusSuccess)
	case event.Type == SettlementTransferFailed:
		result, err = service.settle(ctx, event, EntryWithdrawal, EntryStatusFailed)
	case event.Type == SettlementChargeDispute:
		result, err = service.flagChargeback(ctx, event)
	default:
		result = reconcileResult{outcome: OutcomeIgnored}
	}
	logged := err
	if logged == nil {
		logged = result.reviewError
	}
	service.logOperation(ctx, OperationLog{
		Operation: operationReconcile + "_" + string(event.Type),
		AccountID: result.entry.AccountID,
		Reference: event.Reference,
		Amount:    result.entry.Amount.ToAmount(),
		Outcome:   string(result.outcome),
		Error:     logged,
	})
	if err != nil {
		return "", err
	}
	if result.notification != "" {
		service.notify(ctx, Notification{
			Kind:      result.notification,
			OwnerRef:  result.account.OwnerRef,
			Email:     result.account.Email,
			Amount:    result.entry.Amount.ToAmount(),
			Reference: result.entry.Reference,
		})
	}
	return result.outcome, nil
}

// settle finalizes a PENDING entry of the expected type. A successful deposit
// credits the account; a successful withdrawal debits it, and when the balance
// no longer covers the payout the entry is failed and queued for review.
func (service *Service) settle(ctx context.Context, event SettlementEvent, entryType EntryType, to EntryStatus) (reconcileResult, error) {
	var result reconcileResult
	err := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		entry, err := transactionStore.FindEntryByReference(ctx, event.Reference)
		if errors.Is(err, ErrNotFound) {
			result = reconcileResult{outcome: OutcomeIgnored}
			return nil
		}
		if err != nil {
			return err
		}
		result = reconcileResult{entry: entry}
		if entry.Type != entryType {
			result.outcome = OutcomeIgnored
			return nil
		}
		if entry.Status.IsTerminal() {
			result.outcome = OutcomeDuplicate
			return nil
		}
		nowUnixUTC := service.nowFn()
		account, err := transactionStore.LockAccount(ctx, entry.AccountID)
		if err != nil {
			return err
		}
		result.account = account

		if to == EntryStatusSuccess && entry.Type.IsDebit() && account.Balance.LessThan(entry.Amount.ToAmount()) {
			if err := transactionStore.UpdateEntryStatus(ctx, entry.Reference, EntryStatusPending, EntryStatusFailed, nowUnixUTC); err != nil {
				return err
			}
			if err := transactionStore.FlagEntryForReview(ctx, entry.Reference, reviewReasonInsufficientBalance); err != nil {
				return err
			}
			result.outcome = OutcomeFlagged
			result.reviewError = ErrInsufficientFunds
			result.entry.Status = EntryStatusFailed
			return nil
		}

		if err := transactionStore.UpdateEntryStatus(ctx, entry.Reference, EntryStatusPending, to, nowUnixUTC); err != nil {
			if errors.Is(err, ErrEntryFinalized) {
				result.outcome = OutcomeDuplicate
				return nil
			}
			return err
		}
		if to == EntryStatusSuccess {
			if result.account, err = AdjustBalance(ctx, transactionStore, entry.AccountID, entry.BalanceDelta(), BypassFreeze, nowUnixUTC); err != nil {
				return err
			}
		}
		if strings.TrimSpace(event.ProviderCode) != "" && entry.ProviderCode == "" {
			if err := transactionStore.UpdateEntryProviderCode(ctx, entry.Reference, event.ProviderCode); err != nil {
				return err
			}
		}
		result.outcome = OutcomeApplied
		result.entry.Status = to
		result.entry.CompletedUnixUTC = nowUnixUTC
		result.notification = settlementNotification(entryType, to)
		return nil
	})
	return result, err
}

func (service *Service) flagChargeback(ctx context.Context, event SettlementEvent) (reconcileResult, error) {
	var result reconcileResult
	err := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		entry, err := transactionStore.FindEntryByReference(ctx, event.Reference)
		if errors.Is(err, ErrNotFound) {
			result = reconcileResult{outcome: OutcomeIgnored}
			return nil
		}
		if err != nil {
			return err
		}
		reason := reviewReasonChargeback
		if trimmed := strings.TrimSpace(event.Reason); trimmed != "" {
			reason = reason + ": " + trimmed
		}
		if err := transactionStore.FlagEntryForReview(ctx, entry.Reference, reason); err != nil {
			return err
		}
		entry.NeedsReview = true
		entry.ReviewReason = reason
		result = reconcileResult{outcome: OutcomeFlagged, entry: entry}
		return nil
	})
	return result, err
}

func settlementNotification(entryType EntryType, status EntryStatus) NotificationKind {
	switch {
	case entryType == EntryDeposit && status == EntryStatusSuccess:
		return NotifyDepositSucceeded
	case entryType == EntryDeposit:
		return NotifyDepositFailed
	case status == EntryStatusSuccess:
		return NotifyWithdrawalSucceeded
	default:
		return NotifyWithdrawalFailed
	}
}
