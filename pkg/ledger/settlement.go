package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const metadataKeyReference = "reference"

// DepositIntent is a booked deposit waiting for the customer to pay.
type DepositIntent struct {
	Entry       Entry
	CheckoutURL string
}

// InitializeDeposit books a PENDING deposit and opens a hosted charge for it.
// The deposit settles when the provider reports charge.success.
func (service *Service) InitializeDeposit(ctx context.Context, owner OwnerRef, amount PositiveAmount) (DepositIntent, error) {
	if service.gateway == nil {
		return DepositIntent{}, ErrGatewayNotConfigured
	}
	reference := service.newReference()
	var (
		booked  Entry
		account Account
	)
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		var err error
		account, err = transactionStore.FindAccount(ctx, owner)
		if err != nil {
			return err
		}
		if account.Frozen {
			return ErrAccountFrozen
		}
		booked, err = bookPendingEntry(ctx, transactionStore, Entry{
			AccountID:   account.AccountID,
			Type:        EntryDeposit,
			Amount:      amount,
			Reference:   reference,
			Description: "wallet deposit",
		}, service.nowFn())
		return err
	})
	if operationError != nil {
		service.logDeposit(ctx, account.AccountID, reference, amount, operationError)
		return DepositIntent{}, operationError
	}

	var charge ChargeResult
	gatewayError := service.callGateway(ctx, func(ctx context.Context, gateway SettlementGateway) error {
		var err error
		charge, err = gateway.InitializeCharge(ctx, ChargeRequest{
			AmountMinorUnits: amount.MinorUnits(),
			Email:            account.Email,
			Reference:        reference,
			Currency:         account.Currency,
			Metadata:         map[string]string{metadataKeyReference: reference.String()},
		})
		return err
	})
	if gatewayError != nil {
		if !errors.Is(gatewayError, ErrGatewayTimeout) {
			booked = service.failPendingEntry(ctx, booked)
		}
		service.logDeposit(ctx, account.AccountID, reference, amount, gatewayError)
		return DepositIntent{Entry: booked}, gatewayError
	}
	service.logDeposit(ctx, account.AccountID, reference, amount, nil)
	return DepositIntent{Entry: booked, CheckoutURL: charge.CheckoutURL}, nil
}

func (service *Service) logDeposit(ctx context.Context, accountID AccountID, reference ReferenceCode, amount PositiveAmount, err error) {
	service.logOperation(ctx, OperationLog{
		Operation: operationInitializeDeposit,
		AccountID: accountID,
		Reference: reference,
		Amount:    amount.ToAmount(),
		Error:     err,
	})
}

// WithdrawalRequest describes a payout from a wallet to a saved bank.
type WithdrawalRequest struct {
	Owner         OwnerRef
	BankAccountID BankAccountID
	Amount        PositiveAmount
	Reason        string
}

// InitiateWithdrawal books a PENDING withdrawal and asks the provider to pay it out.
// The balance is debited only when the provider reports transfer.success.
func (service *Service) InitiateWithdrawal(ctx context.Context, request WithdrawalRequest) (Entry, error) {
	if service.gateway == nil {
		return Entry{}, ErrGatewayNotConfigured
	}
	reason := strings.TrimSpace(request.Reason)
	if reason == "" {
		reason = "wallet withdrawal"
	}
	reference := service.newReference()
	var (
		booked  Entry
		account Account
		bank    WithdrawalBank
	)
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		owned, err := transactionStore.FindAccount(ctx, request.Owner)
		if err != nil {
			return err
		}
		account, err = transactionStore.LockAccount(ctx, owned.AccountID)
		if err != nil {
			return err
		}
		if account.Frozen {
			return ErrAccountFrozen
		}
		bank, err = transactionStore.GetWithdrawalBank(ctx, account.AccountID, request.BankAccountID)
		if err != nil {
			return err
		}
		pending, err := transactionStore.SumPendingEntries(ctx, account.AccountID, EntryWithdrawal)
		if err != nil {
			return err
		}
		if calculateAvailable(account.Balance, pending).LessThan(request.Amount.ToAmount()) {
			return ErrInsufficientFunds
		}
		booked, err = bookPendingEntry(ctx, transactionStore, Entry{
			AccountID:   account.AccountID,
			Type:        EntryWithdrawal,
			Amount:      request.Amount,
			Reference:   reference,
			Description: reason,
		}, service.nowFn())
		return err
	})
	if operationError != nil {
		service.logWithdrawal(ctx, account.AccountID, reference, request.Amount, operationError)
		return Entry{}, operationError
	}

	var (
		transfer     TransferResult
		transferSent bool
	)
	gatewayError := service.callGateway(ctx, func(ctx context.Context, gateway SettlementGateway) error {
		recipient, err := gateway.CreateRecipient(ctx, RecipientRequest{
			BankCode:      bank.BankCode,
			AccountNumber: bank.AccountNumber,
			AccountName:   bank.AccountName,
			Currency:      account.Currency,
		})
		if err != nil {
			return err
		}
		transferSent = true
		transfer, err = gateway.InitiateTransfer(ctx, TransferRequest{
			AmountMinorUnits: request.Amount.MinorUnits(),
			Recipient:        recipient,
			Reason:           reason,
			Reference:        reference,
			Currency:         account.Currency,
		})
		if err != nil {
			return err
		}
		if transfer.Status == TransferStatusFailed {
			return fmt.Errorf("%w: transfer %s rejected", ErrGateway, transfer.ProviderCode)
		}
		return nil
	})
	if gatewayError != nil {
		// Only a transfer that may have reached the provider stays PENDING for
		// the reconciler; a failed recipient lookup never sent money.
		if !transferSent || !errors.Is(gatewayError, ErrGatewayTimeout) {
			booked = service.failPendingEntry(ctx, booked)
		}
		service.logWithdrawal(ctx, account.AccountID, reference, request.Amount, gatewayError)
		return booked, gatewayError
	}
	if transfer.ProviderCode != "" {
		if err := service.store.UpdateEntryProviderCode(ctx, reference, transfer.ProviderCode); err != nil {
			service.logWithdrawal(ctx, account.AccountID, reference, request.Amount, err)
		} else {
			booked.ProviderCode = transfer.ProviderCode
		}
	}
	service.logWithdrawal(ctx, account.AccountID, reference, request.Amount, nil)
	service.notify(ctx, Notification{
		Kind:      NotifyWithdrawalRequested,
		OwnerRef:  account.OwnerRef,
		Email:     account.Email,
		Amount:    request.Amount.ToAmount(),
		Reference: reference,
	})
	return booked, nil
}

func (service *Service) logWithdrawal(ctx context.Context, accountID AccountID, reference ReferenceCode, amount PositiveAmount, err error) {
	service.logOperation(ctx, OperationLog{
		Operation: operationInitiateWithdrawal,
		AccountID: accountID,
		Reference: reference,
		Amount:    amount.ToAmount(),
		Error:     err,
	})
}

// failPendingEntry marks a booked entry FAILED after the provider provably
// rejected it. An entry already finalized by a callback is left alone.
func (service *Service) failPendingEntry(ctx context.Context, entry Entry) Entry {
	nowUnixUTC := service.nowFn()
	err := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		return transactionStore.UpdateEntryStatus(ctx, entry.Reference, EntryStatusPending, EntryStatusFailed, nowUnixUTC)
	})
	if err != nil {
		service.logOperation(ctx, OperationLog{
			Operation: "fail_pending_entry",
			AccountID: entry.AccountID,
			Reference: entry.Reference,
			Amount:    entry.Amount.ToAmount(),
			Error:     err,
		})
		return entry
	}
	entry.Status = EntryStatusFailed
	entry.CompletedUnixUTC = nowUnixUTC
	return entry
}
