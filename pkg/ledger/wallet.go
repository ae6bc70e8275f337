package ledger

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
)

// CreateWallet opens the single wallet an owner may hold.
func (service *Service) CreateWallet(ctx context.Context, owner OwnerRef, email string, currency Currency) (Account, error) {
	normalizedEmail := strings.TrimSpace(email)
	if normalizedEmail != "" {
		if _, err := mail.ParseAddress(normalizedEmail); err != nil {
			return Account{}, fmt.Errorf("%w: %q", ErrInvalidEmail, email)
		}
	}
	if currency == "" {
		currency = service.defaultCurrency
	}
	if _, err := ParseCurrency(currency.String()); err != nil {
		return Account{}, err
	}
	nowUnixUTC := service.nowFn()
	account, operationError := service.store.CreateAccount(ctx, Account{
		OwnerRef:       owner,
		Email:          normalizedEmail,
		Currency:       currency,
		CreatedUnixUTC: nowUnixUTC,
		UpdatedUnixUTC: nowUnixUTC,
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationCreateWallet,
		AccountID: account.AccountID,
		Error:     operationError,
	})
	return account, operationError
}

// Wallet returns the owner's wallet.
func (service *Service) Wallet(ctx context.Context, owner OwnerRef) (Account, error) {
	return service.store.FindAccount(ctx, owner)
}

// Balance returns the balance, the amount held by pending withdrawals and what remains available.
func (service *Service) Balance(ctx context.Context, owner OwnerRef) (Balance, error) {
	account, err := service.store.FindAccount(ctx, owner)
	if err != nil {
		return Balance{}, err
	}
	pending, err := service.store.SumPendingEntries(ctx, account.AccountID, EntryWithdrawal)
	if err != nil {
		return Balance{}, err
	}
	return Balance{
		Balance:   account.Balance,
		Pending:   pending,
		Available: calculateAvailable(account.Balance, pending),
		Currency:  account.Currency,
		Frozen:    account.Frozen,
	}, nil
}

// History lists the owner's most recent ledger entries.
func (service *Service) History(ctx context.Context, owner OwnerRef, limit int) ([]Entry, error) {
	account, err := service.store.FindAccount(ctx, owner)
	if err != nil {
		return nil, err
	}
	return service.store.ListEntries(ctx, account.AccountID, normalizeLimit(limit))
}

// ListWallets lists wallets for administrators.
func (service *Service) ListWallets(ctx context.Context, actor Actor, limit int) ([]Account, error) {
	if err := service.requireAdmin(actor); err != nil {
		return nil, err
	}
	return service.store.ListAccounts(ctx, normalizeLimit(limit))
}

// ReviewQueue lists entries flagged for operational review.
func (service *Service) ReviewQueue(ctx context.Context, actor Actor, limit int) ([]Entry, error) {
	if err := service.requireAdmin(actor); err != nil {
		return nil, err
	}
	return service.store.ListEntriesForReview(ctx, normalizeLimit(limit))
}

// AdminCredit credits a wallet outside any escrow or settlement flow.
func (service *Service) AdminCredit(ctx context.Context, actor Actor, owner OwnerRef, amount PositiveAmount, reason string) (Entry, error) {
	return service.adminAdjust(ctx, actor, owner, EntryAdminCredit, amount, reason, operationAdminCredit)
}

// AdminDebit debits a wallet outside any escrow or settlement flow.
func (service *Service) AdminDebit(ctx context.Context, actor Actor, owner OwnerRef, amount PositiveAmount, reason string) (Entry, error) {
	return service.adminAdjust(ctx, actor, owner, EntryAdminDebit, amount, reason, operationAdminDebit)
}

func (service *Service) adminAdjust(ctx context.Context, actor Actor, owner OwnerRef, entryType EntryType, amount PositiveAmount, reason string, operation string) (Entry, error) {
	if err := service.requireAdmin(actor); err != nil {
		return Entry{}, err
	}
	trimmedReason := strings.TrimSpace(reason)
	if trimmedReason == "" {
		return Entry{}, fmt.Errorf("%w: empty value", ErrInvalidReason)
	}
	reference := service.newReference()
	var posted Entry
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		account, err := transactionStore.FindAccount(ctx, owner)
		if err != nil {
			return err
		}
		posted, err = postEntry(ctx, transactionStore, Entry{
			AccountID:   account.AccountID,
			Type:        entryType,
			Amount:      amount,
			Reference:   reference,
			Description: trimmedReason,
		}, RespectFreeze, service.nowFn())
		return err
	})
	service.logOperation(ctx, OperationLog{
		Operation: operation,
		AccountID: posted.AccountID,
		Reference: reference,
		Amount:    amount.ToAmount(),
		Error:     operationError,
	})
	if operationError != nil {
		return Entry{}, operationError
	}
	return posted, nil
}

// Freeze blocks every debit, credit and withdrawal initiation on the wallet.
func (service *Service) Freeze(ctx context.Context, actor Actor, owner OwnerRef) (Account, error) {
	return service.setFrozen(ctx, actor, owner, true)
}

// Unfreeze lifts a freeze.
func (service *Service) Unfreeze(ctx context.Context, actor Actor, owner OwnerRef) (Account, error) {
	return service.setFrozen(ctx, actor, owner, false)
}

func (service *Service) setFrozen(ctx context.Context, actor Actor, owner OwnerRef, frozen bool) (Account, error) {
	operation, kind := operationFreeze, NotifyWalletFrozen
	if !frozen {
		operation, kind = operationUnfreeze, NotifyWalletUnfrozen
	}
	if err := service.requireAdmin(actor); err != nil {
		return Account{}, err
	}
	var updated Account
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		account, err := transactionStore.FindAccount(ctx, owner)
		if err != nil {
			return err
		}
		locked, err := transactionStore.LockAccount(ctx, account.AccountID)
		if err != nil {
			return err
		}
		nowUnixUTC := service.nowFn()
		if err := transactionStore.UpdateAccountFrozen(ctx, locked.AccountID, frozen, nowUnixUTC); err != nil {
			return err
		}
		locked.Frozen = frozen
		locked.UpdatedUnixUTC = nowUnixUTC
		updated = locked
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation: operation,
		AccountID: updated.AccountID,
		Error:     operationError,
	})
	if operationError != nil {
		return Account{}, operationError
	}
	service.notify(ctx, Notification{Kind: kind, OwnerRef: updated.OwnerRef, Email: updated.Email})
	return updated, nil
}

// SaveWithdrawalBank stores a payout destination on the owner's wallet.
func (service *Service) SaveWithdrawalBank(ctx context.Context, owner OwnerRef, bankCode string, bankName string, accountNumber string, accountName string) (WithdrawalBank, error) {
	account, err := service.store.FindAccount(ctx, owner)
	if err != nil {
		return WithdrawalBank{}, err
	}
	bank, err := NewWithdrawalBank(account.AccountID, bankCode, bankName, accountNumber, accountName)
	if err != nil {
		return WithdrawalBank{}, err
	}
	bank.CreatedUnixUTC = service.nowFn()
	saved, operationError := service.store.SaveWithdrawalBank(ctx, bank)
	service.logOperation(ctx, OperationLog{
		Operation: operationSaveBank,
		AccountID: account.AccountID,
		Error:     operationError,
	})
	return saved, operationError
}

// WithdrawalBanks lists the owner's saved payout destinations.
func (service *Service) WithdrawalBanks(ctx context.Context, owner OwnerRef) ([]WithdrawalBank, error) {
	account, err := service.store.FindAccount(ctx, owner)
	if err != nil {
		return nil, err
	}
	return service.store.ListWithdrawalBanks(ctx, account.AccountID)
}

// DeleteWithdrawalBank removes a saved payout destination.
func (service *Service) DeleteWithdrawalBank(ctx context.Context, owner OwnerRef, bankAccountID BankAccountID) error {
	account, err := service.store.FindAccount(ctx, owner)
	if err != nil {
		return err
	}
	operationError := service.store.DeleteWithdrawalBank(ctx, account.AccountID, bankAccountID)
	service.logOperation(ctx, OperationLog{
		Operation: operationDeleteBank,
		AccountID: account.AccountID,
		Error:     operationError,
	})
	return operationError
}

func calculateAvailable(balance Amount, pending Amount) Amount {
	available, err := balance.Sub(pending)
	if err != nil {
		return Amount{}
	}
	return available
}
