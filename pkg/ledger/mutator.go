package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// FreezePolicy decides whether a frozen account can be adjusted.
type FreezePolicy int

const (
	// RespectFreeze rejects adjustments on frozen accounts.
	RespectFreeze FreezePolicy = iota
	// BypassFreeze is reserved for administrative force operations and settlement of
	// movements that already happened outside the ledger.
	BypassFreeze
)

// AdjustBalance is the only path that changes an account balance. It locks the
// account row, applies signedDelta and persists the result, returning the updated
// account. It must run on a transaction store, and the caller appends the
// matching entry in that same transaction. Under RespectFreeze a debit may not
// reach into funds held by PENDING withdrawals.
func AdjustBalance(ctx context.Context, txStore Store, accountID AccountID, signedDelta decimal.Decimal, freezePolicy FreezePolicy, nowUnixUTC int64) (Account, error) {
	account, err := txStore.LockAccount(ctx, accountID)
	if err != nil {
		return Account{}, err
	}
	if account.Frozen && freezePolicy != BypassFreeze {
		return Account{}, ErrAccountFrozen
	}
	next := account.Balance.Decimal().Add(signedDelta)
	if next.IsNegative() {
		return Account{}, ErrInsufficientFunds
	}
	if freezePolicy == RespectFreeze && signedDelta.IsNegative() {
		pending, err := txStore.SumPendingEntries(ctx, accountID, EntryWithdrawal)
		if err != nil {
			return Account{}, err
		}
		if next.LessThan(pending.Decimal()) {
			return Account{}, ErrInsufficientFunds
		}
	}
	balance, err := NewAmount(next)
	if err != nil {
		return Account{}, err
	}
	if err := txStore.UpdateAccountBalance(ctx, accountID, balance, nowUnixUTC); err != nil {
		return Account{}, err
	}
	account.Balance = balance
	account.UpdatedUnixUTC = nowUnixUTC
	return account, nil
}

// postEntry appends a settled entry and applies its balance delta atomically.
func postEntry(ctx context.Context, txStore Store, entry Entry, freezePolicy FreezePolicy, nowUnixUTC int64) (Entry, error) {
	entry.Status = EntryStatusSuccess
	entry.CreatedUnixUTC = nowUnixUTC
	entry.CompletedUnixUTC = nowUnixUTC
	stored, err := txStore.AppendEntry(ctx, entry)
	if err != nil {
		return Entry{}, err
	}
	if _, err := AdjustBalance(ctx, txStore, entry.AccountID, entry.BalanceDelta(), freezePolicy, nowUnixUTC); err != nil {
		return Entry{}, err
	}
	return stored, nil
}

// bookPendingEntry appends an entry that only a later settlement can finalize.
func bookPendingEntry(ctx context.Context, txStore Store, entry Entry, nowUnixUTC int64) (Entry, error) {
	entry.Status = EntryStatusPending
	entry.CreatedUnixUTC = nowUnixUTC
	entry.CompletedUnixUTC = 0
	return txStore.AppendEntry(ctx, entry)
}
