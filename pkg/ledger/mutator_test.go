package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
)

func TestAdjustBalanceRejectsOverdraft(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	account := store.seedAccount(test, "user-1", "10.00")
	err := store.WithTx(context.Background(), func(ctx context.Context, txStore Store) error {
		_, err := AdjustBalance(ctx, txStore, account.AccountID, decimal.RequireFromString("-10.01"), RespectFreeze, 5)
		return err
	})
	if !errors.Is(err, ErrInsufficientFunds) {
		test.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if balance := store.balanceOf(test, "user-1"); balance != "10.00" {
		test.Fatalf("expected balance unchanged, got %s", balance)
	}
}

func TestAdjustBalanceFreezePolicy(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	account := store.seedAccount(test, "user-1", "10.00")
	if err := store.UpdateAccountFrozen(context.Background(), account.AccountID, true, 1); err != nil {
		test.Fatalf("freeze: %v", err)
	}
	err := store.WithTx(context.Background(), func(ctx context.Context, txStore Store) error {
		_, err := AdjustBalance(ctx, txStore, account.AccountID, decimal.RequireFromString("1.00"), RespectFreeze, 5)
		return err
	})
	if !errors.Is(err, ErrAccountFrozen) {
		test.Fatalf("expected ErrAccountFrozen, got %v", err)
	}
	var updated Account
	err = store.WithTx(context.Background(), func(ctx context.Context, txStore Store) error {
		var adjustError error
		updated, adjustError = AdjustBalance(ctx, txStore, account.AccountID, decimal.RequireFromString("-4.50"), BypassFreeze, 5)
		return adjustError
	})
	if err != nil {
		test.Fatalf("bypass adjust failed: %v", err)
	}
	if updated.Balance.String() != "5.50" || updated.UpdatedUnixUTC != 5 {
		test.Fatalf("unexpected account after bypass: %+v", updated)
	}
}

func TestAdjustBalanceRespectsPendingWithdrawals(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	account := store.seedAccount(test, "user-1", "10.00")
	if _, err := store.AppendEntry(context.Background(), Entry{
		AccountID: account.AccountID,
		Type:      EntryWithdrawal,
		Amount:    mustPositiveAmount(test, "6.00"),
		Reference: mustReference(test, "TXN-HELD"),
		Status:    EntryStatusPending,
	}); err != nil {
		test.Fatalf("append pending: %v", err)
	}
	adjust := func(delta string, freezePolicy FreezePolicy) error {
		return store.WithTx(context.Background(), func(ctx context.Context, txStore Store) error {
			_, err := AdjustBalance(ctx, txStore, account.AccountID, decimal.RequireFromString(delta), freezePolicy, 5)
			return err
		})
	}
	if err := adjust("-4.01", RespectFreeze); !errors.Is(err, ErrInsufficientFunds) {
		test.Fatalf("expected ErrInsufficientFunds past the hold, got %v", err)
	}
	if err := adjust("-4.00", RespectFreeze); err != nil {
		test.Fatalf("expected debit of the available balance, got %v", err)
	}
	if err := adjust("-6.00", BypassFreeze); err != nil {
		test.Fatalf("expected settlement of the held amount, got %v", err)
	}
	if balance := store.balanceOf(test, "user-1"); balance != "0.00" {
		test.Fatalf("expected 0.00, got %s", balance)
	}
}

func TestPostEntryRollsBackWithBalance(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	account := store.seedAccount(test, "user-1", "1.00")
	reference := mustReference(test, "TXN-ROLLBACK")
	err := store.WithTx(context.Background(), func(ctx context.Context, txStore Store) error {
		_, err := postEntry(ctx, txStore, Entry{
			AccountID: account.AccountID,
			Type:      EntryAdminDebit,
			Amount:    mustPositiveAmount(test, "2.00"),
			Reference: reference,
		}, RespectFreeze, 9)
		return err
	})
	if !errors.Is(err, ErrInsufficientFunds) {
		test.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if _, err := store.FindEntryByReference(context.Background(), reference); !errors.Is(err, ErrEntryNotFound) {
		test.Fatalf("expected rolled back entry, got %v", err)
	}
}

func TestConcurrentAdjustmentsNeverOverdraw(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	account := store.seedAccount(test, "user-1", "50.00")
	const workers = 40
	var (
		waitGroup sync.WaitGroup
		mu        sync.Mutex
		succeeded = map[string]int{}
	)
	for index := 0; index < workers; index++ {
		delta := "-10.00"
		if index%4 == 0 {
			delta = "5.00"
		}
		waitGroup.Add(1)
		go func(delta string) {
			defer waitGroup.Done()
			err := store.WithTx(context.Background(), func(ctx context.Context, txStore Store) error {
				_, err := AdjustBalance(ctx, txStore, account.AccountID, decimal.RequireFromString(delta), RespectFreeze, 1)
				return err
			})
			if err != nil && !errors.Is(err, ErrInsufficientFunds) {
				test.Errorf("unexpected error: %v", err)
				return
			}
			if err == nil {
				mu.Lock()
				succeeded[delta]++
				mu.Unlock()
			}
		}(delta)
	}
	waitGroup.Wait()
	expected := decimal.RequireFromString("50.00").
		Add(decimal.NewFromInt(5).Mul(decimal.NewFromInt(int64(succeeded["5.00"])))).
		Sub(decimal.NewFromInt(10).Mul(decimal.NewFromInt(int64(succeeded["-10.00"]))))
	final := mustAmount(test, store.balanceOf(test, "user-1"))
	if !final.Decimal().Equal(expected) {
		test.Fatalf("expected balance %s, got %s", expected, final)
	}
	if final.Decimal().IsNegative() {
		test.Fatalf("balance went negative: %s", final)
	}
}
