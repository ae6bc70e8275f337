package pgstore_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/Godswillamos0/escrow-api/internal/store/gormstore"
	"github.com/Godswillamos0/escrow-api/internal/store/pgstore"
	"github.com/Godswillamos0/escrow-api/pkg/ledger"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	postgresDSNEnv   = "ESCROW_PG_DSN"
	testClockUnixUTC = 1700000000
)

var admin = ledger.Actor{Admin: true}

// openStore connects to the database named by ESCROW_PG_DSN and migrates it.
// Each test uses owners with a unique suffix so runs can share a database.
func openStore(test *testing.T) *pgstore.Store {
	test.Helper()
	dsn := os.Getenv(postgresDSNEnv)
	if dsn == "" {
		test.Skipf("%s not set", postgresDSNEnv)
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		test.Fatalf("gorm open: %v", err)
	}
	if err := gormstore.AutoMigrate(db); err != nil {
		test.Fatalf("migrate: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	pool, err := pgstore.Open(context.Background(), dsn)
	if err != nil {
		test.Fatalf("pool: %v", err)
	}
	test.Cleanup(pool.Close)
	return pgstore.New(pool)
}

func newService(test *testing.T, store ledger.Store) *ledger.Service {
	test.Helper()
	service, err := ledger.NewService(store, func() int64 { return testClockUnixUTC })
	if err != nil {
		test.Fatalf("service init failed: %v", err)
	}
	return service
}

func uniqueOwner(test *testing.T, prefix string) ledger.OwnerRef {
	test.Helper()
	owner, err := ledger.NewOwnerRef(prefix + "-" + uuid.NewString()[:8])
	if err != nil {
		test.Fatalf("owner: %v", err)
	}
	return owner
}

func mustPositive(test *testing.T, raw string) ledger.PositiveAmount {
	test.Helper()
	amount, err := ledger.ParsePositiveAmount(raw)
	if err != nil {
		test.Fatalf("amount: %v", err)
	}
	return amount
}

func createWallet(test *testing.T, service *ledger.Service, owner ledger.OwnerRef, balance string) {
	test.Helper()
	ctx := context.Background()
	if _, err := service.CreateWallet(ctx, owner, owner.String()+"@example.com", ledger.CurrencyNGN); err != nil {
		test.Fatalf("create wallet: %v", err)
	}
	if balance != "" {
		if _, err := service.AdminCredit(ctx, admin, owner, mustPositive(test, balance), "opening balance"); err != nil {
			test.Fatalf("opening balance: %v", err)
		}
	}
}

func balanceOf(test *testing.T, service *ledger.Service, owner ledger.OwnerRef) string {
	test.Helper()
	balance, err := service.Balance(context.Background(), owner)
	if err != nil {
		test.Fatalf("balance: %v", err)
	}
	return balance.Balance.String()
}

func TestAccountsAndEntries(test *testing.T) {
	store := openStore(test)
	service := newService(test, store)
	ctx := context.Background()
	owner := uniqueOwner(test, "wallet")
	createWallet(test, service, owner, "150.00")
	if _, err := store.CreateAccount(ctx, ledger.Account{OwnerRef: owner, Currency: ledger.CurrencyNGN}); !errors.Is(err, ledger.ErrAccountExists) {
		test.Fatalf("expected ErrAccountExists, got %v", err)
	}
	if _, err := service.AdminDebit(ctx, admin, owner, mustPositive(test, "50.25"), "fee"); err != nil {
		test.Fatalf("debit: %v", err)
	}
	if balance := balanceOf(test, service, owner); balance != "99.75" {
		test.Fatalf("expected 99.75, got %s", balance)
	}
	account, err := store.FindAccount(ctx, owner)
	if err != nil {
		test.Fatalf("find: %v", err)
	}
	entries, err := store.ListEntries(ctx, account.AccountID, 10)
	if err != nil || len(entries) != 2 {
		test.Fatalf("expected two entries, got %+v %v", entries, err)
	}
	reference := entries[0].Reference
	if err := store.UpdateEntryStatus(ctx, reference, ledger.EntryStatusPending, ledger.EntryStatusFailed, testClockUnixUTC); !errors.Is(err, ledger.ErrEntryFinalized) {
		test.Fatalf("expected ErrEntryFinalized, got %v", err)
	}
	if _, err := store.AppendEntry(ctx, entries[0]); !errors.Is(err, ledger.ErrDuplicateReference) {
		test.Fatalf("expected ErrDuplicateReference, got %v", err)
	}
	missingOwner := uniqueOwner(test, "missing")
	if _, err := store.FindAccount(ctx, missingOwner); !errors.Is(err, ledger.ErrAccountNotFound) {
		test.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestEscrowFlow(test *testing.T) {
	store := openStore(test)
	service := newService(test, store)
	ctx := context.Background()
	clientOwner := uniqueOwner(test, "client")
	merchantOwner := uniqueOwner(test, "merchant")
	createWallet(test, service, clientOwner, "700.00")
	createWallet(test, service, merchantOwner, "")
	projectID, _ := ledger.NewProjectID("website")
	design, _ := ledger.NewMilestoneKey("design")
	build, _ := ledger.NewMilestoneKey("build")

	escrow, err := service.CreateEscrow(ctx, ledger.CreateEscrowCommand{
		Client:        ledger.Actor{Owner: clientOwner},
		MerchantOwner: merchantOwner,
		ProjectID:     projectID,
		Milestones: []ledger.MilestoneInput{
			{Key: design, Title: "Design", Amount: mustPositive(test, "200.00")},
			{Key: build, Title: "Build", Amount: mustPositive(test, "300.00")},
		},
		Fund: true,
	})
	if err != nil {
		test.Fatalf("create escrow: %v", err)
	}
	if escrow.Status != ledger.EscrowStatusFunded || len(escrow.Milestones) != 2 {
		test.Fatalf("unexpected escrow: %+v", escrow)
	}
	if _, err := service.ConfirmEscrow(ctx, ledger.Actor{Owner: clientOwner}, ledger.ConfirmCommand{EscrowID: escrow.EscrowID, MilestoneKey: design}); err != nil {
		test.Fatalf("confirm design: %v", err)
	}
	reloaded, err := store.GetEscrow(ctx, escrow.EscrowID)
	if err != nil {
		test.Fatalf("reload: %v", err)
	}
	if reloaded.ReleasedAmount.String() != "200.00" || reloaded.Milestones[0].Key != design || !reloaded.Milestones[0].Finished {
		test.Fatalf("unexpected reloaded escrow: %+v", reloaded)
	}
	if _, err := service.DisputeEscrow(ctx, ledger.Actor{Owner: merchantOwner}, escrow.EscrowID, "scope change"); err != nil {
		test.Fatalf("dispute: %v", err)
	}
	refunded, err := service.ResolveDispute(ctx, admin, escrow.EscrowID, ledger.ResolveRefund)
	if err != nil || refunded.Status != ledger.EscrowStatusRefunded {
		test.Fatalf("resolve: %+v %v", refunded, err)
	}
	if balance := balanceOf(test, service, clientOwner); balance != "500.00" {
		test.Fatalf("expected client 500.00, got %s", balance)
	}
	if balance := balanceOf(test, service, merchantOwner); balance != "200.00" {
		test.Fatalf("expected merchant 200.00, got %s", balance)
	}
	disputes, err := store.ListDisputes(ctx, escrow.EscrowID)
	if err != nil || len(disputes) != 1 || disputes[0].StatusSnapshot != ledger.EscrowStatusFunded {
		test.Fatalf("unexpected disputes: %+v %v", disputes, err)
	}
	asMerchant, err := service.ListEscrows(ctx, ledger.Actor{Owner: merchantOwner}, ledger.PartyMerchant, 10)
	if err != nil || len(asMerchant) != 1 || len(asMerchant[0].Milestones) != 2 {
		test.Fatalf("expected merchant escrow with milestones, got %+v %v", asMerchant, err)
	}
	stale := reloaded
	stale.Status = ledger.EscrowStatusCancelled
	if err := store.UpdateEscrow(ctx, stale, reloaded.Status, reloaded.Version); !errors.Is(err, ledger.ErrConcurrentUpdate) {
		test.Fatalf("expected ErrConcurrentUpdate, got %v", err)
	}
}

func TestWithdrawalBanks(test *testing.T) {
	store := openStore(test)
	service := newService(test, store)
	ctx := context.Background()
	owner := uniqueOwner(test, "payee")
	createWallet(test, service, owner, "")
	bank, err := service.SaveWithdrawalBank(ctx, owner, "058", "GTBank", "0123456789", "Ada Obi")
	if err != nil {
		test.Fatalf("save: %v", err)
	}
	if _, err := service.SaveWithdrawalBank(ctx, owner, "058", "GTBank", "0123456789", "Ada Obi"); !errors.Is(err, ledger.ErrDuplicateBankAccount) {
		test.Fatalf("expected ErrDuplicateBankAccount, got %v", err)
	}
	banks, err := service.WithdrawalBanks(ctx, owner)
	if err != nil || len(banks) != 1 || banks[0].BankAccountID != bank.BankAccountID {
		test.Fatalf("unexpected banks: %+v %v", banks, err)
	}
	if err := service.DeleteWithdrawalBank(ctx, owner, bank.BankAccountID); err != nil {
		test.Fatalf("delete: %v", err)
	}
	if err := service.DeleteWithdrawalBank(ctx, owner, bank.BankAccountID); !errors.Is(err, ledger.ErrBankAccountNotFound) {
		test.Fatalf("expected ErrBankAccountNotFound, got %v", err)
	}
}
