package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
)

// stubStore is an in-memory Store. Transactions serialize on one mutex and
// work on a copy of the state that replaces the original only on success.
type stubStore struct {
	mu       *sync.Mutex
	state    *stubState
	inTx     bool
	failures map[string]error
}

type stubState struct {
	sequence   int
	accounts   map[AccountID]Account
	entries    map[ReferenceCode]Entry
	entryOrder []ReferenceCode
	escrows    map[EscrowID]Escrow
	disputes   []DisputeRecord
	banks      map[BankAccountID]WithdrawalBank
}

func newStubStore(test *testing.T) *stubStore {
	test.Helper()
	return &stubStore{
		mu: &sync.Mutex{},
		state: &stubState{
			accounts: map[AccountID]Account{},
			entries:  map[ReferenceCode]Entry{},
			escrows:  map[EscrowID]Escrow{},
			banks:    map[BankAccountID]WithdrawalBank{},
		},
		failures: map[string]error{},
	}
}

func (state *stubState) clone() *stubState {
	cloned := &stubState{
		sequence:   state.sequence,
		accounts:   make(map[AccountID]Account, len(state.accounts)),
		entries:    make(map[ReferenceCode]Entry, len(state.entries)),
		entryOrder: append([]ReferenceCode(nil), state.entryOrder...),
		escrows:    make(map[EscrowID]Escrow, len(state.escrows)),
		disputes:   append([]DisputeRecord(nil), state.disputes...),
		banks:      make(map[BankAccountID]WithdrawalBank, len(state.banks)),
	}
	for key, value := range state.accounts {
		cloned.accounts[key] = value
	}
	for key, value := range state.entries {
		cloned.entries[key] = value
	}
	for key, value := range state.escrows {
		value.Milestones = append([]Milestone(nil), value.Milestones...)
		cloned.escrows[key] = value
	}
	for key, value := range state.banks {
		cloned.banks[key] = value
	}
	return cloned
}

func (state *stubState) nextID(prefix string) string {
	state.sequence++
	return fmt.Sprintf("%s-%d", prefix, state.sequence)
}

func (store *stubStore) failWith(method string, err error) {
	store.failures[method] = err
}

func (store *stubStore) run(method string, fn func(state *stubState) error) error {
	if !store.inTx {
		store.mu.Lock()
		defer store.mu.Unlock()
	}
	if err := store.failures[method]; err != nil {
		return err
	}
	return fn(store.state)
}

func (store *stubStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	if store.inTx {
		return fn(ctx, store)
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	if err := store.failures["WithTx"]; err != nil {
		return err
	}
	transaction := &stubStore{mu: store.mu, state: store.state.clone(), inTx: true, failures: store.failures}
	if err := fn(ctx, transaction); err != nil {
		return err
	}
	store.state = transaction.state
	return nil
}

func (store *stubStore) CreateAccount(_ context.Context, account Account) (Account, error) {
	var created Account
	err := store.run("CreateAccount", func(state *stubState) error {
		for _, existing := range state.accounts {
			if existing.OwnerRef == account.OwnerRef {
				return ErrAccountExists
			}
		}
		account.AccountID = AccountID{value: state.nextID("acct")}
		state.accounts[account.AccountID] = account
		created = account
		return nil
	})
	return created, err
}

func (store *stubStore) FindAccount(_ context.Context, ownerRef OwnerRef) (Account, error) {
	var found Account
	err := store.run("FindAccount", func(state *stubState) error {
		for _, account := range state.accounts {
			if account.OwnerRef == ownerRef {
				found = account
				return nil
			}
		}
		return ErrAccountNotFound
	})
	return found, err
}

func (store *stubStore) LockAccount(_ context.Context, accountID AccountID) (Account, error) {
	var found Account
	err := store.run("LockAccount", func(state *stubState) error {
		account, ok := state.accounts[accountID]
		if !ok {
			return ErrAccountNotFound
		}
		found = account
		return nil
	})
	return found, err
}

func (store *stubStore) UpdateAccountBalance(_ context.Context, accountID AccountID, balance Amount, updatedUnixUTC int64) error {
	return store.run("UpdateAccountBalance", func(state *stubState) error {
		account, ok := state.accounts[accountID]
		if !ok {
			return ErrAccountNotFound
		}
		account.Balance = balance
		account.UpdatedUnixUTC = updatedUnixUTC
		state.accounts[accountID] = account
		return nil
	})
}

func (store *stubStore) UpdateAccountFrozen(_ context.Context, accountID AccountID, frozen bool, updatedUnixUTC int64) error {
	return store.run("UpdateAccountFrozen", func(state *stubState) error {
		account, ok := state.accounts[accountID]
		if !ok {
			return ErrAccountNotFound
		}
		account.Frozen = frozen
		account.UpdatedUnixUTC = updatedUnixUTC
		state.accounts[accountID] = account
		return nil
	})
}

func (store *stubStore) ListAccounts(_ context.Context, limit int) ([]Account, error) {
	var accounts []Account
	err := store.run("ListAccounts", func(state *stubState) error {
		for _, account := range state.accounts {
			accounts = append(accounts, account)
		}
		sort.Slice(accounts, func(left, right int) bool {
			return accounts[left].AccountID.String() < accounts[right].AccountID.String()
		})
		if len(accounts) > limit {
			accounts = accounts[:limit]
		}
		return nil
	})
	return accounts, err
}

func (store *stubStore) AppendEntry(_ context.Context, entry Entry) (Entry, error) {
	var appended Entry
	err := store.run("AppendEntry", func(state *stubState) error {
		if _, exists := state.entries[entry.Reference]; exists {
			return ErrDuplicateReference
		}
		entry.EntryID = EntryID{value: state.nextID("entry")}
		state.entries[entry.Reference] = entry
		state.entryOrder = append(state.entryOrder, entry.Reference)
		appended = entry
		return nil
	})
	return appended, err
}

func (store *stubStore) FindEntryByReference(_ context.Context, reference ReferenceCode) (Entry, error) {
	var found Entry
	err := store.run("FindEntryByReference", func(state *stubState) error {
		entry, ok := state.entries[reference]
		if !ok {
			return ErrEntryNotFound
		}
		found = entry
		return nil
	})
	return found, err
}

func (store *stubStore) UpdateEntryStatus(_ context.Context, reference ReferenceCode, from EntryStatus, to EntryStatus, completedUnixUTC int64) error {
	return store.run("UpdateEntryStatus", func(state *stubState) error {
		entry, ok := state.entries[reference]
		if !ok {
			return ErrEntryNotFound
		}
		if entry.Status != from {
			return ErrEntryFinalized
		}
		entry.Status = to
		entry.CompletedUnixUTC = completedUnixUTC
		state.entries[reference] = entry
		return nil
	})
}

func (store *stubStore) UpdateEntryProviderCode(_ context.Context, reference ReferenceCode, providerCode string) error {
	return store.run("UpdateEntryProviderCode", func(state *stubState) error {
		entry, ok := state.entries[reference]
		if !ok {
			return ErrEntryNotFound
		}
		entry.ProviderCode = providerCode
		state.entries[reference] = entry
		return nil
	})
}

func (store *stubStore) FlagEntryForReview(_ context.Context, reference ReferenceCode, reason string) error {
	return store.run("FlagEntryForReview", func(state *stubState) error {
		entry, ok := state.entries[reference]
		if !ok {
			return ErrEntryNotFound
		}
		entry.NeedsReview = true
		entry.ReviewReason = reason
		state.entries[reference] = entry
		return nil
	})
}

func (store *stubStore) ListEntries(_ context.Context, accountID AccountID, limit int) ([]Entry, error) {
	var entries []Entry
	err := store.run("ListEntries", func(state *stubState) error {
		for index := len(state.entryOrder) - 1; index >= 0 && len(entries) < limit; index-- {
			entry := state.entries[state.entryOrder[index]]
			if entry.AccountID == accountID {
				entries = append(entries, entry)
			}
		}
		return nil
	})
	return entries, err
}

func (store *stubStore) ListEntriesForReview(_ context.Context, limit int) ([]Entry, error) {
	var entries []Entry
	err := store.run("ListEntriesForReview", func(state *stubState) error {
		for _, reference := range state.entryOrder {
			if entry := state.entries[reference]; entry.NeedsReview && len(entries) < limit {
				entries = append(entries, entry)
			}
		}
		return nil
	})
	return entries, err
}

func (store *stubStore) SumPendingEntries(_ context.Context, accountID AccountID, entryType EntryType) (Amount, error) {
	total := Amount{}
	err := store.run("SumPendingEntries", func(state *stubState) error {
		for _, entry := range state.entries {
			if entry.AccountID == accountID && entry.Type == entryType && entry.Status == EntryStatusPending {
				total = total.Add(entry.Amount.ToAmount())
			}
		}
		return nil
	})
	return total, err
}

func (store *stubStore) CreateEscrow(_ context.Context, escrow Escrow) (Escrow, error) {
	var created Escrow
	err := store.run("CreateEscrow", func(state *stubState) error {
		for _, existing := range state.escrows {
			if existing.MerchantAccountID == escrow.MerchantAccountID && existing.ProjectID == escrow.ProjectID {
				return ErrDuplicateProject
			}
		}
		escrow.EscrowID = EscrowID{value: state.nextID("escrow")}
		escrow.Milestones = append([]Milestone(nil), escrow.Milestones...)
		state.escrows[escrow.EscrowID] = escrow
		created = escrow
		created.Milestones = append([]Milestone(nil), escrow.Milestones...)
		return nil
	})
	return created, err
}

func (store *stubStore) GetEscrow(_ context.Context, escrowID EscrowID) (Escrow, error) {
	var found Escrow
	err := store.run("GetEscrow", func(state *stubState) error {
		escrow, ok := state.escrows[escrowID]
		if !ok {
			return ErrEscrowNotFound
		}
		escrow.Milestones = append([]Milestone(nil), escrow.Milestones...)
		found = escrow
		return nil
	})
	return found, err
}

func (store *stubStore) UpdateEscrow(_ context.Context, escrow Escrow, expectedStatus EscrowStatus, expectedVersion int64) error {
	return store.run("UpdateEscrow", func(state *stubState) error {
		current, ok := state.escrows[escrow.EscrowID]
		if !ok {
			return ErrEscrowNotFound
		}
		if current.Status != expectedStatus || current.Version != expectedVersion {
			return ErrConcurrentUpdate
		}
		escrow.Milestones = current.Milestones
		state.escrows[escrow.EscrowID] = escrow
		return nil
	})
}

func (store *stubStore) updateMilestone(method string, escrowID EscrowID, milestone Milestone, requireUnfinished bool) error {
	return store.run(method, func(state *stubState) error {
		escrow, ok := state.escrows[escrowID]
		if !ok {
			return ErrEscrowNotFound
		}
		index := milestoneIndex(escrow.Milestones, milestone.Key)
		if index < 0 {
			return ErrMilestoneNotFound
		}
		if requireUnfinished && escrow.Milestones[index].Finished {
			return ErrMilestoneFinished
		}
		milestones := append([]Milestone(nil), escrow.Milestones...)
		milestones[index] = milestone
		escrow.Milestones = milestones
		state.escrows[escrowID] = escrow
		return nil
	})
}

func (store *stubStore) FinishMilestone(_ context.Context, escrowID EscrowID, milestone Milestone) error {
	return store.updateMilestone("FinishMilestone", escrowID, milestone, true)
}

func (store *stubStore) UpdateMilestoneAgreement(_ context.Context, escrowID EscrowID, milestone Milestone) error {
	return store.updateMilestone("UpdateMilestoneAgreement", escrowID, milestone, true)
}

func (store *stubStore) ListEscrowsByParty(_ context.Context, accountID AccountID, role PartyRole, limit int) ([]Escrow, error) {
	var escrows []Escrow
	err := store.run("ListEscrowsByParty", func(state *stubState) error {
		for _, escrow := range state.escrows {
			if (role == PartyClient && escrow.ClientAccountID == accountID) || (role == PartyMerchant && escrow.MerchantAccountID == accountID) {
				escrows = append(escrows, escrow)
			}
		}
		if len(escrows) > limit {
			escrows = escrows[:limit]
		}
		return nil
	})
	return escrows, err
}

func (store *stubStore) ListEscrowsByStatus(_ context.Context, status EscrowStatus, limit int) ([]Escrow, error) {
	var escrows []Escrow
	err := store.run("ListEscrowsByStatus", func(state *stubState) error {
		for _, escrow := range state.escrows {
			if escrow.Status == status {
				escrows = append(escrows, escrow)
			}
		}
		if len(escrows) > limit {
			escrows = escrows[:limit]
		}
		return nil
	})
	return escrows, err
}

func (store *stubStore) AppendDispute(_ context.Context, dispute DisputeRecord) error {
	return store.run("AppendDispute", func(state *stubState) error {
		state.disputes = append(state.disputes, dispute)
		return nil
	})
}

func (store *stubStore) ListDisputes(_ context.Context, escrowID EscrowID) ([]DisputeRecord, error) {
	var disputes []DisputeRecord
	err := store.run("ListDisputes", func(state *stubState) error {
		for _, dispute := range state.disputes {
			if dispute.EscrowID == escrowID {
				disputes = append(disputes, dispute)
			}
		}
		return nil
	})
	return disputes, err
}

func (store *stubStore) SaveWithdrawalBank(_ context.Context, bank WithdrawalBank) (WithdrawalBank, error) {
	var saved WithdrawalBank
	err := store.run("SaveWithdrawalBank", func(state *stubState) error {
		for _, existing := range state.banks {
			if existing.AccountID == bank.AccountID && existing.BankCode == bank.BankCode && existing.AccountNumber == bank.AccountNumber {
				return ErrDuplicateBankAccount
			}
		}
		bank.BankAccountID = BankAccountID{value: state.nextID("bank")}
		state.banks[bank.BankAccountID] = bank
		saved = bank
		return nil
	})
	return saved, err
}

func (store *stubStore) ListWithdrawalBanks(_ context.Context, accountID AccountID) ([]WithdrawalBank, error) {
	var banks []WithdrawalBank
	err := store.run("ListWithdrawalBanks", func(state *stubState) error {
		for _, bank := range state.banks {
			if bank.AccountID == accountID {
				banks = append(banks, bank)
			}
		}
		return nil
	})
	return banks, err
}

func (store *stubStore) GetWithdrawalBank(_ context.Context, accountID AccountID, bankAccountID BankAccountID) (WithdrawalBank, error) {
	var found WithdrawalBank
	err := store.run("GetWithdrawalBank", func(state *stubState) error {
		bank, ok := state.banks[bankAccountID]
		if !ok || bank.AccountID != accountID {
			return ErrBankAccountNotFound
		}
		found = bank
		return nil
	})
	return found, err
}

func (store *stubStore) DeleteWithdrawalBank(_ context.Context, accountID AccountID, bankAccountID BankAccountID) error {
	return store.run("DeleteWithdrawalBank", func(state *stubState) error {
		bank, ok := state.banks[bankAccountID]
		if !ok || bank.AccountID != accountID {
			return ErrBankAccountNotFound
		}
		delete(state.banks, bankAccountID)
		return nil
	})
}

// seedAccount creates an account with an opening balance that bypasses the ledger.
func (store *stubStore) seedAccount(test *testing.T, owner string, balance string) Account {
	test.Helper()
	account, err := store.CreateAccount(context.Background(), Account{
		OwnerRef: mustOwnerRef(test, owner),
		Email:    owner + "@example.com",
		Currency: CurrencyNGN,
	})
	if err != nil {
		test.Fatalf("seed account: %v", err)
	}
	amount := mustAmount(test, balance)
	if err := store.UpdateAccountBalance(context.Background(), account.AccountID, amount, 0); err != nil {
		test.Fatalf("seed balance: %v", err)
	}
	account.Balance = amount
	return account
}

func (store *stubStore) balanceOf(test *testing.T, owner string) string {
	test.Helper()
	account, err := store.FindAccount(context.Background(), mustOwnerRef(test, owner))
	if err != nil {
		test.Fatalf("find account %s: %v", owner, err)
	}
	return account.Balance.String()
}

func (store *stubStore) entry(test *testing.T, reference ReferenceCode) Entry {
	test.Helper()
	entry, err := store.FindEntryByReference(context.Background(), reference)
	if err != nil {
		test.Fatalf("find entry %s: %v", reference, err)
	}
	return entry
}

func mustOwnerRef(test *testing.T, raw string) OwnerRef {
	test.Helper()
	owner, err := NewOwnerRef(raw)
	if err != nil {
		test.Fatalf("owner ref: %v", err)
	}
	return owner
}

func mustAmount(test *testing.T, raw string) Amount {
	test.Helper()
	amount, err := ParseAmount(raw)
	if err != nil {
		test.Fatalf("amount: %v", err)
	}
	return amount
}

func mustPositiveAmount(test *testing.T, raw string) PositiveAmount {
	test.Helper()
	amount, err := ParsePositiveAmount(raw)
	if err != nil {
		test.Fatalf("positive amount: %v", err)
	}
	return amount
}

func mustReference(test *testing.T, raw string) ReferenceCode {
	test.Helper()
	reference, err := NewReferenceCode(raw)
	if err != nil {
		test.Fatalf("reference: %v", err)
	}
	return reference
}

func mustMilestoneKey(test *testing.T, raw string) MilestoneKey {
	test.Helper()
	key, err := NewMilestoneKey(raw)
	if err != nil {
		test.Fatalf("milestone key: %v", err)
	}
	return key
}

func mustProjectID(test *testing.T, raw string) ProjectID {
	test.Helper()
	projectID, err := NewProjectID(raw)
	if err != nil {
		test.Fatalf("project id: %v", err)
	}
	return projectID
}
