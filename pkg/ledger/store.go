package ledger

import "context"

// Store is the persistence contract used by Service.
//
// Lock* and Get* calls made on a transaction store hold row locks until the
// transaction ends where the backend supports it. Update calls that take an
// expected value are compare-and-swap operations and fail with
// ErrConcurrentUpdate or ErrEntryFinalized when the row has moved on.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error

	CreateAccount(ctx context.Context, account Account) (Account, error)
	FindAccount(ctx context.Context, ownerRef OwnerRef) (Account, error)
	LockAccount(ctx context.Context, accountID AccountID) (Account, error)
	UpdateAccountBalance(ctx context.Context, accountID AccountID, balance Amount, updatedUnixUTC int64) error
	UpdateAccountFrozen(ctx context.Context, accountID AccountID, frozen bool, updatedUnixUTC int64) error
	ListAccounts(ctx context.Context, limit int) ([]Account, error)

	AppendEntry(ctx context.Context, entry Entry) (Entry, error)
	FindEntryByReference(ctx context.Context, reference ReferenceCode) (Entry, error)
	UpdateEntryStatus(ctx context.Context, reference ReferenceCode, from EntryStatus, to EntryStatus, completedUnixUTC int64) error
	UpdateEntryProviderCode(ctx context.Context, reference ReferenceCode, providerCode string) error
	FlagEntryForReview(ctx context.Context, reference ReferenceCode, reason string) error
	ListEntries(ctx context.Context, accountID AccountID, limit int) ([]Entry, error)
	ListEntriesForReview(ctx context.Context, limit int) ([]Entry, error)
	SumPendingEntries(ctx context.Context, accountID AccountID, entryType EntryType) (Amount, error)

	CreateEscrow(ctx context.Context, escrow Escrow) (Escrow, error)
	GetEscrow(ctx context.Context, escrowID EscrowID) (Escrow, error)
	UpdateEscrow(ctx context.Context, escrow Escrow, expectedStatus EscrowStatus, expectedVersion int64) error
	FinishMilestone(ctx context.Context, escrowID EscrowID, milestone Milestone) error
	UpdateMilestoneAgreement(ctx context.Context, escrowID EscrowID, milestone Milestone) error
	ListEscrowsByParty(ctx context.Context, accountID AccountID, role PartyRole, limit int) ([]Escrow, error)
	ListEscrowsByStatus(ctx context.Context, status EscrowStatus, limit int) ([]Escrow, error)
	AppendDispute(ctx context.Context, dispute DisputeRecord) error
	ListDisputes(ctx context.Context, escrowID EscrowID) ([]DisputeRecord, error)

	SaveWithdrawalBank(ctx context.Context, bank WithdrawalBank) (WithdrawalBank, error)
	ListWithdrawalBanks(ctx context.Context, accountID AccountID) ([]WithdrawalBank, error)
	GetWithdrawalBank(ctx context.Context, accountID AccountID, bankAccountID BankAccountID) (WithdrawalBank, error)
	DeleteWithdrawalBank(ctx context.Context, accountID AccountID, bankAccountID BankAccountID) error
}
