package ledger

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	maxReferenceCodeLength = 128
	maxMilestoneKeyLength  = 48
)

// OwnerRef identifies the external user who owns a wallet.
type OwnerRef struct {
	value string
}

// AccountID identifies a wallet inside the ledger.
type AccountID struct {
	value string
}

// EntryID identifies a ledger entry.
type EntryID struct {
	value string
}

// EscrowID identifies an escrow.
type EscrowID struct {
	value string
}

// ProjectID is the external project identifier, unique per merchant.
type ProjectID struct {
	value string
}

// MilestoneKey identifies a milestone within its escrow.
type MilestoneKey struct {
	value string
}

// ReferenceCode correlates a ledger entry with an external settlement event.
type ReferenceCode struct {
	value string
}

// BankAccountID identifies a saved withdrawal bank.
type BankAccountID struct {
	value string
}

// MetadataJSON stores arbitrary entry metadata.
type MetadataJSON struct {
	value string
}

// NewOwnerRef validates and normalizes an owner reference.
func NewOwnerRef(raw string) (OwnerRef, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return OwnerRef{}, fmt.Errorf("%w: empty value", ErrInvalidOwnerRef)
	}
	return OwnerRef{value: trimmed}, nil
}

// String returns the normalized identifier.
func (ref OwnerRef) String() string {
	return ref.value
}

// NewAccountID validates and normalizes an account id.
func NewAccountID(raw string) (AccountID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return AccountID{}, fmt.Errorf("%w: empty value", ErrInvalidAccountID)
	}
	return AccountID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id AccountID) String() string {
	return id.value
}

// NewEntryID validates and normalizes an entry id.
func NewEntryID(raw string) (EntryID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return EntryID{}, fmt.Errorf("%w: empty value", ErrInvalidEntryID)
	}
	return EntryID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id EntryID) String() string {
	return id.value
}

// NewEscrowID validates and normalizes an escrow id.
func NewEscrowID(raw string) (EscrowID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return EscrowID{}, fmt.Errorf("%w: empty value", ErrInvalidEscrowID)
	}
	return EscrowID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id EscrowID) String() string {
	return id.value
}

// NewProjectID validates and normalizes a project id.
func NewProjectID(raw string) (ProjectID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ProjectID{}, fmt.Errorf("%w: empty value", ErrInvalidProjectID)
	}
	return ProjectID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id ProjectID) String() string {
	return id.value
}

// NewMilestoneKey validates and normalizes a milestone key.
func NewMilestoneKey(raw string) (MilestoneKey, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return MilestoneKey{}, fmt.Errorf("%w: empty value", ErrInvalidMilestoneKey)
	}
	if len(trimmed) > maxMilestoneKeyLength {
		return MilestoneKey{}, fmt.Errorf("%w: longer than %d characters", ErrInvalidMilestoneKey, maxMilestoneKeyLength)
	}
	return MilestoneKey{value: trimmed}, nil
}

// String returns the normalized key.
func (key MilestoneKey) String() string {
	return key.value
}

// IsZero reports whether the key is unset.
func (key MilestoneKey) IsZero() bool {
	return key.value == ""
}

// NewReferenceCode validates and normalizes a reference code.
func NewReferenceCode(raw string) (ReferenceCode, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ReferenceCode{}, fmt.Errorf("%w: empty value", ErrInvalidReferenceCode)
	}
	if len(trimmed) > maxReferenceCodeLength {
		return ReferenceCode{}, fmt.Errorf("%w: longer than %d characters", ErrInvalidReferenceCode, maxReferenceCodeLength)
	}
	return ReferenceCode{value: trimmed}, nil
}

// String returns the normalized code.
func (code ReferenceCode) String() string {
	return code.value
}

// IsZero reports whether the code is unset.
func (code ReferenceCode) IsZero() bool {
	return code.value == ""
}

// NewBankAccountID validates and normalizes a withdrawal bank id.
func NewBankAccountID(raw string) (BankAccountID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return BankAccountID{}, fmt.Errorf("%w: empty id", ErrInvalidBankAccount)
	}
	return BankAccountID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id BankAccountID) String() string {
	return id.value
}

// NewMetadataJSON validates metadata string (defaulting to "{}" for empty inputs).
func NewMetadataJSON(raw string) (MetadataJSON, error) {
	normalized := strings.TrimSpace(raw)
	if normalized == "" {
		normalized = defaultMetadataJSON
	}
	if !json.Valid([]byte(normalized)) {
		return MetadataJSON{}, fmt.Errorf("%w: must be valid json", ErrInvalidMetadataJSON)
	}
	return MetadataJSON{value: normalized}, nil
}

// String returns the normalized JSON blob.
func (metadata MetadataJSON) String() string {
	if metadata.value == "" {
		return defaultMetadataJSON
	}
	return metadata.value
}

// Currency is an ISO currency code supported by the wallet.
type Currency string

const (
	CurrencyNGN Currency = "NGN"
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
)

// ParseCurrency validates a currency code.
func ParseCurrency(raw string) (Currency, error) {
	switch currency := Currency(strings.ToUpper(strings.TrimSpace(raw))); currency {
	case CurrencyNGN, CurrencyUSD, CurrencyEUR, CurrencyGBP:
		return currency, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidCurrency, raw)
	}
}

// String returns the currency code.
func (currency Currency) String() string {
	return string(currency)
}

// EntryType enumerates ledger entry kinds.
type EntryType string

const (
	EntryDeposit       EntryType = "deposit"
	EntryWithdrawal    EntryType = "withdrawal"
	EntryEscrowFund    EntryType = "escrow_fund"
	EntryEscrowRelease EntryType = "escrow_release"
	EntryRefund        EntryType = "refund"
	EntryAdminCredit   EntryType = "admin_credit"
	EntryAdminDebit    EntryType = "admin_debit"
)

// ParseEntryType validates an entry type.
func ParseEntryType(raw string) (EntryType, error) {
	switch entryType := EntryType(strings.TrimSpace(raw)); entryType {
	case EntryDeposit, EntryWithdrawal, EntryEscrowFund, EntryEscrowRelease, EntryRefund, EntryAdminCredit, EntryAdminDebit:
		return entryType, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidEntryType, raw)
	}
}

// String returns the entry type.
func (entryType EntryType) String() string {
	return string(entryType)
}

// IsDebit reports whether the entry type reduces the balance.
func (entryType EntryType) IsDebit() bool {
	switch entryType {
	case EntryWithdrawal, EntryEscrowFund, EntryAdminDebit:
		return true
	default:
		return false
	}
}

// EntryStatus is the lifecycle of a ledger entry.
type EntryStatus string

const (
	EntryStatusPending EntryStatus = "PENDING"
	EntryStatusSuccess EntryStatus = "SUCCESS"
	EntryStatusFailed  EntryStatus = "FAILED"
)

// ParseEntryStatus validates an entry status.
func ParseEntryStatus(raw string) (EntryStatus, error) {
	switch status := EntryStatus(strings.ToUpper(strings.TrimSpace(raw))); status {
	case EntryStatusPending, EntryStatusSuccess, EntryStatusFailed:
		return status, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidEntryStatus, raw)
	}
}

// String returns the status.
func (status EntryStatus) String() string {
	return string(status)
}

// IsTerminal reports whether the status can no longer change.
func (status EntryStatus) IsTerminal() bool {
	return status == EntryStatusSuccess || status == EntryStatusFailed
}

// Account is a custodial wallet snapshot.
type Account struct {
	AccountID      AccountID
	OwnerRef       OwnerRef
	Email          string
	Balance        Amount
	Currency       Currency
	Frozen         bool
	CreatedUnixUTC int64
	UpdatedUnixUTC int64
}

// Entry is a single append-only line in the ledger.
type Entry struct {
	EntryID          EntryID
	AccountID        AccountID
	Type             EntryType
	Amount           PositiveAmount
	Status           EntryStatus
	Reference        ReferenceCode
	ProviderCode     string
	Description      string
	Metadata         MetadataJSON
	NeedsReview      bool
	ReviewReason     string
	CreatedUnixUTC   int64
	CompletedUnixUTC int64
}

// BalanceDelta returns the signed balance change the entry represents once it succeeds.
func (entry Entry) BalanceDelta() decimal.Decimal {
	if entry.Type.IsDebit() {
		return entry.Amount.Decimal().Neg()
	}
	return entry.Amount.Decimal()
}

// Balance is the wallet balance view.
type Balance struct {
	Balance   Amount
	Pending   Amount
	Available Amount
	Currency  Currency
	Frozen    bool
}

// WithdrawalBank is a saved bank account that withdrawals pay out to.
type WithdrawalBank struct {
	BankAccountID  BankAccountID
	AccountID      AccountID
	BankCode       string
	BankName       string
	AccountNumber  string
	AccountName    string
	CreatedUnixUTC int64
}

// NewWithdrawalBank validates a withdrawal bank.
func NewWithdrawalBank(accountID AccountID, bankCode string, bankName string, accountNumber string, accountName string) (WithdrawalBank, error) {
	bank := WithdrawalBank{
		AccountID:     accountID,
		BankCode:      strings.TrimSpace(bankCode),
		BankName:      strings.TrimSpace(bankName),
		AccountNumber: strings.TrimSpace(accountNumber),
		AccountName:   strings.TrimSpace(accountName),
	}
	if bank.BankCode == "" {
		return WithdrawalBank{}, fmt.Errorf("%w: empty bank code", ErrInvalidBankAccount)
	}
	if bank.AccountNumber == "" {
		return WithdrawalBank{}, fmt.Errorf("%w: empty account number", ErrInvalidBankAccount)
	}
	if bank.AccountName == "" {
		return WithdrawalBank{}, fmt.Errorf("%w: empty account name", ErrInvalidBankAccount)
	}
	return bank, nil
}
