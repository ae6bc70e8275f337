package ledger

import (
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestNewOwnerRef(test *testing.T) {
	test.Parallel()
	cases := []struct {
		name    string
		input   string
		wantErr error
		wantVal string
	}{
		{name: "valid", input: " user-123 ", wantVal: "user-123"},
		{name: "empty", input: "   ", wantErr: ErrInvalidOwnerRef},
	}
	for _, tc := range cases {
		tc := tc
		test.Run(tc.name, func(test *testing.T) {
			test.Parallel()
			result, err := NewOwnerRef(tc.input)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					test.Fatalf("expected error %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				test.Fatalf("unexpected error: %v", err)
			}
			if result.String() != tc.wantVal {
				test.Fatalf("expected %q, got %q", tc.wantVal, result.String())
			}
		})
	}
}

func TestIdentifierConstructorsRejectEmpty(test *testing.T) {
	test.Parallel()
	if _, err := NewAccountID(" "); !errors.Is(err, ErrInvalidAccountID) {
		test.Fatalf("expected ErrInvalidAccountID, got %v", err)
	}
	if _, err := NewEntryID(""); !errors.Is(err, ErrInvalidEntryID) {
		test.Fatalf("expected ErrInvalidEntryID, got %v", err)
	}
	if _, err := NewEscrowID("\t"); !errors.Is(err, ErrInvalidEscrowID) {
		test.Fatalf("expected ErrInvalidEscrowID, got %v", err)
	}
	if _, err := NewProjectID(""); !errors.Is(err, ErrInvalidProjectID) {
		test.Fatalf("expected ErrInvalidProjectID, got %v", err)
	}
	if _, err := NewBankAccountID(""); !errors.Is(err, ErrInvalidBankAccount) {
		test.Fatalf("expected ErrInvalidBankAccount, got %v", err)
	}
}

func TestNewReferenceCodeLength(test *testing.T) {
	test.Parallel()
	if _, err := NewReferenceCode(strings.Repeat("R", maxReferenceCodeLength)); err != nil {
		test.Fatalf("unexpected error at the limit: %v", err)
	}
	if _, err := NewReferenceCode(strings.Repeat("R", maxReferenceCodeLength+1)); !errors.Is(err, ErrInvalidReferenceCode) {
		test.Fatalf("expected ErrInvalidReferenceCode, got %v", err)
	}
}

func TestNewMilestoneKeyLength(test *testing.T) {
	test.Parallel()
	if _, err := NewMilestoneKey(strings.Repeat("k", maxMilestoneKeyLength+1)); !errors.Is(err, ErrInvalidMilestoneKey) {
		test.Fatalf("expected ErrInvalidMilestoneKey, got %v", err)
	}
}

func TestNewMetadataJSON(test *testing.T) {
	test.Parallel()
	metadata, err := NewMetadataJSON("")
	if err != nil {
		test.Fatalf("unexpected error: %v", err)
	}
	if metadata.String() != "{}" {
		test.Fatalf("expected default metadata, got %q", metadata.String())
	}
	if _, err := NewMetadataJSON("{bad"); !errors.Is(err, ErrInvalidMetadataJSON) {
		test.Fatalf("expected ErrInvalidMetadataJSON, got %v", err)
	}
	if (MetadataJSON{}).String() != "{}" {
		test.Fatalf("expected zero metadata to render as {}")
	}
}

func TestParseEnumerations(test *testing.T) {
	test.Parallel()
	if currency, err := ParseCurrency(" ngn "); err != nil || currency != CurrencyNGN {
		test.Fatalf("expected NGN, got %q %v", currency, err)
	}
	if _, err := ParseCurrency("XYZ"); !errors.Is(err, ErrInvalidCurrency) {
		test.Fatalf("expected ErrInvalidCurrency, got %v", err)
	}
	if _, err := ParseEntryType("bonus"); !errors.Is(err, ErrInvalidEntryType) {
		test.Fatalf("expected ErrInvalidEntryType, got %v", err)
	}
	if status, err := ParseEntryStatus("success"); err != nil || status != EntryStatusSuccess {
		test.Fatalf("expected SUCCESS, got %q %v", status, err)
	}
	if status, err := ParseEscrowStatus("disputed"); err != nil || status != EscrowStatusDisputed {
		test.Fatalf("expected DISPUTED, got %q %v", status, err)
	}
	if _, err := ParsePartyRole("broker"); !errors.Is(err, ErrInvalidPartyRole) {
		test.Fatalf("expected ErrInvalidPartyRole, got %v", err)
	}
	if _, err := ParseConfirmationPolicy("triple"); !errors.Is(err, ErrInvalidPolicy) {
		test.Fatalf("expected ErrInvalidPolicy, got %v", err)
	}
	if resolution, err := ParseDisputeResolution("REFUND"); err != nil || resolution != ResolveRefund {
		test.Fatalf("expected refund, got %q %v", resolution, err)
	}
}

func TestEntryBalanceDelta(test *testing.T) {
	test.Parallel()
	amount, err := ParsePositiveAmount("12.50")
	if err != nil {
		test.Fatalf("amount: %v", err)
	}
	cases := []struct {
		entryType EntryType
		want      string
	}{
		{entryType: EntryDeposit, want: "12.5"},
		{entryType: EntryEscrowRelease, want: "12.5"},
		{entryType: EntryRefund, want: "12.5"},
		{entryType: EntryAdminCredit, want: "12.5"},
		{entryType: EntryWithdrawal, want: "-12.5"},
		{entryType: EntryEscrowFund, want: "-12.5"},
		{entryType: EntryAdminDebit, want: "-12.5"},
	}
	for _, tc := range cases {
		delta := Entry{Type: tc.entryType, Amount: amount}.BalanceDelta()
		if !delta.Equal(decimal.RequireFromString(tc.want)) {
			test.Fatalf("%s: expected %s, got %s", tc.entryType, tc.want, delta)
		}
	}
}

func TestNewWithdrawalBank(test *testing.T) {
	test.Parallel()
	accountID, _ := NewAccountID("acct-1")
	bank, err := NewWithdrawalBank(accountID, " 058 ", "GTBank", " 0123456789 ", " Ada Obi ")
	if err != nil {
		test.Fatalf("unexpected error: %v", err)
	}
	if bank.BankCode != "058" || bank.AccountNumber != "0123456789" || bank.AccountName != "Ada Obi" {
		test.Fatalf("expected trimmed fields, got %+v", bank)
	}
	for _, missing := range [][3]string{{"", "0123456789", "Ada"}, {"058", "", "Ada"}, {"058", "0123456789", " "}} {
		if _, err := NewWithdrawalBank(accountID, missing[0], "", missing[1], missing[2]); !errors.Is(err, ErrInvalidBankAccount) {
			test.Fatalf("expected ErrInvalidBankAccount for %v, got %v", missing, err)
		}
	}
}

func TestEscrowRemainingAndRoles(test *testing.T) {
	test.Parallel()
	client, _ := NewAccountID("client")
	merchant, _ := NewAccountID("merchant")
	outsider, _ := NewAccountID("outsider")
	total, _ := ParsePositiveAmount("100.00")
	released, _ := ParseAmount("40.00")
	escrow := Escrow{ClientAccountID: client, MerchantAccountID: merchant, Amount: total, ReleasedAmount: released}
	if escrow.Remaining().String() != "60.00" {
		test.Fatalf("expected 60.00 remaining, got %s", escrow.Remaining())
	}
	if role, ok := escrow.RoleOf(client); !ok || role != PartyClient {
		test.Fatalf("expected client role, got %q %v", role, ok)
	}
	if role, ok := escrow.RoleOf(merchant); !ok || role != PartyMerchant {
		test.Fatalf("expected merchant role, got %q %v", role, ok)
	}
	if _, ok := escrow.RoleOf(outsider); ok {
		test.Fatalf("expected outsider to have no role")
	}
}
