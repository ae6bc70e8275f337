package httpapi

import (
	"encoding/json"

	"github.com/Godswillamos0/escrow-api/internal/bankdirectory"
	"github.com/Godswillamos0/escrow-api/pkg/ledger"
)

type createWalletRequest struct {
	Email    string `json:"email"`
	Currency string `json:"currency"`
}

type adjustmentRequest struct {
	Amount json.Number `json:"amount"`
	Reason string      `json:"reason"`
}

type depositRequest struct {
	Amount json.Number `json:"amount"`
}

type withdrawalRequest struct {
	BankAccountID string      `json:"bank_account_id"`
	Amount        json.Number `json:"amount"`
	Reason        string      `json:"reason"`
}

type saveBankRequest struct {
	BankCode      string `json:"bank_code"`
	BankName      string `json:"bank_name"`
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name"`
}

type milestoneRequest struct {
	Key         string      `json:"key"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Amount      json.Number `json:"amount"`
}

type createEscrowRequest struct {
	MerchantID  string             `json:"merchant_id"`
	ProjectID   string             `json:"project_id"`
	Amount      json.Number        `json:"amount"`
	Description string             `json:"description"`
	Fund        bool               `json:"fund"`
	Milestones  []milestoneRequest `json:"milestones"`
}

type confirmRequest struct {
	MilestoneKey string `json:"milestone_key"`
}

type disputeRequest struct {
	Reason string `json:"reason"`
}

type resolveRequest struct {
	Resolution string `json:"resolution"`
}

type walletPayload struct {
	AccountID      string `json:"account_id"`
	OwnerRef       string `json:"owner_ref"`
	Email          string `json:"email"`
	Balance        string `json:"balance"`
	Currency       string `json:"currency"`
	Frozen         bool   `json:"frozen"`
	CreatedUnixUTC int64  `json:"created_unix_utc"`
	UpdatedUnixUTC int64  `json:"updated_unix_utc"`
}

type balancePayload struct {
	Balance   string `json:"balance"`
	Pending   string `json:"pending"`
	Available string `json:"available"`
	Currency  string `json:"currency"`
	Frozen    bool   `json:"frozen"`
}

type entryPayload struct {
	EntryID          string          `json:"entry_id"`
	Type             string          `json:"type"`
	Amount           string          `json:"amount"`
	Status           string          `json:"status"`
	Reference        string          `json:"reference"`
	ProviderCode     string          `json:"provider_code,omitempty"`
	Description      string          `json:"description"`
	Metadata         json.RawMessage `json:"metadata"`
	NeedsReview      bool            `json:"needs_review"`
	ReviewReason     string          `json:"review_reason,omitempty"`
	CreatedUnixUTC   int64           `json:"created_unix_utc"`
	CompletedUnixUTC int64           `json:"completed_unix_utc,omitempty"`
}

type milestonePayload struct {
	Key              string `json:"key"`
	Title            string `json:"title"`
	Description      string `json:"description"`
	Amount           string `json:"amount"`
	ClientAgreed     bool   `json:"client_agreed"`
	MerchantAgreed   bool   `json:"merchant_agreed"`
	Finished         bool   `json:"finished"`
	FinishedUnixUTC  int64  `json:"finished_unix_utc,omitempty"`
	ReleaseReference string `json:"release_reference,omitempty"`
}

type escrowPayload struct {
	EscrowID          string             `json:"escrow_id"`
	ProjectID         string             `json:"project_id"`
	ClientAccountID   string             `json:"client_account_id"`
	MerchantAccountID string             `json:"merchant_account_id"`
	Amount            string             `json:"amount"`
	ReleasedAmount    string             `json:"released_amount"`
	Remaining         string             `json:"remaining"`
	ClientAgreed      bool               `json:"client_agreed"`
	MerchantAgreed    bool               `json:"merchant_agreed"`
	Status            string             `json:"status"`
	Version           int64              `json:"version"`
	Description       string             `json:"description"`
	Milestones        []milestonePayload `json:"milestones"`
	CreatedUnixUTC    int64              `json:"created_unix_utc"`
	FinalizedUnixUTC  int64              `json:"finalized_unix_utc,omitempty"`
}

type disputePayload struct {
	EscrowID       string `json:"escrow_id"`
	RaisedBy       string `json:"raised_by,omitempty"`
	RaisedByAdmin  bool   `json:"raised_by_admin"`
	Amount         string `json:"amount"`
	Reason         string `json:"reason"`
	StatusSnapshot string `json:"status_snapshot"`
	CreatedUnixUTC int64  `json:"created_unix_utc"`
}

type bankAccountPayload struct {
	BankAccountID  string `json:"bank_account_id"`
	BankCode       string `json:"bank_code"`
	BankName       string `json:"bank_name"`
	AccountNumber  string `json:"account_number"`
	AccountName    string `json:"account_name"`
	CreatedUnixUTC int64  `json:"created_unix_utc"`
}

type bankPayload struct {
	Name string `json:"name"`
	Code string `json:"code"`
	Slug string `json:"slug"`
}

func newWalletPayload(account ledger.Account) walletPayload {
	return walletPayload{
		AccountID:      account.AccountID.String(),
		OwnerRef:       account.OwnerRef.String(),
		Email:          account.Email,
		Balance:        account.Balance.String(),
		Currency:       account.Currency.String(),
		Frozen:         account.Frozen,
		CreatedUnixUTC: account.CreatedUnixUTC,
		UpdatedUnixUTC: account.UpdatedUnixUTC,
	}
}

func newWalletPayloads(accounts []ledger.Account) []walletPayload {
	payloads := make([]walletPayload, 0, len(accounts))
	for _, account := range accounts {
		payloads = append(payloads, newWalletPayload(account))
	}
	return payloads
}

func newBalancePayload(balance ledger.Balance) balancePayload {
	return balancePayload{
		Balance:   balance.Balance.String(),
		Pending:   balance.Pending.String(),
		Available: balance.Available.String(),
		Currency:  balance.Currency.String(),
		Frozen:    balance.Frozen,
	}
}

func newEntryPayload(entry ledger.Entry) entryPayload {
	return entryPayload{
		EntryID:          entry.EntryID.String(),
		Type:             entry.Type.String(),
		Amount:           entry.Amount.String(),
		Status:           entry.Status.String(),
		Reference:        entry.Reference.String(),
		ProviderCode:     entry.ProviderCode,
		Description:      entry.Description,
		Metadata:         json.RawMessage(entry.Metadata.String()),
		NeedsReview:      entry.NeedsReview,
		ReviewReason:     entry.ReviewReason,
		CreatedUnixUTC:   entry.CreatedUnixUTC,
		CompletedUnixUTC: entry.CompletedUnixUTC,
	}
}

func newEntryPayloads(entries []ledger.Entry) []entryPayload {
	payloads := make([]entryPayload, 0, len(entries))
	for _, entry := range entries {
		payloads = append(payloads, newEntryPayload(entry))
	}
	return payloads
}

func newEscrowPayload(escrow ledger.Escrow) escrowPayload {
	milestones := make([]milestonePayload, 0, len(escrow.Milestones))
	for _, milestone := range escrow.Milestones {
		milestones = append(milestones, milestonePayload{
			Key:              milestone.Key.String(),
			Title:            milestone.Title,
			Description:      milestone.Description,
			Amount:           milestone.Amount.String(),
			ClientAgreed:     milestone.ClientAgreed,
			MerchantAgreed:   milestone.MerchantAgreed,
			Finished:         milestone.Finished,
			FinishedUnixUTC:  milestone.FinishedUnixUTC,
			ReleaseReference: milestone.ReleaseReference.String(),
		})
	}
	return escrowPayload{
		EscrowID:          escrow.EscrowID.String(),
		ProjectID:         escrow.ProjectID.String(),
		ClientAccountID:   escrow.ClientAccountID.String(),
		MerchantAccountID: escrow.MerchantAccountID.String(),
		Amount:            escrow.Amount.String(),
		ReleasedAmount:    escrow.ReleasedAmount.String(),
		Remaining:         escrow.Remaining().String(),
		ClientAgreed:      escrow.ClientAgreed,
		MerchantAgreed:    escrow.MerchantAgreed,
		Status:            escrow.Status.String(),
		Version:           escrow.Version,
		Description:       escrow.Description,
		Milestones:        milestones,
		CreatedUnixUTC:    escrow.CreatedUnixUTC,
		FinalizedUnixUTC:  escrow.FinalizedUnixUTC,
	}
}

func newEscrowPayloads(escrows []ledger.Escrow) []escrowPayload {
	payloads := make([]escrowPayload, 0, len(escrows))
	for _, escrow := range escrows {
		payloads = append(payloads, newEscrowPayload(escrow))
	}
	return payloads
}

func newDisputePayloads(disputes []ledger.DisputeRecord) []disputePayload {
	payloads := make([]disputePayload, 0, len(disputes))
	for _, dispute := range disputes {
		payloads = append(payloads, disputePayload{
			EscrowID:       dispute.EscrowID.String(),
			RaisedBy:       dispute.RaisedBy.String(),
			RaisedByAdmin:  dispute.RaisedByAdmin,
			Amount:         dispute.Amount.String(),
			Reason:         dispute.Reason,
			StatusSnapshot: dispute.StatusSnapshot.String(),
			CreatedUnixUTC: dispute.CreatedUnixUTC,
		})
	}
	return payloads
}

func newBankAccountPayload(bank ledger.WithdrawalBank) bankAccountPayload {
	return bankAccountPayload{
		BankAccountID:  bank.BankAccountID.String(),
		BankCode:       bank.BankCode,
		BankName:       bank.BankName,
		AccountNumber:  bank.AccountNumber,
		AccountName:    bank.AccountName,
		CreatedUnixUTC: bank.CreatedUnixUTC,
	}
}

func newBankPayloads(banks []bankdirectory.Bank) []bankPayload {
	payloads := make([]bankPayload, 0, len(banks))
	for _, bank := range banks {
		payloads = append(payloads, bankPayload{Name: bank.Name, Code: bank.Code, Slug: bank.Slug})
	}
	return payloads
}
