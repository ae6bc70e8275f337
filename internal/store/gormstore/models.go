package gormstore

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	indexAccountsOwnerRef         = "uniq_accounts_owner_ref"
	indexLedgerEntriesReference   = "uniq_ledger_entries_reference"
	indexEscrowsMerchantProject   = "uniq_escrows_merchant_project"
	indexMilestonesEscrowKey      = "uniq_milestones_escrow_key"
	indexWithdrawalBanksRecipient = "uniq_withdrawal_banks_recipient"
)

// Account represents the accounts table.
type Account struct {
	AccountID string          `gorm:"type:uuid;primaryKey"`
	OwnerRef  string          `gorm:"not null;size:128;uniqueIndex:uniq_accounts_owner_ref"`
	Email     string          `gorm:"not null;default:''"`
	Balance   decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	Currency  string          `gorm:"not null;size:3"`
	Frozen    bool            `gorm:"not null;default:false"`
	CreatedAt time.Time       `gorm:"not null;index"`
	UpdatedAt time.Time       `gorm:"not null"`
}

func (Account) TableName() string { return "accounts" }

func (account *Account) BeforeCreate(tx *gorm.DB) error {
	if account.AccountID == "" {
		account.AccountID = uuid.NewString()
	}
	return nil
}

// LedgerEntry mirrors the ledger_entries table.
type LedgerEntry struct {
	EntryID      string          `gorm:"type:uuid;primaryKey"`
	AccountID    string          `gorm:"type:uuid;not null;index:idx_ledger_account_created,priority:1"`
	Type         string          `gorm:"not null;size:32"`
	Amount       decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	Status       string          `gorm:"not null;size:16;index"`
	Reference    string          `gorm:"not null;size:128;uniqueIndex:uniq_ledger_entries_reference"`
	ProviderCode string          `gorm:"not null;default:''"`
	Description  string          `gorm:"not null;default:''"`
	Metadata     datatypes.JSON  `gorm:"type:jsonb;not null"`
	NeedsReview  bool            `gorm:"not null;default:false;index"`
	ReviewReason string          `gorm:"not null;default:''"`
	CreatedAt    time.Time       `gorm:"not null;index:idx_ledger_account_created,priority:2"`
	CompletedAt  *time.Time      `gorm:""`
}

func (LedgerEntry) TableName() string { return "ledger_entries" }

func (entry *LedgerEntry) BeforeCreate(tx *gorm.DB) error {
	if entry.EntryID == "" {
		entry.EntryID = uuid.NewString()
	}
	return nil
}

// Escrow mirrors the escrows table.
type Escrow struct {
	EscrowID          string          `gorm:"type:uuid;primaryKey"`
	ProjectID         string          `gorm:"not null;size:128;uniqueIndex:uniq_escrows_merchant_project,priority:2"`
	ClientAccountID   string          `gorm:"type:uuid;not null;index"`
	MerchantAccountID string          `gorm:"type:uuid;not null;uniqueIndex:uniq_escrows_merchant_project,priority:1"`
	Amount            decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	ReleasedAmount    decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	ClientAgreed      bool            `gorm:"not null;default:false"`
	MerchantAgreed    bool            `gorm:"not null;default:false"`
	Status            string          `gorm:"not null;size:16;index"`
	Version           int64           `gorm:"not null"`
	Description       string          `gorm:"not null;default:''"`
	CreatedAt         time.Time       `gorm:"not null;index"`
	FinalizedAt       *time.Time      `gorm:""`
	Milestones        []Milestone     `gorm:"foreignKey:EscrowID;references:EscrowID"`
}

func (Escrow) TableName() string { return "escrows" }

func (escrow *Escrow) BeforeCreate(tx *gorm.DB) error {
	if escrow.EscrowID == "" {
		escrow.EscrowID = uuid.NewString()
	}
	return nil
}

// Milestone mirrors the escrow_milestones table.
type Milestone struct {
	MilestoneID      string          `gorm:"type:uuid;primaryKey"`
	EscrowID         string          `gorm:"type:uuid;not null;uniqueIndex:uniq_milestones_escrow_key,priority:1"`
	Key              string          `gorm:"column:milestone_key;not null;size:48;uniqueIndex:uniq_milestones_escrow_key,priority:2"`
	Position         int             `gorm:"column:sort_order;not null"`
	Title            string          `gorm:"not null;default:''"`
	Description      string          `gorm:"not null;default:''"`
	Amount           decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	ClientAgreed     bool            `gorm:"not null;default:false"`
	MerchantAgreed   bool            `gorm:"not null;default:false"`
	Finished         bool            `gorm:"not null;default:false"`
	FinishedAt       *time.Time      `gorm:""`
	ReleaseReference string          `gorm:"not null;default:''"`
}

func (Milestone) TableName() string { return "escrow_milestones" }

func (milestone *Milestone) BeforeCreate(tx *gorm.DB) error {
	if milestone.MilestoneID == "" {
		milestone.MilestoneID = uuid.NewString()
	}
	return nil
}

// Dispute mirrors the escrow_disputes table. Rows are never updated.
type Dispute struct {
	DisputeID      string          `gorm:"type:uuid;primaryKey"`
	EscrowID       string          `gorm:"type:uuid;not null;index"`
	RaisedBy       *string         `gorm:"type:uuid"`
	RaisedByAdmin  bool            `gorm:"not null;default:false"`
	Amount         decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	Reason         string          `gorm:"not null"`
	StatusSnapshot string          `gorm:"not null;size:16"`
	Snapshot       datatypes.JSON  `gorm:"type:jsonb;not null"`
	CreatedAt      time.Time       `gorm:"not null"`
}

func (Dispute) TableName() string { return "escrow_disputes" }

func (dispute *Dispute) BeforeCreate(tx *gorm.DB) error {
	if dispute.DisputeID == "" {
		dispute.DisputeID = uuid.NewString()
	}
	return nil
}

// WithdrawalBank mirrors the withdrawal_banks table.
type WithdrawalBank struct {
	BankAccountID string    `gorm:"type:uuid;primaryKey"`
	AccountID     string    `gorm:"type:uuid;not null;uniqueIndex:uniq_withdrawal_banks_recipient,priority:1"`
	BankCode      string    `gorm:"not null;size:16;uniqueIndex:uniq_withdrawal_banks_recipient,priority:2"`
	AccountNumber string    `gorm:"not null;size:32;uniqueIndex:uniq_withdrawal_banks_recipient,priority:3"`
	BankName      string    `gorm:"not null;default:''"`
	AccountName   string    `gorm:"not null"`
	CreatedAt     time.Time `gorm:"not null"`
}

func (WithdrawalBank) TableName() string { return "withdrawal_banks" }

func (bank *WithdrawalBank) BeforeCreate(tx *gorm.DB) error {
	if bank.BankAccountID == "" {
		bank.BankAccountID = uuid.NewString()
	}
	return nil
}

// AutoMigrate creates or updates every table the store uses.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Account{}, &LedgerEntry{}, &Escrow{}, &Milestone{}, &Dispute{}, &WithdrawalBank{})
}
