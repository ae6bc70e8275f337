package gormstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Godswillamos0/escrow-api/pkg/ledger"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	dialectPostgres         = "postgres"
	pgUniqueViolationCode   = "23505"
	sqliteConstraintCode    = 19
	errorOperationStore     = "store"
	errorSubjectAccount     = "account"
	errorSubjectEntry       = "entry"
	errorSubjectEscrow      = "escrow"
	errorSubjectMilestone   = "milestone"
	errorSubjectDispute     = "dispute"
	errorSubjectBank        = "withdrawal_bank"
	errorCodeCreate         = "create"
	errorCodeDelete         = "delete"
	errorCodeDuplicate      = "duplicate"
	errorCodeGet            = "get"
	errorCodeInsert         = "insert"
	errorCodeInvalid        = "invalid"
	errorCodeList           = "list"
	errorCodeLock           = "lock"
	errorCodeLookup         = "lookup"
	errorCodeSumPending     = "sum_pending"
	errorCodeUpdate         = "update"
	errorCodeUpdateStatus   = "update_status"
	errorCodeUpdateBalance  = "update_balance"
	errorCodeCompareAndSwap = "compare_and_swap"
)

// Store implements ledger.Store using GORM.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// WithTx executes fn within a transaction. Nested calls reuse the open transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore ledger.Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction})
	})
}

func (store *Store) session(ctx context.Context) *gorm.DB {
	return store.db.WithContext(ctx)
}

// forUpdate takes a row lock on PostgreSQL. SQLite serializes writers on its own.
func (store *Store) forUpdate(ctx context.Context) *gorm.DB {
	query := store.session(ctx)
	if store.db.Dialector.Name() == dialectPostgres {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return query
}

func (store *Store) CreateAccount(ctx context.Context, account ledger.Account) (ledger.Account, error) {
	model := Account{
		OwnerRef:  account.OwnerRef.String(),
		Email:     account.Email,
		Balance:   account.Balance.Decimal(),
		Currency:  account.Currency.String(),
		Frozen:    account.Frozen,
		CreatedAt: unixToTime(account.CreatedUnixUTC),
		UpdatedAt: unixToTime(account.UpdatedUnixUTC),
	}
	err := store.session(ctx).Create(&model).Error
	if isUniqueViolation(err, indexAccountsOwnerRef) {
		return ledger.Account{}, wrapStoreError(errorSubjectAccount, errorCodeDuplicate, ledger.ErrAccountExists)
	}
	if err != nil {
		return ledger.Account{}, wrapStoreError(errorSubjectAccount, errorCodeCreate, err)
	}
	return mapAccount(model)
}

func (store *Store) FindAccount(ctx context.Context, ownerRef ledger.OwnerRef) (ledger.Account, error) {
	var model Account
	err := store.session(ctx).Where("owner_ref = ?", ownerRef.String()).Take(&model).Error
	if err != nil {
		return ledger.Account{}, accountLookupError(errorCodeLookup, err)
	}
	return mapAccount(model)
}

func (store *Store) LockAccount(ctx context.Context, accountID ledger.AccountID) (ledger.Account, error) {
	var model Account
	err := store.forUpdate(ctx).Where("account_id = ?", accountID.String()).Take(&model).Error
	if err != nil {
		return ledger.Account{}, accountLookupError(errorCodeLock, err)
	}
	return mapAccount(model)
}

func (store *Store) UpdateAccountBalance(ctx context.Context, accountID ledger.AccountID, balance ledger.Amount, updatedUnixUTC int64) error {
	result := store.session(ctx).
		Model(&Account{}).
		Where("account_id = ?", accountID.String()).
		Updates(map[string]interface{}{
			"balance":    balance.Decimal(),
			"updated_at": unixToTime(updatedUnixUTC),
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectAccount, errorCodeUpdateBalance, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectAccount, errorCodeUpdateBalance, ledger.ErrAccountNotFound)
	}
	return nil
}

func (store *Store) UpdateAccountFrozen(ctx context.Context, accountID ledger.AccountID, frozen bool, updatedUnixUTC int64) error {
	result := store.session(ctx).
		Model(&Account{}).
		Where("account_id = ?", accountID.String()).
		Updates(map[string]interface{}{
			"frozen":     frozen,
			"updated_at": unixToTime(updatedUnixUTC),
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectAccount, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectAccount, errorCodeUpdate, ledger.ErrAccountNotFound)
	}
	return nil
}

func (store *Store) ListAccounts(ctx context.Context, limit int) ([]ledger.Account, error) {
	var rows []Account
	err := store.session(ctx).Order("created_at ASC, account_id ASC").Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectAccount, errorCodeList, err)
	}
	accounts := make([]ledger.Account, 0, len(rows))
	for _, row := range rows {
		account, err := mapAccount(row)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, nil
}

func accountLookupError(code string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return wrapStoreError(errorSubjectAccount, code, ledger.ErrAccountNotFound)
	}
	return wrapStoreError(errorSubjectAccount, code, err)
}

func mapAccount(model Account) (ledger.Account, error) {
	accountID, err := ledger.NewAccountID(model.AccountID)
	if err != nil {
		return ledger.Account{}, wrapStoreError(errorSubjectAccount, errorCodeInvalid, err)
	}
	ownerRef, err := ledger.NewOwnerRef(model.OwnerRef)
	if err != nil {
		return ledger.Account{}, wrapStoreError(errorSubjectAccount, errorCodeInvalid, err)
	}
	balance, err := ledger.NewAmount(model.Balance.Round(2))
	if err != nil {
		return ledger.Account{}, wrapStoreError(errorSubjectAccount, errorCodeInvalid, err)
	}
	currency, err := ledger.ParseCurrency(model.Currency)
	if err != nil {
		return ledger.Account{}, wrapStoreError(errorSubjectAccount, errorCodeInvalid, err)
	}
	return ledger.Account{
		AccountID:      accountID,
		OwnerRef:       ownerRef,
		Email:          model.Email,
		Balance:        balance,
		Currency:       currency,
		Frozen:         model.Frozen,
		CreatedUnixUTC: model.CreatedAt.Unix(),
		UpdatedUnixUTC: model.UpdatedAt.Unix(),
	}, nil
}

func wrapStoreError(subject string, code string, err error) error {
	return ledger.WrapError(errorOperationStore, subject, code, err)
}

func unixToTime(unixUTC int64) time.Time {
	if unixUTC == 0 {
		return time.Now().UTC()
	}
	return time.Unix(unixUTC, 0).UTC()
}

func unixToTimePointer(unixUTC int64) *time.Time {
	if unixUTC == 0 {
		return nil
	}
	value := time.Unix(unixUTC, 0).UTC()
	return &value
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func timeOrZero(value *time.Time) int64 {
	if value == nil {
		return 0
	}
	return value.Unix()
}

// uniqueIndexTables maps each unique index to the table prefix SQLite uses in
// its constraint messages, which carry no index name.
var uniqueIndexTables = map[string]string{
	indexAccountsOwnerRef:         "accounts.",
	indexLedgerEntriesReference:   "ledger_entries.",
	indexEscrowsMerchantProject:   "escrows.",
	indexMilestonesEscrowKey:      "escrow_milestones.",
	indexWithdrawalBanksRecipient: "withdrawal_banks.",
}

// isUniqueViolation reports whether err is a unique constraint failure on the
// named index.
func isUniqueViolation(err error, index string) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode && pgErr.ConstraintName == index
	}
	message := strings.ToLower(err.Error())
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode && strings.Contains(message, ": "+uniqueIndexTables[index])
	}
	return strings.Contains(message, "unique constraint") && strings.Contains(message, uniqueIndexTables[index])
}

var _ ledger.Store = (*Store)(nil)
