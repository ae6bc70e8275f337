// Package pgstore implements ledger.Store with raw SQL over a pgx pool. It
// reads and writes the schema that gormstore.AutoMigrate creates.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Godswillamos0/escrow-api/pkg/ledger"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const (
	constraintAccountsOwnerRef         = "uniq_accounts_owner_ref"
	constraintLedgerEntriesReference   = "uniq_ledger_entries_reference"
	constraintEscrowsMerchantProject   = "uniq_escrows_merchant_project"
	constraintMilestonesEscrowKey      = "uniq_milestones_escrow_key"
	constraintWithdrawalBanksRecipient = "uniq_withdrawal_banks_recipient"
	pgUniqueViolationCode              = "23505"
	errorOperationStore                = "store"
	errorSubjectAccount                = "account"
	errorSubjectEntry                  = "entry"
	errorSubjectEscrow                 = "escrow"
	errorSubjectMilestone              = "milestone"
	errorSubjectDispute                = "dispute"
	errorSubjectBank                   = "withdrawal_bank"
	errorSubjectTransaction            = "transaction"
	errorCodeBegin                     = "begin"
	errorCodeCommit                    = "commit"
	errorCodeCreate                    = "create"
	errorCodeDelete                    = "delete"
	errorCodeDuplicate                 = "duplicate"
	errorCodeGet                       = "get"
	errorCodeInsert                    = "insert"
	errorCodeInvalid                   = "invalid"
	errorCodeList                      = "list"
	errorCodeLock                      = "lock"
	errorCodeLookup                    = "lookup"
	errorCodeSumPending                = "sum_pending"
	errorCodeUpdate                    = "update"
	errorCodeUpdateStatus              = "update_status"
	errorCodeUpdateBalance             = "update_balance"
	errorCodeCompareAndSwap            = "compare_and_swap"

	accountColumns = `account_id::text, owner_ref, email, balance::text, currency, frozen, created_at, updated_at`

	sqlInsertAccount = `
		insert into accounts(account_id, owner_ref, email, balance, currency, frozen, created_at, updated_at)
		values ($1, $2, $3, $4::numeric, $5, $6, $7, $8)
	`

	sqlSelectAccountByOwner = `select ` + accountColumns + ` from accounts where owner_ref = $1`

	sqlLockAccount = `select ` + accountColumns + ` from accounts where account_id = $1 for update`

	sqlUpdateAccountBalance = `update accounts set balance = $2::numeric, updated_at = $3 where account_id = $1`

	sqlUpdateAccountFrozen = `update accounts set frozen = $2, updated_at = $3 where account_id = $1`

	sqlListAccounts = `select ` + accountColumns + ` from accounts order by created_at asc, account_id asc limit $1`
)

// querier is the statement surface shared by the pool and an open transaction.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements ledger.Store using a pgx connection pool (autocommit).
// Stores handed to WithTx callbacks run every statement in that transaction.
type Store struct {
	pool *pgxpool.Pool
	db   querier
	inTx bool
}

// New returns a Store backed by a pgx pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, db: pool}
}

// Open connects a pool to dsn and verifies it answers.
func Open(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgx ping: %w", err)
	}
	return pool, nil
}

// WithTx executes fn within a transaction. Nested calls reuse the open transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore ledger.Store) error) error {
	if store.inTx {
		return fn(ctx, store)
	}
	tx, err := store.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeBegin, err)
	}
	transactionStore := &Store{pool: store.pool, db: tx, inTx: true}
	if err := fn(ctx, transactionStore); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeCommit, err)
	}
	return nil
}

// lockSuffix returns the row-lock clause inside a transaction. Outside one a
// lock would be released as soon as the statement finished.
func (store *Store) lockSuffix() string {
	if store.inTx {
		return " for update"
	}
	return ""
}

func (store *Store) CreateAccount(ctx context.Context, account ledger.Account) (ledger.Account, error) {
	accountID := newID()
	createdAt := unixToTime(account.CreatedUnixUTC)
	updatedAt := unixToTime(account.UpdatedUnixUTC)
	_, err := store.db.Exec(ctx, sqlInsertAccount,
		accountID,
		account.OwnerRef.String(),
		account.Email,
		account.Balance.String(),
		account.Currency.String(),
		account.Frozen,
		createdAt,
		updatedAt,
	)
	if isUniqueViolation(err, constraintAccountsOwnerRef) {
		return ledger.Account{}, wrapStoreError(errorSubjectAccount, errorCodeDuplicate, ledger.ErrAccountExists)
	}
	if err != nil {
		return ledger.Account{}, wrapStoreError(errorSubjectAccount, errorCodeCreate, err)
	}
	parsedID, err := ledger.NewAccountID(accountID)
	if err != nil {
		return ledger.Account{}, wrapStoreError(errorSubjectAccount, errorCodeInvalid, err)
	}
	account.AccountID = parsedID
	account.CreatedUnixUTC = createdAt.Unix()
	account.UpdatedUnixUTC = updatedAt.Unix()
	return account, nil
}

func (store *Store) FindAccount(ctx context.Context, ownerRef ledger.OwnerRef) (ledger.Account, error) {
	account, err := scanAccount(store.db.QueryRow(ctx, sqlSelectAccountByOwner, ownerRef.String()))
	if err != nil {
		return ledger.Account{}, accountLookupError(errorCodeLookup, err)
	}
	return account, nil
}

func (store *Store) LockAccount(ctx context.Context, accountID ledger.AccountID) (ledger.Account, error) {
	account, err := scanAccount(store.db.QueryRow(ctx, sqlLockAccount, accountID.String()))
	if err != nil {
		return ledger.Account{}, accountLookupError(errorCodeLock, err)
	}
	return account, nil
}

func (store *Store) UpdateAccountBalance(ctx context.Context, accountID ledger.AccountID, balance ledger.Amount, updatedUnixUTC int64) error {
	tag, err := store.db.Exec(ctx, sqlUpdateAccountBalance, accountID.String(), balance.String(), unixToTime(updatedUnixUTC))
	if err != nil {
		return wrapStoreError(errorSubjectAccount, errorCodeUpdateBalance, err)
	}
	if tag.RowsAffected() == 0 {
		return wrapStoreError(errorSubjectAccount, errorCodeUpdateBalance, ledger.ErrAccountNotFound)
	}
	return nil
}

func (store *Store) UpdateAccountFrozen(ctx context.Context, accountID ledger.AccountID, frozen bool, updatedUnixUTC int64) error {
	tag, err := store.db.Exec(ctx, sqlUpdateAccountFrozen, accountID.String(), frozen, unixToTime(updatedUnixUTC))
	if err != nil {
		return wrapStoreError(errorSubjectAccount, errorCodeUpdate, err)
	}
	if tag.RowsAffected() == 0 {
		return wrapStoreError(errorSubjectAccount, errorCodeUpdate, ledger.ErrAccountNotFound)
	}
	return nil
}

func (store *Store) ListAccounts(ctx context.Context, limit int) ([]ledger.Account, error) {
	rows, err := store.db.Query(ctx, sqlListAccounts, limit)
	if err != nil {
		return nil, wrapStoreError(errorSubjectAccount, errorCodeList, err)
	}
	defer rows.Close()
	accounts := make([]ledger.Account, 0, limit)
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, wrapStoreError(errorSubjectAccount, errorCodeInvalid, err)
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectAccount, errorCodeList, err)
	}
	return accounts, nil
}

func scanAccount(row pgx.Row) (ledger.Account, error) {
	var (
		accountIDValue string
		ownerValue     string
		email          string
		balanceValue   string
		currencyValue  string
		frozen         bool
		createdAt      time.Time
		updatedAt      time.Time
	)
	if err := row.Scan(&accountIDValue, &ownerValue, &email, &balanceValue, &currencyValue, &frozen, &createdAt, &updatedAt); err != nil {
		return ledger.Account{}, err
	}
	accountID, err := ledger.NewAccountID(accountIDValue)
	if err != nil {
		return ledger.Account{}, err
	}
	ownerRef, err := ledger.NewOwnerRef(ownerValue)
	if err != nil {
		return ledger.Account{}, err
	}
	balanceDecimal, err := parseDecimal(balanceValue)
	if err != nil {
		return ledger.Account{}, err
	}
	balance, err := ledger.NewAmount(balanceDecimal)
	if err != nil {
		return ledger.Account{}, err
	}
	currency, err := ledger.ParseCurrency(currencyValue)
	if err != nil {
		return ledger.Account{}, err
	}
	return ledger.Account{
		AccountID:      accountID,
		OwnerRef:       ownerRef,
		Email:          email,
		Balance:        balance,
		Currency:       currency,
		Frozen:         frozen,
		CreatedUnixUTC: createdAt.Unix(),
		UpdatedUnixUTC: updatedAt.Unix(),
	}, nil
}

func accountLookupError(code string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return wrapStoreError(errorSubjectAccount, code, ledger.ErrAccountNotFound)
	}
	return wrapStoreError(errorSubjectAccount, code, err)
}

func parseDecimal(raw string) (decimal.Decimal, error) {
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return value.Round(2), nil
}

func newID() string {
	return uuid.NewString()
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

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode && pgErr.ConstraintName == constraint
	}
	return false
}

var _ ledger.Store = (*Store)(nil)
