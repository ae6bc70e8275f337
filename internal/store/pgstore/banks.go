package pgstore

import (
	"context"
	"errors"
	"time"

	"github.com/Godswillamos0/escrow-api/pkg/ledger"
	"github.com/jackc/pgx/v5"
)

const (
	bankColumns = `bank_account_id::text, account_id::text, bank_code, account_number, bank_name, account_name, created_at`

	sqlInsertWithdrawalBank = `
		insert into withdrawal_banks(bank_account_id, account_id, bank_code, account_number, bank_name, account_name, created_at)
		values ($1, $2, $3, $4, $5, $6, $7)
	`

	sqlListWithdrawalBanks = `
		select ` + bankColumns + ` from withdrawal_banks
		where account_id = $1
		order by created_at asc, bank_account_id asc
	`

	sqlSelectWithdrawalBank = `select ` + bankColumns + ` from withdrawal_banks where account_id = $1 and bank_account_id = $2`

	sqlDeleteWithdrawalBank = `delete from withdrawal_banks where account_id = $1 and bank_account_id = $2`
)

func (store *Store) SaveWithdrawalBank(ctx context.Context, bank ledger.WithdrawalBank) (ledger.WithdrawalBank, error) {
	bankAccountID := newID()
	createdAt := unixToTime(bank.CreatedUnixUTC)
	_, err := store.db.Exec(ctx, sqlInsertWithdrawalBank,
		bankAccountID,
		bank.AccountID.String(),
		bank.BankCode,
		bank.AccountNumber,
		bank.BankName,
		bank.AccountName,
		createdAt,
	)
	if isUniqueViolation(err, constraintWithdrawalBanksRecipient) {
		return ledger.WithdrawalBank{}, wrapStoreError(errorSubjectBank, errorCodeDuplicate, ledger.ErrDuplicateBankAccount)
	}
	if err != nil {
		return ledger.WithdrawalBank{}, wrapStoreError(errorSubjectBank, errorCodeCreate, err)
	}
	parsedID, err := ledger.NewBankAccountID(bankAccountID)
	if err != nil {
		return ledger.WithdrawalBank{}, wrapStoreError(errorSubjectBank, errorCodeInvalid, err)
	}
	bank.BankAccountID = parsedID
	bank.CreatedUnixUTC = createdAt.Unix()
	return bank, nil
}

func (store *Store) ListWithdrawalBanks(ctx context.Context, accountID ledger.AccountID) ([]ledger.WithdrawalBank, error) {
	rows, err := store.db.Query(ctx, sqlListWithdrawalBanks, accountID.String())
	if err != nil {
		return nil, wrapStoreError(errorSubjectBank, errorCodeList, err)
	}
	defer rows.Close()
	banks := make([]ledger.WithdrawalBank, 0, 4)
	for rows.Next() {
		bank, err := scanWithdrawalBank(rows)
		if err != nil {
			return nil, wrapStoreError(errorSubjectBank, errorCodeInvalid, err)
		}
		banks = append(banks, bank)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectBank, errorCodeList, err)
	}
	return banks, nil
}

func (store *Store) GetWithdrawalBank(ctx context.Context, accountID ledger.AccountID, bankAccountID ledger.BankAccountID) (ledger.WithdrawalBank, error) {
	bank, err := scanWithdrawalBank(store.db.QueryRow(ctx, sqlSelectWithdrawalBank, accountID.String(), bankAccountID.String()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ledger.WithdrawalBank{}, wrapStoreError(errorSubjectBank, errorCodeGet, ledger.ErrBankAccountNotFound)
		}
		return ledger.WithdrawalBank{}, wrapStoreError(errorSubjectBank, errorCodeGet, err)
	}
	return bank, nil
}

func (store *Store) DeleteWithdrawalBank(ctx context.Context, accountID ledger.AccountID, bankAccountID ledger.BankAccountID) error {
	tag, err := store.db.Exec(ctx, sqlDeleteWithdrawalBank, accountID.String(), bankAccountID.String())
	if err != nil {
		return wrapStoreError(errorSubjectBank, errorCodeDelete, err)
	}
	if tag.RowsAffected() == 0 {
		return wrapStoreError(errorSubjectBank, errorCodeDelete, ledger.ErrBankAccountNotFound)
	}
	return nil
}

func scanWithdrawalBank(row pgx.Row) (ledger.WithdrawalBank, error) {
	var (
		bankAccountIDValue string
		accountIDValue     string
		bankCode           string
		accountNumber      string
		bankName           string
		accountName        string
		createdAt          time.Time
	)
	if err := row.Scan(&bankAccountIDValue, &accountIDValue, &bankCode, &accountNumber, &bankName, &accountName, &createdAt); err != nil {
		return ledger.WithdrawalBank{}, err
	}
	bankAccountID, err := ledger.NewBankAccountID(bankAccountIDValue)
	if err != nil {
		return ledger.WithdrawalBank{}, err
	}
	accountID, err := ledger.NewAccountID(accountIDValue)
	if err != nil {
		return ledger.WithdrawalBank{}, err
	}
	bank, err := ledger.NewWithdrawalBank(accountID, bankCode, bankName, accountNumber, accountName)
	if err != nil {
		return ledger.WithdrawalBank{}, err
	}
	bank.BankAccountID = bankAccountID
	bank.CreatedUnixUTC = createdAt.Unix()
	return bank, nil
}
