package gormstore

import (
	"context"
	"errors"

	"github.com/Godswillamos0/escrow-api/pkg/ledger"
	"gorm.io/gorm"
)

func (store *Store) SaveWithdrawalBank(ctx context.Context, bank ledger.WithdrawalBank) (ledger.WithdrawalBank, error) {
	model := WithdrawalBank{
		AccountID:     bank.AccountID.String(),
		BankCode:      bank.BankCode,
		AccountNumber: bank.AccountNumber,
		BankName:      bank.BankName,
		AccountName:   bank.AccountName,
		CreatedAt:     unixToTime(bank.CreatedUnixUTC),
	}
	err := store.session(ctx).Create(&model).Error
	if isUniqueViolation(err, indexWithdrawalBanksRecipient) {
		return ledger.WithdrawalBank{}, wrapStoreError(errorSubjectBank, errorCodeDuplicate, ledger.ErrDuplicateBankAccount)
	}
	if err != nil {
		return ledger.WithdrawalBank{}, wrapStoreError(errorSubjectBank, errorCodeCreate, err)
	}
	return mapWithdrawalBank(model)
}

func (store *Store) ListWithdrawalBanks(ctx context.Context, accountID ledger.AccountID) ([]ledger.WithdrawalBank, error) {
	var rows []WithdrawalBank
	err := store.session(ctx).
		Where("account_id = ?", accountID.String()).
		Order("created_at ASC, bank_account_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectBank, errorCodeList, err)
	}
	banks := make([]ledger.WithdrawalBank, 0, len(rows))
	for _, row := range rows {
		bank, err := mapWithdrawalBank(row)
		if err != nil {
			return nil, err
		}
		banks = append(banks, bank)
	}
	return banks, nil
}

func (store *Store) GetWithdrawalBank(ctx context.Context, accountID ledger.AccountID, bankAccountID ledger.BankAccountID) (ledger.WithdrawalBank, error) {
	var model WithdrawalBank
	err := store.session(ctx).
		Where("account_id = ? AND bank_account_id = ?", accountID.String(), bankAccountID.String()).
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ledger.WithdrawalBank{}, wrapStoreError(errorSubjectBank, errorCodeGet, ledger.ErrBankAccountNotFound)
		}
		return ledger.WithdrawalBank{}, wrapStoreError(errorSubjectBank, errorCodeGet, err)
	}
	return mapWithdrawalBank(model)
}

func (store *Store) DeleteWithdrawalBank(ctx context.Context, accountID ledger.AccountID, bankAccountID ledger.BankAccountID) error {
	result := store.session(ctx).
		Where("account_id = ? AND bank_account_id = ?", accountID.String(), bankAccountID.String()).
		Delete(&WithdrawalBank{})
	if result.Error != nil {
		return wrapStoreError(errorSubjectBank, errorCodeDelete, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectBank, errorCodeDelete, ledger.ErrBankAccountNotFound)
	}
	return nil
}

func mapWithdrawalBank(model WithdrawalBank) (ledger.WithdrawalBank, error) {
	bankAccountID, err := ledger.NewBankAccountID(model.BankAccountID)
	if err != nil {
		return ledger.WithdrawalBank{}, wrapStoreError(errorSubjectBank, errorCodeInvalid, err)
	}
	accountID, err := ledger.NewAccountID(model.AccountID)
	if err != nil {
		return ledger.WithdrawalBank{}, wrapStoreError(errorSubjectBank, errorCodeInvalid, err)
	}
	bank, err := ledger.NewWithdrawalBank(accountID, model.BankCode, model.BankName, model.AccountNumber, model.AccountName)
	if err != nil {
		return ledger.WithdrawalBank{}, wrapStoreError(errorSubjectBank, errorCodeInvalid, err)
	}
	bank.BankAccountID = bankAccountID
	bank.CreatedUnixUTC = model.CreatedAt.Unix()
	return bank, nil
}
