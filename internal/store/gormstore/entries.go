package gormstore

import (
	"context"
	"errors"

	"github.com/Godswillamos0/escrow-api/pkg/ledger"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func (store *Store) AppendEntry(ctx context.Context, entry ledger.Entry) (ledger.Entry, error) {
	model := LedgerEntry{
		AccountID:    entry.AccountID.String(),
		Type:         entry.Type.String(),
		Amount:       entry.Amount.Decimal(),
		Status:       entry.Status.String(),
		Reference:    entry.Reference.String(),
		ProviderCode: entry.ProviderCode,
		Description:  entry.Description,
		Metadata:     datatypes.JSON([]byte(entry.Metadata.String())),
		NeedsReview:  entry.NeedsReview,
		ReviewReason: entry.ReviewReason,
		CreatedAt:    unixToTime(entry.CreatedUnixUTC),
		CompletedAt:  unixToTimePointer(entry.CompletedUnixUTC),
	}
	err := store.session(ctx).Create(&model).Error
	if isUniqueViolation(err, indexLedgerEntriesReference) {
		return ledger.Entry{}, wrapStoreError(errorSubjectEntry, errorCodeDuplicate, ledger.ErrDuplicateReference)
	}
	if err != nil {
		return ledger.Entry{}, wrapStoreError(errorSubjectEntry, errorCodeInsert, err)
	}
	return mapLedgerEntry(model)
}

func (store *Store) FindEntryByReference(ctx context.Context, reference ledger.ReferenceCode) (ledger.Entry, error) {
	var model LedgerEntry
	err := store.session(ctx).Where("reference = ?", reference.String()).Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ledger.Entry{}, wrapStoreError(errorSubjectEntry, errorCodeGet, ledger.ErrEntryNotFound)
		}
		return ledger.Entry{}, wrapStoreError(errorSubjectEntry, errorCodeGet, err)
	}
	return mapLedgerEntry(model)
}

// UpdateEntryStatus moves an entry from one status to another only if it is
// still in the expected status.
func (store *Store) UpdateEntryStatus(ctx context.Context, reference ledger.ReferenceCode, from ledger.EntryStatus, to ledger.EntryStatus, completedUnixUTC int64) error {
	result := store.session(ctx).
		Model(&LedgerEntry{}).
		Where("reference = ? AND status = ?", reference.String(), from.String()).
		Updates(map[string]interface{}{
			"status":       to.String(),
			"completed_at": unixToTimePointer(completedUnixUTC),
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectEntry, errorCodeUpdateStatus, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectEntry, errorCodeUpdateStatus, store.missingEntryError(ctx, reference, ledger.ErrEntryFinalized))
	}
	return nil
}

func (store *Store) UpdateEntryProviderCode(ctx context.Context, reference ledger.ReferenceCode, providerCode string) error {
	return store.updateEntry(ctx, reference, map[string]interface{}{"provider_code": providerCode})
}

func (store *Store) FlagEntryForReview(ctx context.Context, reference ledger.ReferenceCode, reason string) error {
	return store.updateEntry(ctx, reference, map[string]interface{}{
		"needs_review":  true,
		"review_reason": reason,
	})
}

func (store *Store) updateEntry(ctx context.Context, reference ledger.ReferenceCode, columns map[string]interface{}) error {
	result := store.session(ctx).
		Model(&LedgerEntry{}).
		Where("reference = ?", reference.String()).
		Updates(columns)
	if result.Error != nil {
		return wrapStoreError(errorSubjectEntry, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectEntry, errorCodeUpdate, ledger.ErrEntryNotFound)
	}
	return nil
}

func (store *Store) missingEntryError(ctx context.Context, reference ledger.ReferenceCode, whenPresent error) error {
	var count int64
	if err := store.session(ctx).Model(&LedgerEntry{}).Where("reference = ?", reference.String()).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ledger.ErrEntryNotFound
	}
	return whenPresent
}

func (store *Store) ListEntries(ctx context.Context, accountID ledger.AccountID, limit int) ([]ledger.Entry, error) {
	var rows []LedgerEntry
	err := store.session(ctx).
		Where("account_id = ?", accountID.String()).
		Order("created_at DESC, entry_id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectEntry, errorCodeList, err)
	}
	return mapLedgerEntries(rows)
}

func (store *Store) ListEntriesForReview(ctx context.Context, limit int) ([]ledger.Entry, error) {
	var rows []LedgerEntry
	err := store.session(ctx).
		Where("needs_review = ?", true).
		Order("created_at ASC, entry_id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectEntry, errorCodeList, err)
	}
	return mapLedgerEntries(rows)
}

// SumPendingEntries totals PENDING entries of one type. Amounts are added in
// decimal so SQLite's floating point sum is never involved.
func (store *Store) SumPendingEntries(ctx context.Context, accountID ledger.AccountID, entryType ledger.EntryType) (ledger.Amount, error) {
	var amounts []decimal.Decimal
	err := store.session(ctx).
		Model(&LedgerEntry{}).
		Where("account_id = ? AND type = ? AND status = ?", accountID.String(), entryType.String(), ledger.EntryStatusPending.String()).
		Pluck("amount", &amounts).Error
	if err != nil {
		return ledger.Amount{}, wrapStoreError(errorSubjectEntry, errorCodeSumPending, err)
	}
	total := decimal.Zero
	for _, amount := range amounts {
		total = total.Add(amount)
	}
	sum, err := ledger.NewAmount(total.Round(2))
	if err != nil {
		return ledger.Amount{}, wrapStoreError(errorSubjectEntry, errorCodeInvalid, err)
	}
	return sum, nil
}

func mapLedgerEntries(rows []LedgerEntry) ([]ledger.Entry, error) {
	entries := make([]ledger.Entry, 0, len(rows))
	for _, row := range rows {
		entry, err := mapLedgerEntry(row)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func mapLedgerEntry(row LedgerEntry) (ledger.Entry, error) {
	entry, err := parseLedgerEntry(row)
	if err != nil {
		return ledger.Entry{}, wrapStoreError(errorSubjectEntry, errorCodeInvalid, err)
	}
	return entry, nil
}

func parseLedgerEntry(row LedgerEntry) (ledger.Entry, error) {
	entryID, err := ledger.NewEntryID(row.EntryID)
	if err != nil {
		return ledger.Entry{}, err
	}
	accountID, err := ledger.NewAccountID(row.AccountID)
	if err != nil {
		return ledger.Entry{}, err
	}
	entryType, err := ledger.ParseEntryType(row.Type)
	if err != nil {
		return ledger.Entry{}, err
	}
	amount, err := ledger.NewPositiveAmount(row.Amount.Round(2))
	if err != nil {
		return ledger.Entry{}, err
	}
	status, err := ledger.ParseEntryStatus(row.Status)
	if err != nil {
		return ledger.Entry{}, err
	}
	reference, err := ledger.NewReferenceCode(row.Reference)
	if err != nil {
		return ledger.Entry{}, err
	}
	metadata, err := ledger.NewMetadataJSON(string(row.Metadata))
	if err != nil {
		return ledger.Entry{}, err
	}
	return ledger.Entry{
		EntryID:          entryID,
		AccountID:        accountID,
		Type:             entryType,
		Amount:           amount,
		Status:           status,
		Reference:        reference,
		ProviderCode:     row.ProviderCode,
		Description:      row.Description,
		Metadata:         metadata,
		NeedsReview:      row.NeedsReview,
		ReviewReason:     row.ReviewReason,
		CreatedUnixUTC:   row.CreatedAt.Unix(),
		CompletedUnixUTC: timeOrZero(row.CompletedAt),
	}, nil
}
