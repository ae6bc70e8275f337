package pgstore

import (
	"context"
	"errors"
	"time"

	"github.com/Godswillamos0/escrow-api/pkg/ledger"
	"github.com/jackc/pgx/v5"
)

const (
	entryColumns = `entry_id::text, account_id::text, type, amount::text, status, reference, provider_code,
		description, metadata::text, needs_review, review_reason, created_at, completed_at`

	sqlInsertEntry = `
		insert into ledger_entries(
			entry_id, account_id, type, amount, status, reference, provider_code,
			description, metadata, needs_review, review_reason, created_at, completed_at
		)
		values ($1, $2, $3, $4::numeric, $5, $6, $7, $8, $9::jsonb, $10, $11, $12, $13)
	`

	sqlSelectEntryByReference = `select ` + entryColumns + ` from ledger_entries where reference = $1`

	sqlUpdateEntryStatus = `
		update ledger_entries set status = $3, completed_at = $4
		where reference = $1 and status = $2
	`

	sqlUpdateEntryProviderCode = `update ledger_entries set provider_code = $2 where reference = $1`

	sqlFlagEntryForReview = `update ledger_entries set needs_review = true, review_reason = $2 where reference = $1`

	sqlEntryExists = `select exists(select 1 from ledger_entries where reference = $1)`

	sqlListEntries = `
		select ` + entryColumns + ` from ledger_entries
		where account_id = $1
		order by created_at desc, entry_id desc
		limit $2
	`

	sqlListEntriesForReview = `
		select ` + entryColumns + ` from ledger_entries
		where needs_review
		order by created_at asc, entry_id asc
		limit $1
	`

	sqlSumPendingEntries = `
		select coalesce(sum(amount), 0)::text from ledger_entries
		where account_id = $1 and type = $2 and status = $3
	`
)

func (store *Store) AppendEntry(ctx context.Context, entry ledger.Entry) (ledger.Entry, error) {
	entryID := newID()
	createdAt := unixToTime(entry.CreatedUnixUTC)
	_, err := store.db.Exec(ctx, sqlInsertEntry,
		entryID,
		entry.AccountID.String(),
		entry.Type.String(),
		entry.Amount.String(),
		entry.Status.String(),
		entry.Reference.String(),
		entry.ProviderCode,
		entry.Description,
		entry.Metadata.String(),
		entry.NeedsReview,
		entry.ReviewReason,
		createdAt,
		unixToTimePointer(entry.CompletedUnixUTC),
	)
	if isUniqueViolation(err, constraintLedgerEntriesReference) {
		return ledger.Entry{}, wrapStoreError(errorSubjectEntry, errorCodeDuplicate, ledger.ErrDuplicateReference)
	}
	if err != nil {
		return ledger.Entry{}, wrapStoreError(errorSubjectEntry, errorCodeInsert, err)
	}
	parsedID, err := ledger.NewEntryID(entryID)
	if err != nil {
		return ledger.Entry{}, wrapStoreError(errorSubjectEntry, errorCodeInvalid, err)
	}
	entry.EntryID = parsedID
	entry.CreatedUnixUTC = createdAt.Unix()
	return entry, nil
}

func (store *Store) FindEntryByReference(ctx context.Context, reference ledger.ReferenceCode) (ledger.Entry, error) {
	entry, err := scanEntry(store.db.QueryRow(ctx, sqlSelectEntryByReference, reference.String()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ledger.Entry{}, wrapStoreError(errorSubjectEntry, errorCodeGet, ledger.ErrEntryNotFound)
		}
		return ledger.Entry{}, wrapStoreError(errorSubjectEntry, errorCodeGet, err)
	}
	return entry, nil
}

// UpdateEntryStatus moves an entry from one status to another only if it is
// still in the expected status.
func (store *Store) UpdateEntryStatus(ctx context.Context, reference ledger.ReferenceCode, from ledger.EntryStatus, to ledger.EntryStatus, completedUnixUTC int64) error {
	tag, err := store.db.Exec(ctx, sqlUpdateEntryStatus, reference.String(), from.String(), to.String(), unixToTimePointer(completedUnixUTC))
	if err != nil {
		return wrapStoreError(errorSubjectEntry, errorCodeUpdateStatus, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	var exists bool
	if err := store.db.QueryRow(ctx, sqlEntryExists, reference.String()).Scan(&exists); err != nil {
		return wrapStoreError(errorSubjectEntry, errorCodeUpdateStatus, err)
	}
	if !exists {
		return wrapStoreError(errorSubjectEntry, errorCodeUpdateStatus, ledger.ErrEntryNotFound)
	}
	return wrapStoreError(errorSubjectEntry, errorCodeUpdateStatus, ledger.ErrEntryFinalized)
}

func (store *Store) UpdateEntryProviderCode(ctx context.Context, reference ledger.ReferenceCode, providerCode string) error {
	return store.updateEntry(ctx, sqlUpdateEntryProviderCode, reference, providerCode)
}

func (store *Store) FlagEntryForReview(ctx context.Context, reference ledger.ReferenceCode, reason string) error {
	return store.updateEntry(ctx, sqlFlagEntryForReview, reference, reason)
}

func (store *Store) updateEntry(ctx context.Context, statement string, reference ledger.ReferenceCode, value string) error {
	tag, err := store.db.Exec(ctx, statement, reference.String(), value)
	if err != nil {
		return wrapStoreError(errorSubjectEntry, errorCodeUpdate, err)
	}
	if tag.RowsAffected() == 0 {
		return wrapStoreError(errorSubjectEntry, errorCodeUpdate, ledger.ErrEntryNotFound)
	}
	return nil
}

func (store *Store) ListEntries(ctx context.Context, accountID ledger.AccountID, limit int) ([]ledger.Entry, error) {
	return store.listEntries(ctx, sqlListEntries, accountID.String(), limit)
}

func (store *Store) ListEntriesForReview(ctx context.Context, limit int) ([]ledger.Entry, error) {
	return store.listEntries(ctx, sqlListEntriesForReview, limit)
}

func (store *Store) listEntries(ctx context.Context, statement string, args ...any) ([]ledger.Entry, error) {
	rows, err := store.db.Query(ctx, statement, args...)
	if err != nil {
		return nil, wrapStoreError(errorSubjectEntry, errorCodeList, err)
	}
	defer rows.Close()
	entries := make([]ledger.Entry, 0, 32)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, wrapStoreError(errorSubjectEntry, errorCodeInvalid, err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectEntry, errorCodeList, err)
	}
	return entries, nil
}

func (store *Store) SumPendingEntries(ctx context.Context, accountID ledger.AccountID, entryType ledger.EntryType) (ledger.Amount, error) {
	var total string
	err := store.db.QueryRow(ctx, sqlSumPendingEntries, accountID.String(), entryType.String(), ledger.EntryStatusPending.String()).Scan(&total)
	if err != nil {
		return ledger.Amount{}, wrapStoreError(errorSubjectEntry, errorCodeSumPending, err)
	}
	value, err := parseDecimal(total)
	if err != nil {
		return ledger.Amount{}, wrapStoreError(errorSubjectEntry, errorCodeInvalid, err)
	}
	sum, err := ledger.NewAmount(value)
	if err != nil {
		return ledger.Amount{}, wrapStoreError(errorSubjectEntry, errorCodeInvalid, err)
	}
	return sum, nil
}

func scanEntry(row pgx.Row) (ledger.Entry, error) {
	var (
		entryIDValue   string
		accountIDValue string
		typeValue      string
		amountValue    string
		statusValue    string
		referenceValue string
		providerCode   string
		description    string
		metadataValue  string
		needsReview    bool
		reviewReason   string
		createdAt      time.Time
		completedAt    *time.Time
	)
	if err := row.Scan(
		&entryIDValue,
		&accountIDValue,
		&typeValue,
		&amountValue,
		&statusValue,
		&referenceValue,
		&providerCode,
		&description,
		&metadataValue,
		&needsReview,
		&reviewReason,
		&createdAt,
		&completedAt,
	); err != nil {
		return ledger.Entry{}, err
	}
	entryID, err := ledger.NewEntryID(entryIDValue)
	if err != nil {
		return ledger.Entry{}, err
	}
	accountID, err := ledger.NewAccountID(accountIDValue)
	if err != nil {
		return ledger.Entry{}, err
	}
	entryType, err := ledger.ParseEntryType(typeValue)
	if err != nil {
		return ledger.Entry{}, err
	}
	amountDecimal, err := parseDecimal(amountValue)
	if err != nil {
		return ledger.Entry{}, err
	}
	amount, err := ledger.NewPositiveAmount(amountDecimal)
	if err != nil {
		return ledger.Entry{}, err
	}
	status, err := ledger.ParseEntryStatus(statusValue)
	if err != nil {
		return ledger.Entry{}, err
	}
	reference, err := ledger.NewReferenceCode(referenceValue)
	if err != nil {
		return ledger.Entry{}, err
	}
	metadata, err := ledger.NewMetadataJSON(metadataValue)
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
		ProviderCode:     providerCode,
		Description:      description,
		Metadata:         metadata,
		NeedsReview:      needsReview,
		ReviewReason:     reviewReason,
		CreatedUnixUTC:   createdAt.Unix(),
		CompletedUnixUTC: timeOrZero(completedAt),
	}, nil
}
