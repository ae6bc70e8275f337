package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Godswillamos0/escrow-api/pkg/ledger"
	"github.com/jackc/pgx/v5"
)

const (
	escrowColumns = `escrow_id::text, project_id, client_account_id::text, merchant_account_id::text, amount::text,
		released_amount::text, client_agreed, merchant_agreed, status, version, description, created_at, finalized_at`

	milestoneColumns = `escrow_id::text, milestone_key, title, description, amount::text, client_agreed, merchant_agreed,
		finished, finished_at, release_reference`

	sqlInsertEscrow = `
		insert into escrows(
			escrow_id, project_id, client_account_id, merchant_account_id, amount, released_amount,
			client_agreed, merchant_agreed, status, version, description, created_at, finalized_at
		)
		values ($1, $2, $3, $4, $5::numeric, $6::numeric, $7, $8, $9, $10, $11, $12, $13)
	`

	sqlInsertMilestone = `
		insert into escrow_milestones(
			milestone_id, escrow_id, milestone_key, sort_order, title, description, amount,
			client_agreed, merchant_agreed, finished, finished_at, release_reference
		)
		values ($1, $2, $3, $4, $5, $6, $7::numeric, $8, $9, $10, $11, $12)
	`

	sqlSelectEscrow = `select ` + escrowColumns + ` from escrows where escrow_id = $1`

	sqlSelectMilestones = `
		select ` + milestoneColumns + ` from escrow_milestones
		where escrow_id::text = any($1::text[])
		order by escrow_id, sort_order asc
	`

	sqlUpdateEscrow = `
		update escrows
		set status = $4, version = $5, released_amount = $6::numeric,
			client_agreed = $7, merchant_agreed = $8, finalized_at = $9
		where escrow_id = $1 and status = $2 and version = $3
	`

	sqlEscrowExists = `select exists(select 1 from escrows where escrow_id = $1)`

	sqlFinishMilestone = `
		update escrow_milestones
		set client_agreed = $3, merchant_agreed = $4, finished = true, finished_at = $5, release_reference = $6
		where escrow_id = $1 and milestone_key = $2 and not finished
	`

	sqlUpdateMilestoneAgreement = `
		update escrow_milestones
		set client_agreed = $3, merchant_agreed = $4
		where escrow_id = $1 and milestone_key = $2 and not finished
	`

	sqlMilestoneExists = `select exists(select 1 from escrow_milestones where escrow_id = $1 and milestone_key = $2)`

	sqlListEscrowsByClient = `
		select ` + escrowColumns + ` from escrows
		where client_account_id = $1
		order by created_at desc, escrow_id desc
		limit $2
	`

	sqlListEscrowsByMerchant = `
		select ` + escrowColumns + ` from escrows
		where merchant_account_id = $1
		order by created_at desc, escrow_id desc
		limit $2
	`

	sqlListEscrowsByStatus = `
		select ` + escrowColumns + ` from escrows
		where status = $1
		order by created_at asc, escrow_id asc
		limit $2
	`

	sqlInsertDispute = `
		insert into escrow_disputes(dispute_id, escrow_id, raised_by, raised_by_admin, amount, reason, status_snapshot, snapshot, created_at)
		values ($1, $2, $3, $4, $5::numeric, $6, $7, $8::jsonb, $9)
	`

	sqlListDisputes = `
		select escrow_id::text, coalesce(raised_by::text, ''), raised_by_admin, amount::text, reason, status_snapshot, created_at
		from escrow_disputes
		where escrow_id = $1
		order by created_at asc, dispute_id asc
	`
)

func (store *Store) CreateEscrow(ctx context.Context, escrow ledger.Escrow) (ledger.Escrow, error) {
	escrowID := newID()
	createdAt := unixToTime(escrow.CreatedUnixUTC)
	_, err := store.db.Exec(ctx, sqlInsertEscrow,
		escrowID,
		escrow.ProjectID.String(),
		escrow.ClientAccountID.String(),
		escrow.MerchantAccountID.String(),
		escrow.Amount.String(),
		escrow.ReleasedAmount.String(),
		escrow.ClientAgreed,
		escrow.MerchantAgreed,
		escrow.Status.String(),
		escrow.Version,
		escrow.Description,
		createdAt,
		unixToTimePointer(escrow.FinalizedUnixUTC),
	)
	if isUniqueViolation(err, constraintEscrowsMerchantProject) {
		return ledger.Escrow{}, wrapStoreError(errorSubjectEscrow, errorCodeDuplicate, ledger.ErrDuplicateProject)
	}
	if err != nil {
		return ledger.Escrow{}, wrapStoreError(errorSubjectEscrow, errorCodeCreate, err)
	}
	for position, milestone := range escrow.Milestones {
		_, err := store.db.Exec(ctx, sqlInsertMilestone,
			newID(),
			escrowID,
			milestone.Key.String(),
			position,
			milestone.Title,
			milestone.Description,
			milestone.Amount.String(),
			milestone.ClientAgreed,
			milestone.MerchantAgreed,
			milestone.Finished,
			unixToTimePointer(milestone.FinishedUnixUTC),
			milestone.ReleaseReference.String(),
		)
		if isUniqueViolation(err, constraintMilestonesEscrowKey) {
			return ledger.Escrow{}, wrapStoreError(errorSubjectMilestone, errorCodeDuplicate, ledger.ErrDuplicateMilestone)
		}
		if err != nil {
			return ledger.Escrow{}, wrapStoreError(errorSubjectMilestone, errorCodeInsert, err)
		}
	}
	parsedID, err := ledger.NewEscrowID(escrowID)
	if err != nil {
		return ledger.Escrow{}, wrapStoreError(errorSubjectEscrow, errorCodeInvalid, err)
	}
	escrow.EscrowID = parsedID
	escrow.CreatedUnixUTC = createdAt.Unix()
	return escrow, nil
}

// GetEscrow loads an escrow with its milestones. Inside a transaction the
// escrow row stays locked until commit.
func (store *Store) GetEscrow(ctx context.Context, escrowID ledger.EscrowID) (ledger.Escrow, error) {
	escrow, err := scanEscrow(store.db.QueryRow(ctx, sqlSelectEscrow+store.lockSuffix(), escrowID.String()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ledger.Escrow{}, wrapStoreError(errorSubjectEscrow, errorCodeGet, ledger.ErrEscrowNotFound)
		}
		return ledger.Escrow{}, wrapStoreError(errorSubjectEscrow, errorCodeGet, err)
	}
	escrows := []ledger.Escrow{escrow}
	if err := store.attachMilestones(ctx, escrows); err != nil {
		return ledger.Escrow{}, err
	}
	return escrows[0], nil
}

// UpdateEscrow writes the escrow's mutable columns when the stored row still
// carries expectedStatus and expectedVersion.
func (store *Store) UpdateEscrow(ctx context.Context, escrow ledger.Escrow, expectedStatus ledger.EscrowStatus, expectedVersion int64) error {
	tag, err := store.db.Exec(ctx, sqlUpdateEscrow,
		escrow.EscrowID.String(),
		expectedStatus.String(),
		expectedVersion,
		escrow.Status.String(),
		escrow.Version,
		escrow.ReleasedAmount.String(),
		escrow.ClientAgreed,
		escrow.MerchantAgreed,
		unixToTimePointer(escrow.FinalizedUnixUTC),
	)
	if err != nil {
		return wrapStoreError(errorSubjectEscrow, errorCodeUpdate, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	var exists bool
	if err := store.db.QueryRow(ctx, sqlEscrowExists, escrow.EscrowID.String()).Scan(&exists); err != nil {
		return wrapStoreError(errorSubjectEscrow, errorCodeCompareAndSwap, err)
	}
	if !exists {
		return wrapStoreError(errorSubjectEscrow, errorCodeCompareAndSwap, ledger.ErrEscrowNotFound)
	}
	return wrapStoreError(errorSubjectEscrow, errorCodeCompareAndSwap, ledger.ErrConcurrentUpdate)
}

// FinishMilestone marks an unfinished milestone released. A milestone finishes once.
func (store *Store) FinishMilestone(ctx context.Context, escrowID ledger.EscrowID, milestone ledger.Milestone) error {
	return store.updateOpenMilestone(ctx, sqlFinishMilestone, escrowID, milestone.Key,
		milestone.ClientAgreed,
		milestone.MerchantAgreed,
		unixToTimePointer(milestone.FinishedUnixUTC),
		milestone.ReleaseReference.String(),
	)
}

func (store *Store) UpdateMilestoneAgreement(ctx context.Context, escrowID ledger.EscrowID, milestone ledger.Milestone) error {
	return store.updateOpenMilestone(ctx, sqlUpdateMilestoneAgreement, escrowID, milestone.Key,
		milestone.ClientAgreed,
		milestone.MerchantAgreed,
	)
}

func (store *Store) updateOpenMilestone(ctx context.Context, statement string, escrowID ledger.EscrowID, key ledger.MilestoneKey, values ...any) error {
	args := append([]any{escrowID.String(), key.String()}, values...)
	tag, err := store.db.Exec(ctx, statement, args...)
	if err != nil {
		return wrapStoreError(errorSubjectMilestone, errorCodeUpdate, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	var exists bool
	if err := store.db.QueryRow(ctx, sqlMilestoneExists, escrowID.String(), key.String()).Scan(&exists); err != nil {
		return wrapStoreError(errorSubjectMilestone, errorCodeCompareAndSwap, err)
	}
	if !exists {
		return wrapStoreError(errorSubjectMilestone, errorCodeCompareAndSwap, ledger.ErrMilestoneNotFound)
	}
	return wrapStoreError(errorSubjectMilestone, errorCodeCompareAndSwap, ledger.ErrMilestoneFinished)
}

func (store *Store) ListEscrowsByParty(ctx context.Context, accountID ledger.AccountID, role ledger.PartyRole, limit int) ([]ledger.Escrow, error) {
	statement := sqlListEscrowsByClient
	if role == ledger.PartyMerchant {
		statement = sqlListEscrowsByMerchant
	}
	return store.listEscrows(ctx, statement, accountID.String(), limit)
}

func (store *Store) ListEscrowsByStatus(ctx context.Context, status ledger.EscrowStatus, limit int) ([]ledger.Escrow, error) {
	return store.listEscrows(ctx, sqlListEscrowsByStatus, status.String(), limit)
}

func (store *Store) listEscrows(ctx context.Context, statement string, args ...any) ([]ledger.Escrow, error) {
	rows, err := store.db.Query(ctx, statement, args...)
	if err != nil {
		return nil, wrapStoreError(errorSubjectEscrow, errorCodeList, err)
	}
	escrows := make([]ledger.Escrow, 0, 16)
	for rows.Next() {
		escrow, err := scanEscrow(rows)
		if err != nil {
			rows.Close()
			return nil, wrapStoreError(errorSubjectEscrow, errorCodeInvalid, err)
		}
		escrows = append(escrows, escrow)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectEscrow, errorCodeList, err)
	}
	if err := store.attachMilestones(ctx, escrows); err != nil {
		return nil, err
	}
	return escrows, nil
}

// attachMilestones loads the milestones of every escrow in one query and
// fills them in sort order.
func (store *Store) attachMilestones(ctx context.Context, escrows []ledger.Escrow) error {
	if len(escrows) == 0 {
		return nil
	}
	ids := make([]string, 0, len(escrows))
	positions := make(map[string]int, len(escrows))
	for index, escrow := range escrows {
		ids = append(ids, escrow.EscrowID.String())
		positions[escrow.EscrowID.String()] = index
	}
	rows, err := store.db.Query(ctx, sqlSelectMilestones, ids)
	if err != nil {
		return wrapStoreError(errorSubjectMilestone, errorCodeList, err)
	}
	defer rows.Close()
	for rows.Next() {
		escrowID, milestone, err := scanMilestone(rows)
		if err != nil {
			return wrapStoreError(errorSubjectMilestone, errorCodeInvalid, err)
		}
		index, ok := positions[escrowID]
		if !ok {
			continue
		}
		escrows[index].Milestones = append(escrows[index].Milestones, milestone)
	}
	if err := rows.Err(); err != nil {
		return wrapStoreError(errorSubjectMilestone, errorCodeList, err)
	}
	return nil
}

type disputeSnapshot struct {
	Status   string `json:"status"`
	Amount   string `json:"amount"`
	RaisedBy string `json:"raised_by,omitempty"`
	Admin    bool   `json:"admin,omitempty"`
	Reason   string `json:"reason"`
}

func (store *Store) AppendDispute(ctx context.Context, dispute ledger.DisputeRecord) error {
	snapshot, err := json.Marshal(disputeSnapshot{
		Status:   dispute.StatusSnapshot.String(),
		Amount:   dispute.Amount.String(),
		RaisedBy: dispute.RaisedBy.String(),
		Admin:    dispute.RaisedByAdmin,
		Reason:   dispute.Reason,
	})
	if err != nil {
		return wrapStoreError(errorSubjectDispute, errorCodeInvalid, err)
	}
	_, err = store.db.Exec(ctx, sqlInsertDispute,
		newID(),
		dispute.EscrowID.String(),
		optionalString(dispute.RaisedBy.String()),
		dispute.RaisedByAdmin,
		dispute.Amount.String(),
		dispute.Reason,
		dispute.StatusSnapshot.String(),
		string(snapshot),
		unixToTime(dispute.CreatedUnixUTC),
	)
	if err != nil {
		return wrapStoreError(errorSubjectDispute, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) ListDisputes(ctx context.Context, escrowID ledger.EscrowID) ([]ledger.DisputeRecord, error) {
	rows, err := store.db.Query(ctx, sqlListDisputes, escrowID.String())
	if err != nil {
		return nil, wrapStoreError(errorSubjectDispute, errorCodeList, err)
	}
	defer rows.Close()
	disputes := make([]ledger.DisputeRecord, 0, 4)
	for rows.Next() {
		dispute, err := scanDispute(rows)
		if err != nil {
			return nil, wrapStoreError(errorSubjectDispute, errorCodeInvalid, err)
		}
		disputes = append(disputes, dispute)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectDispute, errorCodeList, err)
	}
	return disputes, nil
}

func scanEscrow(row pgx.Row) (ledger.Escrow, error) {
	var (
		escrowIDValue  string
		projectValue   string
		clientValue    string
		merchantValue  string
		amountValue    string
		releasedValue  string
		clientAgreed   bool
		merchantAgreed bool
		statusValue    string
		version        int64
		description    string
		createdAt      time.Time
		finalizedAt    *time.Time
	)
	if err := row.Scan(
		&escrowIDValue,
		&projectValue,
		&clientValue,
		&merchantValue,
		&amountValue,
		&releasedValue,
		&clientAgreed,
		&merchantAgreed,
		&statusValue,
		&version,
		&description,
		&createdAt,
		&finalizedAt,
	); err != nil {
		return ledger.Escrow{}, err
	}
	escrowID, err := ledger.NewEscrowID(escrowIDValue)
	if err != nil {
		return ledger.Escrow{}, err
	}
	projectID, err := ledger.NewProjectID(projectValue)
	if err != nil {
		return ledger.Escrow{}, err
	}
	clientAccountID, err := ledger.NewAccountID(clientValue)
	if err != nil {
		return ledger.Escrow{}, err
	}
	merchantAccountID, err := ledger.NewAccountID(merchantValue)
	if err != nil {
		return ledger.Escrow{}, err
	}
	amountDecimal, err := parseDecimal(amountValue)
	if err != nil {
		return ledger.Escrow{}, err
	}
	amount, err := ledger.NewPositiveAmount(amountDecimal)
	if err != nil {
		return ledger.Escrow{}, err
	}
	releasedDecimal, err := parseDecimal(releasedValue)
	if err != nil {
		return ledger.Escrow{}, err
	}
	released, err := ledger.NewAmount(releasedDecimal)
	if err != nil {
		return ledger.Escrow{}, err
	}
	status, err := ledger.ParseEscrowStatus(statusValue)
	if err != nil {
		return ledger.Escrow{}, err
	}
	return ledger.Escrow{
		EscrowID:          escrowID,
		ProjectID:         projectID,
		ClientAccountID:   clientAccountID,
		MerchantAccountID: merchantAccountID,
		Amount:            amount,
		ReleasedAmount:    released,
		ClientAgreed:      clientAgreed,
		MerchantAgreed:    merchantAgreed,
		Status:            status,
		Version:           version,
		Description:       description,
		Milestones:        []ledger.Milestone{},
		CreatedUnixUTC:    createdAt.Unix(),
		FinalizedUnixUTC:  timeOrZero(finalizedAt),
	}, nil
}

func scanMilestone(row pgx.Row) (string, ledger.Milestone, error) {
	var (
		escrowIDValue    string
		keyValue         string
		title            string
		description      string
		amountValue      string
		clientAgreed     bool
		merchantAgreed   bool
		finished         bool
		finishedAt       *time.Time
		releaseReference string
	)
	if err := row.Scan(
		&escrowIDValue,
		&keyValue,
		&title,
		&description,
		&amountValue,
		&clientAgreed,
		&merchantAgreed,
		&finished,
		&finishedAt,
		&releaseReference,
	); err != nil {
		return "", ledger.Milestone{}, err
	}
	key, err := ledger.NewMilestoneKey(keyValue)
	if err != nil {
		return "", ledger.Milestone{}, err
	}
	amountDecimal, err := parseDecimal(amountValue)
	if err != nil {
		return "", ledger.Milestone{}, err
	}
	amount, err := ledger.NewPositiveAmount(amountDecimal)
	if err != nil {
		return "", ledger.Milestone{}, err
	}
	var reference ledger.ReferenceCode
	if releaseReference != "" {
		if reference, err = ledger.NewReferenceCode(releaseReference); err != nil {
			return "", ledger.Milestone{}, err
		}
	}
	return escrowIDValue, ledger.Milestone{
		Key:              key,
		Title:            title,
		Description:      description,
		Amount:           amount,
		ClientAgreed:     clientAgreed,
		MerchantAgreed:   merchantAgreed,
		Finished:         finished,
		FinishedUnixUTC:  timeOrZero(finishedAt),
		ReleaseReference: reference,
	}, nil
}

func scanDispute(row pgx.Row) (ledger.DisputeRecord, error) {
	var (
		escrowIDValue string
		raisedByValue string
		raisedByAdmin bool
		amountValue   string
		reason        string
		statusValue   string
		createdAt     time.Time
	)
	if err := row.Scan(&escrowIDValue, &raisedByValue, &raisedByAdmin, &amountValue, &reason, &statusValue, &createdAt); err != nil {
		return ledger.DisputeRecord{}, err
	}
	escrowID, err := ledger.NewEscrowID(escrowIDValue)
	if err != nil {
		return ledger.DisputeRecord{}, err
	}
	var raisedBy ledger.AccountID
	if raisedByValue != "" {
		if raisedBy, err = ledger.NewAccountID(raisedByValue); err != nil {
			return ledger.DisputeRecord{}, err
		}
	}
	amountDecimal, err := parseDecimal(amountValue)
	if err != nil {
		return ledger.DisputeRecord{}, err
	}
	amount, err := ledger.NewPositiveAmount(amountDecimal)
	if err != nil {
		return ledger.DisputeRecord{}, err
	}
	status, err := ledger.ParseEscrowStatus(statusValue)
	if err != nil {
		return ledger.DisputeRecord{}, err
	}
	return ledger.DisputeRecord{
		EscrowID:       escrowID,
		RaisedBy:       raisedBy,
		RaisedByAdmin:  raisedByAdmin,
		Amount:         amount,
		Reason:         reason,
		StatusSnapshot: status,
		CreatedUnixUTC: createdAt.Unix(),
	}, nil
}
