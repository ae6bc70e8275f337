package gormstore

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/Godswillamos0/escrow-api/pkg/ledger"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func (store *Store) CreateEscrow(ctx context.Context, escrow ledger.Escrow) (ledger.Escrow, error) {
	model := Escrow{
		ProjectID:         escrow.ProjectID.String(),
		ClientAccountID:   escrow.ClientAccountID.String(),
		MerchantAccountID: escrow.MerchantAccountID.String(),
		Amount:            escrow.Amount.Decimal(),
		ReleasedAmount:    escrow.ReleasedAmount.Decimal(),
		ClientAgreed:      escrow.ClientAgreed,
		MerchantAgreed:    escrow.MerchantAgreed,
		Status:            escrow.Status.String(),
		Version:           escrow.Version,
		Description:       escrow.Description,
		CreatedAt:         unixToTime(escrow.CreatedUnixUTC),
		FinalizedAt:       unixToTimePointer(escrow.FinalizedUnixUTC),
		Milestones:        make([]Milestone, 0, len(escrow.Milestones)),
	}
	for position, milestone := range escrow.Milestones {
		model.Milestones = append(model.Milestones, Milestone{
			Key:              milestone.Key.String(),
			Position:         position,
			Title:            milestone.Title,
			Description:      milestone.Description,
			Amount:           milestone.Amount.Decimal(),
			ClientAgreed:     milestone.ClientAgreed,
			MerchantAgreed:   milestone.MerchantAgreed,
			Finished:         milestone.Finished,
			FinishedAt:       unixToTimePointer(milestone.FinishedUnixUTC),
			ReleaseReference: milestone.ReleaseReference.String(),
		})
	}
	err := store.session(ctx).Create(&model).Error
	if isUniqueViolation(err, indexMilestonesEscrowKey) {
		return ledger.Escrow{}, wrapStoreError(errorSubjectMilestone, errorCodeDuplicate, ledger.ErrDuplicateMilestone)
	}
	if isUniqueViolation(err, indexEscrowsMerchantProject) {
		return ledger.Escrow{}, wrapStoreError(errorSubjectEscrow, errorCodeDuplicate, ledger.ErrDuplicateProject)
	}
	if err != nil {
		return ledger.Escrow{}, wrapStoreError(errorSubjectEscrow, errorCodeCreate, err)
	}
	return mapEscrow(model)
}

func (store *Store) GetEscrow(ctx context.Context, escrowID ledger.EscrowID) (ledger.Escrow, error) {
	var model Escrow
	err := store.withMilestones(ctx).Where("escrow_id = ?", escrowID.String()).Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ledger.Escrow{}, wrapStoreError(errorSubjectEscrow, errorCodeGet, ledger.ErrEscrowNotFound)
		}
		return ledger.Escrow{}, wrapStoreError(errorSubjectEscrow, errorCodeGet, err)
	}
	return mapEscrow(model)
}

// UpdateEscrow writes the escrow's mutable columns when the stored row still
// carries expectedStatus and expectedVersion.
func (store *Store) UpdateEscrow(ctx context.Context, escrow ledger.Escrow, expectedStatus ledger.EscrowStatus, expectedVersion int64) error {
	result := store.session(ctx).
		Model(&Escrow{}).
		Where("escrow_id = ? AND status = ? AND version = ?", escrow.EscrowID.String(), expectedStatus.String(), expectedVersion).
		Updates(map[string]interface{}{
			"status":          escrow.Status.String(),
			"version":         escrow.Version,
			"released_amount": escrow.ReleasedAmount.Decimal(),
			"client_agreed":   escrow.ClientAgreed,
			"merchant_agreed": escrow.MerchantAgreed,
			"finalized_at":    unixToTimePointer(escrow.FinalizedUnixUTC),
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectEscrow, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := store.session(ctx).Model(&Escrow{}).Where("escrow_id = ?", escrow.EscrowID.String()).Count(&count).Error; err != nil {
			return wrapStoreError(errorSubjectEscrow, errorCodeCompareAndSwap, err)
		}
		if count == 0 {
			return wrapStoreError(errorSubjectEscrow, errorCodeCompareAndSwap, ledger.ErrEscrowNotFound)
		}
		return wrapStoreError(errorSubjectEscrow, errorCodeCompareAndSwap, ledger.ErrConcurrentUpdate)
	}
	return nil
}

// FinishMilestone marks an unfinished milestone released. A milestone finishes once.
func (store *Store) FinishMilestone(ctx context.Context, escrowID ledger.EscrowID, milestone ledger.Milestone) error {
	return store.updateOpenMilestone(ctx, escrowID, milestone.Key, map[string]interface{}{
		"client_agreed":     milestone.ClientAgreed,
		"merchant_agreed":   milestone.MerchantAgreed,
		"finished":          true,
		"finished_at":       unixToTimePointer(milestone.FinishedUnixUTC),
		"release_reference": milestone.ReleaseReference.String(),
	})
}

func (store *Store) UpdateMilestoneAgreement(ctx context.Context, escrowID ledger.EscrowID, milestone ledger.Milestone) error {
	return store.updateOpenMilestone(ctx, escrowID, milestone.Key, map[string]interface{}{
		"client_agreed":   milestone.ClientAgreed,
		"merchant_agreed": milestone.MerchantAgreed,
	})
}

func (store *Store) updateOpenMilestone(ctx context.Context, escrowID ledger.EscrowID, key ledger.MilestoneKey, columns map[string]interface{}) error {
	result := store.session(ctx).
		Model(&Milestone{}).
		Where("escrow_id = ? AND milestone_key = ? AND finished = ?", escrowID.String(), key.String(), false).
		Updates(columns)
	if result.Error != nil {
		return wrapStoreError(errorSubjectMilestone, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}
	var count int64
	if err := store.session(ctx).Model(&Milestone{}).Where("escrow_id = ? AND milestone_key = ?", escrowID.String(), key.String()).Count(&count).Error; err != nil {
		return wrapStoreError(errorSubjectMilestone, errorCodeCompareAndSwap, err)
	}
	if count == 0 {
		return wrapStoreError(errorSubjectMilestone, errorCodeCompareAndSwap, ledger.ErrMilestoneNotFound)
	}
	return wrapStoreError(errorSubjectMilestone, errorCodeCompareAndSwap, ledger.ErrMilestoneFinished)
}

func (store *Store) ListEscrowsByParty(ctx context.Context, accountID ledger.AccountID, role ledger.PartyRole, limit int) ([]ledger.Escrow, error) {
	column := "client_account_id"
	if role == ledger.PartyMerchant {
		column = "merchant_account_id"
	}
	var rows []Escrow
	err := store.withMilestones(ctx).
		Where(column+" = ?", accountID.String()).
		Order("created_at DESC, escrow_id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectEscrow, errorCodeList, err)
	}
	return mapEscrows(rows)
}

func (store *Store) ListEscrowsByStatus(ctx context.Context, status ledger.EscrowStatus, limit int) ([]ledger.Escrow, error) {
	var rows []Escrow
	err := store.withMilestones(ctx).
		Where("status = ?", status.String()).
		Order("created_at ASC, escrow_id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectEscrow, errorCodeList, err)
	}
	return mapEscrows(rows)
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
	model := Dispute{
		EscrowID:       dispute.EscrowID.String(),
		RaisedBy:       optionalString(dispute.RaisedBy.String()),
		RaisedByAdmin:  dispute.RaisedByAdmin,
		Amount:         dispute.Amount.Decimal(),
		Reason:         dispute.Reason,
		StatusSnapshot: dispute.StatusSnapshot.String(),
		Snapshot:       datatypes.JSON(snapshot),
		CreatedAt:      unixToTime(dispute.CreatedUnixUTC),
	}
	if err := store.session(ctx).Create(&model).Error; err != nil {
		return wrapStoreError(errorSubjectDispute, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) ListDisputes(ctx context.Context, escrowID ledger.EscrowID) ([]ledger.DisputeRecord, error) {
	var rows []Dispute
	err := store.session(ctx).
		Where("escrow_id = ?", escrowID.String()).
		Order("created_at ASC, dispute_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectDispute, errorCodeList, err)
	}
	disputes := make([]ledger.DisputeRecord, 0, len(rows))
	for _, row := range rows {
		dispute, err := mapDispute(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectDispute, errorCodeInvalid, err)
		}
		disputes = append(disputes, dispute)
	}
	return disputes, nil
}

func (store *Store) withMilestones(ctx context.Context) *gorm.DB {
	return store.session(ctx).Preload("Milestones", func(db *gorm.DB) *gorm.DB {
		return db.Order("sort_order ASC")
	})
}

func mapEscrows(rows []Escrow) ([]ledger.Escrow, error) {
	escrows := make([]ledger.Escrow, 0, len(rows))
	for _, row := range rows {
		escrow, err := mapEscrow(row)
		if err != nil {
			return nil, err
		}
		escrows = append(escrows, escrow)
	}
	return escrows, nil
}

func mapEscrow(model Escrow) (ledger.Escrow, error) {
	escrow, err := parseEscrow(model)
	if err != nil {
		return ledger.Escrow{}, wrapStoreError(errorSubjectEscrow, errorCodeInvalid, err)
	}
	return escrow, nil
}

func parseEscrow(model Escrow) (ledger.Escrow, error) {
	escrowID, err := ledger.NewEscrowID(model.EscrowID)
	if err != nil {
		return ledger.Escrow{}, err
	}
	projectID, err := ledger.NewProjectID(model.ProjectID)
	if err != nil {
		return ledger.Escrow{}, err
	}
	clientAccountID, err := ledger.NewAccountID(model.ClientAccountID)
	if err != nil {
		return ledger.Escrow{}, err
	}
	merchantAccountID, err := ledger.NewAccountID(model.MerchantAccountID)
	if err != nil {
		return ledger.Escrow{}, err
	}
	amount, err := ledger.NewPositiveAmount(model.Amount.Round(2))
	if err != nil {
		return ledger.Escrow{}, err
	}
	released, err := ledger.NewAmount(model.ReleasedAmount.Round(2))
	if err != nil {
		return ledger.Escrow{}, err
	}
	status, err := ledger.ParseEscrowStatus(model.Status)
	if err != nil {
		return ledger.Escrow{}, err
	}
	milestones := make([]ledger.Milestone, 0, len(model.Milestones))
	for _, row := range model.Milestones {
		milestone, err := parseMilestone(row)
		if err != nil {
			return ledger.Escrow{}, err
		}
		milestones = append(milestones, milestone)
	}
	return ledger.Escrow{
		EscrowID:          escrowID,
		ProjectID:         projectID,
		ClientAccountID:   clientAccountID,
		MerchantAccountID: merchantAccountID,
		Amount:            amount,
		ReleasedAmount:    released,
		ClientAgreed:      model.ClientAgreed,
		MerchantAgreed:    model.MerchantAgreed,
		Status:            status,
		Version:           model.Version,
		Description:       model.Description,
		Milestones:        milestones,
		CreatedUnixUTC:    model.CreatedAt.Unix(),
		FinalizedUnixUTC:  timeOrZero(model.FinalizedAt),
	}, nil
}

func parseMilestone(row Milestone) (ledger.Milestone, error) {
	key, err := ledger.NewMilestoneKey(row.Key)
	if err != nil {
		return ledger.Milestone{}, err
	}
	amount, err := ledger.NewPositiveAmount(row.Amount.Round(2))
	if err != nil {
		return ledger.Milestone{}, err
	}
	var releaseReference ledger.ReferenceCode
	if row.ReleaseReference != "" {
		if releaseReference, err = ledger.NewReferenceCode(row.ReleaseReference); err != nil {
			return ledger.Milestone{}, err
		}
	}
	return ledger.Milestone{
		Key:              key,
		Title:            row.Title,
		Description:      row.Description,
		Amount:           amount,
		ClientAgreed:     row.ClientAgreed,
		MerchantAgreed:   row.MerchantAgreed,
		Finished:         row.Finished,
		FinishedUnixUTC:  timeOrZero(row.FinishedAt),
		ReleaseReference: releaseReference,
	}, nil
}

func mapDispute(row Dispute) (ledger.DisputeRecord, error) {
	escrowID, err := ledger.NewEscrowID(row.EscrowID)
	if err != nil {
		return ledger.DisputeRecord{}, err
	}
	var raisedBy ledger.AccountID
	if row.RaisedBy != nil {
		if raisedBy, err = ledger.NewAccountID(*row.RaisedBy); err != nil {
			return ledger.DisputeRecord{}, err
		}
	}
	amount, err := ledger.NewPositiveAmount(row.Amount.Round(2))
	if err != nil {
		return ledger.DisputeRecord{}, err
	}
	status, err := ledger.ParseEscrowStatus(row.StatusSnapshot)
	if err != nil {
		return ledger.DisputeRecord{}, err
	}
	return ledger.DisputeRecord{
		EscrowID:       escrowID,
		RaisedBy:       raisedBy,
		RaisedByAdmin:  row.RaisedByAdmin,
		Amount:         amount,
		Reason:         row.Reason,
		StatusSnapshot: status,
		CreatedUnixUTC: row.CreatedAt.Unix(),
	}, nil
}
