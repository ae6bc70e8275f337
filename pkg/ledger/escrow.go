package ledger

import (
	"context"
	"fmt"
	"strings"
)

// CreateEscrowCommand describes a new escrow. Amount may be left zero when
// milestones are supplied; it then becomes the milestone total.
type CreateEscrowCommand struct {
	Client        Actor
	MerchantOwner OwnerRef
	ProjectID     ProjectID
	Amount        PositiveAmount
	Milestones    []MilestoneInput
	Description   string
	Fund          bool
}

// ConfirmCommand records a party's agreement for the whole escrow or one milestone.
type ConfirmCommand struct {
	EscrowID     EscrowID
	MilestoneKey MilestoneKey
}

type escrowMutation func(ctx context.Context, transactionStore Store, escrow *Escrow, nowUnixUTC int64) error

// CreateEscrow opens a PENDING escrow between the calling client and a merchant.
// With Fund set the client is debited right away; when that fails the PENDING
// escrow is returned together with the funding error.
func (service *Service) CreateEscrow(ctx context.Context, command CreateEscrowCommand) (Escrow, error) {
	amount, milestones, err := planEscrowAmount(command.Amount, command.Milestones)
	if err != nil {
		return Escrow{}, err
	}
	var created Escrow
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		client, err := transactionStore.FindAccount(ctx, command.Client.Owner)
		if err != nil {
			return err
		}
		merchant, err := transactionStore.FindAccount(ctx, command.MerchantOwner)
		if err != nil {
			return err
		}
		if client.AccountID == merchant.AccountID {
			return ErrSameParty
		}
		nowUnixUTC := service.nowFn()
		created, err = transactionStore.CreateEscrow(ctx, Escrow{
			ProjectID:         command.ProjectID,
			ClientAccountID:   client.AccountID,
			MerchantAccountID: merchant.AccountID,
			Amount:            amount,
			Status:            EscrowStatusPending,
			Version:           1,
			Description:       strings.TrimSpace(command.Description),
			Milestones:        milestones,
			CreatedUnixUTC:    nowUnixUTC,
		})
		return err
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationCreateEscrow,
		AccountID: created.ClientAccountID,
		EscrowID:  created.EscrowID,
		Amount:    amount.ToAmount(),
		Error:     operationError,
	})
	if operationError != nil {
		return Escrow{}, operationError
	}
	if !command.Fund {
		return created, nil
	}
	funded, err := service.FundEscrow(ctx, command.Client, created.EscrowID)
	if err != nil {
		return created, err
	}
	return funded, nil
}

func planEscrowAmount(declared PositiveAmount, inputs []MilestoneInput) (PositiveAmount, []Milestone, error) {
	if len(inputs) == 0 {
		if declared.IsZero() {
			return PositiveAmount{}, nil, fmt.Errorf("%w: amount or milestones required", ErrInvalidAmount)
		}
		return declared, nil, nil
	}
	seen := make(map[MilestoneKey]struct{}, len(inputs))
	milestones := make([]Milestone, 0, len(inputs))
	amounts := make([]PositiveAmount, 0, len(inputs))
	for _, input := range inputs {
		if input.Key.IsZero() {
			return PositiveAmount{}, nil, fmt.Errorf("%w: empty value", ErrInvalidMilestoneKey)
		}
		if input.Amount.IsZero() {
			return PositiveAmount{}, nil, fmt.Errorf("%w: milestone %s has no amount", ErrInvalidMilestones, input.Key)
		}
		if _, duplicate := seen[input.Key]; duplicate {
			return PositiveAmount{}, nil, fmt.Errorf("%w: %s", ErrDuplicateMilestone, input.Key)
		}
		seen[input.Key] = struct{}{}
		amounts = append(amounts, input.Amount)
		milestones = append(milestones, Milestone{
			Key:         input.Key,
			Title:       strings.TrimSpace(input.Title),
			Description: strings.TrimSpace(input.Description),
			Amount:      input.Amount,
		})
	}
	total, err := NewPositiveAmount(SumPositiveAmounts(amounts...).Decimal())
	if err != nil {
		return PositiveAmount{}, nil, err
	}
	if !declared.IsZero() && !declared.ToAmount().Equal(total.ToAmount()) {
		return PositiveAmount{}, nil, fmt.Errorf("%w: declared %s, milestones total %s", ErrInvalidMilestones, declared, total)
	}
	return total, milestones, nil
}

// FundEscrow debits the client and moves the escrow to FUNDED.
func (service *Service) FundEscrow(ctx context.Context, actor Actor, escrowID EscrowID) (Escrow, error) {
	return service.runEscrowOperation(ctx, operationFundEscrow, actor, escrowID, func(actorAccountID AccountID) escrowMutation {
		return func(ctx context.Context, transactionStore Store, escrow *Escrow, nowUnixUTC int64) error {
			if actorAccountID != escrow.ClientAccountID {
				return ErrNotEscrowClient
			}
			next, err := NextEscrowStatus(escrow.Status, EventFund)
			if err != nil {
				return err
			}
			if _, err := postEntry(ctx, transactionStore, Entry{
				AccountID:   escrow.ClientAccountID,
				Type:        EntryEscrowFund,
				Amount:      escrow.Amount,
				Reference:   escrowReference(escrow.EscrowID, escrowReferenceFund),
				Description: "escrow " + escrow.ProjectID.String() + " funded",
			}, RespectFreeze, nowUnixUTC); err != nil {
				return err
			}
			escrow.Status = next
			return nil
		}
	})
}

// ConfirmEscrow records the caller's agreement. Funds move to the merchant once
// the confirmation policy is satisfied, either for one milestone or for the
// whole remainder.
func (service *Service) ConfirmEscrow(ctx context.Context, actor Actor, command ConfirmCommand) (Escrow, error) {
	return service.runEscrowOperation(ctx, operationConfirmEscrow, actor, command.EscrowID, func(actorAccountID AccountID) escrowMutation {
		return func(ctx context.Context, transactionStore Store, escrow *Escrow, nowUnixUTC int64) error {
			role, isParty := escrow.RoleOf(actorAccountID)
			if !isParty {
				return ErrNotEscrowParty
			}
			if _, err := NextEscrowStatus(escrow.Status, EventAgree); err != nil {
				return err
			}
			if command.MilestoneKey.IsZero() {
				return service.confirmWhole(ctx, transactionStore, escrow, role, nowUnixUTC)
			}
			return service.confirmMilestone(ctx, transactionStore, escrow, role, command.MilestoneKey, nowUnixUTC)
		}
	})
}

func (service *Service) confirmWhole(ctx context.Context, transactionStore Store, escrow *Escrow, role PartyRole, nowUnixUTC int64) error {
	if role == PartyClient {
		escrow.ClientAgreed = true
	} else {
		escrow.MerchantAgreed = true
	}
	if !service.policy.satisfied(escrow.ClientAgreed, escrow.MerchantAgreed) {
		return nil
	}
	return releaseEscrow(ctx, transactionStore, escrow, EventRelease, RespectFreeze, nowUnixUTC)
}

func (service *Service) confirmMilestone(ctx context.Context, transactionStore Store, escrow *Escrow, role PartyRole, key MilestoneKey, nowUnixUTC int64) error {
	index := milestoneIndex(escrow.Milestones, key)
	if index < 0 {
		return fmt.Errorf("%w: %s", ErrMilestoneNotFound, key)
	}
	milestone := escrow.Milestones[index]
	if milestone.Finished {
		return fmt.Errorf("%w: %s", ErrMilestoneFinished, key)
	}
	if role == PartyClient {
		milestone.ClientAgreed = true
	} else {
		milestone.MerchantAgreed = true
	}
	if err := transactionStore.UpdateMilestoneAgreement(ctx, escrow.EscrowID, milestone); err != nil {
		return err
	}
	escrow.Milestones[index] = milestone
	if !service.policy.satisfied(milestone.ClientAgreed, milestone.MerchantAgreed) {
		return nil
	}
	if err := releaseMilestone(ctx, transactionStore, escrow, index, RespectFreeze, nowUnixUTC); err != nil {
		return err
	}
	if !escrow.allMilestonesFinished() {
		next, err := NextEscrowStatus(escrow.Status, EventReleaseMilestone)
		if err != nil {
			return err
		}
		escrow.Status = next
		return nil
	}
	next, err := NextEscrowStatus(escrow.Status, EventRelease)
	if err != nil {
		return err
	}
	escrow.Status = next
	escrow.FinalizedUnixUTC = nowUnixUTC
	return nil
}

// CancelEscrow cancels a PENDING or FUNDED escrow, refunding whatever the
// merchant has not yet received. Parties may cancel; administrators always may.
func (service *Service) CancelEscrow(ctx context.Context, actor Actor, escrowID EscrowID) (Escrow, error) {
	return service.runEscrowOperation(ctx, operationCancelEscrow, actor, escrowID, func(actorAccountID AccountID) escrowMutation {
		return func(ctx context.Context, transactionStore Store, escrow *Escrow, nowUnixUTC int64) error {
			if _, isParty := escrow.RoleOf(actorAccountID); !isParty && !actor.Admin {
				return ErrNotEscrowParty
			}
			next, err := NextEscrowStatus(escrow.Status, EventCancel)
			if err != nil {
				return err
			}
			if escrow.Status == EscrowStatusFunded {
				freezePolicy := RespectFreeze
				if actor.Admin {
					freezePolicy = BypassFreeze
				}
				if err := refundEscrow(ctx, transactionStore, escrow, freezePolicy, nowUnixUTC); err != nil {
					return err
				}
			}
			escrow.Status = next
			escrow.FinalizedUnixUTC = nowUnixUTC
			return nil
		}
	})
}

// DisputeEscrow freezes a FUNDED escrow in DISPUTED and records why. Parties
// may dispute; administrators always may.
func (service *Service) DisputeEscrow(ctx context.Context, actor Actor, escrowID EscrowID, reason string) (Escrow, error) {
	trimmedReason := strings.TrimSpace(reason)
	if trimmedReason == "" {
		return Escrow{}, fmt.Errorf("%w: empty value", ErrInvalidReason)
	}
	return service.runEscrowOperation(ctx, operationDisputeEscrow, actor, escrowID, func(actorAccountID AccountID) escrowMutation {
		return func(ctx context.Context, transactionStore Store, escrow *Escrow, nowUnixUTC int64) error {
			if _, isParty := escrow.RoleOf(actorAccountID); !isParty && !actor.Admin {
				return ErrNotEscrowParty
			}
			next, err := NextEscrowStatus(escrow.Status, EventDispute)
			if err != nil {
				return err
			}
			if err := transactionStore.AppendDispute(ctx, DisputeRecord{
				EscrowID:       escrow.EscrowID,
				RaisedBy:       actorAccountID,
				RaisedByAdmin:  actor.Admin,
				Amount:         escrow.Amount,
				Reason:         trimmedReason,
				StatusSnapshot: escrow.Status,
				CreatedUnixUTC: nowUnixUTC,
			}); err != nil {
				return err
			}
			escrow.Status = next
			return nil
		}
	})
}

// ResolveDispute settles a DISPUTED escrow in favour of the merchant or the client.
func (service *Service) ResolveDispute(ctx context.Context, actor Actor, escrowID EscrowID, resolution DisputeResolution) (Escrow, error) {
	if err := service.requireAdmin(actor); err != nil {
		return Escrow{}, err
	}
	event := EventResolveRelease
	switch resolution {
	case ResolveRelease:
	case ResolveRefund:
		event = EventResolveRefund
	default:
		return Escrow{}, fmt.Errorf("%w: %q", ErrInvalidResolution, resolution)
	}
	return service.runEscrowOperation(ctx, operationResolveDispute, actor, escrowID, adminSettlement(event))
}

// ForceRelease pays a FUNDED escrow out to the merchant regardless of agreement.
func (service *Service) ForceRelease(ctx context.Context, actor Actor, escrowID EscrowID) (Escrow, error) {
	if err := service.requireAdmin(actor); err != nil {
		return Escrow{}, err
	}
	return service.runEscrowOperation(ctx, operationForceRelease, actor, escrowID, adminSettlement(EventForceRelease))
}

// ForceReturn returns a FUNDED escrow to the client regardless of agreement.
func (service *Service) ForceReturn(ctx context.Context, actor Actor, escrowID EscrowID) (Escrow, error) {
	if err := service.requireAdmin(actor); err != nil {
		return Escrow{}, err
	}
	return service.runEscrowOperation(ctx, operationForceReturn, actor, escrowID, adminSettlement(EventForceReturn))
}

func adminSettlement(event EscrowEvent) func(AccountID) escrowMutation {
	return func(AccountID) escrowMutation {
		return func(ctx context.Context, transactionStore Store, escrow *Escrow, nowUnixUTC int64) error {
			next, err := NextEscrowStatus(escrow.Status, event)
			if err != nil {
				return err
			}
			if next == EscrowStatusReleased {
				return releaseEscrow(ctx, transactionStore, escrow, event, BypassFreeze, nowUnixUTC)
			}
			if err := refundEscrow(ctx, transactionStore, escrow, BypassFreeze, nowUnixUTC); err != nil {
				return err
			}
			escrow.Status = next
			escrow.FinalizedUnixUTC = nowUnixUTC
			return nil
		}
	}
}

// GetEscrow returns an escrow visible to the caller.
func (service *Service) GetEscrow(ctx context.Context, actor Actor, escrowID EscrowID) (Escrow, error) {
	actorAccountID, err := service.resolveActor(ctx, service.store, actor)
	if err != nil {
		return Escrow{}, err
	}
	escrow, err := service.store.GetEscrow(ctx, escrowID)
	if err != nil {
		return Escrow{}, err
	}
	if _, isParty := escrow.RoleOf(actorAccountID); !isParty && !actor.Admin {
		return Escrow{}, ErrNotEscrowParty
	}
	return escrow, nil
}

// ListEscrows lists the caller's escrows in the given role.
func (service *Service) ListEscrows(ctx context.Context, actor Actor, role PartyRole, limit int) ([]Escrow, error) {
	if _, err := ParsePartyRole(role.String()); err != nil {
		return nil, err
	}
	account, err := service.store.FindAccount(ctx, actor.Owner)
	if err != nil {
		return nil, err
	}
	return service.store.ListEscrowsByParty(ctx, account.AccountID, role, normalizeLimit(limit))
}

// ListEscrowsByStatus lists escrows in one state for administrators.
func (service *Service) ListEscrowsByStatus(ctx context.Context, actor Actor, status EscrowStatus, limit int) ([]Escrow, error) {
	if err := service.requireAdmin(actor); err != nil {
		return nil, err
	}
	if _, err := ParseEscrowStatus(status.String()); err != nil {
		return nil, err
	}
	return service.store.ListEscrowsByStatus(ctx, status, normalizeLimit(limit))
}

// Disputes returns the dispute audit trail of an escrow visible to the caller.
func (service *Service) Disputes(ctx context.Context, actor Actor, escrowID EscrowID) ([]DisputeRecord, error) {
	if _, err := service.GetEscrow(ctx, actor, escrowID); err != nil {
		return nil, err
	}
	return service.store.ListDisputes(ctx, escrowID)
}

// runEscrowOperation loads the escrow inside a transaction, applies the mutation
// and writes it back with a compare-and-swap on status and version. Money moved
// by the mutation commits or rolls back with the status write.
func (service *Service) runEscrowOperation(ctx context.Context, operation string, actor Actor, escrowID EscrowID, build func(actorAccountID AccountID) escrowMutation) (Escrow, error) {
	var updated Escrow
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		actorAccountID, err := service.resolveActor(ctx, transactionStore, actor)
		if err != nil {
			return err
		}
		escrow, err := transactionStore.GetEscrow(ctx, escrowID)
		if err != nil {
			return err
		}
		expectedStatus, expectedVersion := escrow.Status, escrow.Version
		if err := build(actorAccountID)(ctx, transactionStore, &escrow, service.nowFn()); err != nil {
			return err
		}
		escrow.Version = expectedVersion + 1
		if err := transactionStore.UpdateEscrow(ctx, escrow, expectedStatus, expectedVersion); err != nil {
			return err
		}
		updated = escrow
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation: operation,
		EscrowID:  escrowID,
		Amount:    updated.Amount.ToAmount(),
		Outcome:   updated.Status.String(),
		Error:     operationError,
	})
	if operationError != nil {
		return Escrow{}, operationError
	}
	return updated, nil
}

// releaseEscrow pays every unreleased portion to the merchant and finalizes the escrow.
func releaseEscrow(ctx context.Context, transactionStore Store, escrow *Escrow, event EscrowEvent, freezePolicy FreezePolicy, nowUnixUTC int64) error {
	next, err := NextEscrowStatus(escrow.Status, event)
	if err != nil {
		return err
	}
	if escrow.HasMilestones() {
		for index := range escrow.Milestones {
			if escrow.Milestones[index].Finished {
				continue
			}
			if err := releaseMilestone(ctx, transactionStore, escrow, index, freezePolicy, nowUnixUTC); err != nil {
				return err
			}
		}
	} else {
		remaining, err := NewPositiveAmount(escrow.Remaining().Decimal())
		if err == nil {
			if _, err := postEntry(ctx, transactionStore, Entry{
				AccountID:   escrow.MerchantAccountID,
				Type:        EntryEscrowRelease,
				Amount:      remaining,
				Reference:   escrowReference(escrow.EscrowID, escrowReferenceRelease),
				Description: "escrow " + escrow.ProjectID.String() + " released",
			}, freezePolicy, nowUnixUTC); err != nil {
				return err
			}
			escrow.ReleasedAmount = escrow.ReleasedAmount.Add(remaining.ToAmount())
		}
	}
	escrow.Status = next
	escrow.FinalizedUnixUTC = nowUnixUTC
	return nil
}

func releaseMilestone(ctx context.Context, transactionStore Store, escrow *Escrow, index int, freezePolicy FreezePolicy, nowUnixUTC int64) error {
	milestone := escrow.Milestones[index]
	reference := escrowReference(escrow.EscrowID, escrowReferenceMilestone, milestone.Key.String())
	if _, err := postEntry(ctx, transactionStore, Entry{
		AccountID:   escrow.MerchantAccountID,
		Type:        EntryEscrowRelease,
		Amount:      milestone.Amount,
		Reference:   reference,
		Description: "milestone " + milestone.Key.String() + " released",
	}, freezePolicy, nowUnixUTC); err != nil {
		return err
	}
	milestone.Finished = true
	milestone.FinishedUnixUTC = nowUnixUTC
	milestone.ReleaseReference = reference
	if err := transactionStore.FinishMilestone(ctx, escrow.EscrowID, milestone); err != nil {
		return err
	}
	escrow.Milestones[index] = milestone
	escrow.ReleasedAmount = escrow.ReleasedAmount.Add(milestone.Amount.ToAmount())
	return nil
}

// refundEscrow returns the unreleased remainder to the client.
func refundEscrow(ctx context.Context, transactionStore Store, escrow *Escrow, freezePolicy FreezePolicy, nowUnixUTC int64) error {
	remaining, err := NewPositiveAmount(escrow.Remaining().Decimal())
	if err != nil {
		// fully released, nothing left to return
		return nil
	}
	_, err = postEntry(ctx, transactionStore, Entry{
		AccountID:   escrow.ClientAccountID,
		Type:        EntryRefund,
		Amount:      remaining,
		Reference:   escrowReference(escrow.EscrowID, escrowReferenceRefund),
		Description: "escrow " + escrow.ProjectID.String() + " refunded",
	}, freezePolicy, nowUnixUTC)
	return err
}

func milestoneIndex(milestones []Milestone, key MilestoneKey) int {
	for index, milestone := range milestones {
		if milestone.Key == key {
			return index
		}
	}
	return -1
}
