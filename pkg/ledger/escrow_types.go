package ledger

import (
	"fmt"
	"strings"
)

// EscrowStatus is the lifecycle state of an escrow.
type EscrowStatus string

const (
	EscrowStatusPending   EscrowStatus = "PENDING"
	EscrowStatusFunded    EscrowStatus = "FUNDED"
	EscrowStatusReleased  EscrowStatus = "RELEASED"
	EscrowStatusRefunded  EscrowStatus = "REFUNDED"
	EscrowStatusCancelled EscrowStatus = "CANCELLED"
	EscrowStatusDisputed  EscrowStatus = "DISPUTED"
)

// EscrowStatuses lists every escrow state.
var EscrowStatuses = []EscrowStatus{
	EscrowStatusPending,
	EscrowStatusFunded,
	EscrowStatusReleased,
	EscrowStatusRefunded,
	EscrowStatusCancelled,
	EscrowStatusDisputed,
}

// ParseEscrowStatus validates an escrow status.
func ParseEscrowStatus(raw string) (EscrowStatus, error) {
	candidate := EscrowStatus(strings.ToUpper(strings.TrimSpace(raw)))
	for _, status := range EscrowStatuses {
		if status == candidate {
			return status, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidEscrowStatus, raw)
}

// String returns the status.
func (status EscrowStatus) String() string {
	return string(status)
}

// IsTerminal reports whether no further transition is possible.
func (status EscrowStatus) IsTerminal() bool {
	return len(escrowTransitions[status]) == 0
}

// PartyRole selects which side of an escrow an actor plays.
type PartyRole string

const (
	PartyClient   PartyRole = "client"
	PartyMerchant PartyRole = "merchant"
)

// ParsePartyRole validates a party role.
func ParsePartyRole(raw string) (PartyRole, error) {
	switch role := PartyRole(strings.ToLower(strings.TrimSpace(raw))); role {
	case PartyClient, PartyMerchant:
		return role, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPartyRole, raw)
	}
}

// String returns the role.
func (role PartyRole) String() string {
	return string(role)
}

// ConfirmationPolicy decides which agreement flags release funds.
type ConfirmationPolicy string

const (
	// ConfirmationSingleSided releases on the client's confirmation alone.
	ConfirmationSingleSided ConfirmationPolicy = "single"
	// ConfirmationDualSided releases once both client and merchant confirmed.
	ConfirmationDualSided ConfirmationPolicy = "dual"
)

// ParseConfirmationPolicy validates a confirmation policy.
func ParseConfirmationPolicy(raw string) (ConfirmationPolicy, error) {
	switch policy := ConfirmationPolicy(strings.ToLower(strings.TrimSpace(raw))); policy {
	case ConfirmationSingleSided, ConfirmationDualSided:
		return policy, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPolicy, raw)
	}
}

// String returns the policy name.
func (policy ConfirmationPolicy) String() string {
	return string(policy)
}

func (policy ConfirmationPolicy) satisfied(clientAgreed bool, merchantAgreed bool) bool {
	if policy == ConfirmationDualSided {
		return clientAgreed && merchantAgreed
	}
	return clientAgreed
}

// DisputeResolution is the administrative outcome of a dispute.
type DisputeResolution string

const (
	ResolveRelease DisputeResolution = "release"
	ResolveRefund  DisputeResolution = "refund"
)

// ParseDisputeResolution validates a dispute resolution.
func ParseDisputeResolution(raw string) (DisputeResolution, error) {
	switch resolution := DisputeResolution(strings.ToLower(strings.TrimSpace(raw))); resolution {
	case ResolveRelease, ResolveRefund:
		return resolution, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidResolution, raw)
	}
}

// Escrow is a held-funds agreement snapshot.
type Escrow struct {
	EscrowID          EscrowID
	ProjectID         ProjectID
	ClientAccountID   AccountID
	MerchantAccountID AccountID
	Amount            PositiveAmount
	ReleasedAmount    Amount
	ClientAgreed      bool
	MerchantAgreed    bool
	Status            EscrowStatus
	Version           int64
	Description       string
	Milestones        []Milestone
	CreatedUnixUTC    int64
	FinalizedUnixUTC  int64
}

// HasMilestones reports whether funds are split into milestones.
func (escrow Escrow) HasMilestones() bool {
	return len(escrow.Milestones) > 0
}

// Remaining returns the funded amount not yet released to the merchant.
func (escrow Escrow) Remaining() Amount {
	remaining, err := escrow.Amount.ToAmount().Sub(escrow.ReleasedAmount)
	if err != nil {
		return Amount{}
	}
	return remaining
}

// RoleOf returns the role the account plays in the escrow.
func (escrow Escrow) RoleOf(accountID AccountID) (PartyRole, bool) {
	switch accountID {
	case escrow.ClientAccountID:
		return PartyClient, true
	case escrow.MerchantAccountID:
		return PartyMerchant, true
	default:
		return "", false
	}
}

// FindMilestone finds a milestone by key.
func (escrow Escrow) FindMilestone(key MilestoneKey) (Milestone, bool) {
	for _, milestone := range escrow.Milestones {
		if milestone.Key == key {
			return milestone, true
		}
	}
	return Milestone{}, false
}

func (escrow Escrow) allMilestonesFinished() bool {
	for _, milestone := range escrow.Milestones {
		if !milestone.Finished {
			return false
		}
	}
	return true
}

// Milestone is an independently releasable portion of an escrow.
type Milestone struct {
	Key              MilestoneKey
	Title            string
	Description      string
	Amount           PositiveAmount
	ClientAgreed     bool
	MerchantAgreed   bool
	Finished         bool
	FinishedUnixUTC  int64
	ReleaseReference ReferenceCode
}

// MilestoneInput describes a milestone at escrow creation.
type MilestoneInput struct {
	Key         MilestoneKey
	Title       string
	Description string
	Amount      PositiveAmount
}

// DisputeRecord is an append-only audit snapshot of a disputed escrow.
// RaisedBy is empty when an administrator without a wallet opened it.
type DisputeRecord struct {
	EscrowID       EscrowID
	RaisedBy       AccountID
	RaisedByAdmin  bool
	Amount         PositiveAmount
	Reason         string
	StatusSnapshot EscrowStatus
	CreatedUnixUTC int64
}
