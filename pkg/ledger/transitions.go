package ledger

import "fmt"

// EscrowEvent is an input to the escrow state machine.
type EscrowEvent string

const (
	EventFund             EscrowEvent = "fund"
	EventAgree            EscrowEvent = "agree"
	EventReleaseMilestone EscrowEvent = "release_milestone"
	EventRelease          EscrowEvent = "release"
	EventCancel           EscrowEvent = "cancel"
	EventDispute          EscrowEvent = "dispute"
	EventResolveRelease   EscrowEvent = "resolve_release"
	EventResolveRefund    EscrowEvent = "resolve_refund"
	EventForceRelease     EscrowEvent = "force_release"
	EventForceReturn      EscrowEvent = "force_return"
)

// EscrowEvents lists every escrow event.
var EscrowEvents = []EscrowEvent{
	EventFund,
	EventAgree,
	EventReleaseMilestone,
	EventRelease,
	EventCancel,
	EventDispute,
	EventResolveRelease,
	EventResolveRefund,
	EventForceRelease,
	EventForceReturn,
}

// String returns the event name.
func (event EscrowEvent) String() string {
	return string(event)
}

// escrowTransitions is the complete set of legal transitions. Pairs missing here are rejected.
var escrowTransitions = map[EscrowStatus]map[EscrowEvent]EscrowStatus{
	EscrowStatusPending: {
		EventFund:   EscrowStatusFunded,
		EventCancel: EscrowStatusCancelled,
	},
	EscrowStatusFunded: {
		EventAgree:            EscrowStatusFunded,
		EventReleaseMilestone: EscrowStatusFunded,
		EventRelease:          EscrowStatusReleased,
		EventCancel:           EscrowStatusCancelled,
		EventDispute:          EscrowStatusDisputed,
		EventForceRelease:     EscrowStatusReleased,
		EventForceReturn:      EscrowStatusRefunded,
	},
	EscrowStatusDisputed: {
		EventResolveRelease: EscrowStatusReleased,
		EventResolveRefund:  EscrowStatusRefunded,
	},
	EscrowStatusReleased:  {},
	EscrowStatusRefunded:  {},
	EscrowStatusCancelled: {},
}

// NextEscrowStatus returns the state reached by applying event in current.
func NextEscrowStatus(current EscrowStatus, event EscrowEvent) (EscrowStatus, error) {
	events, known := escrowTransitions[current]
	if !known {
		return "", fmt.Errorf("%w: %q", ErrInvalidEscrowStatus, current)
	}
	next, allowed := events[event]
	if !allowed {
		return "", fmt.Errorf("%w: %s on %s", ErrInvalidTransition, event, current)
	}
	return next, nil
}
