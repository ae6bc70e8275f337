package ledger

import (
	"errors"
	"testing"
)

func TestNextEscrowStatusTable(test *testing.T) {
	test.Parallel()
	allowed := map[EscrowStatus]map[EscrowEvent]EscrowStatus{
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
	}
	for _, status := range EscrowStatuses {
		for _, event := range EscrowEvents {
			next, err := NextEscrowStatus(status, event)
			want, ok := allowed[status][event]
			if ok {
				if err != nil || next != want {
					test.Fatalf("%s on %s: expected %s, got %s %v", event, status, want, next, err)
				}
				continue
			}
			if !errors.Is(err, ErrInvalidTransition) {
				test.Fatalf("%s on %s: expected ErrInvalidTransition, got %s %v", event, status, next, err)
			}
		}
	}
}

func TestNextEscrowStatusUnknownState(test *testing.T) {
	test.Parallel()
	if _, err := NextEscrowStatus(EscrowStatus("LIMBO"), EventFund); !errors.Is(err, ErrInvalidEscrowStatus) {
		test.Fatalf("expected ErrInvalidEscrowStatus, got %v", err)
	}
}

func TestTerminalStatesAreReachableOnlyThroughFundedOrDisputed(test *testing.T) {
	test.Parallel()
	for _, status := range EscrowStatuses {
		for _, event := range EscrowEvents {
			next, err := NextEscrowStatus(status, event)
			if err != nil {
				continue
			}
			switch next {
			case EscrowStatusReleased, EscrowStatusRefunded:
				if status != EscrowStatusFunded && status != EscrowStatusDisputed {
					test.Fatalf("%s reached from %s via %s", next, status, event)
				}
			case EscrowStatusDisputed:
				if status != EscrowStatusFunded {
					test.Fatalf("DISPUTED reached from %s via %s", status, event)
				}
			}
		}
	}
	for _, status := range []EscrowStatus{EscrowStatusReleased, EscrowStatusRefunded, EscrowStatusCancelled} {
		if !status.IsTerminal() {
			test.Fatalf("expected %s to be terminal", status)
		}
	}
	if EscrowStatusDisputed.IsTerminal() || EscrowStatusPending.IsTerminal() {
		test.Fatalf("expected PENDING and DISPUTED to accept events")
	}
}
