package ledger

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the ledger core unwraps to one of these.
var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrAccountFrozen     = errors.New("account frozen")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrGateway           = errors.New("gateway error")
	ErrGatewayTimeout    = errors.New("gateway timeout")
	ErrSignatureInvalid  = errors.New("signature invalid")
)

// Domain-level error values returned by the ledger service.
var (
	ErrAccountNotFound      = newKindError(ErrNotFound, "account not found")
	ErrEntryNotFound        = newKindError(ErrNotFound, "ledger entry not found")
	ErrEscrowNotFound       = newKindError(ErrNotFound, "escrow not found")
	ErrMilestoneNotFound    = newKindError(ErrNotFound, "milestone not found")
	ErrBankAccountNotFound  = newKindError(ErrNotFound, "withdrawal bank not found")
	ErrAccountExists        = newKindError(ErrConflict, "account already exists")
	ErrDuplicateReference   = newKindError(ErrConflict, "duplicate reference code")
	ErrDuplicateProject     = newKindError(ErrConflict, "duplicate project id")
	ErrDuplicateMilestone   = newKindError(ErrConflict, "duplicate milestone key")
	ErrDuplicateBankAccount = newKindError(ErrConflict, "duplicate withdrawal bank")
	ErrEntryFinalized       = newKindError(ErrConflict, "ledger entry already finalized")
	ErrConcurrentUpdate     = newKindError(ErrConflict, "concurrent update")
	ErrMilestoneFinished    = newKindError(ErrInvalidTransition, "milestone already finished")
	ErrNotEscrowParty       = newKindError(ErrUnauthorized, "actor is not a party to the escrow")
	ErrNotEscrowClient      = newKindError(ErrUnauthorized, "actor is not the escrow client")
	ErrAdminRequired        = newKindError(ErrUnauthorized, "administrator required")

	ErrInvalidAccountID      = newKindError(ErrInvalidInput, "invalid account id")
	ErrInvalidOwnerRef       = newKindError(ErrInvalidInput, "invalid owner reference")
	ErrInvalidEntryID        = newKindError(ErrInvalidInput, "invalid entry id")
	ErrInvalidEscrowID       = newKindError(ErrInvalidInput, "invalid escrow id")
	ErrInvalidProjectID      = newKindError(ErrInvalidInput, "invalid project id")
	ErrInvalidMilestoneKey   = newKindError(ErrInvalidInput, "invalid milestone key")
	ErrInvalidMilestones     = newKindError(ErrInvalidInput, "invalid milestones")
	ErrInvalidReferenceCode  = newKindError(ErrInvalidInput, "invalid reference code")
	ErrInvalidAmount         = newKindError(ErrInvalidInput, "invalid amount")
	ErrInvalidCurrency       = newKindError(ErrInvalidInput, "invalid currency")
	ErrInvalidEntryType      = newKindError(ErrInvalidInput, "invalid entry type")
	ErrInvalidEntryStatus    = newKindError(ErrInvalidInput, "invalid entry status")
	ErrInvalidEscrowStatus   = newKindError(ErrInvalidInput, "invalid escrow status")
	ErrInvalidEscrowEvent    = newKindError(ErrInvalidInput, "invalid escrow event")
	ErrInvalidPartyRole      = newKindError(ErrInvalidInput, "invalid party role")
	ErrInvalidPolicy         = newKindError(ErrInvalidInput, "invalid confirmation policy")
	ErrInvalidResolution     = newKindError(ErrInvalidInput, "invalid dispute resolution")
	ErrInvalidBankAccount    = newKindError(ErrInvalidInput, "invalid withdrawal bank")
	ErrInvalidMetadataJSON   = newKindError(ErrInvalidInput, "invalid metadata json")
	ErrInvalidEventType      = newKindError(ErrInvalidInput, "invalid settlement event type")
	ErrInvalidReason         = newKindError(ErrInvalidInput, "invalid reason")
	ErrSameParty             = newKindError(ErrInvalidInput, "client and merchant must differ")
	ErrGatewayNotConfigured  = newKindError(ErrInvalidInput, "settlement gateway not configured")
	ErrInvalidServiceConfig  = errors.New("invalid service config")
	ErrInvalidBalance        = newKindError(ErrInvalidInput, "invalid balance")
	ErrInvalidEmail          = newKindError(ErrInvalidInput, "invalid email")
	ErrInvalidHistoryLimit   = newKindError(ErrInvalidInput, "invalid history limit")
	ErrInvalidProviderCode   = newKindError(ErrInvalidInput, "invalid provider code")
	ErrInvalidRecipientInput = newKindError(ErrInvalidInput, "invalid recipient")
)

type kindError struct {
	kind    error
	message string
}

func newKindError(kind error, message string) error {
	return &kindError{kind: kind, message: message}
}

func (kindErr *kindError) Error() string {
	return kindErr.message
}

func (kindErr *kindError) Unwrap() error {
	return kindErr.kind
}

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}
