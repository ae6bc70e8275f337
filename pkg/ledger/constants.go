package ledger

import "time"

const (
	operationCreateWallet       = "create_wallet"
	operationAdminCredit        = "admin_credit"
	operationAdminDebit         = "admin_debit"
	operationFreeze             = "freeze"
	operationUnfreeze           = "unfreeze"
	operationSaveBank           = "save_withdrawal_bank"
	operationDeleteBank         = "delete_withdrawal_bank"
	operationInitializeDeposit  = "initialize_deposit"
	operationInitiateWithdrawal = "initiate_withdrawal"
	operationCreateEscrow       = "create_escrow"
	operationFundEscrow         = "fund_escrow"
	operationConfirmEscrow      = "confirm_escrow"
	operationCancelEscrow       = "cancel_escrow"
	operationDisputeEscrow      = "dispute_escrow"
	operationResolveDispute     = "resolve_dispute"
	operationForceRelease       = "force_release"
	operationForceReturn        = "force_return"
	operationReconcile          = "reconcile"

	operationStatusOK    = "ok"
	operationStatusError = "error"

	defaultMetadataJSON = "{}"

	referencePrefix          = "TXN-"
	referenceRandomLength    = 10
	escrowReferencePrefix    = "ESC-"
	escrowReferenceFund      = "FUND"
	escrowReferenceRelease   = "RELEASE"
	escrowReferenceRefund    = "REFUND"
	escrowReferenceMilestone = "MS"
	escrowReferenceDelimiter = "-"

	reviewReasonInsufficientBalance = "insufficient balance at transfer settlement"
	reviewReasonChargeback          = "chargeback opened by provider"

	defaultGatewayTimeout = 10 * time.Second
	defaultHistoryLimit   = 50
	maxHistoryLimit       = 500
)
