package httpapi

import (
	"net/http"

	"github.com/Godswillamos0/escrow-api/pkg/ledger"
	"github.com/gin-gonic/gin"
)

func (handler *Handler) handleCreateWallet(ctx *gin.Context) {
	actor, ok := handler.actor(ctx)
	if !ok {
		return
	}
	var request createWalletRequest
	if !bindJSON(ctx, &request) {
		return
	}
	email := request.Email
	if email == "" {
		email = getClaims(ctx).GetUserEmail()
	}
	var currency ledger.Currency
	if request.Currency != "" {
		parsed, err := ledger.ParseCurrency(request.Currency)
		if err != nil {
			handler.respondError(ctx, "create wallet", err, nil)
			return
		}
		currency = parsed
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	account, err := handler.service.CreateWallet(requestCtx, actor.Owner, email, currency)
	if err != nil {
		handler.respondError(ctx, "create wallet", err, nil)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"wallet": newWalletPayload(account)})
}

func (handler *Handler) handleWallet(ctx *gin.Context) {
	actor, ok := handler.actor(ctx)
	if !ok {
		return
	}
	handler.respondWallet(ctx, actor.Owner)
}

// respondWallet writes owner's wallet with its balance view.
func (handler *Handler) respondWallet(ctx *gin.Context, owner ledger.OwnerRef) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	account, err := handler.service.Wallet(requestCtx, owner)
	if err != nil {
		handler.respondError(ctx, "wallet", err, nil)
		return
	}
	balance, err := handler.service.Balance(requestCtx, owner)
	if err != nil {
		handler.respondError(ctx, "balance", err, nil)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"wallet": newWalletPayload(account), "balance": newBalancePayload(balance)})
}

func (handler *Handler) handleTransactions(ctx *gin.Context) {
	actor, ok := handler.actor(ctx)
	if !ok {
		return
	}
	handler.respondHistory(ctx, actor.Owner)
}

func (handler *Handler) respondHistory(ctx *gin.Context, owner ledger.OwnerRef) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	entries, err := handler.service.History(requestCtx, owner, handler.listLimit(ctx))
	if err != nil {
		handler.respondError(ctx, "history", err, nil)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"entries": newEntryPayloads(entries)})
}

func (handler *Handler) handleDeposit(ctx *gin.Context) {
	actor, ok := handler.actor(ctx)
	if !ok {
		return
	}
	var request depositRequest
	if !bindJSON(ctx, &request) {
		return
	}
	amount, err := parsePositiveAmount(request.Amount)
	if err != nil {
		handler.respondError(ctx, "deposit", err, nil)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	intent, err := handler.service.InitializeDeposit(requestCtx, actor.Owner, amount)
	if err != nil {
		handler.respondError(ctx, "deposit", err, bookedEntry(intent.Entry))
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"entry": newEntryPayload(intent.Entry), "checkout_url": intent.CheckoutURL})
}

func (handler *Handler) handleWithdrawal(ctx *gin.Context) {
	actor, ok := handler.actor(ctx)
	if !ok {
		return
	}
	var request withdrawalRequest
	if !bindJSON(ctx, &request) {
		return
	}
	bankAccountID, err := ledger.NewBankAccountID(request.BankAccountID)
	if err != nil {
		handler.respondError(ctx, "withdrawal", err, nil)
		return
	}
	amount, err := parsePositiveAmount(request.Amount)
	if err != nil {
		handler.respondError(ctx, "withdrawal", err, nil)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	entry, err := handler.service.InitiateWithdrawal(requestCtx, ledger.WithdrawalRequest{
		Owner:         actor.Owner,
		BankAccountID: bankAccountID,
		Amount:        amount,
		Reason:        request.Reason,
	})
	if err != nil {
		handler.respondError(ctx, "withdrawal", err, bookedEntry(entry))
		return
	}
	ctx.JSON(http.StatusAccepted, gin.H{"entry": newEntryPayload(entry)})
}

// bookedEntry attaches an entry that was booked before the operation failed.
func bookedEntry(entry ledger.Entry) gin.H {
	if entry.Reference.IsZero() {
		return nil
	}
	return gin.H{"entry": newEntryPayload(entry)}
}

func (handler *Handler) handleListWithdrawalBanks(ctx *gin.Context) {
	actor, ok := handler.actor(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	banks, err := handler.service.WithdrawalBanks(requestCtx, actor.Owner)
	if err != nil {
		handler.respondError(ctx, "list withdrawal banks", err, nil)
		return
	}
	payloads := make([]bankAccountPayload, 0, len(banks))
	for _, bank := range banks {
		payloads = append(payloads, newBankAccountPayload(bank))
	}
	ctx.JSON(http.StatusOK, gin.H{"banks": payloads})
}

// handleSaveWithdrawalBank stores a payout account. A missing account name is
// resolved through the bank directory.
func (handler *Handler) handleSaveWithdrawalBank(ctx *gin.Context) {
	actor, ok := handler.actor(ctx)
	if !ok {
		return
	}
	var request saveBankRequest
	if !bindJSON(ctx, &request) {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	accountName := request.AccountName
	if accountName == "" && handler.directory != nil {
		resolved, err := handler.directory.ResolveAccount(requestCtx, request.BankCode, request.AccountNumber)
		if err != nil {
			handler.respondError(ctx, "resolve account", err, nil)
			return
		}
		accountName = resolved.AccountName
	}
	bank, err := handler.service.SaveWithdrawalBank(requestCtx, actor.Owner, request.BankCode, request.BankName, request.AccountNumber, accountName)
	if err != nil {
		handler.respondError(ctx, "save withdrawal bank", err, nil)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"bank": newBankAccountPayload(bank)})
}

func (handler *Handler) handleDeleteWithdrawalBank(ctx *gin.Context) {
	actor, ok := handler.actor(ctx)
	if !ok {
		return
	}
	bankAccountID, err := ledger.NewBankAccountID(ctx.Param("bank_id"))
	if err != nil {
		handler.respondError(ctx, "delete withdrawal bank", err, nil)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	if err := handler.service.DeleteWithdrawalBank(requestCtx, actor.Owner, bankAccountID); err != nil {
		handler.respondError(ctx, "delete withdrawal bank", err, nil)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (handler *Handler) handleListBanks(ctx *gin.Context) {
	if handler.directory == nil {
		handler.respondError(ctx, "list banks", ledger.ErrGatewayNotConfigured, nil)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	banks, err := handler.directory.ListBanks(requestCtx)
	if err != nil {
		handler.respondError(ctx, "list banks", err, nil)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"banks": newBankPayloads(banks)})
}

func (handler *Handler) handleResolveAccount(ctx *gin.Context) {
	if handler.directory == nil {
		handler.respondError(ctx, "resolve account", ledger.ErrGatewayNotConfigured, nil)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	account, err := handler.directory.ResolveAccount(requestCtx, ctx.Query("bank_code"), ctx.Query("account_number"))
	if err != nil {
		handler.respondError(ctx, "resolve account", err, nil)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"bank_code":      account.BankCode,
		"account_number": account.AccountNumber,
		"account_name":   account.AccountName,
	})
}
