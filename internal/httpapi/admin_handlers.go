package httpapi

import (
	"context"
	"net/http"

	"github.com/Godswillamos0/escrow-api/pkg/ledger"
	"github.com/gin-gonic/gin"
)

const defaultAdminEscrowStatus = "DISPUTED"

func (handler *Handler) handleAdminWallets(ctx *gin.Context) {
	actor, ok := handler.actor(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	accounts, err := handler.service.ListWallets(requestCtx, actor, handler.listLimit(ctx))
	if err != nil {
		handler.respondError(ctx, "list wallets", err, nil)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"wallets": newWalletPayloads(accounts)})
}

// handleAdminWallet looks a wallet up by owner. The admin group already
// enforces the role.
func (handler *Handler) handleAdminWallet(ctx *gin.Context) {
	owner, err := ledger.NewOwnerRef(ctx.Param("owner"))
	if err != nil {
		handler.respondError(ctx, "wallet", err, nil)
		return
	}
	handler.respondWallet(ctx, owner)
}

func (handler *Handler) handleAdminWalletTransactions(ctx *gin.Context) {
	owner, err := ledger.NewOwnerRef(ctx.Param("owner"))
	if err != nil {
		handler.respondError(ctx, "history", err, nil)
		return
	}
	handler.respondHistory(ctx, owner)
}

func (handler *Handler) handleAdminCredit(ctx *gin.Context) {
	handler.adjustWallet(ctx, "admin credit", handler.service.AdminCredit)
}

func (handler *Handler) handleAdminDebit(ctx *gin.Context) {
	handler.adjustWallet(ctx, "admin debit", handler.service.AdminDebit)
}

type walletAdjustment func(ctx context.Context, actor ledger.Actor, owner ledger.OwnerRef, amount ledger.PositiveAmount, reason string) (ledger.Entry, error)

func (handler *Handler) adjustWallet(ctx *gin.Context, operation string, adjust walletAdjustment) {
	actor, ok := handler.actor(ctx)
	if !ok {
		return
	}
	owner, err := ledger.NewOwnerRef(ctx.Param("owner"))
	if err != nil {
		handler.respondError(ctx, operation, err, nil)
		return
	}
	var request adjustmentRequest
	if !bindJSON(ctx, &request) {
		return
	}
	amount, err := parsePositiveAmount(request.Amount)
	if err != nil {
		handler.respondError(ctx, operation, err, nil)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	entry, err := adjust(requestCtx, actor, owner, amount, request.Reason)
	if err != nil {
		handler.respondError(ctx, operation, err, nil)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"entry": newEntryPayload(entry)})
}

func (handler *Handler) handleAdminFreeze(ctx *gin.Context) {
	handler.setWalletFrozen(ctx, "freeze wallet", handler.service.Freeze)
}

func (handler *Handler) handleAdminUnfreeze(ctx *gin.Context) {
	handler.setWalletFrozen(ctx, "unfreeze wallet", handler.service.Unfreeze)
}

func (handler *Handler) setWalletFrozen(ctx *gin.Context, operation string, apply func(context.Context, ledger.Actor, ledger.OwnerRef) (ledger.Account, error)) {
	actor, ok := handler.actor(ctx)
	if !ok {
		return
	}
	owner, err := ledger.NewOwnerRef(ctx.Param("owner"))
	if err != nil {
		handler.respondError(ctx, operation, err, nil)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	account, err := apply(requestCtx, actor, owner)
	if err != nil {
		handler.respondError(ctx, operation, err, nil)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"wallet": newWalletPayload(account)})
}

func (handler *Handler) handleAdminEscrows(ctx *gin.Context) {
	actor, ok := handler.actor(ctx)
	if !ok {
		return
	}
	status, err := ledger.ParseEscrowStatus(defaultIfEmpty(ctx.Query("status"), defaultAdminEscrowStatus))
	if err != nil {
		handler.respondError(ctx, "list escrows by status", err, nil)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	escrows, err := handler.service.ListEscrowsByStatus(requestCtx, actor, status, handler.listLimit(ctx))
	if err != nil {
		handler.respondError(ctx, "list escrows by status", err, nil)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"escrows": newEscrowPayloads(escrows)})
}

func (handler *Handler) handleAdminResolve(ctx *gin.Context) {
	var request resolveRequest
	if !bindJSON(ctx, &request) {
		return
	}
	handler.withEscrow(ctx, "resolve dispute", http.StatusOK, func(ctx *gin.Context, actor ledger.Actor, escrowID ledger.EscrowID) (ledger.Escrow, error) {
		resolution, err := ledger.ParseDisputeResolution(request.Resolution)
		if err != nil {
			return ledger.Escrow{}, err
		}
		requestCtx, cancel := handler.requestContext(ctx)
		defer cancel()
		return handler.service.ResolveDispute(requestCtx, actor, escrowID, resolution)
	})
}

func (handler *Handler) handleAdminForceRelease(ctx *gin.Context) {
	handler.withEscrow(ctx, "force release", http.StatusOK, func(ctx *gin.Context, actor ledger.Actor, escrowID ledger.EscrowID) (ledger.Escrow, error) {
		requestCtx, cancel := handler.requestContext(ctx)
		defer cancel()
		return handler.service.ForceRelease(requestCtx, actor, escrowID)
	})
}

func (handler *Handler) handleAdminForceReturn(ctx *gin.Context) {
	handler.withEscrow(ctx, "force return", http.StatusOK, func(ctx *gin.Context, actor ledger.Actor, escrowID ledger.EscrowID) (ledger.Escrow, error) {
		requestCtx, cancel := handler.requestContext(ctx)
		defer cancel()
		return handler.service.ForceReturn(requestCtx, actor, escrowID)
	})
}

func (handler *Handler) handleAdminReviewQueue(ctx *gin.Context) {
	actor, ok := handler.actor(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	entries, err := handler.service.ReviewQueue(requestCtx, actor, handler.listLimit(ctx))
	if err != nil {
		handler.respondError(ctx, "review queue", err, nil)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"entries": newEntryPayloads(entries)})
}
