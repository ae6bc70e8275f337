package httpapi

import (
	"net/http"

	"github.com/Godswillamos0/escrow-api/pkg/ledger"
	"github.com/gin-gonic/gin"
)

const defaultEscrowRole = "client"

// handleCreateEscrow opens an escrow. When funding fails after the escrow was
// stored, the PENDING escrow is returned alongside the error.
func (handler *Handler) handleCreateEscrow(ctx *gin.Context) {
	actor, ok := handler.actor(ctx)
	if !ok {
		return
	}
	var request createEscrowRequest
	if !bindJSON(ctx, &request) {
		return
	}
	command, err := buildCreateEscrowCommand(actor, request)
	if err != nil {
		handler.respondError(ctx, "create escrow", err, nil)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	escrow, err := handler.service.CreateEscrow(requestCtx, command)
	if err != nil {
		var extra gin.H
		if escrow.EscrowID.String() != "" {
			extra = gin.H{"escrow": newEscrowPayload(escrow)}
		}
		handler.respondError(ctx, "create escrow", err, extra)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"escrow": newEscrowPayload(escrow)})
}

func buildCreateEscrowCommand(actor ledger.Actor, request createEscrowRequest) (ledger.CreateEscrowCommand, error) {
	merchant, err := ledger.NewOwnerRef(request.MerchantID)
	if err != nil {
		return ledger.CreateEscrowCommand{}, err
	}
	projectID, err := ledger.NewProjectID(request.ProjectID)
	if err != nil {
		return ledger.CreateEscrowCommand{}, err
	}
	command := ledger.CreateEscrowCommand{
		Client:        actor,
		MerchantOwner: merchant,
		ProjectID:     projectID,
		Description:   request.Description,
		Fund:          request.Fund,
	}
	if request.Amount != "" {
		amount, err := parsePositiveAmount(request.Amount)
		if err != nil {
			return ledger.CreateEscrowCommand{}, err
		}
		command.Amount = amount
	}
	for _, milestone := range request.Milestones {
		key, err := ledger.NewMilestoneKey(milestone.Key)
		if err != nil {
			return ledger.CreateEscrowCommand{}, err
		}
		amount, err := parsePositiveAmount(milestone.Amount)
		if err != nil {
			return ledger.CreateEscrowCommand{}, err
		}
		command.Milestones = append(command.Milestones, ledger.MilestoneInput{
			Key:         key,
			Title:       milestone.Title,
			Description: milestone.Description,
			Amount:      amount,
		})
	}
	return command, nil
}

func (handler *Handler) handleListEscrows(ctx *gin.Context) {
	actor, ok := handler.actor(ctx)
	if !ok {
		return
	}
	role, err := ledger.ParsePartyRole(defaultIfEmpty(ctx.Query("role"), defaultEscrowRole))
	if err != nil {
		handler.respondError(ctx, "list escrows", err, nil)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	escrows, err := handler.service.ListEscrows(requestCtx, actor, role, handler.listLimit(ctx))
	if err != nil {
		handler.respondError(ctx, "list escrows", err, nil)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"escrows": newEscrowPayloads(escrows)})
}

func (handler *Handler) handleGetEscrow(ctx *gin.Context) {
	handler.withEscrow(ctx, "get escrow", http.StatusOK, func(ctx *gin.Context, actor ledger.Actor, escrowID ledger.EscrowID) (ledger.Escrow, error) {
		requestCtx, cancel := handler.requestContext(ctx)
		defer cancel()
		return handler.service.GetEscrow(requestCtx, actor, escrowID)
	})
}

func (handler *Handler) handleFundEscrow(ctx *gin.Context) {
	handler.withEscrow(ctx, "fund escrow", http.StatusOK, func(ctx *gin.Context, actor ledger.Actor, escrowID ledger.EscrowID) (ledger.Escrow, error) {
		requestCtx, cancel := handler.requestContext(ctx)
		defer cancel()
		return handler.service.FundEscrow(requestCtx, actor, escrowID)
	})
}

func (handler *Handler) handleConfirmEscrow(ctx *gin.Context) {
	var request confirmRequest
	if !bindJSON(ctx, &request) {
		return
	}
	handler.withEscrow(ctx, "confirm escrow", http.StatusOK, func(ctx *gin.Context, actor ledger.Actor, escrowID ledger.EscrowID) (ledger.Escrow, error) {
		command := ledger.ConfirmCommand{EscrowID: escrowID}
		if request.MilestoneKey != "" {
			key, err := ledger.NewMilestoneKey(request.MilestoneKey)
			if err != nil {
				return ledger.Escrow{}, err
			}
			command.MilestoneKey = key
		}
		requestCtx, cancel := handler.requestContext(ctx)
		defer cancel()
		return handler.service.ConfirmEscrow(requestCtx, actor, command)
	})
}

func (handler *Handler) handleCancelEscrow(ctx *gin.Context) {
	handler.withEscrow(ctx, "cancel escrow", http.StatusOK, func(ctx *gin.Context, actor ledger.Actor, escrowID ledger.EscrowID) (ledger.Escrow, error) {
		requestCtx, cancel := handler.requestContext(ctx)
		defer cancel()
		return handler.service.CancelEscrow(requestCtx, actor, escrowID)
	})
}

func (handler *Handler) handleDisputeEscrow(ctx *gin.Context) {
	var request disputeRequest
	if !bindJSON(ctx, &request) {
		return
	}
	handler.withEscrow(ctx, "dispute escrow", http.StatusOK, func(ctx *gin.Context, actor ledger.Actor, escrowID ledger.EscrowID) (ledger.Escrow, error) {
		requestCtx, cancel := handler.requestContext(ctx)
		defer cancel()
		return handler.service.DisputeEscrow(requestCtx, actor, escrowID, request.Reason)
	})
}

func (handler *Handler) handleEscrowDisputes(ctx *gin.Context) {
	actor, ok := handler.actor(ctx)
	if !ok {
		return
	}
	escrowID, err := escrowIDParam(ctx)
	if err != nil {
		handler.respondError(ctx, "list disputes", err, nil)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	disputes, err := handler.service.Disputes(requestCtx, actor, escrowID)
	if err != nil {
		handler.respondError(ctx, "list disputes", err, nil)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"disputes": newDisputePayloads(disputes)})
}

type escrowAction func(ctx *gin.Context, actor ledger.Actor, escrowID ledger.EscrowID) (ledger.Escrow, error)

// withEscrow resolves the actor and the :id parameter, runs action and writes
// the resulting escrow.
func (handler *Handler) withEscrow(ctx *gin.Context, operation string, status int, action escrowAction) {
	actor, ok := handler.actor(ctx)
	if !ok {
		return
	}
	escrowID, err := escrowIDParam(ctx)
	if err != nil {
		handler.respondError(ctx, operation, err, nil)
		return
	}
	escrow, err := action(ctx, actor, escrowID)
	if err != nil {
		handler.respondError(ctx, operation, err, nil)
		return
	}
	ctx.JSON(status, gin.H{"escrow": newEscrowPayload(escrow)})
}
