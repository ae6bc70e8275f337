package httpapi

import (
	"io"
	"net/http"

	"github.com/Godswillamos0/escrow-api/internal/paystack"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// handlePaystackWebhook authenticates and reconciles a provider callback.
// Once the signature checks out the provider always gets 200 so it stops
// retrying; malformed events and reconcile failures are logged instead.
func (handler *Handler) handlePaystackWebhook(ctx *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(ctx.Request.Body, maxWebhookBodyBytes+1))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(codeInvalidPayload, "unable to read body"))
		return
	}
	if len(body) > maxWebhookBodyBytes {
		ctx.JSON(http.StatusRequestEntityTooLarge, errorResponse(codeInvalidPayload, "body too large"))
		return
	}
	if err := paystack.VerifySignature(handler.cfg.WebhookSecret, body, ctx.GetHeader(paystack.SignatureHeader)); err != nil {
		handler.logger.Warn("webhook signature rejected", zap.String("remote_addr", ctx.ClientIP()))
		handler.respondError(ctx, "webhook", err, nil)
		return
	}
	event, err := paystack.ParseEvent(body)
	if err != nil {
		handler.logger.Warn("webhook event malformed", zap.Error(err))
		ctx.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	outcome, err := handler.service.Reconcile(requestCtx, event)
	if err != nil {
		handler.logger.Error("webhook reconcile failed",
			zap.String("event", string(event.Type)),
			zap.String("reference", event.Reference.String()),
			zap.Error(err),
		)
		ctx.JSON(http.StatusOK, gin.H{"status": "error"})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "received", "outcome": string(outcome)})
}
