package httpapi

import (
	"errors"
	"net/http"

	"github.com/Godswillamos0/escrow-api/pkg/ledger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	codeInvalidPayload = "invalid_payload"
	codeUnauthorized   = "unauthorized"
	codeInternal       = "internal_error"
)

type errorMapping struct {
	target error
	status int
	code   string
}

// errorMappings is evaluated in order; the first match wins.
var errorMappings = []errorMapping{
	{target: ledger.ErrSignatureInvalid, status: http.StatusUnauthorized, code: "signature_invalid"},
	{target: ledger.ErrGatewayNotConfigured, status: http.StatusBadGateway, code: "gateway_not_configured"},
	{target: ledger.ErrInvalidInput, status: http.StatusBadRequest, code: "invalid_input"},
	{target: ledger.ErrUnauthorized, status: http.StatusForbidden, code: "forbidden"},
	{target: ledger.ErrNotFound, status: http.StatusNotFound, code: "not_found"},
	{target: ledger.ErrConflict, status: http.StatusConflict, code: "conflict"},
	{target: ledger.ErrInvalidTransition, status: http.StatusConflict, code: "invalid_transition"},
	{target: ledger.ErrInsufficientFunds, status: http.StatusUnprocessableEntity, code: "insufficient_funds"},
	{target: ledger.ErrAccountFrozen, status: http.StatusLocked, code: "account_frozen"},
	{target: ledger.ErrGatewayTimeout, status: http.StatusGatewayTimeout, code: "gateway_timeout"},
	{target: ledger.ErrGateway, status: http.StatusBadGateway, code: "gateway_error"},
}

// statusFor maps a service error to its HTTP status and stable code.
func statusFor(err error) (int, string) {
	for _, mapping := range errorMappings {
		if errors.Is(err, mapping.target) {
			return mapping.status, mapping.code
		}
	}
	return http.StatusInternalServerError, codeInternal
}

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}

// respondError writes the mapped error. Extra fields are merged into the body.
func (handler *Handler) respondError(ctx *gin.Context, operation string, err error, extra gin.H) {
	status, code := statusFor(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		handler.logger.Error(operation+" failed", zap.Error(err))
		if status == http.StatusInternalServerError {
			message = "internal error"
		}
	}
	body := errorResponse(code, message)
	for key, value := range extra {
		body[key] = value
	}
	ctx.JSON(status, body)
}
