package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/Godswillamos0/escrow-api/internal/bankdirectory"
	"github.com/Godswillamos0/escrow-api/pkg/ledger"
	"github.com/gin-gonic/gin"
	"github.com/tyemirov/tauth/pkg/sessionvalidator"
	"go.uber.org/zap"
)

const claimsContextKey = "auth_claims"

var errMissingService = errors.New("ledger service is required")

// BankDirectory lists payout banks and resolves account holders.
type BankDirectory interface {
	ListBanks(ctx context.Context) ([]bankdirectory.Bank, error)
	ResolveAccount(ctx context.Context, bankCode string, accountNumber string) (bankdirectory.ResolvedAccount, error)
}

// Handler serves every API route over one ledger service.
type Handler struct {
	logger    *zap.Logger
	service   *ledger.Service
	directory BankDirectory
	cfg       Config
}

// NewHandler validates cfg and builds a Handler. directory may be nil, which
// disables the bank lookup routes.
func NewHandler(logger *zap.Logger, service *ledger.Service, directory BankDirectory, cfg Config) (*Handler, error) {
	if service == nil {
		return nil, errMissingService
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{logger: logger, service: service, directory: directory, cfg: cfg}, nil
}

func getClaims(ctx *gin.Context) *sessionvalidator.Claims {
	claimsValue, ok := ctx.Get(claimsContextKey)
	if !ok {
		return nil
	}
	claims, _ := claimsValue.(*sessionvalidator.Claims)
	return claims
}

// actor resolves the session into a ledger actor, writing 401 when it cannot.
func (handler *Handler) actor(ctx *gin.Context) (ledger.Actor, bool) {
	claims := getClaims(ctx)
	if claims == nil {
		ctx.JSON(http.StatusUnauthorized, errorResponse(codeUnauthorized, "missing session"))
		return ledger.Actor{}, false
	}
	owner, err := ledger.NewOwnerRef(claims.GetUserID())
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, errorResponse(codeUnauthorized, "session has no user id"))
		return ledger.Actor{}, false
	}
	return ledger.Actor{Owner: owner, Admin: hasRole(claims.GetUserRoles(), handler.cfg.AdminRole)}, true
}

func (handler *Handler) requireAdminRole(ctx *gin.Context) {
	claims := getClaims(ctx)
	if claims == nil {
		ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse(codeUnauthorized, "missing session"))
		return
	}
	if !hasRole(claims.GetUserRoles(), handler.cfg.AdminRole) {
		ctx.AbortWithStatusJSON(http.StatusForbidden, errorResponse("forbidden", "administrator role required"))
		return
	}
	ctx.Next()
}

func hasRole(roles []string, role string) bool {
	for _, candidate := range roles {
		if strings.EqualFold(strings.TrimSpace(candidate), role) {
			return true
		}
	}
	return false
}

func (handler *Handler) requestContext(ctx *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
}

// bindJSON decodes an optional JSON body, writing 400 on malformed input.
func bindJSON(ctx *gin.Context, target interface{}) bool {
	if err := ctx.ShouldBindJSON(target); err != nil && !errors.Is(err, io.EOF) {
		ctx.JSON(http.StatusBadRequest, errorResponse(codeInvalidPayload, "expected JSON body"))
		return false
	}
	return true
}

func parsePositiveAmount(raw json.Number) (ledger.PositiveAmount, error) {
	return ledger.ParsePositiveAmount(raw.String())
}

func (handler *Handler) listLimit(ctx *gin.Context) int {
	limit, err := strconv.Atoi(ctx.Query("limit"))
	if err != nil || limit <= 0 {
		return handler.cfg.ListLimit
	}
	return limit
}

func escrowIDParam(ctx *gin.Context) (ledger.EscrowID, error) {
	return ledger.NewEscrowID(ctx.Param("id"))
}
