package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tyemirov/tauth/pkg/sessionvalidator"
	"go.uber.org/zap"
)

// Run serves the API until ctx is cancelled.
func Run(ctx context.Context, handler *Handler, gatherer prometheus.Gatherer) error {
	cfg := handler.cfg
	sessionValidator, err := sessionvalidator.New(sessionvalidator.Config{
		SigningKey: []byte(cfg.SessionSigningKey),
		Issuer:     cfg.SessionIssuer,
		CookieName: cfg.SessionCookieName,
	})
	if err != nil {
		return fmt.Errorf("session validator: %w", err)
	}

	router := NewRouter(handler, sessionValidator, gatherer)
	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		handler.logger.Info("escrow api listening", zap.String("addr", cfg.ListenAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			handler.logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// NewRouter wires every route. A nil gatherer disables /metrics.
func NewRouter(handler *Handler, validator *sessionvalidator.Validator, gatherer prometheus.Gatherer) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     handler.cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	router.POST("/webhooks/paystack", handler.handlePaystackWebhook)

	api := router.Group("/api")
	api.Use(validator.GinMiddleware(claimsContextKey))

	api.POST("/wallet", handler.handleCreateWallet)
	api.GET("/wallet", handler.handleWallet)
	api.GET("/wallet/transactions", handler.handleTransactions)
	api.POST("/wallet/deposits", handler.handleDeposit)
	api.POST("/wallet/withdrawals", handler.handleWithdrawal)
	api.GET("/wallet/banks", handler.handleListWithdrawalBanks)
	api.POST("/wallet/banks", handler.handleSaveWithdrawalBank)
	api.DELETE("/wallet/banks/:bank_id", handler.handleDeleteWithdrawalBank)

	api.GET("/banks", handler.handleListBanks)
	api.GET("/banks/resolve", handler.handleResolveAccount)

	api.POST("/escrows", handler.handleCreateEscrow)
	api.GET("/escrows", handler.handleListEscrows)
	api.GET("/escrows/:id", handler.handleGetEscrow)
	api.POST("/escrows/:id/fund", handler.handleFundEscrow)
	api.POST("/escrows/:id/confirm", handler.handleConfirmEscrow)
	api.POST("/escrows/:id/cancel", handler.handleCancelEscrow)
	api.POST("/escrows/:id/dispute", handler.handleDisputeEscrow)
	api.GET("/escrows/:id/disputes", handler.handleEscrowDisputes)

	admin := api.Group("/admin")
	admin.Use(handler.requireAdminRole)
	admin.GET("/wallets", handler.handleAdminWallets)
	admin.GET("/wallets/:owner", handler.handleAdminWallet)
	admin.GET("/wallets/:owner/transactions", handler.handleAdminWalletTransactions)
	admin.POST("/wallets/:owner/credit", handler.handleAdminCredit)
	admin.POST("/wallets/:owner/debit", handler.handleAdminDebit)
	admin.POST("/wallets/:owner/freeze", handler.handleAdminFreeze)
	admin.POST("/wallets/:owner/unfreeze", handler.handleAdminUnfreeze)
	admin.GET("/escrows", handler.handleAdminEscrows)
	admin.POST("/escrows/:id/resolve", handler.handleAdminResolve)
	admin.POST("/escrows/:id/force-release", handler.handleAdminForceRelease)
	admin.POST("/escrows/:id/force-return", handler.handleAdminForceReturn)
	admin.POST("/escrows/:id/cancel", handler.handleCancelEscrow)
	admin.GET("/entries/review", handler.handleAdminReviewQueue)

	return router
}
