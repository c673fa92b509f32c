package handlers

import (
	"context"
	"net/http"

	"wallet_ledger/internal/middleware"
	"wallet_ledger/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

//go:generate mockgen -source=http_handlers.go -destination=../../test/mock_services.go -package=test

type WalletService interface {
	Fund(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, reference string) (models.FundResult, error)
	Withdraw(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, reference string) (models.WithdrawResult, error)
	Transfer(ctx context.Context, senderID uuid.UUID, receiverEmail string, amount decimal.Decimal, reference string) (models.TransferResult, error)
	GetBalance(ctx context.Context, userID uuid.UUID) (models.BalanceView, error)
	GetHistory(ctx context.Context, userID uuid.UUID) ([]models.HistoryEntry, error)
}

type UserService interface {
	Register(ctx context.Context, req models.RegisterRequest) (models.RegisterResult, error)
	GetUser(ctx context.Context, userID uuid.UUID) (models.UserProfile, error)
}

type WalletHTTPHandler struct {
	wallets WalletService
	users   UserService
	debug   bool
}

func NewWalletHTTPHandler(wallets WalletService, users UserService, debug bool) *WalletHTTPHandler {
	return &WalletHTTPHandler{wallets: wallets, users: users, debug: debug}
}

// RegisterRoutes mounts the API under /api/v1. authMW guards everything but
// registration; writeMW runs in front of the mutating wallet routes.
func (h *WalletHTTPHandler) RegisterRoutes(r *gin.Engine, authMW gin.HandlerFunc, writeMW ...gin.HandlerFunc) {
	registerValidators()

	v1 := r.Group("/api/v1")
	v1.POST("/users", h.HandleRegister)

	authed := v1.Group("", authMW)
	authed.GET("/users/me", h.HandleMe)

	wallet := authed.Group("/wallet")
	{
		wallet.GET("/balance", h.HandleGetBalance)
		wallet.GET("/history", h.HandleHistory)

		writes := wallet.Group("", writeMW...)
		writes.POST("/fund", h.HandleFund)
		writes.POST("/withdraw", h.HandleWithdraw)
		writes.POST("/transfer", h.HandleTransfer)
	}
}

func (h *WalletHTTPHandler) HandleRegister(c *gin.Context) {
	var req models.RegisterRequest
	if !bind(c, &req) {
		return
	}
	res, err := h.users.Register(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "success", "message": "Registered", "token": res.Token})
}

func (h *WalletHTTPHandler) HandleMe(c *gin.Context) {
	userID, ok := caller(c)
	if !ok {
		return
	}
	profile, err := h.users.GetUser(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": profile})
}

func (h *WalletHTTPHandler) HandleFund(c *gin.Context) {
	userID, ok := caller(c)
	if !ok {
		return
	}
	var req models.AmountRequest
	if !bind(c, &req) {
		return
	}
	res, err := h.wallets.Fund(c.Request.Context(), userID, req.Amount, reference(c, userID))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": res})
}

func (h *WalletHTTPHandler) HandleWithdraw(c *gin.Context) {
	userID, ok := caller(c)
	if !ok {
		return
	}
	var req models.AmountRequest
	if !bind(c, &req) {
		return
	}
	res, err := h.wallets.Withdraw(c.Request.Context(), userID, req.Amount, reference(c, userID))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": res})
}

func (h *WalletHTTPHandler) HandleTransfer(c *gin.Context) {
	userID, ok := caller(c)
	if !ok {
		return
	}
	var req models.TransferRequest
	if !bind(c, &req) {
		return
	}
	res, err := h.wallets.Transfer(c.Request.Context(), userID, req.Email, req.Amount, reference(c, userID))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": res})
}

func (h *WalletHTTPHandler) HandleGetBalance(c *gin.Context) {
	userID, ok := caller(c)
	if !ok {
		return
	}
	balance, err := h.wallets.GetBalance(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": balance})
}

func (h *WalletHTTPHandler) HandleHistory(c *gin.Context) {
	userID, ok := caller(c)
	if !ok {
		return
	}
	history, err := h.wallets.GetHistory(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "results": len(history), "data": history})
}

func bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "fail", "error": "invalid request", "details": err.Error()})
		return false
	}
	return true
}

func caller(c *gin.Context) (uuid.UUID, bool) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"status": "fail", "error": "you are not logged in"})
	}
	return userID, ok
}

// reference scopes the client's idempotency key to the caller so two users
// can pick the same key.
func reference(c *gin.Context, userID uuid.UUID) string {
	key := middleware.IdempotencyKey(c)
	if key == "" {
		return ""
	}
	return userID.String() + ":" + key
}
