package handlers

import (
	"errors"
	"net/http"

	"wallet_ledger/internal/repository"
	"wallet_ledger/internal/service"

	"github.com/gin-gonic/gin"
)

const genericErrorMessage = "Something went wrong. Please try again later."

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidAmount),
		errors.Is(err, repository.ErrInsufficientFunds),
		errors.Is(err, repository.ErrBalanceLimitExceeded),
		errors.Is(err, service.ErrSelfTransferDenied):
		return http.StatusBadRequest
	case errors.Is(err, repository.ErrWalletNotFound),
		errors.Is(err, repository.ErrUserNotFound),
		errors.Is(err, service.ErrReceiverNotFound):
		return http.StatusNotFound
	case errors.Is(err, repository.ErrUserAlreadyExists),
		errors.Is(err, repository.ErrDuplicateReference):
		return http.StatusConflict
	case errors.Is(err, service.ErrUserBlacklisted):
		return http.StatusForbidden
	case errors.Is(err, repository.ErrOperationTimedOut):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (h *WalletHTTPHandler) writeError(c *gin.Context, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError && !h.debug {
		msg = genericErrorMessage
	}
	label := "error"
	if status < http.StatusInternalServerError {
		label = "fail"
	}
	if status == http.StatusServiceUnavailable {
		c.Header("Retry-After", "1")
	}
	c.JSON(status, gin.H{"status": label, "error": msg})
}
