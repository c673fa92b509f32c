package service

import (
	"context"
	"errors"
	"strings"

	"wallet_ledger/internal/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount      = errors.New("amount must be a positive value with at most 2 decimal places")
	ErrReceiverNotFound   = errors.New("receiver not found")
	ErrSelfTransferDenied = errors.New("self-transfer denied")
	ErrUserBlacklisted    = errors.New("user is blacklisted")
)

// Largest value a NUMERIC(14,2) column holds.
var maxAmount = decimal.RequireFromString("999999999999.99")

func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() || !amount.Equal(amount.Truncate(2)) || amount.GreaterThan(maxAmount) {
		return ErrInvalidAmount
	}
	return nil
}

func ensureReference(reference string) string {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return uuid.NewString()
	}
	return reference
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func isRetryableError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

// outcome is the metrics label for an operation result.
func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, repository.ErrWalletNotFound),
		errors.Is(err, repository.ErrUserNotFound),
		errors.Is(err, ErrReceiverNotFound):
		return "not_found"
	case errors.Is(err, repository.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, repository.ErrBalanceLimitExceeded):
		return "balance_limit"
	case errors.Is(err, ErrSelfTransferDenied):
		return "self_transfer"
	case errors.Is(err, repository.ErrDuplicateReference),
		errors.Is(err, repository.ErrUserAlreadyExists):
		return "conflict"
	case errors.Is(err, ErrUserBlacklisted):
		return "blacklisted"
	case errors.Is(err, repository.ErrOperationTimedOut),
		errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	}
	return "error"
}

// isDomainError reports whether err is an expected rejection rather than an
// infrastructure failure.
func isDomainError(err error) bool {
	switch outcome(err) {
	case "success", "timeout", "error":
		return false
	}
	return true
}
