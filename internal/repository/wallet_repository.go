package repository

import (
	"context"
	"errors"
	"log/slog"

	"wallet_ledger/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const walletColumns = "id, user_id, balance, currency, created_at"

type WalletPGRepository struct {
	logger *slog.Logger
}

func NewWalletPGRepository(logger *slog.Logger) *WalletPGRepository {
	return &WalletPGRepository{logger: logger}
}

func (r *WalletPGRepository) FindByUserID(ctx context.Context, q Querier, userID uuid.UUID) (models.Wallet, error) {
	return r.scanOne(ctx, q, "find wallet by user",
		"SELECT "+walletColumns+" FROM wallets WHERE user_id = $1", userID)
}

// LockByUserID reads the wallet and holds its row lock until q's transaction ends.
func (r *WalletPGRepository) LockByUserID(ctx context.Context, q Querier, userID uuid.UUID) (models.Wallet, error) {
	return r.scanOne(ctx, q, "lock wallet by user",
		"SELECT "+walletColumns+" FROM wallets WHERE user_id = $1 FOR UPDATE", userID)
}

func (r *WalletPGRepository) LockByID(ctx context.Context, q Querier, walletID uuid.UUID) (models.Wallet, error) {
	return r.scanOne(ctx, q, "lock wallet",
		"SELECT "+walletColumns+" FROM wallets WHERE id = $1 FOR UPDATE", walletID)
}

// AddToBalance applies delta (negative for debits) and returns the new balance.
func (r *WalletPGRepository) AddToBalance(ctx context.Context, q Querier, walletID uuid.UUID, delta decimal.Decimal) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := q.QueryRow(ctx,
		"UPDATE wallets SET balance = balance + $1 WHERE id = $2 RETURNING balance",
		delta, walletID,
	).Scan(&balance)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return decimal.Zero, ErrWalletNotFound
	case isPgCode(err, codeCheckViolation):
		return decimal.Zero, ErrInsufficientFunds
	case isPgCode(err, codeNumericOutOfRange):
		return decimal.Zero, ErrBalanceLimitExceeded
	case err != nil:
		r.logger.Error("Failed to update wallet balance",
			slog.String("wallet_id", walletID.String()),
			slog.String("delta", delta.String()),
			slog.Any("err", err),
		)
		return decimal.Zero, err
	}
	return balance, nil
}

func (r *WalletPGRepository) Create(ctx context.Context, q Querier, wallet *models.Wallet) error {
	err := q.QueryRow(ctx,
		"INSERT INTO wallets (id, user_id, balance, currency) VALUES ($1, $2, $3, $4) RETURNING created_at",
		wallet.ID, wallet.UserID, wallet.Balance, wallet.Currency,
	).Scan(&wallet.CreatedAt)
	if err != nil {
		if isPgCode(err, codeUniqueViolation) {
			return ErrUserAlreadyExists
		}
		r.logger.Error("Failed to create wallet",
			slog.String("wallet_id", wallet.ID.String()),
			slog.String("user_id", wallet.UserID.String()),
			slog.Any("err", err),
		)
		return err
	}
	return nil
}

func (r *WalletPGRepository) scanOne(ctx context.Context, q Querier, op, sql string, arg uuid.UUID) (models.Wallet, error) {
	var w models.Wallet
	err := q.QueryRow(ctx, sql, arg).Scan(&w.ID, &w.UserID, &w.Balance, &w.Currency, &w.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Wallet{}, ErrWalletNotFound
	}
	if err != nil {
		r.logger.Error("Failed to "+op,
			slog.String("key", arg.String()),
			slog.Any("err", err),
		)
		return models.Wallet{}, err
	}
	return w, nil
}
