package repository

import (
	"context"
	"log/slog"

	"wallet_ledger/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// LedgerPGRepository appends and reads the audit trail: transactions and transfers.
type LedgerPGRepository struct {
	logger *slog.Logger
}

func NewLedgerPGRepository(logger *slog.Logger) *LedgerPGRepository {
	return &LedgerPGRepository{logger: logger}
}

func (r *LedgerPGRepository) CreateTransaction(ctx context.Context, q Querier, t *models.Transaction) error {
	err := q.QueryRow(ctx, `
		INSERT INTO transactions (id, wallet_id, type, amount, reference, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		t.ID, t.WalletID, string(t.Type), t.Amount, t.Reference, string(t.Status),
	).Scan(&t.CreatedAt)
	if err != nil {
		if isPgCode(err, codeUniqueViolation) {
			return ErrDuplicateReference
		}
		r.logger.Error("Failed to insert transaction",
			slog.String("wallet_id", t.WalletID.String()),
			slog.String("type", string(t.Type)),
			slog.String("reference", t.Reference),
			slog.Any("err", err),
		)
		return err
	}
	return nil
}

func (r *LedgerPGRepository) CreateTransfer(ctx context.Context, q Querier, t *models.Transfer) error {
	err := q.QueryRow(ctx, `
		INSERT INTO transfers (id, sender_wallet_id, receiver_wallet_id, amount)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`,
		t.ID, t.SenderWalletID, t.ReceiverWalletID, t.Amount,
	).Scan(&t.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to insert transfer",
			slog.String("sender_wallet_id", t.SenderWalletID.String()),
			slog.String("receiver_wallet_id", t.ReceiverWalletID.String()),
			slog.Any("err", err),
		)
		return err
	}
	return nil
}

// ReferenceExists reports whether the reference was used by any operation,
// including as the base of a transfer's debit and credit legs.
func (r *LedgerPGRepository) ReferenceExists(ctx context.Context, q Querier, reference string) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM transactions WHERE reference IN ($1, $2, $3))",
		reference, reference+models.DebitLegSuffix, reference+models.CreditLegSuffix,
	).Scan(&exists)
	if err != nil {
		r.logger.Error("Failed to check reference",
			slog.String("reference", reference),
			slog.Any("err", err),
		)
		return false, err
	}
	return exists, nil
}

// ListByWallet returns the wallet's transactions, newest first.
func (r *LedgerPGRepository) ListByWallet(ctx context.Context, q Querier, walletID uuid.UUID) ([]models.Transaction, error) {
	rows, err := q.Query(ctx, `
		SELECT id, wallet_id, type, amount, reference, status, created_at
		FROM transactions
		WHERE wallet_id = $1
		ORDER BY created_at DESC, id DESC`, walletID)
	if err != nil {
		r.logger.Error("Failed to list transactions",
			slog.String("wallet_id", walletID.String()),
			slog.Any("err", err),
		)
		return nil, err
	}

	txs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Transaction, error) {
		var t models.Transaction
		var typ, status string
		err := row.Scan(&t.ID, &t.WalletID, &typ, &t.Amount, &t.Reference, &status, &t.CreatedAt)
		t.Type = models.TransactionType(typ)
		t.Status = models.TransactionStatus(status)
		return t, err
	})
	if err != nil {
		r.logger.Error("Failed to scan transactions",
			slog.String("wallet_id", walletID.String()),
			slog.Any("err", err),
		)
		return nil, err
	}
	return txs, nil
}
