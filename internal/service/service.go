package service

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"wallet_ledger/internal/metrics"
	"wallet_ledger/internal/models"
	"wallet_ledger/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

//go:generate mockgen -source=service.go -destination=../../test/mock_repositories.go -package=test

type Transactor interface {
	WithinTx(ctx context.Context, fn func(q repository.Querier) error) error
	Reader() repository.Querier
}

type WalletRepository interface {
	FindByUserID(ctx context.Context, q repository.Querier, userID uuid.UUID) (models.Wallet, error)
	LockByUserID(ctx context.Context, q repository.Querier, userID uuid.UUID) (models.Wallet, error)
	LockByID(ctx context.Context, q repository.Querier, walletID uuid.UUID) (models.Wallet, error)
	AddToBalance(ctx context.Context, q repository.Querier, walletID uuid.UUID, delta decimal.Decimal) (decimal.Decimal, error)
	Create(ctx context.Context, q repository.Querier, wallet *models.Wallet) error
}

type UserRepository interface {
	FindByEmail(ctx context.Context, q repository.Querier, email string) (models.User, error)
	FindByID(ctx context.Context, q repository.Querier, id uuid.UUID) (models.User, error)
	Create(ctx context.Context, q repository.Querier, user *models.User) error
}

type LedgerRepository interface {
	CreateTransaction(ctx context.Context, q repository.Querier, t *models.Transaction) error
	CreateTransfer(ctx context.Context, q repository.Querier, t *models.Transfer) error
	ReferenceExists(ctx context.Context, q repository.Querier, reference string) (bool, error)
	ListByWallet(ctx context.Context, q repository.Querier, walletID uuid.UUID) ([]models.Transaction, error)
}

const (
	opFund     = "fund"
	opWithdraw = "withdraw"
	opTransfer = "transfer"
)

type WalletService struct {
	tx         Transactor
	wallets    WalletRepository
	users      UserRepository
	ledger     LedgerRepository
	logger     *slog.Logger
	maxRetries int
}

func NewWalletService(tx Transactor, wallets WalletRepository, users UserRepository, ledger LedgerRepository, logger *slog.Logger) *WalletService {
	return &WalletService{
		tx:         tx,
		wallets:    wallets,
		users:      users,
		ledger:     ledger,
		logger:     logger,
		maxRetries: 3,
	}
}

func (s *WalletService) Fund(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, reference string) (models.FundResult, error) {
	started := time.Now()
	if err := validateAmount(amount); err != nil {
		return models.FundResult{}, s.finish(opFund, started, userID, amount, err)
	}
	reference = ensureReference(reference)

	var res models.FundResult
	err := s.inTx(ctx, opFund, userID, func(q repository.Querier) error {
		wallet, err := s.wallets.LockByUserID(ctx, q, userID)
		if err != nil {
			return err
		}
		if err := s.checkReference(ctx, q, reference); err != nil {
			return err
		}
		balance, err := s.wallets.AddToBalance(ctx, q, wallet.ID, amount)
		if err != nil {
			return err
		}
		if err := s.ledger.CreateTransaction(ctx, q, newTransaction(wallet.ID, models.TransactionFund, amount, reference)); err != nil {
			return err
		}
		res = models.FundResult{WalletID: wallet.ID, Amount: amount, Balance: balance, Reference: reference}
		return nil
	})
	if err != nil {
		return models.FundResult{}, s.finish(opFund, started, userID, amount, err)
	}
	s.finish(opFund, started, userID, amount, nil)
	return res, nil
}

func (s *WalletService) Withdraw(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, reference string) (models.WithdrawResult, error) {
	started := time.Now()
	if err := validateAmount(amount); err != nil {
		return models.WithdrawResult{}, s.finish(opWithdraw, started, userID, amount, err)
	}
	reference = ensureReference(reference)

	var res models.WithdrawResult
	err := s.inTx(ctx, opWithdraw, userID, func(q repository.Querier) error {
		wallet, err := s.wallets.LockByUserID(ctx, q, userID)
		if err != nil {
			return err
		}
		if err := s.checkReference(ctx, q, reference); err != nil {
			return err
		}
		if wallet.Balance.LessThan(amount) {
			return repository.ErrInsufficientFunds
		}
		balance, err := s.wallets.AddToBalance(ctx, q, wallet.ID, amount.Neg())
		if err != nil {
			return err
		}
		if err := s.ledger.CreateTransaction(ctx, q, newTransaction(wallet.ID, models.TransactionWithdraw, amount, reference)); err != nil {
			return err
		}
		res = models.WithdrawResult{Message: "Withdrawal successful", Balance: balance, Reference: reference}
		return nil
	})
	if err != nil {
		return models.WithdrawResult{}, s.finish(opWithdraw, started, userID, amount, err)
	}
	s.finish(opWithdraw, started, userID, amount, nil)
	return res, nil
}

// Transfer moves amount from the sender's wallet to the wallet of the user
// registered under receiverEmail. Both wallet rows are locked in ascending id
// order so opposite transfers between the same pair cannot deadlock.
func (s *WalletService) Transfer(ctx context.Context, senderID uuid.UUID, receiverEmail string, amount decimal.Decimal, reference string) (models.TransferResult, error) {
	started := time.Now()
	if err := validateAmount(amount); err != nil {
		return models.TransferResult{}, s.finish(opTransfer, started, senderID, amount, err)
	}
	reference = ensureReference(reference)

	var res models.TransferResult
	err := s.inTx(ctx, opTransfer, senderID, func(q repository.Querier) error {
		sender, err := s.wallets.FindByUserID(ctx, q, senderID)
		if err != nil {
			return err
		}
		receiverUser, err := s.users.FindByEmail(ctx, q, normalizeEmail(receiverEmail))
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrReceiverNotFound
		}
		if err != nil {
			return err
		}
		if receiverUser.ID == senderID {
			return ErrSelfTransferDenied
		}
		receiver, err := s.wallets.FindByUserID(ctx, q, receiverUser.ID)
		if err != nil {
			return err
		}

		locked, err := s.lockInOrder(ctx, q, sender.ID, receiver.ID)
		if err != nil {
			return err
		}
		if err := s.checkReference(ctx, q, reference); err != nil {
			return err
		}
		if locked[sender.ID].Balance.LessThan(amount) {
			return repository.ErrInsufficientFunds
		}

		senderBalance, err := s.wallets.AddToBalance(ctx, q, sender.ID, amount.Neg())
		if err != nil {
			return err
		}
		receiverBalance, err := s.wallets.AddToBalance(ctx, q, receiver.ID, amount)
		if err != nil {
			return err
		}

		transfer := &models.Transfer{
			ID:               uuid.New(),
			SenderWalletID:   sender.ID,
			ReceiverWalletID: receiver.ID,
			Amount:           amount,
		}
		if err := s.ledger.CreateTransfer(ctx, q, transfer); err != nil {
			return err
		}
		legs := []*models.Transaction{
			newTransaction(sender.ID, models.TransactionTransfer, amount, reference+models.DebitLegSuffix),
			newTransaction(receiver.ID, models.TransactionTransfer, amount, reference+models.CreditLegSuffix),
		}
		for _, leg := range legs {
			if err := s.ledger.CreateTransaction(ctx, q, leg); err != nil {
				return err
			}
		}

		res = models.TransferResult{
			Status:          "success",
			Amount:          amount,
			SenderBalance:   senderBalance,
			ReceiverBalance: receiverBalance,
			Reference:       reference,
		}
		return nil
	})
	if err != nil {
		return models.TransferResult{}, s.finish(opTransfer, started, senderID, amount, err)
	}
	s.finish(opTransfer, started, senderID, amount, nil)
	return res, nil
}

func (s *WalletService) GetBalance(ctx context.Context, userID uuid.UUID) (models.BalanceView, error) {
	wallet, err := s.wallets.FindByUserID(ctx, s.tx.Reader(), userID)
	if err != nil {
		if errors.Is(err, repository.ErrWalletNotFound) {
			s.logger.Warn("GetBalance: wallet not found", slog.String("user_id", userID.String()))
		}
		return models.BalanceView{}, err
	}
	return models.BalanceView{Balance: wallet.Balance, Currency: wallet.Currency}, nil
}

// GetHistory returns every transaction on the user's wallet, newest first.
func (s *WalletService) GetHistory(ctx context.Context, userID uuid.UUID) ([]models.HistoryEntry, error) {
	q := s.tx.Reader()
	wallet, err := s.wallets.FindByUserID(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	txs, err := s.ledger.ListByWallet(ctx, q, wallet.ID)
	if err != nil {
		return nil, err
	}
	history := make([]models.HistoryEntry, 0, len(txs))
	for _, t := range txs {
		history = append(history, models.HistoryEntry{Transaction: t, Direction: t.Direction()})
	}
	return history, nil
}

// inTx runs fn as one atomic unit, retrying serialization failures and deadlocks.
func (s *WalletService) inTx(ctx context.Context, op string, userID uuid.UUID, fn func(q repository.Querier) error) error {
	var err error
	for i := 0; i < s.maxRetries; i++ {
		err = s.tx.WithinTx(ctx, fn)
		if err == nil || !isRetryableError(err) {
			return err
		}
		s.logger.Warn("Retrying "+op,
			slog.String("user_id", userID.String()),
			slog.Int("attempt", i+1),
			slog.Any("err", err),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(1<<i) * 10 * time.Millisecond):
		}
	}
	s.logger.Error(op+" failed after retries",
		slog.String("user_id", userID.String()),
		slog.Any("err", err),
	)
	return err
}

// checkReference runs after the caller's wallet row is locked, so two
// operations by one user carrying the same key are serialized and the
// second one sees the first one's rows.
func (s *WalletService) checkReference(ctx context.Context, q repository.Querier, reference string) error {
	exists, err := s.ledger.ReferenceExists(ctx, q, reference)
	if err != nil {
		return err
	}
	if exists {
		return repository.ErrDuplicateReference
	}
	return nil
}

func (s *WalletService) lockInOrder(ctx context.Context, q repository.Querier, ids ...uuid.UUID) (map[uuid.UUID]models.Wallet, error) {
	ordered := slices.Clone(ids)
	slices.SortFunc(ordered, func(a, b uuid.UUID) int { return bytes.Compare(a[:], b[:]) })

	locked := make(map[uuid.UUID]models.Wallet, len(ordered))
	for _, id := range ordered {
		w, err := s.wallets.LockByID(ctx, q, id)
		if err != nil {
			return nil, err
		}
		locked[id] = w
	}
	return locked, nil
}

// finish records metrics and logs the result, returning err unchanged.
func (s *WalletService) finish(op string, started time.Time, userID uuid.UUID, amount decimal.Decimal, err error) error {
	metrics.RecordOperation(op, outcome(err), started)
	switch {
	case err == nil:
		s.logger.Info(op+" completed",
			slog.String("user_id", userID.String()),
			slog.String("amount", amount.String()),
		)
	case isDomainError(err):
		s.logger.Warn(op+" rejected",
			slog.String("user_id", userID.String()),
			slog.String("amount", amount.String()),
			slog.Any("err", err),
		)
	default:
		s.logger.Error(op+" failed",
			slog.String("user_id", userID.String()),
			slog.String("amount", amount.String()),
			slog.Any("err", err),
		)
	}
	return err
}

func newTransaction(walletID uuid.UUID, typ models.TransactionType, amount decimal.Decimal, reference string) *models.Transaction {
	return &models.Transaction{
		ID:        uuid.New(),
		WalletID:  walletID,
		Type:      typ,
		Amount:    amount,
		Reference: reference,
		Status:    models.StatusSuccess,
	}
}
