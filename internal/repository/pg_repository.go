package repository

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrWalletNotFound       = errors.New("wallet not found")
	ErrUserNotFound         = errors.New("user not found")
	ErrUserAlreadyExists    = errors.New("user already exists")
	ErrDuplicateReference   = errors.New("transaction reference already used")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrBalanceLimitExceeded = errors.New("wallet balance limit exceeded")
	ErrOperationTimedOut    = errors.New("operation timed out, please retry")
)

const (
	codeUniqueViolation   = "23505"
	codeCheckViolation    = "23514"
	codeNumericOutOfRange = "22003"
	codeQueryCanceled     = "57014"
)

// Querier is satisfied by both *pgxpool.Pool and pgx.Tx. Repository methods
// take it explicitly so a mutating operation can keep every statement inside
// one transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type TxManager struct {
	pool    *pgxpool.Pool
	timeout time.Duration
	logger  *slog.Logger
}

func NewTxManager(pool *pgxpool.Pool, timeout time.Duration, logger *slog.Logger) *TxManager {
	return &TxManager{
		pool:    pool,
		timeout: timeout,
		logger:  logger,
	}
}

// Reader returns a non-transactional handle for plain reads.
func (m *TxManager) Reader() Querier {
	return m.pool
}

// WithinTx runs fn inside a single transaction bounded by the manager's
// timeout. fn's error, or a failed commit, rolls everything back.
func (m *TxManager) WithinTx(ctx context.Context, fn func(q Querier) error) (err error) {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	tx, err := m.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		m.logger.Error("Failed to begin transaction", slog.Any("err", err))
		return timeoutOr(ctx, err)
	}
	defer func() {
		// Rollback gets a fresh context so an expired deadline still releases the locks.
		rbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if rbErr := tx.Rollback(rbCtx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			m.logger.Error("Failed to rollback transaction", slog.Any("err", rbErr))
		}
	}()

	if err := fn(tx); err != nil {
		return timeoutOr(ctx, err)
	}

	if err := tx.Commit(ctx); err != nil {
		m.logger.Error("Failed to commit transaction", slog.Any("err", err))
		return timeoutOr(ctx, err)
	}
	return nil
}

// timeoutOr maps deadline expiry to ErrOperationTimedOut and leaves any
// other error alone.
func timeoutOr(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return ErrOperationTimedOut
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == codeQueryCanceled {
		return ErrOperationTimedOut
	}
	return err
}

func isPgCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
