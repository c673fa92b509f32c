package repository_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"wallet_ledger/internal/logging"
	"wallet_ledger/internal/models"
	"wallet_ledger/internal/repository"
	"wallet_ledger/internal/testutil"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLogger = logging.Discard()

type repos struct {
	tx      *repository.TxManager
	wallets *repository.WalletPGRepository
	users   *repository.UserPGRepository
	ledger  *repository.LedgerPGRepository
}

func newRepos(pool *pgxpool.Pool, timeout time.Duration) repos {
	return repos{
		tx:      repository.NewTxManager(pool, timeout, testLogger),
		wallets: repository.NewWalletPGRepository(testLogger),
		users:   repository.NewUserPGRepository(testLogger),
		ledger:  repository.NewLedgerPGRepository(testLogger),
	}
}

// seedWallet creates a user with a wallet holding balance.
func seedWallet(t *testing.T, r repos, email string, balance decimal.Decimal) models.Wallet {
	t.Helper()
	ctx := context.Background()
	user := models.User{ID: uuid.New(), Email: email, FirstName: "Test", LastName: "User"}
	wallet := models.Wallet{ID: uuid.New(), UserID: user.ID, Balance: balance, Currency: "NGN"}
	err := r.tx.WithinTx(ctx, func(q repository.Querier) error {
		if err := r.users.Create(ctx, q, &user); err != nil {
			return err
		}
		return r.wallets.Create(ctx, q, &wallet)
	})
	require.NoError(t, err)
	return wallet
}

func TestRepositories(t *testing.T) {
	pool, teardown := testutil.SetupTestDB(t)
	defer teardown()
	r := newRepos(pool, 5*time.Second)
	ctx := context.Background()

	t.Run("users are unique case-insensitively", func(t *testing.T) {
		seedWallet(t, r, "case@example.com", decimal.Zero)

		u, err := r.users.FindByEmail(ctx, r.tx.Reader(), "CASE@example.com")
		require.NoError(t, err)
		assert.Equal(t, "case@example.com", u.Email)

		dup := models.User{ID: uuid.New(), Email: "Case@Example.com", FirstName: "x", LastName: "y"}
		err = r.users.Create(ctx, r.tx.Reader(), &dup)
		assert.ErrorIs(t, err, repository.ErrUserAlreadyExists)
	})

	t.Run("lookups report not found", func(t *testing.T) {
		_, err := r.users.FindByEmail(ctx, r.tx.Reader(), "nobody@example.com")
		assert.ErrorIs(t, err, repository.ErrUserNotFound)

		_, err = r.users.FindByID(ctx, r.tx.Reader(), uuid.New())
		assert.ErrorIs(t, err, repository.ErrUserNotFound)

		_, err = r.wallets.FindByUserID(ctx, r.tx.Reader(), uuid.New())
		assert.ErrorIs(t, err, repository.ErrWalletNotFound)

		_, err = r.wallets.AddToBalance(ctx, r.tx.Reader(), uuid.New(), decimal.NewFromInt(1))
		assert.ErrorIs(t, err, repository.ErrWalletNotFound)
	})

	t.Run("one wallet per user", func(t *testing.T) {
		w := seedWallet(t, r, "single@example.com", decimal.Zero)
		second := models.Wallet{ID: uuid.New(), UserID: w.UserID, Balance: decimal.Zero, Currency: "NGN"}
		err := r.wallets.Create(ctx, r.tx.Reader(), &second)
		assert.ErrorIs(t, err, repository.ErrUserAlreadyExists)
	})

	t.Run("balance keeps two decimal places", func(t *testing.T) {
		w := seedWallet(t, r, "cents@example.com", decimal.Zero)

		balance, err := r.wallets.AddToBalance(ctx, r.tx.Reader(), w.ID, decimal.RequireFromString("0.10"))
		require.NoError(t, err)
		balance, err = r.wallets.AddToBalance(ctx, r.tx.Reader(), w.ID, decimal.RequireFromString("0.20"))
		require.NoError(t, err)
		assert.True(t, balance.Equal(decimal.RequireFromString("0.30")), balance.String())
	})

	t.Run("negative balance is refused by the store", func(t *testing.T) {
		w := seedWallet(t, r, "floor@example.com", decimal.NewFromInt(10))

		_, err := r.wallets.AddToBalance(ctx, r.tx.Reader(), w.ID, decimal.NewFromInt(-11))
		assert.ErrorIs(t, err, repository.ErrInsufficientFunds)

		got, err := r.wallets.FindByUserID(ctx, r.tx.Reader(), w.UserID)
		require.NoError(t, err)
		assert.True(t, got.Balance.Equal(decimal.NewFromInt(10)))
	})

	t.Run("balance above the column limit is refused", func(t *testing.T) {
		w := seedWallet(t, r, "ceiling@example.com", decimal.RequireFromString("999999999999.99"))

		_, err := r.wallets.AddToBalance(ctx, r.tx.Reader(), w.ID, decimal.NewFromInt(1))
		assert.ErrorIs(t, err, repository.ErrBalanceLimitExceeded)

		got, err := r.wallets.FindByUserID(ctx, r.tx.Reader(), w.UserID)
		require.NoError(t, err)
		assert.True(t, got.Balance.Equal(decimal.RequireFromString("999999999999.99")))
	})

	t.Run("references are unique", func(t *testing.T) {
		w := seedWallet(t, r, "ref@example.com", decimal.Zero)
		first := &models.Transaction{ID: uuid.New(), WalletID: w.ID, Type: models.TransactionFund,
			Amount: decimal.NewFromInt(5), Reference: "ref-unique", Status: models.StatusSuccess}
		require.NoError(t, r.ledger.CreateTransaction(ctx, r.tx.Reader(), first))

		exists, err := r.ledger.ReferenceExists(ctx, r.tx.Reader(), "ref-unique")
		require.NoError(t, err)
		assert.True(t, exists)

		again := *first
		again.ID = uuid.New()
		err = r.ledger.CreateTransaction(ctx, r.tx.Reader(), &again)
		assert.ErrorIs(t, err, repository.ErrDuplicateReference)
	})

	t.Run("transfer legs claim their base reference", func(t *testing.T) {
		w := seedWallet(t, r, "legs@example.com", decimal.Zero)
		leg := &models.Transaction{ID: uuid.New(), WalletID: w.ID, Type: models.TransactionTransfer,
			Amount: decimal.NewFromInt(5), Reference: "u:K" + models.DebitLegSuffix, Status: models.StatusSuccess}
		require.NoError(t, r.ledger.CreateTransaction(ctx, r.tx.Reader(), leg))

		exists, err := r.ledger.ReferenceExists(ctx, r.tx.Reader(), "u:K")
		require.NoError(t, err)
		assert.True(t, exists)

		exists, err = r.ledger.ReferenceExists(ctx, r.tx.Reader(), "u:other")
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("history is newest first", func(t *testing.T) {
		w := seedWallet(t, r, "history@example.com", decimal.Zero)
		for i, ref := range []string{"h-1", "h-2", "h-3"} {
			tx := &models.Transaction{ID: uuid.New(), WalletID: w.ID, Type: models.TransactionFund,
				Amount: decimal.NewFromInt(int64(i + 1)), Reference: ref, Status: models.StatusSuccess}
			require.NoError(t, r.ledger.CreateTransaction(ctx, r.tx.Reader(), tx))
			time.Sleep(5 * time.Millisecond)
		}

		txs, err := r.ledger.ListByWallet(ctx, r.tx.Reader(), w.ID)
		require.NoError(t, err)
		require.Len(t, txs, 3)
		assert.Equal(t, "h-3", txs[0].Reference)
		assert.Equal(t, "h-1", txs[2].Reference)
		assert.Equal(t, models.StatusSuccess, txs[0].Status)

		empty, err := r.ledger.ListByWallet(ctx, r.tx.Reader(), uuid.New())
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("transfers are recorded", func(t *testing.T) {
		a := seedWallet(t, r, "tr-a@example.com", decimal.Zero)
		b := seedWallet(t, r, "tr-b@example.com", decimal.Zero)
		tr := &models.Transfer{ID: uuid.New(), SenderWalletID: a.ID, ReceiverWalletID: b.ID, Amount: decimal.NewFromInt(3)}
		require.NoError(t, r.ledger.CreateTransfer(ctx, r.tx.Reader(), tr))
		assert.False(t, tr.CreatedAt.IsZero())

		var n int
		err := pool.QueryRow(ctx, "SELECT count(*) FROM transfers WHERE receiver_wallet_id = $1", b.ID).Scan(&n)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})
}

func TestTxManager_RollsBackOnError(t *testing.T) {
	pool, teardown := testutil.SetupTestDB(t)
	defer teardown()
	r := newRepos(pool, 5*time.Second)
	ctx := context.Background()
	w := seedWallet(t, r, "rollback@example.com", decimal.NewFromInt(100))

	boom := errors.New("boom")
	err := r.tx.WithinTx(ctx, func(q repository.Querier) error {
		if _, err := r.wallets.AddToBalance(ctx, q, w.ID, decimal.NewFromInt(50)); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := r.wallets.FindByUserID(ctx, r.tx.Reader(), w.UserID)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(decimal.NewFromInt(100)))
}

func TestTxManager_Timeout(t *testing.T) {
	pool, teardown := testutil.SetupTestDB(t)
	defer teardown()
	r := newRepos(pool, 200*time.Millisecond)
	ctx := context.Background()
	w := seedWallet(t, r, "slow@example.com", decimal.NewFromInt(100))

	err := r.tx.WithinTx(ctx, func(q repository.Querier) error {
		if _, err := r.wallets.AddToBalance(ctx, q, w.ID, decimal.NewFromInt(50)); err != nil {
			return err
		}
		_, err := q.Exec(ctx, "SELECT pg_sleep(2)")
		return err
	})
	assert.ErrorIs(t, err, repository.ErrOperationTimedOut)

	got, err := r.wallets.FindByUserID(ctx, r.tx.Reader(), w.UserID)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(decimal.NewFromInt(100)))
}

func TestWalletLock_SerializesWriters(t *testing.T) {
	pool, teardown := testutil.SetupTestDB(t)
	defer teardown()
	r := newRepos(pool, 10*time.Second)
	ctx := context.Background()
	w := seedWallet(t, r, "locks@example.com", decimal.Zero)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := r.tx.WithinTx(ctx, func(q repository.Querier) error {
				locked, err := r.wallets.LockByUserID(ctx, q, w.UserID)
				if err != nil {
					return err
				}
				_, err = r.wallets.AddToBalance(ctx, q, locked.ID, decimal.RequireFromString("1.01"))
				return err
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := r.wallets.FindByUserID(ctx, r.tx.Reader(), w.UserID)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(decimal.RequireFromString("50.50")), got.Balance.String())
}
