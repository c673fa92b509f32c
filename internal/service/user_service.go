package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"wallet_ledger/internal/metrics"
	"wallet_ledger/internal/models"
	"wallet_ledger/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

//go:generate mockgen -source=user_service.go -destination=../../test/mock_collaborators.go -package=test

// IdentityChecker reports whether an identity is blacklisted. Implementations
// own their failure policy and never return an error.
type IdentityChecker interface {
	IsFlagged(ctx context.Context, identity string) bool
}

type TokenIssuer interface {
	Issue(userID uuid.UUID) (string, error)
}

const opRegister = "register"

type UserServiceConfig struct {
	DefaultCurrency  string
	EnforceBlacklist bool
}

type UserService struct {
	tx       Transactor
	users    UserRepository
	wallets  WalletRepository
	checker  IdentityChecker
	tokens   TokenIssuer
	logger   *slog.Logger
	currency string
	enforce  bool
}

func NewUserService(
	tx Transactor,
	users UserRepository,
	wallets WalletRepository,
	checker IdentityChecker,
	tokens TokenIssuer,
	logger *slog.Logger,
	cfg UserServiceConfig,
) *UserService {
	currency := cfg.DefaultCurrency
	if currency == "" {
		currency = "NGN"
	}
	return &UserService{
		tx:       tx,
		users:    users,
		wallets:  wallets,
		checker:  checker,
		tokens:   tokens,
		logger:   logger,
		currency: currency,
		enforce:  cfg.EnforceBlacklist,
	}
}

// Register creates the user and its empty wallet in one transaction and
// returns a token bound to the new user.
func (s *UserService) Register(ctx context.Context, req models.RegisterRequest) (models.RegisterResult, error) {
	started := time.Now()
	res, err := s.register(ctx, req)
	metrics.RecordOperation(opRegister, outcome(err), started)
	return res, err
}

func (s *UserService) register(ctx context.Context, req models.RegisterRequest) (models.RegisterResult, error) {
	email := normalizeEmail(req.Email)

	_, err := s.users.FindByEmail(ctx, s.tx.Reader(), email)
	if err == nil {
		s.logger.Warn("Register rejected: email taken", slog.String("email", email))
		return models.RegisterResult{}, repository.ErrUserAlreadyExists
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return models.RegisterResult{}, err
	}

	if s.checker.IsFlagged(ctx, email) {
		if s.enforce {
			s.logger.Warn("Register rejected: identity blacklisted", slog.String("email", email))
			return models.RegisterResult{}, ErrUserBlacklisted
		}
		s.logger.Warn("Blacklisted identity registered, enforcement disabled", slog.String("email", email))
	}

	user := models.User{
		ID:        uuid.New(),
		Email:     email,
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
	}
	wallet := models.Wallet{
		ID:       uuid.New(),
		UserID:   user.ID,
		Balance:  decimal.Zero,
		Currency: s.currency,
	}
	err = s.tx.WithinTx(ctx, func(q repository.Querier) error {
		if err := s.users.Create(ctx, q, &user); err != nil {
			return err
		}
		return s.wallets.Create(ctx, q, &wallet)
	})
	if err != nil {
		if !errors.Is(err, repository.ErrUserAlreadyExists) {
			s.logger.Error("Register failed", slog.String("email", email), slog.Any("err", err))
		}
		return models.RegisterResult{}, err
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		s.logger.Error("Failed to issue token",
			slog.String("user_id", user.ID.String()),
			slog.Any("err", err),
		)
		return models.RegisterResult{}, err
	}

	s.logger.Info("User registered",
		slog.String("user_id", user.ID.String()),
		slog.String("wallet_id", wallet.ID.String()),
	)
	return models.RegisterResult{Token: token, User: user}, nil
}

// GetUser returns the user with a summary of its wallet, if one exists.
func (s *UserService) GetUser(ctx context.Context, userID uuid.UUID) (models.UserProfile, error) {
	q := s.tx.Reader()
	user, err := s.users.FindByID(ctx, q, userID)
	if err != nil {
		return models.UserProfile{}, err
	}

	profile := models.UserProfile{
		ID:        user.ID,
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		CreatedAt: user.CreatedAt,
	}
	wallet, err := s.wallets.FindByUserID(ctx, q, userID)
	switch {
	case err == nil:
		profile.Wallet = &models.WalletSummary{ID: wallet.ID, Balance: wallet.Balance, Currency: wallet.Currency}
	case !errors.Is(err, repository.ErrWalletNotFound):
		return models.UserProfile{}, err
	}
	return profile, nil
}
