package repository

import (
	"context"
	"errors"
	"log/slog"

	"wallet_ledger/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const userColumns = "id, email, first_name, last_name, created_at"

type UserPGRepository struct {
	logger *slog.Logger
}

func NewUserPGRepository(logger *slog.Logger) *UserPGRepository {
	return &UserPGRepository{logger: logger}
}

// FindByEmail matches case-insensitively.
func (r *UserPGRepository) FindByEmail(ctx context.Context, q Querier, email string) (models.User, error) {
	var u models.User
	err := q.QueryRow(ctx,
		"SELECT "+userColumns+" FROM users WHERE lower(email) = lower($1)", email,
	).Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	if err != nil {
		r.logger.Error("Failed to find user by email", slog.Any("err", err))
		return models.User{}, err
	}
	return u, nil
}

func (r *UserPGRepository) FindByID(ctx context.Context, q Querier, id uuid.UUID) (models.User, error) {
	var u models.User
	err := q.QueryRow(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = $1", id,
	).Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	if err != nil {
		r.logger.Error("Failed to find user",
			slog.String("user_id", id.String()),
			slog.Any("err", err),
		)
		return models.User{}, err
	}
	return u, nil
}

func (r *UserPGRepository) Create(ctx context.Context, q Querier, user *models.User) error {
	err := q.QueryRow(ctx,
		"INSERT INTO users (id, email, first_name, last_name) VALUES ($1, $2, $3, $4) RETURNING created_at",
		user.ID, user.Email, user.FirstName, user.LastName,
	).Scan(&user.CreatedAt)
	if err != nil {
		if isPgCode(err, codeUniqueViolation) {
			return ErrUserAlreadyExists
		}
		r.logger.Error("Failed to create user",
			slog.String("user_id", user.ID.String()),
			slog.Any("err", err),
		)
		return err
	}
	return nil
}
