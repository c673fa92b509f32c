package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type FundResult struct {
	WalletID  uuid.UUID       `json:"wallet_id"`
	Amount    decimal.Decimal `json:"amount"`
	Balance   decimal.Decimal `json:"balance"`
	Reference string          `json:"reference"`
}

type WithdrawResult struct {
	Message   string          `json:"message"`
	Balance   decimal.Decimal `json:"balance"`
	Reference string          `json:"reference"`
}

type TransferResult struct {
	Status          string          `json:"status"`
	Amount          decimal.Decimal `json:"amount"`
	SenderBalance   decimal.Decimal `json:"sender_balance"`
	ReceiverBalance decimal.Decimal `json:"receiver_balance"`
	Reference       string          `json:"reference"`
}

type BalanceView struct {
	Balance  decimal.Decimal `json:"balance"`
	Currency string          `json:"currency"`
}

type HistoryEntry struct {
	Transaction
	Direction string `json:"direction"`
}

type WalletSummary struct {
	ID       uuid.UUID       `json:"id"`
	Balance  decimal.Decimal `json:"balance"`
	Currency string          `json:"currency"`
}

type UserProfile struct {
	ID        uuid.UUID      `json:"id"`
	Email     string         `json:"email"`
	FirstName string         `json:"first_name"`
	LastName  string         `json:"last_name"`
	CreatedAt time.Time      `json:"created_at"`
	Wallet    *WalletSummary `json:"wallet,omitempty"`
}

type RegisterResult struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}
