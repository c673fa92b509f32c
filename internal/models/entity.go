package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionFund     TransactionType = "FUND"
	TransactionTransfer TransactionType = "TRANSFER"
	TransactionWithdraw TransactionType = "WITHDRAW"
)

type TransactionStatus string

const (
	StatusPending TransactionStatus = "PENDING"
	StatusSuccess TransactionStatus = "SUCCESS"
	StatusFailed  TransactionStatus = "FAILED"
)

// Reference suffixes of the two legs of a transfer.
const (
	DebitLegSuffix  = "-debit"
	CreditLegSuffix = "-credit"
)

type User struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	FirstName string    `db:"first_name" json:"first_name"`
	LastName  string    `db:"last_name" json:"last_name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

type Wallet struct {
	ID        uuid.UUID       `db:"id" json:"id"`
	UserID    uuid.UUID       `db:"user_id" json:"user_id"`
	Balance   decimal.Decimal `db:"balance" json:"balance"`
	Currency  string          `db:"currency" json:"currency"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

type Transaction struct {
	ID        uuid.UUID         `db:"id" json:"id"`
	WalletID  uuid.UUID         `db:"wallet_id" json:"wallet_id"`
	Type      TransactionType   `db:"type" json:"type"`
	Amount    decimal.Decimal   `db:"amount" json:"amount"`
	Reference string            `db:"reference" json:"reference"`
	Status    TransactionStatus `db:"status" json:"status"`
	CreatedAt time.Time         `db:"created_at" json:"created_at"`
}

// Direction reports CREDIT or DEBIT from the wallet owner's point of view.
func (t Transaction) Direction() string {
	switch t.Type {
	case TransactionFund:
		return "CREDIT"
	case TransactionWithdraw:
		return "DEBIT"
	}
	if strings.HasSuffix(t.Reference, CreditLegSuffix) {
		return "CREDIT"
	}
	return "DEBIT"
}

type Transfer struct {
	ID               uuid.UUID       `db:"id" json:"id"`
	SenderWalletID   uuid.UUID       `db:"sender_wallet_id" json:"sender_wallet_id"`
	ReceiverWalletID uuid.UUID       `db:"receiver_wallet_id" json:"receiver_wallet_id"`
	Amount           decimal.Decimal `db:"amount" json:"amount"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
}
