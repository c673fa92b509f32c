package models

import (
	"github.com/shopspring/decimal"
)

type RegisterRequest struct {
	Email     string `json:"email" binding:"required,email"`
	FirstName string `json:"first_name" binding:"required,max=255"`
	LastName  string `json:"last_name" binding:"required,max=255"`
}

type AmountRequest struct {
	Amount decimal.Decimal `json:"amount" binding:"required,money"`
}

type TransferRequest struct {
	Email  string          `json:"email" binding:"required,email"`
	Amount decimal.Decimal `json:"amount" binding:"required,money"`
}
