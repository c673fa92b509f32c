package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransactionDirection(t *testing.T) {
	cases := []struct {
		name string
		tx   Transaction
		want string
	}{
		{"fund", Transaction{Type: TransactionFund, Reference: "abc"}, "CREDIT"},
		{"withdraw", Transaction{Type: TransactionWithdraw, Reference: "abc"}, "DEBIT"},
		{"transfer debit leg", Transaction{Type: TransactionTransfer, Reference: "abc" + DebitLegSuffix}, "DEBIT"},
		{"transfer credit leg", Transaction{Type: TransactionTransfer, Reference: "abc" + CreditLegSuffix}, "CREDIT"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.tx.Direction())
		})
	}
}
