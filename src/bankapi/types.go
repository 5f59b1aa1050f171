// Package bankapi contains the adapters that talk to the supported bank
// APIs and normalize their statements into a canonical form.
package bankapi

import (
	"context"
	"time"
)

// BankAccount is an account as reported by a bank's API. BankAccountID and
// BIC are bank-specific extras: Modulbank addresses operation history by an
// internal account id, Tochka needs the BIC alongside the account number.
type BankAccount struct {
	AccountNumber string `json:"accountNumber"`
	Name          string `json:"name"`
	BankAccountID string `json:"bankAccountId,omitempty"`
	BIC           string `json:"bic,omitempty"`
}

const (
	DirectionIncome  = "income"
	DirectionExpense = "expense"
)

// TransactionRaw is one normalized statement line. Date is YYYY-MM-DD and
// Time is HH:MM:SS, both in Moscow time; Time is empty when the bank only
// reports a day. Amount is a positive decimal string with two fraction
// digits; Direction disambiguates income from expense.
type TransactionRaw struct {
	Date         string `json:"date"`
	Time         string `json:"time,omitempty"`
	Amount       string `json:"amount"`
	Direction    string `json:"direction"`
	Counterparty string `json:"counterparty,omitempty"`
	Purpose      string `json:"purpose,omitempty"`
	Balance      string `json:"balance,omitempty"`
}

// Adapter is implemented once per supported bank.
type Adapter interface {
	// Code returns the bank's registry code.
	Code() string
	// TestConnection reports whether the token is accepted by the bank.
	// A false result with a nil error means the bank answered with a
	// definite rejection.
	TestConnection(ctx context.Context, token string) (bool, error)
	// FetchAccounts lists the accounts visible to the token.
	FetchAccounts(ctx context.Context, token string) ([]BankAccount, error)
	// FetchTransactions returns the account's statement lines for the
	// inclusive [from, to] date range.
	FetchTransactions(ctx context.Context, token string, account BankAccount, from, to time.Time) ([]TransactionRaw, error)
}
