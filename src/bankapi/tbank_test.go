package bankapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tbankTestServer(t *testing.T, handler http.HandlerFunc) (*tbankAdapter, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return newTBankAdapter(srv.Client(), srv.URL), srv
}

func TestTBankTestConnection(t *testing.T) {
	adapter, _ := tbankTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer good" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	})

	ok, err := adapter.TestConnection(context.Background(), "good")
	require.NoError(t, err)
	assert.True(t, ok)

	// A revoked token is a clean negative answer, not an error.
	ok, err = adapter.TestConnection(context.Background(), "revoked")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTBankTestConnectionUnreachable(t *testing.T) {
	adapter := newTBankAdapter(&http.Client{Timeout: 100 * time.Millisecond}, "http://127.0.0.1:1")

	_, err := adapter.TestConnection(context.Background(), "token")
	assert.True(t, IsKind(err, KindConnectivity))
}

func TestTBankFetchAccounts(t *testing.T) {
	adapter, _ := tbankTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]interface{}{
			{"accountNumber": "40702810000000000001", "name": "Основной счёт"},
			{"accountNumber": "40702810000000000002", "accountType": "Current"},
			{"name": "no account number"},
		})
	})

	accounts, err := adapter.FetchAccounts(context.Background(), "token")
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "Основной счёт", accounts[0].Name)
	assert.Equal(t, "Current", accounts[1].Name)
}

func TestTBankFetchAccountsAuthError(t *testing.T) {
	adapter, _ := tbankTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	_, err := adapter.FetchAccounts(context.Background(), "token")
	assert.True(t, IsKind(err, KindAuth))
}

func TestTBankFetchTransactionsPagination(t *testing.T) {
	const ourAccount = "40702810000000000001"
	var requests []string

	adapter, _ := tbankTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		requests = append(requests, r.URL.RawQuery)
		cursor := r.URL.Query().Get("cursor")

		var body map[string]interface{}
		if cursor == "" {
			body = map[string]interface{}{
				"nextCursor": "page2",
				"operations": []map[string]interface{}{
					{
						"operationDate":  "2024-03-01T07:30:00Z",
						"accountAmount":  1500.5,
						"receiver":       map[string]interface{}{"acct": ourAccount},
						"payerName":      "ООО Покупатель",
						"paymentPurpose": "Оплата по договору 42",
					},
				},
			}
		} else {
			body = map[string]interface{}{
				"operations": []map[string]interface{}{
					{
						"operationDate":   "2024-03-02T10:00:00+03:00",
						"operationAmount": "250,00",
						"payer":           map[string]interface{}{"acct": ourAccount},
						"paymentPurpose":  "Комиссия за обслуживание",
					},
				},
			}
		}
		json.NewEncoder(w).Encode(body)
	})

	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
	txs, err := adapter.FetchTransactions(context.Background(), "token", BankAccount{AccountNumber: ourAccount}, from, to)
	require.NoError(t, err)
	require.Len(t, requests, 2)
	require.Len(t, txs, 2)

	// Moscow day boundaries expressed as UTC instants.
	assert.Contains(t, requests[0], "2024-02-29T21%3A00%3A00Z")
	assert.Contains(t, requests[1], "cursor=page2")

	assert.Equal(t, "2024-03-01", txs[0].Date)
	assert.Equal(t, "10:30:00", txs[0].Time)
	assert.Equal(t, "1500.50", txs[0].Amount)
	assert.Equal(t, DirectionIncome, txs[0].Direction)
	assert.Equal(t, "ООО Покупатель", txs[0].Counterparty)

	assert.Equal(t, "250.00", txs[1].Amount)
	assert.Equal(t, DirectionExpense, txs[1].Direction)
	assert.Equal(t, `АО "ТБанк"`, txs[1].Counterparty)
}

func TestTBankDirectionHeuristics(t *testing.T) {
	tests := []struct {
		name string
		op   map[string]interface{}
		want string
	}{
		{"receiver is us", map[string]interface{}{"receiver": map[string]interface{}{"acct": "123"}}, DirectionIncome},
		{"payer is us", map[string]interface{}{"payer": map[string]interface{}{"acct": "123"}}, DirectionExpense},
		{"credit disbursement", map[string]interface{}{"paymentPurpose": "Зачисление кредита по договору"}, DirectionIncome},
		{"credit repayment", map[string]interface{}{"paymentPurpose": "Погашение кредита"}, DirectionExpense},
		{"income category", map[string]interface{}{"category": "incomePeople"}, DirectionIncome},
		{"unknown defaults to expense", map[string]interface{}{}, DirectionExpense},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tbankDirection(tt.op, "123"))
		})
	}
}
