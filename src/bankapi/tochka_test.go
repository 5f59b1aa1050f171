package bankapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTochkaTestAdapter(t *testing.T, handler http.Handler) *tochkaAdapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	adapter := newTochkaAdapter(srv.Client(), srv.URL)
	adapter.pollInterval = time.Millisecond
	adapter.pollAttempts = 5
	return adapter
}

func TestTochkaFetchAccounts(t *testing.T) {
	adapter := newTochkaTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/balances", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"Data": map[string]interface{}{
				"Balance": []map[string]interface{}{
					{"accountId": "40702810000000000011/044525104", "amount": 100},
					{"accountId": "40702810000000000011/044525104", "amount": 200}, // duplicate id
					{"accountId": "no-bic-here"},
				},
			},
		})
	}))

	accounts, err := adapter.FetchAccounts(context.Background(), "token")
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "40702810000000000011", accounts[0].AccountNumber)
	assert.Equal(t, "044525104", accounts[0].BIC)
	assert.Equal(t, "р/с 40702810000000000011", accounts[0].Name)
}

func TestTochkaFetchTransactionsRequiresBIC(t *testing.T) {
	adapter := newTochkaAdapter(http.DefaultClient, "http://127.0.0.1:1")

	_, err := adapter.FetchTransactions(context.Background(), "token",
		BankAccount{AccountNumber: "40702810000000000011"}, time.Now(), time.Now())
	assert.True(t, IsKind(err, KindUnexpectedResponse))
}

func TestTochkaStatementFlow(t *testing.T) {
	const statementID = "stmt-123"
	var listCalls int32

	mux := http.NewServeMux()
	mux.HandleFunc("POST /statements", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		data := body["Data"].(map[string]interface{})
		stmt := data["Statement"].(map[string]interface{})
		require.Equal(t, "40702810000000000011/044525104", stmt["accountId"])
		require.Equal(t, "2024-05-01T00:00:00+03:00", stmt["startDateTime"])
		require.Equal(t, "2024-05-03T00:00:00+03:00", stmt["endDateTime"])

		json.NewEncoder(w).Encode(map[string]interface{}{
			"Data": map[string]interface{}{
				"Statement": map[string]interface{}{"statementId": statementID, "status": "created"},
			},
		})
	})
	mux.HandleFunc("GET /statements", func(w http.ResponseWriter, r *http.Request) {
		// Not ready on the first poll.
		status := "processing"
		if atomic.AddInt32(&listCalls, 1) > 1 {
			status = "Ready"
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"Data": map[string]interface{}{
				"Statement": []map[string]interface{}{
					{"statementId": statementID, "status": status},
				},
			},
		})
	})
	mux.HandleFunc("GET /accounts/40702810000000000011/044525104/statements/"+statementID, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"Data": map[string]interface{}{
				"Statement": map[string]interface{}{
					"Transaction": []map[string]interface{}{
						{
							"documentProcessDate":  "2024-05-02",
							"Amount":               map[string]interface{}{"amount": 999.99},
							"creditDebitIndicator": "Credit",
							"DebtorParty":          map[string]interface{}{"name": "ИП Иванов"},
							"paymentPurpose":       "Оплата счёта 7",
						},
						{
							// Framing day outside the requested range.
							"documentProcessDate":  "2024-04-30",
							"Amount":               map[string]interface{}{"amount": 1.00},
							"creditDebitIndicator": "Debit",
						},
					},
				},
			},
		})
	})

	adapter := newTochkaTestAdapter(t, mux)
	account := BankAccount{AccountNumber: "40702810000000000011", BIC: "044525104"}
	from := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)

	txs, err := adapter.FetchTransactions(context.Background(), "token", account, from, to)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "2024-05-02", txs[0].Date)
	assert.Equal(t, "999.99", txs[0].Amount)
	assert.Equal(t, DirectionIncome, txs[0].Direction)
	assert.Equal(t, "ИП Иванов", txs[0].Counterparty)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&listCalls), int32(2))
}

func TestTochkaDirection(t *testing.T) {
	assert.Equal(t, DirectionIncome, tochkaDirection(map[string]interface{}{"creditDebitIndicator": "Credit"}))
	assert.Equal(t, DirectionExpense, tochkaDirection(map[string]interface{}{"creditDebitIndicator": "Debit"}))
	assert.Equal(t, DirectionIncome, tochkaDirection(map[string]interface{}{"sign": "+"}))
	assert.Equal(t, DirectionExpense, tochkaDirection(map[string]interface{}{}))
}

func TestTochkaTransactionsBlockShapes(t *testing.T) {
	flat := map[string]interface{}{
		"Data": map[string]interface{}{
			"Transaction": []interface{}{map[string]interface{}{"a": "1"}},
		},
	}
	assert.Len(t, tochkaTransactionsBlock(flat), 1)

	nestedList := map[string]interface{}{
		"Data": map[string]interface{}{
			"Statement": []interface{}{
				map[string]interface{}{"Transaction": []interface{}{map[string]interface{}{"a": "1"}}},
				map[string]interface{}{"Transaction": []interface{}{map[string]interface{}{"a": "2"}}},
			},
		},
	}
	assert.Len(t, tochkaTransactionsBlock(nestedList), 2)

	assert.Nil(t, tochkaTransactionsBlock(map[string]interface{}{}))
}
