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

func TestModulbankFetchAccounts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/account-info", r.URL.Path)
		json.NewEncoder(w).Encode([]map[string]interface{}{
			{
				"companyName": "ООО Ромашка",
				"bankAccounts": []map[string]interface{}{
					{"id": "acc-guid-1", "number": "40702810100000000001", "accountName": "Расчётный"},
					{"id": "acc-guid-2", "number": "40702810100000000002"},
				},
			},
		})
	}))
	defer srv.Close()
	adapter := newModulbankAdapter(srv.Client(), srv.URL)

	accounts, err := adapter.FetchAccounts(context.Background(), "token")
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "acc-guid-1", accounts[0].BankAccountID)
	assert.Equal(t, "Расчётный", accounts[0].Name)
	// Name falls back to the account number.
	assert.Equal(t, "40702810100000000002", accounts[1].Name)
}

func TestModulbankFetchTransactionsPaging(t *testing.T) {
	var skips []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/operation-history/acc-guid-1", r.URL.Path)

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		skip := int(body["skip"].(float64))
		skips = append(skips, body["from"].(string))

		if skip == 0 {
			// Full batch forces another page.
			batch := make([]map[string]interface{}, modulbankBatchSize)
			for i := range batch {
				batch[i] = map[string]interface{}{
					"executed":       "2024-04-10T09:00:00+03:00",
					"amount":         100.0,
					"category":       "Debet",
					"contragentName": "ООО Поставщик",
				}
			}
			json.NewEncoder(w).Encode(batch)
			return
		}
		json.NewEncoder(w).Encode([]map[string]interface{}{
			{
				"executed":       "2024-04-11",
				"amount":         "50,25",
				"category":       "Credit",
				"paymentPurpose": "Комиссия за переводы",
			},
		})
	}))
	defer srv.Close()
	adapter := newModulbankAdapter(srv.Client(), srv.URL)

	account := BankAccount{AccountNumber: "40702810100000000001", BankAccountID: "acc-guid-1"}
	from := time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 4, 11, 0, 0, 0, 0, time.UTC)

	txs, err := adapter.FetchTransactions(context.Background(), "token", account, from, to)
	require.NoError(t, err)
	require.Len(t, txs, modulbankBatchSize+1)
	assert.Equal(t, []string{"2024-04-10", "2024-04-10"}, skips)

	assert.Equal(t, DirectionIncome, txs[0].Direction)
	assert.Equal(t, "ООО Поставщик", txs[0].Counterparty)
	assert.Equal(t, "09:00:00", txs[0].Time)

	last := txs[len(txs)-1]
	assert.Equal(t, DirectionExpense, last.Direction)
	assert.Equal(t, "50.25", last.Amount)
	assert.Equal(t, "", last.Time)
	assert.Equal(t, "Модульбанк", last.Counterparty)
}

func TestModulbankDirection(t *testing.T) {
	assert.Equal(t, DirectionIncome, modulbankDirection(map[string]interface{}{"category": "Debet"}))
	assert.Equal(t, DirectionIncome, modulbankDirection(map[string]interface{}{"category": "debit"}))
	assert.Equal(t, DirectionExpense, modulbankDirection(map[string]interface{}{"category": "Credit"}))
	assert.Equal(t, DirectionExpense, modulbankDirection(map[string]interface{}{}))
}
