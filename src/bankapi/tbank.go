package bankapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

const tbankDefaultBaseURL = "https://business.tbank.ru/openapi"

// tbankAdapter talks to the T-Bank business open API. Statements are paged
// with an opaque cursor.
type tbankAdapter struct {
	client  *http.Client
	baseURL string
}

func newTBankAdapter(client *http.Client, baseURL string) *tbankAdapter {
	if baseURL == "" {
		baseURL = tbankDefaultBaseURL
	}
	return &tbankAdapter{client: client, baseURL: strings.TrimSuffix(baseURL, "/")}
}

func (a *tbankAdapter) Code() string { return BankTBank }

func (a *tbankAdapter) newRequest(ctx context.Context, method, url, token string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Request-Id", uuid.New().String())
	return req, nil
}

func (a *tbankAdapter) TestConnection(ctx context.Context, token string) (bool, error) {
	req, err := a.newRequest(ctx, http.MethodGet, a.baseURL+"/api/v4/bank-accounts?withInvest=false", token)
	if err != nil {
		return false, connErr(BankTBank, "test", err)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return false, connErr(BankTBank, "test", err)
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK, nil
}

func (a *tbankAdapter) FetchAccounts(ctx context.Context, token string) ([]BankAccount, error) {
	req, err := a.newRequest(ctx, http.MethodGet, a.baseURL+"/api/v4/bank-accounts?withInvest=false", token)
	if err != nil {
		return nil, connErr(BankTBank, "accounts", err)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, connErr(BankTBank, "accounts", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, statusErr(BankTBank, "accounts", resp.StatusCode)
	}

	var raw []map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, decodeErr(BankTBank, "accounts", err)
	}

	accounts := make([]BankAccount, 0, len(raw))
	for _, item := range raw {
		number := pickString(item, "accountNumber")
		if number == "" {
			continue
		}
		name := pickString(item, "name", "accountType")
		if name == "" {
			name = number
		}
		accounts = append(accounts, BankAccount{AccountNumber: number, Name: name})
	}
	return accounts, nil
}

func (a *tbankAdapter) FetchTransactions(ctx context.Context, token string, account BankAccount, from, to time.Time) ([]TransactionRaw, error) {
	// The API takes UTC instants; the requested range is Moscow calendar
	// days, so shift the day boundaries from MSK to UTC.
	fromMSK := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, mskLocation)
	toMSK := time.Date(to.Year(), to.Month(), to.Day(), 23, 59, 59, 0, mskLocation).Add(time.Second)

	transactions := []TransactionRaw{}
	cursor := ""

	for {
		params := url.Values{}
		params.Set("accountNumber", account.AccountNumber)
		params.Set("from", fromMSK.UTC().Format("2006-01-02T15:04:05Z"))
		params.Set("to", toMSK.UTC().Format("2006-01-02T15:04:05Z"))
		params.Set("limit", "5000")
		params.Set("operationStatus", "Transaction")
		if cursor == "" {
			params.Set("withBalances", "true")
		} else {
			params.Set("cursor", cursor)
		}

		req, err := a.newRequest(ctx, http.MethodGet, a.baseURL+"/api/v1/statement?"+params.Encode(), token)
		if err != nil {
			return nil, connErr(BankTBank, "statement", err)
		}
		resp, err := a.client.Do(req)
		if err != nil {
			return nil, connErr(BankTBank, "statement", err)
		}

		var body struct {
			NextCursor string                   `json:"nextCursor"`
			Operations []map[string]interface{} `json:"operations"`
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, statusErr(BankTBank, "statement", resp.StatusCode)
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			resp.Body.Close()
			return nil, decodeErr(BankTBank, "statement", err)
		}
		resp.Body.Close()

		for _, op := range body.Operations {
			tx, ok := a.mapOperation(op, account.AccountNumber)
			if ok {
				transactions = append(transactions, tx)
			}
		}

		cursor = body.NextCursor
		if cursor == "" {
			break
		}
	}

	return transactions, nil
}

func (a *tbankAdapter) mapOperation(op map[string]interface{}, ourAccount string) (TransactionRaw, bool) {
	date, timeOfDay := parseDateMSK(pickString(op, "operationDate", "postingDate", "createdAt"))
	if date == "" {
		return TransactionRaw{}, false
	}
	amount, ok := tbankAmount(op)
	if !ok {
		return TransactionRaw{}, false
	}
	purpose := pickString(op, "paymentPurpose", "description", "payPurpose")
	return TransactionRaw{
		Date:         date,
		Time:         timeOfDay,
		Amount:       amount,
		Direction:    tbankDirection(op, ourAccount),
		Counterparty: tbankCounterparty(op),
		Purpose:      purpose,
	}, true
}

// accountAmount is the primary amount field; the rest are fallbacks seen in
// older statement formats.
func tbankAmount(op map[string]interface{}) (string, bool) {
	for _, key := range []string{"accountAmount", "operationAmount", "rubleAmount", "amount"} {
		if s, ok := normalizeAmount(op[key]); ok {
			return s, true
		}
	}
	return "", false
}

func tbankDirection(op map[string]interface{}, ourAccount string) string {
	receiver, _ := op["receiver"].(map[string]interface{})
	payer, _ := op["payer"].(map[string]interface{})
	if acct := pickString(receiver, "acct"); acct != "" && acct == ourAccount {
		return DirectionIncome
	}
	if acct := pickString(payer, "acct"); acct != "" && acct == ourAccount {
		return DirectionExpense
	}

	purpose := strings.ToLower(pickString(op, "paymentPurpose", "description"))
	for _, kw := range []string{"получение кредита", "зачисление кредита"} {
		if strings.Contains(purpose, kw) {
			return DirectionIncome
		}
	}
	for _, kw := range []string{"погашение кредита", "комиссия"} {
		if strings.Contains(purpose, kw) {
			return DirectionExpense
		}
	}

	cat := strings.ToLower(pickString(op, "category"))
	if strings.HasPrefix(cat, "income") || strings.HasPrefix(cat, "debet") {
		return DirectionIncome
	}
	return DirectionExpense
}

func tbankCounterparty(op map[string]interface{}) string {
	if s := pickString(op, counterpartyNameKeys...); s != "" {
		return s
	}
	objKeys := []string{"counterparty", "contragent", "beneficiary", "recipient", "payer", "payee", "receiver", "sender"}
	nameKeys := append(append([]string{}, counterpartyNameKeys...), "name", "fullName", "shortName")
	if s := pickNested(op, objKeys, nameKeys); s != "" {
		return s
	}
	purpose := strings.ToLower(pickString(op, "paymentPurpose", "description"))
	if strings.Contains(purpose, "комисс") {
		return `АО "ТБанк"`
	}
	return ""
}

var _ Adapter = (*tbankAdapter)(nil)
