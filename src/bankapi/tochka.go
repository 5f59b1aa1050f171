// backend/src/bankapi/tochka.go
package bankapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const tochkaDefaultBaseURL = "https://enter.tochka.com/uapi/open-banking/v1.0"

// tochkaAdapter talks to the Tochka open banking API. Statements are
// asynchronous: an init call registers the request, then the statement list
// is polled until the requested id reports ready.
type tochkaAdapter struct {
	client       *http.Client
	baseURL      string
	pollInterval time.Duration
	pollAttempts int
}

func newTochkaAdapter(client *http.Client, baseURL string) *tochkaAdapter {
	if baseURL == "" {
		baseURL = tochkaDefaultBaseURL
	}
	return &tochkaAdapter{
		client:       client,
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		pollInterval: 2 * time.Second,
		pollAttempts: 60,
	}
}

func (a *tochkaAdapter) Code() string { return BankTochka }

func (a *tochkaAdapter) get(ctx context.Context, url, token string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return a.client.Do(req)
}

func (a *tochkaAdapter) TestConnection(ctx context.Context, token string) (bool, error) {
	resp, err := a.get(ctx, a.baseURL+"/balances", token)
	if err != nil {
		return false, connErr(BankTochka, "test", err)
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK, nil
}

func (a *tochkaAdapter) FetchAccounts(ctx context.Context, token string) ([]BankAccount, error) {
	resp, err := a.get(ctx, a.baseURL+"/balances", token)
	if err != nil {
		return nil, connErr(BankTochka, "accounts", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, statusErr(BankTochka, "accounts", resp.StatusCode)
	}

	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, decodeErr(BankTochka, "accounts", err)
	}

	// Balances carry "accountNumber/BIC" composite ids.
	accounts := []BankAccount{}
	seen := map[string]bool{}
	for _, item := range tochkaList(body, "Balances", "Balance", "balances") {
		accID := pickString(item, "accountId", "AccountId", "id")
		if !strings.Contains(accID, "/") || seen[accID] {
			continue
		}
		seen[accID] = true
		parts := strings.SplitN(accID, "/", 2)
		accounts = append(accounts, BankAccount{
			AccountNumber: parts[0],
			Name:          "р/с " + parts[0],
			BIC:           parts[1],
		})
	}
	return accounts, nil
}

func (a *tochkaAdapter) FetchTransactions(ctx context.Context, token string, account BankAccount, from, to time.Time) ([]TransactionRaw, error) {
	if account.BIC == "" {
		return nil, &Error{Kind: KindUnexpectedResponse, Bank: BankTochka, Op: "statement", Err: errors.New("account has no BIC")}
	}

	fromStr := from.Format("2006-01-02")
	toStr := to.Format("2006-01-02")

	statementID, err := a.initStatement(ctx, token, account, from, to)
	if err != nil {
		return nil, err
	}

	stmtBody, err := a.pollStatement(ctx, token, account, statementID)
	if err != nil {
		return nil, err
	}

	ops := tochkaTransactionsBlock(stmtBody)
	if len(ops) == 0 {
		// Some tenants expose lines only on the transactions sub-resource.
		url := fmt.Sprintf("%s/accounts/%s/%s/statements/%s/transactions", a.baseURL, account.AccountNumber, account.BIC, statementID)
		resp, err := a.get(ctx, url, token)
		if err == nil {
			if resp.StatusCode == http.StatusOK {
				var body map[string]interface{}
				if json.NewDecoder(resp.Body).Decode(&body) == nil {
					ops = tochkaTransactionsBlock(body)
				}
			}
			resp.Body.Close()
		}
	}

	transactions := []TransactionRaw{}
	for _, op := range ops {
		date, timeOfDay := parseDateMSK(pickString(op, "documentProcessDate", "operationDate", "postingDate", "createdAt", "date"))
		if date == "" {
			continue
		}
		// The statement may include framing days outside the range.
		if date < fromStr || date > toStr {
			continue
		}
		amount, ok := tochkaAmount(op)
		if !ok {
			continue
		}
		transactions = append(transactions, TransactionRaw{
			Date:         date,
			Time:         timeOfDay,
			Amount:       amount,
			Direction:    tochkaDirection(op),
			Counterparty: tochkaCounterparty(op),
			Purpose:      pickString(op, "paymentPurpose", "description", "comment"),
		})
	}
	return transactions, nil
}

func (a *tochkaAdapter) initStatement(ctx context.Context, token string, account BankAccount, from, to time.Time) (string, error) {
	// endDateTime is the start of the day after, so the last day is covered
	// in full.
	end := to.AddDate(0, 0, 1)
	initBody := map[string]interface{}{
		"Data": map[string]interface{}{
			"Statement": map[string]interface{}{
				"accountId":     account.AccountNumber + "/" + account.BIC,
				"startDateTime": from.Format("2006-01-02") + "T00:00:00+03:00",
				"endDateTime":   end.Format("2006-01-02") + "T00:00:00+03:00",
			},
		},
	}
	buf, err := json.Marshal(initBody)
	if err != nil {
		return "", decodeErr(BankTochka, "statement-init", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/statements", bytes.NewReader(buf))
	if err != nil {
		return "", connErr(BankTochka, "statement-init", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", connErr(BankTochka, "statement-init", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", statusErr(BankTochka, "statement-init", resp.StatusCode)
	}

	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", decodeErr(BankTochka, "statement-init", err)
	}
	data, _ := body["Data"].(map[string]interface{})
	stmt, _ := data["Statement"].(map[string]interface{})
	statementID := pickString(stmt, "statementId")
	if statementID == "" {
		return "", decodeErr(BankTochka, "statement-init", errors.New("no statementId in response"))
	}
	return statementID, nil
}

// pollStatement waits for the statement to become ready and fetches its
// body. Falls back to a direct fetch when polling runs out of attempts.
func (a *tochkaAdapter) pollStatement(ctx context.Context, token string, account BankAccount, statementID string) (map[string]interface{}, error) {
	directURL := fmt.Sprintf("%s/accounts/%s/%s/statements/%s", a.baseURL, account.AccountNumber, account.BIC, statementID)

	for attempt := 0; attempt < a.pollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, connErr(BankTochka, "statement-poll", ctx.Err())
		case <-time.After(a.pollInterval):
		}

		resp, err := a.get(ctx, a.baseURL+"/statements", token)
		if err != nil {
			continue
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			continue
		}
		var listBody map[string]interface{}
		err = json.NewDecoder(resp.Body).Decode(&listBody)
		resp.Body.Close()
		if err != nil {
			continue
		}

		for _, item := range tochkaList(listBody, "Statements", "Statement", "statements", "items") {
			sid := pickString(item, "statementId", "id")
			status := strings.ToLower(pickString(item, "status", "Status"))
			if sid == statementID && status == "ready" {
				stmtResp, err := a.get(ctx, directURL, token)
				if err != nil {
					return nil, connErr(BankTochka, "statement-fetch", err)
				}
				defer stmtResp.Body.Close()
				if stmtResp.StatusCode != http.StatusOK {
					return nil, statusErr(BankTochka, "statement-fetch", stmtResp.StatusCode)
				}
				var stmtBody map[string]interface{}
				if err := json.NewDecoder(stmtResp.Body).Decode(&stmtBody); err != nil {
					return nil, decodeErr(BankTochka, "statement-fetch", err)
				}
				return stmtBody, nil
			}
		}
	}

	resp, err := a.get(ctx, directURL, token)
	if err != nil {
		return nil, connErr(BankTochka, "statement-fetch", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, statusErr(BankTochka, "statement-fetch", resp.StatusCode)
	}
	var stmtBody map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&stmtBody); err != nil {
		return nil, decodeErr(BankTochka, "statement-fetch", err)
	}
	return stmtBody, nil
}

// tochkaList pulls an array of objects out of body.Data or body under any of
// the given keys.
func tochkaList(body map[string]interface{}, keys ...string) []map[string]interface{} {
	sources := []map[string]interface{}{body}
	if data, ok := body["Data"].(map[string]interface{}); ok {
		sources = append([]map[string]interface{}{data}, sources...)
	}
	for _, src := range sources {
		for _, key := range keys {
			raw, ok := src[key].([]interface{})
			if !ok {
				continue
			}
			items := []map[string]interface{}{}
			for _, v := range raw {
				if m, ok := v.(map[string]interface{}); ok {
					items = append(items, m)
				}
			}
			return items
		}
	}
	return nil
}

// tochkaTransactionsBlock finds the transaction array in a statement body.
// The shape varies: Data.Transaction(s) directly, or nested under a
// Statement object or array.
func tochkaTransactionsBlock(body map[string]interface{}) []map[string]interface{} {
	if body == nil {
		return nil
	}
	if txns := tochkaList(body, "Transactions", "Transaction", "transactions", "items"); len(txns) > 0 {
		return txns
	}
	data, _ := body["Data"].(map[string]interface{})
	if data == nil {
		return nil
	}
	switch stmt := data["Statement"].(type) {
	case map[string]interface{}:
		return tochkaList(stmt, "Transactions", "Transaction")
	case []interface{}:
		all := []map[string]interface{}{}
		for _, item := range stmt {
			m, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			all = append(all, tochkaList(m, "Transactions", "Transaction")...)
		}
		return all
	}
	return nil
}

func tochkaAmount(op map[string]interface{}) (string, bool) {
	for _, key := range []string{"amount", "accountAmount", "operationAmount", "transactionAmount", "sum", "value"} {
		if s, ok := normalizeAmount(op[key]); ok {
			return s, true
		}
	}
	for _, key := range []string{"amount", "Amount"} {
		node, ok := op[key].(map[string]interface{})
		if !ok {
			continue
		}
		for _, inner := range []string{"value", "amount", "sum", "total"} {
			if s, ok := normalizeAmount(node[inner]); ok {
				return s, true
			}
		}
	}
	return "", false
}

func tochkaDirection(op map[string]interface{}) string {
	switch strings.ToLower(pickString(op, "creditDebitIndicator")) {
	case "credit":
		return DirectionIncome
	case "debit":
		return DirectionExpense
	}
	switch pickString(op, "sign") {
	case "+":
		return DirectionIncome
	case "-":
		return DirectionExpense
	}
	return DirectionExpense
}

func tochkaCounterparty(op map[string]interface{}) string {
	// For incoming money the debtor is the counterparty, for outgoing the
	// creditor is.
	switch strings.ToLower(pickString(op, "creditDebitIndicator")) {
	case "credit":
		if s := pickNested(op, []string{"DebtorParty"}, []string{"name"}); s != "" {
			return s
		}
	case "debit":
		if s := pickNested(op, []string{"CreditorParty"}, []string{"name"}); s != "" {
			return s
		}
	}
	if s := pickString(op, counterpartyNameKeys...); s != "" {
		return s
	}
	if s := pickNested(op, []string{"CreditorParty", "DebtorParty", "counterparty", "contragent"}, []string{"name"}); s != "" {
		return s
	}
	purpose := strings.ToLower(pickString(op, "paymentPurpose", "description"))
	if strings.Contains(purpose, "комисс") {
		return "Банк Точка"
	}
	return ""
}

var _ Adapter = (*tochkaAdapter)(nil)
