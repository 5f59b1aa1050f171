package bankapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

const modulbankDefaultBaseURL = "https://api.modulbank.ru/v1"

// modulbankAdapter talks to the Modulbank API. Accounts are grouped under
// companies, and operation history is addressed by the bank's internal
// account id rather than the account number.
type modulbankAdapter struct {
	client  *http.Client
	baseURL string
}

func newModulbankAdapter(client *http.Client, baseURL string) *modulbankAdapter {
	if baseURL == "" {
		baseURL = modulbankDefaultBaseURL
	}
	return &modulbankAdapter{client: client, baseURL: strings.TrimSuffix(baseURL, "/")}
}

func (a *modulbankAdapter) Code() string { return BankModulbank }

func (a *modulbankAdapter) post(ctx context.Context, url, token string, body interface{}) (*http.Response, error) {
	var reader *bytes.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(buf)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	return a.client.Do(req)
}

func (a *modulbankAdapter) TestConnection(ctx context.Context, token string) (bool, error) {
	resp, err := a.post(ctx, a.baseURL+"/account-info", token, nil)
	if err != nil {
		return false, connErr(BankModulbank, "test", err)
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK, nil
}

func (a *modulbankAdapter) FetchAccounts(ctx context.Context, token string) ([]BankAccount, error) {
	resp, err := a.post(ctx, a.baseURL+"/account-info", token, nil)
	if err != nil {
		return nil, connErr(BankModulbank, "accounts", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, statusErr(BankModulbank, "accounts", resp.StatusCode)
	}

	var companies []struct {
		CompanyName  string `json:"companyName"`
		CompanyID    string `json:"companyId"`
		BankAccounts []struct {
			ID          string `json:"id"`
			Number      string `json:"number"`
			AccountName string `json:"accountName"`
		} `json:"bankAccounts"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&companies); err != nil {
		return nil, decodeErr(BankModulbank, "accounts", err)
	}

	accounts := []BankAccount{}
	for _, company := range companies {
		for _, ba := range company.BankAccounts {
			name := ba.AccountName
			if name == "" {
				name = ba.Number
			}
			accounts = append(accounts, BankAccount{
				AccountNumber: ba.Number,
				Name:          name,
				BankAccountID: ba.ID,
			})
		}
	}
	return accounts, nil
}

const modulbankBatchSize = 50

func (a *modulbankAdapter) FetchTransactions(ctx context.Context, token string, account BankAccount, from, to time.Time) ([]TransactionRaw, error) {
	accID := account.BankAccountID
	if accID == "" {
		accID = account.AccountNumber
	}

	transactions := []TransactionRaw{}
	skip := 0

	for {
		body := map[string]interface{}{
			"from":    from.Format("2006-01-02"),
			"till":    to.Format("2006-01-02"),
			"records": modulbankBatchSize,
			"skip":    skip,
		}
		resp, err := a.post(ctx, a.baseURL+"/operation-history/"+accID, token, body)
		if err != nil {
			return nil, connErr(BankModulbank, "operations", err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, statusErr(BankModulbank, "operations", resp.StatusCode)
		}

		var batch []map[string]interface{}
		if err := json.NewDecoder(resp.Body).Decode(&batch); err != nil {
			resp.Body.Close()
			return nil, decodeErr(BankModulbank, "operations", err)
		}
		resp.Body.Close()

		for _, op := range batch {
			date, timeOfDay := parseDateMSK(pickString(op, "executed", "created"))
			if date == "" {
				continue
			}
			amount, ok := normalizeAmount(op["amount"])
			if !ok {
				continue
			}
			transactions = append(transactions, TransactionRaw{
				Date:         date,
				Time:         timeOfDay,
				Amount:       amount,
				Direction:    modulbankDirection(op),
				Counterparty: modulbankCounterparty(op),
				Purpose:      pickString(op, "paymentPurpose", "description", "comment"),
			})
		}

		if len(batch) < modulbankBatchSize {
			break
		}
		skip += modulbankBatchSize
	}

	return transactions, nil
}

// Modulbank's category field is from the bank's point of view: debet means
// money arriving on the account.
func modulbankDirection(op map[string]interface{}) string {
	switch strings.ToLower(pickString(op, "category")) {
	case "debet", "debit":
		return DirectionIncome
	case "credit":
		return DirectionExpense
	default:
		return DirectionExpense
	}
}

func modulbankCounterparty(op map[string]interface{}) string {
	directKeys := []string{
		"contragentName", "counterpartyName", "recipientName",
		"payerName", "payeeName", "receiverName",
	}
	if s := pickString(op, directKeys...); s != "" {
		return s
	}
	objKeys := []string{"counterparty", "payer", "payee", "recipient"}
	if s := pickNested(op, objKeys, []string{"name", "fullName", "legalName"}); s != "" {
		return s
	}
	text := strings.ToLower(pickString(op, "paymentPurpose") + " " + pickString(op, "description"))
	if strings.Contains(text, "комисс") {
		return "Модульбанк"
	}
	return ""
}

var _ Adapter = (*modulbankAdapter)(nil)
