// backend/src/services/pdf_service_test.go
package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asg67/finmanager/backend/src/bankapi"
	"github.com/asg67/finmanager/backend/src/database"
	"github.com/asg67/finmanager/backend/src/model"
)

func newPdfFixture(t *testing.T, handler http.HandlerFunc) *pdfServiceImpl {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &pdfServiceImpl{
		serviceURL: srv.URL,
		client:     srv.Client(),
		parsed:     cache.New(parsedStatementTTL, 2*parsedStatementTTL),
	}
}

func pdfTestAccount(t *testing.T, email string) (*model.User, *model.Account) {
	t.Helper()
	user := &model.User{Email: email, Name: "Test"}
	require.NoError(t, user.HashPassword("secret123"))
	require.NoError(t, user.CreateUser(database.DB))
	entity, err := model.CreateEntity(database.DB, "ООО ПДФ", user.ID)
	require.NoError(t, err)
	account := &model.Account{EntityID: entity.ID, Name: "Счёт", Type: model.AccountTypeChecking, AccountNumber: "40702810000000000501"}
	require.NoError(t, model.CreateAccount(database.DB, account))
	return user, account
}

func rawLines(parsed *ParsedStatement) []bankapi.TransactionRaw {
	out := make([]bankapi.TransactionRaw, 0, len(parsed.Transactions))
	for _, p := range parsed.Transactions {
		out = append(out, p.TransactionRaw)
	}
	return out
}

func TestPdfUploadAndConfirm(t *testing.T) {
	svc := newPdfFixture(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/parse", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		require.Equal(t, "tbank", r.FormValue("bank_code"))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"transactions": []bankapi.TransactionRaw{
				{Date: "2024-03-01", Time: "10:00:00", Amount: "100.00", Direction: bankapi.DirectionIncome, Counterparty: "ООО Клиент"},
				{Date: "2024-03-02", Amount: "200.00", Direction: bankapi.DirectionExpense, Counterparty: "ООО Поставщик"},
			},
		})
	})
	user, account := pdfTestAccount(t, "pdf-confirm@example.com")

	parsed, err := svc.Upload(context.Background(), strings.NewReader("%PDF-1.4 fake"), "statement.pdf", "tbank", account.ID, user.ID)
	require.NoError(t, err)
	require.Len(t, parsed.Transactions, 2)
	assert.Equal(t, 0, parsed.DuplicateCount)

	upload, err := model.GetPdfUploadByID(database.DB, parsed.UploadID)
	require.NoError(t, err)
	assert.Equal(t, model.PdfStatusPending, upload.Status)

	// Another user cannot see the parsed statement.
	_, err = svc.GetParsed(parsed.UploadID, "someone-else")
	assert.Error(t, err)

	got, err := svc.GetParsed(parsed.UploadID, user.ID)
	require.NoError(t, err)
	assert.Equal(t, parsed.UploadID, got.UploadID)

	result, err := svc.Confirm(context.Background(), parsed.UploadID, user.ID, rawLines(got))
	require.NoError(t, err)
	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 2, result.Saved)
	assert.Equal(t, 0, result.Skipped)

	upload, err = model.GetPdfUploadByID(database.DB, parsed.UploadID)
	require.NoError(t, err)
	assert.Equal(t, model.PdfStatusConfirmed, upload.Status)

	// Confirming twice is rejected.
	_, err = svc.Confirm(context.Background(), parsed.UploadID, user.ID, rawLines(got))
	assert.ErrorIs(t, err, ErrUploadNotPending)
}

func TestPdfConfirmPersistsUserCorrections(t *testing.T) {
	// The parser garbles the first line and extracts a second the user
	// does not want.
	svc := newPdfFixture(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"transactions": []bankapi.TransactionRaw{
				{Date: "2024-04-01", Time: "09:00:00", Amount: "999.99", Direction: bankapi.DirectionIncome, Counterparty: "ООО ГАРБЛД"},
				{Date: "2024-04-02", Amount: "50.00", Direction: bankapi.DirectionExpense, Counterparty: "Мусорная строка"},
			},
		})
	})
	user, account := pdfTestAccount(t, "pdf-correct@example.com")

	parsed, err := svc.Upload(context.Background(), strings.NewReader("%PDF-1.4 fake"), "statement.pdf", "tbank", account.ID, user.ID)
	require.NoError(t, err)
	require.Len(t, parsed.Transactions, 2)

	// The preview cache expiring must not strand the upload: the client
	// still holds the reviewed list.
	svc.parsed.Flush()

	corrected := []bankapi.TransactionRaw{
		{Date: "2024-04-01", Time: "09:00:00", Amount: "99.99", Direction: bankapi.DirectionIncome, Counterparty: "ООО Гарант"},
	}
	result, err := svc.Confirm(context.Background(), parsed.UploadID, user.ID, corrected)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Total)
	assert.Equal(t, 1, result.Saved)

	rows, err := model.ListBankTransactions(database.DB, account.EntityID, model.BankTransactionFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "99.99", rows[0].Amount)
	assert.Equal(t, "ООО Гарант", rows[0].Counterparty)
	assert.Equal(t, parsed.UploadID, rows[0].PdfUploadID)
}

func TestPdfUploadFlagsDuplicates(t *testing.T) {
	svc := newPdfFixture(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"transactions": []bankapi.TransactionRaw{
				{Date: "2024-03-10", Time: "12:00:00", Amount: "300.00", Direction: bankapi.DirectionIncome, Counterparty: "ООО Клиент"},
				{Date: "2024-03-11", Amount: "400.00", Direction: bankapi.DirectionExpense, Counterparty: "ООО Другой"},
			},
		})
	})
	user, account := pdfTestAccount(t, "pdf-dedup@example.com")

	// The first line already exists from an API sync.
	key := model.DedupeKey(account.EntityID, account.ID, "2024-03-10", "12:00:00", "300.00", model.DirectionIncome, "ООО Клиент")
	require.NoError(t, model.InsertBankTransaction(database.DB, &model.BankTransaction{
		AccountID: account.ID, Date: "2024-03-10", Time: "12:00:00", Amount: "300.00",
		Direction: model.DirectionIncome, Counterparty: "ООО Клиент", DedupeKey: key,
	}))

	parsed, err := svc.Upload(context.Background(), strings.NewReader("%PDF-1.4 fake"), "statement.pdf", "tbank", account.ID, user.ID)
	require.NoError(t, err)
	require.Len(t, parsed.Transactions, 2)

	assert.Equal(t, 1, parsed.DuplicateCount)
	assert.True(t, parsed.Transactions[0].IsDuplicate)
	assert.Equal(t, key, parsed.Transactions[0].DedupeKey)
	assert.False(t, parsed.Transactions[1].IsDuplicate)
	assert.NotEmpty(t, parsed.Transactions[1].DedupeKey)

	// Confirming the full list skips the already-booked line.
	result, err := svc.Confirm(context.Background(), parsed.UploadID, user.ID, rawLines(parsed))
	require.NoError(t, err)
	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 1, result.Saved)
	assert.Equal(t, 1, result.Skipped)

	// The imported line is attributed to the upload.
	n, err := model.CountBankTransactionsByUpload(database.DB, parsed.UploadID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPdfConfirmRejectsMalformedLines(t *testing.T) {
	svc := newPdfFixture(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"transactions": []bankapi.TransactionRaw{
				{Date: "2024-04-10", Amount: "10.00", Direction: bankapi.DirectionExpense},
			},
		})
	})
	user, account := pdfTestAccount(t, "pdf-invalid@example.com")

	parsed, err := svc.Upload(context.Background(), strings.NewReader("%PDF-1.4 fake"), "statement.pdf", "tbank", account.ID, user.ID)
	require.NoError(t, err)

	bad := []struct {
		name string
		txs  []bankapi.TransactionRaw
	}{
		{"empty list", nil},
		{"bad date", []bankapi.TransactionRaw{{Date: "10.04.2024", Amount: "10.00", Direction: bankapi.DirectionExpense}}},
		{"bad time", []bankapi.TransactionRaw{{Date: "2024-04-10", Time: "noon", Amount: "10.00", Direction: bankapi.DirectionExpense}}},
		{"bad amount", []bankapi.TransactionRaw{{Date: "2024-04-10", Amount: "-10.00", Direction: bankapi.DirectionExpense}}},
		{"bad direction", []bankapi.TransactionRaw{{Date: "2024-04-10", Amount: "10.00", Direction: "debit"}}},
	}
	for _, tc := range bad {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Confirm(context.Background(), parsed.UploadID, user.ID, tc.txs)
			assert.ErrorIs(t, err, ErrInvalidStatementLine)
		})
	}

	// Rejected submissions leave the upload pending and save nothing.
	upload, err := model.GetPdfUploadByID(database.DB, parsed.UploadID)
	require.NoError(t, err)
	assert.Equal(t, model.PdfStatusPending, upload.Status)
	n, err := model.CountBankTransactionsByUpload(database.DB, parsed.UploadID)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestPdfUploadParsingFailure(t *testing.T) {
	svc := newPdfFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]string{"detail": "не удалось распознать таблицу"})
	})
	user, account := pdfTestAccount(t, "pdf-fail@example.com")

	_, err := svc.Upload(context.Background(), strings.NewReader("junk"), "broken.pdf", "tbank", account.ID, user.ID)
	require.ErrorIs(t, err, ErrParsingFailed)
	assert.Contains(t, err.Error(), "не удалось распознать таблицу")

	// A failed parse leaves no upload row behind.
	uploads, err := model.ListPdfUploadsByUser(database.DB, user.ID)
	require.NoError(t, err)
	assert.Empty(t, uploads)
}

func TestPdfDiscard(t *testing.T) {
	svc := newPdfFixture(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"transactions": []bankapi.TransactionRaw{
				{Date: "2024-03-15", Amount: "10.00", Direction: bankapi.DirectionExpense},
			},
		})
	})
	user, account := pdfTestAccount(t, "pdf-discard@example.com")

	parsed, err := svc.Upload(context.Background(), strings.NewReader("%PDF-1.4 fake"), "statement.pdf", "tbank", account.ID, user.ID)
	require.NoError(t, err)

	require.NoError(t, svc.Discard(parsed.UploadID, user.ID))

	upload, err := model.GetPdfUploadByID(database.DB, parsed.UploadID)
	require.NoError(t, err)
	assert.Equal(t, model.PdfStatusDiscarded, upload.Status)

	_, err = svc.Confirm(context.Background(), parsed.UploadID, user.ID, rawLines(parsed))
	assert.ErrorIs(t, err, ErrUploadNotPending)

	err = svc.Discard(parsed.UploadID, user.ID)
	assert.ErrorIs(t, err, ErrUploadNotPending)
}
