package services

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asg67/finmanager/backend/src/bankapi"
	"github.com/asg67/finmanager/backend/src/database"
	"github.com/asg67/finmanager/backend/src/logger"
	"github.com/asg67/finmanager/backend/src/model"
)

func TestMain(m *testing.M) {
	logger.InitLogger("error")
	database.InitDB(":memory:")

	schema, err := os.ReadFile("../../db/migrations/000001_init.up.sql")
	if err != nil {
		panic(err)
	}
	if _, err := database.DB.Exec(string(schema)); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

// stubAdapter is a controllable in-memory bank.
type stubAdapter struct {
	code         string
	accounts     []bankapi.BankAccount
	transactions map[string][]bankapi.TransactionRaw
	fetchErr     error

	// fetchStarted/fetchRelease, when set, make FetchTransactions block so
	// tests can overlap two syncs.
	fetchStarted chan struct{}
	fetchRelease chan struct{}
}

func (s *stubAdapter) Code() string { return s.code }

func (s *stubAdapter) TestConnection(ctx context.Context, token string) (bool, error) {
	return token == "good", nil
}

func (s *stubAdapter) FetchAccounts(ctx context.Context, token string) ([]bankapi.BankAccount, error) {
	return s.accounts, nil
}

func (s *stubAdapter) FetchTransactions(ctx context.Context, token string, account bankapi.BankAccount, from, to time.Time) ([]bankapi.TransactionRaw, error) {
	if s.fetchStarted != nil {
		s.fetchStarted <- struct{}{}
		<-s.fetchRelease
	}
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	return s.transactions[account.AccountNumber], nil
}

func newSyncFixture(t *testing.T, email string, adapter *stubAdapter) (SyncService, *model.BankConnection, *model.Entity) {
	t.Helper()
	user := &model.User{Email: email, Name: "Test"}
	require.NoError(t, user.HashPassword("secret123"))
	require.NoError(t, user.CreateUser(database.DB))
	entity, err := model.CreateEntity(database.DB, "ООО Синк", user.ID)
	require.NoError(t, err)
	conn, err := model.CreateBankConnection(database.DB, entity.ID, adapter.code, "t.secret-token", "")
	require.NoError(t, err)

	return NewSyncService(bankapi.NewRegistryWith(adapter)), conn, entity
}

func syncDays(y int, m time.Month, d1, d2 int) (time.Time, time.Time) {
	return time.Date(y, m, d1, 0, 0, 0, 0, time.UTC), time.Date(y, m, d2, 0, 0, 0, 0, time.UTC)
}

func TestSyncCreatesAccountsAndIsIdempotent(t *testing.T) {
	adapter := &stubAdapter{
		code:     bankapi.BankTBank,
		accounts: []bankapi.BankAccount{{AccountNumber: "40702810000000000401", Name: "Основной"}},
		transactions: map[string][]bankapi.TransactionRaw{
			"40702810000000000401": {
				{Date: "2024-03-01", Time: "10:00:00", Amount: "100.00", Direction: bankapi.DirectionIncome, Counterparty: "ООО Клиент"},
				{Date: "2024-03-01", Amount: "50.00", Direction: bankapi.DirectionExpense, Counterparty: "ООО Поставщик", Purpose: "Счёт 1"},
			},
		},
	}
	svc, conn, entity := newSyncFixture(t, "sync-idem@example.com", adapter)
	from, to := syncDays(2024, 3, 1, 2)

	result, err := svc.Sync(context.Background(), conn, from, to)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Fetched)
	assert.Equal(t, 2, result.Saved)
	assert.Equal(t, 0, result.Skipped)
	assert.Equal(t, 1, result.Accounts)

	account, err := model.FindAccountByNumber(database.DB, entity.ID, "40702810000000000401")
	require.NoError(t, err)
	assert.Equal(t, model.AccountSourceBankSync, account.Source)
	assert.Equal(t, bankapi.BankTBank, account.Bank)

	// The same range again saves nothing new.
	result, err = svc.Sync(context.Background(), conn, from, to)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Saved)
	assert.Equal(t, 2, result.Skipped)

	// A change limited to purpose still counts as the same transaction.
	adapter.transactions["40702810000000000401"][1].Purpose = "Счёт 1 (исправлено)"
	result, err = svc.Sync(context.Background(), conn, from, to)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Saved)
	assert.Equal(t, 2, result.Skipped)

	reloaded, err := model.GetBankConnectionByID(database.DB, conn.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SyncStatusSuccess, reloaded.LastSyncStatus)
	require.NotNil(t, reloaded.LastSyncAt)
}

func TestSyncAccountFiltersAndRejectsUnknown(t *testing.T) {
	adapter := &stubAdapter{
		code: bankapi.BankModulbank,
		accounts: []bankapi.BankAccount{
			{AccountNumber: "40702810000000000402", Name: "Первый"},
			{AccountNumber: "40702810000000000403", Name: "Второй"},
		},
		transactions: map[string][]bankapi.TransactionRaw{
			"40702810000000000402": {{Date: "2024-03-01", Amount: "10.00", Direction: bankapi.DirectionIncome}},
			"40702810000000000403": {{Date: "2024-03-01", Amount: "20.00", Direction: bankapi.DirectionIncome}},
		},
	}
	svc, conn, _ := newSyncFixture(t, "sync-single@example.com", adapter)
	from, to := syncDays(2024, 3, 1, 1)

	result, err := svc.SyncAccount(context.Background(), conn, "40702810000000000402", from, to)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Accounts)
	assert.Equal(t, 1, result.Saved)

	_, err = svc.SyncAccount(context.Background(), conn, "00000000000000000000", from, to)
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestSyncAllOrNothing(t *testing.T) {
	adapter := &stubAdapter{
		code:     bankapi.BankTochka,
		accounts: []bankapi.BankAccount{{AccountNumber: "40702810000000000404", Name: "Счёт"}},
		transactions: map[string][]bankapi.TransactionRaw{
			"40702810000000000404": {
				{Date: "2024-03-01", Amount: "10.00", Direction: bankapi.DirectionIncome},
				// The duplicate key inside one batch trips the UNIQUE
				// constraint mid-transaction.
				{Date: "2024-03-02", Amount: "20.00", Direction: bankapi.DirectionIncome},
				{Date: "2024-03-02", Amount: "20.00", Direction: bankapi.DirectionIncome},
			},
		},
	}
	svc, conn, entity := newSyncFixture(t, "sync-atomic@example.com", adapter)
	from, to := syncDays(2024, 3, 1, 2)

	// Identical lines dedupe against each other inside the batch, so this
	// succeeds with one skip rather than failing.
	result, err := svc.Sync(context.Background(), conn, from, to)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Saved)
	assert.Equal(t, 1, result.Skipped)

	// Now force a real mid-store failure and check nothing was written.
	adapter.accounts = append(adapter.accounts, bankapi.BankAccount{AccountNumber: "40702810000000000405", Name: "Второй"})
	adapter.transactions["40702810000000000404"] = []bankapi.TransactionRaw{
		{Date: "2024-03-05", Amount: "30.00", Direction: bankapi.DirectionIncome},
	}
	adapter.transactions["40702810000000000405"] = []bankapi.TransactionRaw{
		{Date: "2024-03-05", Amount: "40.00", Direction: ""}, // violates the direction CHECK
	}

	_, err = svc.Sync(context.Background(), conn, from, to)
	require.ErrorIs(t, err, ErrPersistence)

	txs, err := model.ListBankTransactions(database.DB, entity.ID, model.BankTransactionFilter{DateFrom: "2024-03-05", DateTo: "2024-03-05"})
	require.NoError(t, err)
	assert.Empty(t, txs)

	reloaded, err := model.GetBankConnectionByID(database.DB, conn.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SyncStatusError, reloaded.LastSyncStatus)
	assert.NotEmpty(t, reloaded.LastSyncError)
}

func TestSyncConcurrentSameConnection(t *testing.T) {
	adapter := &stubAdapter{
		code:         bankapi.BankTBank,
		accounts:     []bankapi.BankAccount{{AccountNumber: "40702810000000000406", Name: "Счёт"}},
		transactions: map[string][]bankapi.TransactionRaw{},
		fetchStarted: make(chan struct{}),
		fetchRelease: make(chan struct{}),
	}
	svc, conn, _ := newSyncFixture(t, "sync-concurrent@example.com", adapter)
	from, to := syncDays(2024, 3, 1, 1)

	done := make(chan error, 1)
	go func() {
		_, err := svc.Sync(context.Background(), conn, from, to)
		done <- err
	}()

	<-adapter.fetchStarted
	_, err := svc.Sync(context.Background(), conn, from, to)
	assert.ErrorIs(t, err, ErrSyncInProgress)

	close(adapter.fetchRelease)
	require.NoError(t, <-done)

	// The lock is released after completion.
	adapter.fetchStarted = nil
	_, err = svc.Sync(context.Background(), conn, from, to)
	assert.NoError(t, err)
}

func TestTestConnectionUnsupportedBank(t *testing.T) {
	svc := NewSyncService(bankapi.NewRegistryWith())

	_, err := svc.TestConnection(context.Background(), "sberbank", "token")
	var unsupported *bankapi.ErrUnsupportedBank
	assert.ErrorAs(t, err, &unsupported)
}
