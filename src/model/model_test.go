package model

import (
	"database/sql"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asg67/finmanager/backend/src/database"
	"github.com/asg67/finmanager/backend/src/logger"
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

// newTestEntity creates an owner user plus an entity for it.
func newTestEntity(t *testing.T, email string) (*User, *Entity) {
	t.Helper()
	user := &User{Email: email, Name: "Test", Role: RoleOwner}
	require.NoError(t, user.HashPassword("secret123"))
	require.NoError(t, user.CreateUser(database.DB))
	entity, err := CreateEntity(database.DB, "ООО Тест", user.ID)
	require.NoError(t, err)
	return user, entity
}

func newTestAccount(t *testing.T, entityID, number string) *Account {
	t.Helper()
	account := &Account{
		EntityID:      entityID,
		Name:          "р/с " + number,
		Type:          AccountTypeChecking,
		AccountNumber: number,
		Source:        AccountSourceBankSync,
	}
	require.NoError(t, CreateAccount(database.DB, account))
	return account
}

func TestDedupeKey(t *testing.T) {
	base := DedupeKey("e1", "a1", "2024-03-01", "10:30:00", "100.00", DirectionIncome, "ООО Ромашка")
	same := DedupeKey("e1", "a1", "2024-03-01", "10:30:00", "100.00", DirectionIncome, "ООО Ромашка")
	assert.Equal(t, base, same)

	// A missing time must not collide with midnight.
	noTime := DedupeKey("e1", "a1", "2024-03-01", "", "100.00", DirectionIncome, "ООО Ромашка")
	midnight := DedupeKey("e1", "a1", "2024-03-01", "00:00:00", "100.00", DirectionIncome, "ООО Ромашка")
	assert.NotEqual(t, noTime, midnight)
	assert.Contains(t, noTime, "|-|")

	assert.NotEqual(t, base, DedupeKey("e1", "a2", "2024-03-01", "10:30:00", "100.00", DirectionIncome, "ООО Ромашка"))
	assert.NotEqual(t, base, DedupeKey("e1", "a1", "2024-03-01", "10:30:00", "100.00", DirectionExpense, "ООО Ромашка"))
}

func TestInsertBankTransactionDedup(t *testing.T) {
	_, entity := newTestEntity(t, "dedup@example.com")
	account := newTestAccount(t, entity.ID, "40702810000000000301")

	key := DedupeKey(entity.ID, account.ID, "2024-03-01", "10:30:00", "100.00", DirectionIncome, "ООО Ромашка")
	bt := &BankTransaction{
		AccountID:    account.ID,
		Date:         "2024-03-01",
		Time:         "10:30:00",
		Amount:       "100.00",
		Direction:    DirectionIncome,
		Counterparty: "ООО Ромашка",
		DedupeKey:    key,
	}
	require.NoError(t, InsertBankTransaction(database.DB, bt))

	exists, err := ExistsByDedupeKey(database.DB, key)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = ExistsByDedupeKey(database.DB, key+"x")
	require.NoError(t, err)
	assert.False(t, exists)

	// Rows differing only in purpose share a key; the UNIQUE constraint is
	// the last line of defense.
	dup := &BankTransaction{
		AccountID: account.ID,
		Date:      "2024-03-01",
		Time:      "10:30:00",
		Amount:    "100.00",
		Direction: DirectionIncome,
		Purpose:   "другое назначение",
		DedupeKey: key,
	}
	assert.Error(t, InsertBankTransaction(database.DB, dup))

	// Missing dedupe key is rejected before touching the database.
	assert.Error(t, InsertBankTransaction(database.DB, &BankTransaction{AccountID: account.ID, Date: "2024-03-02", Amount: "1.00", Direction: DirectionIncome}))
}

func TestListBankTransactionsFilters(t *testing.T) {
	_, entity := newTestEntity(t, "list@example.com")
	account := newTestAccount(t, entity.ID, "40702810000000000302")
	other := newTestAccount(t, entity.ID, "40702810000000000303")

	rows := []*BankTransaction{
		{AccountID: account.ID, Date: "2024-03-01", Amount: "10.00", Direction: DirectionIncome},
		{AccountID: account.ID, Date: "2024-03-05", Amount: "20.00", Direction: DirectionExpense},
		{AccountID: other.ID, Date: "2024-03-07", Amount: "30.00", Direction: DirectionExpense},
	}
	for _, bt := range rows {
		bt.DedupeKey = DedupeKey(entity.ID, bt.AccountID, bt.Date, bt.Time, bt.Amount, bt.Direction, bt.Counterparty)
		require.NoError(t, InsertBankTransaction(database.DB, bt))
	}

	all, err := ListBankTransactions(database.DB, entity.ID, BankTransactionFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)
	// Newest first.
	assert.Equal(t, "2024-03-07", all[0].Date)

	byAccount, err := ListBankTransactions(database.DB, entity.ID, BankTransactionFilter{AccountID: account.ID})
	require.NoError(t, err)
	assert.Len(t, byAccount, 2)

	expenses, err := ListBankTransactions(database.DB, entity.ID, BankTransactionFilter{Direction: DirectionExpense})
	require.NoError(t, err)
	assert.Len(t, expenses, 2)

	ranged, err := ListBankTransactions(database.DB, entity.ID, BankTransactionFilter{DateFrom: "2024-03-02", DateTo: "2024-03-06"})
	require.NoError(t, err)
	require.Len(t, ranged, 1)
	assert.Equal(t, "20.00", ranged[0].Amount)
}

func TestFindAccountByNumber(t *testing.T) {
	_, entity := newTestEntity(t, "find@example.com")
	account := newTestAccount(t, entity.ID, "40702810000000000304")

	found, err := FindAccountByNumber(database.DB, entity.ID, "40702810000000000304")
	require.NoError(t, err)
	assert.Equal(t, account.ID, found.ID)

	_, err = FindAccountByNumber(database.DB, entity.ID, "00000000000000000000")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestUserCanAccessEntity(t *testing.T) {
	owner, entity := newTestEntity(t, "owner-access@example.com")

	ok, err := UserCanAccessEntity(database.DB, owner, entity.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	employee := &User{Email: "emp-access@example.com", Name: "Emp", Role: RoleEmployee, OwnerID: owner.ID}
	require.NoError(t, employee.HashPassword("secret123"))
	require.NoError(t, employee.CreateUser(database.DB))

	ok, err = UserCanAccessEntity(database.DB, employee, entity.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	tx, err := database.DB.Begin()
	require.NoError(t, err)
	require.NoError(t, ReplaceEntityAccess(tx, employee.ID, []string{entity.ID}))
	require.NoError(t, tx.Commit())

	ok, err = UserCanAccessEntity(database.DB, employee, entity.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	// A different owner's entity stays invisible.
	_, foreign := newTestEntity(t, "other-owner@example.com")
	ok, err = UserCanAccessEntity(database.DB, owner, foreign.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMarkReminderSentGate(t *testing.T) {
	first, err := MarkReminderSent(database.DB, "2024-06-02", "statement")
	require.NoError(t, err)
	assert.True(t, first)

	again, err := MarkReminderSent(database.DB, "2024-06-02", "statement")
	require.NoError(t, err)
	assert.False(t, again)

	// A different kind on the same day is independent.
	autoSync, err := MarkReminderSent(database.DB, "2024-06-02", "auto_sync")
	require.NoError(t, err)
	assert.True(t, autoSync)
}

func TestBankConnectionMaskedToken(t *testing.T) {
	c := &BankConnection{Token: "t.abcdef123456"}
	assert.Equal(t, "t.ab****", c.MaskedToken())

	short := &BankConnection{Token: "abc"}
	assert.Equal(t, "****", short.MaskedToken())
}
