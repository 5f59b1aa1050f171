package model

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	AccountTypeChecking = "checking"
	AccountTypeCard     = "card"
	AccountTypeCash     = "cash"
	AccountTypeDeposit  = "deposit"

	AccountSourceManual   = "manual"
	AccountSourceBankSync = "bank_sync"
)

// Account is a money store under an entity: a bank account, card, cash box or deposit.
type Account struct {
	ID            string    `json:"id"`
	EntityID      string    `json:"entityId"`
	Name          string    `json:"name"`
	Type          string    `json:"type"`
	Bank          string    `json:"bank,omitempty"`
	AccountNumber string    `json:"accountNumber,omitempty"`
	Source        string    `json:"source"`
	CreatedAt     time.Time `json:"createdAt"`
}

func ValidAccountType(t string) bool {
	switch t {
	case AccountTypeChecking, AccountTypeCard, AccountTypeCash, AccountTypeDeposit:
		return true
	}
	return false
}

func CreateAccount(db queryExecer, a *Account) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.Source == "" {
		a.Source = AccountSourceManual
	}
	a.CreatedAt = time.Now()

	var bankArg, numberArg interface{}
	if a.Bank != "" {
		bankArg = a.Bank
	}
	if a.AccountNumber != "" {
		numberArg = a.AccountNumber
	}

	_, err := db.Exec(
		`INSERT INTO accounts (id, entity_id, name, type, bank, account_number, source, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.EntityID, a.Name, a.Type, bankArg, numberArg, a.Source, a.CreatedAt,
	)
	return err
}

// queryExecer is satisfied by both *sql.DB and *sql.Tx so account lookups and
// inserts can participate in the sync transaction.
type queryExecer interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

func scanAccount(row *sql.Row) (*Account, error) {
	var a Account
	var bank, number sql.NullString
	err := row.Scan(&a.ID, &a.EntityID, &a.Name, &a.Type, &bank, &number, &a.Source, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, err
	}
	a.Bank = bank.String
	a.AccountNumber = number.String
	return &a, nil
}

const accountColumns = `id, entity_id, name, type, bank, account_number, source, created_at`

func GetAccountByID(db queryExecer, id string) (*Account, error) {
	return scanAccount(db.QueryRow(`SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id))
}

// FindAccountByNumber looks up an account under the entity by its bank-assigned number.
func FindAccountByNumber(db queryExecer, entityID, accountNumber string) (*Account, error) {
	return scanAccount(db.QueryRow(
		`SELECT `+accountColumns+` FROM accounts WHERE entity_id = ? AND account_number = ?`,
		entityID, accountNumber,
	))
}

func ListAccountsByEntity(db *sql.DB, entityID string) ([]Account, error) {
	rows, err := db.Query(`SELECT `+accountColumns+` FROM accounts WHERE entity_id = ? ORDER BY created_at ASC`, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		var a Account
		var bank, number sql.NullString
		if err := rows.Scan(&a.ID, &a.EntityID, &a.Name, &a.Type, &bank, &number, &a.Source, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.Bank = bank.String
		a.AccountNumber = number.String
		accounts = append(accounts, a)
	}
	if accounts == nil {
		accounts = []Account{}
	}
	return accounts, rows.Err()
}

func (a *Account) Update(db *sql.DB) error {
	var bankArg, numberArg interface{}
	if a.Bank != "" {
		bankArg = a.Bank
	}
	if a.AccountNumber != "" {
		numberArg = a.AccountNumber
	}
	_, err := db.Exec(
		`UPDATE accounts SET name = ?, type = ?, bank = ?, account_number = ? WHERE id = ?`,
		a.Name, a.Type, bankArg, numberArg, a.ID,
	)
	return err
}

func DeleteAccount(db *sql.DB, id string) error {
	_, err := db.Exec(`DELETE FROM accounts WHERE id = ?`, id)
	return err
}
