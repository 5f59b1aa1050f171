// backend/src/model/bank_transaction.go
package model

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DirectionIncome  = "income"
	DirectionExpense = "expense"
)

// BankTransaction is a canonical bank statement line, either synced from a
// bank API or imported from a PDF statement.
type BankTransaction struct {
	ID           string    `json:"id"`
	AccountID    string    `json:"accountId"`
	Date         string    `json:"date"`
	Time         string    `json:"time,omitempty"`
	Amount       string    `json:"amount"`
	Direction    string    `json:"direction"`
	Counterparty string    `json:"counterparty,omitempty"`
	Purpose      string    `json:"purpose,omitempty"`
	Balance      string    `json:"balance,omitempty"`
	PdfUploadID  string    `json:"pdfUploadId,omitempty"`
	DedupeKey    string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// DedupeKey identifies a transaction across repeated syncs of overlapping
// date ranges. A transaction carrying no time component uses "-" so that it
// never collides with one stamped at midnight.
func DedupeKey(entityID, accountID, date, timeOfDay, amount, direction, counterparty string) string {
	t := timeOfDay
	if t == "" {
		t = "-"
	}
	return strings.Join([]string{entityID, accountID, date, t, amount, direction, counterparty}, "|")
}

// InsertBankTransaction writes one transaction inside the caller's
// transaction. The dedupe_key must be set; a UNIQUE violation means the
// caller failed to check ExistsByDedupeKey first.
func InsertBankTransaction(db queryExecer, bt *BankTransaction) error {
	if bt.ID == "" {
		bt.ID = uuid.New().String()
	}
	if bt.CreatedAt.IsZero() {
		bt.CreatedAt = time.Now()
	}
	if bt.DedupeKey == "" {
		return fmt.Errorf("bank transaction %s has no dedupe key", bt.ID)
	}
	_, err := db.Exec(
		`INSERT INTO bank_transactions (id, account_id, date, time, amount, direction, counterparty, purpose, balance, pdf_upload_id, dedupe_key, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		bt.ID, bt.AccountID, bt.Date, nullIfEmpty(bt.Time), bt.Amount, bt.Direction,
		nullIfEmpty(bt.Counterparty), nullIfEmpty(bt.Purpose), nullIfEmpty(bt.Balance),
		nullIfEmpty(bt.PdfUploadID), bt.DedupeKey, bt.CreatedAt,
	)
	return err
}

// ExistsByDedupeKey reports whether a transaction with the given key was
// already stored. Runs against db or an open transaction.
func ExistsByDedupeKey(db queryExecer, key string) (bool, error) {
	var one int
	err := db.QueryRow(`SELECT 1 FROM bank_transactions WHERE dedupe_key = ?`, key).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func scanBankTransaction(scan func(dest ...interface{}) error) (*BankTransaction, error) {
	var bt BankTransaction
	var timeOfDay, counterparty, purpose, balance, pdfUploadID sql.NullString
	err := scan(&bt.ID, &bt.AccountID, &bt.Date, &timeOfDay, &bt.Amount, &bt.Direction,
		&counterparty, &purpose, &balance, &pdfUploadID, &bt.DedupeKey, &bt.CreatedAt)
	if err != nil {
		return nil, err
	}
	bt.Time = timeOfDay.String
	bt.Counterparty = counterparty.String
	bt.Purpose = purpose.String
	bt.Balance = balance.String
	bt.PdfUploadID = pdfUploadID.String
	return &bt, nil
}

// BankTransactionFilter narrows listings. Empty fields are ignored.
type BankTransactionFilter struct {
	AccountID string
	DateFrom  string
	DateTo    string
	Direction string
}

// ListBankTransactions returns the entity's transactions newest first.
func ListBankTransactions(db *sql.DB, entityID string, f BankTransactionFilter) ([]BankTransaction, error) {
	query := `SELECT t.id, t.account_id, t.date, t.time, t.amount, t.direction, t.counterparty, t.purpose, t.balance, t.pdf_upload_id, t.dedupe_key, t.created_at
		FROM bank_transactions t
		JOIN accounts a ON a.id = t.account_id
		WHERE a.entity_id = ?`
	args := []interface{}{entityID}

	if f.AccountID != "" {
		query += ` AND t.account_id = ?`
		args = append(args, f.AccountID)
	}
	if f.DateFrom != "" {
		query += ` AND t.date >= ?`
		args = append(args, f.DateFrom)
	}
	if f.DateTo != "" {
		query += ` AND t.date <= ?`
		args = append(args, f.DateTo)
	}
	if f.Direction != "" {
		query += ` AND t.direction = ?`
		args = append(args, f.Direction)
	}
	query += ` ORDER BY t.date DESC, t.time DESC`

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	txs := []BankTransaction{}
	for rows.Next() {
		bt, err := scanBankTransaction(rows.Scan)
		if err != nil {
			return nil, err
		}
		txs = append(txs, *bt)
	}
	return txs, rows.Err()
}

// CountBankTransactionsByUpload reports how many stored lines came from one
// PDF upload.
func CountBankTransactionsByUpload(db *sql.DB, pdfUploadID string) (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM bank_transactions WHERE pdf_upload_id = ?`, pdfUploadID).Scan(&n)
	return n, err
}
