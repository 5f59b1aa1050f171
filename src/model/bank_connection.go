package model

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

const (
	SyncStatusSuccess = "success"
	SyncStatusError   = "error"
)

// BankConnection stores an API token for one bank within one entity.
// The token is never serialized; handlers expose MaskedToken instead.
type BankConnection struct {
	ID             string     `json:"id"`
	EntityID       string     `json:"entityId"`
	BankCode       string     `json:"bankCode"`
	Token          string     `json:"-"`
	Label          string     `json:"label,omitempty"`
	LastSyncAt     *time.Time `json:"lastSyncAt,omitempty"`
	LastSyncStatus string     `json:"lastSyncStatus,omitempty"`
	LastSyncError  string     `json:"lastSyncError,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// MaskedToken returns the first four characters of the token followed by
// asterisks, for display and logs.
func (c *BankConnection) MaskedToken() string {
	if len(c.Token) <= 4 {
		return "****"
	}
	return c.Token[:4] + "****"
}

func CreateBankConnection(db *sql.DB, entityID, bankCode, token, label string) (*BankConnection, error) {
	c := &BankConnection{
		ID:        uuid.New().String(),
		EntityID:  entityID,
		BankCode:  bankCode,
		Token:     token,
		Label:     label,
		CreatedAt: time.Now(),
	}
	_, err := db.Exec(
		`INSERT INTO bank_connections (id, entity_id, bank_code, token, label, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.EntityID, c.BankCode, c.Token, c.Label, c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

const bankConnectionColumns = `id, entity_id, bank_code, token, label, last_sync_at, last_sync_status, last_sync_error, created_at`

func scanBankConnection(scan func(dest ...interface{}) error) (*BankConnection, error) {
	var c BankConnection
	var label, status, syncErr sql.NullString
	var lastSyncAt sql.NullTime
	err := scan(&c.ID, &c.EntityID, &c.BankCode, &c.Token, &label, &lastSyncAt, &status, &syncErr, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	c.Label = label.String
	c.LastSyncStatus = status.String
	c.LastSyncError = syncErr.String
	if lastSyncAt.Valid {
		t := lastSyncAt.Time
		c.LastSyncAt = &t
	}
	return &c, nil
}

func GetBankConnectionByID(db *sql.DB, id string) (*BankConnection, error) {
	row := db.QueryRow(`SELECT `+bankConnectionColumns+` FROM bank_connections WHERE id = ?`, id)
	return scanBankConnection(row.Scan)
}

func ListBankConnectionsByEntity(db *sql.DB, entityID string) ([]BankConnection, error) {
	rows, err := db.Query(
		`SELECT `+bankConnectionColumns+` FROM bank_connections WHERE entity_id = ? ORDER BY created_at ASC`,
		entityID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	conns := []BankConnection{}
	for rows.Next() {
		c, err := scanBankConnection(rows.Scan)
		if err != nil {
			return nil, err
		}
		conns = append(conns, *c)
	}
	return conns, rows.Err()
}

// ListAllBankConnections returns every connection in the system. Used by the
// background auto-sync sweep.
func ListAllBankConnections(db *sql.DB) ([]BankConnection, error) {
	rows, err := db.Query(`SELECT ` + bankConnectionColumns + ` FROM bank_connections ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	conns := []BankConnection{}
	for rows.Next() {
		c, err := scanBankConnection(rows.Scan)
		if err != nil {
			return nil, err
		}
		conns = append(conns, *c)
	}
	return conns, rows.Err()
}

func (c *BankConnection) UpdateToken(db *sql.DB, token, label string) error {
	c.Token = token
	c.Label = label
	_, err := db.Exec(`UPDATE bank_connections SET token = ?, label = ? WHERE id = ?`, c.Token, c.Label, c.ID)
	return err
}

// RecordSyncResult updates the last-sync bookkeeping columns. errMsg is
// empty on success.
func (c *BankConnection) RecordSyncResult(db *sql.DB, status, errMsg string) error {
	now := time.Now()
	c.LastSyncAt = &now
	c.LastSyncStatus = status
	c.LastSyncError = errMsg
	_, err := db.Exec(
		`UPDATE bank_connections SET last_sync_at = ?, last_sync_status = ?, last_sync_error = ? WHERE id = ?`,
		now, status, errMsg, c.ID,
	)
	return err
}

func DeleteBankConnection(db *sql.DB, id string) error {
	_, err := db.Exec(`DELETE FROM bank_connections WHERE id = ?`, id)
	return err
}
