// backend/src/model/pdf_upload.go
package model

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

const (
	PdfStatusPending   = "pending"
	PdfStatusConfirmed = "confirmed"
	PdfStatusDiscarded = "discarded"
)

// PdfUpload tracks one uploaded bank statement through the
// parse / review / confirm flow.
type PdfUpload struct {
	ID        string    `json:"id"`
	FileName  string    `json:"fileName"`
	BankCode  string    `json:"bankCode"`
	AccountID string    `json:"accountId"`
	Status    string    `json:"status"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
}

func CreatePdfUpload(db *sql.DB, fileName, bankCode, accountID, userID string) (*PdfUpload, error) {
	u := &PdfUpload{
		ID:        uuid.New().String(),
		FileName:  fileName,
		BankCode:  bankCode,
		AccountID: accountID,
		Status:    PdfStatusPending,
		UserID:    userID,
		CreatedAt: time.Now(),
	}
	_, err := db.Exec(
		`INSERT INTO pdf_uploads (id, file_name, bank_code, account_id, status, user_id, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.FileName, u.BankCode, u.AccountID, u.Status, u.UserID, u.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func GetPdfUploadByID(db *sql.DB, id string) (*PdfUpload, error) {
	row := db.QueryRow(
		`SELECT id, file_name, bank_code, account_id, status, user_id, created_at FROM pdf_uploads WHERE id = ?`, id,
	)
	var u PdfUpload
	err := row.Scan(&u.ID, &u.FileName, &u.BankCode, &u.AccountID, &u.Status, &u.UserID, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// SetStatus runs inside the caller's transaction when confirming, so the
// status flip and the inserted transactions commit together.
func (u *PdfUpload) SetStatus(db queryExecer, status string) error {
	u.Status = status
	_, err := db.Exec(`UPDATE pdf_uploads SET status = ? WHERE id = ?`, status, u.ID)
	return err
}

func ListPdfUploadsByUser(db *sql.DB, userID string) ([]PdfUpload, error) {
	rows, err := db.Query(
		`SELECT id, file_name, bank_code, account_id, status, user_id, created_at FROM pdf_uploads WHERE user_id = ? ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	uploads := []PdfUpload{}
	for rows.Next() {
		var u PdfUpload
		if err := rows.Scan(&u.ID, &u.FileName, &u.BankCode, &u.AccountID, &u.Status, &u.UserID, &u.CreatedAt); err != nil {
			return nil, err
		}
		uploads = append(uploads, u)
	}
	return uploads, rows.Err()
}
