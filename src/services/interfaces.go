// backend/src/services/interfaces.go
package services

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/asg67/finmanager/backend/src/bankapi"
	"github.com/asg67/finmanager/backend/src/model"
)

// Define common service errors
var (
	// ErrSyncInProgress means another sync for the same connection is
	// still running; the caller should retry later.
	ErrSyncInProgress = errors.New("sync already in progress for this connection")
	// ErrAccountNotFound means the requested account is not among those
	// the bank reports for the connection's token.
	ErrAccountNotFound = errors.New("account not found at bank")
	// ErrPersistence wraps database failures during a sync.
	ErrPersistence = errors.New("failed to persist sync results")
	// ErrParsingFailed means the PDF service could not extract statement
	// lines from the uploaded file.
	ErrParsingFailed = errors.New("pdf parsing failed")
	// ErrUploadNotPending means the upload was already confirmed or
	// discarded.
	ErrUploadNotPending = errors.New("upload is not pending")
	// ErrInvalidStatementLine means a confirmed transaction does not match
	// the canonical statement shape.
	ErrInvalidStatementLine = errors.New("invalid statement line")
)

// SyncResult summarizes one completed sync run.
type SyncResult struct {
	Fetched  int       `json:"fetched"`
	Saved    int       `json:"saved"`
	Skipped  int       `json:"skipped"`
	Accounts int       `json:"accounts"`
	From     string    `json:"from"`
	To       string    `json:"to"`
	SyncedAt time.Time `json:"syncedAt"`
}

// SyncService pulls statements from bank APIs into the local store.
type SyncService interface {
	// TestConnection checks a token against a bank before the
	// connection is stored.
	TestConnection(ctx context.Context, bankCode, token string) (bool, error)
	// ListBankAccounts lists the accounts the bank reports for a stored
	// connection.
	ListBankAccounts(ctx context.Context, conn *model.BankConnection) ([]bankapi.BankAccount, error)
	// Sync fetches and stores transactions for every account of the
	// connection over the inclusive [from, to] range.
	Sync(ctx context.Context, conn *model.BankConnection, from, to time.Time) (*SyncResult, error)
	// SyncAccount does the same for a single account number.
	SyncAccount(ctx context.Context, conn *model.BankConnection, accountNumber string, from, to time.Time) (*SyncResult, error)
}

// PreviewTransaction is one extracted statement line annotated for the
// review step: its dedupe key and whether that key is already booked.
type PreviewTransaction struct {
	bankapi.TransactionRaw
	DedupeKey   string `json:"dedupeKey"`
	IsDuplicate bool   `json:"isDuplicate"`
}

// ParsedStatement is what the PDF service extracted from one upload,
// held for review until the user confirms or discards it.
type ParsedStatement struct {
	UploadID       string               `json:"uploadId"`
	FileName       string               `json:"fileName"`
	BankCode       string               `json:"bankCode"`
	AccountID      string               `json:"accountId"`
	Transactions   []PreviewTransaction `json:"transactions"`
	DuplicateCount int                  `json:"duplicateCount"`
}

// ConfirmResult summarizes a confirmed PDF import.
type ConfirmResult struct {
	Total   int `json:"total"`
	Saved   int `json:"saved"`
	Skipped int `json:"skipped"`
}

// PdfService handles the statement PDF import flow: upload and parse,
// review, then confirm into bank_transactions. Confirm persists the
// list the user submits, not the cached parse, so corrections and
// deselections made during review are what get booked.
type PdfService interface {
	Upload(ctx context.Context, file io.Reader, fileName, bankCode, accountID, userID string) (*ParsedStatement, error)
	GetParsed(uploadID, userID string) (*ParsedStatement, error)
	Confirm(ctx context.Context, uploadID, userID string, transactions []bankapi.TransactionRaw) (*ConfirmResult, error)
	Discard(uploadID, userID string) error
}
