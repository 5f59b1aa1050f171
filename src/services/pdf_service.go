// backend/src/services/pdf_service.go
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/asg67/finmanager/backend/src/bankapi"
	"github.com/asg67/finmanager/backend/src/config"
	"github.com/asg67/finmanager/backend/src/database"
	"github.com/asg67/finmanager/backend/src/logger"
	"github.com/asg67/finmanager/backend/src/model"
	"github.com/asg67/finmanager/backend/src/security/validation"
)

const (
	ckParsedStatement = "pdf_parsed_%s"
	// Parsed statements wait in memory until the user confirms or the
	// review window lapses.
	parsedStatementTTL = 1 * time.Hour
)

type pdfServiceImpl struct {
	serviceURL string
	client     *http.Client
	parsed     *cache.Cache
}

func NewPdfService() PdfService {
	return &pdfServiceImpl{
		serviceURL: strings.TrimSuffix(config.Cfg.PDFServiceURL, "/"),
		client:     &http.Client{Timeout: 60 * time.Second},
		parsed:     cache.New(parsedStatementTTL, 2*parsedStatementTTL),
	}
}

func (s *pdfServiceImpl) Upload(ctx context.Context, file io.Reader, fileName, bankCode, accountID, userID string) (*ParsedStatement, error) {
	account, err := model.GetAccountByID(database.DB, accountID)
	if err != nil {
		return nil, fmt.Errorf("account %s not found: %w", accountID, err)
	}

	transactions, err := s.parse(ctx, file, fileName, bankCode)
	if err != nil {
		return nil, err
	}

	upload, err := model.CreatePdfUpload(database.DB, fileName, bankCode, accountID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to record pdf upload: %w", err)
	}

	// Annotate each line so the review screen can show what is already
	// booked from an earlier sync or import.
	preview := make([]PreviewTransaction, 0, len(transactions))
	duplicates := 0
	for _, raw := range transactions {
		key := model.DedupeKey(account.EntityID, account.ID, raw.Date, raw.Time, raw.Amount, raw.Direction, raw.Counterparty)
		exists, err := model.ExistsByDedupeKey(database.DB, key)
		if err != nil {
			return nil, fmt.Errorf("checking dedupe key: %w", err)
		}
		if exists {
			duplicates++
		}
		preview = append(preview, PreviewTransaction{TransactionRaw: raw, DedupeKey: key, IsDuplicate: exists})
	}

	parsed := &ParsedStatement{
		UploadID:       upload.ID,
		FileName:       fileName,
		BankCode:       bankCode,
		AccountID:      accountID,
		Transactions:   preview,
		DuplicateCount: duplicates,
	}
	s.parsed.Set(fmt.Sprintf(ckParsedStatement, upload.ID), parsed, parsedStatementTTL)

	logger.L.Info("pdf parsed", "uploadID", upload.ID, "bank", bankCode, "lines", len(preview), "duplicates", duplicates)
	return parsed, nil
}

// parse ships the file to the PDF service and decodes the extracted lines.
func (s *pdfServiceImpl) parse(ctx context.Context, file io.Reader, fileName, bankCode string) ([]bankapi.TransactionRaw, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", fileName)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, err
	}
	if err := writer.WriteField("bank_code", bankCode); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.serviceURL+"/parse", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: pdf service unreachable: %v", ErrParsingFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errBody struct {
			Detail string `json:"detail"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		if errBody.Detail == "" {
			errBody.Detail = fmt.Sprintf("pdf service status %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: %s", ErrParsingFailed, errBody.Detail)
	}

	var result struct {
		Transactions []bankapi.TransactionRaw `json:"transactions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: bad pdf service response: %v", ErrParsingFailed, err)
	}
	return result.Transactions, nil
}

func (s *pdfServiceImpl) GetParsed(uploadID, userID string) (*ParsedStatement, error) {
	upload, err := model.GetPdfUploadByID(database.DB, uploadID)
	if err != nil || upload.UserID != userID {
		return nil, fmt.Errorf("upload %s not found", uploadID)
	}
	cached, found := s.parsed.Get(fmt.Sprintf(ckParsedStatement, uploadID))
	if !found {
		return nil, fmt.Errorf("parsed statement for upload %s expired", uploadID)
	}
	return cached.(*ParsedStatement), nil
}

// validateStatementLine checks one confirmed transaction against the
// canonical shape and normalizes its fields in place.
func validateStatementLine(i int, raw *bankapi.TransactionRaw) error {
	if _, err := validation.ValidateDateString(raw.Date, "date"); err != nil {
		return fmt.Errorf("%w: line %d: %v", ErrInvalidStatementLine, i+1, err)
	}
	if raw.Time != "" {
		if _, err := time.Parse("15:04:05", raw.Time); err != nil {
			return fmt.Errorf("%w: line %d: time must be HH:MM:SS", ErrInvalidStatementLine, i+1)
		}
	}
	amount, err := validation.ValidateAmountString(raw.Amount, "amount")
	if err != nil {
		return fmt.Errorf("%w: line %d: %v", ErrInvalidStatementLine, i+1, err)
	}
	raw.Amount = amount
	if raw.Direction != bankapi.DirectionIncome && raw.Direction != bankapi.DirectionExpense {
		return fmt.Errorf("%w: line %d: direction must be income or expense", ErrInvalidStatementLine, i+1)
	}
	raw.Counterparty = validation.SanitizeText(strings.TrimSpace(raw.Counterparty))
	raw.Purpose = validation.SanitizeText(strings.TrimSpace(raw.Purpose))
	return nil
}

// Confirm moves the user-confirmed statement lines into bank_transactions.
// The caller submits the list it reviewed, with corrections and
// deselections applied; the cached parse is only a preview. The inserts
// and the status flip share one database transaction, so a failure leaves
// the upload pending and the table untouched.
func (s *pdfServiceImpl) Confirm(ctx context.Context, uploadID, userID string, transactions []bankapi.TransactionRaw) (*ConfirmResult, error) {
	upload, err := model.GetPdfUploadByID(database.DB, uploadID)
	if err != nil || upload.UserID != userID {
		return nil, fmt.Errorf("upload %s not found", uploadID)
	}
	if upload.Status != model.PdfStatusPending {
		return nil, ErrUploadNotPending
	}
	if len(transactions) == 0 {
		return nil, fmt.Errorf("%w: no transactions submitted", ErrInvalidStatementLine)
	}
	for i := range transactions {
		if err := validateStatementLine(i, &transactions[i]); err != nil {
			return nil, err
		}
	}

	account, err := model.GetAccountByID(database.DB, upload.AccountID)
	if err != nil {
		return nil, fmt.Errorf("account %s not found: %w", upload.AccountID, err)
	}

	dbTx, err := database.DB.Begin()
	if err != nil {
		return nil, fmt.Errorf("error beginning database transaction: %w", err)
	}
	defer dbTx.Rollback()

	saved, skipped := 0, 0
	for _, raw := range transactions {
		key := model.DedupeKey(account.EntityID, account.ID, raw.Date, raw.Time, raw.Amount, raw.Direction, raw.Counterparty)
		exists, err := model.ExistsByDedupeKey(dbTx, key)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
		}
		if exists {
			skipped++
			continue
		}
		bt := &model.BankTransaction{
			AccountID:    account.ID,
			Date:         raw.Date,
			Time:         raw.Time,
			Amount:       raw.Amount,
			Direction:    raw.Direction,
			Counterparty: raw.Counterparty,
			Purpose:      raw.Purpose,
			Balance:      raw.Balance,
			PdfUploadID:  upload.ID,
			DedupeKey:    key,
		}
		if err := model.InsertBankTransaction(dbTx, bt); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
		}
		saved++
	}

	if err := upload.SetStatus(dbTx, model.PdfStatusConfirmed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if err := dbTx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	s.parsed.Delete(fmt.Sprintf(ckParsedStatement, uploadID))
	logger.L.Info("pdf import confirmed", "uploadID", uploadID, "total", len(transactions), "saved", saved, "skipped", skipped)
	return &ConfirmResult{Total: len(transactions), Saved: saved, Skipped: skipped}, nil
}

func (s *pdfServiceImpl) Discard(uploadID, userID string) error {
	upload, err := model.GetPdfUploadByID(database.DB, uploadID)
	if err != nil || upload.UserID != userID {
		return fmt.Errorf("upload %s not found", uploadID)
	}
	if upload.Status != model.PdfStatusPending {
		return ErrUploadNotPending
	}
	if err := upload.SetStatus(database.DB, model.PdfStatusDiscarded); err != nil {
		return err
	}
	s.parsed.Delete(fmt.Sprintf(ckParsedStatement, uploadID))
	return nil
}
