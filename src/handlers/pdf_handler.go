// backend/src/handlers/pdf_handler.go
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/asg67/finmanager/backend/src/bankapi"
	"github.com/asg67/finmanager/backend/src/config"
	"github.com/asg67/finmanager/backend/src/database"
	"github.com/asg67/finmanager/backend/src/logger"
	"github.com/asg67/finmanager/backend/src/model"
	"github.com/asg67/finmanager/backend/src/security/validation"
	"github.com/asg67/finmanager/backend/src/services"
	"github.com/asg67/finmanager/backend/src/utils"
)

// PdfHandler drives the statement import flow: upload a PDF for parsing,
// review the extracted lines, then confirm or discard them.
type PdfHandler struct {
	pdfService services.PdfService
	analytics  services.AnalyticsService
}

func NewPdfHandler(pdfService services.PdfService, analytics services.AnalyticsService) *PdfHandler {
	return &PdfHandler{pdfService: pdfService, analytics: analytics}
}

func (h *PdfHandler) UploadStatement(w http.ResponseWriter, r *http.Request) {
	userID, _ := GetUserIDFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, config.Cfg.MaxUploadSizeBytes)
	if err := r.ParseMultipartForm(config.Cfg.MaxUploadSizeBytes); err != nil {
		sendJSONError(w, "File too large or malformed form", http.StatusRequestEntityTooLarge)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		sendJSONError(w, "Missing file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if err := validation.ValidateClientContentType(header.Header.Get("Content-Type")); err != nil {
		sendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := validation.ValidatePDFContent(file); err != nil {
		sendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if _, err := file.Seek(0, 0); err != nil {
		sendJSONError(w, "Failed to read file", http.StatusInternalServerError)
		return
	}

	bankCode := r.FormValue("bankCode")
	accountID := r.FormValue("accountId")
	account, err := model.GetAccountByID(database.DB, accountID)
	if err != nil {
		sendJSONError(w, "Account not found", http.StatusBadRequest)
		return
	}
	if requireEntityAccess(w, r, account.EntityID) == nil {
		return
	}

	parsed, err := h.pdfService.Upload(r.Context(), file, header.Filename, bankCode, accountID, userID)
	if err != nil {
		if errors.Is(err, services.ErrParsingFailed) {
			sendJSONError(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		logger.FromContext(r.Context()).Error("Failed to process statement upload", "error", err)
		sendJSONError(w, "Failed to process upload", http.StatusInternalServerError)
		return
	}
	logger.FromContext(r.Context()).Info("Statement uploaded",
		"uploadID", parsed.UploadID, "fileName", parsed.FileName, "lines", len(parsed.Transactions))
	utils.SendJSON(w, parsed, http.StatusCreated)
}

func (h *PdfHandler) GetParsedStatement(w http.ResponseWriter, r *http.Request) {
	userID, _ := GetUserIDFromContext(r.Context())

	parsed, err := h.pdfService.GetParsed(chi.URLParam(r, "id"), userID)
	if err != nil {
		sendJSONError(w, "Upload not found", http.StatusNotFound)
		return
	}
	utils.SendJSON(w, parsed, http.StatusOK)
}

func (h *PdfHandler) ConfirmStatement(w http.ResponseWriter, r *http.Request) {
	userID, _ := GetUserIDFromContext(r.Context())
	uploadID := chi.URLParam(r, "id")

	// The body carries the list the user reviewed, with parser mistakes
	// corrected and unwanted lines removed.
	var req struct {
		Transactions []bankapi.TransactionRaw `json:"transactions"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.pdfService.Confirm(r.Context(), uploadID, userID, req.Transactions)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidStatementLine):
			sendJSONError(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, services.ErrUploadNotPending):
			sendJSONError(w, "Upload is not pending", http.StatusConflict)
		case errors.Is(err, services.ErrPersistence):
			logger.FromContext(r.Context()).Error("Failed to save confirmed statement", "uploadID", uploadID, "error", err)
			sendJSONError(w, "Failed to save transactions", http.StatusInternalServerError)
		default:
			sendJSONError(w, "Upload not found", http.StatusNotFound)
		}
		return
	}

	if result.Saved > 0 {
		if upload, err := model.GetPdfUploadByID(database.DB, uploadID); err == nil {
			if account, err := model.GetAccountByID(database.DB, upload.AccountID); err == nil {
				h.analytics.InvalidateEntity(account.EntityID)
			}
		}
	}
	logger.FromContext(r.Context()).Info("Statement confirmed",
		"uploadID", uploadID, "total", result.Total, "saved", result.Saved, "skipped", result.Skipped)
	utils.SendJSON(w, result, http.StatusOK)
}

func (h *PdfHandler) DiscardStatement(w http.ResponseWriter, r *http.Request) {
	userID, _ := GetUserIDFromContext(r.Context())

	if err := h.pdfService.Discard(chi.URLParam(r, "id"), userID); err != nil {
		if errors.Is(err, services.ErrUploadNotPending) {
			sendJSONError(w, "Upload is not pending", http.StatusConflict)
			return
		}
		sendJSONError(w, "Upload not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *PdfHandler) ListUploads(w http.ResponseWriter, r *http.Request) {
	userID, _ := GetUserIDFromContext(r.Context())

	uploads, err := model.ListPdfUploadsByUser(database.DB, userID)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to list uploads", "error", err)
		sendJSONError(w, "Failed to list uploads", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, uploads, http.StatusOK)
}
