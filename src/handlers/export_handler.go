// backend/src/handlers/export_handler.go
package handlers

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/asg67/finmanager/backend/src/database"
	"github.com/asg67/finmanager/backend/src/logger"
	"github.com/asg67/finmanager/backend/src/model"
	"github.com/asg67/finmanager/backend/src/security/validation"
)

// ExportHandler streams bookkeeping data as CSV attachments. Cell values
// pass through formula-injection sanitization before writing.
type ExportHandler struct{}

func NewExportHandler() *ExportHandler {
	return &ExportHandler{}
}

func csvRecord(fields ...string) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = validation.SanitizeForFormulaInjection(f)
	}
	return out
}

// ExportOperations writes the entity's manual operations for the period.
func (h *ExportHandler) ExportOperations(w http.ResponseWriter, r *http.Request) {
	entity := requireEntityAccess(w, r, chi.URLParam(r, "entityID"))
	if entity == nil {
		return
	}

	filter := model.OperationFilter{Limit: 10000}
	q := r.URL.Query()
	if from := q.Get("from"); from != "" {
		t, err := validation.ValidateDateString(from, "from")
		if err != nil {
			sendJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		filter.DateFrom = t
	}
	if to := q.Get("to"); to != "" {
		t, err := validation.ValidateDateString(to, "to")
		if err != nil {
			sendJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		filter.DateTo = t.AddDate(0, 0, 1)
	}

	ops, err := model.ListOperations(database.DB, entity.ID, filter)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to export operations", "entityID", entity.ID, "error", err)
		sendJSONError(w, "Failed to export operations", http.StatusInternalServerError)
		return
	}

	fileName := fmt.Sprintf("dds_%s_%s.csv", entity.ID, time.Now().Format("2006-01-02"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, fileName))

	cw := csv.NewWriter(w)
	cw.Write([]string{"date", "type", "amount", "from_account", "to_account", "expense_type", "order_number", "comment"})
	for _, op := range ops {
		cw.Write(csvRecord(
			op.CreatedAt.Format("2006-01-02"),
			op.OperationType,
			op.Amount,
			op.FromAccountID,
			op.ToAccountID,
			op.ExpenseTypeID,
			op.OrderNumber,
			op.Comment,
		))
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		logger.FromContext(r.Context()).Error("Failed to write CSV", "entityID", entity.ID, "error", err)
	}
}

// ExportBankTransactions writes synced and imported statement lines.
func (h *ExportHandler) ExportBankTransactions(w http.ResponseWriter, r *http.Request) {
	entity := requireEntityAccess(w, r, chi.URLParam(r, "entityID"))
	if entity == nil {
		return
	}

	filter := model.BankTransactionFilter{
		AccountID: r.URL.Query().Get("accountId"),
	}
	if from := r.URL.Query().Get("from"); from != "" {
		t, err := validation.ValidateDateString(from, "from")
		if err != nil {
			sendJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		filter.DateFrom = t.Format("2006-01-02")
	}
	if to := r.URL.Query().Get("to"); to != "" {
		t, err := validation.ValidateDateString(to, "to")
		if err != nil {
			sendJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		filter.DateTo = t.Format("2006-01-02")
	}

	transactions, err := model.ListBankTransactions(database.DB, entity.ID, filter)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to export transactions", "entityID", entity.ID, "error", err)
		sendJSONError(w, "Failed to export transactions", http.StatusInternalServerError)
		return
	}

	fileName := fmt.Sprintf("transactions_%s_%s.csv", entity.ID, time.Now().Format("2006-01-02"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, fileName))

	cw := csv.NewWriter(w)
	cw.Write([]string{"date", "time", "amount", "direction", "counterparty", "purpose", "balance"})
	for _, t := range transactions {
		cw.Write(csvRecord(
			t.Date,
			t.Time,
			t.Amount,
			t.Direction,
			t.Counterparty,
			t.Purpose,
			t.Balance,
		))
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		logger.FromContext(r.Context()).Error("Failed to write CSV", "entityID", entity.ID, "error", err)
	}
}
