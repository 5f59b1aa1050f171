// backend/src/handlers/operation_handler.go
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/asg67/finmanager/backend/src/database"
	"github.com/asg67/finmanager/backend/src/logger"
	"github.com/asg67/finmanager/backend/src/model"
	"github.com/asg67/finmanager/backend/src/security/validation"
	"github.com/asg67/finmanager/backend/src/utils"
)

// OperationHandler manages manual money-movement records and their form
// templates.
type OperationHandler struct{}

func NewOperationHandler() *OperationHandler {
	return &OperationHandler{}
}

type operationRequest struct {
	OperationType    string `json:"operationType"`
	Amount           string `json:"amount"`
	FromAccountID    string `json:"fromAccountId"`
	ToAccountID      string `json:"toAccountId"`
	ExpenseTypeID    string `json:"expenseTypeId"`
	ExpenseArticleID string `json:"expenseArticleId"`
	OrderNumber      string `json:"orderNumber"`
	Comment          string `json:"comment"`
}

func (req *operationRequest) validate() (string, bool) {
	if !model.ValidOperationType(req.OperationType) {
		return "Invalid operation type", false
	}
	amount, err := validation.ValidateAmountString(req.Amount, "Amount")
	if err != nil {
		return err.Error(), false
	}
	req.Amount = amount

	switch req.OperationType {
	case model.OperationIncome:
		if req.ToAccountID == "" {
			return "toAccountId is required for income", false
		}
	case model.OperationExpense:
		if req.FromAccountID == "" {
			return "fromAccountId is required for expense", false
		}
	case model.OperationTransfer:
		if req.FromAccountID == "" || req.ToAccountID == "" {
			return "transfer requires both accounts", false
		}
		if req.FromAccountID == req.ToAccountID {
			return "transfer accounts must differ", false
		}
	}

	req.OrderNumber = validation.SanitizeText(strings.TrimSpace(req.OrderNumber))
	req.Comment = validation.SanitizeText(strings.TrimSpace(req.Comment))
	if err := validation.ValidateStringMaxLength(req.Comment, 1000, "Comment"); err != nil {
		return err.Error(), false
	}
	return "", true
}

// checkAccounts verifies referenced accounts belong to the entity.
func (req *operationRequest) checkAccounts(entityID string) bool {
	for _, accID := range []string{req.FromAccountID, req.ToAccountID} {
		if accID == "" {
			continue
		}
		account, err := model.GetAccountByID(database.DB, accID)
		if err != nil || account.EntityID != entityID {
			return false
		}
	}
	return true
}

func (h *OperationHandler) ListOperations(w http.ResponseWriter, r *http.Request) {
	entity := requireEntityAccess(w, r, chi.URLParam(r, "entityID"))
	if entity == nil {
		return
	}

	q := r.URL.Query()
	filter := model.OperationFilter{
		OperationType: q.Get("type"),
		AccountID:     q.Get("accountId"),
		ExpenseTypeID: q.Get("expenseTypeId"),
	}
	if from := q.Get("from"); from != "" {
		t, err := time.Parse("2006-01-02", from)
		if err != nil {
			sendJSONError(w, "Invalid from date", http.StatusBadRequest)
			return
		}
		filter.DateFrom = t
	}
	if to := q.Get("to"); to != "" {
		t, err := time.Parse("2006-01-02", to)
		if err != nil {
			sendJSONError(w, "Invalid to date", http.StatusBadRequest)
			return
		}
		filter.DateTo = t.AddDate(0, 0, 1)
	}
	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit < 1 || limit > 100 {
		limit = 20
	}
	filter.Limit = limit
	filter.Offset = (page - 1) * limit

	ops, err := model.ListOperations(database.DB, entity.ID, filter)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to list operations", "entityID", entity.ID, "error", err)
		sendJSONError(w, "Failed to list operations", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, map[string]interface{}{
		"data":  ops,
		"page":  page,
		"limit": limit,
	}, http.StatusOK)
}

func (h *OperationHandler) CreateOperation(w http.ResponseWriter, r *http.Request) {
	entity := requireEntityAccess(w, r, chi.URLParam(r, "entityID"))
	if entity == nil {
		return
	}
	userID, _ := GetUserIDFromContext(r.Context())

	var req operationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if msg, ok := req.validate(); !ok {
		sendJSONError(w, msg, http.StatusBadRequest)
		return
	}
	if !req.checkAccounts(entity.ID) {
		sendJSONError(w, "Account not found", http.StatusBadRequest)
		return
	}

	op := &model.Operation{
		OperationType:    req.OperationType,
		Amount:           req.Amount,
		EntityID:         entity.ID,
		FromAccountID:    req.FromAccountID,
		ToAccountID:      req.ToAccountID,
		ExpenseTypeID:    req.ExpenseTypeID,
		ExpenseArticleID: req.ExpenseArticleID,
		OrderNumber:      req.OrderNumber,
		Comment:          req.Comment,
		UserID:           userID,
	}
	if err := model.CreateOperation(database.DB, op); err != nil {
		logger.FromContext(r.Context()).Error("Failed to create operation", "entityID", entity.ID, "error", err)
		sendJSONError(w, "Failed to create operation", http.StatusInternalServerError)
		return
	}
	logger.FromContext(r.Context()).Info("Operation created", "operationID", op.ID, "type", op.OperationType)
	utils.SendJSON(w, op, http.StatusCreated)
}

func (h *OperationHandler) UpdateOperation(w http.ResponseWriter, r *http.Request) {
	entity := requireEntityAccess(w, r, chi.URLParam(r, "entityID"))
	if entity == nil {
		return
	}
	op, err := model.GetOperationByID(database.DB, chi.URLParam(r, "id"))
	if err != nil || op.EntityID != entity.ID {
		sendJSONError(w, "Operation not found", http.StatusNotFound)
		return
	}

	var req operationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if msg, ok := req.validate(); !ok {
		sendJSONError(w, msg, http.StatusBadRequest)
		return
	}
	if !req.checkAccounts(entity.ID) {
		sendJSONError(w, "Account not found", http.StatusBadRequest)
		return
	}

	op.OperationType = req.OperationType
	op.Amount = req.Amount
	op.FromAccountID = req.FromAccountID
	op.ToAccountID = req.ToAccountID
	op.ExpenseTypeID = req.ExpenseTypeID
	op.ExpenseArticleID = req.ExpenseArticleID
	op.OrderNumber = req.OrderNumber
	op.Comment = req.Comment
	if err := op.Update(database.DB); err != nil {
		logger.FromContext(r.Context()).Error("Failed to update operation", "operationID", op.ID, "error", err)
		sendJSONError(w, "Failed to update operation", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, op, http.StatusOK)
}

func (h *OperationHandler) DeleteOperation(w http.ResponseWriter, r *http.Request) {
	entity := requireEntityAccess(w, r, chi.URLParam(r, "entityID"))
	if entity == nil {
		return
	}
	op, err := model.GetOperationByID(database.DB, chi.URLParam(r, "id"))
	if err != nil || op.EntityID != entity.ID {
		sendJSONError(w, "Operation not found", http.StatusNotFound)
		return
	}
	if err := model.DeleteOperation(database.DB, op.ID); err != nil {
		logger.FromContext(r.Context()).Error("Failed to delete operation", "operationID", op.ID, "error", err)
		sendJSONError(w, "Failed to delete operation", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *OperationHandler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	entity := requireEntityAccess(w, r, chi.URLParam(r, "entityID"))
	if entity == nil {
		return
	}
	templates, err := model.ListOperationTemplates(database.DB, entity.ID)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to list templates", "entityID", entity.ID, "error", err)
		sendJSONError(w, "Failed to list templates", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, templates, http.StatusOK)
}

type templateRequest struct {
	Name             string `json:"name"`
	OperationType    string `json:"operationType"`
	FromAccountID    string `json:"fromAccountId"`
	ToAccountID      string `json:"toAccountId"`
	ExpenseTypeID    string `json:"expenseTypeId"`
	ExpenseArticleID string `json:"expenseArticleId"`
}

func (req *templateRequest) validate() (string, bool) {
	req.Name = validation.SanitizeText(strings.TrimSpace(req.Name))
	if err := validation.ValidateStringNotEmpty(req.Name, "Name"); err != nil {
		return err.Error(), false
	}
	if !model.ValidOperationType(req.OperationType) {
		return "Invalid operation type", false
	}
	return "", true
}

func (h *OperationHandler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	entity := requireEntityAccess(w, r, chi.URLParam(r, "entityID"))
	if entity == nil {
		return
	}
	userID, _ := GetUserIDFromContext(r.Context())

	var req templateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if msg, ok := req.validate(); !ok {
		sendJSONError(w, msg, http.StatusBadRequest)
		return
	}

	t := &model.OperationTemplate{
		Name:             req.Name,
		OperationType:    req.OperationType,
		EntityID:         entity.ID,
		FromAccountID:    req.FromAccountID,
		ToAccountID:      req.ToAccountID,
		ExpenseTypeID:    req.ExpenseTypeID,
		ExpenseArticleID: req.ExpenseArticleID,
		UserID:           userID,
	}
	if err := model.CreateOperationTemplate(database.DB, t); err != nil {
		logger.FromContext(r.Context()).Error("Failed to create template", "entityID", entity.ID, "error", err)
		sendJSONError(w, "Failed to create template", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, t, http.StatusCreated)
}

func (h *OperationHandler) UpdateTemplate(w http.ResponseWriter, r *http.Request) {
	entity := requireEntityAccess(w, r, chi.URLParam(r, "entityID"))
	if entity == nil {
		return
	}
	t, err := model.GetOperationTemplateByID(database.DB, chi.URLParam(r, "id"))
	if err != nil || t.EntityID != entity.ID {
		sendJSONError(w, "Template not found", http.StatusNotFound)
		return
	}

	var req templateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if msg, ok := req.validate(); !ok {
		sendJSONError(w, msg, http.StatusBadRequest)
		return
	}

	t.Name = req.Name
	t.OperationType = req.OperationType
	t.FromAccountID = req.FromAccountID
	t.ToAccountID = req.ToAccountID
	t.ExpenseTypeID = req.ExpenseTypeID
	t.ExpenseArticleID = req.ExpenseArticleID
	if err := t.Update(database.DB); err != nil {
		logger.FromContext(r.Context()).Error("Failed to update template", "templateID", t.ID, "error", err)
		sendJSONError(w, "Failed to update template", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, t, http.StatusOK)
}

func (h *OperationHandler) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	entity := requireEntityAccess(w, r, chi.URLParam(r, "entityID"))
	if entity == nil {
		return
	}
	if err := model.DeleteOperationTemplate(database.DB, chi.URLParam(r, "id"), entity.ID); err != nil {
		sendJSONError(w, "Template not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
