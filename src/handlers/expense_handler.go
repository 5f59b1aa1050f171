package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/asg67/finmanager/backend/src/database"
	"github.com/asg67/finmanager/backend/src/logger"
	"github.com/asg67/finmanager/backend/src/model"
	"github.com/asg67/finmanager/backend/src/security/validation"
	"github.com/asg67/finmanager/backend/src/utils"
)

// ExpenseHandler manages the per-entity expense classification tree: types
// with ordered articles under them.
type ExpenseHandler struct{}

func NewExpenseHandler() *ExpenseHandler {
	return &ExpenseHandler{}
}

func (h *ExpenseHandler) ListExpenseTypes(w http.ResponseWriter, r *http.Request) {
	entity := requireEntityAccess(w, r, chi.URLParam(r, "entityID"))
	if entity == nil {
		return
	}
	types, err := model.ListExpenseTypesByEntity(database.DB, entity.ID)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to list expense types", "entityID", entity.ID, "error", err)
		sendJSONError(w, "Failed to list expense types", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, types, http.StatusOK)
}

type expenseTypeRequest struct {
	Name      string `json:"name"`
	SortOrder int    `json:"sortOrder"`
}

func (req *expenseTypeRequest) validate() (string, bool) {
	req.Name = validation.SanitizeText(strings.TrimSpace(req.Name))
	if err := validation.ValidateStringNotEmpty(req.Name, "Name"); err != nil {
		return err.Error(), false
	}
	if err := validation.ValidateStringMaxLength(req.Name, 200, "Name"); err != nil {
		return err.Error(), false
	}
	return "", true
}

func (h *ExpenseHandler) CreateExpenseType(w http.ResponseWriter, r *http.Request) {
	entity := requireEntityAccess(w, r, chi.URLParam(r, "entityID"))
	if entity == nil {
		return
	}
	var req expenseTypeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if msg, ok := req.validate(); !ok {
		sendJSONError(w, msg, http.StatusBadRequest)
		return
	}
	t, err := model.CreateExpenseType(database.DB, entity.ID, req.Name, req.SortOrder)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to create expense type", "entityID", entity.ID, "error", err)
		sendJSONError(w, "Failed to create expense type", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, t, http.StatusCreated)
}

// getEntityExpenseType checks the type in the URL belongs to the entity.
func getEntityExpenseType(w http.ResponseWriter, r *http.Request, entityID string) *model.ExpenseType {
	t, err := model.GetExpenseTypeByID(database.DB, chi.URLParam(r, "typeID"))
	if err != nil || t.EntityID != entityID {
		sendJSONError(w, "Expense type not found", http.StatusNotFound)
		return nil
	}
	return t
}

func (h *ExpenseHandler) UpdateExpenseType(w http.ResponseWriter, r *http.Request) {
	entity := requireEntityAccess(w, r, chi.URLParam(r, "entityID"))
	if entity == nil {
		return
	}
	t := getEntityExpenseType(w, r, entity.ID)
	if t == nil {
		return
	}
	var req expenseTypeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if msg, ok := req.validate(); !ok {
		sendJSONError(w, msg, http.StatusBadRequest)
		return
	}
	if err := t.Update(database.DB, req.Name, req.SortOrder); err != nil {
		logger.FromContext(r.Context()).Error("Failed to update expense type", "typeID", t.ID, "error", err)
		sendJSONError(w, "Failed to update expense type", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, t, http.StatusOK)
}

func (h *ExpenseHandler) DeleteExpenseType(w http.ResponseWriter, r *http.Request) {
	entity := requireEntityAccess(w, r, chi.URLParam(r, "entityID"))
	if entity == nil {
		return
	}
	t := getEntityExpenseType(w, r, entity.ID)
	if t == nil {
		return
	}
	if err := model.DeleteExpenseType(database.DB, t.ID); err != nil {
		logger.FromContext(r.Context()).Error("Failed to delete expense type", "typeID", t.ID, "error", err)
		sendJSONError(w, "Failed to delete expense type", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ExpenseHandler) CreateExpenseArticle(w http.ResponseWriter, r *http.Request) {
	entity := requireEntityAccess(w, r, chi.URLParam(r, "entityID"))
	if entity == nil {
		return
	}
	t := getEntityExpenseType(w, r, entity.ID)
	if t == nil {
		return
	}
	var req expenseTypeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if msg, ok := req.validate(); !ok {
		sendJSONError(w, msg, http.StatusBadRequest)
		return
	}
	article, err := model.CreateExpenseArticle(database.DB, t.ID, req.Name, req.SortOrder)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to create expense article", "typeID", t.ID, "error", err)
		sendJSONError(w, "Failed to create expense article", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, article, http.StatusCreated)
}

func (h *ExpenseHandler) UpdateExpenseArticle(w http.ResponseWriter, r *http.Request) {
	entity := requireEntityAccess(w, r, chi.URLParam(r, "entityID"))
	if entity == nil {
		return
	}
	t := getEntityExpenseType(w, r, entity.ID)
	if t == nil {
		return
	}
	var req expenseTypeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if msg, ok := req.validate(); !ok {
		sendJSONError(w, msg, http.StatusBadRequest)
		return
	}
	err := model.UpdateExpenseArticle(database.DB, chi.URLParam(r, "articleID"), t.ID, req.Name, req.SortOrder)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			sendJSONError(w, "Expense article not found", http.StatusNotFound)
			return
		}
		logger.FromContext(r.Context()).Error("Failed to update expense article", "typeID", t.ID, "error", err)
		sendJSONError(w, "Failed to update expense article", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ExpenseHandler) DeleteExpenseArticle(w http.ResponseWriter, r *http.Request) {
	entity := requireEntityAccess(w, r, chi.URLParam(r, "entityID"))
	if entity == nil {
		return
	}
	t := getEntityExpenseType(w, r, entity.ID)
	if t == nil {
		return
	}
	err := model.DeleteExpenseArticle(database.DB, chi.URLParam(r, "articleID"), t.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			sendJSONError(w, "Expense article not found", http.StatusNotFound)
			return
		}
		logger.FromContext(r.Context()).Error("Failed to delete expense article", "typeID", t.ID, "error", err)
		sendJSONError(w, "Failed to delete expense article", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
