package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/asg67/finmanager/backend/src/database"
	"github.com/asg67/finmanager/backend/src/logger"
	"github.com/asg67/finmanager/backend/src/model"
	"github.com/asg67/finmanager/backend/src/security/validation"
	"github.com/asg67/finmanager/backend/src/utils"
)

type AccountHandler struct{}

func NewAccountHandler() *AccountHandler {
	return &AccountHandler{}
}

func (h *AccountHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	entity := requireEntityAccess(w, r, chi.URLParam(r, "entityID"))
	if entity == nil {
		return
	}
	accounts, err := model.ListAccountsByEntity(database.DB, entity.ID)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to list accounts", "entityID", entity.ID, "error", err)
		sendJSONError(w, "Failed to list accounts", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, accounts, http.StatusOK)
}

type accountRequest struct {
	Name          string `json:"name"`
	Type          string `json:"type"`
	Bank          string `json:"bank"`
	AccountNumber string `json:"accountNumber"`
}

func (req *accountRequest) validate() (string, bool) {
	req.Name = validation.SanitizeText(strings.TrimSpace(req.Name))
	req.Bank = validation.SanitizeText(strings.TrimSpace(req.Bank))
	req.AccountNumber = strings.TrimSpace(req.AccountNumber)

	if err := validation.ValidateStringNotEmpty(req.Name, "Name"); err != nil {
		return err.Error(), false
	}
	if !model.ValidAccountType(req.Type) {
		return "Invalid account type", false
	}
	if err := validation.ValidateAccountNumber(req.AccountNumber); err != nil {
		return err.Error(), false
	}
	return "", true
}

func (h *AccountHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	entity := requireEntityAccess(w, r, chi.URLParam(r, "entityID"))
	if entity == nil {
		return
	}
	var req accountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if msg, ok := req.validate(); !ok {
		sendJSONError(w, msg, http.StatusBadRequest)
		return
	}

	account := &model.Account{
		EntityID:      entity.ID,
		Name:          req.Name,
		Type:          req.Type,
		Bank:          req.Bank,
		AccountNumber: req.AccountNumber,
		Source:        model.AccountSourceManual,
	}
	if err := model.CreateAccount(database.DB, account); err != nil {
		logger.FromContext(r.Context()).Error("Failed to create account", "entityID", entity.ID, "error", err)
		sendJSONError(w, "Failed to create account", http.StatusInternalServerError)
		return
	}
	logger.FromContext(r.Context()).Info("Account created", "entityID", entity.ID, "accountID", account.ID)
	utils.SendJSON(w, account, http.StatusCreated)
}

// getEntityAccount loads the account and checks it belongs to the entity in
// the URL. Writes the error response itself and returns nil on failure.
func getEntityAccount(w http.ResponseWriter, r *http.Request, entityID string) *model.Account {
	account, err := model.GetAccountByID(database.DB, chi.URLParam(r, "id"))
	if err != nil || account.EntityID != entityID {
		sendJSONError(w, "Account not found", http.StatusNotFound)
		return nil
	}
	return account
}

func (h *AccountHandler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	entity := requireEntityAccess(w, r, chi.URLParam(r, "entityID"))
	if entity == nil {
		return
	}
	account := getEntityAccount(w, r, entity.ID)
	if account == nil {
		return
	}
	var req accountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if msg, ok := req.validate(); !ok {
		sendJSONError(w, msg, http.StatusBadRequest)
		return
	}

	account.Name = req.Name
	account.Type = req.Type
	account.Bank = req.Bank
	account.AccountNumber = req.AccountNumber
	if err := account.Update(database.DB); err != nil {
		logger.FromContext(r.Context()).Error("Failed to update account", "accountID", account.ID, "error", err)
		sendJSONError(w, "Failed to update account", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, account, http.StatusOK)
}

func (h *AccountHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	entity := requireEntityAccess(w, r, chi.URLParam(r, "entityID"))
	if entity == nil {
		return
	}
	account := getEntityAccount(w, r, entity.ID)
	if account == nil {
		return
	}
	if err := model.DeleteAccount(database.DB, account.ID); err != nil {
		logger.FromContext(r.Context()).Error("Failed to delete account", "accountID", account.ID, "error", err)
		sendJSONError(w, "Failed to delete account", http.StatusInternalServerError)
		return
	}
	logger.FromContext(r.Context()).Info("Account deleted", "accountID", account.ID)
	w.WriteHeader(http.StatusNoContent)
}
