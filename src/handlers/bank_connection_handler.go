// backend/src/handlers/bank_connection_handler.go
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/asg67/finmanager/backend/src/bankapi"
	"github.com/asg67/finmanager/backend/src/database"
	"github.com/asg67/finmanager/backend/src/logger"
	"github.com/asg67/finmanager/backend/src/model"
	"github.com/asg67/finmanager/backend/src/security/validation"
	"github.com/asg67/finmanager/backend/src/services"
	"github.com/asg67/finmanager/backend/src/utils"
)

// BankConnectionHandler exposes stored bank API connections and the sync
// operations running against them. Tokens are accepted on create/update and
// never echoed back; responses carry a masked prefix only.
type BankConnectionHandler struct {
	syncService services.SyncService
	analytics   services.AnalyticsService
}

func NewBankConnectionHandler(syncService services.SyncService, analytics services.AnalyticsService) *BankConnectionHandler {
	return &BankConnectionHandler{syncService: syncService, analytics: analytics}
}

type bankConnectionResponse struct {
	*model.BankConnection
	MaskedToken string `json:"maskedToken"`
}

func connectionResponse(c *model.BankConnection) bankConnectionResponse {
	return bankConnectionResponse{BankConnection: c, MaskedToken: c.MaskedToken()}
}

// sendSyncError maps service and bank API failures onto HTTP statuses.
func sendSyncError(w http.ResponseWriter, r *http.Request, err error) {
	var unsupported *bankapi.ErrUnsupportedBank
	switch {
	case errors.Is(err, services.ErrSyncInProgress):
		sendJSONError(w, "Sync already in progress for this connection", http.StatusConflict)
	case errors.Is(err, services.ErrAccountNotFound):
		sendJSONError(w, "Account not found at bank", http.StatusNotFound)
	case errors.As(err, &unsupported):
		sendJSONError(w, err.Error(), http.StatusBadRequest)
	case bankapi.IsKind(err, bankapi.KindAuth):
		sendJSONError(w, "Bank rejected the token", http.StatusBadGateway)
	case bankapi.IsKind(err, bankapi.KindRateLimit):
		sendJSONError(w, "Bank rate limit reached, try again later", http.StatusTooManyRequests)
	case bankapi.IsKind(err, bankapi.KindConnectivity):
		sendJSONError(w, "Bank is unreachable", http.StatusBadGateway)
	case bankapi.IsKind(err, bankapi.KindUnexpectedResponse):
		sendJSONError(w, "Bank returned an unexpected response", http.StatusBadGateway)
	case errors.Is(err, services.ErrPersistence):
		logger.FromContext(r.Context()).Error("Failed to persist sync results", "error", err)
		sendJSONError(w, "Failed to save transactions", http.StatusInternalServerError)
	default:
		logger.FromContext(r.Context()).Error("Sync failed", "error", err)
		sendJSONError(w, "Sync failed", http.StatusInternalServerError)
	}
}

// getEntityConnection loads a connection and checks it belongs to the entity.
func getEntityConnection(w http.ResponseWriter, r *http.Request, entityID string) *model.BankConnection {
	conn, err := model.GetBankConnectionByID(database.DB, chi.URLParam(r, "id"))
	if err != nil || conn.EntityID != entityID {
		sendJSONError(w, "Connection not found", http.StatusNotFound)
		return nil
	}
	return conn
}

func (h *BankConnectionHandler) ListConnections(w http.ResponseWriter, r *http.Request) {
	entity := requireEntityAccess(w, r, chi.URLParam(r, "entityID"))
	if entity == nil {
		return
	}
	connections, err := model.ListBankConnectionsByEntity(database.DB, entity.ID)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to list connections", "entityID", entity.ID, "error", err)
		sendJSONError(w, "Failed to list connections", http.StatusInternalServerError)
		return
	}
	out := make([]bankConnectionResponse, 0, len(connections))
	for i := range connections {
		out = append(out, connectionResponse(&connections[i]))
	}
	utils.SendJSON(w, out, http.StatusOK)
}

type connectionRequest struct {
	BankCode string `json:"bankCode"`
	Token    string `json:"token"`
	Label    string `json:"label"`
}

func (h *BankConnectionHandler) CreateConnection(w http.ResponseWriter, r *http.Request) {
	entity := requireEntityAccess(w, r, chi.URLParam(r, "entityID"))
	if entity == nil {
		return
	}

	var req connectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	req.Token = strings.TrimSpace(req.Token)
	req.Label = validation.SanitizeText(strings.TrimSpace(req.Label))
	if req.Token == "" {
		sendJSONError(w, "Token is required", http.StatusBadRequest)
		return
	}

	ok, err := h.syncService.TestConnection(r.Context(), req.BankCode, req.Token)
	if err != nil {
		sendSyncError(w, r, err)
		return
	}
	if !ok {
		sendJSONError(w, "Bank rejected the token", http.StatusBadGateway)
		return
	}

	conn, err := model.CreateBankConnection(database.DB, entity.ID, req.BankCode, req.Token, req.Label)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to create connection", "entityID", entity.ID, "error", err)
		sendJSONError(w, "Failed to create connection", http.StatusInternalServerError)
		return
	}
	logger.FromContext(r.Context()).Info("Bank connection created",
		"connectionID", conn.ID, "bank", conn.BankCode, "token", conn.MaskedToken())
	utils.SendJSON(w, connectionResponse(conn), http.StatusCreated)
}

func (h *BankConnectionHandler) UpdateConnection(w http.ResponseWriter, r *http.Request) {
	entity := requireEntityAccess(w, r, chi.URLParam(r, "entityID"))
	if entity == nil {
		return
	}
	conn := getEntityConnection(w, r, entity.ID)
	if conn == nil {
		return
	}

	var req connectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	req.Token = strings.TrimSpace(req.Token)
	req.Label = validation.SanitizeText(strings.TrimSpace(req.Label))
	if req.Token == "" {
		req.Token = conn.Token
	} else {
		ok, err := h.syncService.TestConnection(r.Context(), conn.BankCode, req.Token)
		if err != nil {
			sendSyncError(w, r, err)
			return
		}
		if !ok {
			sendJSONError(w, "Bank rejected the token", http.StatusBadGateway)
			return
		}
	}
	if req.Label == "" {
		req.Label = conn.Label
	}

	if err := conn.UpdateToken(database.DB, req.Token, req.Label); err != nil {
		logger.FromContext(r.Context()).Error("Failed to update connection", "connectionID", conn.ID, "error", err)
		sendJSONError(w, "Failed to update connection", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, connectionResponse(conn), http.StatusOK)
}

func (h *BankConnectionHandler) DeleteConnection(w http.ResponseWriter, r *http.Request) {
	entity := requireEntityAccess(w, r, chi.URLParam(r, "entityID"))
	if entity == nil {
		return
	}
	conn := getEntityConnection(w, r, entity.ID)
	if conn == nil {
		return
	}
	if err := model.DeleteBankConnection(database.DB, conn.ID); err != nil {
		logger.FromContext(r.Context()).Error("Failed to delete connection", "connectionID", conn.ID, "error", err)
		sendJSONError(w, "Failed to delete connection", http.StatusInternalServerError)
		return
	}
	logger.FromContext(r.Context()).Info("Bank connection deleted", "connectionID", conn.ID)
	w.WriteHeader(http.StatusNoContent)
}

// TestConnection checks a token before the connection is created.
func (h *BankConnectionHandler) TestConnection(w http.ResponseWriter, r *http.Request) {
	entity := requireEntityAccess(w, r, chi.URLParam(r, "entityID"))
	if entity == nil {
		return
	}

	var req connectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	req.Token = strings.TrimSpace(req.Token)
	if req.Token == "" {
		sendJSONError(w, "Token is required", http.StatusBadRequest)
		return
	}

	ok, err := h.syncService.TestConnection(r.Context(), req.BankCode, req.Token)
	if err != nil {
		sendSyncError(w, r, err)
		return
	}
	utils.SendJSON(w, map[string]bool{"ok": ok}, http.StatusOK)
}

// TestStoredConnection re-checks the token a connection already holds.
func (h *BankConnectionHandler) TestStoredConnection(w http.ResponseWriter, r *http.Request) {
	entity := requireEntityAccess(w, r, chi.URLParam(r, "entityID"))
	if entity == nil {
		return
	}
	conn := getEntityConnection(w, r, entity.ID)
	if conn == nil {
		return
	}

	ok, err := h.syncService.TestConnection(r.Context(), conn.BankCode, conn.Token)
	if err != nil {
		sendSyncError(w, r, err)
		return
	}
	utils.SendJSON(w, map[string]bool{"ok": ok}, http.StatusOK)
}

func (h *BankConnectionHandler) ListBankAccounts(w http.ResponseWriter, r *http.Request) {
	entity := requireEntityAccess(w, r, chi.URLParam(r, "entityID"))
	if entity == nil {
		return
	}
	conn := getEntityConnection(w, r, entity.ID)
	if conn == nil {
		return
	}

	accounts, err := h.syncService.ListBankAccounts(r.Context(), conn)
	if err != nil {
		sendSyncError(w, r, err)
		return
	}
	utils.SendJSON(w, accounts, http.StatusOK)
}

type syncRequest struct {
	From          string `json:"from"`
	To            string `json:"to"`
	AccountNumber string `json:"accountNumber"`
}

func (h *BankConnectionHandler) Sync(w http.ResponseWriter, r *http.Request) {
	entity := requireEntityAccess(w, r, chi.URLParam(r, "entityID"))
	if entity == nil {
		return
	}
	conn := getEntityConnection(w, r, entity.ID)
	if conn == nil {
		return
	}

	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	from, to, err := validation.ValidateDateRange(req.From, req.To)
	if err != nil {
		sendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var result *services.SyncResult
	if req.AccountNumber != "" {
		result, err = h.syncService.SyncAccount(r.Context(), conn, req.AccountNumber, from, to)
	} else {
		result, err = h.syncService.Sync(r.Context(), conn, from, to)
	}
	if err != nil {
		sendSyncError(w, r, err)
		return
	}
	if result.Saved > 0 {
		h.analytics.InvalidateEntity(entity.ID)
	}
	utils.SendJSON(w, result, http.StatusOK)
}

func (h *BankConnectionHandler) ListBankTransactions(w http.ResponseWriter, r *http.Request) {
	entity := requireEntityAccess(w, r, chi.URLParam(r, "entityID"))
	if entity == nil {
		return
	}

	q := r.URL.Query()
	filter := model.BankTransactionFilter{
		AccountID: q.Get("accountId"),
		Direction: q.Get("direction"),
	}
	if filter.Direction != "" && filter.Direction != model.DirectionIncome && filter.Direction != model.DirectionExpense {
		sendJSONError(w, "Invalid direction", http.StatusBadRequest)
		return
	}
	if from := q.Get("from"); from != "" {
		t, err := validation.ValidateDateString(from, "from")
		if err != nil {
			sendJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		filter.DateFrom = t.Format("2006-01-02")
	}
	if to := q.Get("to"); to != "" {
		t, err := validation.ValidateDateString(to, "to")
		if err != nil {
			sendJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		filter.DateTo = t.Format("2006-01-02")
	}

	transactions, err := model.ListBankTransactions(database.DB, entity.ID, filter)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to list bank transactions", "entityID", entity.ID, "error", err)
		sendJSONError(w, "Failed to list transactions", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, transactions, http.StatusOK)
}
