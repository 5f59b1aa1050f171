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

type EntityHandler struct{}

func NewEntityHandler() *EntityHandler {
	return &EntityHandler{}
}

func (h *EntityHandler) ListEntities(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		sendJSONError(w, "Authentication required", http.StatusUnauthorized)
		return
	}
	user, err := model.GetUserByID(database.DB, userID)
	if err != nil {
		sendJSONError(w, "Invalid session or user", http.StatusUnauthorized)
		return
	}
	entities, err := model.ListEntitiesForUser(database.DB, user)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to list entities", "error", err)
		sendJSONError(w, "Failed to list entities", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, entities, http.StatusOK)
}

func (h *EntityHandler) CreateEntity(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		sendJSONError(w, "Authentication required", http.StatusUnauthorized)
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	req.Name = validation.SanitizeText(strings.TrimSpace(req.Name))
	if err := validation.ValidateStringNotEmpty(req.Name, "Name"); err != nil {
		sendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := validation.ValidateStringMaxLength(req.Name, 200, "Name"); err != nil {
		sendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	user, err := model.GetUserByID(database.DB, userID)
	if err != nil {
		sendJSONError(w, "Invalid session or user", http.StatusUnauthorized)
		return
	}
	entity, err := model.CreateEntity(database.DB, req.Name, user.OwnerOf())
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to create entity", "error", err)
		sendJSONError(w, "Failed to create entity", http.StatusInternalServerError)
		return
	}
	logger.FromContext(r.Context()).Info("Entity created", "entityID", entity.ID)
	utils.SendJSON(w, entity, http.StatusCreated)
}

func (h *EntityHandler) GetEntity(w http.ResponseWriter, r *http.Request) {
	entity := requireEntityAccess(w, r, chi.URLParam(r, "id"))
	if entity == nil {
		return
	}
	utils.SendJSON(w, entity, http.StatusOK)
}

func (h *EntityHandler) UpdateEntity(w http.ResponseWriter, r *http.Request) {
	entity := requireEntityAccess(w, r, chi.URLParam(r, "id"))
	if entity == nil {
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	req.Name = validation.SanitizeText(strings.TrimSpace(req.Name))
	if err := validation.ValidateStringNotEmpty(req.Name, "Name"); err != nil {
		sendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := entity.Update(database.DB, req.Name); err != nil {
		logger.FromContext(r.Context()).Error("Failed to update entity", "entityID", entity.ID, "error", err)
		sendJSONError(w, "Failed to update entity", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, entity, http.StatusOK)
}

func (h *EntityHandler) DeleteEntity(w http.ResponseWriter, r *http.Request) {
	entity := requireEntityAccess(w, r, chi.URLParam(r, "id"))
	if entity == nil {
		return
	}
	if err := model.DeleteEntity(database.DB, entity.ID); err != nil {
		logger.FromContext(r.Context()).Error("Failed to delete entity", "entityID", entity.ID, "error", err)
		sendJSONError(w, "Failed to delete entity", http.StatusInternalServerError)
		return
	}
	logger.FromContext(r.Context()).Info("Entity deleted", "entityID", entity.ID)
	w.WriteHeader(http.StatusNoContent)
}
