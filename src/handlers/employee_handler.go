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

// EmployeeHandler lets an owner manage employee accounts, their permission
// flags and the set of entities they may see. All routes behind RequireOwner.
type EmployeeHandler struct{}

func NewEmployeeHandler() *EmployeeHandler {
	return &EmployeeHandler{}
}

type employeeResponse struct {
	*model.User
	Permissions *model.Permissions `json:"permissions"`
	Entities    []model.Entity     `json:"entities"`
}

func buildEmployeeResponse(user *model.User) (*employeeResponse, error) {
	perms, err := model.GetPermissions(database.DB, user.ID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		perms = &model.Permissions{}
	}
	entities, err := model.ListEntityAccess(database.DB, user.ID)
	if err != nil {
		return nil, err
	}
	if entities == nil {
		entities = []model.Entity{}
	}
	return &employeeResponse{User: user, Permissions: perms, Entities: entities}, nil
}

func (h *EmployeeHandler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	userID, _ := GetUserIDFromContext(r.Context())

	employees, err := model.ListEmployeesByOwner(database.DB, userID)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to list employees", "error", err)
		sendJSONError(w, "Failed to list employees", http.StatusInternalServerError)
		return
	}

	out := make([]employeeResponse, 0, len(employees))
	for i := range employees {
		resp, err := buildEmployeeResponse(&employees[i])
		if err != nil {
			logger.FromContext(r.Context()).Error("Failed to load employee details", "employeeID", employees[i].ID, "error", err)
			sendJSONError(w, "Failed to list employees", http.StatusInternalServerError)
			return
		}
		out = append(out, *resp)
	}
	utils.SendJSON(w, out, http.StatusOK)
}

type employeeRequest struct {
	Email       string            `json:"email"`
	Password    string            `json:"password"`
	Name        string            `json:"name"`
	Permissions model.Permissions `json:"permissions"`
	EntityIDs   []string          `json:"entityIds"`
}

// checkEntities verifies every granted entity belongs to this owner.
func (req *employeeRequest) checkEntities(ownerID string) bool {
	for _, entityID := range req.EntityIDs {
		entity, err := model.GetEntityByID(database.DB, entityID)
		if err != nil || entity.OwnerID != ownerID {
			return false
		}
	}
	return true
}

func (h *EmployeeHandler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := GetUserIDFromContext(r.Context())

	var req employeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Name = validation.SanitizeText(strings.TrimSpace(req.Name))
	if err := validation.ValidateEmail(req.Email); err != nil {
		sendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !passwordRegex.MatchString(req.Password) {
		sendJSONError(w, "Password must be at least 6 characters", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		req.Name = strings.Split(req.Email, "@")[0]
	}
	if !req.checkEntities(ownerID) {
		sendJSONError(w, "Entity not found", http.StatusBadRequest)
		return
	}

	if _, err := model.GetUserByEmail(database.DB, req.Email); err == nil {
		sendJSONError(w, "Email is already registered", http.StatusConflict)
		return
	} else if !errors.Is(err, sql.ErrNoRows) {
		logger.FromContext(r.Context()).Error("Failed to check email uniqueness", "error", err)
		sendJSONError(w, "Failed to create employee", http.StatusInternalServerError)
		return
	}

	employee := &model.User{
		Email:   req.Email,
		Name:    req.Name,
		Role:    model.RoleEmployee,
		OwnerID: ownerID,
	}
	if err := employee.HashPassword(req.Password); err != nil {
		logger.FromContext(r.Context()).Error("Failed to hash password", "error", err)
		sendJSONError(w, "Failed to create employee", http.StatusInternalServerError)
		return
	}
	if err := employee.CreateUser(database.DB); err != nil {
		logger.FromContext(r.Context()).Error("Failed to create employee", "error", err)
		sendJSONError(w, "Failed to create employee", http.StatusInternalServerError)
		return
	}
	if err := h.applyGrants(employee.ID, req.Permissions, req.EntityIDs); err != nil {
		logger.FromContext(r.Context()).Error("Failed to apply employee grants", "employeeID", employee.ID, "error", err)
		sendJSONError(w, "Failed to create employee", http.StatusInternalServerError)
		return
	}

	logger.FromContext(r.Context()).Info("Employee created", "employeeID", employee.ID, "ownerID", ownerID)
	resp, err := buildEmployeeResponse(employee)
	if err != nil {
		sendJSONError(w, "Failed to create employee", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, resp, http.StatusCreated)
}

func (h *EmployeeHandler) applyGrants(employeeID string, perms model.Permissions, entityIDs []string) error {
	if err := model.SetPermissions(database.DB, employeeID, perms); err != nil {
		return err
	}
	tx, err := database.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := model.ReplaceEntityAccess(tx, employeeID, entityIDs); err != nil {
		return err
	}
	return tx.Commit()
}

// getOwnedEmployee loads the employee and verifies it belongs to the caller.
func getOwnedEmployee(w http.ResponseWriter, r *http.Request) *model.User {
	ownerID, _ := GetUserIDFromContext(r.Context())

	employee, err := model.GetUserByID(database.DB, chi.URLParam(r, "id"))
	if err != nil || employee.Role != model.RoleEmployee || employee.OwnerID != ownerID {
		sendJSONError(w, "Employee not found", http.StatusNotFound)
		return nil
	}
	return employee
}

func (h *EmployeeHandler) UpdateEmployee(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := GetUserIDFromContext(r.Context())
	employee := getOwnedEmployee(w, r)
	if employee == nil {
		return
	}

	var req employeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if !req.checkEntities(ownerID) {
		sendJSONError(w, "Entity not found", http.StatusBadRequest)
		return
	}

	if req.Name != "" {
		name := validation.SanitizeText(strings.TrimSpace(req.Name))
		if err := employee.UpdateProfile(database.DB, name, "", ""); err != nil {
			logger.FromContext(r.Context()).Error("Failed to update employee", "employeeID", employee.ID, "error", err)
			sendJSONError(w, "Failed to update employee", http.StatusInternalServerError)
			return
		}
	}
	if req.Password != "" {
		if !passwordRegex.MatchString(req.Password) {
			sendJSONError(w, "Password must be at least 6 characters", http.StatusBadRequest)
			return
		}
		if err := employee.HashPassword(req.Password); err != nil {
			sendJSONError(w, "Failed to update employee", http.StatusInternalServerError)
			return
		}
		if err := employee.UpdatePassword(database.DB, employee.Password); err != nil {
			logger.FromContext(r.Context()).Error("Failed to update employee password", "employeeID", employee.ID, "error", err)
			sendJSONError(w, "Failed to update employee", http.StatusInternalServerError)
			return
		}
	}
	if err := h.applyGrants(employee.ID, req.Permissions, req.EntityIDs); err != nil {
		logger.FromContext(r.Context()).Error("Failed to update employee grants", "employeeID", employee.ID, "error", err)
		sendJSONError(w, "Failed to update employee", http.StatusInternalServerError)
		return
	}

	resp, err := buildEmployeeResponse(employee)
	if err != nil {
		sendJSONError(w, "Failed to update employee", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, resp, http.StatusOK)
}

func (h *EmployeeHandler) DeleteEmployee(w http.ResponseWriter, r *http.Request) {
	employee := getOwnedEmployee(w, r)
	if employee == nil {
		return
	}
	if err := model.DeleteUser(database.DB, employee.ID); err != nil {
		logger.FromContext(r.Context()).Error("Failed to delete employee", "employeeID", employee.ID, "error", err)
		sendJSONError(w, "Failed to delete employee", http.StatusInternalServerError)
		return
	}
	logger.FromContext(r.Context()).Info("Employee deleted", "employeeID", employee.ID)
	w.WriteHeader(http.StatusNoContent)
}
