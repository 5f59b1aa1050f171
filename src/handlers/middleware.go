// backend/src/handlers/middleware.go
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/asg67/finmanager/backend/src/database"
	"github.com/asg67/finmanager/backend/src/logger"
	"github.com/asg67/finmanager/backend/src/model"
	"github.com/asg67/finmanager/backend/src/utils"
)

type contextKey string

const (
	userIDContextKey    contextKey = "userID"
	userRoleContextKey  contextKey = "userRole"
	requestIDContextKey contextKey = "requestID"
)

func sendJSONError(w http.ResponseWriter, message string, statusCode int) {
	utils.SendJSONError(w, message, statusCode)
}

func GetUserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	return userID, ok
}

func GetUserRoleFromContext(ctx context.Context) (string, bool) {
	role, ok := ctx.Value(userRoleContextKey).(string)
	return role, ok
}

// ContextualLoggerMiddleware attaches a request-scoped logger carrying a
// fresh request id.
func ContextualLoggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()

		ctxLogger := logger.L.With(slog.String("requestID", requestID))

		ctx := logger.ToContext(r.Context(), ctxLogger)
		ctx = context.WithValue(ctx, requestIDContextKey, requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AuthMiddleware validates the bearer token and the backing session, then
// stores the user id and role in the request context.
func (h *AuthHandler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxLogger := logger.FromContext(r.Context())

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			ctxLogger.Debug("AuthMiddleware: Authorization header missing", "path", r.URL.Path)
			sendJSONError(w, "Authorization header required", http.StatusUnauthorized)
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == "" {
			ctxLogger.Debug("AuthMiddleware: Token string empty", "path", r.URL.Path)
			sendJSONError(w, "Malformed token", http.StatusUnauthorized)
			return
		}

		userID, role, err := h.authService.ValidateToken(tokenString)
		if err != nil {
			ctxLogger.Warn("AuthMiddleware: Token validation failed", "path", r.URL.Path, "error", err)
			sendJSONError(w, "Invalid or expired token", http.StatusUnauthorized)
			return
		}

		if _, err := model.GetSessionByToken(database.DB, tokenString); err != nil {
			ctxLogger.Warn("AuthMiddleware: Session validation failed", "path", r.URL.Path, "error", err)
			sendJSONError(w, "Invalid or expired session", http.StatusUnauthorized)
			return
		}

		enrichedLogger := ctxLogger.With(slog.String("userID", userID))
		ctx := logger.ToContext(r.Context(), enrichedLogger)
		ctx = context.WithValue(ctx, userIDContextKey, userID)
		ctx = context.WithValue(ctx, userRoleContextKey, role)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireOwner limits a route to owner accounts.
func RequireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		role, ok := GetUserRoleFromContext(r.Context())
		if !ok || role != model.RoleOwner {
			sendJSONError(w, "Owner access required", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequirePermission gates a route on one of the employee permission flags.
// Owners always pass.
func RequirePermission(perm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := GetUserIDFromContext(r.Context())
			if !ok {
				sendJSONError(w, "Authentication required", http.StatusUnauthorized)
				return
			}
			role, _ := GetUserRoleFromContext(r.Context())
			if role == model.RoleOwner {
				next.ServeHTTP(w, r)
				return
			}

			perms, err := model.GetPermissions(database.DB, userID)
			if err != nil {
				logger.FromContext(r.Context()).Error("Failed to load permissions", "userID", userID, "error", err)
				sendJSONError(w, "Failed to check permissions", http.StatusInternalServerError)
				return
			}
			allowed := false
			switch perm {
			case "dds":
				allowed = perms.Dds
			case "pdf_upload":
				allowed = perms.PdfUpload
			case "analytics":
				allowed = perms.Analytics
			case "export":
				allowed = perms.Export
			}
			if !allowed {
				sendJSONError(w, "Permission denied", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requireEntityAccess loads the entity and verifies the caller may see it.
// Writes the error response itself and returns nil on failure.
func requireEntityAccess(w http.ResponseWriter, r *http.Request, entityID string) *model.Entity {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		sendJSONError(w, "Authentication required", http.StatusUnauthorized)
		return nil
	}
	entity, err := model.GetEntityByID(database.DB, entityID)
	if err != nil {
		sendJSONError(w, "Entity not found", http.StatusNotFound)
		return nil
	}
	user, err := model.GetUserByID(database.DB, userID)
	if err != nil {
		sendJSONError(w, "Invalid session or user", http.StatusUnauthorized)
		return nil
	}
	allowed, err := model.UserCanAccessEntity(database.DB, user, entity.ID)
	if err != nil {
		logger.FromContext(r.Context()).Error("Entity access check failed", "entityID", entityID, "error", err)
		sendJSONError(w, "Failed to check entity access", http.StatusInternalServerError)
		return nil
	}
	if !allowed {
		sendJSONError(w, "Access denied", http.StatusForbidden)
		return nil
	}
	return entity
}
