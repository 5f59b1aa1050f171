package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/asg67/finmanager/backend/src/database"
	"github.com/asg67/finmanager/backend/src/logger"
	"github.com/asg67/finmanager/backend/src/model"
	"github.com/asg67/finmanager/backend/src/utils"
)

type NotificationHandler struct{}

func NewNotificationHandler() *NotificationHandler {
	return &NotificationHandler{}
}

func (h *NotificationHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	userID, _ := GetUserIDFromContext(r.Context())
	unreadOnly := r.URL.Query().Get("unread") == "true"

	notifications, err := model.ListNotificationsByUser(database.DB, userID, unreadOnly)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to list notifications", "error", err)
		sendJSONError(w, "Failed to list notifications", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, notifications, http.StatusOK)
}

func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	userID, _ := GetUserIDFromContext(r.Context())

	count, err := model.CountUnreadNotifications(database.DB, userID)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to count notifications", "error", err)
		sendJSONError(w, "Failed to count notifications", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, map[string]int{"count": count}, http.StatusOK)
}

func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, _ := GetUserIDFromContext(r.Context())

	if err := model.MarkNotificationRead(database.DB, chi.URLParam(r, "id"), userID); err != nil {
		sendJSONError(w, "Notification not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *NotificationHandler) DeleteNotification(w http.ResponseWriter, r *http.Request) {
	userID, _ := GetUserIDFromContext(r.Context())

	if err := model.DeleteNotification(database.DB, chi.URLParam(r, "id"), userID); err != nil {
		sendJSONError(w, "Notification not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	userID, _ := GetUserIDFromContext(r.Context())

	if err := model.MarkAllNotificationsRead(database.DB, userID); err != nil {
		logger.FromContext(r.Context()).Error("Failed to mark notifications read", "error", err)
		sendJSONError(w, "Failed to mark notifications read", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
