package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/procur/school-events/internal/service"
)

// NotificationHandler exposes the caller's notification inbox.
type NotificationHandler struct {
	notifications *service.NotificationService
}

func NewNotificationHandler(notifications *service.NotificationService) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())

	items, err := h.notifications.List(r.Context(), user)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, items)
}

func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())

	count, err := h.notifications.UnreadCount(r.Context(), user)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"unread": count})
}

func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())

	if err := h.notifications.MarkRead(r.Context(), user, chi.URLParam(r, "notificationID")); err != nil {
		respondServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "marked read"})
}
