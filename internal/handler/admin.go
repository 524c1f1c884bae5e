package handler

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/procur/school-events/internal/service"
)

// AdminHandler exposes admin-only endpoints: user management, event status
// control and CSV exports.
type AdminHandler struct {
	auth    *service.AuthService
	events  *service.EventService
	exports *service.ExportService
	log     *zap.Logger
}

func NewAdminHandler(auth *service.AuthService, events *service.EventService, exports *service.ExportService, log *zap.Logger) *AdminHandler {
	return &AdminHandler{auth: auth, events: events, exports: exports, log: log}
}

func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())

	users, err := h.auth.ListUsers(r.Context(), user)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, users)
}

func (h *AdminHandler) ToggleRole(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())

	role, err := h.auth.ToggleRole(r.Context(), user, chi.URLParam(r, "userID"))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"role": string(role)})
}

func (h *AdminHandler) ToggleStatus(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())

	status, err := h.events.ToggleStatus(r.Context(), user, chi.URLParam(r, "eventID"))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": string(status)})
}

// ExportCSV streams a CSV report. The {report} parameter selects which.
func (h *AdminHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())
	report := chi.URLParam(r, "report")

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.csv", report))

	var err error
	switch report {
	case "users":
		err = h.exports.WriteUsersCSV(r.Context(), user, w)
	case "events":
		err = h.exports.WriteEventsCSV(r.Context(), user, w)
	case "registrations":
		err = h.exports.WriteRegistrationsCSV(r.Context(), user, w)
	default:
		w.Header().Del("Content-Disposition")
		writeError(w, http.StatusNotFound, "unknown report")
		return
	}
	if err != nil {
		// Headers may already be out; log and give up on the body.
		h.log.Error("export csv", zap.String("report", report), zap.Error(err))
		w.Header().Del("Content-Disposition")
		respondServiceError(w, err)
	}
}
