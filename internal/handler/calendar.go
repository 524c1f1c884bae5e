package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/procur/school-events/internal/service"
)

// CalendarHandler serves iCalendar downloads.
type CalendarHandler struct {
	exports *service.ExportService
	log     *zap.Logger
}

func NewCalendarHandler(exports *service.ExportService, log *zap.Logger) *CalendarHandler {
	return &CalendarHandler{exports: exports, log: log}
}

func writeICS(w http.ResponseWriter, filename string, body []byte) {
	w.Header().Set("Content-Type", "text/calendar")
	w.Header().Set("Content-Disposition", "attachment; filename="+filename)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// EventICS returns a single-event calendar file anyone can fetch.
func (h *CalendarHandler) EventICS(w http.ResponseWriter, r *http.Request) {
	body, err := h.exports.EventCalendar(r.Context(), chi.URLParam(r, "eventID"))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	writeICS(w, "event.ics", body)
}

// MyFeedICS returns every event the caller has registered for.
func (h *CalendarHandler) MyFeedICS(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())

	body, err := h.exports.UserCalendar(r.Context(), user)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	writeICS(w, "my_events.ics", body)
}
