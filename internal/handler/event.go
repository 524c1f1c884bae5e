package handler

import (
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/procur/school-events/internal/model"
	"github.com/procur/school-events/internal/service"
)

// maxUploadBytes bounds attachment uploads (multipart form memory cap).
const maxUploadBytes = 10 << 20

// EventHandler exposes event browsing and management endpoints.
type EventHandler struct {
	events *service.EventService
	log    *zap.Logger
}

func NewEventHandler(events *service.EventService, log *zap.Logger) *EventHandler {
	return &EventHandler{events: events, log: log}
}

func (h *EventHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())

	var req model.CreateEventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	event, err := h.events.Create(r.Context(), user, req)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, event)
}

func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.EventFilter{
		Category: q.Get("category"),
		Status:   model.EventStatus(q.Get("status")),
		Query:    q.Get("q"),
		SortBy:   q.Get("sort"),
	}

	events, err := h.events.List(r.Context(), filter)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, events)
}

func (h *EventHandler) Get(w http.ResponseWriter, r *http.Request) {
	event, err := h.events.Get(r.Context(), chi.URLParam(r, "eventID"))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, event)
}

func (h *EventHandler) ToggleApproval(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())

	required, err := h.events.ToggleApproval(r.Context(), user, chi.URLParam(r, "eventID"))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"require_approval": required})
}

func (h *EventHandler) Delegate(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())

	var req struct {
		UserID string `json:"user_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.events.Delegate(r.Context(), user, chi.URLParam(r, "eventID"), req.UserID); err != nil {
		respondServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "coordinator added"})
}

func (h *EventHandler) Upload(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	attachment, err := h.events.SaveAttachment(r.Context(), user, chi.URLParam(r, "eventID"), name, file)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, attachment)
}

func (h *EventHandler) Attachments(w http.ResponseWriter, r *http.Request) {
	attachments, err := h.events.Attachments(r.Context(), chi.URLParam(r, "eventID"))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, attachments)
}
