package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/procur/school-events/internal/service"
)

// RegistrationHandler exposes registration, waitlist, ticket and check-in
// endpoints.
type RegistrationHandler struct {
	registrations *service.RegistrationService
	log           *zap.Logger
}

func NewRegistrationHandler(registrations *service.RegistrationService, log *zap.Logger) *RegistrationHandler {
	return &RegistrationHandler{registrations: registrations, log: log}
}

func (h *RegistrationHandler) Register(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())

	outcome, err := h.registrations.Register(r.Context(), user, chi.URLParam(r, "eventID"))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	status := http.StatusCreated
	if outcome == service.OutcomeAlreadyRegistered || outcome == service.OutcomeAlreadyWaitlisted {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]string{"outcome": string(outcome)})
}

func (h *RegistrationHandler) ListForEvent(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())

	regs, err := h.registrations.ListForEvent(r.Context(), user, chi.URLParam(r, "eventID"))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, regs)
}

func (h *RegistrationHandler) Waitlist(w http.ResponseWriter, r *http.Request) {
	entries, err := h.registrations.Waitlist(r.Context(), chi.URLParam(r, "eventID"))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, entries)
}

func (h *RegistrationHandler) Approve(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())

	err := h.registrations.Approve(r.Context(), user, chi.URLParam(r, "eventID"), chi.URLParam(r, "regID"))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "registration approved"})
}

func (h *RegistrationHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())

	// Scanners may submit the raw QR payload.
	token := strings.TrimPrefix(chi.URLParam(r, "token"), "CHECKIN:")
	outcome, reg, err := h.registrations.CheckIn(r.Context(), user, token)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"outcome":      string(outcome),
		"registration": reg,
	})
}

// Ticket renders the caller's ticket for a registration as a QR code PNG.
// The code encodes the opaque ticket token, not the registration ID.
func (h *RegistrationHandler) Ticket(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())

	token := chi.URLParam(r, "token")
	if _, err := h.registrations.TicketRegistration(r.Context(), user, token); err != nil {
		respondServiceError(w, err)
		return
	}

	png, err := qrcode.Encode("CHECKIN:"+token, qrcode.Medium, 256)
	if err != nil {
		h.log.Error("encode ticket qr", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "operation failed")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}
