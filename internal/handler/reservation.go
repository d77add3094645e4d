package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/sakif/reservations/internal/apperror"
	"github.com/sakif/reservations/internal/auth"
	"github.com/sakif/reservations/internal/service"
)

type ReservationHandler struct {
	booking *service.BookingService
	logger  *slog.Logger
}

func NewReservationHandler(booking *service.BookingService, logger *slog.Logger) *ReservationHandler {
	return &ReservationHandler{booking: booking, logger: logger}
}

// HandleCreate books a slot for the logged-in user.
//
// HTTP: POST /api/reservations
// REQUEST: {"schedule_id": "..."}
// RESPONSE: {"id", "schedule_id", "user_id", "created_at"}
//
// The user always comes from the session. A user_id in the body is ignored.
func (h *ReservationHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	viewer, ok := auth.ViewerFromContext(r.Context())
	if !ok {
		WriteError(w, apperror.NotAuthenticated())
		return
	}

	p, err := readParams(w, r)
	if err != nil {
		WriteError(w, err)
		return
	}
	scheduleID := strings.TrimSpace(p.str("schedule_id"))
	if scheduleID == "" {
		WriteError(w, apperror.ValidationFailed("schedule_id", "schedule_id is required"))
		return
	}

	reservation, err := h.booking.Reserve(r.Context(), scheduleID, viewer.ID)
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reservation)
}
