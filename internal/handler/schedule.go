package handler

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/reservations/internal/auth"
	"github.com/sakif/reservations/internal/export"
	"github.com/sakif/reservations/internal/service"
)

type ScheduleHandler struct {
	schedules *service.ScheduleService
	logger    *slog.Logger
}

func NewScheduleHandler(schedules *service.ScheduleService, logger *slog.Logger) *ScheduleHandler {
	return &ScheduleHandler{schedules: schedules, logger: logger}
}

// HandleCreate publishes a schedule. Staff only.
//
// HTTP: POST /api/schedules
// REQUEST: {"title": "...", "capacity": 10}
func (h *ScheduleHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	p, err := readParams(w, r)
	if err != nil {
		WriteError(w, err)
		return
	}
	capacity, err := p.integer("capacity")
	if err != nil {
		WriteError(w, err)
		return
	}

	viewer, _ := auth.ViewerFromContext(r.Context())
	schedule, err := h.schedules.Create(r.Context(), viewer, p.str("title"), capacity)
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, schedule)
}

// HandleList returns every schedule with its reserved count, newest first.
//
// HTTP: GET /api/schedules
func (h *ScheduleHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	schedules, err := h.schedules.List(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, schedules)
}

// HandleGet returns one schedule with its reservations. Emails other than
// the viewer's own are blanked unless the viewer is staff.
//
// HTTP: GET /api/schedules/{id}
func (h *ScheduleHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	viewer, _ := auth.ViewerFromContext(r.Context())
	detail, err := h.schedules.Get(r.Context(), chi.URLParam(r, "id"), viewer)
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// HandleExport downloads the reservation list as a workbook. Staff only.
//
// HTTP: GET /api/schedules/{id}/reservations.xlsx
//
// The workbook is rendered into memory first so a failure can still become
// a JSON error instead of a truncated download.
func (h *ScheduleHandler) HandleExport(w http.ResponseWriter, r *http.Request) {
	viewer, _ := auth.ViewerFromContext(r.Context())
	detail, err := h.schedules.Get(r.Context(), chi.URLParam(r, "id"), viewer)
	if err != nil {
		WriteError(w, err)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteReservations(&buf, detail); err != nil {
		WriteError(w, fmt.Errorf("exporting schedule %s: %w", detail.ID, err))
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="reservations-%s.xlsx"`, detail.ID))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		h.logger.Warn("export write interrupted", slog.String("error", err.Error()))
	}
}
