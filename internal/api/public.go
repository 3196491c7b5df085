package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"atelier/internal/booking"
	"atelier/internal/metrics"
	"atelier/internal/model"
)

// handleSlots returns the slot list for a date.
// GET /api/availability/slots?date=YYYY-MM-DD&serviceId=<int>
func (s *HTTPServer) handleSlots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	dateStr := q.Get("date")
	if dateStr == "" {
		writeError(w, http.StatusBadRequest, "date is required")
		return
	}
	date, err := time.Parse(model.DateLayout, dateStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
		return
	}

	var serviceID *int64
	if raw := q.Get("serviceId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			writeError(w, http.StatusBadRequest, "invalid serviceId")
			return
		}
		serviceID = &id
	}

	result, err := s.availability.Slots(r.Context(), date, serviceID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	metrics.IncSlotsServed()
	writeJSON(w, http.StatusOK, result)
}

// GET /api/services
func (s *HTTPServer) handleListServices(w http.ResponseWriter, r *http.Request) {
	services, err := s.catalog.ListServices(r.Context(), true)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, services)
}

// POST /api/bookings
func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	var req booking.Request
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	b, err := s.bookings.Create(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

// GET /api/bookings/{reference}
func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	b, err := s.bookings.GetByReference(r.Context(), r.PathValue("reference"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// DELETE /api/bookings/{reference}
func (s *HTTPServer) handleCancelBooking(w http.ResponseWriter, r *http.Request) {
	b, err := s.bookings.Cancel(r.Context(), r.PathValue("reference"))
	if err != nil {
		if errors.Is(err, booking.ErrInvalidTransition) {
			writeError(w, http.StatusConflict, "booking can no longer be cancelled")
			return
		}
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}
