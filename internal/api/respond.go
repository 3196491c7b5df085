package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"atelier/internal/access"
	"atelier/internal/availability"
	"atelier/internal/booking"
	"atelier/internal/manager"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func decodeJSON(r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

// writeServiceError maps domain errors to HTTP statuses. Unknown errors are logged and hidden.
func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var ade *access.AccessDeniedError
	switch {
	case errors.As(err, &ade):
		if ade.Unauthenticated {
			writeError(w, http.StatusUnauthorized, ade.Reason)
			return
		}
		writeError(w, http.StatusForbidden, ade.Reason)
	case booking.IsValidation(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, availability.ErrUnknownService), errors.Is(err, booking.ErrUnknownService):
		writeError(w, http.StatusNotFound, "service not found")
	case errors.Is(err, booking.ErrNotFound), errors.Is(err, manager.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, booking.ErrSlotUnavailable):
		writeError(w, http.StatusConflict, "slot is not available")
	case errors.Is(err, booking.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
