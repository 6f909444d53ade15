package controllers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/rzbill/courier/internal/envelope"
)

// writeError writes an error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// writeServiceError maps a core error onto an HTTP status.
func writeServiceError(w http.ResponseWriter, err error) {
	writeError(w, statusOf(err), err.Error())
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, envelope.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, envelope.ErrBackpressureExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, envelope.ErrStorageFailure), errors.Is(err, envelope.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON writes a JSON response with the given data.
func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

// parseLimit parses a limit string. Returns 0 for empty or invalid values.
func parseLimit(limitStr string) int {
	if limitStr == "" {
		return 0
	}
	if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 {
		return limit
	}
	return 0
}

// parseDirection accepts "asc", "desc" or empty.
func parseDirection(s string) (envelope.Direction, error) {
	switch s {
	case "":
		return envelope.DirectionUnspecified, nil
	case "asc", "ascending":
		return envelope.DirectionAscending, nil
	case "desc", "descending":
		return envelope.DirectionDescending, nil
	default:
		return 0, fmt.Errorf("%w: direction %q must be asc or desc", envelope.ErrInvalidArgument, s)
	}
}
