package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/starford/laguz/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

// writePNG sends a rendered image that must not be cached; it changes with
// every label edit.
func writePNG(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

type errResponse struct {
	Error string `json:"error" validate:"required"`
	Code  string `json:"code,omitempty" example:"invalid_transition"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

var errorStatus = []struct {
	err    error
	code   string
	status int
}{
	{apperr.ErrNotFound, "not_found", http.StatusNotFound},
	{apperr.ErrInvalidTransition, "invalid_transition", http.StatusConflict},
	{apperr.ErrNotLoaded, "not_loaded", http.StatusConflict},
	{apperr.ErrResourceExhausted, "resource_exhausted", http.StatusConflict},
	{apperr.ErrOutOfRange, "out_of_range", http.StatusBadRequest},
	{apperr.ErrInvalidInput, "invalid_input", http.StatusBadRequest},
}

// writeError maps domain errors to status codes. Anything unrecognised is
// logged and reported as an internal error.
func writeError(w http.ResponseWriter, op string, err error) {
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			writeJSON(w, e.status, errResponse{Error: err.Error(), Code: e.code})
			return
		}
	}
	slog.Error(op+" failed", slog.String("error", err.Error()))
	writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
}
