package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/xraph/queuectl"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("writeJSON: encode failed", slog.String("error", err.Error()))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// statusFor maps queuectl sentinel errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, queuectl.ErrInvalidPayload):
		return http.StatusBadRequest
	case errors.Is(err, queuectl.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, queuectl.ErrJobAlreadyExists), errors.Is(err, queuectl.ErrNotRequeueable):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeStoreError writes err with its mapped status. Internal errors are
// logged and replaced by a generic message.
func (a *API) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		a.logger.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}
