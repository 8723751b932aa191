package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/tonimelisma/irdrive/internal/auth"
	"github.com/tonimelisma/irdrive/internal/driveops"
	"github.com/tonimelisma/irdrive/internal/incident"
)

type errorBody struct {
	Error string `json:"error"`
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, auth.ErrReauthRequired):
		return http.StatusUnauthorized
	case errors.Is(err, incident.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, incident.ErrInvalidSerial),
		errors.Is(err, incident.ErrInvalidYear),
		errors.Is(err, incident.ErrUnknownSite),
		errors.Is(err, driveops.ErrInvalidPath),
		errors.Is(err, driveops.ErrNotFile):
		return http.StatusBadRequest
	case errors.Is(err, driveops.ErrRootNotFound):
		return http.StatusInternalServerError
	case errors.Is(err, driveops.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, driveops.ErrNotFolder), errors.Is(err, driveops.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, driveops.ErrTransport):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)

	msg := err.Error()
	if status == http.StatusUnauthorized {
		msg = "sign_in_required"
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}

	writeJSON(w, status, errorBody{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
