package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sgdea/docucore/internal/core"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}

// statusFor maps error kinds to HTTP status codes. Unknown errors are treated
// as internal.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrDocumentNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrDocumentBusy):
		return http.StatusConflict
	case errors.Is(err, core.ErrDocumentNotReady):
		return http.StatusConflict
	case errors.Is(err, core.ErrCorruptDocument):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrGenerationUnavailable),
		errors.Is(err, core.ErrOCRUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
