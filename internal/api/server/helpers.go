package server

import (
	"encoding/json"
	"net/http"

	"grimm.is/rampart/internal/api"
	"grimm.is/rampart/internal/i18n"
)

// writeJSON sends a JSON success response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError sends the uniform {status, message} error body.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, api.ErrorResponse{Status: status, Message: message})
}

// writeErrorCtx sends a localized error body.
func writeErrorCtx(w http.ResponseWriter, r *http.Request, status int, key string, args ...any) {
	writeError(w, status, i18n.GetPrinter(r.Context()).Sprintf(key, args...))
}

// writeFieldErrors sends a 400 with per-field messages.
func writeFieldErrors(w http.ResponseWriter, r *http.Request, fields map[string]string) {
	writeJSON(w, http.StatusBadRequest, api.ErrorResponse{
		Status:  http.StatusBadRequest,
		Message: i18n.GetPrinter(r.Context()).Sprintf(i18n.ErrValidation),
		Errors:  fields,
	})
}

// decodeJSON reads a request body into v, answering 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// statusWriter captures the status code for logging and metrics.
type statusWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (rw *statusWriter) WriteHeader(status int) {
	rw.status = status
	rw.ResponseWriter.WriteHeader(status)
}

func (rw *statusWriter) Write(b []byte) (int, error) {
	if rw.status == 0 {
		rw.status = http.StatusOK
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.size += n
	return n, err
}
