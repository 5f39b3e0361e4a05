package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/goccy/go-json"
	"gwi.com/myblog/internal/core"
	"gwi.com/myblog/internal/logging"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// decodeJSON reads a JSON body into v. Any failure is reported as a 400.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "Request body is empty")
		} else {
			writeError(w, http.StatusBadRequest, "Invalid JSON data")
		}
		return false
	}
	return true
}

// writeServiceError maps service errors onto HTTP statuses. Unclassified
// errors are logged and hidden behind a generic 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var svcErr *core.Error
	if errors.As(err, &svcErr) {
		writeError(w, statusForCode(svcErr.Code), svcErr.Message)
		return
	}
	logging.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
	writeError(w, http.StatusInternalServerError, "Internal server error")
}

func statusForCode(code core.ErrorCode) int {
	switch code {
	case core.CodeValidation, core.CodeInvalidParticipants:
		return http.StatusBadRequest
	case core.CodeNotFound:
		return http.StatusNotFound
	case core.CodeForbidden:
		return http.StatusForbidden
	case core.CodeConflict:
		return http.StatusConflict
	case core.CodeUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
