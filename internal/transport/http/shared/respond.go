// Package shared holds the response helpers every handler uses so the error
// envelope stays identical across the surface.
package shared

import (
	"encoding/json"
	"log/slog"
	"net/http"

	dErrors "gatepass/pkg/domain-errors"
)

// WriteJSON encodes v with the given status. Encoding failures are logged
// and abandoned; the status line is already on the wire.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

type errorEnvelope struct {
	Error    string `json:"error"`
	Message  string `json:"message"`
	Severity string `json:"severity,omitempty"`
}

// WriteError maps a coded error onto the envelope. Unknown errors become an
// opaque 500; internal detail never reaches the client.
func WriteError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	de, ok := dErrors.As(err)
	if !ok {
		de = dErrors.Wrap(err, dErrors.CodeInternal, "internal error")
	}

	status := dErrors.ToHTTPStatus(de.Code)
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "request failed",
			"path", r.URL.Path,
			"error", err,
		)
		WriteJSON(w, status, errorEnvelope{Error: string(dErrors.CodeInternal), Message: "internal error"})
		return
	}

	WriteJSON(w, status, errorEnvelope{
		Error:    string(de.Code),
		Message:  de.Message,
		Severity: string(de.Severity),
	})
}
