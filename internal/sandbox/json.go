package sandbox

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/florianilch/taplinks-cli/internal/model"
)

// requestID returns the client-supplied correlation id or a fresh one.
func requestID(r *http.Request) string {
	if id := r.Header.Get("X-Request-Id"); id != "" {
		return id
	}
	return uuid.NewString()
}

// writeJSON writes a JSON response with the given status code.
// Logs encoding failures internally using the provided context.
func writeJSON(ctx context.Context, w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	// Headers and status are written before encoding to avoid buffering.
	// If encoding fails, the client may receive a partial response.
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.ErrorContext(ctx, "failed to encode JSON response", "error", err)
	}
}

// writeData writes data inside the success envelope.
func (s *Server) writeData(w http.ResponseWriter, r *http.Request, data any, status int) {
	writeJSON(r.Context(), w, model.Response[any]{
		Meta: map[string]string{
			"requestId": requestID(r),
			"timestamp": s.now().UTC().Format(time.RFC3339),
		},
		Data: data,
	}, status)
}

// writeError writes the error envelope. errorName defaults to the status text.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, errorName, message string, details map[string]string) {
	if errorName == "" {
		errorName = http.StatusText(status)
	}
	writeJSON(r.Context(), w, model.ErrorResponse{
		Error: model.ErrorObject{
			StatusCode: status,
			Message:    message,
			ErrorName:  errorName,
			Details:    details,
			Path:       r.URL.Path,
			RequestID:  requestID(r),
			Timestamp:  s.now().UTC().Format(time.RFC3339),
		},
	}, status)
}

// decodeBody decodes a JSON request body into v, writing a 400 on failure.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, r, http.StatusBadRequest, "BadRequest", "invalid JSON body: "+err.Error(), nil)
		return false
	}
	return true
}
