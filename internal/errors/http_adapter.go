package errors

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
)

// HTTPAdapter maps ClassifiedError values onto HTTP status codes and JSON
// payloads for the control API (spec §4.8). Grounded on the teacher's
// internal/foundation/errors.HTTPErrorAdapter, narrowed to the categories
// defined in categories.go.
type HTTPAdapter struct {
	logger *slog.Logger
}

// NewHTTPAdapter builds an adapter logging through logger, or the default
// slog logger if nil.
func NewHTTPAdapter(logger *slog.Logger) *HTTPAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPAdapter{logger: logger}
}

// Response is the JSON error payload written by the control API.
type Response struct {
	Error     string         `json:"error"`
	Code      string         `json:"code,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Retryable bool           `json:"retryable,omitempty"`
}

// StatusCodeFor maps err to an HTTP status. Unclassified errors map to 500.
func (a *HTTPAdapter) StatusCodeFor(err error) int {
	if err == nil {
		return http.StatusOK
	}
	c, ok := AsClassified(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch c.Category() {
	case CategoryConfig, CategoryProtocol:
		return http.StatusBadRequest
	case CategoryAuth:
		return http.StatusUnauthorized
	case CategoryEngine, CategoryHook, CategoryPartialFailure:
		return http.StatusUnprocessableEntity
	case CategoryInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// FormatResponse converts err into the canonical error payload.
func (a *HTTPAdapter) FormatResponse(err error) Response {
	if err == nil {
		return Response{}
	}
	c, ok := AsClassified(err)
	if !ok {
		return Response{Error: err.Error()}
	}
	resp := Response{Error: c.Message(), Code: string(c.Category())}
	if len(c.Context()) > 0 {
		resp.Details = map[string]any(c.Context())
	}
	if c.RetryStrategy() != RetryNever {
		resp.Retryable = true
	}
	return resp
}

// WriteResponse writes a JSON error response and logs it at the severity
// carried by the ClassifiedError.
func (a *HTTPAdapter) WriteResponse(w http.ResponseWriter, err error) {
	if err == nil {
		w.WriteHeader(http.StatusOK)
		return
	}

	status := a.StatusCodeFor(err)
	payload := a.FormatResponse(err)

	b, jerr := json.Marshal(payload)
	if jerr != nil {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"error":"internal error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(b)

	if c, ok := AsClassified(err); ok {
		a.logger.Log(context.Background(), levelFromSeverity(c.Severity()), c.Error())
		return
	}
	a.logger.Error(err.Error())
}

func levelFromSeverity(s Severity) slog.Level {
	switch s {
	case SeverityInfo:
		return slog.LevelInfo
	case SeverityWarning:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}
