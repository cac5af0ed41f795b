package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/kalambet/mockmate/internal/gateway"
	"github.com/kalambet/mockmate/internal/interview"
	"github.com/kalambet/mockmate/internal/llm"
	"github.com/kalambet/mockmate/internal/storage"
)

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

// writeError maps a domain error to its HTTP status and writes the
// envelope with the error's own message.
func writeError(w http.ResponseWriter, err error) {
	code, errType := classify(err)
	httpError(w, code, errType, "%s", err.Error())
}

func classify(err error) (int, string) {
	var (
		cfgErr       *llm.ConfigurationError
		upstreamErr  *llm.UpstreamError
		malformedErr *gateway.MalformedResponseError
	)
	switch {
	case errors.Is(err, interview.ErrNoActiveSession), errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, interview.ErrBusy), errors.Is(err, interview.ErrSessionActive):
		return http.StatusConflict, "conflict_error"
	case errors.As(err, &cfgErr):
		return http.StatusFailedDependency, "configuration_error"
	case errors.Is(err, interview.ErrEmptyQuestionSet),
		errors.As(err, &upstreamErr),
		errors.As(err, &malformedErr):
		return http.StatusBadGateway, "upstream_error"
	default:
		return http.StatusInternalServerError, "api_error"
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
