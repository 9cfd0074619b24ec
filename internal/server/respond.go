package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/biogas-cli/internal/dashboard"
	"github.com/sells-group/biogas-cli/internal/ingest"
	"github.com/sells-group/biogas-cli/internal/kinetics"
	"github.com/sells-group/biogas-cli/internal/store"
)

// errorResponse is the body of every non-2xx JSON response.
type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("server: encode response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, errorResponse{Error: msg})
}

// respondServiceError maps domain errors onto HTTP statuses. Anything
// unrecognized is logged and reported as a 500 without details.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, kinetics.ErrInvalidInput),
		errors.Is(err, dashboard.ErrInvalidReportType),
		errors.Is(err, ingest.ErrDecode):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, dashboard.ErrNoActiveStage):
		respondError(w, http.StatusNotFound, "no active stage")
	case errors.Is(err, store.ErrNotFound):
		respondError(w, http.StatusNotFound, "not found")
	case errors.Is(err, dashboard.ErrFileUnavailable):
		respondError(w, http.StatusNotFound, "file not available")
	default:
		zap.L().Error("server: request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

// decodeAndValidate reads a JSON body into dst and runs struct validation.
// On failure the response is already written.
func (s *Server) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{
			Error:  "validation failed",
			Fields: validationFields(err),
		})
		return false
	}
	return true
}

func validationFields(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string]string{"error": err.Error()}
	}
	out := make(map[string]string, len(verrs))
	for _, e := range verrs {
		field := strings.ToLower(e.Field())
		switch e.Tag() {
		case "required":
			out[field] = "is required"
		case "gte", "gt", "lte", "lt", "min", "max":
			out[field] = fmt.Sprintf("must be %s %s", e.Tag(), e.Param())
		case "oneof":
			out[field] = "must be one of: " + e.Param()
		case "datetime":
			out[field] = "must be a date formatted " + e.Param()
		default:
			out[field] = "is invalid"
		}
	}
	return out
}

// queryInt parses an optional non-negative integer query parameter.
func queryInt(r *http.Request, key string) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, eris.Errorf("%s must be a non-negative integer", key)
	}
	return n, nil
}
