package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"localsearch-forecast/engine"
)

const maxBodyBytes = 1 << 20

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// getValidator returns the shared validator instance
func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// errorResponse is the JSON body of every error
type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// decodeAndValidate reads a JSON body into dest and runs struct validation
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}

	if err := getValidator().Struct(dest); err != nil {
		var validationErrs validator.ValidationErrors
		if !errors.As(err, &validationErrs) {
			respondWithError(w, http.StatusBadRequest, "Invalid request body", err)
			return false
		}
		fields := make(map[string]string, len(validationErrs))
		messages := make([]string, 0, len(validationErrs))
		for _, fe := range validationErrs {
			msg := translateError(fe)
			fields[fe.Namespace()] = msg
			messages = append(messages, msg)
		}
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: strings.Join(messages, "; "), Fields: fields})
		return false
	}
	return true
}

// translateError converts a validator.FieldError to a readable message
func translateError(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "gte", "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "lte", "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

// getIntParam retrieves an integer query parameter; ok is false when the value is not a number
func getIntParam(r *http.Request, key string, defaultVal int) (int, bool) {
	valStr := r.URL.Query().Get(key)
	if valStr == "" {
		return defaultVal, true
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		return 0, false
	}
	return val, true
}

func respondJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

// respondWithError sends a JSON error response without exposing internal errors
func respondWithError(w http.ResponseWriter, code int, message string, err error) {
	if err != nil && code >= http.StatusInternalServerError {
		message = fmt.Sprintf("%s: %s", message, http.StatusText(code))
	} else if err != nil {
		message = fmt.Sprintf("%s: %v", message, err)
	}
	respondJSON(w, code, errorResponse{Error: message})
}

// respondWithEngineError maps engine errors to HTTP status codes
func (s *Server) respondWithEngineError(w http.ResponseWriter, message string, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, engine.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, engine.ErrInvalidFactorData), errors.Is(err, engine.ErrInvalidHorizon):
		code = http.StatusBadRequest
	case errors.Is(err, engine.ErrModelUnavailable):
		code = http.StatusServiceUnavailable
	case errors.Is(err, engine.ErrTimeout):
		code = http.StatusGatewayTimeout
	}
	if code >= http.StatusInternalServerError {
		s.logger.WithError(err).WithField("status", code).Error("API error: " + message)
	}
	respondWithError(w, code, message, err)
}
