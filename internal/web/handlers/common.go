package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/kozaktomas/face-gate/internal/constants"
	"github.com/kozaktomas/face-gate/internal/identity"
	"github.com/kozaktomas/face-gate/internal/session"
	"github.com/kozaktomas/face-gate/internal/web/middleware"
	"github.com/sirupsen/logrus"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// DuplicateResponse is the 409 body of an enrollment that matched an existing identity.
type DuplicateResponse struct {
	Error    string           `json:"error"`
	Existing identity.Summary `json:"existing"`
	Distance float64          `json:"distance"`
}

// respondDomainError maps engine errors to HTTP status codes. Anything unrecognised is a 500.
func respondDomainError(w http.ResponseWriter, log logrus.FieldLogger, err error) {
	var (
		validationErr *session.ValidationError
		noFaceErr     *session.NoFaceError
		duplicateErr  *session.DuplicateIdentityError
		stateErr      *session.InvalidStateError
		noEnrolledErr *session.NoEnrolledIdentitiesError
	)

	switch {
	case errors.As(err, &validationErr):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &noFaceErr):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &duplicateErr):
		respondJSON(w, http.StatusConflict, DuplicateResponse{
			Error:    err.Error(),
			Existing: identity.Summary{ID: duplicateErr.ID, Name: duplicateErr.Name},
			Distance: duplicateErr.Distance,
		})
	case errors.As(err, &stateErr):
		respondError(w, http.StatusConflict, err.Error())
	case errors.As(err, &noEnrolledErr):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, middleware.ErrTooManySessions):
		respondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		log.WithError(err).Error("Request failed")
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

// decodeJSON reads a size-limited JSON body into dst and validates it.
// On failure it writes a 400 response and returns false.
func decodeJSON(w http.ResponseWriter, r *http.Request, v *validator.Validate, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, constants.MaxRequestBodySize)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			respondError(w, http.StatusBadRequest, errInvalidRequestBody)
			return false
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return false
	}

	if err := v.Struct(dst); err != nil {
		respondError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

// validationMessage turns validator errors into one readable line.
func validationMessage(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s: must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s: %s", fe.Field(), fe.Tag()))
		}
	}
	return "invalid request: " + strings.Join(parts, ", ")
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
