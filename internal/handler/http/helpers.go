package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/ecommerce-microservices/admin-service/internal/apperr"
	"github.com/vasiliy-maslov/ecommerce-microservices/admin-service/internal/catalog"
	"github.com/vasiliy-maslov/ecommerce-microservices/admin-service/internal/order"
)

const (
	CodeValidation        = "validation_error"
	CodeNotFound          = "not_found"
	CodeCategoryNotFound  = "category_not_found"
	CodeInvalidTransition = "invalid_transition"
	CodeStoreUnavailable  = "store_unavailable"
	CodeRequestCanceled   = "request_canceled"
	CodeInternal          = "internal_error"
)

// StatusClientClosedRequest is reported when the client went away before the
// request finished.
const StatusClientClosedRequest = 499

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string       `json:"error"`
	Code    string       `json:"code"`
	Field   string       `json:"field,omitempty"`
	From    string       `json:"from,omitempty"`
	To      string       `json:"to,omitempty"`
	Details []FieldError `json:"details,omitempty"`
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrorResponse is returned when a request DTO fails its struct tags.
type ValidationErrorResponse = ErrorResponse

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// formatValidationErrors turns validator output into one entry per field,
// named by its JSON path (customer.email, items[0].quantity).
func formatValidationErrors(errs validator.ValidationErrors) []FieldError {
	details := make([]FieldError, 0, len(errs))
	for _, fe := range errs {
		field := fe.Namespace()
		if _, rest, ok := strings.Cut(field, "."); ok {
			field = rest
		}

		var message string
		switch fe.Tag() {
		case "required":
			message = "is required"
		case "email":
			message = "must be a valid email address"
		case "min":
			message = fmt.Sprintf("must have at least %s element(s)", fe.Param())
			if fe.Kind() == reflect.String {
				message = fmt.Sprintf("must be at least %s characters long", fe.Param())
			}
		case "gt":
			message = fmt.Sprintf("must be greater than %s", fe.Param())
		case "gte":
			message = fmt.Sprintf("must be greater than or equal to %s", fe.Param())
		default:
			message = fmt.Sprintf("failed on the '%s' rule", fe.Tag())
		}

		details = append(details, FieldError{Field: field, Message: message})
	}
	return details
}

func respondWithValidationErrors(w http.ResponseWriter, err error) {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		log.Error().Err(err).Type("validation_error_type", err).Msg("Unexpected error type during validation")
		respondWithError(w, http.StatusInternalServerError, "Internal validation error")
		return
	}

	details := formatValidationErrors(validationErrors)
	respondWithJSON(w, http.StatusBadRequest, ValidationErrorResponse{
		Error:   "Validation failed",
		Code:    CodeValidation,
		Field:   details[0].Field,
		Details: details,
	})
}

// decodeJSON reads a single JSON object from the request body and rejects
// unknown fields.
func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return err
	}
	if decoder.More() {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}

func respondWithBadPayload(w http.ResponseWriter, err error) {
	log.Warn().Err(err).Msg("Failed to decode request body")
	respondWithJSON(w, http.StatusBadRequest, ErrorResponse{
		Error: fmt.Sprintf("Invalid request payload: %v", err),
		Code:  CodeValidation,
	})
}

func parseIDParam(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Invalid(name, fmt.Sprintf("%q is not a valid id", raw))
	}
	return id, nil
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal JSON response")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Failed to marshal JSON response","code":"internal_error"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write(response); err != nil {
		log.Error().Err(err).Msg("Failed to write JSON response")
	}
}

func mapErrorToStatusCode(err error) int {
	var (
		vErr          *apperr.ValidationError
		transitionErr *order.InvalidTransitionError
	)
	switch {
	case errors.As(err, &vErr):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &transitionErr):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled):
		return StatusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondWithDomainError writes the error body for an error returned by a
// service. Unexpected errors are logged and reported without detail.
func respondWithDomainError(w http.ResponseWriter, err error, fallback string) {
	status := mapErrorToStatusCode(err)
	body := ErrorResponse{Error: err.Error()}

	var (
		vErr          *apperr.ValidationError
		transitionErr *order.InvalidTransitionError
	)
	switch {
	case errors.As(err, &vErr):
		body.Code = CodeValidation
		body.Field = vErr.Field
		body.Error = vErr.Error()
	case errors.Is(err, catalog.ErrCategoryNotFound):
		body.Code = CodeCategoryNotFound
	case errors.Is(err, apperr.ErrNotFound):
		body.Code = CodeNotFound
	case errors.As(err, &transitionErr):
		body.Code = CodeInvalidTransition
		body.Error = transitionErr.Error()
		body.From = transitionErr.From.String()
		body.To = transitionErr.To.String()
	case errors.Is(err, apperr.ErrStoreUnavailable):
		body.Code = CodeStoreUnavailable
		body.Error = "Store is temporarily unavailable, retry the request"
	case errors.Is(err, context.Canceled):
		log.Warn().Err(err).Msg(fallback)
		body.Code = CodeRequestCanceled
		body.Error = "Request canceled"
	default:
		log.Error().Err(err).Msg(fallback)
		body.Code = CodeInternal
		body.Error = fallback
	}

	respondWithJSON(w, status, body)
}
