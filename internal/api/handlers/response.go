package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/zatekoja/patientinsights/internal/application/services"
	"github.com/zatekoja/patientinsights/internal/domain/providers"
	"github.com/zatekoja/patientinsights/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/patientinsights/pkg/errors"
)

// maxBodyBytes bounds request bodies. Merged records for a single patient
// stay well below this.
const maxBodyBytes = 8 << 20

var bodyValidator = validator.New()

type unavailableResponse struct {
	Status    string `json:"status"`
	Retryable bool   `json:"retryable"`
	Error     string `json:"error,omitempty"`
}

// decodeJSON reads a JSON body into v and validates it. Failures come back
// as validation errors.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return apperrors.NewValidationError("request body is required")
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperrors.Validationf("request body exceeds %d bytes", tooLarge.Limit)
		}
		return apperrors.NewValidationError("invalid request payload")
	}
	if err := bodyValidator.Struct(v); err != nil {
		return apperrors.NewValidationError(err.Error())
	}
	return nil
}

func respondWithJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	respondWithJSON(w, statusCode, map[string]string{
		"error": message,
	})
}

// respondWithAppError maps an error to its HTTP status. Model failures are
// reported as retryable 503s; anything unclassified is a logged 500.
func respondWithAppError(w http.ResponseWriter, r *http.Request, err error) {
	switch apperrors.TypeOf(err) {
	case apperrors.ErrorTypeValidation:
		respondWithError(w, http.StatusBadRequest, appMessage(err))
		return
	case apperrors.ErrorTypeNotFound:
		respondWithError(w, http.StatusNotFound, appMessage(err))
		return
	}

	if isUnavailable(err) {
		observability.LoggerFromContext(r.Context()).Warn().Err(err).Str("path", r.URL.Path).Msg("model output unavailable")
		respondWithJSON(w, http.StatusServiceUnavailable, unavailableResponse{
			Status:    "unavailable",
			Retryable: true,
			Error:     "generated content is temporarily unavailable",
		})
		return
	}

	observability.LoggerFromContext(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	respondWithError(w, http.StatusInternalServerError, "internal server error")
}

func isUnavailable(err error) bool {
	return apperrors.IsRetryable(err) ||
		errors.Is(err, services.ErrNarrativeUnavailable) ||
		errors.Is(err, services.ErrExplanationUnavailable) ||
		errors.Is(err, providers.ErrModelUnavailable)
}

func appMessage(err error) string {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}
