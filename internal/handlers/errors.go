package handlers

import (
	"errors"
	"log/slog"
	"math"
	"net/http"

	"github.com/BradenHooton/garage/internal/models"
	"github.com/BradenHooton/garage/internal/services"
	pkghttp "github.com/BradenHooton/garage/pkg/http"
)

// writeServiceError maps a service error onto the JSON error envelope.
// Credential and account state failures share one generic 401.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var fieldErr *models.ValidationError
	var reqErr *RequestValidationError
	var rateErr *services.RateLimitError

	switch {
	case errors.As(err, &reqErr):
		pkghttp.WriteValidationError(w, "Validation failed", reqErr.Fields)
	case errors.As(err, &fieldErr):
		pkghttp.WriteValidationError(w, "Validation failed", map[string]string{fieldErr.Field: fieldErr.Message})
	case errors.As(err, &rateErr):
		pkghttp.WriteTooManyRequests(w, "Too many failed login attempts. Please try again later.", retryAfterSeconds(rateErr))
	case errors.Is(err, models.ErrRateLimited):
		pkghttp.WriteTooManyRequests(w, "Too many failed login attempts. Please try again later.", 0)
	case errors.Is(err, models.ErrStorageUnavailable):
		logger.Error("storage unavailable", slog.String("path", r.URL.Path), slog.Any("error", err))
		pkghttp.WriteServiceUnavailable(w, "Service temporarily unavailable")
	case errors.Is(err, models.ErrInvalidOrExpiredResetToken):
		pkghttp.WriteError(w, http.StatusBadRequest, "invalid_reset_token", "Reset link is invalid or has expired")
	case errors.Is(err, models.ErrWrongCurrentPassword):
		pkghttp.WriteUnauthorized(w, "Current password is incorrect")
	case errors.Is(err, models.ErrTokenExpired):
		pkghttp.WriteError(w, http.StatusUnauthorized, "session_expired", "Session expired")
	case errors.Is(err, models.ErrUnauthorized):
		pkghttp.WriteUnauthorized(w, "Authentication failed")
	case errors.Is(err, models.ErrForbidden):
		pkghttp.WriteForbidden(w, "Insufficient permissions")
	case errors.Is(err, models.ErrDuplicateUsername):
		pkghttp.WriteConflict(w, "Username already taken")
	case errors.Is(err, models.ErrDuplicateEmail):
		pkghttp.WriteConflict(w, "Email already registered")
	case errors.Is(err, models.ErrConflict):
		pkghttp.WriteConflict(w, "Resource already exists")
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteNotFound(w, "Resource not found")
	case errors.Is(err, models.ErrBadRequest):
		pkghttp.WriteBadRequest(w, "Invalid request")
	default:
		logger.Error("request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}

func retryAfterSeconds(err *services.RateLimitError) int {
	secs := int(math.Ceil(err.RetryAfter.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}
