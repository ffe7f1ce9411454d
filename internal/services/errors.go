package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/BradenHooton/garage/internal/models"
)

func isStorageUnavailable(err error) bool {
	return errors.Is(err, models.ErrStorageUnavailable)
}

// internalError keeps storage outages distinguishable from every other
// unexpected failure, which collapses to ErrInternalServer
func internalError(op string, err error) error {
	if isStorageUnavailable(err) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %v", op, models.ErrInternalServer, err)
}

// RateLimitError is returned while a login key is locked out. It matches
// models.ErrRateLimited with errors.Is.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: retry after %s", models.ErrRateLimited, e.RetryAfter.Round(time.Second))
}

func (e *RateLimitError) Unwrap() error {
	return models.ErrRateLimited
}
