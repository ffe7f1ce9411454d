package services

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/BradenHooton/garage/internal/models"
	pkgauth "github.com/BradenHooton/garage/pkg/auth"
	"github.com/go-playground/validator/v10"
)

const (
	minUsernameLen = 3
	maxUsernameLen = 50
	maxFullNameLen = 100
)

var (
	usernamePattern = regexp.MustCompile(`^[a-z0-9._-]+$`)
	validate        = validator.New()
)

func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateUsername(username string) error {
	n := utf8.RuneCountInString(username)
	if n < minUsernameLen || n > maxUsernameLen {
		return models.NewValidationError("username", "must be between 3 and 50 characters", models.ErrInvalidInput)
	}
	if !usernamePattern.MatchString(username) {
		return models.NewValidationError("username", "may only contain letters, digits, dots, dashes and underscores", models.ErrInvalidInput)
	}
	return nil
}

func validateEmail(email string) error {
	if err := validate.Var(email, "required,email,max=254"); err != nil {
		return models.NewValidationError("email", "must be a valid email address", models.ErrInvalidEmail)
	}
	return nil
}

func validateFullName(name string) error {
	if utf8.RuneCountInString(name) > maxFullNameLen {
		return models.NewValidationError("full_name", "must be at most 100 characters", models.ErrInvalidInput)
	}
	return nil
}

func validateRole(role string) error {
	if !models.ValidRole(role) {
		return models.NewValidationError("role", "must be one of admin, staff, customer", models.ErrInvalidInput)
	}
	return nil
}

func validateNewPassword(field, password string) error {
	if err := pkgauth.ValidatePassword(password); err != nil {
		return models.NewValidationError(field, err.Error(), models.ErrWeakPassword)
	}
	return nil
}
