package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/garage/internal/models"
	pkgauth "github.com/BradenHooton/garage/pkg/auth"
)

// UserRepository defines the interface for user data access
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	List(ctx context.Context, limit, offset int) ([]*models.User, error)
	Count(ctx context.Context) (int64, error)
	Create(ctx context.Context, user *models.User) (*models.User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string, changedAt time.Time) error
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
	UpdateStatus(ctx context.Context, id, status string) (*models.User, error)
}

// CreateUserInput is an account created by an administrator or at bootstrap
type CreateUserInput struct {
	Username string
	Email    string
	Password string
	FullName string
	Role     string
	Status   string
}

// UserService handles user administration
type UserService struct {
	repo     UserRepository
	sessions *SessionStore
	hasher   *pkgauth.Hasher
	audit    *AuditService
	logger   *slog.Logger
}

func NewUserService(repo UserRepository, sessions *SessionStore, hasher *pkgauth.Hasher, audit *AuditService, logger *slog.Logger) *UserService {
	return &UserService{
		repo:     repo,
		sessions: sessions,
		hasher:   hasher,
		audit:    audit,
		logger:   logger,
	}
}

// GetUser retrieves a user by ID
func (s *UserService) GetUser(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to get user", slog.String("user_id", id), slog.Any("error", err))
		return nil, internalError("get user", err)
	}
	return user, nil
}

// ListUsers retrieves a page of users and the total count
func (s *UserService) ListUsers(ctx context.Context, limit, offset int) ([]*models.User, int64, error) {
	users, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		s.logger.Error("failed to list users", slog.Int("limit", limit), slog.Int("offset", offset), slog.Any("error", err))
		return nil, 0, internalError("list users", err)
	}

	total, err := s.repo.Count(ctx)
	if err != nil {
		s.logger.Error("failed to count users", slog.Any("error", err))
		return nil, 0, internalError("count users", err)
	}

	return users, total, nil
}

// CreateUser creates an account with any role
func (s *UserService) CreateUser(ctx context.Context, actorID string, input CreateUserInput) (*models.User, error) {
	user, err := buildUser(s.hasher, input.Username, input.Email, input.Password, input.FullName, input.Role)
	if err != nil {
		return nil, err
	}

	if input.Status != "" {
		if !models.ValidStatus(input.Status) {
			return nil, models.NewValidationError("status", "must be one of active, suspended, pending", models.ErrInvalidInput)
		}
		user.Status = input.Status
	}

	created, err := s.repo.Create(ctx, user)
	if err != nil {
		return nil, createUserError(s.logger, err)
	}

	s.logger.Info("user created",
		slog.String("user_id", created.ID),
		slog.String("role", created.Role),
		slog.String("actor_id", actorID))
	s.audit.Record(ctx, AuditEntry{
		Action:   models.AuditActionRegister,
		UserID:   created.ID,
		Username: created.Username,
		Success:  true,
		Metadata: map[string]string{"role": created.Role, "actor_id": actorID},
	})

	return created, nil
}

// EnsureAdmin creates the bootstrap administrator unless an account with
// username already exists. Reports whether an account was created.
func (s *UserService) EnsureAdmin(ctx context.Context, username, email, password string) (bool, error) {
	_, err := s.repo.GetByUsername(ctx, normalizeUsername(username))
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return false, internalError("look up admin", err)
	}

	_, err = s.CreateUser(ctx, "", CreateUserInput{
		Username: username,
		Email:    email,
		Password: password,
		FullName: "Administrator",
		Role:     models.RoleAdmin,
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// UpdateStatus changes an account's status. Moving a user out of active
// ends all of their sessions. Admins cannot change their own status.
func (s *UserService) UpdateStatus(ctx context.Context, actorID, userID, status string) (*models.User, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	if !models.ValidStatus(status) {
		return nil, models.NewValidationError("status", "must be one of active, suspended, pending", models.ErrInvalidInput)
	}
	if actorID == userID {
		return nil, models.ErrForbidden
	}

	user, err := s.repo.UpdateStatus(ctx, userID, status)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to update user status", slog.String("user_id", userID), slog.Any("error", err))
		return nil, internalError("update status", err)
	}

	if status != models.StatusActive && s.sessions != nil {
		n, err := s.sessions.InvalidateUser(ctx, userID, "")
		if err != nil {
			s.logger.Error("failed to end sessions after status change",
				slog.String("user_id", userID),
				slog.Any("error", err))
			return nil, err
		}
		s.logger.Info("sessions ended after status change",
			slog.String("user_id", userID),
			slog.Int64("count", n))
	}

	s.audit.Record(ctx, AuditEntry{
		Action:   models.AuditActionStatusChange,
		UserID:   userID,
		Username: user.Username,
		Success:  true,
		Metadata: map[string]string{"status": status, "actor_id": actorID},
	})

	return user, nil
}

// buildUser validates account fields and hashes the password
func buildUser(hasher *pkgauth.Hasher, username, email, password, fullName, role string) (*models.User, error) {
	username = normalizeUsername(username)
	email = normalizeEmail(email)
	fullName = strings.TrimSpace(fullName)
	if role == "" {
		role = models.RoleCustomer
	}

	if err := validateUsername(username); err != nil {
		return nil, err
	}
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validateFullName(fullName); err != nil {
		return nil, err
	}
	if err := validateRole(role); err != nil {
		return nil, err
	}
	if err := validateNewPassword("password", password); err != nil {
		return nil, err
	}

	encoded, err := hasher.HashPassword(password)
	if err != nil {
		return nil, internalError("hash password", err)
	}

	return &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: encoded,
		FullName:     fullName,
		Role:         role,
		Status:       models.StatusActive,
	}, nil
}

func createUserError(logger *slog.Logger, err error) error {
	switch {
	case errors.Is(err, models.ErrDuplicateUsername), errors.Is(err, models.ErrDuplicateEmail):
		return err
	case errors.Is(err, models.ErrConflict):
		return models.ErrConflict
	}
	logger.Error("failed to create user", slog.Any("error", err))
	return internalError("create user", err)
}
