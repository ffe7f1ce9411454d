package services

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BradenHooton/garage/internal/auth"
	"github.com/BradenHooton/garage/internal/models"
	pkgauth "github.com/BradenHooton/garage/pkg/auth"
	pkglogger "github.com/BradenHooton/garage/pkg/logger"
)

// PasswordResetRequestedMessage is returned for every reset request so the
// response never reveals whether an account exists
const PasswordResetRequestedMessage = "If an account with that email exists, a password reset link has been sent."

// PasswordResetRepository stores hashed single-use reset tokens
type PasswordResetRepository interface {
	Replace(ctx context.Context, token *models.PasswordResetToken) error
	Consume(ctx context.Context, tokenHash string, now time.Time) (string, error)
	InvalidateForUser(ctx context.Context, userID string, now time.Time) (int64, error)
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

type AuthConfig struct {
	ResetTokenTTL time.Duration
	ResetURLBase  string
}

var DefaultAuthConfig = AuthConfig{
	ResetTokenTTL: time.Hour,
	ResetURLBase:  "http://localhost:5173/reset-password",
}

// AuthService handles authentication business logic
type AuthService struct {
	users    UserRepository
	resets   PasswordResetRepository
	sessions *SessionStore
	limiter  *RateLimiter
	hasher   *pkgauth.Hasher
	email    EmailService
	audit    *AuditService
	timing   *auth.TimingDelay
	config   AuthConfig
	logger   *slog.Logger
	now      func() time.Time

	// dummyHash is verified against when the username is unknown so both
	// paths cost one key derivation
	dummyHash string

	// mail tracks reset emails still being handed to the provider
	mail sync.WaitGroup
}

// emailSendTimeout bounds one reset email delivery to the provider
const emailSendTimeout = 30 * time.Second

func NewAuthService(
	users UserRepository,
	resets PasswordResetRepository,
	sessions *SessionStore,
	limiter *RateLimiter,
	hasher *pkgauth.Hasher,
	email EmailService,
	audit *AuditService,
	timing *auth.TimingDelay,
	config AuthConfig,
	logger *slog.Logger,
) *AuthService {
	if config.ResetTokenTTL <= 0 {
		config.ResetTokenTTL = DefaultAuthConfig.ResetTokenTTL
	}

	dummy, err := hasher.HashPassword("garage-timing-equaliser")
	if err != nil {
		logger.Warn("failed to prepare dummy credential", slog.Any("error", err))
	}

	return &AuthService{
		users:     users,
		resets:    resets,
		sessions:  sessions,
		limiter:   limiter,
		hasher:    hasher,
		email:     email,
		audit:     audit,
		timing:    timing,
		config:    config,
		logger:    logger,
		now:       time.Now,
		dummyHash: dummy,
	}
}

// RegisterInput is a self-service or administrative registration
type RegisterInput struct {
	Username  string
	Email     string
	Password  string
	FullName  string
	Role      string
	IPAddress string
}

// LoginInput carries credentials and request context for one login attempt
type LoginInput struct {
	Username  string
	Password  string
	ClientIP  string
	UserAgent string
	Surface   string
}

type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	User      *models.User
}

type ResetRequestResult struct {
	Message string
	// ResetLink is set only when a token was issued
	ResetLink string
}

// Register creates a new account. An empty role means customer.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*models.User, error) {
	user, err := buildUser(s.hasher, input.Username, input.Email, input.Password, input.FullName, input.Role)
	if err != nil {
		return nil, err
	}

	created, err := s.users.Create(ctx, user)
	if err != nil {
		s.logger.Info("registration failed", slog.Any("error", err))
		return nil, createUserError(s.logger, err)
	}

	s.logger.Info("user registered", slog.String("user_id", created.ID), slog.String("role", created.Role))
	s.audit.Record(ctx, AuditEntry{
		Action:    models.AuditActionRegister,
		UserID:    created.ID,
		Username:  created.Username,
		IPAddress: input.IPAddress,
		Success:   true,
	})

	return created, nil
}

// Login verifies credentials for a surface and starts a session.
// Each attempt is claimed against the rate limiter before any hashing, so
// blocked keys never reach the hasher; only a successful login clears the
// keys. Every credential mismatch, including an account that does not
// belong to the surface, is reported as ErrInvalidCredentials. Account state
// is only revealed after the password has matched.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	username := normalizeUsername(input.Username)
	surface := input.Surface
	if surface != models.SurfaceStaff && surface != models.SurfaceCustomer {
		return nil, models.NewValidationError("surface", "unknown login surface", models.ErrInvalidInput)
	}
	if username == "" || input.Password == "" {
		return nil, models.ErrInvalidCredentials
	}

	keys := []string{Key(surface, RateLimitKindUser, username)}
	if input.ClientIP != "" {
		keys = append(keys, Key(surface, RateLimitKindIP, input.ClientIP))
	}

	for _, key := range keys {
		remaining, err := s.limiter.Claim(ctx, key)
		if err != nil {
			s.logger.Error("rate limit check failed", slog.Any("error", err))
			return nil, err
		}
		if remaining > 0 {
			s.logger.Info("login rejected: rate limited", slog.String("surface", surface))
			s.recordLoginFailure(ctx, input, username, "", "rate_limited")
			return nil, &RateLimitError{RetryAfter: remaining}
		}
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			s.logger.Error("failed to get user by username", slog.Any("error", err))
			return nil, internalError("load user", err)
		}
		s.hasher.Verify(input.Password, s.dummyHash)
		return nil, s.failLogin(ctx, input, username, "", "invalid_credentials")
	}

	if !s.hasher.Verify(input.Password, user.PasswordHash) {
		return nil, s.failLogin(ctx, input, username, user.ID, "invalid_credentials")
	}

	if !models.SurfaceAllowsRole(surface, user.Role) {
		return nil, s.failLogin(ctx, input, username, user.ID, "wrong_surface")
	}

	switch user.Status {
	case models.StatusActive:
	case models.StatusSuspended:
		s.recordLoginFailure(ctx, input, username, user.ID, "account_suspended")
		return nil, models.ErrAccountSuspended
	case models.StatusPending:
		s.recordLoginFailure(ctx, input, username, user.ID, "account_pending")
		return nil, models.ErrAccountPending
	default:
		s.logger.Error("unknown account status", slog.String("user_id", user.ID), slog.String("status", user.Status))
		return nil, models.ErrInvalidCredentials
	}

	for _, key := range keys {
		if err := s.limiter.RecordSuccess(ctx, key); err != nil {
			s.logger.Warn("failed to clear rate limit", slog.Any("error", err))
		}
	}

	if s.hasher.NeedsRehash(user.PasswordHash) {
		s.upgradeCredential(ctx, user, input.Password)
	}

	token, session, err := s.sessions.Create(ctx, user.ID, SessionMeta{
		Surface:   surface,
		IPAddress: input.ClientIP,
		UserAgent: input.UserAgent,
	})
	if err != nil {
		s.logger.Error("failed to create session", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, err
	}

	now := s.now().UTC()
	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		s.logger.Warn("failed to record last login", slog.String("user_id", user.ID), slog.Any("error", err))
	} else {
		user.LastLoginAt = &now
	}

	s.logger.Info("user logged in", slog.String("user_id", user.ID), slog.String("surface", surface))
	s.audit.Record(ctx, AuditEntry{
		Action:    models.AuditActionLogin,
		UserID:    user.ID,
		Username:  user.Username,
		IPAddress: input.ClientIP,
		Surface:   surface,
		Success:   true,
	})

	return &LoginResult{
		Token:     token,
		ExpiresAt: session.ExpiresAt,
		User:      user,
	}, nil
}

// failLogin audits a credential mismatch and returns the error the caller
// should see. The attempt was already counted when it was claimed.
func (s *AuthService) failLogin(ctx context.Context, input LoginInput, username, userID, reason string) error {
	s.logger.Info("login failed: invalid credentials", slog.String("surface", input.Surface))
	s.recordLoginFailure(ctx, input, username, userID, reason)
	return models.ErrInvalidCredentials
}

func (s *AuthService) recordLoginFailure(ctx context.Context, input LoginInput, username, userID, reason string) {
	s.audit.Record(ctx, AuditEntry{
		Action:        models.AuditActionFailedLogin,
		UserID:        userID,
		Username:      username,
		IPAddress:     input.ClientIP,
		Surface:       input.Surface,
		Success:       false,
		FailureReason: reason,
	})
}

// upgradeCredential stores a fresh credential for a user whose stored one
// uses a legacy format or fewer iterations. Failures only log.
func (s *AuthService) upgradeCredential(ctx context.Context, user *models.User, password string) {
	encoded, err := s.hasher.HashPassword(password)
	if err != nil {
		s.logger.Warn("failed to rehash credential", slog.String("user_id", user.ID), slog.Any("error", err))
		return
	}

	if err := s.users.UpdatePassword(ctx, user.ID, encoded, s.now().UTC()); err != nil {
		s.logger.Warn("failed to store rehashed credential", slog.String("user_id", user.ID), slog.Any("error", err))
		return
	}

	user.PasswordHash = encoded
	s.logger.Info("credential upgraded", slog.String("user_id", user.ID))
}

// Authenticate resolves a session token to its user. Accounts that are no
// longer active lose all their sessions.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*models.User, *models.Session, error) {
	token = strings.TrimSpace(token)
	session, err := s.sessions.Validate(ctx, token)
	if err != nil {
		return nil, nil, err
	}

	user, err := s.users.GetByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Warn("session for unknown user", slog.String("user_id", session.UserID))
			if err := s.sessions.Invalidate(ctx, token); err != nil {
				s.logger.Warn("failed to end orphaned session", slog.String("user_id", session.UserID), slog.Any("error", err))
			}
			return nil, nil, models.ErrInvalidToken
		}
		s.logger.Error("failed to load session user", slog.String("user_id", session.UserID), slog.Any("error", err))
		return nil, nil, internalError("load session user", err)
	}

	if !user.IsActive() {
		s.logger.Info("session rejected: account not active",
			slog.String("user_id", user.ID),
			slog.String("status", user.Status))
		if _, err := s.sessions.InvalidateUser(ctx, user.ID, ""); err != nil {
			s.logger.Warn("failed to end sessions of inactive user", slog.String("user_id", user.ID), slog.Any("error", err))
		}
		return nil, nil, models.ErrInvalidToken
	}

	return user, session, nil
}

// ChangePassword rotates the credential after verifying the current one.
// Every other session of the user ends; the one identified by currentToken
// is kept.
func (s *AuthService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword, currentToken string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrInvalidToken
		}
		s.logger.Error("failed to load user for password change", slog.String("user_id", userID), slog.Any("error", err))
		return internalError("load user", err)
	}

	if !s.hasher.Verify(currentPassword, user.PasswordHash) {
		s.logger.Info("password change rejected: wrong current password", slog.String("user_id", userID))
		s.audit.Record(ctx, AuditEntry{
			Action:        models.AuditActionPasswordChange,
			UserID:        userID,
			Username:      user.Username,
			Success:       false,
			FailureReason: "wrong_current_password",
		})
		return models.ErrWrongCurrentPassword
	}

	if err := validateNewPassword("new_password", newPassword); err != nil {
		return err
	}
	if newPassword == currentPassword {
		return models.NewValidationError("new_password", "must differ from the current password", models.ErrInvalidInput)
	}

	if err := s.setPassword(ctx, userID, newPassword); err != nil {
		return err
	}

	n, err := s.sessions.InvalidateUser(ctx, userID, currentToken)
	if err != nil {
		s.logger.Error("failed to end other sessions", slog.String("user_id", userID), slog.Any("error", err))
		return err
	}

	s.logger.Info("password changed", slog.String("user_id", userID), slog.Int64("sessions_ended", n))
	s.audit.Record(ctx, AuditEntry{
		Action:   models.AuditActionPasswordChange,
		UserID:   userID,
		Username: user.Username,
		Success:  true,
	})

	return nil
}

// RequestPasswordReset issues a reset token for an active account with email
// and mails the link. The message and the response time are the same whether
// or not the account exists.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email, clientIP string) (*ResetRequestResult, error) {
	start := time.Now()
	defer s.timing.WaitFrom(ctx, start)

	result := &ResetRequestResult{Message: PasswordResetRequestedMessage}

	email = normalizeEmail(email)
	if validateEmail(email) != nil {
		return result, nil
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Info("password reset requested for unknown email")
			return result, nil
		}
		s.logger.Error("failed to look up user for password reset", slog.Any("error", err))
		return nil, internalError("load user", err)
	}

	if !user.IsActive() {
		s.logger.Info("password reset requested for inactive account", slog.String("user_id", user.ID))
		return result, nil
	}

	token, err := pkgauth.GenerateURLToken(pkgauth.ResetTokenBytes)
	if err != nil {
		return nil, internalError("generate reset token", err)
	}

	now := s.now().UTC()
	resetToken := &models.PasswordResetToken{
		UserID:    user.ID,
		TokenHash: pkgauth.HashToken(token),
		ExpiresAt: now.Add(s.config.ResetTokenTTL),
		CreatedAt: now,
	}
	if err := s.resets.Replace(ctx, resetToken); err != nil {
		s.logger.Error("failed to store reset token", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, internalError("store reset token", err)
	}

	result.ResetLink = s.resetLink(token)

	s.sendResetEmail(ctx, user, result.ResetLink, resetToken.ExpiresAt)

	s.logger.Info("password reset token issued", slog.String("user_id", user.ID))
	s.audit.Record(ctx, AuditEntry{
		Action:    models.AuditActionPasswordResetRequest,
		UserID:    user.ID,
		Username:  user.Username,
		IPAddress: clientIP,
		Success:   true,
	})

	return result, nil
}

// sendResetEmail delivers the link off the request path, so provider latency
// never shows up in the padded response time. Failures only log.
func (s *AuthService) sendResetEmail(ctx context.Context, user *models.User, link string, expiresAt time.Time) {
	if s.email == nil {
		return
	}

	s.mail.Add(1)
	go func() {
		defer s.mail.Done()

		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), emailSendTimeout)
		defer cancel()

		if err := s.email.SendPasswordResetEmail(sendCtx, user.Email, link, expiresAt); err != nil {
			s.logger.Error("failed to send password reset email",
				slog.String("user_id", user.ID),
				slog.String("email", pkglogger.SanitizedEmail(user.Email)),
				slog.Any("error", err))
		}
	}()
}

// WaitForEmails blocks until every queued reset email has been handed to
// the provider
func (s *AuthService) WaitForEmails() {
	s.mail.Wait()
}

func (s *AuthService) resetLink(token string) string {
	sep := "?"
	if strings.Contains(s.config.ResetURLBase, "?") {
		sep = "&"
	}
	return s.config.ResetURLBase + sep + "token=" + url.QueryEscape(token)
}

// ResetPassword consumes a reset token and sets a new password. All sessions
// and any other outstanding reset tokens of the user are invalidated.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword, clientIP string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return models.ErrInvalidOrExpiredResetToken
	}

	// Check the policy first so a weak password does not burn the token
	if err := validateNewPassword("new_password", newPassword); err != nil {
		return err
	}

	now := s.now().UTC()
	userID, err := s.resets.Consume(ctx, pkgauth.HashToken(token), now)
	if err != nil {
		if errors.Is(err, models.ErrInvalidOrExpiredResetToken) {
			s.logger.Info("password reset rejected: invalid or expired token",
				slog.String("token", pkglogger.RedactedToken(token)))
			return models.ErrInvalidOrExpiredResetToken
		}
		s.logger.Error("failed to consume reset token", slog.Any("error", err))
		return internalError("consume reset token", err)
	}

	if err := s.setPassword(ctx, userID, newPassword); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrInvalidOrExpiredResetToken
		}
		return err
	}

	if _, err := s.resets.InvalidateForUser(ctx, userID, now); err != nil {
		s.logger.Warn("failed to invalidate remaining reset tokens", slog.String("user_id", userID), slog.Any("error", err))
	}

	n, err := s.sessions.InvalidateUser(ctx, userID, "")
	if err != nil {
		s.logger.Error("failed to end sessions after password reset", slog.String("user_id", userID), slog.Any("error", err))
		return err
	}

	s.logger.Info("password reset", slog.String("user_id", userID), slog.Int64("sessions_ended", n))
	s.audit.Record(ctx, AuditEntry{
		Action:    models.AuditActionPasswordReset,
		UserID:    userID,
		IPAddress: clientIP,
		Success:   true,
	})

	return nil
}

func (s *AuthService) setPassword(ctx context.Context, userID, password string) error {
	encoded, err := s.hasher.HashPassword(password)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return internalError("hash password", err)
	}

	if err := s.users.UpdatePassword(ctx, userID, encoded, s.now().UTC()); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		s.logger.Error("failed to update password", slog.String("user_id", userID), slog.Any("error", err))
		return internalError("update password", err)
	}
	return nil
}

// Logout ends the session for token. Unknown tokens are not an error.
func (s *AuthService) Logout(ctx context.Context, token, userID string) error {
	if err := s.sessions.Invalidate(ctx, strings.TrimSpace(token)); err != nil {
		s.logger.Error("failed to end session", slog.Any("error", err))
		return err
	}

	if userID != "" {
		s.logger.Info("user logged out", slog.String("user_id", userID))
		s.audit.Record(ctx, AuditEntry{
			Action:  models.AuditActionLogout,
			UserID:  userID,
			Success: true,
		})
	}
	return nil
}

// LogoutAll ends every session of userID and returns how many ended
func (s *AuthService) LogoutAll(ctx context.Context, userID string) (int64, error) {
	n, err := s.sessions.InvalidateUser(ctx, userID, "")
	if err != nil {
		s.logger.Error("failed to end all sessions", slog.String("user_id", userID), slog.Any("error", err))
		return 0, err
	}

	s.logger.Info("user logged out from all devices", slog.String("user_id", userID), slog.Int64("count", n))
	s.audit.Record(ctx, AuditEntry{
		Action:   models.AuditActionLogoutAll,
		UserID:   userID,
		Success:  true,
		Metadata: map[string]string{"sessions": strconv.FormatInt(n, 10)},
	})

	return n, nil
}

// PurgeExpiredResetTokens drops reset tokens that expired or were used
// before cutoff
func (s *AuthService) PurgeExpiredResetTokens(ctx context.Context, cutoff time.Time) (int64, error) {
	n, err := s.resets.DeleteExpired(ctx, cutoff)
	if err != nil {
		return 0, storageError("purge reset tokens", err)
	}
	return n, nil
}
