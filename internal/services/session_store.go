package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/BradenHooton/garage/internal/models"
	pkgauth "github.com/BradenHooton/garage/pkg/auth"
	"github.com/google/uuid"
)

// SessionRepository is a session backend keyed by token hash.
// GetByTokenHash returns models.ErrNotFound for unknown hashes; Delete is idempotent.
type SessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error)
	Touch(ctx context.Context, tokenHash string, at time.Time) error
	Delete(ctx context.Context, tokenHash string) error
	DeleteByUserID(ctx context.Context, userID, exceptHash string) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type SessionConfig struct {
	TTL         time.Duration // absolute lifetime from creation, never extended
	IdleTimeout time.Duration // 0 disables the inactivity check
}

var DefaultSessionConfig = SessionConfig{
	TTL:         24 * time.Hour,
	IdleTimeout: 30 * time.Minute,
}

// SessionMeta is request context recorded with a new session
type SessionMeta struct {
	Surface   string
	IPAddress string
	UserAgent string
}

// SessionStore issues and validates opaque session tokens. Clients hold the
// raw token; the backend only ever sees its SHA-256.
type SessionStore struct {
	repo   SessionRepository
	config SessionConfig
	logger *slog.Logger
	now    func() time.Time
}

func NewSessionStore(repo SessionRepository, config SessionConfig, logger *slog.Logger) *SessionStore {
	if config.TTL <= 0 {
		config.TTL = DefaultSessionConfig.TTL
	}
	if config.IdleTimeout < 0 {
		config.IdleTimeout = 0
	}
	return &SessionStore{
		repo:   repo,
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// Create starts a session for userID and returns the raw token
func (s *SessionStore) Create(ctx context.Context, userID string, meta SessionMeta) (string, *models.Session, error) {
	token, err := pkgauth.GenerateToken(pkgauth.SessionTokenBytes)
	if err != nil {
		return "", nil, internalError("generate session token", err)
	}

	now := s.now().UTC()
	session := &models.Session{
		ID:             uuid.New().String(),
		TokenHash:      pkgauth.HashToken(token),
		UserID:         userID,
		Surface:        meta.Surface,
		IPAddress:      meta.IPAddress,
		UserAgent:      truncate(meta.UserAgent, 512),
		CreatedAt:      now,
		ExpiresAt:      now.Add(s.config.TTL),
		LastActivityAt: now,
	}

	if err := s.repo.Create(ctx, session); err != nil {
		return "", nil, storageError("create session", err)
	}

	return token, session, nil
}

// Validate resolves token to its session. Unknown tokens yield ErrInvalidToken;
// sessions past their absolute expiry or idle for too long are removed and
// yield ErrTokenExpired. A valid session has its activity time refreshed.
func (s *SessionStore) Validate(ctx context.Context, token string) (*models.Session, error) {
	if token == "" {
		return nil, models.ErrInvalidToken
	}

	hash := pkgauth.HashToken(token)
	session, err := s.repo.GetByTokenHash(ctx, hash)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrInvalidToken
		}
		return nil, storageError("load session", err)
	}

	now := s.now()
	if session.IsExpired(now) || session.IsIdle(now, s.config.IdleTimeout) {
		if err := s.repo.Delete(ctx, hash); err != nil {
			s.logger.Warn("failed to remove expired session",
				slog.String("session_id", session.ID),
				slog.Any("error", err),
			)
		}
		return nil, models.ErrTokenExpired
	}

	if s.config.IdleTimeout > 0 {
		if err := s.repo.Touch(ctx, hash, now.UTC()); err != nil {
			s.logger.Warn("failed to refresh session activity",
				slog.String("session_id", session.ID),
				slog.Any("error", err),
			)
		} else {
			session.LastActivityAt = now.UTC()
		}
	}

	return session, nil
}

// Invalidate removes the session for token; unknown tokens are ignored
func (s *SessionStore) Invalidate(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.repo.Delete(ctx, pkgauth.HashToken(token)); err != nil {
		return storageError("delete session", err)
	}
	return nil
}

// InvalidateUser removes every session of userID except the one for exceptToken
// (pass "" to remove all) and returns how many were removed
func (s *SessionStore) InvalidateUser(ctx context.Context, userID, exceptToken string) (int64, error) {
	exceptHash := ""
	if exceptToken != "" {
		exceptHash = pkgauth.HashToken(exceptToken)
	}

	n, err := s.repo.DeleteByUserID(ctx, userID, exceptHash)
	if err != nil {
		return 0, storageError("delete user sessions", err)
	}
	return n, nil
}

// PurgeExpired removes sessions past their absolute expiry. Safe to run
// concurrently with Validate.
func (s *SessionStore) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteExpired(ctx, s.now().UTC())
	if err != nil {
		return 0, storageError("purge expired sessions", err)
	}
	if n > 0 {
		s.logger.Debug("purged expired sessions", slog.Int64("count", n))
	}
	return n, nil
}

func (s *SessionStore) Config() SessionConfig {
	return s.config
}

func truncate(v string, max int) string {
	if len(v) <= max {
		return v
	}
	return v[:max]
}
