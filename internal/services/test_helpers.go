package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/BradenHooton/garage/internal/models"
	"github.com/google/uuid"
)

// MockUserRepository implements UserRepository for testing
type MockUserRepository struct {
	GetByIDFunc         func(ctx context.Context, id string) (*models.User, error)
	GetByUsernameFunc   func(ctx context.Context, username string) (*models.User, error)
	GetByEmailFunc      func(ctx context.Context, email string) (*models.User, error)
	ListFunc            func(ctx context.Context, limit, offset int) ([]*models.User, error)
	CountFunc           func(ctx context.Context) (int64, error)
	CreateFunc          func(ctx context.Context, user *models.User) (*models.User, error)
	UpdatePasswordFunc  func(ctx context.Context, id, passwordHash string, changedAt time.Time) error
	UpdateLastLoginFunc func(ctx context.Context, id string, at time.Time) error
	UpdateStatusFunc    func(ctx context.Context, id, status string) (*models.User, error)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	if m.GetByUsernameFunc != nil {
		return m.GetByUsernameFunc(ctx, username)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, limit, offset)
	}
	return []*models.User{}, nil
}

func (m *MockUserRepository) Count(ctx context.Context) (int64, error) {
	if m.CountFunc != nil {
		return m.CountFunc(ctx)
	}
	return 0, nil
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, user)
	}
	return nil, models.ErrInternalServer
}

func (m *MockUserRepository) UpdatePassword(ctx context.Context, id, passwordHash string, changedAt time.Time) error {
	if m.UpdatePasswordFunc != nil {
		return m.UpdatePasswordFunc(ctx, id, passwordHash, changedAt)
	}
	return nil
}

func (m *MockUserRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	if m.UpdateLastLoginFunc != nil {
		return m.UpdateLastLoginFunc(ctx, id, at)
	}
	return nil
}

func (m *MockUserRepository) UpdateStatus(ctx context.Context, id, status string) (*models.User, error) {
	if m.UpdateStatusFunc != nil {
		return m.UpdateStatusFunc(ctx, id, status)
	}
	return nil, models.ErrNotFound
}

// NewInMemoryUserRepository returns a MockUserRepository backed by a map,
// enforcing the same uniqueness rules as the users table
func NewInMemoryUserRepository() *MockUserRepository {
	var mu sync.Mutex
	users := make(map[string]*models.User)

	find := func(match func(*models.User) bool) (*models.User, error) {
		mu.Lock()
		defer mu.Unlock()
		for _, u := range users {
			if match(u) {
				cp := *u
				return &cp, nil
			}
		}
		return nil, models.ErrNotFound
	}

	return &MockUserRepository{
		GetByIDFunc: func(_ context.Context, id string) (*models.User, error) {
			return find(func(u *models.User) bool { return u.ID == id })
		},
		GetByUsernameFunc: func(_ context.Context, username string) (*models.User, error) {
			username = strings.ToLower(username)
			return find(func(u *models.User) bool { return u.Username == username })
		},
		GetByEmailFunc: func(_ context.Context, email string) (*models.User, error) {
			email = strings.ToLower(email)
			return find(func(u *models.User) bool { return u.Email == email })
		},
		ListFunc: func(_ context.Context, limit, offset int) ([]*models.User, error) {
			mu.Lock()
			defer mu.Unlock()
			out := make([]*models.User, 0, len(users))
			for _, u := range users {
				cp := *u
				out = append(out, &cp)
			}
			if offset >= len(out) {
				return []*models.User{}, nil
			}
			out = out[offset:]
			if limit < len(out) {
				out = out[:limit]
			}
			return out, nil
		},
		CountFunc: func(context.Context) (int64, error) {
			mu.Lock()
			defer mu.Unlock()
			return int64(len(users)), nil
		},
		CreateFunc: func(_ context.Context, user *models.User) (*models.User, error) {
			mu.Lock()
			defer mu.Unlock()
			for _, u := range users {
				if u.Username == user.Username {
					return nil, models.ErrDuplicateUsername
				}
				if u.Email == user.Email {
					return nil, models.ErrDuplicateEmail
				}
			}
			cp := *user
			if cp.ID == "" {
				cp.ID = uuid.New().String()
			}
			now := time.Now().UTC()
			cp.CreatedAt, cp.UpdatedAt = now, now
			cp.PasswordChangedAt = &now
			users[cp.ID] = &cp
			out := cp
			return &out, nil
		},
		UpdatePasswordFunc: func(_ context.Context, id, passwordHash string, changedAt time.Time) error {
			mu.Lock()
			defer mu.Unlock()
			u, ok := users[id]
			if !ok {
				return models.ErrNotFound
			}
			u.PasswordHash = passwordHash
			u.PasswordChangedAt = &changedAt
			return nil
		},
		UpdateLastLoginFunc: func(_ context.Context, id string, at time.Time) error {
			mu.Lock()
			defer mu.Unlock()
			u, ok := users[id]
			if !ok {
				return models.ErrNotFound
			}
			u.LastLoginAt = &at
			return nil
		},
		UpdateStatusFunc: func(_ context.Context, id, status string) (*models.User, error) {
			mu.Lock()
			defer mu.Unlock()
			u, ok := users[id]
			if !ok {
				return nil, models.ErrNotFound
			}
			u.Status = status
			cp := *u
			return &cp, nil
		},
	}
}

// MockPasswordResetRepository implements PasswordResetRepository for testing
type MockPasswordResetRepository struct {
	ReplaceFunc           func(ctx context.Context, token *models.PasswordResetToken) error
	ConsumeFunc           func(ctx context.Context, tokenHash string, now time.Time) (string, error)
	InvalidateForUserFunc func(ctx context.Context, userID string, now time.Time) (int64, error)
	DeleteExpiredFunc     func(ctx context.Context, cutoff time.Time) (int64, error)
}

func (m *MockPasswordResetRepository) Replace(ctx context.Context, token *models.PasswordResetToken) error {
	if m.ReplaceFunc != nil {
		return m.ReplaceFunc(ctx, token)
	}
	return nil
}

func (m *MockPasswordResetRepository) Consume(ctx context.Context, tokenHash string, now time.Time) (string, error) {
	if m.ConsumeFunc != nil {
		return m.ConsumeFunc(ctx, tokenHash, now)
	}
	return "", models.ErrInvalidOrExpiredResetToken
}

func (m *MockPasswordResetRepository) InvalidateForUser(ctx context.Context, userID string, now time.Time) (int64, error) {
	if m.InvalidateForUserFunc != nil {
		return m.InvalidateForUserFunc(ctx, userID, now)
	}
	return 0, nil
}

func (m *MockPasswordResetRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	if m.DeleteExpiredFunc != nil {
		return m.DeleteExpiredFunc(ctx, cutoff)
	}
	return 0, nil
}

// NewInMemoryPasswordResetRepository returns a MockPasswordResetRepository
// backed by a map with single-use consume semantics
func NewInMemoryPasswordResetRepository() *MockPasswordResetRepository {
	var mu sync.Mutex
	tokens := make(map[string]*models.PasswordResetToken)

	return &MockPasswordResetRepository{
		ReplaceFunc: func(_ context.Context, token *models.PasswordResetToken) error {
			mu.Lock()
			defer mu.Unlock()
			for _, t := range tokens {
				if t.UserID == token.UserID && !t.IsUsed() {
					usedAt := token.CreatedAt
					t.UsedAt = &usedAt
				}
			}
			cp := *token
			if cp.ID == "" {
				cp.ID = uuid.New().String()
			}
			tokens[cp.TokenHash] = &cp
			return nil
		},
		ConsumeFunc: func(_ context.Context, tokenHash string, now time.Time) (string, error) {
			mu.Lock()
			defer mu.Unlock()
			t, ok := tokens[tokenHash]
			if !ok || t.IsUsed() || t.IsExpired(now) {
				return "", models.ErrInvalidOrExpiredResetToken
			}
			t.UsedAt = &now
			return t.UserID, nil
		},
		InvalidateForUserFunc: func(_ context.Context, userID string, now time.Time) (int64, error) {
			mu.Lock()
			defer mu.Unlock()
			var n int64
			for _, t := range tokens {
				if t.UserID == userID && !t.IsUsed() {
					t.UsedAt = &now
					n++
				}
			}
			return n, nil
		},
		DeleteExpiredFunc: func(_ context.Context, cutoff time.Time) (int64, error) {
			mu.Lock()
			defer mu.Unlock()
			var n int64
			for hash, t := range tokens {
				if t.IsExpired(cutoff) || (t.UsedAt != nil && !t.UsedAt.After(cutoff)) {
					delete(tokens, hash)
					n++
				}
			}
			return n, nil
		},
	}
}

// MockEmailService implements EmailService for testing
type MockEmailService struct {
	mu    sync.Mutex
	Sent  []SentEmail
	Error error

	// Release, when set, holds every send until it is closed
	Release chan struct{}
}

type SentEmail struct {
	To        string
	Link      string
	ExpiresAt time.Time
	CtxErr    error
}

func (m *MockEmailService) SendPasswordResetEmail(ctx context.Context, to, resetLink string, expiresAt time.Time) error {
	if m.Release != nil {
		<-m.Release
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Error != nil {
		return m.Error
	}
	m.Sent = append(m.Sent, SentEmail{To: to, Link: resetLink, ExpiresAt: expiresAt, CtxErr: ctx.Err()})
	return nil
}

func (m *MockEmailService) SentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sent)
}

// MockAuditLogRepository implements AuditLogRepository for testing
type MockAuditLogRepository struct {
	mu      sync.Mutex
	Entries []*models.AuditLog

	CreateFunc  func(ctx context.Context, log *models.AuditLog) (*models.AuditLog, error)
	ListFunc    func(ctx context.Context, userID *string, limit, offset int) ([]*models.AuditLog, error)
	CleanupFunc func(ctx context.Context, olderThanDays int) (int64, error)
}

func (m *MockAuditLogRepository) Create(ctx context.Context, log *models.AuditLog) (*models.AuditLog, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, log)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Entries = append(m.Entries, log)
	return log, nil
}

func (m *MockAuditLogRepository) List(ctx context.Context, userID *string, limit, offset int) ([]*models.AuditLog, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, userID, limit, offset)
	}
	return []*models.AuditLog{}, nil
}

func (m *MockAuditLogRepository) Cleanup(ctx context.Context, olderThanDays int) (int64, error) {
	if m.CleanupFunc != nil {
		return m.CleanupFunc(ctx, olderThanDays)
	}
	return 0, nil
}

// Actions returns the recorded actions in order
func (m *MockAuditLogRepository) Actions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.Entries))
	for _, e := range m.Entries {
		out = append(out, e.Action)
	}
	return out
}

// NewTestUser builds an active user with the given role
func NewTestUser(id, username, role string) *models.User {
	now := time.Now()
	return &models.User{
		ID:        id,
		Username:  username,
		Email:     username + "@example.com",
		FullName:  strings.ToUpper(username[:1]) + username[1:],
		Role:      role,
		Status:    models.StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewTestUserWithPassword builds a user holding passwordHash
func NewTestUserWithPassword(id, username, role, passwordHash string) *models.User {
	user := NewTestUser(id, username, role)
	user.PasswordHash = passwordHash
	return user
}

// NewTestUserWithStatus builds a user with status
func NewTestUserWithStatus(id, username, role, status string) *models.User {
	user := NewTestUser(id, username, role)
	user.Status = status
	return user
}
