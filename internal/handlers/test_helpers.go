package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BradenHooton/garage/internal/auth"
	"github.com/BradenHooton/garage/internal/models"
	"github.com/BradenHooton/garage/internal/services"
	pkghttp "github.com/BradenHooton/garage/pkg/http"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// DiscardLogger returns a logger that drops everything
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// WithPrincipalContext attaches an authenticated principal for user and token
func WithPrincipalContext(req *http.Request, user *models.User, token string) *http.Request {
	ctx := auth.WithPrincipal(req.Context(), &auth.Principal{
		User:    user,
		Session: &models.Session{UserID: user.ID, Surface: models.SurfaceStaff},
		Token:   token,
	})
	return req.WithContext(ctx)
}

// TestUser builds an active user for handler tests
func TestUser(id, username, role string) *models.User {
	return &models.User{
		ID:        id,
		Username:  username,
		Email:     username + "@example.com",
		FullName:  username,
		Role:      role,
		Status:    models.StatusActive,
		CreatedAt: time.Now().UTC(),
	}
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	contentType := w.Header().Get("Content-Type")
	assert.Equal(t, "application/json", contentType, "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) pkghttp.ErrorResponse {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
	return resp
}

// WithChiRouteContext adds chi URL parameters to request context for testing
func WithChiRouteContext(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// MockAuthService implements AuthServiceInterface for testing
type MockAuthService struct {
	RegisterFunc             func(ctx context.Context, input services.RegisterInput) (*models.User, error)
	LoginFunc                func(ctx context.Context, input services.LoginInput) (*services.LoginResult, error)
	ChangePasswordFunc       func(ctx context.Context, userID, currentPassword, newPassword, currentToken string) error
	RequestPasswordResetFunc func(ctx context.Context, email, clientIP string) (*services.ResetRequestResult, error)
	ResetPasswordFunc        func(ctx context.Context, token, newPassword, clientIP string) error
	LogoutFunc               func(ctx context.Context, token, userID string) error
	LogoutAllFunc            func(ctx context.Context, userID string) (int64, error)
}

func (m *MockAuthService) Register(ctx context.Context, input services.RegisterInput) (*models.User, error) {
	if m.RegisterFunc == nil {
		return nil, models.ErrConflict
	}
	return m.RegisterFunc(ctx, input)
}

func (m *MockAuthService) Login(ctx context.Context, input services.LoginInput) (*services.LoginResult, error) {
	if m.LoginFunc == nil {
		return nil, models.ErrInvalidCredentials
	}
	return m.LoginFunc(ctx, input)
}

func (m *MockAuthService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword, currentToken string) error {
	if m.ChangePasswordFunc == nil {
		return nil
	}
	return m.ChangePasswordFunc(ctx, userID, currentPassword, newPassword, currentToken)
}

func (m *MockAuthService) RequestPasswordReset(ctx context.Context, email, clientIP string) (*services.ResetRequestResult, error) {
	if m.RequestPasswordResetFunc == nil {
		return &services.ResetRequestResult{Message: services.PasswordResetRequestedMessage}, nil
	}
	return m.RequestPasswordResetFunc(ctx, email, clientIP)
}

func (m *MockAuthService) ResetPassword(ctx context.Context, token, newPassword, clientIP string) error {
	if m.ResetPasswordFunc == nil {
		return models.ErrInvalidOrExpiredResetToken
	}
	return m.ResetPasswordFunc(ctx, token, newPassword, clientIP)
}

func (m *MockAuthService) Logout(ctx context.Context, token, userID string) error {
	if m.LogoutFunc == nil {
		return nil
	}
	return m.LogoutFunc(ctx, token, userID)
}

func (m *MockAuthService) LogoutAll(ctx context.Context, userID string) (int64, error) {
	if m.LogoutAllFunc == nil {
		return 0, nil
	}
	return m.LogoutAllFunc(ctx, userID)
}

// MockUserService implements UserServiceInterface for testing
type MockUserService struct {
	GetUserFunc      func(ctx context.Context, id string) (*models.User, error)
	ListUsersFunc    func(ctx context.Context, limit, offset int) ([]*models.User, int64, error)
	CreateUserFunc   func(ctx context.Context, actorID string, input services.CreateUserInput) (*models.User, error)
	UpdateStatusFunc func(ctx context.Context, actorID, userID, status string) (*models.User, error)
}

func (m *MockUserService) GetUser(ctx context.Context, id string) (*models.User, error) {
	if m.GetUserFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.GetUserFunc(ctx, id)
}

func (m *MockUserService) ListUsers(ctx context.Context, limit, offset int) ([]*models.User, int64, error) {
	if m.ListUsersFunc == nil {
		return []*models.User{}, 0, nil
	}
	return m.ListUsersFunc(ctx, limit, offset)
}

func (m *MockUserService) CreateUser(ctx context.Context, actorID string, input services.CreateUserInput) (*models.User, error) {
	if m.CreateUserFunc == nil {
		return nil, models.ErrConflict
	}
	return m.CreateUserFunc(ctx, actorID, input)
}

func (m *MockUserService) UpdateStatus(ctx context.Context, actorID, userID, status string) (*models.User, error) {
	if m.UpdateStatusFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.UpdateStatusFunc(ctx, actorID, userID, status)
}

// MockAuditService implements AuditServiceInterface for testing
type MockAuditService struct {
	ListRecentFunc func(ctx context.Context, userID *string, limit, offset int) ([]*models.AuditLog, error)
}

func (m *MockAuditService) ListRecent(ctx context.Context, userID *string, limit, offset int) ([]*models.AuditLog, error) {
	if m.ListRecentFunc == nil {
		return []*models.AuditLog{}, nil
	}
	return m.ListRecentFunc(ctx, userID, limit, offset)
}
