package handlers_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BradenHooton/garage/internal/auth"
	"github.com/BradenHooton/garage/internal/handlers"
	"github.com/BradenHooton/garage/internal/models"
	"github.com/BradenHooton/garage/internal/services"
	pkghttp "github.com/BradenHooton/garage/pkg/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthHandler(svc handlers.AuthServiceInterface, expose bool) *handlers.AuthHandler {
	return handlers.NewAuthHandler(svc, handlers.AuthHandlerConfig{
		Cookie:          auth.CookieConfig{SameSite: "lax"},
		ExposeResetLink: expose,
	}, &pkghttp.IPConfig{}, handlers.DiscardLogger())
}

func TestStaffLogin_Success(t *testing.T) {
	expires := time.Now().Add(24 * time.Hour).UTC().Truncate(time.Second)
	mockAuth := &handlers.MockAuthService{
		LoginFunc: func(ctx context.Context, input services.LoginInput) (*services.LoginResult, error) {
			assert.Equal(t, models.SurfaceStaff, input.Surface)
			assert.Equal(t, "alice", input.Username)
			assert.Equal(t, "192.0.2.1", input.ClientIP)
			assert.Equal(t, "test-agent", input.UserAgent)
			return &services.LoginResult{
				Token:     "tok123",
				ExpiresAt: expires,
				User:      handlers.TestUser("u-1", "alice", models.RoleStaff),
			}, nil
		},
	}

	h := newAuthHandler(mockAuth, false)
	req := handlers.NewTestRequest(t, "POST", "/auth/login", handlers.LoginRequest{Username: "alice", Password: "Weakpass1"})
	req.RemoteAddr = "192.0.2.1:5555"
	req.Header.Set("User-Agent", "test-agent")

	w := httptest.NewRecorder()
	h.StaffLogin(w, req)

	var resp handlers.LoginResponse
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.Equal(t, "tok123", resp.Token)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Equal(t, "alice", resp.User.Username)
	assert.True(t, expires.Equal(resp.ExpiresAt))
	assert.NotContains(t, w.Body.String(), "password")

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, pkghttp.SessionCookieName, cookies[0].Name)
	assert.Equal(t, "tok123", cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
}

func TestCustomerLogin_UsesCustomerSurface(t *testing.T) {
	var surface string
	mockAuth := &handlers.MockAuthService{
		LoginFunc: func(ctx context.Context, input services.LoginInput) (*services.LoginResult, error) {
			surface = input.Surface
			return &services.LoginResult{Token: "t", ExpiresAt: time.Now().Add(time.Hour), User: handlers.TestUser("u-2", "bob", models.RoleCustomer)}, nil
		},
	}

	w := httptest.NewRecorder()
	newAuthHandler(mockAuth, false).CustomerLogin(w, handlers.NewTestRequest(t, "POST", "/auth/customer/login",
		handlers.LoginRequest{Username: "bob", Password: "Weakpass1"}))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.SurfaceCustomer, surface)
}

func TestLogin_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"invalid credentials", models.ErrInvalidCredentials, http.StatusUnauthorized, "unauthorized"},
		{"suspended account is generic", models.ErrAccountSuspended, http.StatusUnauthorized, "unauthorized"},
		{"pending account is generic", models.ErrAccountPending, http.StatusUnauthorized, "unauthorized"},
		{"rate limited", &services.RateLimitError{RetryAfter: 90 * time.Second}, http.StatusTooManyRequests, "rate_limit_exceeded"},
		{"storage down", fmt.Errorf("read: %w", models.ErrStorageUnavailable), http.StatusServiceUnavailable, "service_unavailable"},
		{"unexpected", fmt.Errorf("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockAuth := &handlers.MockAuthService{
				LoginFunc: func(ctx context.Context, input services.LoginInput) (*services.LoginResult, error) {
					return nil, tt.err
				},
			}

			w := httptest.NewRecorder()
			newAuthHandler(mockAuth, false).StaffLogin(w, handlers.NewTestRequest(t, "POST", "/auth/login",
				handlers.LoginRequest{Username: "alice", Password: "x"}))

			resp := handlers.AssertErrorResponse(t, w, tt.wantStatus, tt.wantCode)
			if tt.wantStatus == http.StatusUnauthorized {
				assert.Equal(t, "Authentication failed", resp.Message)
			}
		})
	}
}

func TestLogin_RetryAfterHeader(t *testing.T) {
	mockAuth := &handlers.MockAuthService{
		LoginFunc: func(ctx context.Context, input services.LoginInput) (*services.LoginResult, error) {
			return nil, &services.RateLimitError{RetryAfter: 1500 * time.Millisecond}
		},
	}

	w := httptest.NewRecorder()
	newAuthHandler(mockAuth, false).StaffLogin(w, handlers.NewTestRequest(t, "POST", "/auth/login",
		handlers.LoginRequest{Username: "alice", Password: "x"}))

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "2", w.Header().Get("Retry-After"))
}

func TestLogin_MissingFields(t *testing.T) {
	called := false
	mockAuth := &handlers.MockAuthService{
		LoginFunc: func(ctx context.Context, input services.LoginInput) (*services.LoginResult, error) {
			called = true
			return nil, nil
		},
	}

	w := httptest.NewRecorder()
	newAuthHandler(mockAuth, false).StaffLogin(w, handlers.NewTestRequest(t, "POST", "/auth/login",
		handlers.LoginRequest{Username: "alice"}))

	resp := handlers.AssertErrorResponse(t, w, http.StatusBadRequest, "validation_failed")
	assert.Contains(t, resp.Fields, "password")
	assert.False(t, called)
}

func TestLogin_InvalidBody(t *testing.T) {
	req := httptest.NewRequest("POST", "/auth/login", http.NoBody)
	w := httptest.NewRecorder()
	newAuthHandler(&handlers.MockAuthService{}, false).StaffLogin(w, req)

	handlers.AssertErrorResponse(t, w, http.StatusBadRequest, "bad_request")
}

func TestRegister_ForcesCustomerRole(t *testing.T) {
	mockAuth := &handlers.MockAuthService{
		RegisterFunc: func(ctx context.Context, input services.RegisterInput) (*models.User, error) {
			assert.Equal(t, models.RoleCustomer, input.Role)
			return handlers.TestUser("u-3", input.Username, input.Role), nil
		},
	}

	// role in the body is not part of the DTO and is ignored
	body := map[string]string{
		"username": "alice",
		"email":    "alice@example.com",
		"password": "Weakpass1",
		"role":     "admin",
	}

	w := httptest.NewRecorder()
	newAuthHandler(mockAuth, false).Register(w, handlers.NewTestRequest(t, "POST", "/auth/register", body))

	var resp handlers.UserResponse
	handlers.AssertJSONResponse(t, w, http.StatusCreated, &resp)
	assert.Equal(t, models.RoleCustomer, resp.Role)
	assert.Equal(t, "alice", resp.Username)
}

func TestRegister_Errors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"duplicate username", models.ErrDuplicateUsername, http.StatusConflict, "conflict"},
		{"duplicate email", models.ErrDuplicateEmail, http.StatusConflict, "conflict"},
		{"weak password", models.NewValidationError("password", "must contain a digit", models.ErrWeakPassword), http.StatusBadRequest, "validation_failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockAuth := &handlers.MockAuthService{
				RegisterFunc: func(ctx context.Context, input services.RegisterInput) (*models.User, error) {
					return nil, tt.err
				},
			}

			w := httptest.NewRecorder()
			newAuthHandler(mockAuth, false).Register(w, handlers.NewTestRequest(t, "POST", "/auth/register",
				handlers.RegisterRequest{Username: "alice", Email: "alice@example.com", Password: "weak"}))

			handlers.AssertErrorResponse(t, w, tt.wantStatus, tt.wantCode)
		})
	}
}

func TestRegister_InvalidEmail(t *testing.T) {
	w := httptest.NewRecorder()
	newAuthHandler(&handlers.MockAuthService{}, false).Register(w, handlers.NewTestRequest(t, "POST", "/auth/register",
		handlers.RegisterRequest{Username: "alice", Email: "not-an-email", Password: "Weakpass1"}))

	resp := handlers.AssertErrorResponse(t, w, http.StatusBadRequest, "validation_failed")
	assert.Equal(t, "must be a valid email address", resp.Fields["email"])
}

func TestMe(t *testing.T) {
	h := newAuthHandler(&handlers.MockAuthService{}, false)

	t.Run("authenticated", func(t *testing.T) {
		req := handlers.WithPrincipalContext(httptest.NewRequest("GET", "/auth/me", nil),
			handlers.TestUser("u-1", "alice", models.RoleStaff), "tok")
		w := httptest.NewRecorder()
		h.Me(w, req)

		var resp handlers.UserResponse
		handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
		assert.Equal(t, "u-1", resp.ID)
	})

	t.Run("no principal", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.Me(w, httptest.NewRequest("GET", "/auth/me", nil))
		handlers.AssertErrorResponse(t, w, http.StatusUnauthorized, "unauthorized")
	})
}

func TestChangePassword(t *testing.T) {
	user := handlers.TestUser("u-1", "alice", models.RoleCustomer)

	t.Run("passes current token through", func(t *testing.T) {
		mockAuth := &handlers.MockAuthService{
			ChangePasswordFunc: func(ctx context.Context, userID, current, next, token string) error {
				assert.Equal(t, "u-1", userID)
				assert.Equal(t, "Weakpass1", current)
				assert.Equal(t, "Stronger2", next)
				assert.Equal(t, "tok", token)
				return nil
			},
		}

		req := handlers.WithPrincipalContext(handlers.NewTestRequest(t, "POST", "/auth/change-password",
			handlers.ChangePasswordRequest{CurrentPassword: "Weakpass1", NewPassword: "Stronger2"}), user, "tok")
		w := httptest.NewRecorder()
		newAuthHandler(mockAuth, false).ChangePassword(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("wrong current password", func(t *testing.T) {
		mockAuth := &handlers.MockAuthService{
			ChangePasswordFunc: func(ctx context.Context, userID, current, next, token string) error {
				return models.ErrWrongCurrentPassword
			},
		}

		req := handlers.WithPrincipalContext(handlers.NewTestRequest(t, "POST", "/auth/change-password",
			handlers.ChangePasswordRequest{CurrentPassword: "nope", NewPassword: "Stronger2"}), user, "tok")
		w := httptest.NewRecorder()
		newAuthHandler(mockAuth, false).ChangePassword(w, req)

		resp := handlers.AssertErrorResponse(t, w, http.StatusUnauthorized, "unauthorized")
		assert.Equal(t, "Current password is incorrect", resp.Message)
	})
}

func TestForgotPassword(t *testing.T) {
	link := "https://garage.example.com/reset-password?token=abc"
	mockAuth := &handlers.MockAuthService{
		RequestPasswordResetFunc: func(ctx context.Context, email, clientIP string) (*services.ResetRequestResult, error) {
			if email == "alice@example.com" {
				return &services.ResetRequestResult{Message: services.PasswordResetRequestedMessage, ResetLink: link}, nil
			}
			return &services.ResetRequestResult{Message: services.PasswordResetRequestedMessage}, nil
		},
	}

	call := func(h *handlers.AuthHandler, email string) handlers.ForgotPasswordResponse {
		w := httptest.NewRecorder()
		h.ForgotPassword(w, handlers.NewTestRequest(t, "POST", "/auth/forgot-password", handlers.ForgotPasswordRequest{Email: email}))
		var resp handlers.ForgotPasswordResponse
		handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
		return resp
	}

	t.Run("link hidden by default", func(t *testing.T) {
		h := newAuthHandler(mockAuth, false)
		known := call(h, "alice@example.com")
		unknown := call(h, "nobody@example.com")
		assert.Equal(t, known, unknown)
		assert.Equal(t, services.PasswordResetRequestedMessage, known.Message)
		assert.Empty(t, known.ResetLink)
	})

	t.Run("link exposed when enabled", func(t *testing.T) {
		h := newAuthHandler(mockAuth, true)
		assert.Equal(t, link, call(h, "alice@example.com").ResetLink)
		assert.Empty(t, call(h, "nobody@example.com").ResetLink)
	})

	t.Run("missing email", func(t *testing.T) {
		w := httptest.NewRecorder()
		newAuthHandler(mockAuth, false).ForgotPassword(w, handlers.NewTestRequest(t, "POST", "/auth/forgot-password", map[string]string{}))
		handlers.AssertErrorResponse(t, w, http.StatusBadRequest, "validation_failed")
	})
}

func TestResetPassword(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		mockAuth := &handlers.MockAuthService{
			ResetPasswordFunc: func(ctx context.Context, token, newPassword, clientIP string) error {
				assert.Equal(t, "abc", token)
				return nil
			},
		}
		w := httptest.NewRecorder()
		newAuthHandler(mockAuth, false).ResetPassword(w, handlers.NewTestRequest(t, "POST", "/auth/reset-password",
			handlers.ResetPasswordRequest{Token: "abc", NewPassword: "Stronger2"}))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("invalid token", func(t *testing.T) {
		w := httptest.NewRecorder()
		newAuthHandler(&handlers.MockAuthService{}, false).ResetPassword(w, handlers.NewTestRequest(t, "POST", "/auth/reset-password",
			handlers.ResetPasswordRequest{Token: "used", NewPassword: "Stronger2"}))
		handlers.AssertErrorResponse(t, w, http.StatusBadRequest, "invalid_reset_token")
	})
}

func TestLogout(t *testing.T) {
	t.Run("with token", func(t *testing.T) {
		var gotToken, gotUser string
		mockAuth := &handlers.MockAuthService{
			LogoutFunc: func(ctx context.Context, token, userID string) error {
				gotToken, gotUser = token, userID
				return nil
			},
		}

		req := httptest.NewRequest("POST", "/auth/logout", nil)
		req.Header.Set("Authorization", "Bearer tok")
		req = handlers.WithPrincipalContext(req, handlers.TestUser("u-1", "alice", models.RoleCustomer), "tok")

		w := httptest.NewRecorder()
		newAuthHandler(mockAuth, false).Logout(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "tok", gotToken)
		assert.Equal(t, "u-1", gotUser)

		cookies := w.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, -1, cookies[0].MaxAge)
	})

	t.Run("without token", func(t *testing.T) {
		called := false
		mockAuth := &handlers.MockAuthService{
			LogoutFunc: func(ctx context.Context, token, userID string) error {
				called = true
				return nil
			},
		}

		w := httptest.NewRecorder()
		newAuthHandler(mockAuth, false).Logout(w, httptest.NewRequest("POST", "/auth/logout", nil))

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.False(t, called)
	})

	t.Run("storage down", func(t *testing.T) {
		mockAuth := &handlers.MockAuthService{
			LogoutFunc: func(ctx context.Context, token, userID string) error {
				return fmt.Errorf("delete: %w", models.ErrStorageUnavailable)
			},
		}

		req := httptest.NewRequest("POST", "/auth/logout", nil)
		req.Header.Set("Authorization", "Bearer tok")
		w := httptest.NewRecorder()
		newAuthHandler(mockAuth, false).Logout(w, req)

		handlers.AssertErrorResponse(t, w, http.StatusServiceUnavailable, "service_unavailable")
	})
}

func TestLogoutAll(t *testing.T) {
	var gotUser string
	mockAuth := &handlers.MockAuthService{
		LogoutAllFunc: func(ctx context.Context, userID string) (int64, error) {
			gotUser = userID
			return 3, nil
		},
	}

	req := handlers.WithPrincipalContext(httptest.NewRequest("POST", "/auth/logout-all", nil),
		handlers.TestUser("u-1", "alice", models.RoleCustomer), "tok")
	w := httptest.NewRecorder()
	newAuthHandler(mockAuth, false).LogoutAll(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "u-1", gotUser)
}

func TestLogoutAll_Errors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"storage unavailable", fmt.Errorf("delete sessions: %w", models.ErrStorageUnavailable), http.StatusServiceUnavailable, "service_unavailable"},
		{"user not found", models.ErrNotFound, http.StatusNotFound, "not_found"},
		{"unexpected", fmt.Errorf("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockAuth := &handlers.MockAuthService{
				LogoutAllFunc: func(ctx context.Context, userID string) (int64, error) {
					return 0, tt.err
				},
			}

			req := handlers.WithPrincipalContext(httptest.NewRequest("POST", "/auth/logout-all", nil),
				handlers.TestUser("u-1", "alice", models.RoleCustomer), "tok")
			w := httptest.NewRecorder()
			newAuthHandler(mockAuth, false).LogoutAll(w, req)

			handlers.AssertErrorResponse(t, w, tt.wantStatus, tt.wantCode)
		})
	}
}
