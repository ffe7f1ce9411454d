package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/BradenHooton/garage/internal/auth"
	"github.com/BradenHooton/garage/internal/models"
	"github.com/BradenHooton/garage/internal/services"
	pkghttp "github.com/BradenHooton/garage/pkg/http"
)

// AuthServiceInterface defines the interface for auth business logic
type AuthServiceInterface interface {
	Register(ctx context.Context, input services.RegisterInput) (*models.User, error)
	Login(ctx context.Context, input services.LoginInput) (*services.LoginResult, error)
	ChangePassword(ctx context.Context, userID, currentPassword, newPassword, currentToken string) error
	RequestPasswordReset(ctx context.Context, email, clientIP string) (*services.ResetRequestResult, error)
	ResetPassword(ctx context.Context, token, newPassword, clientIP string) error
	Logout(ctx context.Context, token, userID string) error
	LogoutAll(ctx context.Context, userID string) (int64, error)
}

// AuthHandlerConfig controls cookie issuing and reset link exposure
type AuthHandlerConfig struct {
	Cookie auth.CookieConfig
	// ExposeResetLink returns the reset link in the forgot-password response.
	// Development only.
	ExposeResetLink bool
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	service  AuthServiceInterface
	config   AuthHandlerConfig
	ipConfig *pkghttp.IPConfig
	logger   *slog.Logger
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig, ipConfig *pkghttp.IPConfig, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		service:  service,
		config:   config,
		ipConfig: ipConfig,
		logger:   logger,
	}
}

// Request DTOs

// LoginRequest represents the request body for both login surfaces
type LoginRequest struct {
	Username string `json:"username" validate:"required,max=50"`
	Password string `json:"password" validate:"required,max=1024"`
}

// RegisterRequest represents the request body for self-service registration
type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=1024"`
	FullName string `json:"full_name" validate:"max=100"`
}

// ChangePasswordRequest represents the request body for a password change
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,max=1024"`
}

// ForgotPasswordRequest represents the request body for a reset request
type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,max=254"`
}

// ResetPasswordRequest represents the request body for completing a reset
type ResetPasswordRequest struct {
	Token       string `json:"token" validate:"required,max=512"`
	NewPassword string `json:"new_password" validate:"required,max=1024"`
}

// Response DTOs

// LoginResponse carries the opaque session token. The same token is also
// set as an httpOnly cookie for browser clients.
type LoginResponse struct {
	Token     string       `json:"token"`
	TokenType string       `json:"token_type"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      UserResponse `json:"user"`
}

// MessageResponse is a plain acknowledgement
type MessageResponse struct {
	Message string `json:"message"`
}

// ForgotPasswordResponse is identical for known and unknown emails unless
// ExposeResetLink is on and a link was issued
type ForgotPasswordResponse struct {
	Message   string `json:"message"`
	ResetLink string `json:"reset_link,omitempty"`
}

// Register handles self-service registration. The role is always customer.
// @Router /auth/register [post]
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	user, err := h.service.Register(r.Context(), services.RegisterInput{
		Username:  req.Username,
		Email:     req.Email,
		Password:  req.Password,
		FullName:  req.FullName,
		Role:      models.RoleCustomer,
		IPAddress: pkghttp.ExtractClientIP(r, h.ipConfig),
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, toUserResponse(user))
}

// StaffLogin handles login for admin and staff accounts
// @Router /auth/login [post]
func (h *AuthHandler) StaffLogin(w http.ResponseWriter, r *http.Request) {
	h.login(w, r, models.SurfaceStaff)
}

// CustomerLogin handles login for customer accounts
// @Router /auth/customer/login [post]
func (h *AuthHandler) CustomerLogin(w http.ResponseWriter, r *http.Request) {
	h.login(w, r, models.SurfaceCustomer)
}

func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request, surface string) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	result, err := h.service.Login(r.Context(), services.LoginInput{
		Username:  req.Username,
		Password:  req.Password,
		ClientIP:  pkghttp.ExtractClientIP(r, h.ipConfig),
		UserAgent: r.UserAgent(),
		Surface:   surface,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	auth.SetSessionCookie(w, result.Token, result.ExpiresAt, h.config.Cookie)
	pkghttp.WriteJSON(w, http.StatusOK, LoginResponse{
		Token:     result.Token,
		TokenType: "Bearer",
		ExpiresAt: result.ExpiresAt,
		User:      toUserResponse(result.User),
	})
}

// Me returns the authenticated user
// @Router /auth/me [get]
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromContext(r)
	if user == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, toUserResponse(user))
}

// ChangePassword replaces the caller's password. The calling session stays
// valid; every other session of the user ends.
// @Router /auth/change-password [post]
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	principal := auth.GetPrincipal(r)
	if principal == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req ChangePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	err := h.service.ChangePassword(r.Context(), principal.User.ID, req.CurrentPassword, req.NewPassword, principal.Token)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, MessageResponse{Message: "Password changed successfully"})
}

// ForgotPassword starts a password reset. The response never reveals
// whether the email belongs to an account.
// @Router /auth/forgot-password [post]
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	result, err := h.service.RequestPasswordReset(r.Context(), req.Email, pkghttp.ExtractClientIP(r, h.ipConfig))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	resp := ForgotPasswordResponse{Message: result.Message}
	if h.config.ExposeResetLink {
		resp.ResetLink = result.ResetLink
	}
	pkghttp.WriteJSON(w, http.StatusOK, resp)
}

// ResetPassword completes a reset with a token from the reset link
// @Router /auth/reset-password [post]
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	if err := h.service.ResetPassword(r.Context(), req.Token, req.NewPassword, pkghttp.ExtractClientIP(r, h.ipConfig)); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, MessageResponse{Message: "Password has been reset. Please log in."})
}

// Logout ends the presented session. It succeeds without a token or with
// an unknown one.
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := pkghttp.ExtractSessionToken(r)

	var userID string
	if user := auth.GetUserFromContext(r); user != nil {
		userID = user.ID
	}

	if token != "" {
		if err := h.service.Logout(r.Context(), token, userID); err != nil {
			writeServiceError(w, r, h.logger, err)
			return
		}
	}

	auth.ClearSessionCookie(w, h.config.Cookie)
	w.WriteHeader(http.StatusNoContent)
}

// LogoutAll ends every session of the caller, including this one
// @Router /auth/logout-all [post]
func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromContext(r)
	if user == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	if _, err := h.service.LogoutAll(r.Context(), user.ID); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	auth.ClearSessionCookie(w, h.config.Cookie)
	w.WriteHeader(http.StatusNoContent)
}
