package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/BradenHooton/garage/internal/auth"
	"github.com/BradenHooton/garage/internal/models"
	"github.com/BradenHooton/garage/internal/services"
	pkghttp "github.com/BradenHooton/garage/pkg/http"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Pagination bounds shared by the admin listings
const (
	defaultPageLimit = 50
	maxPageLimit     = 100
)

// UserServiceInterface defines the interface for user administration
type UserServiceInterface interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	ListUsers(ctx context.Context, limit, offset int) ([]*models.User, int64, error)
	CreateUser(ctx context.Context, actorID string, input services.CreateUserInput) (*models.User, error)
	UpdateStatus(ctx context.Context, actorID, userID, status string) (*models.User, error)
}

// UserHandler handles admin user management requests
type UserHandler struct {
	service UserServiceInterface
	logger  *slog.Logger
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(service UserServiceInterface, logger *slog.Logger) *UserHandler {
	return &UserHandler{
		service: service,
		logger:  logger,
	}
}

// Request/Response DTOs

// CreateUserRequest represents the request body for creating a user
type CreateUserRequest struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=1024"`
	FullName string `json:"full_name" validate:"max=100"`
	Role     string `json:"role" validate:"omitempty,oneof=admin staff customer"`
	Status   string `json:"status" validate:"omitempty,oneof=active suspended pending"`
}

// UpdateStatusRequest represents the request body for changing account status
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active suspended pending"`
}

// UserResponse represents a user in the HTTP response. The credential is
// never serialised.
type UserResponse struct {
	ID          string     `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email"`
	FullName    string     `json:"full_name"`
	Role        string     `json:"role"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

// ListUsersResponse represents a page of users
type ListUsersResponse struct {
	Users  []UserResponse `json:"users"`
	Total  int64          `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

func toUserResponse(user *models.User) UserResponse {
	return UserResponse{
		ID:          user.ID,
		Username:    user.Username,
		Email:       user.Email,
		FullName:    user.FullName,
		Role:        user.Role,
		Status:      user.Status,
		CreatedAt:   user.CreatedAt,
		LastLoginAt: user.LastLoginAt,
	}
}

// RegisterRoutes registers the user routes on an admin-only router
func (h *UserHandler) RegisterRoutes(router chi.Router) {
	router.Route("/users", func(r chi.Router) {
		r.Get("/", h.ListUsers)                 // GET /users
		r.Post("/", h.CreateUser)               // POST /users
		r.Get("/{id}", h.GetUser)               // GET /users/{id}
		r.Patch("/{id}/status", h.UpdateStatus) // PATCH /users/{id}/status
	})
}

// ListUsers returns a page of users, newest first
// @Router /users [get]
func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)

	users, total, err := h.service.ListUsers(r.Context(), limit, offset)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	resp := ListUsersResponse{
		Users:  make([]UserResponse, 0, len(users)),
		Total:  total,
		Limit:  limit,
		Offset: offset,
	}
	for _, u := range users {
		resp.Users = append(resp.Users, toUserResponse(u))
	}

	w.Header().Set("X-Total-Count", strconv.FormatInt(total, 10))
	pkghttp.WriteJSON(w, http.StatusOK, resp)
}

// GetUser retrieves a user by ID
// @Router /users/{id} [get]
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}

	user, err := h.service.GetUser(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, toUserResponse(user))
}

// CreateUser creates an account with any role
// @Router /users [post]
func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	actor := auth.GetUserFromContext(r)
	if actor == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req CreateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	user, err := h.service.CreateUser(r.Context(), actor.ID, services.CreateUserInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
		Role:     req.Role,
		Status:   req.Status,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, toUserResponse(user))
}

// UpdateStatus activates, suspends or parks an account. Leaving the active
// state ends every session of the user.
// @Router /users/{id}/status [patch]
func (h *UserHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	actor := auth.GetUserFromContext(r)
	if actor == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}

	var req UpdateStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	user, err := h.service.UpdateStatus(r.Context(), actor.ID, userID, req.Status)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, toUserResponse(user))
}

func userIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid user id")
		return "", false
	}
	return id, true
}

// parsePagination reads limit and offset, clamping limit to (0, maxPageLimit]
func parsePagination(r *http.Request) (int, int) {
	limit := defaultPageLimit
	offset := 0

	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 {
		limit = min(l, maxPageLimit)
	}
	if o, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && o >= 0 {
		offset = o
	}

	return limit, offset
}
