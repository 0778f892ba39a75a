package auth

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/stockflow-erp/stockflow/internal/platform/httpx"
	"github.com/stockflow-erp/stockflow/internal/shared"
)

// Handler exposes authentication endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers auth routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/login", h.handleLogin)
}

type loginPayload struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Token string    `json:"token"`
	User  userBrief `json:"user"`
}

type userBrief struct {
	ID         int64  `json:"id"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	Department string `json:"department,omitempty"`
	Role       string `json:"role"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var payload loginPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "email and password are required")
		return
	}
	user, token, err := h.service.Authenticate(r.Context(), payload.Email, payload.Password)
	if err != nil {
		h.logger.Warn("login failed", slog.String("email", payload.Email))
		httpx.RespondError(w, shared.ErrInvalidCredentials)
		return
	}
	httpx.JSON(w, http.StatusOK, loginResponse{
		Token: token,
		User: userBrief{
			ID:         user.ID,
			Email:      user.Email,
			Name:       user.Name,
			Department: user.Department,
			Role:       string(user.Role),
		},
	})
}
