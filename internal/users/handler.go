package users

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/stockflow-erp/stockflow/internal/platform/httpx"
	"github.com/stockflow-erp/stockflow/internal/shared"
)

// Handler serves the account-management endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers account routes. The static /me and
// /request-creators routes take precedence over /{id}.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/request-creators", h.handleRequestCreators)
	r.Get("/me", h.handleProfile)
	r.Put("/me", h.handleUpdateProfile)
	r.Put("/me/password", h.handleChangePassword)
	r.Get("/{id}", h.handleGet)
	r.Put("/{id}", h.handleUpdate)
	r.Delete("/{id}", h.handleDeactivate)
}

type userResponse struct {
	ID         int64  `json:"id"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	Department string `json:"department"`
	Role       string `json:"role"`
	IsActive   bool   `json:"isActive"`
}

func toUserResponse(u User) userResponse {
	return userResponse{
		ID:         u.ID,
		Email:      u.Email,
		Name:       u.Name,
		Department: u.Department,
		Role:       string(u.Role),
		IsActive:   u.IsActive,
	}
}

type createPayload struct {
	Email      string `json:"email" validate:"required,email"`
	Name       string `json:"name" validate:"required"`
	Department string `json:"department"`
	Role       string `json:"role" validate:"required"`
	Password   string `json:"password" validate:"required"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	var payload createPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "missing or invalid fields")
		return
	}
	created, err := h.service.Create(r.Context(), principal, CreateInput{
		Email:      payload.Email,
		Name:       payload.Name,
		Department: payload.Department,
		Role:       shared.Role(payload.Role),
		Password:   payload.Password,
	})
	if err != nil {
		h.logger.Error("create user", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toUserResponse(created))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	filter := ListFilter{Search: r.URL.Query().Get("search")}
	if raw := r.URL.Query().Get("roles"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			filter.Roles = append(filter.Roles, shared.Role(strings.ToUpper(strings.TrimSpace(part))))
		}
	}
	accounts, err := h.service.List(r.Context(), principal, filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]userResponse, 0, len(accounts))
	for _, u := range accounts {
		out = append(out, toUserResponse(u))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) handleRequestCreators(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	heads, err := h.service.RequestCreators(r.Context(), principal)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]userResponse, 0, len(heads))
	for _, u := range heads {
		out = append(out, toUserResponse(u))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	u, err := h.service.Get(r.Context(), principal, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toUserResponse(u))
}

type updatePayload struct {
	Email      *string `json:"email"`
	Name       *string `json:"name"`
	Department *string `json:"department"`
	Role       *string `json:"role"`
	IsActive   *bool   `json:"isActive"`
	Password   *string `json:"password"`
}

func (p updatePayload) empty() bool {
	return p.Email == nil && p.Name == nil && p.Department == nil &&
		p.Role == nil && p.IsActive == nil && p.Password == nil
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	var payload updatePayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if payload.empty() {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "no fields to update provided")
		return
	}
	input := UpdateInput{
		Email:      payload.Email,
		Name:       payload.Name,
		Department: payload.Department,
		IsActive:   payload.IsActive,
		Password:   payload.Password,
	}
	if payload.Role != nil {
		role := shared.Role(*payload.Role)
		input.Role = &role
	}
	updated, err := h.service.Update(r.Context(), principal, id, input)
	if err != nil {
		h.logger.Error("update user", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toUserResponse(updated))
}

func (h *Handler) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err := h.service.Deactivate(r.Context(), principal, id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleProfile(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	u, err := h.service.Profile(r.Context(), principal)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toUserResponse(u))
}

type profilePayload struct {
	Email      *string `json:"email"`
	Name       *string `json:"name"`
	Department *string `json:"department"`
}

func (h *Handler) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	var payload profilePayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if payload.Email == nil && payload.Name == nil && payload.Department == nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "no fields to update provided")
		return
	}
	updated, err := h.service.UpdateProfile(r.Context(), principal, ProfileInput{
		Email:      payload.Email,
		Name:       payload.Name,
		Department: payload.Department,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toUserResponse(updated))
}

type passwordPayload struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required"`
}

func (h *Handler) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	var payload passwordPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "current and new passwords are required")
		return
	}
	if err := h.service.ChangePassword(r.Context(), principal, payload.CurrentPassword, payload.NewPassword); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"updated": true})
}
