package notify

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stockflow-erp/stockflow/internal/platform/httpx"
	"github.com/stockflow-erp/stockflow/internal/shared"
)

// Handler serves the notification endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers notification routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Get("/counts", h.handleCounts)
	r.Post("/{id}/read", h.handleMarkRead)
	r.Post("/read-all", h.handleMarkAllRead)
}

type notificationResponse struct {
	ID        int64      `json:"id"`
	Kind      string     `json:"type"`
	Message   string     `json:"message"`
	RefModule string     `json:"refModule"`
	RefID     int64      `json:"refId"`
	ReadAt    *time.Time `json:"readAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())

	unreadOnly := r.URL.Query().Get("unread") == "true"
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	items, err := h.service.List(r.Context(), principal, unreadOnly, limit)
	if err != nil {
		h.logger.Error("list notifications", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	out := make([]notificationResponse, 0, len(items))
	for _, n := range items {
		out = append(out, notificationResponse{
			ID:        n.ID,
			Kind:      n.Kind,
			Message:   n.Message,
			RefModule: n.RefModule,
			RefID:     n.RefID,
			ReadAt:    n.ReadAt,
			CreatedAt: n.CreatedAt,
		})
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) handleCounts(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	counts, err := h.service.PendingCounts(r.Context(), principal)
	if err != nil {
		h.logger.Error("notification counts", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, counts)
}

func (h *Handler) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err := h.service.MarkRead(r.Context(), principal, id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"read": true})
}

func (h *Handler) handleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	if err := h.service.MarkAllRead(r.Context(), principal); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"read": true})
}
