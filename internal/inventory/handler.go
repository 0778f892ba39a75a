package inventory

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stockflow-erp/stockflow/internal/platform/httpx"
	"github.com/stockflow-erp/stockflow/internal/shared"
)

type Handler struct {
	logger  *slog.Logger
	service *Service
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/movements", h.handleListMovements)
	r.Get("/low-stock", h.handleLowStock)
}

type movementResponse struct {
	ID        int64     `json:"id"`
	ProductID int64     `json:"productId"`
	Type      string    `json:"type"`
	Source    string    `json:"source"`
	SourceRef string    `json:"sourceRef"`
	Quantity  int64     `json:"quantity"`
	ActorID   int64     `json:"actorId"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func (h *Handler) handleListMovements(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())

	filter := MovementFilter{
		Type:   MovementType(r.URL.Query().Get("type")),
		Source: MovementSource(r.URL.Query().Get("source")),
	}
	if raw := r.URL.Query().Get("product_id"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil && id > 0 {
			filter.ProductID = &id
		}
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		filter.Limit, _ = strconv.Atoi(raw)
	}

	movements, err := h.service.Movements(r.Context(), principal, filter)
	if err != nil {
		h.logger.Error("list movements", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	out := make([]movementResponse, 0, len(movements))
	for _, m := range movements {
		out = append(out, movementResponse{
			ID:        m.ID,
			ProductID: m.ProductID,
			Type:      string(m.Type),
			Source:    string(m.Source),
			SourceRef: m.SourceRef,
			Quantity:  m.Quantity,
			ActorID:   m.ActorID,
			Note:      m.Note,
			CreatedAt: m.CreatedAt,
		})
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) handleLowStock(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())

	products, err := h.service.LowStock(r.Context(), principal)
	if err != nil {
		h.logger.Error("list low stock", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, products)
}
