package audits

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stockflow-erp/stockflow/internal/platform/httpx"
	"github.com/stockflow-erp/stockflow/internal/shared"
)

// Handler serves the inventory audit endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers audit routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/{id}", h.handleGet)
	r.Put("/{id}/items", h.handleRecordCounts)
	r.Post("/{id}/complete", h.handleComplete)
	r.Post("/{id}/request-reconciliation", h.handleRequestReconciliation)
}

func auditID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id
}

type itemResponse struct {
	ID          int64  `json:"id"`
	ProductID   int64  `json:"productId"`
	ProductName string `json:"productName"`
	SystemQty   int64  `json:"systemQuantity"`
	CountedQty  *int64 `json:"countedQuantity"`
	Discrepancy *int64 `json:"discrepancy"`
}

type auditResponse struct {
	ID          int64          `json:"id"`
	Number      string         `json:"number"`
	Status      string         `json:"status"`
	CreatorID   int64          `json:"creatorId"`
	CreatorName string         `json:"creatorName"`
	Items       []itemResponse `json:"items,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	CompletedAt *time.Time     `json:"completedAt,omitempty"`
}

func toResponse(audit Audit) auditResponse {
	out := auditResponse{
		ID:          audit.ID,
		Number:      audit.Number,
		Status:      string(audit.Status),
		CreatorID:   audit.CreatorID,
		CreatorName: audit.CreatorName,
		CreatedAt:   audit.CreatedAt,
		CompletedAt: audit.CompletedAt,
	}
	for _, item := range audit.Items {
		resp := itemResponse{
			ID:          item.ID,
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			SystemQty:   item.SystemQty,
			CountedQty:  item.CountedQty,
		}
		if delta, ok := item.Discrepancy(); ok {
			resp.Discrepancy = &delta
		}
		out.Items = append(out.Items, resp)
	}
	return out
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	created, err := h.service.Create(r.Context(), principal)
	if err != nil {
		h.logger.Error("create audit", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(created))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	filter := ListFilter{Pagination: shared.NewPagination(page, perPage, 0)}
	if status := r.URL.Query().Get("status"); status != "" {
		filter.Statuses = []Status{Status(status)}
	}

	audits, total, err := h.service.List(r.Context(), principal, filter)
	if err != nil {
		h.logger.Error("list audits", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	out := make([]auditResponse, 0, len(audits))
	for _, audit := range audits {
		out = append(out, toResponse(audit))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"items": out,
		"total": total,
		"page":  filter.Pagination.Page,
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	audit, err := h.service.Get(r.Context(), principal, auditID(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(audit))
}

type countsPayload struct {
	Items []struct {
		ProductID  int64 `json:"productId"`
		CountedQty int64 `json:"countedQuantity"`
	} `json:"items"`
}

func (h *Handler) handleRecordCounts(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())

	var payload countsPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.RespondError(w, shared.Validationf("body", "malformed JSON body"))
		return
	}
	counts := make([]CountInput, 0, len(payload.Items))
	for _, item := range payload.Items {
		counts = append(counts, CountInput{ProductID: item.ProductID, CountedQty: item.CountedQty})
	}

	if err := h.service.RecordCounts(r.Context(), principal, auditID(r), counts); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"recorded": len(counts)})
}

func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	if err := h.service.Complete(r.Context(), principal, auditID(r)); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": string(StatusCompleted)})
}

func (h *Handler) handleRequestReconciliation(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	final, err := h.service.RequestReconciliation(r.Context(), principal, auditID(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": string(final)})
}
