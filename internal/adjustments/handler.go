package adjustments

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/stockflow-erp/stockflow/internal/inventory"
	"github.com/stockflow-erp/stockflow/internal/platform/httpx"
	"github.com/stockflow-erp/stockflow/internal/shared"
)

// Handler serves the stock adjustment endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers adjustment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleDirect)
	r.Post("/proposals", h.handlePropose)
	r.Get("/{id}", h.handleGet)
	r.Get("/{id}/history", h.handleHistory)
	r.Post("/{id}/approve", h.handleApprove)
	r.Post("/{id}/reject", h.handleReject)
}

func adjustmentID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id
}

type adjustmentResponse struct {
	ID          int64      `json:"id"`
	ProductID   int64      `json:"productId"`
	ProductName string     `json:"productName,omitempty"`
	Type        string     `json:"type"`
	Quantity    int64      `json:"quantity"`
	Reason      string     `json:"reason"`
	Status      string     `json:"status"`
	AuditID     *int64     `json:"auditId,omitempty"`
	RequestedBy int64      `json:"requestedBy"`
	DecidedBy   *int64     `json:"decidedBy,omitempty"`
	DecidedAt   *time.Time `json:"decidedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

func toResponse(adj Adjustment) adjustmentResponse {
	return adjustmentResponse{
		ID:          adj.ID,
		ProductID:   adj.ProductID,
		ProductName: adj.ProductName,
		Type:        string(adj.Type),
		Quantity:    adj.Quantity,
		Reason:      adj.Reason,
		Status:      string(adj.Status),
		AuditID:     adj.AuditID,
		RequestedBy: adj.RequestedBy,
		DecidedBy:   adj.DecidedBy,
		DecidedAt:   adj.DecidedAt,
		CreatedAt:   adj.CreatedAt,
	}
}

type directPayload struct {
	ProductID   int64  `json:"productId" validate:"required,gt=0"`
	NewQuantity int64  `json:"newQuantity" validate:"gte=0"`
	Reason      string `json:"reason" validate:"required"`
}

func (h *Handler) handleDirect(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())

	var payload directPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.RespondError(w, shared.Validationf("body", "malformed JSON body"))
		return
	}
	if err := h.validator.Struct(payload); err != nil {
		httpx.RespondError(w, shared.Validationf("body", "productId, a non-negative newQuantity and a reason are required"))
		return
	}

	created, err := h.service.Direct(r.Context(), principal, DirectInput{
		ProductID:   payload.ProductID,
		NewQuantity: payload.NewQuantity,
		Reason:      payload.Reason,
	})
	if err != nil {
		h.logger.Error("direct adjustment", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(created))
}

type proposalPayload struct {
	ProductID int64  `json:"productId" validate:"required,gt=0"`
	Type      string `json:"type" validate:"required"`
	Quantity  int64  `json:"quantity" validate:"required,gt=0"`
	Reason    string `json:"reason" validate:"required"`
}

func (h *Handler) handlePropose(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())

	var payload proposalPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.RespondError(w, shared.Validationf("body", "malformed JSON body"))
		return
	}
	if err := h.validator.Struct(payload); err != nil {
		httpx.RespondError(w, shared.Validationf("body", "productId, type, a positive quantity and a reason are required"))
		return
	}

	created, err := h.service.Propose(r.Context(), principal, ProposalInput{
		ProductID: payload.ProductID,
		Type:      inventory.MovementType(payload.Type),
		Quantity:  payload.Quantity,
		Reason:    payload.Reason,
	})
	if err != nil {
		h.logger.Error("propose adjustment", slog.Any("error", err))
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
	if raw := r.URL.Query().Get("audit_id"); raw != "" {
		if auditID, err := strconv.ParseInt(raw, 10, 64); err == nil {
			filter.AuditID = &auditID
		}
	}

	items, total, err := h.service.List(r.Context(), principal, filter)
	if err != nil {
		h.logger.Error("list adjustments", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	out := make([]adjustmentResponse, 0, len(items))
	for _, adj := range items {
		out = append(out, toResponse(adj))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"items": out,
		"total": total,
		"page":  filter.Pagination.Page,
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	adj, err := h.service.Get(r.Context(), principal, adjustmentID(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(adj))
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	entries, err := h.service.History(r.Context(), principal, adjustmentID(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	type historyResponse struct {
		ActorID  int64     `json:"actorId"`
		Role     string    `json:"role"`
		Decision string    `json:"decision"`
		Comment  string    `json:"comment,omitempty"`
		At       time.Time `json:"at"`
	}
	out := make([]historyResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, historyResponse{ActorID: e.ActorID, Role: string(e.Role), Decision: string(e.Decision), Comment: e.Comment, At: e.At})
	}
	httpx.JSON(w, http.StatusOK, out)
}

type commentPayload struct {
	Comment string `json:"comment"`
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())

	var payload commentPayload
	_ = httpx.DecodeJSON(r, &payload)

	decided, err := h.service.Approve(r.Context(), principal, adjustmentID(r), payload.Comment)
	if err != nil {
		h.logger.Error("approve adjustment", slog.Any("error", err), slog.Int64("id", adjustmentID(r)))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(decided))
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())

	var payload commentPayload
	_ = httpx.DecodeJSON(r, &payload)

	decided, err := h.service.Reject(r.Context(), principal, adjustmentID(r), payload.Comment)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(decided))
}
