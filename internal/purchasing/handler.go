package purchasing

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/stockflow-erp/stockflow/internal/platform/httpx"
	"github.com/stockflow-erp/stockflow/internal/shared"
)

// Handler serves the purchase order endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers purchase order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/{id}", h.handleGet)
	r.Get("/{id}/history", h.handleHistory)
	r.Put("/{id}", h.handleEdit)
	r.Delete("/{id}", h.handleDelete)
	r.Post("/{id}/submit", h.handleSubmit)
	r.Post("/{id}/approve", h.handleApprove)
	r.Post("/{id}/request-revision", h.handleRequestRevision)
	r.Post("/{id}/mark-ordered", h.handleMarkOrdered)
	r.Post("/{id}/close", h.handleClose)
	r.Post("/{id}/cancel", h.handleCancel)
}

func orderID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id
}

type itemPayload struct {
	ProductID int64  `json:"productId" validate:"required,gt=0"`
	Quantity  int64  `json:"quantity" validate:"required,gt=0"`
	UnitPrice string `json:"unitPrice" validate:"required"`
}

type orderPayload struct {
	SupplierName string        `json:"supplierName"`
	Items        []itemPayload `json:"items" validate:"required,min=1,dive"`
}

func (h *Handler) decodeOrder(r *http.Request) (CreateInput, error) {
	var payload orderPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		return CreateInput{}, shared.Validationf("body", "malformed JSON body")
	}
	if err := h.validator.Struct(payload); err != nil {
		return CreateInput{}, shared.Validationf("items", "at least one item with product, quantity and unit price is required")
	}
	input := CreateInput{SupplierName: payload.SupplierName}
	for _, item := range payload.Items {
		price, err := decimal.NewFromString(item.UnitPrice)
		if err != nil {
			return CreateInput{}, shared.ItemValidationf("product "+strconv.FormatInt(item.ProductID, 10), "unitPrice", "not a valid decimal")
		}
		input.Items = append(input.Items, ItemInput{ProductID: item.ProductID, Quantity: item.Quantity, UnitPrice: price})
	}
	return input, nil
}

type itemResponse struct {
	ID          int64  `json:"id"`
	ProductID   int64  `json:"productId"`
	ProductName string `json:"productName,omitempty"`
	Quantity    int64  `json:"quantity"`
	UnitPrice   string `json:"unitPrice"`
	TotalPrice  string `json:"totalPrice"`
}

type orderResponse struct {
	ID              int64          `json:"id"`
	Number          string         `json:"number"`
	Status          string         `json:"status"`
	SupplierName    string         `json:"supplierName,omitempty"`
	CreatorID       int64          `json:"creatorId"`
	CreatorName     string         `json:"creatorName"`
	RevisionComment string         `json:"revisionComment,omitempty"`
	TotalAmount     string         `json:"totalAmount"`
	Items           []itemResponse `json:"items,omitempty"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
	ApprovedAt      *time.Time     `json:"approvedAt,omitempty"`
	OrderedAt       *time.Time     `json:"orderedAt,omitempty"`
	ClosedAt        *time.Time     `json:"closedAt,omitempty"`
}

func toResponse(po PurchaseOrder) orderResponse {
	out := orderResponse{
		ID:              po.ID,
		Number:          po.Number,
		Status:          string(po.Status),
		SupplierName:    po.SupplierName,
		CreatorID:       po.CreatorID,
		CreatorName:     po.CreatorName,
		RevisionComment: po.RevisionComment,
		TotalAmount:     po.TotalAmount.String(),
		CreatedAt:       po.CreatedAt,
		UpdatedAt:       po.UpdatedAt,
		ApprovedAt:      po.ApprovedAt,
		OrderedAt:       po.OrderedAt,
		ClosedAt:        po.ClosedAt,
	}
	for _, item := range po.Items {
		out.Items = append(out.Items, itemResponse{
			ID:          item.ID,
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice.String(),
			TotalPrice:  item.TotalPrice.String(),
		})
	}
	return out
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())

	input, err := h.decodeOrder(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	created, err := h.service.Create(r.Context(), principal, input)
	if err != nil {
		h.logger.Error("create purchase order", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(created))
}

func (h *Handler) handleEdit(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())

	input, err := h.decodeOrder(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Edit(r.Context(), principal, orderID(r), input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"updated": true})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	if err := h.service.Delete(r.Context(), principal, orderID(r)); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	filter := ListFilter{
		Search:     r.URL.Query().Get("search"),
		Pagination: shared.NewPagination(page, perPage, 0),
	}
	if status := r.URL.Query().Get("status"); status != "" {
		filter.Statuses = []Status{Status(status)}
	}

	orders, total, err := h.service.List(r.Context(), principal, filter)
	if err != nil {
		h.logger.Error("list purchase orders", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	out := make([]orderResponse, 0, len(orders))
	for _, po := range orders {
		out = append(out, toResponse(po))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"items": out,
		"total": total,
		"page":  filter.Pagination.Page,
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	po, err := h.service.Get(r.Context(), principal, orderID(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(po))
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	entries, err := h.service.History(r.Context(), principal, orderID(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entries)
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "submit", func(principal shared.Principal, id int64) error {
		return h.service.Submit(r.Context(), principal, id)
	}, StatusPendingApproval)
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "approve", func(principal shared.Principal, id int64) error {
		return h.service.Approve(r.Context(), principal, id)
	}, StatusApproved)
}

func (h *Handler) handleRequestRevision(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())

	var payload struct {
		Comment string `json:"comment"`
	}
	_ = httpx.DecodeJSON(r, &payload)

	if err := h.service.RequestRevision(r.Context(), principal, orderID(r), payload.Comment); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": string(StatusNeedsRevision)})
}

func (h *Handler) handleMarkOrdered(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "mark ordered", func(principal shared.Principal, id int64) error {
		return h.service.MarkOrdered(r.Context(), principal, id)
	}, StatusOrdered)
}

func (h *Handler) handleClose(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "close", func(principal shared.Principal, id int64) error {
		return h.service.Close(r.Context(), principal, id)
	}, StatusClosed)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "cancel", func(principal shared.Principal, id int64) error {
		return h.service.Cancel(r.Context(), principal, id)
	}, StatusCancelled)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, name string, fn func(shared.Principal, int64) error, result Status) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	id := orderID(r)
	if err := fn(principal, id); err != nil {
		h.logger.Error(name+" purchase order", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": string(result)})
}
