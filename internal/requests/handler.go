package requests

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/stockflow-erp/stockflow/internal/platform/httpx"
	"github.com/stockflow-erp/stockflow/internal/shared"
)

// Handler serves the stock request endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers request routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/{id}", h.handleGet)
	r.Get("/{id}/history", h.handleHistory)
	r.Get("/{id}/delivery-note", h.handleDeliveryNote)
	r.Post("/{id}/approve", h.handleApprove)
	r.Post("/{id}/reject", h.handleReject)
	r.Post("/{id}/deliver", h.handleDeliver)
	r.Post("/{id}/confirm-reception", h.handleConfirmReception)
	r.Post("/{id}/report-issue", h.handleReportIssue)
	r.Post("/{id}/resolve-dispute", h.handleResolveDispute)
	r.Post("/{id}/cancel", h.handleCancel)
}

func requestID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id
}

type itemPayload struct {
	ProductID int64 `json:"productId" validate:"required,gt=0"`
	Quantity  int64 `json:"quantity" validate:"required,gt=0"`
}

type createPayload struct {
	Observation string        `json:"observation"`
	Items       []itemPayload `json:"items" validate:"required,min=1,dive"`
}

type itemResponse struct {
	ID             int64  `json:"id"`
	ProductID      int64  `json:"productId"`
	ProductName    string `json:"productName"`
	RequestedQty   int64  `json:"requestedQty"`
	ApprovedQty    *int64 `json:"approvedQty"`
	DisputeStatus  string `json:"disputeStatus"`
	DisputeReason  string `json:"disputeReason,omitempty"`
	DisputeComment string `json:"disputeComment,omitempty"`
}

type requestResponse struct {
	ID            int64          `json:"id"`
	Number        string         `json:"number"`
	Status        string         `json:"status"`
	RequesterID   int64          `json:"requesterId"`
	RequesterName string         `json:"requesterName"`
	Observation   string         `json:"observation,omitempty"`
	Items         []itemResponse `json:"items,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
	ApprovedAt    *time.Time     `json:"approvedAt,omitempty"`
	DeliveredAt   *time.Time     `json:"deliveredAt,omitempty"`
	ReceivedAt    *time.Time     `json:"receivedAt,omitempty"`
}

func toResponse(req Request) requestResponse {
	out := requestResponse{
		ID:            req.ID,
		Number:        req.Number,
		Status:        string(req.Status),
		RequesterID:   req.RequesterID,
		RequesterName: req.RequesterName,
		Observation:   req.Observation,
		CreatedAt:     req.CreatedAt,
		UpdatedAt:     req.UpdatedAt,
		ApprovedAt:    req.ApprovedAt,
		DeliveredAt:   req.DeliveredAt,
		ReceivedAt:    req.ReceivedAt,
	}
	for _, item := range req.Items {
		resp := itemResponse{
			ID:             item.ID,
			ProductID:      item.ProductID,
			ProductName:    item.ProductName,
			RequestedQty:   item.RequestedQty,
			ApprovedQty:    item.ApprovedQty,
			DisputeStatus:  string(item.DisputeStatus),
			DisputeComment: item.DisputeComment,
		}
		if item.DisputeReason != nil {
			resp.DisputeReason = string(*item.DisputeReason)
		}
		out.Items = append(out.Items, resp)
	}
	return out
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())

	var payload createPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.RespondError(w, shared.Validationf("body", "malformed JSON body"))
		return
	}
	if err := h.validator.Struct(payload); err != nil {
		httpx.RespondError(w, shared.Validationf("items", "at least one item with a positive quantity is required"))
		return
	}

	input := CreateInput{Observation: payload.Observation}
	for _, item := range payload.Items {
		input.Items = append(input.Items, ItemInput{ProductID: item.ProductID, Quantity: item.Quantity})
	}

	created, err := h.service.Create(r.Context(), principal, input)
	if err != nil {
		h.logger.Error("create request", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(created))
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

	items, total, err := h.service.List(r.Context(), principal, filter)
	if err != nil {
		h.logger.Error("list requests", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	out := make([]requestResponse, 0, len(items))
	for _, req := range items {
		out = append(out, toResponse(req))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"items": out,
		"total": total,
		"page":  filter.Pagination.Page,
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	req, err := h.service.Get(r.Context(), principal, requestID(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(req))
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	entries, err := h.service.History(r.Context(), principal, requestID(r))
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

func (h *Handler) handleDeliveryNote(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	note, err := h.service.Note(r.Context(), principal, requestID(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, note)
}

type approveItemPayload struct {
	ItemID      int64 `json:"itemId" validate:"required,gt=0"`
	ApprovedQty int64 `json:"approvedQty" validate:"required"`
}

type approvePayload struct {
	Items   []approveItemPayload `json:"items" validate:"dive"`
	Comment string               `json:"comment"`
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())

	var payload approvePayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.RespondError(w, shared.Validationf("body", "malformed JSON body"))
		return
	}
	input := ApproveInput{Comment: payload.Comment}
	for _, item := range payload.Items {
		input.Items = append(input.Items, ItemDecision{ItemID: item.ItemID, ApprovedQty: item.ApprovedQty})
	}

	if err := h.service.Approve(r.Context(), principal, requestID(r), input); err != nil {
		h.logger.Error("approve request", slog.Any("error", err), slog.Int64("id", requestID(r)))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": string(StatusApproved)})
}

type commentPayload struct {
	Comment string `json:"comment"`
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())

	var payload commentPayload
	_ = httpx.DecodeJSON(r, &payload)

	if err := h.service.Reject(r.Context(), principal, requestID(r), payload.Comment); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": string(StatusRejected)})
}

func (h *Handler) handleDeliver(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	if err := h.service.Deliver(r.Context(), principal, requestID(r)); err != nil {
		h.logger.Error("deliver request", slog.Any("error", err), slog.Int64("id", requestID(r)))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": string(StatusDelivered)})
}

func (h *Handler) handleConfirmReception(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	if err := h.service.ConfirmReception(r.Context(), principal, requestID(r)); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": string(StatusReceptionConfirmed)})
}

type disputePayload struct {
	Items []struct {
		ItemID  int64  `json:"itemId"`
		Reason  string `json:"reason"`
		Comment string `json:"comment"`
	} `json:"items"`
}

func (h *Handler) handleReportIssue(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())

	var payload disputePayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.RespondError(w, shared.Validationf("body", "malformed JSON body"))
		return
	}
	disputes := make([]DisputeInput, 0, len(payload.Items))
	for _, item := range payload.Items {
		disputes = append(disputes, DisputeInput{ItemID: item.ItemID, Reason: DisputeReason(item.Reason), Comment: item.Comment})
	}

	if err := h.service.ReportIssue(r.Context(), principal, requestID(r), disputes); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": string(StatusDisputed)})
}

type resolvePayload struct {
	Decision string `json:"decision" validate:"required"`
	Comment  string `json:"comment"`
}

func (h *Handler) handleResolveDispute(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())

	var payload resolvePayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.RespondError(w, shared.Validationf("body", "malformed JSON body"))
		return
	}

	if err := h.service.ResolveDispute(r.Context(), principal, requestID(r), ResolveDecision(payload.Decision), payload.Comment); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"resolved": true})
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	if err := h.service.Cancel(r.Context(), principal, requestID(r)); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": string(StatusCancelled)})
}
