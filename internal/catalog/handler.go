package catalog

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/stockflow-erp/stockflow/internal/platform/httpx"
	"github.com/stockflow-erp/stockflow/internal/shared"
)

type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/products", h.handleListProducts)
	r.Get("/products/{id}", h.handleGetProduct)
	r.Post("/products", h.handleCreateProduct)
	r.Put("/products/{id}", h.handleUpdateProduct)
	r.Get("/categories", h.handleListCategories)
	r.Post("/categories", h.handleCreateCategory)
}

type productPayload struct {
	Name           string `json:"name" validate:"required"`
	Reference      string `json:"reference" validate:"required"`
	CategoryID     int64  `json:"categoryId" validate:"required,gt=0"`
	Quantity       int64  `json:"quantity" validate:"gte=0"`
	UnitPrice      string `json:"unitPrice"`
	AlertThreshold int64  `json:"alertThreshold" validate:"gte=0"`
	IsActive       *bool  `json:"isActive"`
}

type productResponse struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	Reference      string `json:"reference"`
	CategoryID     int64  `json:"categoryId"`
	Quantity       int64  `json:"quantity"`
	UnitPrice      string `json:"unitPrice"`
	AlertThreshold int64  `json:"alertThreshold"`
	IsActive       bool   `json:"isActive"`
}

func toProductResponse(p Product) productResponse {
	return productResponse{
		ID:             p.ID,
		Name:           p.Name,
		Reference:      p.Reference,
		CategoryID:     p.CategoryID,
		Quantity:       p.Quantity,
		UnitPrice:      p.UnitPrice.String(),
		AlertThreshold: p.AlertThreshold,
		IsActive:       p.IsActive,
	}
}

func (h *Handler) handleListProducts(w http.ResponseWriter, r *http.Request) {
	filters := ListFilters{Search: r.URL.Query().Get("search")}
	if raw := r.URL.Query().Get("category_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err == nil && id > 0 {
			filters.CategoryID = &id
		}
	}
	filters.ActiveOnly = r.URL.Query().Get("active") == "true"
	products, err := h.service.ListProducts(r.Context(), filters)
	if err != nil {
		h.logger.Error("list products", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]productResponse, 0, len(products))
	for _, p := range products {
		out = append(out, toProductResponse(p))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	product, err := h.service.GetProduct(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toProductResponse(product))
}

func (h *Handler) decodeProduct(r *http.Request) (Product, error) {
	var payload productPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		return Product{}, shared.Validationf("body", "malformed JSON body")
	}
	if err := h.validator.Struct(payload); err != nil {
		return Product{}, shared.Validationf("body", "missing or invalid fields")
	}
	price := decimal.Zero
	if payload.UnitPrice != "" {
		parsed, err := decimal.NewFromString(payload.UnitPrice)
		if err != nil {
			return Product{}, shared.Validationf("unitPrice", "not a valid decimal")
		}
		price = parsed
	}
	active := true
	if payload.IsActive != nil {
		active = *payload.IsActive
	}
	return Product{
		Name:           payload.Name,
		Reference:      payload.Reference,
		CategoryID:     payload.CategoryID,
		Quantity:       payload.Quantity,
		UnitPrice:      price,
		AlertThreshold: payload.AlertThreshold,
		IsActive:       active,
	}, nil
}

func (h *Handler) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	product, err := h.decodeProduct(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	created, err := h.service.CreateProduct(r.Context(), principal, product)
	if err != nil {
		h.logger.Error("create product", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toProductResponse(created))
}

func (h *Handler) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	product, err := h.decodeProduct(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.UpdateProduct(r.Context(), principal, id, product); err != nil {
		h.logger.Error("update product", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"updated": true})
}

type categoryPayload struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
}

func (h *Handler) handleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.service.ListCategories(r.Context())
	if err != nil {
		h.logger.Error("list categories", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, categories)
}

func (h *Handler) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	var payload categoryPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "category name is required")
		return
	}
	created, err := h.service.CreateCategory(r.Context(), principal, Category{Name: payload.Name, Description: payload.Description})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}
