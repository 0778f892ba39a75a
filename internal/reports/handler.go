package reports

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stockflow-erp/stockflow/internal/platform/httpx"
	"github.com/stockflow-erp/stockflow/internal/shared"
)

// Handler serves the report endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/dashboard", h.handleDashboard)
	r.Get("/stock-valuation", h.handleValuation)
	r.Get("/stock-valuation/export", h.handleValuationCSV)
	r.Get("/stock-turnover", h.handleTurnover)
	r.Get("/stock-turnover/export", h.handleTurnoverCSV)
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Dashboard(r.Context())
	if err != nil {
		h.logger.Error("dashboard stats", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"lowStock":         stats.LowStock,
		"pendingApprovals": stats.PendingApprovals,
		"totalItems":       stats.TotalItems,
	})
}

type valuationCategoryResponse struct {
	CategoryID   int64  `json:"categoryId"`
	CategoryName string `json:"categoryName"`
	ProductCount int64  `json:"productCount"`
	TotalValue   string `json:"totalValue"`
}

func (h *Handler) handleValuation(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	report, err := h.service.Valuation(r.Context(), principal)
	if err != nil {
		h.logger.Error("stock valuation", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	categories := make([]valuationCategoryResponse, 0, len(report.Categories))
	for _, c := range report.Categories {
		categories = append(categories, valuationCategoryResponse{
			CategoryID:   c.CategoryID,
			CategoryName: c.CategoryName,
			ProductCount: c.ProductCount,
			TotalValue:   c.TotalValue.StringFixed(2),
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"generatedAt": report.GeneratedAt,
		"categories":  categories,
		"totalValue":  report.TotalValue.StringFixed(2),
	})
}

func (h *Handler) handleValuationCSV(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	report, err := h.service.Valuation(r.Context(), principal)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="stock-valuation.csv"`)
	if err := WriteValuationCSV(w, report); err != nil {
		h.logger.Error("export stock valuation", slog.Any("error", err))
	}
}

// turnoverWindow parses the from/to query params, defaulting to the last
// thirty days.
func turnoverWindow(r *http.Request) (time.Time, time.Time) {
	to := time.Now().UTC()
	from := to.AddDate(0, 0, -30)
	if raw := r.URL.Query().Get("from"); raw != "" {
		if parsed, err := time.Parse("2006-01-02", raw); err == nil {
			from = parsed
		}
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		if parsed, err := time.Parse("2006-01-02", raw); err == nil {
			to = parsed.Add(24*time.Hour - time.Nanosecond)
		}
	}
	return from, to
}

type turnoverItemResponse struct {
	ProductID    int64   `json:"productId"`
	ProductName  string  `json:"productName"`
	Reference    string  `json:"reference"`
	CurrentStock int64   `json:"currentStock"`
	QuantityOut  int64   `json:"quantityOut"`
	TurnoverRate float64 `json:"turnoverRate"`
}

func (h *Handler) handleTurnover(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	from, to := turnoverWindow(r)
	report, err := h.service.Turnover(r.Context(), principal, from, to)
	if err != nil {
		h.logger.Error("stock turnover", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	items := make([]turnoverItemResponse, 0, len(report.Items))
	for _, item := range report.Items {
		items = append(items, turnoverItemResponse{
			ProductID:    item.ProductID,
			ProductName:  item.ProductName,
			Reference:    item.Reference,
			CurrentStock: item.CurrentStock,
			QuantityOut:  item.QuantityOut,
			TurnoverRate: item.TurnoverRate,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"generatedAt": report.GeneratedAt,
		"from":        report.From,
		"to":          report.To,
		"items":       items,
	})
}

func (h *Handler) handleTurnoverCSV(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	from, to := turnoverWindow(r)
	report, err := h.service.Turnover(r.Context(), principal, from, to)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="stock-turnover.csv"`)
	if err := WriteTurnoverCSV(w, report); err != nil {
		h.logger.Error("export stock turnover", slog.Any("error", err))
	}
}
