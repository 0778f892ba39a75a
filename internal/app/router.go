package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/stockflow-erp/stockflow/internal/adjustments"
	"github.com/stockflow-erp/stockflow/internal/audits"
	"github.com/stockflow-erp/stockflow/internal/auth"
	"github.com/stockflow-erp/stockflow/internal/catalog"
	"github.com/stockflow-erp/stockflow/internal/inventory"
	"github.com/stockflow-erp/stockflow/internal/notify"
	"github.com/stockflow-erp/stockflow/internal/observability"
	"github.com/stockflow-erp/stockflow/internal/purchasing"
	"github.com/stockflow-erp/stockflow/internal/reports"
	"github.com/stockflow-erp/stockflow/internal/requests"
	"github.com/stockflow-erp/stockflow/internal/users"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger *slog.Logger
	Config *Config

	AuthMiddleware auth.Middleware

	AuthHandler        *auth.Handler
	CatalogHandler     *catalog.Handler
	RequestsHandler    *requests.Handler
	PurchasingHandler  *purchasing.Handler
	AuditsHandler      *audits.Handler
	AdjustmentsHandler *adjustments.Handler
	InventoryHandler   *inventory.Handler
	ReportsHandler     *reports.Handler
	NotifyHandler      *notify.Handler
	UsersHandler       *users.Handler

	Metrics *observability.Metrics
}

// NewRouter constructs the chi.Router with StockFlow defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/auth", params.AuthHandler.MountRoutes)

	r.Group(func(r chi.Router) {
		r.Use(params.AuthMiddleware.Authenticate)

		// Catalog and inventory register absolute paths (/products,
		// /categories, /movements, /low-stock).
		params.CatalogHandler.MountRoutes(r)
		params.InventoryHandler.MountRoutes(r)

		r.Route("/requests", params.RequestsHandler.MountRoutes)
		r.Route("/purchase-orders", params.PurchasingHandler.MountRoutes)
		r.Route("/inventory-audits", params.AuditsHandler.MountRoutes)
		r.Route("/adjustments", params.AdjustmentsHandler.MountRoutes)
		r.Route("/reports", params.ReportsHandler.MountRoutes)
		r.Route("/notifications", params.NotifyHandler.MountRoutes)
		r.Route("/users", params.UsersHandler.MountRoutes)
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
