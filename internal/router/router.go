package router

import (
	"net/http"

	"github.com/campus-canteen/api/internal/config"
	"github.com/campus-canteen/api/internal/database"
	"github.com/campus-canteen/api/internal/enum"
	"github.com/campus-canteen/api/internal/handler"
	"github.com/campus-canteen/api/internal/logger"
	mw "github.com/campus-canteen/api/internal/middleware"
	"github.com/campus-canteen/api/internal/notify"
	"github.com/campus-canteen/api/internal/service"
	"github.com/campus-canteen/api/internal/ws"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
)

// New creates a Chi router with all application routes wired up.
// notifier receives order events; in a single instance it is the hub itself.
func New(cfg *config.Config, queries *database.Queries, pool *pgxpool.Pool, hub *ws.Hub, notifier notify.Notifier) chi.Router {
	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logger.RequestLogger)
	r.Use(middleware.Recoverer)

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := pool.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.Write([]byte(`{"status":"ok"}`))
	})

	// WebSocket route (handles auth internally via query param)
	r.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(hub, cfg.JWTSecret, w, r)
	})

	newOrderStore := func(db database.DBTX) service.OrderStore {
		return database.New(db)
	}
	orderService := service.NewOrderService(pool, newOrderStore, notifier, service.OrderConfig{
		Location:     cfg.Location,
		DefaultUpiID: cfg.DefaultUpiID,
	})
	reportService := service.NewReportService(queries, cfg.Location)

	orderHandler := handler.NewOrderHandler(orderService, cfg.Location)
	menuHandler := handler.NewMenuHandler(queries)
	settingsHandler := handler.NewSettingsHandler(queries, cfg.DefaultUpiID)
	reportsHandler := handler.NewReportsHandler(reportService)
	authHandler := handler.NewAuthHandler(queries, cfg.JWTSecret)
	userHandler := handler.NewUserHandler(queries)

	orderLimiter := mw.NewRateLimiter(cfg.OrderRateLimit, cfg.OrderRateBurst)
	requireAdmin := []func(http.Handler) http.Handler{
		mw.Authenticate(cfg.JWTSecret),
		mw.RequireRole(enum.UserRoleAdmin),
	}

	r.Route("/api", func(r chi.Router) {
		authHandler.RegisterRoutes(r)

		// Customer routes (public)
		r.Route("/orders", func(r chi.Router) {
			orderHandler.RegisterRoutes(r, orderLimiter.Middleware)
		})

		r.Route("/menu", func(r chi.Router) {
			menuHandler.RegisterRoutes(r)
			r.With(requireAdmin...).Group(menuHandler.RegisterAdminRoutes)
		})

		r.Route("/settings", func(r chi.Router) {
			settingsHandler.RegisterRoutes(r)
			r.With(requireAdmin...).Group(settingsHandler.RegisterAdminRoutes)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Use(requireAdmin...)
			r.Route("/orders", orderHandler.RegisterAdminRoutes)
			r.Route("/reports", reportsHandler.RegisterRoutes)
			r.Route("/users", userHandler.RegisterRoutes)
		})

		// Kitchen routes (admins may act as kitchen staff)
		r.Route("/kitchen", func(r chi.Router) {
			r.Use(mw.Authenticate(cfg.JWTSecret))
			r.Use(mw.RequireRole(enum.UserRoleKitchen, enum.UserRoleAdmin))
			r.Route("/orders", orderHandler.RegisterKitchenRoutes)
		})
	})

	logger.Log.Info("router initialized")
	return r
}
