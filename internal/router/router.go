package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sajikan-pos/api/internal/config"
	"github.com/sajikan-pos/api/internal/database"
	"github.com/sajikan-pos/api/internal/handler"
	mw "github.com/sajikan-pos/api/internal/middleware"
	"github.com/sajikan-pos/api/internal/service"
	"github.com/sajikan-pos/api/internal/ws"
)

// New creates a Chi router with all application routes wired up.
// Catalog and settings writes require OWNER or MANAGER; everything else is
// available to any authenticated staff member.
func New(cfg *config.Config, queries *database.Queries, pool *pgxpool.Pool, hub *ws.Hub) chi.Router {
	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","version":"1.0.0"}`))
	})

	// Auth routes (public)
	authHandler := handler.NewAuthHandler(queries, cfg.JWTSecret)
	authHandler.RegisterRoutes(r)

	// WebSocket routes (handle auth internally via query param)
	r.Get("/ws/tables/{table}/orders", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeTableWS(hub, cfg.JWTSecret, w, r)
	})
	r.Get("/ws/orders", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeKitchenWS(hub, cfg.JWTSecret, w, r)
	})

	// The order service needs tx-scoped stores for submission; handlers that
	// only read can share the pool-backed queries directly.
	newOrderStore := func(db database.DBTX) service.OrderStore {
		return database.New(db)
	}
	orderService := service.NewOrderService(pool, queries, newOrderStore)

	// Protected routes (require authentication)
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))

		// Catalog and pricing configuration (OWNER/MANAGER only)
		r.Group(func(r chi.Router) {
			r.Use(mw.RequireRole("OWNER", "MANAGER"))

			categoryHandler := handler.NewCategoryHandler(queries)
			r.Route("/categories", categoryHandler.RegisterRoutes)

			modifierHandler := handler.NewModifierHandler(queries)
			r.Route("/modifier-groups", modifierHandler.RegisterRoutes)

			settingHandler := handler.NewSettingHandler(queries)
			r.Route("/settings", settingHandler.RegisterRoutes)
		})

		// Products: reads and quoting are open to all staff, writes are
		// restricted to OWNER/MANAGER.
		productHandler := handler.NewProductHandler(queries, orderService)
		r.Route("/products", func(r chi.Router) {
			r.Get("/", productHandler.List)
			r.Get("/{pid}/modifiers", productHandler.Modifiers)
			r.Post("/{pid}/quote", productHandler.Quote)

			r.Group(func(r chi.Router) {
				r.Use(mw.RequireRole("OWNER", "MANAGER"))
				r.Post("/", productHandler.Create)
				r.Put("/{pid}", productHandler.Update)
				r.Delete("/{pid}", productHandler.Delete)
			})
		})

		// Coupons
		couponHandler := handler.NewCouponHandler(orderService)
		r.Route("/coupons", couponHandler.RegisterRoutes)

		// Orders
		orderHandler := handler.NewOrderHandler(orderService, queries, hub)
		r.Route("/tables", orderHandler.RegisterTableRoutes)
		r.Route("/orders", func(r chi.Router) {
			orderHandler.RegisterRoutes(r)

			// Payments (nested under orders)
			r.Route("/{id}/payments", func(r chi.Router) {
				paymentHandler := handler.NewPaymentHandler(
					queries,
					pool,
					func(db database.DBTX) handler.PaymentStore {
						return database.New(db)
					},
					hub,
				)
				paymentHandler.RegisterRoutes(r)
			})
		})
	})

	return r
}
