// Package api exposes the order service over HTTP.
package api

import (
	"context"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/jogardn/laser-orders/internal/auth"
	"github.com/jogardn/laser-orders/internal/circuitbreaker"
	"github.com/jogardn/laser-orders/internal/orders"
	"github.com/jogardn/laser-orders/internal/payment"
	"github.com/jogardn/laser-orders/internal/pricing"
	"github.com/jogardn/laser-orders/internal/shipping"
	"github.com/sirupsen/logrus"
)

type Deps struct {
	Orders     *orders.Service
	Calculator *pricing.Calculator
	Products   orders.ProductRepository
	Gateways   *payment.Registry
	// Shipping may be nil when no carrier is configured.
	Shipping shipping.Provider
	Breakers *circuitbreaker.Manager
	Auth     *auth.TokenService
	// LiveFeed serves the admin websocket; nil disables the route.
	LiveFeed       http.Handler
	HealthCheck    func(ctx context.Context) error
	AllowedOrigins []string
	Logger         *logrus.Logger
}

type Server struct {
	orders     *orders.Service
	calculator *pricing.Calculator
	products   orders.ProductRepository
	gateways   *payment.Registry
	shipping   shipping.Provider
	breakers   *circuitbreaker.Manager
	validate   *validator.Validate
	health     func(ctx context.Context) error
	logger     *logrus.Logger
}

// NewRouter wires every route. Literal paths are registered before their
// {id} siblings so that /by-email and /by-phone are not read as ids.
func NewRouter(d Deps) http.Handler {
	s := &Server{
		orders:     d.Orders,
		calculator: d.Calculator,
		products:   d.Products,
		gateways:   d.Gateways,
		shipping:   d.Shipping,
		breakers:   d.Breakers,
		validate:   orders.NewValidator(),
		health:     d.HealthCheck,
		logger:     d.Logger,
	}

	router := mux.NewRouter()
	router.Use(loggingMiddleware(d.Logger))
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondWithError(w, http.StatusNotFound, "Route not found")
	})

	router.HandleFunc("/health", s.HealthCheck).Methods(http.MethodGet)

	admin := router.PathPrefix("/api/admin").Subrouter()
	admin.Use(d.Auth.Middleware)
	admin.HandleFunc("/orders", s.AdminListOrders).Methods(http.MethodGet)
	admin.HandleFunc("/orders/{id}", s.AdminGetOrder).Methods(http.MethodGet)
	admin.HandleFunc("/orders/{id}", s.AdminUpdateOrder).Methods(http.MethodPut)
	admin.HandleFunc("/orders/{id}", s.AdminArchiveOrder).Methods(http.MethodDelete)
	admin.HandleFunc("/orders/{id}/shipment", s.AdminCreateShipment).Methods(http.MethodPost)
	admin.HandleFunc("/stats", s.AdminStats).Methods(http.MethodGet)
	admin.HandleFunc("/circuit-breakers", s.CircuitBreakers).Methods(http.MethodGet)
	if d.Products != nil {
		admin.HandleFunc("/products", s.AdminCreateProduct).Methods(http.MethodPost)
		admin.HandleFunc("/products/{id}", s.AdminUpdateProduct).Methods(http.MethodPut)
		admin.HandleFunc("/products/{id}", s.AdminDeleteProduct).Methods(http.MethodDelete)
		admin.HandleFunc("/products/{id}/stock", s.AdminSetStock).Methods(http.MethodPut)
	}

	public := router.PathPrefix("/api").Subrouter()
	public.HandleFunc("/quote", s.Quote).Methods(http.MethodPost)
	public.HandleFunc("/pricing/materials", s.Materials).Methods(http.MethodGet)

	public.HandleFunc("/orders", s.CreateOrder).Methods(http.MethodPost)
	public.HandleFunc("/orders/by-email/{email}", s.OrdersByEmail).Methods(http.MethodGet)
	public.HandleFunc("/orders/by-phone/{phone}", s.OrdersByPhone).Methods(http.MethodGet)
	public.HandleFunc("/orders/{id}", s.GetOrder).Methods(http.MethodGet)
	public.HandleFunc("/orders/{id}", s.UpdateOrder).Methods(http.MethodPut)

	public.HandleFunc("/payments/{gateway}/checkout", s.Checkout).Methods(http.MethodPost)
	public.HandleFunc("/payments/{gateway}/callback", s.PaymentCallback).Methods(http.MethodPost)

	public.HandleFunc("/products", s.ListProducts).Methods(http.MethodGet)
	public.HandleFunc("/products/{id}", s.GetProduct).Methods(http.MethodGet)

	public.HandleFunc("/shipping/quote", s.ShippingQuote).Methods(http.MethodPost)
	public.HandleFunc("/shipping/cities", s.ShippingCities).Methods(http.MethodGet)
	public.HandleFunc("/shipping/warehouses", s.ShippingWarehouses).Methods(http.MethodGet)
	public.HandleFunc("/shipping/track/{number}", s.TrackShipment).Methods(http.MethodGet)

	if d.LiveFeed != nil {
		router.Handle("/ws/admin", d.Auth.Middleware(d.LiveFeed)).Methods(http.MethodGet)
	}

	return recoveryMiddleware(d.Logger)(corsMiddleware(d.AllowedOrigins)(router))
}

func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			s.logger.WithError(err).Warn("Health check failed")
			respondWithJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":  "unhealthy",
				"service": "order-service",
				"error":   "storage unavailable",
			})
			return
		}
	}

	respondWithJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "order-service",
	})
}
