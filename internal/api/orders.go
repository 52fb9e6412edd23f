package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/jogardn/laser-orders/internal/orders"
	"github.com/jogardn/laser-orders/internal/shipping"
	"github.com/jogardn/laser-orders/pkg/models"
	"github.com/sirupsen/logrus"
)

func (s *Server) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var input models.Order
	if err := decodeJSON(r, &input); err != nil {
		s.logger.WithError(err).Warn("Failed to decode order request")
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	order, err := s.orders.Create(r.Context(), input)
	if err != nil {
		s.respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, models.OrderResponse{
		Success: true,
		Message: "Order created successfully",
		Order:   order,
	})
}

func (s *Server) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := s.orders.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, models.OrderResponse{Success: true, Order: order})
}

func (s *Server) UpdateOrder(w http.ResponseWriter, r *http.Request) {
	s.updateOrder(w, r, orders.ScopeCustomer)
}

func (s *Server) updateOrder(w http.ResponseWriter, r *http.Request, scope orders.Scope) {
	body, err := readBody(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	patch, err := orders.ParsePatch(body, scope)
	if err != nil {
		s.respondWithServiceError(w, err)
		return
	}

	order, err := s.orders.Update(r.Context(), mux.Vars(r)["id"], patch)
	if err != nil {
		s.respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, models.OrderResponse{
		Success: true,
		Message: "Order updated successfully",
		Order:   order,
	})
}

func (s *Server) OrdersByEmail(w http.ResponseWriter, r *http.Request) {
	found, err := s.orders.FindByEmail(r.Context(), mux.Vars(r)["email"])
	if err != nil {
		s.respondWithServiceError(w, err)
		return
	}
	respondWithOrders(w, found)
}

func (s *Server) OrdersByPhone(w http.ResponseWriter, r *http.Request) {
	found, err := s.orders.FindByPhone(r.Context(), mux.Vars(r)["phone"])
	if err != nil {
		s.respondWithServiceError(w, err)
		return
	}
	respondWithOrders(w, found)
}

func respondWithOrders(w http.ResponseWriter, found []models.Order) {
	if found == nil {
		found = []models.Order{}
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    found,
		"count":   len(found),
	})
}

func (s *Server) AdminListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := orders.ListFilter{
		Page:            queryInt(q.Get("page")),
		Limit:           queryInt(q.Get("limit")),
		Status:          models.OrderStatus(q.Get("status")),
		Service:         models.ServiceType(q.Get("service")),
		IncludeArchived: q.Get("archived") == "true",
	}

	found, pagination, err := s.orders.List(r.Context(), filter, orders.AdminPageLimit)
	if err != nil {
		s.respondWithServiceError(w, err)
		return
	}
	if found == nil {
		found = []models.Order{}
	}

	respondWithJSON(w, http.StatusOK, models.OrderListResponse{
		Success:    true,
		Orders:     found,
		Pagination: pagination,
	})
}

func (s *Server) AdminGetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := s.orders.FindByIdentifier(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, models.OrderResponse{Success: true, Order: order})
}

func (s *Server) AdminUpdateOrder(w http.ResponseWriter, r *http.Request) {
	s.updateOrder(w, r, orders.ScopeAdmin)
}

func (s *Server) AdminArchiveOrder(w http.ResponseWriter, r *http.Request) {
	order, err := s.orders.Archive(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, models.OrderResponse{
		Success: true,
		Message: "Order archived",
		Order:   order,
	})
}

func (s *Server) AdminStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.orders.Stats(r.Context())
	if err != nil {
		s.respondWithServiceError(w, err)
		return
	}
	respondWithData(w, http.StatusOK, stats)
}

func (s *Server) CircuitBreakers(w http.ResponseWriter, r *http.Request) {
	if s.breakers == nil {
		respondWithData(w, http.StatusOK, []interface{}{})
		return
	}
	metrics := s.breakers.AllMetrics()
	s.logger.WithField("count", len(metrics)).Debug("Circuit breaker metrics requested")
	respondWithData(w, http.StatusOK, metrics)
}

func (s *Server) AdminCreateShipment(w http.ResponseWriter, r *http.Request) {
	var req shipping.ShipmentRequest
	body, err := readBody(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	order, err := s.orders.CreateShipment(r.Context(), mux.Vars(r)["id"], req)
	if err != nil {
		s.respondWithServiceError(w, err)
		return
	}

	s.logger.WithFields(logrus.Fields{
		"order_number":    order.OrderNumber,
		"tracking_number": order.Delivery.TrackingNumber,
	}).Info("Shipment booked from admin")

	respondWithJSON(w, http.StatusCreated, models.OrderResponse{
		Success: true,
		Message: "Shipment created",
		Order:   order,
	})
}
