package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/jogardn/laser-orders/pkg/models"
	"github.com/sirupsen/logrus"
)

type checkoutRequest struct {
	OrderID string `json:"orderId"`
}

func (s *Server) Checkout(w http.ResponseWriter, r *http.Request) {
	gateway, err := s.gateways.Get(mux.Vars(r)["gateway"])
	if err != nil {
		s.respondWithServiceError(w, err)
		return
	}

	var req checkoutRequest
	if err := decodeJSON(r, &req); err != nil || req.OrderID == "" {
		respondWithError(w, http.StatusBadRequest, "orderId is required")
		return
	}

	order, err := s.orders.FindByIdentifier(r.Context(), req.OrderID)
	if err != nil {
		s.respondWithServiceError(w, err)
		return
	}
	if order.IsArchived {
		respondWithError(w, http.StatusNotFound, "Order not found")
		return
	}

	checkout, err := gateway.Checkout(*order)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.logger.WithFields(logrus.Fields{
		"gateway":      gateway.Name(),
		"order_number": order.OrderNumber,
		"amount":       checkout.Amount.String(),
	}).Info("Payment checkout initiated")
	respondWithData(w, http.StatusOK, checkout)
}

type callbackResult struct {
	OrderNumber   string               `json:"orderNumber"`
	Status        models.OrderStatus   `json:"status"`
	PaymentStatus models.PaymentStatus `json:"paymentStatus"`
	Changed       bool                 `json:"changed"`
}

// PaymentCallback acknowledges repeated deliveries with 200 so gateways stop
// retrying them.
func (s *Server) PaymentCallback(w http.ResponseWriter, r *http.Request) {
	gateway, err := s.gateways.Get(mux.Vars(r)["gateway"])
	if err != nil {
		s.respondWithServiceError(w, err)
		return
	}

	body, err := readBody(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	cb, err := gateway.ParseCallback(r.Header.Get("Content-Type"), body)
	if err != nil {
		s.logger.WithError(err).WithField("gateway", gateway.Name()).Warn("Rejected payment callback")
		s.respondWithServiceError(w, err)
		return
	}

	order, changed, err := s.orders.HandlePaymentCallback(r.Context(), cb, gateway.Method())
	if err != nil {
		s.respondWithServiceError(w, err)
		return
	}

	respondWithData(w, http.StatusOK, callbackResult{
		OrderNumber:   order.OrderNumber,
		Status:        order.Status,
		PaymentStatus: order.Payment.Status,
		Changed:       changed,
	})
}
