package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/jogardn/laser-orders/internal/orders"
	"github.com/jogardn/laser-orders/internal/shipping"
)

func (s *Server) requireShipping(w http.ResponseWriter) bool {
	if s.shipping == nil {
		respondWithError(w, http.StatusServiceUnavailable, "Shipping is not configured")
		return false
	}
	return true
}

func (s *Server) ShippingQuote(w http.ResponseWriter, r *http.Request) {
	if !s.requireShipping(w) {
		return
	}

	var req shipping.QuoteRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.respondWithServiceError(w, &orders.ValidationError{Problems: []string{"destCity is required"}})
		return
	}

	estimate, err := s.shipping.Quote(r.Context(), req)
	if err != nil {
		s.respondWithServiceError(w, err)
		return
	}
	respondWithData(w, http.StatusOK, estimate)
}

func (s *Server) ShippingCities(w http.ResponseWriter, r *http.Request) {
	if !s.requireShipping(w) {
		return
	}
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if len([]rune(query)) < 2 {
		respondWithError(w, http.StatusBadRequest, "q must be at least 2 characters")
		return
	}

	cities, err := s.shipping.Cities(r.Context(), query)
	if err != nil {
		s.respondWithServiceError(w, err)
		return
	}
	if cities == nil {
		cities = []shipping.City{}
	}
	respondWithData(w, http.StatusOK, cities)
}

func (s *Server) ShippingWarehouses(w http.ResponseWriter, r *http.Request) {
	if !s.requireShipping(w) {
		return
	}
	cityRef := r.URL.Query().Get("cityRef")
	if cityRef == "" {
		respondWithError(w, http.StatusBadRequest, "cityRef is required")
		return
	}

	warehouses, err := s.shipping.Warehouses(r.Context(), cityRef)
	if err != nil {
		s.respondWithServiceError(w, err)
		return
	}
	if warehouses == nil {
		warehouses = []shipping.Warehouse{}
	}
	respondWithData(w, http.StatusOK, warehouses)
}

func (s *Server) TrackShipment(w http.ResponseWriter, r *http.Request) {
	if !s.requireShipping(w) {
		return
	}
	status, err := s.shipping.Track(r.Context(), mux.Vars(r)["number"])
	if err != nil {
		s.respondWithServiceError(w, err)
		return
	}
	respondWithData(w, http.StatusOK, status)
}
