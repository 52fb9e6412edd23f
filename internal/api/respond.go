package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/jogardn/laser-orders/internal/circuitbreaker"
	"github.com/jogardn/laser-orders/internal/orders"
	"github.com/jogardn/laser-orders/internal/payment"
	"github.com/jogardn/laser-orders/internal/pricing"
	"github.com/jogardn/laser-orders/internal/shipping"
)

const maxBodyBytes = 1 << 20

type envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Errors  []string    `json:"errors,omitempty"`
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		code = http.StatusInternalServerError
		response = []byte(`{"success":false,"message":"Failed to encode response"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondWithData(w http.ResponseWriter, code int, data interface{}) {
	respondWithJSON(w, code, envelope{Success: true, Data: data})
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, envelope{Success: false, Message: message})
}

// respondWithServiceError maps the domain error taxonomy onto HTTP.
func (s *Server) respondWithServiceError(w http.ResponseWriter, err error) {
	var validation *orders.ValidationError
	switch {
	case errors.As(err, &validation):
		respondWithJSON(w, http.StatusBadRequest, envelope{Message: "Validation failed", Errors: validation.Problems})
	case errors.Is(err, pricing.ErrInvalidInput), errors.Is(err, pricing.ErrNotQuotable):
		respondWithJSON(w, http.StatusBadRequest, envelope{Message: "Validation failed", Errors: []string{err.Error()}})
	case errors.Is(err, orders.ErrNoFields):
		respondWithError(w, http.StatusBadRequest, "No updatable fields supplied")
	case errors.Is(err, orders.ErrNotFound):
		respondWithError(w, http.StatusNotFound, "Order not found")
	case errors.Is(err, orders.ErrProductNotFound):
		respondWithError(w, http.StatusNotFound, "Product not found")
	case errors.Is(err, payment.ErrUnknownGateway):
		respondWithError(w, http.StatusNotFound, "Unknown payment gateway")
	case errors.Is(err, payment.ErrInvalidCallback), errors.Is(err, payment.ErrBadSignature):
		respondWithError(w, http.StatusBadRequest, "Invalid payment callback")
	case errors.Is(err, shipping.ErrNotFound):
		respondWithError(w, http.StatusNotFound, "Shipment not found")
	case errors.Is(err, shipping.ErrRejected):
		respondWithJSON(w, http.StatusBadRequest, envelope{Message: "Shipping request rejected", Errors: []string{err.Error()}})
	case errors.Is(err, shipping.ErrUnavailable), errors.Is(err, circuitbreaker.ErrCircuitBreakerOpen):
		respondWithError(w, http.StatusServiceUnavailable, "Shipping provider is unavailable, try again later")
	default:
		s.logger.WithError(err).Error("Request failed")
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func readBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return nil, err
	}
	if len(body) > maxBodyBytes {
		return nil, fmt.Errorf("request body exceeds %d bytes", maxBodyBytes)
	}
	return body, nil
}

func decodeJSON(r *http.Request, dst interface{}) error {
	body, err := readBody(r)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, dst)
}

// queryInt treats missing or malformed numbers as zero so the service
// defaults apply.
func queryInt(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}
