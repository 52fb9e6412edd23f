package shipping

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrUnavailable means the provider could not answer. It never implies
	// anything about the order itself.
	ErrUnavailable = errors.New("shipping provider unavailable")
	ErrRejected    = errors.New("shipping provider rejected the request")
	ErrNotFound    = errors.New("shipment not found")
)

type QuoteRequest struct {
	OriginCity    string          `json:"originCity,omitempty"`
	DestCity      string          `json:"destCity" validate:"required"`
	Weight        decimal.Decimal `json:"weight"`
	DeclaredValue decimal.Decimal `json:"declaredValue"`
}

type Estimate struct {
	Cost          decimal.Decimal `json:"cost"`
	EstimatedDays int             `json:"estimatedDays"`
	DeliveryDate  time.Time       `json:"deliveryDate,omitempty"`
}

type ShipmentRequest struct {
	RecipientName  string          `json:"recipientName"`
	RecipientPhone string          `json:"recipientPhone"`
	City           string          `json:"city" validate:"required"`
	Warehouse      string          `json:"warehouse" validate:"required"`
	Weight         decimal.Decimal `json:"weight"`
	DeclaredValue  decimal.Decimal `json:"declaredValue"`
	Description    string          `json:"description,omitempty"`
	Seats          int             `json:"seats,omitempty"`
}

type Shipment struct {
	TrackingNumber string          `json:"trackingNumber"`
	ShipmentRef    string          `json:"shipmentRef"`
	Cost           decimal.Decimal `json:"cost"`
	EstimatedDays  int             `json:"estimatedDays"`
}

type TrackingStatus struct {
	TrackingNumber string `json:"trackingNumber"`
	Status         string `json:"status"`
	StatusCode     string `json:"statusCode"`
	Warehouse      string `json:"warehouse,omitempty"`
	ScheduledDate  string `json:"scheduledDate,omitempty"`
}

type City struct {
	Ref  string `json:"ref"`
	Name string `json:"name"`
	Area string `json:"area,omitempty"`
}

type Warehouse struct {
	Ref    string `json:"ref"`
	Name   string `json:"name"`
	Number string `json:"number"`
}

// Provider is an external carrier. All methods honour ctx and fail with an
// error wrapping ErrUnavailable when the carrier cannot be reached.
type Provider interface {
	Quote(ctx context.Context, req QuoteRequest) (Estimate, error)
	CreateShipment(ctx context.Context, req ShipmentRequest) (Shipment, error)
	Track(ctx context.Context, trackingNumber string) (TrackingStatus, error)
	Cities(ctx context.Context, query string) ([]City, error)
	Warehouses(ctx context.Context, cityRef string) ([]Warehouse, error)
}
