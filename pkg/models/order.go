package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Prices travel as JSON numbers, matching the web form and bot payloads.
	decimal.MarshalJSONWithoutQuotes = true
}

type OrderStatus string

const (
	StatusNew        OrderStatus = "new"
	StatusAccepted   OrderStatus = "accepted"
	StatusInProgress OrderStatus = "in-progress"
	StatusReady      OrderStatus = "ready"
	StatusShipped    OrderStatus = "shipped"
	StatusCompleted  OrderStatus = "completed"
	StatusCancelled  OrderStatus = "cancelled"
)

var OrderStatuses = []OrderStatus{
	StatusNew, StatusAccepted, StatusInProgress, StatusReady, StatusShipped, StatusCompleted, StatusCancelled,
}

func (s OrderStatus) Valid() bool {
	for _, known := range OrderStatuses {
		if s == known {
			return true
		}
	}
	return false
}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentCompleted, PaymentFailed, PaymentRefunded:
		return true
	}
	return false
}

type PaymentMethod string

const (
	PaymentCard         PaymentMethod = "card"
	PaymentCash         PaymentMethod = "cash"
	PaymentBankTransfer PaymentMethod = "bank-transfer"
	PaymentFondy        PaymentMethod = "fondy"
	PaymentLiqPay       PaymentMethod = "liqpay"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCard, PaymentCash, PaymentBankTransfer, PaymentFondy, PaymentLiqPay:
		return true
	}
	return false
}

type Customer struct {
	Name    string `json:"name" validate:"required,max=200"`
	Email   string `json:"email" validate:"required,email"`
	Phone   string `json:"phone" validate:"required,min=5,max=32"`
	Company string `json:"company,omitempty"`
	Address string `json:"address,omitempty"`
	City    string `json:"city,omitempty"`
}

type Pricing struct {
	BasePrice       decimal.Decimal `json:"basePrice"`
	Discount        decimal.Decimal `json:"discount"`
	DiscountPercent decimal.Decimal `json:"discountPercent"`
	TotalPrice      decimal.Decimal `json:"totalPrice"`
	Currency        string          `json:"currency"`
}

type Payment struct {
	Method        PaymentMethod `json:"method,omitempty"`
	Status        PaymentStatus `json:"status"`
	TransactionID string        `json:"transactionId,omitempty"`
	PaidAt        *time.Time    `json:"paidAt,omitempty"`
}

type Delivery struct {
	Carrier        string          `json:"carrier"`
	TrackingNumber string          `json:"trackingNumber,omitempty"`
	ShipmentRef    string          `json:"shipmentRef,omitempty"`
	Cost           decimal.Decimal `json:"cost"`
	City           string          `json:"city,omitempty"`
	Warehouse      string          `json:"warehouse,omitempty"`
	EstimatedDays  int             `json:"estimatedDays,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
}

type FileRef struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Size int64  `json:"size,omitempty"`
}

type Order struct {
	ID            string
	OrderNumber   string
	Customer      Customer
	Details       Details
	Files         []FileRef
	Pricing       Pricing
	Payment       Payment
	Status        OrderStatus
	Delivery      *Delivery
	DeliveryDate  *time.Time
	Notes         string
	InternalNotes string
	Views         int
	IsArchived    bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Service reports the service selector implied by the populated detail variant.
func (o *Order) Service() ServiceType {
	if o.Details == nil {
		return ""
	}
	return o.Details.Service()
}

type orderJSON struct {
	ID            string               `json:"id,omitempty"`
	OrderNumber   string               `json:"orderNumber,omitempty"`
	Customer      Customer             `json:"customer"`
	Service       ServiceType          `json:"service"`
	Engraving     *EngravingDetails    `json:"engraving,omitempty"`
	Cutting       *CuttingDetails      `json:"cutting,omitempty"`
	Design        *DesignDetails       `json:"design,omitempty"`
	ShopItems     []ShopItem           `json:"shopItems,omitempty"`
	Consultation  *ConsultationDetails `json:"consultation,omitempty"`
	Files         []FileRef            `json:"files,omitempty"`
	Pricing       Pricing              `json:"pricing"`
	Payment       Payment              `json:"payment"`
	Status        OrderStatus          `json:"status,omitempty"`
	Delivery      *Delivery            `json:"delivery,omitempty"`
	DeliveryDate  *time.Time           `json:"deliveryDate,omitempty"`
	Notes         string               `json:"notes,omitempty"`
	InternalNotes string               `json:"internalNotes,omitempty"`
	Views         int                  `json:"views"`
	IsArchived    bool                 `json:"isArchived"`
	CreatedAt     time.Time            `json:"createdAt"`
	UpdatedAt     time.Time            `json:"updatedAt"`
}

func (o Order) MarshalJSON() ([]byte, error) {
	out := orderJSON{
		ID:            o.ID,
		OrderNumber:   o.OrderNumber,
		Customer:      o.Customer,
		Service:       o.Service(),
		Files:         o.Files,
		Pricing:       o.Pricing,
		Payment:       o.Payment,
		Status:        o.Status,
		Delivery:      o.Delivery,
		DeliveryDate:  o.DeliveryDate,
		Notes:         o.Notes,
		InternalNotes: o.InternalNotes,
		Views:         o.Views,
		IsArchived:    o.IsArchived,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}

	switch d := o.Details.(type) {
	case EngravingDetails:
		out.Engraving = &d
	case CuttingDetails:
		out.Cutting = &d
	case DesignDetails:
		out.Design = &d
	case ShopDetails:
		out.ShopItems = d.Items
	case ConsultationDetails:
		out.Consultation = &d
	}

	return json.Marshal(out)
}

func (o *Order) UnmarshalJSON(data []byte) error {
	var in orderJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	var details Details
	switch in.Service {
	case "":
	case ServiceEngraving:
		if in.Engraving != nil {
			details = *in.Engraving
		}
	case ServiceCutting:
		if in.Cutting != nil {
			details = *in.Cutting
		}
	case ServiceDesign:
		details = DesignDetails{}
		if in.Design != nil {
			details = *in.Design
		}
	case ServiceShop:
		if len(in.ShopItems) > 0 {
			details = ShopDetails{Items: in.ShopItems}
		}
	case ServiceConsultation:
		details = ConsultationDetails{}
		if in.Consultation != nil {
			details = *in.Consultation
		}
	default:
		return fmt.Errorf("unknown service %q", in.Service)
	}

	*o = Order{
		ID:            in.ID,
		OrderNumber:   in.OrderNumber,
		Customer:      in.Customer,
		Details:       details,
		Files:         in.Files,
		Pricing:       in.Pricing,
		Payment:       in.Payment,
		Status:        in.Status,
		Delivery:      in.Delivery,
		DeliveryDate:  in.DeliveryDate,
		Notes:         in.Notes,
		InternalNotes: in.InternalNotes,
		Views:         in.Views,
		IsArchived:    in.IsArchived,
		CreatedAt:     in.CreatedAt,
		UpdatedAt:     in.UpdatedAt,
	}
	return nil
}

type OrderResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Order   *Order `json:"data,omitempty"`
}

type OrderListResponse struct {
	Success    bool       `json:"success"`
	Message    string     `json:"message,omitempty"`
	Orders     []Order    `json:"data"`
	Pagination Pagination `json:"pagination"`
}

type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}
