package importer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jogardn/laser-orders/pkg/models"
	"github.com/shopspring/decimal"
)

// objectID accepts {"$oid": "..."} as well as a bare string.
type objectID string

func (id *objectID) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var wrapped struct {
		OID string `json:"$oid"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil {
		*id = objectID(wrapped.OID)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("invalid object id %s", data)
	}
	*id = objectID(s)
	return nil
}

// extDate accepts {"$date": "<RFC 3339>"}, {"$date": {"$numberLong": "<ms>"}},
// {"$date": <ms>}, a bare RFC 3339 string or bare epoch milliseconds.
type extDate struct {
	time.Time
}

func (d *extDate) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var wrapped struct {
		Date json.RawMessage `json:"$date"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.Date != nil {
		data = wrapped.Date
		var long struct {
			Value string `json:"$numberLong"`
		}
		if err := json.Unmarshal(data, &long); err == nil && long.Value != "" {
			ms, err := strconv.ParseInt(long.Value, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid $numberLong date %q", long.Value)
			}
			d.Time = time.UnixMilli(ms).UTC()
			return nil
		}
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("invalid date %q: %w", s, err)
		}
		d.Time = t.UTC()
		return nil
	}
	var ms int64
	if err := json.Unmarshal(data, &ms); err != nil {
		return fmt.Errorf("invalid date %s", data)
	}
	d.Time = time.UnixMilli(ms).UTC()
	return nil
}

func (d *extDate) ptr() *time.Time {
	if d == nil || d.IsZero() {
		return nil
	}
	t := d.Time
	return &t
}

type legacyOrder struct {
	ID          objectID           `json:"_id"`
	OrderNumber string             `json:"orderNumber"`
	Customer    models.Customer    `json:"customer"`
	Service     models.ServiceType `json:"service"`
	Engraving   *struct {
		Material    string          `json:"material"`
		Size        string          `json:"size"`
		Quantity    int             `json:"quantity"`
		Complexity  json.RawMessage `json:"complexity"`
		Description string          `json:"description"`
	} `json:"engraving"`
	Cutting *struct {
		Material    string          `json:"material"`
		Length      decimal.Decimal `json:"length"`
		DetailCount int             `json:"detailCount"`
		Description string          `json:"description"`
	} `json:"cutting"`
	Design    *models.DesignDetails `json:"design"`
	ShopItems []struct {
		ProductID objectID        `json:"productId"`
		Name      string          `json:"name"`
		Price     decimal.Decimal `json:"price"`
		Quantity  int             `json:"quantity"`
		Category  string          `json:"category"`
	} `json:"shopItems"`
	Files []struct {
		Filename     string `json:"filename"`
		OriginalName string `json:"originalName"`
		Size         int64  `json:"size"`
	} `json:"files"`
	Pricing struct {
		BasePrice       decimal.Decimal `json:"basePrice"`
		Discount        decimal.Decimal `json:"discount"`
		DiscountPercent decimal.Decimal `json:"discountPercent"`
		TotalPrice      decimal.Decimal `json:"totalPrice"`
		Currency        string          `json:"currency"`
	} `json:"pricing"`
	Payment struct {
		Method        models.PaymentMethod `json:"method"`
		Status        models.PaymentStatus `json:"status"`
		TransactionID string               `json:"transactionId"`
		PaidAt        *extDate             `json:"paidAt"`
	} `json:"payment"`
	Status   models.OrderStatus `json:"status"`
	Delivery *struct {
		Method         string          `json:"method"`
		TrackingNumber string          `json:"trackingNumber"`
		ShipmentRef    string          `json:"shipmentRef"`
		Cost           decimal.Decimal `json:"cost"`
		City           string          `json:"city"`
		Department     string          `json:"department"`
		CreatedAt      *extDate        `json:"createdAt"`
	} `json:"delivery"`
	CreatedAt     *extDate `json:"createdAt"`
	UpdatedAt     *extDate `json:"updatedAt"`
	DeliveryDate  *extDate `json:"deliveryDate"`
	Notes         string   `json:"notes"`
	InternalNotes string   `json:"internalNotes"`
	Views         int      `json:"views"`
	IsArchived    bool     `json:"isArchived"`
}

// Complexity words used by the old web form, as percentages.
var complexityWords = map[string]int64{
	"simple":  30,
	"low":     30,
	"medium":  50,
	"complex": 80,
	"high":    80,
}

func legacyComplexity(raw json.RawMessage) decimal.Decimal {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return decimal.Zero
	}
	var n decimal.Decimal
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return decimal.Zero
	}
	s = strings.ToLower(strings.TrimSpace(s))
	if v, ok := complexityWords[s]; ok {
		return decimal.NewFromInt(v)
	}
	if n, err := decimal.NewFromString(strings.TrimSuffix(s, "%")); err == nil {
		return n
	}
	return decimal.Zero
}

// toOrder maps a legacy document onto the order model, keeping its order
// number, timestamps and archive flag.
func (l legacyOrder) toOrder() (models.Order, error) {
	if strings.TrimSpace(l.OrderNumber) == "" {
		return models.Order{}, fmt.Errorf("document %q has no orderNumber", l.ID)
	}
	if !l.Service.Valid() {
		return models.Order{}, fmt.Errorf("order %s has unknown service %q", l.OrderNumber, l.Service)
	}

	id := uuid.New()
	if l.ID != "" {
		id = uuid.NewSHA1(uuid.NameSpaceOID, []byte(l.ID))
	}

	order := models.Order{
		ID:            id.String(),
		OrderNumber:   l.OrderNumber,
		Customer:      l.Customer,
		Status:        l.Status,
		DeliveryDate:  l.DeliveryDate.ptr(),
		Notes:         l.Notes,
		InternalNotes: l.InternalNotes,
		Views:         l.Views,
		IsArchived:    l.IsArchived,
		Pricing: models.Pricing{
			BasePrice:       l.Pricing.BasePrice,
			Discount:        l.Pricing.Discount,
			DiscountPercent: l.Pricing.DiscountPercent,
			TotalPrice:      l.Pricing.TotalPrice,
			Currency:        l.Pricing.Currency,
		},
		Payment: models.Payment{
			Method:        l.Payment.Method,
			Status:        l.Payment.Status,
			TransactionID: l.Payment.TransactionID,
			PaidAt:        l.Payment.PaidAt.ptr(),
		},
	}
	order.Customer.Email = strings.ToLower(strings.TrimSpace(order.Customer.Email))

	if !order.Status.Valid() {
		order.Status = models.StatusNew
	}
	if !order.Payment.Status.Valid() {
		order.Payment.Status = models.PaymentPending
	}
	if order.Payment.Method != "" && !order.Payment.Method.Valid() {
		return models.Order{}, fmt.Errorf("order %s has unknown payment method %q", l.OrderNumber, l.Payment.Method)
	}
	if order.Pricing.Currency == "" {
		order.Pricing.Currency = "UAH"
	}
	if order.Pricing.BasePrice.IsZero() {
		order.Pricing.BasePrice = order.Pricing.TotalPrice
	}

	switch l.Service {
	case models.ServiceEngraving:
		d := models.EngravingDetails{}
		if e := l.Engraving; e != nil {
			d = models.EngravingDetails{
				Material:    e.Material,
				Size:        e.Size,
				Quantity:    e.Quantity,
				Complexity:  legacyComplexity(e.Complexity),
				Description: e.Description,
			}
		}
		order.Details = d
	case models.ServiceCutting:
		d := models.CuttingDetails{}
		if c := l.Cutting; c != nil {
			d = models.CuttingDetails{Material: c.Material, Length: c.Length, DetailCount: c.DetailCount, Description: c.Description}
		}
		order.Details = d
	case models.ServiceDesign:
		d := models.DesignDetails{}
		if l.Design != nil {
			d = *l.Design
		}
		order.Details = d
	case models.ServiceShop:
		items := make([]models.ShopItem, 0, len(l.ShopItems))
		for _, item := range l.ShopItems {
			items = append(items, models.ShopItem{
				ProductID: string(item.ProductID),
				Name:      item.Name,
				Category:  item.Category,
				Price:     item.Price,
				Quantity:  item.Quantity,
			})
		}
		order.Details = models.ShopDetails{Items: items}
	case models.ServiceConsultation:
		order.Details = models.ConsultationDetails{}
	}

	for _, f := range l.Files {
		name := f.OriginalName
		if name == "" {
			name = f.Filename
		}
		order.Files = append(order.Files, models.FileRef{Name: name, URL: "/uploads/" + f.Filename, Size: f.Size})
	}

	if d := l.Delivery; d != nil && (d.TrackingNumber != "" || d.ShipmentRef != "" || d.City != "") {
		carrier := d.Method
		if carrier == "" {
			carrier = "novaposhta"
		}
		delivery := &models.Delivery{
			Carrier:        carrier,
			TrackingNumber: d.TrackingNumber,
			ShipmentRef:    d.ShipmentRef,
			Cost:           d.Cost,
			City:           d.City,
			Warehouse:      d.Department,
		}
		if t := d.CreatedAt.ptr(); t != nil {
			delivery.CreatedAt = *t
		}
		order.Delivery = delivery
	}

	if t := l.CreatedAt.ptr(); t != nil {
		order.CreatedAt = *t
	}
	if t := l.UpdatedAt.ptr(); t != nil {
		order.UpdatedAt = *t
	}
	return order, nil
}
