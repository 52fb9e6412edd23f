package shipping

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jogardn/laser-orders/internal/circuitbreaker"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	DefaultNovaPoshtaURL = "https://api.novaposhta.ua/v2.0/json/"
	novaPoshtaDateLayout = "02.01.2006"
	statusCodeNotFound   = "3"
)

type NovaPoshtaConfig struct {
	APIKey           string
	BaseURL          string
	SenderCityRef    string
	SenderRef        string
	SenderAddressRef string
	ContactSenderRef string
	SenderPhone      string
	Timeout          time.Duration
}

type NovaPoshta struct {
	cfg        NovaPoshtaConfig
	httpClient *http.Client
	breaker    *circuitbreaker.CircuitBreaker
	logger     *logrus.Logger
	now        func() time.Time
}

func NewNovaPoshta(cfg NovaPoshtaConfig, breakers *circuitbreaker.Manager, logger *logrus.Logger) *NovaPoshta {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultNovaPoshtaURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &NovaPoshta{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker: breakers.GetOrCreate("novaposhta", circuitbreaker.Config{
			MaxFailures: 5,
			Timeout:     30 * time.Second,
			MaxRequests: 1,
			IsFailure: func(err error) bool {
				return errors.Is(err, ErrUnavailable) || errors.Is(err, context.DeadlineExceeded)
			},
		}),
		logger: logger,
		now:    time.Now,
	}
}

type npRequest struct {
	APIKey           string      `json:"apiKey"`
	ModelName        string      `json:"modelName"`
	CalledMethod     string      `json:"calledMethod"`
	MethodProperties interface{} `json:"methodProperties"`
}

type npResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Errors  []string        `json:"errors"`
}

func (c *NovaPoshta) call(ctx context.Context, model, method string, props interface{}, out interface{}) error {
	payload, err := json.Marshal(npRequest{
		APIKey:           c.cfg.APIKey,
		ModelName:        model,
		CalledMethod:     method,
		MethodProperties: props,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal %s.%s request: %w", model, method, err)
	}

	var data json.RawMessage
	err = c.breaker.ExecuteContext(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
		}

		var envelope npResponse
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
			return fmt.Errorf("%w: failed to decode response: %v", ErrUnavailable, err)
		}
		if !envelope.Success {
			return fmt.Errorf("%w: %s", ErrRejected, strings.Join(envelope.Errors, "; "))
		}
		data = envelope.Data
		return nil
	})
	if err == nil && out != nil && len(data) > 0 {
		if uerr := json.Unmarshal(data, out); uerr != nil {
			err = fmt.Errorf("%w: unexpected %s.%s payload: %v", ErrUnavailable, model, method, uerr)
		}
	}

	if errors.Is(err, circuitbreaker.ErrCircuitBreakerOpen) || errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err != nil {
		c.logger.WithFields(logrus.Fields{
			"model":  model,
			"method": method,
		}).WithError(err).Warn("Nova Poshta call failed")
	}
	return err
}

func (c *NovaPoshta) Quote(ctx context.Context, req QuoteRequest) (Estimate, error) {
	if !req.Weight.IsPositive() {
		return Estimate{}, fmt.Errorf("%w: weight must be positive", ErrRejected)
	}
	origin := req.OriginCity
	if origin == "" {
		origin = c.cfg.SenderCityRef
	}
	declared := req.DeclaredValue
	if !declared.IsPositive() {
		declared = decimal.NewFromInt(200)
	}

	var prices []struct {
		Cost decimal.Decimal `json:"Cost"`
	}
	err := c.call(ctx, "InternetDocument", "getDocumentPrice", map[string]string{
		"CitySender":    origin,
		"CityRecipient": req.DestCity,
		"Weight":        req.Weight.String(),
		"ServiceType":   "WarehouseWarehouse",
		"Cost":          declared.StringFixed(0),
		"CargoType":     "Parcel",
		"SeatsAmount":   "1",
	}, &prices)
	if err != nil {
		return Estimate{}, err
	}
	if len(prices) == 0 {
		return Estimate{}, fmt.Errorf("%w: empty price response", ErrUnavailable)
	}

	var dates []struct {
		DeliveryDate struct {
			Date string `json:"date"`
		} `json:"DeliveryDate"`
	}
	now := c.now()
	err = c.call(ctx, "InternetDocument", "getDocumentDeliveryDate", map[string]string{
		"CitySender":    origin,
		"CityRecipient": req.DestCity,
		"ServiceType":   "WarehouseWarehouse",
		"DateTime":      now.Format(novaPoshtaDateLayout),
	}, &dates)
	if err != nil {
		return Estimate{}, err
	}

	estimate := Estimate{Cost: prices[0].Cost}
	if len(dates) > 0 {
		if date, err := time.ParseInLocation("2006-01-02 15:04:05", trimFraction(dates[0].DeliveryDate.Date), now.Location()); err == nil {
			estimate.DeliveryDate = date
			estimate.EstimatedDays = daysUntil(now, date)
		}
	}
	return estimate, nil
}

func (c *NovaPoshta) CreateShipment(ctx context.Context, req ShipmentRequest) (Shipment, error) {
	if !req.Weight.IsPositive() {
		return Shipment{}, fmt.Errorf("%w: weight must be positive", ErrRejected)
	}
	seats := req.Seats
	if seats <= 0 {
		seats = 1
	}
	description := req.Description
	if description == "" {
		description = "Вироби лазерної обробки"
	}

	now := c.now()
	var docs []struct {
		Ref                   string          `json:"Ref"`
		CostOnSite            decimal.Decimal `json:"CostOnSite"`
		EstimatedDeliveryDate string          `json:"EstimatedDeliveryDate"`
		IntDocNumber          string          `json:"IntDocNumber"`
	}
	err := c.call(ctx, "InternetDocument", "save", map[string]string{
		"PayerType":            "Recipient",
		"PaymentMethod":        "Cash",
		"DateTime":             now.Format(novaPoshtaDateLayout),
		"CargoType":            "Parcel",
		"Weight":               req.Weight.String(),
		"ServiceType":          "WarehouseWarehouse",
		"SeatsAmount":          strconv.Itoa(seats),
		"Description":          description,
		"Cost":                 req.DeclaredValue.StringFixed(0),
		"CitySender":           c.cfg.SenderCityRef,
		"Sender":               c.cfg.SenderRef,
		"SenderAddress":        c.cfg.SenderAddressRef,
		"ContactSender":        c.cfg.ContactSenderRef,
		"SendersPhone":         c.cfg.SenderPhone,
		"NewAddress":           "1",
		"RecipientCityName":    req.City,
		"RecipientAddressName": req.Warehouse,
		"RecipientName":        req.RecipientName,
		"RecipientType":        "PrivatePerson",
		"RecipientsPhone":      req.RecipientPhone,
	}, &docs)
	if err != nil {
		return Shipment{}, err
	}
	if len(docs) == 0 || docs[0].IntDocNumber == "" {
		return Shipment{}, fmt.Errorf("%w: no waybill returned", ErrUnavailable)
	}

	shipment := Shipment{
		TrackingNumber: docs[0].IntDocNumber,
		ShipmentRef:    docs[0].Ref,
		Cost:           docs[0].CostOnSite,
	}
	if date, err := time.ParseInLocation(novaPoshtaDateLayout, docs[0].EstimatedDeliveryDate, now.Location()); err == nil {
		shipment.EstimatedDays = daysUntil(now, date)
	}

	c.logger.WithFields(logrus.Fields{
		"tracking_number": shipment.TrackingNumber,
		"city":            req.City,
	}).Info("Nova Poshta waybill created")
	return shipment, nil
}

func (c *NovaPoshta) Track(ctx context.Context, trackingNumber string) (TrackingStatus, error) {
	trackingNumber = strings.TrimSpace(trackingNumber)
	if trackingNumber == "" {
		return TrackingStatus{}, fmt.Errorf("%w: tracking number is empty", ErrRejected)
	}

	var statuses []struct {
		Number                string `json:"Number"`
		Status                string `json:"Status"`
		StatusCode            string `json:"StatusCode"`
		WarehouseRecipient    string `json:"WarehouseRecipient"`
		ScheduledDeliveryDate string `json:"ScheduledDeliveryDate"`
	}
	err := c.call(ctx, "TrackingDocument", "getStatusDocuments", map[string]interface{}{
		"Documents": []map[string]string{{"DocumentNumber": trackingNumber, "Phone": ""}},
	}, &statuses)
	if err != nil {
		return TrackingStatus{}, err
	}
	if len(statuses) == 0 || statuses[0].StatusCode == statusCodeNotFound {
		return TrackingStatus{}, fmt.Errorf("%w: %s", ErrNotFound, trackingNumber)
	}

	s := statuses[0]
	return TrackingStatus{
		TrackingNumber: s.Number,
		Status:         s.Status,
		StatusCode:     s.StatusCode,
		Warehouse:      s.WarehouseRecipient,
		ScheduledDate:  s.ScheduledDeliveryDate,
	}, nil
}

func (c *NovaPoshta) Cities(ctx context.Context, query string) ([]City, error) {
	var raw []struct {
		Ref             string `json:"Ref"`
		Description     string `json:"Description"`
		AreaDescription string `json:"AreaDescription"`
	}
	err := c.call(ctx, "Address", "getCities", map[string]string{
		"FindByString": strings.TrimSpace(query),
		"Limit":        "20",
	}, &raw)
	if err != nil {
		return nil, err
	}

	cities := make([]City, 0, len(raw))
	for _, r := range raw {
		cities = append(cities, City{Ref: r.Ref, Name: r.Description, Area: r.AreaDescription})
	}
	return cities, nil
}

func (c *NovaPoshta) Warehouses(ctx context.Context, cityRef string) ([]Warehouse, error) {
	var raw []struct {
		Ref         string `json:"Ref"`
		Description string `json:"Description"`
		Number      string `json:"Number"`
	}
	err := c.call(ctx, "Address", "getWarehouses", map[string]string{
		"CityRef": cityRef,
		"Limit":   "500",
	}, &raw)
	if err != nil {
		return nil, err
	}

	warehouses := make([]Warehouse, 0, len(raw))
	for _, r := range raw {
		warehouses = append(warehouses, Warehouse{Ref: r.Ref, Name: r.Description, Number: r.Number})
	}
	return warehouses, nil
}

func trimFraction(s string) string {
	if i := strings.IndexByte(s, '.'); i > 0 {
		return s[:i]
	}
	return s
}

func daysUntil(from, to time.Time) int {
	days := int(math.Ceil(to.Sub(from).Hours() / 24))
	if days < 0 {
		return 0
	}
	return days
}
