package orders

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jogardn/laser-orders/internal/notify"
	"github.com/jogardn/laser-orders/internal/payment"
	"github.com/jogardn/laser-orders/internal/pricing"
	"github.com/jogardn/laser-orders/internal/shipping"
	"github.com/jogardn/laser-orders/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type Quoter interface {
	Quote(req pricing.Request) (pricing.Quote, error)
	Settle(service models.ServiceType, base, discount decimal.Decimal) (pricing.Quote, error)
}

type Catalog interface {
	GetProduct(ctx context.Context, id string) (*models.Product, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, event notify.Event)
}

type Service struct {
	repo      Repository
	quoter    Quoter
	catalog   Catalog
	notifier  Dispatcher
	shipping  shipping.Provider
	validate  *validator.Validate
	newNumber func() string
	now       func() time.Time
	logger    *logrus.Logger
}

func NewService(repo Repository, quoter Quoter, logger *logrus.Logger) *Service {
	return &Service{
		repo:      repo,
		quoter:    quoter,
		validate:  NewValidator(),
		newNumber: NewOrderNumber,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger,
	}
}

func (s *Service) SetCatalog(catalog Catalog) {
	s.catalog = catalog
}

func (s *Service) SetNotifier(notifier Dispatcher) {
	s.notifier = notifier
}

func (s *Service) SetShippingProvider(provider shipping.Provider) {
	s.shipping = provider
}

// NewValidator returns a validator that reports JSON field names.
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Create validates and prices the submitted order, assigns identity and
// initial state, persists it and then notifies best-effort.
func (s *Service) Create(ctx context.Context, input models.Order) (*models.Order, error) {
	order := input
	if err := s.prepare(ctx, &order); err != nil {
		return nil, err
	}

	now := s.now()
	order.ID = uuid.New().String()
	order.Status = models.StatusNew
	order.Payment.Status = models.PaymentPending
	order.Payment.PaidAt = nil
	order.Payment.TransactionID = ""
	order.Delivery = nil
	order.InternalNotes = ""
	order.Views = 0
	order.IsArchived = false
	order.CreatedAt = now
	order.UpdatedAt = now

	var err error
	for attempt := 1; attempt <= maxCreateAttempts; attempt++ {
		order.OrderNumber = s.newNumber()
		err = s.repo.Create(ctx, &order)
		if !errors.Is(err, ErrDuplicateOrderNumber) {
			break
		}
		s.logger.WithFields(logrus.Fields{
			"order_number": order.OrderNumber,
			"attempt":      attempt,
		}).Warn("Order number collision, retrying")
	}
	if err != nil {
		return nil, s.storageError("create order", err)
	}

	s.logger.WithFields(logrus.Fields{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"service":      order.Service(),
		"total_price":  order.Pricing.TotalPrice.String(),
	}).Info("Order created")

	s.dispatch(ctx, notify.EventOrderCreated, order)
	return &order, nil
}

func (s *Service) prepare(ctx context.Context, order *models.Order) error {
	var problems []string

	order.Customer.Name = strings.TrimSpace(order.Customer.Name)
	order.Customer.Email = strings.ToLower(strings.TrimSpace(order.Customer.Email))
	order.Customer.Phone = strings.TrimSpace(order.Customer.Phone)

	if err := s.validate.Struct(order.Customer); err != nil {
		problems = append(problems, describeValidation("customer", err)...)
	}
	if order.Details == nil {
		problems = append(problems, "service and its details are required")
	}
	if order.Payment.Method != "" && !order.Payment.Method.Valid() {
		problems = append(problems, fmt.Sprintf("payment method %q is not allowed", order.Payment.Method))
	}
	if !order.Pricing.TotalPrice.IsPositive() {
		problems = append(problems, "pricing.totalPrice is required")
	}
	if len(problems) > 0 {
		return newValidationError(problems...)
	}

	if shop, ok := order.Details.(models.ShopDetails); ok && s.catalog != nil {
		items, err := s.snapshotItems(ctx, shop.Items)
		if err != nil {
			return err
		}
		order.Details = models.ShopDetails{Items: items}
	}

	return s.reprice(order)
}

// reprice replaces the submitted pricing with the server's own quote for
// every service the calculator understands.
func (s *Service) reprice(order *models.Order) error {
	if s.quoter == nil {
		return nil
	}
	req, err := pricing.RequestFromDetails(order.Details)
	if errors.Is(err, pricing.ErrNotQuotable) {
		return s.settle(order)
	}
	if err != nil {
		return newValidationError(err.Error())
	}

	quote, err := s.quoter.Quote(req)
	if err != nil {
		if errors.Is(err, pricing.ErrInvalidInput) {
			return newValidationError(err.Error())
		}
		return fmt.Errorf("failed to quote order: %w", err)
	}

	if !quote.Total.Equal(order.Pricing.TotalPrice) {
		s.logger.WithFields(logrus.Fields{
			"service":         order.Service(),
			"submitted_total": order.Pricing.TotalPrice.String(),
			"quoted_total":    quote.Total.String(),
		}).Warn("Submitted price differs from quote, using quote")
	}
	order.Pricing = quote.Pricing()
	return nil
}

// settle keeps caller-supplied pricing for unquotable services but makes it
// self-consistent. A missing basePrice falls back to the submitted total.
func (s *Service) settle(order *models.Order) error {
	base := order.Pricing.BasePrice
	if base.IsZero() {
		base = order.Pricing.TotalPrice.Add(order.Pricing.Discount)
	}
	quote, err := s.quoter.Settle(order.Service(), base, order.Pricing.Discount)
	if err != nil {
		if errors.Is(err, pricing.ErrInvalidInput) {
			return newValidationError(err.Error())
		}
		return fmt.Errorf("failed to settle price: %w", err)
	}
	if !quote.Total.Equal(order.Pricing.TotalPrice) {
		s.logger.WithFields(logrus.Fields{
			"service":         order.Service(),
			"submitted_total": order.Pricing.TotalPrice.String(),
			"settled_total":   quote.Total.String(),
		}).Warn("Submitted price is inconsistent, using settled price")
	}
	order.Pricing = quote.Pricing()
	return nil
}

func (s *Service) snapshotItems(ctx context.Context, items []models.ShopItem) ([]models.ShopItem, error) {
	snapshot := make([]models.ShopItem, 0, len(items))
	var problems []string
	for _, item := range items {
		product, err := s.catalog.GetProduct(ctx, item.ProductID)
		if errors.Is(err, ErrProductNotFound) {
			problems = append(problems, fmt.Sprintf("product %q does not exist", item.ProductID))
			continue
		}
		if err != nil {
			return nil, s.storageError("load product", err)
		}
		if !product.IsActive {
			problems = append(problems, fmt.Sprintf("product %q is not available", product.Name))
			continue
		}
		snapshot = append(snapshot, product.Snapshot(item.Quantity))
	}
	if len(problems) > 0 {
		return nil, newValidationError(problems...)
	}
	return snapshot, nil
}

// Get is the public detail read: archived orders are hidden and every read
// bumps the view counter.
func (s *Service) Get(ctx context.Context, identifier string) (*models.Order, error) {
	order, err := s.repo.FindByIdentifier(ctx, identifier)
	if err != nil {
		return nil, s.storageError("find order", err)
	}
	if order.IsArchived {
		return nil, ErrNotFound
	}

	order, err = s.repo.IncrementViews(ctx, order.ID)
	if err != nil {
		return nil, s.storageError("increment views", err)
	}
	return order, nil
}

// FindByIdentifier is the privileged read: no view bump, archived visible.
func (s *Service) FindByIdentifier(ctx context.Context, identifier string) (*models.Order, error) {
	order, err := s.repo.FindByIdentifier(ctx, identifier)
	if err != nil {
		return nil, s.storageError("find order", err)
	}
	return order, nil
}

func (s *Service) IncrementViews(ctx context.Context, identifier string) (*models.Order, error) {
	order, err := s.repo.IncrementViews(ctx, identifier)
	if err != nil {
		return nil, s.storageError("increment views", err)
	}
	return order, nil
}

func (s *Service) FindByEmail(ctx context.Context, email string) ([]models.Order, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := s.validate.Var(email, "required,email"); err != nil {
		return nil, newValidationError("a valid email is required")
	}
	orders, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, s.storageError("find orders by email", err)
	}
	return orders, nil
}

// FindByPhone matches on digits only, so "+38 (050) 111" finds "380501112233".
func (s *Service) FindByPhone(ctx context.Context, phone string) ([]models.Order, error) {
	digits := OnlyDigits(phone)
	if len(digits) < 3 {
		return nil, newValidationError("phone must contain at least 3 digits")
	}
	orders, err := s.repo.FindByPhone(ctx, digits, PhoneLookupLimit)
	if err != nil {
		return nil, s.storageError("find orders by phone", err)
	}
	return orders, nil
}

func (s *Service) List(ctx context.Context, filter ListFilter, defaultLimit int) ([]models.Order, models.Pagination, error) {
	filter = filter.normalize(defaultLimit)
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, models.Pagination{}, newValidationError(fmt.Sprintf("status %q is not allowed", filter.Status))
	}

	orders, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, models.Pagination{}, s.storageError("list orders", err)
	}

	pages := (total + filter.Limit - 1) / filter.Limit
	return orders, models.Pagination{Page: filter.Page, Limit: filter.Limit, Total: total, Pages: pages}, nil
}

// Update applies an allow-listed patch. Status changes are not checked for
// direction; an admin edit is authoritative.
func (s *Service) Update(ctx context.Context, identifier string, patch Patch) (*models.Order, error) {
	if patch.Empty() {
		return nil, ErrNoFields
	}
	if err := patch.validate(); err != nil {
		return nil, err
	}

	if patch.Payment != nil && patch.Payment.Status != nil {
		current, err := s.repo.FindByIdentifier(ctx, identifier)
		if err != nil {
			return nil, s.storageError("find order", err)
		}
		stampPaidAt(&patch, *current, s.now())
	}

	order, err := s.repo.Update(ctx, identifier, patch)
	if err != nil {
		return nil, s.storageError("update order", err)
	}

	s.logger.WithFields(logrus.Fields{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"status":       order.Status,
	}).Info("Order updated")

	s.dispatch(ctx, notify.EventOrderUpdated, *order)
	return order, nil
}

// Archive is idempotent: archiving twice leaves the flag set.
func (s *Service) Archive(ctx context.Context, identifier string) (*models.Order, error) {
	order, err := s.repo.Archive(ctx, identifier)
	if err != nil {
		return nil, s.storageError("archive order", err)
	}
	s.logger.WithField("order_id", order.ID).Info("Order archived")
	s.dispatch(ctx, notify.EventOrderArchived, *order)
	return order, nil
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return Stats{}, s.storageError("order stats", err)
	}
	return stats, nil
}

// HandlePaymentCallback drives the payment axis of the lifecycle from a
// gateway notification. Repeated deliveries of the same callback are
// acknowledged without effect. The bool reports whether the order changed.
func (s *Service) HandlePaymentCallback(ctx context.Context, cb payment.Callback, method models.PaymentMethod) (*models.Order, bool, error) {
	log := s.logger.WithFields(logrus.Fields{
		"gateway":        cb.Gateway,
		"order_ref":      cb.OrderRef,
		"transaction_id": cb.TransactionID,
		"outcome":        cb.Outcome,
	})

	order, err := s.repo.FindByIdentifier(ctx, cb.OrderRef)
	if err != nil {
		return nil, false, s.storageError("find order", err)
	}

	if cb.Outcome != payment.OutcomeSuccess && cb.Outcome != payment.OutcomeFailure {
		log.WithField("raw_status", cb.RawStatus).Info("Intermediate payment status ignored")
		return order, false, nil
	}

	first, err := s.repo.RecordPaymentCallback(ctx, cb.IdempotencyKey, order.ID)
	if err != nil {
		return nil, false, s.storageError("record payment callback", err)
	}
	if !first {
		log.Info("Duplicate payment callback ignored")
		return order, false, nil
	}

	patch, changed := PaymentTransition(*order, cb.Outcome, method, cb.TransactionID, s.now())
	if !changed {
		return order, false, nil
	}

	updated, err := s.repo.Update(ctx, order.ID, patch)
	if err != nil {
		if rerr := s.repo.ReleasePaymentCallback(ctx, cb.IdempotencyKey); rerr != nil {
			log.WithError(rerr).Error("Failed to release payment callback key")
		}
		return nil, false, s.storageError("apply payment callback", err)
	}

	log.WithFields(logrus.Fields{
		"payment_status": updated.Payment.Status,
		"status":         updated.Status,
	}).Info("Payment callback applied")

	if cb.Outcome == payment.OutcomeSuccess {
		s.dispatch(ctx, notify.EventPaymentConfirmed, *updated)
	} else {
		s.dispatch(ctx, notify.EventOrderUpdated, *updated)
	}
	return updated, true, nil
}

// CreateShipment books a waybill with the shipping provider and stores the
// delivery snapshot. A provider failure leaves the order untouched.
func (s *Service) CreateShipment(ctx context.Context, identifier string, req shipping.ShipmentRequest) (*models.Order, error) {
	if s.shipping == nil {
		return nil, fmt.Errorf("%w: no provider configured", shipping.ErrUnavailable)
	}

	order, err := s.repo.FindByIdentifier(ctx, identifier)
	if err != nil {
		return nil, s.storageError("find order", err)
	}

	if req.RecipientName == "" {
		req.RecipientName = order.Customer.Name
	}
	if req.RecipientPhone == "" {
		req.RecipientPhone = OnlyDigits(order.Customer.Phone)
	}
	if req.City == "" {
		req.City = order.Customer.City
	}
	if !req.DeclaredValue.IsPositive() {
		req.DeclaredValue = order.Pricing.TotalPrice
	}
	if !req.Weight.IsPositive() {
		req.Weight = decimal.NewFromInt(1)
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, newValidationError(describeValidation("shipment", err)...)
	}

	shipment, err := s.shipping.CreateShipment(ctx, req)
	if err != nil {
		if errors.Is(err, shipping.ErrRejected) {
			return nil, newValidationError(err.Error())
		}
		return nil, err
	}

	delivery := models.Delivery{
		Carrier:        "novaposhta",
		TrackingNumber: shipment.TrackingNumber,
		ShipmentRef:    shipment.ShipmentRef,
		Cost:           shipment.Cost,
		City:           req.City,
		Warehouse:      req.Warehouse,
		EstimatedDays:  shipment.EstimatedDays,
		CreatedAt:      s.now(),
	}
	updated, err := s.repo.Update(ctx, order.ID, Patch{Delivery: &delivery})
	if err != nil {
		return nil, s.storageError("store delivery", err)
	}

	s.logger.WithFields(logrus.Fields{
		"order_id":        updated.ID,
		"tracking_number": shipment.TrackingNumber,
	}).Info("Shipment created")

	s.dispatch(ctx, notify.EventOrderUpdated, *updated)
	return updated, nil
}

func (s *Service) dispatch(ctx context.Context, eventType notify.EventType, order models.Order) {
	if s.notifier == nil {
		return
	}
	s.notifier.Dispatch(context.WithoutCancel(ctx), notify.NewEvent(eventType, order))
}

func (s *Service) storageError(op string, err error) error {
	var validation *ValidationError
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrProductNotFound) || errors.As(err, &validation) {
		return err
	}
	s.logger.WithError(err).WithField("op", op).Error("Storage operation failed")
	return &PersistenceError{Op: op, Err: err}
}

func describeValidation(prefix string, err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{prefix + ": " + err.Error()}
	}

	problems := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := prefix + "." + fe.Field()
		switch fe.Tag() {
		case "required":
			problems = append(problems, field+" is required")
		case "email":
			problems = append(problems, field+" must be a valid email")
		case "min":
			problems = append(problems, fmt.Sprintf("%s must be at least %s characters", field, fe.Param()))
		case "max":
			problems = append(problems, fmt.Sprintf("%s must be at most %s characters", field, fe.Param()))
		default:
			problems = append(problems, fmt.Sprintf("%s failed %s", field, fe.Tag()))
		}
	}
	return problems
}

func OnlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
