package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jogardn/laser-orders/pkg/models"
	"github.com/sirupsen/logrus"
)

type EventType string

const (
	EventOrderCreated     EventType = "order_created"
	EventPaymentConfirmed EventType = "payment_confirmed"
	EventOrderUpdated     EventType = "order_updated"
	EventOrderArchived    EventType = "order_archived"
)

type Event struct {
	Type       EventType    `json:"type"`
	Order      models.Order `json:"order"`
	OccurredAt time.Time    `json:"occurredAt"`
}

func NewEvent(eventType EventType, order models.Order) Event {
	return Event{Type: eventType, Order: order, OccurredAt: time.Now().UTC()}
}

// Notifier is one delivery channel. Channels decide for themselves which
// event types they care about and return nil for the rest.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, event Event) error
}

// NotificationError is a failed delivery on a single channel.
type NotificationError struct {
	Channel string
	Event   EventType
	Err     error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("notification %s via %s failed: %v", e.Event, e.Channel, e.Err)
}

func (e *NotificationError) Unwrap() error {
	return e.Err
}

type Dispatcher struct {
	notifiers []Notifier
	timeout   time.Duration
	logger    *logrus.Logger
}

func NewDispatcher(logger *logrus.Logger, timeout time.Duration, notifiers ...Notifier) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{notifiers: notifiers, timeout: timeout, logger: logger}
}

func (d *Dispatcher) Add(n Notifier) {
	d.notifiers = append(d.notifiers, n)
}

func (d *Dispatcher) Channels() []string {
	names := make([]string, 0, len(d.notifiers))
	for _, n := range d.notifiers {
		names = append(names, n.Name())
	}
	return names
}

// Dispatch delivers the event on every channel and only logs failures.
func (d *Dispatcher) Dispatch(ctx context.Context, event Event) {
	if err := d.Deliver(ctx, event); err != nil {
		d.logger.WithFields(logrus.Fields{
			"event":        event.Type,
			"order_id":     event.Order.ID,
			"order_number": event.Order.OrderNumber,
		}).WithError(err).Warn("Notification delivery incomplete")
	}
}

// Deliver runs each channel in order with its own timeout and returns the
// joined per-channel failures.
func (d *Dispatcher) Deliver(ctx context.Context, event Event) error {
	return d.DeliverRemaining(ctx, event, nil)
}

// DeliverRemaining is Deliver for retries: channels already marked in
// delivered are skipped and successful ones are added to it.
func (d *Dispatcher) DeliverRemaining(ctx context.Context, event Event, delivered map[string]bool) error {
	var errs []error
	for _, n := range d.notifiers {
		if delivered[n.Name()] {
			continue
		}
		if err := d.deliverOne(ctx, n, event); err != nil {
			errs = append(errs, err)
			continue
		}
		if delivered != nil {
			delivered[n.Name()] = true
		}
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) deliverOne(ctx context.Context, n Notifier, event Event) (err error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = &NotificationError{Channel: n.Name(), Event: event.Type, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	if err := n.Notify(ctx, event); err != nil {
		return &NotificationError{Channel: n.Name(), Event: event.Type, Err: err}
	}

	d.logger.WithFields(logrus.Fields{
		"channel":  n.Name(),
		"event":    event.Type,
		"order_id": event.Order.ID,
	}).Debug("Notification delivered")
	return nil
}
