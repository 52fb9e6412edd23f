package events

import (
	"context"
	"sync"
	"time"

	"github.com/jogardn/laser-orders/internal/notify"
	"github.com/patrickmn/go-cache"
)

// NotificationHandler delivers consumed order events through the direct
// notification channels. Channels that already succeeded for an event are
// skipped on retry so customers are not mailed twice.
type NotificationHandler struct {
	dispatcher *notify.Dispatcher
	delivered  *cache.Cache
	mu         sync.Mutex
}

func NewNotificationHandler(dispatcher *notify.Dispatcher) *NotificationHandler {
	return &NotificationHandler{
		dispatcher: dispatcher,
		delivered:  cache.New(time.Hour, 10*time.Minute),
	}
}

func (h *NotificationHandler) Handle(ctx context.Context, event OrderEvent) error {
	h.mu.Lock()
	done, ok := h.delivered.Get(event.EventID)
	h.mu.Unlock()

	channels := map[string]bool{}
	if ok {
		channels = done.(map[string]bool)
	}

	err := h.dispatcher.DeliverRemaining(ctx, event.Notification(), channels)

	h.mu.Lock()
	if err == nil {
		h.delivered.Delete(event.EventID)
	} else {
		h.delivered.SetDefault(event.EventID, channels)
	}
	h.mu.Unlock()
	return err
}
