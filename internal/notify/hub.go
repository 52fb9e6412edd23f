package notify

import "context"

// Broadcaster is the admin live feed.
type Broadcaster interface {
	Broadcast(messageType string, data interface{}, source string)
}

// HubNotifier pushes every order event to connected admin dashboards.
type HubNotifier struct {
	hub Broadcaster
}

func NewHubNotifier(hub Broadcaster) *HubNotifier {
	return &HubNotifier{hub: hub}
}

func (h *HubNotifier) Name() string { return "websocket" }

func (h *HubNotifier) Notify(ctx context.Context, event Event) error {
	h.hub.Broadcast(string(event.Type), event.Order, "order-service")
	return nil
}
