package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubBroadcastsToConnectedClients(t *testing.T) {
	logger, _ := test.NewNullLogger()
	hub := NewHub(logger)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	server := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.GetClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Broadcast("order_created", map[string]string{"orderNumber": "PJ-01HX3K4M5N-6P7Q8R9S"}, "order-service")

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "order_created", msg.Type)
	assert.Equal(t, "order-service", msg.Source)
	assert.Equal(t, map[string]interface{}{"orderNumber": "PJ-01HX3K4M5N-6P7Q8R9S"}, msg.Data)

	conn.Close()
	require.Eventually(t, func() bool { return hub.GetClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHubRejectsForeignOrigin(t *testing.T) {
	logger, _ := test.NewNullLogger()
	hub := NewHub(logger, "https://laser.example.com")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	server := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": []string{"https://evil.example.com"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": []string{"https://laser.example.com"}})
	require.NoError(t, err)
	conn.Close()
}

func TestBroadcastDropsWhenFull(t *testing.T) {
	logger, hook := test.NewNullLogger()
	hub := NewHub(logger)
	for i := 0; i < sendBuffer+1; i++ {
		hub.Broadcast("order_updated", i, "order-service")
	}
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "Broadcast channel full, dropping message", hook.LastEntry().Message)
}

func TestClientLeaveAfterHubStopped(t *testing.T) {
	logger, _ := test.NewNullLogger()
	hub := NewHub(logger)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	client := &Client{hub: hub, send: make(chan Message, 1), logger: logger}
	left := make(chan struct{})
	go func() {
		client.leave()
		close(left)
	}()

	select {
	case <-left:
	case <-time.After(time.Second):
		t.Fatal("leave blocked on a stopped hub")
	}
}

func TestConnectAfterHubStopped(t *testing.T) {
	logger, _ := test.NewNullLogger()
	hub := NewHub(logger)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	hub.Run(ctx)

	server := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
	assert.Equal(t, 0, hub.GetClientCount())
}
