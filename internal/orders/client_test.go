package orders_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jogardn/laser-orders/internal/orders"
	"github.com/jogardn/laser-orders/pkg/models"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientCreateOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/orders", r.URL.Path)

		var order models.Order
		require.NoError(t, json.NewDecoder(r.Body).Decode(&order))
		assert.Equal(t, models.ServiceCutting, order.Service())

		order.ID = "order-1"
		order.OrderNumber = "PJ-01HX3K4M5N-6P7Q8R9S"
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(models.OrderResponse{Success: true, Order: &order})
	}))
	defer server.Close()

	logger, _ := test.NewNullLogger()
	client := orders.NewClient(server.URL+"/", time.Second, logger)

	created, err := client.CreateOrder(context.Background(), cuttingOrder())
	require.NoError(t, err)
	assert.Equal(t, "PJ-01HX3K4M5N-6P7Q8R9S", created.OrderNumber)
}

func TestClientMapsErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/orders":
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"success":false,"message":"Validation failed","errors":["customer.email must be a valid email"]}`))
		case "/api/orders/by-phone/0501112233":
			w.Write([]byte(`{"success":true,"data":[{"orderNumber":"PJ-1","service":"design"}],"count":1}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"success":false,"message":"Order not found"}`))
		}
	}))
	defer server.Close()

	logger, _ := test.NewNullLogger()
	client := orders.NewClient(server.URL, time.Second, logger)

	_, err := client.CreateOrder(context.Background(), cuttingOrder())
	require.Error(t, err)
	assert.True(t, orders.IsValidation(err))
	var apiErr *orders.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, []string{"customer.email must be a valid email"}, apiErr.Problems)

	_, err = client.GetOrder(context.Background(), "PJ-missing")
	assert.ErrorIs(t, err, orders.ErrNotFound)

	found, err := client.FindByPhone(context.Background(), "0501112233")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, models.ServiceDesign, found[0].Service())
}

func TestClientTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	logger, _ := test.NewNullLogger()
	client := orders.NewClient(server.URL, 20*time.Millisecond, logger)
	_, err := client.FindByPhone(context.Background(), "050")
	assert.Error(t, err)
}
