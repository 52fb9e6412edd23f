package orders

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jogardn/laser-orders/pkg/models"
	"github.com/sirupsen/logrus"
)

// APIError is a non-success answer from the order service.
type APIError struct {
	StatusCode int
	Message    string
	Problems   []string
}

func (e *APIError) Error() string {
	if len(e.Problems) > 0 {
		return fmt.Sprintf("order service returned %d: %s (%s)", e.StatusCode, e.Message, strings.Join(e.Problems, "; "))
	}
	return fmt.Sprintf("order service returned %d: %s", e.StatusCode, e.Message)
}

// Unwrap lets callers test the answer against the service's own sentinels.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusBadRequest:
		return &ValidationError{Problems: e.Problems}
	}
	return nil
}

// Client talks to the order-service HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logrus.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger *logrus.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (c *Client) CreateOrder(ctx context.Context, order models.Order) (*models.Order, error) {
	c.logger.WithField("service", order.Service()).Info("Sending order to order service")

	var resp models.OrderResponse
	if err := c.do(ctx, http.MethodPost, "/api/orders", order, &resp); err != nil {
		return nil, err
	}
	if resp.Order == nil {
		return nil, errors.New("order service returned no order")
	}

	c.logger.WithFields(logrus.Fields{
		"order_id":     resp.Order.ID,
		"order_number": resp.Order.OrderNumber,
	}).Info("Order created in order service")
	return resp.Order, nil
}

func (c *Client) FindByPhone(ctx context.Context, phone string) ([]models.Order, error) {
	var resp struct {
		Orders []models.Order `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/orders/by-phone/"+url.PathEscape(phone), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Orders, nil
}

func (c *Client) GetOrder(ctx context.Context, identifier string) (*models.Order, error) {
	var resp models.OrderResponse
	if err := c.do(ctx, http.MethodGet, "/api/orders/"+url.PathEscape(identifier), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Order, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload interface{}, out interface{}) error {
	var body *bytes.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request to order service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var failure struct {
			Message string   `json:"message"`
			Errors  []string `json:"errors"`
		}
		if json.NewDecoder(resp.Body).Decode(&failure) == nil {
			if failure.Message != "" {
				apiErr.Message = failure.Message
			}
			apiErr.Problems = failure.Errors
		}
		c.logger.WithFields(logrus.Fields{
			"method": method,
			"path":   path,
			"status": resp.StatusCode,
		}).Warn("Order service returned error status")
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode order service response: %w", err)
	}
	return nil
}
