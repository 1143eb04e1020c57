package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/hansol-dev/marketpay/internal/observability"
)

const (
	defaultMaxAttempts = 3
	defaultRetryDelay  = 200 * time.Millisecond
	defaultCallTimeout = 10 * time.Second
)

// HTTPClient talks to the processor's confirm/cancel endpoints with bounded
// retry. Transport errors and 5xx responses are retried with exponential
// backoff; 4xx responses are terminal.
type HTTPClient struct {
	baseURL     string
	secretKey   string
	httpClient  *http.Client
	maxAttempts int
	retryDelay  time.Duration
}

type HTTPOption func(*HTTPClient)

func WithMaxAttempts(n int) HTTPOption {
	return func(c *HTTPClient) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

func WithRetryDelay(d time.Duration) HTTPOption {
	return func(c *HTTPClient) {
		if d > 0 {
			c.retryDelay = d
		}
	}
}

func WithHTTPClient(hc *http.Client) HTTPOption {
	return func(c *HTTPClient) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func NewHTTPClient(baseURL, secretKey string, opts ...HTTPOption) *HTTPClient {
	c := &HTTPClient{
		baseURL:     baseURL,
		secretKey:   secretKey,
		httpClient:  &http.Client{Timeout: defaultCallTimeout},
		maxAttempts: defaultMaxAttempts,
		retryDelay:  defaultRetryDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type confirmRequest struct {
	PaymentKey string `json:"paymentKey"`
	OrderID    string `json:"orderId"`
	Amount     int64  `json:"amount"`
}

type confirmResponse struct {
	Status     string    `json:"status"`
	PaymentKey string    `json:"paymentKey"`
	Currency   string    `json:"currency"`
	ApprovedAt time.Time `json:"approvedAt"`
}

type cancelRequest struct {
	PaymentKey string `json:"paymentKey"`
	Reason     string `json:"reason"`
}

type gatewayErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (c *HTTPClient) Approve(ctx context.Context, paymentKey, orderID string, amount int64) (*Approval, error) {
	body, err := json.Marshal(confirmRequest{PaymentKey: paymentKey, OrderID: orderID, Amount: amount})
	if err != nil {
		return nil, fmt.Errorf("marshal confirm request: %w", err)
	}

	var lastErr *Error
	delay := c.retryDelay
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		resp, err := c.post(ctx, "/confirm", body)
		if err != nil {
			observability.IncrementGatewayAttempt("confirm", "transport_error")
			lastErr = &Error{
				Code:      "TRANSPORT_ERROR",
				Message:   err.Error(),
				Retryable: true,
				Attempts:  attempt,
			}
			if ctx.Err() != nil {
				return nil, lastErr
			}
			if attempt < c.maxAttempts {
				if err := sleep(ctx, delay); err != nil {
					return nil, lastErr
				}
				delay *= 2
			}
			continue
		}

		approval, gwErr := decodeConfirm(resp, paymentKey, orderID, amount)
		if gwErr == nil {
			observability.IncrementGatewayAttempt("confirm", "success")
			return approval, nil
		}

		gwErr.Attempts = attempt
		lastErr = gwErr
		if !gwErr.Retryable {
			observability.IncrementGatewayAttempt("confirm", "rejected")
			return nil, gwErr
		}
		observability.IncrementGatewayAttempt("confirm", "server_error")
		zap.L().Warn("gateway confirm attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", c.maxAttempts),
			zap.String("order_id", orderID),
			zap.Int("http_status", gwErr.HTTPStatus),
		)
		if attempt < c.maxAttempts {
			if err := sleep(ctx, delay); err != nil {
				return nil, lastErr
			}
			delay *= 2
		}
	}
	return nil, lastErr
}

func (c *HTTPClient) Cancel(ctx context.Context, paymentKey, reason string) error {
	body, err := json.Marshal(cancelRequest{PaymentKey: paymentKey, Reason: reason})
	if err != nil {
		return fmt.Errorf("marshal cancel request: %w", err)
	}

	resp, err := c.post(ctx, "/cancel", body)
	if err != nil {
		observability.IncrementGatewayAttempt("cancel", "transport_error")
		return &Error{Code: "TRANSPORT_ERROR", Message: err.Error(), Retryable: true, Attempts: 1}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		observability.IncrementGatewayAttempt("cancel", "success")
		return nil
	}

	observability.IncrementGatewayAttempt("cancel", "error")
	return errorFromResponse(resp)
}

func (c *HTTPClient) post(ctx context.Context, path string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(c.secretKey+":")))
	return c.httpClient.Do(req)
}

func decodeConfirm(resp *http.Response, paymentKey, orderID string, amount int64) (*Approval, *Error) {
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var out confirmResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			// A 2xx whose body we cannot read might still have captured the
			// charge. Treat it as terminal so the coordinator compensates.
			return nil, &Error{
				Code:             "MALFORMED_RESPONSE",
				Message:          err.Error(),
				HTTPStatus:       resp.StatusCode,
				Retryable:        false,
				PossiblyCaptured: true,
			}
		}
		key := out.PaymentKey
		if key == "" {
			key = paymentKey
		}
		return &Approval{
			PaymentKey: key,
			OrderID:    orderID,
			Amount:     amount,
			Currency:   out.Currency,
			ApprovedAt: out.ApprovedAt,
		}, nil
	}

	return nil, errorFromResponse(resp)
}

func errorFromResponse(resp *http.Response) *Error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var body gatewayErrorBody
	_ = json.Unmarshal(raw, &body)
	if body.Code == "" {
		body.Code = http.StatusText(resp.StatusCode)
	}
	if body.Message == "" {
		body.Message = string(raw)
	}
	return &Error{
		Code:       body.Code,
		Message:    body.Message,
		HTTPStatus: resp.StatusCode,
		Retryable:  resp.StatusCode >= 500,
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
