package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newConfirmServer(t *testing.T, responses []int) (*httptest.Server, *int) {
	t.Helper()
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/confirm", r.URL.Path)

		status := responses[calls]
		calls++
		if status >= 200 && status < 300 {
			w.WriteHeader(status)
			json.NewEncoder(w).Encode(confirmResponse{
				Status:     "DONE",
				PaymentKey: "pk-1",
				Currency:   "KRW",
				ApprovedAt: time.Now(),
			})
			return
		}
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(gatewayErrorBody{Code: "GW_ERROR", Message: "boom"})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newTestClient(srv *httptest.Server) *HTTPClient {
	return NewHTTPClient(srv.URL, "sk_test", WithRetryDelay(time.Millisecond))
}

func TestApproveRetriesExhausted(t *testing.T) {
	srv, calls := newConfirmServer(t, []int{500, 500, 500})
	client := newTestClient(srv)

	_, err := client.Approve(context.Background(), "pk-1", "order-1", 500)
	require.Error(t, err)

	var gwErr *Error
	require.True(t, errors.As(err, &gwErr))
	require.True(t, gwErr.Retryable)
	require.Equal(t, 3, gwErr.Attempts)
	require.Equal(t, 3, *calls)
}

func TestApproveSucceedsOnThirdAttempt(t *testing.T) {
	srv, calls := newConfirmServer(t, []int{500, 500, 200})
	client := newTestClient(srv)

	approval, err := client.Approve(context.Background(), "pk-1", "order-1", 500)
	require.NoError(t, err)
	require.Equal(t, "pk-1", approval.PaymentKey)
	require.Equal(t, int64(500), approval.Amount)
	require.Equal(t, 3, *calls)
}

func TestApproveClientErrorIsTerminal(t *testing.T) {
	srv, calls := newConfirmServer(t, []int{400})
	client := newTestClient(srv)

	_, err := client.Approve(context.Background(), "pk-1", "order-1", 500)
	require.Error(t, err)

	var gwErr *Error
	require.True(t, errors.As(err, &gwErr))
	require.False(t, gwErr.Retryable)
	require.Equal(t, 1, *calls, "4xx must not be retried")
}

func TestApproveMalformedSuccessIsTerminal(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("not-json"))
	}))
	t.Cleanup(srv.Close)
	client := newTestClient(srv)

	_, err := client.Approve(context.Background(), "pk-1", "order-1", 500)
	require.Error(t, err)

	var gwErr *Error
	require.True(t, errors.As(err, &gwErr))
	require.False(t, gwErr.Retryable, "a charge may have been captured, force compensation instead of retrying")
	require.True(t, gwErr.PossiblyCaptured)
	require.Equal(t, "MALFORMED_RESPONSE", gwErr.Code)
	require.Equal(t, 1, calls)
}

func TestCancel(t *testing.T) {
	var gotKey, gotReason string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/cancel", r.URL.Path)
		var req cancelRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotKey, gotReason = req.PaymentKey, req.Reason
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	client := newTestClient(srv)

	require.NoError(t, client.Cancel(context.Background(), "pk-9", "duplicate payment confirmation"))
	require.Equal(t, "pk-9", gotKey)
	require.Equal(t, "duplicate payment confirmation", gotReason)
}

func TestCancelFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(gatewayErrorBody{Code: "CANCEL_FAILED", Message: "nope"})
	}))
	t.Cleanup(srv.Close)
	client := newTestClient(srv)

	err := client.Cancel(context.Background(), "pk-9", "refund")
	require.Error(t, err)

	var gwErr *Error
	require.True(t, errors.As(err, &gwErr))
	require.Equal(t, "CANCEL_FAILED", gwErr.Code)
}
