package paymentgateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/entitlement-engine/internal/config"
)

func newTestClient(apiURL string, timeout time.Duration) *Client {
	return NewClient(config.PaymentGateway{
		ShopID:      "shop-1",
		SecretKey:   "secret",
		APIURL:      apiURL,
		CallTimeout: timeout,
	})
}

func TestCreateCheckout_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/checkouts", r.URL.Path)
		assert.NotEmpty(t, r.Header.Get("Authorization"))

		var req CreateCheckoutRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "card", req.PaymentMethod)
		assert.Equal(t, "100.00", req.Amount.Value)

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(CreateCheckoutResponse{
			ID:     "pay-1",
			Status: "pending",
			Confirmation: Confirmation{
				Type:            "redirect",
				ConfirmationURL: "https://gateway.example/pay/pay-1",
			},
		})
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, 5*time.Second)
	resp, err := client.CreateCheckout(context.Background(), CreateCheckoutRequest{
		Amount:        Amount{Value: "100.00", Currency: "BRL"},
		PaymentMethod: "card",
	})
	require.NoError(t, err)
	assert.Equal(t, "pay-1", resp.ID)
	assert.Equal(t, "https://gateway.example/pay/pay-1", resp.Confirmation.ConfirmationURL)
}

func TestCreateCheckout_IdempotenceKeyHeader(t *testing.T) {
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Header.Get("Idempotence-Key"))
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(CreateCheckoutResponse{ID: "pay-1"})
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, 5*time.Second)
	req := CreateCheckoutRequest{IdempotenceKey: "ent-1"}
	_, err := client.CreateCheckout(context.Background(), req)
	require.NoError(t, err)
	_, err = client.CreateCheckout(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, seen, 2)
	assert.Equal(t, "ent-1", seen[0])
	assert.Equal(t, "ent-1", seen[1])
}

func TestCreateCheckout_IdempotenceKeyGenerated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("Idempotence-Key"))
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(CreateCheckoutResponse{ID: "pay-1"})
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, 5*time.Second)
	_, err := client.CreateCheckout(context.Background(), CreateCheckoutRequest{})
	require.NoError(t, err)
}

func TestCreateCheckout_ServerErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, 5*time.Second)
	_, err := client.CreateCheckout(context.Background(), CreateCheckoutRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrGatewayUnavailable)
}

func TestCreateCheckout_ClientErrorIsNotUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, 5*time.Second)
	_, err := client.CreateCheckout(context.Background(), CreateCheckoutRequest{})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrGatewayUnavailable)
}

func TestCreateCheckout_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, 50*time.Millisecond)
	_, err := client.CreateCheckout(context.Background(), CreateCheckoutRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrGatewayUnavailable)
}
