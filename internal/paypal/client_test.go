package paypal_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/astraops/paygate/internal/paypal"
)

type gatewayStub struct {
	t          *testing.T
	tokenCalls atomic.Int64

	mux *http.ServeMux
}

func newGatewayStub(t *testing.T) *gatewayStub {
	t.Helper()
	g := &gatewayStub{t: t, mux: http.NewServeMux()}
	g.mux.HandleFunc("POST /v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		g.tokenCalls.Add(1)
		user, pass, ok := r.BasicAuth()
		if !ok || user != "client-id" || pass != "client-secret" {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"name": "AUTHENTICATION_FAILURE"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "token-1",
			"expires_in":   32400,
		})
	})
	return g
}

func (g *gatewayStub) start(t *testing.T) paypal.Client {
	t.Helper()
	srv := httptest.NewServer(g.mux)
	t.Cleanup(srv.Close)
	return paypal.NewClient(paypal.Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		Mode:         "sandbox",
		BaseURL:      srv.URL,
	}, zap.NewNop())
}

func paymentJSON(id string) map[string]any {
	return map[string]any{
		"id":     id,
		"intent": "sale",
		"state":  "created",
		"payer": map[string]any{
			"payment_method": "paypal",
			"payer_info":     map[string]any{"email": "buyer@example.com"},
		},
		"transactions": []map[string]any{{
			"amount": map[string]any{"total": "20.00", "currency": "USD"},
			"custom": "user_1",
			"item_list": map[string]any{
				"items": []map[string]any{{"name": "Basic", "sku": "tier_2_20", "price": "20.00", "currency": "USD", "quantity": 1}},
			},
		}},
		"links": []map[string]any{{
			"href":   "https://sandbox.paypal.test/approve/" + id,
			"rel":    "approval_url",
			"method": "REDIRECT",
		}},
	}
}

func TestCreatePayment(t *testing.T) {
	g := newGatewayStub(t)
	g.mux.HandleFunc("POST /v1/payments/payment", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("PayPal-Request-Id"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "sale", body["intent"])
		txs := body["transactions"].([]any)
		require.Len(t, txs, 1)
		assert.Equal(t, "user_1", txs[0].(map[string]any)["custom"])

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(paymentJSON("PAY-1"))
	})
	client := g.start(t)

	p, err := client.CreatePayment(context.Background(), paypal.CreatePaymentRequest{
		ItemName:  "Basic Subscription",
		SKU:       "tier_2_20",
		AmountUSD: "20.00",
		Custom:    "user_1",
		ReturnURL: "https://app.test/success",
		CancelURL: "https://app.test/cancel",
	})
	require.NoError(t, err)
	assert.Equal(t, "PAY-1", p.ID)
	assert.Equal(t, "https://sandbox.paypal.test/approve/PAY-1", p.ApprovalURL())
}

func TestFindPayment(t *testing.T) {
	g := newGatewayStub(t)
	g.mux.HandleFunc("GET /v1/payments/payment/PAY-1", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(paymentJSON("PAY-1"))
	})
	client := g.start(t)

	p, err := client.FindPayment(context.Background(), "PAY-1")
	require.NoError(t, err)
	assert.Equal(t, "user_1", p.Transactions[0].Custom)
	assert.Equal(t, "tier_2_20", p.Transactions[0].ItemList.Items[0].SKU)
}

func TestFindPaymentNotFound(t *testing.T) {
	g := newGatewayStub(t)
	g.mux.HandleFunc("GET /v1/payments/payment/PAY-404", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"name": "INVALID_RESOURCE_ID"})
	})
	client := g.start(t)

	_, err := client.FindPayment(context.Background(), "PAY-404")
	assert.ErrorIs(t, err, paypal.ErrPaymentNotFound)

	_, err = client.FindPayment(context.Background(), "")
	assert.ErrorIs(t, err, paypal.ErrPaymentNotFound)
}

func TestExecutePayment(t *testing.T) {
	g := newGatewayStub(t)
	g.mux.HandleFunc("POST /v1/payments/payment/PAY-1/execute", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "PAYER-1", body["payer_id"])

		resp := paymentJSON("PAY-1")
		resp["state"] = "approved"
		resp["transactions"].([]map[string]any)[0]["related_resources"] = []map[string]any{{
			"sale": map[string]any{"id": "SALE-1", "state": "completed", "parent_payment": "PAY-1"},
		}}
		json.NewEncoder(w).Encode(resp)
	})
	client := g.start(t)

	result, err := client.ExecutePayment(context.Background(), "PAY-1", "PAYER-1")
	require.NoError(t, err)
	assert.Equal(t, "PAY-1", result.PaymentID)
	assert.Equal(t, "approved", result.State)
	assert.Equal(t, "SALE-1", result.TransactionID)
}

func TestExecutePaymentAlreadyDone(t *testing.T) {
	g := newGatewayStub(t)
	g.mux.HandleFunc("POST /v1/payments/payment/PAY-1/execute", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{
			"name":    "PAYMENT_ALREADY_DONE",
			"message": "Payment has been done already for this cart.",
		})
	})
	client := g.start(t)

	_, err := client.ExecutePayment(context.Background(), "PAY-1", "PAYER-1")
	assert.ErrorIs(t, err, paypal.ErrAlreadyExecuted)
}

func TestGatewayErrorSurfacesNameAndStatus(t *testing.T) {
	g := newGatewayStub(t)
	g.mux.HandleFunc("GET /v1/payments/payment/PAY-1", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]string{
			"name":    "VALIDATION_ERROR",
			"message": "Invalid request",
		})
	})
	client := g.start(t)

	_, err := client.FindPayment(context.Background(), "PAY-1")
	var apiErr *paypal.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Equal(t, "VALIDATION_ERROR", apiErr.Name)
}

func TestTokenCachedAcrossCalls(t *testing.T) {
	g := newGatewayStub(t)
	g.mux.HandleFunc("GET /v1/payments/payment/PAY-1", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(paymentJSON("PAY-1"))
	})
	client := g.start(t)

	ctx := context.Background()
	_, err := client.FindPayment(ctx, "PAY-1")
	require.NoError(t, err)
	_, err = client.FindPayment(ctx, "PAY-1")
	require.NoError(t, err)

	assert.Equal(t, int64(1), g.tokenCalls.Load())
}
