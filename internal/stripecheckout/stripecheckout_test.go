package stripecheckout

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"

	"github.com/xenking/kart-checkout/internal/domain/checkout"
)

func newTestService(t *testing.T, status int, body string) (*Service, *url.Values) {
	t.Helper()

	var form url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/checkout/sessions", r.URL.Path)

		raw, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		form, err = url.ParseQuery(string(raw))
		assert.NoError(t, err)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(srv.URL),
		HTTPClient:        srv.Client(),
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	})

	return New(Config{
		SecretKey:  "sk_test_123",
		SuccessURL: "https://shop.example.test/success",
		CancelURL:  "https://shop.example.test/cart",
		Backend:    backend,
	}), &form
}

func testItems() []checkout.LineItem {
	return []checkout.LineItem{{
		PriceData: checkout.PriceData{
			Currency:    "GBP",
			UnitAmount:  650,
			ProductData: checkout.ProductData{Name: "Waffle"},
		},
		Quantity: 2,
	}}
}

func TestCreate(t *testing.T) {
	svc, form := newTestService(t, http.StatusOK, `{
		"id": "cs_test_123",
		"object": "checkout.session",
		"url": "https://checkout.stripe.com/c/pay/cs_test_123",
		"status": "open",
		"currency": "gbp",
		"amount_total": 1300
	}`)

	s, err := svc.Create(context.Background(), testItems())
	require.NoError(t, err)

	assert.Equal(t, &Session{
		ID:          "cs_test_123",
		URL:         "https://checkout.stripe.com/c/pay/cs_test_123",
		Status:      "open",
		Currency:    "gbp",
		AmountTotal: 1300,
	}, s)

	assert.Equal(t, "payment", form.Get("mode"))
	assert.Equal(t, "https://shop.example.test/success", form.Get("success_url"))
	assert.Equal(t, "https://shop.example.test/cart", form.Get("cancel_url"))
	assert.Equal(t, "GBP", form.Get("line_items[0][price_data][currency]"))
	assert.Equal(t, "650", form.Get("line_items[0][price_data][unit_amount]"))
	assert.Equal(t, "Waffle", form.Get("line_items[0][price_data][product_data][name]"))
	assert.Equal(t, "2", form.Get("line_items[0][quantity]"))
}

func TestCreate_ProviderError(t *testing.T) {
	svc, _ := newTestService(t, http.StatusBadRequest, `{
		"error": {"type": "invalid_request_error", "message": "Invalid currency: xyz"}
	}`)

	_, err := svc.Create(context.Background(), testItems())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create stripe checkout session")
}
