package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/xenking/kart-checkout/internal/checkoutapi"
	"github.com/xenking/kart-checkout/internal/domain/cart"
	"github.com/xenking/kart-checkout/internal/domain/checkout"
	"github.com/xenking/kart-checkout/internal/domain/product"
	"github.com/xenking/kart-checkout/internal/payment"
	"github.com/xenking/kart-checkout/internal/storage/static"
	"github.com/xenking/kart-checkout/internal/stripecheckout"
	"github.com/xenking/kart-checkout/internal/view"
)

const testCheckoutURL = "https://checkout.example.test/pay"

// --- Mock implementations ---

type mockSessionProvider struct {
	mu    sync.Mutex
	calls [][]checkout.LineItem

	session *stripecheckout.Session
	err     error
}

func (m *mockSessionProvider) Create(_ context.Context, items []checkout.LineItem) (*stripecheckout.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, items)
	return m.session, m.err
}

func (m *mockSessionProvider) respond(s *stripecheckout.Session, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = s
	m.err = err
}

func (m *mockSessionProvider) Calls() [][]checkout.LineItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type failingRepo struct{}

func (failingRepo) List(context.Context) ([]product.Product, error) {
	return nil, errors.New("db down")
}

func (failingRepo) GetByID(context.Context, string) (*product.Product, error) {
	return nil, errors.New("db down")
}

// --- Helpers ---

type testEnv struct {
	srv      *httptest.Server
	client   *http.Client
	carts    *cart.Registry
	provider *mockSessionProvider
}

type envOption func(*envConfig)

type envConfig struct {
	publishableKey string
	products       product.Repository
	payBudget      int
}

func withoutPublishableKey() envOption {
	return func(c *envConfig) { c.publishableKey = "" }
}

func withProducts(repo product.Repository) envOption {
	return func(c *envConfig) { c.products = repo }
}

// withRouteLimits enables the production limiters with n requests per minute.
func withRouteLimits(n int) envOption {
	return func(c *envConfig) { c.payBudget = n }
}

func testCatalog() *static.Catalog {
	return static.NewCatalog([]product.Product{
		{ID: "1", Title: "Waffle with Berries", Price: decimal.RequireFromString("6.50")},
		{ID: "2", Title: "Macaron Mix", Price: decimal.RequireFromString("19.995")},
		{ID: "3", Title: "Tiramisu", Price: decimal.RequireFromString("5.50")},
	})
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	cfg := envConfig{publishableKey: "pk_test_123", products: testCatalog()}
	for _, o := range opts {
		o(&cfg)
	}

	srv := httptest.NewUnstartedServer(nil)
	baseURL := "http://" + srv.Listener.Addr().String()

	provider := &mockSessionProvider{session: &stripecheckout.Session{
		ID:          "sess_123",
		URL:         testCheckoutURL + "/sess_123",
		Status:      "open",
		Currency:    "gbp",
		AmountTotal: 3300,
	}}

	initiator, err := checkout.NewInitiator(
		checkout.InitiatorConfig{Currency: "GBP"},
		checkoutapi.NewClient(baseURL+"/api/checkout", nil),
		tracenoop.NewTracerProvider(),
		metricnoop.NewMeterProvider(),
	)
	require.NoError(t, err)

	views, err := view.NewRenderer()
	require.NoError(t, err)

	carts := cart.NewRegistry(time.Hour)
	h := NewHandler(
		HandlerConfig{},
		cfg.products,
		carts,
		initiator,
		payment.NewLoader(payment.LoaderConfig{
			PublishableKey: cfg.publishableKey,
			CheckoutURL:    testCheckoutURL,
		}),
		provider,
		views,
	)
	var limits RouteLimits
	if cfg.payBudget > 0 {
		limits = h.NewRouteLimits(t.Context(), cfg.payBudget, time.Minute)
	}
	srv.Config.Handler = h.Routes(limits)
	srv.Start()
	t.Cleanup(srv.Close)

	return &testEnv{
		srv:      srv,
		client:   newBrowser(t),
		carts:    carts,
		provider: provider,
	}
}

// newBrowser returns a client with its own cookie jar that does not follow
// redirects.
func newBrowser(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// visitor returns a view of e seen by a new browser without any cookies.
func (e *testEnv) visitor(t *testing.T) *testEnv {
	t.Helper()
	v := *e
	v.client = newBrowser(t)
	return &v
}

func (e *testEnv) get(t *testing.T, path string) (*http.Response, string) {
	t.Helper()
	resp, err := e.client.Get(e.srv.URL + path)
	require.NoError(t, err)
	return resp, readBody(t, resp)
}

func (e *testEnv) postForm(t *testing.T, path string, form url.Values) (*http.Response, string) {
	t.Helper()
	resp, err := e.client.PostForm(e.srv.URL+path, form)
	require.NoError(t, err)
	return resp, readBody(t, resp)
}

func (e *testEnv) addItem(t *testing.T, id string, count int) {
	t.Helper()
	resp, _ := e.postForm(t, "/cart/items", url.Values{"id": {id}, "count": {strconv.Itoa(count)}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/cart", resp.Header.Get("Location"))
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

// --- Cart pages ---

func TestViewCart_Empty(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.get(t, "/cart")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Contains(t, body, "Items total: 0")
	assert.Equal(t, 0, env.carts.Len(), "viewing does not create a cart")
}

func TestAddAndRemoveItems(t *testing.T) {
	env := newTestEnv(t)

	env.addItem(t, "1", 2)
	env.addItem(t, "3", 1)
	env.addItem(t, "1", 1)

	_, body := env.get(t, "/cart")
	assert.Contains(t, body, "Items total: 2")
	assert.Contains(t, body, "6.50 x 3")
	assert.Contains(t, body, "5.50 x 1")
	assert.Less(t, strings.Index(body, "Waffle"), strings.Index(body, "Tiramisu"), "insertion order")

	resp, _ := env.postForm(t, "/cart/items/404/remove", nil)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	_, body = env.get(t, "/cart")
	assert.Contains(t, body, "Items total: 2")

	env.postForm(t, "/cart/items/1/remove", nil)
	_, body = env.get(t, "/cart")
	assert.Contains(t, body, "Items total: 1")
	assert.NotContains(t, body, "Waffle")
	assert.Contains(t, body, "Tiramisu")

	assert.Equal(t, 1, env.carts.Len())
}

func TestRemoveItem_NoCart(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.postForm(t, "/cart/items/1/remove", nil)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, 0, env.carts.Len())
}

func TestAddItem_Invalid(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.postForm(t, "/cart/items", url.Values{"id": {"1"}, "count": {"0"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = env.postForm(t, "/cart/items", url.Values{"id": {"1"}, "count": {"many"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = env.postForm(t, "/cart/items", url.Values{"id": {"404"}})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCheckoutDetails(t *testing.T) {
	env := newTestEnv(t)
	env.addItem(t, "1", 2)
	env.addItem(t, "3", 1)

	resp, body := env.get(t, "/checkout")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Order total: 18.50")
}

func TestCatalog(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.get(t, "/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Waffle with Berries")
	assert.Contains(t, body, "Add to cart")
}

func TestCatalog_RepositoryError(t *testing.T) {
	env := newTestEnv(t, withProducts(failingRepo{}))

	resp, _ := env.get(t, "/")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	resp, _ = env.get(t, "/api/product")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

// --- Pay ---

func TestPay_RedirectsToHostedCheckout(t *testing.T) {
	env := newTestEnv(t)
	env.addItem(t, "1", 2)
	env.addItem(t, "2", 1)

	resp, _ := env.postForm(t, "/cart/pay", nil)

	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, testCheckoutURL+"/sess_123", resp.Header.Get("Location"))

	calls := env.provider.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, []checkout.LineItem{
		{
			PriceData: checkout.PriceData{Currency: "GBP", UnitAmount: 650, ProductData: checkout.ProductData{Name: "Waffle with Berries"}},
			Quantity:  2,
		},
		{
			PriceData: checkout.PriceData{Currency: "GBP", UnitAmount: 2000, ProductData: checkout.ProductData{Name: "Macaron Mix"}},
			Quantity:  1,
		},
	}, calls[0])
}

func TestPay_ProviderFailure(t *testing.T) {
	env := newTestEnv(t)
	env.provider.respond(nil, errors.New("stripe: invalid currency"))
	env.addItem(t, "1", 1)

	resp, _ := env.postForm(t, "/cart/pay", nil)

	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("Location"))
	assert.Len(t, env.provider.Calls(), 1, "no retry")
}

func TestPay_EmptySessionID(t *testing.T) {
	env := newTestEnv(t)
	env.provider.respond(&stripecheckout.Session{}, nil)
	env.addItem(t, "1", 1)

	resp, _ := env.postForm(t, "/cart/pay", nil)

	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("Location"))
}

func TestPay_RateLimitIsPerVisitor(t *testing.T) {
	env := newTestEnv(t, withRouteLimits(3))

	// Every pay also calls /api/checkout on this server. Those loopback
	// calls must not drain one shared budget.
	for i := range 5 {
		v := env.visitor(t)
		v.addItem(t, "1", 1)

		resp, _ := v.postForm(t, "/cart/pay", nil)
		require.Equal(t, http.StatusSeeOther, resp.StatusCode, "visitor %d", i+1)
		assert.Equal(t, testCheckoutURL+"/sess_123", resp.Header.Get("Location"), "visitor %d", i+1)
	}
	assert.Len(t, env.provider.Calls(), 5)
}

func TestPay_RateLimitStopsOneVisitor(t *testing.T) {
	env := newTestEnv(t, withRouteLimits(2))
	env.addItem(t, "1", 1)

	for range 2 {
		resp, _ := env.postForm(t, "/cart/pay", nil)
		require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	}

	resp, _ := env.postForm(t, "/cart/pay", nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Len(t, env.provider.Calls(), 2)

	other := env.visitor(t)
	other.addItem(t, "3", 1)
	resp, _ = other.postForm(t, "/cart/pay", nil)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
}

func TestPay_PaymentClientUnavailable(t *testing.T) {
	env := newTestEnv(t, withoutPublishableKey())
	env.addItem(t, "1", 1)

	resp, _ := env.postForm(t, "/cart/pay", nil)

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Empty(t, env.provider.Calls(), "no session request without a payment client")
}

// --- JSON API ---

func TestCreateCheckoutSession(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.client.Post(env.srv.URL+"/api/checkout", "application/json", strings.NewReader(
		`[{"price_data":{"currency":"GBP","unit_amount":650,"product_data":{"name":"Waffle"}},"quantity":0}]`))
	require.NoError(t, err)
	body := readBody(t, resp)

	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var got struct {
		Session struct {
			ID          string `json:"id"`
			Object      string `json:"object"`
			URL         string `json:"url"`
			AmountTotal int64  `json:"amount_total"`
		} `json:"session"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &got))
	assert.Equal(t, "sess_123", got.Session.ID)
	assert.Equal(t, "checkout.session", got.Session.Object)
	assert.Equal(t, int64(3300), got.Session.AmountTotal)

	calls := env.provider.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, 0, calls[0][0].Quantity, "quantities are forwarded unvalidated")
}

func TestCreateCheckoutSession_BadBody(t *testing.T) {
	env := newTestEnv(t)

	for name, body := range map[string]string{
		"object":    `{"quantity":1}`,
		"truncated": `[{"quantity":`,
		"empty":     ``,
	} {
		t.Run(name, func(t *testing.T) {
			resp, err := env.client.Post(env.srv.URL+"/api/checkout", "application/json", strings.NewReader(body))
			require.NoError(t, err)
			readBody(t, resp)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
	assert.Empty(t, env.provider.Calls())
}

func TestListProducts(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.get(t, "/api/product")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got []struct {
		ID    string  `json:"id"`
		Title string  `json:"title"`
		Price float64 `json:"price"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &got))
	require.Len(t, got, 3)
	assert.Equal(t, "1", got[0].ID)
	assert.InDelta(t, 6.5, got[0].Price, 1e-9)
}
