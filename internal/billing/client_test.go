package billing

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStripe records the last form body per path and replies with canned JSON.
type fakeStripe struct {
	responses map[string]string
	forms     map[string]url.Values
	status    int
}

func (f *fakeStripe) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	values, _ := url.ParseQuery(string(body))
	if r.Method == http.MethodGet {
		values = r.URL.Query()
	}
	f.forms[r.Method+" "+r.URL.Path] = values

	w.Header().Set("Content-Type", "application/json")
	resp, ok := f.responses[r.Method+" "+r.URL.Path]
	if !ok || f.status == http.StatusNotFound {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","code":"resource_missing","message":"No such object"}}`))
		return
	}
	_, _ = w.Write([]byte(resp))
}

func newTestClient(t *testing.T, fake *fakeStripe, cfg Config) *Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	cfg.SecretKey = "sk_test_123"
	return NewClient(cfg, srv.URL, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestClient_CreateCustomer(t *testing.T) {
	fake := &fakeStripe{
		responses: map[string]string{
			"POST /v1/customers": `{"id":"cus_1","object":"customer","email":"dev@example.com","metadata":{"userId":"user-1"}}`,
		},
		forms: map[string]url.Values{},
	}
	c := newTestClient(t, fake, Config{})

	cust, err := c.CreateCustomer(context.Background(), "dev@example.com", "user-1")
	require.NoError(t, err)

	assert.Equal(t, "cus_1", cust.ID)
	assert.Equal(t, "user-1", cust.UserID)

	form := fake.forms["POST /v1/customers"]
	assert.Equal(t, "dev@example.com", form.Get("email"))
	assert.Equal(t, "user-1", form.Get("metadata[userId]"))
}

func TestClient_CreateCheckoutSession_InlinePrice(t *testing.T) {
	fake := &fakeStripe{
		responses: map[string]string{
			"POST /v1/checkout/sessions": `{"id":"cs_1","object":"checkout.session","url":"https://checkout.stripe.com/c/cs_1","customer":"cus_1"}`,
		},
		forms: map[string]url.Values{},
	}
	c := newTestClient(t, fake, Config{})

	sess, err := c.CreateCheckoutSession(context.Background(), CheckoutParams{
		CustomerID: "cus_1",
		UserID:     "user-1",
		SuccessURL: "https://app.test/error-analyzer?success=true",
		CancelURL:  "https://app.test/error-analyzer?canceled=true",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.stripe.com/c/cs_1", sess.URL)

	form := fake.forms["POST /v1/checkout/sessions"]
	assert.Equal(t, "subscription", form.Get("mode"))
	assert.Equal(t, "cus_1", form.Get("customer"))
	assert.Equal(t, "usd", form.Get("line_items[0][price_data][currency]"))
	assert.Equal(t, "999", form.Get("line_items[0][price_data][unit_amount]"))
	assert.Equal(t, "month", form.Get("line_items[0][price_data][recurring][interval]"))
	assert.Equal(t, "ErrMate Pro", form.Get("line_items[0][price_data][product_data][name]"))
	assert.Equal(t, "1", form.Get("line_items[0][quantity]"))
}

func TestClient_CreateCheckoutSession_CatalogPrice(t *testing.T) {
	fake := &fakeStripe{
		responses: map[string]string{
			"POST /v1/checkout/sessions": `{"id":"cs_2","object":"checkout.session","url":"https://checkout.stripe.com/c/cs_2"}`,
		},
		forms: map[string]url.Values{},
	}
	c := newTestClient(t, fake, Config{PriceID: "price_pro"})

	_, err := c.CreateCheckoutSession(context.Background(), CheckoutParams{CustomerID: "cus_1"})
	require.NoError(t, err)

	form := fake.forms["POST /v1/checkout/sessions"]
	assert.Equal(t, "price_pro", form.Get("line_items[0][price]"))
	assert.Empty(t, form.Get("line_items[0][price_data][currency]"))
}

func TestClient_CancelAtPeriodEnd(t *testing.T) {
	fake := &fakeStripe{
		responses: map[string]string{
			"POST /v1/subscriptions/sub_1": `{"id":"sub_1","object":"subscription","customer":"cus_1","status":"active","cancel_at_period_end":true,"cancel_at":1800000000,"current_period_end":1790000000}`,
		},
		forms: map[string]url.Values{},
	}
	c := newTestClient(t, fake, Config{})

	sub, err := c.CancelAtPeriodEnd(context.Background(), "sub_1")
	require.NoError(t, err)

	assert.True(t, sub.CancelAtPeriodEnd)
	assert.Equal(t, int64(1800000000), sub.EffectiveCancelAt())
	assert.Equal(t, "cus_1", sub.CustomerID)
	assert.Equal(t, "true", fake.forms["POST /v1/subscriptions/sub_1"].Get("cancel_at_period_end"))
}

func TestClient_GetCustomer_NotFound(t *testing.T) {
	fake := &fakeStripe{responses: map[string]string{}, forms: map[string]url.Values{}}
	c := newTestClient(t, fake, Config{})

	_, err := c.GetCustomer(context.Background(), "cus_missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
