package catalog

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(ts *httptest.Server) *ShopifyClient {
	return &ShopifyClient{
		baseURL:    ts.URL + "/admin/api/2023-10",
		token:      "test-token",
		pageSize:   2,
		maxRetries: 2,
		httpc:      ts.Client(),
	}
}

func TestShopifyClient_FetchProductsPaginates(t *testing.T) {
	var ts *httptest.Server
	ts = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "test-token", r.Header.Get("X-Shopify-Access-Token"))

		switch {
		case r.URL.Path == "/admin/api/2023-10/products.json" && r.URL.Query().Get("page_info") == "":
			w.Header().Set("Link", fmt.Sprintf(`<%s/admin/api/2023-10/products.json?page_info=next2>; rel="next"`, ts.URL))
			fmt.Fprint(w, `{"products":[
				{"id":1,"title":"Widget","body_html":"desc","vendor":"Acme","product_type":"tool","handle":"widget","status":"active",
				 "variants":[{"price":"19.99","inventory_quantity":5}],"image":{"src":"https://img/1.png"}},
				{"id":2,"title":"Gadget","variants":[{"price":"5.00","inventory_quantity":0}]}
			]}`)
		case r.URL.Query().Get("page_info") == "next2":
			fmt.Fprint(w, `{"products":[{"id":3,"title":"Gizmo","variants":[{"price":"1.25","inventory_quantity":9}]}]}`)
		default:
			t.Fatalf("unexpected request: %s", r.URL)
		}
	}))
	defer ts.Close()

	products, err := newTestClient(ts).FetchProducts(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 3)

	assert.Equal(t, Product{
		ID: 1, Title: "Widget", Description: "desc", Price: 19.99,
		Vendor: "Acme", ProductType: "tool", Handle: "widget", Status: "active",
		InventoryQuantity: 5, ImageURL: "https://img/1.png",
	}, products[0])
	assert.Equal(t, int64(3), products[2].ID)
}

func TestShopifyClient_FetchDiscountsJoinsCodesWithRules(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/admin/api/2023-10/price_rules.json":
			fmt.Fprint(w, `{"price_rules":[{"id":100,"title":"Agent deal","value_type":"percentage","value":"-30.0","target_type":"line_item"}]}`)
		case "/admin/api/2023-10/price_rules/100/discount_codes.json":
			fmt.Fprint(w, `{"discount_codes":[{"id":1000,"code":"AGENT30","usage_count":4}]}`)
		default:
			t.Fatalf("unexpected request: %s", r.URL)
		}
	}))
	defer ts.Close()

	discounts, err := newTestClient(ts).FetchDiscounts(context.Background())
	require.NoError(t, err)
	require.Len(t, discounts, 1)

	d := discounts[0]
	assert.Equal(t, int64(1000), d.ID)
	assert.Equal(t, "AGENT30", d.Code)
	assert.Equal(t, "Agent deal", d.Title)
	assert.Equal(t, ValueTypePercentage, d.ValueType)
	assert.Equal(t, -30.0, d.Value)
	assert.Equal(t, 4, d.UsageCount)
}

func TestShopifyClient_RetriesOnRateLimit(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "0.01")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"products":[{"id":1,"title":"Widget","variants":[{"price":"2.00","inventory_quantity":1}]}]}`)
	}))
	defer ts.Close()

	products, err := newTestClient(ts).FetchProducts(context.Background())
	require.NoError(t, err)
	assert.Len(t, products, 1)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestShopifyClient_ClientErrorDoesNotRetry(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer ts.Close()

	_, err := newTestClient(ts).FetchProducts(context.Background())
	assert.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestNextPageURL(t *testing.T) {
	link := `<https://shop/admin/api/2023-10/products.json?page_info=prev>; rel="previous", <https://shop/admin/api/2023-10/products.json?page_info=abc>; rel="next"`
	assert.Equal(t, "https://shop/admin/api/2023-10/products.json?page_info=abc", nextPageURL(link))
	assert.Equal(t, "", nextPageURL(`<https://shop/x>; rel="previous"`))
	assert.Equal(t, "", nextPageURL(""))
}
