package products_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"SanitizedInput/internal/products"
	"SanitizedInput/internal/sanitize"
	"SanitizedInput/pkg/kit"
)

const base = "/v1/sanitized/input"

func newProductsTS(t *testing.T, store products.Store, deps products.HTTPDeps) *httptest.Server {
	t.Helper()

	deps.Log = zap.NewNop()
	deps.Service = "products"

	ts := httptest.NewServer(products.NewHandler(&products.Server{Store: store}, deps))
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, method, target string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()

	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, target, r)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, raw
}

// marker decodes a sentinel string body.
func marker(t *testing.T, raw []byte) string {
	t.Helper()

	var s string
	require.NoError(t, json.Unmarshal(raw, &s), "body=%s", raw)
	return s
}

func productBody(name, description string, price float64, qty int) map[string]any {
	return map[string]any{
		"name":        name,
		"description": description,
		"price":       price,
		"quantity":    qty,
	}
}

func TestHTTP_CreateAndGet(t *testing.T) {
	for name, newStore := range storeFactories {
		t.Run(name, func(t *testing.T) {
			ts := newProductsTS(t, newStore(t), products.HTTPDeps{})

			resp, raw := doJSON(t, http.MethodPost, ts.URL+base, productBody("Pen", "Blue ink", 1.5, 100), nil)
			require.Equal(t, http.StatusOK, resp.StatusCode, "body=%s", raw)
			assert.JSONEq(t, `{"id":1,"name":"Pen","description":"Blue ink","price":1.5,"qty":100}`, string(raw))

			resp, got := doJSON(t, http.MethodGet, ts.URL+base+"/1", nil, nil)
			require.Equal(t, http.StatusOK, resp.StatusCode)
			assert.JSONEq(t, string(raw), string(got))
		})
	}
}

func TestHTTP_CreateRejectsDenylistedInput(t *testing.T) {
	ts := newProductsTS(t, products.NewMemStore(), products.HTTPDeps{})

	cases := map[string]map[string]any{
		"semicolon in name":     productBody("Pen; DROP TABLE", "Blue ink", 1.5, 100),
		"equals in description": productBody("Pen", "a=b", 1.5, 100),
		"tautology":             productBody("1==1", "Blue ink", 1.5, 100),
		"quoted or in name":     productBody(`x" OR ""="`, "Blue ink", 1.5, 100),
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			resp, raw := doJSON(t, http.MethodPost, ts.URL+base, body, nil)
			require.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, products.MarkerRejectedInput, marker(t, raw))
		})
	}

	_, raw := doJSON(t, http.MethodGet, ts.URL+base, nil, nil)
	assert.JSONEq(t, `[]`, string(raw))
}

func TestHTTP_DenylistWinsOverLengthLimits(t *testing.T) {
	ts := newProductsTS(t, products.NewMemStore(), products.HTTPDeps{})

	_, _ = doJSON(t, http.MethodPost, ts.URL+base, productBody("Pen", "Blue ink", 1.5, 100), nil)

	longName := strings.Repeat("a", 100) + ";"
	longDescription := strings.Repeat("b", 200) + "="

	resp, raw := doJSON(t, http.MethodPost, ts.URL+base, productBody(longName, "Blue ink", 1.5, 1), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, "body=%s", raw)
	assert.Equal(t, products.MarkerRejectedInput, marker(t, raw))

	resp, raw = doJSON(t, http.MethodPut, ts.URL+base+"/1", productBody("Pen", longDescription, 1.5, 1), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, "body=%s", raw)
	assert.Equal(t, products.MarkerRejectedInput, marker(t, raw))
}

func TestHTTP_IntegralDecimalID(t *testing.T) {
	ts := newProductsTS(t, newSQLiteStore(t), products.HTTPDeps{})

	_, created := doJSON(t, http.MethodPost, ts.URL+base, productBody("Pen", "Blue ink", 1.5, 100), nil)

	resp, raw := doJSON(t, http.MethodGet, ts.URL+base+"/1.0", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, string(created), string(raw))

	_, raw = doJSON(t, http.MethodGet, ts.URL+base+"/1.5", nil, nil)
	assert.Equal(t, products.MarkerNotFound, marker(t, raw))
}

func TestHTTP_GetAndDeleteRejectDenylistedID(t *testing.T) {
	store := products.NewMemStore()
	ts := newProductsTS(t, store, products.HTTPDeps{})

	for _, id := range sanitize.Denylist {
		t.Run(id, func(t *testing.T) {
			target := ts.URL + base + "/" + url.PathEscape(id)

			resp, raw := doJSON(t, http.MethodGet, target, nil, nil)
			require.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, products.MarkerRejectedID, marker(t, raw))

			resp, raw = doJSON(t, http.MethodDelete, target, nil, nil)
			require.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, products.MarkerRejectedID, marker(t, raw))
		})
	}
}

func TestHTTP_NotInDatabase(t *testing.T) {
	ts := newProductsTS(t, products.NewMemStore(), products.HTTPDeps{})

	cases := []struct {
		name   string
		method string
		path   string
		body   any
	}{
		{"get missing", http.MethodGet, "/999", nil},
		{"get non numeric", http.MethodGet, "/abc", nil},
		{"get partial token", http.MethodGet, "/1;", nil},
		{"delete missing", http.MethodDelete, "/999", nil},
		{"update missing", http.MethodPut, "/999", productBody("Ink", "Refill", 2, 3)},
		// the update id is not screened
		{"update denylisted id", http.MethodPut, "/=", productBody("Ink", "Refill", 2, 3)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, raw := doJSON(t, tc.method, ts.URL+base+tc.path, tc.body, nil)
			require.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, products.MarkerNotFound, marker(t, raw))
		})
	}
}

func TestHTTP_UpdateAndDelete(t *testing.T) {
	ts := newProductsTS(t, products.NewMemStore(), products.HTTPDeps{})

	_, _ = doJSON(t, http.MethodPost, ts.URL+base, productBody("Pen", "Blue ink", 1.5, 100), nil)

	{
		resp, raw := doJSON(t, http.MethodPut, ts.URL+base+"/1", productBody("Pen", "a=b", 1.5, 100), nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, products.MarkerRejectedInput, marker(t, raw))

		_, raw = doJSON(t, http.MethodGet, ts.URL+base+"/1", nil, nil)
		assert.JSONEq(t, `{"id":1,"name":"Pen","description":"Blue ink","price":1.5,"qty":100}`, string(raw))
	}

	want := `{"id":1,"name":"Pen","description":"Red ink","price":2.25,"qty":50}`
	for i := 0; i < 2; i++ {
		resp, raw := doJSON(t, http.MethodPut, ts.URL+base+"/1", productBody("Pen", "Red ink", 2.25, 50), nil)
		require.Equal(t, http.StatusOK, resp.StatusCode, "body=%s", raw)
		assert.JSONEq(t, want, string(raw))
	}

	{
		resp, raw := doJSON(t, http.MethodDelete, ts.URL+base+"/1", nil, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.JSONEq(t, want, string(raw))

		_, raw = doJSON(t, http.MethodGet, ts.URL+base+"/1", nil, nil)
		assert.Equal(t, products.MarkerNotFound, marker(t, raw))

		_, raw = doJSON(t, http.MethodDelete, ts.URL+base+"/1", nil, nil)
		assert.Equal(t, products.MarkerNotFound, marker(t, raw))
	}
}

func TestHTTP_ListIsNotScreened(t *testing.T) {
	ts := newProductsTS(t, products.NewMemStore(), products.HTTPDeps{})

	_, _ = doJSON(t, http.MethodPost, ts.URL+base, productBody("Pen", "Blue ink", 1.5, 100), nil)
	_, _ = doJSON(t, http.MethodPost, ts.URL+base, productBody("Widget", "A widget", 9.99, 5), nil)

	resp, raw := doJSON(t, http.MethodGet, ts.URL+base+"?q=1==1", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var all []products.Product
	require.NoError(t, json.Unmarshal(raw, &all))
	require.Len(t, all, 2)
	assert.Equal(t, "Pen", all[0].Name)
	assert.Equal(t, "Widget", all[1].Name)
}

func TestHTTP_ClientErrors(t *testing.T) {
	ts := newProductsTS(t, products.NewMemStore(), products.HTTPDeps{})

	_, _ = doJSON(t, http.MethodPost, ts.URL+base, productBody("Pen", "Blue ink", 1.5, 100), nil)

	t.Run("missing field", func(t *testing.T) {
		resp, raw := doJSON(t, http.MethodPost, ts.URL+base, map[string]any{
			"description": "Blue ink",
			"price":       1.5,
			"quantity":    0,
		}, nil)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)

		var er struct {
			Error     string            `json:"error"`
			Details   map[string]string `json:"details"`
			RequestID string            `json:"request_id"`
		}
		require.NoError(t, json.Unmarshal(raw, &er))
		assert.Equal(t, "invalid product", er.Error)
		assert.Equal(t, map[string]string{"name": "failed on rule: required"}, er.Details)
		assert.NotEmpty(t, er.RequestID)
	})

	t.Run("name too long", func(t *testing.T) {
		long := strings.Repeat("a", 101)
		resp, raw := doJSON(t, http.MethodPost, ts.URL+base, productBody(long, "Blue ink", 1.5, 1), nil)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Contains(t, string(raw), `"name":"failed on rule: max"`)
	})

	t.Run("bad json", func(t *testing.T) {
		resp, raw := doJSON(t, http.MethodPost, ts.URL+base, `{"name":`, nil)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Contains(t, string(raw), `"bad json"`)
	})

	t.Run("trailing data", func(t *testing.T) {
		resp, _ := doJSON(t, http.MethodPost, ts.URL+base, `{"name":"a","description":"b","price":1,"quantity":1} {}`, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("duplicate name", func(t *testing.T) {
		resp, raw := doJSON(t, http.MethodPost, ts.URL+base, productBody("Pen", "Other", 2, 1), nil)
		require.Equal(t, http.StatusConflict, resp.StatusCode)
		assert.Contains(t, string(raw), products.ErrNameTaken.Error())
	})
}

func TestHTTP_Probes(t *testing.T) {
	ts := newProductsTS(t, newSQLiteStore(t), products.HTTPDeps{})

	resp, _ := doJSON(t, http.MethodGet, ts.URL+"/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/readyz", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHTTP_Metrics(t *testing.T) {
	const token = "scrape-me"

	ts := newProductsTS(t, products.NewMemStore(), products.HTTPDeps{
		Registry:       prometheus.NewRegistry(),
		MetricsEnabled: true,
		MetricsToken:   token,
	})

	_, _ = doJSON(t, http.MethodPost, ts.URL+base, productBody("Pen; DROP TABLE", "Blue ink", 1.5, 100), nil)

	resp, _ := doJSON(t, http.MethodGet, ts.URL+"/metrics", nil, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, raw := doJSON(t, http.MethodGet, ts.URL+"/metrics", nil, map[string]string{
		"Authorization": "Bearer " + token,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), `sanitize_rejections_total{operation="create",service="products"} 1`)
	assert.Contains(t, string(raw), `http_requests_total{method="POST"`)
}

func TestHTTP_RateLimited(t *testing.T) {
	ts := newProductsTS(t, products.NewMemStore(), products.HTTPDeps{
		Limiter: kit.NewIPRateLimiter(0.001, 1),
	})

	resp, _ := doJSON(t, http.MethodGet, ts.URL+base, nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodGet, ts.URL+base, nil, nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}
