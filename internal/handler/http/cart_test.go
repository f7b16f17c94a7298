package http

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cswank/store/internal/checkout"
	"github.com/cswank/store/internal/domain"
	"github.com/cswank/store/internal/fragment"
	"github.com/cswank/store/internal/navigation"
	"github.com/cswank/store/internal/provider"
	"github.com/cswank/store/internal/repository/memory"
	"github.com/cswank/store/internal/service"
	"github.com/cswank/store/pkg/health"
	"github.com/cswank/store/pkg/httpclient"
	"github.com/cswank/store/pkg/httputil"
	"github.com/cswank/store/pkg/logger"
	"github.com/cswank/store/pkg/middleware"
)

const session = "5d0c7e0a-8f0e-4a55-b1d2-2f9a1c6d4e77"

// ============================================================================
// Test helpers
// ============================================================================

type envelope struct {
	Data  json.RawMessage         `json:"data"`
	Error *httputil.ErrorResponse `json:"error"`
}

type testServer struct {
	handler http.Handler
	fake    *provider.Fake
}

func breaker(t *testing.T, name string) *httpclient.BreakerClient {
	t.Helper()
	cfg := httpclient.DefaultConfig()
	cfg.MaxRetries = 0
	return httpclient.NewBreakerClient(httpclient.New(cfg), httpclient.DefaultBreakerConfig(name+"-"+t.Name()), logger.Discard())
}

// newTestServer wires the production router over the in-memory store and
// catalog, with the fake provider on its own listener.
func newTestServer(t *testing.T) testServer {
	t.Helper()

	fake := provider.NewFake("https://pay.test", "")
	for _, item := range memory.SampleCatalog() {
		fake.AddProduct(provider.Product{
			ID:       provider.ID(item.ID),
			Title:    item.Title,
			Variants: []provider.Variant{{ID: provider.ID("v" + item.ID), Price: item.Price}},
		})
	}
	upstream := httptest.NewServer(fake)
	t.Cleanup(upstream.Close)

	renderer := fragment.NewRenderer(memory.NewCatalogRepository(memory.SampleCatalog()...))
	svc := service.NewCartService(service.Deps{
		Store:     memory.NewCartRepository(logger.Discard()),
		Fragments: renderer,
		Renderer:  renderer,
		Provider:  provider.NewHTTPProvider(upstream.URL, "", breaker(t, "provider")),
		Products:  checkout.NewCache(time.Minute),
		Admin:     breaker(t, "admin"),
	}, service.Config{
		ReturnURL:       "/",
		AdminURL:        "/admin",
		AdminAPIBaseURL: upstream.URL,
		IndicatorRevert: time.Hour,
	}, logger.Discard())
	t.Cleanup(svc.Close)

	h := NewRouter(svc, health.NewHandler(time.Second), logger.Discard(), RouterConfig{SessionTTL: time.Hour})
	return testServer{handler: h, fake: fake}
}

func (s testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader
	if body != nil {
		if raw, ok := body.(string); ok {
			r = strings.NewReader(raw)
		} else {
			b, err := json.Marshal(body)
			require.NoError(t, err)
			r = bytes.NewReader(b)
		}
	}

	req := httptest.NewRequest(method, path, r)
	req.Header.Set(middleware.SessionHeader, session)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	var env envelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	require.Nil(t, env.Error)
	require.NoError(t, json.Unmarshal(env.Data, dst))
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) *httputil.ErrorResponse {
	t.Helper()
	var env envelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	require.NotNil(t, env.Error)
	return env.Error
}

func mug() domain.ItemRef {
	return memory.SampleCatalog()[2].Ref()
}

type summary struct {
	Items []struct {
		Key      string `json:"key"`
		ID       string `json:"id"`
		Count    int    `json:"count"`
		Subtotal string `json:"subtotal"`
	} `json:"items"`
	ItemCount int    `json:"item_count"`
	Empty     bool   `json:"empty"`
	Total     string `json:"total"`
	Link      struct {
		Text     string `json:"text"`
		Animated bool   `json:"animated"`
	} `json:"link"`
}

// ============================================================================
// Tests
// ============================================================================

func TestGetCart_IssuesSession(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	id := rec.Header().Get(middleware.SessionHeader)
	assert.NotEmpty(t, id)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	var sum summary
	decodeData(t, rec, &sum)
	assert.True(t, sum.Empty)
	assert.Equal(t, "Cart", sum.Link.Text)
}

func TestCommitProduct(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/cart/product", service.CommitProductInput{Item: mug(), Quantity: 2})
	require.Equal(t, http.StatusOK, rec.Code)

	var sum summary
	decodeData(t, rec, &sum)
	assert.Equal(t, 2, sum.ItemCount)
	assert.Equal(t, "Cart (2)", sum.Link.Text)
	assert.True(t, sum.Link.Animated)

	rec = s.do(t, http.MethodGet, "/api/v1/cart", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeData(t, rec, &sum)
	assert.Equal(t, 2, sum.ItemCount)
	assert.Equal(t, "11", sum.Total)
}

func TestCommitProduct_Validation(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/cart/product", service.CommitProductInput{Item: mug(), Quantity: 0})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	apiErr := decodeError(t, rec)
	assert.Equal(t, "VALIDATION_ERROR", apiErr.Code)
	assert.Contains(t, apiErr.Fields, "quantity")
}

func TestCommitProduct_WrongContentType(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/product", strings.NewReader("quantity=1"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestCommitBulk(t *testing.T) {
	s := newTestServer(t)

	shirt := memory.SampleCatalog()[0].Ref()
	rec := s.do(t, http.MethodPost, "/api/v1/cart/wholesale", service.CommitBulkInput{Rows: []service.BulkRow{
		{Item: shirt, Quantity: 3},
		{Item: mug(), Quantity: 0},
	}})
	require.Equal(t, http.StatusOK, rec.Code)

	var sum summary
	decodeData(t, rec, &sum)
	assert.Equal(t, 3, sum.ItemCount)
}

func TestSaveCart_Malformed(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPut, "/api/v1/cart", `["not","a","cart"]`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_INPUT", decodeError(t, rec).Code)
}

func TestSaveCart(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPut, "/api/v1/cart", `{"mug-white":{"id":"2001","count":4,"cat":"home","subcat":"kitchen","price":"5.50"}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var sum summary
	decodeData(t, rec, &sum)
	assert.Equal(t, 4, sum.ItemCount)
	assert.Equal(t, "22", sum.Total)
}

func TestGetCart_ItemsCarryKeys(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPut, "/api/v1/cart", `{"shirt-red":{"id":"1001","count":2,"cat":"apparel","subcat":"shirts","price":"12.00"}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var saved summary
	decodeData(t, rec, &saved)
	require.Len(t, saved.Items, 1)
	assert.Equal(t, "shirt-red", saved.Items[0].Key)

	rec = s.do(t, http.MethodGet, "/api/v1/cart", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var sum summary
	decodeData(t, rec, &sum)
	require.Len(t, sum.Items, 1)
	assert.Equal(t, "shirt-red", sum.Items[0].Key)
	assert.Equal(t, "1001", sum.Items[0].ID)
	assert.Equal(t, 2, sum.Items[0].Count)
	assert.Equal(t, "24", sum.Items[0].Subtotal)
}

func TestUpdateLine_RemovesAtZero(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/cart/product", service.CommitProductInput{Item: mug(), Quantity: 1})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPatch, "/api/v1/cart/items/mug-white", UpdateLineRequest{Delta: -1})
	require.Equal(t, http.StatusOK, rec.Code)

	var res struct {
		Count   int  `json:"count"`
		Removed bool `json:"removed"`
		Empty   bool `json:"empty"`
	}
	decodeData(t, rec, &res)
	assert.Equal(t, 0, res.Count)
	assert.True(t, res.Removed)
	assert.True(t, res.Empty)
}

func TestUpdateLine_UnknownKey(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPatch, "/api/v1/cart/items/nope", UpdateLineRequest{Delta: 1})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRenderCart(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/cart/product", service.CommitProductInput{Item: mug(), Quantity: 2})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/cart/view", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var snap struct {
		Lines []struct {
			Key  string `json:"key"`
			HTML string `json:"html"`
		} `json:"lines"`
		Empty    bool   `json:"empty"`
		LinkText string `json:"link_text"`
	}
	decodeData(t, rec, &snap)
	require.Len(t, snap.Lines, 1)
	assert.Equal(t, "mug-white", snap.Lines[0].Key)
	assert.Contains(t, snap.Lines[0].HTML, `id="2001-total"`)
	assert.False(t, snap.Empty)
	assert.Equal(t, "Cart (2)", snap.LinkText)
}

func TestLineItem(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/cart/lineitem/home/kitchen/mug-white?quantity=3", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), `id="2001-quantity"`)
	assert.Contains(t, rec.Body.String(), "16.50")
}

func TestLineItem_Errors(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{name: "missing quantity", path: "/cart/lineitem/home/kitchen/mug-white", status: http.StatusBadRequest},
		{name: "bad quantity", path: "/cart/lineitem/home/kitchen/mug-white?quantity=two", status: http.StatusBadRequest},
		{name: "unknown item", path: "/cart/lineitem/home/kitchen/spoon?quantity=1", status: http.StatusNotFound},
		{name: "wrong category", path: "/cart/lineitem/apparel/tshirts/mug-white?quantity=1", status: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodGet, tt.path, nil)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestCheckout(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/cart/product", service.CommitProductInput{Item: mug(), Quantity: 2})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/cart/checkout", CheckoutRequest{DiscountCode: "SPRING"})
	require.Equal(t, http.StatusOK, rec.Code)

	var res struct {
		CheckoutURL string              `json:"checkout_url"`
		Navigate    []navigation.Effect `json:"navigate"`
	}
	decodeData(t, rec, &res)
	assert.Contains(t, res.CheckoutURL, "discount=SPRING")
	require.Len(t, res.Navigate, 2)
	assert.Equal(t, navigation.TargetBlank, res.Navigate[0].Target)
	assert.Equal(t, navigation.Effect{URL: "/", Target: navigation.TargetSelf}, res.Navigate[1])
	assert.Equal(t, 1, s.fake.Carts())

	rec = s.do(t, http.MethodGet, "/api/v1/cart", nil)
	var sum summary
	decodeData(t, rec, &sum)
	assert.True(t, sum.Empty)
}

func TestCheckout_EmptyBody(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/checkout", nil)
	req.Header.Set(middleware.SessionHeader, session)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_INPUT", decodeError(t, rec).Code)
}

func TestCheckout_ProviderDown(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/cart/product", service.CommitProductInput{Item: mug(), Quantity: 1})
	require.Equal(t, http.StatusOK, rec.Code)
	s.fake.FailWith(http.StatusServiceUnavailable)

	rec = s.do(t, http.MethodPost, "/api/v1/cart/checkout", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "PROVIDER_ERROR", decodeError(t, rec).Code)
}

func TestClearCart(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/cart/product", service.CommitProductInput{Item: mug(), Quantity: 1})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/v1/cart", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var snap struct {
		Empty    bool   `json:"empty"`
		LinkText string `json:"link_text"`
	}
	decodeData(t, rec, &snap)
	assert.True(t, snap.Empty)
	assert.Equal(t, "Cart", snap.LinkText)
}

func TestConfirmDelete(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/admin/confirm-delete", ConfirmDeleteRequest{Resource: "/admin/products/1001.json"})
	require.Equal(t, http.StatusOK, rec.Code)

	var res struct {
		Navigate []navigation.Effect `json:"navigate"`
	}
	decodeData(t, rec, &res)
	assert.Equal(t, []navigation.Effect{{URL: "/admin", Target: navigation.TargetSelf}}, res.Navigate)
	assert.Equal(t, []string{"1001"}, s.fake.Deleted())
}

func TestConfirmDelete_RejectsAbsoluteURL(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/admin/confirm-delete", ConfirmDeleteRequest{Resource: "https://evil.test/x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, s.fake.Deleted())
}
