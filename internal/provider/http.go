package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/cswank/store/pkg/httpclient"
)

// AccessTokenHeader carries the storefront access token.
const AccessTokenHeader = "X-Shopify-Access-Token"

const upstream = "commerce provider"

type productEnvelope struct {
	Product *Product `json:"product"`
}

type cartEnvelope struct {
	Cart *Cart `json:"cart"`
}

type lineItemsRequest struct {
	LineItems []LineItem `json:"line_items"`
}

// HTTPProvider is a Provider backed by the platform's REST API.
type HTTPProvider struct {
	baseURL string
	token   string
	client  *httpclient.BreakerClient
}

// NewHTTPProvider returns a provider for the API at baseURL.
func NewHTTPProvider(baseURL, token string, client *httpclient.BreakerClient) *HTTPProvider {
	return &HTTPProvider{baseURL: baseURL, token: token, client: client}
}

func (p *HTTPProvider) FetchProduct(ctx context.Context, id string) (*Product, error) {
	var env productEnvelope
	if err := p.do(ctx, http.MethodGet, "/products/"+url.PathEscape(id)+".json", nil, &env); err != nil {
		return nil, fmt.Errorf("fetch product %s: %w", id, err)
	}
	if env.Product == nil {
		return nil, fmt.Errorf("fetch product %s: empty response", id)
	}
	return env.Product, nil
}

func (p *HTTPProvider) CreateCart(ctx context.Context) (*Cart, error) {
	var env cartEnvelope
	if err := p.do(ctx, http.MethodPost, "/carts.json", struct{}{}, &env); err != nil {
		return nil, fmt.Errorf("create cart: %w", err)
	}
	if env.Cart == nil {
		return nil, fmt.Errorf("create cart: empty response")
	}
	return env.Cart, nil
}

func (p *HTTPProvider) CreateLineItemsFromVariants(ctx context.Context, cartID string, items []LineItem) (*Cart, error) {
	var env cartEnvelope
	path := "/carts/" + url.PathEscape(cartID) + "/line_items.json"
	if err := p.do(ctx, http.MethodPost, path, lineItemsRequest{LineItems: items}, &env); err != nil {
		return nil, fmt.Errorf("add line items to cart %s: %w", cartID, err)
	}
	if env.Cart == nil || env.Cart.CheckoutURL == "" {
		return nil, fmt.Errorf("add line items to cart %s: response has no checkout url", cartID)
	}
	return env.Cart, nil
}

func (p *HTTPProvider) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader = http.NoBody
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if p.token != "" {
		req.Header.Set(AccessTokenHeader, p.token)
	}

	resp, err := p.client.Do(ctx, req)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return httpclient.ParseResponseError(resp, upstream)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
