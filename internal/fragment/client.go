package fragment

import (
	"context"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/cswank/store/internal/domain"
	"github.com/cswank/store/pkg/httpclient"
)

const maxFragmentBytes = 256 << 10

// Client fetches fragments from the line-item endpoint over HTTP.
type Client struct {
	baseURL string
	http    *httpclient.BreakerClient
}

// NewClient returns a Client for the storefront at baseURL.
func NewClient(baseURL string, http *httpclient.BreakerClient) *Client {
	return &Client{baseURL: baseURL, http: http}
}

// URL returns the fragment address for req.
func (c *Client) URL(req Request) string {
	path := "/cart/lineitem/" + url.PathEscape(req.Category) +
		"/" + url.PathEscape(req.Subcategory) +
		"/" + url.PathEscape(req.Key)
	q := url.Values{"quantity": {strconv.Itoa(req.Quantity)}}
	return c.baseURL + path + "?" + q.Encode()
}

func (c *Client) Fetch(ctx context.Context, item domain.LineItem) (template.HTML, error) {
	resp, err := c.http.Get(ctx, c.URL(RequestFor(item)))
	if err != nil {
		return "", fmt.Errorf("fetch fragment %s: %w", item.Key, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch fragment %s: %w", item.Key, httpclient.ParseResponseError(resp, "fragment"))
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFragmentBytes))
	if err != nil {
		return "", fmt.Errorf("read fragment %s: %w", item.Key, err)
	}
	// The endpoint is ours and renders through html/template.
	return template.HTML(body), nil //nolint:gosec
}
