// Package checkout hands the cart to the commerce provider.
package checkout

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/cswank/store/internal/domain"
	"github.com/cswank/store/internal/indicator"
	"github.com/cswank/store/internal/navigation"
	"github.com/cswank/store/internal/provider"
	"github.com/cswank/store/internal/repository"
	apperrors "github.com/cswank/store/pkg/errors"
	"github.com/cswank/store/pkg/tracing"
)

const tracerName = "cart.checkout"

// DefaultConcurrency bounds concurrent product lookups.
const DefaultConcurrency = 4

// DiscountParam is the checkout URL query parameter carrying a discount code.
const DiscountParam = "discount"

// Result describes a started checkout.
type Result struct {
	CartID      string `json:"cart_id"`
	CheckoutURL string `json:"checkout_url"`
	ReturnURL   string `json:"return_url"`
	Lines       int    `json:"lines"`
	Items       int    `json:"items"`
}

// Coordinator runs the checkout of one cart page.
type Coordinator struct {
	store       repository.DocumentStore
	provider    provider.Provider
	indicator   *indicator.Indicator
	nav         navigation.Navigator
	logger      *slog.Logger
	page        domain.PageContext
	concurrency int
	products    *Cache
}

// New creates a coordinator for the page. Coordinators of different
// requests may share products; a nil cache gives this one its own.
func New(
	store repository.DocumentStore,
	prov provider.Provider,
	ind *indicator.Indicator,
	nav navigation.Navigator,
	logger *slog.Logger,
	page domain.PageContext,
	products *Cache,
	concurrency int,
) *Coordinator {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if products == nil {
		products = NewCache(0)
	}
	return &Coordinator{
		store:       store,
		provider:    prov,
		indicator:   ind,
		nav:         nav,
		logger:      logger,
		page:        page,
		concurrency: concurrency,
		products:    products,
	}
}

// Prewarm fetches the provider products of every line so a later Checkout
// does not wait for them. Failures are logged; Checkout retries them.
func (c *Coordinator) Prewarm(ctx context.Context, doc *domain.Document) error {
	_, err := c.resolve(ctx, doc)
	if err != nil {
		c.logger.WarnContext(ctx, "prewarming provider products failed", slog.String("error", err.Error()))
	}
	return err
}

// Checkout creates a provider cart holding the persisted lines. Only after
// the provider accepted them is the local cart cleared and the shopper sent
// to the checkout URL in a new context and back to the return URL in the
// current one. On failure nothing local changes.
func (c *Coordinator) Checkout(ctx context.Context) (*Result, error) {
	ctx, span := tracing.Start(ctx, tracerName, "checkout.begin")
	defer span.End()

	doc, err := c.store.Load(ctx)
	if err != nil {
		return nil, tracing.Fail(span, err)
	}
	if doc.IsEmpty() {
		return nil, apperrors.InvalidInput("cart is empty")
	}
	span.SetAttributes(attribute.Int("cart.lines", doc.Len()), attribute.Int("cart.items", doc.ItemCount()))

	for _, item := range doc.Items() {
		if item.ID == "" {
			return nil, apperrors.InvalidInput(fmt.Sprintf("cart line %s has no product id", item.Key))
		}
	}

	products, err := c.resolve(ctx, doc)
	if err != nil {
		return nil, c.fail(ctx, span, "could not load products from the commerce provider", err)
	}

	lines := make([]provider.LineItem, 0, doc.Len())
	for _, item := range doc.Items() {
		variant, ok := products[item.ID].SelectedVariant()
		if !ok {
			return nil, c.fail(ctx, span, "product has no purchasable variant", fmt.Errorf("product %s has no variants", item.ID))
		}
		lines = append(lines, provider.LineItem{VariantID: variant.ID, Quantity: item.Count})
	}

	cart, err := c.provider.CreateCart(ctx)
	if err != nil {
		return nil, c.fail(ctx, span, "could not create a checkout", err)
	}
	cart, err = c.provider.CreateLineItemsFromVariants(ctx, string(cart.ID), lines)
	if err != nil {
		return nil, c.fail(ctx, span, "could not add items to the checkout", err)
	}

	checkoutURL, err := WithDiscount(cart.CheckoutURL, c.page.DiscountCode)
	if err != nil {
		return nil, c.fail(ctx, span, "commerce provider returned an invalid checkout url", err)
	}

	if err := c.store.Clear(ctx); err != nil {
		// The provider cart exists; the shopper can still pay.
		c.logger.ErrorContext(ctx, "clearing cart after checkout failed",
			slog.String("cart_id", string(cart.ID)),
			slog.String("error", err.Error()),
		)
	}
	c.indicator.Reset()

	returnURL := c.page.Return()
	c.nav.Navigate(checkoutURL, navigation.TargetBlank)
	c.nav.Navigate(returnURL, navigation.TargetSelf)

	c.logger.InfoContext(ctx, "checkout started",
		slog.String("cart_id", string(cart.ID)),
		slog.Int("lines", len(lines)),
		slog.Bool("discount", c.page.DiscountCode != ""),
	)

	return &Result{
		CartID:      string(cart.ID),
		CheckoutURL: checkoutURL,
		ReturnURL:   returnURL,
		Lines:       len(lines),
		Items:       doc.ItemCount(),
	}, nil
}

// resolve returns the provider product for every product id in doc, using
// the cache first.
func (c *Coordinator) resolve(ctx context.Context, doc *domain.Document) (map[string]*provider.Product, error) {
	out := make(map[string]*provider.Product)
	var missing []string

	for _, item := range doc.Items() {
		if item.ID == "" {
			continue
		}
		if _, seen := out[item.ID]; seen {
			continue
		}
		if p, ok := c.products.Get(item.ID); ok {
			out[item.ID] = p
			continue
		}
		out[item.ID] = nil
		missing = append(missing, item.ID)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	var mu sync.Mutex
	for _, id := range missing {
		g.Go(func() error {
			p, err := c.provider.FetchProduct(gctx, id)
			if err != nil {
				return err
			}
			mu.Lock()
			out[id] = p
			mu.Unlock()
			c.products.Put(id, p)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Coordinator) fail(ctx context.Context, span trace.Span, message string, cause error) error {
	c.logger.ErrorContext(ctx, "checkout failed",
		slog.String("reason", message),
		slog.String("error", cause.Error()),
	)
	return tracing.Fail(span, apperrors.ProviderFailed(message, cause))
}

// WithDiscount adds the discount code to a checkout URL. An empty code
// leaves the URL unchanged.
func WithDiscount(checkoutURL, code string) (string, error) {
	if code == "" {
		return checkoutURL, nil
	}
	u, err := url.Parse(checkoutURL)
	if err != nil {
		return "", fmt.Errorf("parse checkout url: %w", err)
	}
	q := u.Query()
	q.Set(DiscountParam, code)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
