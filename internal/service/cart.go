package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"

	"github.com/cswank/store/internal/checkout"
	"github.com/cswank/store/internal/confirm"
	"github.com/cswank/store/internal/domain"
	"github.com/cswank/store/internal/editor"
	"github.com/cswank/store/internal/event"
	"github.com/cswank/store/internal/fragment"
	"github.com/cswank/store/internal/indicator"
	"github.com/cswank/store/internal/navigation"
	"github.com/cswank/store/internal/provider"
	"github.com/cswank/store/internal/repository"
	"github.com/cswank/store/internal/view"
	apperrors "github.com/cswank/store/pkg/errors"
	"github.com/cswank/store/pkg/httpclient"
)

// Pages that commit to the cart, used as metric and event labels.
const (
	PageProduct   = "product"
	PageWholesale = "wholesale"
	PageCart      = "cart"
	PageAPI       = "api"
)

// Checkout outcomes.
const (
	OutcomeSuccess       = "success"
	OutcomeInvalid       = "invalid_cart"
	OutcomeProviderError = "provider_error"
	OutcomeError         = "error"
)

const prewarmTimeout = 10 * time.Second

var (
	cartCommits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cart_commits_total",
			Help: "Cart documents written, by page",
		},
		[]string{"page"},
	)

	cartCheckouts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cart_checkouts_total",
			Help: "Checkout attempts, by outcome",
		},
		[]string{"outcome"},
	)
)

// Config holds the page settings the service builds components with.
type Config struct {
	Slot                string
	SaveMode            repository.SaveMode
	DiscountCode        string
	FixedPrice          *decimal.Decimal
	ReturnURL           string
	FragmentConcurrency int
	ProviderConcurrency int
	IndicatorRevert     time.Duration
	AdminURL            string
	AdminAPIBaseURL     string
}

// Deps are the collaborators of the cart service.
type Deps struct {
	Store     repository.CartStore
	Fragments fragment.Source
	Renderer  *fragment.Renderer
	Provider  provider.Provider
	Products  *checkout.Cache
	Admin     *httpclient.BreakerClient
	Events    event.Publisher
}

// SummaryItem is a line item together with the key it is stored under.
type SummaryItem struct {
	domain.LineItem
	Key      string          `json:"key"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

// Summary is the persisted cart as the API returns it.
type Summary struct {
	Items     []SummaryItem   `json:"items"`
	ItemCount int             `json:"item_count"`
	Total     decimal.Decimal `json:"total"`
	Empty     bool            `json:"empty"`
	Link      indicator.State `json:"link"`
}

// CommitProductInput is the product page stepper state.
type CommitProductInput struct {
	Item     domain.ItemRef `json:"item" validate:"required"`
	Quantity int            `json:"quantity" validate:"gte=1,lte=10000"`
}

// BulkRow is one wholesale form row. A zero quantity means the row was not
// filled in.
type BulkRow struct {
	Item     domain.ItemRef `json:"item" validate:"required"`
	Quantity int            `json:"quantity" validate:"gte=0,lte=10000"`
}

// CommitBulkInput is the wholesale form.
type CommitBulkInput struct {
	Rows []BulkRow `json:"rows" validate:"required,min=1,max=200,dive"`
}

// LineResult is the cart page after a line changed.
type LineResult struct {
	view.LineUpdate
	Link indicator.State `json:"link"`
}

// CheckoutResult is a started checkout plus where the browser goes next.
type CheckoutResult struct {
	*checkout.Result
	Navigate []navigation.Effect `json:"navigate"`
}

// CartService builds the page components for a cart session and runs
// their operations.
type CartService struct {
	deps   Deps
	cfg    Config
	logger *slog.Logger
	wg     sync.WaitGroup
}

// NewCartService creates a new cart service.
func NewCartService(deps Deps, cfg Config, logger *slog.Logger) *CartService {
	if deps.Events == nil {
		deps.Events = event.Discard{}
	}
	if deps.Products == nil {
		deps.Products = checkout.NewCache(0)
	}
	if cfg.Slot == "" {
		cfg.Slot = repository.DefaultSlot
	}
	return &CartService{deps: deps, cfg: cfg, logger: logger}
}

// Close waits for background product prewarming to finish.
func (s *CartService) Close() {
	s.wg.Wait()
}

func (s *CartService) session(sessionID string, mode repository.SaveMode) (*repository.Session, error) {
	if sessionID == "" {
		return nil, apperrors.InvalidInput("cart session is required")
	}
	return repository.NewSession(s.deps.Store, repository.SlotKey(s.cfg.Slot, sessionID), mode), nil
}

func (s *CartService) page(discountOverride string) domain.PageContext {
	page := domain.PageContext{
		DiscountCode: s.cfg.DiscountCode,
		FixedPrice:   s.cfg.FixedPrice,
		ReturnURL:    s.cfg.ReturnURL,
	}
	if discountOverride != "" {
		page.DiscountCode = discountOverride
	}
	return page
}

func (s *CartService) newIndicator() *indicator.Indicator {
	return indicator.New(s.cfg.IndicatorRevert)
}

func (s *CartService) summarize(doc *domain.Document, link indicator.State) *Summary {
	price := s.page("").PriceSource(doc)
	lines := doc.Items()
	items := make([]SummaryItem, 0, len(lines))
	for _, li := range lines {
		items = append(items, SummaryItem{LineItem: li, Key: li.Key, Subtotal: li.Subtotal(price(li.Key))})
	}
	return &Summary{
		Items:     items,
		ItemCount: doc.ItemCount(),
		Total:     doc.Total(price),
		Empty:     doc.IsEmpty(),
		Link:      link,
	}
}

// GetCart returns the persisted cart of a session. A missing or unreadable
// cart is empty.
func (s *CartService) GetCart(ctx context.Context, sessionID string) (*Summary, error) {
	store, err := s.session(sessionID, s.cfg.SaveMode)
	if err != nil {
		return nil, err
	}
	doc, err := store.Load(ctx)
	if err != nil {
		return nil, err
	}
	return s.summarize(doc, indicator.State{Text: indicator.Label(doc.ItemCount()), Count: doc.ItemCount()}), nil
}

// SaveDocument overwrites the session's cart with doc.
func (s *CartService) SaveDocument(ctx context.Context, sessionID string, doc *domain.Document) (*Summary, error) {
	store, err := s.session(sessionID, repository.SaveOverwrite)
	if err != nil {
		return nil, err
	}
	if dropped := doc.Normalize(); dropped > 0 {
		s.logger.DebugContext(ctx, "dropped empty lines from saved cart", slog.Int("dropped", dropped))
	}

	saved, err := store.Save(ctx, doc)
	if err != nil {
		return nil, err
	}
	return s.committed(ctx, sessionID, PageAPI, saved, false), nil
}

// CommitProduct sets the quantity of the product page item.
func (s *CartService) CommitProduct(ctx context.Context, sessionID string, in CommitProductInput) (*Summary, error) {
	store, err := s.session(sessionID, s.cfg.SaveMode)
	if err != nil {
		return nil, err
	}

	page := s.page("")
	page.Item = in.Item
	page.Quantity = in.Quantity

	doc, err := editor.NewStepper(page).Commit(ctx, store)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "product committed to cart",
		slog.String("item", in.Item.Key),
		slog.Int("quantity", in.Quantity),
	)
	return s.committed(ctx, sessionID, PageProduct, doc, true), nil
}

// CommitBulk merges the filled-in wholesale rows into the cart with a
// single save.
func (s *CartService) CommitBulk(ctx context.Context, sessionID string, in CommitBulkInput) (*Summary, error) {
	store, err := s.session(sessionID, s.cfg.SaveMode)
	if err != nil {
		return nil, err
	}

	loaded, err := store.Load(ctx)
	if err != nil {
		return nil, err
	}
	bulk := editor.NewBulk(loaded)
	seen := make(map[string]struct{}, len(in.Rows))
	for _, row := range in.Rows {
		if _, dup := seen[row.Item.Key]; dup {
			return nil, apperrors.InvalidInput(fmt.Sprintf("row %s appears more than once", row.Item.Key))
		}
		seen[row.Item.Key] = struct{}{}
		if row.Quantity > 0 {
			bulk.Set(row.Item, row.Quantity)
		}
	}

	doc, err := bulk.Commit(ctx, store)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "wholesale order committed to cart", slog.Int("rows", len(in.Rows)))
	return s.committed(ctx, sessionID, PageWholesale, doc, true), nil
}

// committed records a write and publishes it. animate mirrors the link
// highlight the storefront shows after adding to the cart.
func (s *CartService) committed(ctx context.Context, sessionID, page string, doc *domain.Document, animate bool) *Summary {
	cartCommits.WithLabelValues(page).Inc()

	ind := s.newIndicator()
	defer ind.Stop()
	ind.Refresh(doc, animate)

	summary := s.summarize(doc, ind.State())
	if err := s.deps.Events.PublishCartUpdated(ctx, sessionID, page, doc, summary.Total); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish cart.updated event", slog.String("error", err.Error()))
	}
	return summary
}

func (s *CartService) newView(sessionID string, source fragment.Source, opts view.Options) (*view.View, *indicator.Indicator, error) {
	store, err := s.session(sessionID, s.cfg.SaveMode)
	if err != nil {
		return nil, nil, err
	}
	ind := s.newIndicator()
	opts.Page = s.page("")
	opts.Concurrency = s.cfg.FragmentConcurrency
	return view.New(store, source, ind, s.logger, opts), ind, nil
}

// UpdateLine adds delta to one cart line. A line that reaches zero is
// removed.
func (s *CartService) UpdateLine(ctx context.Context, sessionID, key string, delta int) (*LineResult, error) {
	v, ind, err := s.newView(sessionID, nil, view.Options{})
	if err != nil {
		return nil, err
	}
	defer v.Close()
	defer ind.Stop()

	if _, err := v.Refresh(ctx); err != nil {
		return nil, err
	}
	upd, err := v.UpdateLine(ctx, key, delta)
	if err != nil {
		return nil, err
	}

	cartCommits.WithLabelValues(PageCart).Inc()
	if err := s.deps.Events.PublishCartUpdated(ctx, sessionID, PageCart, v.Document(), upd.Total); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish cart.updated event", slog.String("error", err.Error()))
	}
	return &LineResult{LineUpdate: upd, Link: ind.State()}, nil
}

// RemoveLine drops one cart line.
func (s *CartService) RemoveLine(ctx context.Context, sessionID, key string) (*view.Snapshot, error) {
	v, ind, err := s.newView(sessionID, nil, view.Options{})
	if err != nil {
		return nil, err
	}
	defer v.Close()
	defer ind.Stop()

	if _, err := v.Refresh(ctx); err != nil {
		return nil, err
	}
	snap, err := v.RemoveLine(ctx, key)
	if err != nil {
		return nil, err
	}

	cartCommits.WithLabelValues(PageCart).Inc()
	if err := s.deps.Events.PublishCartUpdated(ctx, sessionID, PageCart, v.Document(), snap.Total); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish cart.updated event", slog.String("error", err.Error()))
	}
	return &snap, nil
}

// ClearCart empties the session's cart.
func (s *CartService) ClearCart(ctx context.Context, sessionID string) (*view.Snapshot, error) {
	v, ind, err := s.newView(sessionID, nil, view.Options{})
	if err != nil {
		return nil, err
	}
	defer v.Close()
	defer ind.Stop()

	snap, err := v.Clear(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.deps.Events.PublishCartCleared(ctx, sessionID, "user"); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish cart.cleared event", slog.String("error", err.Error()))
	}
	s.logger.InfoContext(ctx, "cart cleared")
	return &snap, nil
}

// RenderCart loads the cart page with every line fragment that could be
// rendered. Provider products are prewarmed in the background for a
// following checkout.
func (s *CartService) RenderCart(ctx context.Context, sessionID string) (*view.Snapshot, error) {
	if s.deps.Fragments == nil {
		return nil, apperrors.ServiceUnavailable("cart fragments are not configured")
	}

	v, ind, err := s.newView(sessionID, s.deps.Fragments, view.Options{OnLoad: s.prewarm})
	if err != nil {
		return nil, err
	}
	defer v.Close()
	defer ind.Stop()

	if _, err := v.Load(ctx); err != nil {
		return nil, err
	}
	if err := v.Wait(ctx); err != nil {
		return nil, err
	}
	snap := v.Snapshot()
	return &snap, nil
}

func (s *CartService) prewarm(ctx context.Context, doc *domain.Document) {
	if s.deps.Provider == nil || doc.IsEmpty() {
		return
	}

	coord := checkout.New(nil, s.deps.Provider, nil, nil, s.logger, domain.PageContext{}, s.deps.Products, s.cfg.ProviderConcurrency)
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), prewarmTimeout)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		_ = coord.Prewarm(ctx, doc)
	}()
}

// Checkout hands the cart to the commerce provider. discountOverride, when
// set, replaces the configured discount code.
func (s *CartService) Checkout(ctx context.Context, sessionID, discountOverride string) (*CheckoutResult, error) {
	if s.deps.Provider == nil {
		return nil, apperrors.ServiceUnavailable("checkout is not configured")
	}
	store, err := s.session(sessionID, s.cfg.SaveMode)
	if err != nil {
		return nil, err
	}

	ind := s.newIndicator()
	defer ind.Stop()
	nav := navigation.NewRecorder()
	page := s.page(discountOverride)

	coord := checkout.New(store, s.deps.Provider, ind, nav, s.logger, page, s.deps.Products, s.cfg.ProviderConcurrency)
	res, err := coord.Checkout(ctx)
	if err != nil {
		cartCheckouts.WithLabelValues(checkoutOutcome(err)).Inc()
		return nil, err
	}
	cartCheckouts.WithLabelValues(OutcomeSuccess).Inc()

	if err := s.deps.Events.PublishCartCheckedOut(ctx, event.CartCheckedOutData{
		SessionID:   sessionID,
		CartID:      res.CartID,
		Lines:       res.Lines,
		ItemCount:   res.Items,
		HasDiscount: page.DiscountCode != "",
	}); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish cart.checked_out event", slog.String("error", err.Error()))
	}
	if err := s.deps.Events.PublishCartCleared(ctx, sessionID, "checkout"); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish cart.cleared event", slog.String("error", err.Error()))
	}

	return &CheckoutResult{Result: res, Navigate: nav.Effects()}, nil
}

func checkoutOutcome(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrInvalidInput):
		return OutcomeInvalid
	case errors.Is(err, apperrors.ErrProvider):
		return OutcomeProviderError
	default:
		return OutcomeError
	}
}

// ConfirmDelete deletes an admin resource and returns where to go next.
func (s *CartService) ConfirmDelete(ctx context.Context, resource string) ([]navigation.Effect, error) {
	if s.deps.Admin == nil || s.cfg.AdminAPIBaseURL == "" {
		return nil, apperrors.ServiceUnavailable("admin api is not configured")
	}

	nav := navigation.NewRecorder()
	d := confirm.NewDeleter(s.cfg.AdminAPIBaseURL, s.cfg.AdminURL, s.deps.Admin, nav, s.logger)
	if err := d.Confirm(ctx, resource); err != nil {
		return nil, err
	}
	return nav.Effects(), nil
}

// RenderFragment writes one line-item fragment.
func (s *CartService) RenderFragment(ctx context.Context, w io.Writer, req fragment.Request) error {
	if s.deps.Renderer == nil {
		return apperrors.ServiceUnavailable("line item catalog is not configured")
	}
	return s.deps.Renderer.Render(ctx, w, req)
}
