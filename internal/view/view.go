// Package view implements the cart page: the persisted lines, their rendered
// fragments, the grand total and the empty state.
package view

import (
	"context"
	"html/template"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/cswank/store/internal/domain"
	"github.com/cswank/store/internal/fragment"
	"github.com/cswank/store/internal/indicator"
	"github.com/cswank/store/internal/repository"
	apperrors "github.com/cswank/store/pkg/errors"
	"github.com/cswank/store/pkg/tracing"
)

const tracerName = "cart.view"

// DefaultConcurrency bounds the fragment requests one view runs at a time.
const DefaultConcurrency = 8

var fragmentFailures = promauto.NewCounter(prometheus.CounterOpts{
	Name: "cart_fragment_failures_total",
	Help: "Cart line fragments that could not be loaded",
})

// Line is one rendered cart line.
type Line struct {
	Key      string          `json:"key"`
	ID       string          `json:"id"`
	Count    int             `json:"count"`
	Subtotal decimal.Decimal `json:"subtotal"`
	HTML     template.HTML   `json:"html"`
}

// Snapshot is what the cart page shows at one moment.
type Snapshot struct {
	Lines     []Line          `json:"lines"`
	Total     decimal.Decimal `json:"total"`
	Empty     bool            `json:"empty"`
	ItemCount int             `json:"item_count"`
	LinkText  string          `json:"link_text"`
	Pending   int             `json:"pending"`
	Failed    []string        `json:"failed,omitempty"`
}

// LineUpdate is the result of changing one line's quantity.
type LineUpdate struct {
	Key      string          `json:"key"`
	Count    int             `json:"count"`
	Removed  bool            `json:"removed"`
	Subtotal decimal.Decimal `json:"subtotal"`
	Total    decimal.Decimal `json:"total"`
	Empty    bool            `json:"empty"`
}

// Options configures a View.
type Options struct {
	Page        domain.PageContext
	Concurrency int
	// OnLoad runs after the document is loaded and before fragments are
	// requested. The document must not be modified.
	OnLoad func(ctx context.Context, doc *domain.Document)
}

// View is one cart page. Its methods are meant to be called from a single
// goroutine; fragment tasks publish into it concurrently.
type View struct {
	store     repository.DocumentStore
	source    fragment.Source
	indicator *indicator.Indicator
	logger    *slog.Logger
	opts      Options

	mu        sync.Mutex
	doc       *domain.Document
	fragments map[string]template.HTML
	failed    map[string]struct{}
	requested map[string]struct{}
	gen       uint64
	taskCtx   context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closed    bool
}

// New creates a cart view. Nothing is loaded until Load is called.
func New(store repository.DocumentStore, source fragment.Source, ind *indicator.Indicator, logger *slog.Logger, opts Options) *View {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	done := make(chan struct{})
	close(done)
	return &View{
		store:     store,
		source:    source,
		indicator: ind,
		logger:    logger,
		opts:      opts,
		doc:       domain.NewDocument(),
		fragments: make(map[string]template.HTML),
		failed:    make(map[string]struct{}),
		requested: make(map[string]struct{}),
		done:      done,
	}
}

// Load reads the cart, publishes the total and empty state right away and
// starts one fragment request per line. Fragments arrive in any order; use
// Wait to block until all of them have finished.
func (v *View) Load(ctx context.Context) (Snapshot, error) {
	doc, err := v.store.Load(ctx)
	if err != nil {
		return Snapshot{}, err
	}

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return Snapshot{}, apperrors.Conflict("cart view is closed")
	}
	v.stopTasks()
	v.doc = doc
	v.fragments = make(map[string]template.HTML)
	v.failed = make(map[string]struct{})
	v.requested = make(map[string]struct{})
	v.indicator.Refresh(doc, false)

	taskCtx, cancel := context.WithCancel(ctx)
	v.taskCtx, v.cancel = taskCtx, cancel
	v.done = make(chan struct{})
	gen, done := v.gen, v.done
	items := doc.Items()
	for _, item := range items {
		v.requested[item.Key] = struct{}{}
	}
	snap := v.snapshotLocked()
	v.mu.Unlock()

	if v.opts.OnLoad != nil {
		v.opts.OnLoad(ctx, doc.Clone())
	}

	go v.fetchAll(taskCtx, gen, items, nil, done)

	return snap, nil
}

// fetchAll closes done once its own requests and the batch behind after have
// finished.
func (v *View) fetchAll(ctx context.Context, gen uint64, items []domain.LineItem, after <-chan struct{}, done chan struct{}) {
	defer close(done)

	var g errgroup.Group
	g.SetLimit(v.opts.Concurrency)
	for _, item := range items {
		g.Go(func() error {
			v.fetch(ctx, gen, item)
			return nil
		})
	}
	_ = g.Wait()
	if after != nil {
		<-after
	}
}

// fetchMissingLocked starts fragment requests for lines that reached the
// document through a reload or a merge and were never requested.
func (v *View) fetchMissingLocked(ctx context.Context) {
	if v.source == nil || v.closed {
		return
	}
	var items []domain.LineItem
	for _, item := range v.doc.Items() {
		if _, ok := v.requested[item.Key]; ok {
			continue
		}
		v.requested[item.Key] = struct{}{}
		items = append(items, item)
	}
	if len(items) == 0 {
		return
	}
	if v.cancel == nil {
		v.taskCtx, v.cancel = context.WithCancel(ctx)
	}
	after := v.done
	v.done = make(chan struct{})
	go v.fetchAll(v.taskCtx, v.gen, items, after, v.done)
}

func (v *View) fetch(ctx context.Context, gen uint64, item domain.LineItem) {
	if ctx.Err() != nil {
		return
	}

	ctx, span := tracing.Start(ctx, tracerName, "view.fragment",
		attribute.String("cart.item", item.Key),
		attribute.Int("cart.count", item.Count),
	)
	defer span.End()

	html, err := v.source.Fetch(ctx, item)

	v.mu.Lock()
	defer v.mu.Unlock()
	if gen != v.gen || v.closed {
		return
	}
	if _, ok := v.doc.Get(item.Key); !ok {
		return
	}
	if err != nil {
		_ = tracing.Fail(span, err)
		fragmentFailures.Inc()
		v.failed[item.Key] = struct{}{}
		v.logger.WarnContext(ctx, "cart line fragment failed to load",
			slog.String("item", item.Key),
			slog.String("error", err.Error()),
		)
		return
	}
	v.fragments[item.Key] = html
}

// Wait blocks until every fragment request started since the last Load has
// finished, or ctx is done.
func (v *View) Wait(ctx context.Context) error {
	v.mu.Lock()
	done := v.done
	v.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Refresh reloads the document. Lines that left the cart lose their
// fragment and lines the page has not seen yet are requested.
func (v *View) Refresh(ctx context.Context) (Snapshot, error) {
	doc, err := v.store.Load(ctx)
	if err != nil {
		return Snapshot{}, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.doc = doc
	v.prune()
	v.fetchMissingLocked(ctx)
	v.indicator.Refresh(doc, false)
	return v.snapshotLocked(), nil
}

// UpdateLine adds delta to the line's count and persists the cart. A line
// that reaches zero is removed.
func (v *View) UpdateLine(ctx context.Context, key string, delta int) (LineUpdate, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, ok := v.doc.Get(key); !ok {
		return LineUpdate{}, apperrors.NotFound("cart line", key)
	}

	count := v.doc.AdjustCount(key, delta, domain.FloorCart)
	if err := v.saveLocked(ctx); err != nil {
		return LineUpdate{}, err
	}

	price := v.opts.Page.PriceSource(v.doc)
	item, ok := v.doc.Get(key)
	upd := LineUpdate{
		Key:      key,
		Count:    count,
		Removed:  !ok,
		Subtotal: decimal.Zero,
		Total:    v.doc.Total(price),
		Empty:    v.doc.IsEmpty(),
	}
	if ok {
		upd.Count = item.Count
		upd.Subtotal = item.Subtotal(price(key)).Round(2)
	}
	return upd, nil
}

// RemoveLine drops the line and persists the cart. Removing an absent line
// is a no-op.
func (v *View) RemoveLine(ctx context.Context, key string) (Snapshot, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, ok := v.doc.Get(key); !ok {
		return v.snapshotLocked(), nil
	}
	v.doc.Remove(key)
	if err := v.saveLocked(ctx); err != nil {
		return Snapshot{}, err
	}
	return v.snapshotLocked(), nil
}

// Clear empties the persisted cart and the page.
func (v *View) Clear(ctx context.Context) (Snapshot, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.store.Clear(ctx); err != nil {
		return Snapshot{}, err
	}
	v.stopTasks()
	v.doc = domain.NewDocument()
	v.fragments = make(map[string]template.HTML)
	v.failed = make(map[string]struct{})
	v.requested = make(map[string]struct{})
	v.indicator.Reset()
	return v.snapshotLocked(), nil
}

// Close cancels outstanding fragment requests. Late completions are dropped.
func (v *View) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	v.stopTasks()
}

// Document returns a copy of the document the view shows.
func (v *View) Document() *domain.Document {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.doc.Clone()
}

// Snapshot returns the current state of the page.
func (v *View) Snapshot() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.snapshotLocked()
}

func (v *View) saveLocked(ctx context.Context) error {
	saved, err := v.store.Save(ctx, v.doc)
	if err != nil {
		return err
	}
	v.doc = saved
	v.prune()
	v.fetchMissingLocked(ctx)
	v.indicator.Refresh(saved, false)
	return nil
}

// stopTasks must be called with v.mu held.
func (v *View) stopTasks() {
	v.gen++
	if v.cancel != nil {
		v.cancel()
		v.cancel = nil
	}
	v.taskCtx = nil
}

func (v *View) prune() {
	for key := range v.fragments {
		if _, ok := v.doc.Get(key); !ok {
			delete(v.fragments, key)
		}
	}
	for key := range v.failed {
		if _, ok := v.doc.Get(key); !ok {
			delete(v.failed, key)
		}
	}
	for key := range v.requested {
		if _, ok := v.doc.Get(key); !ok {
			delete(v.requested, key)
		}
	}
}

func (v *View) snapshotLocked() Snapshot {
	price := v.opts.Page.PriceSource(v.doc)
	snap := Snapshot{
		Lines:     []Line{},
		Total:     v.doc.Total(price),
		Empty:     v.doc.IsEmpty(),
		ItemCount: v.doc.ItemCount(),
		LinkText:  indicator.Label(v.doc.ItemCount()),
	}
	for _, item := range v.doc.Items() {
		if _, bad := v.failed[item.Key]; bad {
			snap.Failed = append(snap.Failed, item.Key)
			continue
		}
		html, ok := v.fragments[item.Key]
		if !ok {
			snap.Pending++
			continue
		}
		snap.Lines = append(snap.Lines, Line{
			Key:      item.Key,
			ID:       item.ID,
			Count:    item.Count,
			Subtotal: item.Subtotal(price(item.Key)).Round(2),
			HTML:     html,
		})
	}
	return snap
}
