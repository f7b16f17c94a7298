package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Count floors applied by AdjustCount.
const (
	// FloorCart lets a cart line drop to zero, at which point it is removed.
	FloorCart = 0
	// FloorStepper is the minimum purchasable quantity on product and wholesale pages.
	FloorStepper = 1
)

// ErrNegativeCount is returned when a caller tries to store a negative count.
var ErrNegativeCount = errors.New("count must not be negative")

// LineItem is one purchasable entry in the cart. The JSON field names match
// the documents written by the legacy storefront scripts.
type LineItem struct {
	Key         string           `json:"-"`
	ID          string           `json:"id"`
	Count       int              `json:"count"`
	Category    string           `json:"cat"`
	Subcategory string           `json:"subcat"`
	UnitPrice   *decimal.Decimal `json:"price,omitempty"`
}

// Subtotal returns count * price.
func (li LineItem) Subtotal(price decimal.Decimal) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(int64(li.Count)))
}

// Patch carries the fields supplied to Upsert. Empty strings and a nil price
// mean "not supplied"; Count is always applied.
type Patch struct {
	ID          string
	Category    string
	Subcategory string
	Count       int
	UnitPrice   *decimal.Decimal
}

// PatchFor builds a Patch for the given item reference and count.
func PatchFor(ref ItemRef, count int) Patch {
	return Patch{
		ID:          ref.ID,
		Category:    ref.Category,
		Subcategory: ref.Subcategory,
		Count:       count,
		UnitPrice:   ref.UnitPrice,
	}
}

// Document is the in-memory cart: a mapping from item key to line item.
// A Document is owned by exactly one page at a time; use Clone to hand a copy
// to somebody else.
type Document struct {
	items   map[string]LineItem
	touched map[string]struct{}
	cleared bool
}

// NewDocument returns an empty cart document.
func NewDocument() *Document {
	return &Document{
		items:   make(map[string]LineItem),
		touched: make(map[string]struct{}),
	}
}

// Get returns the line item stored under key.
func (d *Document) Get(key string) (LineItem, bool) {
	item, ok := d.items[key]
	return item, ok
}

// Len returns the number of distinct line items.
func (d *Document) Len() int {
	return len(d.items)
}

// IsEmpty reports whether the document has no entries.
func (d *Document) IsEmpty() bool {
	return len(d.items) == 0
}

// Keys returns the item keys in stable (sorted) rendering order.
func (d *Document) Keys() []string {
	keys := make([]string, 0, len(d.items))
	for k := range d.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Items returns the line items in rendering order.
func (d *Document) Items() []LineItem {
	keys := d.Keys()
	items := make([]LineItem, len(keys))
	for i, k := range keys {
		items[i] = d.items[k]
	}
	return items
}

// Upsert creates or updates the entry for key. Count uses replace semantics:
// callers that want to add to the current count must read it first. A count
// of zero removes the entry.
func (d *Document) Upsert(key string, p Patch) error {
	if key == "" {
		return errors.New("item key is required")
	}
	if p.Count < 0 {
		return fmt.Errorf("upsert %q: %w", key, ErrNegativeCount)
	}
	if p.Count == 0 {
		d.Remove(key)
		return nil
	}

	item, ok := d.items[key]
	if !ok {
		item = LineItem{Key: key}
	}
	if p.ID != "" {
		item.ID = p.ID
	}
	if p.Category != "" {
		item.Category = p.Category
	}
	if p.Subcategory != "" {
		item.Subcategory = p.Subcategory
	}
	if p.UnitPrice != nil {
		price := *p.UnitPrice
		item.UnitPrice = &price
	}
	item.Count = p.Count

	d.items[key] = item
	d.touch(key)
	return nil
}

// AdjustCount adds delta to the current count of key (0 when absent) and
// clamps the result to floor. An entry that ends at zero is removed. The
// resulting count is returned.
func (d *Document) AdjustCount(key string, delta, floor int) int {
	item, ok := d.items[key]
	if !ok {
		item = LineItem{Key: key}
	}

	count := ClampCount(item.Count+delta, floor)
	if count == 0 {
		d.Remove(key)
		return 0
	}

	item.Count = count
	d.items[key] = item
	d.touch(key)
	return count
}

// Remove deletes the entry for key. Removing an absent key is a no-op.
func (d *Document) Remove(key string) {
	if _, ok := d.items[key]; !ok {
		return
	}
	delete(d.items, key)
	d.touch(key)
}

// Clear removes every entry.
func (d *Document) Clear() {
	d.items = make(map[string]LineItem)
	d.touched = make(map[string]struct{})
	d.cleared = true
}

// ItemCount returns the sum of all counts.
func (d *Document) ItemCount() int {
	var n int
	for _, item := range d.items {
		n += item.Count
	}
	return n
}

// Total sums count * priceOf(key) over all entries, rounded to cents.
func (d *Document) Total(priceOf func(key string) decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for key, item := range d.items {
		total = total.Add(item.Subtotal(priceOf(key)))
	}
	return total.Round(2)
}

// UnitPrice returns the price embedded in the line item, or zero. It is the
// preferred price source for Total.
func (d *Document) UnitPrice(key string) decimal.Decimal {
	item, ok := d.items[key]
	if !ok || item.UnitPrice == nil {
		return decimal.Zero
	}
	return *item.UnitPrice
}

// FixedPrice returns a price source that charges the same price for every
// key. Only valid on pages that sell a single product; kept for documents
// written by the legacy single-price pages.
func FixedPrice(price decimal.Decimal) func(string) decimal.Decimal {
	return func(string) decimal.Decimal { return price }
}

// Normalize drops entries whose count is not positive and reports how many
// were dropped.
func (d *Document) Normalize() int {
	var dropped int
	for key, item := range d.items {
		if item.Count <= 0 {
			delete(d.items, key)
			dropped++
		}
	}
	return dropped
}

// Clone returns a deep copy, including the record of local changes.
func (d *Document) Clone() *Document {
	c := NewDocument()
	for k, item := range d.items {
		if item.UnitPrice != nil {
			price := *item.UnitPrice
			item.UnitPrice = &price
		}
		c.items[k] = item
	}
	for k := range d.touched {
		c.touched[k] = struct{}{}
	}
	c.cleared = d.cleared
	return c
}

// Dirty reports whether the document changed since it was loaded or last
// marked clean.
func (d *Document) Dirty() bool {
	return d.cleared || len(d.touched) > 0
}

// MarkClean forgets the record of local changes. Stores call it after a
// successful save.
func (d *Document) MarkClean() {
	d.touched = make(map[string]struct{})
	d.cleared = false
}

// Rebase applies the changes made to d since it was loaded on top of latest
// and returns the result. Keys d never touched keep whatever latest holds, so
// two pages editing different items do not clobber each other.
func (d *Document) Rebase(latest *Document) *Document {
	var out *Document
	if d.cleared || latest == nil {
		out = NewDocument()
	} else {
		out = latest.Clone()
		out.MarkClean()
	}

	for key := range d.touched {
		if item, ok := d.items[key]; ok {
			out.items[key] = item
		} else {
			delete(out.items, key)
		}
	}
	return out
}

func (d *Document) touch(key string) {
	d.touched[key] = struct{}{}
}

// MarshalJSON encodes the document as an object keyed by item key.
func (d *Document) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.items)
}

// UnmarshalJSON decodes an object keyed by item key. A JSON null yields an
// empty document.
func (d *Document) UnmarshalJSON(data []byte) error {
	var raw map[string]LineItem
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	d.items = make(map[string]LineItem, len(raw))
	d.touched = make(map[string]struct{})
	d.cleared = false
	for key, item := range raw {
		item.Key = key
		d.items[key] = item
	}
	return nil
}

// ClampCount clamps n to floor.
func ClampCount(n, floor int) int {
	if n < floor {
		return floor
	}
	return n
}
