package editor

import (
	"context"
	"fmt"
	"sort"

	"github.com/cswank/store/internal/domain"
	"github.com/cswank/store/internal/repository"
	apperrors "github.com/cswank/store/pkg/errors"
)

// Row is one line of the wholesale order form.
type Row struct {
	Ref     domain.ItemRef
	Count   int
	Touched bool
}

// Bulk holds the pending quantities of the wholesale page. Rows start at
// the count the cart held when the page was loaded.
type Bulk struct {
	persisted map[string]domain.LineItem
	touched   map[string]Row
}

// NewBulk builds the editor from the document loaded when the page opened.
func NewBulk(doc *domain.Document) *Bulk {
	b := &Bulk{
		persisted: make(map[string]domain.LineItem),
		touched:   make(map[string]Row),
	}
	if doc == nil {
		return b
	}
	for _, item := range doc.Items() {
		b.persisted[item.Key] = item
	}
	return b
}

// Count returns the resolved count for key.
func (b *Bulk) Count(key string) int {
	if row, ok := b.touched[key]; ok {
		return row.Count
	}
	return b.persisted[key].Count
}

// Touched reports whether the row for key was edited on this page.
func (b *Bulk) Touched(key string) bool {
	_, ok := b.touched[key]
	return ok
}

// Increment adjusts the row for ref. Once touched a row never drops below one.
func (b *Bulk) Increment(ref domain.ItemRef, delta int) int {
	row, ok := b.touched[ref.Key]
	if !ok {
		row = Row{Ref: ref, Count: b.persisted[ref.Key].Count}
	}
	row.Ref = ref
	row.Count = domain.ClampCount(row.Count+delta, domain.FloorStepper)
	row.Touched = true
	b.touched[ref.Key] = row
	return row.Count
}

// Set replaces the row's count with a typed value, never below one.
func (b *Bulk) Set(ref domain.ItemRef, n int) int {
	b.touched[ref.Key] = Row{Ref: ref, Count: domain.ClampCount(n, domain.FloorStepper), Touched: true}
	return b.touched[ref.Key].Count
}

// Rows returns every known row in key order, pre-filled rows included.
func (b *Bulk) Rows() []Row {
	keys := make(map[string]struct{}, len(b.persisted)+len(b.touched))
	for k := range b.persisted {
		keys[k] = struct{}{}
	}
	for k := range b.touched {
		keys[k] = struct{}{}
	}

	rows := make([]Row, 0, len(keys))
	for k := range keys {
		if row, ok := b.touched[k]; ok {
			rows = append(rows, row)
			continue
		}
		item := b.persisted[k]
		rows = append(rows, Row{
			Ref: domain.ItemRef{
				Key:         k,
				ID:          item.ID,
				Category:    item.Category,
				Subcategory: item.Subcategory,
				UnitPrice:   item.UnitPrice,
			},
			Count: item.Count,
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Ref.Key < rows[j].Ref.Key })
	return rows
}

// Commit merges every edited row with a positive count into the latest
// persisted cart and saves once. Rows the page never touched keep whatever
// the store holds now.
func (b *Bulk) Commit(ctx context.Context, store repository.DocumentStore) (*domain.Document, error) {
	doc, err := store.Load(ctx)
	if err != nil {
		return nil, err
	}

	for _, row := range b.Rows() {
		if !row.Touched || row.Count <= 0 {
			continue
		}
		if err := doc.Upsert(row.Ref.Key, domain.PatchFor(row.Ref, row.Count)); err != nil {
			return nil, apperrors.InvalidInput(err.Error())
		}
	}

	saved, err := store.Save(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("commit wholesale order: %w", err)
	}
	return saved, nil
}
