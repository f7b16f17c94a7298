// Package editor holds the quantities a page is editing before they are
// committed to the persisted cart.
package editor

import (
	"context"
	"fmt"

	"github.com/cswank/store/internal/domain"
	"github.com/cswank/store/internal/repository"
	apperrors "github.com/cswank/store/pkg/errors"
)

// Stepper is the quantity control of a single-product page.
type Stepper struct {
	page    domain.PageContext
	pending int
}

// NewStepper starts at the page's initial quantity, never below one.
func NewStepper(page domain.PageContext) *Stepper {
	return &Stepper{
		page:    page,
		pending: domain.ClampCount(page.Quantity, domain.FloorStepper),
	}
}

// Count returns the pending quantity.
func (s *Stepper) Count() int {
	return s.pending
}

// Increment adds delta to the pending quantity and returns the result.
func (s *Stepper) Increment(delta int) int {
	s.pending = domain.ClampCount(s.pending+delta, domain.FloorStepper)
	return s.pending
}

// Set replaces the pending quantity with a typed value.
func (s *Stepper) Set(n int) int {
	s.pending = domain.ClampCount(n, domain.FloorStepper)
	return s.pending
}

// Commit writes the pending quantity for the page item into the latest
// persisted cart, replacing any count already there.
func (s *Stepper) Commit(ctx context.Context, store repository.DocumentStore) (*domain.Document, error) {
	item := s.page.Item
	if item.Key == "" {
		return nil, apperrors.InvalidInput("page has no item")
	}

	doc, err := store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if err := doc.Upsert(item.Key, domain.PatchFor(item, s.pending)); err != nil {
		return nil, apperrors.InvalidInput(err.Error())
	}

	saved, err := store.Save(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("commit %s: %w", item.Key, err)
	}
	return saved, nil
}
