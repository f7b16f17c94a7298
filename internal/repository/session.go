package repository

import (
	"context"

	"github.com/cswank/store/internal/domain"
	apperrors "github.com/cswank/store/pkg/errors"
)

// SaveMode selects how a Session writes documents back.
type SaveMode string

const (
	// SaveOverwrite writes the page's document as-is; a concurrent write by
	// another page between its load and save is lost.
	SaveOverwrite SaveMode = "overwrite"
	// SaveMerge re-reads the slot and applies only the page's own changes.
	SaveMerge SaveMode = "merge"
)

// DocumentStore is the per-session view of the cart store that pages use.
type DocumentStore interface {
	Load(ctx context.Context) (*domain.Document, error)
	// Save persists doc and returns the document now in the store.
	Save(ctx context.Context, doc *domain.Document) (*domain.Document, error)
	Clear(ctx context.Context) error
}

// Session binds a CartStore to one cart session's slot.
type Session struct {
	store CartStore
	slot  string
	mode  SaveMode
}

// SlotKey returns the storage key for a session under the given slot name.
func SlotKey(name, sessionID string) string {
	if name == "" {
		name = DefaultSlot
	}
	return name + ":" + sessionID
}

// NewSession returns the DocumentStore for one session slot.
func NewSession(store CartStore, slot string, mode SaveMode) *Session {
	if mode == "" {
		mode = SaveOverwrite
	}
	return &Session{store: store, slot: slot, mode: mode}
}

// Slot returns the storage key this session writes to.
func (s *Session) Slot() string {
	return s.slot
}

func (s *Session) Load(ctx context.Context) (*domain.Document, error) {
	doc, err := s.store.Load(ctx, s.slot)
	if err != nil {
		return nil, apperrors.Wrap(err, "load cart")
	}
	return doc, nil
}

func (s *Session) Save(ctx context.Context, doc *domain.Document) (*domain.Document, error) {
	if s.mode == SaveMerge {
		merged, err := s.store.Merge(ctx, s.slot, doc)
		if err != nil {
			return nil, apperrors.Wrap(err, "merge cart")
		}
		doc.MarkClean()
		return merged, nil
	}

	if err := s.store.Save(ctx, s.slot, doc); err != nil {
		return nil, apperrors.Wrap(err, "save cart")
	}
	doc.MarkClean()
	return doc, nil
}

func (s *Session) Clear(ctx context.Context) error {
	if err := s.store.Clear(ctx, s.slot); err != nil {
		return apperrors.Wrap(err, "clear cart")
	}
	return nil
}
